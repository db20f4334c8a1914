package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeTVMaze()
	c.normalizeFandom()
	c.normalizeLLM()
	c.normalizeTiming()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.SocketPath) == "" {
		c.Paths.SocketPath = defaultSocketPath
	}
	if c.Paths.SocketPath, err = expandPath(c.Paths.SocketPath); err != nil {
		return fmt.Errorf("paths.socket_path: %w", err)
	}
	if strings.TrimSpace(c.Paths.APIBind) == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	return nil
}

func (c *Config) normalizeTVMaze() {
	c.TVMaze.BaseURL = strings.TrimRight(strings.TrimSpace(c.TVMaze.BaseURL), "/")
	if c.TVMaze.BaseURL == "" {
		c.TVMaze.BaseURL = defaultTVMazeBaseURL
	}
	if c.TVMaze.TimeoutSeconds <= 0 {
		c.TVMaze.TimeoutSeconds = defaultTVMazeTimeout
	}
}

func (c *Config) normalizeFandom() {
	normalized := make(map[string]string, len(c.Fandom.AllowedWikis))
	for slug, base := range c.Fandom.AllowedWikis {
		slug = strings.ToLower(strings.TrimSpace(slug))
		base = strings.TrimRight(strings.TrimSpace(base), "/")
		if slug == "" || base == "" {
			continue
		}
		normalized[slug] = base
	}
	c.Fandom.AllowedWikis = normalized
	if c.Fandom.TimeoutSeconds <= 0 {
		c.Fandom.TimeoutSeconds = defaultFandomTimeout
	}
}

func (c *Config) normalizeLLM() {
	if c.LLM.APIKey == "" {
		if key, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
			c.LLM.APIKey = strings.TrimSpace(key)
		}
	}
	if strings.TrimSpace(c.LLM.Model) == "" {
		c.LLM.Model = defaultLLMModel
	}
	if c.LLM.MaxTokens <= 0 {
		c.LLM.MaxTokens = defaultLLMMaxTokens
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeout
	}
}

func (c *Config) normalizeTiming() {
	if c.Capture.BufferLines <= 0 {
		c.Capture.BufferLines = defaultBufferLines
	}
	if c.Capture.MaxElementArea <= 0 {
		c.Capture.MaxElementArea = defaultMaxElementArea
	}
	if c.Capture.RescanDebounceMs <= 0 {
		c.Capture.RescanDebounceMs = defaultRescanDebounceMs
	}
	if c.Capture.ContextClampChars <= 0 {
		c.Capture.ContextClampChars = defaultContextClamp
	}
	if c.Detection.MutationDebounceMs <= 0 {
		c.Detection.MutationDebounceMs = defaultMutationDebounce
	}
	if c.Detection.URLPollMs <= 0 {
		c.Detection.URLPollMs = defaultURLPollMs
	}
	if c.Detection.NoShowTimeoutMs <= 0 {
		c.Detection.NoShowTimeoutMs = defaultNoShowTimeoutMs
	}
	if c.Detection.RedetectTimeoutMs <= 0 {
		c.Detection.RedetectTimeoutMs = defaultRedetectTimeoutMs
	}
	if c.Relay.RefreshIntervalMs <= 0 {
		c.Relay.RefreshIntervalMs = defaultRefreshIntervalMs
	}
	if len(c.Relay.StartupBurstMs) == 0 {
		c.Relay.StartupBurstMs = []int{100, 500, 1000, 1200}
	}
	if c.Sessions.Max <= 0 {
		c.Sessions.Max = defaultMaxSessions
	}
	if c.Recap.CacheTTLDays <= 0 {
		c.Recap.CacheTTLDays = defaultRecapTTLDays
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
