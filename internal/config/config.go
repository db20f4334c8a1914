package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Paths contains directories and bind addresses used by the daemon.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	LogDir     string `toml:"log_dir"`
	APIBind    string `toml:"api_bind"`
	SocketPath string `toml:"socket_path"`
}

// TVMaze contains settings for episode lookups against the TVMaze API.
type TVMaze struct {
	BaseURL        string `toml:"base_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Fandom contains settings for recap scraping from allow-listed wikis.
type Fandom struct {
	// AllowedWikis maps a show title slug to the wiki base URL that may be
	// scraped for that show. Shows not listed here never hit a wiki.
	AllowedWikis   map[string]string `toml:"allowed_wikis"`
	TimeoutSeconds int               `toml:"timeout_seconds"`
}

// LLM contains shared connection settings for the Anthropic-backed features
// (recap sanitization, web-search recaps, chat answers, and answer audits).
type LLM struct {
	APIKey         string `toml:"api_key"`
	Model          string `toml:"model"`
	MaxTokens      int    `toml:"max_tokens"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Capture contains tuning for the subtitle capture buffer.
type Capture struct {
	BufferLines       int `toml:"buffer_lines"`
	MaxElementArea    int `toml:"max_element_area"`
	RescanDebounceMs  int `toml:"rescan_debounce_ms"`
	ContextClampChars int `toml:"context_clamp_chars"`
}

// Detection contains timing for show-info detection and the init flow.
type Detection struct {
	MutationDebounceMs int `toml:"mutation_debounce_ms"`
	URLPollMs          int `toml:"url_poll_ms"`
	NoShowTimeoutMs    int `toml:"no_show_timeout_ms"`
	RedetectTimeoutMs  int `toml:"redetect_timeout_ms"`
}

// Relay contains timing for cross-context context delivery.
type Relay struct {
	RefreshIntervalMs int   `toml:"refresh_interval_ms"`
	StartupBurstMs    []int `toml:"startup_burst_ms"`
}

// Sessions contains retention settings for chat sessions.
type Sessions struct {
	Max int `toml:"max"`
}

// Recap contains cache settings for episode recaps.
type Recap struct {
	CacheTTLDays int `toml:"cache_ttl_days"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for spoilshield.
//
// Configuration sections by subsystem:
//   - Paths: state/log directories, API bind address, IPC socket
//   - TVMaze: episode recap lookups via the TVMaze API
//   - Fandom: allow-listed wiki scraping for recaps
//   - LLM: Anthropic connection settings shared by AI features
//   - Capture: subtitle buffer sizing and debounce
//   - Detection: show-info detection and init flow timing
//   - Relay: context delivery timing between page and panel contexts
//   - Sessions: chat session retention
//   - Recap: recap cache TTL
//   - Logging: log format and level
type Config struct {
	Paths     Paths     `toml:"paths"`
	TVMaze    TVMaze    `toml:"tvmaze"`
	Fandom    Fandom    `toml:"fandom"`
	LLM       LLM       `toml:"llm"`
	Capture   Capture   `toml:"capture"`
	Detection Detection `toml:"detection"`
	Relay     Relay     `toml:"relay"`
	Sessions  Sessions  `toml:"sessions"`
	Recap     Recap     `toml:"recap"`
	Logging   Logging   `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/spoilshield/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config
// has all path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("spoilshield.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// DatabasePath returns the location of the sqlite database inside StateDir.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "spoilshield.db")
}

// LockPath returns the location of the daemon lock file inside StateDir.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "daemon.lock")
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	if c.Paths.SocketPath != "" {
		if err := os.MkdirAll(filepath.Dir(c.Paths.SocketPath), 0o755); err != nil {
			return fmt.Errorf("create socket directory: %w", err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}
