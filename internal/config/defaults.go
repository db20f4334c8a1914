package config

const (
	defaultStateDir          = "~/.local/share/spoilshield"
	defaultLogDir            = "~/.local/share/spoilshield/logs"
	defaultSocketPath        = "~/.local/share/spoilshield/daemon.sock"
	defaultAPIBind           = "127.0.0.1:7519"
	defaultTVMazeBaseURL     = "https://api.tvmaze.com"
	defaultTVMazeTimeout     = 10
	defaultFandomTimeout     = 15
	defaultLLMModel          = "claude-sonnet-4-20250514"
	defaultLLMMaxTokens      = 1024
	defaultLLMTimeout        = 60
	defaultBufferLines       = 40
	defaultMaxElementArea    = 300_000
	defaultRescanDebounceMs  = 750
	defaultContextClamp      = 2000
	defaultMutationDebounce  = 500
	defaultURLPollMs         = 2000
	defaultNoShowTimeoutMs   = 2000
	defaultRedetectTimeoutMs = 3000
	defaultRefreshIntervalMs = 3000
	defaultMaxSessions       = 10
	defaultRecapTTLDays      = 7
	defaultLogFormat         = "console"
	defaultLogLevel          = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
			SocketPath: defaultSocketPath,
		},
		TVMaze: TVMaze{
			BaseURL:        defaultTVMazeBaseURL,
			TimeoutSeconds: defaultTVMazeTimeout,
		},
		Fandom: Fandom{
			AllowedWikis: map[string]string{
				"jujutsu-kaisen": "https://jujutsu-kaisen.fandom.com",
			},
			TimeoutSeconds: defaultFandomTimeout,
		},
		LLM: LLM{
			Model:          defaultLLMModel,
			MaxTokens:      defaultLLMMaxTokens,
			TimeoutSeconds: defaultLLMTimeout,
		},
		Capture: Capture{
			BufferLines:       defaultBufferLines,
			MaxElementArea:    defaultMaxElementArea,
			RescanDebounceMs:  defaultRescanDebounceMs,
			ContextClampChars: defaultContextClamp,
		},
		Detection: Detection{
			MutationDebounceMs: defaultMutationDebounce,
			URLPollMs:          defaultURLPollMs,
			NoShowTimeoutMs:    defaultNoShowTimeoutMs,
			RedetectTimeoutMs:  defaultRedetectTimeoutMs,
		},
		Relay: Relay{
			RefreshIntervalMs: defaultRefreshIntervalMs,
			StartupBurstMs:    []int{100, 500, 1000, 1200},
		},
		Sessions: Sessions{
			Max: defaultMaxSessions,
		},
		Recap: Recap{
			CacheTTLDays: defaultRecapTTLDays,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
