package config

const (
	defaultStateDir       = "~/.local/share/easel"
	defaultOutputDir      = "~/easel"
	defaultLogDir         = "~/.local/share/easel/logs"
	defaultBaseURL        = "http://127.0.0.1:8000"
	defaultRequestTimeout = 30
	defaultPollInterval   = 3
	defaultQuotaRefresh   = 60
	defaultLogFormat      = "console"
	defaultLogLevel       = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:  defaultStateDir,
			OutputDir: defaultOutputDir,
			LogDir:    defaultLogDir,
		},
		Server: Server{
			BaseURL:        defaultBaseURL,
			RequestTimeout: defaultRequestTimeout,
		},
		Polling: Polling{
			BaseInterval: defaultPollInterval,
		},
		Quota: Quota{
			RefreshInterval: defaultQuotaRefresh,
		},
		History: History{
			Enabled: true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
