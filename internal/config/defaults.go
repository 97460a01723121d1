package config

const (
	defaultServerURL            = "http://127.0.0.1:8790"
	defaultTimeoutSeconds       = 30
	defaultRetryAttempts        = 3
	defaultRetryBaseMillis      = 500
	defaultRetryMaxMillis       = 15000
	defaultAutoReconnect        = true
	defaultReconnectInterval    = 1
	defaultMaxReconnectAttempts = 10
	defaultHeartbeatInterval    = 30
	defaultHeartbeatTimeout     = 10
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultJournalPath          = "~/.local/share/capstan/events.db"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Server: Server{
			URL:             defaultServerURL,
			TimeoutSeconds:  defaultTimeoutSeconds,
			RetryAttempts:   defaultRetryAttempts,
			RetryBaseMillis: defaultRetryBaseMillis,
			RetryMaxMillis:  defaultRetryMaxMillis,
		},
		Stream: Stream{
			AutoReconnect:        defaultAutoReconnect,
			ReconnectInterval:    defaultReconnectInterval,
			MaxReconnectAttempts: defaultMaxReconnectAttempts,
			HeartbeatInterval:    defaultHeartbeatInterval,
			HeartbeatTimeout:     defaultHeartbeatTimeout,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Journal: Journal{
			Enabled: false,
			Path:    defaultJournalPath,
		},
	}
}
