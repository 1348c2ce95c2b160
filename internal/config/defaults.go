package config

import "time"

const (
	DefaultInitTimeout    = 10 * time.Second
	DefaultRequestTimeout = 5 * time.Second
	DefaultStopGrace      = 5 * time.Second
	DefaultBootstrapDelay = 100 * time.Millisecond
	DefaultToolsCacheTTL  = 5 * time.Minute
	DefaultEventsAddr     = "127.0.0.1:7878"
	DefaultProtocol       = "2024-11-05"
)

// GetDefaultConfig returns the built-in configuration.
func GetDefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Client: ClientConfig{
			Name:    "toolhost",
			Version: "dev",
		},
		ProtocolVersion: DefaultProtocol,
		Timeouts: TimeoutsConfig{
			Init:           DefaultInitTimeout,
			Request:        DefaultRequestTimeout,
			StopGrace:      DefaultStopGrace,
			BootstrapDelay: DefaultBootstrapDelay,
		},
		Events: EventsConfig{
			Enabled:    false,
			Addr:       DefaultEventsAddr,
			BufferSize: 256,
		},
		Logs: LogsConfig{
			BufferSize: 500,
		},
		Tools: ToolsConfig{
			CacheTTL: DefaultToolsCacheTTL,
		},
		SelfUpdate: SelfUpdateConfig{
			Repository: "toolhost/toolhost",
		},
	}
}
