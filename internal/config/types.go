package config

import "time"

// Config is the top-level configuration structure for toolhost.
type Config struct {
	LogLevel        string           `yaml:"logLevel,omitempty"`
	Client          ClientConfig     `yaml:"client,omitempty"`
	ProtocolVersion string           `yaml:"protocolVersion,omitempty"`
	Timeouts        TimeoutsConfig   `yaml:"timeouts,omitempty"`
	Events          EventsConfig     `yaml:"events,omitempty"`
	Logs            LogsConfig       `yaml:"logs,omitempty"`
	Tools           ToolsConfig      `yaml:"tools,omitempty"`
	SelfUpdate      SelfUpdateConfig `yaml:"selfUpdate,omitempty"`
}

// ClientConfig is the identity announced to tool servers during the handshake.
type ClientConfig struct {
	Name    string `yaml:"name,omitempty"`
	Version string `yaml:"version,omitempty"`
}

// TimeoutsConfig controls the supervisor timers.
type TimeoutsConfig struct {
	Init           time.Duration `yaml:"init,omitempty"`
	Request        time.Duration `yaml:"request,omitempty"`
	StopGrace      time.Duration `yaml:"stopGrace,omitempty"`
	BootstrapDelay time.Duration `yaml:"bootstrapDelay,omitempty"`
}

// EventsConfig configures the server-sent event stream.
type EventsConfig struct {
	Enabled        bool     `yaml:"enabled,omitempty"`
	Addr           string   `yaml:"addr,omitempty"`
	AllowedOrigins []string `yaml:"allowedOrigins,omitempty"`
	BufferSize     int      `yaml:"bufferSize,omitempty"`
}

// LogsConfig sizes the per-server diagnostic line buffer.
type LogsConfig struct {
	BufferSize int `yaml:"bufferSize,omitempty"`
}

// ToolsConfig controls the tools/list cache.
type ToolsConfig struct {
	CacheTTL time.Duration `yaml:"cacheTTL,omitempty"`
}

// SelfUpdateConfig names the release source used by self-update.
type SelfUpdateConfig struct {
	Repository string `yaml:"repository,omitempty"`
}

// ServerConfig defines how to launch one tool server.
type ServerConfig struct {
	ID          string            `yaml:"id" json:"id"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Command     string            `yaml:"command" json:"command"`
	Args        []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	WorkingDir  string            `yaml:"workingDir,omitempty" json:"workingDir,omitempty"`
	AutoStart   bool              `yaml:"autoStart,omitempty" json:"autoStart,omitempty"`
}

// ServersFile is the on-disk layout of servers.yaml.
type ServersFile struct {
	Servers []ServerConfig `yaml:"servers"`
}
