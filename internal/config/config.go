package config

import "time"

// ClientConfig is the root configuration for a listener.
type ClientConfig struct {
	Pusher     PusherConfig     `yaml:"pusher"`
	Connection ConnectionConfig `yaml:"connection"`
	Auth       AuthConfig       `yaml:"auth"`
	Channels   []string         `yaml:"channels"`
	Archive    ArchiveConfig    `yaml:"archive"`
	Database   DBConfig         `yaml:"database"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// PusherConfig identifies the application and the server to connect to.
type PusherConfig struct {
	AppKey   string `yaml:"app_key"`
	Cluster  string `yaml:"cluster"`
	Host     string `yaml:"host"` // Overrides the cluster host, e.g. for self-hosted servers
	Port     int    `yaml:"port"`
	Insecure bool   `yaml:"insecure"` // Use ws:// instead of wss://
}

// ConnectionConfig holds reconnect and transport settings.
type ConnectionConfig struct {
	ReconnectInitialDelay time.Duration `yaml:"reconnect_initial_delay"`
	ReconnectStep         time.Duration `yaml:"reconnect_step"`
	ReconnectMaxDelay     time.Duration `yaml:"reconnect_max_delay"`
	ResetBackoffOnConnect bool          `yaml:"reset_backoff_on_connect"`
	HandshakeTimeout      time.Duration `yaml:"handshake_timeout"`
	WriteTimeout          time.Duration `yaml:"write_timeout"`
	PingInterval          time.Duration `yaml:"ping_interval"`
	PongTimeout           time.Duration `yaml:"pong_timeout"`
}

// AuthConfig configures the channel auth endpoint. Required only for
// private and presence channels.
type AuthConfig struct {
	Endpoint   string            `yaml:"endpoint"`
	Headers    map[string]string `yaml:"headers"`
	Params     map[string]string `yaml:"params"`
	Timeout    time.Duration     `yaml:"timeout"`
	MaxRetries int               `yaml:"max_retries"`
}

// ArchiveConfig holds event archive settings.
type ArchiveConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig selects the log handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}
