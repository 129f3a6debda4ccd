package config

import "time"

// WatcherConfig is the root configuration for a streamwatch instance.
type WatcherConfig struct {
	Stream        StreamConfig         `yaml:"stream"`
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`
	Database      DatabaseConfig       `yaml:"database"`
	Writer        WriterConfig         `yaml:"writer"`
}

// StreamConfig holds the event-stream connection settings.
type StreamConfig struct {
	URL      string `yaml:"url"`
	ClientID string `yaml:"client_id"` // Generated when empty
	Token    string `yaml:"token"`

	AutoReconnect        *bool         `yaml:"auto_reconnect"` // Default on
	ReconnectInterval    time.Duration `yaml:"reconnect_interval"`
	MaxReconnectAttempts int           `yaml:"max_reconnect_attempts"`
	HeartbeatInterval    time.Duration `yaml:"heartbeat_interval"`
}

// Reconnect reports the auto-reconnect flag, defaulting to on.
func (s StreamConfig) Reconnect() bool {
	return s.AutoReconnect == nil || *s.AutoReconnect
}

// SubscriptionConfig is one (instrument, timeframe) topic to subscribe on
// startup. "*" is the wildcard.
type SubscriptionConfig struct {
	Instrument string `yaml:"instrument"`
	Timeframe  string `yaml:"timeframe"`
}

// DatabaseConfig holds the optional Postgres sink for received events.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// WriterConfig holds event-writer batching settings.
type WriterConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	BufferSize    int           `yaml:"buffer_size"`
}
