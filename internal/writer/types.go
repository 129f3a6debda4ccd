package writer

import "time"

// Config holds batching settings for the event writer.
type Config struct {
	BatchSize     int           // Flush when this many events are pending
	FlushInterval time.Duration // Flush at least this often
	BufferSize    int           // Input channel capacity
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: time.Second,
		BufferSize:    1000,
	}
}

// Metrics counts writer activity.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Flushes   int64
	Errors    int64
	Dropped   int64
}
