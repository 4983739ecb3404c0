package session

import (
	"fmt"
	"time"
)

// Config tunes session handling.
type Config struct {
	// StopTimeout bounds how long teardown waits for a remote recognizer
	// to confirm it stopped.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
	// EventBuffer is the capacity of each session's recognizer event queue.
	EventBuffer int `mapstructure:"event_buffer"`
	// FrameTimeout bounds one local inference.
	FrameTimeout time.Duration `mapstructure:"frame_timeout"`
	// ArchiveTimeout bounds one transcript archive write.
	ArchiveTimeout time.Duration `mapstructure:"archive_timeout"`

	// SendBuffer is the number of outbound events a connection may queue
	// before it is treated as a slow consumer and dropped.
	SendBuffer int `mapstructure:"send_buffer"`
	// ReadLimit caps one inbound message in bytes.
	ReadLimit int64 `mapstructure:"read_limit"`
	// PingInterval is how often the server pings idle connections. A peer
	// silent for twice this long is disconnected.
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.StopTimeout <= 0 {
		c.StopTimeout = 5 * time.Second
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = 64
	}
	if c.FrameTimeout <= 0 {
		c.FrameTimeout = 30 * time.Second
	}
	if c.ArchiveTimeout <= 0 {
		c.ArchiveTimeout = 5 * time.Second
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 256
	}
	if c.ReadLimit <= 0 {
		c.ReadLimit = 1 << 20
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.StopTimeout <= 0 {
		return fmt.Errorf("session.stop_timeout must be positive")
	}
	if c.EventBuffer < 1 {
		return fmt.Errorf("session.event_buffer must be >= 1")
	}
	if c.ReadLimit < 1024 {
		return fmt.Errorf("session.read_limit must be at least 1024 bytes")
	}
	return nil
}
