package model

import (
	"fmt"
	"time"
)

// Config tunes the registry.
type Config struct {
	// LoadTimeout bounds one open plus probe.
	LoadTimeout time.Duration `mapstructure:"load_timeout"`
	// RestoreConcurrency bounds parallel loads during startup restore.
	RestoreConcurrency int `mapstructure:"restore_concurrency"`
	// StopTimeout bounds releasing every instance on shutdown.
	StopTimeout time.Duration `mapstructure:"stop_timeout"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LoadTimeout <= 0 {
		c.LoadTimeout = 5 * time.Minute
	}
	if c.RestoreConcurrency <= 0 {
		c.RestoreConcurrency = 4
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.LoadTimeout < time.Second {
		return fmt.Errorf("registry.load_timeout must be at least 1s, got %s", c.LoadTimeout)
	}
	if c.RestoreConcurrency < 1 {
		return fmt.Errorf("registry.restore_concurrency must be >= 1")
	}
	return nil
}

// Registration is the input to Register. APIKey is plaintext and is
// encrypted before anything is stored.
type Registration struct {
	Name      string `json:"name" validate:"required,max=255"`
	Type      string `json:"type" validate:"max=64"`
	Framework string `json:"framework" validate:"required,framework"`
	Device    string `json:"device" validate:"max=32"`
	Language  string `json:"language" validate:"max=32"`
	Path      string `json:"path" validate:"max=1024"`
	Endpoint  string `json:"endpoint" validate:"omitempty,url"`
	Region    string `json:"region" validate:"max=64"`
	APIKey    string `json:"api_key"`
	Status    string `json:"status" validate:"omitempty,oneof=active idle"`
}
