package cloudstream

import (
	"time"

	"github.com/kbukum/speechgate/resilience"
	"github.com/kbukum/speechgate/security"
	"github.com/kbukum/speechgate/transcription"
)

// Config configures the cloud adapter.
type Config struct {
	Framework   string        `mapstructure:"framework"`
	DialTimeout time.Duration `mapstructure:"dial_timeout"`
	// ProbeTimeout bounds the one-shot recognition Infer runs.
	ProbeTimeout time.Duration                   `mapstructure:"probe_timeout"`
	Breaker      resilience.CircuitBreakerConfig `mapstructure:"breaker"`
	// TLS customizes the wss handshake, e.g. for on-premises containers
	// behind a private CA.
	TLS security.TLSConfig `mapstructure:"tls"`
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return c.TLS.Validate()
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Framework == "" {
		c.Framework = string(transcription.FrameworkAzure)
	}
	if c.DialTimeout <= 0 {
		c.DialTimeout = 10 * time.Second
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = 15 * time.Second
	}
	if c.Breaker.Name == "" {
		c.Breaker.Name = c.Framework
	}
	c.Breaker.ApplyDefaults()
}
