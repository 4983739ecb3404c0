package auth

import (
	"errors"
	"fmt"
	"time"
)

// SigningMethod names a supported HMAC algorithm.
type SigningMethod string

const (
	HS256 SigningMethod = "HS256"
	HS384 SigningMethod = "HS384"
	HS512 SigningMethod = "HS512"
)

// Config holds admin API authentication settings.
type Config struct {
	// Enabled controls whether admin routes require a bearer token.
	Enabled bool `mapstructure:"enabled"`
	// Secret is the HMAC signing key.
	Secret string `mapstructure:"secret"`
	// Method is the signing algorithm (default: HS256).
	Method SigningMethod `mapstructure:"method"`
	// Issuer is the expected "iss" claim (optional).
	Issuer string `mapstructure:"issuer"`
	// Audience is the expected "aud" claim (optional).
	Audience string `mapstructure:"audience"`
	// TokenTTL is the lifetime of issued tokens (default: 1h).
	TokenTTL time.Duration `mapstructure:"token_ttl"`
}

// ApplyDefaults sets defaults for zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.Method == "" {
		c.Method = HS256
	}
	if c.TokenTTL == 0 {
		c.TokenTTL = time.Hour
	}
}

// Validate checks the configuration. A disabled config is always valid.
func (c *Config) Validate() error {
	if !c.Enabled {
		return nil
	}
	switch c.Method {
	case HS256, HS384, HS512:
	default:
		return fmt.Errorf("auth: unsupported signing method %q", c.Method)
	}
	if c.Secret == "" {
		return errors.New("auth: secret is required")
	}
	if len(c.Secret) < 16 {
		return errors.New("auth: secret must be at least 16 bytes")
	}
	return nil
}

// Describe returns a one-liner for the startup summary.
func (c *Config) Describe() string {
	if !c.Enabled {
		return "disabled"
	}
	if c.Issuer != "" {
		return fmt.Sprintf("JWT(%s) issuer=%s", c.Method, c.Issuer)
	}
	return fmt.Sprintf("JWT(%s)", c.Method)
}
