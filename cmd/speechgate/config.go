package main

import (
	"fmt"

	"github.com/kbukum/speechgate/auth"
	"github.com/kbukum/speechgate/config"
	"github.com/kbukum/speechgate/database"
	"github.com/kbukum/speechgate/encryption"
	"github.com/kbukum/speechgate/model"
	"github.com/kbukum/speechgate/observability"
	"github.com/kbukum/speechgate/probe"
	"github.com/kbukum/speechgate/server"
	"github.com/kbukum/speechgate/session"
	"github.com/kbukum/speechgate/transcription/cloudstream"
	"github.com/kbukum/speechgate/transcription/localengine"
)

// Config is the gateway's full configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server      server.Config        `yaml:"server" mapstructure:"server"`
	Database    database.Config      `yaml:"database" mapstructure:"database"`
	Encryption  encryption.Config    `yaml:"encryption" mapstructure:"encryption"`
	Auth        auth.Config          `yaml:"auth" mapstructure:"auth"`
	Session     session.Config       `yaml:"session" mapstructure:"session"`
	Probe       probe.Config         `yaml:"probe" mapstructure:"probe"`
	Telemetry   observability.Config `yaml:"telemetry" mapstructure:"telemetry"`
	LocalEngine localengine.Config   `yaml:"local_engine" mapstructure:"local_engine"`
	Cloud       cloudstream.Config   `yaml:"cloud" mapstructure:"cloud"`
	Registry    model.Config         `yaml:"registry" mapstructure:"registry"`
}

// ApplyDefaults fills every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Encryption.ApplyDefaults()
	c.Auth.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Probe.ApplyDefaults()
	c.Telemetry.ApplyDefaults()
	c.LocalEngine.ApplyDefaults()
	c.Cloud.ApplyDefaults()
	c.Registry.ApplyDefaults()
}

// Validate checks every section that has rules.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	checks := []struct {
		section string
		fn      func() error
	}{
		{"server", c.Server.Validate},
		{"database", c.Database.Validate},
		{"encryption", c.Encryption.Validate},
		{"auth", c.Auth.Validate},
		{"session", c.Session.Validate},
		{"telemetry", c.Telemetry.Validate},
		{"local_engine", c.LocalEngine.Validate},
		{"cloud", c.Cloud.Validate},
		{"registry", c.Registry.Validate},
	}
	for _, chk := range checks {
		if err := chk.fn(); err != nil {
			return fmt.Errorf("%s: %w", chk.section, err)
		}
	}
	return nil
}
