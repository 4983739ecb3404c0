package bootstrap

import (
	"github.com/kbukum/speechgate/config"
)

// Config is the constraint for application configuration types. Any struct
// embedding config.ServiceConfig with `mapstructure:",squash"` satisfies it
// through promoted methods, provided it also declares its own
// ApplyDefaults and Validate that call into the embedded ones.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
