package transcription

import (
	"github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/provider"
	"github.com/kbukum/speechgate/validation"
)

// Registry maps framework tags to adapters.
type Registry struct {
	*provider.Registry[Adapter]
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{Registry: provider.NewRegistry[Adapter]()}
}

// Register adds an adapter and makes its framework tag acceptable to the
// `framework` validation rule.
func (r *Registry) Register(a Adapter) error {
	if err := r.Registry.Register(a); err != nil {
		return err
	}
	validation.RegisterFramework(a.Name())
	return nil
}

// Resolve returns the adapter for a framework tag, or CONFIG_INVALID for
// tags no adapter handles.
func (r *Registry) Resolve(fw Framework) (Adapter, error) {
	a, ok := r.Get(string(fw.Normalize()))
	if !ok {
		return nil, errors.ConfigInvalid("framework", "unsupported framework "+string(fw))
	}
	return a, nil
}
