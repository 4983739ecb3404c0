package provider

import "context"

// Provider is a named backend that can report whether it is reachable.
type Provider interface {
	Name() string
	IsAvailable(ctx context.Context) bool
}

// Availability probes every provider and returns the reachability by name.
func (r *Registry[T]) Availability(ctx context.Context) map[string]bool {
	out := make(map[string]bool)
	for _, name := range r.List() {
		p, _ := r.Get(name)
		out[name] = p.IsAvailable(ctx)
	}
	return out
}
