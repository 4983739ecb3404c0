package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry holds named providers. Names are case-insensitive.
type Registry[T Provider] struct {
	mu        sync.RWMutex
	providers map[string]T
}

// NewRegistry creates a new empty Registry.
func NewRegistry[T Provider]() *Registry[T] {
	return &Registry[T]{providers: make(map[string]T)}
}

// Register adds p under its Name. Registering the same name twice fails.
func (r *Registry[T]) Register(p T) error {
	key := strings.ToLower(p.Name())
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.providers[key]; exists {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[key] = p
	return nil
}

// Get returns the provider registered under name.
func (r *Registry[T]) Get(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[strings.ToLower(name)]
	return p, ok
}

// List returns sorted names of all registered providers.
func (r *Registry[T]) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// InitAll calls Init on every Initializable provider, in name order.
func (r *Registry[T]) InitAll(ctx context.Context) error {
	for _, name := range r.List() {
		p, _ := r.Get(name)
		if init, ok := any(p).(Initializable); ok {
			if err := init.Init(ctx); err != nil {
				return fmt.Errorf("init provider %s: %w", name, err)
			}
		}
	}
	return nil
}

// CloseAll calls Close on every Closeable provider and joins the errors.
func (r *Registry[T]) CloseAll(ctx context.Context) error {
	var errs []error
	for _, name := range r.List() {
		p, _ := r.Get(name)
		if c, ok := any(p).(Closeable); ok {
			if err := c.Close(ctx); err != nil {
				errs = append(errs, fmt.Errorf("close provider %s: %w", name, err))
			}
		}
	}
	return errors.Join(errs...)
}
