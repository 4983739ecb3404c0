package transcription

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/kbukum/speechgate/component"
)

const healthTimeout = 3 * time.Second

var (
	_ component.Component   = (*Registry)(nil)
	_ component.Describable = (*Registry)(nil)
)

// Name implements component.Component.
func (r *Registry) Name() string { return "adapters" }

// Start initializes every adapter that needs it.
func (r *Registry) Start(ctx context.Context) error {
	return r.InitAll(ctx)
}

// Stop releases adapter-wide resources.
func (r *Registry) Stop(ctx context.Context) error {
	return r.CloseAll(ctx)
}

// Health is degraded while any backend is unreachable. Models on the other
// backends keep serving, so it is never unhealthy.
func (r *Registry) Health(ctx context.Context) component.Health {
	ctx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	avail := r.Availability(ctx)
	details := make(map[string]any, len(avail))
	var down []string
	for name, ok := range avail {
		details[name] = ok
		if !ok {
			down = append(down, name)
		}
	}
	h := component.Health{Name: r.Name(), Status: component.StatusHealthy, Details: details}
	if len(down) > 0 {
		sort.Strings(down)
		h.Status = component.StatusDegraded
		h.Message = "unreachable: " + strings.Join(down, ", ")
	}
	return h
}

// Describe implements component.Describable.
func (r *Registry) Describe() component.Description {
	return component.Description{Type: "adapters", Details: fmt.Sprintf("frameworks=%v", r.List())}
}
