package session

import (
	"context"
	"fmt"

	"github.com/kbukum/speechgate/component"
)

var _ component.Component = (*Router)(nil)

func (r *Router) Name() string { return "session-router" }

func (r *Router) Start(context.Context) error { return nil }

// Stop refuses new connections and closes every live session.
func (r *Router) Stop(ctx context.Context) error {
	r.mu.Lock()
	r.closing = true
	live := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		live = append(live, s)
	}
	r.mu.Unlock()

	for _, s := range live {
		r.closeSession(ctx, s, "shutdown")
	}
	return nil
}

func (r *Router) Health(context.Context) component.Health {
	return component.Health{
		Name:    r.Name(),
		Status:  component.StatusHealthy,
		Details: map[string]any{"sessions": r.Count()},
	}
}

func (r *Router) Describe() component.Description {
	return component.Description{
		Type:    "router",
		Details: fmt.Sprintf("stop_timeout=%s frame_timeout=%s", r.cfg.StopTimeout, r.cfg.FrameTimeout),
	}
}
