package model

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/speechgate/component"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/transcription"
)

var _ component.Component = (*Registry)(nil)
var _ component.Describable = (*Registry)(nil)

// Name returns the component name.
func (r *Registry) Name() string { return "model-registry" }

// Start restores persisted models.
func (r *Registry) Start(ctx context.Context) error {
	return r.Restore(ctx)
}

// Restore rebuilds every persisted model and reloads the ones that were
// loaded at last shutdown. Individual load failures are logged only.
func (r *Registry) Restore(ctx context.Context) error {
	records, err := r.store.GetAllModels(ctx)
	if err != nil {
		return fmt.Errorf("restore models: %w", err)
	}

	var reload []string
	r.mu.Lock()
	for _, rec := range records {
		if _, exists := r.models[rec.ID]; exists {
			continue
		}
		adapter, resolveErr := r.adapters.Resolve(transcription.Framework(rec.Framework))
		if resolveErr != nil {
			r.log.Warn("Restored model has no adapter", logger.Fields(
				logger.FieldModelID, rec.ID, logger.FieldFramework, rec.Framework,
			))
		}
		r.models[rec.ID] = &entry{rec: rec, adapter: adapter, state: StateRegistered}
		if rec.Loaded {
			reload = append(reload, rec.ID)
		}
	}
	r.mu.Unlock()

	r.log.Info("Models restored", logger.Fields("count", len(records), "reloading", len(reload)))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.cfg.RestoreConcurrency)
	for _, id := range reload {
		g.Go(func() error {
			status, err := r.Load(gctx, id)
			if err != nil {
				r.log.Warn("Restore load failed", logger.ErrorFields("load", err))
				return nil
			}
			if status.State != StateReady {
				r.log.Warn("Restored model did not become ready", logger.Fields(
					logger.FieldModelID, id, logger.FieldState, status.State.String(), logger.FieldError, status.Error,
				))
			}
			return nil
		})
	}
	return g.Wait()
}

// Stop releases every Ready instance. The persisted loaded flag is left
// untouched so the next Start reloads the same models.
func (r *Registry) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.StopTimeout)
	defer cancel()

	r.mu.RLock()
	entries := make([]*entry, 0, len(r.models))
	for _, e := range r.models {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	released := 0
	for _, e := range entries {
		e.op.Lock()
		if r.unloadLocked(ctx, e, false) {
			released++
		}
		e.op.Unlock()
	}
	r.log.Info("Registry stopped", logger.Fields("released", released))
	return nil
}

// Health reports degraded while any model is in LoadFailed.
func (r *Registry) Health(_ context.Context) component.Health {
	counts := make(map[string]any)
	failed := 0
	for _, s := range r.GetStatus() {
		key := s.State.String()
		n, _ := counts[key].(int)
		counts[key] = n + 1
		if s.State == StateLoadFailed {
			failed++
		}
	}

	h := component.Health{Name: r.Name(), Status: component.StatusHealthy, Details: counts}
	if failed > 0 {
		h.Status = component.StatusDegraded
		h.Message = fmt.Sprintf("%d model(s) failed to load", failed)
	}
	return h
}

// Describe summarizes the registry for the startup log.
func (r *Registry) Describe() component.Description {
	return component.Description{
		Type:    "registry",
		Details: fmt.Sprintf("frameworks=%v restore_concurrency=%d", r.adapters.List(), r.cfg.RestoreConcurrency),
	}
}
