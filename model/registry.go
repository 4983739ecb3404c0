package model

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"github.com/kbukum/speechgate/encryption"
	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/observability"
	"github.com/kbukum/speechgate/probe"
	"github.com/kbukum/speechgate/store"
	"github.com/kbukum/speechgate/transcription"
	"github.com/kbukum/speechgate/validation"
)

// entry is one registered model.
//
// op serializes transitions (load, unload, delete). use is held shared by
// Infer for the whole call and exclusively by unload while it drains, so an
// instance is never closed under a running inference. mu guards the fields
// below and is only held for short reads and writes, never across a call.
type entry struct {
	rec     store.Model
	adapter transcription.Adapter

	op  sync.Mutex
	use sync.RWMutex

	mu       sync.Mutex
	state    State
	instance transcription.Instance
	latency  *float64
	lastErr  string
	deleted  bool
}

func (e *entry) status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		ID:        e.rec.ID,
		Name:      e.rec.Name,
		Type:      e.rec.Type,
		Framework: e.rec.Framework,
		Device:    e.rec.Device,
		Language:  e.rec.Language,
		Logo:      e.rec.Logo,
		State:     e.state,
		Loaded:    e.state == StateReady,
		Latency:   e.latency,
		Label:     healthLabel(e.state, e.latency),
		Error:     e.lastErr,
		CreatedAt: e.rec.CreatedAt,
	}
}

// Binding describes the model a session bound to.
type Binding struct {
	ModelID   string
	Name      string
	Framework transcription.Framework
	Kind      transcription.Kind
	Language  string
}

// Registry owns every registered model and its lifecycle.
type Registry struct {
	cfg      Config
	adapters *transcription.Registry
	store    store.Store
	codec    encryption.Codec
	prober   *probe.Prober
	metrics  *observability.GatewayMetrics
	log      *logger.Logger

	mu     sync.RWMutex
	models map[string]*entry

	loads singleflight.Group
	newID func() string
	now   func() time.Time
}

// NewRegistry creates an empty registry. Call Start (or Restore) to load
// persisted models.
func NewRegistry(cfg Config, adapters *transcription.Registry, st store.Store, codec encryption.Codec, prober *probe.Prober, log *logger.Logger) *Registry {
	cfg.ApplyDefaults()
	return &Registry{
		cfg:      cfg,
		adapters: adapters,
		store:    st,
		codec:    codec,
		prober:   prober,
		log:      log.WithComponent("registry"),
		models:   make(map[string]*entry),
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

// WithMetrics attaches gateway instruments.
func (r *Registry) WithMetrics(m *observability.GatewayMetrics) *Registry {
	r.metrics = m
	return r
}

func (r *Registry) lookup(id string) (*entry, error) {
	r.mu.RLock()
	e, ok := r.models[id]
	r.mu.RUnlock()
	if !ok {
		return nil, apperrors.NotFound("model", id)
	}
	return e, nil
}

// Register validates reg, encrypts its credentials and persists a new
// model in state Registered. It never loads.
func (r *Registry) Register(ctx context.Context, reg Registration) (string, error) {
	fw := transcription.Framework(reg.Framework).Normalize()
	adapter, err := r.adapters.Resolve(fw)
	if err != nil {
		return "", err
	}
	if err := checkFields(adapter.Kind(), reg); err != nil {
		return "", err
	}

	rec := store.Model{
		ID:        r.newID(),
		Name:      strings.TrimSpace(reg.Name),
		Type:      reg.Type,
		Framework: string(fw),
		Device:    reg.Device,
		Language:  reg.Language,
		Path:      reg.Path,
		Endpoint:  reg.Endpoint,
		Region:    reg.Region,
		Status:    reg.Status,
		CreatedAt: r.now(),
	}
	if reg.APIKey != "" {
		if rec.APIKey, err = r.codec.Encrypt(reg.APIKey); err != nil {
			return "", apperrors.Internal(err)
		}
	}
	if rec.Status == "" {
		rec.Status = store.StatusIdle
	}
	if rec.Logo == "" {
		rec.Logo = store.LogoFor(rec.Type)
	}

	if err := r.store.SaveModel(ctx, rec); err != nil {
		r.log.Error("Failed to persist model", logger.ErrorFields("save_model", err))
		return "", apperrors.From(err)
	}

	r.mu.Lock()
	r.models[rec.ID] = &entry{rec: rec, adapter: adapter, state: StateRegistered}
	r.mu.Unlock()

	r.log.Info("Model registered", logger.Fields(
		logger.FieldModelID, rec.ID, logger.FieldFramework, rec.Framework, logger.FieldState, StateRegistered.String(),
	))
	return rec.ID, nil
}

// checkFields enforces the framework-specific required fields.
func checkFields(kind transcription.Kind, reg Registration) error {
	v := validation.New().Required("name", reg.Name)
	switch kind {
	case transcription.KindLocal:
		v.Required("path", reg.Path).Required("device", reg.Device)
	case transcription.KindCloud:
		v.Required("api_key", reg.APIKey).ExactlyOne("endpoint", reg.Endpoint, "region", reg.Region)
	}
	if err := v.Validate(); err != nil {
		appErr := apperrors.ConfigInvalid("", err.Error())
		appErr.Details = map[string]any{"fields": v.Errors()}
		return appErr
	}
	return nil
}

// modelConfig builds the adapter view of a record. The key is decrypted
// only when the adapter asks for it.
func (r *Registry) modelConfig(rec store.Model) transcription.ModelConfig {
	cfg := transcription.ModelConfig{
		ID:        rec.ID,
		Name:      rec.Name,
		Framework: transcription.Framework(rec.Framework),
		Device:    rec.Device,
		Language:  rec.Language,
		Path:      rec.Path,
		Endpoint:  rec.Endpoint,
		Region:    rec.Region,
	}
	if rec.APIKey != "" {
		ciphertext := rec.APIKey
		cfg.APIKey = func() (string, error) { return r.codec.Decrypt(ciphertext) }
	}
	return cfg
}

// Load opens and probes a model. Unknown ids fail with NOT_FOUND. A model
// already Ready is returned as is. Concurrent loads of the same model share
// one open and probe. Backend and probe failures leave the model in
// LoadFailed and are reported in the returned Status, not as an error.
func (r *Registry) Load(ctx context.Context, id string) (Status, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Status{}, err
	}

	// The load outlives the caller that triggered it; joined callers and
	// the entry must never observe a half-finished transition.
	loadCtx := context.WithoutCancel(ctx)
	_, err, _ = r.loads.Do(id, func() (any, error) {
		return nil, r.load(loadCtx, e)
	})
	if err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// snapshot returns the state and instance without waiting on transitions.
func (e *entry) snapshot() (State, transcription.Instance, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.instance, e.deleted
}

func (r *Registry) load(ctx context.Context, e *entry) error {
	// Ready models return at once, even while an unload of the same model
	// is draining inferences.
	if state, _, deleted := e.snapshot(); deleted {
		return apperrors.NotFound("model", e.rec.ID)
	} else if state == StateReady {
		return nil
	}

	e.op.Lock()
	defer e.op.Unlock()

	e.mu.Lock()
	if e.deleted {
		e.mu.Unlock()
		return apperrors.NotFound("model", e.rec.ID)
	}
	if e.state == StateReady {
		e.mu.Unlock()
		return nil
	}
	e.state = StateLoading
	e.lastErr = ""
	e.mu.Unlock()

	id, fw := e.rec.ID, e.rec.Framework
	log := r.log.WithModel(id)
	log.Info("Loading model", logger.Fields(logger.FieldFramework, fw, logger.FieldState, StateLoading.String()))

	storeCtx := ctx
	ctx, cancel := context.WithTimeout(ctx, r.cfg.LoadTimeout)
	defer cancel()
	ctx, span := observability.StartSpan(ctx, observability.SpanRegistryLoad,
		attribute.String(observability.AttrModelID, id),
		attribute.String(observability.AttrFramework, fw),
	)

	start := r.now()
	latency, inst, err := r.openAndProbe(ctx, e)
	if err != nil {
		e.mu.Lock()
		e.state = StateLoadFailed
		e.instance = nil
		e.latency = nil
		e.lastErr = transcription.ToAppError(transcription.Framework(fw), err).Message
		e.mu.Unlock()

		observability.EndSpan(span, err)
		r.metrics.RecordLoad(ctx, "failed")
		log.Error("Model load failed", logger.Fields(
			logger.FieldState, StateLoadFailed.String(), logger.FieldError, err.Error(),
		))
		r.persist(log, "update_loaded", func() error {
			return r.store.UpdateLoadedStatus(storeCtx, id, false, nil)
		})
		return nil
	}

	e.mu.Lock()
	e.state = StateReady
	e.instance = inst
	e.latency = &latency
	e.mu.Unlock()

	span.SetAttributes(attribute.Float64(observability.AttrLatencyMs, latency))
	observability.EndSpan(span, nil)
	r.metrics.RecordLoad(ctx, "ready")
	r.metrics.RecordProbeLatency(ctx, fw, latency)
	log.Info("Model ready", logger.Fields(
		logger.FieldState, StateReady.String(), "latency_ms", latency,
		logger.FieldDuration, r.now().Sub(start).Milliseconds(),
	))

	r.persist(log, "update_loaded", func() error {
		return r.store.UpdateLoadedStatus(storeCtx, id, true, &latency)
	})
	r.persist(log, "update_status", func() error {
		return r.store.UpdateStatus(storeCtx, id, store.StatusActive)
	})
	return nil
}

func (r *Registry) openAndProbe(ctx context.Context, e *entry) (float64, transcription.Instance, error) {
	if e.adapter == nil {
		return 0, nil, apperrors.ConfigInvalid("framework", "no adapter for framework "+e.rec.Framework)
	}
	inst, err := e.adapter.Open(ctx, r.modelConfig(e.rec))
	if err != nil {
		return 0, nil, err
	}
	latency, err := r.prober.Run(ctx, inst, e.rec.Language)
	if err != nil {
		if closeErr := inst.Close(ctx); closeErr != nil {
			r.log.WithModel(e.rec.ID).Warn("Failed to release instance after probe failure", logger.ErrorFields("close", closeErr))
		}
		return 0, nil, err
	}
	return latency, inst, nil
}

// persist runs a best-effort store write. Failures are logged; in-memory
// state stays authoritative.
func (r *Registry) persist(log *logger.Logger, op string, fn func() error) {
	if err := fn(); err != nil {
		log.Warn("Store update failed, keeping in-memory state", logger.ErrorFields(op, err))
	}
}

// Unload releases a Ready model. It reports false without error when the
// model is not Ready. It waits for in-flight inferences to finish first.
func (r *Registry) Unload(ctx context.Context, id string) (bool, error) {
	e, err := r.lookup(id)
	if err != nil {
		return false, err
	}
	e.op.Lock()
	defer e.op.Unlock()
	return r.unloadLocked(ctx, e, true), nil
}

// unloadLocked requires e.op. persistState is false on shutdown so the
// loaded flag survives for the next restore.
func (r *Registry) unloadLocked(ctx context.Context, e *entry, persistState bool) bool {
	ctx, span := observability.StartSpan(ctx, observability.SpanRegistryUnload,
		attribute.String(observability.AttrModelID, e.rec.ID),
	)
	log := r.log.WithModel(e.rec.ID)

	if state, _, _ := e.snapshot(); state != StateReady {
		span.SetAttributes(attribute.String(observability.AttrState, state.String()))
		observability.EndSpan(span, nil)
		log.Info("Unload skipped, model not ready", logger.Fields(logger.FieldState, state.String()))
		return false
	}

	// use.Lock waits for every running inference; none can start after the
	// state change. Status reads only take mu and stay available meanwhile.
	e.use.Lock()
	e.mu.Lock()
	inst := e.instance
	e.instance = nil
	e.latency = nil
	e.state = StateUnloaded
	e.mu.Unlock()
	e.use.Unlock()

	err := inst.Close(ctx)
	observability.EndSpan(span, err)
	if err != nil {
		log.Warn("Instance close failed", logger.ErrorFields("close", err))
	}
	log.Info("Model unloaded", logger.Fields(logger.FieldState, StateUnloaded.String()))

	if persistState {
		id := e.rec.ID
		r.persist(log, "update_loaded", func() error {
			return r.store.UpdateLoadedStatus(ctx, id, false, nil)
		})
		r.persist(log, "update_status", func() error {
			return r.store.UpdateStatus(ctx, id, store.StatusIdle)
		})
	}
	return true
}

// Delete unloads a Ready model, then removes it from memory and the store.
func (r *Registry) Delete(ctx context.Context, id string) error {
	e, err := r.lookup(id)
	if err != nil {
		return err
	}
	e.op.Lock()
	defer e.op.Unlock()

	r.unloadLocked(ctx, e, false)

	e.mu.Lock()
	e.deleted = true
	e.mu.Unlock()

	r.mu.Lock()
	delete(r.models, id)
	r.mu.Unlock()

	log := r.log.WithModel(id)
	r.persist(log, "delete_model", func() error {
		return r.store.DeleteModel(ctx, id)
	})
	log.Info("Model deleted")
	return nil
}

// GetStatus returns every model in registration order.
func (r *Registry) GetStatus() []Status {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.models))
	for _, e := range r.models {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Get returns one model's status.
func (r *Registry) Get(id string) (Status, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Status{}, err
	}
	return e.status(), nil
}

// Bind checks that a session may use the model. Local models must be
// Ready. Cloud models need credentials that decrypt; the plaintext is
// discarded before Bind returns.
func (r *Registry) Bind(id string) (Binding, error) {
	e, err := r.lookup(id)
	if err != nil {
		return Binding{}, err
	}
	if e.adapter == nil {
		return Binding{}, apperrors.ConfigInvalid("framework", "no adapter for framework "+e.rec.Framework)
	}

	b := Binding{
		ModelID:   id,
		Name:      e.rec.Name,
		Framework: transcription.Framework(e.rec.Framework),
		Kind:      e.adapter.Kind(),
		Language:  e.rec.Language,
	}

	switch b.Kind {
	case transcription.KindCloud:
		if _, err := r.credentials(e.rec); err != nil {
			return Binding{}, err
		}
	default:
		if state, _, _ := e.snapshot(); state != StateReady {
			return Binding{}, apperrors.NotReady(id, state.String())
		}
	}
	return b, nil
}

func (r *Registry) credentials(rec store.Model) (transcription.Credentials, error) {
	if rec.APIKey == "" {
		return transcription.Credentials{}, apperrors.CredentialDecrypt(nil).WithDetail("id", rec.ID)
	}
	key, err := r.codec.Decrypt(rec.APIKey)
	if err != nil {
		return transcription.Credentials{}, apperrors.From(err)
	}
	return transcription.Credentials{Endpoint: rec.Endpoint, Region: rec.Region, APIKey: key}, nil
}

// Infer runs one inference on a Ready model. The model cannot be unloaded
// until it returns. Adapter errors are returned unchanged.
func (r *Registry) Infer(ctx context.Context, id string, samples []float32, language string) ([]string, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}

	e.use.RLock()
	defer e.use.RUnlock()
	state, inst, _ := e.snapshot()
	if state != StateReady || inst == nil {
		return nil, apperrors.NotReady(id, state.String())
	}
	if language == "" {
		language = e.rec.Language
	}
	return inst.Infer(ctx, samples, language)
}

// StartRecognition opens a remote recognition for a cloud model. The
// decrypted key lives only for the duration of this call.
func (r *Registry) StartRecognition(ctx context.Context, id, language string, sink transcription.EventSink) (transcription.Recognition, error) {
	e, err := r.lookup(id)
	if err != nil {
		return nil, err
	}
	streaming, ok := e.adapter.(transcription.StreamingAdapter)
	if !ok {
		return nil, apperrors.ConfigInvalid("framework", "framework "+e.rec.Framework+" does not stream")
	}
	creds, err := r.credentials(e.rec)
	if err != nil {
		return nil, err
	}
	if language == "" {
		language = e.rec.Language
	}
	return streaming.StartRecognition(ctx, r.modelConfig(e.rec), creds, language, sink)
}
