package session

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/model"
	"github.com/kbukum/speechgate/observability"
	"github.com/kbukum/speechgate/store"
	"github.com/kbukum/speechgate/transcription"
)

// State is a session's position in its lifecycle.
type State int

const (
	StateConnected State = iota + 1
	StateBound
	StateStreaming
	StateClosed
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateConnected:
		return "Connected"
	case StateBound:
		return "Bound"
	case StateStreaming:
		return "Streaming"
	case StateClosed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Models is the part of the model registry sessions use.
type Models interface {
	Bind(id string) (model.Binding, error)
	Infer(ctx context.Context, id string, samples []float32, language string) ([]string, error)
	StartRecognition(ctx context.Context, id, language string, sink transcription.EventSink) (transcription.Recognition, error)
}

// Archive stores final transcripts.
type Archive interface {
	AppendTranscript(ctx context.Context, t store.Transcript) error
}

// session is the server-side state of one connection.
type session struct {
	id      string
	emitter *Emitter
	log     *logger.Logger

	mu          sync.Mutex
	state       State
	binding     model.Binding
	language    string
	recognition transcription.Recognition
	events      chan transcription.RecognitionEvent
	drained     chan struct{}
	// terminated is set by whichever path reports the terminal error.
	terminated bool
}

func (s *session) snapshot() (State, model.Binding, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state, s.binding, s.language
}

// claimTerminal reports whether the caller may emit the session's terminal
// error. It returns true at most once, and never after the session closed.
func (s *session) claimTerminal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.terminated || s.state == StateClosed {
		return false
	}
	s.terminated = true
	return true
}

func (s *session) closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == StateClosed
}

// Router owns every live session. The transport calls OnConnect,
// OnMessage and OnDisconnect; results flow back through each session's
// Emitter.
//
// A session never holds its own lock while calling into the registry.
type Router struct {
	cfg     Config
	models  Models
	archive Archive
	metrics *observability.GatewayMetrics
	log     *logger.Logger

	mu       sync.Mutex
	sessions map[string]*session
	closing  bool
}

// NewRouter creates a router. archive may be nil.
func NewRouter(cfg Config, models Models, archive Archive, log *logger.Logger) *Router {
	cfg.ApplyDefaults()
	return &Router{
		cfg:      cfg,
		models:   models,
		archive:  archive,
		log:      log.WithComponent("session"),
		sessions: make(map[string]*session),
	}
}

// WithMetrics attaches gateway instruments.
func (r *Router) WithMetrics(m *observability.GatewayMetrics) *Router {
	r.metrics = m
	return r
}

// OnConnect registers a new connection in state Connected.
func (r *Router) OnConnect(ctx context.Context, id string, t Transport) error {
	log := r.log.WithSession(id)
	s := &session{id: id, emitter: NewEmitter(t, r.metrics, log), log: log, state: StateConnected}

	r.mu.Lock()
	if r.closing {
		r.mu.Unlock()
		return apperrors.Conflict("server is shutting down")
	}
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return apperrors.Conflict("session " + id + " already exists")
	}
	r.sessions[id] = s
	r.mu.Unlock()

	r.metrics.SessionOpened(ctx)
	log.Info("Session connected", logger.Fields(logger.FieldState, StateConnected.String()))
	return nil
}

// OnDisconnect closes the session and releases anything it owns.
func (r *Router) OnDisconnect(ctx context.Context, id string) {
	if s := r.get(id); s != nil {
		r.closeSession(ctx, s, "disconnect")
	}
}

// Count returns the number of live sessions.
func (r *Router) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}

// State returns a session's state, or StateClosed for unknown ids.
func (r *Router) State(id string) State {
	s := r.get(id)
	if s == nil {
		return StateClosed
	}
	state, _, _ := s.snapshot()
	return state
}

func (r *Router) get(id string) *session {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sessions[id]
}

// OnMessage handles one inbound message. Errors are reported to the
// client as events; the returned error is only for unknown sessions.
func (r *Router) OnMessage(ctx context.Context, id string, msg Message) error {
	s := r.get(id)
	if s == nil {
		return apperrors.NotFound("session", id)
	}

	switch msg.Type {
	case MsgStartTranscribe:
		r.handleStart(ctx, s, msg)
	case MsgAudioChunk:
		r.handleAudio(ctx, s, msg)
	case MsgStopTranscribe:
		r.closeSession(ctx, s, "stop")
	default:
		s.emitter.Emit(errorEvent(KindError, apperrors.InvalidInput("type", fmt.Sprintf("unknown message type %q", msg.Type))))
	}
	return nil
}

func (r *Router) handleStart(ctx context.Context, s *session, msg Message) {
	state, _, _ := s.snapshot()
	switch state {
	case StateClosed:
		return
	case StateBound, StateStreaming:
		s.emitter.Emit(errorEvent(KindError, apperrors.Conflict("session is already bound to a model")))
		return
	}

	modelID := strings.TrimSpace(msg.ModelID)
	if modelID == "" {
		s.emitter.Emit(errorEvent(KindError, apperrors.MissingField("model_id")))
		return
	}

	binding, err := r.models.Bind(modelID)
	if err != nil {
		s.log.Info("Bind rejected", logger.Fields(logger.FieldModelID, modelID, logger.FieldError, err.Error()))
		s.emitter.Emit(errorEvent(KindError, err))
		return
	}
	language := msg.Language
	if language == "" {
		language = binding.Language
	}

	if binding.Kind == transcription.KindCloud {
		r.startCloud(ctx, s, binding, language)
		return
	}

	s.mu.Lock()
	if s.state != StateConnected {
		s.mu.Unlock()
		return
	}
	s.state = StateBound
	s.binding = binding
	s.language = language
	s.mu.Unlock()

	s.log.Info("Session bound", logger.Fields(logger.FieldModelID, modelID, logger.FieldState, StateBound.String()))
	s.emitter.Emit(Event{Kind: KindReady, ModelID: modelID})
}

// startCloud opens the remote recognition. Its callbacks are queued on the
// session's event channel and emitted in order by one drain goroutine.
func (r *Router) startCloud(ctx context.Context, s *session, binding model.Binding, language string) {
	events := make(chan transcription.RecognitionEvent, r.cfg.EventBuffer)
	abandon := make(chan struct{})
	sink := func(ev transcription.RecognitionEvent) {
		select {
		case events <- ev:
		case <-abandon:
		}
	}

	rec, err := r.models.StartRecognition(ctx, binding.ModelID, language, sink)
	if err != nil {
		s.log.Warn("Recognition start failed", logger.Fields(logger.FieldModelID, binding.ModelID, logger.FieldError, err.Error()))
		s.emitter.Emit(errorEvent(KindError, transcription.ToAppError(binding.Framework, err)))
		return
	}

	drained := make(chan struct{})
	s.mu.Lock()
	if s.state != StateConnected {
		// Closed while the recognition was starting.
		s.mu.Unlock()
		close(abandon)
		r.stopRecognition(ctx, s, rec)
		return
	}
	s.state = StateStreaming
	s.binding = binding
	s.language = language
	s.recognition = rec
	s.events = events
	s.drained = drained
	s.mu.Unlock()

	s.log.Info("Recognition started", logger.Fields(logger.FieldModelID, binding.ModelID, logger.FieldState, StateStreaming.String()))
	s.emitter.Emit(Event{Kind: KindReady, ModelID: binding.ModelID})
	go r.drain(s, events, drained)
}

func (r *Router) drain(s *session, events <-chan transcription.RecognitionEvent, drained chan<- struct{}) {
	defer close(drained)
	for ev := range events {
		switch ev.Kind {
		case transcription.EventPartial:
			s.emitter.Emit(Event{Kind: KindPartialText, Text: ev.Text})
		case transcription.EventFinal:
			r.emitFinal(s, ev.Text)
		case transcription.EventStopped:
			if ev.Err == nil || !s.claimTerminal() {
				continue
			}
			_, binding, _ := s.snapshot()
			s.log.Warn("Recognition terminated by backend", logger.ErrorFields("recognize", ev.Err))
			s.emitter.Emit(errorEvent(KindTerminalError, transcription.ToAppError(binding.Framework, ev.Err)))
			// closeSession waits for this goroutine, so it runs apart.
			go r.closeSession(context.Background(), s, "terminated")
		}
	}
}

func (r *Router) handleAudio(ctx context.Context, s *session, msg Message) {
	s.mu.Lock()
	state, binding, language, rec := s.state, s.binding, s.language, s.recognition
	if state == StateBound {
		s.state = StateStreaming
	}
	s.mu.Unlock()

	switch state {
	case StateClosed:
		return
	case StateConnected:
		s.emitter.Emit(errorEvent(KindError, apperrors.Conflict("send start_transcribe before audio")))
		return
	}

	samples, err := msg.samples()
	if err != nil {
		r.metrics.RecordFrame(ctx, "invalid")
		s.emitter.Emit(errorEvent(KindError, err))
		return
	}

	if rec != nil {
		if err := rec.Write(samples); err != nil {
			r.frameFailed(ctx, s, binding, err)
			return
		}
		r.metrics.RecordFrame(ctx, "ok")
		return
	}

	inferCtx, cancel := context.WithTimeout(ctx, r.cfg.FrameTimeout)
	texts, err := r.models.Infer(inferCtx, binding.ModelID, samples, language)
	cancel()

	// The inference cannot be interrupted; a result for a session that
	// closed meanwhile is dropped.
	if s.closed() {
		return
	}
	if err != nil {
		r.frameFailed(ctx, s, binding, err)
		return
	}
	r.metrics.RecordFrame(ctx, "ok")
	if len(texts) > 0 {
		r.emitFinal(s, texts[0])
	}
}

func (r *Router) frameFailed(ctx context.Context, s *session, binding model.Binding, err error) {
	if transcription.IsFatal(err) {
		r.metrics.RecordFrame(ctx, "fatal")
		s.log.Warn("Fatal provider error, closing session", logger.ErrorFields("frame", err))
		if s.claimTerminal() {
			s.emitter.Emit(errorEvent(KindTerminalError, transcription.ToAppError(binding.Framework, err)))
		}
		r.closeSession(ctx, s, "fatal")
		return
	}
	r.metrics.RecordFrame(ctx, "failed")
	s.log.Debug("Frame failed", logger.ErrorFields("frame", err))
	s.emitter.Emit(errorEvent(KindError, transcription.ToAppError(binding.Framework, err)))
}

func (r *Router) emitFinal(s *session, text string) {
	s.emitter.Emit(Event{Kind: KindFinalText, Text: text})
	if r.archive == nil || strings.TrimSpace(text) == "" {
		return
	}
	_, binding, language := s.snapshot()
	ctx, cancel := context.WithTimeout(context.Background(), r.cfg.ArchiveTimeout)
	defer cancel()
	err := r.archive.AppendTranscript(ctx, store.Transcript{Model: binding.Name, Text: text, Language: language})
	if err != nil {
		s.log.Warn("Transcript archive failed", logger.ErrorFields("append_transcript", err))
	}
}

// closeSession moves s to Closed exactly once. A cloud recognition is
// stopped and waited for up to StopTimeout, then released regardless.
func (r *Router) closeSession(ctx context.Context, s *session, reason string) {
	r.mu.Lock()
	if r.sessions[s.id] == s {
		delete(r.sessions, s.id)
	}
	r.mu.Unlock()

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	prev := s.state
	s.state = StateClosed
	rec, events, drained := s.recognition, s.events, s.drained
	s.recognition = nil
	s.mu.Unlock()

	if rec != nil {
		r.stopRecognition(ctx, s, rec)
		// Stop returned, so the recognizer makes no further callbacks.
		close(events)
		<-drained
	}
	s.emitter.Close()

	r.metrics.SessionClosed(ctx)
	s.log.Info("Session closed", logger.Fields(
		"reason", reason, "previous_state", prev.String(), logger.FieldState, StateClosed.String(),
	))
}

func (r *Router) stopRecognition(ctx context.Context, s *session, rec transcription.Recognition) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.StopTimeout)
	defer cancel()
	start := time.Now()
	if err := rec.Stop(stopCtx); err != nil {
		s.log.Warn("Recognizer did not confirm stop, released", logger.Fields(
			logger.FieldError, err.Error(), logger.FieldDuration, time.Since(start).Milliseconds(),
		))
	}
}
