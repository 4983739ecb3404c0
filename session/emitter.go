package session

import (
	"context"
	"sync"

	apperrors "github.com/kbukum/speechgate/errors"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/observability"
)

// Event kinds delivered to clients.
const (
	KindReady         = "ready"
	KindPartialText   = "partial_text"
	KindFinalText     = "final_text"
	KindError         = "error"
	KindTerminalError = "terminal_error"
)

// Event is one outbound notice to a client.
type Event struct {
	Kind    string `json:"kind"`
	Text    string `json:"text,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
	ModelID string `json:"model_id,omitempty"`
}

func errorEvent(kind string, err error) Event {
	appErr := apperrors.From(err)
	return Event{Kind: kind, Code: string(appErr.Code), Message: appErr.Message}
}

// Transport is the outbound side of one client connection.
type Transport interface {
	Send(ev Event) error
	Close() error
}

// Emitter delivers events to one transport. Sends are serialized and
// never fail: once the transport is closed, or after a send error,
// emission is a silent no-op.
type Emitter struct {
	transport Transport
	metrics   *observability.GatewayMetrics
	log       *logger.Logger

	mu     sync.Mutex
	closed bool
}

// NewEmitter wraps a transport.
func NewEmitter(t Transport, metrics *observability.GatewayMetrics, log *logger.Logger) *Emitter {
	return &Emitter{transport: t, metrics: metrics, log: log}
}

// Emit sends ev. It reports whether the event was handed to the transport.
func (e *Emitter) Emit(ev Event) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return false
	}
	if err := e.transport.Send(ev); err != nil {
		e.closed = true
		e.log.Debug("Transport send failed, dropping further events", logger.ErrorFields("send", err))
		return false
	}
	e.metrics.RecordEvent(context.Background(), ev.Kind)
	return true
}

// Close stops emission and closes the transport. It is idempotent.
func (e *Emitter) Close() {
	e.mu.Lock()
	already := e.closed
	e.closed = true
	e.mu.Unlock()
	if err := e.transport.Close(); err != nil && !already {
		e.log.Debug("Transport close failed", logger.ErrorFields("close", err))
	}
}
