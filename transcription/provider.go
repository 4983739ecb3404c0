package transcription

import (
	"context"

	"github.com/kbukum/speechgate/provider"
)

// Adapter opens model instances for one framework.
type Adapter interface {
	provider.Provider

	Kind() Kind
	// Open validates cfg and returns a loaded instance. Errors wrap
	// ErrConfigInvalid or ErrBackendUnavailable.
	Open(ctx context.Context, cfg ModelConfig) (Instance, error)
}

// Instance is a loaded model. Local instances are shared by every session
// bound to the model, so Infer must be safe for concurrent use.
type Instance interface {
	// Infer transcribes samples and returns the alternatives, best first.
	// Errors wrap ErrTransientInference or ErrBackendUnavailable.
	Infer(ctx context.Context, samples []float32, language string) ([]string, error)
	// Close releases backend resources. It is called exactly once.
	Close(ctx context.Context) error
}

// EventSink receives recognition callbacks. It is invoked from the
// recognizer's own goroutine and must not block for long.
type EventSink func(RecognitionEvent)

// StreamingAdapter is implemented by cloud adapters that hold one remote
// recognition session per client session.
type StreamingAdapter interface {
	Adapter

	StartRecognition(ctx context.Context, cfg ModelConfig, creds Credentials, language string, sink EventSink) (Recognition, error)
}

// Recognition is an open remote recognition session owned by exactly one
// client session.
type Recognition interface {
	// Write pushes audio. It fails with ErrSessionTerminated once the remote
	// side has gone away.
	Write(samples []float32) error
	// Stop asks the remote side to finish and waits for confirmation until
	// ctx is done. Resources are released either way. Stop is idempotent
	// and may be called from any goroutine.
	Stop(ctx context.Context) error
}
