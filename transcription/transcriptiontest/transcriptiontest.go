// Package transcriptiontest provides in-memory adapters for tests.
package transcriptiontest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/kbukum/speechgate/transcription"
)

// Local is a fake local-inference adapter.
type Local struct {
	Framework string

	// Gate, when non-nil, blocks Open until it is closed or receives.
	Gate chan struct{}
	// OpenErr is returned by Open.
	OpenErr error
	// InferErr, when set, decides the error for each Infer call.
	InferErr func(call int64) error
	// InferGate, when non-nil, blocks every Infer until it is closed.
	InferGate chan struct{}
	// Texts is returned by Infer. Defaults to {"hello"}.
	Texts []string

	opens    atomic.Int64
	closes   atomic.Int64
	calls    atomic.Int64
	inFlight atomic.Int64
	// violations counts Close calls that ran while an Infer was in flight.
	violations atomic.Int64
}

var _ transcription.Adapter = (*Local)(nil)

func (l *Local) Name() string {
	if l.Framework == "" {
		return "fakelocal"
	}
	return l.Framework
}

func (l *Local) IsAvailable(context.Context) bool { return true }
func (l *Local) Kind() transcription.Kind         { return transcription.KindLocal }

func (l *Local) Open(ctx context.Context, cfg transcription.ModelConfig) (transcription.Instance, error) {
	l.opens.Add(1)
	if l.Gate != nil {
		select {
		case <-l.Gate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", transcription.ErrBackendUnavailable, ctx.Err())
		}
	}
	if l.OpenErr != nil {
		return nil, l.OpenErr
	}
	return &localInstance{adapter: l}, nil
}

// Opens returns how many times Open ran.
func (l *Local) Opens() int64 { return l.opens.Load() }

// Closes returns how many instances were closed.
func (l *Local) Closes() int64 { return l.closes.Load() }

// Calls returns how many Infer calls ran, probes included.
func (l *Local) Calls() int64 { return l.calls.Load() }

// InFlight returns the number of running Infer calls.
func (l *Local) InFlight() int64 { return l.inFlight.Load() }

// Violations returns how many times an instance was closed mid-inference.
func (l *Local) Violations() int64 { return l.violations.Load() }

type localInstance struct {
	adapter *Local
	closed  atomic.Bool
}

func (i *localInstance) Infer(ctx context.Context, samples []float32, language string) ([]string, error) {
	l := i.adapter
	call := l.calls.Add(1)
	l.inFlight.Add(1)
	defer l.inFlight.Add(-1)

	if i.closed.Load() {
		return nil, fmt.Errorf("%w: instance closed", transcription.ErrBackendUnavailable)
	}
	if l.InferGate != nil {
		select {
		case <-l.InferGate:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", transcription.ErrTransientInference, ctx.Err())
		}
	}
	if l.InferErr != nil {
		if err := l.InferErr(call); err != nil {
			return nil, err
		}
	}
	if len(l.Texts) == 0 {
		return []string{"hello"}, nil
	}
	return append([]string(nil), l.Texts...), nil
}

func (i *localInstance) Close(context.Context) error {
	if i.adapter.inFlight.Load() > 0 {
		i.adapter.violations.Add(1)
	}
	i.closed.Store(true)
	i.adapter.closes.Add(1)
	return nil
}

// Cloud is a fake streaming adapter. Every written frame produces a
// partial event; Stop produces one final event with the accumulated
// frame count, then the stopped event.
type Cloud struct {
	Framework string
	// StartErr is returned by StartRecognition.
	StartErr error

	mu      sync.Mutex
	active  int
	started int
	creds   []transcription.Credentials
	last    *Recognition
}

var _ transcription.StreamingAdapter = (*Cloud)(nil)

func (c *Cloud) Name() string {
	if c.Framework == "" {
		return "fakecloud"
	}
	return c.Framework
}

func (c *Cloud) IsAvailable(context.Context) bool { return true }
func (c *Cloud) Kind() transcription.Kind         { return transcription.KindCloud }

func (c *Cloud) Open(_ context.Context, cfg transcription.ModelConfig) (transcription.Instance, error) {
	if cfg.APIKey == nil {
		return nil, fmt.Errorf("%w: api key required", transcription.ErrConfigInvalid)
	}
	return &cloudInstance{apiKey: cfg.APIKey}, nil
}

func (c *Cloud) StartRecognition(_ context.Context, _ transcription.ModelConfig, creds transcription.Credentials, _ string, sink transcription.EventSink) (transcription.Recognition, error) {
	if c.StartErr != nil {
		return nil, c.StartErr
	}
	rec := &Recognition{
		owner:  c,
		sink:   sink,
		frames: make(chan int, 16),
		stop:   make(chan struct{}),
		kill:   make(chan error, 1),
		done:   make(chan struct{}),
	}
	c.mu.Lock()
	c.active++
	c.started++
	c.creds = append(c.creds, creds)
	c.last = rec
	c.mu.Unlock()
	go rec.loop()
	return rec, nil
}

// Active returns the number of recognitions not yet released.
func (c *Cloud) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Started returns how many recognitions were started.
func (c *Cloud) Started() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started
}

// Credentials returns the credentials passed to every StartRecognition.
func (c *Cloud) Credentials() []transcription.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]transcription.Credentials(nil), c.creds...)
}

// Last returns the most recent recognition.
func (c *Cloud) Last() *Recognition {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.last
}

type cloudInstance struct {
	apiKey transcription.SecretFunc
}

func (i *cloudInstance) Infer(context.Context, []float32, string) ([]string, error) {
	if _, err := i.apiKey(); err != nil {
		return nil, err
	}
	return []string{""}, nil
}

func (i *cloudInstance) Close(context.Context) error { return nil }

// Recognition is the fake remote session.
type Recognition struct {
	owner  *Cloud
	sink   transcription.EventSink
	frames chan int
	stop   chan struct{}
	kill   chan error
	done   chan struct{}

	stopOnce sync.Once
	ended    atomic.Bool
	// Hang makes Stop never confirm, forcing the caller's timeout.
	Hang atomic.Bool
}

func (r *Recognition) loop() {
	defer func() {
		r.ended.Store(true)
		r.owner.mu.Lock()
		r.owner.active--
		r.owner.mu.Unlock()
		close(r.done)
	}()
	count := 0
	for {
		select {
		case n := <-r.frames:
			count += n
			r.sink(transcription.RecognitionEvent{Kind: transcription.EventPartial, Text: fmt.Sprintf("partial %d", count)})
		case err := <-r.kill:
			r.sink(transcription.RecognitionEvent{Kind: transcription.EventStopped, Err: err})
			return
		case <-r.stop:
			if r.Hang.Load() {
				err := <-r.kill
				r.sink(transcription.RecognitionEvent{Kind: transcription.EventStopped, Err: err})
				return
			}
			r.sink(transcription.RecognitionEvent{Kind: transcription.EventFinal, Text: fmt.Sprintf("final %d", count)})
			r.sink(transcription.RecognitionEvent{Kind: transcription.EventStopped})
			return
		}
	}
}

func (r *Recognition) Write(samples []float32) error {
	if r.ended.Load() {
		return fmt.Errorf("%w: remote closed", transcription.ErrSessionTerminated)
	}
	select {
	case r.frames <- len(samples):
		return nil
	case <-r.done:
		return fmt.Errorf("%w: remote closed", transcription.ErrSessionTerminated)
	}
}

func (r *Recognition) Stop(ctx context.Context) error {
	r.stopOnce.Do(func() { close(r.stop) })
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		// Force release.
		select {
		case r.kill <- ctx.Err():
		default:
		}
		<-r.done
		return fmt.Errorf("stop recognition: %w", ctx.Err())
	}
}

// Terminate simulates the remote side closing the session with err.
func (r *Recognition) Terminate(err error) {
	select {
	case r.kill <- err:
	default:
	}
}

// Ended reports whether the recognition has been released.
func (r *Recognition) Ended() bool { return r.ended.Load() }
