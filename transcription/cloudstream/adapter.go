package cloudstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/resilience"
	"github.com/kbukum/speechgate/transcription"
)

// Adapter implements transcription.StreamingAdapter for a websocket cloud
// speech service.
type Adapter struct {
	cfg     Config
	dialer  *websocket.Dialer
	breaker *resilience.CircuitBreaker
	active  atomic.Int64
	log     *logger.Logger
	tlsErr  error
}

var _ transcription.StreamingAdapter = (*Adapter)(nil)

// New creates a cloud adapter.
func New(cfg Config) *Adapter {
	cfg.ApplyDefaults()
	log := logger.WithComponent("cloudstream").WithFields(logger.Fields(logger.FieldFramework, cfg.Framework))

	breakerCfg := cfg.Breaker
	breakerCfg.Trips = func(err error) bool {
		return errors.Is(err, transcription.ErrBackendUnavailable)
	}
	breakerCfg.OnStateChange = func(name string, from, to resilience.State) {
		log.Warn("cloud circuit state changed", logger.Fields("breaker", name, "from", from.String(), "to", to.String()))
	}

	a := &Adapter{
		cfg:     cfg,
		dialer:  &websocket.Dialer{HandshakeTimeout: cfg.DialTimeout, Proxy: http.ProxyFromEnvironment},
		breaker: resilience.NewCircuitBreaker(breakerCfg),
		log:     log,
	}
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		a.tlsErr = err
		log.Error("cloud TLS settings unusable", logger.ErrorFields("tls", err))
	}
	a.dialer.TLSClientConfig = tlsCfg
	return a
}

// Name returns the framework tag.
func (a *Adapter) Name() string { return a.cfg.Framework }

// Kind reports a cloud backend.
func (a *Adapter) Kind() transcription.Kind { return transcription.KindCloud }

// IsAvailable is false while the dial circuit is open.
func (a *Adapter) IsAvailable(context.Context) bool {
	return a.breaker.State() != resilience.StateOpen
}

// Active returns the number of open recognitions.
func (a *Adapter) Active() int { return int(a.active.Load()) }

func validate(cfg transcription.ModelConfig) error {
	hasEndpoint := strings.TrimSpace(cfg.Endpoint) != ""
	hasRegion := strings.TrimSpace(cfg.Region) != ""
	if hasEndpoint == hasRegion {
		return fmt.Errorf("%w: exactly one of endpoint or region is required", transcription.ErrConfigInvalid)
	}
	if cfg.APIKey == nil {
		return fmt.Errorf("%w: api key is required", transcription.ErrConfigInvalid)
	}
	return nil
}

// Open checks the model's credentials shape. Cloud models hold no remote
// resources while loaded; recognitions are opened per session.
func (a *Adapter) Open(_ context.Context, cfg transcription.ModelConfig) (transcription.Instance, error) {
	if a.tlsErr != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrConfigInvalid, a.tlsErr)
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return &instance{adapter: a, cfg: cfg}, nil
}

// StartRecognition dials the service and starts streaming. Events are
// delivered to sink from the connection's reader goroutine, ending with
// exactly one EventStopped.
func (a *Adapter) StartRecognition(ctx context.Context, cfg transcription.ModelConfig, creds transcription.Credentials, language string, sink transcription.EventSink) (transcription.Recognition, error) {
	if a.tlsErr != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrConfigInvalid, a.tlsErr)
	}
	if creds.APIKey == "" {
		return nil, fmt.Errorf("%w: api key is empty", transcription.ErrConfigInvalid)
	}
	target, err := recognitionURL(creds, language)
	if err != nil {
		return nil, err
	}

	header := http.Header{}
	header.Set(keyHeader, creds.APIKey)
	header.Set(connectionIDHdr, strings.ReplaceAll(uuid.NewString(), "-", ""))

	var conn *websocket.Conn
	err = a.breaker.Execute(func() error {
		dialCtx, cancel := context.WithTimeout(ctx, a.cfg.DialTimeout)
		defer cancel()
		c, resp, derr := a.dialer.DialContext(dialCtx, target, header)
		if derr != nil {
			if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
				return fmt.Errorf("%w: service rejected credentials (status %d)", transcription.ErrConfigInvalid, resp.StatusCode)
			}
			return fmt.Errorf("%w: dial: %v", transcription.ErrBackendUnavailable, derr)
		}
		conn = c
		return nil
	})
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return nil, fmt.Errorf("%w: %v", transcription.ErrBackendUnavailable, err)
	}
	if err != nil {
		return nil, err
	}

	r := &recognition{
		adapter:   a,
		conn:      conn,
		requestID: strings.ReplaceAll(uuid.NewString(), "-", ""),
		sink:      sink,
		done:      make(chan struct{}),
		log:       a.log.WithModel(cfg.ID),
	}

	msg, err := textMessage("speech.config", r.requestID, newSpeechConfig())
	if err == nil {
		err = conn.WriteMessage(websocket.TextMessage, msg)
	}
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("%w: send speech config: %v", transcription.ErrBackendUnavailable, err)
	}

	a.active.Add(1)
	go r.readLoop()
	return r, nil
}

// instance runs a complete recognition per Infer call. It is what the
// latency probe exercises for cloud models.
type instance struct {
	adapter *Adapter
	cfg     transcription.ModelConfig
}

func (i *instance) Infer(ctx context.Context, samples []float32, language string) ([]string, error) {
	key, err := i.cfg.APIKey()
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		texts  []string
		endErr error
	)
	sink := func(ev transcription.RecognitionEvent) {
		mu.Lock()
		defer mu.Unlock()
		switch ev.Kind {
		case transcription.EventFinal:
			texts = append(texts, ev.Text)
		case transcription.EventStopped:
			endErr = ev.Err
		}
	}

	creds := transcription.Credentials{Endpoint: i.cfg.Endpoint, Region: i.cfg.Region, APIKey: key}
	rec, err := i.adapter.StartRecognition(ctx, i.cfg, creds, language, sink)
	if err != nil {
		return nil, err
	}

	stopCtx, cancel := context.WithTimeout(ctx, i.adapter.cfg.ProbeTimeout)
	defer cancel()

	if werr := rec.Write(samples); werr != nil {
		_ = rec.Stop(stopCtx)
		return nil, fmt.Errorf("%w: %v", transcription.ErrTransientInference, werr)
	}
	if serr := rec.Stop(stopCtx); serr != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrTransientInference, serr)
	}

	mu.Lock()
	defer mu.Unlock()
	if endErr != nil {
		return nil, endErr
	}
	return texts, nil
}

func (i *instance) Close(context.Context) error { return nil }
