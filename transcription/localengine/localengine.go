// Package localengine runs local models through an HTTP inference sidecar
// (an OpenVINO Whisper pipeline server sharing the host's devices).
//
// Sidecar API:
//
//	GET  /health                 200 when ready
//	POST /models/load            {"model_id","path","device"} -> {"handle"}
//	POST /transcribe             multipart: audio (float32 LE), handle, language, sample_rate -> {"texts"} | {"text"}
//	POST /models/unload          {"handle"}
package localengine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/kbukum/speechgate/audio"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/security"
	"github.com/kbukum/speechgate/transcription"
)

const (
	defaultURL     = "http://localhost:8387"
	defaultTimeout = 120 * time.Second
)

// Config holds configuration for the sidecar adapter.
type Config struct {
	// Framework is the tag models register with.
	Framework string        `mapstructure:"framework"`
	URL       string        `mapstructure:"url"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Serialize makes each instance handle one Infer at a time, for engines
	// that are not safe for concurrent requests.
	Serialize bool `mapstructure:"serialize"`
	// TLS applies to https sidecar URLs.
	TLS security.TLSConfig `mapstructure:"tls"`
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.Framework == "" {
		c.Framework = string(transcription.FrameworkOpenVINO)
	}
	if c.URL == "" {
		c.URL = defaultURL
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	c.URL = strings.TrimRight(c.URL, "/")
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("local_engine.url must be an http(s) URL, got %q", c.URL)
	}
	return c.TLS.Validate()
}

// Adapter implements transcription.Adapter against the sidecar.
type Adapter struct {
	cfg    Config
	client *http.Client
	log    *logger.Logger
	// tlsErr is set when the TLS files could not be loaded; Open reports it.
	tlsErr error
}

var _ transcription.Adapter = (*Adapter)(nil)

// New creates a sidecar adapter.
func New(cfg Config) *Adapter {
	cfg.ApplyDefaults()
	a := &Adapter{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		log:    logger.WithComponent("localengine").WithFields(logger.Fields(logger.FieldFramework, cfg.Framework)),
	}
	tlsCfg, err := cfg.TLS.Build()
	if err != nil {
		a.tlsErr = err
		a.log.Error("sidecar TLS settings unusable", logger.ErrorFields("tls", err))
	} else if tlsCfg != nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.TLSClientConfig = tlsCfg
		a.client.Transport = transport
	}
	return a
}

// Name returns the framework tag.
func (a *Adapter) Name() string { return a.cfg.Framework }

// Kind reports a local backend.
func (a *Adapter) Kind() transcription.Kind { return transcription.KindLocal }

// IsAvailable checks if the sidecar is reachable.
func (a *Adapter) IsAvailable(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.cfg.URL+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// Init logs whether the sidecar answers at startup. An absent sidecar is
// not fatal; loads fail individually until it comes up.
func (a *Adapter) Init(ctx context.Context) error {
	if !a.IsAvailable(ctx) {
		a.log.Warn("inference sidecar not reachable", logger.Fields("url", a.cfg.URL))
	}
	return nil
}

type loadRequest struct {
	ModelID string `json:"model_id"`
	Path    string `json:"path"`
	Device  string `json:"device"`
}

type loadResponse struct {
	Handle string `json:"handle"`
}

// Open asks the sidecar to load the model at cfg.Path onto cfg.Device.
func (a *Adapter) Open(ctx context.Context, cfg transcription.ModelConfig) (transcription.Instance, error) {
	if a.tlsErr != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrConfigInvalid, a.tlsErr)
	}
	if strings.TrimSpace(cfg.Path) == "" || strings.TrimSpace(cfg.Device) == "" {
		return nil, fmt.Errorf("%w: path and device are required", transcription.ErrConfigInvalid)
	}

	var out loadResponse
	err := a.postJSON(ctx, "/models/load", loadRequest{ModelID: cfg.ID, Path: cfg.Path, Device: cfg.Device}, &out)
	if err != nil {
		return nil, err
	}
	if out.Handle == "" {
		return nil, fmt.Errorf("%w: sidecar returned no handle", transcription.ErrBackendUnavailable)
	}

	a.log.Debug("model opened", logger.Fields(logger.FieldModelID, cfg.ID, "handle", out.Handle, "device", cfg.Device))
	inst := &instance{adapter: a, handle: out.Handle, modelID: cfg.ID}
	if a.cfg.Serialize {
		inst.serial = &sync.Mutex{}
	}
	return inst, nil
}

func (a *Adapter) postJSON(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.URL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("%w: create request: %v", transcription.ErrBackendUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", transcription.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			return fmt.Errorf("%w: sidecar %s (status %d): %s", transcription.ErrConfigInvalid, path, resp.StatusCode, msg)
		}
		return fmt.Errorf("%w: sidecar %s (status %d): %s", transcription.ErrBackendUnavailable, path, resp.StatusCode, msg)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode %s response: %v", transcription.ErrBackendUnavailable, path, err)
	}
	return nil
}

type instance struct {
	adapter *Adapter
	handle  string
	modelID string
	serial  *sync.Mutex
}

type transcribeResponse struct {
	Texts []string `json:"texts"`
	Text  string   `json:"text"`
}

// Infer posts the samples as a multipart upload.
func (i *instance) Infer(ctx context.Context, samples []float32, language string) ([]string, error) {
	if i.serial != nil {
		i.serial.Lock()
		defer i.serial.Unlock()
	}

	form, contentType, err := encodeForm(samples, i.handle, language)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, i.adapter.cfg.URL+"/transcribe", form)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", transcription.ErrTransientInference, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := i.adapter.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", transcription.ErrTransientInference, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%w: sidecar no longer holds model %s", transcription.ErrBackendUnavailable, i.modelID)
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: sidecar status %d: %s", transcription.ErrTransientInference, resp.StatusCode, body)
	}

	var result transcribeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", transcription.ErrTransientInference, err)
	}
	if len(result.Texts) == 0 && result.Text != "" {
		result.Texts = []string{result.Text}
	}
	return result.Texts, nil
}

// Close unloads the model from the sidecar.
func (i *instance) Close(ctx context.Context) error {
	err := i.adapter.postJSON(ctx, "/models/unload", map[string]string{"handle": i.handle}, nil)
	if err != nil {
		i.adapter.log.Warn("sidecar unload failed", logger.ErrorFields("unload", err))
	}
	return err
}

// encodeForm builds the multipart body of a transcribe request.
func encodeForm(samples []float32, handle, language string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("audio", "audio.pcm")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(audio.EncodeFloat32LE(samples)); err != nil {
		return nil, "", fmt.Errorf("write audio data: %w", err)
	}
	fields := [][2]string{
		{"handle", handle},
		{"sample_rate", strconv.Itoa(audio.DefaultSampleRate)},
	}
	if language != "" {
		fields = append(fields, [2]string{"language", language})
	}
	for _, f := range fields {
		if err := writer.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", f[0], err)
		}
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
