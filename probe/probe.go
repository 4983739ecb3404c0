// Package probe measures a freshly loaded model's inference latency. A
// model only becomes ready after one successful probe.
package probe

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/kbukum/speechgate/audio"
	"github.com/kbukum/speechgate/observability"
	"github.com/kbukum/speechgate/transcription"
)

// DefaultLanguage is used when a model has no configured language.
const DefaultLanguage = "<|ko|>"

// Config controls the synthetic input.
type Config struct {
	SampleRate int           `mapstructure:"sample_rate"`
	Duration   time.Duration `mapstructure:"duration"`
	Language   string        `mapstructure:"language"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// ApplyDefaults fills zero values: one second of 16 kHz silence.
func (c *Config) ApplyDefaults() {
	if c.SampleRate <= 0 {
		c.SampleRate = audio.DefaultSampleRate
	}
	if c.Duration <= 0 {
		c.Duration = time.Second
	}
	if c.Language == "" {
		c.Language = DefaultLanguage
	}
	if c.Timeout <= 0 {
		c.Timeout = 60 * time.Second
	}
}

// Prober runs the latency probe.
type Prober struct {
	cfg     Config
	silence []float32
	now     func() time.Time
}

// New creates a Prober.
func New(cfg Config) *Prober {
	cfg.ApplyDefaults()
	return &Prober{
		cfg:     cfg,
		silence: audio.Silence(cfg.SampleRate, cfg.Duration),
		now:     time.Now,
	}
}

// Run infers the silent buffer once and returns the wall-clock latency in
// milliseconds rounded to two decimals. language overrides the configured
// default when non-empty.
func (p *Prober) Run(ctx context.Context, inst transcription.Instance, language string) (float64, error) {
	if language == "" {
		language = p.cfg.Language
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanProbeRun)
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	start := p.now()
	_, err := inst.Infer(ctx, p.silence, language)
	elapsed := p.now().Sub(start)
	if err != nil {
		err = fmt.Errorf("latency probe: %w", err)
		observability.EndSpan(span, err)
		return 0, err
	}

	ms := Round2(float64(elapsed) / float64(time.Millisecond))
	span.SetAttributes(attribute.Float64(observability.AttrLatencyMs, ms))
	observability.EndSpan(span, nil)
	return ms, nil
}

// Round2 rounds to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
