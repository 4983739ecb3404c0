package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/kbukum/speechgate/logger"
)

const meterName = "github.com/kbukum/speechgate"

// InitMeter installs an OTLP HTTP meter provider as the global provider.
func InitMeter(ctx context.Context, cfg Config, info ServiceInfo) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{otlpmetrichttp.WithEndpoint(cfg.Endpoint)}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := newResource(info)
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.MetricInterval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("meter initialized", logger.Fields(
		"service", info.Name,
		"endpoint", cfg.Endpoint,
		"interval", cfg.MetricInterval.String(),
	))
	return mp, nil
}

// GatewayMetrics holds the gateway's instruments. A nil *GatewayMetrics is
// valid and records nothing.
type GatewayMetrics struct {
	loads          metric.Int64Counter
	probeLatency   metric.Float64Histogram
	activeSessions metric.Int64UpDownCounter
	frames         metric.Int64Counter
	events         metric.Int64Counter
}

// NewGatewayMetrics creates instruments on the global meter provider.
func NewGatewayMetrics() *GatewayMetrics {
	m, err := NewGatewayMetricsFrom(otel.GetMeterProvider().Meter(meterName))
	if err != nil {
		logger.Warn("gateway metrics unavailable", logger.ErrorFields("create_instruments", err))
		return nil
	}
	return m
}

// NewGatewayMetricsFrom creates instruments on the given meter.
func NewGatewayMetricsFrom(meter metric.Meter) (*GatewayMetrics, error) {
	loads, err := meter.Int64Counter("speechgate.model.loads",
		metric.WithDescription("Model load attempts by outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating speechgate.model.loads: %w", err)
	}
	probeLatency, err := meter.Float64Histogram("speechgate.model.probe_latency",
		metric.WithDescription("Latency probe duration"),
		metric.WithUnit("ms"))
	if err != nil {
		return nil, fmt.Errorf("creating speechgate.model.probe_latency: %w", err)
	}
	activeSessions, err := meter.Int64UpDownCounter("speechgate.sessions.active",
		metric.WithDescription("Open client sessions"))
	if err != nil {
		return nil, fmt.Errorf("creating speechgate.sessions.active: %w", err)
	}
	frames, err := meter.Int64Counter("speechgate.frames.processed",
		metric.WithDescription("Audio frames handled by outcome"))
	if err != nil {
		return nil, fmt.Errorf("creating speechgate.frames.processed: %w", err)
	}
	events, err := meter.Int64Counter("speechgate.events.emitted",
		metric.WithDescription("Transcript events emitted by kind"))
	if err != nil {
		return nil, fmt.Errorf("creating speechgate.events.emitted: %w", err)
	}

	return &GatewayMetrics{
		loads:          loads,
		probeLatency:   probeLatency,
		activeSessions: activeSessions,
		frames:         frames,
		events:         events,
	}, nil
}

// RecordLoad counts a load attempt. outcome is "ready" or "failed".
func (m *GatewayMetrics) RecordLoad(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.loads.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordProbeLatency records a successful probe.
func (m *GatewayMetrics) RecordProbeLatency(ctx context.Context, framework string, ms float64) {
	if m == nil {
		return
	}
	m.probeLatency.Record(ctx, ms, metric.WithAttributes(attribute.String("framework", framework)))
}

// SessionOpened increments the active session gauge.
func (m *GatewayMetrics) SessionOpened(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, 1)
}

// SessionClosed decrements the active session gauge.
func (m *GatewayMetrics) SessionClosed(ctx context.Context) {
	if m == nil {
		return
	}
	m.activeSessions.Add(ctx, -1)
}

// RecordFrame counts an audio frame. outcome is "ok" or "error".
func (m *GatewayMetrics) RecordFrame(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.frames.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordEvent counts an emitted transcript event.
func (m *GatewayMetrics) RecordEvent(ctx context.Context, kind string) {
	if m == nil {
		return
	}
	m.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}
