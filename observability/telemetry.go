package observability

import (
	"context"
	"errors"
)

// ShutdownFunc flushes and stops the providers created by Init.
type ShutdownFunc func(ctx context.Context) error

// Init installs the OTLP meter and tracer providers when telemetry is
// enabled. With telemetry disabled it returns a no-op shutdown.
func Init(ctx context.Context, cfg Config, info ServiceInfo) (ShutdownFunc, error) {
	cfg.ApplyDefaults()
	if !cfg.Enabled {
		return func(context.Context) error { return nil }, nil
	}

	mp, err := InitMeter(ctx, cfg, info)
	if err != nil {
		return nil, err
	}
	tp, err := InitTracer(ctx, cfg, info)
	if err != nil {
		_ = mp.Shutdown(ctx)
		return nil, err
	}

	return func(ctx context.Context) error {
		return errors.Join(tp.Shutdown(ctx), mp.Shutdown(ctx))
	}, nil
}
