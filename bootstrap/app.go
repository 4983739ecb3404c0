package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/speechgate/component"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/version"
)

const defaultGracefulTimeout = 15 * time.Second

// App owns the component registry and the process lifecycle.
type App[C Config] struct {
	Name       string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger

	gracefulTimeout time.Duration
	onReady         []Hook
	onStop          []Hook
}

// Option configures an App.
type Option func(*options)

type options struct {
	logger          *logger.Logger
	gracefulTimeout time.Duration
}

// WithLogger replaces the logger otherwise built from the config's logging
// section.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithGracefulTimeout bounds the shutdown phase.
func WithGracefulTimeout(d time.Duration) Option {
	return func(o *options) { o.gracefulTimeout = d }
}

// NewApp applies defaults to cfg, validates it and initializes the global
// logger.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	o := options{gracefulTimeout: defaultGracefulTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	base := cfg.GetServiceConfig()
	if o.logger == nil {
		logger.Init(&base.Logging)
		o.logger = logger.GetGlobalLogger()
	}

	return &App[C]{
		Name:            base.Name,
		Cfg:             cfg,
		Components:      component.NewRegistry(),
		Logger:          o.logger,
		gracefulTimeout: o.gracefulTimeout,
	}, nil
}

// RegisterComponent appends c to the start order.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// Run starts all components, blocks until SIGINT/SIGTERM or ctx is done,
// then shuts down gracefully.
func (a *App[C]) Run(ctx context.Context) error {
	if err := a.Start(ctx); err != nil {
		return err
	}
	a.Logger.Info("Gateway ready, waiting for shutdown signal")
	a.WaitForSignal(ctx)
	return a.Shutdown()
}

// Start starts every component and runs the ready hooks. A component that
// fails to start causes the ones already started to be stopped.
func (a *App[C]) Start(ctx context.Context) error {
	start := time.Now()
	info := version.Get()
	a.Logger.Info("Starting gateway", logger.Fields("name", a.Name, "version", info.Short()))

	if err := a.Components.StartAll(ctx); err != nil {
		return errors.Join(fmt.Errorf("failed to start components: %w", err), a.Shutdown())
	}
	if err := runHooks(ctx, a.onReady); err != nil {
		return errors.Join(fmt.Errorf("onReady hook failed: %w", err), a.Shutdown())
	}

	for _, h := range a.Components.HealthAll(ctx) {
		if h.Status != component.StatusHealthy {
			a.Logger.Warn("Component not healthy after start", logger.Fields(
				"name", h.Name, "status", string(h.Status), "message", h.Message))
		}
	}
	a.Logger.Info("Gateway started", logger.DurationFields("startup", time.Since(start)))
	return nil
}

// WaitForSignal blocks until an interrupt/term signal or ctx cancellation.
func (a *App[C]) WaitForSignal(ctx context.Context) os.Signal {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		a.Logger.Info("Received shutdown signal", logger.Fields("signal", sig.String()))
		return sig
	case <-ctx.Done():
		a.Logger.Info("Context canceled, shutting down")
		return nil
	}
}

// Shutdown stops components in reverse order, then runs the stop hooks.
func (a *App[C]) Shutdown() error {
	a.Logger.Info("Shutting down", logger.Fields("timeout", a.gracefulTimeout.String()))

	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	if err := a.Components.StopAll(ctx); err != nil {
		a.Logger.Error("Component shutdown reported errors", logger.ErrorFields("stop", err))
		errs = append(errs, err)
	}
	if err := runHooks(ctx, a.onStop); err != nil {
		a.Logger.Error("OnStop hook error", logger.ErrorFields("stop_hooks", err))
		errs = append(errs, err)
	}
	a.Logger.Info("Shutdown complete")
	return errors.Join(errs...)
}
