package main

import (
	"context"
	"fmt"

	"github.com/kbukum/speechgate/api"
	"github.com/kbukum/speechgate/auth"
	"github.com/kbukum/speechgate/bootstrap"
	"github.com/kbukum/speechgate/database"
	"github.com/kbukum/speechgate/encryption"
	"github.com/kbukum/speechgate/logger"
	"github.com/kbukum/speechgate/model"
	"github.com/kbukum/speechgate/observability"
	"github.com/kbukum/speechgate/probe"
	"github.com/kbukum/speechgate/server"
	"github.com/kbukum/speechgate/session"
	"github.com/kbukum/speechgate/store"
	"github.com/kbukum/speechgate/transcription"
	"github.com/kbukum/speechgate/transcription/cloudstream"
	"github.com/kbukum/speechgate/transcription/localengine"
	"github.com/kbukum/speechgate/version"
)

func serve(ctx context.Context, configFile string) error {
	cfg, err := loadConfig(configFile)
	if err != nil {
		return err
	}

	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	log := app.Logger

	shutdownTelemetry, err := observability.Init(ctx, cfg.Telemetry, observability.ServiceInfo{
		Name:        cfg.Name,
		Version:     serviceVersion(cfg.Version),
		Environment: cfg.Environment,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	app.OnStop(bootstrap.Hook(shutdownTelemetry))
	metrics := observability.NewGatewayMetrics()

	adapters := transcription.NewRegistry()
	if err := adapters.Register(localengine.New(cfg.LocalEngine)); err != nil {
		return err
	}
	if err := adapters.Register(cloudstream.New(cfg.Cloud)); err != nil {
		return err
	}
	if err := app.RegisterComponent(adapters); err != nil {
		return err
	}

	codec, err := encryption.New(cfg.Encryption)
	if err != nil {
		return fmt.Errorf("encryption: %w", err)
	}

	var st store.Store
	if cfg.Database.Enabled {
		db := database.NewComponent(cfg.Database, log).WithAutoMigrate(store.Tables()...)
		if err := app.RegisterComponent(db); err != nil {
			return err
		}
		st = store.NewComponentStore(db, log)
	} else {
		log.Warn("Database disabled, model registrations are kept in memory only")
		st = store.NewMemory()
	}

	registry := model.NewRegistry(cfg.Registry, adapters, st, codec, probe.New(cfg.Probe), log).
		WithMetrics(metrics)
	router := session.NewRouter(cfg.Session, registry, st, log).WithMetrics(metrics)

	srv := server.New(cfg.Server, log)
	srv.ApplyMiddleware()
	srv.RegisterDefaultEndpoints(cfg.Name, app.Components.HealthAll)

	opts := api.AdminOptions{RateLimit: cfg.Server.AdminRateLimit}
	if cfg.Auth.Enabled {
		svc, err := auth.NewService(cfg.Auth)
		if err != nil {
			return err
		}
		opts.Validator = svc
	}
	log.Info("Admin authentication", logger.Fields("auth", cfg.Auth.Describe()))

	engine := srv.GinEngine()
	api.NewAdmin(registry, st, log).RegisterRoutes(engine, opts)
	api.NewSocket(router, cfg.Session, &cfg.Server.CORS, log).RegisterRoutes(engine)

	if err := app.RegisterComponent(registry); err != nil {
		return err
	}
	if err := app.RegisterComponent(router); err != nil {
		return err
	}
	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return err
	}

	return app.Run(ctx)
}

func serviceVersion(configured string) string {
	if configured != "" {
		return configured
	}
	return version.Get().Version
}
