// Package app wires the engine together: store, index, tracker, catalog,
// loader, backends, router, and the surfaces around them.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"toolgate/internal/domain"
	"toolgate/internal/infra/audit"
	"toolgate/internal/infra/backend"
	"toolgate/internal/infra/builtin"
	"toolgate/internal/infra/catalog"
	"toolgate/internal/infra/config"
	"toolgate/internal/infra/gateway"
	"toolgate/internal/infra/index"
	"toolgate/internal/infra/loader"
	"toolgate/internal/infra/router"
	"toolgate/internal/infra/storage"
	"toolgate/internal/infra/telemetry"
	"toolgate/internal/infra/usage"
)

type App struct {
	logger *zap.Logger
}

func New(logger *zap.Logger) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{logger: logger}
}

type ServeConfig struct {
	ConfigPath string
}

// Serve runs the gateway until the context is canceled.
func (a *App) Serve(ctx context.Context, serveCfg ServeConfig) error {
	cfg, err := config.Load(serveCfg.ConfigPath)
	if err != nil {
		return err
	}

	store, err := storage.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("store close failed", zap.Error(err))
		}
	}()

	metrics := telemetry.NewPrometheusMetrics(nil)
	auditLog := audit.NewLog(domain.DefaultAuditCapacity)
	tracker := usage.NewTracker()
	idx := index.New(index.Options{K1: cfg.Index.K1, B: cfg.Index.B})

	cat := catalog.New(catalog.Options{
		Index:   idx,
		Tracker: tracker,
		Store:   store,
		Metrics: metrics,
		Logger:  a.logger,
	})
	if err := cat.Restore(ctx); err != nil {
		return err
	}

	backends := backend.NewManager(cat, a.logger)

	ld := loader.New(cat, tracker, loader.Options{
		EssentialCap:      cfg.Loader.EssentialCap,
		RelevantCap:       cfg.Loader.RelevantCap,
		FallbackThreshold: cfg.Loader.FallbackThreshold,
		SearchEnabled:     cfg.Loader.SearchEnabled,
	}, a.logger, metrics)

	rt := router.New(cat, ld, backends, tracker, router.Options{
		Timeout: time.Duration(cfg.Router.InvokeTimeoutSeconds) * time.Second,
		Logger:  a.logger,
		Metrics: metrics,
		Store:   store,
		Audit:   auditLog,
	})

	// Feature providers register their tools before the surfaces come up
	// so the first listing already sees them.
	providers := []func(context.Context) error{
		func(ctx context.Context) error { return builtin.Register(ctx, cat, backends) },
	}
	reg, regCtx := errgroup.WithContext(ctx)
	for _, provider := range providers {
		provider := provider
		reg.Go(func() error { return provider(regCtx) })
	}
	if err := reg.Wait(); err != nil {
		return fmt.Errorf("register feature providers: %w", err)
	}

	gw := gateway.New(rt, gateway.Options{
		Refresh: time.Duration(cfg.Gateway.ToolRefreshSeconds) * time.Second,
		Logger:  a.logger,
	})

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return telemetry.StartHTTPServer(groupCtx, telemetry.HTTPServerOptions{
			Addr:  cfg.Observability.ListenAddress,
			Audit: auditLog,
		}, a.logger)
	})
	group.Go(func() error {
		return config.Watch(groupCtx, serveCfg.ConfigPath, func(next config.Config) {
			ld.UpdateOptions(loader.Options{
				EssentialCap:      next.Loader.EssentialCap,
				RelevantCap:       next.Loader.RelevantCap,
				FallbackThreshold: next.Loader.FallbackThreshold,
				SearchEnabled:     next.Loader.SearchEnabled,
			})
			rt.SetTimeout(time.Duration(next.Router.InvokeTimeoutSeconds) * time.Second)
		}, a.logger)
	})
	group.Go(func() error {
		return gw.Run(groupCtx)
	})

	a.logger.Info("toolgate serving",
		zap.String("store", cfg.Store.Path),
		zap.Int("tools", cat.Len()),
	)
	return group.Wait()
}
