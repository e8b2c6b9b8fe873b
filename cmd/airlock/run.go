package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"

	"github.com/reodash/airlock/internal/cache"
	"github.com/reodash/airlock/internal/config"
	"github.com/reodash/airlock/internal/generation"
	"github.com/reodash/airlock/internal/lifecycle"
	"github.com/reodash/airlock/internal/origin"
	"github.com/reodash/airlock/internal/server"
	"github.com/reodash/airlock/internal/storage"
	"github.com/reodash/airlock/internal/storage/leveldb"
	"github.com/reodash/airlock/internal/storage/sqlite"
	"github.com/reodash/airlock/internal/strategy"
	"github.com/reodash/airlock/internal/telemetry"
	"github.com/reodash/airlock/internal/worker"
)

func run(configPath string) error {
	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	slog.Info("starting airlock", "version", version, "addr", cfg.Server.Addr, "origin", cfg.Origin.BaseURL)

	// Open the durable generation store
	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	// ctx stops the workers; the HTTP server shuts down separately so the
	// fill queue can drain after the listener closes.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Telemetry
	var metrics *telemetry.Metrics
	var metricsHandler http.Handler
	if cfg.Telemetry.Metrics.Enabled {
		reg := prometheus.NewRegistry()
		metrics = telemetry.NewMetrics(reg)
		metricsHandler = promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
	}
	if cfg.Telemetry.Tracing.Enabled {
		shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry.Tracing.Endpoint, cfg.Telemetry.Tracing.SampleRate)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}
		defer shutdownTracing(context.Background())
	}

	// Origin client with cached DNS
	resolver := &dnscache.Resolver{}
	var authOpts *origin.AuthOptions
	if cfg.Origin.Auth != nil {
		authOpts = &origin.AuthOptions{
			TokenURL:     cfg.Origin.Auth.TokenURL,
			ClientID:     cfg.Origin.Auth.ClientID,
			ClientSecret: cfg.Origin.Auth.ClientSecret,
			Scopes:       cfg.Origin.Auth.Scopes,
		}
	}
	upstream, err := origin.New(ctx, origin.Options{
		BaseURL: cfg.Origin.BaseURL,
		Timeout: cfg.Origin.Timeout,
		Auth:    authOpts,
	}, resolver)
	if err != nil {
		return err
	}

	// Hot cache in front of the durable store
	var hot cache.Cache
	if cfg.HotCache.Enabled {
		hot, err = cache.NewMemory(cfg.HotCache.MaxSize, cfg.HotCache.DefaultTTL)
		if err != nil {
			return err
		}
	}

	// Generation manager for this release's cache
	mgr := generation.NewManager(generation.Config{
		Store:   store,
		Hot:     hot,
		Fetcher: upstream,
		Version: version,
		HotTTL:  cfg.HotCache.DefaultTTL,
	})

	// Strategy engine with asynchronous cache fill
	fill := worker.NewCacheFill(mgr, cfg.Fill.QueueSize, metrics)
	engine := strategy.New(mgr, upstream, fill, metrics)

	// Lifecycle controller drives install and activation
	ctrl := lifecycle.NewController(mgr, metrics)

	workers := []worker.Worker{ctrl, fill}
	if cfg.Warmup.Enabled {
		workers = append(workers, worker.NewManifestWarmer(mgr, engine, ctrl.Activated()))
	}
	if cfg.Stats.Every > 0 {
		workers = append(workers, worker.NewStatsWorker(mgr, cfg.Stats.Every, metrics, ctrl.Activated()))
	}
	if cfg.Origin.DNSRefresh > 0 {
		workers = append(workers, worker.NewDNSRefreshWorker(resolver, cfg.Origin.DNSRefresh))
	}
	runner := worker.NewRunner(workers...)

	workerErr := make(chan error, 1)
	go func() {
		workerErr <- runner.Run(ctx)
	}()

	// Create HTTP server
	handler := server.New(server.Deps{
		Lifecycle:      ctrl,
		Strategy:       engine,
		Origin:         upstream,
		Stats:          mgr,
		ReadyCheck:     store.Ping,
		Metrics:        metrics,
		MetricsHandler: metricsHandler,
		Version:        version,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	slog.Info("airlock ready", "addr", cfg.Server.Addr)

	// Wait for signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("shutting down", "signal", sig)
	case err := <-errCh:
		return err
	case err := <-workerErr:
		if err != nil {
			return fmt.Errorf("workers: %w", err)
		}
		return errors.New("workers stopped unexpectedly")
	}

	// Shutdown: stop accepting requests first, then stop the workers so the
	// fill queue drains with the store still open.
	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	cancel()
	if err := <-workerErr; err != nil {
		slog.Warn("worker shutdown", "error", err)
	}

	slog.Info("airlock stopped")
	return nil
}

// openStore opens the configured durable store backend.
func openStore(cfg config.StorageConfig) (storage.GenerationStore, error) {
	switch cfg.Backend {
	case "sqlite":
		return sqlite.New(cfg.DSN)
	case "leveldb":
		return leveldb.New(cfg.Path)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
