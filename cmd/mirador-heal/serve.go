package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-heal/internal/api"
	"github.com/miradorstack/mirador-heal/internal/cache"
	"github.com/miradorstack/mirador-heal/internal/config"
	"github.com/miradorstack/mirador-heal/internal/correction"
	"github.com/miradorstack/mirador-heal/internal/metrics"
	"github.com/miradorstack/mirador-heal/internal/models"
	"github.com/miradorstack/mirador-heal/internal/monitor"
	"github.com/miradorstack/mirador-heal/internal/notify"
	"github.com/miradorstack/mirador-heal/internal/patterns"
	"github.com/miradorstack/mirador-heal/internal/reload"
	"github.com/miradorstack/mirador-heal/internal/services"
	"github.com/miradorstack/mirador-heal/internal/storage"
	"github.com/miradorstack/mirador-heal/internal/utils"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the telemetry pipeline with its gRPC and HTTP surfaces",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", opts.configPath), slog.Any("error", err))
		return err
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON)
	logger.Info("starting mirador-heal", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		return err
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, persister, err := openStore(ctx, *cfg, logger)
	if err != nil {
		logger.Error("failed to open storage", slog.Any("error", err))
		return err
	}
	if persister != nil {
		defer persister.Close()
	}

	fixes, err := patterns.LoadFixRules(cfg.Rules.Path, logger)
	if err != nil {
		logger.Error("failed to load fix rules", slog.Any("error", err))
		return err
	}
	logger.Info("fix rules loaded", slog.Int("rules", fixes.Len()))

	corrector := newCorrector(*cfg, persister, logger)

	notifier := notify.Multi{notify.NewLogNotifier(logger)}
	if cfg.Notify.WebhookURL != "" {
		notifier = append(notifier, notify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.WebhookToken, cfg.Notify.Timeout))
	}

	var alertClaims cache.Claims = cache.NoopClaims{}
	if cfg.Cache.Enabled {
		claims, err := cache.NewBigCache(ctx, cache.BigCacheConfig{
			Shards:     cfg.Cache.Shards,
			LifeWindow: cfg.Cache.LifeWindow,
			MaxSizeMB:  cfg.Cache.MaxSizeMB,
		})
		if err != nil {
			logger.Warn("alert cache unavailable, suppression disabled", slog.Any("error", err))
		} else {
			alertClaims = claims
			defer claims.Close()
		}
	}

	orchestrator, err := monitor.New(cfg.Monitoring, monitor.Deps{
		Store:             store,
		Analyzer:          patterns.NewAnalyzer(logger, fixes),
		Corrector:         corrector,
		Notifier:          notifier,
		Cache:             alertClaims,
		Logger:            logger,
		AlertCooldown:     cfg.Notify.AlertCooldown,
		CorrectionTimeout: cfg.Correction.Timeout,
		CleanupInterval:   cfg.Storage.CleanupInterval,
	})
	if err != nil {
		logger.Error("failed to build pipeline", slog.Any("error", err))
		return err
	}
	if store.Len() > 0 {
		orchestrator.Reanalyze(ctx)
	}
	if err := orchestrator.Start(ctx); err != nil {
		logger.Error("failed to start pipeline", slog.Any("error", err))
		return err
	}

	if cfg.Monitoring.CaptureConsoleErrors {
		logger = slog.New(monitor.NewLogCaptureHandler(logger.Handler(), orchestrator))
		slog.SetDefault(logger)
	}

	var watcher *reload.Watcher
	if path := configPath(opts); path != "" {
		watcher, err = reload.NewWatcher(path, 0, loadMonitoring, orchestrator, logger)
		if err == nil {
			err = watcher.Start(ctx)
		}
		if err != nil {
			logger.Warn("config hot reload disabled", slog.Any("error", err))
			watcher = nil
		}
	}

	server, err := api.NewServer(cfg.Server, services.NewTelemetryService(logger, orchestrator), orchestrator, logger)
	if err != nil {
		logger.Error("failed to create gRPC server", slog.Any("error", err))
		return err
	}

	var httpServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		httpServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      api.NewHTTPHandler(orchestrator, prometheus.DefaultGatherer, logger),
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("http server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		logger.Info("grpc server listening", slog.String("address", server.Address()))
		if serveErr := server.Serve(); !errors.Is(serveErr, api.ErrServerClosed) {
			logger.Error("gRPC server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	server.Shutdown(shutdownCtx)

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("http server shutdown", slog.Any("error", err))
		}
	}
	if watcher != nil {
		_ = watcher.Close()
	}
	if err := orchestrator.Stop(shutdownCtx); err != nil {
		logger.Warn("final flush failed", slog.Any("error", err))
	}

	logger.Info("mirador-heal stopped", slog.Int("records", store.Len()))
	return nil
}

// newCorrector builds the correction engine and registers the record database
// for reconnect corrections when one is open.
func newCorrector(cfg config.Config, persister *storage.SQLitePersister, logger *slog.Logger) *correction.Engine {
	corrector := correction.NewEngine(correction.Options{
		Retry: correction.RetryPolicy{
			MaxAttempts: cfg.Correction.MaxAttempts,
			BaseDelay:   cfg.Correction.BaseDelay,
			MaxDelay:    cfg.Correction.MaxDelay,
		},
		BreakerThreshold: cfg.Correction.BreakerThreshold,
		BreakerCooldown:  cfg.Correction.BreakerCooldown,
		AttemptTimeout:   cfg.Correction.Timeout,
		Logger:           logger,
	})
	if persister != nil {
		corrector.RegisterPinger(storage.ResourceName, persister)
	}
	return corrector
}

func configPath(opts *rootOptions) string {
	if opts.configPath != "" {
		return opts.configPath
	}
	return config.PathFromEnv()
}

func loadMonitoring(path string) (models.MonitoringConfig, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return models.MonitoringConfig{}, err
	}
	return cfg.Monitoring, nil
}

// openStore builds the record store, backed by sqlite when a path is configured.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.Store, *storage.SQLitePersister, error) {
	opts := storage.Options{
		MaxRecords:    cfg.Monitoring.Storage.MaxRecords,
		RetentionDays: cfg.Monitoring.Storage.RetentionDays,
		Logger:        logger,
	}
	var persister *storage.SQLitePersister
	if cfg.Storage.SQLitePath != "" {
		p, err := storage.OpenSQLite(cfg.Storage.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		persister = p
		opts.Persister = p
	}
	store := storage.NewStore(opts)
	loaded, err := store.Load(ctx)
	if err != nil {
		if persister != nil {
			persister.Close()
		}
		return nil, nil, err
	}
	if persister != nil {
		logger.Info("records restored", slog.String("path", cfg.Storage.SQLitePath), slog.Int("records", loaded))
	}
	return store, persister, nil
}
