// Package main runs the enrichment worker pool.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/shortloop/shortloop/internal/app"
	"github.com/shortloop/shortloop/internal/clock/system"
	"github.com/shortloop/shortloop/internal/config"
	"github.com/shortloop/shortloop/internal/handler"
	"github.com/shortloop/shortloop/internal/logging"
	"github.com/shortloop/shortloop/internal/metrics"
	"github.com/shortloop/shortloop/internal/shortener"
	"github.com/shortloop/shortloop/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backends, err := app.New(ctx, cfg, logger.Named("app"))
	if err != nil {
		logger.Fatal("backend init failed", zap.Error(err))
	}
	defer backends.Close()

	registry := handler.NewRegistry()
	registry.Register(shortener.JobTypeQRCode,
		handler.NewQRHandler(backends.Blob, cfg.Server.BaseURL, cfg.Storage.Prefix))
	registry.Register(shortener.JobTypeMetadata,
		handler.NewMetadataHandler(handler.MetadataConfig{}))
	if cfg.Worker.ScreenshotsEnabled {
		shots, err := handler.NewScreenshotHandler(backends.Blob, handler.ScreenshotConfig{
			NavTimeout: cfg.Worker.HandlerTimeout(),
			BlobPrefix: cfg.Storage.Prefix,
		}, logger.Named("screenshot"))
		if err != nil {
			logger.Error("screenshot handler init failed, screenshot jobs will retry and fail",
				zap.Error(err))
		} else {
			defer shots.Close()
			registry.Register(shortener.JobTypeScreenshot, shots)
		}
	}

	clock := system.New()
	workerCfg := worker.Config{
		PopWait:        cfg.Broker.PopTimeout(),
		MaxAttempts:    cfg.Worker.MaxAttempts,
		HandlerTimeout: cfg.Worker.HandlerTimeout(),
		ErrorBackoff:   cfg.Worker.BrokerBackoff(),
	}
	var workers []*worker.Worker
	for i := 0; i < cfg.Worker.Concurrency; i++ {
		workers = append(workers, worker.New(
			backends.Broker,
			backends.Jobs,
			registry,
			backends.Publisher,
			clock,
			workerCfg,
			logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	pool := worker.NewPool(backends.Broker, workers, logger.Named("pool"))

	sweeper := worker.NewSweeper(
		backends.Jobs,
		backends.URLs,
		backends.Broker,
		clock,
		worker.SweeperConfig{
			Interval:          cfg.Worker.SweepInterval(),
			RunningStaleAfter: cfg.Worker.RunningStaleAfter(),
			PendingStaleAfter: cfg.Worker.PendingStaleAfter(),
		},
		logger.Named("sweeper"),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("metrics server started", zap.Int("port", cfg.Worker.MetricsPort))
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("recovery sweeper started")
		sweeper.Run(ctx)
	}()

	logger.Info("worker pool started", zap.Int("concurrency", cfg.Worker.Concurrency))
	pool.Run(ctx)

	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Error("metrics server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
