// Package main runs the shortener HTTP service.
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

	"github.com/shortloop/shortloop/internal/api"
	"github.com/shortloop/shortloop/internal/app"
	"github.com/shortloop/shortloop/internal/clock/system"
	"github.com/shortloop/shortloop/internal/config"
	"github.com/shortloop/shortloop/internal/id/uuid"
	"github.com/shortloop/shortloop/internal/logging"
	"github.com/shortloop/shortloop/internal/producer"
	"github.com/shortloop/shortloop/internal/stats"
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

	prod := producer.New(
		backends.URLs,
		backends.Jobs,
		backends.Broker,
		backends.Cache,
		backends.Publisher,
		uuid.NewGenerator(),
		system.New(),
		nil,
		logger.Named("producer"),
	)

	var pingers []api.Pinger
	if backends.Pool != nil {
		pingers = append(pingers, backends.Pool)
	}
	if backends.RedisBroker != nil {
		pingers = append(pingers, backends.RedisBroker)
	}

	apiServer := api.NewServer(api.Options{
		Producer:  prod,
		URLs:      backends.URLs,
		Cache:     backends.Cache,
		Broker:    backends.Broker,
		Stats:     stats.New(backends.URLs, backends.Jobs),
		Publisher: backends.Publisher,
		BaseURL:   cfg.Server.BaseURL,
		Pingers:   pingers,
		Logger:    logger.Named("api"),
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
