package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	"github.com/smukkama/energy-kpi/internal/api"
	"github.com/smukkama/energy-kpi/internal/bootstrap"
	"github.com/smukkama/energy-kpi/internal/logging"
	"github.com/smukkama/energy-kpi/pkg/config"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Encoding)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Starting KPI server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize", zap.Error(err))
	}
	defer app.Close()

	// Run migrations
	if err := app.DB.RunMigrations("migrations", logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	go app.Orchestrator.SweepCache(ctx, cfg.KPI.CacheSweepInterval)

	router := api.NewHandler(app.Orchestrator, app.Metrics, logger).Router()
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr(),
		Handler:      handlers.LoggingHandler(os.Stdout, router),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("Shutting down gracefully")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
}
