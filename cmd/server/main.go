/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the transaction-webhook ingestion service.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration from the environment
  2. Initialize the PostgreSQL store
  3. Build the runtime Signal and Registry
  4. Wire Repository -> Arbiter -> Service -> Scheduler -> Handler
  5. Configure the HTTP router
  6. Start the server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Set the shutdown signal (background processors see it immediately)
  3. Drain the task registry (await in-flight processors)
  4. Close the database connection

ENVIRONMENT:
  See internal/config for the full list of variables and defaults.

SEE ALSO:
  - api/server.go: router configuration
  - api/handlers.go: HTTP handlers
  - store/postgres/postgres.go: database implementation
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/warp/txwebhook/api"
	"github.com/warp/txwebhook/internal/config"
	"github.com/warp/txwebhook/internal/processor"
	"github.com/warp/txwebhook/internal/runtime"
	"github.com/warp/txwebhook/internal/txrepo"
	"github.com/warp/txwebhook/internal/webhook"
	"github.com/warp/txwebhook/store/postgres"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	pgStore, err := postgres.New(postgres.Config{
		DSN:             cfg.DatabaseURL,
		Timezone:        cfg.DBTimezone,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		logger.Fatal("failed to initialize database", zap.Error(err))
	}
	defer pgStore.Close()

	signal_ := runtime.NewSignal()
	registry := runtime.NewRegistry()

	repo := txrepo.New(pgStore)
	arbiter := webhook.NewArbiter(repo, cfg.ProcessingStaleTimeout)
	service := webhook.NewService(arbiter, cfg.DBOperationTimeout)
	scheduler := processor.NewScheduler(repo, signal_, registry, cfg.ProcessingDelay, logger)
	handler := api.NewHandler(service, scheduler, repo, logger)

	router := api.NewRouter(handler)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	// Set the shutdown signal so in-flight background processors take
	// the interrupted branch instead of racing the delay timer, then
	// drain the registry before closing storage.
	signal_.Set()
	if err := registry.Shutdown(shutdownCtx); err != nil {
		logger.Error("background tasks did not drain before deadline", zap.Error(err))
	}

	logger.Info("server stopped")
}
