package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreadlabs/dread-engine/internal/config"
	"github.com/dreadlabs/dread-engine/internal/handlers"
	"github.com/dreadlabs/dread-engine/internal/logger"
	"github.com/dreadlabs/dread-engine/internal/middleware"
	"github.com/dreadlabs/dread-engine/internal/services/events"
	"github.com/dreadlabs/dread-engine/internal/services/queue"
	"github.com/dreadlabs/dread-engine/internal/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logg := logger.Setup(cfg)

	logg.Info("Starting Dread Engine API",
		"port", cfg.Port,
		"environment", cfg.Environment,
		"data_dir", cfg.DataDir)

	store, err := storage.NewFileStore(cfg.DataDir, logg)
	if err != nil {
		logg.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}

	queueClient, err := queue.NewClient(cfg.RedisURL, logg)
	if err != nil {
		logg.Error("Failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	logg.Info("Redis connection established")

	broadcaster := events.NewBroadcaster(queueClient.GetRedisClient(), logg)
	actionQueue := queue.NewActionQueue(queueClient)

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(logg, store)
	mux.Handle("/health", healthHandler)

	sessionHandler := handlers.NewSessionHandler(logg, store, actionQueue, broadcaster)
	mux.Handle("/v1/session", sessionHandler)
	mux.Handle("/v1/session/", sessionHandler)

	scenarioHandler := handlers.NewScenarioHandler(logg, store)
	mux.Handle("/v1/scenarios", scenarioHandler)

	handler := middleware.Logger(mux)
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logg.Info("Server starting", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logg.Error("Server failed to start", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logg.Info("Server is shutting down...")

	if err := queueClient.Close(); err != nil {
		logg.Error("Error closing Redis connection", "error", err)
	}
	if err := store.Close(); err != nil {
		logg.Error("Error closing storage", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logg.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logg.Info("Server exited")
}
