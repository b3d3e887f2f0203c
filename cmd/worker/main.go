package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dreadlabs/dread-engine/internal/config"
	"github.com/dreadlabs/dread-engine/internal/engine"
	"github.com/dreadlabs/dread-engine/internal/logger"
	"github.com/dreadlabs/dread-engine/internal/services"
	"github.com/dreadlabs/dread-engine/internal/services/queue"
	"github.com/dreadlabs/dread-engine/internal/storage"
	"github.com/dreadlabs/dread-engine/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logg := logger.Setup(cfg)

	logg.Info("Starting Dread Engine Worker",
		"environment", cfg.Environment,
		"redis_url", cfg.RedisURL,
		"llm_provider", cfg.LLMProvider,
		"model_name", cfg.ModelName)

	queueClient, err := queue.NewClient(cfg.RedisURL, logg)
	if err != nil {
		logg.Error("Failed to create queue client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := queueClient.Close(); err != nil {
			logg.Error("Error closing queue client", "error", err)
		}
	}()

	actionQueue := queue.NewActionQueue(queueClient)
	logg.Info("Queue service initialized successfully")

	store, err := storage.NewFileStore(cfg.DataDir, logg)
	if err != nil {
		logg.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	logg.Info("Storage service initialized successfully")

	// Initialize LLM service
	var llmService services.LLMService
	var imageService services.ImageService
	switch strings.ToLower(cfg.LLMProvider) {
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			logg.Error("Anthropic API key is required when using anthropic provider")
			os.Exit(1)
		}
		llmService = services.NewAnthropicService(cfg.AnthropicAPIKey, cfg.ModelName, logg)
		logg.Info("Using Anthropic LLM provider")
	case "venice":
		if cfg.VeniceAPIKey == "" {
			logg.Error("Venice API key is required when using venice provider")
			os.Exit(1)
		}
		venice := services.NewVeniceService(cfg.VeniceAPIKey, cfg.ModelName, cfg.ImageModel)
		llmService = venice
		if cfg.ImageModel != "" {
			imageService = venice
		}
		logg.Info("Using Venice LLM provider")
	case "gemini":
		if cfg.GeminiAPIKey == "" {
			logg.Error("Gemini API key is required when using gemini provider")
			os.Exit(1)
		}
		gemini, err := services.NewGeminiService(context.Background(), cfg.GeminiAPIKey, cfg.ModelName)
		if err != nil {
			logg.Error("Failed to create Gemini service", "error", err)
			os.Exit(1)
		}
		defer gemini.Close()
		llmService = gemini
		logg.Info("Using Gemini LLM provider")
	default:
		logg.Error("Invalid LLM provider specified", "provider", cfg.LLMProvider, "supported", []string{"anthropic", "venice", "gemini"})
		os.Exit(1)
	}

	initCtx, initCancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer initCancel()
	if err := llmService.InitModel(initCtx, cfg.ModelName); err != nil {
		logg.Error("Failed to initialize LLM model", "error", err, "model", cfg.ModelName)
		os.Exit(1)
	}
	logg.Info("LLM service initialized successfully", "model", cfg.ModelName)

	orchestrator := engine.NewOrchestrator(store, llmService, logg)
	if imageService != nil {
		images, err := services.NewImageStore(cfg.DataDir)
		if err != nil {
			logg.Error("Failed to initialize image store", "error", err)
			os.Exit(1)
		}
		orchestrator.ImageGen = imageService
		orchestrator.Images = images
		logg.Info("Scene illustration enabled", "image_model", cfg.ImageModel)
	}

	w := worker.New(actionQueue, orchestrator, queueClient.GetRedisClient(), logg, cfg.WorkerID)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := w.Start(); err != nil {
			logg.Error("Worker error", "error", err)
			os.Exit(1)
		}
	}()

	logg.Info("Worker started, waiting for requests...")

	<-quit
	logg.Info("Worker shutdown signal received")

	w.Stop()

	// Give worker time to finish the current turn
	time.Sleep(2 * time.Second)

	logg.Info("Worker exited")
}
