package config

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the API and the worker.
// Values come from the environment, with an optional .env file for
// local development.
type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379"`
	DataDir  string `env:"DATA_DIR" envDefault:"./data"`

	LLMProvider string `env:"LLM_PROVIDER" envDefault:"anthropic"`
	ModelName   string `env:"MODEL_NAME"`

	AnthropicAPIKey string `env:"ANTHROPIC_API_KEY"`
	VeniceAPIKey    string `env:"VENICE_API_KEY"`
	GeminiAPIKey    string `env:"GEMINI_API_KEY"`

	// Image generation is optional. When ImageModel is empty the worker
	// skips the scene illustration phase entirely.
	ImageModel string `env:"IMAGE_MODEL"`

	WorkerID string `env:"WORKER_ID"`
}

// Load reads configuration from a .env file (if present) and the
// environment. Environment variables win over .env values.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured log level string to a slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
