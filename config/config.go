// Package config loads service settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AI provider names accepted in AI_PROVIDER.
const (
	ProviderOpenAI = "openai"
	ProviderVertex = "vertex"
	ProviderNone   = "none"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv   string
	LogLevel string
	Port     string

	AIProvider      string
	OpenAIAPIKey    string
	OpenAIModel     string
	OpenAIBaseURL   string
	VertexProjectID string
	VertexRegion    string
	VertexModel     string

	// DatabaseURL selects the Postgres store. Empty means in-memory.
	DatabaseURL      string
	// PayloadCacheSize bounds the download cache in front of Postgres. Zero disables it.
	PayloadCacheSize int
	PayloadCacheTTL  time.Duration

	Workers         int
	QueueSize       int
	MaxUploadBytes  int64
	StepTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Load reads .env files when present, then the environment, and applies defaults.
func Load() (*Config, error) {
	// Missing files are not an error.
	_ = godotenv.Load(".env", ".env.local")
	return fromEnv()
}

func fromEnv() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		LogLevel:         os.Getenv("LOG_LEVEL"),
		Port:             getEnv("PORT", "5000"),
		AIProvider:       strings.ToLower(os.Getenv("AI_PROVIDER")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		OpenAIModel:      getEnv("OPENAI_MODEL", "gpt-4o"),
		OpenAIBaseURL:    getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		VertexProjectID:  os.Getenv("VERTEX_PROJECT_ID"),
		VertexRegion:     getEnv("VERTEX_REGION", "us-central1"),
		VertexModel:      getEnv("VERTEX_MODEL", "gemini-1.5-pro"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		PayloadCacheSize: getEnvInt("PAYLOAD_CACHE_SIZE", 128),
		PayloadCacheTTL:  getEnvDuration("PAYLOAD_CACHE_TTL", 10*time.Minute),
		Workers:          getEnvInt("WORKERS", 4),
		QueueSize:        getEnvInt("QUEUE_SIZE", 64),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 50<<20)),
		StepTimeout:      getEnvDuration("PIPELINE_STEP_TIMEOUT", 2*time.Minute),
		ShutdownTimeout:  getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
	}

	if cfg.AIProvider == "" {
		cfg.AIProvider = ProviderNone
		if cfg.OpenAIAPIKey != "" {
			cfg.AIProvider = ProviderOpenAI
		}
	}

	switch cfg.AIProvider {
	case ProviderNone:
	case ProviderOpenAI:
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER=%s", ProviderOpenAI)
		}
	case ProviderVertex:
		if cfg.VertexProjectID == "" {
			return nil, fmt.Errorf("VERTEX_PROJECT_ID is required when AI_PROVIDER=%s", ProviderVertex)
		}
	default:
		return nil, fmt.Errorf("unknown AI_PROVIDER %q", cfg.AIProvider)
	}

	if cfg.Workers < 1 {
		return nil, fmt.Errorf("WORKERS must be at least 1, got %d", cfg.Workers)
	}
	if cfg.MaxUploadBytes <= 0 {
		return nil, fmt.Errorf("MAX_UPLOAD_BYTES must be positive, got %d", cfg.MaxUploadBytes)
	}

	return cfg, nil
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return ":" + c.Port
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
