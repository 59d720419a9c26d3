package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	WorkerEnabled      bool
	BackendAPIKey      string // API key for authenticating requests (empty = no auth, dev mode)
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis
	RedisURL string

	// Supabase storage (clip sources + rendered artifacts)
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Veo (Google Gen AI video generation)
	GeminiKey string
	VeoModel  string

	// xAI (Grok Imagine Video — alternate generation provider)
	XAIEnabled bool
	XAIAPIKey  string

	// Default generation provider when a request doesn't name one
	DefaultProvider string // "veo" or "grok"

	// Render engine
	RenderTempDir string
	RenderFPS     int

	// Worker
	MaxConcurrentJobs int
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		WorkerEnabled:         getEnvBool("WORKER_ENABLED", true),
		BackendAPIKey:         getEnv("BACKEND_API_KEY", ""),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", "redis://localhost:6379"),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "clipforge-clips"),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		VeoModel:              getEnv("VEO_MODEL", "veo-3.1-generate-preview"),
		XAIEnabled:            getEnvBool("XAI_VIDEO_ENABLED", false),
		XAIAPIKey:             getEnv("XAI_API_KEY", ""),
		DefaultProvider:       getEnv("DEFAULT_PROVIDER", "veo"),
		RenderTempDir:         getEnv("RENDER_TEMP_DIR", "/tmp/clipforge"),
		RenderFPS:             getEnvInt("RENDER_FPS", 30),
		MaxConcurrentJobs:     getEnvInt("MAX_CONCURRENT_JOBS", 5),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// At least one generation provider must be configured
	if cfg.GeminiKey == "" && cfg.XAIAPIKey == "" {
		return nil, fmt.Errorf("either GEMINI_API_KEY or XAI_API_KEY is required for clip generation")
	}

	if cfg.DefaultProvider != "veo" && cfg.DefaultProvider != "grok" {
		return nil, fmt.Errorf("DEFAULT_PROVIDER must be \"veo\" or \"grok\", got %q", cfg.DefaultProvider)
	}

	if cfg.SupabaseURL == "" || cfg.SupabaseServiceKey == "" {
		return nil, fmt.Errorf("SUPABASE_URL and SUPABASE_SERVICE_KEY are required")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}
