package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	APIPort            string
	CorsAllowedOrigins string // Comma-separated allowed origins (empty = *, dev mode)

	// Database
	DatabaseURL string

	// Redis (optional — empty disables the cache fast path)
	RedisURL string

	// Supabase
	SupabaseURL           string
	SupabaseServiceKey    string
	SupabaseStorageBucket string

	// Google Cloud TTS
	GoogleTTSKey string

	// Gemini (preferred speech markup generator)
	GeminiKey string

	// OpenAI (speech markup fallback when Gemini key is not set)
	OpenAIKey string

	// Voices
	VoiceTablePath string // Optional YAML override for the voice prefix table

	// Pipeline
	TTSMaxWorkers int
	TTSRateLimit  float64 // Provider calls per second (0 = unlimited)
	TTSMaxRetries int
	CacheTTL      time.Duration
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignore error in production)
	_ = godotenv.Load()

	cfg := &Config{
		APIPort:               getEnv("API_PORT", "8080"),
		CorsAllowedOrigins:    getEnv("CORS_ALLOWED_ORIGINS", ""),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		RedisURL:              getEnv("REDIS_URL", ""),
		SupabaseURL:           getEnv("SUPABASE_URL", ""),
		SupabaseServiceKey:    getEnv("SUPABASE_SERVICE_KEY", ""),
		SupabaseStorageBucket: getEnv("SUPABASE_STORAGE_BUCKET", "audio"),
		GoogleTTSKey:          getEnv("GOOGLE_TTS_API_KEY", ""),
		GeminiKey:             getEnv("GEMINI_API_KEY", ""),
		OpenAIKey:             getEnv("OPENAI_API_KEY", ""),
		VoiceTablePath:        getEnv("VOICE_TABLE_PATH", ""),
		TTSMaxWorkers:         getEnvInt("TTS_MAX_WORKERS", 2),
		TTSRateLimit:          getEnvFloat("TTS_RATE_LIMIT", 4.0),
		TTSMaxRetries:         getEnvInt("TTS_MAX_RETRIES", 2),
		CacheTTL:              getEnvDuration("CACHE_TTL", 24*time.Hour),
	}

	// Validate required fields
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.GoogleTTSKey == "" {
		return nil, fmt.Errorf("GOOGLE_TTS_API_KEY is required")
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

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		i, err := strconv.Atoi(value)
		if err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		f, err := strconv.ParseFloat(value, 64)
		if err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err == nil {
			return d
		}
	}
	return defaultValue
}
