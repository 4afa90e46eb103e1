package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Robin318-Gamer/StoryReader/internal/api"
	"github.com/Robin318-Gamer/StoryReader/internal/auth"
	"github.com/Robin318-Gamer/StoryReader/internal/cache"
	"github.com/Robin318-Gamer/StoryReader/internal/config"
	"github.com/Robin318-Gamer/StoryReader/internal/db"
	"github.com/Robin318-Gamer/StoryReader/internal/pipeline"
	"github.com/Robin318-Gamer/StoryReader/internal/services"
	"github.com/Robin318-Gamer/StoryReader/internal/storage"
)

func main() {
	log.Println("Starting StoryReader API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Result cache — redis fast path is optional
	resultCache, err := cache.New(cfg.RedisURL, database, cfg.CacheTTL)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer resultCache.Close()
	if cfg.RedisURL != "" {
		log.Println("Connected to Redis cache")
	} else {
		log.Println("Redis not configured, cache uses database only")
	}

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Token verification against Supabase Auth
	verifier := auth.New(cfg.SupabaseURL, cfg.SupabaseServiceKey)

	// Voice table — optional YAML override
	voices, err := services.LoadVoiceTable(cfg.VoiceTablePath)
	if err != nil {
		log.Fatalf("Failed to load voice table: %v", err)
	}

	// Synthesis provider
	ttsSvc := services.NewGoogleTTSService(cfg.GoogleTTSKey, voices)

	// Speech markup generator — Gemini preferred, OpenAI as fallback
	var markupSvc services.MarkupService
	if cfg.GeminiKey != "" {
		markupSvc = services.NewGeminiMarkupService(cfg.GeminiKey, voices)
		log.Println("Markup provider: Gemini")
	} else if cfg.OpenAIKey != "" {
		markupSvc = services.NewOpenAIMarkupService(cfg.OpenAIKey, voices)
		log.Println("Markup provider: OpenAI")
	} else {
		log.Println("No markup provider configured — useSSML requests fall back to plain text")
	}

	orchestrator := pipeline.NewOrchestrator(
		services.NewChunker(),
		ttsSvc,
		stor,
		database,
		resultCache,
		pipeline.Options{
			MaxWorkers: cfg.TTSMaxWorkers,
			RateLimit:  cfg.TTSRateLimit,
			MaxRetries: cfg.TTSMaxRetries,
		},
	)

	// Create API handler
	handler := api.NewHandler(orchestrator, markupSvc, database, voices)
	router := api.NewRouter(handler, verifier, api.RouterConfig{
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Printf("API server listening on :%s", cfg.APIPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
