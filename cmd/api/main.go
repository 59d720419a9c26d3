package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/clipforge/clipforge/internal/api"
	"github.com/clipforge/clipforge/internal/config"
	"github.com/clipforge/clipforge/internal/db"
	"github.com/clipforge/clipforge/internal/ffmpeg"
	"github.com/clipforge/clipforge/internal/logging"
	"github.com/clipforge/clipforge/internal/queue"
	"github.com/clipforge/clipforge/internal/render"
	"github.com/clipforge/clipforge/internal/services"
	"github.com/clipforge/clipforge/internal/storage"
	"github.com/clipforge/clipforge/internal/worker"
)

func main() {
	log.Println("Starting ClipForge API...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logging.Init(os.Getenv("LOG_VERBOSE") == "true")
	logger := logging.NewLogger()

	// Connect to database
	database, err := db.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()
	log.Println("Connected to database")

	// Connect to Redis queue
	q, err := queue.New(cfg.RedisURL)
	if err != nil {
		log.Fatalf("Failed to connect to queue: %v", err)
	}
	defer q.Close()
	log.Println("Connected to Redis queue")

	// Initialize storage
	stor := storage.New(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseStorageBucket)
	log.Println("Initialized Supabase storage")

	// Create API handler
	handler := api.NewHandler(database, q, stor, cfg.DefaultProvider)
	router := api.NewRouter(handler, api.RouterConfig{
		BackendAPIKey:      cfg.BackendAPIKey,
		CorsAllowedOrigins: cfg.CorsAllowedOrigins,
	})

	if cfg.BackendAPIKey != "" {
		log.Println("API key authentication enabled")
	} else {
		log.Println("WARNING: No BACKEND_API_KEY set — API is unprotected (dev mode)")
	}

	// Start HTTP server
	server := &http.Server{
		Addr:    ":" + cfg.APIPort,
		Handler: router,
	}

	// Start worker if enabled
	var workerCancel context.CancelFunc
	if cfg.WorkerEnabled {
		log.Println("Worker enabled, starting background processing...")

		ffmpegExec, err := ffmpeg.New(logger)
		if err != nil {
			log.Fatalf("Failed to initialize ffmpeg: %v", err)
		}

		compositor, err := render.NewCompositor()
		if err != nil {
			log.Fatalf("Failed to initialize compositor: %v", err)
		}

		sinkFactory, err := render.NewRecordSinkFactory(ffmpegExec, cfg.RenderTempDir, logger)
		if err != nil {
			log.Fatalf("Failed to initialize capture sink: %v", err)
		}

		loader := render.NewHTTPLoader(cfg.RenderTempDir, logger)
		decoder := render.NewFFmpegDecoder(ffmpegExec)
		resolver := &worker.ClipResolver{DB: database, Storage: stor}
		engine := render.NewEngine(loader, decoder, compositor, sinkFactory, resolver, cfg.RenderFPS, logger)

		// Generation providers — Veo when a Gemini key is present, Grok when
		// explicitly enabled
		var veoSvc *services.VeoService
		if cfg.GeminiKey != "" {
			veoSvc = services.NewVeoService(cfg.GeminiKey, cfg.VeoModel)
			log.Printf("Veo clip generation enabled (model: %s)", cfg.VeoModel)
		}

		var grokSvc *services.GrokVideoService
		if cfg.XAIEnabled && cfg.XAIAPIKey != "" {
			grokSvc = services.NewGrokVideoService(cfg.XAIAPIKey)
			log.Println("xAI Grok Imagine Video generation enabled")
		}

		w := worker.New(database, q, stor, veoSvc, grokSvc, ffmpegExec, engine, loader, cfg.RenderTempDir)

		var workerCtx context.Context
		workerCtx, workerCancel = context.WithCancel(context.Background())
		go w.Start(workerCtx, cfg.MaxConcurrentJobs)
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

	// Shutdown worker
	if workerCancel != nil {
		workerCancel()
	}

	// Shutdown HTTP server
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server exited")
}
