package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"quizforge-backend/internal/audio"
	"quizforge-backend/internal/config"
	"quizforge-backend/internal/database"
	"quizforge-backend/internal/extraction"
	"quizforge-backend/internal/generation"
	"quizforge-backend/internal/handlers"
	"quizforge-backend/internal/logger"
	"quizforge-backend/internal/quality"
	"quizforge-backend/internal/repository"
	"quizforge-backend/internal/router"
	"quizforge-backend/internal/services"
	"quizforge-backend/internal/websocket"
	"quizforge-backend/internal/worker"
)

func main() {
	// ──── Step 1: Load Environment Variables ────
	cfg := config.Load()

	log, err := logger.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("starting QuizForge backend", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ──── Step 2: Initialize PostgreSQL Connection Pool ────
	pool, err := database.NewPostgresPool(cfg.DatabaseURL)
	if err != nil {
		log.Fatal("PostgreSQL connection failed", "error", err)
	}
	defer pool.Close()
	log.Info("PostgreSQL connected")

	// ──── Step 3: Initialize Redis Clients ────
	redisClients, err := database.NewRedisClients(cfg.RedisURL)
	if err != nil {
		log.Fatal("Redis connection failed", "error", err)
	}
	defer redisClients.Close()
	log.Info("Redis connected")

	// ──── Step 4: Run Database Migrations ────
	if err := database.RunMigrations(pool, "migrations", log); err != nil {
		log.Fatal("database migration failed", "error", err)
	}

	// ──── Initialize Repositories ────
	questionRepo := repository.NewQuestionRepo(pool)
	answerRepo := repository.NewAnswerRepo(pool)
	runRepo := repository.NewRunRepo(pool)

	// ──── Step 5: Initialize Gemini Client ────
	gemini, err := services.NewGeminiService(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiConcurrentReqs, log)
	if err != nil {
		log.Fatal("Gemini client initialization failed", "error", err)
	}
	defer gemini.Close()
	log.Info("Gemini client initialized", "model", cfg.GeminiModel)

	// ──── Initialize Pipeline ────
	detector := quality.NewDuplicateDetector(questionRepo, answerRepo)
	extractor := extraction.NewExtractor(gemini,
		extraction.WithCallBound(cfg.LLMCallTimeout),
		extraction.WithMaxUnitRunes(cfg.LLMMaxUnitChars),
		extraction.WithLogger(log),
	)
	orchestrator := generation.NewOrchestrator(generation.Deps{
		Store:      questionRepo,
		Duplicates: detector,
		Extractor:  extractor,
		Segmenter:  extraction.NewSegmenter(),
		Log:        log,
		Settings: generation.Settings{
			CallDelay:           cfg.GenerationCallDelay,
			MaxRetries:          cfg.GenerationMaxRetry,
			SimilarityThreshold: cfg.SimilarityThreshold,
			ChunkRunes:          cfg.LLMMaxUnitChars,
		},
	})

	ffmpeg := audio.NewFFmpegTool(log, cfg.FFmpegPath, cfg.FFprobePath, cfg.MediaWorkDir)
	if err := ffmpeg.Available(ctx); err != nil {
		// Byte splitting still works without ffmpeg
		log.Warn("ffmpeg unavailable, audio will be split by size", "error", err)
	}
	transcripts := generation.NewTranscriptService(audio.NewChunker(ffmpeg, log), gemini, cfg.TranscriptionMaxBytes, cfg.AudioOverlap, log)

	youtube := services.NewYouTubeService(log)
	progress := services.NewProgressPublisher(redisClients.PubSub, log)
	queue := worker.NewRedisQueue(redisClients.Jobs)

	// ──── Step 6: Start Job Worker Pool ────
	workerPool := worker.NewPool(worker.Deps{
		Queue:       queue,
		Runs:        runRepo,
		Generator:   orchestrator,
		Transcripts: transcripts,
		Videos:      youtube,
		Publisher:   progress,
		Log:         log,
	}, cfg.WorkerCount, cfg.GenerationMaxRetry)
	workerPool.Start(ctx)

	// ──── Step 7: Start WebSocket Hub ────
	wsHub := websocket.NewHub(redisClients.PubSub, log)

	// ──── Step 8: Start HTTP Server ────
	r := router.New(ctx, router.Handlers{
		Generation: handlers.NewGenerationHandler(runRepo, queue, services.NewFileExtractService(), handlers.GenerationDefaults{
			SimilarityThreshold: cfg.SimilarityThreshold,
			MaxRetries:          cfg.GenerationMaxRetry,
			MaxUploadBytes:      cfg.UploadMaxBytes,
		}, log),
		Transcripts: handlers.NewTranscriptHandler(runRepo, queue, cfg.MediaWorkDir, cfg.UploadMaxBytes, log),
		Questions:   handlers.NewQuestionHandler(questionRepo, answerRepo, detector, cfg.SimilarityThreshold, log),
		Runs:        handlers.NewRunHandler(runRepo),
		WebSocket:   wsHub.HandleWebSocket,
	}, cfg.FrontendURL, cfg.RateLimitPerMinute)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("QuizForge backend ready", "addr", server.Addr, "api", "/api/v1", "ws", "/api/v1/ws")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		workerPool.Stop()
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("server error", "error", err)
	}
}
