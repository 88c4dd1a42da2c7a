package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/alert"
	"github.com/stemsi/exstem-proctor/internal/apiclient"
	"github.com/stemsi/exstem-proctor/internal/capture"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/journal"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/metrics"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/offline"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/session"
	"github.com/stemsi/exstem-proctor/internal/tokenstore"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("api", cfg.APIBaseURL).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis (optional) ───────────────────────────────────
	var rdb *redis.Client
	if cfg.RedisURL != "" {
		var err error
		rdb, err = database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()
	}

	// ─── Connect to PostgreSQL (optional) ──────────────────────────────
	var pool *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		pool, err = database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
	}

	// ─── Token Store & Exam API ────────────────────────────────────────
	tokens, err := tokenstore.New(cfg, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open token store")
	}

	client := apiclient.New(cfg.APIBaseURL, cfg.APITimeout, tokens, log)
	defer client.Close()

	fallback, err := offline.New(cfg.OfflineMode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid offline mode")
	}

	// ─── Journal ───────────────────────────────────────────────────────
	var journalSink session.Journal = journal.Nop{}
	if rdb != nil {
		journalSink = journal.NewPublisher(rdb)
	}

	// ─── Sessions ──────────────────────────────────────────────────────
	hub := alert.NewHub(cfg.AlertDisplay, log)

	frames := session.FrameOptions{MaxAge: cfg.FrameMaxAge, MaxBytes: cfg.MaxFrameBytes}
	if cfg.CaptureDir != "" {
		dir, err := capture.NewDirSource(cfg.CaptureDir, cfg.MaxFrameBytes)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open capture directory")
		}
		frames.Shared = dir
		log.Info().Str("dir", cfg.CaptureDir).Msg("Capturing from directory")
	}

	manager := session.NewManager(
		session.Deps{
			Exams:   client,
			Proctor: client,
			Alerts:  hub,
			Nav:     hub,
			Journal: journalSink,
			Offline: fallback,
		},
		session.Options{
			CaptureInterval: cfg.CaptureInterval,
			UploadTimeout:   cfg.UploadTimeout,
			SubmitTimeout:   cfg.SubmitTimeout,
		},
		frames,
		log,
	)

	// ─── Initialize Handlers ──────────────────────────────────────────
	authService := service.NewAuthService(client, tokens, cfg.TokenProfile, cfg.MaxFrameBytes)

	var history handler.HistoryLister
	var journalRepo *repository.JournalRepository
	if pool != nil {
		journalRepo = repository.NewJournalRepository(pool)
		history = journalRepo
	}

	handlers := &router.Handlers{
		Auth:    handler.NewAuthHandler(authService, log),
		Session: handler.NewSessionHandler(manager, log),
		WS:      handler.NewWSHandler(manager, hub, log, cfg.AllowedOrigins),
		System:  handler.NewSystemHandler(rdb, manager, log),
		History: handler.NewHistoryHandler(history, log),
	}

	limiters := &router.Limiters{
		Auth:   middleware.NewRateLimiter(30, time.Minute, middleware.ByClientIP),
		Frames: middleware.NewRateLimiter(cfg.FramesPerMin, time.Minute, middleware.BySession),
	}
	defer limiters.Auth.Stop()
	defer limiters.Frames.Stop()

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	if rdb != nil && journalRepo != nil {
		alertWorker := worker.NewAlertWorker(journalRepo, rdb, log)
		resultWorker := worker.NewResultWorker(journalRepo, rdb, log)

		workers.Add(2)
		go func() { defer workers.Done(); alertWorker.Start(workerCtx) }()
		go func() { defer workers.Done(); resultWorker.Start(workerCtx) }()
	} else if rdb != nil {
		log.Warn().Msg("DATABASE_URL not set: journal queues fill until a worker drains them")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(tokens, handlers, limiters, metrics.NewRegistry(), cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Abandon open sessions; their loops and uploads stop here.
	manager.CloseAll()

	// 3. Stop background workers and wait for their buffers to flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
