package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/database"
	"github.com/stemsi/exstem-quiz/internal/handler"
	"github.com/stemsi/exstem-quiz/internal/logger"
	"github.com/stemsi/exstem-quiz/internal/middleware"
	"github.com/stemsi/exstem-quiz/internal/progress"
	"github.com/stemsi/exstem-quiz/internal/repository"
	"github.com/stemsi/exstem-quiz/internal/router"
	"github.com/stemsi/exstem-quiz/internal/service"
	"github.com/stemsi/exstem-quiz/internal/validator"
	"github.com/stemsi/exstem-quiz/internal/worker"
)

// stores bundles the backend-specific repositories and event sink.
type stores struct {
	quizzes   repository.QuizRepo
	questions repository.QuestionRepo
	attempts  repository.AttemptRepo
	events    worker.EventSink
	close     func()
}

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreBackend).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Quiz")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Connect to the Store ──────────────────────────────────────────
	st := openStores(ctx, cfg, log)
	defer st.close()

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	catalogService := service.NewCatalogService(st.quizzes, st.questions, rdb, log)
	attemptService := service.NewAttemptService(st.attempts, catalogService, log)
	integrityService := service.NewIntegrityService(rdb, log)
	progressStore := progress.NewStore(rdb, cfg.ProgressTTL)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentQuiz: handler.NewStudentQuizHandler(catalogService, attemptService),
		Session:     handler.NewSessionHandler(catalogService, attemptService, integrityService, progressStore, cfg, log),
		Monitor:     handler.NewMonitorHandler(catalogService, integrityService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	integrityWorker := worker.NewIntegrityWorker(st.events, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		integrityWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	sessionLimiter := middleware.NewRateLimiter(30, time.Minute, ctx.Done())
	r := router.SetupRouter(authService, handlers, sessionLimiter, cfg)

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

	// 1. Stop accepting new HTTP requests. Open sessions get the completion
	// delay to finish their final writes.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second+cfg.CompletionDelay)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// openStores connects the configured backend and builds its repositories.
func openStores(ctx context.Context, cfg *config.Config, log zerolog.Logger) *stores {
	switch cfg.StoreBackend {
	case config.StoreBackendMongo:
		db, err := database.NewMongoDatabase(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to MongoDB")
		}
		attempts := repository.NewMongoAttemptRepository(db)
		if err := attempts.EnsureIndexes(ctx); err != nil {
			log.Fatal().Err(err).Msg("Failed to create attempt indexes")
		}
		return &stores{
			quizzes:   repository.NewMongoQuizRepository(db),
			questions: repository.NewMongoQuestionRepository(db),
			attempts:  attempts,
			events:    worker.NewMongoEventSink(db),
			close: func() {
				disconnectCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = db.Client().Disconnect(disconnectCtx)
			},
		}

	case config.StoreBackendPostgres:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		return &stores{
			quizzes:   repository.NewQuizRepository(pool),
			questions: repository.NewQuestionRepository(pool),
			attempts:  repository.NewAttemptRepository(pool),
			events:    worker.NewPostgresEventSink(pool),
			close:     pool.Close,
		}

	default:
		log.Fatal().Str("store", cfg.StoreBackend).Msg("Unknown STORE_BACKEND")
		return nil
	}
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
