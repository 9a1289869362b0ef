package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-academy/internal/config"
	"github.com/stemsi/exstem-academy/internal/database"
	"github.com/stemsi/exstem-academy/internal/handler"
	"github.com/stemsi/exstem-academy/internal/logger"
	"github.com/stemsi/exstem-academy/internal/middleware"
	"github.com/stemsi/exstem-academy/internal/repository"
	"github.com/stemsi/exstem-academy/internal/router"
	"github.com/stemsi/exstem-academy/internal/scheduler"
	"github.com/stemsi/exstem-academy/internal/service"
	"github.com/stemsi/exstem-academy/internal/validator"
	"github.com/stemsi/exstem-academy/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Academy")

	// ─── Initialize Validator ──────────────────────────────────────────
	if err := validator.Setup(); err != nil {
		log.Fatal().Err(err).Msg("Failed to set up validator")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Open Test Catalog & Result Store ──────────────────────────────
	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open store")
	}
	defer st.close()

	tests := st.tests
	var (
		queue      *worker.ResultQueue
		reconciler service.Reconciler
		queueDepth handler.QueueDepth
	)

	// ─── Connect to Redis (cache + reconciliation queue) ───────────────
	if cfg.UsesRedis() {
		rdb, err := database.NewRedisClient(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		defer rdb.Close()

		cached := repository.NewCachedTestCatalog(st.tests, rdb, cfg.CatalogCacheTTL, log)
		// Load every test definition into Redis BEFORE accepting traffic.
		if err := cached.Warm(ctx); err != nil {
			log.Warn().Err(err).Msg("Cache prewarm failed")
		}
		tests = cached

		queue = worker.NewResultQueue(rdb)
		reconciler = queue
		queueDepth = queue
	} else {
		log.Warn().Msg("Redis disabled: no test cache, unpersisted results are only logged")
	}

	// ─── Initialize Services ──────────────────────────────────────────
	identity := service.NewIdentityService(cfg)
	appender := service.NewRetryingResultStore(st.results, reconciler, cfg.AppendRetries, cfg.AppendRetryDelay, log)
	assessments := service.NewAssessmentService(tests, st.results, appender, scheduler.NewTicker(), service.SessionSettings{
		TickInterval:  cfg.TickInterval,
		AppendTimeout: cfg.AppendTimeout,
		Retention:     cfg.SessionRetention,
	}, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Assessment: handler.NewAssessmentHandler(assessments, log),
		WS:         handler.NewWSHandler(assessments, log, cfg.AllowedOrigins),
		System:     handler.NewSystemHandler(assessments, queueDepth, cfg.StoreDriver, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	workersDone := make(chan struct{})

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerMinute, time.Minute)
	go limiter.Run(workerCtx)
	go assessments.StartJanitor(workerCtx)

	if queue != nil {
		resultWorker := worker.NewResultWorker(queue, st.results, log)
		go func() {
			resultWorker.Start(workerCtx)
			close(workersDone)
		}()
	} else {
		close(workersDone)
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(identity, limiter, handlers, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
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

	// 2. Close live sessions; their tickers stop and watchers are released.
	assessments.Shutdown()

	// 3. Stop background workers and wait for the result queue to flush.
	workerCancel()
	select {
	case <-workersDone:
	case <-time.After(5 * time.Second):
		log.Warn().Msg("Result worker did not stop in time")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
