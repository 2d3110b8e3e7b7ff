package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vietddude/grader/internal/api"
	"github.com/vietddude/grader/internal/core/config"
	"github.com/vietddude/grader/internal/eval/breaker"
	"github.com/vietddude/grader/internal/eval/fallback"
	"github.com/vietddude/grader/internal/eval/intake"
	"github.com/vietddude/grader/internal/eval/queue"
	"github.com/vietddude/grader/internal/eval/retry"
	"github.com/vietddude/grader/internal/eval/worker"
	redisclient "github.com/vietddude/grader/internal/infra/redis"
	"github.com/vietddude/grader/internal/infra/scoring"
	"github.com/vietddude/grader/internal/infra/storage"
	"github.com/vietddude/grader/internal/infra/storage/memory"
	"github.com/vietddude/grader/internal/infra/storage/postgres"
	"github.com/vietddude/grader/internal/infra/transcribe"
)

// App is the main application struct that wires the evaluation
// pipeline together and manages its lifecycle.
type App struct {
	cfg         *config.AppConfig
	queue       *queue.Queue
	worker      *worker.Worker
	server      *api.Server
	db          *postgres.DB
	redisClient *redisclient.Client
	log         *slog.Logger
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	if cfg.Scoring.URL == "" {
		return nil, fmt.Errorf("scoring.url is required")
	}

	// 1. Idempotency ledger. Postgres when configured, Redis as the
	// lighter alternative, in-memory otherwise.
	var ledger storage.ResultRepository
	var db *postgres.DB
	var redisClient *redisclient.Client
	var err error

	if cfg.Redis.URL != "" {
		redisClient, err = redisclient.NewClient(cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
	}

	switch {
	case cfg.Database.URL != "":
		db, err = postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		ledger = postgres.NewResultRepo(db)
		slog.Info("Using PostgreSQL result store")
	case redisClient != nil:
		ledger = redisClient
		slog.Info("Using Redis result store")
	default:
		ledger = memory.NewResultRepo()
		slog.Info("Using in-memory result store")
	}

	// Cross-process request locks ride on Redis when it is available,
	// regardless of which backend holds the results.
	var locker worker.Locker
	if redisClient != nil {
		locker = redisClient
	}

	// 2. Downstream model clients.
	scorer := scoring.NewClient(cfg.Scoring.URL, cfg.Scoring.APIKey, cfg.Scoring.Timeout.Std())
	transcriber := transcribe.NewClient(cfg.Transcription.URL, cfg.Transcription.APIKey, cfg.Transcription.Timeout.Std())

	// 3. Queue and resilience layer.
	q := queue.New(queue.Config{
		MaxAttempts: cfg.Queue.MaxAttempts,
		BaseDelay:   cfg.Queue.BaseDelay.Std(),
	})
	exec := retry.New(retry.Config{
		MaxAttempts: cfg.Retry.MaxAttempts,
		BaseDelay:   cfg.Retry.BaseDelay.Std(),
		MaxDelay:    cfg.Retry.MaxDelay.Std(),
		Jitter:      cfg.Retry.Jitter == nil || *cfg.Retry.Jitter,
	})
	brk := breaker.New("scoring", cfg.Breaker.Threshold, cfg.Breaker.Timeout.Std())
	fb := fallback.New(cfg.Fallback.Enabled, cfg.Fallback.DefaultScore, cfg.Fallback.DefaultFeedback)

	// 4. Worker and intake protocol.
	wrk := worker.New(worker.Config{
		Queue:       q,
		Ledger:      ledger,
		Scorer:      scorer,
		Transcriber: transcriber,
		Retry:       exec,
		Breaker:     brk,
		Fallback:    fb,
		Locker:      locker,
		Concurrency: cfg.Queue.WorkerConcurrency,
	})
	svc := intake.NewService(q, ledger, cfg.Server.SyncTimeout.Std())

	healthCheck := func(ctx context.Context) error {
		if db != nil {
			if err := db.Health(ctx); err != nil {
				return fmt.Errorf("database: %w", err)
			}
		}
		if redisClient != nil {
			if err := redisClient.Health(ctx); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		return nil
	}

	server := api.NewServer(svc, cfg.Server.Port, cfg.Server.AuthToken, healthCheck)

	return &App{
		cfg:         cfg,
		queue:       q,
		worker:      wrk,
		server:      server,
		db:          db,
		redisClient: redisClient,
		log:         slog.Default(),
	}, nil
}

// Start starts the worker and the HTTP server.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.server.Start(); err != nil {
			a.log.Error("HTTP server failed", "error", err)
		}
	}()

	go func() {
		if err := a.worker.Run(ctx); err != nil && ctx.Err() == nil {
			a.log.Error("Worker stopped unexpectedly", "error", err)
		}
	}()

	a.log.Info("Grader started",
		"port", a.cfg.Server.Port,
		"worker_concurrency", a.cfg.Queue.WorkerConcurrency,
		"fallback_enabled", a.cfg.Fallback.Enabled,
	)
	return nil
}

// Stop shuts down the HTTP server and releases connections.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping grader...")

	if err := a.server.Stop(ctx); err != nil {
		return err
	}
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
	return nil
}
