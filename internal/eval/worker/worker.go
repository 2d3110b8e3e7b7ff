package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
	"github.com/vietddude/grader/internal/eval/breaker"
	"github.com/vietddude/grader/internal/eval/fallback"
	"github.com/vietddude/grader/internal/eval/metrics"
	"github.com/vietddude/grader/internal/eval/queue"
	"github.com/vietddude/grader/internal/eval/retry"
	"github.com/vietddude/grader/internal/infra/scoring"
	"github.com/vietddude/grader/internal/infra/storage"
	"github.com/vietddude/grader/internal/infra/transcribe"
)

// defaultLockTTL bounds how long a crashed worker can hold a request
// lock. A live worker refreshes the lock while it keeps processing.
const defaultLockTTL = 5 * time.Minute

// Locker guards a request across processes sharing the store.
// Optional: single-process deployments run without one.
type Locker interface {
	AcquireLock(ctx context.Context, requestID string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, requestID string) error
	RefreshLock(ctx context.Context, requestID string, ttl time.Duration) error
}

// Config wires the worker's collaborators.
type Config struct {
	Queue       *queue.Queue
	Ledger      storage.ResultRepository
	Scorer      scoring.Scorer
	Transcriber transcribe.Transcriber
	Retry       *retry.Executor
	Breaker     *breaker.Breaker
	Fallback    *fallback.Generator
	Locker      Locker        // may be nil
	LockTTL     time.Duration // defaults to 5m
	Concurrency int           // defaults to 1
}

// Worker consumes the job queue one job at a time per slot: re-checks
// idempotency, transcribes audio when needed, invokes scoring through
// the retry executor and circuit breaker, persists the result, and
// reports the outcome back to the queue.
type Worker struct {
	cfg Config
	log *slog.Logger
}

// New creates a worker.
func New(cfg Config) *Worker {
	if cfg.LockTTL == 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.Concurrency == 0 {
		cfg.Concurrency = 1
	}
	return &Worker{cfg: cfg, log: slog.Default()}
}

// Run consumes jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	for i := 0; i < w.cfg.Concurrency; i++ {
		go w.consume(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (w *Worker) consume(ctx context.Context) {
	for {
		job, err := w.cfg.Queue.Claim(ctx)
		if err != nil {
			return // ctx cancelled
		}
		w.handle(ctx, job)

		queued, _ := w.cfg.Queue.Depth()
		metrics.QueueDepth.Set(float64(queued))
		metrics.BreakerState.Set(breakerGauge(w.cfg.Breaker.State()))
	}
}

// handle runs one claimed attempt and reports the outcome to the queue.
func (w *Worker) handle(ctx context.Context, job *domain.Job) {
	result, err := w.process(ctx, job)
	if err == nil {
		w.cfg.Queue.Complete(job.ID, result)
		if result.Degraded {
			metrics.JobsCompleted.WithLabelValues("fallback").Inc()
		} else {
			metrics.JobsCompleted.WithLabelValues("completed").Inc()
		}
		return
	}

	kind := domain.KindOf(err)
	retryable := kind == domain.KindTransient || kind == domain.KindCircuitOpen
	w.log.Warn("Job attempt failed",
		"job_id", job.ID,
		"request_id", job.Request.RequestID,
		"attempt", job.AttemptsMade,
		"kind", string(kind),
		"error", err,
	)
	w.cfg.Queue.Fail(job.ID, err.Error(), retryable)

	if j, ok := w.cfg.Queue.Get(job.ID); ok && j.State == domain.JobFailed {
		metrics.JobsCompleted.WithLabelValues("failed").Inc()
	}
}

// process executes the worker algorithm for one claimed job.
func (w *Worker) process(ctx context.Context, job *domain.Job) (*domain.EvaluationResult, error) {
	requestID := job.Request.RequestID
	started := time.Now()

	// 1. Idempotency guard: someone may have finished this request while
	// the job sat in the queue (or on a previous attempt that crashed
	// after persisting). Never call the model twice for one request.
	if cached, err := w.cfg.Ledger.GetByRequestID(ctx, requestID); err != nil {
		return nil, domain.WrapTransient("ledger_unavailable", "cannot confirm completion", err)
	} else if cached != nil {
		w.log.Info("Request already processed, returning cached result",
			"request_id", requestID, "job_id", job.ID)
		metrics.DuplicateShortCircuits.Inc()
		return cached, nil
	}

	// 2. Cross-process guard when a shared lock service is configured.
	// The lock is refreshed while processing runs so a model call longer
	// than the TTL does not let another worker in.
	if w.cfg.Locker != nil {
		ok, err := w.cfg.Locker.AcquireLock(ctx, requestID, w.cfg.LockTTL)
		if err != nil {
			return nil, domain.WrapTransient("lock_unavailable", "cannot acquire processing lock", err)
		}
		if !ok {
			return nil, domain.NewTransientError("locked_elsewhere", "request is being processed by another worker")
		}
		defer func() {
			if err := w.cfg.Locker.ReleaseLock(context.WithoutCancel(ctx), requestID); err != nil {
				w.log.Warn("Failed to release processing lock", "request_id", requestID, "error", err)
			}
		}()
		stopRefresh := make(chan struct{})
		go w.refreshLock(ctx, requestID, stopRefresh)
		defer close(stopRefresh)
	}

	// 3. Resolve content, transcribing audio when that is the input.
	content := job.Request.Text
	if content == "" && job.Request.AudioURL != "" {
		transcript, err := w.transcribeWithRetry(ctx, job.Request.AudioURL)
		if err != nil {
			return nil, fmt.Errorf("transcription failed: %w", err)
		}
		content = transcript
	}
	if content == "" {
		return nil, domain.NewPermanentError("empty_transcript", "no content to evaluate after transcription")
	}

	// 4. Score through the resilience layer.
	scored, err := w.scoreWithRetry(ctx, requestID, content, job.Request.Metadata)
	if err != nil {
		if fb := w.maybeFallback(err, requestID, job.ID, started); fb != nil {
			if perr := w.cfg.Ledger.Upsert(ctx, fb); perr != nil {
				return nil, domain.WrapTransient("ledger_write_failed", "persist fallback result", perr)
			}
			w.log.Warn("Returning degraded fallback result",
				"request_id", requestID, "job_id", job.ID, "cause", err)
			return fb, nil
		}
		return nil, err
	}

	// 5. Validate and persist.
	result := &domain.EvaluationResult{
		RequestID:    requestID,
		JobID:        job.ID,
		Score:        scored.Score,
		Feedback:     scored.Feedback,
		WhatChanged:  scored.WhatChanged,
		PracticeRule: scored.PracticeRule,
		DurationMs:   time.Since(started).Milliseconds(),
		TokensUsed:   scored.TokensUsed,
		CreatedAt:    time.Now().UTC(),
	}
	if err := result.Validate(); err != nil {
		return nil, fmt.Errorf("scoring service returned invalid result: %w", err)
	}
	if err := w.cfg.Ledger.Upsert(ctx, result); err != nil {
		return nil, domain.WrapTransient("ledger_write_failed", "persist result", err)
	}

	w.log.Info("Evaluation completed",
		"request_id", requestID,
		"job_id", job.ID,
		"score", result.Score,
		"duration_ms", result.DurationMs,
	)
	return result, nil
}

// refreshLock extends the processing lock at half-TTL intervals until
// processing finishes or ctx is cancelled.
func (w *Worker) refreshLock(ctx context.Context, requestID string, stop <-chan struct{}) {
	ticker := time.NewTicker(w.cfg.LockTTL / 2)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.cfg.Locker.RefreshLock(ctx, requestID, w.cfg.LockTTL); err != nil {
				w.log.Warn("Failed to refresh processing lock", "request_id", requestID, "error", err)
			}
		}
	}
}

func (w *Worker) transcribeWithRetry(ctx context.Context, audioURL string) (string, error) {
	var transcript string
	start := time.Now()
	err := w.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		transcript, err = w.cfg.Transcriber.Transcribe(ctx, audioURL)
		return err
	}, domain.Retryable)
	metrics.ModelCallLatency.WithLabelValues("transcription").Observe(time.Since(start).Seconds())
	return transcript, err
}

// scoreWithRetry invokes the scoring call through the retry executor
// wrapped by the circuit breaker. The breaker guards only this call
// site so its failure signal reflects scoring health, not incidental
// queue or store trouble.
func (w *Worker) scoreWithRetry(ctx context.Context, requestID, content string, metadata map[string]string) (*scoring.Response, error) {
	var resp *scoring.Response
	start := time.Now()
	err := w.cfg.Retry.Do(ctx, func(ctx context.Context) error {
		return w.cfg.Breaker.Execute(func() error {
			var err error
			resp, err = w.cfg.Scorer.Score(ctx, &scoring.Request{
				RequestID: requestID,
				Content:   content,
				Metadata:  metadata,
			})
			return err
		})
	}, domain.Retryable)
	metrics.ModelCallLatency.WithLabelValues("scoring").Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// maybeFallback converts exhausted-retries and circuit-open scoring
// failures into a degraded result when fallback is enabled. Auth and
// permanent rejections are never masked.
func (w *Worker) maybeFallback(err error, requestID, jobID string, started time.Time) *domain.EvaluationResult {
	if w.cfg.Fallback == nil || !w.cfg.Fallback.Enabled() {
		return nil
	}
	switch domain.KindOf(err) {
	case domain.KindTransient, domain.KindCircuitOpen, domain.KindExhausted:
		return w.cfg.Fallback.Generate(requestID, jobID, started)
	default:
		return nil
	}
}

func breakerGauge(s breaker.State) float64 {
	switch s {
	case breaker.StateOpen:
		return 2
	case breaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
