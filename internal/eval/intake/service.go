package intake

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
	"github.com/vietddude/grader/internal/eval/metrics"
	"github.com/vietddude/grader/internal/eval/queue"
	"github.com/vietddude/grader/internal/infra/storage"
)

// Status is the caller-visible state of a submission.
type Status string

const (
	StatusCompleted  Status = "completed"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusFailed     Status = "failed"
	StatusNotFound   Status = "not_found"
)

// defaultPollAfter is the suggested poll interval for non-terminal jobs.
const defaultPollAfter = 3 * time.Second

// ledgerReadRetries bounds the re-read of the ledger after the
// completion future fires: the worker writes to the ledger, not into
// the future's payload, so a freshly completed job can race a stale
// read. A few short re-reads close that window without fabricating a
// result when the ledger genuinely lags.
const (
	ledgerReadRetries = 3
	ledgerReadPause   = 50 * time.Millisecond
)

// Outcome is the result of a submission or status check.
type Outcome struct {
	Status       Status
	Result       *domain.EvaluationResult
	JobID        string
	ErrorCode    string
	ErrorMessage string
	PollAfter    time.Duration
}

// Service implements the hybrid sync/async submission protocol: a
// submission returns a final result when the worker finishes within the
// sync wait budget, and degrades to a poll token otherwise.
type Service struct {
	queue       *queue.Queue
	ledger      storage.ResultRepository
	syncTimeout time.Duration
	log         *slog.Logger
}

// NewService creates the intake service.
func NewService(q *queue.Queue, ledger storage.ResultRepository, syncTimeout time.Duration) *Service {
	return &Service{
		queue:       q,
		ledger:      ledger,
		syncTimeout: syncTimeout,
		log:         slog.Default(),
	}
}

// Submit accepts a request, enqueues it, and waits up to the sync
// budget for completion. Validation errors surface synchronously and
// never reach the queue.
func (s *Service) Submit(ctx context.Context, req domain.EvaluationRequest) (*Outcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	// Idempotency short-circuit: an existing result is terminal.
	if cached, err := s.ledger.GetByRequestID(ctx, req.RequestID); err != nil {
		return nil, domain.WrapTransient("ledger_unavailable", "cannot confirm completion", err)
	} else if cached != nil {
		metrics.DuplicateShortCircuits.Inc()
		return &Outcome{Status: StatusCompleted, Result: cached, JobID: cached.JobID}, nil
	}

	// A job carrying a stale failure from a prior run must not be waited
	// on: discard it, enqueue fresh, and hand back a poll token. The
	// worker's ledger guard makes the re-enqueue safe.
	if prev, ok := s.queue.FindByRequestID(req.RequestID); ok && prev.State == domain.JobFailed {
		s.log.Info("Discarding stale failed job before re-enqueue",
			"request_id", req.RequestID, "job_id", prev.ID, "reason", prev.FailedReason)
		s.queue.Discard(prev.ID)
		job := s.queue.Enqueue(req)
		metrics.JobsEnqueued.Inc()
		return &Outcome{Status: StatusQueued, JobID: job.ID, PollAfter: defaultPollAfter}, nil
	}

	job := s.queue.Enqueue(req)
	metrics.JobsEnqueued.Inc()

	// Race the job's completion future against the sync wait budget.
	// Timing out is a protocol branch, not a failure; the job runs to a
	// terminal state regardless of whether anyone is still waiting.
	select {
	case <-s.queue.Wait(job.ID):
		return s.resolveFinished(ctx, req.RequestID, job.ID), nil
	case <-time.After(s.syncTimeout):
		return &Outcome{Status: StatusQueued, JobID: job.ID, PollAfter: defaultPollAfter}, nil
	case <-ctx.Done():
		return &Outcome{Status: StatusQueued, JobID: job.ID, PollAfter: defaultPollAfter}, nil
	}
}

// resolveFinished maps a terminal job onto a caller outcome. The ledger
// is authoritative: a persisted result (genuine or fallback) wins over
// whatever the job reports.
func (s *Service) resolveFinished(ctx context.Context, requestID, jobID string) *Outcome {
	for i := 0; i < ledgerReadRetries; i++ {
		result, err := s.ledger.GetByRequestID(ctx, requestID)
		if err != nil {
			// Cannot confirm completion; degrade to the poll path.
			s.log.Warn("Ledger read failed after job completion", "request_id", requestID, "error", err)
			return &Outcome{Status: StatusQueued, JobID: jobID, PollAfter: defaultPollAfter}
		}
		if result != nil {
			return &Outcome{Status: StatusCompleted, Result: result, JobID: jobID}
		}

		if job, ok := s.queue.Get(jobID); ok && job.State == domain.JobFailed {
			return &Outcome{
				Status:       StatusFailed,
				JobID:        jobID,
				ErrorCode:    "evaluation_failed",
				ErrorMessage: "evaluation could not be completed",
			}
		}

		if i < ledgerReadRetries-1 {
			time.Sleep(ledgerReadPause)
		}
	}

	// Completed but not yet visible in the ledger: report queued rather
	// than fabricating a result; the poll path will see it shortly.
	return &Outcome{Status: StatusQueued, JobID: jobID, PollAfter: defaultPollAfter}
}

// Status reconciles ledger state with queue state for a poll token.
// The ledger is checked first: queue state may be stale or pruned.
func (s *Service) Status(ctx context.Context, jobID string) (*Outcome, error) {
	job, ok := s.queue.Get(jobID)
	if !ok {
		// Queue retention is bounded; a completed job may have been
		// pruned while its result lives on. Not-found is reserved for
		// jobs with no trace in either the queue or the ledger.
		result, err := s.ledger.GetByJobID(ctx, jobID)
		if err != nil {
			s.log.Warn("Ledger read failed for pruned job", "job_id", jobID, "error", err)
			return &Outcome{Status: StatusProcessing, JobID: jobID, PollAfter: defaultPollAfter}, nil
		}
		if result != nil {
			return &Outcome{Status: StatusCompleted, Result: result, JobID: jobID}, nil
		}
		return &Outcome{Status: StatusNotFound, JobID: jobID}, nil
	}

	result, err := s.ledger.GetByRequestID(ctx, job.Request.RequestID)
	if err != nil {
		// Cannot confirm either way; tell the caller to poll again.
		s.log.Warn("Ledger read failed during status poll", "job_id", jobID, "error", err)
		return &Outcome{Status: StatusProcessing, JobID: jobID, PollAfter: defaultPollAfter}, nil
	}
	if result != nil {
		return &Outcome{Status: StatusCompleted, Result: result, JobID: jobID}, nil
	}

	switch job.State {
	case domain.JobFailed:
		return &Outcome{
			Status:       StatusFailed,
			JobID:        jobID,
			ErrorCode:    "evaluation_failed",
			ErrorMessage: job.FailedReason,
		}, nil
	case domain.JobActive:
		return &Outcome{Status: StatusProcessing, JobID: jobID, PollAfter: defaultPollAfter}, nil
	case domain.JobCompleted:
		// Terminal in the queue but not yet visible in the ledger.
		return &Outcome{Status: StatusProcessing, JobID: jobID, PollAfter: defaultPollAfter}, nil
	default:
		return &Outcome{Status: StatusQueued, JobID: jobID, PollAfter: defaultPollAfter}, nil
	}
}
