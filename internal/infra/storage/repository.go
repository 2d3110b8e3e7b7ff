package storage

import (
	"context"

	"github.com/vietddude/grader/internal/core/domain"
)

// ResultRepository is the idempotency ledger: at most one persisted
// EvaluationResult per request ID. GetByRequestID returns (nil, nil)
// when no result exists; a non-nil error means the store could not
// confirm either way and callers must not treat it as "not completed".
type ResultRepository interface {
	// GetByRequestID retrieves the result for a request ID.
	GetByRequestID(ctx context.Context, requestID string) (*domain.EvaluationResult, error)

	// GetByJobID retrieves the result produced by a job ID. Lets the
	// status protocol answer polls for jobs pruned from queue retention.
	GetByJobID(ctx context.Context, jobID string) (*domain.EvaluationResult, error)

	// Upsert writes a result keyed on its request ID (last write wins).
	Upsert(ctx context.Context, result *domain.EvaluationResult) error
}
