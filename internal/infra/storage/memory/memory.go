package memory

import (
	"context"
	"sync"

	"github.com/vietddude/grader/internal/core/domain"
)

// ResultRepo is an in-memory idempotency ledger for tests and
// single-process deployments without external storage.
type ResultRepo struct {
	mu      sync.RWMutex
	results map[string]*domain.EvaluationResult
}

// NewResultRepo creates an empty in-memory result repository.
func NewResultRepo() *ResultRepo {
	return &ResultRepo{results: make(map[string]*domain.EvaluationResult)}
}

// GetByRequestID retrieves a result, or (nil, nil) when absent.
func (r *ResultRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.EvaluationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[requestID]
	if !ok {
		return nil, nil
	}
	// Return a copy so callers cannot mutate the stored record.
	cp := *res
	return &cp, nil
}

// GetByJobID retrieves the result produced by a job, or (nil, nil).
func (r *ResultRepo) GetByJobID(ctx context.Context, jobID string) (*domain.EvaluationResult, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, res := range r.results {
		if res.JobID == jobID {
			cp := *res
			return &cp, nil
		}
	}
	return nil, nil
}

// Upsert stores a result keyed on its request ID.
func (r *ResultRepo) Upsert(ctx context.Context, result *domain.EvaluationResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *result
	r.results[result.RequestID] = &cp
	return nil
}
