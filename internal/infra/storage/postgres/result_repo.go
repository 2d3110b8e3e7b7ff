package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/vietddude/grader/internal/core/domain"
)

// ResultRepo implements storage.ResultRepository using PostgreSQL.
type ResultRepo struct {
	db *DB
}

// NewResultRepo creates a new PostgreSQL result repository.
func NewResultRepo(db *DB) *ResultRepo {
	return &ResultRepo{db: db}
}

type resultRow struct {
	RequestID    string  `db:"request_id"`
	JobID        string  `db:"job_id"`
	Score        float64 `db:"score"`
	Feedback     string  `db:"feedback"`
	WhatChanged  []byte  `db:"what_changed"`
	PracticeRule string  `db:"practice_rule"`
	DurationMs   int64   `db:"duration_ms"`
	TokensUsed   *int    `db:"tokens_used"`
	Degraded     bool    `db:"degraded"`

	CreatedAt sql.NullTime `db:"created_at"`
}

// Upsert writes a result keyed on request_id (last write wins).
func (r *ResultRepo) Upsert(ctx context.Context, result *domain.EvaluationResult) error {
	whatChanged, err := json.Marshal(result.WhatChanged)
	if err != nil {
		return fmt.Errorf("failed to encode what_changed: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO evaluation_results
			(request_id, job_id, score, feedback, what_changed, practice_rule,
			 duration_ms, tokens_used, degraded, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (request_id) DO UPDATE SET
			job_id        = EXCLUDED.job_id,
			score         = EXCLUDED.score,
			feedback      = EXCLUDED.feedback,
			what_changed  = EXCLUDED.what_changed,
			practice_rule = EXCLUDED.practice_rule,
			duration_ms   = EXCLUDED.duration_ms,
			tokens_used   = EXCLUDED.tokens_used,
			degraded      = EXCLUDED.degraded`,
		result.RequestID, result.JobID, result.Score, result.Feedback,
		whatChanged, result.PracticeRule, result.DurationMs,
		result.TokensUsed, result.Degraded, result.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result: %w", err)
	}
	return nil
}

// GetByRequestID retrieves a result, or (nil, nil) when absent.
func (r *ResultRepo) GetByRequestID(ctx context.Context, requestID string) (*domain.EvaluationResult, error) {
	return r.getWhere(ctx, "request_id", requestID)
}

// GetByJobID retrieves the result produced by a job, or (nil, nil).
func (r *ResultRepo) GetByJobID(ctx context.Context, jobID string) (*domain.EvaluationResult, error) {
	return r.getWhere(ctx, "job_id", jobID)
}

func (r *ResultRepo) getWhere(ctx context.Context, column, value string) (*domain.EvaluationResult, error) {
	var row resultRow
	err := r.db.GetContext(ctx, &row, `
		SELECT request_id, job_id, score, feedback, what_changed, practice_rule,
		       duration_ms, tokens_used, degraded, created_at
		FROM evaluation_results
		WHERE `+column+` = $1`, value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result: %w", err)
	}

	var whatChanged []string
	if len(row.WhatChanged) > 0 {
		if err := json.Unmarshal(row.WhatChanged, &whatChanged); err != nil {
			return nil, fmt.Errorf("failed to decode what_changed: %w", err)
		}
	}

	res := &domain.EvaluationResult{
		RequestID:    row.RequestID,
		JobID:        row.JobID,
		Score:        row.Score,
		Feedback:     row.Feedback,
		WhatChanged:  whatChanged,
		PracticeRule: row.PracticeRule,
		DurationMs:   row.DurationMs,
		TokensUsed:   row.TokensUsed,
		Degraded:     row.Degraded,
	}
	if row.CreatedAt.Valid {
		res.CreatedAt = row.CreatedAt.Time
	}
	return res, nil
}
