package domain

import "time"

// EvaluationResult is the persisted outcome for one RequestID.
// Written exactly once (upsert keyed on RequestID) and immutable afterwards.
type EvaluationResult struct {
	RequestID    string    `json:"request_id" db:"request_id"`
	JobID        string    `json:"job_id" db:"job_id"`
	Score        float64   `json:"score" db:"score"`
	Feedback     string    `json:"feedback" db:"feedback"`
	WhatChanged  []string  `json:"what_changed"`
	PracticeRule string    `json:"practice_rule" db:"practice_rule"`
	DurationMs   int64     `json:"duration_ms" db:"duration_ms"`
	TokensUsed   *int      `json:"tokens_used,omitempty" db:"tokens_used"`
	Degraded     bool      `json:"degraded,omitempty" db:"degraded"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// Validate checks result bounds before the worker persists it.
func (r *EvaluationResult) Validate() error {
	if r.RequestID == "" {
		return NewPermanentError("invalid_result", "result missing request_id")
	}
	if r.Score < 0 || r.Score > 100 {
		return NewPermanentError("invalid_result", "score out of [0,100] bounds")
	}
	if r.Feedback == "" {
		return NewPermanentError("invalid_result", "feedback is required")
	}
	return nil
}
