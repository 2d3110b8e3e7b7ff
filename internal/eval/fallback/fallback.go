package fallback

import (
	"time"

	"github.com/vietddude/grader/internal/core/domain"
)

// Generator synthesizes a clearly-marked degraded result when the
// resilience layer exhausts retries or the circuit is open. The result
// is persisted and returned exactly as a normal result would be; only
// the Degraded marker distinguishes it.
type Generator struct {
	enabled  bool
	score    float64
	feedback string
}

// New creates a fallback generator.
func New(enabled bool, score float64, feedback string) *Generator {
	return &Generator{enabled: enabled, score: score, feedback: feedback}
}

// Enabled reports whether degraded results may be substituted.
func (g *Generator) Enabled() bool {
	return g.enabled
}

// Generate builds the degraded result for a request.
func (g *Generator) Generate(requestID, jobID string, started time.Time) *domain.EvaluationResult {
	return &domain.EvaluationResult{
		RequestID:    requestID,
		JobID:        jobID,
		Score:        g.score,
		Feedback:     g.feedback,
		WhatChanged:  []string{},
		PracticeRule: "",
		DurationMs:   time.Since(started).Milliseconds(),
		Degraded:     true,
		CreatedAt:    time.Now().UTC(),
	}
}
