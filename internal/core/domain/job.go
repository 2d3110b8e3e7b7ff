package domain

import "time"

// JobState is the lifecycle state of an evaluation job.
type JobState string

const (
	JobQueued    JobState = "queued"
	JobActive    JobState = "active"
	JobCompleted JobState = "completed"
	JobFailed    JobState = "failed"
)

// Terminal reports whether the state admits no further transitions.
func (s JobState) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is the transient execution vehicle for one EvaluationRequest.
// It is owned by the queue; the worker mutates AttemptsMade/State only
// through the queue's transition operations. The result correlated by
// RequestID is authoritative once it exists, not the job.
type Job struct {
	ID           string            `json:"id"`
	Request      EvaluationRequest `json:"request"`
	State        JobState          `json:"state"`
	AttemptsMade int               `json:"attempts_made"`
	FailedReason string            `json:"failed_reason,omitempty"`
	Result       *EvaluationResult `json:"result,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
	FinishedAt   *time.Time        `json:"finished_at,omitempty"`
}
