package domain

import (
	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// EvaluationRequest is a caller-submitted response to evaluate.
// RequestID is the idempotency key: re-submitting the same RequestID
// must never produce two distinct results.
type EvaluationRequest struct {
	RequestID string            `json:"request_id" validate:"required,min=1,max=128"`
	Text      string            `json:"text,omitempty"`
	AudioURL  string            `json:"audio_url,omitempty" validate:"omitempty,url"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Validate checks the request shape before it is allowed near the queue.
// Exactly one of Text/AudioURL must be the input source at enqueue time.
func (r *EvaluationRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return NewValidationError("invalid_request", err.Error())
	}
	if r.Text == "" && r.AudioURL == "" {
		return NewValidationError("missing_input", "one of text or audio_url is required")
	}
	if r.Text != "" && r.AudioURL != "" {
		return NewValidationError("ambiguous_input", "text and audio_url are mutually exclusive")
	}
	return nil
}
