package breaker

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"

	"github.com/vietddude/grader/internal/core/domain"
)

// State mirrors the breaker's externally visible state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Breaker guards the scoring call site. It trips after a configured
// number of consecutive failures, short-circuits every call while open,
// and lets exactly one probe through after the cooldown. State is
// process-wide per protected dependency and resets on restart.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New creates a breaker that opens at threshold consecutive failures
// and probes again after timeout.
func New(name string, threshold int, timeout time.Duration) *Breaker {
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: 1, // single probe while half-open
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= threshold
		},
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(settings)}
}

// Execute runs fn through the breaker. While open (or while a probe is
// already in flight) it returns a circuit-open error without invoking
// fn; downstream never sees the call.
func (b *Breaker) Execute(fn func() error) error {
	_, err := b.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return domain.NewCircuitOpenError(b.cb.Name() + " circuit is open")
	}
	return err
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// ConsecutiveFailures returns the failure streak since the last success.
func (b *Breaker) ConsecutiveFailures() int {
	return int(b.cb.Counts().ConsecutiveFailures)
}
