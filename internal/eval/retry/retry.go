package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"time"
)

// minDelay is the floor applied after jitter so a retry never fires
// hot on the heels of a failure.
const minDelay = 100 * time.Millisecond

// jitterFraction is the symmetric jitter band applied to each delay.
const jitterFraction = 0.2

// Config defines retry behavior for one protected operation.
type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	Jitter      bool
}

// DefaultConfig provides sensible defaults for model calls.
var DefaultConfig = Config{
	MaxAttempts: 3,
	BaseDelay:   1 * time.Second,
	MaxDelay:    10 * time.Second,
	Multiplier:  2.0,
	Jitter:      true,
}

// Executor runs operations with bounded attempts and exponential
// backoff. It is generic over the error taxonomy: whether an error is
// worth another attempt is the caller's policy, not the executor's.
type Executor struct {
	cfg Config
}

// New creates an executor, filling zero config fields from defaults.
func New(cfg Config) *Executor {
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = DefaultConfig.MaxAttempts
	}
	if cfg.BaseDelay == 0 {
		cfg.BaseDelay = DefaultConfig.BaseDelay
	}
	if cfg.MaxDelay == 0 {
		cfg.MaxDelay = DefaultConfig.MaxDelay
	}
	if cfg.Multiplier == 0 {
		cfg.Multiplier = DefaultConfig.Multiplier
	}
	return &Executor{cfg: cfg}
}

// Do executes op, retrying while shouldRetry approves the error and the
// attempt budget allows. Non-retryable errors and the final attempt's
// error are returned immediately without sleeping.
func (e *Executor) Do(ctx context.Context, op func(ctx context.Context) error, shouldRetry func(error) bool) error {
	var lastErr error

	for attempt := 0; attempt < e.cfg.MaxAttempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !shouldRetry(err) {
			return err
		}
		if attempt == e.cfg.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(e.delay(attempt)):
		}
	}

	return fmt.Errorf("failed after %d attempts: %w", e.cfg.MaxAttempts, lastErr)
}

// delay computes the backoff before retrying after attempt (0-indexed):
// min(MaxDelay, BaseDelay * Multiplier^attempt), with optional symmetric
// jitter, floored at minDelay.
func (e *Executor) delay(attempt int) time.Duration {
	d := float64(e.cfg.BaseDelay) * math.Pow(e.cfg.Multiplier, float64(attempt))
	if d > float64(e.cfg.MaxDelay) {
		d = float64(e.cfg.MaxDelay)
	}
	if e.cfg.Jitter {
		// Uniform in [-jitterFraction, +jitterFraction] of the base delay.
		d += d * jitterFraction * (2*rand.Float64() - 1)
	}
	if d < float64(minDelay) {
		d = float64(minDelay)
	}
	return time.Duration(d)
}
