package retry

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDoSucceedsFirstAttempt(t *testing.T) {
	exec := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond})

	calls := 0
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, func(error) bool { return true })

	if err != nil {
		t.Fatalf("Do() error = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestDoStopsOnNonRetryable(t *testing.T) {
	exec := New(Config{MaxAttempts: 5, BaseDelay: time.Millisecond})

	permErr := errors.New("rejected")
	calls := 0
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return permErr
	}, func(error) bool { return false })

	if !errors.Is(err, permErr) {
		t.Fatalf("Do() error = %v, want %v", err, permErr)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (no retry on non-retryable)", calls)
	}
}

func TestDoExhaustsAttempts(t *testing.T) {
	exec := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Jitter: false})

	transient := errors.New("service unavailable")
	calls := 0
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return transient
	}, func(error) bool { return true })

	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	if !errors.Is(err, transient) {
		t.Errorf("Do() error does not wrap last attempt error: %v", err)
	}
	if !strings.Contains(err.Error(), "failed after 3 attempts") {
		t.Errorf("Do() error = %q, want attempt count in message", err)
	}
}

func TestDoRecoverOnLaterAttempt(t *testing.T) {
	exec := New(Config{MaxAttempts: 3, BaseDelay: time.Millisecond, Jitter: false})

	calls := 0
	err := exec.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, func(error) bool { return true })

	if err != nil {
		t.Fatalf("Do() error = %v, want nil after recovery", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestDoRespectsContextCancel(t *testing.T) {
	exec := New(Config{MaxAttempts: 5, BaseDelay: 10 * time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	done := make(chan error, 1)
	go func() {
		done <- exec.Do(ctx, func(ctx context.Context) error {
			calls++
			return errors.New("transient")
		}, func(error) bool { return true })
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("Do() error = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Do() did not return after context cancellation")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1 (cancelled during backoff)", calls)
	}
}

func TestDelayBounds(t *testing.T) {
	exec := New(Config{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	})

	// Expected base delays per attempt: 1s, 2s, 4s, 8s, then capped at 10s.
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 10 * time.Second}
	for attempt, base := range want {
		lo := time.Duration(float64(base) * (1 - jitterFraction))
		hi := time.Duration(float64(base) * (1 + jitterFraction))
		for i := 0; i < 100; i++ {
			d := exec.delay(attempt)
			if d < lo || d > hi {
				t.Fatalf("delay(%d) = %v, want within [%v, %v]", attempt, d, lo, hi)
			}
		}
	}
}

func TestDelayFloor(t *testing.T) {
	exec := New(Config{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		MaxDelay:    time.Second,
		Multiplier:  2.0,
		Jitter:      true,
	})

	for attempt := 0; attempt < 3; attempt++ {
		for i := 0; i < 100; i++ {
			if d := exec.delay(attempt); d < minDelay {
				t.Fatalf("delay(%d) = %v, want >= %v", attempt, d, minDelay)
			}
		}
	}
}

func TestDelayWithoutJitterIsDeterministic(t *testing.T) {
	exec := New(Config{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
		Jitter:      false,
	})

	if d := exec.delay(0); d != time.Second {
		t.Errorf("delay(0) = %v, want 1s", d)
	}
	if d := exec.delay(1); d != 2*time.Second {
		t.Errorf("delay(1) = %v, want 2s", d)
	}
	if d := exec.delay(10); d != 10*time.Second {
		t.Errorf("delay(10) = %v, want cap at 10s", d)
	}
}
