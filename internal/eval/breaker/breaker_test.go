package breaker

import (
	"errors"
	"testing"
	"time"

	"github.com/vietddude/grader/internal/core/domain"
)

func TestBreakerTripsAtThreshold(t *testing.T) {
	b := New("scoring", 5, time.Minute)

	downstream := errors.New("service unavailable")
	for i := 0; i < 5; i++ {
		if got := b.State(); got != StateClosed {
			t.Fatalf("state before failure %d = %v, want closed", i+1, got)
		}
		if err := b.Execute(func() error { return downstream }); !errors.Is(err, downstream) {
			t.Fatalf("Execute() error = %v, want downstream error", err)
		}
	}

	if got := b.State(); got != StateOpen {
		t.Fatalf("state after 5 consecutive failures = %v, want open", got)
	}
}

func TestOpenBreakerShortCircuits(t *testing.T) {
	b := New("scoring", 2, time.Minute)

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if called {
		t.Error("downstream invoked while breaker open")
	}
	if domain.KindOf(err) != domain.KindCircuitOpen {
		t.Errorf("Execute() error kind = %v, want circuit_open", domain.KindOf(err))
	}
	if domain.CodeOf(err) != "circuit_open" {
		t.Errorf("Execute() error code = %q, want circuit_open", domain.CodeOf(err))
	}
}

func TestHalfOpenProbeClosesOnSuccess(t *testing.T) {
	b := New("scoring", 2, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}
	if got := b.State(); got != StateOpen {
		t.Fatalf("state = %v, want open", got)
	}

	time.Sleep(80 * time.Millisecond)

	called := false
	if err := b.Execute(func() error {
		called = true
		return nil
	}); err != nil {
		t.Fatalf("probe Execute() error = %v, want nil", err)
	}
	if !called {
		t.Fatal("probe did not reach downstream after cooldown")
	}
	if got := b.State(); got != StateClosed {
		t.Errorf("state after successful probe = %v, want closed", got)
	}
}

func TestHalfOpenProbeReopensOnFailure(t *testing.T) {
	b := New("scoring", 2, 50*time.Millisecond)

	for i := 0; i < 2; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}

	time.Sleep(80 * time.Millisecond)

	if err := b.Execute(func() error { return errors.New("still down") }); err == nil {
		t.Fatal("probe Execute() error = nil, want failure")
	}
	if got := b.State(); got != StateOpen {
		t.Errorf("state after failed probe = %v, want open", got)
	}

	// A failed probe restarts the cooldown: the next call is rejected
	// without touching downstream.
	called := false
	err := b.Execute(func() error {
		called = true
		return nil
	})
	if called {
		t.Error("downstream invoked right after failed probe")
	}
	if domain.KindOf(err) != domain.KindCircuitOpen {
		t.Errorf("Execute() error kind = %v, want circuit_open", domain.KindOf(err))
	}
}

func TestSuccessResetsFailureStreak(t *testing.T) {
	b := New("scoring", 3, time.Minute)

	_ = b.Execute(func() error { return errors.New("boom") })
	_ = b.Execute(func() error { return errors.New("boom") })
	if got := b.ConsecutiveFailures(); got != 2 {
		t.Fatalf("ConsecutiveFailures() = %d, want 2", got)
	}

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("Execute() error = %v, want nil", err)
	}
	if got := b.ConsecutiveFailures(); got != 0 {
		t.Errorf("ConsecutiveFailures() after success = %d, want 0", got)
	}

	// Two more failures stay below the threshold; breaker remains closed.
	_ = b.Execute(func() error { return errors.New("boom") })
	_ = b.Execute(func() error { return errors.New("boom") })
	if got := b.State(); got != StateClosed {
		t.Errorf("state = %v, want closed (streak was reset)", got)
	}
}
