package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func failing(context.Context) error { return errors.New("boom") }
func succeeding(context.Context) error { return nil }

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 3, Timeout: time.Minute})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := b.Call(ctx, failing); err == nil {
			t.Fatal("expected failure")
		}
	}
	if b.State() != StateOpen {
		t.Fatalf("breaker should be open, got %v", b.State())
	}
	if err := b.Call(ctx, succeeding); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("open breaker should reject, got %v", err)
	}
}

func TestBreakerHalfOpenRecovery(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: 10 * time.Millisecond})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	if b.State() != StateOpen {
		t.Fatal("should be open")
	}

	// Simulate timeout elapsing.
	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	if b.State() != StateHalfOpen {
		t.Fatal("should transition to half-open after timeout")
	}
	if err := b.Call(ctx, succeeding); err != nil {
		t.Fatalf("probe should pass: %v", err)
	}
	if b.State() != StateClosed {
		t.Fatal("successful probe should close the breaker")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := NewBreaker(BreakerOpts{FailThreshold: 1, Timeout: time.Minute})
	ctx := context.Background()

	_ = b.Call(ctx, failing)
	b.now = func() time.Time { return time.Now().Add(time.Hour) }
	_ = b.State() // force half-open transition
	b.now = time.Now

	if err := b.Call(ctx, failing); err == nil {
		t.Fatal("probe failure expected")
	}
	if b.State() != StateOpen {
		t.Fatal("failed probe should reopen the breaker")
	}
}

func TestLimiterAllow(t *testing.T) {
	l := NewLimiter(1, 1)
	if !l.Allow() {
		t.Fatal("first event should be allowed")
	}
	if l.Allow() {
		t.Fatal("burst exhausted, second immediate event should be denied")
	}
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewLimiter(0.001, 1)
	l.Allow() // drain the burst
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	if err := l.Wait(ctx); err == nil {
		t.Fatal("Wait should fail when ctx expires before a token is available")
	}
}
