package circuitbreaker

import (
	"context"
	"errors"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestBreaker(maxFailures int, opts ...Option) (*CircuitBreaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	cb := NewCircuitBreaker(maxFailures, 30*time.Second, opts...)
	cb.now = clock.Now
	return cb, clock
}

func fail() error    { return errBoom }
func succeed() error { return nil }

func TestCircuitBreaker_OpensAfterMaxFailures(t *testing.T) {
	cb, _ := newTestBreaker(3)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
			t.Fatalf("Expected errBoom on attempt %d, got %v", i+1, err)
		}
	}

	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state open, got %s", cb.GetState())
	}

	called := false
	err := cb.Execute(ctx, func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", err)
	}
	if called {
		t.Error("Expected fn not to run while the circuit is open")
	}
}

func TestCircuitBreaker_HalfOpenRecovers(t *testing.T) {
	cb, clock := newTestBreaker(1)
	ctx := context.Background()

	_ = cb.Execute(ctx, fail)
	if cb.GetState() != StateOpen {
		t.Fatalf("Expected state open, got %s", cb.GetState())
	}

	clock.Advance(31 * time.Second)

	if err := cb.Execute(ctx, succeed); err != nil {
		t.Fatalf("Expected trial call to succeed, got %v", err)
	}
	if cb.GetState() != StateClosed {
		t.Errorf("Expected state closed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_HalfOpenFailureReopens(t *testing.T) {
	cb, clock := newTestBreaker(5)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_ = cb.Execute(ctx, fail)
	}
	clock.Advance(31 * time.Second)

	if err := cb.Execute(ctx, fail); !errors.Is(err, errBoom) {
		t.Fatalf("Expected trial call error, got %v", err)
	}
	if cb.GetState() != StateOpen {
		t.Errorf("Expected state open after failed trial call, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_IgnoresExpectedErrors(t *testing.T) {
	errNotFound := errors.New("not found")
	cb, _ := newTestBreaker(1, WithFailurePredicate(func(err error) bool {
		return !errors.Is(err, errNotFound)
	}))

	for i := 0; i < 3; i++ {
		if err := cb.Execute(context.Background(), func() error { return errNotFound }); !errors.Is(err, errNotFound) {
			t.Fatalf("Expected errNotFound, got %v", err)
		}
	}

	if cb.GetState() != StateClosed {
		t.Errorf("Expected state closed, got %s", cb.GetState())
	}
}

func TestCircuitBreaker_CancelledContext(t *testing.T) {
	cb, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := cb.Execute(ctx, succeed); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
