package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"
)

type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

var (
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

type CircuitBreaker struct {
	maxFailures     int
	resetTimeout    time.Duration
	failureCount    int
	lastFailureTime time.Time
	state           State
	probing         bool
	isFailure       func(error) bool
	now             func() time.Time
	mu              sync.Mutex
}

type Option func(*CircuitBreaker)

// WithFailurePredicate decides which errors count against the breaker.
// Errors it rejects are returned to the caller without tripping the circuit.
func WithFailurePredicate(fn func(error) bool) Option {
	return func(cb *CircuitBreaker) {
		cb.isFailure = fn
	}
}

func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, opts ...Option) *CircuitBreaker {
	cb := &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		state:        StateClosed,
		isFailure:    func(err error) bool { return err != nil },
		now:          time.Now,
	}
	for _, opt := range opts {
		opt(cb)
	}
	return cb
}

// Execute runs fn unless the circuit is open. While half-open only one call
// is let through as a trial; the others fail fast with ErrCircuitOpen.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := cb.allow(); err != nil {
		return err
	}

	err := fn()
	cb.record(err)
	return err
}

func (cb *CircuitBreaker) allow() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	// Check if we should transition from Open to HalfOpen
	if cb.state == StateOpen {
		if cb.now().Sub(cb.lastFailureTime) <= cb.resetTimeout {
			return ErrCircuitOpen
		}
		cb.state = StateHalfOpen
		cb.failureCount = 0
	}

	if cb.state == StateHalfOpen {
		if cb.probing {
			return ErrCircuitOpen
		}
		cb.probing = true
	}
	return nil
}

func (cb *CircuitBreaker) record(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	wasTrial := cb.state == StateHalfOpen
	if wasTrial {
		cb.probing = false
	}

	if err != nil && cb.isFailure(err) {
		cb.failureCount++
		cb.lastFailureTime = cb.now()

		if wasTrial || cb.failureCount >= cb.maxFailures {
			cb.state = StateOpen
		}
		return
	}

	// Success - reset if in HalfOpen state
	cb.state = StateClosed
	cb.failureCount = 0
}

func (cb *CircuitBreaker) GetState() State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
