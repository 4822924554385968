package analysis

import (
	"sync"
	"time"
)

// BreakerState is the circuit breaker state tag
type BreakerState int

const (
	BreakerClosed   BreakerState = iota // normal operation, calls pass through
	BreakerHalfOpen                     // cooldown elapsed, one trial call allowed
	BreakerOpen                         // tripped, calls fail fast
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "CLOSED"
	case BreakerHalfOpen:
		return "HALF_OPEN"
	case BreakerOpen:
		return "OPEN"
	default:
		return "UNKNOWN"
	}
}

// CircuitBreaker isolates the upstream model after consecutive failures.
// While OPEN all calls are rejected without contacting the model; after the
// cooldown the next check moves to HALF_OPEN and admits exactly one trial
// call, whose outcome alone decides the next state.
type CircuitBreaker struct {
	mu sync.Mutex

	state            BreakerState
	failureCount     int
	lastFailureTime  time.Time
	failureThreshold int
	cooldown         time.Duration

	now func() time.Time
}

// NewCircuitBreaker creates a breaker in the CLOSED state
func NewCircuitBreaker(failureThreshold int, cooldown time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		state:            BreakerClosed,
		failureThreshold: failureThreshold,
		cooldown:         cooldown,
		now:              time.Now,
	}
}

// WithClock replaces the time source, for tests
func (cb *CircuitBreaker) WithClock(now func() time.Time) *CircuitBreaker {
	cb.now = now
	return cb
}

// CanCall reports whether a model call may proceed. While OPEN, the
// cooldown check happens here: once elapsed, the breaker moves to
// HALF_OPEN (failure counter reset) and admits the trial call.
func (cb *CircuitBreaker) CanCall() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case BreakerClosed, BreakerHalfOpen:
		return true

	case BreakerOpen:
		if cb.now().Sub(cb.lastFailureTime) > cb.cooldown {
			cb.state = BreakerHalfOpen
			cb.failureCount = 0
			return true
		}
		return false

	default:
		return false
	}
}

// RecordSuccess resets the breaker to CLOSED from any reachable state
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failureCount = 0
	cb.state = BreakerClosed
}

// RecordFailure counts a failed model call. Reaching the threshold in
// CLOSED trips the breaker; any failure in HALF_OPEN reopens it and
// restarts the cooldown clock.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.lastFailureTime = cb.now()

	switch cb.state {
	case BreakerClosed:
		cb.failureCount++
		if cb.failureCount >= cb.failureThreshold {
			cb.state = BreakerOpen
		}

	case BreakerHalfOpen:
		cb.state = BreakerOpen
	}
}

// State returns the current state, for monitoring
func (cb *CircuitBreaker) State() BreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
