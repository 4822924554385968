package analysis

import (
	"math"
	"sync"
	"time"
)

// Admission is the outcome of one admission-control check
type Admission struct {
	OK         bool
	RetryAfter time.Duration
}

// RetryAfterSeconds returns the retry delay rounded up to whole seconds
func (a Admission) RetryAfterSeconds() int {
	return int(math.Ceil(a.RetryAfter.Seconds()))
}

// RateLimiter is a fixed-window admission controller for real model calls.
// State is process-wide and single-instance by design; this is not a
// distributed limiter. Mock-mode responses never consume admissions.
type RateLimiter struct {
	mu sync.Mutex

	window       time.Duration
	maxPerWindow int

	windowStart time.Time
	count       int

	now func() time.Time
}

// NewRateLimiter creates a fixed-window limiter
func NewRateLimiter(window time.Duration, maxPerWindow int) *RateLimiter {
	return &RateLimiter{
		window:       window,
		maxPerWindow: maxPerWindow,
		now:          time.Now,
	}
}

// WithClock replaces the time source, for tests
func (l *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	l.now = now
	return l
}

// Admit consumes one admission if the current window has capacity.
// A rejection reports how long until the window resets.
func (l *RateLimiter) Admit() Admission {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()

	if l.windowStart.IsZero() || now.Sub(l.windowStart) >= l.window {
		l.windowStart = now
		l.count = 0
	}

	if l.count < l.maxPerWindow {
		l.count++
		return Admission{OK: true}
	}

	return Admission{
		OK:         false,
		RetryAfter: l.windowStart.Add(l.window).Sub(now),
	}
}
