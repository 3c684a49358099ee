package connector

import (
	"sync"
	"time"
)

// ErrorLimiter counts errors in a sliding window and trips once threshold errors occur
// within window. It resets when it trips.
type ErrorLimiter struct {
	window    time.Duration
	threshold int
	now       func() time.Time

	mu          sync.Mutex
	windowStart time.Time
	count       int
}

// NewErrorLimiter creates a limiter. A threshold below 1 is treated as 1.
func NewErrorLimiter(window time.Duration, threshold int) *ErrorLimiter {
	if threshold < 1 {
		threshold = 1
	}
	return &ErrorLimiter{window: window, threshold: threshold, now: time.Now}
}

// Record registers one error and reports whether the limiter tripped.
func (l *ErrorLimiter) Record() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.count == 0 || now.Sub(l.windowStart) > l.window {
		l.windowStart = now
		l.count = 0
	}
	l.count++

	if l.count >= l.threshold {
		l.count = 0
		return true
	}
	return false
}

// Count returns the errors recorded in the current window.
func (l *ErrorLimiter) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}
