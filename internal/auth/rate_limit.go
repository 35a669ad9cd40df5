package auth

import (
	"sync"
	"time"
)

const (
	defaultMaxAttempts = 5
	defaultLockWindow  = 900 * time.Second
)

type attemptCounter struct {
	attempts    int
	windowStart time.Time
}

// RateLimiter throttles repeated authentication failures per client
// identifier. State lives in process; it is defense in depth, not a
// hard security boundary, and does not survive restarts.
type RateLimiter struct {
	mu          sync.Mutex
	maxAttempts int
	window      time.Duration
	counters    map[string]*attemptCounter
	maxEntries  int
	now         func() time.Time
}

func NewRateLimiter(maxAttempts int, window time.Duration) *RateLimiter {
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	if window <= 0 {
		window = defaultLockWindow
	}

	return &RateLimiter{
		maxAttempts: maxAttempts,
		window:      window,
		counters:    make(map[string]*attemptCounter),
		maxEntries:  5000,
		now:         time.Now,
	}
}

// CheckAllowed reports whether the client may attempt a login. A stale
// window resets the counter first. When locked, retryAfter is the time
// remaining until the window expires.
func (l *RateLimiter) CheckAllowed(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	counter, ok := l.counters[clientID]
	if !ok {
		return true, 0
	}

	now := l.now().UTC()
	if now.Sub(counter.windowStart) > l.window {
		delete(l.counters, clientID)
		return true, 0
	}

	if counter.attempts >= l.maxAttempts {
		retryAfter := counter.windowStart.Add(l.window).Sub(now)
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return false, retryAfter
	}

	return true, 0
}

// RecordFailure increments the attempt counter, starting a fresh
// window if this is the first failure in one.
func (l *RateLimiter) RecordFailure(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now().UTC()
	counter, ok := l.counters[clientID]
	if !ok || now.Sub(counter.windowStart) > l.window {
		counter = &attemptCounter{windowStart: now}
		l.counters[clientID] = counter
	}
	counter.attempts++

	if len(l.counters) > l.maxEntries {
		l.sweepLocked(now)
	}
}

// RecordSuccess clears the counter for the client entirely.
func (l *RateLimiter) RecordSuccess(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.counters, clientID)
}

func (l *RateLimiter) sweepLocked(now time.Time) {
	for key, counter := range l.counters {
		if now.Sub(counter.windowStart) > l.window {
			delete(l.counters, key)
		}
	}
}
