// Package ratelimit provides a fixed-window limiter used for outbound RPC
// calls and inbound API requests.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Limiter is a simple fixed-window rate limiter for a single entity.
type Limiter struct {
	mu          sync.Mutex
	count       int
	windowStart time.Time
	rate        int
	window      time.Duration
	now         func() time.Time
}

// New creates a Limiter that allows rate requests per window.
func New(rate int, window time.Duration) *Limiter {
	return &Limiter{
		rate:        rate,
		window:      window,
		windowStart: time.Now(),
		now:         time.Now,
	}
}

// Allow returns true if the request is within the rate limit.
func (l *Limiter) Allow() bool {
	ok, _ := l.reserve()
	return ok
}

// Wait blocks until a request fits in the current window or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	for {
		ok, retry := l.reserve()
		if ok {
			return nil
		}
		t := time.NewTimer(retry)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}
}

// Expired reports whether the limiter's window closed before now. Idle
// limiters in a keyed set can be dropped once expired.
func (l *Limiter) Expired() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now().Sub(l.windowStart) > l.window
}

// reserve counts a request. When the window is full it returns false and the
// time left until the window resets.
func (l *Limiter) reserve() (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.windowStart) > l.window {
		l.count = 0
		l.windowStart = now
	}
	if l.count >= l.rate {
		return false, l.window - now.Sub(l.windowStart) + time.Millisecond
	}
	l.count++
	return true, 0
}
