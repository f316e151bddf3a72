// Package scheduler abstracts timers so agents can be driven by the wall
// clock in production and by a manual clock in tests.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Handle cancels a scheduled action. Cancel is idempotent and, once it
// returns, the action will not be started again.
type Handle interface {
	Cancel()
}

// Scheduler schedules callbacks and provides rate-limit sleeps.
type Scheduler interface {
	// Every runs fn each period until cancelled. The first run happens one
	// period after the call.
	Every(period time.Duration, fn func()) Handle
	// After runs fn once after delay unless cancelled first.
	After(delay time.Duration, fn func()) Handle
	// Sleep pauses the caller for d or until ctx is done.
	Sleep(ctx context.Context, d time.Duration) error
	Now() time.Time
}

// Real is a Scheduler backed by the runtime's timers.
type Real struct{}

// NewReal returns the wall-clock scheduler.
func NewReal() Real { return Real{} }

type realHandle struct {
	cancelled atomic.Bool
	once      sync.Once
	stop      func()
}

func (h *realHandle) Cancel() {
	h.cancelled.Store(true)
	h.once.Do(h.stop)
}

// Every implements Scheduler.
func (Real) Every(period time.Duration, fn func()) Handle {
	done := make(chan struct{})
	h := &realHandle{stop: func() { close(done) }}
	ticker := time.NewTicker(period)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				if h.cancelled.Load() {
					return
				}
				fn()
			}
		}
	}()
	return h
}

// After implements Scheduler.
func (Real) After(delay time.Duration, fn func()) Handle {
	h := &realHandle{}
	t := time.AfterFunc(delay, func() {
		if h.cancelled.Load() {
			return
		}
		fn()
	})
	h.stop = func() { t.Stop() }
	return h
}

// Sleep implements Scheduler.
func (Real) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Now implements Scheduler.
func (Real) Now() time.Time { return time.Now() }

// Group collects handles so they can be cancelled together.
type Group struct {
	mu      sync.Mutex
	handles []Handle
}

// Add tracks h.
func (g *Group) Add(h Handle) {
	g.mu.Lock()
	g.handles = append(g.handles, h)
	g.mu.Unlock()
}

// CancelAll cancels every tracked handle and forgets them.
func (g *Group) CancelAll() {
	g.mu.Lock()
	hs := g.handles
	g.handles = nil
	g.mu.Unlock()
	for _, h := range hs {
		h.Cancel()
	}
}

// Len reports how many handles are tracked.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.handles)
}
