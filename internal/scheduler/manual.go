package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Manual is a Scheduler whose clock only moves when told to. Callbacks run
// synchronously on the goroutine calling Advance. Sleep moves the clock
// forward without firing timers, so rate-limit pauses cost no real time.
type Manual struct {
	mu     sync.Mutex
	now    time.Time
	seq    int
	timers []*manualTimer
	slept  time.Duration
}

type manualTimer struct {
	id        int
	due       time.Time
	period    time.Duration
	fn        func()
	cancelled bool
	m         *Manual
}

func (t *manualTimer) Cancel() {
	t.m.mu.Lock()
	t.cancelled = true
	t.m.mu.Unlock()
}

// NewManual returns a manual scheduler starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Every implements Scheduler.
func (m *Manual) Every(period time.Duration, fn func()) Handle {
	return m.add(period, period, fn)
}

// After implements Scheduler.
func (m *Manual) After(delay time.Duration, fn func()) Handle {
	return m.add(delay, 0, fn)
}

func (m *Manual) add(delay, period time.Duration, fn func()) *manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	t := &manualTimer{id: m.seq, due: m.now.Add(delay), period: period, fn: fn, m: m}
	m.timers = append(m.timers, t)
	return t
}

// Sleep implements Scheduler.
func (m *Manual) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if d <= 0 {
		return nil
	}
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.slept += d
	m.mu.Unlock()
	return nil
}

// Now implements Scheduler.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Slept is the total virtual time spent in Sleep.
func (m *Manual) Slept() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.slept
}

// Pending reports how many live timers remain.
func (m *Manual) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.cancelled {
			n++
		}
	}
	return n
}

// Advance moves the clock forward by d, firing due timers in order.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.now.Add(d)
	m.mu.Unlock()

	for {
		fire := m.nextDue(target)
		if fire == nil {
			break
		}
		fire()
	}

	m.mu.Lock()
	if target.After(m.now) {
		m.now = target
	}
	m.mu.Unlock()
}

// nextDue picks the earliest live timer due at or before target, moves the
// clock to its due time and reschedules it if periodic. The returned func
// re-checks cancellation before running the callback.
func (m *Manual) nextDue(target time.Time) func() {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := m.timers[:0]
	for _, t := range m.timers {
		if !t.cancelled {
			live = append(live, t)
		}
	}
	m.timers = live
	sort.SliceStable(m.timers, func(i, j int) bool {
		if m.timers[i].due.Equal(m.timers[j].due) {
			return m.timers[i].id < m.timers[j].id
		}
		return m.timers[i].due.Before(m.timers[j].due)
	})
	if len(m.timers) == 0 || m.timers[0].due.After(target) {
		return nil
	}

	t := m.timers[0]
	if t.due.After(m.now) {
		m.now = t.due
	}
	if t.period > 0 {
		t.due = t.due.Add(t.period)
	} else {
		m.timers = m.timers[1:]
	}
	return func() {
		m.mu.Lock()
		cancelled := t.cancelled
		m.mu.Unlock()
		if !cancelled {
			t.fn()
		}
	}
}
