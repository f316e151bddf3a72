package agent

import (
	"errors"
	"sync"
)

// DefaultKnowledgeCap is how many entries a KnowledgeLog retains when no cap
// is configured.
const DefaultKnowledgeCap = 1000

// Sink receives every entry appended to a KnowledgeLog. Sinks give entries a
// life beyond the in-memory log.
type Sink interface {
	Append(KnowledgeEntry) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(KnowledgeEntry) error

// Append implements Sink.
func (f SinkFunc) Append(e KnowledgeEntry) error { return f(e) }

// KnowledgeLog is a bounded, append-only buffer of one agent's
// observations. When full, the oldest entry is dropped.
type KnowledgeLog struct {
	mu      sync.RWMutex
	entries []KnowledgeEntry
	limit   int
	dropped int
	sinks   []Sink
}

// NewKnowledgeLog returns a log keeping at most limit entries. A
// non-positive limit means DefaultKnowledgeCap.
func NewKnowledgeLog(limit int, sinks ...Sink) *KnowledgeLog {
	if limit <= 0 {
		limit = DefaultKnowledgeCap
	}
	return &KnowledgeLog{limit: limit, sinks: sinks}
}

// Append retains e and forwards it to every sink. Sink failures are joined
// into the returned error; the entry is kept regardless.
func (l *KnowledgeLog) Append(e KnowledgeEntry) error {
	l.mu.Lock()
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries = l.entries[:len(l.entries)-1]
		l.dropped++
	}
	l.entries = append(l.entries, e)
	sinks := l.sinks
	l.mu.Unlock()

	var errs []error
	for _, s := range sinks {
		if err := s.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Entries returns a copy of the retained entries, oldest first.
func (l *KnowledgeLog) Entries() []KnowledgeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]KnowledgeEntry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Last returns up to n of the newest entries, oldest first.
func (l *KnowledgeLog) Last(n int) []KnowledgeEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if n <= 0 || n > len(l.entries) {
		n = len(l.entries)
	}
	out := make([]KnowledgeEntry, n)
	copy(out, l.entries[len(l.entries)-n:])
	return out
}

// Len reports the number of retained entries.
func (l *KnowledgeLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// Dropped reports how many entries were evicted to respect the cap.
func (l *KnowledgeLog) Dropped() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.dropped
}
