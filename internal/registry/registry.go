// Package registry is the durable table of agent descriptors. Every
// mutation rewrites a versioned JSON snapshot atomically.
package registry

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
)

// ErrEmptyType is returned by Spawn when no agent type is given.
var ErrEmptyType = errors.New("registry: agent type is required")

// Registry maps agent ids to descriptors, in insertion order. It is safe
// for concurrent use.
type Registry struct {
	mu     sync.RWMutex
	path   string
	order  []string
	byID   map[string]*agent.Descriptor
	now    func() time.Time
	newID  func(agent.Type) string
	logger *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithIDGenerator overrides id generation. Collisions with existing ids
// are still retried.
func WithIDGenerator(fn func(agent.Type) string) Option {
	return func(r *Registry) { r.newID = fn }
}

// Open loads the snapshot at path. A missing or unreadable snapshot yields
// an empty registry.
func Open(path string, opts ...Option) *Registry {
	r := &Registry{
		path:   path,
		byID:   make(map[string]*agent.Descriptor),
		now:    time.Now,
		newID:  NewID,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(r)
	}
	r.logger = r.logger.With(slog.String("component", "registry"))
	r.load()
	return r
}

// NewID returns the type prefix followed by 48 random bits in hex.
func NewID(t agent.Type) string {
	var b [6]byte
	if _, err := rand.Read(b[:]); err != nil {
		panic(fmt.Sprintf("registry: read random: %v", err))
	}
	return t.Prefix() + "-" + hex.EncodeToString(b[:])
}

func (r *Registry) load() {
	if r.path == "" {
		return
	}
	data, err := os.ReadFile(r.path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		r.logger.Warn("registry snapshot unreadable, starting empty", slog.String("path", r.path), slog.String("error", err.Error()))
		return
	}
	agents, err := decodeSnapshot(data)
	if err != nil {
		aside := r.path + ".corrupt"
		if rerr := os.Rename(r.path, aside); rerr != nil {
			r.logger.Error("move undecodable registry snapshot aside", slog.String("path", r.path), slog.String("error", rerr.Error()))
		}
		r.logger.Warn("registry snapshot undecodable, starting empty",
			slog.String("path", r.path),
			slog.String("moved_to", aside),
			slog.String("error", err.Error()))
		return
	}
	for i := range agents {
		d := agents[i]
		if d.ID == "" {
			continue
		}
		if _, dup := r.byID[d.ID]; dup {
			continue
		}
		r.byID[d.ID] = &d
		r.order = append(r.order, d.ID)
	}
	r.logger.Info("registry loaded", slog.Int("agents", len(r.order)))
}

// Spawn registers a new active agent and persists the table.
func (r *Registry) Spawn(t agent.Type, owner string, params map[string]any) (agent.Descriptor, error) {
	if t == "" {
		return agent.Descriptor{}, ErrEmptyType
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.newID(t)
	for r.byID[id] != nil {
		id = r.newID(t)
	}
	now := r.now()
	d := &agent.Descriptor{
		ID:         id,
		Type:       t,
		Owner:      owner,
		Parameters: spawnParams(params),
		CreatedAt:  now,
		SpawnedAt:  now,
		Status:     agent.StatusActive,
	}
	r.byID[id] = d
	r.order = append(r.order, id)
	r.saveLocked()
	return d.Clone(), nil
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (agent.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.byID[id]
	if !ok {
		return agent.Descriptor{}, false
	}
	return d.Clone(), true
}

// ListAll returns every descriptor.
func (r *Registry) ListAll() []agent.Descriptor {
	return r.list(func(*agent.Descriptor) bool { return true })
}

// ListByOwner returns the descriptors owned by owner.
func (r *Registry) ListByOwner(owner string) []agent.Descriptor {
	return r.list(func(d *agent.Descriptor) bool { return d.Owner == owner })
}

// ListByType returns the descriptors of type t.
func (r *Registry) ListByType(t agent.Type) []agent.Descriptor {
	return r.list(func(d *agent.Descriptor) bool { return d.Type == t })
}

func (r *Registry) list(match func(*agent.Descriptor) bool) []agent.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]agent.Descriptor, 0, len(r.order))
	for _, id := range r.order {
		if d := r.byID[id]; match(d) {
			out = append(out, d.Clone())
		}
	}
	return out
}

// UpdateStatus sets the status of id and refreshes its heartbeat.
func (r *Registry) UpdateStatus(id string, status agent.Status) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.byID[id]
	if !ok {
		return false
	}
	d.Status = status
	now := r.now()
	d.LastHeartbeat = &now
	r.saveLocked()
	return true
}

// Heartbeat refreshes the heartbeat of id.
func (r *Registry) Heartbeat(id string) bool {
	return r.HeartbeatMany([]string{id}) == 1
}

// HeartbeatMany refreshes every known id in ids with a single write and
// reports how many were found.
func (r *Registry) HeartbeatMany(ids []string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	n := 0
	for _, id := range ids {
		d, ok := r.byID[id]
		if !ok {
			continue
		}
		hb := now
		d.LastHeartbeat = &hb
		n++
	}
	if n > 0 {
		r.saveLocked()
	}
	return n
}

// Delete removes id.
func (r *Registry) Delete(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return false
	}
	delete(r.byID, id)
	for i, o := range r.order {
		if o == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	r.saveLocked()
	return true
}

// Stats summarises the table. Oldest and Newest are by SpawnedAt.
func (r *Registry) Stats() agent.RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s := agent.RegistryStats{
		Total:    len(r.order),
		ByType:   make(map[agent.Type]int),
		ByStatus: make(map[agent.Status]int),
	}
	var oldest, newest *agent.Descriptor
	for _, id := range r.order {
		d := r.byID[id]
		s.ByType[d.Type]++
		s.ByStatus[d.Status]++
		if oldest == nil || d.SpawnedAt.Before(oldest.SpawnedAt) {
			oldest = d
		}
		if newest == nil || !d.SpawnedAt.Before(newest.SpawnedAt) {
			newest = d
		}
	}
	if oldest != nil {
		c := oldest.Clone()
		s.Oldest = &c
	}
	if newest != nil {
		c := newest.Clone()
		s.Newest = &c
	}
	return s
}

// Path is the snapshot location.
func (r *Registry) Path() string { return r.path }

// saveLocked writes the table. Failures are logged; the in-memory table
// stays authoritative and the next write catches up.
func (r *Registry) saveLocked() {
	if r.path == "" {
		return
	}
	s := snapshot{Version: SnapshotVersion, Agents: make([]agent.Descriptor, 0, len(r.order))}
	for _, id := range r.order {
		s.Agents = append(s.Agents, *r.byID[id])
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		r.logger.Error("encode registry snapshot", slog.String("error", err.Error()))
		return
	}
	if err := writeAtomic(r.path, data); err != nil {
		r.logger.Error("write registry snapshot", slog.String("path", r.path), slog.String("error", err.Error()))
	}
}

// writeAtomic replaces path with data via a synced temp file and rename.
func writeAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("write temp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename: %w", err)
	}
	return nil
}
