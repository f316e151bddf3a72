// Package runtime runs agents: it owns the table of live strategies and
// drives each agent through its lifecycle, keeping the registry in step.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/registry"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

// DefaultHeartbeatInterval is used when Options leaves it unset.
const DefaultHeartbeatInterval = time.Minute

// Options configures a Runtime.
type Options struct {
	Registry *registry.Registry
	Catalog  *agent.Catalog
	// Deps are handed to every strategy the runtime builds.
	Deps              agent.Deps
	Logger            *slog.Logger
	HeartbeatInterval time.Duration
}

// Stats is the registry summary plus the number of live agents.
type Stats struct {
	agent.RegistryStats
	Running int `json:"running"`
}

type handle struct {
	desc     agent.Descriptor
	strategy agent.Strategy
}

// Runtime orchestrates agent lifecycles. It is safe for concurrent use.
type Runtime struct {
	reg     *registry.Registry
	catalog *agent.Catalog
	deps    agent.Deps
	logger  *slog.Logger
	every   time.Duration

	mu      sync.Mutex
	running map[string]*handle
	// starting holds ids between the running check and tracking so two
	// concurrent starts of one agent cannot both succeed.
	starting map[string]bool

	hbMu      sync.Mutex
	heartbeat scheduler.Handle
}

// New returns a runtime over opts.Registry.
func New(opts Options) *Runtime {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Deps.Scheduler == nil {
		opts.Deps.Scheduler = scheduler.NewReal()
	}
	if opts.Deps.Logger == nil {
		opts.Deps.Logger = opts.Logger
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = DefaultHeartbeatInterval
	}
	return &Runtime{
		reg:      opts.Registry,
		catalog:  opts.Catalog,
		deps:     opts.Deps,
		logger:   opts.Logger.With(slog.String("component", "runtime")),
		every:    opts.HeartbeatInterval,
		running:  make(map[string]*handle),
		starting: make(map[string]bool),
	}
}

// SpawnAgent validates the request, registers the agent and starts it.
// Unknown types and bad parameters fail before anything is registered. If
// the agent fails to start, the registry entry stays active for StartAll to
// retry.
func (r *Runtime) SpawnAgent(ctx context.Context, t agent.Type, owner string, params map[string]any) (string, error) {
	if err := r.catalog.Validate(t, params); err != nil {
		return "", err
	}
	d, err := r.reg.Spawn(t, owner, params)
	if err != nil {
		return "", fmt.Errorf("register agent: %w", err)
	}
	r.logger.Info("agent spawned", slog.String("agent_id", d.ID), slog.String("type", string(t)), slog.String("owner", owner))
	if err := r.start(ctx, d); err != nil {
		return d.ID, err
	}
	return d.ID, nil
}

// start builds, initializes and runs d, then tracks it.
func (r *Runtime) start(ctx context.Context, d agent.Descriptor) error {
	r.mu.Lock()
	if r.running[d.ID] != nil || r.starting[d.ID] {
		r.mu.Unlock()
		return fmt.Errorf("start %s: %w", d.ID, agent.ErrAlreadyRunning)
	}
	r.starting[d.ID] = true
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		delete(r.starting, d.ID)
		r.mu.Unlock()
	}()

	s, err := r.catalog.Build(d, r.deps)
	if err != nil {
		return fmt.Errorf("build %s: %w", d.ID, err)
	}
	if err := s.Initialize(ctx); err != nil {
		r.stopStrategy(d.ID, s)
		return fmt.Errorf("initialize %s: %w", d.ID, err)
	}
	if err := s.Run(ctx); err != nil {
		r.stopStrategy(d.ID, s)
		return fmt.Errorf("run %s: %w", d.ID, err)
	}

	r.mu.Lock()
	r.running[d.ID] = &handle{desc: d, strategy: s}
	r.mu.Unlock()
	r.logger.Info("agent started", slog.String("agent_id", d.ID), slog.String("type", string(d.Type)))
	return nil
}

// stopStrategy stops s, converting a panic into an error.
func (r *Runtime) stopStrategy(id string, s agent.Strategy) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("stop %s panicked: %v", id, p)
		}
		if err != nil {
			r.logger.Error("agent stop failed", slog.String("agent_id", id), slog.String("error", err.Error()))
		}
	}()
	return s.Stop()
}

func (r *Runtime) untrack(id string) (*handle, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.running[id]
	if ok {
		delete(r.running, id)
	}
	return h, ok
}

// StopAgent stops a running or paused agent and marks it stopped.
func (r *Runtime) StopAgent(id string) error {
	if h, ok := r.untrack(id); ok {
		r.stopStrategy(id, h.strategy)
		r.reg.UpdateStatus(id, agent.StatusStopped)
		r.logger.Info("agent stopped", slog.String("agent_id", id))
		return nil
	}
	d, ok := r.reg.Get(id)
	if !ok {
		return fmt.Errorf("stop %s: %w", id, agent.ErrNotFound)
	}
	if d.Status != agent.StatusPaused {
		return fmt.Errorf("stop %s: %w", id, agent.ErrNotRunning)
	}
	r.reg.UpdateStatus(id, agent.StatusStopped)
	r.logger.Info("paused agent stopped", slog.String("agent_id", id))
	return nil
}

// PauseAgent stops a running agent and marks it paused.
func (r *Runtime) PauseAgent(id string) error {
	h, ok := r.untrack(id)
	if !ok {
		if _, known := r.reg.Get(id); !known {
			return fmt.Errorf("pause %s: %w", id, agent.ErrNotFound)
		}
		return fmt.Errorf("pause %s: %w", id, agent.ErrNotRunning)
	}
	r.stopStrategy(id, h.strategy)
	r.reg.UpdateStatus(id, agent.StatusPaused)
	r.logger.Info("agent paused", slog.String("agent_id", id))
	return nil
}

// ResumeAgent restarts a paused agent from its stored parameters. The
// knowledge gathered before the pause is not carried over.
func (r *Runtime) ResumeAgent(ctx context.Context, id string) error {
	d, ok := r.reg.Get(id)
	if !ok {
		return fmt.Errorf("resume %s: %w", id, agent.ErrNotFound)
	}
	if d.Status != agent.StatusPaused {
		return fmt.Errorf("resume %s: %w", id, agent.ErrNotPaused)
	}
	if err := r.start(ctx, d); err != nil {
		return err
	}
	r.reg.UpdateStatus(id, agent.StatusActive)
	r.logger.Info("agent resumed", slog.String("agent_id", id))
	return nil
}

// DeleteAgent removes a non-running agent from the registry.
func (r *Runtime) DeleteAgent(id string) error {
	if r.IsRunning(id) {
		return fmt.Errorf("delete %s: %w", id, agent.ErrAlreadyRunning)
	}
	if !r.reg.Delete(id) {
		return fmt.Errorf("delete %s: %w", id, agent.ErrNotFound)
	}
	r.logger.Info("agent deleted", slog.String("agent_id", id))
	return nil
}

// ListAgents returns every registered agent.
func (r *Runtime) ListAgents() []agent.Descriptor {
	return r.reg.ListAll()
}

// Get returns the registry entry for id.
func (r *Runtime) Get(id string) (agent.Descriptor, bool) {
	return r.reg.Get(id)
}

// Stats summarises the registry and the live table.
func (r *Runtime) Stats() Stats {
	r.mu.Lock()
	n := len(r.running)
	r.mu.Unlock()
	return Stats{RegistryStats: r.reg.Stats(), Running: n}
}

// IsRunning reports whether id is live.
func (r *Runtime) IsRunning(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.running[id] != nil
}

// RunningIDs lists live agents in id order.
func (r *Runtime) RunningIDs() []string {
	r.mu.Lock()
	ids := make([]string, 0, len(r.running))
	for id := range r.running {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// AgentKnowledge returns the retained entries of a running agent; an agent
// that is not running has none.
func (r *Runtime) AgentKnowledge(id string) []agent.KnowledgeEntry {
	r.mu.Lock()
	h := r.running[id]
	r.mu.Unlock()
	if h == nil {
		return []agent.KnowledgeEntry{}
	}
	return h.strategy.Knowledge()
}

// StartAll starts every active agent that is not already running and
// returns how many started. Failures are logged and skipped.
func (r *Runtime) StartAll(ctx context.Context) int {
	started := 0
	for _, d := range r.reg.ListAll() {
		if d.Status != agent.StatusActive || r.IsRunning(d.ID) {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		if err := r.start(ctx, d); err != nil {
			r.logger.Warn("agent failed to start", slog.String("agent_id", d.ID), slog.String("error", err.Error()))
			continue
		}
		started++
	}
	r.logger.Info("agents started", slog.Int("count", started))
	return started
}

// StopAll stops every running agent and clears the live table. Registry
// statuses are left alone so the agents come back on the next StartAll.
func (r *Runtime) StopAll() {
	r.mu.Lock()
	handles := r.running
	r.running = make(map[string]*handle)
	r.mu.Unlock()

	ids := make([]string, 0, len(handles))
	for id := range handles {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		r.stopStrategy(id, handles[id].strategy)
	}
	r.logger.Info("agents stopped", slog.Int("count", len(ids)))
}

// StartHeartbeats refreshes the registry heartbeat of every running agent
// once per interval. Calling it again is a no-op.
func (r *Runtime) StartHeartbeats() {
	r.hbMu.Lock()
	defer r.hbMu.Unlock()
	if r.heartbeat != nil {
		return
	}
	r.heartbeat = r.deps.Scheduler.Every(r.every, func() {
		ids := r.RunningIDs()
		if len(ids) == 0 {
			return
		}
		n := r.reg.HeartbeatMany(ids)
		r.logger.Debug("heartbeat", slog.Int("agents", n))
	})
}

// StopHeartbeats cancels the heartbeat loop.
func (r *Runtime) StopHeartbeats() {
	r.hbMu.Lock()
	defer r.hbMu.Unlock()
	if r.heartbeat != nil {
		r.heartbeat.Cancel()
		r.heartbeat = nil
	}
}

// Close stops heartbeats and every running agent.
func (r *Runtime) Close() {
	r.StopHeartbeats()
	r.StopAll()
}
