package agent

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

// Base carries the mechanics every strategy shares: the running flag,
// timer bookkeeping, the per-agent re-entrancy guard, panic containment and
// liveness-checked emission. Strategies embed it.
type Base struct {
	desc   Descriptor
	deps   Deps
	log    *KnowledgeLog
	logger *slog.Logger
	client chain.Client

	// mu orders Stop against Emit: once Stop holds it and flips stopped,
	// no later Emit can append.
	mu      sync.Mutex
	running bool
	stopped bool
	ctx     context.Context
	cancel  context.CancelFunc

	timers  scheduler.Group
	polling atomic.Bool
}

// NewBase prepares the shared state for d. rpcURL selects the chain client;
// empty means deps.DefaultRPCURL.
func NewBase(d Descriptor, deps Deps, rpcURL string) (*Base, error) {
	if deps.Scheduler == nil {
		deps.Scheduler = scheduler.NewReal()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Rand == nil {
		deps.Rand = rand.Float64
	}
	if rpcURL == "" {
		rpcURL = deps.DefaultRPCURL
	}
	var client chain.Client
	if deps.Connect != nil {
		c, err := deps.Connect(rpcURL)
		if err != nil {
			return nil, fmt.Errorf("connect %s: %w", rpcURL, err)
		}
		client = c
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Base{
		desc:   d,
		deps:   deps,
		log:    NewKnowledgeLog(deps.KnowledgeCap, deps.Sinks...),
		logger: deps.Logger.With(slog.String("agent_id", d.ID), slog.String("type", string(d.Type))),
		client: client,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// ID is the agent id.
func (b *Base) ID() string { return b.desc.ID }

// Logger is scoped to the agent.
func (b *Base) Logger() *slog.Logger { return b.logger }

// Client is the agent's chain client.
func (b *Base) Client() chain.Client { return b.client }

// Now reads the scheduler clock.
func (b *Base) Now() time.Time { return b.deps.Scheduler.Now() }

// Random returns a value in [0,1).
func (b *Base) Random() float64 { return b.deps.Rand() }

// Context is cancelled when the agent stops.
func (b *Base) Context() context.Context { return b.ctx }

// Start flips the agent to running. Strategies call it at the top of Run.
func (b *Base) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return ErrStopped
	}
	b.running = true
	return nil
}

// Running reports whether the agent is running.
func (b *Base) Running() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.running
}

// Every schedules fn each period under the poll guard.
func (b *Base) Every(period time.Duration, name string, fn func(ctx context.Context) error) {
	b.timers.Add(b.deps.Scheduler.Every(period, func() { b.poll(name, fn) }))
}

// After schedules fn once after delay under the poll guard.
func (b *Base) After(delay time.Duration, name string, fn func(ctx context.Context) error) {
	b.timers.Add(b.deps.Scheduler.After(delay, func() { b.poll(name, fn) }))
}

// poll runs one scheduled action. A poll that finds another one of this
// agent in flight is skipped. Errors and panics are logged and never reach
// the scheduler.
func (b *Base) poll(name string, fn func(ctx context.Context) error) {
	if !b.Running() {
		return
	}
	if !b.polling.CompareAndSwap(false, true) {
		b.logger.Debug("poll skipped, previous still running", slog.String("poll", name))
		return
	}
	defer b.polling.Store(false)
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("poll panicked",
				slog.String("poll", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	if err := fn(b.ctx); err != nil && b.ctx.Err() == nil {
		b.logger.Warn("poll failed", slog.String("poll", name), slog.String("error", err.Error()))
	}
}

// Sleep is the rate-limit pause between upstream requests.
func (b *Base) Sleep(ctx context.Context, d time.Duration) error {
	return b.deps.Scheduler.Sleep(ctx, d)
}

// Emit appends an observation unless the agent has been stopped. It
// reports whether the entry was kept.
func (b *Base) Emit(source string, data any) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return false
	}
	entry := KnowledgeEntry{
		AgentID:   b.desc.ID,
		Data:      data,
		Timestamp: b.deps.Scheduler.Now(),
		Source:    source,
	}
	if err := b.log.Append(entry); err != nil {
		b.logger.Warn("knowledge sink failed", slog.String("error", err.Error()))
	}
	return true
}

// Ingest forwards ev to the shared store unless the agent has stopped.
func (b *Base) Ingest(ev knowledge.Event) {
	if b.deps.Store == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.deps.Store.Ingest(ev)
}

// Contribute forwards in to the shared store unless the agent has stopped.
func (b *Base) Contribute(in knowledge.Insight) {
	if b.deps.Store == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.deps.Store.Contribute(in)
}

// Ask queries the shared store. Without a store it returns an empty result.
func (b *Base) Ask(question string) knowledge.QueryResult {
	if b.deps.Store == nil {
		return knowledge.QueryResult{Sources: []knowledge.Insight{}, RawData: []knowledge.Event{}}
	}
	return b.deps.Store.Query(question)
}

// Domain returns the shared insights of a domain (whales, airdrops, defi,
// security), most confident first.
func (b *Base) Domain(domain string) ([]knowledge.Insight, error) {
	if b.deps.Store == nil {
		return nil, nil
	}
	return b.deps.Store.QueryDomain(domain)
}

// PublishProtocol shares protocol market data with the store.
func (b *Base) PublishProtocol(name string, apy, tvl float64, risk string) {
	if b.deps.Store == nil {
		return
	}
	b.deps.Store.UpdateProtocol(name, apy, tvl, risk)
}

// Stop cancels timers and the agent context. It is idempotent.
func (b *Base) Stop() error {
	b.mu.Lock()
	b.running = false
	b.stopped = true
	b.cancel()
	b.mu.Unlock()
	b.timers.CancelAll()
	return nil
}

// Knowledge returns the retained entries, most recent last.
func (b *Base) Knowledge() []KnowledgeEntry {
	return b.log.Entries()
}

// Log exposes the underlying knowledge log.
func (b *Base) Log() *KnowledgeLog { return b.log }
