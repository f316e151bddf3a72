// Package indexer feeds the knowledge store from the chain: it polls a set
// of whale wallets and protocol program addresses and ingests what it has
// not seen before.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

const (
	DefaultWhaleInterval    = 30 * time.Second
	DefaultProtocolInterval = 60 * time.Second
	DefaultSeenCapacity     = 10000

	whaleSignatureLimit    = 10
	protocolSignatureLimit = 5
)

// Protocol is a program address tracked by name.
type Protocol struct {
	Name    string
	Address string
}

// DefaultProtocols are the DeFi programs polled when none are configured.
var DefaultProtocols = []Protocol{
	{Name: "marinade", Address: "MarBmsSgKXdrN1egZf5sqe1TMai9K1rChYNDJgjq7aD"},
	{Name: "jupiter", Address: "JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"},
	{Name: "raydium", Address: "675kPX9MHTjS2zt1qfr1NYHuzeLXfQM9H24wFSUt1Mp8"},
	{Name: "orca", Address: "whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc"},
	{Name: "kamino", Address: "KLend2g3cP87fffoy8q1mQqGKjrxjC8boSyAYavgmjD"},
	{Name: "drift", Address: "dRiftyHA39MWEi3m9aunc5MzRF1JYuBsbn6VPcn33UH"},
	{Name: "mango", Address: "4MangoMjqJ2firMokCjjGgoK8d4MXcrgL7XJaL3w6fVg"},
	{Name: "solend", Address: "So1endDq2YkqhipRh3WViPa8hdiSpxWy6z3Z6tMCpAo"},
	{Name: "marginfi", Address: "MFv2hWf31Z9kbCa1snEPYctwafyhdvnV7FZnsebVacA"},
}

// DefaultWhales are the wallets polled when none are configured.
var DefaultWhales = []string{
	"GThUX1Atko4tqhN2NaiTazWSeFWMuiUvfFnyJyUghFMJ",
	"5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1",
	"H8UekPGwePSmQ3ttuYGPU1szyFfjZR4N53rymSFwpLPm",
	"CuieVDEDtLo7FypA9SbLM9saXFdb1dsshEkyErMqkRQq",
}

// Store is the part of the knowledge store the indexer writes to.
type Store interface {
	Ingest(knowledge.Event) knowledge.Event
	Contribute(knowledge.Insight) knowledge.Insight
}

// Options configures an Indexer. Zero values take the defaults.
type Options struct {
	Client           chain.Client
	Store            Store
	Scheduler        scheduler.Scheduler
	Logger           *slog.Logger
	WhaleInterval    time.Duration
	ProtocolInterval time.Duration
	Whales           []string
	Protocols        []Protocol
	SeenCapacity     int
}

// Stats counts what the indexer has ingested.
type Stats struct {
	Running        bool  `json:"running"`
	WhaleEvents    int64 `json:"whaleEvents"`
	ProtocolEvents int64 `json:"protocolEvents"`
	Seen           int   `json:"seenSignatures"`
}

// Indexer polls the chain and ingests whale and protocol activity.
type Indexer struct {
	opts   Options
	logger *slog.Logger
	seen   *lru.Cache[string, struct{}]

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	timers  scheduler.Group

	whaleBusy    atomic.Bool
	protocolBusy atomic.Bool
	whaleN       atomic.Int64
	protocolN    atomic.Int64
}

// New returns an idle indexer.
func New(opts Options) (*Indexer, error) {
	if opts.Client == nil || opts.Store == nil {
		return nil, errors.New("indexer: client and store are required")
	}
	if opts.Scheduler == nil {
		opts.Scheduler = scheduler.NewReal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.WhaleInterval <= 0 {
		opts.WhaleInterval = DefaultWhaleInterval
	}
	if opts.ProtocolInterval <= 0 {
		opts.ProtocolInterval = DefaultProtocolInterval
	}
	if opts.Whales == nil {
		opts.Whales = DefaultWhales
	}
	if opts.Protocols == nil {
		opts.Protocols = DefaultProtocols
	}
	if opts.SeenCapacity <= 0 {
		opts.SeenCapacity = DefaultSeenCapacity
	}
	seen, err := lru.New[string, struct{}](opts.SeenCapacity)
	if err != nil {
		return nil, fmt.Errorf("indexer: seen set: %w", err)
	}
	return &Indexer{
		opts:   opts,
		logger: opts.Logger.With(slog.String("component", "indexer")),
		seen:   seen,
	}, nil
}

// Start runs a first pass of both loops right away and then one per
// interval. Starting a running indexer does nothing.
func (ix *Indexer) Start(ctx context.Context) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if ix.running {
		return
	}
	ctx, ix.cancel = context.WithCancel(ctx)
	ix.running = true

	s := ix.opts.Scheduler
	whales := func() { ix.guard(ctx, "whales", &ix.whaleBusy, ix.pollWhales) }
	protocols := func() { ix.guard(ctx, "protocols", &ix.protocolBusy, ix.pollProtocols) }
	ix.timers.Add(s.After(0, whales))
	ix.timers.Add(s.After(0, protocols))
	ix.timers.Add(s.Every(ix.opts.WhaleInterval, whales))
	ix.timers.Add(s.Every(ix.opts.ProtocolInterval, protocols))
	ix.logger.Info("indexer started",
		slog.Int("whales", len(ix.opts.Whales)),
		slog.Int("protocols", len(ix.opts.Protocols)))
}

// Stop cancels both loops. It is idempotent.
func (ix *Indexer) Stop() {
	ix.mu.Lock()
	if !ix.running {
		ix.mu.Unlock()
		return
	}
	ix.running = false
	ix.cancel()
	ix.mu.Unlock()
	ix.timers.CancelAll()
	ix.logger.Info("indexer stopped")
}

// Running reports whether the indexer is started.
func (ix *Indexer) Running() bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.running
}

// Stats reports ingestion counters.
func (ix *Indexer) Stats() Stats {
	return Stats{
		Running:        ix.Running(),
		WhaleEvents:    ix.whaleN.Load(),
		ProtocolEvents: ix.protocolN.Load(),
		Seen:           ix.seen.Len(),
	}
}

// guard skips a pass while the previous one of the same loop is still in
// flight and contains panics.
func (ix *Indexer) guard(ctx context.Context, name string, busy *atomic.Bool, fn func(context.Context)) {
	if !ix.Running() {
		return
	}
	if !busy.CompareAndSwap(false, true) {
		ix.logger.Debug("pass skipped, previous still running", slog.String("loop", name))
		return
	}
	defer busy.Store(false)
	defer func() {
		if r := recover(); r != nil {
			ix.logger.Error("indexer pass panicked",
				slog.String("loop", name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())))
		}
	}()
	fn(ctx)
}

// markSeen reports whether sig is new and records it.
func (ix *Indexer) markSeen(sig string) bool {
	ok, _ := ix.seen.ContainsOrAdd(sig, struct{}{})
	return !ok
}

func (ix *Indexer) pollWhales(ctx context.Context) {
	for _, wallet := range ix.opts.Whales {
		if ctx.Err() != nil {
			return
		}
		sigs, err := ix.opts.Client.RecentSignatures(ctx, wallet, whaleSignatureLimit)
		if err != nil {
			ix.logger.Warn("whale poll failed", slog.String("wallet", chain.Short(wallet)), slog.String("error", err.Error()))
			continue
		}
		for _, sig := range sigs {
			if !ix.markSeen(sig.Signature) {
				continue
			}
			tx, err := ix.opts.Client.Transaction(ctx, sig.Signature)
			if errors.Is(err, chain.ErrNotFound) {
				continue
			}
			if err != nil {
				// retry on the next pass
				ix.seen.Remove(sig.Signature)
				ix.logger.Debug("whale transaction fetch failed", slog.String("signature", sig.Signature), slog.String("error", err.Error()))
				continue
			}
			ix.opts.Store.Ingest(knowledge.Event{
				ID:        sig.Signature,
				Type:      knowledge.EventWhaleMove,
				Timestamp: ix.timestamp(sig),
				Wallet:    wallet,
				Signature: sig.Signature,
				Amount:    tx.Delta(),
				Metadata: map[string]any{
					"description": fmt.Sprintf("Whale %s transaction", chain.Short(wallet)),
					"slot":        sig.Slot,
					"failed":      sig.Failed,
				},
			})
			ix.whaleN.Add(1)
		}
	}
}

func (ix *Indexer) pollProtocols(ctx context.Context) {
	for _, p := range ix.opts.Protocols {
		if ctx.Err() != nil {
			return
		}
		sigs, err := ix.opts.Client.RecentSignatures(ctx, p.Address, protocolSignatureLimit)
		if err != nil {
			ix.logger.Warn("protocol poll failed", slog.String("protocol", p.Name), slog.String("error", err.Error()))
			continue
		}
		for _, sig := range sigs {
			if !ix.markSeen(sig.Signature) {
				continue
			}
			ix.opts.Store.Ingest(knowledge.Event{
				ID:        sig.Signature,
				Type:      knowledge.EventProtocolInteraction,
				Timestamp: ix.timestamp(sig),
				Signature: sig.Signature,
				Protocol:  p.Name,
				Metadata: map[string]any{
					"description": p.Name + " interaction",
					"slot":        sig.Slot,
				},
			})
			ix.protocolN.Add(1)
		}
	}
}

func (ix *Indexer) timestamp(sig chain.SignatureInfo) time.Time {
	if sig.BlockTime.IsZero() {
		return ix.opts.Scheduler.Now()
	}
	return sig.BlockTime
}
