package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
)

const (
	whalePollInterval  = 120 * time.Second
	whaleFirstPoll     = 5 * time.Second
	whaleWalletPause   = 2 * time.Second
	whaleSignatureScan = 10
	whaleFirstScan     = 3
)

// Significance tiers for whale moves.
const (
	SignificanceLow    = "low"
	SignificanceMedium = "medium"
	SignificanceHigh   = "high"
)

// WhaleWallet is a tracked address.
type WhaleWallet struct {
	Address string `json:"address"`
	Name    string `json:"name"`
}

// DefaultWhales are tracked when no whaleWallets parameter is given.
var DefaultWhales = []WhaleWallet{
	{Address: "C9RgCQwHbFXJ3VXaUNqiwvJxm2zQfFhRgNpVvCNLfzrf", Name: "Whale-1"},
	{Address: "5Q544fKrFoe6tsEbD7S8EmxGTJYAKtTVhAW5Q5pge4j1", Name: "Jump Trading"},
	{Address: "GThUX1Atko4tqhN2NaiTazWSeFWMuiUvfFnyJyUghFMJ", Name: "Alameda Research"},
}

type whaleParams struct {
	RPCURL       string        `json:"rpcUrl"`
	WhaleWallets []WhaleWallet `json:"whaleWallets"`
}

func (p whaleParams) validate() error {
	for i, w := range p.WhaleWallets {
		if w.Address == "" {
			return fmt.Errorf("whaleWallets[%d]: address is required", i)
		}
	}
	return nil
}

// WhaleMove is the observation emitted for a significant transaction.
type WhaleMove struct {
	Wallet       string    `json:"wallet"`
	Address      string    `json:"address"`
	Signature    string    `json:"signature"`
	Timestamp    time.Time `json:"timestamp"`
	Type         string    `json:"type"`
	Amount       float64   `json:"amount"`
	Significance string    `json:"significance"`
}

// ClassifyWhaleMove grades a transaction by the fee payer's SOL delta.
// Moves above 100 SOL are high, above 10 medium; smaller ones are low
// unless the logs show a Jupiter or Raydium swap.
func ClassifyWhaleMove(tx chain.Transaction) (kind, significance string) {
	change := tx.Delta()
	incoming := tx.PostBalance > tx.PreBalance
	switch {
	case change > 100:
		if incoming {
			return "large_deposit", SignificanceHigh
		}
		return "large_withdrawal", SignificanceHigh
	case change > 10:
		if incoming {
			return "deposit", SignificanceMedium
		}
		return "withdrawal", SignificanceMedium
	}
	for _, line := range tx.LogMessages {
		l := strings.ToLower(line)
		if strings.Contains(l, "jupiter") || strings.Contains(l, "raydium") {
			return "dex_swap", SignificanceMedium
		}
	}
	return "trade_or_swap", SignificanceLow
}

// WhaleWatcher reports significant moves by tracked wallets.
type WhaleWatcher struct {
	*agent.Base

	mu       sync.Mutex
	wallets  []WhaleWallet
	lastSeen map[string]string
}

func newWhaleWatcher(d agent.Descriptor, deps agent.Deps) (agent.Strategy, error) {
	var p whaleParams
	if err := agent.DecodeParams(d.Parameters, &p); err != nil {
		return nil, err
	}
	base, err := agent.NewBase(d, deps, p.RPCURL)
	if err != nil {
		return nil, err
	}
	wallets := p.WhaleWallets
	if len(wallets) == 0 {
		wallets = append([]WhaleWallet(nil), DefaultWhales...)
	}
	for i := range wallets {
		if wallets[i].Name == "" {
			wallets[i].Name = chain.Short(wallets[i].Address)
		}
	}
	return &WhaleWatcher{
		Base:     base,
		wallets:  wallets,
		lastSeen: make(map[string]string),
	}, nil
}

// Initialize records the newest signature of each wallet so the first poll
// only reports fresh activity.
func (w *WhaleWatcher) Initialize(ctx context.Context) error {
	w.Logger().Info("initializing whale watcher", slog.Int("wallets", len(w.wallets)))
	for _, wl := range w.wallets {
		sigs, err := w.Client().RecentSignatures(ctx, wl.Address, 1)
		if err != nil {
			w.Logger().Warn("whale init failed", slog.String("whale", wl.Name), slog.String("error", err.Error()))
			continue
		}
		if len(sigs) > 0 {
			w.setLastSeen(wl.Address, sigs[0].Signature)
		}
	}
	return nil
}

// Run schedules the whale scan.
func (w *WhaleWatcher) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	w.Every(whalePollInterval, "whale-scan", w.scan)
	w.After(whaleFirstPoll, "whale-scan", w.scan)
	return nil
}

func (w *WhaleWatcher) scan(ctx context.Context) error {
	for i, wl := range w.wallets {
		if !w.Running() {
			return nil
		}
		if i > 0 {
			if err := w.Sleep(ctx, whaleWalletPause); err != nil {
				return err
			}
		}
		if err := w.checkWallet(ctx, wl); err != nil {
			w.Logger().Warn("whale check failed", slog.String("whale", wl.Name), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (w *WhaleWatcher) checkWallet(ctx context.Context, wl WhaleWallet) error {
	sigs, err := w.Client().RecentSignatures(ctx, wl.Address, whaleSignatureScan)
	if err != nil {
		return err
	}
	fresh := newSignatures(sigs, w.getLastSeen(wl.Address))
	if len(fresh) == 0 {
		return nil
	}
	w.setLastSeen(wl.Address, sigs[0].Signature)
	w.Logger().Debug("new whale transactions", slog.String("whale", wl.Name), slog.Int("count", len(fresh)))

	for _, sig := range fresh {
		if !w.Running() {
			return nil
		}
		tx, err := w.Client().Transaction(ctx, sig.Signature)
		if errors.Is(err, chain.ErrNotFound) {
			continue
		}
		if err != nil {
			w.Logger().Warn("whale transaction fetch failed",
				slog.String("signature", sig.Signature), slog.String("error", err.Error()))
			continue
		}
		w.report(wl, sig, tx)
	}
	return nil
}

// newSignatures returns the signatures newer than last. With no marker only
// the newest few are considered; a marker that fell out of the window means
// everything returned is new.
func newSignatures(sigs []chain.SignatureInfo, last string) []chain.SignatureInfo {
	if last == "" {
		if len(sigs) > whaleFirstScan {
			return sigs[:whaleFirstScan]
		}
		return sigs
	}
	for i, s := range sigs {
		if s.Signature == last {
			return sigs[:i]
		}
	}
	return sigs
}

func (w *WhaleWatcher) report(wl WhaleWallet, sig chain.SignatureInfo, tx chain.Transaction) {
	kind, significance := ClassifyWhaleMove(tx)
	if significance == SignificanceLow {
		return
	}
	ts := tx.BlockTime
	if ts.IsZero() {
		ts = w.Now()
	}
	move := WhaleMove{
		Wallet:       wl.Name,
		Address:      wl.Address,
		Signature:    sig.Signature,
		Timestamp:    ts,
		Type:         kind,
		Amount:       tx.Delta(),
		Significance: significance,
	}
	if !w.Emit("whale-transaction", move) {
		return
	}
	w.Logger().Info("significant whale move",
		slog.String("whale", wl.Name),
		slog.String("type", kind),
		slog.String("significance", significance),
		slog.Float64("sol", move.Amount))
	w.Ingest(knowledge.Event{
		Type:      knowledge.EventWhaleMove,
		Timestamp: ts,
		Wallet:    wl.Address,
		Signature: sig.Signature,
		Amount:    move.Amount,
		Token:     "SOL",
		Metadata: map[string]any{
			"description":  fmt.Sprintf("%s %s of %.2f SOL", wl.Name, kind, move.Amount),
			"significance": significance,
			"slot":         sig.Slot,
		},
	})
}

func (w *WhaleWatcher) getLastSeen(addr string) string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastSeen[addr]
}

func (w *WhaleWatcher) setLastSeen(addr, sig string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.lastSeen[addr] = sig
}

// WhaleFactory builds whale watchers.
func WhaleFactory() agent.Factory {
	return agent.Factory{
		Type: agent.TypeWhaleWatcher,
		Validate: func(params map[string]any) error {
			var p whaleParams
			if err := agent.DecodeParams(params, &p); err != nil {
				return err
			}
			return p.validate()
		},
		New: newWhaleWatcher,
	}
}
