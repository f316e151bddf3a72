package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
)

const (
	guardianPollInterval = 300 * time.Second
	guardianFirstPoll    = 10 * time.Second
	guardianWalletPause  = 3 * time.Second
	guardianTxPause      = 500 * time.Millisecond
	guardianProfileScan  = 50
	guardianProfileTxs   = 10
	guardianPollScan     = 10
	guardianLowBalance   = chain.LamportsPerSOL / 100
)

// Severities of a security event.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Kinds of security event.
const (
	EventSuspiciousTransaction = "suspicious_transaction"
	EventHighValueTransfer     = "high_value_transfer"
	EventDrainPattern          = "drain_pattern"
)

var severityRank = map[string]int{SeverityCritical: 0, SeverityWarning: 1, SeverityInfo: 2}

// SecurityEvent is one finding about a watched wallet.
type SecurityEvent struct {
	Type           string    `json:"type"`
	Severity       string    `json:"severity"`
	Wallet         string    `json:"wallet"`
	Description    string    `json:"description"`
	Signature      string    `json:"signature,omitempty"`
	DetectedAt     time.Time `json:"detectedAt"`
	Recommendation string    `json:"recommendation"`
}

// GuardianProfile is the behavioural baseline of a watched wallet.
type GuardianProfile struct {
	Address         string    `json:"address"`
	AvgDailyTxCount float64   `json:"avgDailyTxCount"`
	AvgTxValue      float64   `json:"avgTransactionValue"`
	LastActivity    time.Time `json:"lastActivity"`
	RiskScore       int       `json:"riskScore"`
}

// RiskScore grades a profile from 0 (safe) to 100: busy wallets and large
// average values raise it, a month of inactivity lowers it.
func RiskScore(p GuardianProfile, now time.Time) int {
	score := 0
	switch {
	case p.AvgDailyTxCount > 50:
		score += 10
	case p.AvgDailyTxCount > 20:
		score += 5
	}
	switch {
	case p.AvgTxValue > 100:
		score += 15
	case p.AvgTxValue > 50:
		score += 10
	}
	if now.Sub(p.LastActivity) > 30*24*time.Hour {
		score -= 10
	}
	return max(0, min(100, score))
}

type guardianParams struct {
	RPCURL  string   `json:"rpcUrl"`
	Wallets []string `json:"wallets"`
}

// WalletGuardian watches wallets for drains and unusual transfers.
type WalletGuardian struct {
	*agent.Base

	wallets []string

	mu       sync.Mutex
	profiles map[string]*GuardianProfile
	lastSig  map[string]string
	events   []SecurityEvent
}

func newWalletGuardian(d agent.Descriptor, deps agent.Deps) (agent.Strategy, error) {
	var p guardianParams
	if err := agent.DecodeParams(d.Parameters, &p); err != nil {
		return nil, err
	}
	base, err := agent.NewBase(d, deps, p.RPCURL)
	if err != nil {
		return nil, err
	}
	g := &WalletGuardian{
		Base:     base,
		wallets:  dedupe(p.Wallets),
		profiles: make(map[string]*GuardianProfile),
		lastSig:  make(map[string]string),
	}
	for _, w := range g.wallets {
		g.profiles[w] = &GuardianProfile{Address: w}
	}
	return g, nil
}

// Initialize builds the baseline profile of each wallet.
func (g *WalletGuardian) Initialize(ctx context.Context) error {
	g.Logger().Info("initializing wallet guardian", slog.Int("wallets", len(g.wallets)))
	for _, w := range g.wallets {
		if err := g.buildProfile(ctx, w); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			g.Logger().Warn("wallet profile failed", slog.String("wallet", chain.Short(w)), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (g *WalletGuardian) buildProfile(ctx context.Context, wallet string) error {
	sigs, err := g.Client().RecentSignatures(ctx, wallet, guardianProfileScan)
	if err != nil {
		return err
	}
	if len(sigs) == 0 {
		return nil
	}

	var total float64
	var sampled int
	for i, sig := range sigs[:min(len(sigs), guardianProfileTxs)] {
		if i > 0 {
			if err := g.Sleep(ctx, guardianTxPause); err != nil {
				return err
			}
		}
		tx, err := g.Client().Transaction(ctx, sig.Signature)
		if err != nil {
			continue
		}
		total += tx.Delta()
		sampled++
	}

	last := sigs[0].BlockTime
	if last.IsZero() {
		last = g.Now()
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	p := g.profiles[wallet]
	p.LastActivity = last
	g.lastSig[wallet] = sigs[0].Signature
	p.AvgDailyTxCount = float64(len(sigs)) / 7
	if sampled > 0 {
		p.AvgTxValue = total / float64(sampled)
	}
	p.RiskScore = RiskScore(*p, g.Now())
	g.Logger().Debug("wallet profiled",
		slog.String("wallet", chain.Short(wallet)),
		slog.Float64("avg_daily_tx", p.AvgDailyTxCount),
		slog.Float64("avg_value", p.AvgTxValue),
		slog.Int("risk", p.RiskScore))
	return nil
}

// Run schedules the security scan.
func (g *WalletGuardian) Run(ctx context.Context) error {
	if err := g.Start(); err != nil {
		return err
	}
	g.Every(guardianPollInterval, "guardian-scan", g.scan)
	g.After(guardianFirstPoll, "guardian-scan", g.scan)
	return nil
}

func (g *WalletGuardian) scan(ctx context.Context) error {
	for i, w := range g.wallets {
		if !g.Running() {
			return nil
		}
		if i > 0 {
			if err := g.Sleep(ctx, guardianWalletPause); err != nil {
				return err
			}
		}
		events, err := g.check(ctx, w)
		if err != nil {
			g.Logger().Warn("security check failed", slog.String("wallet", chain.Short(w)), slog.String("error", err.Error()))
		}
		for _, ev := range events {
			if !g.report(ev) {
				return nil
			}
		}
	}
	return nil
}

// check inspects the transactions newer than the wallet's last activity and
// its current balance.
func (g *WalletGuardian) check(ctx context.Context, wallet string) ([]SecurityEvent, error) {
	g.mu.Lock()
	profile := *g.profiles[wallet]
	seen := g.lastSig[wallet]
	g.mu.Unlock()

	sigs, err := g.Client().RecentSignatures(ctx, wallet, guardianPollScan)
	if err != nil {
		return nil, err
	}
	if len(sigs) == 0 {
		return nil, nil
	}

	var events []SecurityEvent
	fresh := freshSignatures(sigs, seen, profile.LastActivity)
	if len(fresh) > 0 {
		latest := sigs[0].BlockTime
		if latest.IsZero() || latest.Before(profile.LastActivity) {
			latest = g.Now()
		}
		for i, sig := range fresh {
			if !g.Running() {
				return events, nil
			}
			if i > 0 {
				if err := g.Sleep(ctx, guardianTxPause); err != nil {
					return events, err
				}
			}
			tx, err := g.Client().Transaction(ctx, sig.Signature)
			if errors.Is(err, chain.ErrNotFound) {
				continue
			}
			if err != nil {
				g.Logger().Debug("transaction fetch failed", slog.String("signature", sig.Signature), slog.String("error", err.Error()))
				continue
			}
			events = append(events, InspectTransaction(profile, tx, g.Now())...)
		}
		g.mu.Lock()
		g.profiles[wallet].LastActivity = latest
		g.lastSig[wallet] = sigs[0].Signature
		g.mu.Unlock()
	}

	bal, err := g.Client().Balance(ctx, wallet)
	if err != nil {
		return events, err
	}
	if bal < guardianLowBalance && profile.AvgTxValue > 1 {
		events = append(events, SecurityEvent{
			Type:           EventSuspiciousTransaction,
			Severity:       SeverityWarning,
			Wallet:         wallet,
			Description:    fmt.Sprintf("Wallet balance critically low: %.4f SOL. Possible compromise or complete drain.", chain.ToSOL(bal)),
			DetectedAt:     g.Now(),
			Recommendation: "Investigate recent transactions. Check for unauthorized access.",
		})
	}
	return events, nil
}

// freshSignatures returns the newest-first prefix of sigs that comes after
// the last inspected signature. Without that marker in the page it falls
// back to block time; signatures the node reports no block time for count
// as fresh.
func freshSignatures(sigs []chain.SignatureInfo, seen string, since time.Time) []chain.SignatureInfo {
	for i, s := range sigs {
		if seen != "" && s.Signature == seen {
			return sigs[:i]
		}
		if !s.BlockTime.IsZero() && !s.BlockTime.After(since) {
			return sigs[:i]
		}
	}
	return sigs
}

// InspectTransaction applies the per-transaction rules to tx against the
// wallet's baseline.
func InspectTransaction(p GuardianProfile, tx chain.Transaction, now time.Time) []SecurityEvent {
	var out []SecurityEvent
	change := tx.Delta()
	if change > p.AvgTxValue*5 && change > 10 {
		ratio := "n/a"
		if p.AvgTxValue > 0 {
			ratio = fmt.Sprintf("%.1fx", change/p.AvgTxValue)
		}
		out = append(out, SecurityEvent{
			Type:           EventHighValueTransfer,
			Severity:       SeverityWarning,
			Wallet:         p.Address,
			Description:    fmt.Sprintf("Unusually large transaction: %.2f SOL (%s normal)", change, ratio),
			Signature:      tx.Signature,
			DetectedAt:     now,
			Recommendation: "Verify this transaction was authorized. Check for phishing attempts.",
		})
	}
	if float64(tx.PostBalance) < float64(tx.PreBalance)*0.5 && tx.PostBalance < chain.LamportsPerSOL {
		out = append(out, SecurityEvent{
			Type:     EventDrainPattern,
			Severity: SeverityCritical,
			Wallet:   p.Address,
			Description: fmt.Sprintf("Significant balance reduction: %.2f SOL drained. Balance now: %.4f SOL",
				chain.ToSOL(tx.PreBalance-tx.PostBalance), chain.ToSOL(tx.PostBalance)),
			Signature:      tx.Signature,
			DetectedAt:     now,
			Recommendation: "URGENT: Check if wallet was compromised. Revoke approvals and transfer remaining assets to secure wallet.",
		})
	}
	return out
}

func (g *WalletGuardian) report(ev SecurityEvent) bool {
	if !g.Emit("security-monitor", map[string]any{
		"type":      "security_event",
		"severity":  ev.Severity,
		"eventType": ev.Type,
		"wallet":    chain.Short(ev.Wallet),
	}) {
		return false
	}
	g.mu.Lock()
	g.events = append(g.events, ev)
	g.mu.Unlock()

	level := slog.LevelInfo
	if ev.Severity == SeverityCritical {
		level = slog.LevelWarn
	}
	g.Logger().Log(context.Background(), level, "security event",
		slog.String("wallet", chain.Short(ev.Wallet)),
		slog.String("event", ev.Type),
		slog.String("severity", ev.Severity))

	stored := knowledge.Event{
		Type:      knowledge.EventSecurity,
		Timestamp: ev.DetectedAt,
		Wallet:    ev.Wallet,
		Signature: ev.Signature,
		Metadata: map[string]any{
			"severity":       ev.Severity,
			"eventType":      ev.Type,
			"description":    ev.Description,
			"recommendation": ev.Recommendation,
		},
	}
	if ev.Signature != "" {
		stored.ID = ev.Type + ":" + ev.Signature
	}
	g.Ingest(stored)
	return true
}

// Events returns the findings so far, critical first.
func (g *WalletGuardian) Events() []SecurityEvent {
	g.mu.Lock()
	out := append([]SecurityEvent(nil), g.events...)
	g.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return severityRank[out[i].Severity] < severityRank[out[j].Severity] })
	return out
}

// Profile returns the baseline of wallet.
func (g *WalletGuardian) Profile(wallet string) (GuardianProfile, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	p, ok := g.profiles[wallet]
	if !ok {
		return GuardianProfile{}, false
	}
	return *p, true
}

// GuardianFactory builds wallet guardians.
func GuardianFactory() agent.Factory {
	return agent.Factory{
		Type: agent.TypeWalletGuardian,
		Validate: func(params map[string]any) error {
			var p guardianParams
			return agent.DecodeParams(params, &p)
		},
		New: newWalletGuardian,
	}
}
