package strategy

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
)

const (
	yieldRefreshInterval = 7200 * time.Second
	yieldFirstAnalysis   = 15 * time.Second
	yieldWalletPause     = 2 * time.Second

	// minActiveLamports is the balance below which a wallet is treated as
	// holding no positions.
	minActiveLamports = chain.LamportsPerSOL / 10
)

// Priorities of a yield suggestion, lowest first.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
	PriorityUrgent = "urgent"
)

var priorityRank = map[string]int{PriorityUrgent: 0, PriorityHigh: 1, PriorityMedium: 2, PriorityLow: 3}

// YieldOpportunity is one entry of the yield catalog.
type YieldOpportunity struct {
	Protocol string  `json:"protocol"`
	Asset    string  `json:"asset"`
	APY      float64 `json:"apy"`
	TVL      float64 `json:"tvl"`
	Risk     string  `json:"risk"`
	Category string  `json:"category"`
}

// DefaultYieldCatalog stands in for live protocol feeds.
var DefaultYieldCatalog = []YieldOpportunity{
	{Protocol: "Kamino", Asset: "USDC", APY: 12.5, TVL: 450_000_000, Risk: "low", Category: "lending"},
	{Protocol: "Kamino", Asset: "SOL", APY: 8.3, TVL: 280_000_000, Risk: "low", Category: "lending"},
	{Protocol: "MarginFi", Asset: "USDC", APY: 11.2, TVL: 320_000_000, Risk: "low", Category: "lending"},
	{Protocol: "MarginFi", Asset: "SOL", APY: 7.8, TVL: 180_000_000, Risk: "low", Category: "lending"},
	{Protocol: "Solend", Asset: "USDC", APY: 9.5, TVL: 180_000_000, Risk: "medium", Category: "lending"},
	{Protocol: "Meteora", Asset: "SOL-USDC", APY: 24.7, TVL: 85_000_000, Risk: "medium", Category: "liquidity"},
	{Protocol: "Raydium", Asset: "SOL-USDC", APY: 18.9, TVL: 120_000_000, Risk: "medium", Category: "liquidity"},
	{Protocol: "Marinade", Asset: "mSOL", APY: 6.8, TVL: 420_000_000, Risk: "low", Category: "staking"},
	{Protocol: "Sanctum", Asset: "LST", APY: 7.2, TVL: 95_000_000, Risk: "low", Category: "staking"},
}

// DeFiPosition is a wallet's holding in one protocol.
type DeFiPosition struct {
	Protocol     string   `json:"protocol"`
	Wallet       string   `json:"wallet"`
	Asset        string   `json:"asset"`
	Amount       float64  `json:"amount"`
	CurrentAPY   float64  `json:"currentAPY"`
	USDValue     float64  `json:"usdValue"`
	HealthFactor *float64 `json:"healthFactor,omitempty"`
}

// YieldLeg is one side of a suggestion.
type YieldLeg struct {
	Protocol string  `json:"protocol"`
	Asset    string  `json:"asset"`
	APY      float64 `json:"apy"`
}

// Suggestion is a proposed change to a position.
type Suggestion struct {
	Type         string    `json:"type"`
	From         YieldLeg  `json:"from"`
	To           YieldLeg  `json:"to"`
	ExpectedGain float64   `json:"expectedGain"`
	Reasoning    string    `json:"reasoning"`
	Priority     string    `json:"priority"`
	GeneratedAt  time.Time `json:"generatedAt"`
}

type yieldParams struct {
	RPCURL  string   `json:"rpcUrl"`
	Wallets []string `json:"wallets"`
}

// PositionSource returns the positions held by a wallet.
type PositionSource func(ctx context.Context, client chain.Client, wallet string) ([]DeFiPosition, error)

// YieldOptimizer compares tracked wallets' positions with the yield catalog
// and reports worthwhile moves.
type YieldOptimizer struct {
	*agent.Base

	wallets   []string
	positions PositionSource

	mu          sync.Mutex
	catalog     []YieldOpportunity
	held        map[string][]DeFiPosition
	suggestions map[string][]Suggestion
}

func newYieldOptimizer(d agent.Descriptor, deps agent.Deps) (agent.Strategy, error) {
	var p yieldParams
	if err := agent.DecodeParams(d.Parameters, &p); err != nil {
		return nil, err
	}
	base, err := agent.NewBase(d, deps, p.RPCURL)
	if err != nil {
		return nil, err
	}
	return &YieldOptimizer{
		Base:        base,
		wallets:     dedupe(p.Wallets),
		positions:   simulatedPositions,
		held:        make(map[string][]DeFiPosition),
		suggestions: make(map[string][]Suggestion),
	}, nil
}

// simulatedPositions stands in for protocol SDK lookups: funded wallets are
// given a fixed lending book.
func simulatedPositions(ctx context.Context, client chain.Client, wallet string) ([]DeFiPosition, error) {
	bal, err := client.Balance(ctx, wallet)
	if err != nil {
		return nil, err
	}
	if bal < minActiveLamports {
		return nil, nil
	}
	solendHF, marginfiHF := 2.5, 3.2
	return []DeFiPosition{
		{Protocol: "Solend", Wallet: wallet, Asset: "USDC", Amount: 5000, CurrentAPY: 9.5, USDValue: 5000, HealthFactor: &solendHF},
		{Protocol: "MarginFi", Wallet: wallet, Asset: "SOL", Amount: 15, CurrentAPY: 7.8, USDValue: 1500, HealthFactor: &marginfiHF},
	}, nil
}

// Initialize loads the yield catalog.
func (y *YieldOptimizer) Initialize(ctx context.Context) error {
	y.Logger().Info("initializing yield optimizer", slog.Int("wallets", len(y.wallets)))
	y.refresh()
	return nil
}

// Run schedules the catalog refresh and the position analysis.
func (y *YieldOptimizer) Run(ctx context.Context) error {
	if err := y.Start(); err != nil {
		return err
	}
	y.Every(yieldRefreshInterval, "yield-refresh", func(ctx context.Context) error {
		y.refresh()
		return y.analyze(ctx)
	})
	y.After(yieldFirstAnalysis, "yield-analysis", y.analyze)
	return nil
}

func (y *YieldOptimizer) refresh() {
	catalog := append([]YieldOpportunity(nil), DefaultYieldCatalog...)
	y.mu.Lock()
	y.catalog = catalog
	y.mu.Unlock()

	apys := make([]float64, len(catalog))
	var tvl float64
	for i, o := range catalog {
		apys[i] = o.APY
		tvl += o.TVL
		y.PublishProtocol(o.Protocol, o.APY, o.TVL, o.Risk)
	}
	y.Emit("yield-update", map[string]any{
		"type":     "opportunities_updated",
		"count":    len(catalog),
		"avgAPY":   stat.Mean(apys, nil),
		"totalTVL": tvl,
	})
}

func (y *YieldOptimizer) analyze(ctx context.Context) error {
	for i, wallet := range y.wallets {
		if !y.Running() {
			return nil
		}
		if i > 0 {
			if err := y.Sleep(ctx, yieldWalletPause); err != nil {
				return err
			}
		}
		if err := y.analyzeWallet(ctx, wallet); err != nil {
			y.Logger().Warn("position analysis failed", slog.String("wallet", chain.Short(wallet)), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (y *YieldOptimizer) analyzeWallet(ctx context.Context, wallet string) error {
	positions, err := y.positions(ctx, y.Client(), wallet)
	if err != nil {
		return err
	}
	if len(positions) == 0 {
		return nil
	}

	y.mu.Lock()
	catalog := y.catalog
	y.mu.Unlock()

	now := y.Now()
	var all []Suggestion
	for _, pos := range positions {
		for _, s := range Suggest(pos, catalog, now) {
			all = append(all, s)
			if s.Priority != PriorityHigh && s.Priority != PriorityUrgent {
				continue
			}
			if !y.Emit("analysis", map[string]any{
				"type":         "optimization_found",
				"wallet":       chain.Short(wallet),
				"priority":     s.Priority,
				"expectedGain": s.ExpectedGain,
				"from":         s.From.Protocol,
				"to":           s.To.Protocol,
			}) {
				return nil
			}
			y.Contribute(knowledge.Insight{
				Category:   knowledge.CategoryDeFiPatterns,
				Content:    s.Reasoning,
				Confidence: 0.7,
				Sources:    []string{wallet, s.From.Protocol, s.To.Protocol},
			})
		}
	}
	sortSuggestions(all)

	y.mu.Lock()
	y.held[wallet] = positions
	y.suggestions[wallet] = all
	y.mu.Unlock()
	return nil
}

// Suggest derives suggestions for one position against the catalog.
func Suggest(pos DeFiPosition, catalog []YieldOpportunity, now time.Time) []Suggestion {
	var out []Suggestion
	from := YieldLeg{Protocol: pos.Protocol, Asset: pos.Asset, APY: pos.CurrentAPY}

	for _, opp := range catalog {
		if opp.Asset != pos.Asset || opp.Protocol == pos.Protocol {
			continue
		}
		diff := opp.APY - pos.CurrentAPY
		if diff <= 1 {
			continue
		}
		gain := pos.USDValue * diff / 100
		out = append(out, Suggestion{
			Type:         "migrate",
			From:         from,
			To:           YieldLeg{Protocol: opp.Protocol, Asset: opp.Asset, APY: opp.APY},
			ExpectedGain: gain,
			Reasoning: fmt.Sprintf("Migrate %s from %s (%.1f%% APY) to %s (%.1f%% APY). Expected gain: $%.2f/year",
				pos.Asset, pos.Protocol, pos.CurrentAPY, opp.Protocol, opp.APY, gain),
			Priority:    migratePriority(diff),
			GeneratedAt: now,
		})
	}

	if pos.USDValue > 1000 {
		var best *YieldOpportunity
		for i := range catalog {
			o := &catalog[i]
			if o.Category != "liquidity" || o.APY <= pos.CurrentAPY*1.5 {
				continue
			}
			if best == nil || o.APY > best.APY {
				best = o
			}
		}
		if best != nil {
			gain := pos.USDValue * 0.3 * (best.APY - pos.CurrentAPY) / 100
			out = append(out, Suggestion{
				Type:         "rebalance",
				From:         from,
				To:           YieldLeg{Protocol: best.Protocol, Asset: best.Asset, APY: best.APY},
				ExpectedGain: gain,
				Reasoning: fmt.Sprintf("Consider moving 30%% of %s into %s %s LP (%.1f%% APY vs %.1f%%). Expected gain: $%.2f/year",
					pos.Asset, best.Protocol, best.Asset, best.APY, pos.CurrentAPY, gain),
				Priority:    PriorityMedium,
				GeneratedAt: now,
			})
		}
	}

	if pos.HealthFactor != nil && *pos.HealthFactor < 1.5 {
		out = append(out, Suggestion{
			Type: "hedge",
			From: from,
			To:   from,
			Reasoning: fmt.Sprintf("Health factor is %.2f on %s. Add collateral or reduce borrowing to avoid liquidation.",
				*pos.HealthFactor, pos.Protocol),
			Priority:    PriorityUrgent,
			GeneratedAt: now,
		})
	}
	return out
}

func migratePriority(diff float64) string {
	switch {
	case diff > 5:
		return PriorityUrgent
	case diff > 3:
		return PriorityHigh
	case diff > 2:
		return PriorityMedium
	}
	return PriorityLow
}

func sortSuggestions(s []Suggestion) {
	sort.SliceStable(s, func(i, j int) bool {
		return priorityRank[s[i].Priority] < priorityRank[s[j].Priority]
	})
}

// Suggestions returns the latest suggestions across wallets, most urgent
// first.
func (y *YieldOptimizer) Suggestions() []Suggestion {
	y.mu.Lock()
	defer y.mu.Unlock()
	var out []Suggestion
	for _, w := range y.wallets {
		out = append(out, y.suggestions[w]...)
	}
	sortSuggestions(out)
	return out
}

// Positions returns the last positions seen for wallet.
func (y *YieldOptimizer) Positions(wallet string) []DeFiPosition {
	y.mu.Lock()
	defer y.mu.Unlock()
	return append([]DeFiPosition(nil), y.held[wallet]...)
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// YieldFactory builds yield optimizers.
func YieldFactory() agent.Factory {
	return agent.Factory{
		Type: agent.TypeYieldOptimizer,
		Validate: func(params map[string]any) error {
			var p yieldParams
			return agent.DecodeParams(params, &p)
		},
		New: newYieldOptimizer,
	}
}
