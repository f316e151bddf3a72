package strategy

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/chain/chaintest"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/logging"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	chain *chaintest.Fake
	clock *scheduler.Manual
	store *knowledge.Store
	rand  []float64
}

func newHarness() *harness {
	m := scheduler.NewManual(epoch)
	return &harness{
		chain: chaintest.New(),
		clock: m,
		store: knowledge.NewStore(knowledge.WithClock(m.Now), knowledge.WithLogger(logging.Discard())),
	}
}

func (h *harness) deps() agent.Deps {
	var mu sync.Mutex
	return agent.Deps{
		Connect:   h.chain.Connector(),
		Store:     h.store,
		Scheduler: h.clock,
		Logger:    logging.Discard(),
		Rand: func() float64 {
			mu.Lock()
			defer mu.Unlock()
			if len(h.rand) == 0 {
				return 0.99
			}
			v := h.rand[0]
			h.rand = h.rand[1:]
			return v
		},
	}
}

func (h *harness) build(t *testing.T, f agent.Factory, params map[string]any) agent.Strategy {
	t.Helper()
	require.NoError(t, f.Validate(params))
	s, err := f.New(agent.Descriptor{ID: f.Type.Prefix() + "-test", Type: f.Type, Parameters: params}, h.deps())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	return s
}

func sol(n float64) uint64 { return uint64(n * chain.LamportsPerSOL) }

func bySource(entries []agent.KnowledgeEntry, source string) []agent.KnowledgeEntry {
	var out []agent.KnowledgeEntry
	for _, e := range entries {
		if e.Source == source {
			out = append(out, e)
		}
	}
	return out
}

const whaleAddr = "WhaleAddr1111111111111111111111111111111111"

func whaleParamsFor(addr string) map[string]any {
	return map[string]any{"whaleWallets": []any{map[string]any{"address": addr, "name": "Test Whale"}}}
}

func TestClassifyWhaleMove(t *testing.T) {
	cases := []struct {
		name         string
		tx           chain.Transaction
		kind, signif string
	}{
		{"large deposit", chain.Transaction{PreBalance: sol(1), PostBalance: sol(151)}, "large_deposit", SignificanceHigh},
		{"large withdrawal", chain.Transaction{PreBalance: sol(200), PostBalance: sol(50)}, "large_withdrawal", SignificanceHigh},
		{"deposit", chain.Transaction{PreBalance: sol(5), PostBalance: sol(25)}, "deposit", SignificanceMedium},
		{"withdrawal", chain.Transaction{PreBalance: sol(25), PostBalance: sol(5)}, "withdrawal", SignificanceMedium},
		{"jupiter swap", chain.Transaction{PreBalance: sol(5), PostBalance: sol(4), LogMessages: []string{"Program log: Jupiter route"}}, "dex_swap", SignificanceMedium},
		{"raydium swap", chain.Transaction{PreBalance: sol(5), PostBalance: sol(4), LogMessages: []string{"raydium amm swap"}}, "dex_swap", SignificanceMedium},
		{"small", chain.Transaction{PreBalance: sol(5), PostBalance: sol(4)}, "trade_or_swap", SignificanceLow},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			kind, signif := ClassifyWhaleMove(tc.tx)
			assert.Equal(t, tc.kind, kind)
			assert.Equal(t, tc.signif, signif)
		})
	}
}

func TestWhaleWatcherEmptyHistory(t *testing.T) {
	h := newHarness()
	s := h.build(t, WhaleFactory(), whaleParamsFor(whaleAddr))

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(whaleFirstPoll)
	h.clock.Advance(whalePollInterval)

	assert.Empty(t, s.Knowledge())
	assert.Equal(t, 0, h.chain.Calls("Transaction"))
	assert.Equal(t, 3, h.chain.Calls("RecentSignatures"))
}

func TestWhaleWatcherReportsOnlyNewActivity(t *testing.T) {
	h := newHarness()
	h.chain.AddTransaction(whaleAddr, chain.Transaction{Signature: "old", PreBalance: sol(0), PostBalance: sol(500)})
	s := h.build(t, WhaleFactory(), whaleParamsFor(whaleAddr))
	require.NoError(t, s.Initialize(context.Background()))

	h.chain.AddTransaction(whaleAddr, chain.Transaction{Signature: "big", Slot: 42, PreBalance: sol(500), PostBalance: sol(650)})
	h.chain.AddTransaction(whaleAddr, chain.Transaction{Signature: "dust", PreBalance: sol(650), PostBalance: sol(649)})

	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(whaleFirstPoll)

	entries := s.Knowledge()
	require.Len(t, entries, 1)
	assert.Equal(t, "whale-transaction", entries[0].Source)
	move, ok := entries[0].Data.(WhaleMove)
	require.True(t, ok)
	assert.Equal(t, "big", move.Signature)
	assert.Equal(t, "large_deposit", move.Type)
	assert.InDelta(t, 150, move.Amount, 1e-9)

	stats := h.store.Stats()
	assert.Equal(t, 1, stats.TotalEvents)
	assert.Equal(t, 1, stats.KnowledgeByCategory[knowledge.CategoryWhaleBehavior])

	// nothing new on the next poll
	h.clock.Advance(whalePollInterval)
	assert.Len(t, s.Knowledge(), 1)
}

func TestWhaleWatcherFirstRunConsidersNewestThree(t *testing.T) {
	h := newHarness()
	s := h.build(t, WhaleFactory(), whaleParamsFor(whaleAddr))
	require.NoError(t, s.Initialize(context.Background()))

	for i := 0; i < 5; i++ {
		h.chain.AddTransaction(whaleAddr, chain.Transaction{
			Signature:   string(rune('a' + i)),
			PreBalance:  sol(100),
			PostBalance: sol(120),
		})
	}
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(whaleFirstPoll)

	assert.Len(t, bySource(s.Knowledge(), "whale-transaction"), 3)
	assert.Equal(t, 3, h.chain.Calls("Transaction"))
}

func TestWhaleWatcherDefaultsAndPauses(t *testing.T) {
	h := newHarness()
	s := h.build(t, WhaleFactory(), nil)
	w := s.(*WhaleWatcher)
	assert.Equal(t, DefaultWhales, w.wallets)

	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(whaleFirstPoll)
	assert.Equal(t, time.Duration(len(DefaultWhales)-1)*whaleWalletPause, h.clock.Slept())
}

func TestWhaleWatcherNoEmissionAfterStopMidPoll(t *testing.T) {
	h := newHarness()
	s := h.build(t, WhaleFactory(), whaleParamsFor(whaleAddr))
	require.NoError(t, s.Initialize(context.Background()))
	h.chain.AddTransaction(whaleAddr, chain.Transaction{Signature: "late", PreBalance: sol(0), PostBalance: sol(1000)})

	entered := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.chain.OnTransaction = func(string) {
		once.Do(func() { close(entered) })
		<-release
	}

	require.NoError(t, s.Run(context.Background()))
	done := make(chan struct{})
	go func() {
		h.clock.Advance(whaleFirstPoll)
		close(done)
	}()

	<-entered
	require.NoError(t, s.Stop())
	close(release)
	<-done

	assert.Empty(t, s.Knowledge())
	assert.Equal(t, 0, h.store.Stats().TotalEvents)
	assert.Equal(t, 0, h.clock.Pending())
}

func TestWhaleFactoryRejectsBadParameters(t *testing.T) {
	f := WhaleFactory()
	assert.Error(t, f.Validate(map[string]any{"whaleWallets": []any{map[string]any{"name": "no address"}}}))
	assert.Error(t, f.Validate(map[string]any{"whaleWallets": "nope"}))
	assert.Error(t, f.Validate(map[string]any{"whale_wallets": []any{map[string]any{"name": "no address"}}}))
	assert.ErrorIs(t, f.Validate(map[string]any{"whaleWalets": []any{map[string]any{"address": whaleAddr}}}), agent.ErrInvalidParameters)
	assert.ErrorIs(t, f.Validate(map[string]any{"rpcurl2": "http://node"}), agent.ErrInvalidParameters)
	assert.NoError(t, f.Validate(whaleParamsFor(whaleAddr)))
}

func TestWhaleWatcherHonoursCamelCaseParameters(t *testing.T) {
	h := newHarness()
	var connected []string
	deps := h.deps()
	connect := deps.Connect
	deps.Connect = func(url string) (chain.Client, error) {
		connected = append(connected, url)
		return connect(url)
	}
	params := map[string]any{
		"rpcUrl":       "http://node.example:8899",
		"whaleWallets": []any{map[string]any{"address": whaleAddr, "name": "Big"}},
	}
	require.NoError(t, WhaleFactory().Validate(params))
	s, err := WhaleFactory().New(agent.Descriptor{ID: "ww-test", Type: agent.TypeWhaleWatcher, Parameters: params}, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })

	w := s.(*WhaleWatcher)
	assert.Equal(t, []WhaleWallet{{Address: whaleAddr, Name: "Big"}}, w.wallets)
	assert.Equal(t, []string{"http://node.example:8899"}, connected)

	legacy := map[string]any{"rpc_url": "http://other:8899", "whale_wallets": []any{map[string]any{"address": "W2"}}}
	s, err = WhaleFactory().New(agent.Descriptor{ID: "ww-legacy", Type: agent.TypeWhaleWatcher, Parameters: legacy}, deps)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Stop() })
	assert.Equal(t, "W2", s.(*WhaleWatcher).wallets[0].Address)
	assert.Equal(t, "http://other:8899", connected[1])
}

func TestMigratePriority(t *testing.T) {
	assert.Equal(t, PriorityUrgent, migratePriority(5.5))
	assert.Equal(t, PriorityHigh, migratePriority(3.5))
	assert.Equal(t, PriorityMedium, migratePriority(2.5))
	assert.Equal(t, PriorityLow, migratePriority(1.5))
}

func TestSuggestAgainstCatalog(t *testing.T) {
	pos := DeFiPosition{Protocol: "Solend", Asset: "USDC", Amount: 5000, CurrentAPY: 9.5, USDValue: 5000}
	got := Suggest(pos, DefaultYieldCatalog, epoch)
	require.Len(t, got, 3)

	assert.Equal(t, "migrate", got[0].Type)
	assert.Equal(t, "Kamino", got[0].To.Protocol)
	assert.Equal(t, PriorityMedium, got[0].Priority)
	assert.InDelta(t, 150, got[0].ExpectedGain, 1e-6)

	assert.Equal(t, "migrate", got[1].Type)
	assert.Equal(t, "MarginFi", got[1].To.Protocol)
	assert.Equal(t, PriorityLow, got[1].Priority)

	assert.Equal(t, "rebalance", got[2].Type)
	assert.Equal(t, "Meteora", got[2].To.Protocol)
	assert.InDelta(t, 5000*0.3*(24.7-9.5)/100, got[2].ExpectedGain, 1e-6)
}

func TestSuggestHedgeOnLowHealthFactor(t *testing.T) {
	hf := 1.2
	pos := DeFiPosition{Protocol: "Kamino", Asset: "JitoSOL", CurrentAPY: 5, USDValue: 500, HealthFactor: &hf}
	got := Suggest(pos, DefaultYieldCatalog, epoch)
	require.Len(t, got, 1)
	assert.Equal(t, "hedge", got[0].Type)
	assert.Equal(t, PriorityUrgent, got[0].Priority)
}

func TestYieldOptimizerInitializePublishesCatalog(t *testing.T) {
	h := newHarness()
	s := h.build(t, YieldFactory(), map[string]any{"wallets": []any{"W1"}})
	require.NoError(t, s.Initialize(context.Background()))

	entries := bySource(s.Knowledge(), "yield-update")
	require.Len(t, entries, 1)
	data := entries[0].Data.(map[string]any)
	assert.Equal(t, "opportunities_updated", data["type"])
	assert.Equal(t, len(DefaultYieldCatalog), data["count"])

	report := h.store.ProtocolIntelligence("Meteora")
	require.NotNil(t, report.CurrentAPY)
	assert.InDelta(t, 24.7, *report.CurrentAPY, 1e-9)
}

func TestYieldOptimizerAnalysis(t *testing.T) {
	h := newHarness()
	h.chain.SetBalance("rich", sol(2))
	h.chain.SetBalance("poor", sol(0.05))
	s := h.build(t, YieldFactory(), map[string]any{"wallets": []any{"rich", "poor"}})
	y := s.(*YieldOptimizer)

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(yieldFirstAnalysis)

	assert.Len(t, y.Positions("rich"), 2)
	assert.Empty(t, y.Positions("poor"))
	assert.NotEmpty(t, y.Suggestions())
	// the simulated book yields nothing above medium
	assert.Empty(t, bySource(s.Knowledge(), "analysis"))
	assert.Equal(t, yieldWalletPause, h.clock.Slept())
}

func TestYieldOptimizerReportsUrgentSuggestions(t *testing.T) {
	h := newHarness()
	s := h.build(t, YieldFactory(), map[string]any{"wallets": []any{"W1"}})
	y := s.(*YieldOptimizer)
	hf := 1.1
	y.positions = func(context.Context, chain.Client, string) ([]DeFiPosition, error) {
		return []DeFiPosition{{Protocol: "Solend", Wallet: "W1", Asset: "SOL", CurrentAPY: 2, USDValue: 800, HealthFactor: &hf}}, nil
	}

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(yieldFirstAnalysis)

	found := bySource(s.Knowledge(), "analysis")
	// Kamino SOL (+6.3) and MarginFi SOL (+5.8) are urgent migrations, plus the hedge
	require.Len(t, found, 3)
	for _, e := range found {
		data := e.Data.(map[string]any)
		assert.Equal(t, "optimization_found", data["type"])
		assert.Equal(t, PriorityUrgent, data["priority"])
	}
	insights, err := h.store.QueryDomain("defi")
	require.NoError(t, err)
	assert.Len(t, insights, 3)

	sugg := y.Suggestions()
	require.NotEmpty(t, sugg)
	assert.Equal(t, PriorityUrgent, sugg[0].Priority)
}

func TestAirdropHunterInitialize(t *testing.T) {
	h := newHarness()
	s := h.build(t, AirdropFactory(), nil)
	require.NoError(t, s.Initialize(context.Background()))

	entries := s.Knowledge()
	require.Len(t, entries, 1)
	assert.Equal(t, "initialization", entries[0].Source)
	data := entries[0].Data.(map[string]any)
	assert.Equal(t, "opportunities_loaded", data["type"])
	assert.Equal(t, []string{"Jupiter", "Tensor", "MarginFi"}, data["projects"])
	assert.Len(t, s.(*AirdropHunter).Opportunities(), 3)
}

func TestAirdropHunterBalanceBoundaryIsIneligible(t *testing.T) {
	h := newHarness()
	h.chain.SetBalance("W1", chain.LamportsPerSOL/10)
	s := h.build(t, AirdropFactory(), map[string]any{"wallet": "W1"})
	a := s.(*AirdropHunter)

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(airdropFirstCheck)

	assert.Empty(t, bySource(s.Knowledge(), "eligibility-check"))
	checks := a.Eligibility()
	require.Len(t, checks, 3)
	for _, c := range checks {
		assert.False(t, c.Eligible, c.Opportunity)
	}
}

func TestAirdropHunterEligibleWallet(t *testing.T) {
	h := newHarness()
	h.chain.SetBalance("W1", chain.LamportsPerSOL/10+1)
	s := h.build(t, AirdropFactory(), map[string]any{"wallet": "W1"})

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(airdropFirstCheck)

	found := bySource(s.Knowledge(), "eligibility-check")
	require.Len(t, found, 3)
	assert.Equal(t, "eligibility_found", found[0].Data.(map[string]any)["type"])

	insights, err := h.store.QueryDomain("airdrops")
	require.NoError(t, err)
	assert.Len(t, insights, 3)
	assert.Equal(t, 2*airdropCheckPause, h.clock.Slept())
}

func TestAirdropHunterDiscovery(t *testing.T) {
	h := newHarness()
	// discover, pick the second candidate; then discover the same one again
	h.rand = []float64{0.1, 0.6, 0.1, 0.6}
	s := h.build(t, AirdropFactory(), nil)
	a := s.(*AirdropHunter)

	require.NoError(t, s.Initialize(context.Background()))
	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(airdropFirstScan)

	scans := bySource(s.Knowledge(), "scan")
	require.Len(t, scans, 1)
	assert.Equal(t, 4, scans[0].Data.(map[string]any)["total"])
	names := make([]string, 0, 4)
	for _, o := range a.Opportunities() {
		names = append(names, o.Project)
	}
	assert.Contains(t, names, "Meteora")

	h.clock.Advance(airdropScanInterval)
	assert.Len(t, bySource(s.Knowledge(), "scan"), 1)
}

func TestRiskScore(t *testing.T) {
	recent := epoch.Add(-time.Hour)
	assert.Equal(t, 0, RiskScore(GuardianProfile{LastActivity: recent}, epoch))
	assert.Equal(t, 25, RiskScore(GuardianProfile{AvgDailyTxCount: 60, AvgTxValue: 150, LastActivity: recent}, epoch))
	assert.Equal(t, 15, RiskScore(GuardianProfile{AvgDailyTxCount: 25, AvgTxValue: 60, LastActivity: recent}, epoch))
	assert.Equal(t, 0, RiskScore(GuardianProfile{AvgDailyTxCount: 25, LastActivity: epoch.Add(-40 * 24 * time.Hour)}, epoch))
}

func TestWalletGuardianDrainEmitsOneCritical(t *testing.T) {
	h := newHarness()
	const wallet = "Victim111111111111111111111111111111111111"
	h.chain.AddTransaction(wallet, chain.Transaction{Signature: "base", BlockTime: epoch.Add(-time.Hour), PreBalance: sol(50), PostBalance: sol(49)})
	s := h.build(t, GuardianFactory(), map[string]any{"wallets": []any{wallet}})
	g := s.(*WalletGuardian)
	require.NoError(t, s.Initialize(context.Background()))

	p, ok := g.Profile(wallet)
	require.True(t, ok)
	assert.InDelta(t, 1.0, p.AvgTxValue, 1e-9)
	assert.InDelta(t, 1.0/7, p.AvgDailyTxCount, 1e-9)

	h.chain.AddTransaction(wallet, chain.Transaction{Signature: "drain", BlockTime: epoch.Add(time.Minute), PreBalance: sol(49), PostBalance: sol(0.5)})
	h.chain.SetBalance(wallet, sol(0.5))

	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(guardianFirstPoll)
	h.clock.Advance(guardianPollInterval)

	var critical []SecurityEvent
	for _, ev := range g.Events() {
		if ev.Severity == SeverityCritical {
			critical = append(critical, ev)
		}
	}
	require.Len(t, critical, 1)
	assert.Equal(t, EventDrainPattern, critical[0].Type)
	assert.Equal(t, "drain", critical[0].Signature)
	assert.Equal(t, EventDrainPattern, g.Events()[0].Type, "critical sorts first")

	entries := bySource(s.Knowledge(), "security-monitor")
	assert.Len(t, entries, 2, "drain plus high value transfer")

	insights, err := h.store.QueryDomain("security")
	require.NoError(t, err)
	require.NotEmpty(t, insights)
	assert.InDelta(t, 0.9, insights[0].Confidence, 1e-9)
}

func TestWalletGuardianInspectsTransactionsWithoutBlockTime(t *testing.T) {
	h := newHarness()
	const wallet = "Victim222222222222222222222222222222222222"
	h.chain.AddTransaction(wallet, chain.Transaction{Signature: "base", BlockTime: epoch.Add(-time.Hour), PreBalance: sol(50), PostBalance: sol(49)})
	s := h.build(t, GuardianFactory(), map[string]any{"wallets": []any{wallet}})
	g := s.(*WalletGuardian)
	require.NoError(t, s.Initialize(context.Background()))

	h.chain.AddTransaction(wallet, chain.Transaction{Signature: "untimed", PreBalance: sol(49), PostBalance: sol(0.5)})
	h.chain.SetBalance(wallet, sol(0.5))

	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(guardianFirstPoll)
	h.clock.Advance(guardianPollInterval)

	var drains int
	for _, ev := range g.Events() {
		if ev.Type == EventDrainPattern {
			drains++
			assert.Equal(t, "untimed", ev.Signature)
		}
	}
	assert.Equal(t, 1, drains, "inspected once, not skipped and not repeated")
}

func TestFreshSignatures(t *testing.T) {
	since := epoch
	sigs := []chain.SignatureInfo{
		{Signature: "c"},
		{Signature: "b", BlockTime: epoch.Add(time.Minute)},
		{Signature: "a", BlockTime: epoch},
	}
	names := func(in []chain.SignatureInfo) []string {
		out := []string{}
		for _, s := range in {
			out = append(out, s.Signature)
		}
		return out
	}
	assert.Equal(t, []string{"c", "b"}, names(freshSignatures(sigs, "", since)))
	assert.Equal(t, []string{"c"}, names(freshSignatures(sigs, "b", since)))
	assert.Equal(t, []string{}, names(freshSignatures(sigs, "c", since)))
	assert.Equal(t, []string{"c", "b", "a"}, names(freshSignatures(sigs, "", epoch.Add(-time.Hour))))
}

func TestWalletGuardianLowBalanceWarning(t *testing.T) {
	h := newHarness()
	h.chain.AddTransaction("W1", chain.Transaction{Signature: "t1", BlockTime: epoch.Add(-time.Hour), PreBalance: sol(10), PostBalance: sol(5)})
	s := h.build(t, GuardianFactory(), map[string]any{"wallets": []any{"W1"}})
	g := s.(*WalletGuardian)
	require.NoError(t, s.Initialize(context.Background()))
	h.chain.SetBalance("W1", sol(0.001))

	require.NoError(t, s.Run(context.Background()))
	h.clock.Advance(guardianFirstPoll)

	events := g.Events()
	require.Len(t, events, 1)
	assert.Equal(t, EventSuspiciousTransaction, events[0].Type)
	assert.Equal(t, SeverityWarning, events[0].Severity)
}

func TestCatalogHoldsEveryVariant(t *testing.T) {
	c := Catalog()
	assert.Equal(t, []agent.Type{
		agent.TypeAirdropHunter,
		agent.TypeWalletGuardian,
		agent.TypeWhaleWatcher,
		agent.TypeYieldOptimizer,
	}, c.Types())
	assert.ErrorIs(t, c.Validate(agent.TypeWalletGuardian, map[string]any{"wallets": "W1"}), agent.ErrInvalidParameters)
	assert.ErrorIs(t, c.Validate(agent.TypeAirdropHunter, map[string]any{"wallet": 7}), agent.ErrInvalidParameters)
	assert.ErrorIs(t, c.Validate(agent.TypeAirdropHunter, map[string]any{"wallets": []any{"W1"}}), agent.ErrInvalidParameters)
	assert.ErrorIs(t, c.Validate(agent.TypeYieldOptimizer, map[string]any{"wallet": "W1"}), agent.ErrInvalidParameters)
	assert.NoError(t, c.Validate(agent.TypeWalletGuardian, map[string]any{"rpcUrl": "http://n", "wallets": []any{"W1"}}))
}
