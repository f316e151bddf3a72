// Package knowledge is the shared event and insight store agents feed and
// query. Similarity search runs over toy hashed-character embeddings.
package knowledge

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gonum.org/v1/gonum/stat"
)

const (
	// DefaultMaxEvents bounds the raw event history.
	DefaultMaxEvents = 10000

	topK          = 5
	recentLimit   = 20
	marketWindow  = 24 * time.Hour
	noDataAnswer  = "I don't have enough data to answer that yet. New blockchain activity is still being indexed."
	shortAddrSize = 8
)

// ErrUnknownDomain is returned by QueryDomain for an unrecognised domain.
var ErrUnknownDomain = errors.New("knowledge: unknown domain")

var domainCategories = map[string]Category{
	"whales":   CategoryWhaleBehavior,
	"airdrops": CategoryAirdrops,
	"defi":     CategoryDeFiPatterns,
	"security": CategorySecurity,
}

// Store holds events, insights and per-wallet / per-protocol aggregates. It
// is safe for concurrent use.
type Store struct {
	mu sync.RWMutex

	events     map[string]*Event
	eventOrder []string
	maxEvents  int

	insights     map[string]*Insight
	insightOrder []string

	wallets   map[string]*WalletProfile
	protocols map[string]*ProtocolProfile

	lastIngestion time.Time
	now           func() time.Time
	logger        *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMaxEvents caps the raw event history. Oldest events are evicted first.
func WithMaxEvents(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.maxEvents = n
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// NewStore returns an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		events:    make(map[string]*Event),
		maxEvents: DefaultMaxEvents,
		insights:  make(map[string]*Insight),
		wallets:   make(map[string]*WalletProfile),
		protocols: make(map[string]*ProtocolProfile),
		now:       time.Now,
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(slog.String("component", "knowledge"))
	return s
}

// Ingest stores ev, derives insights from it and updates aggregates. The
// stored event (with defaults filled in) is returned.
func (s *Store) Ingest(ev Event) Event {
	if ev.ID == "" {
		ev.ID = ev.Signature
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.Metadata == nil {
		ev.Metadata = map[string]any{}
	}
	ev.Protocol = strings.ToLower(ev.Protocol)
	ev.embedding = embedEvent(ev)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if ev.Timestamp.IsZero() {
		ev.Timestamp = now
	}
	if _, seen := s.events[ev.ID]; !seen {
		s.eventOrder = append(s.eventOrder, ev.ID)
	}
	stored := ev
	s.events[ev.ID] = &stored
	s.lastIngestion = now

	for _, in := range deriveInsights(ev) {
		s.addInsightLocked(in)
	}
	s.updateProfilesLocked(ev)
	s.evictLocked()
	return stored
}

// deriveInsights applies the pattern rules to one event.
func deriveInsights(ev Event) []Insight {
	source := ev.Signature
	if source == "" {
		source = ev.ID
	}
	desc := metaString(ev.Metadata, "description")

	var out []Insight
	switch ev.Type {
	case EventWhaleMove:
		if ev.Amount > 100 {
			out = append(out, Insight{
				Category:   CategoryWhaleBehavior,
				Content:    fmt.Sprintf("Whale wallet %s made significant move: %s", short(ev.Wallet), desc),
				Confidence: 0.85,
				Sources:    []string{source},
			})
		}
	case EventProtocolInteraction:
		action := metaString(ev.Metadata, "action")
		if action == "" {
			action = desc
		}
		out = append(out, Insight{
			Category:   CategoryDeFiPatterns,
			Content:    fmt.Sprintf("Protocol %s interaction: %s", ev.Protocol, action),
			Confidence: 0.75,
			Sources:    []string{source},
		})
	case EventSecurity:
		conf := 0.0
		switch metaString(ev.Metadata, "severity") {
		case "critical":
			conf = 0.9
		case "warning":
			conf = 0.6
		}
		if conf > 0 {
			out = append(out, Insight{
				Category:   CategorySecurity,
				Content:    fmt.Sprintf("Security alert on wallet %s: %s", short(ev.Wallet), desc),
				Confidence: conf,
				Sources:    []string{source, ev.Wallet},
			})
		}
	}
	return out
}

// Contribute adds an insight produced outside the ingest rules. Missing ID
// and LearnedAt are filled in; confidence is clamped to [0,1].
func (s *Store) Contribute(in Insight) Insight {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := s.addInsightLocked(in)
	s.logger.Debug("insight contributed",
		slog.String("category", string(stored.Category)),
		slog.String("id", stored.ID))
	return stored
}

func (s *Store) addInsightLocked(in Insight) Insight {
	if in.ID == "" {
		in.ID = "k-" + uuid.NewString()
	}
	if in.LearnedAt.IsZero() {
		in.LearnedAt = s.now()
	}
	in.Confidence = clamp01(in.Confidence)
	in.Sources = append([]string(nil), in.Sources...)
	in.embedding = embed(in.Content)
	if _, seen := s.insights[in.ID]; !seen {
		s.insightOrder = append(s.insightOrder, in.ID)
	}
	stored := in
	s.insights[in.ID] = &stored
	return stored
}

func (s *Store) updateProfilesLocked(ev Event) {
	if ev.Wallet != "" {
		p, ok := s.wallets[ev.Wallet]
		if !ok {
			p = &WalletProfile{Wallet: ev.Wallet, FirstSeen: ev.Timestamp}
			s.wallets[ev.Wallet] = p
		}
		p.TxCount++
		p.TotalVolume += ev.Amount
		p.LastSeen = ev.Timestamp
	}
	if ev.Protocol != "" {
		p := s.protocolLocked(ev.Protocol)
		p.Interactions++
		p.LastActivity = ev.Timestamp
	}
}

func (s *Store) protocolLocked(name string) *ProtocolProfile {
	p, ok := s.protocols[name]
	if !ok {
		p = &ProtocolProfile{Protocol: name}
		s.protocols[name] = p
	}
	return p
}

func (s *Store) evictLocked() {
	for len(s.eventOrder) > s.maxEvents {
		id := s.eventOrder[0]
		s.eventOrder = s.eventOrder[1:]
		delete(s.events, id)
	}
}

// UpdateProtocol records published market data for a protocol.
func (s *Store) UpdateProtocol(name string, apy, tvl float64, risk string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.protocolLocked(strings.ToLower(name))
	p.APY = &apy
	p.TVL = &tvl
	p.RiskLevel = risk
}

type scored struct {
	insight    *Insight
	similarity float64
}

// Query ranks insights by similarity to question and answers from the best
// match. Confidence is the mean similarity-weighted confidence of the top
// results.
func (s *Store) Query(question string) QueryResult {
	q := embed(question)

	s.mu.RLock()
	defer s.mu.RUnlock()

	ranked := make([]scored, 0, len(s.insights))
	for _, id := range s.insightOrder {
		in := s.insights[id]
		ranked = append(ranked, scored{insight: in, similarity: cosine(q, in.embedding)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].similarity > ranked[j].similarity
	})
	if len(ranked) > topK {
		ranked = ranked[:topK]
	}

	res := QueryResult{Answer: noDataAnswer, Sources: []Insight{}, RawData: []Event{}}
	if len(ranked) == 0 {
		return res
	}

	weights := make([]float64, len(ranked))
	seen := map[string]bool{}
	for i, r := range ranked {
		weights[i] = r.similarity * r.insight.Confidence
		res.Sources = append(res.Sources, *r.insight)
		for _, src := range r.insight.Sources {
			if seen[src] {
				continue
			}
			seen[src] = true
			if ev, ok := s.events[src]; ok {
				res.RawData = append(res.RawData, *ev)
			}
		}
	}
	res.Answer = ranked[0].insight.Content
	res.Confidence = clamp01(stat.Mean(weights, nil))
	s.logger.Debug("query answered", slog.String("question", question), slog.Float64("confidence", res.Confidence))
	return res
}

// QueryDomain returns every insight of the domain's category, most confident
// first. Domains are whales, airdrops, defi and security.
func (s *Store) QueryDomain(domain string) ([]Insight, error) {
	cat, ok := domainCategories[strings.ToLower(domain)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.insightsWhereLocked(func(in *Insight) bool { return in.Category == cat })
	sortByConfidence(out)
	return out, nil
}

// WalletIntelligence reports everything known about a wallet.
func (s *Store) WalletIntelligence(wallet string) WalletReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep := WalletReport{RiskScore: 50}
	if p, ok := s.wallets[wallet]; ok {
		cp := *p
		rep.Profile = &cp
		rep.RiskScore = riskScore(cp)
	}
	rep.RecentActivity = s.recentEventsLocked(func(ev *Event) bool { return ev.Wallet == wallet })
	abbrev := short(wallet)
	rep.Insights = s.insightsWhereLocked(func(in *Insight) bool {
		for _, src := range in.Sources {
			if strings.Contains(src, wallet) {
				return true
			}
		}
		return abbrev != "" && strings.Contains(in.Content, abbrev)
	})
	return rep
}

// riskScore is a coarse activity-based score in [0,100].
func riskScore(p WalletProfile) int {
	score := 0
	if p.TxCount > 100 {
		score += 20
	}
	if p.TotalVolume > 10000 {
		score += 15
	}
	return min(score, 100)
}

// ProtocolIntelligence reports everything known about a protocol.
func (s *Store) ProtocolIntelligence(name string) ProtocolReport {
	key := strings.ToLower(name)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rep := ProtocolReport{RiskLevel: "unknown"}
	if p, ok := s.protocols[key]; ok {
		rep.CurrentAPY = p.APY
		rep.TVL = p.TVL
		rep.Interactions = p.Interactions
		if p.RiskLevel != "" {
			rep.RiskLevel = p.RiskLevel
		}
	}
	rep.RecentActivity = s.recentEventsLocked(func(ev *Event) bool { return ev.Protocol == key })
	rep.Insights = s.insightsWhereLocked(func(in *Insight) bool {
		return strings.Contains(strings.ToLower(in.Content), key)
	})
	return rep
}

// MarketIntelligence summarises the last 24 hours of activity.
func (s *Store) MarketIntelligence() MarketReport {
	s.mu.RLock()
	defer s.mu.RUnlock()

	since := s.now().Add(-marketWindow)
	rep := MarketReport{WhaleActivity: []string{}, TrendingTokens: []string{}}

	tokens := map[string]int{}
	for i := len(s.eventOrder) - 1; i >= 0; i-- {
		ev := s.events[s.eventOrder[i]]
		if !ev.Timestamp.After(since) {
			continue
		}
		if ev.Token != "" {
			tokens[ev.Token]++
		}
		if ev.Type == EventWhaleMove && len(rep.WhaleActivity) < 10 {
			desc := metaString(ev.Metadata, "description")
			if desc == "" {
				desc = "activity"
			}
			rep.WhaleActivity = append(rep.WhaleActivity, short(ev.Wallet)+": "+desc)
		}
	}
	for tok := range tokens {
		rep.TrendingTokens = append(rep.TrendingTokens, tok)
	}
	sort.Slice(rep.TrendingTokens, func(i, j int) bool {
		a, b := rep.TrendingTokens[i], rep.TrendingTokens[j]
		if tokens[a] != tokens[b] {
			return tokens[a] > tokens[b]
		}
		return a < b
	})
	if len(rep.TrendingTokens) > 5 {
		rep.TrendingTokens = rep.TrendingTokens[:5]
	}

	recent := func(cat Category) []Insight {
		out := s.insightsWhereLocked(func(in *Insight) bool {
			return in.Category == cat && in.LearnedAt.After(since)
		})
		sortByConfidence(out)
		if len(out) > 5 {
			out = out[:5]
		}
		return out
	}
	rep.SecurityAlerts = recent(CategorySecurity)
	rep.DeFiOpportunities = recent(CategoryDeFiPatterns)
	return rep
}

// Stats describes the store contents.
func (s *Store) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{
		TotalEvents:         len(s.events),
		TotalKnowledge:      len(s.insights),
		WalletProfiles:      len(s.wallets),
		ProtocolsTracked:    len(s.protocols),
		KnowledgeByCategory: map[Category]int{},
	}
	if !s.lastIngestion.IsZero() {
		t := s.lastIngestion
		st.LastIngestion = &t
	}
	for _, in := range s.insights {
		st.KnowledgeByCategory[in.Category]++
	}
	return st
}

// recentEventsLocked returns up to recentLimit matching events, oldest first.
func (s *Store) recentEventsLocked(match func(*Event) bool) []Event {
	var out []Event
	for i := len(s.eventOrder) - 1; i >= 0 && len(out) < recentLimit; i-- {
		ev := s.events[s.eventOrder[i]]
		if match(ev) {
			out = append(out, *ev)
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	if out == nil {
		out = []Event{}
	}
	return out
}

func (s *Store) insightsWhereLocked(match func(*Insight) bool) []Insight {
	out := []Insight{}
	for _, id := range s.insightOrder {
		in := s.insights[id]
		if match(in) {
			out = append(out, *in)
		}
	}
	return out
}

func sortByConfidence(ins []Insight) {
	sort.SliceStable(ins, func(i, j int) bool { return ins[i].Confidence > ins[j].Confidence })
}

func metaString(m map[string]any, key string) string {
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		return fmt.Sprint(v)
	}
	return ""
}

func short(addr string) string {
	if len(addr) <= shortAddrSize {
		return addr
	}
	return addr[:shortAddrSize]
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
