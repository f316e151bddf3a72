package knowledge

import "time"

// EventType classifies an ingested blockchain event.
type EventType string

const (
	EventTransaction         EventType = "transaction"
	EventTokenTransfer       EventType = "token_transfer"
	EventProtocolInteraction EventType = "protocol_interaction"
	EventWhaleMove           EventType = "whale_move"
	EventAirdrop             EventType = "airdrop"
	EventSecurity            EventType = "security_event"
)

// Category groups derived insights.
type Category string

const (
	CategoryWhaleBehavior Category = "whale_behavior"
	CategoryDeFiPatterns  Category = "defi_patterns"
	CategoryAirdrops      Category = "airdrops"
	CategorySecurity      Category = "security"
	CategoryMarketTrends  Category = "market_trends"
)

// Event is one observation fed into the store.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	Wallet    string         `json:"wallet,omitempty"`
	Signature string         `json:"signature,omitempty"`
	Amount    float64        `json:"amount,omitempty"`
	Token     string         `json:"token,omitempty"`
	Protocol  string         `json:"protocol,omitempty"`
	Metadata  map[string]any `json:"metadata"`

	embedding []float32
}

// Insight is a derived or contributed piece of knowledge.
type Insight struct {
	ID         string    `json:"id"`
	Category   Category  `json:"category"`
	Content    string    `json:"content"`
	Confidence float64   `json:"confidence"`
	Sources    []string  `json:"sources"`
	LearnedAt  time.Time `json:"learnedAt"`

	embedding []float32
}

// QueryResult answers a natural-language question.
type QueryResult struct {
	Answer     string    `json:"answer"`
	Confidence float64   `json:"confidence"`
	Sources    []Insight `json:"sources"`
	RawData    []Event   `json:"rawData"`
}

// WalletProfile aggregates everything ingested for one wallet.
type WalletProfile struct {
	Wallet      string    `json:"wallet"`
	TxCount     int       `json:"txCount"`
	TotalVolume float64   `json:"totalVolume"`
	FirstSeen   time.Time `json:"firstSeen"`
	LastSeen    time.Time `json:"lastSeen"`
}

// ProtocolProfile aggregates activity and published market data for one
// protocol. APY and TVL are nil until a yield source reports them.
type ProtocolProfile struct {
	Protocol     string    `json:"protocol"`
	Interactions int       `json:"interactions"`
	LastActivity time.Time `json:"lastActivity"`
	APY          *float64  `json:"apy,omitempty"`
	TVL          *float64  `json:"tvl,omitempty"`
	RiskLevel    string    `json:"riskLevel,omitempty"`
}

// WalletReport is the answer to WalletIntelligence.
type WalletReport struct {
	Profile        *WalletProfile `json:"profile"`
	RecentActivity []Event        `json:"recentActivity"`
	Insights       []Insight      `json:"insights"`
	RiskScore      int            `json:"riskScore"`
}

// ProtocolReport is the answer to ProtocolIntelligence.
type ProtocolReport struct {
	CurrentAPY     *float64  `json:"currentAPY,omitempty"`
	TVL            *float64  `json:"tvl,omitempty"`
	RiskLevel      string    `json:"riskLevel"`
	Interactions   int       `json:"interactions"`
	RecentActivity []Event   `json:"recentActivity"`
	Insights       []Insight `json:"insights"`
}

// MarketReport summarises the last 24 hours.
type MarketReport struct {
	WhaleActivity     []string  `json:"whaleActivity"`
	TrendingTokens    []string  `json:"trendingTokens"`
	SecurityAlerts    []Insight `json:"securityAlerts"`
	DeFiOpportunities []Insight `json:"defiOpportunities"`
}

// Stats describes the store contents.
type Stats struct {
	TotalEvents         int              `json:"totalEvents"`
	TotalKnowledge      int              `json:"totalKnowledge"`
	WalletProfiles      int              `json:"walletProfiles"`
	ProtocolsTracked    int              `json:"protocolsTracked"`
	LastIngestion       *time.Time       `json:"lastIngestion,omitempty"`
	KnowledgeByCategory map[Category]int `json:"knowledgeByCategory"`
}
