// Package chain is the blockchain RPC capability shared by agents and the
// indexer. Only the three calls the heuristics need are modelled.
package chain

import (
	"context"
	"errors"
	"time"
)

// LamportsPerSOL converts base units to SOL.
const LamportsPerSOL = 1_000_000_000

// ErrNotFound is returned when the node does not know a transaction.
var ErrNotFound = errors.New("chain: not found")

// SignatureInfo is one entry of an address's signature history, newest first.
type SignatureInfo struct {
	Signature string
	Slot      uint64
	// BlockTime is zero when the node did not report one.
	BlockTime time.Time
	Failed    bool
}

// Transaction is the subset of a confirmed transaction the agents inspect.
// Balances are for the first account (the fee payer), in lamports.
type Transaction struct {
	Signature   string
	Slot        uint64
	BlockTime   time.Time
	PreBalance  uint64
	PostBalance uint64
	Fee         uint64
	LogMessages []string
}

// Delta is the absolute balance change of the fee payer in SOL.
func (t Transaction) Delta() float64 {
	if t.PostBalance >= t.PreBalance {
		return float64(t.PostBalance-t.PreBalance) / LamportsPerSOL
	}
	return float64(t.PreBalance-t.PostBalance) / LamportsPerSOL
}

// Client is the RPC capability. Implementations must be safe for concurrent
// use.
type Client interface {
	RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error)
	// Transaction returns ErrNotFound when the node has no record of sig.
	Transaction(ctx context.Context, sig string) (Transaction, error)
	// Balance returns the address balance in lamports.
	Balance(ctx context.Context, address string) (uint64, error)
}

// Connector returns a Client for an RPC endpoint. Agents carry their own
// rpcUrl parameter, so the runtime resolves clients per agent.
type Connector func(rpcURL string) (Client, error)

// ToSOL converts lamports to SOL.
func ToSOL(lamports uint64) float64 {
	return float64(lamports) / LamportsPerSOL
}

// Short abbreviates an address to its first eight characters for logs and
// knowledge payloads.
func Short(address string) string {
	if len(address) <= 8 {
		return address
	}
	return address[:8]
}
