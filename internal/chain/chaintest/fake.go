// Package chaintest provides an in-memory chain.Client for tests.
package chaintest

import (
	"context"
	"fmt"
	"sync"

	"github.com/ssd-technologies/spawner/internal/chain"
)

// Fake is a scriptable chain.Client. Signature histories are stored newest
// first, the same order the real node returns them.
type Fake struct {
	mu           sync.Mutex
	signatures   map[string][]chain.SignatureInfo
	transactions map[string]chain.Transaction
	balances     map[string]uint64
	failures     map[string]error
	calls        map[string]int

	// OnTransaction, if set, runs before every Transaction lookup. Tests use
	// it to hold a poll in flight.
	OnTransaction func(sig string)
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		signatures:   make(map[string][]chain.SignatureInfo),
		transactions: make(map[string]chain.Transaction),
		balances:     make(map[string]uint64),
		failures:     make(map[string]error),
		calls:        make(map[string]int),
	}
}

// Connector returns a chain.Connector that always hands out f.
func (f *Fake) Connector() chain.Connector {
	return func(string) (chain.Client, error) { return f, nil }
}

// SetBalance sets an address balance in lamports.
func (f *Fake) SetBalance(address string, lamports uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[address] = lamports
}

// AddTransaction records tx as the newest activity of address.
func (f *Fake) AddTransaction(address string, tx chain.Transaction) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info := chain.SignatureInfo{Signature: tx.Signature, Slot: tx.Slot, BlockTime: tx.BlockTime}
	f.signatures[address] = append([]chain.SignatureInfo{info}, f.signatures[address]...)
	f.transactions[tx.Signature] = tx
}

// AddSignature records a signature with no fetchable transaction.
func (f *Fake) AddSignature(address string, info chain.SignatureInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signatures[address] = append([]chain.SignatureInfo{info}, f.signatures[address]...)
}

// Fail makes every call touching key (an address or signature) return err.
// A nil err clears the failure.
func (f *Fake) Fail(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failures, key)
		return
	}
	f.failures[key] = err
}

// Calls reports how many times method was invoked.
func (f *Fake) Calls(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[method]
}

// RecentSignatures implements chain.Client.
func (f *Fake) RecentSignatures(ctx context.Context, address string, limit int) ([]chain.SignatureInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RecentSignatures"]++
	if err := f.failures[address]; err != nil {
		return nil, err
	}
	sigs := f.signatures[address]
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[:limit]
	}
	out := make([]chain.SignatureInfo, len(sigs))
	copy(out, sigs)
	return out, nil
}

// Transaction implements chain.Client.
func (f *Fake) Transaction(ctx context.Context, sig string) (chain.Transaction, error) {
	f.mu.Lock()
	hook := f.OnTransaction
	f.mu.Unlock()
	if hook != nil {
		hook(sig)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Transaction"]++
	if err := f.failures[sig]; err != nil {
		return chain.Transaction{}, err
	}
	tx, ok := f.transactions[sig]
	if !ok {
		return chain.Transaction{}, fmt.Errorf("transaction %s: %w", sig, chain.ErrNotFound)
	}
	return tx, nil
}

// Balance implements chain.Client.
func (f *Fake) Balance(ctx context.Context, address string) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["Balance"]++
	if err := f.failures[address]; err != nil {
		return 0, err
	}
	return f.balances[address], nil
}
