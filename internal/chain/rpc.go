package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/net/proxy"

	"github.com/ssd-technologies/spawner/internal/ratelimit"
)

// RPCOptions configures an RPC client.
type RPCOptions struct {
	Timeout        time.Duration
	RequestsPerSec int
	// Proxy is an optional socks5:// URL every request is dialled through.
	Proxy       string
	TxCacheSize int
	BalanceTTL  time.Duration
	Logger      *slog.Logger
}

// RPC is a Solana JSON-RPC client. Confirmed transactions are immutable, so
// they are kept in an LRU; balances are cached briefly to absorb bursts of
// identical lookups from several agents.
type RPC struct {
	endpoint   string
	httpClient *http.Client
	limiter    *ratelimit.Limiter
	txCache    *lru.Cache[string, Transaction]
	balances   *ristretto.Cache
	balanceTTL time.Duration
	logger     *slog.Logger
	nextID     atomic.Int64
}

// NewRPC returns a client for endpoint.
func NewRPC(endpoint string, opts RPCOptions) (*RPC, error) {
	if _, err := url.ParseRequestURI(endpoint); err != nil {
		return nil, fmt.Errorf("rpc url: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RequestsPerSec <= 0 {
		opts.RequestsPerSec = 10
	}
	if opts.TxCacheSize <= 0 {
		opts.TxCacheSize = 4096
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	if opts.Proxy != "" {
		dial, err := proxyDialer(opts.Proxy)
		if err != nil {
			return nil, err
		}
		transport.Proxy = nil
		transport.DialContext = dial
	}

	txCache, err := lru.New[string, Transaction](opts.TxCacheSize)
	if err != nil {
		return nil, fmt.Errorf("tx cache: %w", err)
	}
	balances, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("balance cache: %w", err)
	}

	return &RPC{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: opts.Timeout, Transport: transport},
		limiter:    ratelimit.New(opts.RequestsPerSec, time.Second),
		txCache:    txCache,
		balances:   balances,
		balanceTTL: opts.BalanceTTL,
		logger:     opts.Logger.With(slog.String("component", "rpc")),
	}, nil
}

func proxyDialer(raw string) (func(ctx context.Context, network, addr string) (net.Conn, error), error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("proxy url: %w", err)
	}
	if u.Scheme == "socks" {
		u.Scheme = "socks5"
	}
	d, err := proxy.FromURL(u, &net.Dialer{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("proxy dialer: %w", err)
	}
	if cd, ok := d.(proxy.ContextDialer); ok {
		return cd.DialContext, nil
	}
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return d.Dial(network, addr)
	}, nil
}

// Close releases the caches.
func (c *RPC) Close() {
	c.balances.Close()
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

// call performs one JSON-RPC request and decodes the result into out.
func (c *RPC) call(ctx context.Context, method string, params []any, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("%s: encode: %w", method, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: http status %d", method, resp.StatusCode)
	}

	var rr rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return fmt.Errorf("%s: decode: %w", method, err)
	}
	if rr.Error != nil {
		c.logger.Debug("rpc error response", slog.String("method", method), slog.Int("code", rr.Error.Code))
		return fmt.Errorf("%s: %w", method, rr.Error)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(rr.Result, out); err != nil {
		return fmt.Errorf("%s: decode result: %w", method, err)
	}
	return nil
}

type signatureJSON struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	BlockTime *int64          `json:"blockTime"`
	Err       json.RawMessage `json:"err"`
}

// RecentSignatures implements Client.
func (c *RPC) RecentSignatures(ctx context.Context, address string, limit int) ([]SignatureInfo, error) {
	var raw []signatureJSON
	params := []any{address, map[string]any{"limit": limit, "commitment": "confirmed"}}
	if err := c.call(ctx, "getSignaturesForAddress", params, &raw); err != nil {
		return nil, err
	}
	out := make([]SignatureInfo, 0, len(raw))
	for _, s := range raw {
		info := SignatureInfo{
			Signature: s.Signature,
			Slot:      s.Slot,
			Failed:    len(s.Err) > 0 && string(s.Err) != "null",
		}
		if s.BlockTime != nil {
			info.BlockTime = time.Unix(*s.BlockTime, 0)
		}
		out = append(out, info)
	}
	return out, nil
}

type transactionJSON struct {
	Slot      uint64 `json:"slot"`
	BlockTime *int64 `json:"blockTime"`
	Meta      *struct {
		Fee          uint64   `json:"fee"`
		PreBalances  []uint64 `json:"preBalances"`
		PostBalances []uint64 `json:"postBalances"`
		LogMessages  []string `json:"logMessages"`
	} `json:"meta"`
}

// Transaction implements Client.
func (c *RPC) Transaction(ctx context.Context, sig string) (Transaction, error) {
	if tx, ok := c.txCache.Get(sig); ok {
		return tx, nil
	}
	var raw *transactionJSON
	params := []any{sig, map[string]any{
		"encoding":                       "json",
		"commitment":                     "confirmed",
		"maxSupportedTransactionVersion": 0,
	}}
	if err := c.call(ctx, "getTransaction", params, &raw); err != nil {
		return Transaction{}, err
	}
	if raw == nil {
		return Transaction{}, fmt.Errorf("transaction %s: %w", Short(sig), ErrNotFound)
	}
	tx := Transaction{Signature: sig, Slot: raw.Slot}
	if raw.BlockTime != nil {
		tx.BlockTime = time.Unix(*raw.BlockTime, 0)
	}
	if m := raw.Meta; m != nil {
		tx.Fee = m.Fee
		tx.LogMessages = m.LogMessages
		if len(m.PreBalances) > 0 {
			tx.PreBalance = m.PreBalances[0]
		}
		if len(m.PostBalances) > 0 {
			tx.PostBalance = m.PostBalances[0]
		}
	}
	c.txCache.Add(sig, tx)
	return tx, nil
}

// Balance implements Client.
func (c *RPC) Balance(ctx context.Context, address string) (uint64, error) {
	if c.balanceTTL > 0 {
		if v, ok := c.balances.Get(address); ok {
			if lamports, ok := v.(uint64); ok {
				return lamports, nil
			}
		}
	}
	var raw struct {
		Value uint64 `json:"value"`
	}
	params := []any{address, map[string]any{"commitment": "confirmed"}}
	if err := c.call(ctx, "getBalance", params, &raw); err != nil {
		return 0, err
	}
	if c.balanceTTL > 0 {
		c.balances.SetWithTTL(address, raw.Value, 1, c.balanceTTL)
	}
	return raw.Value, nil
}

// Pool hands out one RPC client per endpoint so agents pointed at the same
// node share its rate limit and caches.
type Pool struct {
	mu      sync.Mutex
	opts    RPCOptions
	clients map[string]*RPC
}

// NewPool returns an empty pool whose clients use opts.
func NewPool(opts RPCOptions) *Pool {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pool{opts: opts, clients: make(map[string]*RPC)}
}

// Connect implements Connector.
func (p *Pool) Connect(rpcURL string) (Client, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[rpcURL]; ok {
		return c, nil
	}
	c, err := NewRPC(rpcURL, p.opts)
	if err != nil {
		return nil, err
	}
	p.clients[rpcURL] = c
	p.opts.Logger.Debug("rpc client created", slog.String("endpoint", rpcURL))
	return c, nil
}

// Close closes every pooled client.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for endpoint, c := range p.clients {
		c.Close()
		delete(p.clients, endpoint)
	}
}
