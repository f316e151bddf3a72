package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/ssd-technologies/spawner/internal/chain"
	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

// Strategy is the lifecycle every agent variant implements.
type Strategy interface {
	// Initialize prepares per-item state. Failures of individual items are
	// logged and skipped.
	Initialize(ctx context.Context) error
	// Run marks the agent running and schedules its polls.
	Run(ctx context.Context) error
	// Stop cancels every scheduled poll. It is idempotent, and once it
	// returns no further knowledge is emitted.
	Stop() error
	// Knowledge returns the retained entries, most recent last.
	Knowledge() []KnowledgeEntry
}

// Store is the slice of the shared knowledge store agents use: they feed
// it and read back what every agent has learned.
type Store interface {
	Ingest(knowledge.Event) knowledge.Event
	Contribute(knowledge.Insight) knowledge.Insight
	UpdateProtocol(name string, apy, tvl float64, risk string)
	Query(question string) knowledge.QueryResult
	QueryDomain(domain string) ([]knowledge.Insight, error)
}

// Deps are the collaborators a Strategy is built with.
type Deps struct {
	Connect       chain.Connector
	DefaultRPCURL string
	// Store may be nil, in which case nothing is shared.
	Store        Store
	Scheduler    scheduler.Scheduler
	Logger       *slog.Logger
	Sinks        []Sink
	KnowledgeCap int
	// Rand returns a value in [0,1). Nil means math/rand.
	Rand func() float64
}

// Factory builds one agent variant.
type Factory struct {
	Type Type
	// Validate checks parameters before anything is registered. Nil accepts
	// anything.
	Validate func(params map[string]any) error
	New      func(d Descriptor, deps Deps) (Strategy, error)
}

// Catalog maps agent types to their factories.
type Catalog struct {
	mu        sync.RWMutex
	factories map[Type]Factory
}

// NewCatalog returns a catalog holding factories.
func NewCatalog(factories ...Factory) (*Catalog, error) {
	c := &Catalog{factories: make(map[Type]Factory)}
	for _, f := range factories {
		if err := c.Register(f); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Register adds f. Registering the same type twice is an error.
func (c *Catalog) Register(f Factory) error {
	if f.Type == "" || f.New == nil {
		return fmt.Errorf("register factory %q: type and constructor are required", f.Type)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, dup := c.factories[f.Type]; dup {
		return fmt.Errorf("register factory %q: already registered", f.Type)
	}
	c.factories[f.Type] = f
	return nil
}

// Types lists registered types in name order.
func (c *Catalog) Types() []Type {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Type, 0, len(c.factories))
	for t := range c.factories {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Validate checks that t is registered and params are acceptable.
func (c *Catalog) Validate(t Type, params map[string]any) error {
	f, err := c.lookup(t)
	if err != nil {
		return err
	}
	if f.Validate == nil {
		return nil
	}
	if err := f.Validate(params); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

// Build constructs the Strategy for d.
func (c *Catalog) Build(d Descriptor, deps Deps) (Strategy, error) {
	f, err := c.lookup(d.Type)
	if err != nil {
		return nil, err
	}
	return f.New(d, deps)
}

func (c *Catalog) lookup(t Type) (Factory, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.factories[t]
	if !ok {
		return Factory{}, fmt.Errorf("%w: %q", ErrUnknownType, t)
	}
	return f, nil
}

// DecodeParams converts a generic parameter map into out by round-tripping
// it through JSON. Top-level keys are camelCase; snake_case spellings are
// accepted and folded. Unknown keys and shape mismatches wrap
// ErrInvalidParameters.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	folded := make(map[string]any, len(params))
	for k, v := range params {
		key := camelKey(k)
		if _, dup := folded[key]; dup {
			return fmt.Errorf("%w: parameter %q given twice", ErrInvalidParameters, key)
		}
		folded[key] = v
	}
	b, err := json.Marshal(folded)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
	}
	return nil
}

// camelKey turns rpc_url into rpcUrl. Keys without underscores pass
// through.
func camelKey(k string) string {
	if !strings.Contains(k, "_") {
		return k
	}
	parts := strings.Split(k, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
