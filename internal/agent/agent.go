// Package agent defines the agent data model, the Strategy lifecycle
// contract and the factory catalog the runtime builds strategies from.
package agent

import (
	"errors"
	"strings"
	"time"
)

// Type names an agent variant.
type Type string

const (
	TypeWhaleWatcher   Type = "whale-watcher"
	TypeYieldOptimizer Type = "yield-optimizer"
	TypeAirdropHunter  Type = "airdrop-hunter"
	TypeWalletGuardian Type = "wallet-guardian"
)

// Prefix is the id prefix for the type: the initials of its hyphenated
// words, e.g. "ww" for whale-watcher.
func (t Type) Prefix() string {
	var b strings.Builder
	for _, part := range strings.Split(string(t), "-") {
		if part != "" {
			b.WriteByte(part[0])
		}
	}
	if b.Len() == 0 {
		return "ag"
	}
	return b.String()
}

// Status is the registry status of an agent.
type Status string

const (
	StatusActive  Status = "active"
	StatusPaused  Status = "paused"
	StatusStopped Status = "stopped"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusStopped:
		return true
	}
	return false
}

var (
	ErrUnknownType       = errors.New("unknown agent type")
	ErrInvalidParameters = errors.New("invalid agent parameters")
	ErrNotFound          = errors.New("agent not found")
	ErrNotRunning        = errors.New("agent not running")
	ErrNotPaused         = errors.New("agent not paused")
	ErrAlreadyRunning    = errors.New("agent already running")
	ErrStopped           = errors.New("agent stopped")
)

// Descriptor is the durable registry record of an agent.
type Descriptor struct {
	ID            string         `json:"id"`
	Type          Type           `json:"type"`
	Owner         string         `json:"owner"`
	Parameters    map[string]any `json:"parameters"`
	CreatedAt     time.Time      `json:"createdAt"`
	SpawnedAt     time.Time      `json:"spawnedAt"`
	Status        Status         `json:"status"`
	LastHeartbeat *time.Time     `json:"lastHeartbeat,omitempty"`
}

// Clone returns a copy that shares no mutable state with d.
func (d Descriptor) Clone() Descriptor {
	c := d
	c.Parameters = CloneParams(d.Parameters)
	if d.LastHeartbeat != nil {
		hb := *d.LastHeartbeat
		c.LastHeartbeat = &hb
	}
	return c
}

// CloneParams deep-copies the maps and slices of a decoded parameter map.
// Other values are copied by assignment.
func CloneParams(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		return CloneParams(x)
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

// RegistryStats summarises a registry.
type RegistryStats struct {
	Total    int            `json:"total"`
	ByType   map[Type]int   `json:"byType"`
	ByStatus map[Status]int `json:"byStatus"`
	Oldest   *Descriptor    `json:"oldestAgent,omitempty"`
	Newest   *Descriptor    `json:"newestAgent,omitempty"`
}

// KnowledgeEntry is one observation emitted by an agent.
type KnowledgeEntry struct {
	AgentID   string    `json:"agentId"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
}
