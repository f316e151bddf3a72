// Package storage is the sqlite archive of agent knowledge entries. It
// outlives the bounded in-memory log of each agent.
package storage

import (
	"encoding/json"
	"time"
)

// ArchivedEntry is one archived knowledge entry. Data is kept as the JSON
// the agent emitted.
type ArchivedEntry struct {
	ID        string          `json:"id"`
	AgentID   string          `json:"agentId"`
	Source    string          `json:"source"`
	Data      json.RawMessage `json:"data"`
	Timestamp time.Time       `json:"timestamp"`
}
