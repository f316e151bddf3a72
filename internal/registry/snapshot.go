package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ssd-technologies/spawner/internal/agent"
)

// SnapshotVersion is the newest snapshot layout this package writes.
const SnapshotVersion = 1

type snapshot struct {
	Version int                `json:"version"`
	Agents  []agent.Descriptor `json:"agents"`
}

// record is a descriptor as found on disk. Besides the current layout it
// accepts the unversioned array written by earlier releases, whose
// timestamps are epoch milliseconds and which carry an "active" flag.
type record struct {
	ID            string         `json:"id"`
	Type          agent.Type     `json:"type"`
	Owner         string         `json:"owner"`
	Parameters    map[string]any `json:"parameters"`
	CreatedAt     stamp          `json:"createdAt"`
	SpawnedAt     stamp          `json:"spawnedAt"`
	Status        agent.Status   `json:"status"`
	LastHeartbeat *stamp         `json:"lastHeartbeat"`
	Active        *bool          `json:"active"`
}

func (r record) descriptor() agent.Descriptor {
	d := agent.Descriptor{
		ID:         r.ID,
		Type:       r.Type,
		Owner:      r.Owner,
		Parameters: r.Parameters,
		CreatedAt:  time.Time(r.CreatedAt),
		SpawnedAt:  time.Time(r.SpawnedAt),
		Status:     r.Status,
	}
	if d.SpawnedAt.IsZero() {
		d.SpawnedAt = d.CreatedAt
	}
	if !d.Status.Valid() {
		d.Status = agent.StatusActive
		if r.Active != nil && !*r.Active {
			d.Status = agent.StatusStopped
		}
	}
	if r.LastHeartbeat != nil && !time.Time(*r.LastHeartbeat).IsZero() {
		hb := time.Time(*r.LastHeartbeat)
		d.LastHeartbeat = &hb
	}
	return d
}

// stamp decodes an RFC 3339 string or a number of epoch milliseconds.
type stamp time.Time

func (s *stamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case bytes.Equal(b, []byte("null")):
		return nil
	case len(b) > 0 && b[0] == '"':
		var t time.Time
		if err := json.Unmarshal(b, &t); err != nil {
			return err
		}
		*s = stamp(t)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("timestamp %s: want RFC 3339 string or epoch milliseconds", b)
	}
	*s = stamp(time.UnixMilli(int64(ms)).UTC())
	return nil
}

// decodeSnapshot accepts the versioned layout and the legacy bare array.
func decodeSnapshot(data []byte) ([]agent.Descriptor, error) {
	var recs []record
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '[' {
		if err := json.Unmarshal(trimmed, &recs); err != nil {
			return nil, err
		}
	} else {
		var s struct {
			Version int      `json:"version"`
			Agents  []record `json:"agents"`
		}
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, err
		}
		if s.Version > SnapshotVersion {
			return nil, fmt.Errorf("snapshot version %d is newer than supported %d", s.Version, SnapshotVersion)
		}
		recs = s.Agents
	}
	out := make([]agent.Descriptor, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.descriptor())
	}
	return out, nil
}

func spawnParams(p map[string]any) map[string]any {
	if p == nil {
		return map[string]any{}
	}
	return agent.CloneParams(p)
}
