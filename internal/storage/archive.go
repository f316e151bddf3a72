package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ssd-technologies/spawner/internal/agent"
)

// Append archives e. It makes DB an agent.Sink.
func (d *DB) Append(e agent.KnowledgeEntry) error {
	data, err := json.Marshal(e.Data)
	if err != nil {
		return fmt.Errorf("archive entry: encode data: %w", err)
	}
	_, err = d.db.Exec(
		`INSERT INTO knowledge_entries (id, agent_id, source, data, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), e.AgentID, e.Source, string(data), e.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("archive entry: %w", err)
	}
	return nil
}

// History returns up to limit archived entries of agentID, most recent last.
func (d *DB) History(agentID string, limit int) ([]ArchivedEntry, error) {
	rows, err := d.db.Query(
		`SELECT id, agent_id, source, data, created_at FROM knowledge_entries
		 WHERE agent_id = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		agentID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("knowledge history: %w", err)
	}
	defer rows.Close()

	out := []ArchivedEntry{}
	for rows.Next() {
		var e ArchivedEntry
		var data string
		var created int64
		if err := rows.Scan(&e.ID, &e.AgentID, &e.Source, &data, &created); err != nil {
			return nil, fmt.Errorf("scan knowledge entry: %w", err)
		}
		e.Data = json.RawMessage(data)
		e.Timestamp = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("knowledge history: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// Count returns how many entries are archived for agentID, or in total when
// agentID is empty.
func (d *DB) Count(agentID string) (int, error) {
	var n int
	var err error
	if agentID == "" {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM knowledge_entries`).Scan(&n)
	} else {
		err = d.db.QueryRow(`SELECT COUNT(*) FROM knowledge_entries WHERE agent_id = ?`, agentID).Scan(&n)
	}
	if err != nil {
		return 0, fmt.Errorf("count knowledge entries: %w", err)
	}
	return n, nil
}

// Prune deletes entries older than before and reports how many went.
func (d *DB) Prune(before time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM knowledge_entries WHERE created_at < ?`, before.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("prune knowledge entries: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune knowledge entries: %w", err)
	}
	return n, nil
}
