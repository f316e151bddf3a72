package registry

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/spawner/internal/agent"
	"github.com/ssd-technologies/spawner/internal/logging"
)

var epoch = time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

func setupRegistry(t *testing.T) (*Registry, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "agent-registry.json")
	c := &clock{now: epoch}
	return Open(path, WithClock(c.Now), WithLogger(logging.Discard())), path
}

func TestNewIDFormat(t *testing.T) {
	id := NewID(agent.TypeWhaleWatcher)
	assert.Regexp(t, regexp.MustCompile(`^ww-[0-9a-f]{12}$`), id)
}

func TestSpawnUniqueIDs(t *testing.T) {
	// no path: in-memory only
	r := Open("", WithLogger(logging.Discard()))
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		d, err := r.Spawn(agent.TypeAirdropHunter, "owner", nil)
		require.NoError(t, err)
		require.False(t, seen[d.ID], "duplicate id %s", d.ID)
		seen[d.ID] = true
	}
	assert.Equal(t, 1000, r.Stats().Total)
}

func TestSpawnRetriesCollisions(t *testing.T) {
	ids := []string{"ww-a", "ww-a", "ww-a", "ww-b"}
	var i int
	path := filepath.Join(t.TempDir(), "reg.json")
	r := Open(path, WithLogger(logging.Discard()), WithIDGenerator(func(agent.Type) string {
		id := ids[i]
		i++
		return id
	}))
	a, err := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	require.NoError(t, err)
	b, err := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	require.NoError(t, err)
	assert.Equal(t, "ww-a", a.ID)
	assert.Equal(t, "ww-b", b.ID)
}

func TestSpawnDefaults(t *testing.T) {
	r, _ := setupRegistry(t)
	d, err := r.Spawn(agent.TypeWalletGuardian, "alice", map[string]any{"wallets": []any{"W1"}})
	require.NoError(t, err)
	assert.Equal(t, agent.StatusActive, d.Status)
	assert.Equal(t, d.CreatedAt, d.SpawnedAt)
	assert.Nil(t, d.LastHeartbeat)
	assert.Equal(t, "alice", d.Owner)

	_, err = r.Spawn("", "alice", nil)
	assert.ErrorIs(t, err, ErrEmptyType)
}

func TestGetReturnsCopy(t *testing.T) {
	r, _ := setupRegistry(t)
	d, _ := r.Spawn(agent.TypeWhaleWatcher, "o", map[string]any{"rpc_url": "a"})
	got, ok := r.Get(d.ID)
	require.True(t, ok)
	got.Parameters["rpc_url"] = "b"
	again, _ := r.Get(d.ID)
	assert.Equal(t, "a", again.Parameters["rpc_url"])

	_, ok = r.Get("missing")
	assert.False(t, ok)
}

func TestListFilters(t *testing.T) {
	r, _ := setupRegistry(t)
	a, _ := r.Spawn(agent.TypeWhaleWatcher, "alice", nil)
	b, _ := r.Spawn(agent.TypeYieldOptimizer, "bob", nil)
	c, _ := r.Spawn(agent.TypeWhaleWatcher, "bob", nil)

	ids := func(ds []agent.Descriptor) []string {
		out := make([]string, len(ds))
		for i, d := range ds {
			out[i] = d.ID
		}
		return out
	}
	assert.Equal(t, []string{a.ID, b.ID, c.ID}, ids(r.ListAll()))
	assert.Equal(t, []string{b.ID, c.ID}, ids(r.ListByOwner("bob")))
	assert.Equal(t, []string{a.ID, c.ID}, ids(r.ListByType(agent.TypeWhaleWatcher)))
	assert.Empty(t, r.ListByOwner("carol"))
}

func TestUpdateStatusHeartbeatDelete(t *testing.T) {
	r, _ := setupRegistry(t)
	d, _ := r.Spawn(agent.TypeWhaleWatcher, "o", nil)

	require.True(t, r.UpdateStatus(d.ID, agent.StatusPaused))
	got, _ := r.Get(d.ID)
	assert.Equal(t, agent.StatusPaused, got.Status)
	require.NotNil(t, got.LastHeartbeat)
	first := *got.LastHeartbeat

	require.True(t, r.Heartbeat(d.ID))
	got, _ = r.Get(d.ID)
	assert.True(t, got.LastHeartbeat.After(first))

	assert.False(t, r.UpdateStatus("missing", agent.StatusStopped))
	assert.False(t, r.Heartbeat("missing"))

	require.True(t, r.Delete(d.ID))
	assert.False(t, r.Delete(d.ID))
	_, ok := r.Get(d.ID)
	assert.False(t, ok)
}

func TestHeartbeatMany(t *testing.T) {
	r, _ := setupRegistry(t)
	a, _ := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	b, _ := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	assert.Equal(t, 2, r.HeartbeatMany([]string{a.ID, "missing", b.ID}))
	got, _ := r.Get(b.ID)
	assert.NotNil(t, got.LastHeartbeat)
	assert.Equal(t, 0, r.HeartbeatMany(nil))
}

func TestStats(t *testing.T) {
	r, _ := setupRegistry(t)
	first, _ := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	r.Spawn(agent.TypeAirdropHunter, "o", nil)
	last, _ := r.Spawn(agent.TypeWalletGuardian, "o", nil)
	r.UpdateStatus(first.ID, agent.StatusStopped)

	s := r.Stats()
	assert.Equal(t, 4, s.Total)
	sum := 0
	for _, n := range s.ByType {
		sum += n
	}
	assert.Equal(t, s.Total, sum)
	assert.Equal(t, 2, s.ByType[agent.TypeWhaleWatcher])
	assert.Equal(t, 3, s.ByStatus[agent.StatusActive])
	assert.Equal(t, 1, s.ByStatus[agent.StatusStopped])
	require.NotNil(t, s.Oldest)
	require.NotNil(t, s.Newest)
	assert.Equal(t, first.ID, s.Oldest.ID)
	assert.Equal(t, last.ID, s.Newest.ID)
}

func TestStatsEmpty(t *testing.T) {
	r, _ := setupRegistry(t)
	s := r.Stats()
	assert.Equal(t, 0, s.Total)
	assert.Nil(t, s.Oldest)
	assert.Nil(t, s.Newest)
}

func TestPersistenceRoundTrip(t *testing.T) {
	r, path := setupRegistry(t)
	var want []agent.Descriptor
	for i := 0; i < 5; i++ {
		d, err := r.Spawn(agent.TypeYieldOptimizer, fmt.Sprintf("owner-%d", i), map[string]any{"rpc_url": fmt.Sprintf("http://node-%d", i)})
		require.NoError(t, err)
		want = append(want, d)
	}
	r.UpdateStatus(want[2].ID, agent.StatusPaused)

	reopened := Open(path, WithLogger(logging.Discard()))
	got := reopened.ListAll()
	require.Len(t, got, 5)
	for i, d := range got {
		assert.Equal(t, want[i].ID, d.ID)
		assert.Equal(t, want[i].Owner, d.Owner)
		assert.Equal(t, want[i].Type, d.Type)
		assert.Equal(t, want[i].Parameters, d.Parameters)
		assert.True(t, want[i].CreatedAt.Equal(d.CreatedAt))
	}
	assert.Equal(t, agent.StatusPaused, got[2].Status)
	assert.NotNil(t, got[2].LastHeartbeat)
}

func TestSnapshotIsVersionedAndAtomic(t *testing.T) {
	r, path := setupRegistry(t)
	r.Spawn(agent.TypeWhaleWatcher, "o", nil)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s snapshot
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, SnapshotVersion, s.Version)
	assert.Len(t, s.Agents, 1)

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file must be renamed away")
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := Open(filepath.Join(dir, "nope.json"), WithLogger(logging.Discard()))
	assert.Empty(t, missing.ListAll())

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
	r := Open(corrupt, WithLogger(logging.Discard()))
	assert.Empty(t, r.ListAll())

	kept, err := os.ReadFile(corrupt + ".corrupt")
	require.NoError(t, err, "undecodable snapshot is moved aside")
	assert.Equal(t, "{not json", string(kept))

	_, err = r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	require.NoError(t, err)
	assert.Len(t, Open(corrupt, WithLogger(logging.Discard())).ListAll(), 1)
	kept, err = os.ReadFile(corrupt + ".corrupt")
	require.NoError(t, err)
	assert.Equal(t, "{not json", string(kept), "later writes leave the moved file alone")
}

func TestLoadLegacyArray(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-registry.json")
	legacy := `[
  {
    "id": "ww-1a2b3c4d",
    "type": "whale-watcher",
    "owner": "alice",
    "parameters": {"whaleWallets": []},
    "createdAt": 1735689600000,
    "spawnedAt": 1735689600000,
    "active": true,
    "status": "active"
  },
  {
    "id": "wg-5e6f7a8b",
    "type": "wallet-guardian",
    "owner": "bob",
    "parameters": {},
    "createdAt": 1735689660000,
    "spawnedAt": 1735689660000,
    "active": true,
    "status": "paused",
    "lastHeartbeat": 1735689720000
  }
]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	r := Open(path, WithLogger(logging.Discard()))
	require.Len(t, r.ListAll(), 2)

	alice, ok := r.Get("ww-1a2b3c4d")
	require.True(t, ok)
	assert.Equal(t, agent.TypeWhaleWatcher, alice.Type)
	assert.Equal(t, agent.StatusActive, alice.Status)
	assert.True(t, alice.CreatedAt.Equal(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)), alice.CreatedAt)
	assert.Nil(t, alice.LastHeartbeat)

	bob, ok := r.Get("wg-5e6f7a8b")
	require.True(t, ok)
	assert.Equal(t, agent.StatusPaused, bob.Status)
	require.NotNil(t, bob.LastHeartbeat)
	assert.True(t, bob.LastHeartbeat.Equal(time.Date(2025, 1, 1, 0, 2, 0, 0, time.UTC)))

	_, err := r.Spawn(agent.TypeAirdropHunter, "carol", nil)
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var s snapshot
	require.NoError(t, json.Unmarshal(data, &s))
	assert.Equal(t, SnapshotVersion, s.Version)
	assert.Len(t, s.Agents, 3, "existing agents survive the rewrite")
	assert.Len(t, Open(path, WithLogger(logging.Discard())).ListAll(), 3)
}

func TestLoadLegacyInactiveWithoutStatus(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent-registry.json")
	legacy := `[{"id":"ah-00000001","type":"airdrop-hunter","owner":"o","createdAt":1735689600000,"active":false}]`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o644))

	got, ok := Open(path, WithLogger(logging.Discard())).Get("ah-00000001")
	require.True(t, ok)
	assert.Equal(t, agent.StatusStopped, got.Status)
	assert.Equal(t, got.CreatedAt, got.SpawnedAt)
}

func TestLoadNewerVersionStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "future.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"version":99,"agents":[{"id":"x"}]}`), 0o644))
	r := Open(path, WithLogger(logging.Discard()))
	assert.Empty(t, r.ListAll())
	_, err := os.Stat(path + ".corrupt")
	assert.NoError(t, err, "a newer snapshot is kept for the release that wrote it")
}

func TestSpawnCopiesParameters(t *testing.T) {
	r, _ := setupRegistry(t)
	params := map[string]any{"rpc_url": "a", "wallets": []any{"W1"}}
	d, err := r.Spawn(agent.TypeWalletGuardian, "o", params)
	require.NoError(t, err)

	params["rpc_url"] = "b"
	params["wallets"].([]any)[0] = "W2"

	got, _ := r.Get(d.ID)
	assert.Equal(t, "a", got.Parameters["rpc_url"])
	assert.Equal(t, []any{"W1"}, got.Parameters["wallets"])
}

func TestWriteFailureKeepsMemory(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	// the snapshot's parent is a regular file, so every write fails
	r := Open(filepath.Join(blocker, "reg.json"), WithLogger(logging.Discard()))
	d, err := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
	require.NoError(t, err)
	_, ok := r.Get(d.ID)
	assert.True(t, ok)
}

func TestConcurrentSpawn(t *testing.T) {
	r, _ := setupRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.Spawn(agent.TypeWhaleWatcher, "o", nil)
			assert.NoError(t, err)
			r.Stats()
		}()
	}
	wg.Wait()
	assert.Equal(t, 20, r.Stats().Total)
}
