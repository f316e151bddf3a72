package agent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssd-technologies/spawner/internal/knowledge"
	"github.com/ssd-technologies/spawner/internal/logging"
	"github.com/ssd-technologies/spawner/internal/scheduler"
)

var epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

func TestTypePrefix(t *testing.T) {
	assert.Equal(t, "ww", TypeWhaleWatcher.Prefix())
	assert.Equal(t, "yo", TypeYieldOptimizer.Prefix())
	assert.Equal(t, "ah", TypeAirdropHunter.Prefix())
	assert.Equal(t, "wg", TypeWalletGuardian.Prefix())
	assert.Equal(t, "ag", Type("").Prefix())
}

func TestDescriptorClone(t *testing.T) {
	hb := epoch
	d := Descriptor{ID: "ww-1", Parameters: map[string]any{"a": 1}, LastHeartbeat: &hb}
	c := d.Clone()
	c.Parameters["a"] = 2
	*c.LastHeartbeat = epoch.Add(time.Hour)
	assert.Equal(t, 1, d.Parameters["a"])
	assert.Equal(t, epoch, *d.LastHeartbeat)
}

func TestKnowledgeLogBounded(t *testing.T) {
	l := NewKnowledgeLog(3)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Append(KnowledgeEntry{Data: i}))
	}
	entries := l.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, 2, entries[0].Data)
	assert.Equal(t, 4, entries[2].Data)
	assert.Equal(t, 2, l.Dropped())

	last := l.Last(2)
	require.Len(t, last, 2)
	assert.Equal(t, 3, last[0].Data)
	assert.Len(t, l.Last(50), 3)
}

func TestKnowledgeLogDefaultCap(t *testing.T) {
	l := NewKnowledgeLog(0)
	assert.Equal(t, DefaultKnowledgeCap, l.limit)
}

func TestKnowledgeLogSinks(t *testing.T) {
	var got []KnowledgeEntry
	ok := SinkFunc(func(e KnowledgeEntry) error { got = append(got, e); return nil })
	bad := SinkFunc(func(KnowledgeEntry) error { return errors.New("disk full") })

	l := NewKnowledgeLog(10, ok, bad)
	err := l.Append(KnowledgeEntry{Source: "test"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.Len(t, got, 1)
	assert.Equal(t, 1, l.Len())
}

type nopStrategy struct{ *Base }

func (nopStrategy) Initialize(context.Context) error { return nil }
func (nopStrategy) Run(context.Context) error        { return nil }

func testFactory(t Type) Factory {
	return Factory{
		Type: t,
		Validate: func(p map[string]any) error {
			if _, bad := p["bad"]; bad {
				return errors.New("bad parameter")
			}
			return nil
		},
		New: func(d Descriptor, deps Deps) (Strategy, error) {
			b, err := NewBase(d, deps, "")
			if err != nil {
				return nil, err
			}
			return nopStrategy{b}, nil
		},
	}
}

func TestCatalog(t *testing.T) {
	c, err := NewCatalog(testFactory(TypeWhaleWatcher), testFactory(TypeAirdropHunter))
	require.NoError(t, err)
	assert.Equal(t, []Type{TypeAirdropHunter, TypeWhaleWatcher}, c.Types())

	assert.Error(t, c.Register(testFactory(TypeWhaleWatcher)))
	assert.Error(t, c.Register(Factory{Type: "empty"}))

	assert.NoError(t, c.Validate(TypeWhaleWatcher, nil))
	assert.ErrorIs(t, c.Validate("moon-watcher", nil), ErrUnknownType)
	assert.ErrorIs(t, c.Validate(TypeWhaleWatcher, map[string]any{"bad": true}), ErrInvalidParameters)

	s, err := c.Build(Descriptor{ID: "ww-1", Type: TypeWhaleWatcher}, Deps{Logger: logging.Discard()})
	require.NoError(t, err)
	assert.NotNil(t, s)

	_, err = c.Build(Descriptor{Type: "nope"}, Deps{})
	assert.ErrorIs(t, err, ErrUnknownType)
}

type decodeTarget struct {
	Wallets      []string `json:"wallets"`
	RPCURL       string   `json:"rpcUrl"`
	WhaleWallets []struct {
		Address string `json:"address"`
	} `json:"whaleWallets"`
}

func TestDecodeParams(t *testing.T) {
	var p decodeTarget
	require.NoError(t, DecodeParams(map[string]any{"wallets": []any{"a", "b"}, "rpcUrl": "http://x"}, &p))
	assert.Equal(t, []string{"a", "b"}, p.Wallets)
	assert.Equal(t, "http://x", p.RPCURL)

	err := DecodeParams(map[string]any{"wallets": "not-a-list"}, &p)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDecodeParamsFoldsSnakeCase(t *testing.T) {
	var p decodeTarget
	require.NoError(t, DecodeParams(map[string]any{
		"rpc_url":       "http://y",
		"whale_wallets": []any{map[string]any{"address": "W"}},
	}, &p))
	assert.Equal(t, "http://y", p.RPCURL)
	require.Len(t, p.WhaleWallets, 1)
	assert.Equal(t, "W", p.WhaleWallets[0].Address)

	err := DecodeParams(map[string]any{"rpc_url": "a", "rpcUrl": "b"}, &p)
	assert.ErrorIs(t, err, ErrInvalidParameters)
}

func TestDecodeParamsRejectsUnknownKeys(t *testing.T) {
	var p decodeTarget
	for _, params := range []map[string]any{
		{"rpcURLs": "http://x"},
		{"wallet": "W1"},
		{"whaleWallets": []any{map[string]any{"address": "W", "label": "x"}}},
	} {
		err := DecodeParams(params, &p)
		assert.ErrorIs(t, err, ErrInvalidParameters, "%v", params)
	}
}

type fakeStore struct {
	events   []knowledge.Event
	insights []knowledge.Insight
}

func (f *fakeStore) Ingest(ev knowledge.Event) knowledge.Event {
	f.events = append(f.events, ev)
	return ev
}

func (f *fakeStore) Contribute(in knowledge.Insight) knowledge.Insight {
	f.insights = append(f.insights, in)
	return in
}

func (f *fakeStore) UpdateProtocol(string, float64, float64, string) {}

func (f *fakeStore) Query(question string) knowledge.QueryResult {
	return knowledge.QueryResult{Answer: "asked: " + question}
}

func (f *fakeStore) QueryDomain(domain string) ([]knowledge.Insight, error) {
	var out []knowledge.Insight
	for _, in := range f.insights {
		if string(in.Category) == domain {
			out = append(out, in)
		}
	}
	return out, nil
}

func newTestBase(t *testing.T, store Store) (*Base, *scheduler.Manual) {
	t.Helper()
	m := scheduler.NewManual(epoch)
	deps := Deps{Scheduler: m, Logger: logging.Discard()}
	if store != nil {
		deps.Store = store
	}
	b, err := NewBase(Descriptor{ID: "ww-test", Type: TypeWhaleWatcher}, deps, "")
	require.NoError(t, err)
	return b, m
}

func TestBaseEmitStampsEntries(t *testing.T) {
	b, m := newTestBase(t, nil)
	m.Advance(time.Minute)
	require.True(t, b.Emit("unit", map[string]any{"x": 1}))

	k := b.Knowledge()
	require.Len(t, k, 1)
	assert.Equal(t, "ww-test", k[0].AgentID)
	assert.Equal(t, "unit", k[0].Source)
	assert.Equal(t, epoch.Add(time.Minute), k[0].Timestamp)
}

func TestBaseNoEmissionAfterStop(t *testing.T) {
	store := &fakeStore{}
	b, _ := newTestBase(t, store)
	require.NoError(t, b.Start())
	require.NoError(t, b.Stop())
	require.NoError(t, b.Stop())

	assert.False(t, b.Emit("late", nil))
	b.Ingest(knowledge.Event{Type: knowledge.EventWhaleMove})
	b.Contribute(knowledge.Insight{Content: "late"})
	assert.Empty(t, b.Knowledge())
	assert.Empty(t, store.events)
	assert.Empty(t, store.insights)
	assert.ErrorIs(t, b.Start(), ErrStopped)
	assert.Error(t, b.Context().Err())
}

func TestBasePollsOnlyWhileRunning(t *testing.T) {
	b, m := newTestBase(t, nil)
	var n int
	b.Every(time.Second, "tick", func(context.Context) error { n++; return nil })

	m.Advance(time.Second)
	assert.Equal(t, 0, n, "not started yet")

	require.NoError(t, b.Start())
	m.Advance(3 * time.Second)
	assert.Equal(t, 3, n)

	require.NoError(t, b.Stop())
	m.Advance(10 * time.Second)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, m.Pending())
}

func TestBasePollRecoversPanicsAndErrors(t *testing.T) {
	b, m := newTestBase(t, nil)
	require.NoError(t, b.Start())

	var runs int
	b.Every(time.Second, "boom", func(context.Context) error {
		runs++
		if runs == 1 {
			panic("unexpected shape")
		}
		return errors.New("rpc down")
	})
	m.Advance(3 * time.Second)
	assert.Equal(t, 3, runs, "a panic must not stop future polls")
	assert.False(t, b.polling.Load())
}

func TestBaseSkipsOverlappingPolls(t *testing.T) {
	b, m := newTestBase(t, nil)
	require.NoError(t, b.Start())

	release := make(chan struct{})
	entered := make(chan struct{})
	var inner int
	b.After(time.Second, "slow", func(context.Context) error {
		close(entered)
		<-release
		return nil
	})
	b.After(2*time.Second, "second", func(context.Context) error { inner++; return nil })

	done := make(chan struct{})
	go func() {
		m.Advance(time.Second)
		close(done)
	}()
	<-entered

	// the second action fires while the first is still in flight
	b.poll("second", func(context.Context) error { inner++; return nil })
	assert.Equal(t, 0, inner)

	close(release)
	<-done
	m.Advance(time.Second)
	assert.Equal(t, 1, inner)
}

func TestBaseReadsSharedKnowledge(t *testing.T) {
	store := knowledge.NewStore(knowledge.WithLogger(logging.Discard()))
	writer, _ := newTestBase(t, store)
	reader, _ := newTestBase(t, store)
	require.NoError(t, writer.Start())

	writer.Contribute(knowledge.Insight{
		Category:   knowledge.CategoryWhaleBehavior,
		Content:    "Whales are accumulating SOL",
		Confidence: 0.8,
	})

	got, err := reader.Domain("whales")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Whales are accumulating SOL", got[0].Content)

	res := reader.Ask("are whales accumulating SOL?")
	assert.Equal(t, "Whales are accumulating SOL", res.Answer)

	_, err = reader.Domain("weather")
	assert.ErrorIs(t, err, knowledge.ErrUnknownDomain)

	alone, _ := newTestBase(t, nil)
	assert.Empty(t, alone.Ask("anything").Sources)
	none, err := alone.Domain("whales")
	assert.NoError(t, err)
	assert.Empty(t, none)
}
