package catalog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"toolgate/internal/domain"
	"toolgate/internal/infra/index"
	"toolgate/internal/infra/usage"
)

func newTestCatalog(t *testing.T) (*Catalog, *index.Index, *usage.Tracker) {
	t.Helper()
	idx := index.New(index.Options{})
	tracker := usage.NewTracker()
	cat := New(Options{Index: idx, Tracker: tracker})
	return cat, idx, tracker
}

func tool(name, backendID, description string) domain.ToolDescriptor {
	return domain.ToolDescriptor{
		Name:        name,
		Description: description,
		BackendID:   backendID,
	}
}

func TestRegister_LastWriteWins(t *testing.T) {
	ctx := context.Background()
	cat, idx, _ := newTestCatalog(t)

	require.NoError(t, cat.Register(ctx, tool("dup", "b1", "first version about mail")))
	require.NoError(t, cat.Register(ctx, tool("dup", "b2", "second version about files")))

	require.Equal(t, 1, cat.Len())
	require.Equal(t, 1, idx.Len())

	desc, ok := cat.Get("dup")
	require.True(t, ok)
	require.Equal(t, "b2", desc.BackendID)
	require.Equal(t, "second version about files", desc.Description)

	hits, err := cat.Search("mail", 10)
	require.NoError(t, err)
	require.Empty(t, hits)
	hits, err = cat.Search("files", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

func TestRegister_RejectsInvalidDescriptors(t *testing.T) {
	ctx := context.Background()
	cat, _, _ := newTestCatalog(t)

	err := cat.Register(ctx, tool("", "b1", "no name"))
	require.Error(t, err)

	err = cat.Register(ctx, tool("orphan", "", "no backend"))
	require.Error(t, err)

	bad := tool("bad_schema", "b1", "broken")
	bad.InputSchema = json.RawMessage(`{"type": 42}`)
	err = cat.Register(ctx, bad)
	require.Error(t, err)
	code, ok := domain.CodeFrom(err)
	require.True(t, ok)
	require.Equal(t, domain.CodeInvalidArgument, code)

	require.Equal(t, 0, cat.Len())
}

func TestRegisterBatch_MalformedDescriptorRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	cat, idx, _ := newTestCatalog(t)

	require.NoError(t, cat.Register(ctx, tool("existing", "other", "already here")))

	bad := tool("broken", "b1", "has bad schema")
	bad.InputSchema = json.RawMessage(`{`)
	err := cat.RegisterBatch(ctx, "b1", []domain.ToolDescriptor{
		tool("fine", "b1", "would be fine"),
		bad,
	})
	require.Error(t, err)

	// The failure is isolated to backend b1: nothing from the batch
	// landed and the rest of the catalog is untouched.
	require.Equal(t, 1, cat.Len())
	require.Equal(t, 1, idx.Len())
	_, ok := cat.Get("fine")
	require.False(t, ok)
}

func TestRegisterBatch_RejectsForeignBackend(t *testing.T) {
	ctx := context.Background()
	cat, _, _ := newTestCatalog(t)

	err := cat.RegisterBatch(ctx, "b1", []domain.ToolDescriptor{tool("t", "b2", "wrong owner")})
	require.Error(t, err)
	require.Equal(t, 0, cat.Len())
}

func TestDeregisterBackend_RemovesExactlyItsTools(t *testing.T) {
	ctx := context.Background()
	cat, idx, tracker := newTestCatalog(t)

	require.NoError(t, cat.RegisterBatch(ctx, "b1", []domain.ToolDescriptor{
		tool("b1_read", "b1", "read project files"),
		tool("b1_write", "b1", "write project files"),
	}))
	require.NoError(t, cat.RegisterBatch(ctx, "b2", []domain.ToolDescriptor{
		tool("b2_search", "b2", "search project files"),
	}))
	tracker.Record("b1_read")

	require.NoError(t, cat.DeregisterBackend(ctx, "b1"))

	require.Equal(t, 1, cat.Len())
	require.Equal(t, 1, idx.Len())
	_, ok := cat.Get("b1_read")
	require.False(t, ok)
	_, ok = cat.Get("b2_search")
	require.True(t, ok)
	require.Equal(t, uint64(0), tracker.Count("b1_read"))

	hits, err := cat.Search("project files", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "b2_search", hits[0].Name)
}

func TestSearch_ReturnsOnlyCatalogNames(t *testing.T) {
	ctx := context.Background()
	cat, _, _ := newTestCatalog(t)

	require.NoError(t, cat.Register(ctx, tool("one", "b1", "manage database tables")))
	require.NoError(t, cat.Register(ctx, tool("two", "b1", "manage database users")))

	hits, err := cat.Search("database", 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	for _, hit := range hits {
		_, ok := cat.Get(hit.Name)
		require.True(t, ok)
	}
}

func TestAll_PreservesRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	cat, _, _ := newTestCatalog(t)

	require.NoError(t, cat.Register(ctx, tool("z_first", "b1", "first")))
	require.NoError(t, cat.Register(ctx, tool("a_second", "b1", "second")))
	require.NoError(t, cat.Register(ctx, tool("z_first", "b1", "re-registered")))

	all := cat.All()
	require.Len(t, all, 2)
	require.Equal(t, "a_second", all[0].Name)
	require.Equal(t, "z_first", all[1].Name)
}

// flakyIndex fails the first search with ErrIndexInconsistent and records
// whether the catalog rebuilt it before retrying.
type flakyIndex struct {
	inner    *index.Index
	failures int
	resets   int
}

func (f *flakyIndex) Add(desc domain.ToolDescriptor) { f.inner.Add(desc) }
func (f *flakyIndex) Remove(name string)             { f.inner.Remove(name) }
func (f *flakyIndex) Len() int                       { return f.inner.Len() }
func (f *flakyIndex) Reset() {
	f.resets++
	f.inner.Reset()
}
func (f *flakyIndex) Search(queryText string, limit int) ([]domain.Hit, error) {
	if f.failures > 0 {
		f.failures--
		return nil, domain.ErrIndexInconsistent
	}
	return f.inner.Search(queryText, limit)
}

func TestSearch_SelfHealsOnInconsistency(t *testing.T) {
	ctx := context.Background()
	flaky := &flakyIndex{inner: index.New(index.Options{}), failures: 1}
	cat := New(Options{Index: flaky, Tracker: usage.NewTracker()})

	require.NoError(t, cat.Register(ctx, tool("survivor", "b1", "query weather forecasts")))

	hits, err := cat.Search("weather", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "survivor", hits[0].Name)
	require.Equal(t, 1, flaky.resets)

	// Rebuild must not block later registrations or searches.
	require.NoError(t, cat.Register(ctx, tool("later", "b1", "query stock prices")))
	hits, err = cat.Search("stock", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
}

// memStore records write-through calls.
type memStore struct {
	saved   []string
	removed []string
	tools   []domain.ToolDescriptor
	usage   map[string]domain.UsageSnapshot
}

func (m *memStore) LoadAllTools(context.Context) ([]domain.ToolDescriptor, error) {
	return m.tools, nil
}
func (m *memStore) SaveTool(_ context.Context, desc domain.ToolDescriptor) error {
	m.saved = append(m.saved, desc.Name)
	return nil
}
func (m *memStore) RemoveToolsByBackend(_ context.Context, backendID string) error {
	m.removed = append(m.removed, backendID)
	return nil
}
func (m *memStore) RecordUsage(context.Context, string, time.Time) error { return nil }
func (m *memStore) LoadAllUsage(context.Context) (map[string]domain.UsageSnapshot, error) {
	return m.usage, nil
}
func (m *memStore) Close() error { return nil }

func TestCatalog_WritesThroughToStore(t *testing.T) {
	ctx := context.Background()
	store := &memStore{}
	cat := New(Options{Index: index.New(index.Options{}), Tracker: usage.NewTracker(), Store: store})

	require.NoError(t, cat.Register(ctx, tool("persisted", "b1", "saved tool")))
	require.Equal(t, []string{"persisted"}, store.saved)

	require.NoError(t, cat.DeregisterBackend(ctx, "b1"))
	require.Equal(t, []string{"b1"}, store.removed)
}

func TestRestore_RebuildsFromStoreWithoutWritingBack(t *testing.T) {
	ctx := context.Background()
	store := &memStore{tools: []domain.ToolDescriptor{
		tool("restored_a", "b1", "restored alpha tool"),
		tool("restored_b", "b1", "restored beta tool"),
	}}
	idx := index.New(index.Options{})
	cat := New(Options{Index: idx, Tracker: usage.NewTracker(), Store: store})

	require.NoError(t, cat.Restore(ctx))
	require.Equal(t, 2, cat.Len())
	require.Equal(t, 2, idx.Len())
	require.Empty(t, store.saved)

	hits, err := cat.Search("beta", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	require.Equal(t, "restored_b", hits[0].Name)
}

func TestRestore_SeedsUsageCounters(t *testing.T) {
	ctx := context.Background()
	lastUsed := time.Now().Add(-time.Hour)
	store := &memStore{
		tools: []domain.ToolDescriptor{
			tool("warm", "b1", "frequently used tool"),
			tool("cold", "b1", "rarely used tool"),
		},
		usage: map[string]domain.UsageSnapshot{
			"warm":      {Name: "warm", Count: 42, LastUsed: lastUsed},
			"forgotten": {Name: "forgotten", Count: 9, LastUsed: lastUsed},
		},
	}
	tracker := usage.NewTracker()
	cat := New(Options{Index: index.New(index.Options{}), Tracker: tracker, Store: store})

	require.NoError(t, cat.Restore(ctx))

	// Counters survive the restart; stale entries for tools no longer
	// registered are ignored.
	require.Equal(t, uint64(42), tracker.Count("warm"))
	require.Equal(t, uint64(0), tracker.Count("cold"))
	require.Equal(t, uint64(0), tracker.Count("forgotten"))

	top := tracker.TopByUsage(1)
	require.Len(t, top, 1)
	require.Equal(t, "warm", top[0].Name)
	require.False(t, top[0].LastUsed.IsZero())
}
