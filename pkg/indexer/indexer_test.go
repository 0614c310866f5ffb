package indexer

import (
	"context"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/adapter"
	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/signature"
	"github.com/tablelandnetwork/arak/pkg/storage"
)

// fakeStore is a minimal in-memory storage.Backend for exercising
// Indexer's control flow without a real database.
type fakeStore struct {
	watermarks map[string]storage.Watermark
	executed   []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{watermarks: map[string]storage.Watermark{}}
}

func (s *fakeStore) PrepareEvent(ctx context.Context, name string, desc *descriptor.Event) error {
	if _, ok := s.watermarks[name]; !ok {
		s.watermarks[name] = storage.Watermark{}
	}
	return nil
}

func (s *fakeStore) EventBlock(ctx context.Context, name string) (storage.Watermark, error) {
	w, ok := s.watermarks[name]
	if !ok {
		return storage.Watermark{}, storage.ErrUnknownEvent
	}
	return w, nil
}

func (s *fakeStore) Update(ctx context.Context, blocks []storage.EventBlock, logs []storage.Log) error {
	for _, b := range blocks {
		s.watermarks[b.Event] = storage.Watermark{Indexed: b.Indexed, Finalized: b.Finalized}
	}
	return nil
}

func (s *fakeStore) Remove(ctx context.Context, uncles []storage.Uncle) error {
	for _, u := range uncles {
		w := s.watermarks[u.Event]
		w.Indexed = u.Number - 1
		s.watermarks[u.Event] = w
	}
	return nil
}

func (s *fakeStore) Exec(ctx context.Context, sql string) error {
	s.executed = append(s.executed, sql)
	return nil
}

func (s *fakeStore) Close() error { return nil }

var _ storage.Backend = (*fakeStore)(nil)

func mustAdapter(t *testing.T, decl string, start uint64) *adapter.Adapter {
	t.Helper()
	desc, err := signature.Parse(decl)
	require.NoError(t, err)
	return adapter.New(desc.Name(), desc, start, adapter.Contract{Any: true}, [3]*common.Hash{})
}

func TestHookAppliesToBitmask(t *testing.T) {
	h := Hook{SQL: "select 1", On: HookInit | HookFinalize}
	require.True(t, h.appliesTo(HookInit))
	require.False(t, h.appliesTo(HookBlock))
	require.True(t, h.appliesTo(HookFinalize))
}

func TestRunHooksExecutesOnlyMatchingHooks(t *testing.T) {
	store := newFakeStore()
	ix := &Indexer{
		store: store,
		hooks: []Hook{
			{SQL: "init-sql", On: HookInit},
			{SQL: "block-sql", On: HookBlock},
			{SQL: "both-sql", On: HookInit | HookBlock},
		},
	}
	ix.runHooks(context.Background(), HookInit)
	require.ElementsMatch(t, []string{"init-sql", "both-sql"}, store.executed)
}

func TestDecodeLogsSkipsUndecodableLogs(t *testing.T) {
	a := mustAdapter(t, "event Transfer(address indexed from, address indexed to, uint256 value)", 0)
	ix := New(nil, newFakeStore(), []*adapter.Adapter{a}, nil)

	// A log with too few topics fails to decode and must be skipped, not
	// fatal to the whole batch.
	bad := gethtypes.Log{Topics: nil}
	logs := ix.decodeLogs(a, []gethtypes.Log{bad})
	require.Empty(t, logs)
}

func TestStartBlocksUsesLaterOfConfiguredStartAndWatermark(t *testing.T) {
	a := mustAdapter(t, "event Transfer(address indexed from, address indexed to, uint256 value)", 100)
	store := newFakeStore()
	store.watermarks[a.Name()] = storage.Watermark{Indexed: 50, Finalized: 40}

	ix := New(nil, store, []*adapter.Adapter{a}, nil)
	starts, err := ix.startBlocks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{100}, starts)

	store.watermarks[a.Name()] = storage.Watermark{Indexed: 150, Finalized: 140}
	starts, err = ix.startBlocks(context.Background())
	require.NoError(t, err)
	require.Equal(t, []uint64{151}, starts)
}
