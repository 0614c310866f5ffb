package sqlite_test

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/signature"
	"github.com/tablelandnetwork/arak/pkg/storage"
	"github.com/tablelandnetwork/arak/pkg/storage/sqlite"
)

func openTestBackend(t *testing.T) *sqlite.Backend {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	b, err := sqlite.Open(dsn)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, b.Close()) })
	return b
}

func TestPrepareEventIsIdempotentAndRejectsSignatureChange(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	desc, err := signature.Parse("event Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)
	require.NoError(t, b.PrepareEvent(ctx, "transfers", desc))
	require.NoError(t, b.PrepareEvent(ctx, "transfers", desc))

	other, err := signature.Parse("event Transfer(address indexed from, uint256 value)")
	require.NoError(t, err)
	err = b.PrepareEvent(ctx, "transfers", other)
	require.ErrorIs(t, err, storage.ErrSignatureMismatch)
}

func TestPrepareEventRejectsFieldRenameThatKeepsTheSameSelector(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	desc, err := signature.Parse("event Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)
	require.NoError(t, b.PrepareEvent(ctx, "transfers", desc))

	// Renaming an argument doesn't change the canonical type signature, so
	// this descriptor hashes to the same topic-0 as desc, but schema.Plan
	// derives different column names from it.
	renamed, err := signature.Parse("event Transfer(address indexed source, address indexed to, uint256 value)")
	require.NoError(t, err)
	require.Equal(t, desc.Selector(), renamed.Selector())

	err = b.PrepareEvent(ctx, "transfers", renamed)
	require.ErrorIs(t, err, storage.ErrSignatureMismatch)
}

func TestEventBlockStartsAtZeroAndTracksUpdates(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	desc, err := signature.Parse("event Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)
	require.NoError(t, b.PrepareEvent(ctx, "transfers", desc))

	w, err := b.EventBlock(ctx, "transfers")
	require.NoError(t, err)
	require.Equal(t, storage.Watermark{}, w)

	require.NoError(t, b.Update(ctx, []storage.EventBlock{{Event: "transfers", Indexed: 10, Finalized: 5}}, nil))

	w, err = b.EventBlock(ctx, "transfers")
	require.NoError(t, err)
	require.Equal(t, storage.Watermark{Indexed: 10, Finalized: 5}, w)
}

func TestEventBlockUnknownEventReturnsErrUnknownEvent(t *testing.T) {
	b := openTestBackend(t)
	_, err := b.EventBlock(context.Background(), "nope")
	require.ErrorIs(t, err, storage.ErrUnknownEvent)
}

func TestUpdateInsertsLogRowsAndRemoveRewindsWatermark(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()

	desc, err := signature.Parse("event Transfer(address indexed from, address indexed to, uint256 value)")
	require.NoError(t, err)
	require.NoError(t, b.PrepareEvent(ctx, "transfers", desc))

	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")
	log := storage.Log{
		Event:       "transfers",
		BlockNumber: 100,
		LogIndex:    0,
		Address:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Fields:      []interface{}{from, to, big.NewInt(42)},
	}
	require.NoError(t, b.Update(ctx, []storage.EventBlock{{Event: "transfers", Indexed: 100, Finalized: 90}}, []storage.Log{log}))

	require.NoError(t, b.Remove(ctx, []storage.Uncle{{Event: "transfers", Number: 100}}))

	w, err := b.EventBlock(ctx, "transfers")
	require.NoError(t, err)
	require.Equal(t, uint64(99), w.Indexed)
}

func TestExecRunsRawSQLOutsideAnyTransaction(t *testing.T) {
	b := openTestBackend(t)
	ctx := context.Background()
	require.NoError(t, b.Exec(ctx, `CREATE TABLE hook_marker (id INTEGER)`))
	require.NoError(t, b.Exec(ctx, `INSERT INTO hook_marker (id) VALUES (1)`))
}
