// Package storage defines the persistence contract shared by the
// embedded (sqlite) and server (postgres) backends: four operations,
// each either fully applied or, on error, applied not at all.
package storage

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

// ErrSignatureMismatch is returned by PrepareEvent when name is already
// prepared under a different, incompatible event descriptor.
var ErrSignatureMismatch = errors.New("storage: event already prepared with a different signature")

// ErrUnknownEvent is returned when an operation references an event name
// that has never been successfully prepared.
var ErrUnknownEvent = errors.New("storage: event not prepared")

// ErrReservedName names the reserved-name condition (equal to the internal
// watermark table's name, or underscore-prefixed). The backends' PrepareEvent
// does not return this value: it rejects such a name through the error
// schema.Plan returns.
var ErrReservedName = errors.New("storage: event name is reserved")

// EventBlockTable is the one fixed table this package owns directly; all
// other tables are event-specific and created dynamically by PrepareEvent.
const EventBlockTable = "_event_block"

// Watermark is how far an event has been indexed and finalized.
type Watermark struct {
	Indexed   uint64
	Finalized uint64
}

// EventBlock is a watermark update for one event, as applied by Update.
type EventBlock struct {
	Event     string
	Indexed   uint64
	Finalized uint64
}

// Uncle marks an event's block (and everything at or after it) as
// invalidated by a reorg.
type Uncle struct {
	Event  string
	Number uint64
}

// Log is one decoded event log, ready to be bound into rows and inserted.
type Log struct {
	Event            string
	BlockNumber      uint64
	LogIndex         uint64
	TransactionIndex uint64
	Address          common.Address
	Fields           []interface{}
	// Hashed marks, by top-level field index, which fields of Fields are a
	// keccak256 hash rather than the decoded value itself (see
	// pkg/adapter.Decode); passed straight through to binder.Bind.
	Hashed map[int]bool
}

// Backend is the storage contract implemented by both pkg/storage/sqlite
// and pkg/storage/postgres, and by the instrumentation decorator that
// wraps either.
type Backend interface {
	// PrepareEvent registers name so that future Update/Remove calls may
	// reference it. Idempotent when called again with an identical desc;
	// returns ErrSignatureMismatch if desc differs from what was
	// previously prepared for name in this process. Tables left on disk by
	// a prior run are not compared against desc.
	PrepareEvent(ctx context.Context, name string, desc *descriptor.Event) error

	// EventBlock returns the current watermark for a prepared event.
	EventBlock(ctx context.Context, name string) (Watermark, error)

	// Update applies watermark updates and appends logs, in one
	// transaction: either all of it lands, or none of it does.
	Update(ctx context.Context, blocks []EventBlock, logs []Log) error

	// Remove deletes every row at or after each uncle's block number for
	// that event's tables, and rewinds its indexed watermark to number-1.
	Remove(ctx context.Context, uncles []Uncle) error

	// Exec runs a raw SQL statement against the backend's connection,
	// outside of any other operation's transaction. Used to run
	// user-configured hooks after the triggering step has already
	// committed.
	Exec(ctx context.Context, sql string) error

	// Close releases the backend's underlying connection(s).
	Close() error
}
