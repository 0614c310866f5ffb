// Package sqlite implements the embedded storage backend on top of
// database/sql, the mattn/go-sqlite3 driver, and XSAM/otelsql for
// instrumentation - grounded on the teacher's SQLiteDB
// (pkg/sqlstore/impl/sqlite_db.go).
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"reflect"
	"sync"

	"github.com/XSAM/otelsql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" driver
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	_ "github.com/golang-migrate/migrate/v4/database/sqlite3" // migration driver for sqlite3
	"github.com/tablelandnetwork/arak/pkg/binder"
	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/schema"
	"github.com/tablelandnetwork/arak/pkg/storage"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Backend is the embedded storage.Backend implementation.
type Backend struct {
	log zerolog.Logger
	db  *sql.DB

	mu     sync.Mutex
	events map[string]*preparedEvent
}

type preparedEvent struct {
	descriptor *descriptor.Event
	tables     schema.Tables

	insert []*sql.Stmt // primary, then one per dynamic array table, in order
	remove []*sql.Stmt
}

// Open opens (creating if necessary) the sqlite database at dsn - a
// database/sql data source name understood by mattn/go-sqlite3, e.g.
// `file:/path/to/db.sqlite` or `file::memory:?cache=shared` for tests -
// instruments it via otelsql, and bootstraps the fixed `_event_block`
// table via an embedded golang-migrate migration.
func Open(dsn string) (*Backend, error) {
	attrs := []attribute.KeyValue{attribute.String("name", "arak-sqlite")}
	db, err := otelsql.Open("sqlite3", dsn, otelsql.WithAttributes(attrs...))
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %s", err)
	}
	if err := otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(attrs...)); err != nil {
		return nil, fmt.Errorf("registering sqlite dbstats metrics: %s", err)
	}

	b := &Backend{
		log:    zerolog.Nop(),
		db:     db,
		events: make(map[string]*preparedEvent),
	}
	if err := b.migrate(dsn); err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

// WithLogger attaches a logger, following the component-sub-logger
// convention the rest of this codebase uses.
func (b *Backend) WithLogger(log zerolog.Logger) *Backend {
	b.log = log.With().Str("component", "storage/sqlite").Logger()
	return b
}

func (b *Backend) migrate(dsn string) error {
	src, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("reading embedded migrations: %s", err)
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite3://"+dsn)
	if err != nil {
		return fmt.Errorf("creating migration: %s", err)
	}
	defer func() {
		if _, err := m.Close(); err != nil {
			b.log.Error().Err(err).Msg("closing migration source")
		}
	}()
	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("running migration: %s", err)
	}
	return nil
}

// PrepareEvent implements storage.Backend.
func (b *Backend) PrepareEvent(ctx context.Context, name string, desc *descriptor.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tables, err := schema.Plan(name, desc)
	if err != nil {
		return fmt.Errorf("planning schema for event %q: %s", name, err)
	}

	if existing, ok := b.events[name]; ok {
		// Compare the planned schema, not just the selector: two
		// descriptors can hash to the same topic-0 while differing in
		// argument/tuple-field names, which schema.Plan turns into
		// different column names (spec.md §4.2).
		if reflect.DeepEqual(existing.tables, tables) {
			return nil
		}
		return storage.ErrSignatureMismatch
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	allTables := append([]schema.Table{tables.Primary}, tables.DynamicArrays...)
	for i, t := range allTables {
		isArray := i > 0
		ddl := storage.BuildCreateTable(t.Name, t.Columns, storage.SQLiteColumnType, isArray)
		if _, err := tx.ExecContext(ctx, ddl); err != nil {
			return fmt.Errorf("creating table %q: %s", t.Name, err)
		}
	}

	const upsertWatermark = `INSERT INTO "_event_block" (event, indexed, finalized) VALUES (?, 0, 0) ON CONFLICT(event) DO NOTHING`
	if _, err := tx.ExecContext(ctx, upsertWatermark, name); err != nil {
		return fmt.Errorf("seeding watermark for event %q: %s", name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing: %s", err)
	}

	pe := &preparedEvent{descriptor: desc, tables: tables}
	for i, t := range allTables {
		isArray := i > 0
		insertSQL := storage.BuildInsert(t.Name, t.Columns, isArray, storage.QuestionPlaceholder)
		insertStmt, err := b.db.PrepareContext(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("preparing insert for table %q: %s", t.Name, err)
		}
		removeStmt, err := b.db.PrepareContext(ctx, storage.BuildDelete(t.Name, storage.QuestionPlaceholder))
		if err != nil {
			return fmt.Errorf("preparing delete for table %q: %s", t.Name, err)
		}
		pe.insert = append(pe.insert, insertStmt)
		pe.remove = append(pe.remove, removeStmt)
	}
	b.events[name] = pe
	return nil
}

// EventBlock implements storage.Backend.
func (b *Backend) EventBlock(ctx context.Context, name string) (storage.Watermark, error) {
	row := b.db.QueryRowContext(ctx, `SELECT indexed, finalized FROM "_event_block" WHERE event = ?`, name)
	var w storage.Watermark
	if err := row.Scan(&w.Indexed, &w.Finalized); err != nil {
		if err == sql.ErrNoRows {
			return storage.Watermark{}, storage.ErrUnknownEvent
		}
		return storage.Watermark{}, fmt.Errorf("reading watermark for event %q: %s", name, err)
	}
	return w, nil
}

// Update implements storage.Backend.
func (b *Backend) Update(ctx context.Context, blocks []storage.EventBlock, logs []storage.Log) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	const setWatermark = `UPDATE "_event_block" SET indexed = ?, finalized = ? WHERE event = ?`
	for _, blk := range blocks {
		if _, ok := b.events[blk.Event]; !ok {
			return fmt.Errorf("%w: %q", storage.ErrUnknownEvent, blk.Event)
		}
		res, err := tx.ExecContext(ctx, setWatermark, blk.Indexed, blk.Finalized, blk.Event)
		if err != nil {
			return fmt.Errorf("updating watermark for event %q: %s", blk.Event, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("reading rows affected: %s", err)
		}
		if n != 1 {
			return fmt.Errorf("updating watermark for event %q affected %d rows, expected 1", blk.Event, n)
		}
	}

	for _, log := range logs {
		pe, ok := b.events[log.Event]
		if !ok {
			return fmt.Errorf("%w: %q", storage.ErrUnknownEvent, log.Event)
		}
		if len(log.Fields) != len(pe.descriptor.Inputs()) {
			return fmt.Errorf("log for event %q has %d fields, expected %d", log.Event, len(log.Fields), len(pe.descriptor.Inputs()))
		}

		bound, err := binder.Bind(pe.descriptor, log.Fields, log.Hashed)
		if err != nil {
			return fmt.Errorf("binding log for event %q: %s", log.Event, err)
		}

		if err := execInsert(ctx, tx, pe.insert[0], log, -1, bound.Primary); err != nil {
			return err
		}
		for i, arr := range bound.Arrays {
			stmt := pe.insert[i+1]
			for arrayIndex, row := range arr.Rows {
				if err := execInsert(ctx, tx, stmt, log, arrayIndex, row); err != nil {
					return err
				}
			}
		}
	}

	return tx.Commit()
}

func execInsert(ctx context.Context, tx *sql.Tx, stmt *sql.Stmt, log storage.Log, arrayIndex int, row binder.Row) error {
	args := []interface{}{log.BlockNumber, log.LogIndex, log.TransactionIndex, log.Address.Bytes()}
	if arrayIndex >= 0 {
		args = append(args, arrayIndex)
	}
	for _, v := range row.Values {
		arg, err := storage.SQLiteArg(v)
		if err != nil {
			return fmt.Errorf("encoding value for event %q: %s", log.Event, err)
		}
		args = append(args, arg)
	}
	if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, args...); err != nil {
		return fmt.Errorf("inserting row for event %q: %s", log.Event, err)
	}
	return nil
}

// Remove implements storage.Backend.
func (b *Backend) Remove(ctx context.Context, uncles []storage.Uncle) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %s", err)
	}
	defer func() { _ = tx.Rollback() }()

	const setIndexed = `UPDATE "_event_block" SET indexed = ? WHERE event = ?`
	for _, uncle := range uncles {
		if uncle.Number == 0 {
			return fmt.Errorf("uncle block number must not be zero for event %q", uncle.Event)
		}
		pe, ok := b.events[uncle.Event]
		if !ok {
			return fmt.Errorf("%w: %q", storage.ErrUnknownEvent, uncle.Event)
		}
		for _, stmt := range pe.remove {
			if _, err := tx.StmtContext(ctx, stmt).ExecContext(ctx, uncle.Number); err != nil {
				return fmt.Errorf("removing rows for event %q: %s", uncle.Event, err)
			}
		}
		if _, err := tx.ExecContext(ctx, setIndexed, uncle.Number-1, uncle.Event); err != nil {
			return fmt.Errorf("rewinding watermark for event %q: %s", uncle.Event, err)
		}
	}

	return tx.Commit()
}

// Exec implements storage.Backend.
func (b *Backend) Exec(ctx context.Context, sql string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("executing statement: %s", err)
	}
	return nil
}

// Close implements storage.Backend.
func (b *Backend) Close() error {
	if err := b.db.Close(); err != nil {
		return fmt.Errorf("closing sqlite database: %s", err)
	}
	return nil
}
