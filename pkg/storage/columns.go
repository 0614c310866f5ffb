package storage

import (
	"fmt"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/schema"
)

// SQLiteColumnType returns the SQLite column type for col, per spec.md
// §4.3's embedded-database mapping: integers and addresses are stored as
// raw big-endian bytes rather than native integers, booleans as 0/1
// integers, and text as UTF-8 bytes - the embedded backend favors byte
// fidelity over native numeric comparison.
func SQLiteColumnType(col schema.Column) string {
	switch col.Kind {
	case descriptor.KindInt, descriptor.KindUint:
		return "BLOB"
	case descriptor.KindAddress:
		return "BLOB"
	case descriptor.KindBool:
		return "INTEGER"
	case descriptor.KindFixedBytes:
		return "BLOB"
	case descriptor.KindFunction:
		return "BLOB"
	case descriptor.KindBytes:
		return "BLOB"
	case descriptor.KindString:
		return "BLOB"
	default:
		panic(fmt.Sprintf("storage: unknown column kind %v", col.Kind))
	}
}

// PostgresColumnType returns the Postgres column type for col, per
// spec.md §4.3's server-database mapping: every integer width, up to the
// full 256 bits Solidity allows, uses arbitrary-precision NUMERIC rather
// than a fixed-width native integer, so a column's type never has to
// change if a contract's own integer width does.
func PostgresColumnType(col schema.Column) string {
	switch col.Kind {
	case descriptor.KindInt, descriptor.KindUint:
		return "NUMERIC"
	case descriptor.KindAddress:
		return "BYTEA"
	case descriptor.KindBool:
		return "BOOLEAN"
	case descriptor.KindFixedBytes:
		return "BYTEA"
	case descriptor.KindFunction:
		return "BYTEA"
	case descriptor.KindBytes:
		return "BYTEA"
	case descriptor.KindString:
		return "TEXT"
	default:
		panic(fmt.Sprintf("storage: unknown column kind %v", col.Kind))
	}
}
