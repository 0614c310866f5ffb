package storage

import (
	"fmt"
	"math/big"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/value"
)

// SQLiteArg converts a bound leaf value into the argument database/sql
// passes to the sqlite3 driver, per the embedded-database column mapping
// in spec.md §4.3: everything numeric or address-shaped is stored as raw
// big-endian bytes rather than a native integer, so on-disk byte layout
// never depends on host endianness or driver integer width.
func SQLiteArg(v value.Value) (interface{}, error) {
	switch v.Kind {
	case descriptor.KindInt, descriptor.KindUint:
		return twosComplementBytes(v.Int(), 256), nil
	case descriptor.KindAddress:
		a := v.Address()
		return a.Bytes(), nil
	case descriptor.KindBool:
		if v.Bool() {
			return int64(1), nil
		}
		return int64(0), nil
	case descriptor.KindFixedBytes, descriptor.KindFunction, descriptor.KindBytes:
		return v.Bytes(), nil
	case descriptor.KindString:
		return v.Bytes(), nil
	default:
		return nil, fmt.Errorf("storage: unsupported kind %v for sqlite arg", v.Kind)
	}
}

// PostgresArg converts a bound leaf value into the argument pgx passes to
// the server, per spec.md §4.3's server-database column mapping: integers
// go to the driver as an int64/uint64 when they fit (pgx encodes either
// into the NUMERIC column PostgresColumnType always picks) and as a
// *big.Int otherwise, text fields stay text, everything else is raw bytes.
func PostgresArg(v value.Value) (interface{}, error) {
	switch v.Kind {
	case descriptor.KindInt, descriptor.KindUint:
		n := v.Int()
		if n.IsInt64() {
			return n.Int64(), nil
		}
		if v.Kind == descriptor.KindUint && n.IsUint64() {
			return n.Uint64(), nil
		}
		return n, nil
	case descriptor.KindAddress:
		a := v.Address()
		return a.Bytes(), nil
	case descriptor.KindBool:
		return v.Bool(), nil
	case descriptor.KindFixedBytes, descriptor.KindFunction, descriptor.KindBytes:
		return v.Bytes(), nil
	case descriptor.KindString:
		return string(v.Bytes()), nil
	default:
		return nil, fmt.Errorf("storage: unsupported kind %v for postgres arg", v.Kind)
	}
}

// twosComplementBytes renders n as a fixed-width, big-endian two's
// complement byte string of bitSize bits, matching how the EVM itself
// represents signed and unsigned integers on the stack: negative values
// wrap modulo 2^bitSize rather than carrying a sign byte, so byte-wise
// comparison of two same-width columns orders unsigned values correctly
// (signed ordering is left to the caller, as it is not a spec requirement).
func twosComplementBytes(n *big.Int, bitSize int) []byte {
	byteLen := bitSize / 8
	out := make([]byte, byteLen)
	if n.Sign() >= 0 {
		b := n.Bytes()
		copy(out[byteLen-len(b):], b)
		return out
	}
	mod := new(big.Int).Lsh(big.NewInt(1), uint(bitSize))
	wrapped := new(big.Int).Add(mod, n)
	b := wrapped.Bytes()
	copy(out[byteLen-len(b):], b)
	return out
}
