// Package value represents decoded ABI field values and an unnamed
// traversal over them (Walk). pkg/binder binds rows with Value but
// flattens decoded data with its own walk over the abi.Type, not with
// Walk.
package value

import (
	"fmt"
	"math/big"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

// Value is a single decoded leaf value, tagged with the Kind it was
// decoded as. The Go representation per Kind follows go-ethereum's
// accounts/abi unpacking conventions:
//
//   - KindInt, KindUint: *big.Int
//   - KindAddress: common.Address
//   - KindBool: bool
//   - KindFixedBytes: [N]byte of the declared width, or a 32-byte []byte
//     when representing a hashed indexed reference-type value, see the
//     adapter
//   - KindFunction: [24]byte
//   - KindBytes, KindString: []byte / string
type Value struct {
	Kind descriptor.Kind
	Raw  interface{}
}

// Int returns the value as a *big.Int, panicking if Kind is not an
// integer Kind. Callers should only invoke this after checking Kind.
func (v Value) Int() *big.Int { return v.Raw.(*big.Int) }

// Address returns the value as a common.Address.
func (v Value) Address() common.Address { return v.Raw.(common.Address) }

// Bool returns the value as a bool.
func (v Value) Bool() bool { return v.Raw.(bool) }

// Bytes returns the value as a byte slice, valid for KindFixedBytes,
// KindBytes, and KindString (as its UTF-8 encoding).
func (v Value) Bytes() []byte {
	switch r := v.Raw.(type) {
	case []byte:
		return r
	case string:
		return []byte(r)
	default:
		rv := reflect.ValueOf(v.Raw)
		if rv.Kind() == reflect.Array {
			out := make([]byte, rv.Len())
			for i := range out {
				out[i] = byte(rv.Index(i).Uint())
			}
			return out
		}
		panic(fmt.Sprintf("value: Bytes() called on non-byte-like Raw %T", v.Raw))
	}
}

// Visitor receives an unnamed, flattened traversal of a decoded value
// tree. Unlike descriptor.TypeVisitor, tuples and fixed-size arrays are
// not reported as distinct events - their elements are simply visited in
// order - since a decoded value has no use for the name information the
// type visitor tracks. Only dynamic arrays produce ArrayStart/ArrayEnd,
// since those are the only shape that produces extra rows during binding.
type Visitor interface {
	ArrayStart(length int)
	ArrayEnd()
	Value(v Value)
}

// Walk recursively visits a decoded Go value against its abi.Type, as
// returned by abi.Arguments.UnpackValues, reporting leaves and
// dynamic-array boundaries to vis. A hashed, non-primitive indexed topic
// value is reported with WalkHashed instead.
func Walk(t *abi.Type, raw interface{}, vis Visitor) {
	switch t.T {
	case abi.TupleTy:
		elems := tupleElems(raw, len(t.TupleElems))
		for i, elem := range t.TupleElems {
			Walk(elem, elems[i], vis)
		}
	case abi.ArrayTy:
		rv := reflect.ValueOf(raw)
		for i := 0; i < rv.Len(); i++ {
			Walk(t.Elem, rv.Index(i).Interface(), vis)
		}
	case abi.SliceTy:
		rv := reflect.ValueOf(raw)
		vis.ArrayStart(rv.Len())
		for i := 0; i < rv.Len(); i++ {
			Walk(t.Elem, rv.Index(i).Interface(), vis)
		}
		vis.ArrayEnd()
	default:
		vis.Value(Value{Kind: kindFor(t), Raw: raw})
	}
}

// WalkHashed reports a single KindFixedBytes leaf, used in place of Walk
// when the field is an indexed, non-value-type (reference) type: the log
// topic only ever carries keccak256(value), never the value itself.
func WalkHashed(hash common.Hash, vis Visitor) {
	vis.Value(Value{Kind: descriptor.KindFixedBytes, Raw: hash.Bytes()})
}

// tupleElems normalizes the two shapes abi.Arguments.UnpackValues produces
// for a tuple: either a []interface{} (anonymous tuple) or a struct value
// built from generated field names (named tuple unpacked via UnpackIntoMap
// style reflection). This project only ever calls UnpackValues, which
// always yields []interface{}, but defend the reflection-struct shape too
// since it is the go-ethereum convention for tuples elsewhere in the ABI
// package.
func tupleElems(raw interface{}, n int) []interface{} {
	if elems, ok := raw.([]interface{}); ok {
		return elems
	}
	rv := reflect.ValueOf(raw)
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = rv.Field(i).Interface()
	}
	return out
}

// kindFor maps an abi.Type's elementary type tag to a descriptor.Kind.
// Mirrors the unexported mapping in pkg/descriptor; duplicated here (with
// a deliberately distinct name) rather than exported from descriptor,
// since descriptor's visitor and this package's visitor are independent
// collaborators that only happen to share a type tag vocabulary.
func kindFor(t *abi.Type) descriptor.Kind {
	switch t.T {
	case abi.IntTy:
		return descriptor.KindInt
	case abi.UintTy:
		return descriptor.KindUint
	case abi.AddressTy:
		return descriptor.KindAddress
	case abi.BoolTy:
		return descriptor.KindBool
	case abi.FixedBytesTy:
		return descriptor.KindFixedBytes
	case abi.FunctionTy:
		return descriptor.KindFunction
	case abi.BytesTy:
		return descriptor.KindBytes
	case abi.StringTy:
		return descriptor.KindString
	default:
		panic(fmt.Sprintf("value: kindFor called on composite abi type %v", t.T))
	}
}
