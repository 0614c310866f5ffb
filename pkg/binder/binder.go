// Package binder walks a decoded log's field values against its event's
// type tree, producing the concrete per-table row bundles the storage
// backend inserts: one row for the primary table, plus zero or more rows
// per dynamic-array table, in exactly the same table order the schema
// planner produced (pkg/schema and pkg/binder walk the same descriptor,
// so their table orderings line up by construction).
package binder

import (
	"fmt"
	"reflect"

	"github.com/ethereum/go-ethereum/accounts/abi"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/value"
)

// Row is one row's worth of column values, in table-column order.
type Row struct {
	Values []value.Value
}

// ArrayTable is the set of rows bound for one dynamic-array table; its
// position in Bound.Arrays matches the corresponding schema.Tables'
// DynamicArrays slice by index.
type ArrayTable struct {
	Rows []Row
}

// Bound is the complete set of rows produced from one log's fields: the
// single primary-table row, and every dynamic array's rows.
type Bound struct {
	Primary Row
	Arrays  []ArrayTable
}

// Bind walks fields - one decoded value per top-level input of event, in
// declaration order, as produced by abi.Arguments.UnpackValues - into the
// row bundles described above.
//
// hashed, if non-nil, marks by input index which top-level fields were
// indexed, non-value-type fields whose log value is only available as a
// keccak256 hash (see pkg/adapter): for those fields, fields[i] must
// already be the 32-byte hash and is bound directly as a single
// KindFixedBytes leaf instead of being walked against its declared type.
func Bind(event *descriptor.Event, fields []interface{}, hashed map[int]bool) (Bound, error) {
	inputs := event.Inputs()
	if len(fields) != len(inputs) {
		return Bound{}, fmt.Errorf("binder: expected %d fields, got %d", len(inputs), len(fields))
	}

	b := &binder{}
	for i, input := range inputs {
		if hashed[i] {
			raw, ok := fields[i].([]byte)
			if !ok || len(raw) != 32 {
				return Bound{}, fmt.Errorf("binder: field %d is marked hashed but is not a 32-byte value", i)
			}
			b.primary = append(b.primary, value.Value{Kind: descriptor.KindFixedBytes, Raw: raw})
			continue
		}

		t := input.Type
		if t.T == abi.SliceTy {
			table, err := bindArray(&t, fields[i])
			if err != nil {
				return Bound{}, fmt.Errorf("binder: field %d: %s", i, err)
			}
			b.arrays = append(b.arrays, table)
			continue
		}

		if err := bindLeaves(&t, fields[i], &b.primary); err != nil {
			return Bound{}, fmt.Errorf("binder: field %d: %s", i, err)
		}
	}

	return Bound{Primary: Row{Values: b.primary}, Arrays: b.arrays}, nil
}

type binder struct {
	primary []value.Value
	arrays  []ArrayTable
}

// bindArray binds one top-level dynamic array field into its own
// ArrayTable, one row per element.
func bindArray(t *abi.Type, raw interface{}) (ArrayTable, error) {
	rv := reflect.ValueOf(raw)
	rows := make([]Row, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		var values []value.Value
		if err := bindLeaves(t.Elem, rv.Index(i).Interface(), &values); err != nil {
			return ArrayTable{}, fmt.Errorf("element %d: %s", i, err)
		}
		rows[i] = Row{Values: values}
	}
	return ArrayTable{Rows: rows}, nil
}

// bindLeaves recursively flattens tuples and fixed-size arrays into out,
// in the same depth-first pre-order pkg/schema's planner used to assign
// column positions. A dynamic array must never appear here: pkg/schema
// rejects any descriptor with a dynamic array nested inside another
// array before binding is ever reached.
func bindLeaves(t *abi.Type, raw interface{}, out *[]value.Value) error {
	switch t.T {
	case abi.TupleTy:
		elems := tupleElems(raw, len(t.TupleElems))
		for i, elem := range t.TupleElems {
			if err := bindLeaves(elem, elems[i], out); err != nil {
				return err
			}
		}
		return nil
	case abi.ArrayTy:
		rv := reflect.ValueOf(raw)
		for i := 0; i < rv.Len(); i++ {
			if err := bindLeaves(t.Elem, rv.Index(i).Interface(), out); err != nil {
				return err
			}
		}
		return nil
	case abi.SliceTy:
		return fmt.Errorf("unsupported nested dynamic array")
	default:
		*out = append(*out, value.Value{Kind: kindFor(t), Raw: raw})
		return nil
	}
}

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
		panic(fmt.Sprintf("binder: kindFor called on composite abi type %v", t.T))
	}
}
