package descriptor

import "github.com/ethereum/go-ethereum/accounts/abi"

// TypeVisitor receives a depth-first, pre-order traversal of an event's
// type tree. It is "named": every callback carries the name that should be
// used to derive a column or table name for the position being visited,
// following the propagation rules below.
//
// Grounded on the Rust ancestor's `database::event_visitor` visitor (the
// one used for schema planning, distinct from the unnamed value visitor
// used for decoding): a fixed-size array forwards its own name down to its
// element type, but that forwarded name is dropped the moment the element
// turns out to be a tuple - a tuple's own field names take over from there.
// A dynamic array similarly forwards its name to its element, with the
// same tuple-reset rule, but is additionally reported as its own event
// (ArrayStart/ArrayEnd) since the schema planner gives every dynamic array
// its own auxiliary table.
type TypeVisitor interface {
	TupleStart(name string)
	TupleEnd()
	FixedArrayStart(length int, name string)
	FixedArrayEnd()
	ArrayStart(name string)
	ArrayEnd()
	// Leaf reports one leaf field. size is the leaf's declared bit width
	// for KindInt/KindUint, its byte length for KindFixedBytes, and 0
	// otherwise (address/bool/function/bytes/string have a single fixed
	// or variable representation that size does not disambiguate).
	Leaf(kind Kind, size int, name string)
}

// VisitType walks t in depth-first pre-order, reporting each node to v.
// name is the name to propagate to this node per the forwarding rules
// above; top-level callers pass the field's own declared name.
func VisitType(t *abi.Type, name string, v TypeVisitor) {
	switch t.T {
	case abi.TupleTy:
		v.TupleStart(name)
		for i, elem := range t.TupleElems {
			fieldName := t.TupleRawNames[i]
			VisitType(elem, fieldName, v)
		}
		v.TupleEnd()
	case abi.ArrayTy:
		v.FixedArrayStart(t.Size, name)
		// A tuple element resets the propagated name to its own field
		// names; anything else keeps receiving this array's name.
		innerName := name
		if t.Elem.T == abi.TupleTy {
			innerName = ""
		}
		VisitType(t.Elem, innerName, v)
		v.FixedArrayEnd()
	case abi.SliceTy:
		v.ArrayStart(name)
		innerName := name
		if t.Elem.T == abi.TupleTy {
			innerName = ""
		}
		VisitType(t.Elem, innerName, v)
		v.ArrayEnd()
	default:
		v.Leaf(kindOf(t), leafSize(t), name)
	}
}

// leafSize returns the size to report alongside a leaf Kind: bit width
// for int/uint, byte length for fixed_bytes, 0 for everything else.
func leafSize(t *abi.Type) int {
	switch t.T {
	case abi.IntTy, abi.UintTy, abi.FixedBytesTy:
		return t.Size
	default:
		return 0
	}
}

// VisitEvent walks every top-level input field of e in declaration order,
// skipping nothing: indexed-ness is irrelevant to schema shape, every field
// gets a column (or array table) regardless of whether it is indexed.
func VisitEvent(e *Event, v TypeVisitor) {
	for _, input := range e.Inputs() {
		t := input.Type
		VisitType(&t, input.Name, v)
	}
}
