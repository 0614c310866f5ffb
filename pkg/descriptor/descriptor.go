// Package descriptor represents a parsed, normalized Solidity event
// declaration and the deterministic traversal over its type tree.
//
// An Event wraps a go-ethereum abi.Event: its Inputs field is the ABI
// parser's recursive type tree (abi.Type, with Elem/TupleElems describing
// arrays and tuples), which is exactly the "descriptor" spec.md assumes is
// handed to the indexing core by an external ABI parser.
package descriptor

import (
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// Kind is the leaf ABI type set spec.md builds schemas and columns from.
// Composite types (tuple, fixed array, dynamic array) are not Kinds; the
// visitor resolves them into a traversal instead.
type Kind int

const (
	// KindInt is a signed integer of some bit width.
	KindInt Kind = iota
	// KindUint is an unsigned integer of some bit width.
	KindUint
	// KindAddress is a 20-byte account address.
	KindAddress
	// KindBool is a boolean.
	KindBool
	// KindFixedBytes is an N-byte fixed-size byte array, 1 <= N <= 32.
	KindFixedBytes
	// KindFunction is a 24-byte address||selector pair.
	KindFunction
	// KindBytes is a variable-length byte string.
	KindBytes
	// KindString is a variable-length UTF-8 string.
	KindString
)

// String implements fmt.Stringer for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindAddress:
		return "address"
	case KindBool:
		return "bool"
	case KindFixedBytes:
		return "fixed_bytes"
	case KindFunction:
		return "function"
	case KindBytes:
		return "bytes"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// Event is a parsed, normalized event declaration: a name, an ordered list
// of input fields (as an abi.Event type tree), and the 32-byte selector
// used as topic-0.
type Event struct {
	abi *abi.Event
}

// New wraps a go-ethereum abi.Event as a descriptor.Event. Anonymous events
// are rejected since they lack a topic-0 selector (spec.md §1 Non-goals).
func New(event abi.Event) (*Event, error) {
	if event.Anonymous {
		return nil, fmt.Errorf("event %q is anonymous: anonymous events are not supported", event.Name)
	}
	return &Event{abi: &event}, nil
}

// Name is the event's declared name (distinct from the adapter's
// user-configured table-name prefix, which may differ).
func (e *Event) Name() string { return e.abi.Name }

// Selector is the 32-byte keccak of the canonical event signature, used as
// topic-0 in the log filter.
func (e *Event) Selector() common.Hash { return e.abi.ID }

// Inputs are the event's ordered top-level fields.
func (e *Event) Inputs() abi.Arguments { return e.abi.Inputs }

// ABI exposes the underlying go-ethereum event, for components (the RPC
// filter builder, the decoder) that need the full ABI machinery.
func (e *Event) ABI() *abi.Event { return e.abi }

// kindOf maps an abi.Type's elementary type tag to our Kind. Panics on a
// composite type (tuple/slice/array): callers must only call this on a
// type that VisitType has already classified as a leaf.
func kindOf(t *abi.Type) Kind {
	switch t.T {
	case abi.IntTy:
		return KindInt
	case abi.UintTy:
		return KindUint
	case abi.AddressTy:
		return KindAddress
	case abi.BoolTy:
		return KindBool
	case abi.FixedBytesTy:
		return KindFixedBytes
	case abi.FunctionTy:
		return KindFunction
	case abi.BytesTy:
		return KindBytes
	case abi.StringTy:
		return KindString
	default:
		panic(fmt.Sprintf("descriptor: kindOf called on composite abi type %v", t.T))
	}
}
