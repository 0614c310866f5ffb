// Package adapter builds, per configured event, the RPC log filter and
// the log decoder spec.md calls the Adapter: one per configured event,
// created at startup and never mutated, grounded on the Rust ancestor's
// indexer::adapter module.
package adapter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/tablelandnetwork/arak/pkg/descriptor"
)

// Contract is the address side of a log filter: either any address, or
// exactly one.
type Contract struct {
	Any     bool
	Address common.Address
}

// Adapter is the per-event, process-lifetime indexing unit: its name (the
// table-name prefix), its descriptor, the first block to index from, its
// address/topic filter, and its decoder (derived entirely from the
// descriptor, so it carries no extra state).
type Adapter struct {
	name       string
	descriptor *descriptor.Event
	start      uint64
	contract   Contract
	// extraTopics are up to three additional topic filters beyond
	// topic-0 (the selector); a nil entry means "any value" for that
	// topic position.
	extraTopics [3]*common.Hash
}

// New builds an Adapter. name must already be validated by the caller
// (pkg/config): schema validation (sanitization, reserved-name checks)
// happens at PrepareEvent time, not here.
func New(name string, desc *descriptor.Event, start uint64, contract Contract, extraTopics [3]*common.Hash) *Adapter {
	return &Adapter{
		name:        name,
		descriptor:  desc,
		start:       start,
		contract:    contract,
		extraTopics: extraTopics,
	}
}

// Name is the table-name prefix this adapter's rows are stored under.
func (a *Adapter) Name() string { return a.name }

// Descriptor is the event's parsed, normalized declaration.
func (a *Adapter) Descriptor() *descriptor.Event { return a.descriptor }

// Start is the first block this adapter should index from.
func (a *Adapter) Start() uint64 { return a.start }

// FilterRange builds the eth_getLogs filter for a closed block-number
// range, used by the bootstrap phase's paged historical backfill.
func (a *Adapter) FilterRange(from, to uint64) ethereum.FilterQuery {
	q := a.baseFilter()
	q.FromBlock = new(big.Int).SetUint64(from)
	q.ToBlock = new(big.Int).SetUint64(to)
	return q
}

// FilterBlock builds the eth_getLogs filter for one exact block,
// identified by hash rather than number - the live sync loop always
// queries by hash (spec.md §4.6) so a reorg between the query and its
// response can never silently return logs from the wrong fork.
func (a *Adapter) FilterBlock(hash common.Hash) ethereum.FilterQuery {
	q := a.baseFilter()
	q.BlockHash = &hash
	return q
}

func (a *Adapter) baseFilter() ethereum.FilterQuery {
	var q ethereum.FilterQuery
	if !a.contract.Any {
		q.Addresses = []common.Address{a.contract.Address}
	}
	topics := make([][]common.Hash, 1, 4)
	topics[0] = []common.Hash{a.descriptor.Selector()}
	for _, t := range a.extraTopics {
		if t == nil {
			topics = append(topics, nil)
		} else {
			topics = append(topics, []common.Hash{*t})
		}
	}
	// Trim trailing wildcard topic positions: go-ethereum treats a
	// shorter topics slice as "don't care" for the remaining positions,
	// identical in effect to an explicit nil entry.
	for len(topics) > 1 && topics[len(topics)-1] == nil {
		topics = topics[:len(topics)-1]
	}
	q.Topics = topics
	return q
}

// isValueType reports whether t is an ABI elementary type whose value is
// recoverable directly from a 32-byte log topic word.
func isValueType(t abi.Type) bool {
	switch t.T {
	case abi.IntTy, abi.UintTy, abi.AddressTy, abi.BoolTy, abi.FixedBytesTy, abi.FunctionTy:
		return true
	default:
		return false
	}
}

// Decode decodes one log's topics and data into a value per top-level
// input field, in declaration order. hashed reports, by field index,
// whether that field's value is the raw 32-byte keccak256 hash of the
// true value rather than the value itself - which happens exactly when an
// indexed field has a reference type (string, bytes, array, or tuple):
// the EVM never writes the pre-image of such a field into the log, only
// its hash (ground-truthed against the Rust ancestor's
// `non_primitive_indexed_field` test).
func (a *Adapter) Decode(log types.Log) (fields []interface{}, hashed map[int]bool, err error) {
	inputs := a.descriptor.Inputs()
	if len(log.Topics) == 0 || log.Topics[0] != a.descriptor.Selector() {
		return nil, nil, fmt.Errorf("adapter %q: log topic-0 does not match event selector", a.name)
	}

	nonIndexedValues, err := inputs.NonIndexed().UnpackValues(log.Data)
	if err != nil {
		return nil, nil, fmt.Errorf("adapter %q: decoding non-indexed fields: %s", a.name, err)
	}

	fields = make([]interface{}, len(inputs))
	hashed = make(map[int]bool)

	topicIdx := 1
	nonIndexedIdx := 0
	for i, in := range inputs {
		if !in.Indexed {
			fields[i] = nonIndexedValues[nonIndexedIdx]
			nonIndexedIdx++
			continue
		}
		if topicIdx >= len(log.Topics) {
			return nil, nil, fmt.Errorf("adapter %q: log has fewer topics than indexed fields", a.name)
		}
		topic := log.Topics[topicIdx]
		topicIdx++

		if !isValueType(in.Type) {
			fields[i] = topic.Bytes()
			hashed[i] = true
			continue
		}
		single := abi.Arguments{{Type: in.Type}}
		values, err := single.UnpackValues(topic.Bytes())
		if err != nil {
			return nil, nil, fmt.Errorf("adapter %q: decoding indexed field %d: %s", a.name, i, err)
		}
		fields[i] = values[0]
	}

	return fields, hashed, nil
}
