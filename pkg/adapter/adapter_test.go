package adapter_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/adapter"
	"github.com/tablelandnetwork/arak/pkg/signature"
)

func mustParse(t *testing.T, decl string) *adapter.Adapter {
	t.Helper()
	desc, err := signature.Parse(decl)
	require.NoError(t, err)
	return adapter.New("t", desc, 0, adapter.Contract{Any: true}, [3]*common.Hash{})
}

func TestDecodesPlainEvent(t *testing.T) {
	a := mustParse(t, "event Transfer(address indexed from, address indexed to, uint256 value)")

	from := common.HexToAddress("0x0000000000000000000000000000000000000001")
	to := common.HexToAddress("0x0000000000000000000000000000000000000002")

	data := make([]byte, 32)
	data[31] = 42

	log := gethtypes.Log{
		Topics: []common.Hash{
			a.Descriptor().Selector(),
			common.BytesToHash(from.Bytes()),
			common.BytesToHash(to.Bytes()),
		},
		Data: data,
	}

	fields, hashed, err := a.Decode(log)
	require.NoError(t, err)
	require.Len(t, fields, 3)
	require.Empty(t, hashed)
	require.Equal(t, from, fields[0])
	require.Equal(t, to, fields[1])
}

func TestDecodesNonPrimitiveIndexedFieldAsHash(t *testing.T) {
	a := mustParse(t, "event Foo(string indexed note, bool indexed flag)")

	noteHash := crypto.Keccak256Hash([]byte("hello"))
	flagTopic := common.Hash{}
	flagTopic[31] = 1

	log := gethtypes.Log{
		Topics: []common.Hash{a.Descriptor().Selector(), noteHash, flagTopic},
		Data:   nil,
	}

	fields, hashed, err := a.Decode(log)
	require.NoError(t, err)
	require.True(t, hashed[0])
	require.False(t, hashed[1])
	require.Equal(t, noteHash.Bytes(), fields[0])
	require.Equal(t, true, fields[1])
}

func TestFilterRangeAndBlockUseSelectorAsTopicZero(t *testing.T) {
	a := mustParse(t, "event Transfer(address indexed from, address indexed to, uint256 value)")

	rangeQ := a.FilterRange(10, 20)
	require.Equal(t, a.Descriptor().Selector(), rangeQ.Topics[0][0])
	require.EqualValues(t, 10, rangeQ.FromBlock.Uint64())
	require.EqualValues(t, 20, rangeQ.ToBlock.Uint64())

	h := common.HexToHash("0xaa")
	blockQ := a.FilterBlock(h)
	require.Equal(t, a.Descriptor().Selector(), blockQ.Topics[0][0])
	require.Equal(t, &h, blockQ.BlockHash)
}
