package binder_test

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/binder"
	"github.com/tablelandnetwork/arak/pkg/descriptor"
	"github.com/tablelandnetwork/arak/pkg/signature"
)

func mustDescriptor(t *testing.T, decl string) *descriptor.Event {
	t.Helper()
	desc, err := signature.Parse(decl)
	require.NoError(t, err)
	return desc
}

func TestBindPlainFieldsAllGoToPrimaryRow(t *testing.T) {
	desc := mustDescriptor(t, "event Transfer(address indexed from, address indexed to, uint256 value)")
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	bound, err := binder.Bind(desc, []interface{}{from, to, big.NewInt(100)}, nil)
	require.NoError(t, err)

	require.Len(t, bound.Primary.Values, 3)
	require.Empty(t, bound.Arrays)
	require.Equal(t, descriptor.KindAddress, bound.Primary.Values[0].Kind)
	require.Equal(t, from, bound.Primary.Values[0].Address())
	require.Equal(t, descriptor.KindUint, bound.Primary.Values[2].Kind)
	require.Equal(t, big.NewInt(100), bound.Primary.Values[2].Int())
}

func TestBindDynamicArrayProducesOneRowPerElement(t *testing.T) {
	desc := mustDescriptor(t, "event E(uint256[] vals)")
	vals := []*big.Int{big.NewInt(1), big.NewInt(2), big.NewInt(3)}

	bound, err := binder.Bind(desc, []interface{}{vals}, nil)
	require.NoError(t, err)

	require.Empty(t, bound.Primary.Values)
	require.Len(t, bound.Arrays, 1)
	require.Len(t, bound.Arrays[0].Rows, 3)
	for i, row := range bound.Arrays[0].Rows {
		require.Len(t, row.Values, 1)
		require.Equal(t, big.NewInt(int64(i+1)), row.Values[0].Int())
	}
}

func TestBindHashedFieldBecomesFixedBytesLeafWithoutRecursing(t *testing.T) {
	desc := mustDescriptor(t, "event E(uint256 a, bytes indexed b)")
	hash := common.HexToHash("0xdeadbeef").Bytes()
	require.Len(t, hash, 32)

	bound, err := binder.Bind(desc, []interface{}{big.NewInt(7), hash}, map[int]bool{1: true})
	require.NoError(t, err)

	require.Len(t, bound.Primary.Values, 2)
	require.Equal(t, descriptor.KindUint, bound.Primary.Values[0].Kind)
	require.Equal(t, descriptor.KindFixedBytes, bound.Primary.Values[1].Kind)
	require.Equal(t, hash, bound.Primary.Values[1].Bytes())
}

func TestBindRejectsWrongFieldCount(t *testing.T) {
	desc := mustDescriptor(t, "event E(uint256 a, uint256 b)")
	_, err := binder.Bind(desc, []interface{}{big.NewInt(1)}, nil)
	require.Error(t, err)
}

func TestBindRejectsHashedFieldThatIsNotA32ByteValue(t *testing.T) {
	desc := mustDescriptor(t, "event E(bytes indexed b)")
	_, err := binder.Bind(desc, []interface{}{[]byte{1, 2, 3}}, map[int]bool{0: true})
	require.Error(t, err)
}

func TestBindTupleFlattensIntoPrimaryRowInDeclarationOrder(t *testing.T) {
	desc := mustDescriptor(t, "event E((uint256 amount, address who) p)")
	who := common.HexToAddress("0x3333333333333333333333333333333333333333")

	bound, err := binder.Bind(desc, []interface{}{[]interface{}{big.NewInt(42), who}}, nil)
	require.NoError(t, err)

	require.Len(t, bound.Primary.Values, 2)
	require.Equal(t, big.NewInt(42), bound.Primary.Values[0].Int())
	require.Equal(t, who, bound.Primary.Values[1].Address())
}
