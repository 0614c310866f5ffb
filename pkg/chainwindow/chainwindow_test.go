package chainwindow_test

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/tablelandnetwork/arak/pkg/chainwindow"
)

func digest(b byte) common.Hash {
	var h common.Hash
	for i := range h {
		h[i] = b
	}
	return h
}

func TestAppendsBlocks(t *testing.T) {
	chain := chainwindow.New(1, digest(0x10))
	require.EqualValues(t, 2, chain.Next())

	_, err := chain.Append(digest(1), digest(0))
	require.ErrorIs(t, err, chainwindow.ErrReorgPastFinalized)

	res, err := chain.Append(digest(0x20), digest(0x10))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendOk, res)
	require.EqualValues(t, 3, chain.Next())

	res, err = chain.Append(digest(0x30), digest(0x20))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendOk, res)
	require.EqualValues(t, 4, chain.Next())

	res, err = chain.Append(digest(0x40), digest(0x31))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendReorg, res)
	require.EqualValues(t, 3, chain.Next())

	res, err = chain.Append(digest(0x31), digest(0x20))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendOk, res)
	require.EqualValues(t, 4, chain.Next())

	res, err = chain.Append(digest(0x40), digest(0x31))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendOk, res)
	require.EqualValues(t, 5, chain.Next())
}

func TestFinalizesBlocks(t *testing.T) {
	chain := chainwindow.New(1, digest(1))
	for i := byte(2); i < 100; i++ {
		_, err := chain.Append(digest(i), digest(i-1))
		require.NoError(t, err)
	}
	require.EqualValues(t, 100, chain.Next())

	_, err := chain.Finalize(0)
	require.Error(t, err)

	_, err = chain.Finalize(100)
	require.Error(t, err)

	_, err = chain.Finalize(42)
	require.NoError(t, err)
	require.EqualValues(t, 100, chain.Next())

	res, err := chain.Append(digest(100), digest(99))
	require.NoError(t, err)
	require.Equal(t, chainwindow.AppendOk, res)
}
