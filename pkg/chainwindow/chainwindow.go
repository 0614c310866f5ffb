// Package chainwindow tracks the local view of recent block hashes past
// the finalized block, detecting reorgs the same way the Rust ancestor's
// indexer::chain module does.
package chainwindow

import (
	"container/list"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrReorgPastFinalized is returned by Append when the reported parent
// hash doesn't match any block this Chain still remembers, including the
// finalized block itself - meaning the reorg reaches past what this
// process can safely repair.
var ErrReorgPastFinalized = errors.New("chainwindow: reorg past finalized block")

// Append is the outcome of Append: either the new block extended the
// known chain, or its parent didn't match the current head and the head
// was rolled back by one block.
type Append int

const (
	// AppendOk means the block was accepted as the new head.
	AppendOk Append = iota
	// AppendReorg means the block's parent didn't match; the previous
	// head was evicted and the caller should retry with a shallower
	// block.
	AppendReorg
)

// Chain is the local, in-memory view of the chain from the last finalized
// block onward: a deque of block hashes, most recent first.
type Chain struct {
	hashes    *list.List // front = most recent
	finalized uint64
}

// New initializes a Chain whose finalized block has the given number and
// hash.
func New(finalizedNumber uint64, finalizedHash common.Hash) *Chain {
	hashes := list.New()
	hashes.PushFront(finalizedHash)
	return &Chain{hashes: hashes, finalized: finalizedNumber}
}

// Next returns the next block number this Chain expects to append.
func (c *Chain) Next() uint64 {
	return c.finalized + uint64(c.hashes.Len())
}

// Finalized returns the current finalized block number.
func (c *Chain) Finalized() uint64 {
	return c.finalized
}

// head returns the current head (most recently appended) hash.
func (c *Chain) head() common.Hash {
	return c.hashes.Front().Value.(common.Hash)
}

// Append adds the next block, identified by hash and its parent's hash,
// to the chain. If parent doesn't match the current head, the head is
// evicted (a one-block reorg) and AppendReorg is returned so the caller
// can retry with the new, shallower head; if no more blocks remain to
// evict (i.e. only the finalized block is left), this is a reorg past
// what can be locally repaired and Append returns ErrReorgPastFinalized.
func (c *Chain) Append(hash, parent common.Hash) (Append, error) {
	if parent != c.head() {
		if c.hashes.Len() <= 1 {
			return AppendOk, fmt.Errorf("%w", ErrReorgPastFinalized)
		}
		c.hashes.Remove(c.hashes.Front())
		return AppendReorg, nil
	}
	c.hashes.PushFront(hash)
	return AppendOk, nil
}

// Finalize advances the finalized block to number, which must be within
// [finalized, Next()). It returns the previous finalized number. Blocks
// older than number are forgotten; Next() is unaffected.
func (c *Chain) Finalize(number uint64) (uint64, error) {
	if number < c.finalized || number >= c.Next() {
		return 0, fmt.Errorf("chainwindow: invalid finalized block %d, must be in [%d, %d)", number, c.finalized, c.Next())
	}

	keep := c.Next() - number
	old := c.finalized
	c.finalized = number

	for uint64(c.hashes.Len()) > keep {
		c.hashes.Remove(c.hashes.Back())
	}
	return old, nil
}
