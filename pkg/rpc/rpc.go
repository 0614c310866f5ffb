// Package rpc is the JSON-RPC transport spec.md assumes is available as
// a collaborator: single-call and batch-call methods for
// `eth_getBlockByNumber` and `eth_getLogs`, built on go-ethereum's
// ethclient and rpc packages, rate-limited via sethvargo/go-limiter the
// way the teacher's HTTP handlers throttle inbound requests - here
// applied to outbound node calls instead.
package rpc

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sethvargo/go-limiter"
	"github.com/sethvargo/go-limiter/memorystore"
)

// BlockRef is the minimal block identity the indexer needs: its number,
// its own hash, and its parent's hash (to detect reorgs).
type BlockRef struct {
	Number     uint64
	Hash       common.Hash
	ParentHash common.Hash
}

// Tag selects a named block instead of a specific number.
type Tag string

const (
	TagLatest    Tag = "latest"
	TagFinalized Tag = "finalized"
	TagSafe      Tag = "safe"
)

// Client is a throttled JSON-RPC transport over one Ethereum-compatible
// node endpoint.
type Client struct {
	rpc *gethrpc.Client
	eth *ethclient.Client

	limiter limiter.Store
}

// Dial connects to the node at url (http(s):// or ws(s)://).
func Dial(ctx context.Context, url string, callsPerSecond uint64) (*Client, error) {
	rc, err := gethrpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint: %s", err)
	}

	store, err := memorystore.New(&memorystore.Config{
		Tokens:   callsPerSecond,
		Interval: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("creating rate limiter: %s", err)
	}

	return &Client{
		rpc:     rc,
		eth:     ethclient.NewClient(rc),
		limiter: store,
	}, nil
}

// Close releases the underlying connection.
func (c *Client) Close() {
	c.rpc.Close()
}

// throttle blocks until a token is available, bounding how fast this
// process issues requests against the node regardless of how tight the
// indexer's own poll loop runs.
func (c *Client) throttle(ctx context.Context) error {
	_, _, _, ok, err := c.limiter.Take(ctx, "rpc")
	if err != nil {
		return fmt.Errorf("rate limiting: %s", err)
	}
	if !ok {
		// Out of tokens for this interval: wait for the next one rather
		// than failing the call outright.
		select {
		case <-time.After(time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// ErrBlockNotFound is returned by GetBlockByNumberExact when no block
// exists yet at the requested height.
var ErrBlockNotFound = errors.New("rpc: block not found")

// rawBlock mirrors just the fields of the getBlockByNumber JSON response
// this package needs; go-ethereum's ethclient doesn't expose a headers-by-
// tag method, so this bypasses it with a raw call.
type rawBlock struct {
	Number     hexutil.Uint64 `json:"number"`
	Hash       common.Hash    `json:"hash"`
	ParentHash common.Hash    `json:"parentHash"`
}

func (c *Client) getBlockByNumberArg(ctx context.Context, numberArg string) (BlockRef, error) {
	if err := c.throttle(ctx); err != nil {
		return BlockRef{}, err
	}
	var raw *rawBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", numberArg, false); err != nil {
		return BlockRef{}, fmt.Errorf("eth_getBlockByNumber(%s): %s", numberArg, err)
	}
	if raw == nil {
		return BlockRef{}, ErrBlockNotFound
	}
	return BlockRef{Number: uint64(raw.Number), Hash: raw.Hash, ParentHash: raw.ParentHash}, nil
}

// GetBlockByNumber resolves a block by tag, e.g. TagFinalized.
func (c *Client) GetBlockByNumber(ctx context.Context, tag Tag) (BlockRef, error) {
	return c.getBlockByNumberArg(ctx, string(tag))
}

// GetBlockByNumberExact resolves a block by its exact height. Returns
// ErrBlockNotFound if the chain hasn't produced a block at that height
// yet - the live sync loop's expected steady state between new blocks.
func (c *Client) GetBlockByNumberExact(ctx context.Context, number uint64) (BlockRef, error) {
	return c.getBlockByNumberArg(ctx, hexutil.EncodeUint64(number))
}

// GetBlockByHash resolves a block by its exact hash. Returns
// ErrBlockNotFound if the node knows no block with that hash.
func (c *Client) GetBlockByHash(ctx context.Context, hash common.Hash) (BlockRef, error) {
	if err := c.throttle(ctx); err != nil {
		return BlockRef{}, err
	}
	var raw *rawBlock
	if err := c.rpc.CallContext(ctx, &raw, "eth_getBlockByHash", hash, false); err != nil {
		return BlockRef{}, fmt.Errorf("eth_getBlockByHash(%s): %s", hash, err)
	}
	if raw == nil {
		return BlockRef{}, ErrBlockNotFound
	}
	return BlockRef{Number: uint64(raw.Number), Hash: raw.Hash, ParentHash: raw.ParentHash}, nil
}

// GetLogsSingle issues one eth_getLogs call.
func (c *Client) GetLogsSingle(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}
	logs, err := c.eth.FilterLogs(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("eth_getLogs: %s", err)
	}
	return logs, nil
}

// GetLogsBatch issues one eth_getLogs call per query, all in a single
// batched JSON-RPC request via rpc.Client.BatchCallContext, so N adapters'
// worth of getLogs calls become one round trip to the node (spec.md
// §4.6's "In parallel, per adapter: getLogs").
func (c *Client) GetLogsBatch(ctx context.Context, queries []ethereum.FilterQuery) ([][]types.Log, error) {
	if err := c.throttle(ctx); err != nil {
		return nil, err
	}

	results := make([][]types.Log, len(queries))
	batch := make([]gethrpc.BatchElem, len(queries))
	for i, q := range queries {
		batch[i] = gethrpc.BatchElem{
			Method: "eth_getLogs",
			Args:   []interface{}{toFilterArg(q)},
			Result: &results[i],
		}
	}

	if err := c.rpc.BatchCallContext(ctx, batch); err != nil {
		return nil, fmt.Errorf("batch eth_getLogs: %s", err)
	}
	for i, elem := range batch {
		if elem.Error != nil {
			return nil, fmt.Errorf("batch eth_getLogs[%d]: %s", i, elem.Error)
		}
	}
	return results, nil
}

// toFilterArg renders a FilterQuery into the JSON shape eth_getLogs
// expects, mirroring go-ethereum's own (unexported) ethclient.toFilterArg.
func toFilterArg(q ethereum.FilterQuery) map[string]interface{} {
	arg := map[string]interface{}{
		"topics": q.Topics,
	}
	if q.BlockHash != nil {
		arg["blockHash"] = *q.BlockHash
	} else {
		if q.FromBlock == nil {
			arg["fromBlock"] = "0x0"
		} else {
			arg["fromBlock"] = toBlockNumArg(q.FromBlock)
		}
		arg["toBlock"] = toBlockNumArg(q.ToBlock)
	}
	if len(q.Addresses) == 1 {
		arg["address"] = q.Addresses[0]
	} else if len(q.Addresses) > 0 {
		arg["address"] = q.Addresses
	}
	return arg
}

func toBlockNumArg(number *big.Int) string {
	if number == nil {
		return "latest"
	}
	return hexutil.EncodeBig(number)
}
