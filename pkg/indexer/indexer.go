// Package indexer is the indexing core: it drives one or more adapters
// against a chain RPC endpoint and a storage backend, bootstrapping
// historical state in pages and then following the chain tip, reorgs
// included. Grounded on the Rust ancestor's indexer::mod module, with
// the control flow translated into Go's explicit-error, context-carrying
// idiom the teacher repo uses throughout its services.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"

	"github.com/tablelandnetwork/arak/pkg/adapter"
	"github.com/tablelandnetwork/arak/pkg/chainwindow"
	"github.com/tablelandnetwork/arak/pkg/rpc"
	"github.com/tablelandnetwork/arak/pkg/storage"
)

// Config controls the indexer's bootstrap page size and live-sync poll
// interval.
type Config struct {
	// PageSize is the number of blocks fetched per eth_getLogs call during
	// bootstrap. Defaults to 1000 if zero, matching the Rust ancestor's
	// default.
	PageSize uint64
	// PollInterval is how long to wait between chain-tip checks once
	// live sync has caught up and found nothing new. Defaults to 100ms.
	PollInterval time.Duration
}

// Indexer drives a fixed set of adapters against one RPC endpoint and one
// storage backend.
type Indexer struct {
	eth      *rpc.Client
	store    storage.Backend
	adapters []*adapter.Adapter
	hooks    []Hook
	log      zerolog.Logger

	// indexedHeight is a per-event gauge of the last block each adapter
	// has indexed through, readable concurrently with Run by a metrics
	// scrape without taking a lock.
	indexedHeight map[string]*atomic.Uint64
	reorgCount    *atomic.Uint64
}

// New builds an Indexer. adapters and hooks are fixed for the Indexer's
// lifetime; there is no mechanism to add events to a running process.
func New(eth *rpc.Client, store storage.Backend, adapters []*adapter.Adapter, hooks []Hook) *Indexer {
	heights := make(map[string]*atomic.Uint64, len(adapters))
	for _, a := range adapters {
		heights[a.Name()] = atomic.NewUint64(0)
	}
	return &Indexer{
		eth:           eth,
		store:         store,
		adapters:      adapters,
		hooks:         hooks,
		log:           zerolog.Nop(),
		indexedHeight: heights,
		reorgCount:    atomic.NewUint64(0),
	}
}

// WithLogger attaches a logger, following the component-sub-logger
// convention the rest of this codebase uses.
func (ix *Indexer) WithLogger(log zerolog.Logger) *Indexer {
	ix.log = log.With().Str("component", "indexer").Logger()
	return ix
}

// IndexedHeight returns the last block indexed for event, for metrics
// reporting; zero if event is unknown or nothing has been indexed yet.
func (ix *Indexer) IndexedHeight(event string) uint64 {
	if g, ok := ix.indexedHeight[event]; ok {
		return g.Load()
	}
	return 0
}

// ReorgCount returns the number of one-block reorgs observed so far.
func (ix *Indexer) ReorgCount() uint64 {
	return ix.reorgCount.Load()
}

// Run bootstraps historical state and then follows the chain tip forever,
// until ctx is cancelled.
func (ix *Indexer) Run(ctx context.Context, cfg Config) error {
	if cfg.PageSize == 0 {
		cfg.PageSize = 1000
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}

	finalized, err := ix.bootstrap(ctx, cfg)
	if err != nil {
		return fmt.Errorf("bootstrapping: %s", err)
	}
	ix.runHooks(ctx, HookInit)

	chain := chainwindow.New(finalized.Number, finalized.Hash)
	for {
		runID := uuid.New()
		log := ix.log.With().Str("run_id", runID.String()).Logger()

		advanced, err := ix.sync(ctx, chain, log)
		if err != nil {
			return fmt.Errorf("syncing: %s", err)
		}
		if !advanced {
			select {
			case <-time.After(cfg.PollInterval):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// bootstrap removes any rows left over from an unfinalized prior run, then
// pages through historical blocks, adapter by adapter, until every
// adapter has caught up to the chain's finalized block. Returns the
// finalized block it caught up to.
func (ix *Indexer) bootstrap(ctx context.Context, cfg Config) (rpc.BlockRef, error) {
	for _, a := range ix.adapters {
		if err := ix.store.PrepareEvent(ctx, a.Name(), a.Descriptor()); err != nil {
			return rpc.BlockRef{}, fmt.Errorf("preparing event %q: %s", a.Name(), err)
		}
	}

	var unfinalized []storage.Uncle
	for _, a := range ix.adapters {
		w, err := ix.store.EventBlock(ctx, a.Name())
		if err != nil {
			return rpc.BlockRef{}, fmt.Errorf("reading watermark for event %q: %s", a.Name(), err)
		}
		if w.Indexed > w.Finalized {
			unfinalized = append(unfinalized, storage.Uncle{Event: a.Name(), Number: w.Finalized + 1})
		}
	}
	for _, u := range unfinalized {
		ix.log.Info().Str("event", u.Event).Uint64("finalized", u.Number).
			Msg("removing logs for unfinalized blocks")
	}
	if len(unfinalized) > 0 {
		if err := ix.store.Remove(ctx, unfinalized); err != nil {
			return rpc.BlockRef{}, fmt.Errorf("removing unfinalized rows: %s", err)
		}
	}

	for {
		finalized, err := ix.eth.GetBlockByNumber(ctx, rpc.TagFinalized)
		if err != nil {
			return rpc.BlockRef{}, fmt.Errorf("fetching finalized block: %s", err)
		}

		starts, err := ix.startBlocks(ctx)
		if err != nil {
			return rpc.BlockRef{}, err
		}
		earliest := finalized.Number + 1
		for _, s := range starts {
			if s < earliest {
				earliest = s
			}
		}
		if earliest > finalized.Number {
			return finalized, nil
		}

		to := finalized.Number
		if earliest+cfg.PageSize-1 < to {
			to = earliest + cfg.PageSize - 1
		}
		ix.log.Debug().Uint64("from", earliest).Uint64("to", to).Msg("indexing blocks")

		var queued []*adapter.Adapter
		var queries []ethereum.FilterQuery
		for i, a := range ix.adapters {
			if starts[i] <= to {
				queued = append(queued, a)
				queries = append(queries, a.FilterRange(starts[i], to))
			}
		}

		results, err := ix.eth.GetLogsBatch(ctx, queries)
		if err != nil {
			return rpc.BlockRef{}, fmt.Errorf("fetching logs: %s", err)
		}

		blocks := make([]storage.EventBlock, len(queued))
		var logs []storage.Log
		for i, a := range queued {
			blocks[i] = storage.EventBlock{Event: a.Name(), Indexed: to, Finalized: finalized.Number}
			logs = append(logs, ix.decodeLogs(a, results[i])...)
		}

		if err := ix.store.Update(ctx, blocks, logs); err != nil {
			return rpc.BlockRef{}, fmt.Errorf("updating store: %s", err)
		}
		for _, a := range queued {
			ix.indexedHeight[a.Name()].Store(to)
		}
		ix.runHooks(ctx, HookBlock)
	}
}

// startBlocks computes, per adapter (by index, matching ix.adapters), the
// next block it should be indexed from: the later of its configured start
// and one past whatever it has already indexed.
func (ix *Indexer) startBlocks(ctx context.Context) ([]uint64, error) {
	starts := make([]uint64, len(ix.adapters))
	for i, a := range ix.adapters {
		w, err := ix.store.EventBlock(ctx, a.Name())
		if err != nil {
			return nil, fmt.Errorf("reading watermark for event %q: %s", a.Name(), err)
		}
		start := a.Start()
		if w.Indexed+1 > start {
			start = w.Indexed + 1
		}
		starts[i] = start
	}
	return starts, nil
}

// sync advances the chain window by exactly one block, handling a
// one-block reorg if it's detected, and returns whether any new state was
// processed.
func (ix *Indexer) sync(ctx context.Context, chain *chainwindow.Chain, log zerolog.Logger) (bool, error) {
	next, err := ix.eth.GetBlockByNumberExact(ctx, chain.Next())
	if errors.Is(err, rpc.ErrBlockNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("fetching next block: %s", err)
	}

	res, err := chain.Append(next.Hash, next.ParentHash)
	if err != nil {
		return false, fmt.Errorf("appending block: %s", err)
	}
	if res == chainwindow.AppendReorg {
		ix.reorgCount.Inc()
		block := next.Number - 1
		log.Debug().Uint64("block", block).Str("hash", next.ParentHash.Hex()).Msg("reorg")
		uncles := make([]storage.Uncle, len(ix.adapters))
		for i, a := range ix.adapters {
			uncles[i] = storage.Uncle{Event: a.Name(), Number: block}
		}
		if err := ix.store.Remove(ctx, uncles); err != nil {
			return false, fmt.Errorf("removing reorged rows: %s", err)
		}
		return true, nil
	}
	log.Debug().Uint64("block", next.Number).Str("hash", next.Hash.Hex()).Msg("found new block")

	// Fetch the new finalized tip and every adapter's logs for this block
	// concurrently, matching the Rust ancestor's tokio::try_join!.
	var finalized rpc.BlockRef
	var results [][]types.Log
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		f, err := ix.eth.GetBlockByNumber(gctx, rpc.TagFinalized)
		if err != nil {
			return fmt.Errorf("fetching finalized block: %s", err)
		}
		finalized = f
		return nil
	})
	g.Go(func() error {
		queries := make([]ethereum.FilterQuery, len(ix.adapters))
		for i, a := range ix.adapters {
			queries[i] = a.FilterBlock(next.Hash)
		}
		r, err := ix.eth.GetLogsBatch(gctx, queries)
		if err != nil {
			return fmt.Errorf("fetching logs: %s", err)
		}
		results = r
		return nil
	})
	if err := g.Wait(); err != nil {
		return false, err
	}

	old, err := chain.Finalize(finalized.Number)
	if err != nil {
		return false, fmt.Errorf("finalizing: %s", err)
	}
	if old != finalized.Number {
		log.Debug().Uint64("block", finalized.Number).Msg("updated finalized block")
	}

	blocks := make([]storage.EventBlock, len(ix.adapters))
	var logs []storage.Log
	for i, a := range ix.adapters {
		blocks[i] = storage.EventBlock{Event: a.Name(), Indexed: next.Number, Finalized: finalized.Number}
		logs = append(logs, ix.decodeLogs(a, results[i])...)
	}

	if err := ix.store.Update(ctx, blocks, logs); err != nil {
		return false, fmt.Errorf("updating store: %s", err)
	}
	for _, a := range ix.adapters {
		ix.indexedHeight[a.Name()].Store(next.Number)
	}
	ix.runHooks(ctx, HookBlock)
	if old != finalized.Number {
		ix.runHooks(ctx, HookFinalize)
	}

	return true, nil
}

// decodeLogs decodes each log for adapter, logging and skipping any that
// fail to decode rather than aborting the run: a single malformed or
// unexpected log must never bring down indexing for every other event.
func (ix *Indexer) decodeLogs(a *adapter.Adapter, logs []types.Log) []storage.Log {
	if len(logs) > 0 {
		ix.log.Debug().Str("event", a.Name()).Int("logs", len(logs)).Msg("fetched logs")
	}
	out := make([]storage.Log, 0, len(logs))
	for _, lg := range logs {
		fields, hashed, err := a.Decode(lg)
		if err != nil {
			ix.log.Warn().Err(err).Str("event", a.Name()).
				Uint64("block", lg.BlockNumber).Uint("log_index", lg.Index).
				Msg("failed to decode log")
			continue
		}
		out = append(out, storage.Log{
			Event:            a.Name(),
			BlockNumber:      lg.BlockNumber,
			LogIndex:         uint64(lg.Index),
			TransactionIndex: uint64(lg.TxIndex),
			Address:          lg.Address,
			Fields:           fields,
			Hashed:           hashed,
		})
	}
	return out
}
