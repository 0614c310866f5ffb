package indexer

import "context"

// HookEvent is a bitmask of lifecycle points a Hook can run at, mirroring
// the Rust ancestor's indexer::hook::Event bit flags.
type HookEvent uint8

const (
	// HookInit fires once bootstrap has indexed up through the finalized
	// block.
	HookInit HookEvent = 1 << iota
	// HookBlock fires after every committed page during bootstrap and
	// after every live-synced block.
	HookBlock
	// HookFinalize fires whenever live sync sees the finalized block
	// advance. Bootstrap pages do not fire it.
	HookFinalize
)

// Hook is a user-configured raw SQL statement run against the storage
// backend's connection at one or more lifecycle points, after the
// triggering step's own transaction has already committed - never inside
// it, matching the Rust ancestor where the hook runs after the database
// write returns.
type Hook struct {
	SQL string
	On  HookEvent
}

func (h Hook) appliesTo(event HookEvent) bool {
	return h.On&event != 0
}

func (ix *Indexer) runHooks(ctx context.Context, event HookEvent) {
	for _, h := range ix.hooks {
		if !h.appliesTo(event) {
			continue
		}
		if err := ix.store.Exec(ctx, h.SQL); err != nil {
			ix.log.Error().Err(err).Msg("hook execution failed")
		}
	}
}
