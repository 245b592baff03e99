// Package tracker implements a gap-tolerant block tracker: a small
// per-network FIFO of recently observed block numbers that flags
// skips, duplicates, and out-of-order arrivals independently of the filter
// path. Its side effects are diagnostic only — it never blocks processing.
package tracker

import (
	"context"

	"go.uber.org/zap"
)

// MissedBlockRecorder is the Storage(C) capability the tracker calls into
// when a network has opted into best-effort missed-block logging.
type MissedBlockRecorder interface {
	SaveMissedBlock(ctx context.Context, networkID string, blockNumber uint64) error
}

// Tracker holds one bounded FIFO per network.
type Tracker struct {
	capacity int
	logger   *zap.Logger
	storage  MissedBlockRecorder

	networks map[string]*networkState
}

type networkState struct {
	fifo        []uint64
	storeBlocks bool
}

// New creates a Tracker whose per-network FIFO holds at most capacity
// entries. storage may be nil if no network ever sets store-blocks on.
func New(capacity int, storage MissedBlockRecorder, logger *zap.Logger) *Tracker {
	if capacity <= 0 {
		capacity = 100
	}
	return &Tracker{
		capacity: capacity,
		logger:   logger,
		storage:  storage,
		networks: make(map[string]*networkState),
	}
}

// RecordBlock registers block n as observed for networkID, logging a skip,
// duplicate, or out-of-order warning if n breaks the expected sequence.
func (t *Tracker) RecordBlock(ctx context.Context, networkID string, storeBlocks bool, n uint64) {
	state, ok := t.networks[networkID]
	if !ok {
		state = &networkState{}
		t.networks[networkID] = state
	}
	state.storeBlocks = storeBlocks

	if len(state.fifo) > 0 {
		tail := state.fifo[len(state.fifo)-1]
		switch {
		case n > tail+1:
			t.recordGap(ctx, networkID, storeBlocks, tail, n)
		case n <= tail:
			t.logger.Warn("out-of-order or duplicate block",
				zap.String("network", networkID),
				zap.Uint64("block", n),
				zap.Uint64("last_seen", tail),
			)
		}
	}

	state.fifo = append(state.fifo, n)
	if overflow := len(state.fifo) - t.capacity; overflow > 0 {
		state.fifo = state.fifo[overflow:]
	}
}

func (t *Tracker) recordGap(ctx context.Context, networkID string, storeBlocks bool, tail, n uint64) {
	for missed := tail + 1; missed < n; missed++ {
		t.logger.Warn("missed block detected",
			zap.String("network", networkID),
			zap.Uint64("block", missed),
		)
		if storeBlocks && t.storage != nil {
			if err := t.storage.SaveMissedBlock(ctx, networkID, missed); err != nil {
				t.logger.Warn("failed to persist missed block, continuing",
					zap.String("network", networkID),
					zap.Uint64("block", missed),
					zap.Error(err),
				)
			}
		}
	}
}

// LastBlock returns the tail of networkID's FIFO, if any has been recorded.
func (t *Tracker) LastBlock(networkID string) (uint64, bool) {
	state, ok := t.networks[networkID]
	if !ok || len(state.fifo) == 0 {
		return 0, false
	}
	return state.fifo[len(state.fifo)-1], true
}
