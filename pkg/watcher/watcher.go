// Package watcher implements one scheduler entry per network, driving a
// bounded-concurrency fetch/filter pipeline followed by an in-order
// trigger-dispatch stage.
package watcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/openzeppelin-fork/monitor-go/pkg/blockstore"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain/evmchain"
	"github.com/openzeppelin-fork/monitor-go/pkg/filter"
	"github.com/openzeppelin-fork/monitor-go/pkg/metrics"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/rpc"
	"github.com/openzeppelin-fork/monitor-go/pkg/traceerr"
	"github.com/openzeppelin-fork/monitor-go/pkg/tracker"
)

// maxInFlight bounds stage 1's fan-out.
const maxInFlight = 32

// TriggerHandler runs the Trigger Dispatcher over one drained, in-order
// processed block.
type TriggerHandler func(ctx context.Context, pb chain.ProcessedBlock)

// Watcher owns the fetch/filter/trigger pipeline for exactly one network.
type Watcher struct {
	network  model.Network
	client   rpc.Client
	storage  *blockstore.Store
	tracker  *tracker.Tracker
	engine   *filter.Engine
	monitors []model.Monitor
	trigger  TriggerHandler
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu      sync.Mutex
	running bool
}

// New builds a Watcher. m may be nil, in which case per-tick counters are
// not recorded (the scan one-shot path has no long-lived registry to update).
func New(network model.Network, client rpc.Client, storage *blockstore.Store, trk *tracker.Tracker,
	engine *filter.Engine, monitors []model.Monitor, trigger TriggerHandler, logger *zap.Logger, m *metrics.Metrics) *Watcher {
	return &Watcher{
		network:  network,
		client:   client,
		storage:  storage,
		tracker:  trk,
		engine:   engine,
		monitors: monitors,
		trigger:  trigger,
		logger:   logger.With(zap.String("network", network.ID)),
		metrics:  m,
	}
}

// Tick runs one fire of the scheduler. Ticks of the same network never
// overlap; a Tick called while a previous one is still running is skipped.
func (w *Watcher) Tick(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		w.logger.Debug("skipping tick, previous tick still running")
		return nil
	}
	w.running = true
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.running = false
		w.mu.Unlock()
	}()

	ctx = traceerr.WithTraceID(ctx, "")
	start := time.Now()

	last, found, err := w.storage.GetLastProcessedBlock(ctx, w.network.ID)
	if err != nil {
		return fmt.Errorf("watcher: reading checkpoint: %w", err)
	}
	head, err := w.client.LatestBlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("watcher: fetching latest block number: %w", err)
	}

	confirmed := saturatingSub(head, w.network.ConfirmationBlocks)
	recommended := recommendedBlocks(w.network.Cron, w.network.BlockTimeMS)
	cap_ := recommended
	if w.network.MaxPastBlocks != nil {
		cap_ = *w.network.MaxPastBlocks
	}

	rangeStart := last + 1
	capped := saturatingSub(confirmed, cap_)
	if capped > rangeStart {
		skipped := capped - rangeStart
		w.logger.Warn("skipping blocks to respect max_past_blocks", zap.Uint64("skipped", skipped))
		if w.metrics != nil {
			w.metrics.BlocksSkippedTotal.WithLabelValues(w.network.ID).Add(float64(skipped))
		}
		rangeStart = capped
	}

	var fetchFrom, fetchTo uint64
	var fetch bool
	switch {
	case !found:
		fetchFrom, fetchTo, fetch = confirmed, confirmed, true
	case last < confirmed:
		fetchFrom, fetchTo, fetch = rangeStart, confirmed, true
	default:
		fetch = false
	}

	if !fetch {
		return nil
	}

	blocks, err := w.client.GetBlocks(ctx, fetchFrom, &fetchTo)
	if err != nil {
		return fmt.Errorf("watcher: fetching blocks [%d,%d]: %w", fetchFrom, fetchTo, err)
	}
	if len(blocks) == 0 {
		w.logger.Warn("empty range returned by chain client",
			zap.Uint64("from", fetchFrom), zap.Uint64("to", fetchTo))
	}

	if evmExtras, ok := w.client.(rpc.EVMExtras); ok {
		if err := attachEVMLogs(ctx, evmExtras, blocks, fetchFrom, fetchTo, w.monitors); err != nil {
			w.logger.Warn("fetching logs for range failed", zap.Error(err))
		}
	}

	if err := w.runPipeline(ctx, blocks, fetchFrom); err != nil {
		return err
	}

	if w.network.StoreBlocks {
		if err := w.storage.DeleteBlocks(ctx, w.network.ID); err != nil {
			w.logger.Warn("delete_blocks failed", zap.Error(err))
		}
		if err := w.storage.SaveBlocks(ctx, w.network.ID, time.Now().Unix(), blocks); err != nil {
			w.logger.Warn("save_blocks failed", zap.Error(err))
		}
	}
	// Checkpoint advance is unconditional on the fetched range: dispatch
	// failures never roll it back.
	if err := w.storage.SaveLastProcessedBlock(ctx, w.network.ID, confirmed); err != nil {
		return fmt.Errorf("watcher: saving checkpoint: %w", err)
	}

	if w.metrics != nil {
		w.metrics.BlocksProcessedTotal.WithLabelValues(w.network.ID).Add(float64(len(blocks)))
	}

	w.logger.Info("tick complete",
		zap.Duration("duration", time.Since(start)), zap.Int("blocks_processed", len(blocks)))
	return nil
}

// attachEVMLogs fetches logs for the whole fetched range in a single
// eth_getLogs call, scoped to the union of every monitor's addresses, and
// attaches each block's share to it. This replaces fetching a receipt per
// transaction per block regardless of whether anything in the block is
// actually monitored.
func attachEVMLogs(ctx context.Context, client rpc.EVMExtras, blocks []chain.Block, from, to uint64, monitors []model.Monitor) error {
	addrSet := make(map[string]bool)
	for _, m := range monitors {
		if m.Paused {
			continue
		}
		for _, a := range m.Addresses {
			addrSet[a.Address] = true
		}
	}
	if len(addrSet) == 0 {
		return nil
	}
	addrs := make([]string, 0, len(addrSet))
	for a := range addrSet {
		addrs = append(addrs, a)
	}

	logs, err := client.GetLogsForBlocks(ctx, from, to, addrs)
	if err != nil {
		return fmt.Errorf("watcher: fetching logs [%d,%d]: %w", from, to, err)
	}

	byBlock := make(map[uint64][]gethtypes.Log, len(blocks))
	for _, l := range logs {
		byBlock[l.BlockNumber] = append(byBlock[l.BlockNumber], toGethLog(l))
	}
	for _, b := range blocks {
		evmBlock, ok := b.(*evmchain.Block)
		if !ok {
			continue
		}
		evmBlock.Logs = byBlock[evmBlock.BlockNumber()]
	}
	return nil
}

func toGethLog(l rpc.EVMLog) gethtypes.Log {
	topics := make([]common.Hash, len(l.Topics))
	for i, t := range l.Topics {
		topics[i] = common.HexToHash(t)
	}
	return gethtypes.Log{
		Address:     common.HexToAddress(l.Address),
		Topics:      topics,
		Data:        l.Data,
		TxHash:      common.HexToHash(l.TxHash),
		BlockNumber: l.BlockNumber,
		Index:       l.Index,
		Removed:     l.Removed,
	}
}

func saturatingSub(a, b uint64) uint64 {
	if b >= a {
		return 0
	}
	return a - b
}

// recommendedBlocks computes ceil(cron_interval_ms / block_time_ms).
func recommendedBlocks(cronExpr string, blockTimeMS uint64) uint64 {
	if blockTimeMS == 0 {
		return 1
	}
	intervalMS := cronIntervalMS(cronExpr)
	if intervalMS == 0 {
		return 1
	}
	return (intervalMS + blockTimeMS - 1) / blockTimeMS
}

// runPipeline drives the two-stage pipeline: bounded fan-out filter workers
// feeding a single reorder-and-dispatch consumer.
func (w *Watcher) runPipeline(ctx context.Context, blocks []chain.Block, startNumber uint64) error {
	if len(blocks) == 0 {
		return nil
	}

	type filtered struct {
		number  uint64
		block   chain.ProcessedBlock
	}

	results := make(chan filtered, len(blocks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInFlight)

	specCache, err := filter.NewSpecCache()
	if err != nil {
		return fmt.Errorf("watcher: building spec cache: %w", err)
	}

	for _, b := range blocks {
		b := b
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}
			w.tracker.RecordBlock(gctx, w.network.ID, w.network.StoreBlocks, b.BlockNumber())
			matches, err := w.engine.FilterBlock(gctx, w.client, w.network, b, w.monitors, specCache)
			if err != nil {
				w.logger.Error("filter_block failed", zap.Uint64("block", b.BlockNumber()), zap.Error(err))
				matches = nil
			}
			select {
			case results <- filtered{number: b.BlockNumber(), block: chain.ProcessedBlock{
				NetworkID: w.network.ID, BlockNumber: b.BlockNumber(), Matches: matches,
			}}:
			case <-gctx.Done():
				return gctx.Err()
			}
			return nil
		})
	}

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
		close(results)
	}()

	// Stage 2: reorder buffer + cursor, drains contiguous prefix starting at
	// startNumber.
	pending := make(map[uint64]chain.ProcessedBlock)
	next := startNumber
	for r := range results {
		pending[r.number] = r.block
		for {
			pb, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			if ctx.Err() != nil {
				w.logger.Warn("block dropped due to shutdown", zap.Uint64("block", next))
				return ctx.Err()
			}
			w.trigger(ctx, pb)
			next++
		}
	}

	if err := <-done; err != nil {
		return fmt.Errorf("watcher: pipeline stage 1: %w", err)
	}

	// Flush anything left in ascending order: this window only exists if
	// the expected-cursor chain broke. Best effort.
	if len(pending) > 0 {
		remaining := make([]uint64, 0, len(pending))
		for n := range pending {
			remaining = append(remaining, n)
		}
		sortUint64(remaining)
		for _, n := range remaining {
			w.trigger(ctx, pending[n])
		}
	}
	return nil
}

func sortUint64(s []uint64) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
