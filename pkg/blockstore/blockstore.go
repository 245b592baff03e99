// Package blockstore implements a durable, file-based checkpoint plus
// optional best-effort block dumps and a per-network missed-block log. It
// makes no cross-file atomicity promise: a crash mid-tick can leave dumps
// without a checkpoint bump, but the next tick just re-processes the same
// range.
package blockstore

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
)

// Store implements the checkpoint/dump/missed-log contract over a flat
// directory of per-network files.
type Store struct {
	dataDir string
	logger  *zap.Logger

	mu sync.Mutex
}

func New(dataDir string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("blockstore: creating data dir: %w", err)
	}
	return &Store{dataDir: dataDir, logger: logger}, nil
}

func (s *Store) checkpointPath(networkID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_last_block.txt", networkID))
}

func (s *Store) missedBlocksPath(networkID string) string {
	return filepath.Join(s.dataDir, fmt.Sprintf("%s_missed_blocks.txt", networkID))
}

// GetLastProcessedBlock reads the checkpoint, returning (0, false) if none
// has been written yet.
func (s *Store) GetLastProcessedBlock(ctx context.Context, networkID string) (uint64, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.checkpointPath(networkID))
	if os.IsNotExist(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("blockstore: reading checkpoint for %s: %w", networkID, err)
	}
	n, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, false, fmt.Errorf("blockstore: parsing checkpoint for %s: %w", networkID, err)
	}
	return n, true, nil
}

// SaveLastProcessedBlock overwrites the checkpoint unconditionally. Per
// invariant 1, callers must never call this with a value lower than what's
// already stored.
func (s *Store) SaveLastProcessedBlock(ctx context.Context, networkID string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp := s.checkpointPath(networkID) + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatUint(n, 10)), 0o644); err != nil {
		return fmt.Errorf("blockstore: writing checkpoint for %s: %w", networkID, err)
	}
	if err := os.Rename(tmp, s.checkpointPath(networkID)); err != nil {
		return fmt.Errorf("blockstore: committing checkpoint for %s: %w", networkID, err)
	}
	return nil
}

// SaveBlocks appends a best-effort, timestamped JSON dump. Only called when
// a network has opted in via store_blocks.
func (s *Store) SaveBlocks(ctx context.Context, networkID string, unixTS int64, blocks []chain.Block) error {
	path := filepath.Join(s.dataDir, fmt.Sprintf("%s_blocks_%d.json", networkID, unixTS))
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("blockstore: creating block dump for %s: %w", networkID, err)
	}
	defer f.Close()

	nums := make([]uint64, 0, len(blocks))
	for _, b := range blocks {
		nums = append(nums, b.BlockNumber())
	}
	enc := json.NewEncoder(f)
	if err := enc.Encode(nums); err != nil {
		return fmt.Errorf("blockstore: writing block dump for %s: %w", networkID, err)
	}
	return nil
}

// DeleteBlocks removes every prior dump file for networkID. Called before a
// new SaveBlocks so dumps don't accumulate.
func (s *Store) DeleteBlocks(ctx context.Context, networkID string) error {
	matches, err := filepath.Glob(filepath.Join(s.dataDir, fmt.Sprintf("%s_blocks_*.json", networkID)))
	if err != nil {
		return fmt.Errorf("blockstore: globbing dumps for %s: %w", networkID, err)
	}
	for _, m := range matches {
		if err := os.Remove(m); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("blockstore: removing dump %s: %w", m, err)
		}
	}
	return nil
}

// SaveMissedBlock append-writes one line to the per-network missed-block
// log. Best-effort: callers (the tracker) log failures but never treat them
// as fatal.
func (s *Store) SaveMissedBlock(ctx context.Context, networkID string, n uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.missedBlocksPath(networkID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("blockstore: opening missed-block log for %s: %w", networkID, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := fmt.Fprintln(w, n); err != nil {
		return err
	}
	return w.Flush()
}
