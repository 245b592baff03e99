package blockstore_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/blockstore"
)

func newStore(t *testing.T) (*blockstore.Store, string) {
	t.Helper()
	dir := t.TempDir()
	s, err := blockstore.New(dir, zap.NewNop())
	require.NoError(t, err)
	return s, dir
}

func TestCheckpoint_AbsentThenMonotonic(t *testing.T) {
	s, _ := newStore(t)
	ctx := context.Background()

	_, ok, err := s.GetLastProcessedBlock(ctx, "eth")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.SaveLastProcessedBlock(ctx, "eth", 88))
	n, ok, err := s.GetLastProcessedBlock(ctx, "eth")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(88), n)

	require.NoError(t, s.SaveLastProcessedBlock(ctx, "eth", 120))
	n, ok, err = s.GetLastProcessedBlock(ctx, "eth")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(120), n)
}

func TestMissedBlocks_AppendOnly(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMissedBlock(ctx, "eth", 4))
	require.NoError(t, s.SaveMissedBlock(ctx, "eth", 7))

	data, err := os.ReadFile(filepath.Join(dir, "eth_missed_blocks.txt"))
	require.NoError(t, err)
	require.Equal(t, "4\n7\n", string(data))
}

func TestDeleteBlocks_RemovesPriorDumps(t *testing.T) {
	s, dir := newStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveBlocks(ctx, "eth", 1000, nil))
	require.NoError(t, s.SaveBlocks(ctx, "eth", 2000, nil))
	require.NoError(t, s.DeleteBlocks(ctx, "eth"))

	matches, err := filepath.Glob(filepath.Join(dir, "eth_blocks_*.json"))
	require.NoError(t, err)
	require.Empty(t, matches)
}
