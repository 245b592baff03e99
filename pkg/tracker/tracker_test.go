package tracker_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/openzeppelin-fork/monitor-go/pkg/tracker"
)

type fakeStorage struct {
	missed []uint64
}

func (f *fakeStorage) SaveMissedBlock(_ context.Context, _ string, n uint64) error {
	f.missed = append(f.missed, n)
	return nil
}

func newObservedTracker(capacity int, storage tracker.MissedBlockRecorder) (*tracker.Tracker, *observer.ObservedLogs) {
	core, logs := observer.New(zap.WarnLevel)
	return tracker.New(capacity, storage, zap.New(core)), logs
}

func TestTracker_GapDetectionWithoutStoreBlocks(t *testing.T) {
	storage := &fakeStorage{}
	trk, logs := newObservedTracker(5, storage)
	ctx := context.Background()

	for _, n := range []uint64{1, 2, 3, 5} {
		trk.RecordBlock(ctx, "net-a", false, n)
	}

	require.Empty(t, storage.missed, "missed-block log must not be written when store_blocks is off")

	gapWarnings := 0
	for _, entry := range logs.All() {
		if entry.Message == "missed block detected" {
			gapWarnings++
		}
	}
	assert.Equal(t, 1, gapWarnings, "exactly one missed-block warning for block 4")

	last, ok := trk.LastBlock("net-a")
	require.True(t, ok)
	assert.Equal(t, uint64(5), last)

	trk.RecordBlock(ctx, "net-a", false, 4)
	foundOutOfOrder := false
	for _, entry := range logs.All() {
		if entry.Message == "out-of-order or duplicate block" {
			foundOutOfOrder = true
		}
	}
	assert.True(t, foundOutOfOrder, "feeding 4 after 5 must warn out-of-order")
}

func TestTracker_GapDetectionWithStoreBlocks(t *testing.T) {
	storage := &fakeStorage{}
	trk, _ := newObservedTracker(5, storage)
	ctx := context.Background()

	trk.RecordBlock(ctx, "net-b", true, 10)
	trk.RecordBlock(ctx, "net-b", true, 13)

	assert.Equal(t, []uint64{11, 12}, storage.missed)
}

func TestTracker_CapacityEviction(t *testing.T) {
	trk, _ := newObservedTracker(3, nil)
	ctx := context.Background()

	for _, n := range []uint64{1, 2, 3, 4, 5} {
		trk.RecordBlock(ctx, "net-c", false, n)
	}

	last, ok := trk.LastBlock("net-c")
	require.True(t, ok)
	assert.Equal(t, uint64(5), last)
}

func TestTracker_LastBlockUnknownNetwork(t *testing.T) {
	trk, _ := newObservedTracker(5, nil)
	_, ok := trk.LastBlock("never-seen")
	assert.False(t, ok)
}
