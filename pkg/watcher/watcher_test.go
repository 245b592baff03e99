package watcher

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/openzeppelin-fork/monitor-go/pkg/blockstore"
	"github.com/openzeppelin-fork/monitor-go/pkg/chain"
	"github.com/openzeppelin-fork/monitor-go/pkg/filter"
	"github.com/openzeppelin-fork/monitor-go/pkg/model"
	"github.com/openzeppelin-fork/monitor-go/pkg/tracker"
)

// fakeClient is a minimal rpc.Client double: GetBlocks always returns an
// empty slice, which is enough to drive Tick through its checkpoint logic
// without needing a real *evmchain.Block (those require a genuine
// go-ethereum header/block to construct).
type fakeClient struct {
	latest uint64
}

func (f *fakeClient) NetworkID() string    { return "eth" }
func (f *fakeClient) ChainKind() chain.Kind { return chain.KindEVM }
func (f *fakeClient) LatestBlockNumber(ctx context.Context) (uint64, error) {
	return f.latest, nil
}
func (f *fakeClient) GetBlocks(ctx context.Context, from uint64, to *uint64) ([]chain.Block, error) {
	return nil, nil
}
func (f *fakeClient) Close() {}

func newTestWatcher(t *testing.T, client *fakeClient, network model.Network) *Watcher {
	t.Helper()
	store, err := blockstore.New(t.TempDir(), zap.NewNop())
	if err != nil {
		t.Fatalf("blockstore.New: %v", err)
	}
	trk := tracker.New(10, store, zap.NewNop())
	engine := filter.New(zap.NewNop())
	var dispatched []chain.ProcessedBlock
	trigger := func(ctx context.Context, pb chain.ProcessedBlock) { dispatched = append(dispatched, pb) }
	return New(network, client, store, trk, engine, nil, trigger, zap.NewNop(), nil)
}

func TestTick_FirstRunFetchesOnlyConfirmedHead(t *testing.T) {
	client := &fakeClient{latest: 100}
	network := model.Network{ID: "eth", Kind: chain.KindEVM, ConfirmationBlocks: 5, Cron: "* * * * *", BlockTimeMS: 12_000}
	w := newTestWatcher(t, client, network)

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	last, found, err := w.storage.GetLastProcessedBlock(context.Background(), "eth")
	if err != nil {
		t.Fatalf("GetLastProcessedBlock: %v", err)
	}
	if !found {
		t.Fatal("expected a checkpoint to be saved after first tick")
	}
	if want := uint64(95); last != want {
		t.Fatalf("checkpoint = %d, want %d", last, want)
	}
}

func TestTick_NoOpWhenAlreadyCaughtUp(t *testing.T) {
	client := &fakeClient{latest: 100}
	network := model.Network{ID: "eth", Kind: chain.KindEVM, ConfirmationBlocks: 5, Cron: "* * * * *", BlockTimeMS: 12_000}
	w := newTestWatcher(t, client, network)
	ctx := context.Background()

	if err := w.storage.SaveLastProcessedBlock(ctx, "eth", 95); err != nil {
		t.Fatalf("seeding checkpoint: %v", err)
	}

	if err := w.Tick(ctx); err != nil {
		t.Fatalf("Tick: %v", err)
	}

	last, _, err := w.storage.GetLastProcessedBlock(ctx, "eth")
	if err != nil {
		t.Fatalf("GetLastProcessedBlock: %v", err)
	}
	if last != 95 {
		t.Fatalf("checkpoint should be unchanged at 95, got %d", last)
	}
}

func TestTick_SkipsOverlappingRun(t *testing.T) {
	client := &fakeClient{latest: 100}
	network := model.Network{ID: "eth", Kind: chain.KindEVM, ConfirmationBlocks: 5, Cron: "* * * * *", BlockTimeMS: 12_000}
	w := newTestWatcher(t, client, network)
	w.running = true

	if err := w.Tick(context.Background()); err != nil {
		t.Fatalf("Tick should no-op rather than error while already running: %v", err)
	}
}

func TestSaturatingSub(t *testing.T) {
	cases := []struct{ a, b, want uint64 }{
		{10, 3, 7},
		{3, 10, 0},
		{5, 5, 0},
	}
	for _, c := range cases {
		if got := saturatingSub(c.a, c.b); got != c.want {
			t.Errorf("saturatingSub(%d,%d) = %d, want %d", c.a, c.b, got, c.want)
		}
	}
}

func TestRecommendedBlocks(t *testing.T) {
	// Every minute against a 12s block time should recommend 5 blocks.
	got := recommendedBlocks("* * * * *", 12_000)
	if got != 5 {
		t.Errorf("recommendedBlocks = %d, want 5", got)
	}
}

func TestRecommendedBlocks_ZeroBlockTime(t *testing.T) {
	if got := recommendedBlocks("* * * * *", 0); got != 1 {
		t.Errorf("recommendedBlocks with zero block time = %d, want 1", got)
	}
}

func TestSortUint64(t *testing.T) {
	s := []uint64{5, 1, 4, 2, 3}
	sortUint64(s)
	want := []uint64{1, 2, 3, 4, 5}
	for i := range want {
		if s[i] != want[i] {
			t.Fatalf("sortUint64 = %v, want %v", s, want)
		}
	}
}
