package syncmgr

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/ghostdag"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util"
	"github.com/lunfardo314/dagcore/util/testutil"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newEnv(t *testing.T) *global.Global {
	return global.NewWithLogger(zaptest.NewLogger(t).Sugar())
}

func newManager(t *testing.T, store blockstore.Store, cfg Config) (*Manager, *ghostdag.Validator) {
	env := newEnv(t)
	oracle := ghostdag.NewValidator(env, store)
	return NewManager(env, store, oracle, cfg, nil), oracle
}

func TestResult(t *testing.T) {
	var r Result
	require.EqualValues(t, 0, r.SuccessRate())
	r.Add(Result{Processed: 3, Skipped: 1})
	r = r.Merge(Result{Errors: 1, Processed: 1})
	require.EqualValues(t, Result{Processed: 4, Skipped: 1, Errors: 1}, r)
	require.EqualValues(t, 6, r.Total())
	require.InDelta(t, 4.0/6.0, r.SuccessRate(), 1e-9)
	t.Logf("%s", r.String())
}

func TestEstimateSize(t *testing.T) {
	d := testutil.NewDAGBuilder()
	d.Genesis("g")
	d.AddWithTxs("b", [][]byte{[]byte("1"), []byte("2")}, "g", "g")
	require.EqualValues(t, headerSizeEstimate+1, EstimateSize(d.Block("g")))
	require.EqualValues(t, headerSizeEstimate+2*transactionSizeEstimate+ledger.HashLength+1, EstimateSize(d.Block("b")))
}

func TestSyncLinear(t *testing.T) {
	d := testutil.LinearChain(250)
	store := blockstore.NewMemoryStore()
	mgr, oracle := newManager(t, store, DefaultConfig())

	stored := 0
	mgr.OnBlockStored(func(_ *ledger.Block) {
		stored++
	})

	res := mgr.SyncBlocks(context.Background(), d.Blocks())
	require.EqualValues(t, Result{Processed: 250}, res)
	require.EqualValues(t, 250, stored)
	require.EqualValues(t, 250, store.NumBlocks())
	require.EqualValues(t, 250, oracle.NumBlocks())
	require.EqualValues(t, 199, mgr.LastCheckpoint())
	require.EqualValues(t, 0, mgr.PendingCount())
	require.EqualValues(t, 0, mgr.QueueMemory())
	tip, ok := oracle.SelectedTip()
	require.True(t, ok)
	require.EqualValues(t, d.Hash("249"), tip.Hash())

	t.Run("idempotent", func(t *testing.T) {
		res := mgr.SyncBlocks(context.Background(), d.Blocks())
		require.EqualValues(t, 0, res.Processed)
		require.EqualValues(t, 250, res.Skipped)
	})
	t.Run("idempotent with fresh manager", func(t *testing.T) {
		mgr1, _ := newManager(t, store, DefaultConfig())
		res := mgr1.SyncBlocks(context.Background(), d.Blocks())
		require.EqualValues(t, Result{Skipped: 250}, res)
	})
}

func TestOutOfOrder(t *testing.T) {
	t.Run("reversed in one call", func(t *testing.T) {
		d := testutil.LinearChain(20)
		mgr, _ := newManager(t, blockstore.NewMemoryStore(), DefaultConfig())
		res := mgr.SyncBlocks(context.Background(), util.Reverse(d.Blocks()))
		require.EqualValues(t, Result{Processed: 20}, res)
		require.EqualValues(t, 0, mgr.PendingCount())
	})
	t.Run("parent in later call", func(t *testing.T) {
		d := testutil.NewDAGBuilder()
		d.Genesis("g")
		d.Add("a", "g")
		d.Add("b", "g")
		d.Add("c", "a", "b")
		store := blockstore.NewMemoryStore()
		mgr, _ := newManager(t, store, DefaultConfig())

		res := mgr.SyncBlocks(context.Background(), []*ledger.Block{d.Block("c"), d.Block("g"), d.Block("a")})
		require.EqualValues(t, Result{Processed: 2}, res)
		require.EqualValues(t, 1, mgr.PendingCount())
		require.True(t, mgr.QueueMemory() > 0)

		res = mgr.SyncBlocks(context.Background(), []*ledger.Block{d.Block("b")})
		require.EqualValues(t, Result{Processed: 2}, res)
		require.EqualValues(t, 0, mgr.PendingCount())
		require.EqualValues(t, 0, mgr.QueueMemory())
		has, err := store.HasBlock(d.Hash("c"))
		require.NoError(t, err)
		require.True(t, has)
	})
	t.Run("random DAG shuffled", func(t *testing.T) {
		d := testutil.RandomDAG(300, 3, 1)
		blocks := d.Blocks()
		shuffled := make([]*ledger.Block, 0, len(blocks))
		// interleave from both ends
		for i, j := 0, len(blocks)-1; i <= j; i, j = i+1, j-1 {
			shuffled = append(shuffled, blocks[j])
			if i != j {
				shuffled = append(shuffled, blocks[i])
			}
		}
		store := blockstore.NewMemoryStore()
		mgr, oracle := newManager(t, store, DefaultConfig())
		res := mgr.SyncBlocks(context.Background(), shuffled)
		require.EqualValues(t, Result{Processed: 300}, res)
		require.EqualValues(t, 300, oracle.NumBlocks())
	})
}

func TestMemoryBudget(t *testing.T) {
	d := testutil.LinearChain(10)
	size := EstimateSize(d.Block("0"))

	t.Run("budget below batch size", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxQueueMemory = 3 * size
		mgr, _ := newManager(t, blockstore.NewMemoryStore(), cfg)
		res := mgr.SyncBlocks(context.Background(), d.Blocks())
		require.EqualValues(t, Result{Processed: 10}, res)
		require.EqualValues(t, 0, mgr.QueueMemory())
	})
	t.Run("deferred blocks evicted", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.MaxQueueMemory = 2 * size
		store := blockstore.NewMemoryStore()
		mgr, _ := newManager(t, store, cfg)

		reversed := util.Reverse(d.Blocks()[:5])
		res := mgr.SyncBlocks(context.Background(), reversed)
		require.EqualValues(t, Result{Processed: 2}, res)
		require.EqualValues(t, 0, mgr.PendingCount())
		require.True(t, mgr.QueueMemory() <= cfg.MaxQueueMemory)

		// evicted blocks are accepted again
		res = mgr.SyncBlocks(context.Background(), d.Blocks()[2:5])
		require.EqualValues(t, Result{Processed: 3}, res)
		require.EqualValues(t, 5, store.NumBlocks())
	})
}

func TestInvalidHeaders(t *testing.T) {
	d := testutil.NewDAGBuilder()
	d.Genesis("g")
	d.AddRaw("genesis with parent", ledger.BlockParams{
		SelectedParent: d.Hash("g"),
		Timestamp:      testutil.BaseTimestamp,
	})
	d.AddRaw("orphan without parent", ledger.BlockParams{
		Height:    5,
		Timestamp: testutil.BaseTimestamp,
	})
	d.AddRaw("future", ledger.BlockParams{
		Height:         1,
		BlueScore:      1,
		SelectedParent: d.Hash("g"),
		Timestamp:      uint64(time.Now().Add(time.Hour).Unix()),
	})
	d.AddRaw("near future", ledger.BlockParams{
		Height:         1,
		BlueScore:      1,
		SelectedParent: d.Hash("g"),
		Timestamp:      uint64(time.Now().Add(time.Minute).Unix()),
	})
	store := blockstore.NewMemoryStore()
	mgr, _ := newManager(t, store, DefaultConfig())
	res := mgr.SyncBlocks(context.Background(), d.Blocks())
	require.EqualValues(t, Result{Processed: 2, Skipped: 3}, res)
	for _, name := range []string{"genesis with parent", "orphan without parent", "future"} {
		has, err := store.HasBlock(d.Hash(name))
		require.NoError(t, err)
		require.False(t, has)
	}
}

type failingStore struct {
	*blockstore.MemoryStore
	fail ledger.Hash
}

func (s *failingStore) StoreBlock(block *ledger.Block) error {
	if block.Hash() == s.fail {
		return errors.New("injected storage failure")
	}
	return s.MemoryStore.StoreBlock(block)
}

func TestErrors(t *testing.T) {
	t.Run("storage", func(t *testing.T) {
		d := testutil.LinearChain(10)
		store := &failingStore{MemoryStore: blockstore.NewMemoryStore(), fail: d.Hash("5")}
		mgr, _ := newManager(t, store, DefaultConfig())
		res := mgr.SyncBlocks(context.Background(), d.Blocks())
		require.EqualValues(t, Result{Processed: 5, Errors: 1}, res)
		require.EqualValues(t, 4, mgr.PendingCount())
	})
	t.Run("oracle", func(t *testing.T) {
		d := testutil.LinearChain(3)
		d.AddRaw("bad blue score", ledger.BlockParams{
			Height:         1,
			BlueScore:      0,
			SelectedParent: d.Hash("0"),
			Timestamp:      testutil.BaseTimestamp,
		})
		d.Add("3", "2")
		store := blockstore.NewMemoryStore()
		mgr, oracle := newManager(t, store, DefaultConfig())
		stored := make([]ledger.Hash, 0)
		mgr.OnBlockStored(func(block *ledger.Block) {
			stored = append(stored, block.Hash())
		})
		res := mgr.SyncBlocks(context.Background(), d.Blocks())
		require.EqualValues(t, Result{Processed: 4, Errors: 1}, res)
		require.EqualValues(t, 4, oracle.NumBlocks())
		require.EqualValues(t, 5, len(stored))
		require.Contains(t, stored, d.Hash("bad blue score"))
		// stored anyway, oracle decides about consensus
		has, err := store.HasBlock(d.Hash("bad blue score"))
		require.NoError(t, err)
		require.True(t, has)
	})
}

func TestCancel(t *testing.T) {
	d := testutil.LinearChain(10)
	mgr, _ := newManager(t, blockstore.NewMemoryStore(), DefaultConfig())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := mgr.SyncBlocks(ctx, d.Blocks())
	require.EqualValues(t, 0, res.Total())
}

func TestSeenTrim(t *testing.T) {
	d := testutil.LinearChain(30)
	cfg := DefaultConfig()
	cfg.ChunkSize = 10
	cfg.SeenLimit = 10
	cfg.SeenTrimTo = 5
	mgr, _ := newManager(t, blockstore.NewMemoryStore(), cfg)
	res := mgr.SyncBlocks(context.Background(), d.Blocks())
	require.EqualValues(t, Result{Processed: 30}, res)
	require.EqualValues(t, 5, mgr.SeenCount())

	// trimmed blocks are recognized by the store
	res = mgr.SyncBlocks(context.Background(), d.Blocks())
	require.EqualValues(t, Result{Skipped: 30}, res)
}

func TestMetrics(t *testing.T) {
	d := testutil.LinearChain(10)
	env := newEnv(t)
	store := blockstore.NewMemoryStore()
	metrics := NewMetrics(prometheus.NewRegistry())
	mgr := NewManager(env, store, ghostdag.NewValidator(env, store), DefaultConfig(), metrics)

	mgr.SyncBlocks(context.Background(), d.Blocks()[1:])
	require.EqualValues(t, 0, metricValue(t, metrics.processed))
	require.EqualValues(t, 9, metricValue(t, metrics.pending))
	require.EqualValues(t, mgr.QueueMemory(), metricValue(t, metrics.queueMemory))

	mgr.SyncBlocks(context.Background(), d.Blocks()[:1])
	require.EqualValues(t, 10, metricValue(t, metrics.processed))
	require.EqualValues(t, 0, metricValue(t, metrics.pending))
	require.EqualValues(t, 0, metricValue(t, metrics.queueMemory))
}

func metricValue(t *testing.T, m prometheus.Metric) float64 {
	var out dto.Metric
	require.NoError(t, m.Write(&out))
	if out.Counter != nil {
		return out.Counter.GetValue()
	}
	return out.Gauge.GetValue()
}
