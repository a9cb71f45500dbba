package node

import (
	"context"
	"testing"
	"time"

	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/finality"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/util/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Finality.ConfirmationDepth = 10
	cfg.Finality.CheckPeriod = 10 * time.Millisecond
	cfg.MemStatsPeriod = 0
	return cfg
}

func startNode(t *testing.T, cfg Config, store Store) *DAGNode {
	env := global.NewWithLogger(zaptest.NewLogger(t).Sugar())
	n := New(env, cfg)
	require.NoError(t, n.Start(store))
	t.Cleanup(n.Stop)
	return n
}

func TestNodeInMemory(t *testing.T) {
	d := testutil.LinearChain(30)
	cfg := testConfig()
	cfg.Finality.CheckPeriod = time.Hour
	n := startNode(t, cfg, nil)
	require.True(t, n.Genesis().IsNil())

	res := n.SubmitBlocks(context.Background(), d.Blocks())
	require.EqualValues(t, 30, res.Processed)
	require.EqualValues(t, 0, n.PendingBlocks())

	finalized := n.AdvanceFinality()
	require.EqualValues(t, 20, len(finalized))
	require.EqualValues(t, 19, n.Finality().FinalizedHeight())

	st, err := n.Finality().GetFinalityStatus(d.Hash("5"))
	require.NoError(t, err)
	require.EqualValues(t, finality.Finalized, st.Code)

	order, err := n.Ordering().GetTotalOrder(d.Hash("29"))
	require.NoError(t, err)
	require.EqualValues(t, 30, len(order))
	require.EqualValues(t, 1, n.Ordering().CacheLen())

	t.Run("new blocks keep cached orders", func(t *testing.T) {
		d.Add("30", "29")
		d.Add("31", "30")
		res := n.SubmitBlocks(context.Background(), d.Blocks()[30:])
		require.EqualValues(t, 2, res.Processed)
		require.EqualValues(t, 1, n.Ordering().CacheLen())

		order, err := n.Ordering().GetTotalOrder(d.Hash("31"))
		require.NoError(t, err)
		require.EqualValues(t, 32, len(order))
		require.EqualValues(t, 2, n.Ordering().CacheLen())
	})
}

func TestFinalityLoop(t *testing.T) {
	d := testutil.LinearChain(25)
	n := startNode(t, testConfig(), nil)
	ch, unsubscribe := n.Finality().Subscribe(100)
	defer unsubscribe()

	n.SubmitBlocks(context.Background(), d.Blocks())
	require.Eventually(t, func() bool {
		return n.Finality().FinalizedHeight() == 14
	}, 5*time.Second, 10*time.Millisecond)

	ev := <-ch
	require.EqualValues(t, d.Hash("0"), ev.BlockHash)
}

func TestNodeRestart(t *testing.T) {
	d := testutil.LinearChain(15)
	store, err := blockstore.OpenBadgerStore("", global.NewWithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, d.StoreAll(store))

	cfg := testConfig()
	n := startNode(t, cfg, store)
	require.EqualValues(t, d.Hash("0"), n.Genesis())
	tip, ok := n.Oracle().SelectedTip()
	require.True(t, ok)
	require.EqualValues(t, d.Hash("14"), tip.Hash())

	t.Run("configured genesis", func(t *testing.T) {
		cfg := testConfig()
		cfg.Genesis = d.Hash("0")
		n := startNode(t, cfg, store)
		order, err := n.Ordering().GetTotalOrder(d.Hash("14"))
		require.NoError(t, err)
		require.EqualValues(t, 15, len(order))
	})
}
