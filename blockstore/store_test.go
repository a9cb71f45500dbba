package blockstore

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util/testutil"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newBadgerStore(t *testing.T) *BadgerStore {
	s, err := OpenBadgerStore("", global.NewWithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func forEachStore(t *testing.T, fun func(t *testing.T, s interface {
	Store
	Iterable
})) {
	t.Run("memory", func(t *testing.T) {
		fun(t, NewMemoryStore())
	})
	t.Run("badger", func(t *testing.T) {
		fun(t, newBadgerStore(t))
	})
}

func TestStore(t *testing.T) {
	forEachStore(t, func(t *testing.T, s interface {
		Store
		Iterable
	}) {
		d := testutil.NewDAGBuilder()
		d.Genesis("G")
		d.Add("A", "G")
		d.Add("B", "G")
		d.Add("C", "A", "B")

		h, err := s.GetLatestHeight()
		require.NoError(t, err)
		require.EqualValues(t, 0, h)

		_, err = s.GetBlock(d.Hash("G"))
		require.True(t, IsBlockNotFound(err))

		require.NoError(t, d.StoreAll(s))
		// idempotent
		require.NoError(t, s.StoreBlock(d.Block("A")))

		for _, b := range d.Blocks() {
			has, err := s.HasBlock(b.Hash())
			require.NoError(t, err)
			require.True(t, has)
			back, err := s.GetBlock(b.Hash())
			require.NoError(t, err)
			require.EqualValues(t, b.Hash(), back.Hash())
		}
		has, err := s.HasBlock(ledger.HashData([]byte("absent")))
		require.NoError(t, err)
		require.False(t, has)

		h, err = s.GetLatestHeight()
		require.NoError(t, err)
		require.EqualValues(t, 2, h)

		hash, found, err := s.GetBlockByHeight(0)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, d.Hash("G"), hash)

		// A was stored first at height 1
		hash, found, err = s.GetBlockByHeight(1)
		require.NoError(t, err)
		require.True(t, found)
		require.EqualValues(t, d.Hash("A"), hash)

		_, found, err = s.GetBlockByHeight(5)
		require.NoError(t, err)
		require.False(t, found)

		require.False(t, s.IsFinalized(d.Hash("G")))
		require.NoError(t, s.FinalizeBlock(d.Hash("G")))
		require.NoError(t, s.FinalizeBlock(d.Hash("G")))
		require.True(t, s.IsFinalized(d.Hash("G")))
		err = s.FinalizeBlock(ledger.HashData([]byte("absent")))
		require.True(t, IsBlockNotFound(err))

		count := 0
		require.NoError(t, s.ForEachBlock(func(_ *ledger.Block) bool {
			count++
			return true
		}))
		require.EqualValues(t, 4, count)
	})
}

func TestConcurrentWrites(t *testing.T) {
	forEachStore(t, func(t *testing.T, s interface {
		Store
		Iterable
	}) {
		d := testutil.LinearChain(200)
		var wg sync.WaitGroup
		blocks := d.Blocks()
		for w := 0; w < 4; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := w; i < len(blocks); i += 4 {
					require.NoError(t, s.StoreBlock(blocks[i]))
				}
			}(w)
		}
		wg.Wait()
		h, err := s.GetLatestHeight()
		require.NoError(t, err)
		require.EqualValues(t, 199, h)
	})
}

func TestGraph(t *testing.T) {
	s := NewMemoryStore()
	d := testutil.NewDAGBuilder()
	d.Genesis("G")
	d.Add("A", "G")
	d.Add("B", "G")
	d.Add("C", "A", "B")
	require.NoError(t, d.StoreAll(s))
	require.NoError(t, s.FinalizeBlock(d.Hash("G")))

	gr, err := MakeGraph(s)
	require.NoError(t, err)
	order, err := gr.Order()
	require.NoError(t, err)
	require.EqualValues(t, 4, order)
	size, err := gr.Size()
	require.NoError(t, err)
	require.EqualValues(t, 4, size)

	fname := filepath.Join(t.TempDir(), "dag")
	require.NoError(t, SaveGraph(s, fname))
	data, err := os.ReadFile(fname + ".gv")
	require.NoError(t, err)
	require.Contains(t, string(data), d.Hash("C").StringShort())
}
