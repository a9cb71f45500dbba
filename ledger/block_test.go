package ledger

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		require.True(t, NilHash.IsNil())
		require.False(t, HashData([]byte("a")).IsNil())
	})
	t.Run("hex", func(t *testing.T) {
		h := HashData([]byte("314"))
		h1, err := HashFromHexString(h.String())
		require.NoError(t, err)
		require.EqualValues(t, h, h1)
		_, err = HashFromHexString("abcd")
		require.Error(t, err)
	})
	t.Run("less", func(t *testing.T) {
		h1 := Hash{0x01}
		h2 := Hash{0x02}
		require.True(t, h1.Less(h2))
		require.False(t, h2.Less(h1))
		require.False(t, h1.Less(h1))
	})
}

func TestBlock(t *testing.T) {
	genesis := NewBlock(BlockParams{Timestamp: 1000})
	require.True(t, genesis.IsGenesis())
	require.EqualValues(t, 0, len(genesis.Parents()))

	merged := NewBlock(BlockParams{Height: 1, BlueScore: 1, SelectedParent: genesis.Hash(), Timestamp: 1001, Payload: []byte("p")})
	b := NewBlock(BlockParams{
		Height:         2,
		BlueScore:      3,
		SelectedParent: genesis.Hash(),
		MergeParents:   []Hash{merged.Hash()},
		Timestamp:      1002,
		Transactions:   [][]byte{[]byte("tx1"), []byte("tx2")},
	})
	require.False(t, b.IsGenesis())
	require.EqualValues(t, []Hash{genesis.Hash(), merged.Hash()}, b.Parents())
	require.NotEqual(t, b.Transactions[0].Hash(), b.Transactions[1].Hash())

	t.Run("bytes", func(t *testing.T) {
		for _, blk := range []*Block{genesis, merged, b} {
			back, err := BlockFromBytes(blk.Bytes())
			require.NoError(t, err)
			require.EqualValues(t, blk.Hash(), back.Hash())
			require.EqualValues(t, blk.Bytes(), back.Bytes())
		}
	})
	t.Run("wrong bytes", func(t *testing.T) {
		data := b.Bytes()
		_, err := BlockFromBytes(data[:len(data)-1])
		require.Error(t, err)
		_, err = BlockFromBytes(append(data, 0))
		require.Error(t, err)
		_, err = BlockFromBytes(nil)
		require.Error(t, err)
	})
	t.Run("hash depends on content", func(t *testing.T) {
		b1 := NewBlock(BlockParams{Height: 2, BlueScore: 3, SelectedParent: genesis.Hash(), Timestamp: 1002})
		b2 := NewBlock(BlockParams{Height: 2, BlueScore: 4, SelectedParent: genesis.Hash(), Timestamp: 1002})
		require.NotEqual(t, b1.Hash(), b2.Hash())
	})
}
