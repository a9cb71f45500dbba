package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDAGBuilder(t *testing.T) {
	t.Run("linear", func(t *testing.T) {
		d := LinearChain(5)
		require.EqualValues(t, 5, len(d.Blocks()))
		require.True(t, d.Block("0").IsGenesis())
		require.EqualValues(t, 4, d.Block("4").Height)
		require.EqualValues(t, d.Hash("3"), d.Block("4").SelectedParent)
		require.EqualValues(t, "2", d.NameOf(d.Hash("2")))
	})
	t.Run("merge", func(t *testing.T) {
		d := NewDAGBuilder()
		d.Genesis("G")
		d.Add("A", "G")
		d.Add("B", "G")
		c := d.Add("C", "A", "B")
		require.EqualValues(t, 2, c.Height)
		require.EqualValues(t, 3, c.BlueScore)
		require.EqualValues(t, []string{"A", "B"}, d.Names(c.Parents()))
	})
	t.Run("random is deterministic", func(t *testing.T) {
		d1 := RandomDAG(50, 3, 1)
		d2 := RandomDAG(50, 3, 1)
		require.EqualValues(t, d1.Hash("b49"), d2.Hash("b49"))
	})
}
