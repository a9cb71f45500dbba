package seenset

import (
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/blake2b"
)

func TestBasic(t *testing.T) {
	t.Run("1", func(t *testing.T) {
		ss := New[int]()
		require.False(t, ss.Seen(314))
		require.True(t, ss.Seen(314))
		require.EqualValues(t, 1, ss.Len())
	})
	t.Run("2", func(t *testing.T) {
		ss := New[[32]byte]()
		h1 := blake2b.Sum256([]byte{1})
		require.False(t, ss.Seen(h1))
		require.True(t, ss.Seen(h1))
		ss.Forget(h1)
		require.False(t, ss.Contains(h1))
		require.False(t, ss.Seen(h1))
	})
}

func TestTrim(t *testing.T) {
	t.Run("keeps most recent", func(t *testing.T) {
		ss := New[int]()
		for i := 0; i < 100; i++ {
			ss.Seen(i)
		}
		evicted := ss.Trim(30)
		require.EqualValues(t, 70, evicted)
		require.EqualValues(t, 30, ss.Len())
		for i := 0; i < 70; i++ {
			require.False(t, ss.Contains(i))
		}
		for i := 70; i < 100; i++ {
			require.True(t, ss.Contains(i))
		}
	})
	t.Run("forgotten do not count", func(t *testing.T) {
		ss := New[int]()
		for i := 0; i < 10; i++ {
			ss.Seen(i)
		}
		ss.Forget(0)
		ss.Forget(1)
		require.EqualValues(t, 3, ss.Trim(5))
		for i := 5; i < 10; i++ {
			require.True(t, ss.Contains(i))
		}
	})
	t.Run("seen again after forget is recent", func(t *testing.T) {
		ss := New[int]()
		for i := 0; i < 10; i++ {
			ss.Seen(i)
		}
		ss.Forget(0)
		require.False(t, ss.Seen(0))
		require.EqualValues(t, 10, ss.Len())

		require.EqualValues(t, 5, ss.Trim(5))
		require.True(t, ss.Contains(0))
		for i := 1; i < 6; i++ {
			require.False(t, ss.Contains(i))
		}
		for i := 6; i < 10; i++ {
			require.True(t, ss.Contains(i))
		}
	})
	t.Run("compaction keeps current entries", func(t *testing.T) {
		ss := New[int]()
		for round := 0; round < 20; round++ {
			for i := 0; i < 10; i++ {
				ss.Forget(i)
				ss.Seen(i)
			}
		}
		require.EqualValues(t, 0, ss.Trim(10))
		require.EqualValues(t, 8, ss.Trim(2))
		require.True(t, ss.Contains(8))
		require.True(t, ss.Contains(9))
	})
	t.Run("nothing to trim", func(t *testing.T) {
		ss := New[int]()
		ss.Seen(1)
		require.EqualValues(t, 0, ss.Trim(5))
		require.True(t, ss.Contains(1))
	})
}
