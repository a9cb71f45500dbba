package workerpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
)

func TestBasic(t *testing.T) {
	t.Run("1", func(t *testing.T) {
		require.Panics(t, func() {
			NewWorkerPool(0)
		})
	})
	t.Run("2", func(t *testing.T) {
		wp := NewWorkerPool(1)
		counter := 0
		wp.Work("one", func() {
			counter++
		})
		wp.Wait()
		require.EqualValues(t, 1, counter)
	})
	t.Run("3", func(t *testing.T) {
		const numWorkers = 1
		wp := NewWorkerPool(numWorkers)
		var nw atomic.Int32
		var counter atomic.Int32
		const howMany = 100
		for i := 0; i < howMany; i++ {
			wp.Work("task", func() {
				require.True(t, nw.Load() < numWorkers)
				nw.Inc()
				counter.Inc()
				time.Sleep(time.Millisecond)
				nw.Dec()
			})
		}
		wp.Wait()
		require.EqualValues(t, howMany, counter.Load())
	})
	t.Run("4", func(t *testing.T) {
		const numWorkers = 100
		wp := NewWorkerPool(numWorkers)
		var counter atomic.Int32
		const howMany = 100
		for i := 0; i < howMany; i++ {
			wp.Work("task", func() {
				counter.Inc()
				time.Sleep(10 * time.Millisecond)
			})
		}
		wp.Wait()
		require.EqualValues(t, howMany, counter.Load())
	})
}

func TestPanic(t *testing.T) {
	var mutex sync.Mutex
	panicked := make([]string, 0)
	wp := NewWorkerPool(4, func(name string, err error) {
		mutex.Lock()
		defer mutex.Unlock()
		panicked = append(panicked, name)
	})
	var counter atomic.Int32
	wp.Work("bad", func() {
		panic("boom")
	})
	for i := 0; i < 10; i++ {
		wp.Work("good", func() {
			counter.Inc()
		})
	}
	wp.Wait()
	require.EqualValues(t, 10, counter.Load())
	require.EqualValues(t, []string{"bad"}, panicked)
}
