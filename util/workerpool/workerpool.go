package workerpool

import (
	"sync"

	"github.com/lunfardo314/dagcore/util"
)

// WorkerPool limits number of concurrently running tasks and joins them with Wait.
// Panic in a task is caught and reported to the onPanic callback, siblings are not affected
type WorkerPool struct {
	slots   chan struct{}
	wg      sync.WaitGroup
	onPanic func(name string, err error)
}

func NewWorkerPool(maxWorkers int, onPanic ...func(name string, err error)) *WorkerPool {
	util.Assertf(maxWorkers > 0, "maximum workers parameter must be positive")
	ret := &WorkerPool{
		slots: make(chan struct{}, maxWorkers),
	}
	if len(onPanic) > 0 {
		ret.onPanic = onPanic[0]
	}
	return ret
}

// Work blocks until a slot is free, then runs fun in a separate goroutine
func (wp *WorkerPool) Work(name string, fun func()) {
	wp.slots <- struct{}{}
	wp.wg.Add(1)
	go func() {
		defer func() {
			<-wp.slots
			wp.wg.Done()
		}()
		err := util.CatchPanicOrError(func() error {
			fun()
			return nil
		}, true)
		if err != nil && wp.onPanic != nil {
			wp.onPanic(name, err)
		}
	}()
}

// Wait waits until all started tasks finish
func (wp *WorkerPool) Wait() {
	wp.wg.Wait()
}

func (wp *WorkerPool) Len() int {
	return len(wp.slots)
}
