package ordering

import (
	"fmt"
	"sort"

	"github.com/gammazero/deque"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util"
	"github.com/lunfardo314/dagcore/util/set"
)

// Iterator lazily produces the total order from genesis up to the tip, one block hash per call.
// Every backbone block is emitted before its own mergeset:
// B0, mergeset(B0), B1, mergeset(B1), ...
// Iterator is finite and not restartable. Not thread safe
type Iterator struct {
	store         BlockGetter
	yielded       set.Set[ledger.Hash]
	chainQueue    *deque.Deque[*ledger.Block]
	mergesetQueue *deque.Deque[ledger.Hash]
	err           error
}

// selectedParentChain returns chain from the tip back to the root, tip first
func selectedParentChain(store BlockGetter, tip ledger.Hash) ([]*ledger.Block, error) {
	ret := make([]*ledger.Block, 0)
	visited := set.New[ledger.Hash]()
	for current := tip; ; {
		if visited.Contains(current) {
			return nil, fmt.Errorf("%w: selected parent chain of %s contains cycle at %s",
				ErrMalformedDAG, tip.StringShort(), current.StringShort())
		}
		visited.Insert(current)
		block, err := store.GetBlock(current)
		if err != nil {
			return nil, err
		}
		ret = append(ret, block)
		if block.SelectedParent.IsNil() {
			return ret, nil
		}
		current = block.SelectedParent
	}
}

func newIterator(store BlockGetter, chain []*ledger.Block) *Iterator {
	ret := &Iterator{
		store:         store,
		yielded:       set.New[ledger.Hash](),
		chainQueue:    new(deque.Deque[*ledger.Block]),
		mergesetQueue: new(deque.Deque[ledger.Hash]),
	}
	// chain is tip first, queue is oldest first
	util.RangeReverse(chain, func(_ int, b *ledger.Block) bool {
		ret.chainQueue.PushBack(b)
		return true
	})
	return ret
}

// Next returns next hash in the order. Returns false when the order is exhausted.
// An error is sticky: all subsequent calls return it
func (it *Iterator) Next() (ledger.Hash, bool, error) {
	if it.err != nil {
		return ledger.NilHash, false, it.err
	}
	for {
		for it.mergesetQueue.Len() > 0 {
			h := it.mergesetQueue.PopFront()
			if !it.yielded.Contains(h) {
				it.yielded.Insert(h)
				return h, true, nil
			}
		}
		if it.chainQueue.Len() == 0 {
			return ledger.NilHash, false, nil
		}
		b := it.chainQueue.PopFront()
		mergeset, err := it.mergeset(b)
		if err != nil {
			it.err = err
			return ledger.NilHash, false, err
		}
		for _, mb := range mergeset {
			it.mergesetQueue.PushBack(mb.Hash())
		}
		if !it.yielded.Contains(b.Hash()) {
			it.yielded.Insert(b.Hash())
			return b.Hash(), true, nil
		}
	}
}

// Collect drains the iterator
func (it *Iterator) Collect() ([]ledger.Hash, error) {
	ret := make([]ledger.Hash, 0)
	for {
		h, ok, err := it.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return ret, nil
		}
		ret = append(ret, h)
	}
}

// mergeset collects all blocks reachable from merge parents of b which are not yielded yet.
// The walk uses explicit stack and stops at already yielded or collected blocks
func (it *Iterator) mergeset(b *ledger.Block) ([]*ledger.Block, error) {
	collected := make(map[ledger.Hash]*ledger.Block)
	stack := append(make([]ledger.Hash, 0, len(b.MergeParents)), b.MergeParents...)
	for len(stack) > 0 {
		h := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if h.IsNil() || h == b.Hash() || it.yielded.Contains(h) {
			continue
		}
		if _, already := collected[h]; already {
			continue
		}
		block, err := it.store.GetBlock(h)
		if err != nil {
			return nil, err
		}
		collected[h] = block
		stack = append(stack, block.Parents()...)
	}
	ret := make([]*ledger.Block, 0, len(collected))
	for _, mb := range collected {
		ret = append(ret, mb)
	}
	sortMergeset(ret)
	return ret, nil
}

// sortMergeset sorts by blue score descending, then by hash ascending
func sortMergeset(blocks []*ledger.Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].BlueScore != blocks[j].BlueScore {
			return blocks[i].BlueScore > blocks[j].BlueScore
		}
		return blocks[i].Hash().Less(blocks[j].Hash())
	})
}
