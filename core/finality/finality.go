// Package finality converts confirmation depth behind the tip into irreversibility of the
// selected parent chain and gates reorgs against the finalized boundary
package finality

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/atomic"
)

type (
	Store interface {
		GetBlock(hash ledger.Hash) (*ledger.Block, error)
		IsFinalized(hash ledger.Hash) bool
		FinalizeBlock(hash ledger.Hash) error
	}

	Environment interface {
		global.Logging
		MetricsRegistry() *prometheus.Registry
	}

	// Tracker is owned by one node instance and shared by reference.
	// Height and count are read lock-free, updates are serialized
	Tracker struct {
		global.Logging
		store Store
		cfg   Config

		updateMutex sync.Mutex

		finalizedHeight atomic.Uint64
		finalizedCount  atomic.Uint64
		tipMutex        sync.RWMutex
		finalizedTip    *ledger.Hash

		subscribersMutex sync.RWMutex
		subscribers      map[int]chan Event
		nextSubscriberID int

		metrics metrics
	}

	candidate struct {
		hash   ledger.Hash
		height uint64
	}
)

var ErrReorgPastFinalized = errors.New("reorg past finalized block")

const TraceTag = global.TraceTagFinality

func New(env Environment, store Store, cfg Config) *Tracker {
	if cfg.MaxFinalizeBatch <= 0 {
		cfg.MaxFinalizeBatch = DefaultMaxFinalizeBatch
	}
	ret := &Tracker{
		Logging:     global.MakeSubLogger(env, "[finality]"),
		store:       store,
		cfg:         cfg,
		subscribers: make(map[int]chan Event),
	}
	ret.registerMetrics(env.MetricsRegistry())
	return ret
}

func (t *Tracker) Config() Config {
	return t.cfg
}

func (t *Tracker) FinalizedHeight() uint64 {
	return t.finalizedHeight.Load()
}

func (t *Tracker) FinalizedCount() uint64 {
	return t.finalizedCount.Load()
}

// FinalizedTip returns the last finalized block, if any
func (t *Tracker) FinalizedTip() (ledger.Hash, bool) {
	t.tipMutex.RLock()
	defer t.tipMutex.RUnlock()

	if t.finalizedTip == nil {
		return ledger.NilHash, false
	}
	return *t.finalizedTip, true
}

func (t *Tracker) hasFinalizedTip() bool {
	_, ok := t.FinalizedTip()
	return ok
}

// UpdateFinality advances the finalized boundary to tipHeight - ConfirmationDepth along the selected
// parent chain of the tip. Returns newly finalized blocks, oldest first.
// The walk down from the tip stops after MaxFinalizeBatch collected blocks, so a large backlog
// is finalized from the top and older chain blocks below the new boundary stay unmarked
func (t *Tracker) UpdateFinality(tip ledger.Hash, tipHeight uint64) ([]ledger.Hash, error) {
	t.updateMutex.Lock()
	defer t.updateMutex.Unlock()

	if tipHeight < t.cfg.ConfirmationDepth {
		return nil, nil
	}
	target := tipHeight - t.cfg.ConfirmationDepth
	fh := t.finalizedHeight.Load()
	if target <= fh {
		return nil, nil
	}

	candidates, err := t.collectCandidates(tip, target, fh)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	ret := make([]ledger.Hash, 0, len(candidates))
	util.RangeReverse(candidates, func(_ int, c candidate) bool {
		if err := t.store.FinalizeBlock(c.hash); err != nil {
			t.Log().Errorf("failed to finalize block %s at height %d: %v", c.hash.StringShort(), c.height, err)
			return true
		}
		t.advanceHeight(c.height)
		total := t.finalizedCount.Inc()
		t.setFinalizedTip(c.hash)
		ret = append(ret, c.hash)

		t.Tracef(TraceTag, "finalized %s at height %d", c.hash.StringShort, c.height)
		if t.cfg.EmitEvents {
			t.broadcast(Event{
				BlockHash:      c.hash,
				Height:         c.height,
				FinalizedTip:   c.hash,
				TotalFinalized: total,
			})
		}
		return true
	})
	t.updateMetrics()
	if len(ret) > 0 {
		t.Log().Debugf("finalized %d blocks, finalized height: %d, tip: %s at height %d",
			len(ret), t.finalizedHeight.Load(), tip.StringShort(), tipHeight)
	}
	return ret, nil
}

// collectCandidates walks the selected parent chain backward from the tip.
// Returns at most MaxFinalizeBatch not yet finalized blocks with height <= target, tip first.
// Stops early at the finalized boundary or when the batch is full
func (t *Tracker) collectCandidates(tip ledger.Hash, target, fh uint64) ([]candidate, error) {
	ret := make([]candidate, 0)
	for current := tip; len(ret) < t.cfg.MaxFinalizeBatch; {
		block, err := t.store.GetBlock(current)
		if err != nil {
			return nil, err
		}
		if fh > 0 && block.Height <= fh {
			// nothing to collect below the boundary
			break
		}
		if block.Height <= target && !t.store.IsFinalized(current) {
			ret = append(ret, candidate{hash: current, height: block.Height})
		}
		if block.IsGenesis() || block.SelectedParent.IsNil() {
			break
		}
		current = block.SelectedParent
	}
	return ret, nil
}

// advanceHeight is monotonic max, never a plain store
func (t *Tracker) advanceHeight(h uint64) {
	for {
		cur := t.finalizedHeight.Load()
		if h <= cur || t.finalizedHeight.CompareAndSwap(cur, h) {
			return
		}
	}
}

func (t *Tracker) setFinalizedTip(h ledger.Hash) {
	t.tipMutex.Lock()
	defer t.tipMutex.Unlock()

	t.finalizedTip = &h
}

// CheckFinality returns true if block height is at or below the finalized height.
// It does not require the block to be marked finalized.
// Before the first block is finalized it returns false for every block, including genesis,
// although the finalized height is 0 at that point
func (t *Tracker) CheckFinality(hash ledger.Hash) (bool, error) {
	if !t.hasFinalizedTip() {
		return false, nil
	}
	block, err := t.store.GetBlock(hash)
	if err != nil {
		return false, err
	}
	return block.Height <= t.finalizedHeight.Load(), nil
}

// CheckReorgAllowed rejects reorg with common ancestor below the finalized height.
// Branching at the finalized height is allowed
func (t *Tracker) CheckReorgAllowed(commonAncestor ledger.Hash) error {
	if !t.hasFinalizedTip() {
		return nil
	}
	block, err := t.store.GetBlock(commonAncestor)
	if err != nil {
		return err
	}
	if fh := t.finalizedHeight.Load(); block.Height < fh {
		return fmt.Errorf("%w: common ancestor %s at height %d is below finalized height %d",
			ErrReorgPastFinalized, commonAncestor.StringShort(), block.Height, fh)
	}
	return nil
}

func (t *Tracker) GetFinalityStatus(hash ledger.Hash) (Status, error) {
	if t.store.IsFinalized(hash) {
		return Status{Code: Finalized}, nil
	}
	block, err := t.store.GetBlock(hash)
	if err != nil {
		return Status{}, err
	}
	fh := t.finalizedHeight.Load()
	if t.hasFinalizedTip() && block.Height <= fh {
		// at or below the boundary but not on the finalized chain
		return Status{Code: PendingFinalization}, nil
	}
	ret := Status{Code: Unfinalized}
	if horizon := fh + t.cfg.ConfirmationDepth; horizon > block.Height {
		ret.Confirmations = horizon - block.Height
	}
	return ret, nil
}

// Reset clears the state. Blocks already marked finalized in the store remain marked
func (t *Tracker) Reset() {
	t.updateMutex.Lock()
	defer t.updateMutex.Unlock()

	t.finalizedHeight.Store(0)
	t.finalizedCount.Store(0)
	t.tipMutex.Lock()
	t.finalizedTip = nil
	t.tipMutex.Unlock()
	t.updateMetrics()
	t.Log().Infof("finality state has been reset")
}
