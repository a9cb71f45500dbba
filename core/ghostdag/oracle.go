// Package ghostdag defines the blue score oracle consumed by the DAG core.
// The GHOSTDAG blue set computation itself is external; Validator is a reference
// oracle which only checks consistency of blue scores assigned by the block producer
package ghostdag

import (
	"errors"
	"fmt"
	"sync"

	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
)

// Oracle incorporates a stored block into the consensus state
type Oracle interface {
	AddBlock(block *ledger.Block) error
}

type (
	BlockGetter interface {
		GetBlock(hash ledger.Hash) (*ledger.Block, error)
	}

	// Validator checks that blue score grows along the selected parent and is not lower than
	// blue score of any merge parent. Keeps the block with the highest blue score as the selected tip
	Validator struct {
		global.Logging
		store     BlockGetter
		mutex     sync.RWMutex
		tip       *ledger.Block
		numBlocks int
	}
)

var ErrInvalidBlueScore = errors.New("invalid blue score")

func NewValidator(env global.Logging, store BlockGetter) *Validator {
	return &Validator{
		Logging: global.MakeSubLogger(env, "[ghostdag]"),
		store:   store,
	}
}

func (v *Validator) AddBlock(block *ledger.Block) error {
	if !block.IsGenesis() {
		sp, err := v.store.GetBlock(block.SelectedParent)
		if err != nil {
			return err
		}
		if block.BlueScore <= sp.BlueScore {
			return fmt.Errorf("%w: %s has blue score %d, selected parent %d",
				ErrInvalidBlueScore, block.Hash().StringShort(), block.BlueScore, sp.BlueScore)
		}
		for _, h := range block.MergeParents {
			mp, err := v.store.GetBlock(h)
			if err != nil {
				return err
			}
			if block.BlueScore <= mp.BlueScore {
				return fmt.Errorf("%w: %s has blue score %d, merge parent %s has %d",
					ErrInvalidBlueScore, block.Hash().StringShort(), block.BlueScore, h.StringShort(), mp.BlueScore)
			}
		}
	}

	v.mutex.Lock()
	defer v.mutex.Unlock()

	v.numBlocks++
	if v.tip == nil || isBetterTip(block, v.tip) {
		v.tip = block
		v.Tracef(global.TraceTagSync, "new selected tip %s", block.String)
	}
	return nil
}

// isBetterTip higher blue score wins, ties are broken by the lower hash
func isBetterTip(b, than *ledger.Block) bool {
	if b.BlueScore != than.BlueScore {
		return b.BlueScore > than.BlueScore
	}
	return b.Hash().Less(than.Hash())
}

// SelectedTip returns block with the highest blue score seen so far, if any
func (v *Validator) SelectedTip() (*ledger.Block, bool) {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.tip, v.tip != nil
}

func (v *Validator) NumBlocks() int {
	v.mutex.RLock()
	defer v.mutex.RUnlock()

	return v.numBlocks
}
