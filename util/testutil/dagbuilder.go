package testutil

import (
	"fmt"
	"math/rand"

	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util"
)

// BaseTimestamp is safely in the past
const BaseTimestamp = uint64(1_700_000_000)

type (
	Storer interface {
		StoreBlock(block *ledger.Block) error
	}

	// DAGBuilder builds deterministic test DAGs with named blocks.
	// Height is the selected parent's height + 1. Blue score is
	// max blue score of parents + 1 + number of merge parents
	DAGBuilder struct {
		byName map[string]*ledger.Block
		names  map[ledger.Hash]string
		order  []*ledger.Block
	}
)

func NewDAGBuilder() *DAGBuilder {
	return &DAGBuilder{
		byName: make(map[string]*ledger.Block),
		names:  make(map[ledger.Hash]string),
		order:  make([]*ledger.Block, 0),
	}
}

func (d *DAGBuilder) Genesis(name string) *ledger.Block {
	return d.add(name, ledger.BlockParams{Timestamp: BaseTimestamp})
}

// Add adds block with selected parent and merge parents referenced by name
func (d *DAGBuilder) Add(name, selectedParent string, mergeParents ...string) *ledger.Block {
	return d.AddWithTxs(name, nil, selectedParent, mergeParents...)
}

func (d *DAGBuilder) AddWithTxs(name string, txs [][]byte, selectedParent string, mergeParents ...string) *ledger.Block {
	sp := d.Block(selectedParent)
	par := ledger.BlockParams{
		Height:         sp.Height + 1,
		SelectedParent: sp.Hash(),
		MergeParents:   make([]ledger.Hash, len(mergeParents)),
		Timestamp:      BaseTimestamp + uint64(len(d.order)),
		Transactions:   txs,
		Payload:        []byte(name),
	}
	maxBlueScore := sp.BlueScore
	for i, mpName := range mergeParents {
		mp := d.Block(mpName)
		par.MergeParents[i] = mp.Hash()
		maxBlueScore = max(maxBlueScore, mp.BlueScore)
	}
	par.BlueScore = maxBlueScore + 1 + uint64(len(mergeParents))
	return d.add(name, par)
}

// AddRaw adds block built from arbitrary parameters, e.g. with absent or invalid parents
func (d *DAGBuilder) AddRaw(name string, par ledger.BlockParams) *ledger.Block {
	return d.add(name, par)
}

func (d *DAGBuilder) add(name string, par ledger.BlockParams) *ledger.Block {
	_, already := d.byName[name]
	util.Assertf(!already, "duplicate block name '%s'", name)
	if par.Payload == nil {
		par.Payload = []byte(name)
	}
	ret := ledger.NewBlock(par)
	d.byName[name] = ret
	d.names[ret.Hash()] = name
	d.order = append(d.order, ret)
	return ret
}

func (d *DAGBuilder) Block(name string) *ledger.Block {
	ret, found := d.byName[name]
	util.Assertf(found, "unknown block name '%s'", name)
	return ret
}

func (d *DAGBuilder) Hash(name string) ledger.Hash {
	return d.Block(name).Hash()
}

// Blocks all blocks in the order of creation, i.e. parents before children
func (d *DAGBuilder) Blocks() []*ledger.Block {
	return append([]*ledger.Block{}, d.order...)
}

func (d *DAGBuilder) NameOf(h ledger.Hash) string {
	if ret, found := d.names[h]; found {
		return ret
	}
	return "?" + h.StringShort()
}

func (d *DAGBuilder) Names(hashes []ledger.Hash) []string {
	ret := make([]string, len(hashes))
	for i, h := range hashes {
		ret[i] = d.NameOf(h)
	}
	return ret
}

func (d *DAGBuilder) StoreAll(s Storer) error {
	for _, b := range d.order {
		if err := s.StoreBlock(b); err != nil {
			return err
		}
	}
	return nil
}

// LinearChain blocks named "0", "1", ... with heights equal to the index
func LinearChain(n int) *DAGBuilder {
	ret := NewDAGBuilder()
	ret.Genesis("0")
	for i := 1; i < n; i++ {
		ret.Add(fmt.Sprintf("%d", i), fmt.Sprintf("%d", i-1))
	}
	return ret
}

// RandomDAG generates DAG of n blocks deterministically from the seed. Every new block selects
// the current tip with the highest blue score and merges up to maxMerge other tips
func RandomDAG(n int, maxMerge int, seed int64) *DAGBuilder {
	rnd := rand.New(rand.NewSource(seed))
	ret := NewDAGBuilder()
	ret.Genesis("g")
	tips := []string{"g"}
	for i := 1; i < n; i++ {
		name := fmt.Sprintf("b%d", i)
		// pick random subset of tips as parents
		parents := make([]string, 0)
		for _, t := range tips {
			if len(parents) == 0 || rnd.Intn(2) == 0 {
				parents = append(parents, t)
			}
		}
		if len(parents) > maxMerge+1 {
			parents = parents[:maxMerge+1]
		}
		best := 0
		for j := range parents {
			bj, bb := ret.Block(parents[j]), ret.Block(parents[best])
			if bj.BlueScore > bb.BlueScore || (bj.BlueScore == bb.BlueScore && bj.Hash().Less(bb.Hash())) {
				best = j
			}
		}
		sp := parents[best]
		merge := append(append([]string{}, parents[:best]...), parents[best+1:]...)
		ret.Add(name, sp, merge...)

		newTips := []string{name}
		for _, t := range tips {
			if util.Find(parents, t) < 0 {
				newTips = append(newTips, t)
			}
		}
		// occasionally fork: keep the selected parent as a tip too
		if rnd.Intn(3) == 0 {
			newTips = append(newTips, sp)
		}
		if len(newTips) > 8 {
			newTips = newTips[:8]
		}
		tips = newTips
	}
	return ret
}
