package blockstore

import (
	"sync"

	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util/set"
)

// MemoryStore keeps everything in maps. Used in tests and as a non-persistent node store
type MemoryStore struct {
	mutex        sync.RWMutex
	blocks       map[ledger.Hash]*ledger.Block
	byHeight     map[uint64]ledger.Hash
	finalized    set.Set[ledger.Hash]
	latestHeight uint64
}

var _ Store = &MemoryStore{}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		blocks:    make(map[ledger.Hash]*ledger.Block),
		byHeight:  make(map[uint64]ledger.Hash),
		finalized: set.New[ledger.Hash](),
	}
}

func (m *MemoryStore) GetBlock(hash ledger.Hash) (*ledger.Block, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ret, found := m.blocks[hash]
	if !found {
		return nil, blockNotFound(hash)
	}
	return ret, nil
}

func (m *MemoryStore) HasBlock(hash ledger.Hash) (bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	_, found := m.blocks[hash]
	return found, nil
}

func (m *MemoryStore) StoreBlock(block *ledger.Block) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	h := block.Hash()
	if _, already := m.blocks[h]; already {
		return nil
	}
	m.blocks[h] = block
	if _, found := m.byHeight[block.Height]; !found {
		m.byHeight[block.Height] = h
	}
	if block.Height > m.latestHeight {
		m.latestHeight = block.Height
	}
	return nil
}

func (m *MemoryStore) GetBlockByHeight(height uint64) (ledger.Hash, bool, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	ret, found := m.byHeight[height]
	return ret, found, nil
}

func (m *MemoryStore) GetLatestHeight() (uint64, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.latestHeight, nil
}

func (m *MemoryStore) IsFinalized(hash ledger.Hash) bool {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return m.finalized.Contains(hash)
}

func (m *MemoryStore) FinalizeBlock(hash ledger.Hash) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, found := m.blocks[hash]; !found {
		return blockNotFound(hash)
	}
	m.finalized.Insert(hash)
	return nil
}

func (m *MemoryStore) NumBlocks() int {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	return len(m.blocks)
}

// ForEachBlock iterates over a snapshot of blocks, so fun may access the store
func (m *MemoryStore) ForEachBlock(fun func(block *ledger.Block) bool) error {
	m.mutex.RLock()
	blocks := make([]*ledger.Block, 0, len(m.blocks))
	for _, b := range m.blocks {
		blocks = append(blocks, b)
	}
	m.mutex.RUnlock()

	for _, b := range blocks {
		if !fun(b) {
			return nil
		}
	}
	return nil
}
