// Package ordering derives deterministic linear order of blocks and transactions from the DAG.
// The backbone is the selected parent chain of the tip. Each backbone block is followed by its
// mergeset sorted by (blue score descending, hash ascending)
package ordering

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"
)

type (
	BlockGetter interface {
		GetBlock(hash ledger.Hash) (*ledger.Block, error)
	}

	Environment interface {
		global.Logging
		MetricsRegistry() *prometheus.Registry
	}

	Config struct {
		// CacheSize max number of cached total orders
		CacheSize int
	}

	TotalOrdering struct {
		global.Logging
		store   BlockGetter
		genesis ledger.Hash
		// cache of full orders keyed by (genesis, tip). Values are *cachedOrder, never modified
		cache *lru.Cache
		// cacheMutex serializes invalidation with insertion. Insertion is skipped
		// if the cache was invalidated while the order was being computed
		cacheMutex      sync.RWMutex
		cacheGeneration uint64
		metrics         metrics
	}

	cacheKey struct {
		genesis ledger.Hash
		tip     ledger.Hash
	}

	// cachedOrder is the full order with position of each block in it
	cachedOrder struct {
		order []ledger.Hash
		index map[ledger.Hash]int
	}

	// TxRef position of the transaction in the global execution order
	TxRef struct {
		BlockHash ledger.Hash
		TxIndex   int
		TxHash    ledger.Hash
	}
)

var (
	ErrMalformedDAG = errors.New("malformed DAG")
	ErrWrongGenesis = errors.New("selected parent chain does not end at genesis")
	ErrNotInOrder   = errors.New("block is not in the total order")
)

const (
	TraceTag         = global.TraceTagOrdering
	defaultCacheSize = 128
)

func DefaultConfig() Config {
	return Config{CacheSize: defaultCacheSize}
}

func ConfigFromViper() Config {
	ret := DefaultConfig()
	if viper.IsSet("ordering.cache_size") {
		ret.CacheSize = viper.GetInt("ordering.cache_size")
	}
	return ret
}

// New creates total ordering over the store. If genesis is not nil, every selected
// parent chain must end at it
func New(env Environment, store BlockGetter, genesis ledger.Hash, cfg Config) *TotalOrdering {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	cache, err := lru.New(cfg.CacheSize)
	util.AssertNoError(err)

	ret := &TotalOrdering{
		Logging: global.MakeSubLogger(env, "[ordering]"),
		store:   store,
		genesis: genesis,
		cache:   cache,
	}
	ret.registerMetrics(env.MetricsRegistry())
	return ret
}

// NewIterator builds selected parent chain of the tip and returns lazy iterator over the total order
func (o *TotalOrdering) NewIterator(tip ledger.Hash) (*Iterator, error) {
	chain, err := selectedParentChain(o.store, tip)
	if err != nil {
		return nil, err
	}
	root := chain[len(chain)-1]
	if !o.genesis.IsNil() && root.Hash() != o.genesis {
		return nil, fmt.Errorf("%w: chain of %s ends at %s", ErrWrongGenesis, tip.StringShort(), root.Hash().StringShort())
	}
	if !root.IsGenesis() {
		return nil, fmt.Errorf("%w: chain of %s ends at non-genesis %s", ErrMalformedDAG, tip.StringShort(), root.String())
	}
	return newIterator(o.store, chain), nil
}

// GetTotalOrder returns all block hashes from genesis to the tip in the total order.
// Returned slice is a copy and may be modified by the caller
func (o *TotalOrdering) GetTotalOrder(tip ledger.Hash) ([]ledger.Hash, error) {
	c, err := o.getTotalOrder(tip)
	if err != nil {
		return nil, err
	}
	return append(make([]ledger.Hash, 0, len(c.order)), c.order...), nil
}

func newCachedOrder(order []ledger.Hash) *cachedOrder {
	ret := &cachedOrder{
		order: order,
		index: make(map[ledger.Hash]int, len(order)),
	}
	for i, h := range order {
		ret.index[h] = i
	}
	return ret
}

func (c *cachedOrder) position(h ledger.Hash) (int, bool) {
	ret, found := c.index[h]
	return ret, found
}

func (o *TotalOrdering) getTotalOrder(tip ledger.Hash) (*cachedOrder, error) {
	key := cacheKey{genesis: o.genesis, tip: tip}

	o.cacheMutex.RLock()
	cached, found := o.cache.Get(key)
	generation := o.cacheGeneration
	o.cacheMutex.RUnlock()

	if found {
		o.metrics.cacheHits.Inc()
		return cached.(*cachedOrder), nil
	}
	o.metrics.cacheMisses.Inc()

	start := time.Now()
	it, err := o.NewIterator(tip)
	if err != nil {
		return nil, err
	}
	order, err := it.Collect()
	if err != nil {
		return nil, err
	}
	o.Tracef(TraceTag, "computed total order of %s: %d blocks in %v", tip.StringShort, len(order), time.Since(start))

	ret := newCachedOrder(order)
	o.cacheMutex.Lock()
	if generation == o.cacheGeneration {
		o.cache.Add(key, ret)
		o.updateCacheGauge()
	}
	o.cacheMutex.Unlock()
	return ret, nil
}

// GetOrderedBlocks returns the slice of the total order of 'to' between 'from' (exclusive) and
// 'to' (inclusive). The mergeset of 'to' follows it in the order and is not included.
// Nil 'from' means from the beginning. 'from' ordered after 'to' gives an empty range
func (o *TotalOrdering) GetOrderedBlocks(from, to ledger.Hash) ([]ledger.Hash, error) {
	c, err := o.getTotalOrder(to)
	if err != nil {
		return nil, err
	}
	toIdx, found := c.position(to)
	util.Assertf(found, "GetOrderedBlocks: tip %s is not in its own order", to.StringShort)
	end := toIdx + 1

	start := 0
	if !from.IsNil() {
		idx, found := c.position(from)
		if !found {
			return nil, fmt.Errorf("%w: %s is not in the past of %s", ErrNotInOrder, from.StringShort(), to.StringShort())
		}
		start = min(idx+1, end)
	}
	return append(make([]ledger.Hash, 0, end-start), c.order[start:end]...), nil
}

// GetTransactionOrder concatenates transactions of the ordered blocks in the block order
func (o *TotalOrdering) GetTransactionOrder(from, to ledger.Hash) ([]TxRef, error) {
	blocks, err := o.GetOrderedBlocks(from, to)
	if err != nil {
		return nil, err
	}
	ret := make([]TxRef, 0)
	for _, h := range blocks {
		block, err := o.store.GetBlock(h)
		if err != nil {
			return nil, err
		}
		for i, tx := range block.Transactions {
			ret = append(ret, TxRef{
				BlockHash: h,
				TxIndex:   i,
				TxHash:    tx.Hash(),
			})
		}
	}
	return ret, nil
}

// InvalidateCache drops all cached orders
func (o *TotalOrdering) InvalidateCache() {
	o.cacheMutex.Lock()
	defer o.cacheMutex.Unlock()

	o.cache.Purge()
	o.cacheGeneration++
	o.updateCacheGauge()
}

// InvalidateBlock drops every cached order which has the block in the key or in the value
func (o *TotalOrdering) InvalidateBlock(hash ledger.Hash) {
	o.cacheMutex.Lock()
	defer o.cacheMutex.Unlock()

	removed := 0
	for _, k := range o.cache.Keys() {
		key := k.(cacheKey)
		if key.genesis == hash || key.tip == hash {
			o.cache.Remove(k)
			removed++
			continue
		}
		v, ok := o.cache.Peek(k)
		if !ok {
			continue
		}
		if _, found := v.(*cachedOrder).position(hash); found {
			o.cache.Remove(k)
			removed++
		}
	}
	if removed > 0 {
		o.cacheGeneration++
		o.Tracef(TraceTag, "%d cached orders invalidated by %s", removed, hash.StringShort)
	}
	o.updateCacheGauge()
}

func (o *TotalOrdering) CacheLen() int {
	return o.cache.Len()
}
