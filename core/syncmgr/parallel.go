package syncmgr

import (
	"context"
	"sync"

	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/ghostdag"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util/workerpool"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

type (
	// BlockSource provides blocks by height for range sync
	BlockSource interface {
		GetBlockByHeight(height uint64) (ledger.Hash, bool, error)
		GetBlock(hash ledger.Hash) (*ledger.Block, error)
	}

	// ParallelCoordinator fans out work to independent managers, one per task,
	// and merges their results into the shared accumulator
	ParallelCoordinator struct {
		global.Logging
		env           global.Logging
		store         blockstore.Store
		oracle        ghostdag.Oracle
		source        BlockSource
		cfg           Config
		metrics       *Metrics
		onBlockStored []func(block *ledger.Block)

		resultMutex sync.Mutex
		result      Result
	}
)

// NewParallelCoordinator creates coordinator. If source is nil, ranges are read from the store
func NewParallelCoordinator(env global.Logging, store blockstore.Store, oracle ghostdag.Oracle, cfg Config, metrics *Metrics, source BlockSource) *ParallelCoordinator {
	if source == nil {
		source = store
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &ParallelCoordinator{
		Logging: global.MakeSubLogger(env, "[psync]"),
		env:     env,
		store:   store,
		oracle:  oracle,
		source:  source,
		cfg:     cfg.fixed(),
		metrics: metrics,
	}
}

// OnBlockStored callback is passed to every worker's manager. Must be thread safe
func (p *ParallelCoordinator) OnBlockStored(fun func(block *ledger.Block)) {
	p.onBlockStored = append(p.onBlockStored, fun)
}

func (p *ParallelCoordinator) Workers() int {
	return p.cfg.Workers
}

func (p *ParallelCoordinator) newManager() *Manager {
	ret := NewManager(p.env, p.store, p.oracle, p.cfg, p.metrics)
	for _, fun := range p.onBlockStored {
		ret.OnBlockStored(fun)
	}
	return ret
}

func (p *ParallelCoordinator) newPool() *workerpool.WorkerPool {
	return workerpool.NewWorkerPool(p.cfg.Workers, func(name string, err error) {
		p.Log().Errorf("sync task '%s' failed: %v", name, err)
	})
}

func (p *ParallelCoordinator) resetResult() {
	p.resultMutex.Lock()
	defer p.resultMutex.Unlock()
	p.result = Result{}
}

func (p *ParallelCoordinator) merge(r Result) {
	p.resultMutex.Lock()
	defer p.resultMutex.Unlock()
	p.result.Add(r)
}

func (p *ParallelCoordinator) takeResult() Result {
	p.resultMutex.Lock()
	defer p.resultMutex.Unlock()
	return p.result
}

type heightRange struct {
	start, end uint64
}

// partition splits [start, end) into at most n contiguous non-empty sub-ranges
func partition(start, end uint64, n int) []heightRange {
	if end <= start || n < 1 {
		return nil
	}
	per := (end - start + uint64(n) - 1) / uint64(n)
	ret := make([]heightRange, 0, n)
	for s := start; s < end; s += per {
		ret = append(ret, heightRange{start: s, end: min(s+per, end)})
	}
	return ret
}

// SyncRangeParallel syncs blocks at heights [start, end) read from the block source.
// Every worker feeds blocks of its sub-range one at a time to its own manager.
// Coordinator runs one operation at a time
func (p *ParallelCoordinator) SyncRangeParallel(ctx context.Context, start, end uint64) Result {
	p.resetResult()
	pool := p.newPool()
	for _, r := range partition(start, end, p.cfg.Workers) {
		r := r
		pool.Work("range", func() {
			p.syncRange(ctx, r)
		})
	}
	pool.Wait()

	ret := p.takeResult()
	p.Log().Infof("range sync [%d, %d) with %d workers: %s", start, end, p.cfg.Workers, ret.String())
	return ret
}

func (p *ParallelCoordinator) syncRange(ctx context.Context, r heightRange) {
	mgr := p.newManager()
	for h := r.start; h < r.end; h++ {
		if ctx.Err() != nil {
			return
		}
		hash, found, err := p.source.GetBlockByHeight(h)
		if err != nil {
			p.Log().Errorf("failed to read height %d: %v", h, err)
			p.merge(Result{Errors: 1})
			continue
		}
		if !found {
			continue
		}
		block, err := p.source.GetBlock(hash)
		if err != nil {
			p.Log().Errorf("failed to read block %s at height %d: %v", hash.StringShort(), h, err)
			p.merge(Result{Errors: 1})
			continue
		}
		p.merge(mgr.SyncBlocks(ctx, []*ledger.Block{block}))
	}
	if pending := mgr.PendingCount(); pending > 0 {
		p.Log().Warnf("range [%d, %d): %d blocks left with missing parents", r.start, r.end, pending)
	}
}

// SyncFromPeers runs one task per peer, each with its own manager over the peer's blocks
func (p *ParallelCoordinator) SyncFromPeers(ctx context.Context, peerBlocks map[string][]*ledger.Block) Result {
	p.resetResult()
	pool := p.newPool()
	peers := maps.Keys(peerBlocks)
	slices.Sort(peers)
	for _, peerID := range peers {
		peerID := peerID
		blocks := peerBlocks[peerID]
		pool.Work(peerID, func() {
			res := p.newManager().SyncBlocks(ctx, blocks)
			p.Tracef(TraceTag, "peer %s: %s", peerID, res.String)
			p.merge(res)
		})
	}
	pool.Wait()

	ret := p.takeResult()
	p.Log().Infof("sync from %d peers: %s", len(peers), ret.String())
	return ret
}
