// Package node wires the DAG core into a running node: the DAG store, blue score oracle,
// total ordering, finality tracker and sync
package node

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/finality"
	"github.com/lunfardo314/dagcore/core/ghostdag"
	"github.com/lunfardo314/dagcore/core/ordering"
	"github.com/lunfardo314/dagcore/core/syncmgr"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/metrics"
	"github.com/lunfardo314/dagcore/util"
)

type (
	// Store is what the node needs from the DAG store
	Store interface {
		blockstore.Store
		ForEachBlock(fun func(block *ledger.Block) bool) error
	}

	DAGNode struct {
		*global.Global
		cfg         Config
		store       Store
		badgerStore *blockstore.BadgerStore
		oracle      *ghostdag.Validator
		ordering    *ordering.TotalOrdering
		finality    *finality.Tracker
		syncMetrics *syncmgr.Metrics
		// the manager is single consumer
		syncMutex sync.Mutex
		syncMgr   *syncmgr.Manager
		parallel  *syncmgr.ParallelCoordinator
		genesis   ledger.Hash
		started   time.Time
		stopOnce  sync.Once
	}
)

func New(env *global.Global, cfg Config) *DAGNode {
	return &DAGNode{
		Global:  env,
		cfg:     cfg,
		started: time.Now(),
	}
}

// Start opens the store and starts all components. Store is opened from the config if nil
func (p *DAGNode) Start(store Store) error {
	p.Log().Info(global.BannerString())

	err := util.CatchPanicOrError(func() error {
		if err := p.initStore(store); err != nil {
			return err
		}
		if err := p.initGenesis(); err != nil {
			return err
		}
		if err := p.initOracle(); err != nil {
			return err
		}
		p.initComponents()
		p.startFinalityLoop()
		p.startMemStatsLogging()
		if p.cfg.MetricsEnable {
			metrics.Start(p, p.cfg.MetricsPort)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("error on startup: %w", err)
	}
	p.Log().Infof("DAG node has been started successfully")
	p.Log().Debug("running in debug mode")
	return nil
}

func (p *DAGNode) initStore(store Store) error {
	if store != nil {
		p.store = store
		return nil
	}
	if p.cfg.DBDir == "" {
		p.Log().Infof("DAG store is in memory")
		p.store = blockstore.NewMemoryStore()
		return nil
	}
	var err error
	if p.badgerStore, err = blockstore.OpenBadgerStore(p.cfg.DBDir, p); err != nil {
		return err
	}
	p.store = p.badgerStore
	p.Log().Infof("opened DAG database '%s'", p.cfg.DBDir)

	p.RepeatInBackground("badger_DB_GC_loop", p.cfg.DBGCPeriod, func() bool {
		p.databaseGC()
		return true
	})
	return nil
}

func (p *DAGNode) databaseGC() {
	start := time.Now()
	err := p.badgerStore.RunValueLogGC(0.5)
	p.Log().Debugf("badger DB GC (%v): %v", time.Since(start), err)
}

// initGenesis checks configured genesis against the store or takes the block at height 0
func (p *DAGNode) initGenesis() error {
	genesisInStore, found, err := p.store.GetBlockByHeight(0)
	if err != nil {
		return err
	}
	switch {
	case !p.cfg.Genesis.IsNil():
		p.genesis = p.cfg.Genesis
		if found && genesisInStore != p.genesis {
			has, err := p.store.HasBlock(p.genesis)
			if err != nil {
				return err
			}
			if !has {
				p.Log().Warnf("configured genesis %s is not in the store, block at height 0 is %s",
					p.genesis.StringShort(), genesisInStore.StringShort())
			}
		}
	case found:
		p.genesis = genesisInStore
	default:
		p.Log().Warnf("genesis is not known. Any genesis will be accepted by total ordering")
	}
	p.Log().Infof("genesis: %s", p.genesis.String())
	return nil
}

// initOracle restores the selected tip from the blocks in the store
func (p *DAGNode) initOracle() error {
	p.oracle = ghostdag.NewValidator(p, p.store)
	start := time.Now()
	err := p.store.ForEachBlock(func(block *ledger.Block) bool {
		if err := p.oracle.AddBlock(block); err != nil {
			p.Log().Warnf("stored block %s rejected by oracle: %v", block.Hash().StringShort(), err)
		}
		return true
	})
	if err != nil {
		return err
	}
	if tip, ok := p.oracle.SelectedTip(); ok {
		p.Log().Infof("loaded %s blocks in %v. Selected tip: %s", util.Th(p.oracle.NumBlocks()), time.Since(start), tip.String())
	}
	return nil
}

func (p *DAGNode) initComponents() {
	p.ordering = ordering.New(p, p.store, p.genesis, p.cfg.Ordering)
	p.finality = finality.New(p, p.store, p.cfg.Finality)
	p.syncMetrics = syncmgr.NewMetrics(p.MetricsRegistry())

	p.syncMgr = syncmgr.NewManager(p, p.store, p.oracle, p.cfg.Sync, p.syncMetrics)
	p.syncMgr.OnBlockStored(p.onBlockStored)

	p.parallel = syncmgr.NewParallelCoordinator(p, p.store, p.oracle, p.cfg.Sync, p.syncMetrics, nil)
	p.parallel.OnBlockStored(p.onBlockStored)
}

// onBlockStored drops cached orders which contain the new block.
// Orders of existing tips cannot contain it, so normally nothing is evicted
func (p *DAGNode) onBlockStored(block *ledger.Block) {
	p.ordering.InvalidateBlock(block.Hash())
}

func (p *DAGNode) startFinalityLoop() {
	p.RepeatInBackground("finality_loop", p.cfg.Finality.CheckPeriod, func() bool {
		p.AdvanceFinality()
		return true
	})
}

// AdvanceFinality advances finality to the selected tip of the oracle
func (p *DAGNode) AdvanceFinality() []ledger.Hash {
	tip, ok := p.oracle.SelectedTip()
	if !ok {
		return nil
	}
	finalized, err := p.finality.UpdateFinality(tip.Hash(), tip.Height)
	if err != nil {
		p.Log().Errorf("failed to update finality with tip %s: %v", tip.Hash().StringShort(), err)
		return nil
	}
	return finalized
}

func (p *DAGNode) startMemStatsLogging() {
	if p.cfg.MemStatsPeriod <= 0 {
		return
	}
	p.RepeatInBackground("memstats_loop", p.cfg.MemStatsPeriod, func() bool {
		var memStats runtime.MemStats
		runtime.ReadMemStats(&memStats)
		p.Log().Infof("uptime: %v, allocated memory: %.1f MB, goroutines: %d, GC counter: %d, finalized height: %d, pending sync: %d",
			time.Since(p.started).Round(time.Second),
			float32(memStats.Alloc*10/(1024*1024))/10,
			runtime.NumGoroutine(),
			memStats.NumGC,
			p.finality.FinalizedHeight(),
			p.PendingBlocks(),
		)
		return true
	})
}

// SubmitBlocks ingests blocks delivered by the network layer
func (p *DAGNode) SubmitBlocks(ctx context.Context, blocks []*ledger.Block) syncmgr.Result {
	p.syncMutex.Lock()
	defer p.syncMutex.Unlock()

	return p.syncMgr.SyncBlocks(ctx, blocks)
}

func (p *DAGNode) PendingBlocks() int {
	p.syncMutex.Lock()
	defer p.syncMutex.Unlock()

	return p.syncMgr.PendingCount()
}

func (p *DAGNode) SyncFromPeers(ctx context.Context, peerBlocks map[string][]*ledger.Block) syncmgr.Result {
	return p.parallel.SyncFromPeers(ctx, peerBlocks)
}

func (p *DAGNode) SyncRange(ctx context.Context, start, end uint64) syncmgr.Result {
	return p.parallel.SyncRangeParallel(ctx, start, end)
}

func (p *DAGNode) Store() Store {
	return p.store
}

func (p *DAGNode) Genesis() ledger.Hash {
	return p.genesis
}

func (p *DAGNode) Ordering() *ordering.TotalOrdering {
	return p.ordering
}

func (p *DAGNode) Finality() *finality.Tracker {
	return p.finality
}

func (p *DAGNode) Oracle() *ghostdag.Validator {
	return p.oracle
}

func (p *DAGNode) UpTime() time.Duration {
	return time.Since(p.started)
}

// Stop cancels background loops, waits for them and closes the database
func (p *DAGNode) Stop() {
	p.stopOnce.Do(func() {
		p.Log().Info("stopping the node..")
		p.Global.Stop()
		p.Global.Wait()
		if p.badgerStore != nil {
			if err := p.badgerStore.Close(); err == nil {
				p.Log().Infof("DAG database has been closed")
			} else {
				p.Log().Warnf("error while closing DAG database: %v", err)
			}
		}
		p.Log().Info("node stopped")
	})
}
