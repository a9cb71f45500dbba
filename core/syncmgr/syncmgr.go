// Package syncmgr ingests block batches into the DAG store with bounded memory and without
// recursive DAG traversal. Blocks with missing parents are deferred until the parents arrive.
// ParallelCoordinator fans out work to independent managers
package syncmgr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gammazero/deque"
	"github.com/lunfardo314/dagcore/blockstore"
	"github.com/lunfardo314/dagcore/core/ghostdag"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/lunfardo314/dagcore/util/seenset"
	"github.com/lunfardo314/dagcore/util/set"
	"github.com/prometheus/client_golang/prometheus"
)

type (
	Environment interface {
		global.Logging
		MetricsRegistry() *prometheus.Registry
	}

	// Manager is a single-worker ingestion pipeline. Not thread safe: every
	// concurrent worker owns its own instance
	Manager struct {
		global.Logging
		store   blockstore.Store
		oracle  ghostdag.Oracle
		cfg     Config
		metrics *Metrics

		queue              *deque.Deque[queuedBlock]
		seen               *seenset.SeenSet[ledger.Hash]
		currentQueueMemory int
		lastCheckpoint     uint64
		sinceCheckpoint    int
		onBlockStored      []func(block *ledger.Block)
	}

	queuedBlock struct {
		block *ledger.Block
		size  int
	}

	outcome byte
)

const (
	outcomeStored = outcome(iota)
	outcomeSkipped
	outcomeDeferred
	outcomeFailed
)

const TraceTag = global.TraceTagSync

var errInvalidHeader = errors.New("invalid block header")

// size estimation constants
const (
	headerSizeEstimate      = 2*ledger.HashLength + 3*8
	transactionSizeEstimate = 200
)

// EstimateSize rough memory footprint of the block in the queue
func EstimateSize(block *ledger.Block) int {
	return headerSizeEstimate +
		transactionSizeEstimate*len(block.Transactions) +
		ledger.HashLength*len(block.MergeParents) +
		len(block.Payload)
}

// NewManager creates manager. Metrics may be nil, then manager creates its own unregistered metrics
func NewManager(env global.Logging, store blockstore.Store, oracle ghostdag.Oracle, cfg Config, metrics *Metrics) *Manager {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Manager{
		Logging: global.MakeSubLogger(env, "[sync]"),
		store:   store,
		oracle:  oracle,
		cfg:     cfg.fixed(),
		metrics: metrics,
		queue:   new(deque.Deque[queuedBlock]),
		seen:    seenset.New[ledger.Hash](),
	}
}

// OnBlockStored adds callback which is called synchronously after each newly stored block
func (m *Manager) OnBlockStored(fun func(block *ledger.Block)) {
	m.onBlockStored = append(m.onBlockStored, fun)
}

// PendingCount number of blocks waiting in the queue for missing parents
func (m *Manager) PendingCount() int {
	return m.queue.Len()
}

func (m *Manager) QueueMemory() int {
	return m.currentQueueMemory
}

func (m *Manager) LastCheckpoint() uint64 {
	return m.lastCheckpoint
}

func (m *Manager) SeenCount() int {
	return m.seen.Len()
}

// SyncBlocks processes blocks in chunks. Blocks with missing parents stay in the queue and
// are retried in subsequent calls. Cancellation of the context stops processing between blocks
func (m *Manager) SyncBlocks(ctx context.Context, blocks []*ledger.Block) Result {
	var ret Result
	for i := 0; i < len(blocks); i += m.cfg.ChunkSize {
		if ctx.Err() != nil {
			m.Log().Warnf("sync interrupted: %v. %d of %d blocks handled", ctx.Err(), i, len(blocks))
			break
		}
		chunk := blocks[i:min(i+m.cfg.ChunkSize, len(blocks))]
		res := m.processBlockBatch(ctx, chunk)
		ret.Add(res)

		m.sinceCheckpoint += res.Processed
		if m.sinceCheckpoint >= m.cfg.CheckpointInterval {
			m.checkpoint()
		}
		if m.seen.Len() > m.cfg.SeenLimit {
			evicted := m.seen.Trim(m.cfg.SeenTrimTo)
			m.Tracef(TraceTag, "seen-set trimmed by %d entries", evicted)
		}
	}
	m.Tracef(TraceTag, "sync of %d blocks: %s. Pending: %d", len(blocks), ret.String, m.queue.Len())
	return ret
}

func (m *Manager) checkpoint() {
	h, err := m.store.GetLatestHeight()
	if err != nil {
		m.Log().Errorf("failed to read latest height for checkpoint: %v", err)
		return
	}
	m.lastCheckpoint = h
	m.sinceCheckpoint = 0
	m.metrics.checkpoint.Set(float64(h))
	m.Log().Debugf("checkpoint at height %d", h)
}

// processBlockBatch enqueues not yet seen blocks and drains the queue
func (m *Manager) processBlockBatch(ctx context.Context, blocks []*ledger.Block) Result {
	var ret Result
	for _, block := range blocks {
		if m.seen.Seen(block.Hash()) {
			ret.Skipped++
			m.metrics.skipped.Inc()
			continue
		}
		size := EstimateSize(block)
		if m.currentQueueMemory+size > m.cfg.MaxQueueMemory && m.queue.Len() > 0 {
			ret.Add(m.drainQueue(ctx))
			if m.currentQueueMemory+size > m.cfg.MaxQueueMemory {
				m.evictDeferred(size)
			}
		}
		m.enqueue(queuedBlock{block: block, size: size})
	}
	ret.Add(m.drainQueue(ctx))
	return ret
}

func (m *Manager) enqueue(qb queuedBlock) {
	m.queue.PushBack(qb)
	m.currentQueueMemory += qb.size
	m.metrics.queueMemory.Add(float64(qb.size))
	m.metrics.pending.Inc()
}

func (m *Manager) dequeue() queuedBlock {
	qb := m.queue.PopFront()
	m.currentQueueMemory -= qb.size
	m.metrics.queueMemory.Sub(float64(qb.size))
	m.metrics.pending.Dec()
	return qb
}

// drainQueue runs passes over the queue while passes make progress.
// Deferred blocks are put back to the end of the queue
func (m *Manager) drainQueue(ctx context.Context) Result {
	var ret Result
	for m.queue.Len() > 0 {
		stored := 0
		for n := m.queue.Len(); n > 0; n-- {
			if ctx.Err() != nil {
				m.metrics.countResult(ret)
				return ret
			}
			qb := m.dequeue()
			switch m.processSingleBlock(qb.block) {
			case outcomeStored:
				ret.Processed++
				stored++
			case outcomeSkipped:
				ret.Skipped++
			case outcomeFailed:
				ret.Errors++
			case outcomeDeferred:
				m.enqueue(qb)
			}
		}
		if stored == 0 {
			// only blocks with missing parents remain
			break
		}
	}
	m.metrics.countResult(ret)
	return ret
}

// evictDeferred drops oldest deferred blocks until the new block fits into the budget.
// Evicted blocks are forgotten by the seen-set, so they are accepted again when re-delivered
func (m *Manager) evictDeferred(size int) {
	evicted := 0
	for m.queue.Len() > 0 && m.currentQueueMemory+size > m.cfg.MaxQueueMemory {
		qb := m.dequeue()
		m.seen.Forget(qb.block.Hash())
		evicted++
	}
	if evicted > 0 {
		m.metrics.evicted.Add(float64(evicted))
		m.Log().Warnf("%d blocks with missing parents evicted from the sync queue. Queue memory: %d, budget: %d",
			evicted, m.currentQueueMemory, m.cfg.MaxQueueMemory)
	}
}

// processSingleBlock stores the block if all its parents are known
func (m *Manager) processSingleBlock(block *ledger.Block) outcome {
	hash := block.Hash()
	has, err := m.store.HasBlock(hash)
	if err != nil {
		m.Log().Errorf("failed to check block %s: %v", hash.StringShort(), err)
		return outcomeFailed
	}
	if has {
		return outcomeSkipped
	}
	if err = m.validateHeader(block); err != nil {
		m.Log().Debugf("skipped block: %v", err)
		return outcomeSkipped
	}

	missing, err := m.missingParents(block)
	if err != nil {
		m.Log().Errorf("failed to check parents of %s: %v", hash.StringShort(), err)
		return outcomeFailed
	}
	if len(missing) > 0 {
		m.Tracef(TraceTag, "deferred %s: missing %d parents", hash.StringShort, len(missing))
		return outcomeDeferred
	}

	ancestry := m.estimateAncestry(block)
	m.Tracef(TraceTag, "block %s: ancestry estimate %d, blue score %d", hash.StringShort, ancestry, block.BlueScore)

	if err = m.store.StoreBlock(block); err != nil {
		m.Log().Errorf("failed to store block %s: %v", hash.StringShort(), err)
		return outcomeFailed
	}
	// the block is in the store from now on, whatever the oracle says
	for _, fun := range m.onBlockStored {
		fun(block)
	}
	if err = m.oracle.AddBlock(block); err != nil {
		m.Log().Errorf("oracle rejected block %s: %v", hash.StringShort(), err)
		return outcomeFailed
	}
	return outcomeStored
}

func (m *Manager) validateHeader(block *ledger.Block) error {
	if block.Height == 0 {
		if !block.SelectedParent.IsNil() || len(block.MergeParents) > 0 {
			return fmt.Errorf("%w: genesis %s has parents", errInvalidHeader, block.Hash().StringShort())
		}
	} else if block.SelectedParent.IsNil() {
		return fmt.Errorf("%w: non-genesis %s has no selected parent", errInvalidHeader, block.Hash().StringShort())
	}
	maxTimestamp := uint64(time.Now().Add(m.cfg.MaxFutureDrift).Unix())
	if block.Timestamp > maxTimestamp {
		return fmt.Errorf("%w: %s has timestamp %d too far in the future", errInvalidHeader, block.Hash().StringShort(), block.Timestamp)
	}
	return nil
}

func (m *Manager) missingParents(block *ledger.Block) ([]ledger.Hash, error) {
	ret := make([]ledger.Hash, 0)
	for _, h := range block.Parents() {
		has, err := m.store.HasBlock(h)
		if err != nil {
			return nil, err
		}
		if !has {
			ret = append(ret, h)
		}
	}
	return ret, nil
}

// estimateAncestry counts distinct ancestors reachable within MaxAncestryDepth levels.
// Breadth-first with explicit frontier, never recursive
func (m *Manager) estimateAncestry(block *ledger.Block) int {
	visited := set.New[ledger.Hash]()
	frontier := block.Parents()
	for depth := 0; depth < m.cfg.MaxAncestryDepth && len(frontier) > 0; depth++ {
		next := make([]ledger.Hash, 0, len(frontier))
		for _, h := range frontier {
			if visited.Contains(h) {
				continue
			}
			visited.Insert(h)
			b, err := m.store.GetBlock(h)
			if err != nil {
				continue
			}
			next = append(next, b.Parents()...)
		}
		frontier = next
	}
	return len(visited)
}
