// Package blockstore is the content-addressed DAG store: blocks by hash, a per-height index,
// finalized markers and the latest known height.
// Implementations are safe for concurrent readers and writers
package blockstore

import (
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/pkg/errors"
)

var ErrBlockNotFound = errors.New("block not found")

type (
	Reader interface {
		// GetBlock returns ErrBlockNotFound if the block is absent
		GetBlock(hash ledger.Hash) (*ledger.Block, error)
		HasBlock(hash ledger.Hash) (bool, error)
		// GetBlockByHeight returns the first block stored at the height
		GetBlockByHeight(height uint64) (ledger.Hash, bool, error)
		GetLatestHeight() (uint64, error)
		IsFinalized(hash ledger.Hash) bool
	}

	Store interface {
		Reader
		StoreBlock(block *ledger.Block) error
		// FinalizeBlock marks stored block as finalized. Idempotent
		FinalizeBlock(hash ledger.Hash) error
	}

	// Iterable is implemented by stores which can enumerate all blocks
	Iterable interface {
		Reader
		ForEachBlock(fun func(block *ledger.Block) bool) error
	}
)

func blockNotFound(hash ledger.Hash) error {
	return errors.Wrapf(ErrBlockNotFound, "%s", hash.String())
}

// IsBlockNotFound checks if error is or wraps ErrBlockNotFound
func IsBlockNotFound(err error) bool {
	return errors.Is(err, ErrBlockNotFound)
}
