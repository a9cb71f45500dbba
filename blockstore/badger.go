package blockstore

import (
	"encoding/binary"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/lunfardo314/dagcore/global"
	"github.com/lunfardo314/dagcore/ledger"
	"github.com/pkg/errors"
)

// BadgerStore persists the DAG in a badger database. Key layout:
// 'b'|hash -> block bytes
// 'h'|height(8)  -> hash of the first block stored at the height
// 'f'|hash -> finalized marker
// 'l' -> latest height
type BadgerStore struct {
	db *badger.DB
	global.Logging
}

var _ Store = &BadgerStore{}

const (
	prefixBlock     = byte('b')
	prefixHeight    = byte('h')
	prefixFinalized = byte('f')
	keyLatestHeight = byte('l')

	maxConflictRetries = 32
)

// OpenBadgerStore opens or creates database in dir. Empty dir means in-memory database
func OpenBadgerStore(dir string, log global.Logging) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{log})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open badger database '%s'", dir)
	}
	return &BadgerStore{db: db, Logging: log}, nil
}

func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// RunValueLogGC one round of badger value log garbage collection
func (s *BadgerStore) RunValueLogGC(discardRatio float64) error {
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrRejected) {
		return nil
	}
	return err
}

func blockKey(hash ledger.Hash) []byte {
	return append([]byte{prefixBlock}, hash[:]...)
}

func finalizedKey(hash ledger.Hash) []byte {
	return append([]byte{prefixFinalized}, hash[:]...)
}

func heightKey(height uint64) []byte {
	ret := make([]byte, 9)
	ret[0] = prefixHeight
	binary.BigEndian.PutUint64(ret[1:], height)
	return ret
}

func (s *BadgerStore) GetBlock(hash ledger.Hash) (*ledger.Block, error) {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(blockKey(hash))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, blockNotFound(hash)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "GetBlock %s", hash.StringShort())
	}
	ret, err := ledger.BlockFromBytes(data)
	if err != nil {
		return nil, errors.Wrapf(err, "GetBlock %s", hash.StringShort())
	}
	return ret, nil
}

func (s *BadgerStore) HasBlock(hash ledger.Hash) (bool, error) {
	return s.hasKey(blockKey(hash))
}

func (s *BadgerStore) hasKey(key []byte) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *BadgerStore) StoreBlock(block *ledger.Block) error {
	h := block.Hash()
	blockBytes := block.Bytes()
	return s.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(blockKey(h)); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		if err := txn.Set(blockKey(h), blockBytes); err != nil {
			return err
		}
		hk := heightKey(block.Height)
		if _, err := txn.Get(hk); errors.Is(err, badger.ErrKeyNotFound) {
			if err = txn.Set(hk, h[:]); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		latest, err := getLatestHeight(txn)
		if err != nil {
			return err
		}
		if block.Height > latest {
			var u64 [8]byte
			binary.BigEndian.PutUint64(u64[:], block.Height)
			return txn.Set([]byte{keyLatestHeight}, u64[:])
		}
		return nil
	})
}

// updateWithRetry repeats update on transaction conflicts with concurrent writers
func (s *BadgerStore) updateWithRetry(fun func(txn *badger.Txn) error) (err error) {
	for i := 0; i < maxConflictRetries; i++ {
		if err = s.db.Update(fun); !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.Tracef(global.TraceTagSync, "badger transaction conflict, retry #%d", i+1)
		time.Sleep(time.Duration(i+1) * time.Millisecond)
	}
	return err
}

func getLatestHeight(txn *badger.Txn) (uint64, error) {
	item, err := txn.Get([]byte{keyLatestHeight})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	var ret uint64
	err = item.Value(func(val []byte) error {
		if len(val) != 8 {
			return errors.New("wrong latest height record")
		}
		ret = binary.BigEndian.Uint64(val)
		return nil
	})
	return ret, err
}

func (s *BadgerStore) GetBlockByHeight(height uint64) (ret ledger.Hash, found bool, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(heightKey(height))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			ret, err = ledger.HashFromBytes(val)
			found = err == nil
			return err
		})
	})
	return
}

func (s *BadgerStore) GetLatestHeight() (ret uint64, err error) {
	err = s.db.View(func(txn *badger.Txn) error {
		ret, err = getLatestHeight(txn)
		return err
	})
	return
}

func (s *BadgerStore) IsFinalized(hash ledger.Hash) bool {
	ret, err := s.hasKey(finalizedKey(hash))
	if err != nil {
		s.Log().Errorf("IsFinalized %s: %v", hash.StringShort(), err)
		return false
	}
	return ret
}

func (s *BadgerStore) FinalizeBlock(hash ledger.Hash) error {
	return s.updateWithRetry(func(txn *badger.Txn) error {
		if _, err := txn.Get(blockKey(hash)); errors.Is(err, badger.ErrKeyNotFound) {
			return blockNotFound(hash)
		} else if err != nil {
			return err
		}
		return txn.Set(finalizedKey(hash), []byte{1})
	})
}

func (s *BadgerStore) ForEachBlock(fun func(block *ledger.Block) bool) error {
	blocks := make([]*ledger.Block, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{prefixBlock}
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			data, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			block, err := ledger.BlockFromBytes(data)
			if err != nil {
				return err
			}
			blocks = append(blocks, block)
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, b := range blocks {
		if !fun(b) {
			break
		}
	}
	return nil
}

// badgerLogger adapts zap to badger.Logger
type badgerLogger struct {
	global.Logging
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.Log().Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.Log().Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.Log().Debugf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.Log().Debugf(f, v...) }
