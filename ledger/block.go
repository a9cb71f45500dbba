package ledger

import (
	"encoding/binary"
	"fmt"
)

type (
	// Transaction is opaque for the DAG core. Only its hash is used for the execution order
	Transaction struct {
		Data []byte
		hash Hash
	}

	// Block is immutable once constructed by NewBlock or parsed from bytes.
	// Hash is computed at construction time and cached
	Block struct {
		Height         uint64
		BlueScore      uint64
		SelectedParent Hash
		MergeParents   []Hash
		Timestamp      uint64
		Transactions   []*Transaction
		// Payload is an optional embedded payload, not interpreted by the core
		Payload []byte
		hash    Hash
	}

	BlockParams struct {
		Height         uint64
		BlueScore      uint64
		SelectedParent Hash
		MergeParents   []Hash
		Timestamp      uint64
		Transactions   [][]byte
		Payload        []byte
	}
)

func NewTransaction(data []byte) *Transaction {
	return &Transaction{
		Data: data,
		hash: HashData([]byte("tx"), data),
	}
}

func (tx *Transaction) Hash() Hash {
	return tx.hash
}

func NewBlock(par BlockParams) *Block {
	ret := &Block{
		Height:         par.Height,
		BlueScore:      par.BlueScore,
		SelectedParent: par.SelectedParent,
		MergeParents:   make([]Hash, len(par.MergeParents)),
		Timestamp:      par.Timestamp,
		Transactions:   make([]*Transaction, len(par.Transactions)),
		Payload:        par.Payload,
	}
	copy(ret.MergeParents, par.MergeParents)
	for i, data := range par.Transactions {
		ret.Transactions[i] = NewTransaction(data)
	}
	ret.hash = ret.computeHash()
	return ret
}

func (b *Block) computeHash() Hash {
	var u64 [8]byte
	data := make([][]byte, 0, 8+len(b.MergeParents)+len(b.Transactions))
	data = append(data, []byte("block"))
	for _, v := range []uint64{b.Height, b.BlueScore, b.Timestamp} {
		binary.BigEndian.PutUint64(u64[:], v)
		data = append(data, append([]byte{}, u64[:]...))
	}
	data = append(data, b.SelectedParent[:])
	for i := range b.MergeParents {
		data = append(data, b.MergeParents[i][:])
	}
	for _, tx := range b.Transactions {
		h := tx.Hash()
		data = append(data, h[:])
	}
	payloadHash := HashData(b.Payload)
	data = append(data, payloadHash[:])
	return HashData(data...)
}

func (b *Block) Hash() Hash {
	return b.hash
}

// IsGenesis genesis is the only block at height 0 without the selected parent
func (b *Block) IsGenesis() bool {
	return b.Height == 0 && b.SelectedParent.IsNil()
}

// Parents selected parent first, then merge parents in the order of the block. Genesis has none
func (b *Block) Parents() []Hash {
	ret := make([]Hash, 0, 1+len(b.MergeParents))
	if !b.SelectedParent.IsNil() {
		ret = append(ret, b.SelectedParent)
	}
	return append(ret, b.MergeParents...)
}

func (b *Block) String() string {
	return fmt.Sprintf("block %s(h=%d, bs=%d, sp=%s, merge=%v, txs=%d)",
		b.hash.StringShort(), b.Height, b.BlueScore, b.SelectedParent.StringShort(), HashesShort(b.MergeParents), len(b.Transactions))
}
