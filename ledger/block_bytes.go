package ledger

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const blockSerializationVersion = byte(0)

// Bytes serializes the block:
// version(1) | height(8) | blue score(8) | timestamp(8) | selected parent(32) |
// num merge parents(2) | merge parents(32 each) | payload len(4) | payload |
// num txs(4) | {tx len(4) | tx data}
func (b *Block) Bytes() []byte {
	var buf bytes.Buffer
	var u16 [2]byte
	var u32 [4]byte
	var u64 [8]byte

	buf.WriteByte(blockSerializationVersion)
	for _, v := range []uint64{b.Height, b.BlueScore, b.Timestamp} {
		binary.BigEndian.PutUint64(u64[:], v)
		buf.Write(u64[:])
	}
	buf.Write(b.SelectedParent[:])
	binary.BigEndian.PutUint16(u16[:], uint16(len(b.MergeParents)))
	buf.Write(u16[:])
	for i := range b.MergeParents {
		buf.Write(b.MergeParents[i][:])
	}
	binary.BigEndian.PutUint32(u32[:], uint32(len(b.Payload)))
	buf.Write(u32[:])
	buf.Write(b.Payload)
	binary.BigEndian.PutUint32(u32[:], uint32(len(b.Transactions)))
	buf.Write(u32[:])
	for _, tx := range b.Transactions {
		binary.BigEndian.PutUint32(u32[:], uint32(len(tx.Data)))
		buf.Write(u32[:])
		buf.Write(tx.Data)
	}
	return buf.Bytes()
}

var errWrongBlockData = errors.New("wrong block data")

func BlockFromBytes(data []byte) (*Block, error) {
	ret, err := parseBlock(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errWrongBlockData, err)
	}
	return ret, nil
}

func parseBlock(r *bytes.Reader) (*Block, error) {
	version, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != blockSerializationVersion {
		return nil, fmt.Errorf("unsupported serialization version %d", version)
	}
	par := BlockParams{}
	for _, p := range []*uint64{&par.Height, &par.BlueScore, &par.Timestamp} {
		if err = binary.Read(r, binary.BigEndian, p); err != nil {
			return nil, err
		}
	}
	if _, err = io.ReadFull(r, par.SelectedParent[:]); err != nil {
		return nil, err
	}
	var numMerge uint16
	if err = binary.Read(r, binary.BigEndian, &numMerge); err != nil {
		return nil, err
	}
	if int(numMerge)*HashLength > r.Len() {
		return nil, fmt.Errorf("too many merge parents: %d", numMerge)
	}
	par.MergeParents = make([]Hash, numMerge)
	for i := range par.MergeParents {
		if _, err = io.ReadFull(r, par.MergeParents[i][:]); err != nil {
			return nil, err
		}
	}
	if par.Payload, err = readSizedBytes(r); err != nil {
		return nil, err
	}
	var numTx uint32
	if err = binary.Read(r, binary.BigEndian, &numTx); err != nil {
		return nil, err
	}
	// each tx takes at least 4 bytes
	if uint64(numTx)*4 > uint64(r.Len()) {
		return nil, fmt.Errorf("too many transactions: %d", numTx)
	}
	par.Transactions = make([][]byte, numTx)
	for i := range par.Transactions {
		if par.Transactions[i], err = readSizedBytes(r); err != nil {
			return nil, err
		}
	}
	if r.Len() != 0 {
		return nil, fmt.Errorf("%d unexpected trailing bytes", r.Len())
	}
	return NewBlock(par), nil
}

func readSizedBytes(r *bytes.Reader) ([]byte, error) {
	var size uint32
	if err := binary.Read(r, binary.BigEndian, &size); err != nil {
		return nil, err
	}
	if size > math.MaxInt32 || int(size) > r.Len() {
		return nil, fmt.Errorf("wrong data size %d", size)
	}
	if size == 0 {
		return nil, nil
	}
	ret := make([]byte, size)
	if _, err := io.ReadFull(r, ret); err != nil {
		return nil, err
	}
	return ret, nil
}
