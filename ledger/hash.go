package ledger

import (
	"bytes"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"
)

const HashLength = 32

// Hash identifies blocks and transactions. All-0 hash is the 'no parent' value of the genesis
type Hash [HashLength]byte

var NilHash = Hash{}

func HashData(data ...[]byte) Hash {
	h, _ := blake2b.New256(nil)
	for _, d := range data {
		_, _ = h.Write(d)
	}
	var ret Hash
	copy(ret[:], h.Sum(nil))
	return ret
}

func HashFromBytes(data []byte) (ret Hash, err error) {
	if len(data) != HashLength {
		return NilHash, fmt.Errorf("HashFromBytes: wrong data length %d", len(data))
	}
	copy(ret[:], data)
	return
}

func HashFromHexString(s string) (Hash, error) {
	data, err := hex.DecodeString(s)
	if err != nil {
		return NilHash, fmt.Errorf("HashFromHexString: %w", err)
	}
	return HashFromBytes(data)
}

func (h Hash) IsNil() bool {
	return h == NilHash
}

func (h Hash) Bytes() []byte {
	return h[:]
}

func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// StringShort first 6 bytes in hex. For logging only
func (h Hash) StringShort() string {
	return hex.EncodeToString(h[:6])
}

// Less lexicographical order of hashes. The tie-break of the total order
func (h Hash) Less(h1 Hash) bool {
	return bytes.Compare(h[:], h1[:]) < 0
}

func HashesShort(hashes []Hash) []string {
	ret := make([]string, len(hashes))
	for i := range hashes {
		ret[i] = hashes[i].StringShort()
	}
	return ret
}
