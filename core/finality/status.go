package finality

import (
	"fmt"

	"github.com/lunfardo314/dagcore/ledger"
)

type (
	StatusCode byte

	// Status of the block with respect to the finalized boundary
	Status struct {
		Code StatusCode
		// Confirmations is an estimate, valid for Unfinalized only
		Confirmations uint64
	}

	// Event is broadcast for each newly finalized block
	Event struct {
		BlockHash      ledger.Hash
		Height         uint64
		FinalizedTip   ledger.Hash
		TotalFinalized uint64
	}
)

const (
	Unfinalized = StatusCode(iota)
	PendingFinalization
	Finalized
)

func (c StatusCode) String() string {
	switch c {
	case Unfinalized:
		return "unfinalized"
	case PendingFinalization:
		return "pending"
	case Finalized:
		return "finalized"
	}
	return "???"
}

func (s Status) String() string {
	if s.Code == Unfinalized {
		return fmt.Sprintf("%s(%d)", s.Code, s.Confirmations)
	}
	return s.Code.String()
}

func (e *Event) String() string {
	return fmt.Sprintf("finalized %s at height %d, total %d", e.BlockHash.StringShort(), e.Height, e.TotalFinalized)
}
