package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Request is the decoded payload of a queue entry. Perp kinds carry one
// leg, spot kinds carry two legs ordered base, quote. Tokens hold the exact
// addresses the user supplied, not their canonical ids.
type Request struct {
	PoolID    uint64
	Tokens    []common.Address
	Amounts   []*big.Int
	Sender    common.Address
	Recipient common.Address
}

// Legs returns the number of token legs carried by a kind.
func (k EntryKind) Legs() int {
	if k.PoolType() == PoolTypeSpot {
		return 2
	}
	return 1
}
