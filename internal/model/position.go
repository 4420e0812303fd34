package model

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// PositionKey addresses a user ledger row.
type PositionKey struct {
	PoolID    uint64
	Canonical common.Address
	User      common.Address
}

// Position holds a user's confirmed and withdrawn-but-unclaimed balances.
type Position struct {
	PoolID    uint64         `json:"pool_id"`
	Canonical common.Address `json:"canonical"`
	User      common.Address `json:"user"`
	Active    *big.Int       `json:"active"`
	Pending   *big.Int       `json:"pending"`
}

func (p Position) Key() PositionKey {
	return PositionKey{PoolID: p.PoolID, Canonical: p.Canonical, User: p.User}
}

// EmptyPosition returns the zero row for a key.
func EmptyPosition(key PositionKey) Position {
	return Position{
		PoolID:    key.PoolID,
		Canonical: key.Canonical,
		User:      key.User,
		Active:    new(big.Int),
		Pending:   new(big.Int),
	}
}
