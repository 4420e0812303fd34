package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// PoolType selects the venue product a pool trades on.
type PoolType uint8

const (
	PoolTypePerp PoolType = iota + 1
	PoolTypeSpot
)

func (t PoolType) String() string {
	switch t {
	case PoolTypePerp:
		return "perp"
	case PoolTypeSpot:
		return "spot"
	default:
		return fmt.Sprintf("pool_type(%d)", uint8(t))
	}
}

// ParsePoolType parses "perp" or "spot".
func ParsePoolType(input string) (PoolType, error) {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "perp":
		return PoolTypePerp, nil
	case "spot":
		return PoolTypeSpot, nil
	default:
		return 0, fmt.Errorf("unsupported pool type: %s", input)
	}
}

func (t PoolType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

func (t *PoolType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParsePoolType(s)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Pool is a named collection of asset ledgers bound to one venue subaccount.
type Pool struct {
	ID         uint64      `json:"id"`
	Type       PoolType    `json:"type"`
	Subaccount common.Hash `json:"subaccount"`
}

// RouterBinding is the custodial identity for one pool-token bucket.
// Settler is the only identity allowed to confirm entries for the bucket.
type RouterBinding struct {
	Address    common.Address `json:"address"`
	Settler    common.Address `json:"settler"`
	Subaccount common.Hash    `json:"subaccount"`
}

// PoolTokenKey addresses a ledger bucket.
type PoolTokenKey struct {
	PoolID    uint64
	Canonical common.Address
}

// PoolToken is the per-(pool, canonical asset) bucket shared by every alias.
type PoolToken struct {
	PoolID       uint64         `json:"pool_id"`
	Canonical    common.Address `json:"canonical"`
	Router       RouterBinding  `json:"router"`
	ActiveAmount *big.Int       `json:"active_amount"`
	Hardcap      *big.Int       `json:"hardcap"`
	IsActive     bool           `json:"is_active"`
}

func (pt PoolToken) Key() PoolTokenKey {
	return PoolTokenKey{PoolID: pt.PoolID, Canonical: pt.Canonical}
}

// GateKey addresses an alias-specific deposit gate.
type GateKey struct {
	PoolID uint64
	Token  common.Address
}

// TokenGate overrides the bucket hardcap for deposits made through one alias.
type TokenGate struct {
	PoolID  uint64         `json:"pool_id"`
	Token   common.Address `json:"token"`
	Hardcap *big.Int       `json:"hardcap"`
}

func (g TokenGate) Key() GateKey {
	return GateKey{PoolID: g.PoolID, Token: g.Token}
}

// Alias maps an asset address to the canonical address of its ledger bucket.
type Alias struct {
	Token     common.Address `json:"token"`
	Canonical common.Address `json:"canonical"`
}

// PoolTokenView is the read view of a bucket as seen through one address.
type PoolTokenView struct {
	PoolID       uint64         `json:"pool_id"`
	Token        common.Address `json:"token"`
	Canonical    common.Address `json:"canonical"`
	Router       RouterBinding  `json:"router"`
	ActiveAmount *big.Int       `json:"active_amount"`
	Hardcap      *big.Int       `json:"hardcap"`
	IsActive     bool           `json:"is_active"`
}
