package registry

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"vaultBridge/internal/model"
)

// RouterFactory builds the custodial binding for a new bucket.
type RouterFactory func(pool model.Pool, canonical common.Address) model.RouterBinding

// DeriveRouter returns a factory that derives a deterministic custodial
// address per (pool, canonical asset) and binds it to settler.
func DeriveRouter(settler common.Address) RouterFactory {
	return func(pool model.Pool, canonical common.Address) model.RouterBinding {
		var id [8]byte
		binary.BigEndian.PutUint64(id[:], pool.ID)
		digest := crypto.Keccak256(id[:], canonical.Bytes(), pool.Subaccount.Bytes())
		return model.RouterBinding{
			Address:    common.BytesToAddress(digest[12:]),
			Settler:    settler,
			Subaccount: pool.Subaccount,
		}
	}
}
