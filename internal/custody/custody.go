package custody

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Custody exposes the funds held by router bindings.
type Custody interface {
	// Available returns the balance of token held by holder.
	Available(ctx context.Context, holder, token common.Address) (*big.Int, error)
	// Transfer moves amount of token from holder to to.
	Transfer(ctx context.Context, holder, token, to common.Address, amount *big.Int) error
}

// Transfer is an outgoing custodial payment.
type Transfer struct {
	Holder   common.Address `json:"holder"`
	Token    common.Address `json:"token"`
	To       common.Address `json:"to"`
	Amount   *big.Int       `json:"amount"`
	Calldata hexutil.Bytes  `json:"calldata,omitempty"`
	QueuedAt string         `json:"queued_at,omitempty"`
	// BalanceBefore is the holder's chain balance read just before the
	// transfer was queued.
	BalanceBefore *big.Int `json:"balance_before,omitempty"`
}
