package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
)

// Resolver maps an asset address to its canonical id.
type Resolver interface {
	Resolve(token common.Address) common.Address
}

// Ledger is the per-user balance view over bridge state. Every lookup
// resolves the asset first so aliases share one row.
type Ledger struct {
	state    *model.State
	resolver Resolver
}

func New(state *model.State, resolver Resolver) *Ledger {
	return &Ledger{state: state, resolver: resolver}
}

// Key returns the row key for (pool, token, user) after alias resolution.
func (l *Ledger) Key(poolID uint64, token, user common.Address) model.PositionKey {
	canonical := token
	if l.resolver != nil {
		canonical = l.resolver.Resolve(token)
	}
	return model.PositionKey{PoolID: poolID, Canonical: canonical, User: user}
}

// Position returns the row for key, or a zero row if none exists yet.
func (l *Ledger) Position(key model.PositionKey) model.Position {
	if pos, ok := l.state.Positions[key]; ok {
		return pos
	}
	return model.EmptyPosition(key)
}

// Active returns the confirmed balance of user.
func (l *Ledger) Active(poolID uint64, token, user common.Address) *big.Int {
	return new(big.Int).Set(l.Position(l.Key(poolID, token, user)).Active)
}

// Pending returns the withdrawn-but-unclaimed balance of user.
func (l *Ledger) Pending(poolID uint64, token, user common.Address) *big.Int {
	return new(big.Int).Set(l.Position(l.Key(poolID, token, user)).Pending)
}

// Credit returns pos with amount added to Active.
func Credit(pos model.Position, amount *big.Int) model.Position {
	if amount == nil || amount.Sign() == 0 {
		return pos
	}
	pos.Active = new(big.Int).Add(pos.Active, amount)
	return pos
}

// Debit returns pos with amount removed from Active.
func Debit(pos model.Position, amount *big.Int) (model.Position, error) {
	if amount == nil || amount.Sign() == 0 {
		return pos, nil
	}
	if amount.Cmp(pos.Active) > 0 {
		return pos, fmt.Errorf("debit %s from active %s: %w", amount, pos.Active, model.ErrInsufficientActiveBalance)
	}
	pos.Active = new(big.Int).Sub(pos.Active, amount)
	return pos, nil
}

// AddPending returns pos with amount added to Pending.
func AddPending(pos model.Position, amount *big.Int) model.Position {
	if amount == nil || amount.Sign() == 0 {
		return pos
	}
	pos.Pending = new(big.Int).Add(pos.Pending, amount)
	return pos
}

// SubPending returns pos with amount removed from Pending.
func SubPending(pos model.Position, amount *big.Int) (model.Position, error) {
	if amount == nil || amount.Sign() == 0 {
		return pos, nil
	}
	if amount.Cmp(pos.Pending) > 0 {
		return pos, fmt.Errorf("release %s from pending %s", amount, pos.Pending)
	}
	pos.Pending = new(big.Int).Sub(pos.Pending, amount)
	return pos, nil
}

// NetOfFee returns amount minus fee, floored at zero.
func NetOfFee(amount, fee *big.Int) *big.Int {
	if fee == nil || fee.Sign() <= 0 {
		return new(big.Int).Set(amount)
	}
	if fee.Cmp(amount) >= 0 {
		return new(big.Int)
	}
	return new(big.Int).Sub(amount, fee)
}
