package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"vaultBridge/internal/model"
)

// RatioSource supplies the quote-per-base reference ratio used while a spot
// pool has no active balance to balance against.
type RatioSource interface {
	ReferenceRatio(ctx context.Context, poolID uint64, base, quote common.Address) (decimal.Decimal, error)
}

// StaticRatio returns the same ratio for every pair.
type StaticRatio struct {
	Ratio decimal.Decimal
}

func (s StaticRatio) ReferenceRatio(context.Context, uint64, common.Address, common.Address) (decimal.Decimal, error) {
	return s.Ratio, nil
}

// BalancedAmount returns the quote amount that keeps a spot deposit of
// baseAmount at the pool's current active ratio.
func (b *Bridge) BalancedAmount(ctx context.Context, poolID uint64, base, quote common.Address, baseAmount *big.Int) (*big.Int, error) {
	b.mu.RLock()
	pool, ok := b.registry.Pool(poolID)
	if !ok {
		b.mu.RUnlock()
		return nil, fmt.Errorf("pool %d: %w", poolID, model.ErrUnknownPool)
	}
	if pool.Type != model.PoolTypeSpot {
		b.mu.RUnlock()
		return nil, fmt.Errorf("pool %d is %s, not spot", poolID, pool.Type)
	}
	baseBucket, okBase := b.registry.Bucket(poolID, base)
	quoteBucket, okQuote := b.registry.Bucket(poolID, quote)
	b.mu.RUnlock()
	if !okBase || !okQuote {
		return nil, fmt.Errorf("pair %s/%s not registered in pool %d: %w", base.Hex(), quote.Hex(), poolID, model.ErrAdmissionRejected)
	}
	if baseAmount == nil || baseAmount.Sign() == 0 {
		return new(big.Int), nil
	}

	if baseBucket.ActiveAmount.Sign() > 0 && quoteBucket.ActiveAmount.Sign() > 0 {
		out := new(big.Int).Mul(baseAmount, quoteBucket.ActiveAmount)
		return out.Quo(out, baseBucket.ActiveAmount), nil
	}

	if b.ratios == nil {
		return nil, fmt.Errorf("pool %d has no active balance and no reference ratio", poolID)
	}
	ratio, err := b.ratios.ReferenceRatio(ctx, poolID, baseBucket.Canonical, quoteBucket.Canonical)
	if err != nil {
		return nil, fmt.Errorf("reference ratio: %w", err)
	}
	if ratio.Sign() <= 0 {
		return nil, fmt.Errorf("reference ratio %s must be positive", ratio)
	}
	return decimal.NewFromBigInt(baseAmount, 0).Mul(ratio).Floor().BigInt(), nil
}
