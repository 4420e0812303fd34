package fee

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// PriceSource quotes one whole native unit in units of a reference asset.
type PriceSource interface {
	NativePrice(ctx context.Context, reference common.Address) (decimal.Decimal, error)
}

// Resolver maps an asset address to its canonical id.
type Resolver interface {
	Resolve(token common.Address) common.Address
}

// Config holds the fixed fee schedule.
type Config struct {
	// SettlementFee is the venue fee in whole reference-asset units.
	SettlementFee  decimal.Decimal
	NativeDecimals int32
	// ProtocolFees are in-kind withdrawal fees in token base units.
	ProtocolFees map[common.Address]*big.Int
}

// Calculator prices settlement and protocol fees.
type Calculator struct {
	cfg      Config
	prices   PriceSource
	resolver Resolver
}

func NewCalculator(cfg Config, prices PriceSource, resolver Resolver) *Calculator {
	return &Calculator{cfg: cfg, prices: prices, resolver: resolver}
}

// SettlementFee converts the fixed reference fee into native base units,
// rounding up.
func (c *Calculator) SettlementFee(ctx context.Context, reference common.Address) (*big.Int, error) {
	if c.cfg.SettlementFee.Sign() <= 0 {
		return new(big.Int), nil
	}
	if c.prices == nil {
		return nil, fmt.Errorf("price source is nil")
	}

	price, err := c.prices.NativePrice(ctx, c.resolve(reference))
	if err != nil {
		return nil, fmt.Errorf("native price: %w", err)
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("invalid native price %s", price)
	}

	native := c.cfg.SettlementFee.Shift(c.cfg.NativeDecimals).Div(price).Ceil()
	return native.BigInt(), nil
}

// ProtocolFee returns the in-kind withdrawal fee for token. Fees configured
// under any alias apply to the whole canonical asset.
func (c *Calculator) ProtocolFee(token common.Address) *big.Int {
	return c.CanonicalProtocolFee(c.resolve(token))
}

// CanonicalProtocolFee returns the fee for an already resolved canonical id.
// A fee configured under the canonical address wins; otherwise the largest
// fee configured under one of its aliases applies.
func (c *Calculator) CanonicalProtocolFee(canonical common.Address) *big.Int {
	if amount, ok := c.cfg.ProtocolFees[canonical]; ok && amount != nil {
		return new(big.Int).Set(amount)
	}
	out := new(big.Int)
	for configured, amount := range c.cfg.ProtocolFees {
		if amount == nil || c.resolve(configured) != canonical {
			continue
		}
		if amount.Cmp(out) > 0 {
			out.Set(amount)
		}
	}
	return out
}

func (c *Calculator) resolve(token common.Address) common.Address {
	if c.resolver == nil {
		return token
	}
	return c.resolver.Resolve(token)
}

// StaticPrice is a PriceSource with a fixed quote for every reference asset.
type StaticPrice struct {
	Price decimal.Decimal
}

func (s StaticPrice) NativePrice(_ context.Context, _ common.Address) (decimal.Decimal, error) {
	return s.Price, nil
}
