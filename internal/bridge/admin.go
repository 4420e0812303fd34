package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/model"
)

// Operation names a pausable user operation.
type Operation string

const (
	OpDeposits    Operation = "deposits"
	OpWithdrawals Operation = "withdrawals"
	OpClaims      Operation = "claims"
)

// ParseOperation parses a pausable operation name.
func ParseOperation(input string) (Operation, error) {
	switch op := Operation(input); op {
	case OpDeposits, OpWithdrawals, OpClaims:
		return op, nil
	default:
		return "", fmt.Errorf("unknown operation %q", input)
	}
}

func (b *Bridge) authorizeAdmin(caller common.Address) error {
	if caller != b.cfg.Admin {
		return fmt.Errorf("caller %s: %w", caller.Hex(), model.ErrUnauthorized)
	}
	return nil
}

// Pools returns every registered pool ordered by id.
func (b *Bridge) Pools() []model.Pool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Pools()
}

// Buckets returns the buckets of a pool.
func (b *Bridge) Buckets(poolID uint64) []model.PoolToken {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Buckets(poolID)
}

// AddPool registers a pool and its initial tokens.
func (b *Bridge) AddPool(ctx context.Context, caller common.Address, id uint64, tokens []common.Address, hardcaps []*big.Int, poolType model.PoolType, subaccount common.Hash) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	cs, err := b.registry.PlanAddPool(id, tokens, hardcaps, poolType, subaccount)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	b.logger.Info("pool added",
		zap.Uint64("pool", id),
		zap.String("type", poolType.String()),
		zap.Int("tokens", len(tokens)),
	)
	return nil
}

// AddPoolTokens registers additional tokens in a pool. An alias of an
// already bound asset shares its bucket and router.
func (b *Bridge) AddPoolTokens(ctx context.Context, caller common.Address, poolID uint64, tokens []common.Address, hardcaps []*big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	cs, err := b.registry.PlanAddPoolTokens(poolID, tokens, hardcaps)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	b.logger.Info("pool tokens added", zap.Uint64("pool", poolID), zap.Int("tokens", len(tokens)))
	return nil
}

// UpdatePoolHardcaps sets deposit hardcaps. A zero hardcap blocks deposits
// through that address only.
func (b *Bridge) UpdatePoolHardcaps(ctx context.Context, caller common.Address, poolID uint64, tokens []common.Address, hardcaps []*big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	cs, err := b.registry.PlanUpdateHardcaps(poolID, tokens, hardcaps)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	for i, token := range tokens {
		b.logger.Info("hardcap updated",
			zap.Uint64("pool", poolID),
			zap.String("token", token.Hex()),
			zap.String("hardcap", hardcaps[i].String()),
		)
	}
	return nil
}

// UpdateQuoteToken points newToken at the quote canonical asset. Balances
// never move.
func (b *Bridge) UpdateQuoteToken(ctx context.Context, caller, newToken common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	previous := b.registry.QuoteToken()
	cs, err := b.registry.PlanUpdateQuoteToken(newToken)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	b.logger.Info("quote token updated",
		zap.String("previous", previous.Hex()),
		zap.String("token", newToken.Hex()),
		zap.String("canonical", b.registry.Resolve(newToken).Hex()),
	)
	return nil
}

// RegisterAlias makes alias resolve to the canonical id of target.
func (b *Bridge) RegisterAlias(ctx context.Context, caller, alias, target common.Address) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	cs, err := b.registry.PlanRegisterAlias(alias, target)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	b.logger.Info("alias registered",
		zap.String("alias", alias.Hex()),
		zap.String("canonical", b.registry.Resolve(alias).Hex()),
	)
	return nil
}

// SetPoolTokenActive toggles deposits into the bucket token resolves to.
func (b *Bridge) SetPoolTokenActive(ctx context.Context, caller common.Address, poolID uint64, token common.Address, active bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	cs, err := b.registry.PlanSetActive(poolID, token, active)
	if err != nil {
		return err
	}
	if err := b.commit(ctx, cs); err != nil {
		return err
	}
	b.logger.Info("pool token active set",
		zap.Uint64("pool", poolID),
		zap.String("token", token.Hex()),
		zap.Bool("active", active),
	)
	return nil
}

// SetPaused flips the pause switch of one operation.
func (b *Bridge) SetPaused(ctx context.Context, caller common.Address, op Operation, paused bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.authorizeAdmin(caller); err != nil {
		return err
	}
	meta := b.state.Meta
	switch op {
	case OpDeposits:
		meta.Paused.Deposits = paused
	case OpWithdrawals:
		meta.Paused.Withdrawals = paused
	case OpClaims:
		meta.Paused.Claims = paused
	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	if err := b.commit(ctx, model.ChangeSet{Meta: &meta}); err != nil {
		return err
	}
	b.logger.Info("pause updated", zap.String("operation", string(op)), zap.Bool("paused", paused))
	return nil
}
