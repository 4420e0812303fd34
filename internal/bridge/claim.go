package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/ledger"
	"vaultBridge/internal/model"
)

// Claim pays out min(pending, custody) of the exact token address from the
// bucket's custodial router and returns the amount transferred. Whatever
// custody cannot cover stays pending and is claimable through any alias.
func (b *Bridge) Claim(ctx context.Context, user common.Address, poolID uint64, token common.Address) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state.Meta.Paused.Claims {
		return nil, fmt.Errorf("claim: %w", model.ErrPaused)
	}
	if b.custody == nil {
		return nil, fmt.Errorf("claim: no custody configured")
	}
	bucket, ok := b.registry.Bucket(poolID, token)
	if !ok {
		return nil, fmt.Errorf("token %s not registered in pool %d: %w", token.Hex(), poolID, model.ErrAdmissionRejected)
	}

	original := b.ledger.Position(b.ledger.Key(poolID, token, user))
	if original.Pending.Sign() == 0 {
		return new(big.Int), nil
	}

	available, err := b.custody.Available(ctx, bucket.Router.Address, token)
	if err != nil {
		return nil, fmt.Errorf("custody %s: %w", token.Hex(), err)
	}
	amount := new(big.Int).Set(original.Pending)
	if available.Cmp(amount) < 0 {
		amount.Set(available)
	}
	if amount.Sign() <= 0 {
		b.logger.Warn("claim found no custody",
			zap.Uint64("pool", poolID),
			zap.String("token", token.Hex()),
			zap.String("user", user.Hex()),
			zap.String("pending", original.Pending.String()),
		)
		return new(big.Int), nil
	}

	released, err := ledger.SubPending(original, amount)
	if err != nil {
		return nil, err
	}
	if err := b.commit(ctx, model.ChangeSet{Positions: []model.Position{released}}); err != nil {
		return nil, err
	}
	if err := b.custody.Transfer(ctx, bucket.Router.Address, token, user, amount); err != nil {
		// put the pending balance back so the claim can be retried
		if restoreErr := b.commit(ctx, model.ChangeSet{Positions: []model.Position{original}}); restoreErr != nil {
			b.logger.Error("restore pending after failed transfer",
				zap.String("user", user.Hex()),
				zap.String("token", token.Hex()),
				zap.String("amount", amount.String()),
				zap.Error(restoreErr),
			)
		}
		return nil, fmt.Errorf("transfer %s: %w", token.Hex(), err)
	}

	partial := released.Pending.Sign() > 0
	b.metrics.Claimed(partial)
	fields := []zap.Field{
		zap.Uint64("pool", poolID),
		zap.String("token", token.Hex()),
		zap.String("user", user.Hex()),
		zap.String("amount", amount.String()),
	}
	if partial {
		b.logger.Warn("partial claim", append(fields, zap.String("remaining", released.Pending.String()))...)
	} else {
		b.logger.Info("claim settled", fields...)
	}
	return amount, nil
}
