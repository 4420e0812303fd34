package bridge

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/ledger"
	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
)

// DepositPerp queues a deposit of amount into a perp pool. The returned id
// is zero when amount is zero.
func (b *Bridge) DepositPerp(ctx context.Context, caller common.Address, poolID uint64, token common.Address, amount *big.Int, recipient common.Address, feePaid *big.Int) (uint64, error) {
	return b.enqueue(ctx, model.KindDepositPerp, model.Request{
		PoolID:    poolID,
		Tokens:    []common.Address{token},
		Amounts:   []*big.Int{amount},
		Sender:    caller,
		Recipient: recipient,
	}, feePaid)
}

// DepositSpot queues a two-leg deposit into a spot pool.
func (b *Bridge) DepositSpot(ctx context.Context, caller common.Address, poolID uint64, base, quote common.Address, baseAmount, quoteAmount *big.Int, recipient common.Address, feePaid *big.Int) (uint64, error) {
	return b.enqueue(ctx, model.KindDepositSpot, model.Request{
		PoolID:    poolID,
		Tokens:    []common.Address{base, quote},
		Amounts:   []*big.Int{baseAmount, quoteAmount},
		Sender:    caller,
		Recipient: recipient,
	}, feePaid)
}

// WithdrawPerp debits amount from the caller's active balance and queues
// the withdrawal.
func (b *Bridge) WithdrawPerp(ctx context.Context, caller common.Address, poolID uint64, token common.Address, amount, feePaid *big.Int) (uint64, error) {
	return b.enqueue(ctx, model.KindWithdrawPerp, model.Request{
		PoolID:    poolID,
		Tokens:    []common.Address{token},
		Amounts:   []*big.Int{amount},
		Sender:    caller,
		Recipient: caller,
	}, feePaid)
}

// WithdrawSpot debits both legs from the caller's active balances and
// queues the withdrawal.
func (b *Bridge) WithdrawSpot(ctx context.Context, caller common.Address, poolID uint64, base, quote common.Address, baseAmount, quoteAmount, feePaid *big.Int) (uint64, error) {
	return b.enqueue(ctx, model.KindWithdrawSpot, model.Request{
		PoolID:    poolID,
		Tokens:    []common.Address{base, quote},
		Amounts:   []*big.Int{baseAmount, quoteAmount},
		Sender:    caller,
		Recipient: caller,
	}, feePaid)
}

func (b *Bridge) enqueue(ctx context.Context, kind model.EntryKind, req model.Request, feePaid *big.Int) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if kind.IsDeposit() && b.state.Meta.Paused.Deposits {
		return 0, fmt.Errorf("%s: %w", kind, model.ErrPaused)
	}
	if !kind.IsDeposit() && b.state.Meta.Paused.Withdrawals {
		return 0, fmt.Errorf("%s: %w", kind, model.ErrPaused)
	}

	total := new(big.Int)
	for i, amount := range req.Amounts {
		if amount == nil {
			amount = new(big.Int)
			req.Amounts[i] = amount
		}
		if amount.Sign() < 0 {
			return 0, fmt.Errorf("%s leg %d: negative amount", kind, i)
		}
		total.Add(total, amount)
	}
	if total.Sign() == 0 {
		return 0, nil
	}
	if req.Recipient == (common.Address{}) {
		req.Recipient = req.Sender
	}

	pool, ok := b.registry.Pool(req.PoolID)
	if !ok {
		return 0, fmt.Errorf("pool %d: %w: %w", req.PoolID, model.ErrUnknownPool, model.ErrAdmissionRejected)
	}
	if pool.Type != kind.PoolType() {
		return 0, fmt.Errorf("%s into %s pool %d: %w", kind, pool.Type, pool.ID, model.ErrAdmissionRejected)
	}
	if len(req.Tokens) == 2 && b.registry.Resolve(req.Tokens[0]) == b.registry.Resolve(req.Tokens[1]) {
		return 0, fmt.Errorf("base and quote resolve to %s: %w", b.registry.Resolve(req.Tokens[0]).Hex(), model.ErrAdmissionRejected)
	}

	charged, err := b.fees.SettlementFee(ctx, b.registry.QuoteToken())
	if err != nil {
		return 0, fmt.Errorf("settlement fee: %w", err)
	}
	if feePaid == nil || feePaid.Cmp(charged) < 0 {
		return 0, fmt.Errorf("paid %v, need %s: %w", feePaid, charged, model.ErrInsufficientFee)
	}

	var cs model.ChangeSet
	if kind.IsDeposit() {
		for i, token := range req.Tokens {
			if req.Amounts[i].Sign() == 0 {
				continue
			}
			if err := b.registry.CheckDeposit(req.PoolID, token, req.Amounts[i]); err != nil {
				return 0, err
			}
		}
	} else {
		for i, token := range req.Tokens {
			amount := req.Amounts[i]
			if amount.Sign() == 0 {
				continue
			}
			bucket, ok := b.registry.Bucket(req.PoolID, token)
			if !ok {
				return 0, fmt.Errorf("token %s not registered in pool %d: %w", token.Hex(), req.PoolID, model.ErrAdmissionRejected)
			}
			pos, err := ledger.Debit(b.ledger.Position(b.ledger.Key(req.PoolID, token, req.Sender)), amount)
			if err != nil {
				return 0, fmt.Errorf("withdraw %s: %w", token.Hex(), err)
			}
			if amount.Cmp(bucket.ActiveAmount) > 0 {
				return 0, fmt.Errorf("bucket %s holds %s: %w", bucket.Canonical.Hex(), bucket.ActiveAmount, model.ErrInsufficientActiveBalance)
			}
			bucket.ActiveAmount = new(big.Int).Sub(bucket.ActiveAmount, amount)
			cs.Positions = append(cs.Positions, pos)
			cs.PoolTokens = append(cs.PoolTokens, bucket)
		}
	}

	payload, err := queue.EncodeRequest(kind, req)
	if err != nil {
		return 0, err
	}
	entry, meta := b.queue.PlanEnqueue(kind, payload, b.timestamp())
	entry.Canonicals = make([]common.Address, len(req.Tokens))
	for i, token := range req.Tokens {
		entry.Canonicals[i] = b.registry.Resolve(token)
	}
	meta.FeesCollected = new(big.Int).Add(meta.FeesCollected, feePaid)
	cs.Entries = []model.QueueEntry{entry}
	cs.Meta = &meta

	if err := b.commit(ctx, cs); err != nil {
		return 0, err
	}

	b.metrics.Enqueued(kind.String(), meta.Cursor.Pending())
	b.metrics.FeeCollected(weiFloat(feePaid))
	b.logger.Info("request enqueued",
		zap.Uint64("id", entry.ID),
		zap.String("kind", kind.String()),
		zap.Uint64("pool", req.PoolID),
		zap.String("sender", req.Sender.Hex()),
		zap.String("fee", charged.String()),
		zap.String("fee_paid", feePaid.String()),
	)
	return entry.ID, nil
}

func weiFloat(v *big.Int) float64 {
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
