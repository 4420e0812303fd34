package bridge

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/ledger"
	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
)

// Responder supplies the venue response for a queued entry.
type Responder interface {
	Respond(ctx context.Context, entry model.QueueEntry) (model.SettlementResponse, error)
}

// AsRequested responds to every entry with the requested amounts.
type AsRequested struct{}

func (AsRequested) Respond(context.Context, model.QueueEntry) (model.SettlementResponse, error) {
	return model.SettlementResponse{}, nil
}

// Confirm applies the venue response for entry id. Only the settlement
// identity bound to the entry's pool token may confirm, and only the entry
// right after the cursor.
func (b *Bridge) Confirm(ctx context.Context, caller common.Address, id uint64, resp model.SettlementResponse) (model.Outcome, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, err := b.queue.CheckNext(id)
	if err != nil {
		return model.Outcome{}, err
	}
	req, decodeErr := queue.DecodeRequest(entry.Kind, entry.Payload)
	if decodeErr == nil && len(entry.Canonicals) != len(req.Tokens) {
		decodeErr = fmt.Errorf("entry pins %d canonical ids for %d legs", len(entry.Canonicals), len(req.Tokens))
	}
	if err := b.authorizeSettler(caller, entry, req, decodeErr); err != nil {
		return model.Outcome{}, fmt.Errorf("confirm %d: %w", id, err)
	}

	var (
		cs      model.ChangeSet
		outcome model.Outcome
	)
	switch {
	case decodeErr != nil:
		outcome = skipped(fmt.Sprintf("malformed payload: %v", decodeErr))
	case entry.Kind.IsDeposit():
		cs, outcome = b.planDeposit(entry, req, resp)
	default:
		cs, outcome = b.planWithdraw(entry, req)
	}
	outcome.ProcessedAt = b.timestamp()

	processed, meta := b.queue.PlanProcess(entry, outcome)
	cs.Entries = []model.QueueEntry{processed}
	cs.Meta = &meta
	if err := b.commit(ctx, cs); err != nil {
		return model.Outcome{}, err
	}

	b.metrics.Processed(entry.Kind.String(), outcome.Status, meta.Cursor.Pending())
	fields := []zap.Field{
		zap.Uint64("id", id),
		zap.String("kind", entry.Kind.String()),
		zap.String("status", outcome.Status),
	}
	if outcome.Status == model.OutcomeSkipped {
		b.logger.Warn("entry skipped", append(fields, zap.String("reason", outcome.Reason))...)
	} else {
		b.logger.Info("entry settled", fields...)
	}
	return outcome, nil
}

// Drain confirms every pending entry in order using responder. It returns
// the number of entries processed and is a no-op on an empty queue.
func (b *Bridge) Drain(ctx context.Context, caller common.Address, responder Responder) (int, error) {
	if responder == nil {
		responder = AsRequested{}
	}
	processed := 0
	for {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		entry, err := b.PeekNext()
		if errors.Is(err, model.ErrQueueEmpty) {
			return processed, nil
		}
		if err != nil {
			return processed, err
		}
		resp, err := responder.Respond(ctx, entry)
		if err != nil {
			return processed, fmt.Errorf("respond %d: %w", entry.ID, err)
		}
		if _, err := b.Confirm(ctx, caller, entry.ID, resp); err != nil {
			return processed, err
		}
		processed++
	}
}

func (b *Bridge) authorizeSettler(caller common.Address, entry model.QueueEntry, req model.Request, decodeErr error) error {
	if decodeErr == nil {
		if bucket, ok := b.registry.CanonicalBucket(req.PoolID, entry.Canonicals[0]); ok {
			if caller != bucket.Router.Settler {
				return fmt.Errorf("caller %s: %w", caller.Hex(), model.ErrUnauthorizedSettlement)
			}
			return nil
		}
	}
	// no bucket to bind against: any registered settler may clear the slot
	if _, ok := b.registry.Settlers()[caller]; !ok {
		return fmt.Errorf("caller %s: %w", caller.Hex(), model.ErrUnauthorizedSettlement)
	}
	return nil
}

func (b *Bridge) planDeposit(entry model.QueueEntry, req model.Request, resp model.SettlementResponse) (model.ChangeSet, model.Outcome) {
	kind := entry.Kind
	if resp.Amounts != nil && len(resp.Amounts) != len(req.Amounts) {
		return model.ChangeSet{}, skipped(fmt.Sprintf("response carries %d amounts, want %d", len(resp.Amounts), len(req.Amounts)))
	}

	credited := make([]*big.Int, len(req.Amounts))
	total := new(big.Int)
	for i, requested := range req.Amounts {
		amount := requested
		if resp.Amounts != nil && resp.Amounts[i] != nil {
			amount = resp.Amounts[i]
		}
		if amount.Sign() < 0 {
			amount = new(big.Int)
		}
		if amount.Cmp(requested) > 0 {
			amount = requested
		}
		credited[i] = new(big.Int).Set(amount)
		total.Add(total, amount)
	}
	if total.Sign() == 0 {
		return model.ChangeSet{}, skipped("zero amount")
	}

	pool, ok := b.registry.Pool(req.PoolID)
	if !ok || pool.Type != kind.PoolType() {
		return model.ChangeSet{}, skipped(fmt.Sprintf("pool %d unavailable for %s", req.PoolID, kind))
	}

	var cs model.ChangeSet
	for i, token := range req.Tokens {
		amount := credited[i]
		if amount.Sign() == 0 {
			continue
		}
		canonical := entry.Canonicals[i]
		bucket, ok := b.registry.CanonicalBucket(req.PoolID, canonical)
		if !ok {
			return model.ChangeSet{}, skipped(fmt.Sprintf("token %s not registered", token.Hex()))
		}
		if !bucket.IsActive {
			return model.ChangeSet{}, skipped(fmt.Sprintf("token %s inactive", token.Hex()))
		}
		hardcap, _ := b.registry.PinnedHardcap(req.PoolID, token, canonical)
		next := new(big.Int).Add(bucket.ActiveAmount, amount)
		if hardcap.Sign() == 0 || next.Cmp(hardcap) > 0 {
			return model.ChangeSet{}, skipped(fmt.Sprintf("token %s hardcap %s", token.Hex(), hardcap))
		}
		bucket.ActiveAmount = next
		key := model.PositionKey{PoolID: req.PoolID, Canonical: canonical, User: req.Recipient}
		pos := ledger.Credit(b.ledger.Position(key), amount)
		cs.PoolTokens = append(cs.PoolTokens, bucket)
		cs.Positions = append(cs.Positions, pos)
	}
	return cs, model.Outcome{Status: model.OutcomeApplied, Amounts: credited}
}

func (b *Bridge) planWithdraw(entry model.QueueEntry, req model.Request) (model.ChangeSet, model.Outcome) {
	var cs model.ChangeSet
	released := make([]*big.Int, len(req.Amounts))
	for i, canonical := range entry.Canonicals {
		net := ledger.NetOfFee(req.Amounts[i], b.fees.CanonicalProtocolFee(canonical))
		released[i] = net
		if net.Sign() == 0 {
			continue
		}
		key := model.PositionKey{PoolID: req.PoolID, Canonical: canonical, User: req.Sender}
		pos := ledger.AddPending(b.ledger.Position(key), net)
		cs.Positions = append(cs.Positions, pos)
	}
	return cs, model.Outcome{Status: model.OutcomeApplied, Amounts: released}
}

func skipped(reason string) model.Outcome {
	return model.Outcome{Status: model.OutcomeSkipped, Reason: reason}
}
