package operator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/bridge"
	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
	"vaultBridge/internal/retry"
)

// RunConfig holds runtime settings for the settlement runner.
type RunConfig struct {
	Operator     common.Address
	BatchSize    uint64
	MaxRetries   int
	RetryBackoff time.Duration
}

// Settler is the part of the bridge the runner drives.
type Settler interface {
	Cursor() model.Cursor
	Entries(from, to uint64) []model.QueueEntry
	Confirm(ctx context.Context, caller common.Address, id uint64, resp model.SettlementResponse) (model.Outcome, error)
}

// Runner confirms queued entries in order, in batches.
type Runner struct {
	cfg       RunConfig
	settler   Settler
	responder bridge.Responder
	logger    *zap.Logger
}

// NewRunner builds a Runner with its dependencies.
func NewRunner(cfg RunConfig, settler Settler, responder bridge.Responder, logger *zap.Logger) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if responder == nil {
		responder = bridge.AsRequested{}
	}
	return &Runner{cfg: cfg, settler: settler, responder: responder, logger: logger}
}

// Run settles every entry pending at start and returns how many it
// processed.
func (r *Runner) Run(ctx context.Context) (int, error) {
	if r.settler == nil {
		return 0, fmt.Errorf("settler is nil")
	}
	if r.cfg.BatchSize == 0 {
		return 0, fmt.Errorf("batch size must be greater than zero")
	}

	cursor := r.settler.Cursor()
	pending, ok := queue.PendingRange(cursor)
	if !ok {
		r.logger.Info("nothing to settle", zap.Uint64("up_to", cursor.UpTo))
		return 0, nil
	}

	ranges, err := queue.SplitRange(pending.From, pending.To, r.cfg.BatchSize)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, idRange := range ranges {
		select {
		case <-ctx.Done():
			return processed, ctx.Err()
		default:
		}

		var applied, skipped int
		for _, entry := range r.settler.Entries(idRange.From, idRange.To) {
			resp, err := r.responder.Respond(ctx, entry)
			if err != nil {
				return processed, fmt.Errorf("respond %d: %w", entry.ID, err)
			}
			outcome, err := r.confirmWithRetry(ctx, entry.ID, resp)
			if err != nil {
				return processed, fmt.Errorf("confirm %d: %w", entry.ID, err)
			}
			processed++
			if outcome.Status == model.OutcomeSkipped {
				skipped++
			} else {
				applied++
			}
		}

		r.logger.Info("batch settled",
			zap.Uint64("from", idRange.From),
			zap.Uint64("to", idRange.To),
			zap.Int("applied", applied),
			zap.Int("skipped", skipped),
		)
	}

	return processed, nil
}

func (r *Runner) confirmWithRetry(ctx context.Context, id uint64, resp model.SettlementResponse) (model.Outcome, error) {
	var outcome model.Outcome
	err := retry.Do(ctx, r.cfg.MaxRetries, r.cfg.RetryBackoff, func(ctx context.Context) error {
		var err error
		outcome, err = r.settler.Confirm(ctx, r.cfg.Operator, id, resp)
		if err == nil {
			return nil
		}
		if isPermanent(err) {
			return retry.Permanent(err)
		}
		r.logger.Warn("confirm failed", zap.Error(err), zap.Uint64("id", id))
		return err
	})
	return outcome, err
}

func isPermanent(err error) bool {
	return errors.Is(err, model.ErrUnauthorizedSettlement) ||
		errors.Is(err, model.ErrOutOfOrderSettlement) ||
		errors.Is(err, model.ErrQueueEmpty)
}
