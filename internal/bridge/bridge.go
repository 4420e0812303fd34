package bridge

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"vaultBridge/internal/custody"
	"vaultBridge/internal/fee"
	"vaultBridge/internal/ledger"
	"vaultBridge/internal/metrics"
	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
	"vaultBridge/internal/registry"
)

// Persister durably applies a change set. Apply must be all-or-nothing.
type Persister interface {
	Apply(ctx context.Context, cs model.ChangeSet) error
}

// Config holds bridge identities and the fee schedule.
type Config struct {
	Admin      common.Address
	QuoteToken common.Address
	Fees       fee.Config
}

// Deps are the external collaborators of the bridge.
type Deps struct {
	Prices    fee.PriceSource
	Ratios    RatioSource
	Custody   custody.Custody
	Persister Persister
	Router    registry.RouterFactory
	Metrics   *metrics.Metrics
	Now       func() time.Time
}

// Bridge is the ledger store. Every mutation runs under one lock, is staged
// as a change set, persisted, and only then applied in memory.
type Bridge struct {
	cfg Config

	mu       sync.RWMutex
	state    *model.State
	registry *registry.Registry
	ledger   *ledger.Ledger
	queue    *queue.Queue
	fees     *fee.Calculator

	ratios    RatioSource
	custody   custody.Custody
	persister Persister
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// New builds a Bridge over a restored state. A nil state starts empty.
func New(cfg Config, state *model.State, deps Deps, logger *zap.Logger) (*Bridge, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if state == nil {
		state = model.NewState()
	}
	if state.Meta.Version != model.StateVersion {
		return nil, fmt.Errorf("state version %d, want %d", state.Meta.Version, model.StateVersion)
	}
	if state.Meta.FeesCollected == nil {
		state.Meta.FeesCollected = new(big.Int)
	}
	if state.Meta.QuoteToken == (common.Address{}) {
		state.Meta.QuoteToken = cfg.QuoteToken
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	reg := registry.New(state, deps.Router)
	b := &Bridge{
		cfg:       cfg,
		state:     state,
		registry:  reg,
		ledger:    ledger.New(state, reg),
		queue:     queue.New(state),
		fees:      fee.NewCalculator(cfg.Fees, deps.Prices, reg),
		ratios:    deps.Ratios,
		custody:   deps.Custody,
		persister: deps.Persister,
		metrics:   deps.Metrics,
		logger:    logger,
		now:       now,
	}
	b.metrics.Depth(state.Meta.Cursor.Pending())
	return b, nil
}

func (b *Bridge) commit(ctx context.Context, cs model.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	if b.persister != nil {
		if err := b.persister.Apply(ctx, cs); err != nil {
			return fmt.Errorf("persist: %w", err)
		}
	}
	if err := b.state.Apply(cs); err != nil {
		return fmt.Errorf("apply: %w", err)
	}
	return nil
}

func (b *Bridge) timestamp() string {
	return b.now().UTC().Format(time.RFC3339Nano)
}

// Cursor returns the queue watermarks.
func (b *Bridge) Cursor() model.Cursor {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue.Cursor()
}

// PeekNext returns the next unprocessed entry.
func (b *Bridge) PeekNext() (model.QueueEntry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue.PeekNext()
}

// Entry returns the entry with the given id.
func (b *Bridge) Entry(id uint64) (model.QueueEntry, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue.Entry(id)
}

// Entries lists entries with ids in [from, to]; zero bounds are open.
func (b *Bridge) Entries(from, to uint64) []model.QueueEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue.Entries(from, to)
}

// DecodeEntry decodes the request carried by an entry.
func (b *Bridge) DecodeEntry(entry model.QueueEntry) (model.Request, error) {
	return queue.DecodeRequest(entry.Kind, entry.Payload)
}

// Pool returns a pool by id.
func (b *Bridge) Pool(id uint64) (model.Pool, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Pool(id)
}

// PoolToken returns bucket metadata as observed through token.
func (b *Bridge) PoolToken(poolID uint64, token common.Address) (model.PoolTokenView, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.View(poolID, token)
}

// Resolve maps an asset address to its canonical id.
func (b *Bridge) Resolve(token common.Address) common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.Resolve(token)
}

// Position returns user's row for the canonical asset behind token.
func (b *Bridge) Position(poolID uint64, token, user common.Address) model.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	pos := b.ledger.Position(b.ledger.Key(poolID, token, user))
	pos.Active = new(big.Int).Set(pos.Active)
	pos.Pending = new(big.Int).Set(pos.Pending)
	return pos
}

// ActiveAmount returns the confirmed balance of user.
func (b *Bridge) ActiveAmount(poolID uint64, token, user common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.Active(poolID, token, user)
}

// PendingAmount returns the withdrawn-but-unclaimed balance of user.
func (b *Bridge) PendingAmount(poolID uint64, token, user common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.ledger.Pending(poolID, token, user)
}

// ProtocolFee returns the in-kind withdrawal fee for token.
func (b *Bridge) ProtocolFee(token common.Address) *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fees.ProtocolFee(token)
}

// SettlementFee returns the native fee an enqueue currently costs.
func (b *Bridge) SettlementFee(ctx context.Context) (*big.Int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fees.SettlementFee(ctx, b.registry.QuoteToken())
}

// FeesCollected returns the native settlement fees charged so far.
func (b *Bridge) FeesCollected() *big.Int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return new(big.Int).Set(b.state.Meta.FeesCollected)
}

// Paused returns the pause switches.
func (b *Bridge) Paused() model.Flags {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Meta.Paused
}

// QuoteToken returns the current quote asset address.
func (b *Bridge) QuoteToken() common.Address {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.registry.QuoteToken()
}

// Snapshot returns a change set that rebuilds the current state.
func (b *Bridge) Snapshot() model.ChangeSet {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state.Snapshot()
}
