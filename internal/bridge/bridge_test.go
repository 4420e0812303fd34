package bridge

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"vaultBridge/internal/custody"
	"vaultBridge/internal/fee"
	"vaultBridge/internal/model"
	"vaultBridge/internal/registry"
)

var (
	admin   = common.HexToAddress("0x00000000000000000000000000000000000000ad")
	settler = common.HexToAddress("0x9999999999999999999999999999999999999999")
	alice   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	bob     = common.HexToAddress("0x2222222222222222222222222222222222222222")

	usdcE = common.HexToAddress("0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	usdc  = common.HexToAddress("0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb")
	weth  = common.HexToAddress("0xcccccccccccccccccccccccccccccccccccccccc")

	// 1 unit of quote at 2000 quote per native, 18 decimals
	settlementFee = big.NewInt(500_000_000_000_000)
)

const (
	perpPool uint64 = 2
	spotPool uint64 = 7
)

type memPersister struct {
	applied []model.ChangeSet
	fail    bool
}

func (p *memPersister) Apply(_ context.Context, cs model.ChangeSet) error {
	if p.fail {
		return errors.New("disk full")
	}
	p.applied = append(p.applied, cs)
	return nil
}

type fixture struct {
	bridge    *Bridge
	custody   *custody.Memory
	persister *memPersister
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := custody.NewMemory()
	persister := &memPersister{}
	cfg := Config{
		Admin:      admin,
		QuoteToken: usdcE,
		Fees: fee.Config{
			SettlementFee:  decimal.NewFromInt(1),
			NativeDecimals: 18,
			ProtocolFees:   map[common.Address]*big.Int{usdcE: big.NewInt(1)},
		},
	}
	deps := Deps{
		Prices:    fee.StaticPrice{Price: decimal.NewFromInt(2000)},
		Ratios:    StaticRatio{Ratio: decimal.NewFromInt(2000)},
		Custody:   mem,
		Persister: persister,
		Router:    registry.DeriveRouter(settler),
		Now:       func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) },
	}
	b, err := New(cfg, nil, deps, zap.NewNop())
	if err != nil {
		t.Fatalf("new bridge: %v", err)
	}

	ctx := context.Background()
	if err := b.AddPool(ctx, admin, perpPool, []common.Address{usdcE}, []*big.Int{gethmath.MaxBig256}, model.PoolTypePerp, common.Hash{}); err != nil {
		t.Fatalf("add perp pool: %v", err)
	}
	if err := b.UpdateQuoteToken(ctx, admin, usdc); err != nil {
		t.Fatalf("update quote token: %v", err)
	}
	if err := b.AddPoolTokens(ctx, admin, perpPool, []common.Address{usdc}, []*big.Int{gethmath.MaxBig256}); err != nil {
		t.Fatalf("add usdc alias: %v", err)
	}
	if err := b.AddPool(ctx, admin, spotPool, []common.Address{weth, usdcE}, []*big.Int{gethmath.MaxBig256, gethmath.MaxBig256}, model.PoolTypeSpot, common.HexToHash("0x07")); err != nil {
		t.Fatalf("add spot pool: %v", err)
	}
	return &fixture{bridge: b, custody: mem, persister: persister}
}

func (f *fixture) depositPerp(t *testing.T, user, token common.Address, amount int64) uint64 {
	t.Helper()
	id, err := f.bridge.DepositPerp(context.Background(), user, perpPool, token, big.NewInt(amount), user, settlementFee)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	return id
}

func (f *fixture) confirm(t *testing.T, id uint64, resp model.SettlementResponse) model.Outcome {
	t.Helper()
	outcome, err := f.bridge.Confirm(context.Background(), settler, id, resp)
	if err != nil {
		t.Fatalf("confirm %d: %v", id, err)
	}
	return outcome
}

func expectAmount(t *testing.T, name string, got *big.Int, want int64) {
	t.Helper()
	if got.Cmp(big.NewInt(want)) != 0 {
		t.Fatalf("%s = %s, want %d", name, got, want)
	}
}

func TestUSDCMigrationHardcapScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id := f.depositPerp(t, alice, usdc, 100)
	f.confirm(t, id, model.SettlementResponse{})
	expectAmount(t, "active(usdc)", f.bridge.ActiveAmount(perpPool, usdc, alice), 100)

	id = f.depositPerp(t, alice, usdcE, 100)
	if err := f.bridge.UpdatePoolHardcaps(ctx, admin, perpPool, []common.Address{usdcE}, []*big.Int{big.NewInt(0)}); err != nil {
		t.Fatalf("update hardcaps: %v", err)
	}
	outcome := f.confirm(t, id, model.SettlementResponse{})
	if outcome.Status != model.OutcomeSkipped {
		t.Fatalf("expected skipped outcome, got %+v", outcome)
	}
	expectAmount(t, "active(usdc)", f.bridge.ActiveAmount(perpPool, usdc, alice), 100)
	expectAmount(t, "active(usdc.e)", f.bridge.ActiveAmount(perpPool, usdcE, alice), 100)
	if cursor := f.bridge.Cursor(); cursor.UpTo != 2 || cursor.Count != 2 {
		t.Fatalf("unexpected cursor %+v", cursor)
	}

	_, err := f.bridge.DepositPerp(ctx, alice, perpPool, usdcE, big.NewInt(1), alice, settlementFee)
	if !errors.Is(err, model.ErrAdmissionRejected) {
		t.Fatalf("expected admission rejected via usdc.e, got %v", err)
	}
	f.depositPerp(t, alice, usdc, 1)
}

func TestAliasInvariance(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bridged := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	if err := f.bridge.RegisterAlias(ctx, admin, bridged, usdc); err != nil {
		t.Fatalf("register alias: %v", err)
	}

	f.confirm(t, f.depositPerp(t, alice, usdc, 500), model.SettlementResponse{})
	id, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdcE, big.NewInt(200), settlementFee)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})

	canonical := f.bridge.Position(perpPool, usdcE, alice)
	for _, token := range []common.Address{usdc, bridged} {
		pos := f.bridge.Position(perpPool, token, alice)
		if pos.Active.Cmp(canonical.Active) != 0 || pos.Pending.Cmp(canonical.Pending) != 0 {
			t.Fatalf("position via %s = %+v, want %+v", token.Hex(), pos, canonical)
		}
	}
	expectAmount(t, "active", canonical.Active, 300)
	expectAmount(t, "pending", canonical.Pending, 199)

	base, err := f.bridge.PoolToken(perpPool, usdcE)
	if err != nil {
		t.Fatalf("pool token: %v", err)
	}
	view, err := f.bridge.PoolToken(perpPool, bridged)
	if err != nil {
		t.Fatalf("pool token alias: %v", err)
	}
	if view.Hardcap.Cmp(base.Hardcap) != 0 || view.IsActive != base.IsActive || view.Router != base.Router {
		t.Fatalf("alias view %+v differs from canonical %+v", view, base)
	}
	if view.ActiveAmount.Cmp(base.ActiveAmount) != 0 {
		t.Fatalf("alias aggregate %s != %s", view.ActiveAmount, base.ActiveAmount)
	}
	if f.bridge.ProtocolFee(bridged).Cmp(f.bridge.ProtocolFee(usdcE)) != 0 {
		t.Fatalf("protocol fee differs across aliases")
	}
}

func TestConfirmUsesCanonicalPinnedAtEnqueue(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	bridged := common.HexToAddress("0xdddddddddddddddddddddddddddddddddddddddd")
	dai := common.HexToAddress("0xeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeeee")

	if err := f.bridge.AddPoolTokens(ctx, admin, perpPool, []common.Address{dai}, []*big.Int{gethmath.MaxBig256}); err != nil {
		t.Fatalf("add dai bucket: %v", err)
	}
	if err := f.bridge.RegisterAlias(ctx, admin, bridged, usdcE); err != nil {
		t.Fatalf("register alias: %v", err)
	}

	f.confirm(t, f.depositPerp(t, alice, bridged, 100), model.SettlementResponse{})
	withdrawID, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, bridged, big.NewInt(100), settlementFee)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	depositID := f.depositPerp(t, alice, bridged, 50)

	if err := f.bridge.RegisterAlias(ctx, admin, bridged, dai); err != nil {
		t.Fatalf("repoint alias: %v", err)
	}
	if outcome := f.confirm(t, withdrawID, model.SettlementResponse{}); outcome.Status != model.OutcomeApplied {
		t.Fatalf("withdraw outcome %+v", outcome)
	}
	if outcome := f.confirm(t, depositID, model.SettlementResponse{}); outcome.Status != model.OutcomeApplied {
		t.Fatalf("deposit outcome %+v", outcome)
	}

	expectAmount(t, "pending(usdc.e)", f.bridge.PendingAmount(perpPool, usdcE, alice), 99)
	expectAmount(t, "active(usdc.e)", f.bridge.ActiveAmount(perpPool, usdcE, alice), 50)
	expectAmount(t, "pending(dai)", f.bridge.PendingAmount(perpPool, dai, alice), 0)
	expectAmount(t, "active(dai)", f.bridge.ActiveAmount(perpPool, dai, alice), 0)

	daiView, err := f.bridge.PoolToken(perpPool, dai)
	if err != nil {
		t.Fatalf("pool token dai: %v", err)
	}
	expectAmount(t, "bucket(dai)", daiView.ActiveAmount, 0)
	usdcView, err := f.bridge.PoolToken(perpPool, usdcE)
	if err != nil {
		t.Fatalf("pool token usdc.e: %v", err)
	}
	expectAmount(t, "bucket(usdc.e)", usdcView.ActiveAmount, 50)

	entry, ok := f.bridge.Entry(withdrawID)
	if !ok || len(entry.Canonicals) != 1 || entry.Canonicals[0] != usdcE {
		t.Fatalf("withdraw entry canonicals = %v", entry.Canonicals)
	}
}

func TestRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.confirm(t, f.depositPerp(t, alice, usdc, 1000), model.SettlementResponse{})
	id, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(1000), settlementFee)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	expectAmount(t, "active after withdraw enqueue", f.bridge.ActiveAmount(perpPool, usdc, alice), 0)
	expectAmount(t, "pending before confirm", f.bridge.PendingAmount(perpPool, usdc, alice), 0)
	f.confirm(t, id, model.SettlementResponse{})

	view, _ := f.bridge.PoolToken(perpPool, usdc)
	f.custody.Fund(view.Router.Address, usdc, big.NewInt(5000))
	paid, err := f.bridge.Claim(ctx, alice, perpPool, usdc)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	expectAmount(t, "claimed", paid, 999)
	received, _ := f.custody.Available(ctx, alice, usdc)
	expectAmount(t, "received", received, 999)
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 0)
	expectAmount(t, "pending", f.bridge.PendingAmount(perpPool, usdc, alice), 0)
	expectAmount(t, "bucket", view.ActiveAmount, 0)

	again, err := f.bridge.Claim(ctx, alice, perpPool, usdc)
	if err != nil || again.Sign() != 0 {
		t.Fatalf("second claim = %v, %v; want 0, nil", again, err)
	}
}

func TestPartitionedClaim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.confirm(t, f.depositPerp(t, alice, usdc, 1000), model.SettlementResponse{})
	id, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(1000), settlementFee)
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})
	original := f.bridge.PendingAmount(perpPool, usdc, alice)

	view, _ := f.bridge.PoolToken(perpPool, usdc)
	f.custody.Fund(view.Router.Address, usdc, big.NewInt(400))
	f.custody.Fund(view.Router.Address, usdcE, big.NewInt(10_000))

	first, err := f.bridge.Claim(ctx, alice, perpPool, usdc)
	if err != nil {
		t.Fatalf("claim usdc: %v", err)
	}
	expectAmount(t, "first claim", first, 400)
	expectAmount(t, "pending after first", f.bridge.PendingAmount(perpPool, usdcE, alice), 599)

	second, err := f.bridge.Claim(ctx, alice, perpPool, usdcE)
	if err != nil {
		t.Fatalf("claim usdc.e: %v", err)
	}
	if total := new(big.Int).Add(first, second); total.Cmp(original) != 0 {
		t.Fatalf("claimed %s, want %s", total, original)
	}
	expectAmount(t, "pending", f.bridge.PendingAmount(perpPool, usdc, alice), 0)
}

type failingCustody struct{}

func (failingCustody) Available(context.Context, common.Address, common.Address) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (failingCustody) Transfer(context.Context, common.Address, common.Address, common.Address, *big.Int) error {
	return errors.New("rpc down")
}

func TestClaimTransferFailureKeepsPending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirm(t, f.depositPerp(t, alice, usdc, 10), model.SettlementResponse{})
	id, _ := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(10), settlementFee)
	f.confirm(t, id, model.SettlementResponse{})

	f.bridge.custody = failingCustody{}
	if _, err := f.bridge.Claim(ctx, alice, perpPool, usdc); err == nil {
		t.Fatalf("expected transfer error")
	}
	expectAmount(t, "pending", f.bridge.PendingAmount(perpPool, usdc, alice), 9)
}

func TestDrainIdempotence(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		f.depositPerp(t, alice, usdc, 10)
	}

	n, err := f.bridge.Drain(ctx, settler, AsRequested{})
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 3 {
		t.Fatalf("drained %d entries, want 3", n)
	}
	cursor := f.bridge.Cursor()
	if cursor.UpTo != cursor.Count || cursor.Count != 3 {
		t.Fatalf("unexpected cursor %+v", cursor)
	}

	writes := len(f.persister.applied)
	n, err = f.bridge.Drain(ctx, settler, nil)
	if err != nil || n != 0 {
		t.Fatalf("second drain = %d, %v", n, err)
	}
	if len(f.persister.applied) != writes {
		t.Fatalf("second drain persisted %d change sets", len(f.persister.applied)-writes)
	}
	if _, err := f.bridge.PeekNext(); !errors.Is(err, model.ErrQueueEmpty) {
		t.Fatalf("expected queue empty, got %v", err)
	}
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 30)
}

func TestSpotRatioScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bootstrap, err := f.bridge.BalancedAmount(ctx, spotPool, weth, usdcE, big.NewInt(10))
	if err != nil {
		t.Fatalf("bootstrap balanced amount: %v", err)
	}
	expectAmount(t, "bootstrap quote", bootstrap, 20_000)

	id, err := f.bridge.DepositSpot(ctx, alice, spotPool, weth, usdcE, big.NewInt(10), bootstrap, alice, settlementFee)
	if err != nil {
		t.Fatalf("deposit spot: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})

	ratio, err := f.bridge.BalancedAmount(ctx, spotPool, weth, usdc, big.NewInt(1))
	if err != nil {
		t.Fatalf("balanced amount: %v", err)
	}
	expectAmount(t, "R", ratio, 2000)

	id, err = f.bridge.DepositSpot(ctx, bob, spotPool, weth, usdc, big.NewInt(1), ratio, bob, settlementFee)
	if err != nil {
		t.Fatalf("deposit spot bob: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})
	expectAmount(t, "active(base)", f.bridge.ActiveAmount(spotPool, weth, bob), 1)
	expectAmount(t, "active(quote)", f.bridge.ActiveAmount(spotPool, usdcE, bob), 2000)

	_, err = f.bridge.DepositSpot(ctx, bob, spotPool, usdc, usdcE, big.NewInt(1), big.NewInt(1), bob, settlementFee)
	if !errors.Is(err, model.ErrAdmissionRejected) {
		t.Fatalf("expected rejection for same canonical legs, got %v", err)
	}
}

func TestSpotWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	quote, err := f.bridge.BalancedAmount(ctx, spotPool, weth, usdcE, big.NewInt(1))
	if err != nil {
		t.Fatalf("balanced amount: %v", err)
	}
	expectAmount(t, "quote", quote, 2000)
	id, err := f.bridge.DepositSpot(ctx, alice, spotPool, weth, usdcE, big.NewInt(1), quote, alice, settlementFee)
	if err != nil {
		t.Fatalf("deposit spot: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})

	id, err = f.bridge.WithdrawSpot(ctx, alice, spotPool, weth, usdcE, big.NewInt(1), big.NewInt(2000), settlementFee)
	if err != nil {
		t.Fatalf("withdraw spot: %v", err)
	}
	expectAmount(t, "active(weth) after enqueue", f.bridge.ActiveAmount(spotPool, weth, alice), 0)
	expectAmount(t, "active(usdc.e) after enqueue", f.bridge.ActiveAmount(spotPool, usdcE, alice), 0)
	expectAmount(t, "pending(weth) before confirm", f.bridge.PendingAmount(spotPool, weth, alice), 0)

	if outcome := f.confirm(t, id, model.SettlementResponse{}); outcome.Status != model.OutcomeApplied {
		t.Fatalf("withdraw outcome %+v", outcome)
	}
	// the protocol fee is charged per leg; weth carries none
	expectAmount(t, "pending(weth)", f.bridge.PendingAmount(spotPool, weth, alice), 1)
	expectAmount(t, "pending(usdc.e)", f.bridge.PendingAmount(spotPool, usdcE, alice), 1999)

	for _, leg := range []struct {
		token common.Address
		want  int64
	}{{weth, 1}, {usdcE, 1999}} {
		view, err := f.bridge.PoolToken(spotPool, leg.token)
		if err != nil {
			t.Fatalf("pool token %s: %v", leg.token.Hex(), err)
		}
		expectAmount(t, "bucket", view.ActiveAmount, 0)
		f.custody.Fund(view.Router.Address, leg.token, big.NewInt(10_000))

		paid, err := f.bridge.Claim(ctx, alice, spotPool, leg.token)
		if err != nil {
			t.Fatalf("claim %s: %v", leg.token.Hex(), err)
		}
		expectAmount(t, "claimed", paid, leg.want)
		received, _ := f.custody.Available(ctx, alice, leg.token)
		expectAmount(t, "received", received, leg.want)
		expectAmount(t, "pending after claim", f.bridge.PendingAmount(spotPool, leg.token, alice), 0)
	}
}

func TestConfirmIsAtomicOnPersistFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.depositPerp(t, alice, usdc, 100)

	f.persister.fail = true
	if _, err := f.bridge.Confirm(ctx, settler, id, model.SettlementResponse{}); err == nil {
		t.Fatalf("expected persist failure")
	}
	if cursor := f.bridge.Cursor(); cursor.UpTo != 0 {
		t.Fatalf("cursor advanced to %d", cursor.UpTo)
	}
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 0)
	if entry, _ := f.bridge.PeekNext(); entry.Processed {
		t.Fatalf("entry marked processed")
	}

	f.persister.fail = false
	f.confirm(t, id, model.SettlementResponse{})
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 100)
}

func TestConfirmRejectsUnauthorizedAndOutOfOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	first := f.depositPerp(t, alice, usdc, 1)
	second := f.depositPerp(t, alice, usdc, 1)

	if _, err := f.bridge.Confirm(ctx, bob, first, model.SettlementResponse{}); !errors.Is(err, model.ErrUnauthorizedSettlement) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if _, err := f.bridge.Confirm(ctx, settler, second, model.SettlementResponse{}); !errors.Is(err, model.ErrOutOfOrderSettlement) {
		t.Fatalf("expected out of order, got %v", err)
	}
	f.confirm(t, first, model.SettlementResponse{})
	if _, err := f.bridge.Confirm(ctx, settler, first, model.SettlementResponse{}); !errors.Is(err, model.ErrOutOfOrderSettlement) {
		t.Fatalf("expected out of order on replay, got %v", err)
	}
	if _, err := f.bridge.Confirm(ctx, settler, 3, model.SettlementResponse{}); !errors.Is(err, model.ErrOutOfOrderSettlement) {
		t.Fatalf("expected out of order for future id, got %v", err)
	}
}

func TestConfirmUsesVenueAmounts(t *testing.T) {
	f := newFixture(t)

	rejected := f.depositPerp(t, alice, usdc, 100)
	outcome := f.confirm(t, rejected, model.SettlementResponse{Amounts: []*big.Int{big.NewInt(0)}})
	if outcome.Status != model.OutcomeSkipped {
		t.Fatalf("zero response should skip, got %+v", outcome)
	}

	partial := f.depositPerp(t, alice, usdc, 100)
	outcome = f.confirm(t, partial, model.SettlementResponse{Amounts: []*big.Int{big.NewInt(60)}})
	if outcome.Status != model.OutcomeApplied {
		t.Fatalf("expected applied, got %+v", outcome)
	}
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 60)

	over := f.depositPerp(t, alice, usdc, 5)
	f.confirm(t, over, model.SettlementResponse{Amounts: []*big.Int{big.NewInt(500)}})
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 65)
}

func TestInactiveTokenSkippedAtConfirm(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.depositPerp(t, alice, usdc, 100)
	if err := f.bridge.SetPoolTokenActive(ctx, admin, perpPool, usdcE, false); err != nil {
		t.Fatalf("set inactive: %v", err)
	}
	outcome := f.confirm(t, id, model.SettlementResponse{})
	if outcome.Status != model.OutcomeSkipped {
		t.Fatalf("expected skip, got %+v", outcome)
	}
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 0)
	view, _ := f.bridge.PoolToken(perpPool, usdc)
	if view.IsActive {
		t.Fatalf("alias should observe inactive bucket")
	}
}

func TestMalformedPayloadSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	meta := f.bridge.state.Meta
	meta.Cursor.Count++
	junk := model.QueueEntry{ID: meta.Cursor.Count, Kind: model.KindDepositPerp, Payload: []byte{0x01, 0x02}}
	if err := f.bridge.state.Apply(model.ChangeSet{Entries: []model.QueueEntry{junk}, Meta: &meta}); err != nil {
		t.Fatalf("inject entry: %v", err)
	}
	next := f.depositPerp(t, alice, usdc, 5)

	if _, err := f.bridge.Confirm(ctx, bob, junk.ID, model.SettlementResponse{}); !errors.Is(err, model.ErrUnauthorizedSettlement) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	outcome := f.confirm(t, junk.ID, model.SettlementResponse{})
	if outcome.Status != model.OutcomeSkipped {
		t.Fatalf("expected skip, got %+v", outcome)
	}
	stored, ok := f.bridge.Entry(junk.ID)
	if !ok || !stored.Processed || stored.Outcome == nil || stored.Outcome.Status != model.OutcomeSkipped {
		t.Fatalf("expected processed skipped entry, got %+v", stored)
	}
	f.confirm(t, next, model.SettlementResponse{})
	expectAmount(t, "active", f.bridge.ActiveAmount(perpPool, usdc, alice), 5)
}

func TestEnqueueValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.bridge.DepositPerp(ctx, alice, perpPool, usdc, big.NewInt(0), alice, nil)
	if err != nil || id != 0 {
		t.Fatalf("zero deposit = %d, %v", id, err)
	}
	if f.bridge.FeesCollected().Sign() != 0 {
		t.Fatalf("zero deposit charged a fee")
	}

	_, err = f.bridge.DepositPerp(ctx, alice, perpPool, usdc, big.NewInt(1), alice, big.NewInt(1))
	if !errors.Is(err, model.ErrInsufficientFee) {
		t.Fatalf("expected insufficient fee, got %v", err)
	}
	_, err = f.bridge.DepositPerp(ctx, alice, perpPool, weth, big.NewInt(1), alice, settlementFee)
	if !errors.Is(err, model.ErrAdmissionRejected) {
		t.Fatalf("expected unregistered token rejection, got %v", err)
	}
	_, err = f.bridge.DepositPerp(ctx, alice, 99, usdc, big.NewInt(1), alice, settlementFee)
	if !errors.Is(err, model.ErrUnknownPool) {
		t.Fatalf("expected unknown pool, got %v", err)
	}
	_, err = f.bridge.DepositPerp(ctx, alice, spotPool, usdc, big.NewInt(1), alice, settlementFee)
	if !errors.Is(err, model.ErrAdmissionRejected) {
		t.Fatalf("expected pool type rejection, got %v", err)
	}
	_, err = f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(1), settlementFee)
	if !errors.Is(err, model.ErrInsufficientActiveBalance) {
		t.Fatalf("expected insufficient active balance, got %v", err)
	}

	f.depositPerp(t, alice, usdc, 1)
	expectAmount(t, "fees", f.bridge.FeesCollected(), settlementFee.Int64())

	// an overpayment is kept in full
	overpaid := new(big.Int).Add(settlementFee, big.NewInt(5))
	if _, err := f.bridge.DepositPerp(ctx, alice, perpPool, usdc, big.NewInt(1), alice, overpaid); err != nil {
		t.Fatalf("overpaid deposit: %v", err)
	}
	expectAmount(t, "fees after overpayment", f.bridge.FeesCollected(), 2*settlementFee.Int64()+5)
	quoted, err := f.bridge.SettlementFee(ctx)
	if err != nil || quoted.Cmp(settlementFee) != 0 {
		t.Fatalf("settlement fee = %v, %v", quoted, err)
	}
}

func TestPauseGating(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.confirm(t, f.depositPerp(t, alice, usdc, 10), model.SettlementResponse{})

	if err := f.bridge.SetPaused(ctx, alice, OpDeposits, true); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := f.bridge.SetPaused(ctx, admin, OpDeposits, true); err != nil {
		t.Fatalf("pause deposits: %v", err)
	}
	if _, err := f.bridge.DepositPerp(ctx, alice, perpPool, usdc, big.NewInt(1), alice, settlementFee); !errors.Is(err, model.ErrPaused) {
		t.Fatalf("expected paused deposit, got %v", err)
	}
	id, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(5), settlementFee)
	if err != nil {
		t.Fatalf("withdraw while deposits paused: %v", err)
	}
	f.confirm(t, id, model.SettlementResponse{})

	if err := f.bridge.SetPaused(ctx, admin, OpWithdrawals, true); err != nil {
		t.Fatalf("pause withdrawals: %v", err)
	}
	if _, err := f.bridge.WithdrawPerp(ctx, alice, perpPool, usdc, big.NewInt(1), settlementFee); !errors.Is(err, model.ErrPaused) {
		t.Fatalf("expected paused withdraw, got %v", err)
	}

	if err := f.bridge.SetPaused(ctx, admin, OpClaims, true); err != nil {
		t.Fatalf("pause claims: %v", err)
	}
	if _, err := f.bridge.Claim(ctx, alice, perpPool, usdc); !errors.Is(err, model.ErrPaused) {
		t.Fatalf("expected paused claim, got %v", err)
	}
	if paused := f.bridge.Paused(); !paused.Deposits || !paused.Withdrawals || !paused.Claims {
		t.Fatalf("unexpected flags %+v", paused)
	}

	if err := f.bridge.SetPaused(ctx, admin, OpClaims, false); err != nil {
		t.Fatalf("unpause claims: %v", err)
	}
	view, _ := f.bridge.PoolToken(perpPool, usdc)
	f.custody.Fund(view.Router.Address, usdc, big.NewInt(100))
	paid, err := f.bridge.Claim(ctx, alice, perpPool, usdc)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	expectAmount(t, "claimed", paid, 4)
}

func TestAdminOperationsRequireAdmin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.bridge.AddPool(ctx, alice, 9, nil, nil, model.PoolTypePerp, common.Hash{})
	if !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	err = f.bridge.AddPool(ctx, admin, perpPool, nil, nil, model.PoolTypePerp, common.Hash{})
	if !errors.Is(err, model.ErrDuplicatePool) {
		t.Fatalf("expected duplicate pool, got %v", err)
	}
	if err := f.bridge.UpdateQuoteToken(ctx, bob, weth); !errors.Is(err, model.ErrUnauthorized) {
		t.Fatalf("expected unauthorized quote update, got %v", err)
	}
	if f.bridge.QuoteToken() != usdc {
		t.Fatalf("quote token = %s", f.bridge.QuoteToken().Hex())
	}
}

func TestRestoreFromSnapshot(t *testing.T) {
	f := newFixture(t)
	f.confirm(t, f.depositPerp(t, alice, usdc, 42), model.SettlementResponse{})
	f.depositPerp(t, alice, usdc, 1)

	state := model.NewState()
	if err := state.Apply(f.bridge.Snapshot()); err != nil {
		t.Fatalf("apply snapshot: %v", err)
	}
	restored, err := New(f.bridge.cfg, state, Deps{Router: registry.DeriveRouter(settler)}, nil)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	expectAmount(t, "active", restored.ActiveAmount(perpPool, usdcE, alice), 42)
	if cursor := restored.Cursor(); cursor.UpTo != 1 || cursor.Count != 2 {
		t.Fatalf("restored cursor %+v", cursor)
	}
	if restored.Resolve(usdc) != usdcE {
		t.Fatalf("alias lost on restore")
	}
	pools := restored.Pools()
	if len(pools) != 2 || pools[0].ID != perpPool || pools[1].ID != spotPool {
		t.Fatalf("restored pools %+v", pools)
	}
	if buckets := restored.Buckets(spotPool); len(buckets) != 2 {
		t.Fatalf("expected 2 spot buckets, got %d", len(buckets))
	}
}
