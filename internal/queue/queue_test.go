package queue

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
)

func TestRequestCodecSpot(t *testing.T) {
	req := model.Request{
		PoolID:    3,
		Tokens:    []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111"), common.HexToAddress("0x2222222222222222222222222222222222222222")},
		Amounts:   []*big.Int{big.NewInt(1), big.NewInt(2500)},
		Sender:    common.HexToAddress("0x3333333333333333333333333333333333333333"),
		Recipient: common.HexToAddress("0x4444444444444444444444444444444444444444"),
	}

	data, err := EncodeRequest(model.KindDepositSpot, req)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := DecodeRequest(model.KindDepositSpot, data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	if got.PoolID != 3 || got.Tokens[1] != req.Tokens[1] || got.Amounts[1].Int64() != 2500 || got.Recipient != req.Recipient {
		t.Fatalf("decoded mismatch: %+v", got)
	}
}

func TestRequestCodecRejectsWrongLegs(t *testing.T) {
	req := model.Request{
		PoolID:  1,
		Tokens:  []common.Address{common.HexToAddress("0x1111111111111111111111111111111111111111")},
		Amounts: []*big.Int{big.NewInt(5)},
	}
	if _, err := EncodeRequest(model.KindDepositSpot, req); err == nil {
		t.Fatalf("expected leg count error")
	}

	data, err := EncodeRequest(model.KindDepositPerp, req)
	if err != nil {
		t.Fatalf("encode perp: %v", err)
	}
	if _, err := DecodeRequest(model.KindWithdrawSpot, data); err == nil {
		t.Fatalf("expected leg count error decoding perp payload as spot")
	}
	if _, err := DecodeRequest(model.KindDepositPerp, []byte{0xde, 0xad}); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestQueueOrdering(t *testing.T) {
	state := model.NewState()
	q := New(state)

	if _, err := q.PeekNext(); !errors.Is(err, model.ErrQueueEmpty) {
		t.Fatalf("expected empty queue, got %v", err)
	}

	for i := 0; i < 2; i++ {
		entry, meta := q.PlanEnqueue(model.KindDepositPerp, []byte{byte(i)}, "")
		meta2 := meta
		if err := state.Apply(model.ChangeSet{Entries: []model.QueueEntry{entry}, Meta: &meta2}); err != nil {
			t.Fatalf("apply: %v", err)
		}
	}
	if q.Cursor().Count != 2 || q.Cursor().Pending() != 2 {
		t.Fatalf("cursor mismatch: %+v", q.Cursor())
	}

	if _, err := q.CheckNext(2); !errors.Is(err, model.ErrOutOfOrderSettlement) {
		t.Fatalf("expected out of order, got %v", err)
	}
	next, err := q.CheckNext(1)
	if err != nil {
		t.Fatalf("check next: %v", err)
	}

	processed, meta := q.PlanProcess(next, model.Outcome{Status: model.OutcomeApplied})
	if err := state.Apply(model.ChangeSet{Entries: []model.QueueEntry{processed}, Meta: &meta}); err != nil {
		t.Fatalf("apply process: %v", err)
	}

	peek, err := q.PeekNext()
	if err != nil || peek.ID != 2 {
		t.Fatalf("peek mismatch: %+v %v", peek, err)
	}
	if entries := q.Entries(1, 0); len(entries) != 2 || !entries[0].Processed {
		t.Fatalf("entries mismatch: %+v", entries)
	}
	if _, err := q.CheckNext(1); !errors.Is(err, model.ErrOutOfOrderSettlement) {
		t.Fatalf("reprocessing should be out of order, got %v", err)
	}
}
