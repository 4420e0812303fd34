package operator

import (
	"context"
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
)

var operatorAddr = common.HexToAddress("0x9999999999999999999999999999999999999999")

// fakeSettler confirms entries in order and fails the first failures calls.
type fakeSettler struct {
	cursor    model.Cursor
	failures  int
	confirmed []uint64
	responses []model.SettlementResponse
}

func (f *fakeSettler) Cursor() model.Cursor { return f.cursor }

func (f *fakeSettler) Entries(from, to uint64) []model.QueueEntry {
	var out []model.QueueEntry
	for id := from; id <= to && id <= f.cursor.Count; id++ {
		out = append(out, model.QueueEntry{ID: id, Kind: model.KindDepositPerp})
	}
	return out
}

func (f *fakeSettler) Confirm(_ context.Context, caller common.Address, id uint64, resp model.SettlementResponse) (model.Outcome, error) {
	if caller != operatorAddr {
		return model.Outcome{}, model.ErrUnauthorizedSettlement
	}
	if id != f.cursor.UpTo+1 {
		return model.Outcome{}, model.ErrOutOfOrderSettlement
	}
	if f.failures > 0 {
		f.failures--
		return model.Outcome{}, errors.New("disk busy")
	}
	f.cursor.UpTo = id
	f.confirmed = append(f.confirmed, id)
	f.responses = append(f.responses, resp)
	status := model.OutcomeApplied
	if resp.Amounts != nil && resp.Amounts[0].Sign() == 0 {
		status = model.OutcomeSkipped
	}
	return model.Outcome{Status: status}, nil
}

func TestRunnerSettlesInOrder(t *testing.T) {
	settler := &fakeSettler{cursor: model.Cursor{UpTo: 2, Count: 7}, failures: 1}
	runner := NewRunner(RunConfig{Operator: operatorAddr, BatchSize: 2, MaxRetries: 2, RetryBackoff: time.Millisecond}, settler, nil, nil)

	n, err := runner.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if n != 5 {
		t.Fatalf("processed %d, want 5", n)
	}
	for i, id := range settler.confirmed {
		if id != uint64(i+3) {
			t.Fatalf("confirmed %v out of order", settler.confirmed)
		}
	}

	n, err = runner.Run(context.Background())
	if err != nil || n != 0 {
		t.Fatalf("second run = %d, %v", n, err)
	}
}

func TestRunnerStopsOnUnauthorized(t *testing.T) {
	settler := &fakeSettler{cursor: model.Cursor{Count: 1}}
	runner := NewRunner(RunConfig{Operator: common.Address{}, BatchSize: 10, MaxRetries: 5, RetryBackoff: time.Hour}, settler, nil, nil)

	_, err := runner.Run(context.Background())
	if !errors.Is(err, model.ErrUnauthorizedSettlement) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
}

func TestResponseBook(t *testing.T) {
	path := filepath.Join(t.TempDir(), "responses.jsonl")
	content := "{\"id\":1,\"amounts\":[\"0\"]}\n\n{\"id\":2,\"amounts\":[\"60\"]}\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write responses: %v", err)
	}
	book, err := LoadResponses(path)
	if err != nil {
		t.Fatalf("load responses: %v", err)
	}
	if book.Len() != 2 {
		t.Fatalf("len = %d", book.Len())
	}

	settler := &fakeSettler{cursor: model.Cursor{Count: 3}}
	runner := NewRunner(RunConfig{Operator: operatorAddr, BatchSize: 10}, settler, book, nil)
	if _, err := runner.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if settler.responses[0].Amounts[0].Sign() != 0 {
		t.Fatalf("entry 1 should carry a zero response")
	}
	if settler.responses[1].Amounts[0].Cmp(big.NewInt(60)) != 0 {
		t.Fatalf("entry 2 response = %v", settler.responses[1].Amounts)
	}
	if settler.responses[2].Amounts != nil {
		t.Fatalf("entry 3 should settle as requested")
	}

	if err := os.WriteFile(path, []byte("{\"id\":1,\"amounts\":[\"-5\"]}\n"), 0o644); err != nil {
		t.Fatalf("write responses: %v", err)
	}
	if _, err := LoadResponses(path); err == nil {
		t.Fatalf("expected invalid amount error")
	}
}
