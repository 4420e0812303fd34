package operator

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"os"

	"vaultBridge/internal/model"
)

// responseRecord is one line of a venue response file. Amounts are decimal
// strings; omitting them means the venue accepted the request as queued.
type responseRecord struct {
	ID      uint64   `json:"id"`
	Amounts []string `json:"amounts,omitempty"`
}

// ResponseBook answers entries from venue responses recorded ahead of time.
// Entries without a record settle as requested.
type ResponseBook struct {
	responses map[uint64]model.SettlementResponse
}

// LoadResponses reads a JSONL response file. An empty path yields an empty
// book.
func LoadResponses(path string) (*ResponseBook, error) {
	book := &ResponseBook{responses: make(map[uint64]model.SettlementResponse)}
	if path == "" {
		return book, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open responses: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 10*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var record responseRecord
		if err := json.Unmarshal(line, &record); err != nil {
			return nil, fmt.Errorf("parse responses line %d: %w", lineNo, err)
		}
		if record.ID == 0 {
			return nil, fmt.Errorf("responses line %d: missing id", lineNo)
		}
		resp := model.SettlementResponse{}
		if record.Amounts != nil {
			resp.Amounts = make([]*big.Int, len(record.Amounts))
			for i, raw := range record.Amounts {
				amount, ok := new(big.Int).SetString(raw, 10)
				if !ok || amount.Sign() < 0 {
					return nil, fmt.Errorf("responses line %d: invalid amount %q", lineNo, raw)
				}
				resp.Amounts[i] = amount
			}
		}
		book.responses[record.ID] = resp
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan responses: %w", err)
	}
	return book, nil
}

// Len returns the number of recorded responses.
func (b *ResponseBook) Len() int {
	return len(b.responses)
}

func (b *ResponseBook) Respond(_ context.Context, entry model.QueueEntry) (model.SettlementResponse, error) {
	return b.responses[entry.ID], nil
}
