package custody

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Outbox is a Sender that appends prepared transfers to a JSONL file for an
// external signer to broadcast. The signer removes lines once their
// transfers are mined, so the file holds only outstanding transfers.
type Outbox struct {
	path string
	mu   sync.Mutex
}

func NewOutbox(path string) *Outbox {
	return &Outbox{path: path}
}

// Send appends transfer as one JSON line.
func (o *Outbox) Send(_ context.Context, transfer Transfer) error {
	dir := filepath.Dir(o.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create outbox dir: %w", err)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	file, err := os.OpenFile(o.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open outbox: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(transfer)
	if err != nil {
		return fmt.Errorf("marshal transfer: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write transfer: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush outbox: %w", err)
	}
	return nil
}

// Pending returns the transfers still in the outbox. A missing file has none;
// a torn final line from an interrupted append is ignored.
func (o *Outbox) Pending() ([]Transfer, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	data, err := os.ReadFile(o.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read outbox: %w", err)
	}
	lines := bytes.Split(data, []byte{'\n'})
	var out []Transfer
	for i, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var transfer Transfer
		if err := json.Unmarshal(line, &transfer); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, fmt.Errorf("parse outbox line %d: %w", i+1, err)
		}
		out = append(out, transfer)
	}
	return out, nil
}
