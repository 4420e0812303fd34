package storage

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"vaultBridge/internal/model"
)

// record is one journal line: the change set of a single operation.
type record struct {
	Seq     uint64          `json:"seq"`
	At      string          `json:"at"`
	Changes model.ChangeSet `json:"changes"`
}

// snapshot is a compacted state together with the last journal sequence it
// covers.
type snapshot struct {
	Seq     uint64          `json:"seq"`
	TakenAt string          `json:"taken_at"`
	Changes model.ChangeSet `json:"changes"`
}

// FileStore keeps an append-only JSONL journal of change sets and an
// optional compacted snapshot next to it.
type FileStore struct {
	journal  string
	snapshot string

	mu       sync.Mutex
	seq      uint64
	syncFile func(*os.File) error
}

func NewFileStore(journal, snapshot string) *FileStore {
	return &FileStore{
		journal:  journal,
		snapshot: snapshot,
		syncFile: (*os.File).Sync,
	}
}

// Load rebuilds state from the snapshot followed by every newer journal
// record. A torn final line left by a crash mid-append is ignored.
func (s *FileStore) Load(_ context.Context) (*model.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.NewState()
	snap, ok, err := s.readSnapshot()
	if err != nil {
		return nil, err
	}
	if ok {
		if err := state.Apply(snap.Changes); err != nil {
			return nil, fmt.Errorf("apply snapshot: %w", err)
		}
		s.seq = snap.Seq
	}

	data, err := os.ReadFile(s.journal)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read journal: %w", err)
	}
	lines := bytes.Split(data, []byte{'\n'})
	for i, line := range lines {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var rec record
		if err := json.Unmarshal(line, &rec); err != nil {
			if i == len(lines)-1 {
				if err := os.Truncate(s.journal, int64(len(data)-len(line))); err != nil {
					return nil, fmt.Errorf("drop torn journal tail: %w", err)
				}
				break
			}
			return nil, fmt.Errorf("parse journal line %d: %w", i+1, err)
		}
		if rec.Seq <= s.seq {
			continue
		}
		if err := state.Apply(rec.Changes); err != nil {
			return nil, fmt.Errorf("replay journal seq %d: %w", rec.Seq, err)
		}
		s.seq = rec.Seq
	}

	upgraded, err := Migrate(state)
	if err != nil {
		return nil, err
	}
	if !upgraded.Empty() {
		if err := s.appendLocked(upgraded); err != nil {
			return nil, fmt.Errorf("persist migration: %w", err)
		}
	}
	return state, nil
}

// Apply appends cs as one journal line and syncs it to disk. A failed
// append is cut back off the journal so a retry never lands after a
// partial line.
func (s *FileStore) Apply(_ context.Context, cs model.ChangeSet) error {
	if cs.Empty() {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendLocked(cs)
}

func (s *FileStore) appendLocked(cs model.ChangeSet) error {
	dir := filepath.Dir(s.journal)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create journal dir: %w", err)
		}
	}

	rec := record{
		Seq:     s.seq + 1,
		At:      time.Now().UTC().Format(time.RFC3339Nano),
		Changes: cs,
	}
	line, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal change set: %w", err)
	}

	file, err := os.OpenFile(s.journal, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat journal: %w", err)
	}
	size := stat.Size()

	if err := s.writeLine(file, line); err != nil {
		if truncErr := file.Truncate(size); truncErr != nil {
			return fmt.Errorf("%w (truncate to %d: %v)", err, size, truncErr)
		}
		return err
	}

	s.seq = rec.Seq
	return nil
}

func (s *FileStore) writeLine(file *os.File, line []byte) error {
	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush journal: %w", err)
	}
	if err := s.syncFile(file); err != nil {
		return fmt.Errorf("sync journal: %w", err)
	}
	return nil
}

// Compact writes full as the new snapshot and truncates the journal. Records
// that survive a crash between the two steps are skipped on load by their
// sequence number.
func (s *FileStore) Compact(_ context.Context, full model.ChangeSet) error {
	if s.snapshot == "" {
		return fmt.Errorf("snapshot path not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := snapshot{
		Seq:     s.seq,
		TakenAt: time.Now().UTC().Format(time.RFC3339Nano),
		Changes: full,
	}
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if err := writeAtomic(s.snapshot, data); err != nil {
		return err
	}
	if err := writeAtomic(s.journal, nil); err != nil {
		return fmt.Errorf("truncate journal: %w", err)
	}
	return nil
}

func (s *FileStore) readSnapshot() (snapshot, bool, error) {
	if s.snapshot == "" {
		return snapshot{}, false, nil
	}

	stat, err := os.Stat(s.snapshot)
	if err != nil {
		if os.IsNotExist(err) {
			return snapshot{}, false, nil
		}
		return snapshot{}, false, fmt.Errorf("stat snapshot: %w", err)
	}
	if stat.IsDir() {
		return snapshot{}, false, fmt.Errorf("snapshot path is a directory")
	}

	data, err := os.ReadFile(s.snapshot)
	if err != nil {
		return snapshot{}, false, fmt.Errorf("read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return snapshot{}, false, fmt.Errorf("parse snapshot: %w", err)
	}
	return snap, true, nil
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create dir: %w", err)
		}
	}
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename %s: %w", tmpPath, err)
	}
	return nil
}
