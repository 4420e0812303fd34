package queue

import (
	"fmt"

	"vaultBridge/internal/model"
)

// Queue is the settlement log view over bridge state.
type Queue struct {
	state *model.State
}

func New(state *model.State) *Queue {
	return &Queue{state: state}
}

// Cursor returns the processed and enqueued watermarks.
func (q *Queue) Cursor() model.Cursor {
	return q.state.Meta.Cursor
}

// Entry returns an entry by id.
func (q *Queue) Entry(id uint64) (model.QueueEntry, bool) {
	if id == 0 || id > uint64(len(q.state.Entries)) {
		return model.QueueEntry{}, false
	}
	return q.state.Entries[id-1], true
}

// PeekNext returns the next unprocessed entry.
func (q *Queue) PeekNext() (model.QueueEntry, error) {
	cursor := q.Cursor()
	if cursor.UpTo >= cursor.Count {
		return model.QueueEntry{}, model.ErrQueueEmpty
	}
	entry, ok := q.Entry(cursor.UpTo + 1)
	if !ok {
		return model.QueueEntry{}, fmt.Errorf("entry %d missing below count %d", cursor.UpTo+1, cursor.Count)
	}
	return entry, nil
}

// Entries returns entries with ids in [from, to], clamped to the log.
func (q *Queue) Entries(from, to uint64) []model.QueueEntry {
	count := uint64(len(q.state.Entries))
	if from == 0 {
		from = 1
	}
	if to == 0 || to > count {
		to = count
	}
	if from > to {
		return nil
	}
	out := make([]model.QueueEntry, 0, to-from+1)
	out = append(out, q.state.Entries[from-1:to]...)
	return out
}

// PlanEnqueue returns the entry and meta rows appending a request.
func (q *Queue) PlanEnqueue(kind model.EntryKind, payload []byte, createdAt string) (model.QueueEntry, model.Meta) {
	meta := q.state.Meta
	meta.Cursor.Count++
	entry := model.QueueEntry{
		ID:        meta.Cursor.Count,
		Kind:      kind,
		Payload:   append([]byte(nil), payload...),
		CreatedAt: createdAt,
	}
	return entry, meta
}

// CheckNext verifies id is the next entry to process.
func (q *Queue) CheckNext(id uint64) (model.QueueEntry, error) {
	cursor := q.Cursor()
	if id != cursor.UpTo+1 {
		return model.QueueEntry{}, fmt.Errorf("confirm %d, next is %d: %w", id, cursor.UpTo+1, model.ErrOutOfOrderSettlement)
	}
	if cursor.UpTo >= cursor.Count {
		return model.QueueEntry{}, fmt.Errorf("confirm %d: %w", id, model.ErrQueueEmpty)
	}
	return q.PeekNext()
}

// PlanProcess returns the rows marking entry processed with outcome and
// advancing the cursor past it.
func (q *Queue) PlanProcess(entry model.QueueEntry, outcome model.Outcome) (model.QueueEntry, model.Meta) {
	meta := q.state.Meta
	meta.Cursor.UpTo = entry.ID
	entry.Processed = true
	entry.Outcome = &outcome
	return entry, meta
}
