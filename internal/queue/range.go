package queue

import (
	"fmt"

	"vaultBridge/internal/model"
)

// IDRange represents an inclusive range of entry ids.
type IDRange struct {
	From uint64
	To   uint64
}

// Len returns the number of ids in the range.
func (r IDRange) Len() uint64 {
	return r.To - r.From + 1
}

// PendingRange returns the ids a cursor has yet to process. ok is false
// when nothing is pending.
func PendingRange(c model.Cursor) (IDRange, bool) {
	if c.UpTo >= c.Count {
		return IDRange{}, false
	}
	return IDRange{From: c.UpTo + 1, To: c.Count}, true
}

// SplitRange splits an id range into batches of size batchSize.
func SplitRange(from, to, batchSize uint64) ([]IDRange, error) {
	if batchSize == 0 {
		return nil, fmt.Errorf("batch size must be greater than zero")
	}
	if to < from {
		return nil, fmt.Errorf("to id must be >= from id")
	}

	ranges := make([]IDRange, 0)
	start := from
	for start <= to {
		end := to
		if to-start+1 > batchSize {
			end = start + batchSize - 1
		}
		ranges = append(ranges, IDRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}

	return ranges, nil
}
