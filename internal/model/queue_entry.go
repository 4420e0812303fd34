package model

import (
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// EntryKind identifies the request type of a queue entry.
type EntryKind uint8

const (
	KindDepositPerp EntryKind = iota + 1
	KindWithdrawPerp
	KindDepositSpot
	KindWithdrawSpot
)

var entryKindNames = map[EntryKind]string{
	KindDepositPerp:  "deposit_perp",
	KindWithdrawPerp: "withdraw_perp",
	KindDepositSpot:  "deposit_spot",
	KindWithdrawSpot: "withdraw_spot",
}

func (k EntryKind) String() string {
	if name, ok := entryKindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// IsDeposit reports whether the kind credits active balances on confirm.
func (k EntryKind) IsDeposit() bool {
	return k == KindDepositPerp || k == KindDepositSpot
}

// PoolType returns the pool type the kind operates on.
func (k EntryKind) PoolType() PoolType {
	if k == KindDepositSpot || k == KindWithdrawSpot {
		return PoolTypeSpot
	}
	return PoolTypePerp
}

// ParseEntryKind parses a kind name such as "deposit_perp".
func ParseEntryKind(input string) (EntryKind, error) {
	name := strings.ToLower(strings.TrimSpace(input))
	for kind, known := range entryKindNames {
		if known == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unsupported entry kind: %s", input)
}

func (k EntryKind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *EntryKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseEntryKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

const (
	OutcomeApplied = "applied"
	OutcomeSkipped = "skipped"
)

// Outcome records how a processed entry affected the ledger.
type Outcome struct {
	Status      string     `json:"status"`
	Reason      string     `json:"reason,omitempty"`
	Amounts     []*big.Int `json:"amounts,omitempty"`
	ProcessedAt string     `json:"processed_at"`
}

// QueueEntry is one slot of the settlement log. Canonicals holds the
// canonical id of each payload leg as resolved at enqueue; confirm settles
// against these even if an alias is remapped in between.
type QueueEntry struct {
	ID         uint64           `json:"id"`
	Kind       EntryKind        `json:"kind"`
	Payload    hexutil.Bytes    `json:"payload"`
	Canonicals []common.Address `json:"canonicals,omitempty"`
	Processed  bool             `json:"processed"`
	Outcome    *Outcome         `json:"outcome,omitempty"`
	CreatedAt  string           `json:"created_at"`
}

// Cursor tracks the last processed and last enqueued entry ids.
type Cursor struct {
	UpTo  uint64 `json:"up_to"`
	Count uint64 `json:"count"`
}

// Pending returns the number of unprocessed entries.
func (c Cursor) Pending() uint64 {
	return c.Count - c.UpTo
}

// SettlementResponse carries venue-determined values for a confirm.
// Amounts holds the credited amount per leg; nil means "as requested".
type SettlementResponse struct {
	Amounts []*big.Int `json:"amounts,omitempty"`
}
