package model

import (
	"bytes"
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// StateVersion is the schema version written by this build.
const StateVersion = 3

// Flags holds the independent pause switches.
type Flags struct {
	Deposits    bool `json:"deposits"`
	Withdrawals bool `json:"withdrawals"`
	Claims      bool `json:"claims"`
}

// Meta carries the singleton bridge fields.
type Meta struct {
	Version       int            `json:"version"`
	Cursor        Cursor         `json:"cursor"`
	QuoteToken    common.Address `json:"quote_token"`
	Paused        Flags          `json:"paused"`
	FeesCollected *big.Int       `json:"fees_collected"`
}

// ChangeSet is the unit of atomic persistence: every row an operation
// touched, in its final form.
type ChangeSet struct {
	Pools      []Pool       `json:"pools,omitempty"`
	PoolTokens []PoolToken  `json:"pool_tokens,omitempty"`
	Gates      []TokenGate  `json:"gates,omitempty"`
	Aliases    []Alias      `json:"aliases,omitempty"`
	Positions  []Position   `json:"positions,omitempty"`
	Entries    []QueueEntry `json:"entries,omitempty"`
	Meta       *Meta        `json:"meta,omitempty"`
}

// Empty reports whether the change set carries no rows.
func (cs ChangeSet) Empty() bool {
	return len(cs.Pools) == 0 && len(cs.PoolTokens) == 0 && len(cs.Gates) == 0 &&
		len(cs.Aliases) == 0 && len(cs.Positions) == 0 && len(cs.Entries) == 0 && cs.Meta == nil
}

// State is the full persisted bridge state.
type State struct {
	Pools      map[uint64]Pool
	PoolTokens map[PoolTokenKey]PoolToken
	Gates      map[GateKey]TokenGate
	Aliases    map[common.Address]common.Address
	Positions  map[PositionKey]Position
	Entries    []QueueEntry
	Meta       Meta
}

// NewState returns an empty state at the current version.
func NewState() *State {
	return &State{
		Pools:      make(map[uint64]Pool),
		PoolTokens: make(map[PoolTokenKey]PoolToken),
		Gates:      make(map[GateKey]TokenGate),
		Aliases:    make(map[common.Address]common.Address),
		Positions:  make(map[PositionKey]Position),
		Meta:       Meta{Version: StateVersion, FeesCollected: new(big.Int)},
	}
}

// Apply folds a change set into the state.
func (s *State) Apply(cs ChangeSet) error {
	for _, pool := range cs.Pools {
		s.Pools[pool.ID] = pool
	}
	for _, pt := range cs.PoolTokens {
		s.PoolTokens[pt.Key()] = pt
	}
	for _, gate := range cs.Gates {
		s.Gates[gate.Key()] = gate
	}
	for _, alias := range cs.Aliases {
		s.Aliases[alias.Token] = alias.Canonical
	}
	for _, pos := range cs.Positions {
		s.Positions[pos.Key()] = pos
	}
	for _, entry := range cs.Entries {
		switch {
		case entry.ID == uint64(len(s.Entries))+1:
			s.Entries = append(s.Entries, entry)
		case entry.ID >= 1 && entry.ID <= uint64(len(s.Entries)):
			s.Entries[entry.ID-1] = entry
		default:
			return fmt.Errorf("entry %d leaves a gap after %d", entry.ID, len(s.Entries))
		}
	}
	if cs.Meta != nil {
		s.Meta = *cs.Meta
	}
	return nil
}

// Snapshot returns a change set that rebuilds the state from empty.
func (s *State) Snapshot() ChangeSet {
	cs := ChangeSet{
		Pools:      make([]Pool, 0, len(s.Pools)),
		PoolTokens: make([]PoolToken, 0, len(s.PoolTokens)),
		Gates:      make([]TokenGate, 0, len(s.Gates)),
		Aliases:    make([]Alias, 0, len(s.Aliases)),
		Positions:  make([]Position, 0, len(s.Positions)),
		Entries:    append([]QueueEntry(nil), s.Entries...),
	}
	for _, pool := range s.Pools {
		cs.Pools = append(cs.Pools, pool)
	}
	for _, pt := range s.PoolTokens {
		cs.PoolTokens = append(cs.PoolTokens, pt)
	}
	for _, gate := range s.Gates {
		cs.Gates = append(cs.Gates, gate)
	}
	for token, canonical := range s.Aliases {
		cs.Aliases = append(cs.Aliases, Alias{Token: token, Canonical: canonical})
	}
	for _, pos := range s.Positions {
		cs.Positions = append(cs.Positions, pos)
	}
	sort.Slice(cs.Pools, func(i, j int) bool { return cs.Pools[i].ID < cs.Pools[j].ID })
	sort.Slice(cs.PoolTokens, func(i, j int) bool {
		a, b := cs.PoolTokens[i], cs.PoolTokens[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		return bytes.Compare(a.Canonical[:], b.Canonical[:]) < 0
	})
	sort.Slice(cs.Gates, func(i, j int) bool {
		a, b := cs.Gates[i], cs.Gates[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		return bytes.Compare(a.Token[:], b.Token[:]) < 0
	})
	sort.Slice(cs.Aliases, func(i, j int) bool {
		return bytes.Compare(cs.Aliases[i].Token[:], cs.Aliases[j].Token[:]) < 0
	})
	sort.Slice(cs.Positions, func(i, j int) bool {
		a, b := cs.Positions[i], cs.Positions[j]
		if a.PoolID != b.PoolID {
			return a.PoolID < b.PoolID
		}
		if c := bytes.Compare(a.Canonical[:], b.Canonical[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(a.User[:], b.User[:]) < 0
	})

	meta := s.Meta
	cs.Meta = &meta
	return cs
}
