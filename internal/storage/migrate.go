package storage

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
)

// migrations[v] upgrades a state written at version v to v+1 and returns
// the ids of the entries it rewrote.
var migrations = map[int]func(*model.State) []uint64{
	// version 1 predates fee accounting and entry outcomes
	1: func(state *model.State) []uint64 {
		if state.Meta.FeesCollected == nil {
			state.Meta.FeesCollected = new(big.Int)
		}
		var touched []uint64
		for i, entry := range state.Entries {
			if entry.Processed && entry.Outcome == nil {
				state.Entries[i].Outcome = &model.Outcome{Status: model.OutcomeApplied, Reason: "migrated"}
				touched = append(touched, entry.ID)
			}
		}
		return touched
	},
	// version 2 entries carry no canonical ids; pin pending ones to the
	// alias table as it stands at upgrade
	2: func(state *model.State) []uint64 {
		var touched []uint64
		for i, entry := range state.Entries {
			if entry.Processed || len(entry.Canonicals) > 0 {
				continue
			}
			req, err := queue.DecodeRequest(entry.Kind, entry.Payload)
			if err != nil {
				// confirm skips it as malformed
				continue
			}
			canonicals := make([]common.Address, len(req.Tokens))
			for j, token := range req.Tokens {
				canonicals[j] = token
				if canonical, ok := state.Aliases[token]; ok {
					canonicals[j] = canonical
				}
			}
			state.Entries[i].Canonicals = canonicals
			touched = append(touched, entry.ID)
		}
		return touched
	},
}

// Migrate upgrades state in place to model.StateVersion. The returned change
// set holds every row the upgrade rewrote, for the store to persist; it is
// empty when state was already current.
func Migrate(state *model.State) (model.ChangeSet, error) {
	if state.Meta.Version > model.StateVersion {
		return model.ChangeSet{}, fmt.Errorf("state version %d is newer than supported %d", state.Meta.Version, model.StateVersion)
	}
	if state.Meta.Version == model.StateVersion {
		return model.ChangeSet{}, nil
	}

	touched := make(map[uint64]struct{})
	for state.Meta.Version < model.StateVersion {
		from := state.Meta.Version
		migrate, ok := migrations[from]
		if !ok {
			return model.ChangeSet{}, fmt.Errorf("no migration from state version %d", from)
		}
		for _, id := range migrate(state) {
			touched[id] = struct{}{}
		}
		state.Meta.Version = from + 1
	}

	ids := make([]uint64, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var cs model.ChangeSet
	for _, id := range ids {
		cs.Entries = append(cs.Entries, state.Entries[id-1])
	}
	meta := state.Meta
	cs.Meta = &meta
	return cs, nil
}
