package registry

import (
	"fmt"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"

	"vaultBridge/internal/model"
)

// Registry is the pool and token view over bridge state. Plan methods never
// mutate state; they return the rows an admin action would write.
type Registry struct {
	state  *model.State
	router RouterFactory
}

func New(state *model.State, router RouterFactory) *Registry {
	if router == nil {
		router = DeriveRouter(common.Address{})
	}
	return &Registry{state: state, router: router}
}

// Resolve maps any asset address to its canonical id.
func (r *Registry) Resolve(token common.Address) common.Address {
	if canonical, ok := r.state.Aliases[token]; ok {
		return canonical
	}
	return token
}

// Pool returns a pool by id.
func (r *Registry) Pool(id uint64) (model.Pool, bool) {
	pool, ok := r.state.Pools[id]
	return pool, ok
}

// Pools returns every pool ordered by id.
func (r *Registry) Pools() []model.Pool {
	out := make([]model.Pool, 0, len(r.state.Pools))
	for _, pool := range r.state.Pools {
		out = append(out, pool)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Buckets returns the buckets of a pool ordered by canonical address.
func (r *Registry) Buckets(poolID uint64) []model.PoolToken {
	var out []model.PoolToken
	for key, pt := range r.state.PoolTokens {
		if key.PoolID == poolID {
			out = append(out, pt)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Canonical.Hex() < out[j].Canonical.Hex()
	})
	return out
}

// Bucket returns the bucket an address resolves to inside a pool.
func (r *Registry) Bucket(poolID uint64, token common.Address) (model.PoolToken, bool) {
	pt, ok := r.state.PoolTokens[model.PoolTokenKey{PoolID: poolID, Canonical: r.Resolve(token)}]
	return pt, ok
}

// CanonicalBucket returns the bucket keyed by an already resolved canonical
// id, ignoring the current alias table.
func (r *Registry) CanonicalBucket(poolID uint64, canonical common.Address) (model.PoolToken, bool) {
	pt, ok := r.state.PoolTokens[model.PoolTokenKey{PoolID: poolID, Canonical: canonical}]
	return pt, ok
}

// PinnedHardcap returns the hardcap for a deposit made through token into
// the bucket of canonical. A gate on token applies only while token still
// resolves to canonical.
func (r *Registry) PinnedHardcap(poolID uint64, token, canonical common.Address) (*big.Int, bool) {
	if r.Resolve(token) == canonical {
		if gate, ok := r.state.Gates[model.GateKey{PoolID: poolID, Token: token}]; ok {
			return gate.Hardcap, true
		}
	}
	pt, ok := r.CanonicalBucket(poolID, canonical)
	if !ok {
		return nil, false
	}
	return pt.Hardcap, true
}

// Hardcap returns the hardcap that gates deposits made through token.
func (r *Registry) Hardcap(poolID uint64, token common.Address) (*big.Int, bool) {
	if gate, ok := r.state.Gates[model.GateKey{PoolID: poolID, Token: token}]; ok {
		return gate.Hardcap, true
	}
	pt, ok := r.Bucket(poolID, token)
	if !ok {
		return nil, false
	}
	return pt.Hardcap, true
}

// View returns the bucket metadata as observed through token. Every field
// except Hardcap is shared by all aliases of the bucket; Hardcap is the
// per-address deposit cap, which is the alias's gate when one is set.
func (r *Registry) View(poolID uint64, token common.Address) (model.PoolTokenView, error) {
	pt, ok := r.Bucket(poolID, token)
	if !ok {
		return model.PoolTokenView{}, fmt.Errorf("pool %d token %s: %w", poolID, token.Hex(), model.ErrAdmissionRejected)
	}
	hardcap, _ := r.Hardcap(poolID, token)
	return model.PoolTokenView{
		PoolID:       poolID,
		Token:        token,
		Canonical:    pt.Canonical,
		Router:       pt.Router,
		ActiveAmount: new(big.Int).Set(pt.ActiveAmount),
		Hardcap:      new(big.Int).Set(hardcap),
		IsActive:     pt.IsActive,
	}, nil
}

// Settlers returns every distinct settlement identity bound to a bucket.
func (r *Registry) Settlers() map[common.Address]struct{} {
	out := make(map[common.Address]struct{})
	for _, pt := range r.state.PoolTokens {
		out[pt.Router.Settler] = struct{}{}
	}
	return out
}

// CheckDeposit validates that amount may be deposited into poolID through
// token. It does not reserve capacity.
func (r *Registry) CheckDeposit(poolID uint64, token common.Address, amount *big.Int) error {
	pt, ok := r.Bucket(poolID, token)
	if !ok {
		return fmt.Errorf("token %s not registered in pool %d: %w", token.Hex(), poolID, model.ErrAdmissionRejected)
	}
	if !pt.IsActive {
		return fmt.Errorf("token %s inactive in pool %d: %w", token.Hex(), poolID, model.ErrAdmissionRejected)
	}
	hardcap, _ := r.Hardcap(poolID, token)
	next := new(big.Int).Add(pt.ActiveAmount, amount)
	if hardcap.Sign() == 0 || next.Cmp(hardcap) > 0 {
		return fmt.Errorf("token %s hardcap %s reached in pool %d: %w", token.Hex(), hardcap, poolID, model.ErrAdmissionRejected)
	}
	return nil
}

// PlanAddPool returns the rows for a new pool and its initial tokens.
func (r *Registry) PlanAddPool(id uint64, tokens []common.Address, hardcaps []*big.Int, poolType model.PoolType, subaccount common.Hash) (model.ChangeSet, error) {
	if _, ok := r.state.Pools[id]; ok {
		return model.ChangeSet{}, fmt.Errorf("pool %d: %w", id, model.ErrDuplicatePool)
	}
	if poolType != model.PoolTypePerp && poolType != model.PoolTypeSpot {
		return model.ChangeSet{}, fmt.Errorf("invalid pool type %s", poolType)
	}

	pool := model.Pool{ID: id, Type: poolType, Subaccount: subaccount}
	cs := model.ChangeSet{Pools: []model.Pool{pool}}
	if err := r.planTokens(&cs, pool, tokens, hardcaps); err != nil {
		return model.ChangeSet{}, err
	}
	return cs, nil
}

// PlanAddPoolTokens returns the rows for additional tokens in a pool.
func (r *Registry) PlanAddPoolTokens(poolID uint64, tokens []common.Address, hardcaps []*big.Int) (model.ChangeSet, error) {
	pool, ok := r.state.Pools[poolID]
	if !ok {
		return model.ChangeSet{}, fmt.Errorf("pool %d: %w", poolID, model.ErrUnknownPool)
	}
	var cs model.ChangeSet
	if err := r.planTokens(&cs, pool, tokens, hardcaps); err != nil {
		return model.ChangeSet{}, err
	}
	return cs, nil
}

func (r *Registry) planTokens(cs *model.ChangeSet, pool model.Pool, tokens []common.Address, hardcaps []*big.Int) error {
	if len(tokens) != len(hardcaps) {
		return fmt.Errorf("tokens and hardcaps length mismatch: %d != %d", len(tokens), len(hardcaps))
	}

	staged := make(map[model.PoolTokenKey]bool)
	gated := make(map[common.Address]bool)
	for i, token := range tokens {
		if token == (common.Address{}) {
			return fmt.Errorf("zero token address")
		}
		hardcap := hardcaps[i]
		if hardcap == nil || hardcap.Sign() < 0 {
			return fmt.Errorf("invalid hardcap for %s", token.Hex())
		}

		canonical := r.Resolve(token)
		key := model.PoolTokenKey{PoolID: pool.ID, Canonical: canonical}
		_, exists := r.state.PoolTokens[key]
		exists = exists || staged[key]

		if !exists {
			cs.PoolTokens = append(cs.PoolTokens, model.PoolToken{
				PoolID:       pool.ID,
				Canonical:    canonical,
				Router:       r.router(pool, canonical),
				ActiveAmount: new(big.Int),
				Hardcap:      new(big.Int).Set(hardcap),
				IsActive:     true,
			})
			staged[key] = true
			if token == canonical {
				continue
			}
		} else if token == canonical {
			return fmt.Errorf("token %s already registered in pool %d", token.Hex(), pool.ID)
		}

		// aliases share the bucket but keep their own deposit gate
		gateKey := model.GateKey{PoolID: pool.ID, Token: token}
		if _, ok := r.state.Gates[gateKey]; ok || gated[token] {
			return fmt.Errorf("alias %s already registered in pool %d", token.Hex(), pool.ID)
		}
		cs.Gates = append(cs.Gates, model.TokenGate{PoolID: pool.ID, Token: token, Hardcap: new(big.Int).Set(hardcap)})
		gated[token] = true
	}
	return nil
}

// PlanUpdateHardcaps returns the rows for new hardcaps. A canonical address
// updates the bucket; an alias address updates only its own gate.
func (r *Registry) PlanUpdateHardcaps(poolID uint64, tokens []common.Address, hardcaps []*big.Int) (model.ChangeSet, error) {
	if _, ok := r.state.Pools[poolID]; !ok {
		return model.ChangeSet{}, fmt.Errorf("pool %d: %w", poolID, model.ErrUnknownPool)
	}
	if len(tokens) != len(hardcaps) {
		return model.ChangeSet{}, fmt.Errorf("tokens and hardcaps length mismatch: %d != %d", len(tokens), len(hardcaps))
	}

	var cs model.ChangeSet
	buckets := make(map[model.PoolTokenKey]int)
	for i, token := range tokens {
		hardcap := hardcaps[i]
		if hardcap == nil || hardcap.Sign() < 0 {
			return model.ChangeSet{}, fmt.Errorf("invalid hardcap for %s", token.Hex())
		}
		pt, ok := r.Bucket(poolID, token)
		if !ok {
			return model.ChangeSet{}, fmt.Errorf("token %s not registered in pool %d: %w", token.Hex(), poolID, model.ErrAdmissionRejected)
		}

		if token != pt.Canonical {
			cs.Gates = append(cs.Gates, model.TokenGate{PoolID: poolID, Token: token, Hardcap: new(big.Int).Set(hardcap)})
			continue
		}
		pt.Hardcap = new(big.Int).Set(hardcap)
		if idx, seen := buckets[pt.Key()]; seen {
			cs.PoolTokens[idx] = pt
			continue
		}
		buckets[pt.Key()] = len(cs.PoolTokens)
		cs.PoolTokens = append(cs.PoolTokens, pt)
	}
	return cs, nil
}

// PlanSetActive toggles the active flag of the bucket token resolves to.
func (r *Registry) PlanSetActive(poolID uint64, token common.Address, active bool) (model.ChangeSet, error) {
	pt, ok := r.Bucket(poolID, token)
	if !ok {
		return model.ChangeSet{}, fmt.Errorf("token %s not registered in pool %d: %w", token.Hex(), poolID, model.ErrAdmissionRejected)
	}
	pt.IsActive = active
	return model.ChangeSet{PoolTokens: []model.PoolToken{pt}}, nil
}

// PlanRegisterAlias points alias at the canonical id of target. The alias
// must not own any bucket itself.
func (r *Registry) PlanRegisterAlias(alias, target common.Address) (model.ChangeSet, error) {
	canonical := r.Resolve(target)
	if alias == canonical {
		return model.ChangeSet{}, fmt.Errorf("alias %s resolves to itself", alias.Hex())
	}
	if r.ownsBucket(alias) {
		return model.ChangeSet{}, fmt.Errorf("alias %s already holds ledger buckets", alias.Hex())
	}

	cs := model.ChangeSet{Aliases: []model.Alias{{Token: alias, Canonical: canonical}}}
	// keep the table flat: anything that pointed at alias follows it
	for token, current := range r.state.Aliases {
		if current == alias {
			cs.Aliases = append(cs.Aliases, model.Alias{Token: token, Canonical: canonical})
		}
	}
	return cs, nil
}

// PlanUpdateQuoteToken repoints the quote asset at newToken. Stored balances
// stay in the quote canonical bucket.
func (r *Registry) PlanUpdateQuoteToken(newToken common.Address) (model.ChangeSet, error) {
	current := r.state.Meta.QuoteToken
	if current == (common.Address{}) {
		return model.ChangeSet{}, fmt.Errorf("quote token not configured")
	}
	if newToken == (common.Address{}) {
		return model.ChangeSet{}, fmt.Errorf("zero quote token")
	}

	meta := r.state.Meta
	meta.QuoteToken = newToken
	canonical := r.Resolve(current)
	if newToken == canonical || r.Resolve(newToken) == canonical {
		return model.ChangeSet{Meta: &meta}, nil
	}

	cs, err := r.PlanRegisterAlias(newToken, canonical)
	if err != nil {
		return model.ChangeSet{}, err
	}
	cs.Meta = &meta
	return cs, nil
}

// QuoteToken returns the current quote asset address.
func (r *Registry) QuoteToken() common.Address {
	return r.state.Meta.QuoteToken
}

func (r *Registry) ownsBucket(token common.Address) bool {
	for key := range r.state.PoolTokens {
		if key.Canonical == token {
			return true
		}
	}
	return false
}
