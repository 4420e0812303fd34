package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"vaultBridge/internal/model"
	"vaultBridge/internal/queue"
	"vaultBridge/internal/storage"
)

const entryBatchSize = 1000

// Store persists bridge state in Postgres. Each change set is written in a
// single transaction.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the bridge tables if they are missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

// Apply upserts every row of cs inside one transaction.
func (s *Store) Apply(ctx context.Context, cs model.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	batch, err := buildBatch(cs)
	if err != nil {
		return err
	}
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				br.Close()
				return fmt.Errorf("apply statement %d: %w", i, err)
			}
		}
		return br.Close()
	})
}

func buildBatch(cs model.ChangeSet) (*pgx.Batch, error) {
	batch := &pgx.Batch{}
	for _, pool := range cs.Pools {
		batch.Queue(`
			INSERT INTO bridge_pools (pool_id, pool_type, subaccount)
			VALUES ($1, $2, $3)
			ON CONFLICT (pool_id) DO NOTHING
		`, int64(pool.ID), pool.Type.String(), pool.Subaccount.Hex())
	}
	for _, pt := range cs.PoolTokens {
		batch.Queue(`
			INSERT INTO bridge_pool_tokens (
				pool_id, canonical, router, settler, subaccount, active_amount, hardcap, is_active, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (pool_id, canonical)
			DO UPDATE SET
				active_amount = EXCLUDED.active_amount,
				hardcap = EXCLUDED.hardcap,
				is_active = EXCLUDED.is_active,
				updated_at = now()
		`,
			int64(pt.PoolID),
			pt.Canonical.Hex(),
			pt.Router.Address.Hex(),
			pt.Router.Settler.Hex(),
			pt.Router.Subaccount.Hex(),
			numeric(pt.ActiveAmount),
			numeric(pt.Hardcap),
			pt.IsActive,
		)
	}
	for _, gate := range cs.Gates {
		batch.Queue(`
			INSERT INTO bridge_token_gates (pool_id, token, hardcap, updated_at)
			VALUES ($1, $2, $3, now())
			ON CONFLICT (pool_id, token)
			DO UPDATE SET hardcap = EXCLUDED.hardcap, updated_at = now()
		`, int64(gate.PoolID), gate.Token.Hex(), numeric(gate.Hardcap))
	}
	for _, alias := range cs.Aliases {
		batch.Queue(`
			INSERT INTO bridge_aliases (token, canonical, updated_at)
			VALUES ($1, $2, now())
			ON CONFLICT (token)
			DO UPDATE SET canonical = EXCLUDED.canonical, updated_at = now()
		`, alias.Token.Hex(), alias.Canonical.Hex())
	}
	for _, pos := range cs.Positions {
		batch.Queue(`
			INSERT INTO bridge_positions (pool_id, canonical, user_addr, active, pending, updated_at)
			VALUES ($1, $2, $3, $4, $5, now())
			ON CONFLICT (pool_id, canonical, user_addr)
			DO UPDATE SET active = EXCLUDED.active, pending = EXCLUDED.pending, updated_at = now()
		`,
			int64(pos.PoolID),
			pos.Canonical.Hex(),
			pos.User.Hex(),
			numeric(pos.Active),
			numeric(pos.Pending),
		)
	}
	for _, entry := range cs.Entries {
		var outcome []byte
		if entry.Outcome != nil {
			data, err := json.Marshal(entry.Outcome)
			if err != nil {
				return nil, fmt.Errorf("marshal outcome %d: %w", entry.ID, err)
			}
			outcome = data
		}
		batch.Queue(`
			INSERT INTO bridge_queue_entries (id, kind, payload, canonicals, processed, outcome, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id)
			DO UPDATE SET canonicals = EXCLUDED.canonicals, processed = EXCLUDED.processed, outcome = EXCLUDED.outcome
		`,
			int64(entry.ID),
			entry.Kind.String(),
			[]byte(entry.Payload),
			joinAddresses(entry.Canonicals),
			entry.Processed,
			outcome,
			entry.CreatedAt,
		)
	}
	if meta := cs.Meta; meta != nil {
		batch.Queue(`
			INSERT INTO bridge_meta (
				id, version, up_to, entry_count, quote_token,
				paused_deposits, paused_withdrawals, paused_claims, fees_collected, updated_at
			) VALUES (1, $1, $2, $3, $4, $5, $6, $7, $8, now())
			ON CONFLICT (id)
			DO UPDATE SET
				version = EXCLUDED.version,
				up_to = EXCLUDED.up_to,
				entry_count = EXCLUDED.entry_count,
				quote_token = EXCLUDED.quote_token,
				paused_deposits = EXCLUDED.paused_deposits,
				paused_withdrawals = EXCLUDED.paused_withdrawals,
				paused_claims = EXCLUDED.paused_claims,
				fees_collected = EXCLUDED.fees_collected,
				updated_at = now()
		`,
			meta.Version,
			int64(meta.Cursor.UpTo),
			int64(meta.Cursor.Count),
			meta.QuoteToken.Hex(),
			meta.Paused.Deposits,
			meta.Paused.Withdrawals,
			meta.Paused.Claims,
			numeric(meta.FeesCollected),
		)
	}
	return batch, nil
}

// Load reads the full bridge state.
func (s *Store) Load(ctx context.Context) (*model.State, error) {
	var cs model.ChangeSet
	var err error
	if cs.Pools, err = s.loadPools(ctx); err != nil {
		return nil, err
	}
	if cs.PoolTokens, err = s.loadPoolTokens(ctx); err != nil {
		return nil, err
	}
	if cs.Gates, err = s.loadGates(ctx); err != nil {
		return nil, err
	}
	if cs.Aliases, err = s.loadAliases(ctx); err != nil {
		return nil, err
	}
	if cs.Positions, err = s.loadPositions(ctx); err != nil {
		return nil, err
	}
	if cs.Entries, err = s.loadEntries(ctx); err != nil {
		return nil, err
	}
	meta, ok, err := s.loadMeta(ctx)
	if err != nil {
		return nil, err
	}
	if ok {
		cs.Meta = &meta
	}

	state := model.NewState()
	if err := state.Apply(cs); err != nil {
		return nil, fmt.Errorf("apply loaded state: %w", err)
	}
	upgraded, err := storage.Migrate(state)
	if err != nil {
		return nil, err
	}
	if err := s.Apply(ctx, upgraded); err != nil {
		return nil, fmt.Errorf("persist migration: %w", err)
	}
	return state, nil
}

func (s *Store) loadPools(ctx context.Context) ([]model.Pool, error) {
	rows, err := s.pool.Query(ctx, `SELECT pool_id, pool_type, subaccount FROM bridge_pools ORDER BY pool_id`)
	if err != nil {
		return nil, fmt.Errorf("query pools: %w", err)
	}
	defer rows.Close()

	var out []model.Pool
	for rows.Next() {
		var (
			id         int64
			poolType   string
			subaccount string
		)
		if err := rows.Scan(&id, &poolType, &subaccount); err != nil {
			return nil, err
		}
		parsed, err := model.ParsePoolType(poolType)
		if err != nil {
			return nil, fmt.Errorf("pool %d: %w", id, err)
		}
		out = append(out, model.Pool{ID: uint64(id), Type: parsed, Subaccount: common.HexToHash(subaccount)})
	}
	return out, rows.Err()
}

func (s *Store) loadPoolTokens(ctx context.Context) ([]model.PoolToken, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pool_id, canonical, router, settler, subaccount, active_amount, hardcap, is_active
		FROM bridge_pool_tokens ORDER BY pool_id, canonical
	`)
	if err != nil {
		return nil, fmt.Errorf("query pool tokens: %w", err)
	}
	defer rows.Close()

	var out []model.PoolToken
	for rows.Next() {
		var (
			poolID                              int64
			canonical, router, settler, subacct string
			active, hardcap                     pgtype.Numeric
			isActive                            bool
		)
		if err := rows.Scan(&poolID, &canonical, &router, &settler, &subacct, &active, &hardcap, &isActive); err != nil {
			return nil, err
		}
		pt := model.PoolToken{
			PoolID:    uint64(poolID),
			Canonical: common.HexToAddress(canonical),
			Router: model.RouterBinding{
				Address:    common.HexToAddress(router),
				Settler:    common.HexToAddress(settler),
				Subaccount: common.HexToHash(subacct),
			},
			IsActive: isActive,
		}
		if pt.ActiveAmount, err = bigFromNumeric(active); err != nil {
			return nil, err
		}
		if pt.Hardcap, err = bigFromNumeric(hardcap); err != nil {
			return nil, err
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

func (s *Store) loadGates(ctx context.Context) ([]model.TokenGate, error) {
	rows, err := s.pool.Query(ctx, `SELECT pool_id, token, hardcap FROM bridge_token_gates`)
	if err != nil {
		return nil, fmt.Errorf("query gates: %w", err)
	}
	defer rows.Close()

	var out []model.TokenGate
	for rows.Next() {
		var (
			poolID  int64
			token   string
			hardcap pgtype.Numeric
		)
		if err := rows.Scan(&poolID, &token, &hardcap); err != nil {
			return nil, err
		}
		value, err := bigFromNumeric(hardcap)
		if err != nil {
			return nil, err
		}
		out = append(out, model.TokenGate{PoolID: uint64(poolID), Token: common.HexToAddress(token), Hardcap: value})
	}
	return out, rows.Err()
}

func (s *Store) loadAliases(ctx context.Context) ([]model.Alias, error) {
	rows, err := s.pool.Query(ctx, `SELECT token, canonical FROM bridge_aliases`)
	if err != nil {
		return nil, fmt.Errorf("query aliases: %w", err)
	}
	defer rows.Close()

	var out []model.Alias
	for rows.Next() {
		var token, canonical string
		if err := rows.Scan(&token, &canonical); err != nil {
			return nil, err
		}
		out = append(out, model.Alias{Token: common.HexToAddress(token), Canonical: common.HexToAddress(canonical)})
	}
	return out, rows.Err()
}

func (s *Store) loadPositions(ctx context.Context) ([]model.Position, error) {
	rows, err := s.pool.Query(ctx, `SELECT pool_id, canonical, user_addr, active, pending FROM bridge_positions`)
	if err != nil {
		return nil, fmt.Errorf("query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			poolID          int64
			canonical, user string
			active, pending pgtype.Numeric
		)
		if err := rows.Scan(&poolID, &canonical, &user, &active, &pending); err != nil {
			return nil, err
		}
		pos := model.Position{PoolID: uint64(poolID), Canonical: common.HexToAddress(canonical), User: common.HexToAddress(user)}
		if pos.Active, err = bigFromNumeric(active); err != nil {
			return nil, err
		}
		if pos.Pending, err = bigFromNumeric(pending); err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, rows.Err()
}

// loadEntries reads the queue log in id batches.
func (s *Store) loadEntries(ctx context.Context) ([]model.QueueEntry, error) {
	var maxID int64
	if err := s.pool.QueryRow(ctx, `SELECT COALESCE(MAX(id), 0) FROM bridge_queue_entries`).Scan(&maxID); err != nil {
		return nil, fmt.Errorf("query entry count: %w", err)
	}
	if maxID == 0 {
		return nil, nil
	}
	ranges, err := queue.SplitRange(1, uint64(maxID), entryBatchSize)
	if err != nil {
		return nil, err
	}

	out := make([]model.QueueEntry, 0, maxID)
	for _, r := range ranges {
		batch, err := s.loadEntryRange(ctx, r)
		if err != nil {
			return nil, err
		}
		out = append(out, batch...)
	}
	return out, nil
}

func (s *Store) loadEntryRange(ctx context.Context, r queue.IDRange) ([]model.QueueEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, kind, payload, canonicals, processed, outcome, created_at
		FROM bridge_queue_entries WHERE id BETWEEN $1 AND $2 ORDER BY id
	`, int64(r.From), int64(r.To))
	if err != nil {
		return nil, fmt.Errorf("query entries %d-%d: %w", r.From, r.To, err)
	}
	defer rows.Close()

	var out []model.QueueEntry
	for rows.Next() {
		var (
			id         int64
			kind       string
			payload    []byte
			canonicals string
			processed  bool
			outcome    []byte
			createdAt  string
		)
		if err := rows.Scan(&id, &kind, &payload, &canonicals, &processed, &outcome, &createdAt); err != nil {
			return nil, err
		}
		parsed, err := model.ParseEntryKind(kind)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", id, err)
		}
		entry := model.QueueEntry{ID: uint64(id), Kind: parsed, Payload: payload, Processed: processed, CreatedAt: createdAt}
		if entry.Canonicals, err = splitAddresses(canonicals); err != nil {
			return nil, fmt.Errorf("entry %d canonicals: %w", id, err)
		}
		if len(outcome) > 0 {
			entry.Outcome = &model.Outcome{}
			if err := json.Unmarshal(outcome, entry.Outcome); err != nil {
				return nil, fmt.Errorf("entry %d outcome: %w", id, err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) loadMeta(ctx context.Context) (model.Meta, bool, error) {
	var (
		meta        model.Meta
		upTo, count int64
		quoteToken  string
		fees        pgtype.Numeric
	)
	row := s.pool.QueryRow(ctx, `
		SELECT version, up_to, entry_count, quote_token, paused_deposits, paused_withdrawals, paused_claims, fees_collected
		FROM bridge_meta WHERE id = 1
	`)
	err := row.Scan(&meta.Version, &upTo, &count, &quoteToken,
		&meta.Paused.Deposits, &meta.Paused.Withdrawals, &meta.Paused.Claims, &fees)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Meta{}, false, nil
		}
		return model.Meta{}, false, err
	}
	meta.Cursor = model.Cursor{UpTo: uint64(upTo), Count: uint64(count)}
	meta.QuoteToken = common.HexToAddress(quoteToken)
	if meta.FeesCollected, err = bigFromNumeric(fees); err != nil {
		return model.Meta{}, false, err
	}
	return meta, true, nil
}

func joinAddresses(addrs []common.Address) string {
	parts := make([]string, len(addrs))
	for i, addr := range addrs {
		parts[i] = addr.Hex()
	}
	return strings.Join(parts, ",")
}

func splitAddresses(input string) ([]common.Address, error) {
	if input == "" {
		return nil, nil
	}
	parts := strings.Split(input, ",")
	out := make([]common.Address, len(parts))
	for i, part := range parts {
		if !common.IsHexAddress(part) {
			return nil, fmt.Errorf("invalid address %q", part)
		}
		out[i] = common.HexToAddress(part)
	}
	return out, nil
}

func numeric(v *big.Int) pgtype.Numeric {
	if v == nil {
		v = new(big.Int)
	}
	return pgtype.Numeric{Int: new(big.Int).Set(v), Exp: 0, Valid: true}
}

func bigFromNumeric(n pgtype.Numeric) (*big.Int, error) {
	if !n.Valid || n.Int == nil {
		return new(big.Int), nil
	}
	out := new(big.Int).Set(n.Int)
	if n.Exp == 0 {
		return out, nil
	}
	scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(abs(n.Exp))), nil)
	if n.Exp > 0 {
		return out.Mul(out, scale), nil
	}
	quo, rem := new(big.Int).QuoRem(out, scale, new(big.Int))
	if rem.Sign() != 0 {
		return nil, fmt.Errorf("numeric %se%d is not an integer", n.Int, n.Exp)
	}
	return quo, nil
}

func abs(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
