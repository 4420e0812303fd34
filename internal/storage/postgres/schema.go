package postgres

// Schema creates the bridge tables. Amounts are NUMERIC(78,0) base units,
// addresses are 0x-prefixed hex.
const Schema = `
CREATE TABLE IF NOT EXISTS bridge_pools (
	pool_id     BIGINT PRIMARY KEY,
	pool_type   TEXT NOT NULL,
	subaccount  TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bridge_pool_tokens (
	pool_id        BIGINT NOT NULL REFERENCES bridge_pools (pool_id),
	canonical      TEXT NOT NULL,
	router         TEXT NOT NULL,
	settler        TEXT NOT NULL,
	subaccount     TEXT NOT NULL,
	active_amount  NUMERIC(78,0) NOT NULL,
	hardcap        NUMERIC(78,0) NOT NULL,
	is_active      BOOLEAN NOT NULL,
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, canonical)
);

CREATE TABLE IF NOT EXISTS bridge_token_gates (
	pool_id     BIGINT NOT NULL,
	token       TEXT NOT NULL,
	hardcap     NUMERIC(78,0) NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, token)
);

CREATE TABLE IF NOT EXISTS bridge_aliases (
	token       TEXT PRIMARY KEY,
	canonical   TEXT NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS bridge_positions (
	pool_id     BIGINT NOT NULL,
	canonical   TEXT NOT NULL,
	user_addr   TEXT NOT NULL,
	active      NUMERIC(78,0) NOT NULL,
	pending     NUMERIC(78,0) NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (pool_id, canonical, user_addr)
);

CREATE TABLE IF NOT EXISTS bridge_queue_entries (
	id          BIGINT PRIMARY KEY,
	kind        TEXT NOT NULL,
	payload     BYTEA NOT NULL,
	canonicals  TEXT NOT NULL DEFAULT '',
	processed   BOOLEAN NOT NULL,
	outcome     JSONB,
	created_at  TEXT NOT NULL
);

ALTER TABLE bridge_queue_entries ADD COLUMN IF NOT EXISTS canonicals TEXT NOT NULL DEFAULT '';

CREATE TABLE IF NOT EXISTS bridge_meta (
	id                  SMALLINT PRIMARY KEY CHECK (id = 1),
	version             INTEGER NOT NULL,
	up_to               BIGINT NOT NULL,
	entry_count         BIGINT NOT NULL,
	quote_token         TEXT NOT NULL,
	paused_deposits     BOOLEAN NOT NULL,
	paused_withdrawals  BOOLEAN NOT NULL,
	paused_claims       BOOLEAN NOT NULL,
	fees_collected      NUMERIC(78,0) NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
