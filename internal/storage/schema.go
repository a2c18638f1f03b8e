package storage

// Schema mirrors gurre-prime-fix-md-go/database/marketdata.go's own
// shape (one core table per persisted entity, SQLite storing numeric
// fixed-point values as TEXT so no precision is lost round-tripping
// through shopspring/decimal). Snapshots are append-only and indexed
// (mint, created_at desc) per spec.md §3's "append-only state
// snapshots" relationship.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS tokens (
	mint                   TEXT PRIMARY KEY,
	first_seen_slot        INTEGER NOT NULL,
	first_seen_at          TEXT NOT NULL,
	first_seen_venue       TEXT NOT NULL,
	threshold_crossed_at   TEXT,
	threshold_price_usd    TEXT,
	threshold_slot         INTEGER,
	current_venue          TEXT NOT NULL,
	state                  TEXT NOT NULL,
	graduated              INTEGER NOT NULL DEFAULT 0,
	graduation_slot        INTEGER,
	trade_count            INTEGER NOT NULL DEFAULT 0,
	latest_price_sol       TEXT NOT NULL DEFAULT '0',
	latest_price_usd       TEXT NOT NULL DEFAULT '0',
	latest_market_cap_usd  TEXT NOT NULL DEFAULT '0',
	latest_virtual_sol     INTEGER NOT NULL DEFAULT 0,
	latest_virtual_token   INTEGER NOT NULL DEFAULT 0,
	latest_bc_progress     TEXT NOT NULL DEFAULT '0',
	latest_update_slot     INTEGER NOT NULL DEFAULT 0,
	latest_update_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
	signature              TEXT NOT NULL,
	idx                    INTEGER NOT NULL,
	mint                   TEXT NOT NULL,
	venue                  TEXT NOT NULL,
	direction              TEXT NOT NULL,
	trader                 TEXT NOT NULL,
	sol_amount             INTEGER NOT NULL,
	token_amount           INTEGER NOT NULL,
	price_sol              TEXT NOT NULL,
	price_usd              TEXT NOT NULL,
	market_cap_usd         TEXT NOT NULL,
	stale_quote            INTEGER NOT NULL DEFAULT 0,
	virtual_sol_reserves   INTEGER NOT NULL DEFAULT 0,
	virtual_token_reserves INTEGER NOT NULL DEFAULT 0,
	bc_progress            TEXT,
	slot                   INTEGER NOT NULL,
	block_time             TEXT NOT NULL,
	UNIQUE(signature, venue, direction)
);
CREATE INDEX IF NOT EXISTS idx_trades_mint_slot ON trades(mint, slot);
CREATE INDEX IF NOT EXISTS idx_trades_venue_mint_slot ON trades(venue, mint, slot);

CREATE TABLE IF NOT EXISTS state_snapshots (
	mint                   TEXT NOT NULL,
	created_at             TEXT NOT NULL,
	state                  TEXT NOT NULL,
	current_venue          TEXT NOT NULL,
	latest_price_usd       TEXT NOT NULL,
	latest_market_cap_usd  TEXT NOT NULL,
	slot                   INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_snapshots_mint_created ON state_snapshots(mint, created_at DESC);

CREATE TABLE IF NOT EXISTS sol_quotes (
	observed_at TEXT PRIMARY KEY,
	price_usd   TEXT NOT NULL,
	source      TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS downtime_gaps (
	start_slot         INTEGER NOT NULL,
	end_slot           INTEGER NOT NULL,
	duration_ns        INTEGER NOT NULL,
	estimated_missed   INTEGER NOT NULL,
	recovery_attempted INTEGER NOT NULL DEFAULT 0,
	affected_programs  TEXT NOT NULL DEFAULT ''
);
`

const (
	upsertTokenQuery = `
INSERT INTO tokens (
	mint, first_seen_slot, first_seen_at, first_seen_venue,
	threshold_crossed_at, threshold_price_usd, threshold_slot,
	current_venue, state, graduated, graduation_slot, trade_count,
	latest_price_sol, latest_price_usd, latest_market_cap_usd,
	latest_virtual_sol, latest_virtual_token, latest_bc_progress,
	latest_update_slot, latest_update_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(mint) DO UPDATE SET
	threshold_crossed_at  = COALESCE(tokens.threshold_crossed_at, excluded.threshold_crossed_at),
	threshold_price_usd   = COALESCE(tokens.threshold_price_usd, excluded.threshold_price_usd),
	threshold_slot        = COALESCE(tokens.threshold_slot, excluded.threshold_slot),
	current_venue         = excluded.current_venue,
	state                 = excluded.state,
	graduated             = excluded.graduated,
	graduation_slot       = COALESCE(tokens.graduation_slot, excluded.graduation_slot),
	trade_count           = excluded.trade_count,
	latest_price_sol      = excluded.latest_price_sol,
	latest_price_usd      = excluded.latest_price_usd,
	latest_market_cap_usd = excluded.latest_market_cap_usd,
	latest_virtual_sol    = excluded.latest_virtual_sol,
	latest_virtual_token  = excluded.latest_virtual_token,
	latest_bc_progress    = excluded.latest_bc_progress,
	latest_update_slot    = excluded.latest_update_slot,
	latest_update_at      = excluded.latest_update_at
WHERE excluded.latest_update_slot >= tokens.latest_update_slot;
`

	insertTradeQuery = `
INSERT INTO trades (
	signature, idx, mint, venue, direction, trader,
	sol_amount, token_amount, price_sol, price_usd, market_cap_usd,
	stale_quote, virtual_sol_reserves, virtual_token_reserves,
	bc_progress, slot, block_time
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(signature, venue, direction) DO NOTHING;
`

	insertSnapshotQuery = `
INSERT INTO state_snapshots (mint, created_at, state, current_venue, latest_price_usd, latest_market_cap_usd, slot)
VALUES (?, ?, ?, ?, ?, ?, ?);
`

	upsertQuoteQuery = `
INSERT INTO sol_quotes (observed_at, price_usd, source) VALUES (?, ?, ?)
ON CONFLICT(observed_at) DO NOTHING;
`

	insertGapQuery = `
INSERT INTO downtime_gaps (start_slot, end_slot, duration_ns, estimated_missed, recovery_attempted, affected_programs)
VALUES (?, ?, ?, ?, ?, ?);
`

	earliestAMMTradeQuery = `
SELECT MIN(slot) FROM trades WHERE mint = ? AND venue = 'amm_pool';
`
)
