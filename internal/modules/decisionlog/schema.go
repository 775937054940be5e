package decisionlog

// Schema is the decision ledger DDL. Append-only: rows are only ever
// inserted by the recorder and deleted by the retention job.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	decided_at_ms INTEGER NOT NULL,
	bot_id TEXT NOT NULL,
	asset TEXT NOT NULL,
	strategy TEXT NOT NULL DEFAULT '',
	timeframe TEXT NOT NULL DEFAULT '',
	signal_type TEXT NOT NULL DEFAULT '',
	signal_timestamp_ms INTEGER NOT NULL DEFAULT 0,
	requested_usdc REAL NOT NULL,
	allowed INTEGER NOT NULL,
	approved_usdc REAL NOT NULL,
	reason TEXT NOT NULL,
	current_weight REAL NOT NULL,
	target_weight REAL NOT NULL,
	max_weight REAL NOT NULL,
	headroom_usdc REAL NOT NULL,
	total_value_usdc REAL NOT NULL,
	available_cash_usdc REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_decided_at ON decisions(decided_at_ms);
CREATE INDEX IF NOT EXISTS idx_decisions_bot ON decisions(bot_id, decided_at_ms);
CREATE INDEX IF NOT EXISTS idx_decisions_asset ON decisions(asset, decided_at_ms);
CREATE INDEX IF NOT EXISTS idx_decisions_reason ON decisions(reason);
`
