package store

// Schema is the bootstrap DDL. Signals are immutable once written; the
// feature snapshot is frozen as JSONB so later engine changes cannot
// rewrite history. Outcomes key on (signal_id, horizon) so evaluation
// replays are idempotent. Performance snapshots are append-only rows;
// recomputation supersedes the previous row instead of mutating it.
const Schema = `
CREATE TABLE IF NOT EXISTS signals (
	id               UUID PRIMARY KEY,
	symbol           TEXT NOT NULL,
	generated_at     TIMESTAMPTZ NOT NULL,
	mode             TEXT NOT NULL,
	side             TEXT NOT NULL,
	score            DOUBLE PRECISION NOT NULL,
	confidence       DOUBLE PRECISION NOT NULL,
	score_source     TEXT NOT NULL,
	universe_source  TEXT NOT NULL DEFAULT 'dynamic',
	features         JSONB NOT NULL,
	risk_plan        JSONB NOT NULL,
	thesis_tags      JSONB NOT NULL DEFAULT '[]',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals (symbol, generated_at DESC);
CREATE INDEX IF NOT EXISTS idx_signals_time ON signals (generated_at DESC);

CREATE TABLE IF NOT EXISTS outcomes (
	signal_id     UUID NOT NULL REFERENCES signals (id),
	symbol        TEXT NOT NULL,
	horizon       TEXT NOT NULL,
	evaluated_at  TIMESTAMPTZ NOT NULL,
	exit_price    DOUBLE PRECISION NOT NULL,
	exit_reason   TEXT NOT NULL,
	gross_pct     DOUBLE PRECISION NOT NULL,
	net_pct       DOUBLE PRECISION NOT NULL,
	r_multiple    DOUBLE PRECISION NOT NULL,
	win           BOOLEAN NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (signal_id, horizon)
);

CREATE INDEX IF NOT EXISTS idx_outcomes_time ON outcomes (evaluated_at DESC);

CREATE TABLE IF NOT EXISTS performance (
	id            BIGSERIAL PRIMARY KEY,
	mode          TEXT NOT NULL,
	period        TEXT NOT NULL,
	horizon       TEXT NOT NULL,
	computed_at   TIMESTAMPTZ NOT NULL,
	metrics       JSONB NOT NULL,
	superseded    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE INDEX IF NOT EXISTS idx_performance_lookup ON performance (mode, period, horizon, superseded, computed_at DESC);
`
