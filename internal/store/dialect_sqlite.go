package store

import (
	"fmt"
	"strings"
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) Placeholder(index int) string {
	return fmt.Sprintf("?%d", index)
}

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NowExpr() string     { return "datetime('now')" }
func (d *SQLiteDialect) UUIDDefault() string { return "" }
func (d *SQLiteDialect) NeedsBoolFix() bool  { return true }

func (d *SQLiteDialect) SystemTablesSQL() string {
	return sqliteSystemTablesSQL
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- SQLite DDL ---

const sqliteSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _automation_rules (
    id          TEXT PRIMARY KEY,
    code        TEXT NOT NULL UNIQUE,
    "trigger"   TEXT NOT NULL,
    priority    INTEGER NOT NULL DEFAULT 0,
    active      INTEGER NOT NULL DEFAULT 1,
    group_name  TEXT,
    conditions  TEXT NOT NULL DEFAULT '[]',
    actions     TEXT NOT NULL DEFAULT '[]',
    position    INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_automation_rules_trigger ON _automation_rules("trigger") WHERE active;

CREATE TABLE IF NOT EXISTS _funnel_versions (
    id          TEXT PRIMARY KEY,
    name        TEXT NOT NULL,
    active      INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _funnel_states (
    id          TEXT PRIMARY KEY,
    version_id  TEXT NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    is_initial  INTEGER NOT NULL DEFAULT 0,
    is_terminal INTEGER NOT NULL DEFAULT 0,
    created_at  TEXT DEFAULT (datetime('now')),
    UNIQUE (version_id, name)
);

CREATE TABLE IF NOT EXISTS _funnel_transitions (
    id              TEXT PRIMARY KEY,
    version_id      TEXT NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    from_state_id   TEXT NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    to_state_id     TEXT NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    trigger_type    TEXT NOT NULL,
    trigger_event   TEXT,
    time_from       TEXT,
    time_to         TEXT,
    timeout_minutes INTEGER NOT NULL DEFAULT 0,
    priority        INTEGER NOT NULL DEFAULT 0,
    conditions      TEXT NOT NULL DEFAULT '[]',
    actions         TEXT NOT NULL DEFAULT '[]',
    created_at      TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_funnel_transitions_from ON _funnel_transitions(from_state_id);

CREATE TABLE IF NOT EXISTS _user_funnel_states (
    user_id     TEXT NOT NULL,
    version_id  TEXT NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    state_id    TEXT NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    entered_at  TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (user_id, version_id)
);

CREATE TABLE IF NOT EXISTS _user_tags (
    user_id     TEXT NOT NULL,
    tag         TEXT NOT NULL,
    created_at  TEXT DEFAULT (datetime('now')),
    PRIMARY KEY (user_id, tag)
);

CREATE TABLE IF NOT EXISTS _webhook_logs (
    id              TEXT PRIMARY KEY,
    url             TEXT NOT NULL,
    method          TEXT NOT NULL,
    request_body    TEXT,
    response_status INTEGER,
    response_body   TEXT,
    status          TEXT NOT NULL,
    attempt         INTEGER NOT NULL DEFAULT 1,
    max_attempts    INTEGER NOT NULL DEFAULT 1,
    next_retry_at   TEXT,
    error           TEXT,
    created_at      TEXT DEFAULT (datetime('now')),
    updated_at      TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_webhook_logs_retry ON _webhook_logs(next_retry_at) WHERE status = 'retrying';

CREATE TABLE IF NOT EXISTS _events (
    id             TEXT PRIMARY KEY,
    trace_id       TEXT,
    span_id        TEXT,
    parent_span_id TEXT,
    event_type     TEXT NOT NULL,
    source         TEXT NOT NULL,
    component      TEXT NOT NULL,
    action         TEXT NOT NULL,
    entity         TEXT,
    record_id      TEXT,
    user_id        TEXT,
    duration_ms    REAL,
    status         TEXT,
    metadata       TEXT,
    created_at     TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS _operators (
    id            TEXT PRIMARY KEY,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         TEXT NOT NULL DEFAULT '[]',
    active        INTEGER DEFAULT 1,
    created_at    TEXT DEFAULT (datetime('now')),
    updated_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS users (
    id                  TEXT PRIMARY KEY,
    credits             REAL NOT NULL DEFAULT 0,
    generations_total   INTEGER NOT NULL DEFAULT 0,
    payments_total      INTEGER NOT NULL DEFAULT 0,
    last_payment_failed INTEGER NOT NULL DEFAULT 0,
    created_at          TEXT NOT NULL DEFAULT (datetime('now')),
    last_activity_at    TEXT,
    last_generation_at  TEXT,
    last_payment_at     TEXT
);
`
