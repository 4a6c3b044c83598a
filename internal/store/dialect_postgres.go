package store

import (
	"fmt"
	"strings"
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) Placeholder(index int) string {
	return fmt.Sprintf("$%d", index)
}

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NowExpr() string     { return "NOW()" }
func (d *PostgresDialect) UUIDDefault() string { return "DEFAULT gen_random_uuid()" }
func (d *PostgresDialect) NeedsBoolFix() bool  { return false }

func (d *PostgresDialect) SystemTablesSQL() string {
	return pgSystemTablesSQL
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	// With pgx/stdlib, the underlying error message includes the PG code
	errStr := err.Error()
	if strings.Contains(errStr, "23505") || strings.Contains(errStr, "unique constraint") || strings.Contains(errStr, "duplicate key") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// --- PostgreSQL DDL ---

const pgSystemTablesSQL = `
CREATE TABLE IF NOT EXISTS _automation_rules (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    code        TEXT NOT NULL UNIQUE,
    "trigger"   TEXT NOT NULL,
    priority    INT NOT NULL DEFAULT 0,
    active      BOOLEAN NOT NULL DEFAULT true,
    group_name  TEXT,
    conditions  JSONB NOT NULL DEFAULT '[]',
    actions     JSONB NOT NULL DEFAULT '[]',
    position    INT NOT NULL DEFAULT 0,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_automation_rules_trigger ON _automation_rules("trigger") WHERE active;

CREATE TABLE IF NOT EXISTS _funnel_versions (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    name        TEXT NOT NULL,
    active      BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _funnel_states (
    id          UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    version_id  UUID NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    name        TEXT NOT NULL,
    is_initial  BOOLEAN NOT NULL DEFAULT false,
    is_terminal BOOLEAN NOT NULL DEFAULT false,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    UNIQUE (version_id, name)
);

CREATE TABLE IF NOT EXISTS _funnel_transitions (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    version_id      UUID NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    from_state_id   UUID NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    to_state_id     UUID NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    trigger_type    TEXT NOT NULL,
    trigger_event   TEXT,
    time_from       TEXT,
    time_to         TEXT,
    timeout_minutes INT NOT NULL DEFAULT 0,
    priority        INT NOT NULL DEFAULT 0,
    conditions      JSONB NOT NULL DEFAULT '[]',
    actions         JSONB NOT NULL DEFAULT '[]',
    created_at      TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_funnel_transitions_from ON _funnel_transitions(from_state_id);

CREATE TABLE IF NOT EXISTS _user_funnel_states (
    user_id     UUID NOT NULL,
    version_id  UUID NOT NULL REFERENCES _funnel_versions(id) ON DELETE CASCADE,
    state_id    UUID NOT NULL REFERENCES _funnel_states(id) ON DELETE CASCADE,
    entered_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at  TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (user_id, version_id)
);

CREATE TABLE IF NOT EXISTS _user_tags (
    user_id     UUID NOT NULL,
    tag         TEXT NOT NULL,
    created_at  TIMESTAMPTZ DEFAULT NOW(),
    PRIMARY KEY (user_id, tag)
);

CREATE TABLE IF NOT EXISTS _webhook_logs (
    id              UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    url             TEXT NOT NULL,
    method          TEXT NOT NULL,
    request_body    TEXT,
    response_status INT,
    response_body   TEXT,
    status          TEXT NOT NULL,
    attempt         INT NOT NULL DEFAULT 1,
    max_attempts    INT NOT NULL DEFAULT 1,
    next_retry_at   TIMESTAMPTZ,
    error           TEXT,
    created_at      TIMESTAMPTZ DEFAULT NOW(),
    updated_at      TIMESTAMPTZ DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_webhook_logs_retry ON _webhook_logs(next_retry_at) WHERE status = 'retrying';

CREATE TABLE IF NOT EXISTS _events (
    id             UUID PRIMARY KEY DEFAULT gen_random_uuid(),
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
    duration_ms    DOUBLE PRECISION,
    status         TEXT,
    metadata       JSONB,
    created_at     TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS _operators (
    id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    roles         JSONB NOT NULL DEFAULT '[]',
    active        BOOLEAN DEFAULT true,
    created_at    TIMESTAMPTZ DEFAULT NOW(),
    updated_at    TIMESTAMPTZ DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS users (
    id                  UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    credits             DOUBLE PRECISION NOT NULL DEFAULT 0,
    generations_total   INT NOT NULL DEFAULT 0,
    payments_total      INT NOT NULL DEFAULT 0,
    last_payment_failed BOOLEAN NOT NULL DEFAULT false,
    created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    last_activity_at    TIMESTAMPTZ,
    last_generation_at  TIMESTAMPTZ,
    last_payment_at     TIMESTAMPTZ
);
`
