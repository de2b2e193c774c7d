// internal/db/db.go
package db

import (
	"context"
	"database/sql"

	_ "github.com/lib/pq"
)

// Open connects to Postgres and verifies the connection. The caller owns the
// returned handle; no package-level globals.
func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

// EnsureSchema creates the tables the service needs if they do not exist yet.
func EnsureSchema(ctx context.Context, conn *sql.DB) error {
	_, err := conn.ExecContext(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS send_jobs (
    id                   TEXT PRIMARY KEY,
    name                 TEXT NOT NULL,
    channel              TEXT NOT NULL,
    status               TEXT NOT NULL DEFAULT 'draft',
    template_id          TEXT,
    generated_message_id TEXT,
    inline_subject       TEXT,
    inline_body          TEXT,
    inline_preheader     TEXT,
    schedule_type        TEXT NOT NULL DEFAULT 'immediate',
    scheduled_at         TIMESTAMPTZ,
    timezone             TEXT NOT NULL DEFAULT '',
    total                INT NOT NULL DEFAULT 0,
    sent_count           INT NOT NULL DEFAULT 0,
    delivered_count      INT NOT NULL DEFAULT 0,
    opened_count         INT NOT NULL DEFAULT 0,
    clicked_count        INT NOT NULL DEFAULT 0,
    bounced_count        INT NOT NULL DEFAULT 0,
    failed_count         INT NOT NULL DEFAULT 0,
    unsubscribed_count   INT NOT NULL DEFAULT 0,
    started_at           TIMESTAMPTZ,
    completed_at         TIMESTAMPTZ,
    created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at           TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS job_recipients (
    id            BIGSERIAL PRIMARY KEY,
    job_id        TEXT NOT NULL REFERENCES send_jobs(id) ON DELETE CASCADE,
    position      INT NOT NULL,
    email         TEXT NOT NULL DEFAULT '',
    phone         TEXT NOT NULL DEFAULT '',
    name          TEXT NOT NULL DEFAULT '',
    custom_fields JSONB NOT NULL DEFAULT '{}',
    status        TEXT NOT NULL DEFAULT 'pending',
    message_id    TEXT,
    error_message TEXT,
    delivered_at  TIMESTAMPTZ,
    opened_at     TIMESTAMPTZ,
    clicked_at    TIMESTAMPTZ,
    created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    UNIQUE (job_id, position)
);

CREATE INDEX IF NOT EXISTS idx_job_recipients_pending
    ON job_recipients (job_id, position) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_job_recipients_message_id
    ON job_recipients (job_id, message_id);

CREATE TABLE IF NOT EXISTS recipient_events (
    id           BIGSERIAL PRIMARY KEY,
    recipient_id BIGINT NOT NULL REFERENCES job_recipients(id) ON DELETE CASCADE,
    event_type   TEXT NOT NULL,
    payload      JSONB NOT NULL DEFAULT '{}',
    created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS job_logs (
    id         BIGSERIAL PRIMARY KEY,
    job_id     TEXT NOT NULL REFERENCES send_jobs(id) ON DELETE CASCADE,
    level      TEXT NOT NULL,
    message    TEXT NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS templates (
    id        TEXT PRIMARY KEY,
    name      TEXT NOT NULL,
    subject   TEXT NOT NULL DEFAULT '',
    body      TEXT NOT NULL,
    preheader TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS generated_messages (
    id        TEXT PRIMARY KEY,
    subject   TEXT NOT NULL DEFAULT '',
    body      TEXT NOT NULL,
    preheader TEXT NOT NULL DEFAULT ''
);
`
