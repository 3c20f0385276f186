// internal/db/db.go
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS campaigns (
    id            TEXT PRIMARY KEY,
    notification  JSONB NOT NULL,
    auth_token    TEXT NOT NULL,
    scheduled_at  TIMESTAMPTZ NOT NULL,
    status        TEXT NOT NULL,
    created_at    TIMESTAMPTZ NOT NULL,
    completed_at  TIMESTAMPTZ,
    retry_count   INT NOT NULL DEFAULT 0,
    last_error    TEXT NOT NULL DEFAULT '',
    result        JSONB
);

CREATE INDEX IF NOT EXISTS idx_campaigns_status_scheduled
    ON campaigns (status, scheduled_at);

CREATE TABLE IF NOT EXISTS trigger_history (
    id                BIGSERIAL PRIMARY KEY,
    campaign_id       TEXT NOT NULL,
    config_id         TEXT NOT NULL DEFAULT '',
    triggered_at      TIMESTAMPTZ NOT NULL,
    triggered_by      TEXT NOT NULL,
    success_count     INT NOT NULL,
    failed_count      INT NOT NULL,
    failed_recipients JSONB
);

CREATE INDEX IF NOT EXISTS idx_trigger_history_campaign
    ON trigger_history (campaign_id);
`

func Open(dsn string) (*sql.DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := conn.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return conn, nil
}

// Migrate creates the tables if they do not exist yet. Safe to run on every
// boot.
func Migrate(conn *sql.DB) error {
	_, err := conn.Exec(schema)
	return err
}
