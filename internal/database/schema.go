package database

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// schema is the measurement store layout. Sites are owned by the dashboard
// but the table is created here so the service can run standalone.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS sites (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		url              TEXT NOT NULL,
		category_url     TEXT,
		product_url      TEXT,
		access_token     TEXT,
		schedule_enabled BOOLEAN NOT NULL DEFAULT FALSE,
		schedule_spec    TEXT,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_tested_at   TIMESTAMPTZ
	)`,
	`CREATE TABLE IF NOT EXISTS jobs (
		id            TEXT PRIMARY KEY,
		site_id       TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		batch_id      TEXT NOT NULL,
		status        TEXT NOT NULL,
		progress      INTEGER NOT NULL DEFAULT 0,
		started_at    TIMESTAMPTZ,
		completed_at  TIMESTAMPTZ,
		error_message TEXT,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_jobs_site_status ON jobs (site_id, status)`,
	`CREATE TABLE IF NOT EXISTS raw_runs (
		id                 TEXT PRIMARY KEY,
		site_id            TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		batch_id           TEXT NOT NULL,
		page_type          TEXT NOT NULL,
		page_url           TEXT NOT NULL,
		device_type        TEXT NOT NULL,
		run_number         INTEGER NOT NULL,
		performance        DOUBLE PRECISION,
		fcp                DOUBLE PRECISION,
		lcp                DOUBLE PRECISION,
		cls                DOUBLE PRECISION,
		tbt                DOUBLE PRECISION,
		tti                DOUBLE PRECISION,
		ttfb               DOUBLE PRECISION,
		speed_index        DOUBLE PRECISION,
		page_weight        DOUBLE PRECISION,
		request_count      DOUBLE PRECISION,
		diagnostic_payload JSONB,
		created_at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_raw_runs_batch ON raw_runs (batch_id)`,
	`CREATE TABLE IF NOT EXISTS median_metrics (
		id            TEXT PRIMARY KEY,
		site_id       TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
		batch_id      TEXT NOT NULL,
		page_type     TEXT NOT NULL,
		page_url      TEXT NOT NULL,
		device_type   TEXT NOT NULL,
		run_count     INTEGER NOT NULL,
		performance   DOUBLE PRECISION,
		fcp           DOUBLE PRECISION,
		lcp           DOUBLE PRECISION,
		cls           DOUBLE PRECISION,
		tbt           DOUBLE PRECISION,
		tti           DOUBLE PRECISION,
		ttfb          DOUBLE PRECISION,
		speed_index   DOUBLE PRECISION,
		page_weight   DOUBLE PRECISION,
		request_count DOUBLE PRECISION,
		created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_median_metrics_site ON median_metrics (site_id, created_at)`,
}

// EnsureSchema creates the measurement tables if they do not exist.
func EnsureSchema(ctx context.Context, db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
