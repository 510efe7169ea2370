package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func EnsureSchema(ctx context.Context, db *sql.DB) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026083101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS solicitations (
	id TEXT PRIMARY KEY,
	solicitation_number TEXT,
	status TEXT NOT NULL,
	due_date TIMESTAMPTZ,
	received_at TIMESTAMPTZ NOT NULL,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	provenance JSONB NOT NULL DEFAULT '{}'::jsonb,
	external_message_id TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_solicitations_external_message_id
	ON solicitations(external_message_id) WHERE external_message_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_solicitations_number ON solicitations(solicitation_number);
CREATE INDEX IF NOT EXISTS idx_solicitations_received_at ON solicitations(received_at DESC);

CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	order_number TEXT,
	solicitation_number TEXT,
	status TEXT NOT NULL,
	fulfillment_status TEXT NOT NULL,
	legacy_solicitation_id TEXT,
	received_at TIMESTAMPTZ NOT NULL,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	fields JSONB NOT NULL DEFAULT '{}'::jsonb,
	provenance JSONB NOT NULL DEFAULT '{}'::jsonb,
	external_message_id TEXT,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE UNIQUE INDEX IF NOT EXISTS ux_orders_external_message_id
	ON orders(external_message_id) WHERE external_message_id IS NOT NULL;
CREATE INDEX IF NOT EXISTS idx_orders_number ON orders(order_number);
CREATE INDEX IF NOT EXISTS idx_orders_legacy_ref ON orders(legacy_solicitation_id);
CREATE INDEX IF NOT EXISTS idx_orders_received_at ON orders(received_at DESC);

CREATE TABLE IF NOT EXISTS quotes (
	id TEXT PRIMARY KEY,
	solicitation_id TEXT NOT NULL UNIQUE,
	status TEXT NOT NULL,
	no_bid BOOLEAN NOT NULL DEFAULT FALSE,
	submitted_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS document_links (
	order_id TEXT NOT NULL,
	solicitation_id TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (order_id, solicitation_id)
);

CREATE INDEX IF NOT EXISTS idx_document_links_solicitation ON document_links(solicitation_id);

CREATE TABLE IF NOT EXISTS fulfillment_records (
	id TEXT PRIMARY KEY,
	order_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	storage_path TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_fulfillment_records_order ON fulfillment_records(order_id);

CREATE TABLE IF NOT EXISTS ingestion_checkpoints (
	source TEXT PRIMARY KEY,
	last_successful_run TIMESTAMPTZ,
	last_attempted_run TIMESTAMPTZ,
	consecutive_failures INTEGER NOT NULL DEFAULT 0,
	last_processed_external_id TEXT,
	last_processed_external_date TIMESTAMPTZ,
	last_failure_reason TEXT,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}
