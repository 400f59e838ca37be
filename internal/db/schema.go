package db

import (
	"context"
	"fmt"
)

// Schema statements are idempotent so every binary can run them at startup
// against the shared database without coordination.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS products (
		id BIGSERIAL PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price NUMERIC(12,2) NOT NULL,
		stock_quantity INT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id BIGSERIAL PRIMARY KEY,
		product_id BIGINT NOT NULL,
		quantity INT NOT NULL,
		status TEXT NOT NULL,
		order_date TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS event_publication (
		id UUID PRIMARY KEY,
		event_type TEXT NOT NULL,
		listener_id TEXT NOT NULL,
		payload JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_event_publication_incomplete
		ON event_publication (created_at) WHERE completed_at IS NULL`,
	`CREATE TABLE IF NOT EXISTS int_lock (
		lock_key VARCHAR(36) NOT NULL PRIMARY KEY,
		region VARCHAR(100) NOT NULL,
		client_id VARCHAR(36),
		created_date TIMESTAMPTZ NOT NULL
	)`,
}

// InitSchema creates the business, ledger and lock tables if absent.
func (db *PostgresDB) InitSchema(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := db.Conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to initialize schema: %w", err)
		}
	}
	return nil
}
