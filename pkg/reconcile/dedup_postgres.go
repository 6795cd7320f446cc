package reconcile

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// PostgresDeduplicator provides durable deduplication backed by PostgreSQL.
// Unlike the in-memory store, admissions survive restarts, giving
// exactly-once semantics across the retention window rather than only within
// one process lifetime.
type PostgresDeduplicator struct {
	db        *sql.DB
	retention time.Duration
}

// NewPostgresDeduplicator creates a PostgreSQL-backed deduplicator. Call
// Migrate once before use.
func NewPostgresDeduplicator(db *sql.DB, retention time.Duration) *PostgresDeduplicator {
	return &PostgresDeduplicator{db: db, retention: retention}
}

// Migrate creates the dedup table if it does not exist.
func (d *PostgresDeduplicator) Migrate(ctx context.Context) error {
	_, err := d.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS dedup_keys (
			key TEXT PRIMARY KEY,
			admitted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return fmt.Errorf("dedup migrate: %w", err)
	}
	return nil
}

// Admit inserts the key; the ON CONFLICT clause makes the check-and-insert
// atomic across concurrent deliveries and replicas.
func (d *PostgresDeduplicator) Admit(ctx context.Context, key Key) (bool, error) {
	res, err := d.db.ExecContext(ctx,
		`INSERT INTO dedup_keys (key) VALUES ($1) ON CONFLICT (key) DO NOTHING`,
		key.String())
	if err != nil {
		return false, fmt.Errorf("dedup admit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("dedup admit: %w", err)
	}
	return n == 1, nil
}

// Release deletes the key.
func (d *PostgresDeduplicator) Release(ctx context.Context, key Key) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM dedup_keys WHERE key = $1`, key.String()); err != nil {
		return fmt.Errorf("dedup release: %w", err)
	}
	return nil
}

// Sweep deletes keys older than the retention window. Keys admitted inside
// the window are kept, so a durable store sweeps by age rather than clearing
// the whole set.
func (d *PostgresDeduplicator) Sweep(ctx context.Context) error {
	if _, err := d.db.ExecContext(ctx,
		`DELETE FROM dedup_keys WHERE admitted_at < $1`,
		time.Now().Add(-d.retention)); err != nil {
		return fmt.Errorf("dedup sweep: %w", err)
	}
	return nil
}
