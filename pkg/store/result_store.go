// Package store persists reconciliation outcomes so operators can inspect
// partially failed orders and re-run their failed lines.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bundleworks/stockpilot/pkg/reconcile"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no record matches the query.
var ErrNotFound = errors.New("reconciliation not found")

// ReconciliationRecord is one persisted reconciliation run. An order can have
// several runs: the original webhook delivery plus any operator retries.
type ReconciliationRecord struct {
	RunID     string                 `json:"runId"`
	OrderID   string                 `json:"orderId"`
	Topic     reconcile.Topic        `json:"topic"`
	Status    reconcile.Status       `json:"status"`
	Results   []reconcile.LineResult `json:"results,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

// FailedLines returns the lines of this run that did not succeed.
func (r *ReconciliationRecord) FailedLines() []reconcile.LineResult {
	var failed []reconcile.LineResult
	for _, line := range r.Results {
		if !line.Success {
			failed = append(failed, line)
		}
	}
	return failed
}

// SQLiteResultStore keeps reconciliation runs in a local SQLite database.
type SQLiteResultStore struct {
	db *sql.DB
}

// NewSQLiteResultStore creates the store and runs its migration.
func NewSQLiteResultStore(db *sql.DB) (*SQLiteResultStore, error) {
	s := &SQLiteResultStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Open opens (or creates) the SQLite database at path and returns a store
// over it.
func Open(path string) (*SQLiteResultStore, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open result db: %w", err)
	}
	s, err := NewSQLiteResultStore(db)
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return s, db, nil
}

func (s *SQLiteResultStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS reconciliations (
        run_id TEXT PRIMARY KEY,
        order_id TEXT NOT NULL,
        topic TEXT NOT NULL,
        status TEXT NOT NULL,
		results JSON,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_order ON reconciliations (order_id, topic);
	CREATE INDEX IF NOT EXISTS idx_reconciliations_status ON reconciliations (status);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

// Record persists one reconciliation outcome as a new run. Implements
// reconcile.Recorder.
func (s *SQLiteResultStore) Record(ctx context.Context, outcome *reconcile.Outcome) error {
	query := `INSERT INTO reconciliations (
		run_id, order_id, topic, status, results, created_at
	) VALUES (?, ?, ?, ?, ?, ?)`

	resultsJSON, _ := json.Marshal(outcome.Results)
	createdAt := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := s.db.ExecContext(ctx, query,
		uuid.NewString(), outcome.OrderID, string(outcome.Topic), string(outcome.Status), string(resultsJSON), createdAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert reconciliation: %w", err)
	}
	return nil
}

// Get returns one run by its ID.
func (s *SQLiteResultStore) Get(ctx context.Context, runID string) (*ReconciliationRecord, error) {
	query := `
        SELECT run_id, order_id, topic, status, results, created_at
        FROM reconciliations
        WHERE run_id = ?
    `
	return s.queryOne(ctx, query, runID)
}

// Latest returns the most recent run for an order and topic.
func (s *SQLiteResultStore) Latest(ctx context.Context, orderID string, topic reconcile.Topic) (*ReconciliationRecord, error) {
	query := `
        SELECT run_id, order_id, topic, status, results, created_at
        FROM reconciliations
        WHERE order_id = ? AND topic = ?
        ORDER BY created_at DESC
        LIMIT 1
    `
	return s.queryOne(ctx, query, orderID, string(topic))
}

// List returns the most recent runs, newest first.
func (s *SQLiteResultStore) List(ctx context.Context, limit int) ([]*ReconciliationRecord, error) {
	query := `
        SELECT run_id, order_id, topic, status, results, created_at
        FROM reconciliations
        ORDER BY created_at DESC
        LIMIT ?
    `
	return s.queryMany(ctx, query, limit)
}

// ListByStatus returns the most recent runs with the given status, newest
// first. Operators use it to find partial failures awaiting remediation.
func (s *SQLiteResultStore) ListByStatus(ctx context.Context, status reconcile.Status, limit int) ([]*ReconciliationRecord, error) {
	query := `
        SELECT run_id, order_id, topic, status, results, created_at
        FROM reconciliations
        WHERE status = ?
        ORDER BY created_at DESC
        LIMIT ?
    `
	return s.queryMany(ctx, query, string(status), limit)
}

func (s *SQLiteResultStore) queryOne(ctx context.Context, query string, args ...any) (*ReconciliationRecord, error) {
	row := s.db.QueryRowContext(ctx, query, args...)
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteResultStore) queryMany(ctx context.Context, query string, args ...any) ([]*ReconciliationRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var records []*ReconciliationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*ReconciliationRecord, error) {
	var (
		runID       string
		orderID     string
		topic       string
		status      string
		resultsJSON sql.NullString
		createdAt   string
	)
	if err := row.Scan(&runID, &orderID, &topic, &status, &resultsJSON, &createdAt); err != nil {
		return nil, err
	}

	var results []reconcile.LineResult
	if resultsJSON.Valid && resultsJSON.String != "" {
		_ = json.Unmarshal([]byte(resultsJSON.String), &results)
	}

	return &ReconciliationRecord{
		RunID:     runID,
		OrderID:   orderID,
		Topic:     reconcile.Topic(topic),
		Status:    reconcile.Status(status),
		Results:   results,
		CreatedAt: parseTime(createdAt),
	}, nil
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t
	}
	return time.Time{}
}
