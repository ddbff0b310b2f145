package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewSQLiteStore opens (or creates) the run database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		dbPath = ".data/runs.db"
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: failed to create directory: %v", ErrStoreInitFailed, err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInitFailed, err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			proof_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			config BLOB,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS intervals (
			run_id TEXT NOT NULL,
			interval INTEGER NOT NULL,
			metric TEXT NOT NULL,
			distance REAL NOT NULL,
			invalid INTEGER NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (run_id, interval, metric)
		);

		CREATE INDEX IF NOT EXISTS idx_intervals_run ON intervals(run_id);
		CREATE INDEX IF NOT EXISTS idx_runs_proof ON runs(proof_id);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInitFailed, err)
	}
	return nil
}

// CreateRun registers a run, or refreshes its state if it already exists.
func (s *SQLiteStore) CreateRun(ctx context.Context, run Run) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	now := time.Now().UnixMilli()
	created := run.CreatedAt.UnixMilli()
	if run.CreatedAt.IsZero() {
		created = now
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, proof_id, mode, state, config, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at
	`, run.ID, run.ProofID, run.Mode, run.State, run.Config, created, now)
	return err
}

// UpdateRunState advances the persisted run state.
func (s *SQLiteStore) UpdateRunState(ctx context.Context, runID string, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE runs SET state = ?, updated_at = ? WHERE id = ?
	`, state, time.Now().UnixMilli(), runID)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// GetRun loads a run by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Run{}, ErrStoreClosed
	}

	var run Run
	var createdMs, updatedMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proof_id, mode, state, config, created_at, updated_at FROM runs WHERE id = ?
	`, runID).Scan(&run.ID, &run.ProofID, &run.Mode, &run.State, &run.Config, &createdMs, &updatedMs)
	if err == sql.ErrNoRows {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, err
	}
	run.CreatedAt = time.UnixMilli(createdMs)
	run.UpdatedAt = time.UnixMilli(updatedMs)
	return run, nil
}

// SaveIntervals persists one interval's measurements atomically.
func (s *SQLiteStore) SaveIntervals(ctx context.Context, results []IntervalResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}
	if len(results) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO intervals (run_id, interval, metric, distance, invalid, status)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, interval, metric) DO UPDATE SET
			distance = excluded.distance, invalid = excluded.invalid, status = excluded.status
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		invalid := 0
		if r.Invalid {
			invalid = 1
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Interval, r.Metric, r.Distance, invalid, r.Status); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadIntervals returns every persisted measurement for the run.
func (s *SQLiteStore) LoadIntervals(ctx context.Context, runID string) ([]IntervalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, interval, metric, distance, invalid, status
		FROM intervals WHERE run_id = ? ORDER BY interval ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IntervalResult
	for rows.Next() {
		var r IntervalResult
		var invalid int
		if err := rows.Scan(&r.RunID, &r.Interval, &r.Metric, &r.Distance, &invalid, &r.Status); err != nil {
			return nil, err
		}
		r.Invalid = invalid != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the store.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

var _ Store = (*SQLiteStore)(nil)
