package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// PostgresConfig holds PostgreSQL connection settings. Unset fields fall
// back to the standard PG* environment variables.
type PostgresConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"-"`
	Database string `json:"database"`
	SSL      bool   `json:"ssl"`
}

// PostgresStore implements Store using PostgreSQL, for setups where several
// verifiers share one results database.
type PostgresStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	closed bool
}

// NewPostgresStore connects to PostgreSQL and prepares the schema.
func NewPostgresStore(ctx context.Context, config PostgresConfig) (*PostgresStore, error) {
	if config.Host == "" {
		config.Host = getEnvOrDefault("PGHOST", "localhost")
	}
	if config.Port == 0 {
		config.Port = 5432
	}
	if config.User == "" {
		config.User = getEnvOrDefault("PGUSER", "postgres")
	}
	if config.Password == "" {
		config.Password = os.Getenv("PGPASSWORD")
	}
	if config.Database == "" {
		config.Database = os.Getenv("PGDATABASE")
	}

	db, err := sql.Open("postgres", buildConnectionString(config))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrStoreInitFailed, err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrStoreInitFailed, err)
	}

	store := &PostgresStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func buildConnectionString(config PostgresConfig) string {
	sslMode := "disable"
	if config.SSL {
		sslMode = "require"
	}

	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s dbname=%s sslmode=%s",
		config.Host, config.Port, config.User, config.Database, sslMode,
	)
	if config.Password != "" {
		connStr += fmt.Sprintf(" password=%s", config.Password)
	}
	return connStr
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
		CREATE TABLE IF NOT EXISTS pol_runs (
			id TEXT PRIMARY KEY,
			proof_id TEXT NOT NULL,
			mode TEXT NOT NULL,
			state TEXT NOT NULL,
			config BYTEA,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS pol_intervals (
			run_id TEXT NOT NULL,
			interval INTEGER NOT NULL,
			metric TEXT NOT NULL,
			distance DOUBLE PRECISION NOT NULL,
			invalid BOOLEAN NOT NULL,
			status TEXT NOT NULL,
			PRIMARY KEY (run_id, interval, metric)
		);

		CREATE INDEX IF NOT EXISTS idx_pol_intervals_run ON pol_intervals(run_id);
		CREATE INDEX IF NOT EXISTS idx_pol_runs_proof ON pol_runs(proof_id);
	`
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", ErrStoreInitFailed, err)
	}
	return nil
}

// CreateRun registers a run, or refreshes its state if it already exists.
func (s *PostgresStore) CreateRun(ctx context.Context, run Run) error {
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
		INSERT INTO pol_runs (id, proof_id, mode, state, config, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT(id) DO UPDATE SET state = EXCLUDED.state, updated_at = EXCLUDED.updated_at
	`, run.ID, run.ProofID, run.Mode, run.State, run.Config, created, now)
	return err
}

// UpdateRunState advances the persisted run state.
func (s *PostgresStore) UpdateRunState(ctx context.Context, runID string, state string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStoreClosed
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE pol_runs SET state = $1, updated_at = $2 WHERE id = $3
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
func (s *PostgresStore) GetRun(ctx context.Context, runID string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return Run{}, ErrStoreClosed
	}

	var run Run
	var createdMs, updatedMs int64
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proof_id, mode, state, config, created_at, updated_at FROM pol_runs WHERE id = $1
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
func (s *PostgresStore) SaveIntervals(ctx context.Context, results []IntervalResult) error {
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
		INSERT INTO pol_intervals (run_id, interval, metric, distance, invalid, status)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT(run_id, interval, metric) DO UPDATE SET
			distance = EXCLUDED.distance, invalid = EXCLUDED.invalid, status = EXCLUDED.status
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range results {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Interval, r.Metric, r.Distance, r.Invalid, r.Status); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// LoadIntervals returns every persisted measurement for the run.
func (s *PostgresStore) LoadIntervals(ctx context.Context, runID string) ([]IntervalResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, ErrStoreClosed
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, interval, metric, distance, invalid, status
		FROM pol_intervals WHERE run_id = $1 ORDER BY interval ASC
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []IntervalResult
	for rows.Next() {
		var r IntervalResult
		if err := rows.Scan(&r.RunID, &r.Interval, &r.Metric, &r.Distance, &r.Invalid, &r.Status); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the store.
func (s *PostgresStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

var _ Store = (*PostgresStore)(nil)
