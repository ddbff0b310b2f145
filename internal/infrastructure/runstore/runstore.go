// Package runstore persists verification runs and per-interval results so
// long verifications can resume after interruption. Two backends implement
// the same contract: SQLite for local runs, PostgreSQL for shared setups.
package runstore

import (
	"context"
	"errors"
	"time"
)

// Store errors.
var (
	ErrStoreClosed     = errors.New("run store is closed")
	ErrStoreInitFailed = errors.New("run store initialization failed")
	ErrRunNotFound     = errors.New("run not found")
)

// Run is one verification run's persisted identity and state.
type Run struct {
	ID        string    `json:"id"`
	ProofID   string    `json:"proofId"`
	Mode      string    `json:"mode"`
	State     string    `json:"state"`
	Config    []byte    `json:"config"` // JSON-encoded verifier config
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// IntervalResult is one persisted per-interval, per-metric measurement.
type IntervalResult struct {
	RunID    string  `json:"runId"`
	Interval int     `json:"interval"`
	Metric   string  `json:"metric"`
	Distance float64 `json:"distance"`
	Invalid  bool    `json:"invalid"`
	Status   string  `json:"status"`
}

// Store is the persistence contract the verifier resumes from.
type Store interface {
	// CreateRun registers a run; creating an existing ID updates its state.
	CreateRun(ctx context.Context, run Run) error

	// UpdateRunState advances the run's state machine record.
	UpdateRunState(ctx context.Context, runID string, state string) error

	// GetRun loads a run by ID.
	GetRun(ctx context.Context, runID string) (Run, error)

	// SaveIntervals persists measurements for one completed interval
	// atomically, so a resumed run never sees a torn interval.
	SaveIntervals(ctx context.Context, results []IntervalResult) error

	// LoadIntervals returns every persisted measurement for the run.
	LoadIntervals(ctx context.Context, runID string) ([]IntervalResult, error)

	Close() error
}
