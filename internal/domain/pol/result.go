package pol

import "time"

// RunMode distinguishes full verification from query-budgeted verification.
type RunMode string

const (
	// RunModeFull checks every interval (query budget <= 0).
	RunModeFull RunMode = "full"
	// RunModeBudgeted checks a bounded per-epoch subset of intervals.
	RunModeBudgeted RunMode = "budgeted"
)

// RunState tracks the verifier's progress through its state machine:
// pending -> recomputing(i) -> comparing(i) -> {next interval | aggregating} -> done.
type RunState string

const (
	RunPending     RunState = "pending"
	RunRecomputing RunState = "recomputing"
	RunComparing   RunState = "comparing"
	RunAggregating RunState = "aggregating"
	RunDone        RunState = "done"
)

// IntervalStatus is the outcome of checking one interval under one metric.
type IntervalStatus string

const (
	// IntervalOK means the distance was computed (valid or not per threshold).
	IntervalOK IntervalStatus = "ok"
	// IntervalInconclusive means recomputation diverged or was exhausted;
	// never coerced to valid.
	IntervalInconclusive IntervalStatus = "inconclusive"
	// IntervalSkipped means fail-fast cancelled the interval before it started.
	IntervalSkipped IntervalStatus = "skipped"
)

// IntervalDistance is one per-interval measurement under one metric.
type IntervalDistance struct {
	Interval  int            `json:"interval"`
	StartStep int            `json:"startStep"`
	EndStep   int            `json:"endStep"`
	Distance  float64        `json:"distance"`
	Invalid   bool           `json:"invalid"`
	Status    IntervalStatus `json:"status"`
}

// MetricReport aggregates the per-interval distances for one metric.
type MetricReport struct {
	Metric          Metric             `json:"metric"`
	Threshold       float64            `json:"threshold"`
	Delta           float64            `json:"delta"`
	Distances       []IntervalDistance `json:"distances"`
	Average         float64            `json:"average"`
	Min             float64            `json:"min"`
	Max             float64            `json:"max"`
	InvalidCount    int                `json:"invalidCount"`
	InvalidFraction float64            `json:"invalidFraction"`
	Valid           bool               `json:"valid"`
}

// WatermarkOutcome is the corroborator's contribution to the verdict.
type WatermarkOutcome struct {
	Confidence float64 `json:"confidence"`
	Verdict    string  `json:"verdict"`
	Present    bool    `json:"present"`
}

// VerificationResult is the structured outcome of one verification run.
// Created fresh per run; never mutated after construction.
type VerificationResult struct {
	RunID   string  `json:"runId"`
	ProofID string  `json:"proofId"`
	Mode    RunMode `json:"mode"`

	// CheckedIntervals are the interval indices the sampler selected,
	// in ascending order. TotalIntervals is the proof's interval count.
	CheckedIntervals []int `json:"checkedIntervals"`
	TotalIntervals   int   `json:"totalIntervals"`

	Metrics []MetricReport `json:"metrics"`

	// DistanceValid is the conjunction of per-metric validity.
	DistanceValid bool `json:"distanceValid"`

	// Inconclusive is set when any interval could not be recomputed.
	// An inconclusive run is never reported valid.
	Inconclusive bool `json:"inconclusive"`

	// Watermark is nil when corroboration was not requested.
	Watermark *WatermarkOutcome `json:"watermark,omitempty"`

	// ProofValid is DistanceValid AND (watermark present, when requested)
	// AND not inconclusive.
	ProofValid bool `json:"proofValid"`

	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Report returns the metric report for m, or nil.
func (r *VerificationResult) Report(m Metric) *MetricReport {
	for i := range r.Metrics {
		if r.Metrics[i].Metric == m {
			return &r.Metrics[i]
		}
	}
	return nil
}
