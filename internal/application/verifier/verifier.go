package verifier

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/distance"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/runstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/training"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/worker"
)

// Config controls one verification run. The entry point treats these as
// already-validated typed inputs; flag parsing lives with the CLI.
type Config struct {
	// Metrics to evaluate. Empty means all four.
	Metrics []pol.Metric `json:"metrics"`

	// Thresholds overrides per-metric default thresholds.
	Thresholds map[pol.Metric]float64 `json:"thresholds,omitempty"`

	// QueryBudget is q: intervals checked per epoch. <= 0 checks everything.
	QueryBudget int `json:"queryBudget"`

	// Delta is the additive slack absorbing legitimate nondeterminism.
	Delta float64 `json:"delta"`

	// ScheduleSeed keys the budgeted sampling schedule.
	ScheduleSeed int64 `json:"scheduleSeed"`

	// Workers bounds verification concurrency. <= 0 uses GOMAXPROCS.
	Workers int `json:"workers"`

	// FailFast aborts after the first invalid interval for cheap rejection;
	// otherwise the run completes for full diagnostics.
	FailFast bool `json:"failFast"`

	// CheckWatermark enables corroboration; the combined verdict is then
	// distance-valid AND watermark-present.
	CheckWatermark bool                   `json:"checkWatermark"`
	Watermark      domainWatermark.Config `json:"watermark,omitempty"`
	Detector       domainWatermark.Detector
	// Embedder re-applies the keyed signal when recomputing the final
	// interval of a watermarked proof; without it that interval cannot
	// reproduce the recorded snapshot.
	Embedder domainWatermark.Embedder

	// RunID names the run for persistence; empty generates one.
	RunID string `json:"runId,omitempty"`

	// Runs optionally persists per-interval results for resumption.
	Runs runstore.Store `json:"-"`

	// Progress, when set, is called after each interval completes.
	Progress func(done, total int) `json:"-"`
}

// DefaultConfig returns a full-verification configuration with zero slack.
func DefaultConfig() Config {
	return Config{
		Metrics:     pol.AllMetrics(),
		QueryBudget: 0,
		Delta:       0,
	}
}

// Verifier checks proofs of learning against the recorded trajectory.
// Verification is purely observational: the proof is never mutated.
type Verifier struct {
	config Config

	mu    sync.Mutex
	state pol.RunState
}

// New creates a verifier. Zero-value config fields get defaults.
func New(config Config) *Verifier {
	if len(config.Metrics) == 0 {
		config.Metrics = pol.AllMetrics()
	}
	return &Verifier{config: config, state: pol.RunPending}
}

// State reports the verifier's current phase.
func (v *Verifier) State() pol.RunState {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.state
}

func (v *Verifier) setState(s pol.RunState) {
	v.mu.Lock()
	v.state = s
	v.mu.Unlock()
}

// measurement is one interval's outcome under one metric.
type measurement struct {
	distance float64
	invalid  bool
	status   pol.IntervalStatus
}

// threshold returns the active threshold for m including slack.
func (v *Verifier) threshold(m pol.Metric) float64 {
	base := m.DefaultThreshold()
	if t, ok := v.config.Thresholds[m]; ok {
		base = t
	}
	delta := v.config.Delta
	if delta < 0 {
		delta = 0
	}
	return base + delta
}

// Verify runs the protocol end to end: structural validation, initial-state
// and dataset-commitment checks, interval recomputation under the sampling
// schedule, aggregation, and optional watermark corroboration.
func (v *Verifier) Verify(ctx context.Context, proof *pol.ProofOfLearning) (*pol.VerificationResult, error) {
	startedAt := time.Now()
	v.setState(pol.RunPending)

	store, err := proofstore.FromProof(proof)
	if err != nil {
		return nil, err
	}
	manifest := store.Manifest()

	// The initial state must be reproducible from the disclosed seed;
	// otherwise nothing downstream can be trusted. The distributional
	// check runs first so an implausible snapshot names what is wrong
	// with it rather than reporting a bare mismatch.
	if err := training.CheckInitDistribution(store.InitialState(), manifest); err != nil {
		return nil, fmt.Errorf("%w: %w", pol.ErrProofMalformed, err)
	}
	if !equalParams(training.InitParams(manifest), store.InitialState()) {
		return nil, fmt.Errorf("%w: %w", pol.ErrProofMalformed, pol.ErrInitMismatch)
	}

	// The dataset commitment binds the recorded batch indices to concrete
	// examples before any distance work.
	ds := training.NewDataset(manifest)
	if manifest.DatasetHash == "" {
		return nil, fmt.Errorf("%w: %w: manifest carries no dataset hash", pol.ErrProofMalformed, pol.ErrDatasetHashMismatch)
	}
	if got := ds.Hash(proof.AllBatchIndices()); got != manifest.DatasetHash {
		return nil, fmt.Errorf("%w: %w", pol.ErrProofMalformed, pol.ErrDatasetHashMismatch)
	}

	intervals := store.Intervals()
	sampler := Sampler{Budget: v.config.QueryBudget, Seed: v.config.ScheduleSeed}
	selected := sampler.Select(intervals)

	mode := pol.RunModeFull
	if v.config.QueryBudget > 0 {
		mode = pol.RunModeBudgeted
	}
	runID := v.config.RunID
	if runID == "" {
		runID = uuid.New().String()
	}

	// Watermark corroboration is independent of distance verification and
	// runs concurrently with it.
	var (
		wmCh  chan watermarkResult
		final = proof.Records[len(proof.Records)-1].Params
	)
	if v.config.CheckWatermark && v.config.Detector != nil {
		wmCh = make(chan watermarkResult, 1)
		go func() {
			det, err := v.config.Detector.Detect(final, v.config.Watermark)
			wmCh <- watermarkResult{det, err}
		}()
	}

	results := make(map[int]map[pol.Metric]measurement, len(selected))
	var resultsMu sync.Mutex

	// Resume: intervals already persisted with complete, conclusive
	// measurements are not recomputed.
	pending := selected
	if v.config.Runs != nil {
		if err := v.persistRunStart(ctx, runID, proof.ID, mode); err != nil {
			return nil, err
		}
		pending = v.loadCompleted(ctx, runID, selected, results)
	}

	total := len(selected)
	done := total - len(pending)
	v.setState(pol.RunRecomputing)

	lastInterval := len(intervals) - 1
	tasks := make([]worker.Task, 0, len(pending))
	for _, idx := range pending {
		iv := intervals[idx]
		reEmbed := manifest.Watermarked && iv.Index == lastInterval
		tasks = append(tasks, func(taskCtx context.Context) (bool, error) {
			ivResults, inconclusive, err := v.checkInterval(iv, manifest, ds, reEmbed)
			if err != nil {
				return false, err
			}

			resultsMu.Lock()
			results[iv.Index] = ivResults
			done++
			progress := done
			resultsMu.Unlock()

			if v.config.Runs != nil {
				v.persistInterval(taskCtx, runID, iv.Index, ivResults)
			}
			if v.config.Progress != nil {
				v.config.Progress(progress, total)
			}

			anyInvalid := inconclusive
			for _, m := range ivResults {
				if m.invalid {
					anyInvalid = true
				}
			}
			return v.config.FailFast && anyInvalid, nil
		})
	}

	pool := worker.NewPool(v.config.Workers)
	if _, err := pool.Run(ctx, tasks); err != nil {
		return nil, err
	}
	// A cancelled run must not masquerade as a clean (and therefore valid)
	// zero-invalid result; persisted intervals allow resumption instead.
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	v.setState(pol.RunAggregating)
	result := v.aggregate(runID, proof, mode, selected, len(intervals), results)
	result.StartedAt = startedAt

	if wmCh != nil {
		wm := <-wmCh
		if wm.err != nil {
			return nil, fmt.Errorf("watermark detection failed: %w", wm.err)
		}
		result.Watermark = &pol.WatermarkOutcome{
			Confidence: wm.detection.Confidence,
			Verdict:    string(wm.detection.Verdict),
			Present:    wm.detection.Corroborates(),
		}
		result.ProofValid = result.ProofValid && result.Watermark.Present
	}

	result.CompletedAt = time.Now()
	v.setState(pol.RunDone)
	if v.config.Runs != nil {
		_ = v.config.Runs.UpdateRunState(ctx, runID, string(pol.RunDone))
	}
	return result, nil
}

// checkInterval recomputes one interval and measures it under every
// requested metric. Divergence yields inconclusive measurements, never an
// implicit pass.
func (v *Verifier) checkInterval(iv proofstore.Interval, manifest pol.Manifest, ds *training.Dataset, reEmbed bool) (map[pol.Metric]measurement, bool, error) {
	v.setState(pol.RunRecomputing)

	start := training.State{
		Step:     iv.StartStep,
		Params:   iv.Start,
		Velocity: iv.StartVelocity,
	}
	if len(start.Velocity) == 0 {
		start.Velocity = make([]float32, len(iv.Start))
	}

	end, err := training.Reconstruct(start, iv.BatchIndices, manifest, ds)
	if err != nil {
		if errors.Is(err, pol.ErrRecomputeDiverged) {
			out := make(map[pol.Metric]measurement, len(v.config.Metrics))
			for _, m := range v.config.Metrics {
				out[m] = measurement{status: pol.IntervalInconclusive}
			}
			return out, true, nil
		}
		return nil, false, err
	}

	if reEmbed {
		if v.config.Embedder == nil {
			return nil, false, fmt.Errorf("%w: proof is watermarked but no embedder configured", pol.ErrManifestInvalid)
		}
		marked, err := v.config.Embedder.Embed(end.Params, v.config.Watermark)
		if err != nil {
			return nil, false, fmt.Errorf("%w: interval %d: %v", pol.ErrProofMalformed, iv.Index, err)
		}
		end.Params = marked
	}

	v.setState(pol.RunComparing)

	out := make(map[pol.Metric]measurement, len(v.config.Metrics))
	for _, m := range v.config.Metrics {
		dist, err := distance.Compute(m, end.Params, iv.End)
		if err != nil {
			return nil, false, fmt.Errorf("%w: interval %d: %v", pol.ErrProofMalformed, iv.Index, err)
		}
		out[m] = measurement{
			distance: dist,
			invalid:  dist > v.threshold(m),
			status:   pol.IntervalOK,
		}
	}
	return out, false, nil
}

// aggregate folds the per-interval measurements into the structured result.
// The reduction is commutative and associative, so completion order never
// affects the outcome.
func (v *Verifier) aggregate(runID string, proof *pol.ProofOfLearning, mode pol.RunMode, selected []int, totalIntervals int, results map[int]map[pol.Metric]measurement) *pol.VerificationResult {
	intervals := proofIntervalBounds(proof)

	checked := make([]int, 0, len(results))
	for idx := range results {
		checked = append(checked, idx)
	}
	sort.Ints(checked)

	result := &pol.VerificationResult{
		RunID:            runID,
		ProofID:          proof.ID,
		Mode:             mode,
		CheckedIntervals: checked,
		TotalIntervals:   totalIntervals,
	}

	distanceValid := true
	for _, m := range v.config.Metrics {
		report := pol.MetricReport{
			Metric:    m,
			Threshold: v.threshold(m) - maxf(v.config.Delta, 0),
			Delta:     maxf(v.config.Delta, 0),
			Min:       math.Inf(1),
			Max:       math.Inf(-1),
		}

		var sum float64
		var counted int
		for _, idx := range selected {
			meas, ok := results[idx][m]
			if !ok {
				// Fail-fast stopped before this interval ran; it is
				// reported as skipped, not silently absent.
				report.Distances = append(report.Distances, pol.IntervalDistance{
					Interval:  idx,
					StartStep: intervals[idx][0],
					EndStep:   intervals[idx][1],
					Status:    pol.IntervalSkipped,
				})
				continue
			}
			id := pol.IntervalDistance{
				Interval:  idx,
				StartStep: intervals[idx][0],
				EndStep:   intervals[idx][1],
				Distance:  meas.distance,
				Invalid:   meas.invalid,
				Status:    meas.status,
			}
			report.Distances = append(report.Distances, id)

			if meas.status == pol.IntervalInconclusive {
				result.Inconclusive = true
				continue
			}
			sum += meas.distance
			counted++
			if meas.distance < report.Min {
				report.Min = meas.distance
			}
			if meas.distance > report.Max {
				report.Max = meas.distance
			}
			if meas.invalid {
				report.InvalidCount++
			}
		}

		if counted > 0 {
			report.Average = sum / float64(counted)
			report.InvalidFraction = float64(report.InvalidCount) / float64(counted)
		} else {
			report.Min, report.Max = 0, 0
		}
		report.Valid = report.InvalidCount == 0
		if !report.Valid {
			distanceValid = false
		}
		result.Metrics = append(result.Metrics, report)
	}

	// An inconclusive run never reports a valid proof.
	result.DistanceValid = distanceValid && !result.Inconclusive
	result.ProofValid = result.DistanceValid
	return result
}

// persistRunStart registers the run for resumption.
func (v *Verifier) persistRunStart(ctx context.Context, runID, proofID string, mode pol.RunMode) error {
	cfg, _ := json.Marshal(v.config)
	return v.config.Runs.CreateRun(ctx, runstore.Run{
		ID:      runID,
		ProofID: proofID,
		Mode:    string(mode),
		State:   string(pol.RunRecomputing),
		Config:  cfg,
	})
}

// loadCompleted prefills results from persisted measurements and returns
// the intervals still pending. Persisted inconclusive intervals are retried.
func (v *Verifier) loadCompleted(ctx context.Context, runID string, selected []int, results map[int]map[pol.Metric]measurement) []int {
	persisted, err := v.config.Runs.LoadIntervals(ctx, runID)
	if err != nil || len(persisted) == 0 {
		return selected
	}

	byInterval := make(map[int]map[pol.Metric]measurement)
	for _, p := range persisted {
		if pol.IntervalStatus(p.Status) != pol.IntervalOK {
			continue
		}
		if byInterval[p.Interval] == nil {
			byInterval[p.Interval] = make(map[pol.Metric]measurement)
		}
		byInterval[p.Interval][pol.Metric(p.Metric)] = measurement{
			distance: p.Distance,
			invalid:  p.Invalid,
			status:   pol.IntervalOK,
		}
	}

	var pending []int
	for _, idx := range selected {
		saved := byInterval[idx]
		complete := saved != nil
		for _, m := range v.config.Metrics {
			if _, ok := saved[m]; !ok {
				complete = false
				break
			}
		}
		if complete {
			results[idx] = saved
		} else {
			pending = append(pending, idx)
		}
	}
	return pending
}

// persistInterval saves one completed interval; persistence failures do not
// abort verification, they only forfeit resumption.
func (v *Verifier) persistInterval(ctx context.Context, runID string, interval int, measurements map[pol.Metric]measurement) {
	rows := make([]runstore.IntervalResult, 0, len(measurements))
	for m, meas := range measurements {
		rows = append(rows, runstore.IntervalResult{
			RunID:    runID,
			Interval: interval,
			Metric:   string(m),
			Distance: meas.distance,
			Invalid:  meas.invalid,
			Status:   string(meas.status),
		})
	}
	_ = v.config.Runs.SaveIntervals(ctx, rows)
}

type watermarkResult struct {
	detection domainWatermark.Detection
	err       error
}

// proofIntervalBounds returns (startStep, endStep) per interval index.
func proofIntervalBounds(p *pol.ProofOfLearning) [][2]int {
	out := make([][2]int, len(p.Records))
	prev := 0
	for i, rec := range p.Records {
		out[i] = [2]int{prev, rec.Index}
		prev = rec.Index
	}
	return out
}

func equalParams(a, b []float32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
