package verifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/recorder"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/runstore"
	infraWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/watermark"
)

func testManifest() pol.Manifest {
	m := pol.DefaultManifest()
	m.Seed = 31
	m.DatasetSeed = 32
	m.Features = 4
	m.Classes = 3
	m.DatasetSize = 64
	m.BatchSize = 8
	m.SaveFreq = 2
	m.Epochs = 1
	return m
}

// tightThresholds makes any nonzero distance invalid; honest recomputation
// is bit-exact, so its distances are exactly zero.
func tightThresholds() map[pol.Metric]float64 {
	out := make(map[pol.Metric]float64, 4)
	for _, m := range pol.AllMetrics() {
		out[m] = 1e-9
	}
	return out
}

func recordProof(t *testing.T, config recorder.Config) *pol.ProofOfLearning {
	t.Helper()
	rec, err := recorder.New(config)
	if err != nil {
		t.Fatalf("recorder.New failed: %v", err)
	}
	proof, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	return proof
}

func TestVerifyHonestProofFull(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})

	v := New(Config{Thresholds: tightThresholds()})
	result, err := v.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if result.Mode != pol.RunModeFull {
		t.Errorf("mode = %q, expected full", result.Mode)
	}
	if len(result.CheckedIntervals) != result.TotalIntervals {
		t.Errorf("checked %d of %d intervals in full mode", len(result.CheckedIntervals), result.TotalIntervals)
	}
	for _, m := range result.Metrics {
		if m.InvalidCount != 0 {
			t.Errorf("metric %s: %d invalid intervals on an honest proof", m.Metric.Name(), m.InvalidCount)
		}
		if !m.Valid {
			t.Errorf("metric %s reported invalid on an honest proof", m.Metric.Name())
		}
		for _, d := range m.Distances {
			// Recomputation is bit-identical, so every metric except
			// cosine (which rounds through sqrt) yields exactly zero.
			if d.Distance > 1e-12 {
				t.Errorf("metric %s interval %d: distance %g, expected ~0", m.Metric.Name(), d.Interval, d.Distance)
			}
		}
	}
	if !result.ProofValid {
		t.Fatal("honest proof reported invalid")
	}
	if v.State() != pol.RunDone {
		t.Errorf("verifier state = %q, expected done", v.State())
	}
}

func TestTamperedFinalCheckpointFlagsOnlyThatInterval(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})

	last := len(proof.Records) - 1
	for i := range proof.Records[last].Params {
		proof.Records[last].Params[i] += 1.5
	}

	v := New(Config{Thresholds: tightThresholds()})
	result, err := v.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if result.ProofValid {
		t.Fatal("tampered proof reported valid")
	}
	for _, m := range result.Metrics {
		if m.InvalidCount != 1 {
			t.Fatalf("metric %s flagged %d intervals, expected exactly 1", m.Metric.Name(), m.InvalidCount)
		}
		for _, d := range m.Distances {
			if d.Invalid != (d.Interval == last) {
				t.Fatalf("metric %s: interval %d invalid=%v", m.Metric.Name(), d.Interval, d.Invalid)
			}
		}
	}
}

func TestTamperedInteriorCheckpointFlagsAdjacentIntervals(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})
	if len(proof.Records) < 4 {
		t.Fatalf("proof has %d checkpoints, need at least 4", len(proof.Records))
	}

	// Checkpoint 1 ends interval 1 and starts interval 2, so exactly
	// those two intervals must be flagged and no other.
	tampered := 1
	for i := range proof.Records[tampered].Params {
		proof.Records[tampered].Params[i] += 1.5
	}

	v := New(Config{Thresholds: tightThresholds()})
	result, err := v.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if result.ProofValid {
		t.Fatal("tampered proof reported valid")
	}
	for _, m := range result.Metrics {
		if m.InvalidCount != 2 {
			t.Fatalf("metric %s flagged %d intervals, expected exactly 2", m.Metric.Name(), m.InvalidCount)
		}
		for _, d := range m.Distances {
			wantInvalid := d.Interval == tampered || d.Interval == tampered+1
			if d.Invalid != wantInvalid {
				t.Fatalf("metric %s: interval %d invalid=%v", m.Metric.Name(), d.Interval, d.Invalid)
			}
		}
	}
}

func TestBudgetedVerificationNoFalsePositives(t *testing.T) {
	m := testManifest()
	m.Epochs = 2
	proof := recordProof(t, recorder.Config{Manifest: m})

	full := New(Config{Thresholds: tightThresholds()})
	fullResult, err := full.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("full Verify failed: %v", err)
	}
	if !fullResult.ProofValid {
		t.Fatal("honest proof failed full verification")
	}

	for q := 1; q <= 3; q++ {
		v := New(Config{Thresholds: tightThresholds(), QueryBudget: q, ScheduleSeed: 9})
		result, err := v.Verify(context.Background(), proof)
		if err != nil {
			t.Fatalf("budgeted Verify(q=%d) failed: %v", q, err)
		}
		if result.Mode != pol.RunModeBudgeted {
			t.Fatalf("mode = %q, expected budgeted", result.Mode)
		}
		if len(result.CheckedIntervals) > result.TotalIntervals {
			t.Fatalf("checked more intervals than exist")
		}
		if !result.ProofValid {
			t.Fatalf("budgeted check (q=%d) introduced a false positive", q)
		}
	}
}

func TestFailFastRejectsWithoutFullRun(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})
	for i := range proof.Records[0].Params {
		proof.Records[0].Params[i] += 2
	}

	v := New(Config{Thresholds: tightThresholds(), FailFast: true, Workers: 1})
	result, err := v.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}
	if result.ProofValid {
		t.Fatal("tampered proof reported valid under fail-fast")
	}
	if len(result.CheckedIntervals) == result.TotalIntervals {
		t.Error("fail-fast checked every interval despite an early invalid")
	}
	for _, m := range result.Metrics {
		skipped := 0
		for _, d := range m.Distances {
			if d.Status != pol.IntervalSkipped {
				continue
			}
			if d.Invalid {
				t.Fatalf("metric %s: skipped interval %d marked invalid", m.Metric.Name(), d.Interval)
			}
			skipped++
		}
		if skipped == 0 {
			t.Errorf("metric %s reports no skipped intervals after the fail-fast stop", m.Metric.Name())
		}
		if measured := len(m.Distances) - skipped; measured != len(result.CheckedIntervals) {
			t.Errorf("metric %s: %d measured entries, expected %d", m.Metric.Name(), measured, len(result.CheckedIntervals))
		}
	}
}

func TestVerifyRejectsInitMismatch(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})
	proof.InitialState[0] += 1

	v := New(Config{Thresholds: tightThresholds()})
	_, err := v.Verify(context.Background(), proof)
	if !errors.Is(err, pol.ErrProofMalformed) {
		t.Fatalf("expected ErrProofMalformed, got %v", err)
	}
	if !errors.Is(err, pol.ErrInitMismatch) {
		t.Fatalf("expected ErrInitMismatch, got %v", err)
	}
}

func TestVerifyNamesImplausibleInitialState(t *testing.T) {
	m := testManifest()
	proof := recordProof(t, recorder.Config{Manifest: m})

	// A nonzero bias cannot come from the declared initialization, so
	// the distributional check should name it rather than report a
	// bare seed mismatch.
	proof.InitialState[m.Features*m.Classes] = 0.5

	v := New(Config{Thresholds: tightThresholds()})
	_, err := v.Verify(context.Background(), proof)
	if !errors.Is(err, pol.ErrProofMalformed) {
		t.Fatalf("expected ErrProofMalformed, got %v", err)
	}
	if !errors.Is(err, pol.ErrInitMismatch) {
		t.Fatalf("expected ErrInitMismatch, got %v", err)
	}
	if !strings.Contains(err.Error(), "bias") {
		t.Fatalf("expected the diagnostic to name the bias, got %v", err)
	}
}

func TestVerifyRejectsDatasetHashMismatch(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})
	proof.Manifest.DatasetHash = "deadbeef"

	v := New(Config{Thresholds: tightThresholds()})
	_, err := v.Verify(context.Background(), proof)
	if !errors.Is(err, pol.ErrProofMalformed) {
		t.Fatalf("expected ErrProofMalformed, got %v", err)
	}
}

func TestWatermarkedProofVerifiesWithKey(t *testing.T) {
	key := []byte("verify-test-key")
	wm := domainWatermark.DefaultConfig(key)
	wm.Coordinates = 8
	sp := infraWatermark.NewSignPattern()

	proof := recordProof(t, recorder.Config{
		Manifest:  testManifest(),
		Embed:     true,
		Watermark: wm,
		Embedder:  sp,
	})

	v := New(Config{
		Thresholds:     tightThresholds(),
		CheckWatermark: true,
		Watermark:      wm,
		Detector:       sp,
		Embedder:       sp,
	})
	result, err := v.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("Verify failed: %v", err)
	}

	if result.Watermark == nil {
		t.Fatal("watermark outcome missing")
	}
	if !result.Watermark.Present {
		t.Fatalf("watermark not detected: verdict %q confidence %g",
			result.Watermark.Verdict, result.Watermark.Confidence)
	}
	if !result.DistanceValid {
		t.Fatal("re-embedding did not reproduce the recorded final checkpoint")
	}
	if !result.ProofValid {
		t.Fatal("watermarked proof with the right key reported invalid")
	}
}

// fixedDetector returns a fixed detection regardless of input.
type fixedDetector struct {
	detection domainWatermark.Detection
}

func (f fixedDetector) Detect(params []float32, cfg domainWatermark.Config) (domainWatermark.Detection, error) {
	return f.detection, nil
}

func TestCombinedVerdictIsConjunction(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})

	tests := []struct {
		name     string
		verdict  domainWatermark.Verdict
		expected bool
	}{
		{"present", domainWatermark.VerdictPresent, true},
		{"absent", domainWatermark.VerdictAbsent, false},
		{"ambiguous treated as absent", domainWatermark.VerdictAmbiguous, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := New(Config{
				Thresholds:     tightThresholds(),
				CheckWatermark: true,
				Watermark:      domainWatermark.DefaultConfig([]byte("k")),
				Detector:       fixedDetector{domainWatermark.Detection{Confidence: 0.5, Verdict: tt.verdict}},
			})
			result, err := v.Verify(context.Background(), proof)
			if err != nil {
				t.Fatalf("Verify failed: %v", err)
			}
			if !result.DistanceValid {
				t.Fatal("honest proof failed the distance check")
			}
			if result.ProofValid != tt.expected {
				t.Fatalf("ProofValid = %v with watermark %q, expected %v", result.ProofValid, tt.verdict, tt.expected)
			}
		})
	}
}

// fakeRunStore is an in-memory runstore.Store for resumption tests.
type fakeRunStore struct {
	mu        sync.Mutex
	runs      map[string]runstore.Run
	intervals map[string][]runstore.IntervalResult
	saves     int
}

func newFakeRunStore() *fakeRunStore {
	return &fakeRunStore{
		runs:      make(map[string]runstore.Run),
		intervals: make(map[string][]runstore.IntervalResult),
	}
}

func (f *fakeRunStore) CreateRun(ctx context.Context, run runstore.Run) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.ID] = run
	return nil
}

func (f *fakeRunStore) UpdateRunState(ctx context.Context, runID, state string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run := f.runs[runID]
	run.State = state
	f.runs[runID] = run
	return nil
}

func (f *fakeRunStore) GetRun(ctx context.Context, runID string) (runstore.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return runstore.Run{}, runstore.ErrRunNotFound
	}
	return run, nil
}

func (f *fakeRunStore) SaveIntervals(ctx context.Context, results []runstore.IntervalResult) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves++
	for _, r := range results {
		f.intervals[r.RunID] = append(f.intervals[r.RunID], r)
	}
	return nil
}

func (f *fakeRunStore) LoadIntervals(ctx context.Context, runID string) ([]runstore.IntervalResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intervals[runID], nil
}

func (f *fakeRunStore) Close() error { return nil }

func TestVerifyResumesFromPersistedIntervals(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})
	store := newFakeRunStore()

	first := New(Config{Thresholds: tightThresholds(), RunID: "run-1", Runs: store})
	firstResult, err := first.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("first Verify failed: %v", err)
	}
	if !firstResult.ProofValid {
		t.Fatal("honest proof reported invalid")
	}
	savesAfterFirst := store.saves
	if savesAfterFirst == 0 {
		t.Fatal("first run persisted nothing")
	}

	recomputed := 0
	second := New(Config{
		Thresholds: tightThresholds(),
		RunID:      "run-1",
		Runs:       store,
		Progress:   func(done, total int) { recomputed++ },
	})
	secondResult, err := second.Verify(context.Background(), proof)
	if err != nil {
		t.Fatalf("second Verify failed: %v", err)
	}

	if recomputed != 0 {
		t.Errorf("resumed run recomputed %d intervals, expected 0", recomputed)
	}
	if store.saves != savesAfterFirst {
		t.Errorf("resumed run persisted again: %d saves, expected %d", store.saves, savesAfterFirst)
	}
	if !secondResult.ProofValid {
		t.Fatal("resumed run reported the proof invalid")
	}
	if len(secondResult.CheckedIntervals) != len(firstResult.CheckedIntervals) {
		t.Errorf("resumed run covers %d intervals, expected %d",
			len(secondResult.CheckedIntervals), len(firstResult.CheckedIntervals))
	}
}

func TestAggregateInconclusiveNeverValid(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})

	v := New(Config{Thresholds: tightThresholds()})
	results := map[int]map[pol.Metric]measurement{
		0: {
			pol.MetricL1:     {distance: 0, status: pol.IntervalOK},
			pol.MetricL2:     {distance: 0, status: pol.IntervalOK},
			pol.MetricLInf:   {distance: 0, status: pol.IntervalOK},
			pol.MetricCosine: {distance: 0, status: pol.IntervalOK},
		},
		1: {
			pol.MetricL1:     {status: pol.IntervalInconclusive},
			pol.MetricL2:     {status: pol.IntervalInconclusive},
			pol.MetricLInf:   {status: pol.IntervalInconclusive},
			pol.MetricCosine: {status: pol.IntervalInconclusive},
		},
	}

	result := v.aggregate("run", proof, pol.RunModeFull, []int{0, 1}, len(proof.Records), results)
	if !result.Inconclusive {
		t.Fatal("inconclusive interval not reflected in the result")
	}
	if result.DistanceValid || result.ProofValid {
		t.Fatal("inconclusive run must never report a valid proof")
	}
	for _, m := range result.Metrics {
		if m.InvalidCount != 0 {
			t.Errorf("metric %s: inconclusive interval counted as invalid", m.Metric.Name())
		}
	}
}

func TestVerifyRespectsContextCancellation(t *testing.T) {
	proof := recordProof(t, recorder.Config{Manifest: testManifest()})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	v := New(Config{Thresholds: tightThresholds()})
	if _, err := v.Verify(ctx, proof); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
