package forger

import (
	"context"
	"errors"
	"testing"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/recorder"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/verifier"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/spoof"
)

func testManifest() pol.Manifest {
	m := pol.DefaultManifest()
	m.Seed = 41
	m.DatasetSeed = 42
	m.Features = 4
	m.Classes = 3
	m.DatasetSize = 64
	m.BatchSize = 8
	m.SaveFreq = 2
	m.Epochs = 1
	return m
}

func tightThresholds() map[pol.Metric]float64 {
	out := make(map[pol.Metric]float64, 4)
	for _, m := range pol.AllMetrics() {
		out[m] = 1e-9
	}
	return out
}

// stolenTarget trains honestly once and returns the final snapshot the
// adversary is assumed to have stolen.
func stolenTarget(t *testing.T) []float32 {
	t.Helper()
	rec, err := recorder.New(recorder.Config{Manifest: testManifest()})
	if err != nil {
		t.Fatalf("recorder.New failed: %v", err)
	}
	proof, err := rec.Record(context.Background())
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	return proof.Records[len(proof.Records)-1].Params
}

func forgerManifest() pol.Manifest {
	m := testManifest()
	m.Seed = 999 // the forger's own seed; the init check must still pass
	return m
}

func TestForgedProofsAreStructurallyWellFormed(t *testing.T) {
	target := stolenTarget(t)

	tests := []struct {
		strategy spoof.Strategy
		steps    int
		cut      float64
	}{
		{spoof.StrategyInterpolation, 0, 0},
		{spoof.StrategyRefinement, 4, 0},
		{spoof.StrategyHybrid, 4, 0.5},
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy), func(t *testing.T) {
			f, err := New(Config{
				Strategy:    tt.strategy,
				SpoofSteps:  tt.steps,
				CutFraction: tt.cut,
				Manifest:    forgerManifest(),
				Target:      target,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			attempt, err := f.Forge(context.Background())
			if err != nil {
				t.Fatalf("Forge failed: %v", err)
			}

			if err := attempt.Proof.Validate(); err != nil {
				t.Fatalf("forged proof failed structural validation: %v", err)
			}
			final := attempt.Proof.Records[len(attempt.Proof.Records)-1].Params
			for i := range target {
				if final[i] != target[i] {
					t.Fatal("forged proof does not end at the stolen target")
				}
			}
		})
	}
}

func TestEveryStrategyIsRejectedByDistance(t *testing.T) {
	target := stolenTarget(t)

	tests := []struct {
		strategy spoof.Strategy
		steps    int
		cut      float64
	}{
		{spoof.StrategyInterpolation, 0, 0},
		{spoof.StrategyRefinement, 4, 0},
		{spoof.StrategyHybrid, 4, 0.5},
		{spoof.StrategyHybrid, 4, 1.0}, // degenerates to refinement
	}

	for _, tt := range tests {
		t.Run(string(tt.strategy)+"-cut", func(t *testing.T) {
			f, err := New(Config{
				Strategy:    tt.strategy,
				SpoofSteps:  tt.steps,
				CutFraction: tt.cut,
				Manifest:    forgerManifest(),
				Target:      target,
			})
			if err != nil {
				t.Fatalf("New failed: %v", err)
			}
			attempt, err := f.Forge(context.Background())
			if err != nil {
				t.Fatalf("Forge failed: %v", err)
			}

			// The forged proof goes through the identical pipeline as a
			// genuine one; Verify must return a result, not an error.
			v := verifier.New(verifier.Config{Thresholds: tightThresholds()})
			result, err := v.Verify(context.Background(), attempt.Proof)
			if err != nil {
				t.Fatalf("Verify errored on a structurally valid forgery: %v", err)
			}
			if result.ProofValid {
				t.Fatalf("%s forgery passed verification", tt.strategy)
			}

			invalidSomewhere := false
			for _, m := range result.Metrics {
				if m.InvalidCount > 0 {
					invalidSomewhere = true
				}
			}
			if !invalidSomewhere && !result.Inconclusive {
				t.Fatal("forgery rejected without any flagged interval")
			}
		})
	}
}

func TestNewValidatesConfig(t *testing.T) {
	target := stolenTarget(t)

	tests := []struct {
		name     string
		config   Config
		sentinel error
	}{
		{"unknown strategy", Config{Strategy: "replay", Manifest: forgerManifest(), Target: target}, spoof.ErrUnknownStrategy},
		{"bad cut", Config{Strategy: spoof.StrategyHybrid, SpoofSteps: 4, CutFraction: 1.5, Manifest: forgerManifest(), Target: target}, spoof.ErrBadCutFraction},
		{"bad steps", Config{Strategy: spoof.StrategyRefinement, SpoofSteps: 0, Manifest: forgerManifest(), Target: target}, spoof.ErrBadSpoofSteps},
		{"wrong target dim", Config{Strategy: spoof.StrategyInterpolation, Manifest: forgerManifest(), Target: target[:3]}, pol.ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.config); !errors.Is(err, tt.sentinel) {
				t.Fatalf("expected %v, got %v", tt.sentinel, err)
			}
		})
	}
}
