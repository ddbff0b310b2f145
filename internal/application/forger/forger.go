// Package forger implements the adversary model: it constructs forged
// proofs of learning designed to pass verification without performing the
// equivalent training computation. Forged proofs are structurally
// well-formed and carry no metadata distinguishing them from genuine ones;
// rejection must come from the distance checks or the watermark.
package forger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/recorder"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/spoof"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/training"
)

// Config controls one forgery attempt.
type Config struct {
	Strategy spoof.Strategy

	// SpoofSteps is T: the number of genuine fine-tuning steps the
	// adversary is willing to spend across the whole forged trajectory.
	// Interpolation spends none regardless.
	SpoofSteps int

	// CutFraction limits adversary compute for the hybrid strategy: the
	// leading (1 - cut) fraction of checkpoints is interpolated, the rest
	// refined. 1.0 degenerates to pure refinement.
	CutFraction float64

	// Manifest is the forger's claimed manifest. The seed is the forger's
	// own, so the initial-state check passes; everything downstream of the
	// initial state is fabricated.
	Manifest pol.Manifest

	// Target is the stolen final parameter snapshot the forged proof
	// claims to have trained.
	Target []float32
}

// Forger fabricates proofs of learning. One Forger per attempt.
type Forger struct {
	config Config
}

// New creates a forger over a validated configuration.
func New(config Config) (*Forger, error) {
	if _, err := spoof.ParseStrategy(string(config.Strategy)); err != nil {
		return nil, err
	}
	if err := config.Manifest.Validate(); err != nil {
		return nil, err
	}
	if config.Strategy != spoof.StrategyInterpolation && config.SpoofSteps <= 0 {
		return nil, spoof.ErrBadSpoofSteps
	}
	if config.CutFraction < 0 || config.CutFraction > 1 {
		return nil, spoof.ErrBadCutFraction
	}
	if len(config.Target) != config.Manifest.ParamDim() {
		return nil, fmt.Errorf("%w: target has %d parameters, want %d",
			pol.ErrDimensionMismatch, len(config.Target), config.Manifest.ParamDim())
	}
	return &Forger{config: config}, nil
}

// Forge fabricates a proof under the configured strategy. The result passes
// every structural check: the initial state derives from the claimed seed,
// the batch indices follow the claimed schedule and the dataset commitment
// matches them.
func (f *Forger) Forge(ctx context.Context) (*spoof.Attempt, error) {
	started := time.Now()

	manifest := f.config.Manifest
	if manifest.ProofID == "" {
		manifest.ProofID = uuid.New().String()
	}
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}

	totalSteps := recorder.TotalSteps(manifest)
	n := totalSteps / manifest.SaveFreq
	if n == 0 {
		return nil, fmt.Errorf("%w: no full checkpoint interval fits the claimed geometry", pol.ErrManifestInvalid)
	}

	order := recorder.BatchOrder(manifest)[:totalSteps*manifest.BatchSize]
	ds := training.NewDataset(manifest)
	manifest.DatasetHash = ds.Hash(order)

	init := training.InitParams(manifest)

	var (
		snapshots [][]float32
		err       error
	)
	switch f.config.Strategy {
	case spoof.StrategyInterpolation:
		snapshots = f.interpolate(init, n)
	case spoof.StrategyRefinement:
		snapshots, err = f.refine(ctx, init, n, n, manifest, ds, order)
	case spoof.StrategyHybrid:
		interpolated := int(float64(n) * (1 - f.config.CutFraction))
		snapshots, err = f.hybrid(ctx, init, n, interpolated, manifest, ds, order)
	}
	if err != nil {
		return nil, err
	}

	store, err := proofstore.NewStore(manifest, init)
	if err != nil {
		return nil, err
	}
	for j, params := range snapshots {
		step := (j + 1) * manifest.SaveFreq
		rec := pol.CheckpointRecord{
			Index:        step,
			Params:       params,
			BatchIndices: order[j*manifest.SaveFreq*manifest.BatchSize : step*manifest.BatchSize],
			WallTime:     time.Now().UTC(),
		}
		if err := store.Append(rec); err != nil {
			return nil, err
		}
	}
	store.Seal()

	return &spoof.Attempt{
		ID:          uuid.New().String(),
		Strategy:    f.config.Strategy,
		SpoofSteps:  f.config.SpoofSteps,
		CutFraction: f.config.CutFraction,
		Proof:       store.Proof(manifest.ProofID),
		Elapsed:     time.Since(started),
	}, nil
}

// interpolate fabricates n checkpoints on the straight line from the forged
// initial state to the target, performing no gradient computation at all.
func (f *Forger) interpolate(init []float32, n int) [][]float32 {
	snapshots := make([][]float32, n)
	for j := 1; j <= n; j++ {
		t := float32(j) / float32(n)
		params := make([]float32, len(init))
		for i := range params {
			params[i] = init[i] + t*(f.config.Target[i]-init[i])
		}
		snapshots[j-1] = params
	}
	return snapshots
}

// refine spends T genuine steps spread over the refined intervals: each
// refined checkpoint is reached by running only effort = T/refined of the
// claimed k steps from the previous one, then the final checkpoint is
// overwritten with the target. Cheaper than training by roughly k/effort.
func (f *Forger) refine(ctx context.Context, init []float32, n, refined int, manifest pol.Manifest, ds *training.Dataset, order []int) ([][]float32, error) {
	effort := f.config.SpoofSteps / refined
	if effort < 1 {
		effort = 1
	}
	if effort > manifest.SaveFreq {
		effort = manifest.SaveFreq
	}

	snapshots := make([][]float32, 0, n)
	state := training.State{
		Params:   init,
		Velocity: make([]float32, len(init)),
	}

	for j := 0; j < n; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := j * manifest.SaveFreq * manifest.BatchSize
		next, err := training.Reconstruct(state, order[start:start+effort*manifest.BatchSize], manifest, ds)
		if err != nil {
			return nil, err
		}
		// Claim the full interval while the step count advances only by
		// the spent effort; the claimed schedule stays k-aligned.
		next.Step = (j + 1) * manifest.SaveFreq
		state = next
		snapshots = append(snapshots, state.Params)
	}

	final := make([]float32, len(f.config.Target))
	copy(final, f.config.Target)
	snapshots[n-1] = final
	return snapshots, nil
}

// hybrid interpolates the leading checkpoints and refines the rest from the
// last interpolated snapshot. interpolated = 0 is pure refinement.
func (f *Forger) hybrid(ctx context.Context, init []float32, n, interpolated int, manifest pol.Manifest, ds *training.Dataset, order []int) ([][]float32, error) {
	if interpolated >= n {
		interpolated = n - 1
	}
	if interpolated <= 0 {
		return f.refine(ctx, init, n, n, manifest, ds, order)
	}

	line := f.interpolate(init, n)
	snapshots := line[:interpolated]

	refined := n - interpolated
	effort := f.config.SpoofSteps / refined
	if effort < 1 {
		effort = 1
	}
	if effort > manifest.SaveFreq {
		effort = manifest.SaveFreq
	}

	state := training.State{
		Step:     interpolated * manifest.SaveFreq,
		Params:   snapshots[interpolated-1],
		Velocity: make([]float32, len(init)),
	}
	for j := interpolated; j < n; j++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		start := j * manifest.SaveFreq * manifest.BatchSize
		next, err := training.Reconstruct(state, order[start:start+effort*manifest.BatchSize], manifest, ds)
		if err != nil {
			return nil, err
		}
		next.Step = (j + 1) * manifest.SaveFreq
		state = next
		snapshots = append(snapshots, state.Params)
	}

	final := make([]float32, len(f.config.Target))
	copy(final, f.config.Target)
	snapshots[n-1] = final
	return snapshots, nil
}
