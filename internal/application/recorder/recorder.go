// Package recorder produces proofs of learning: it trains the declared
// model deterministically, snapshots checkpoints every k steps and commits
// to the dataset examples the recorded batch indices address.
package recorder

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	domainWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/training"
)

// Config controls one recording run.
type Config struct {
	Manifest pol.Manifest

	// Embed, when set together with Embedder, applies the keyed watermark
	// to the final checkpoint after its last training step and marks the
	// manifest accordingly.
	Embed     bool
	Watermark domainWatermark.Config
	Embedder  domainWatermark.Embedder

	// Progress, when set, is called after each checkpoint is recorded.
	Progress func(step, totalSteps int)
}

// Recorder trains and records. One Recorder per run.
type Recorder struct {
	config Config
}

// New creates a recorder over a validated configuration.
func New(config Config) (*Recorder, error) {
	if err := config.Manifest.Validate(); err != nil {
		return nil, err
	}
	if config.Embed && config.Embedder == nil {
		return nil, fmt.Errorf("%w: watermark embedding requested without an embedder", pol.ErrManifestInvalid)
	}
	return &Recorder{config: config}, nil
}

// BatchOrder returns the deterministic batch-index stream for the whole run:
// one seeded permutation of the dataset per epoch, truncated to whole
// batches. The stream is a pure function of the manifest, so the verifier
// and the recorder agree on it without further disclosure.
func BatchOrder(m pol.Manifest) []int {
	stepsPerEpoch := m.DatasetSize / m.BatchSize
	indices := make([]int, 0, m.Epochs*stepsPerEpoch*m.BatchSize)
	for epoch := 0; epoch < m.Epochs; epoch++ {
		rng := rand.New(rand.NewSource(m.Seed + int64(epoch)))
		perm := rng.Perm(m.DatasetSize)
		indices = append(indices, perm[:stepsPerEpoch*m.BatchSize]...)
	}
	return indices
}

// TotalSteps returns the number of recorded steps: full batches across all
// epochs, truncated so every checkpoint interval spans exactly k steps.
func TotalSteps(m pol.Manifest) int {
	steps := m.Epochs * (m.DatasetSize / m.BatchSize)
	return steps - steps%m.SaveFreq
}

// Record trains the model from the manifest's seeds and returns the sealed
// proof. The trajectory is reproducible bit for bit from the manifest alone;
// recording twice yields identical checkpoints.
func (r *Recorder) Record(ctx context.Context) (*pol.ProofOfLearning, error) {
	manifest := r.config.Manifest
	if manifest.ProofID == "" {
		manifest.ProofID = uuid.New().String()
	}
	if manifest.CreatedAt.IsZero() {
		manifest.CreatedAt = time.Now().UTC()
	}
	manifest.Watermarked = r.config.Embed

	totalSteps := TotalSteps(manifest)
	if totalSteps == 0 {
		return nil, fmt.Errorf("%w: no full checkpoint interval fits %d epochs", pol.ErrManifestInvalid, manifest.Epochs)
	}

	order := BatchOrder(manifest)
	order = order[:totalSteps*manifest.BatchSize]

	// The commitment is computed before training so the manifest is final
	// by the time the first checkpoint is appended.
	ds := training.NewDataset(manifest)
	manifest.DatasetHash = ds.Hash(order)

	if r.config.Embed {
		if err := r.config.Watermark.Validate(manifest.ParamDim()); err != nil {
			return nil, err
		}
	}

	state := training.InitState(manifest)
	store, err := proofstore.NewStore(manifest, state.Params)
	if err != nil {
		return nil, err
	}

	intervalStart := 0
	for step := 0; step < totalSteps; step++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := order[step*manifest.BatchSize : (step+1)*manifest.BatchSize]
		next, err := training.Step(state, batch, manifest, ds)
		if err != nil {
			return nil, err
		}
		state = next

		if state.Step%manifest.SaveFreq != 0 {
			continue
		}

		params := state.Params
		if r.config.Embed && state.Step == totalSteps {
			params, err = r.config.Embedder.Embed(params, r.config.Watermark)
			if err != nil {
				return nil, err
			}
		}

		rec := pol.CheckpointRecord{
			Index:        state.Step,
			Params:       params,
			Velocity:     state.Velocity,
			BatchIndices: order[intervalStart*manifest.BatchSize : state.Step*manifest.BatchSize],
			WallTime:     time.Now().UTC(),
		}
		if err := store.Append(rec); err != nil {
			return nil, err
		}
		intervalStart = state.Step

		if r.config.Progress != nil {
			r.config.Progress(state.Step, totalSteps)
		}
	}

	store.Seal()
	return store.Proof(manifest.ProofID), nil
}
