// Package proofstore provides the append-only checkpoint store and the
// on-disk proof container layout.
package proofstore

import (
	"fmt"
	"sync"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// Store is an ordered, append-only record of training checkpoints. Appends
// are index-checked at write time; once sealed the store is read-only and
// safe for concurrent readers.
type Store struct {
	mu       sync.RWMutex
	manifest pol.Manifest
	initial  []float32
	records  []pol.CheckpointRecord
	sealed   bool
}

// Interval is one consecutive checkpoint pair (record_i, record_i+1),
// flattened into what the recomputer needs. Slices are shared read-only
// views into the store; callers must not mutate them.
type Interval struct {
	// Index is the 0-based interval number.
	Index int

	StartStep int
	EndStep   int

	// Start/StartVelocity describe the snapshot the interval begins from.
	Start         []float32
	StartVelocity []float32

	// End is the claimed snapshot at EndStep.
	End []float32

	// BatchIndices are the dataset indices consumed across the interval.
	BatchIndices []int

	// Epoch is the training epoch the interval belongs to.
	Epoch int
}

// NewStore creates a store over a validated manifest and initial state.
func NewStore(manifest pol.Manifest, initial []float32) (*Store, error) {
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", pol.ErrProofMalformed, err)
	}
	if len(initial) != manifest.ParamDim() {
		return nil, fmt.Errorf("%w: %w: initial state has %d parameters, want %d",
			pol.ErrProofMalformed, pol.ErrDimensionMismatch, len(initial), manifest.ParamDim())
	}
	init := make([]float32, len(initial))
	copy(init, initial)
	return &Store{manifest: manifest, initial: init}, nil
}

// FromProof builds a sealed store from a full proof, validating it.
func FromProof(p *pol.ProofOfLearning) (*Store, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	s, err := NewStore(p.Manifest, p.InitialState)
	if err != nil {
		return nil, err
	}
	for _, rec := range p.Records {
		if err := s.Append(rec); err != nil {
			return nil, err
		}
	}
	s.Seal()
	return s, nil
}

// Append adds the next checkpoint. Non-monotonic or non-k-aligned indices
// and batch-index-length mismatches are rejected at write time.
func (s *Store) Append(rec pol.CheckpointRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sealed {
		return pol.ErrStoreSealed
	}

	prev := 0
	if n := len(s.records); n > 0 {
		prev = s.records[n-1].Index
	}

	if rec.Index <= prev {
		return fmt.Errorf("%w: %w: index %d after %d",
			pol.ErrProofMalformed, pol.ErrNonMonotonicIndex, rec.Index, prev)
	}
	if rec.Index%s.manifest.SaveFreq != 0 {
		return fmt.Errorf("%w: %w: index %d with save frequency %d",
			pol.ErrProofMalformed, pol.ErrMisalignedIndex, rec.Index, s.manifest.SaveFreq)
	}
	if len(rec.Params) != s.manifest.ParamDim() {
		return fmt.Errorf("%w: %w: checkpoint %d has %d parameters, want %d",
			pol.ErrProofMalformed, pol.ErrDimensionMismatch, rec.Index, len(rec.Params), s.manifest.ParamDim())
	}
	if want := (rec.Index - prev) * s.manifest.BatchSize; len(rec.BatchIndices) != want {
		return fmt.Errorf("%w: %w: checkpoint %d carries %d batch indices, want %d",
			pol.ErrProofMalformed, pol.ErrBatchLengthMismatch, rec.Index, len(rec.BatchIndices), want)
	}

	s.records = append(s.records, rec)
	return nil
}

// Seal makes the store read-only.
func (s *Store) Seal() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sealed = true
}

// Manifest returns the hyperparameter manifest.
func (s *Store) Manifest() pol.Manifest {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manifest
}

// InitialState returns the initial parameter snapshot (read-only view).
func (s *Store) InitialState() []float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial
}

// Len returns the number of checkpoints.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

// Record returns checkpoint i in append order.
func (s *Store) Record(i int) (pol.CheckpointRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.records) {
		return pol.CheckpointRecord{}, fmt.Errorf("%w: record %d of %d", pol.ErrMissingCheckpoint, i, len(s.records))
	}
	return s.records[i], nil
}

// Intervals returns the ordered consecutive checkpoint pairs. The first
// interval starts from the initial state with a zero momentum buffer.
func (s *Store) Intervals() []Interval {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stepsPerEpoch := 0
	if s.manifest.BatchSize > 0 {
		stepsPerEpoch = s.manifest.DatasetSize / s.manifest.BatchSize
	}

	out := make([]Interval, 0, len(s.records))
	prevStep := 0
	prevParams := s.initial
	var prevVelocity []float32

	for i, rec := range s.records {
		iv := Interval{
			Index:         i,
			StartStep:     prevStep,
			EndStep:       rec.Index,
			Start:         prevParams,
			StartVelocity: prevVelocity,
			End:           rec.Params,
			BatchIndices:  rec.BatchIndices,
		}
		if stepsPerEpoch > 0 {
			iv.Epoch = prevStep / stepsPerEpoch
		}
		out = append(out, iv)

		prevStep = rec.Index
		prevParams = rec.Params
		prevVelocity = rec.Velocity
	}
	return out
}

// Proof reassembles the store into a ProofOfLearning value.
func (s *Store) Proof(id string) *pol.ProofOfLearning {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]pol.CheckpointRecord, len(s.records))
	copy(records, s.records)
	initial := make([]float32, len(s.initial))
	copy(initial, s.initial)

	return &pol.ProofOfLearning{
		ID:           id,
		Manifest:     s.manifest,
		InitialState: initial,
		Records:      records,
	}
}
