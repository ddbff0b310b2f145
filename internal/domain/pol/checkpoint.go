package pol

import (
	"fmt"
	"time"
)

// CheckpointRecord is one entry in a proof of learning: the parameter
// snapshot after `Index` global steps, the optimizer state at that point,
// and the batch indices consumed since the previous checkpoint.
// Immutable once written.
type CheckpointRecord struct {
	// Index is the global step count at which the snapshot was taken.
	// Indices are strictly increasing multiples of the save frequency.
	Index int `json:"index"`

	// Params is the flattened parameter snapshot.
	Params []float32 `json:"params"`

	// Velocity is the SGD momentum buffer at Index, flattened like Params.
	Velocity []float32 `json:"velocity"`

	// BatchIndices are the dataset indices consumed between the previous
	// checkpoint and this one, in consumption order. Length must equal
	// (Index - previousIndex) * batchSize.
	BatchIndices []int `json:"batchIndices"`

	// WallTime is when the snapshot was recorded.
	WallTime time.Time `json:"wallTime"`
}

// ProofOfLearning is the full claimed training trace: a reproducible
// initial state, the hyperparameter manifest and the ordered checkpoint
// sequence. Written once by the recorder, read-only thereafter.
type ProofOfLearning struct {
	ID           string             `json:"id"`
	Manifest     Manifest           `json:"manifest"`
	InitialState []float32          `json:"initialState"`
	Records      []CheckpointRecord `json:"records"`
}

// Steps returns the total number of recorded training steps.
func (p *ProofOfLearning) Steps() int {
	if len(p.Records) == 0 {
		return 0
	}
	return p.Records[len(p.Records)-1].Index
}

// Intervals returns the number of consecutive checkpoint pairs.
func (p *ProofOfLearning) Intervals() int {
	return len(p.Records)
}

// Validate checks every structural invariant of the proof. Any violation
// wraps ErrProofMalformed.
func (p *ProofOfLearning) Validate() error {
	if err := p.Manifest.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrProofMalformed, err)
	}

	dim := p.Manifest.ParamDim()
	if len(p.InitialState) != dim {
		return fmt.Errorf("%w: %w: initial state has %d parameters, want %d",
			ErrProofMalformed, ErrDimensionMismatch, len(p.InitialState), dim)
	}
	if len(p.Records) == 0 {
		return fmt.Errorf("%w: %w: proof has no checkpoints", ErrProofMalformed, ErrMissingCheckpoint)
	}

	prev := 0
	for _, rec := range p.Records {
		if rec.Index <= prev {
			return fmt.Errorf("%w: %w: index %d after %d",
				ErrProofMalformed, ErrNonMonotonicIndex, rec.Index, prev)
		}
		if rec.Index%p.Manifest.SaveFreq != 0 {
			return fmt.Errorf("%w: %w: index %d with save frequency %d",
				ErrProofMalformed, ErrMisalignedIndex, rec.Index, p.Manifest.SaveFreq)
		}
		if len(rec.Params) != dim {
			return fmt.Errorf("%w: %w: checkpoint %d has %d parameters, want %d",
				ErrProofMalformed, ErrDimensionMismatch, rec.Index, len(rec.Params), dim)
		}
		if len(rec.Velocity) != 0 && len(rec.Velocity) != dim {
			return fmt.Errorf("%w: %w: checkpoint %d velocity has %d entries, want %d",
				ErrProofMalformed, ErrDimensionMismatch, rec.Index, len(rec.Velocity), dim)
		}
		want := (rec.Index - prev) * p.Manifest.BatchSize
		if len(rec.BatchIndices) != want {
			return fmt.Errorf("%w: %w: checkpoint %d carries %d batch indices, want %d",
				ErrProofMalformed, ErrBatchLengthMismatch, rec.Index, len(rec.BatchIndices), want)
		}
		for _, bi := range rec.BatchIndices {
			if bi < 0 || bi >= p.Manifest.DatasetSize {
				return fmt.Errorf("%w: checkpoint %d batch index %d outside dataset of %d",
					ErrProofMalformed, rec.Index, bi, p.Manifest.DatasetSize)
			}
		}
		prev = rec.Index
	}
	return nil
}

// AllBatchIndices concatenates the batch indices of every checkpoint in order.
func (p *ProofOfLearning) AllBatchIndices() []int {
	var total int
	for _, rec := range p.Records {
		total += len(rec.BatchIndices)
	}
	out := make([]int, 0, total)
	for _, rec := range p.Records {
		out = append(out, rec.BatchIndices...)
	}
	return out
}
