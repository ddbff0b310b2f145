package pol

import (
	"fmt"
	"time"
)

// OptimizerKind identifies the optimizer whose update rule the recorder used.
type OptimizerKind string

const (
	// OptimizerSGD is stochastic gradient descent with momentum and weight decay.
	OptimizerSGD OptimizerKind = "sgd"
)

// Manifest is the immutable record of everything needed to replay training
// deterministically: the learning-rate schedule, batch geometry, optimizer
// settings and the seeds the initial state and dataset derive from.
// Created once at training start; never mutated.
type Manifest struct {
	ProofID string `json:"proofId"`

	// Optimizer settings.
	Optimizer    OptimizerKind `json:"optimizer"`
	LearningRate float64       `json:"learningRate"`
	Momentum     float64       `json:"momentum"`
	WeightDecay  float64       `json:"weightDecay"`

	// Step learning-rate schedule: lr is multiplied by LRDecayRate every
	// LRDecaySteps steps. LRDecaySteps <= 0 disables decay.
	LRDecayRate  float64 `json:"lrDecayRate"`
	LRDecaySteps int     `json:"lrDecaySteps"`

	// Training geometry.
	BatchSize int `json:"batchSize"`
	Epochs    int `json:"epochs"`
	SaveFreq  int `json:"saveFreq"` // k: steps between checkpoints

	// Seeds. Seed drives parameter initialization and the batch order;
	// DatasetSeed drives the synthetic dataset. Both are disclosed so the
	// verifier can recompute from a known starting point.
	Seed        int64 `json:"seed"`
	DatasetSeed int64 `json:"datasetSeed"`

	// Model and dataset geometry.
	Features    int `json:"features"`
	Classes     int `json:"classes"`
	DatasetSize int `json:"datasetSize"`

	// DatasetHash commits to the training examples addressed by the
	// recorded batch indices, in recorded order.
	DatasetHash string `json:"datasetHash"`

	// Watermarked marks that the final checkpoint carries the keyed
	// watermark, applied after its last training step. Verifying that
	// checkpoint's interval requires the key.
	Watermarked bool `json:"watermarked,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// DefaultManifest returns a manifest with the reference optimizer settings.
func DefaultManifest() Manifest {
	return Manifest{
		Optimizer:    OptimizerSGD,
		LearningRate: 0.01,
		Momentum:     0.9,
		WeightDecay:  1e-4,
		LRDecayRate:  1.0,
		LRDecaySteps: 0,
		BatchSize:    128,
		Epochs:       1,
		SaveFreq:     100,
		Features:     32,
		Classes:      10,
		DatasetSize:  50000,
	}
}

// ParamDim returns the flattened parameter vector length for the declared
// model geometry (a linear softmax classifier: weights plus biases).
func (m Manifest) ParamDim() int {
	return m.Features*m.Classes + m.Classes
}

// LRAt returns the learning rate in effect at the given global step.
func (m Manifest) LRAt(step int) float64 {
	lr := m.LearningRate
	if m.LRDecaySteps > 0 && m.LRDecayRate > 0 {
		for d := m.LRDecaySteps; d <= step; d += m.LRDecaySteps {
			lr *= m.LRDecayRate
		}
	}
	return lr
}

// Validate checks the manifest carries usable values.
func (m Manifest) Validate() error {
	switch {
	case m.Optimizer != OptimizerSGD:
		return fmt.Errorf("%w: unsupported optimizer %q", ErrManifestInvalid, m.Optimizer)
	case m.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive", ErrManifestInvalid)
	case m.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrManifestInvalid)
	case m.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive", ErrManifestInvalid)
	case m.SaveFreq <= 0:
		return fmt.Errorf("%w: save frequency must be positive", ErrManifestInvalid)
	case m.Features <= 0 || m.Classes <= 1:
		return fmt.Errorf("%w: model geometry out of range", ErrManifestInvalid)
	case m.DatasetSize < m.BatchSize:
		return fmt.Errorf("%w: dataset smaller than one batch", ErrManifestInvalid)
	}
	return nil
}
