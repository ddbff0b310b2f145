// Package spoof provides domain types for the adversary model: forged
// proofs of learning and the strategies that produce them.
package spoof

import (
	"errors"
	"time"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// Strategy identifies a forgery strategy variant.
type Strategy string

const (
	// StrategyInterpolation fabricates intermediate checkpoints by linear
	// interpolation between a legitimate initial and final state, without
	// performing the intervening gradient steps.
	StrategyInterpolation Strategy = "interpolation"

	// StrategyRefinement starts from a stolen final model and runs T
	// lightweight fine-tuning steps to approximate each intermediate
	// checkpoint at lower cost than retraining.
	StrategyRefinement Strategy = "refinement"

	// StrategyHybrid combines interpolation and refinement under a
	// resource-cut fraction; at cut 1.0 it degenerates to pure refinement.
	StrategyHybrid Strategy = "hybrid"
)

// Strategy errors.
var (
	ErrUnknownStrategy = errors.New("unknown spoof strategy")
	ErrBadCutFraction  = errors.New("cut fraction must be in [0, 1]")
	ErrBadSpoofSteps   = errors.New("spoof steps must be positive")
)

// ParseStrategy resolves a strategy identifier.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case StrategyInterpolation, StrategyRefinement, StrategyHybrid:
		return Strategy(s), nil
	}
	return "", ErrUnknownStrategy
}

// Attempt is one forged proof, ready for the same verification pipeline as
// a genuine proof. It carries no privileged metadata the verifier could use
// to distinguish it: the embedded ProofOfLearning is all the verifier sees.
type Attempt struct {
	ID          string               `json:"id"`
	Strategy    Strategy             `json:"strategy"`
	SpoofSteps  int                  `json:"spoofSteps"`  // T
	CutFraction float64              `json:"cutFraction"` // adversary compute limit
	Proof       *pol.ProofOfLearning `json:"proof"`
	Elapsed     time.Duration        `json:"elapsed"`
}
