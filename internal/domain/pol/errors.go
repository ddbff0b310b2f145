// Package pol provides domain types for proof-of-learning records and verification.
package pol

import "errors"

// Domain errors for proof-of-learning structures.
//
// Structural errors all wrap ErrProofMalformed so callers can separate
// "the proof cannot be checked" from "the proof was checked and failed";
// a distance above threshold is never an error, it is a result.
var (
	// ErrProofMalformed indicates the proof violates a structural invariant.
	ErrProofMalformed = errors.New("proof malformed")

	// ErrMissingCheckpoint indicates a checkpoint file or record is absent.
	ErrMissingCheckpoint = errors.New("checkpoint missing")

	// ErrNonMonotonicIndex indicates checkpoint indices do not strictly increase.
	ErrNonMonotonicIndex = errors.New("checkpoint index not monotonically increasing")

	// ErrMisalignedIndex indicates a checkpoint index is not a multiple of the save frequency.
	ErrMisalignedIndex = errors.New("checkpoint index not aligned to save frequency")

	// ErrBatchLengthMismatch indicates the recorded batch indices do not cover the interval.
	ErrBatchLengthMismatch = errors.New("batch index length does not match interval span")

	// ErrDimensionMismatch indicates parameter snapshots of different sizes.
	ErrDimensionMismatch = errors.New("parameter dimension mismatch")

	// ErrManifestParse indicates the hyperparameter manifest could not be parsed.
	ErrManifestParse = errors.New("manifest parse failed")

	// ErrManifestInvalid indicates the manifest carries out-of-range values.
	ErrManifestInvalid = errors.New("manifest invalid")

	// ErrInitMismatch indicates the initial state is not reproducible from the disclosed seed.
	ErrInitMismatch = errors.New("initial state does not match disclosed seed")

	// ErrDatasetHashMismatch indicates the recorded dataset commitment does not verify.
	ErrDatasetHashMismatch = errors.New("dataset commitment hash mismatch")

	// ErrStoreSealed indicates an append to a sealed checkpoint store.
	ErrStoreSealed = errors.New("checkpoint store is sealed")

	// ErrUnknownMetric indicates an unrecognized distance metric identifier.
	ErrUnknownMetric = errors.New("unknown distance metric")

	// ErrRecomputeDiverged indicates recomputation produced non-finite values.
	// Verification of the affected interval is inconclusive, never valid.
	ErrRecomputeDiverged = errors.New("recomputation diverged")
)
