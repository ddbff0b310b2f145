// Package watermark provides domain types for watermark corroboration:
// the detector capability and its thresholded verdicts.
package watermark

import "errors"

// Verdict is the thresholded outcome of watermark detection.
type Verdict string

const (
	VerdictPresent   Verdict = "present"
	VerdictAbsent    Verdict = "absent"
	VerdictAmbiguous Verdict = "ambiguous"
)

// Detection errors.
var (
	ErrEmptyKey       = errors.New("watermark key is empty")
	ErrTooFewParams   = errors.New("parameter vector too small for watermark")
	ErrBadThresholds  = errors.New("watermark thresholds out of order")
	ErrBadCoordinates = errors.New("watermark coordinate count must be positive")
)

// Config controls embedding and detection of the keyed sign-pattern signal.
type Config struct {
	// Key is the secret the signal derives from. Never disclosed to provers.
	Key []byte `json:"-"`

	// Coordinates is how many parameter coordinates carry the signal.
	Coordinates int `json:"coordinates"`

	// Epsilon is the magnitude the embedder forces onto each coordinate.
	Epsilon float64 `json:"epsilon"`

	// PresentThreshold and AbsentThreshold split confidence into
	// {present, ambiguous, absent}. Ambiguous is treated as absent.
	PresentThreshold float64 `json:"presentThreshold"`
	AbsentThreshold  float64 `json:"absentThreshold"`
}

// DefaultConfig returns the reference watermark configuration.
func DefaultConfig(key []byte) Config {
	return Config{
		Key:              key,
		Coordinates:      64,
		Epsilon:          0.05,
		PresentThreshold: 0.85,
		AbsentThreshold:  0.55,
	}
}

// Validate checks the configuration is usable against a parameter vector
// of the given dimension.
func (c Config) Validate(paramDim int) error {
	switch {
	case len(c.Key) == 0:
		return ErrEmptyKey
	case c.Coordinates <= 0:
		return ErrBadCoordinates
	case c.Coordinates > paramDim:
		return ErrTooFewParams
	case c.AbsentThreshold >= c.PresentThreshold:
		return ErrBadThresholds
	}
	return nil
}

// Detection is one detector evaluation: a confidence in [0,1] and its
// thresholded verdict.
type Detection struct {
	Confidence float64 `json:"confidence"`
	Verdict    Verdict `json:"verdict"`
}

// Corroborates reports whether the detection supports proof validity.
// Ambiguous counts as absent: the combined verdict errs conservative.
func (d Detection) Corroborates() bool {
	return d.Verdict == VerdictPresent
}

// Classify maps a confidence to a verdict under the config's thresholds.
func (c Config) Classify(confidence float64) Verdict {
	switch {
	case confidence >= c.PresentThreshold:
		return VerdictPresent
	case confidence <= c.AbsentThreshold:
		return VerdictAbsent
	default:
		return VerdictAmbiguous
	}
}

// Detector evaluates whether the keyed signal is detectable in a parameter
// snapshot. Implementations are pluggable; confidence is in [0,1].
type Detector interface {
	Detect(params []float32, cfg Config) (Detection, error)
}

// Embedder writes the keyed signal into a parameter snapshot, returning a
// new vector. Embedding is part of the recorded protocol: the recorder
// applies it after the final training step, and the key-holding verifier
// re-applies it during recomputation of that step.
type Embedder interface {
	Embed(params []float32, cfg Config) ([]float32, error)
}
