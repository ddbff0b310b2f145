// Package securepol provides the public API for proof-of-learning
// recording, verification and spoof stress-testing.
//
// Example:
//
//	rec, err := securepol.NewRecorder(securepol.RecorderConfig{
//	    Manifest: securepol.DefaultManifest(),
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	proof, err := rec.Record(ctx)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	v := securepol.NewVerifier(securepol.VerifierConfig{})
//	result, err := v.Verify(ctx, proof)
package securepol

import (
	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/forger"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/recorder"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/application/verifier"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/spoof"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/watermark"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/distance"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/runstore"
	infraWatermark "github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/watermark"
)

// Re-export types for public API
type (
	// Proof data model
	Manifest           = pol.Manifest
	CheckpointRecord   = pol.CheckpointRecord
	ProofOfLearning    = pol.ProofOfLearning
	Metric             = pol.Metric
	VerificationResult = pol.VerificationResult
	MetricReport       = pol.MetricReport
	RunMode            = pol.RunMode
	RunState           = pol.RunState

	// Verification
	VerifierConfig = verifier.Config
	Verifier       = verifier.Verifier
	Sampler        = verifier.Sampler

	// Recording
	RecorderConfig = recorder.Config
	Recorder       = recorder.Recorder

	// Adversary model
	ForgerConfig  = forger.Config
	Forger        = forger.Forger
	SpoofStrategy = spoof.Strategy
	SpoofAttempt  = spoof.Attempt

	// Watermark
	WatermarkConfig    = watermark.Config
	WatermarkDetection = watermark.Detection
	WatermarkVerdict   = watermark.Verdict

	// Persistence
	RunStore = runstore.Store
)

// Metric identifiers.
const (
	MetricL1     = pol.MetricL1
	MetricL2     = pol.MetricL2
	MetricLInf   = pol.MetricLInf
	MetricCosine = pol.MetricCosine
)

// Spoof strategies.
const (
	StrategyInterpolation = spoof.StrategyInterpolation
	StrategyRefinement    = spoof.StrategyRefinement
	StrategyHybrid        = spoof.StrategyHybrid
)

// Sentinel errors.
var (
	ErrProofMalformed = pol.ErrProofMalformed
	ErrInitMismatch   = pol.ErrInitMismatch
	ErrUnknownMetric  = pol.ErrUnknownMetric
)

// DefaultManifest returns the reference training configuration.
func DefaultManifest() Manifest { return pol.DefaultManifest() }

// DefaultWatermarkConfig returns the reference watermark configuration
// for the given secret key.
func DefaultWatermarkConfig(key []byte) WatermarkConfig { return watermark.DefaultConfig(key) }

// NewRecorder creates a proof recorder.
func NewRecorder(config RecorderConfig) (*Recorder, error) { return recorder.New(config) }

// NewVerifier creates a proof verifier.
func NewVerifier(config VerifierConfig) *Verifier { return verifier.New(config) }

// NewForger creates a proof forger for stress-testing.
func NewForger(config ForgerConfig) (*Forger, error) { return forger.New(config) }

// NewSignPatternWatermark returns the reference watermark embedder/detector.
func NewSignPatternWatermark() *infraWatermark.SignPattern { return infraWatermark.NewSignPattern() }

// Distance computes metric m between two parameter snapshots.
func Distance(m Metric, a, b []float32) (float64, error) { return distance.Compute(m, a, b) }

// SaveProof writes a proof to a directory in the standard layout.
func SaveProof(dir string, p *ProofOfLearning) error { return proofstore.Save(dir, p) }

// LoadProof reads a proof from a directory in the standard layout.
func LoadProof(dir string) (*ProofOfLearning, error) { return proofstore.Load(dir) }

// RenderText is the reference textual rendering of a verification result.
func RenderText(r *VerificationResult) string { return verifier.RenderText(r) }

// NewSQLiteRunStore opens a SQLite-backed results store for resumable runs.
func NewSQLiteRunStore(path string) (RunStore, error) { return runstore.NewSQLiteStore(path) }
