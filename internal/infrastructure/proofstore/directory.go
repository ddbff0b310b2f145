package proofstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// On-disk proof container layout: a directory holding manifest.json, the
// initial state as model_step_0, and one file per checkpoint named by its
// step index (model_step_100, model_step_200, ...). Well-formed iff the
// manifest parses and indices are strictly increasing multiples of k.
const (
	manifestFile   = "manifest.json"
	stepFilePrefix = "model_step_"
)

// stepFile is the serviceable JSON shape of one model_step_* file.
type stepFile struct {
	Index        int       `json:"index"`
	Params       []float32 `json:"params"`
	Velocity     []float32 `json:"velocity,omitempty"`
	BatchIndices []int     `json:"batchIndices,omitempty"`
	WallTime     string    `json:"wallTime,omitempty"`
}

// Save writes the proof to dir in the container layout.
func Save(dir string, p *pol.ProofOfLearning) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create proof directory: %w", err)
	}

	manifest, err := json.MarshalIndent(p.Manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), manifest, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	if err := writeStep(dir, stepFile{Index: 0, Params: p.InitialState}); err != nil {
		return err
	}
	for _, rec := range p.Records {
		sf := stepFile{
			Index:        rec.Index,
			Params:       rec.Params,
			Velocity:     rec.Velocity,
			BatchIndices: rec.BatchIndices,
		}
		if !rec.WallTime.IsZero() {
			sf.WallTime = rec.WallTime.UTC().Format("2006-01-02T15:04:05.000Z07:00")
		}
		if err := writeStep(dir, sf); err != nil {
			return err
		}
	}
	return nil
}

func writeStep(dir string, sf stepFile) error {
	data, err := json.Marshal(sf)
	if err != nil {
		return fmt.Errorf("failed to encode checkpoint %d: %w", sf.Index, err)
	}
	name := filepath.Join(dir, stepFilePrefix+strconv.Itoa(sf.Index))
	if err := os.WriteFile(name, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint %d: %w", sf.Index, err)
	}
	return nil
}

// Load reads a proof container from dir and validates every structural
// invariant. All failure modes wrap ErrProofMalformed: a proof that cannot
// be parsed cannot be verified.
func Load(dir string) (*pol.ProofOfLearning, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("%w: proof directory not found: %v", pol.ErrProofMalformed, err)
	}

	manifestData, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %v", pol.ErrProofMalformed, pol.ErrManifestParse, err)
	}
	var manifest pol.Manifest
	if err := json.Unmarshal(manifestData, &manifest); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", pol.ErrProofMalformed, pol.ErrManifestParse, err)
	}
	if err := manifest.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", pol.ErrProofMalformed, err)
	}

	indices, err := stepIndices(dir)
	if err != nil {
		return nil, err
	}
	if len(indices) == 0 || indices[0] != 0 {
		return nil, fmt.Errorf("%w: %w: model_step_0 not found", pol.ErrProofMalformed, pol.ErrMissingCheckpoint)
	}

	initial, err := readStep(dir, 0)
	if err != nil {
		return nil, err
	}

	proof := &pol.ProofOfLearning{
		ID:           manifest.ProofID,
		Manifest:     manifest,
		InitialState: initial.Params,
	}
	for _, idx := range indices[1:] {
		sf, err := readStep(dir, idx)
		if err != nil {
			return nil, err
		}
		proof.Records = append(proof.Records, pol.CheckpointRecord{
			Index:        sf.Index,
			Params:       sf.Params,
			Velocity:     sf.Velocity,
			BatchIndices: sf.BatchIndices,
		})
	}

	if err := proof.Validate(); err != nil {
		return nil, err
	}
	return proof, nil
}

func readStep(dir string, index int) (*stepFile, error) {
	data, err := os.ReadFile(filepath.Join(dir, stepFilePrefix+strconv.Itoa(index)))
	if err != nil {
		return nil, fmt.Errorf("%w: %w: model_step_%d: %v", pol.ErrProofMalformed, pol.ErrMissingCheckpoint, index, err)
	}
	var sf stepFile
	if err := json.Unmarshal(data, &sf); err != nil {
		return nil, fmt.Errorf("%w: model_step_%d parse failed: %v", pol.ErrProofMalformed, index, err)
	}
	if sf.Index != index {
		return nil, fmt.Errorf("%w: model_step_%d declares index %d", pol.ErrProofMalformed, index, sf.Index)
	}
	return &sf, nil
}

// stepIndices lists the checkpoint step indices present in dir, ascending.
func stepIndices(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pol.ErrProofMalformed, err)
	}
	var indices []int
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, stepFilePrefix) {
			continue
		}
		idx, err := strconv.Atoi(strings.TrimPrefix(name, stepFilePrefix))
		if err != nil {
			return nil, fmt.Errorf("%w: unparseable checkpoint name %q", pol.ErrProofMalformed, name)
		}
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	return indices, nil
}
