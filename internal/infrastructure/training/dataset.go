// Package training provides the deterministic training machinery shared by
// the proof recorder and the verifier's recomputer: the synthetic dataset,
// seeded parameter initialization and the pure SGD state transition.
package training

import (
	"encoding/binary"
	"encoding/hex"
	"math"
	"math/rand"

	"golang.org/x/crypto/sha3"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// exampleSeedMix decorrelates per-example generators from the dataset seed.
const exampleSeedMix uint64 = 0x9E3779B97F4A7C15

// Dataset is a deterministic synthetic classification dataset: example i is
// fully determined by (seed, i), so any party holding the manifest can
// reproduce exactly the examples a batch index addresses.
type Dataset struct {
	seed     int64
	size     int
	features int
	classes  int

	// hidden is the label-generating linear map, derived from the seed.
	hidden [][]float64
}

// NewDataset builds the dataset declared by the manifest.
func NewDataset(m pol.Manifest) *Dataset {
	rng := rand.New(rand.NewSource(m.DatasetSeed))
	hidden := make([][]float64, m.Classes)
	for c := range hidden {
		row := make([]float64, m.Features)
		for f := range row {
			row[f] = rng.NormFloat64()
		}
		hidden[c] = row
	}
	return &Dataset{
		seed:     m.DatasetSeed,
		size:     m.DatasetSize,
		features: m.Features,
		classes:  m.Classes,
		hidden:   hidden,
	}
}

// Size returns the number of examples.
func (d *Dataset) Size() int { return d.size }

// Example returns the features and label of example i. The generator is
// reseeded per example so access order is irrelevant.
func (d *Dataset) Example(i int) ([]float32, int) {
	rng := rand.New(rand.NewSource(d.seed ^ int64((uint64(i)+1)*exampleSeedMix)))

	x := make([]float32, d.features)
	for f := range x {
		x[f] = float32(rng.Float64()*2 - 1)
	}

	label := 0
	best := math.Inf(-1)
	for c := 0; c < d.classes; c++ {
		var score float64
		for f := 0; f < d.features; f++ {
			score += d.hidden[c][f] * float64(x[f])
		}
		if score > best {
			best = score
			label = c
		}
	}
	return x, label
}

// Hash computes the dataset commitment over the examples addressed by the
// given indices, in order. The recorder stores it in the manifest; the
// verifier recomputes it before any distance work.
func (d *Dataset) Hash(indices []int) string {
	h := sha3.New256()
	var buf [4]byte
	for _, i := range indices {
		x, label := d.Example(i)
		for _, v := range x {
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			h.Write(buf[:])
		}
		binary.LittleEndian.PutUint32(buf[:], uint32(label))
		h.Write(buf[:])
	}
	return hex.EncodeToString(h.Sum(nil))
}
