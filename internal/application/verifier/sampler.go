// Package verifier orchestrates proof-of-learning verification: interval
// sampling, recomputation, distance aggregation and watermark corroboration.
package verifier

import (
	"math/rand"
	"sort"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/infrastructure/proofstore"
)

// epochSeedMix decorrelates per-epoch schedules while keeping each one fixed.
const epochSeedMix = 0x5DEECE66D

// Sampler chooses which intervals are checked under a query budget. The
// schedule is a seeded pseudo-random permutation of each epoch's interval
// positions, fixed before any distance is computed, so the prover cannot
// infer which intervals are safe to fake. Taking the first q entries of one
// fixed permutation makes refinement monotone: q1 <= q2 implies the q1
// selection is a subset of the q2 selection.
type Sampler struct {
	// Budget is q, the intervals checked per epoch. <= 0 means all.
	Budget int

	// Seed keys the schedule. It is disclosed in the verification config;
	// secrecy is not required, only independence from observed distances.
	Seed int64
}

// Select returns the global indices of the intervals to check, ascending.
func (s Sampler) Select(intervals []proofstore.Interval) []int {
	if s.Budget <= 0 {
		all := make([]int, len(intervals))
		for i := range intervals {
			all[i] = i
		}
		return all
	}

	byEpoch := make(map[int][]int)
	var epochs []int
	for _, iv := range intervals {
		if _, seen := byEpoch[iv.Epoch]; !seen {
			epochs = append(epochs, iv.Epoch)
		}
		byEpoch[iv.Epoch] = append(byEpoch[iv.Epoch], iv.Index)
	}
	sort.Ints(epochs)

	var selected []int
	for _, epoch := range epochs {
		group := byEpoch[epoch]
		rng := rand.New(rand.NewSource(s.Seed + int64(epoch)*epochSeedMix))
		perm := rng.Perm(len(group))

		q := s.Budget
		if q > len(group) {
			q = len(group)
		}
		for _, p := range perm[:q] {
			selected = append(selected, group[p])
		}
	}
	sort.Ints(selected)
	return selected
}
