// Package distance provides the distance computations between flattened
// parameter snapshots used by proof verification.
package distance

import (
	"fmt"
	"math"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// L1 calculates the sum of absolute elementwise differences.
func L1(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a); i++ {
		sum += math.Abs(float64(a[i]) - float64(b[i]))
	}
	return sum
}

// L2 calculates the Euclidean norm of the difference vector.
func L2(a, b []float32) float64 {
	var sum float64
	for i := 0; i < len(a); i++ {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// LInf calculates the maximum absolute elementwise difference.
func LInf(a, b []float32) float64 {
	var max float64
	for i := 0; i < len(a); i++ {
		diff := math.Abs(float64(a[i]) - float64(b[i]))
		if diff > max {
			max = diff
		}
	}
	return max
}

// Cosine calculates 1 - cosine_similarity(a, b), bounded in [0, 2].
// A zero vector on either side yields the maximal distance 1 against any
// nonzero vector direction (similarity 0).
func Cosine(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := 0; i < len(a); i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	normA = math.Sqrt(normA)
	normB = math.Sqrt(normB)

	if normA == 0 || normB == 0 {
		return 1
	}

	cos := dot / (normA * normB)
	// Clamp against float drift so the result stays in [0, 2].
	if cos > 1 {
		cos = 1
	} else if cos < -1 {
		cos = -1
	}
	return 1 - cos
}

// Compute dispatches to the metric's computation rule. Vectors of unequal
// length are a structural problem, not a content mismatch.
func Compute(m pol.Metric, a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", pol.ErrDimensionMismatch, len(a), len(b))
	}
	if len(a) == 0 {
		return 0, fmt.Errorf("%w: empty parameter vectors", pol.ErrDimensionMismatch)
	}

	switch m {
	case pol.MetricL1:
		return L1(a, b), nil
	case pol.MetricL2:
		return L2(a, b), nil
	case pol.MetricLInf:
		return LInf(a, b), nil
	case pol.MetricCosine:
		return Cosine(a, b), nil
	}
	return 0, fmt.Errorf("%w: %q", pol.ErrUnknownMetric, m)
}
