package training

import (
	"fmt"
	"math"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// CheckInitDistribution is a diagnostic for initial states that cannot be
// matched bit for bit (unknown seed): it checks the snapshot is plausible
// under the declared initialization scheme. Weights must lie inside the
// uniform bound, biases must be zero, and the weight mean must sit near
// zero for the sample size.
func CheckInitDistribution(params []float32, m pol.Manifest) error {
	dim := m.ParamDim()
	if len(params) != dim {
		return fmt.Errorf("%w: snapshot has %d parameters, want %d",
			pol.ErrDimensionMismatch, len(params), dim)
	}

	weights := m.Features * m.Classes
	limit := math.Sqrt(6.0 / float64(m.Features+m.Classes))

	var sum float64
	for i := 0; i < weights; i++ {
		v := float64(params[i])
		if math.Abs(v) > limit {
			return fmt.Errorf("%w: weight %d = %g outside uniform bound %g",
				pol.ErrInitMismatch, i, v, limit)
		}
		sum += v
	}
	for i := weights; i < dim; i++ {
		if params[i] != 0 {
			return fmt.Errorf("%w: bias %d = %g, want 0", pol.ErrInitMismatch, i-weights, params[i])
		}
	}

	// Mean of n uniform(-limit, limit) samples has standard deviation
	// limit/sqrt(3n); five sigmas bounds the false-alarm rate.
	mean := sum / float64(weights)
	tol := 5 * limit / math.Sqrt(3*float64(weights))
	if math.Abs(mean) > tol {
		return fmt.Errorf("%w: weight mean %g exceeds tolerance %g", pol.ErrInitMismatch, mean, tol)
	}
	return nil
}
