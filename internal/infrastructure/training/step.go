package training

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/ozgurural/SecurePoL-Watermarking/internal/domain/pol"
)

// State is one point on the training trajectory: the flattened parameters,
// the SGD momentum buffer and the global step count. Step and Reconstruct
// treat State as immutable and return fresh copies, so the recorder and the
// verifier share the exact same transition function by construction.
type State struct {
	Step     int
	Params   []float32
	Velocity []float32
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := State{Step: s.Step}
	out.Params = make([]float32, len(s.Params))
	copy(out.Params, s.Params)
	out.Velocity = make([]float32, len(s.Velocity))
	copy(out.Velocity, s.Velocity)
	return out
}

// InitParams derives the initial parameter vector from the manifest's
// disclosed seed: He-style uniform weights, zero biases. Any party holding
// the manifest reproduces the same vector bit for bit.
func InitParams(m pol.Manifest) []float32 {
	rng := rand.New(rand.NewSource(m.Seed))
	params := make([]float32, m.ParamDim())
	limit := math.Sqrt(6.0 / float64(m.Features+m.Classes))
	for i := 0; i < m.Features*m.Classes; i++ {
		params[i] = float32((rng.Float64()*2 - 1) * limit)
	}
	// Biases stay zero.
	return params
}

// InitState returns the full initial training state for the manifest.
func InitState(m pol.Manifest) State {
	return State{
		Step:     0,
		Params:   InitParams(m),
		Velocity: make([]float32, m.ParamDim()),
	}
}

// Step applies one SGD update for a single batch and returns the new state.
// It is pure: identical (state, batch, manifest, dataset) inputs yield
// bit-identical output. The update rule matches the recorded optimizer:
// grad += weightDecay * w; v = momentum * v + grad; w -= lr * v.
func Step(s State, batch []int, m pol.Manifest, ds *Dataset) (State, error) {
	if len(batch) == 0 {
		return State{}, fmt.Errorf("%w: empty batch", pol.ErrBatchLengthMismatch)
	}
	dim := m.ParamDim()
	if len(s.Params) != dim || len(s.Velocity) != dim {
		return State{}, fmt.Errorf("%w: state has %d/%d entries, want %d",
			pol.ErrDimensionMismatch, len(s.Params), len(s.Velocity), dim)
	}

	grad := gradient(s.Params, batch, m, ds)

	lr := m.LRAt(s.Step)
	next := State{
		Step:     s.Step + 1,
		Params:   make([]float32, dim),
		Velocity: make([]float32, dim),
	}
	for i := 0; i < dim; i++ {
		g := grad[i] + m.WeightDecay*float64(s.Params[i])
		v := m.Momentum*float64(s.Velocity[i]) + g
		w := float64(s.Params[i]) - lr*v
		if math.IsNaN(w) || math.IsInf(w, 0) {
			return State{}, fmt.Errorf("%w: non-finite parameter at step %d", pol.ErrRecomputeDiverged, s.Step+1)
		}
		next.Velocity[i] = float32(v)
		next.Params[i] = float32(w)
	}
	return next, nil
}

// Reconstruct replays the claimed interval: starting from the given state it
// consumes the recorded batch indices in batches of manifest.BatchSize and
// returns the reconstructed end state.
func Reconstruct(start State, batchIndices []int, m pol.Manifest, ds *Dataset) (State, error) {
	if len(batchIndices)%m.BatchSize != 0 {
		return State{}, fmt.Errorf("%w: %d indices with batch size %d",
			pol.ErrBatchLengthMismatch, len(batchIndices), m.BatchSize)
	}

	state := start.Clone()
	for off := 0; off < len(batchIndices); off += m.BatchSize {
		next, err := Step(state, batchIndices[off:off+m.BatchSize], m, ds)
		if err != nil {
			return State{}, err
		}
		state = next
	}
	return state, nil
}

// gradient computes the batch-averaged cross-entropy gradient of the linear
// softmax classifier. Accumulation is float64 to keep the result stable.
func gradient(params []float32, batch []int, m pol.Manifest, ds *Dataset) []float64 {
	grad := make([]float64, m.ParamDim())
	logits := make([]float64, m.Classes)
	probs := make([]float64, m.Classes)
	invBatch := 1.0 / float64(len(batch))

	for _, idx := range batch {
		x, label := ds.Example(idx)

		for c := 0; c < m.Classes; c++ {
			sum := float64(params[m.Features*m.Classes+c]) // bias
			row := c * m.Features
			for f := 0; f < m.Features; f++ {
				sum += float64(params[row+f]) * float64(x[f])
			}
			logits[c] = sum
		}

		softmax(logits, probs)

		for c := 0; c < m.Classes; c++ {
			d := probs[c]
			if c == label {
				d -= 1
			}
			d *= invBatch
			row := c * m.Features
			for f := 0; f < m.Features; f++ {
				grad[row+f] += d * float64(x[f])
			}
			grad[m.Features*m.Classes+c] += d
		}
	}
	return grad
}

// softmax fills dst with the stable softmax of logits.
func softmax(logits, dst []float64) {
	max := logits[0]
	for _, v := range logits[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	for i, v := range logits {
		e := math.Exp(v - max)
		dst[i] = e
		sum += e
	}
	for i := range dst {
		dst[i] /= sum
	}
}
