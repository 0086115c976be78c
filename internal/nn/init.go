package nn

import (
	"math"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Values are drawn from U(-sqrt(6/(fanIn+fanOut)), sqrt(6/(fanIn+fanOut))),
// which keeps activation variance roughly constant across layers.
func Xavier(fanIn, fanOut int, shape tensor.Shape, rng *rand.Rand) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	return tensor.Uniform(shape, -bound, bound, rng)
}

// UniformInit initializes weights from U(-bound, bound).
// The projection layers use bound 0.1.
func UniformInit(shape tensor.Shape, bound float64, rng *rand.Rand) *tensor.Tensor {
	return tensor.Uniform(shape, -bound, bound, rng)
}
