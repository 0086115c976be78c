package nn

import (
	"fmt"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W + b.
//
//   - x is the input with shape [batch, inFeatures]
//   - W is the weight matrix with shape [inFeatures, outFeatures]
//   - b is the bias vector with shape [outFeatures]
//
// Weights use Xavier initialization, biases start at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter
}

// NewLinear creates a Linear layer and registers its parameters in the store
// under name.weight and name.bias.
func NewLinear(store *Store, name string, inFeatures, outFeatures int, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      store.Register(name+".weight", Xavier(inFeatures, outFeatures, tensor.Shape{inFeatures, outFeatures}, rng)),
		bias:        store.Register(name+".bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// NewLinearUniform creates a Linear layer whose weights are drawn from
// U(-bound, bound) instead of the Xavier default. The intent projection
// uses bound 0.1.
func NewLinearUniform(store *Store, name string, inFeatures, outFeatures int, bound float64, rng *rand.Rand) *Linear {
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      store.Register(name+".weight", UniformInit(tensor.Shape{inFeatures, outFeatures}, bound, rng)),
		bias:        store.Register(name+".bias", tensor.Zeros(tensor.Shape{outFeatures})),
	}
}

// Forward computes y = x @ W + b for input [batch, inFeatures].
func (l *Linear) Forward(t *autodiff.Tape, x *tensor.Tensor) *tensor.Tensor {
	if x.Cols() != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, x.Cols()))
	}
	return t.AddBias(t.MatMul(x, l.weight.Tensor()), l.bias.Tensor())
}

// InFeatures returns the input width.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the output width.
func (l *Linear) OutFeatures() int { return l.outFeatures }
