package nn

import (
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Attention implements additive (Bahdanau-style) attention over a
// time-major memory sequence.
//
// For a query q and memory vectors m_t:
//
//	score_t = v^T tanh(q @ Wq + m_t @ Wm)
//	alpha   = softmax over scores, masked by each sample's true length
//	context = Σ_t alpha_t · m_t
//
// Keys (m_t @ Wm) depend only on the memory and are computed once per
// batch; the decoder reuses them at every decoding step.
type Attention struct {
	units  int
	memDim int
	wq     *Parameter // [queryDim, units]
	wm     *Parameter // [memDim, units]
	v      *Parameter // [units, 1]
}

// NewAttention creates an attention module and registers its parameters
// under the given name prefix.
func NewAttention(store *Store, name string, queryDim, memDim, units int, rng *rand.Rand) *Attention {
	return &Attention{
		units:  units,
		memDim: memDim,
		wq:     store.Register(name+".wq", Xavier(queryDim, units, tensor.Shape{queryDim, units}, rng)),
		wm:     store.Register(name+".wm", Xavier(memDim, units, tensor.Shape{memDim, units}, rng)),
		v:      store.Register(name+".v", Xavier(units, 1, tensor.Shape{units, 1}, rng)),
	}
}

// Keys projects each memory timestep through Wm. The result is reused
// across decoding steps.
func (a *Attention) Keys(t *autodiff.Tape, memory []*tensor.Tensor) []*tensor.Tensor {
	keys := make([]*tensor.Tensor, len(memory))
	for i, m := range memory {
		keys[i] = t.MatMul(m, a.wm.Tensor())
	}
	return keys
}

// Weights computes the masked attention distribution [batch, T] of a query
// [batch, queryDim] over the memory whose keys were precomputed.
func (a *Attention) Weights(t *autodiff.Tape, query *tensor.Tensor, keys []*tensor.Tensor, lengths []int) *tensor.Tensor {
	proj := t.MatMul(query, a.wq.Tensor())
	scores := make([]*tensor.Tensor, len(keys))
	for i, key := range keys {
		scores[i] = t.MatMul(t.Tanh(t.Add(proj, key)), a.v.Tensor())
	}
	return t.MaskedSoftmax(t.StackCols(scores), lengths)
}

// Context computes the attention-weighted sum of the memory for a query,
// producing [batch, memDim]. Positions at or beyond a sample's true length
// receive zero weight.
func (a *Attention) Context(t *autodiff.Tape, query *tensor.Tensor, keys, memory []*tensor.Tensor, lengths []int) *tensor.Tensor {
	return t.Blend(a.Weights(t, query, keys, lengths), memory)
}

// Units returns the attention projection width.
func (a *Attention) Units() int { return a.units }
