package nn

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

func newTestAttention(t *testing.T) (*Attention, *Store, []*tensor.Tensor, []int) {
	t.Helper()
	s := NewStore()
	rng := rand.New(rand.NewSource(1))
	attn := NewAttention(s, "attn", 4, 4, 3, rng)
	memory := []*tensor.Tensor{
		tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng),
		tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng),
		tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng),
	}
	return attn, s, memory, []int{2, 3}
}

func TestAttention_WeightsRespectLengths(t *testing.T) {
	attn, _, memory, lengths := newTestAttention(t)
	tp := autodiff.Inference()
	rng := rand.New(rand.NewSource(2))

	query := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	w := attn.Weights(tp, query, attn.Keys(tp, memory), lengths)

	require.Equal(t, 2, w.Rows())
	require.Equal(t, 3, w.Cols())
	// sample 0 has length 2: the third position gets exactly zero weight
	assert.Zero(t, w.At(0, 2))
	for b, length := range lengths {
		var sum float64
		for j := 0; j < length; j++ {
			v := float64(w.At(b, j))
			assert.Greater(t, v, 0.0)
			sum += v
		}
		assert.InDelta(t, 1, sum, 1e-5)
	}
}

func TestAttention_ContextShape(t *testing.T) {
	attn, _, memory, lengths := newTestAttention(t)
	tp := autodiff.Inference()
	rng := rand.New(rand.NewSource(3))

	query := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	ctx := attn.Context(tp, query, attn.Keys(tp, memory), memory, lengths)
	assert.Equal(t, 2, ctx.Rows())
	assert.Equal(t, 4, ctx.Cols())
}

// A context over a single valid position must equal that memory vector.
func TestAttention_SinglePositionContext(t *testing.T) {
	attn, _, memory, _ := newTestAttention(t)
	tp := autodiff.Inference()
	rng := rand.New(rand.NewSource(4))

	query := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	ctx := attn.Context(tp, query, attn.Keys(tp, memory), memory, []int{1, 1})
	for b := 0; b < 2; b++ {
		for j := 0; j < 4; j++ {
			assert.InDelta(t, memory[0].At(b, j), ctx.At(b, j), 1e-5)
		}
	}
}

func TestAttention_GradFlowsToParameters(t *testing.T) {
	attn, s, memory, lengths := newTestAttention(t)
	rng := rand.New(rand.NewSource(5))

	tp := autodiff.New()
	query := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	ctx := attn.Context(tp, query, attn.Keys(tp, memory), memory, lengths)
	for i := range ctx.Grad() {
		ctx.Grad()[i] = 1
	}
	tp.Backward()

	for _, p := range s.Parameters() {
		var sum float64
		for _, g := range p.Tensor().Grad() {
			sum += math.Abs(float64(g))
		}
		assert.NotZerof(t, sum, "parameter %s got no gradient", p.Name())
	}
	var querySum float64
	for _, g := range query.Grad() {
		querySum += math.Abs(float64(g))
	}
	assert.NotZero(t, querySum)
}
