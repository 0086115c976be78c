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

func TestStore_RegisterAndGet(t *testing.T) {
	s := NewStore()
	p := s.Register("w", tensor.Ones(tensor.Shape{2, 2}))
	assert.Equal(t, "w", p.Name())

	got, ok := s.Get("w")
	require.True(t, ok)
	assert.Same(t, p, got)

	_, ok = s.Get("missing")
	assert.False(t, ok)
}

func TestStore_DuplicateNamePanics(t *testing.T) {
	s := NewStore()
	s.Register("w", tensor.Ones(tensor.Shape{1}))
	assert.Panics(t, func() { s.Register("w", tensor.Ones(tensor.Shape{1})) })
}

func TestStore_StateDictRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	src := NewStore()
	src.Register("a", tensor.Uniform(tensor.Shape{2, 3}, -1, 1, rng))
	src.Register("b", tensor.Uniform(tensor.Shape{4}, -1, 1, rng))

	dst := NewStore()
	dst.Register("a", tensor.New(tensor.Shape{2, 3}))
	dst.Register("b", tensor.New(tensor.Shape{4}))
	require.NoError(t, dst.LoadStateDict(src.StateDict()))

	for _, name := range []string{"a", "b"} {
		want, _ := src.Get(name)
		got, _ := dst.Get(name)
		assert.Equal(t, want.Tensor().Data(), got.Tensor().Data())
	}
}

func TestStore_LoadStateDictRejectsMismatch(t *testing.T) {
	s := NewStore()
	s.Register("a", tensor.New(tensor.Shape{2}))

	assert.Error(t, s.LoadStateDict(map[string][]float32{"a": {1, 2, 3}}))
	assert.Error(t, s.LoadStateDict(map[string][]float32{"other": {1, 2}}))
}

func TestStore_ZeroGrad(t *testing.T) {
	s := NewStore()
	p := s.Register("w", tensor.Ones(tensor.Shape{2}))
	p.Tensor().Grad()[0] = 3
	s.ZeroGrad()
	assert.Zero(t, p.Tensor().Grad()[0])
}

func TestXavier_Bounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	w := Xavier(100, 50, tensor.Shape{100, 50}, rng)
	bound := float32(math.Sqrt(6.0 / 150.0))
	for _, v := range w.Data() {
		assert.LessOrEqual(t, v, bound)
		assert.GreaterOrEqual(t, v, -bound)
	}
}

func TestLinear_Forward(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(1))
	l := NewLinear(s, "fc", 2, 2, rng)

	w, _ := s.Get("fc.weight")
	copy(w.Tensor().Data(), []float32{1, 2, 3, 4})
	b, _ := s.Get("fc.bias")
	copy(b.Tensor().Data(), []float32{10, 20})

	x, err := tensor.FromSlice([]float32{1, 1}, tensor.Shape{1, 2})
	require.NoError(t, err)
	out := l.Forward(autodiff.Inference(), x)
	assert.InDelta(t, 14, out.At(0, 0), 1e-5) // 1+3+10
	assert.InDelta(t, 26, out.At(0, 1), 1e-5) // 2+4+20
}

func TestLinear_GradFlowsToParameters(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(2))
	l := NewLinear(s, "fc", 3, 2, rng)

	tp := autodiff.New()
	x := tensor.Uniform(tensor.Shape{2, 3}, -1, 1, rng)
	out := l.Forward(tp, x)
	for i := range out.Grad() {
		out.Grad()[i] = 1
	}
	tp.Backward()

	for _, p := range s.Parameters() {
		var sum float64
		for _, g := range p.Tensor().Grad() {
			sum += math.Abs(float64(g))
		}
		assert.NotZerof(t, sum, "parameter %s got no gradient", p.Name())
	}
}

func TestEmbedding_ForwardGathersRows(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(3))
	e := NewEmbedding(s, "emb", 5, 4, rng)

	out := e.Forward(autodiff.Inference(), []int{3, 0})
	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, e.Weight().Tensor().Row(3), out.Row(0))
	assert.Equal(t, e.Weight().Tensor().Row(0), out.Row(1))
}
