package tensor

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_ZeroFilled(t *testing.T) {
	m := New(Shape{2, 3})
	assert.Equal(t, 6, m.NumElements())
	for _, v := range m.Data() {
		assert.Zero(t, v)
	}
	for _, g := range m.Grad() {
		assert.Zero(t, g)
	}
}

func TestNew_PanicsOnInvalidShape(t *testing.T) {
	assert.Panics(t, func() { New(Shape{2, 0}) })
	assert.Panics(t, func() { New(Shape{-1}) })
}

func TestNew_Scalar(t *testing.T) {
	s := New(Shape{})
	assert.Equal(t, 1, s.NumElements())
	s.Data()[0] = 3.5
	assert.InDelta(t, 3.5, s.Item(), 1e-6)
}

func TestFromSlice(t *testing.T) {
	m, err := FromSlice([]float32{1, 2, 3, 4}, Shape{2, 2})
	require.NoError(t, err)
	assert.InDelta(t, 3, m.At(1, 0), 1e-6)

	_, err = FromSlice([]float32{1, 2, 3}, Shape{2, 2})
	assert.Error(t, err)
}

func TestAtSet(t *testing.T) {
	m := New(Shape{2, 3})
	m.Set(7, 1, 2)
	assert.InDelta(t, 7, m.At(1, 2), 1e-6)
	assert.Panics(t, func() { m.At(2, 0) })
	assert.Panics(t, func() { m.At(0) })
}

func TestRow(t *testing.T) {
	m, err := FromSlice([]float32{1, 2, 3, 4, 5, 6}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []float32{4, 5, 6}, m.Row(1))
}

func TestClone_Independent(t *testing.T) {
	m := Ones(Shape{2, 2})
	c := m.Clone()
	c.Set(9, 0, 0)
	assert.InDelta(t, 1, m.At(0, 0), 1e-6)
	assert.InDelta(t, 9, c.At(0, 0), 1e-6)
}

func TestZeroGrad(t *testing.T) {
	m := New(Shape{2, 2})
	m.Grad()[0] = 5
	m.ZeroGrad()
	assert.Zero(t, m.Grad()[0])
}

func TestUniform_WithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := Uniform(Shape{10, 10}, -0.1, 0.1, rng)
	for _, v := range m.Data() {
		assert.GreaterOrEqual(t, v, float32(-0.1))
		assert.Less(t, v, float32(0.1))
	}
}

func TestRandn_RoughMoments(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	m := Randn(Shape{100, 100}, 0, 1, rng)
	var sum float64
	for _, v := range m.Data() {
		sum += float64(v)
	}
	mean := sum / float64(m.NumElements())
	assert.InDelta(t, 0, mean, 0.05)
}

func TestArgmaxRows(t *testing.T) {
	m, err := FromSlice([]float32{0.1, 0.9, 0.2, 3, -1, 0}, Shape{2, 3})
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0}, m.ArgmaxRows())
}

func TestSoftmaxMaxRows(t *testing.T) {
	m, err := FromSlice([]float32{0, 0, 10, 0}, Shape{2, 2})
	require.NoError(t, err)
	scores := m.SoftmaxMaxRows()
	require.Len(t, scores, 2)
	// uniform logits give 0.5 confidence
	assert.InDelta(t, 0.5, scores[0], 1e-5)
	// a dominant logit approaches 1
	assert.InDelta(t, 1/(1+math.Exp(-10)), float64(scores[1]), 1e-4)
	for _, s := range scores {
		assert.True(t, s > 0 && s <= 1)
	}
}

func TestShape_Strides(t *testing.T) {
	assert.Equal(t, []int{12, 4, 1}, Shape{2, 3, 4}.Strides())
	assert.Equal(t, []int{}, Shape{}.Strides())
}

func TestShape_Equal(t *testing.T) {
	assert.True(t, Shape{2, 3}.Equal(Shape{2, 3}))
	assert.False(t, Shape{2, 3}.Equal(Shape{3, 2}))
	assert.False(t, Shape{2}.Equal(Shape{2, 1}))
}
