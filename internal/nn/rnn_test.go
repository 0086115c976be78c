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

func TestLSTMCell_StepShapes(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(1))
	cell := NewLSTMCell(s, "lstm", 4, 3, rng)

	assert.Equal(t, 3, cell.HiddenSize())

	state := cell.ZeroState(2)
	require.NotNil(t, state.C)
	assert.Equal(t, 2, state.H.Rows())
	assert.Equal(t, 3, state.H.Cols())

	x := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	next := cell.Step(autodiff.Inference(), x, state)
	assert.Equal(t, 2, next.H.Rows())
	assert.Equal(t, 3, next.H.Cols())
	require.NotNil(t, next.C)
	assert.Equal(t, 3, next.C.Cols())
}

func TestGRUCell_StepShapes(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(2))
	cell := NewGRUCell(s, "gru", 4, 3, rng)

	state := cell.ZeroState(2)
	assert.Nil(t, state.C)

	x := tensor.Uniform(tensor.Shape{2, 4}, -1, 1, rng)
	next := cell.Step(autodiff.Inference(), x, state)
	assert.Equal(t, 2, next.H.Rows())
	assert.Equal(t, 3, next.H.Cols())
	assert.Nil(t, next.C)
}

func TestLSTMCell_ForgetBiasStartsAtOne(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(3))
	NewLSTMCell(s, "lstm", 2, 2, rng)

	bf, ok := s.Get("lstm.bf")
	require.True(t, ok)
	for _, v := range bf.Tensor().Data() {
		assert.InDelta(t, 1, v, 1e-6)
	}
}

func TestCells_OutputsAreBounded(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	for _, tc := range []struct {
		name string
		cell Cell
	}{
		{"lstm", NewLSTMCell(NewStore(), "c", 3, 4, rng)},
		{"gru", NewGRUCell(NewStore(), "c", 3, 4, rng)},
	} {
		t.Run(tc.name, func(t *testing.T) {
			state := tc.cell.ZeroState(2)
			x := tensor.Uniform(tensor.Shape{2, 3}, -5, 5, rng)
			for i := 0; i < 10; i++ {
				state = tc.cell.Step(autodiff.Inference(), x, state)
			}
			// hidden values stay inside tanh range however long we run
			for _, v := range state.H.Data() {
				assert.Less(t, math.Abs(float64(v)), 1.0)
			}
		})
	}
}

func TestCells_GradFlowsThroughTime(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	for _, tc := range []struct {
		name  string
		store *Store
	}{
		{"lstm", NewStore()},
		{"gru", NewStore()},
	} {
		t.Run(tc.name, func(t *testing.T) {
			var cell Cell
			if tc.name == "lstm" {
				cell = NewLSTMCell(tc.store, "c", 3, 4, rng)
			} else {
				cell = NewGRUCell(tc.store, "c", 3, 4, rng)
			}

			tp := autodiff.New()
			state := cell.ZeroState(2)
			x := tensor.Uniform(tensor.Shape{2, 3}, -1, 1, rng)
			for i := 0; i < 3; i++ {
				state = cell.Step(tp, x, state)
			}
			for i := range state.H.Grad() {
				state.H.Grad()[i] = 1
			}
			tp.Backward()

			for _, p := range tc.store.Parameters() {
				var sum float64
				for _, g := range p.Tensor().Grad() {
					sum += math.Abs(float64(g))
				}
				assert.NotZerof(t, sum, "parameter %s got no gradient", p.Name())
			}
		})
	}
}

// The GRU update gate interpolates between the old state and the candidate,
// so identical old state and candidate must reproduce the old state. With
// all weights zero the candidate is tanh(0)=0, and a zero old state stays
// exactly zero.
func TestGRUCell_ZeroWeightsFixedPoint(t *testing.T) {
	s := NewStore()
	rng := rand.New(rand.NewSource(6))
	cell := NewGRUCell(s, "c", 2, 2, rng)
	for _, p := range s.Parameters() {
		for i := range p.Tensor().Data() {
			p.Tensor().Data()[i] = 0
		}
	}

	x := tensor.Ones(tensor.Shape{1, 2})
	state := cell.Step(autodiff.Inference(), x, cell.ZeroState(1))
	for _, v := range state.H.Data() {
		assert.Zero(t, v)
	}
}
