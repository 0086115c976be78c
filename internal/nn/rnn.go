package nn

import (
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// State holds the recurrent state of a cell for one batch.
// H is the hidden state [batch, hidden]; C is the cell state for LSTM
// cells and nil for GRU cells.
type State struct {
	H *tensor.Tensor
	C *tensor.Tensor
}

// Cell is a recurrent cell stepped once per timestep over a batch.
type Cell interface {
	// Step consumes an input [batch, inputSize] and the previous state and
	// returns the next state.
	Step(t *autodiff.Tape, x *tensor.Tensor, s State) State
	// ZeroState returns the all-zero initial state for a batch.
	ZeroState(batch int) State
	// HiddenSize returns the width of the hidden state.
	HiddenSize() int
}

// gate computes sigma(x @ Wx + h @ Wh + b) where sigma is applied by the
// caller. Shared by both cell implementations.
func gate(t *autodiff.Tape, x, h *tensor.Tensor, wx, wh, b *Parameter) *tensor.Tensor {
	return t.AddBias(t.Add(t.MatMul(x, wx.Tensor()), t.MatMul(h, wh.Tensor())), b.Tensor())
}

// LSTMCell is a standard LSTM cell with per-gate weight matrices.
//
//	i = sigmoid(x@Wix + h@Wih + bi)
//	f = sigmoid(x@Wfx + h@Wfh + bf)
//	o = sigmoid(x@Wox + h@Woh + bo)
//	g = tanh(x@Wgx + h@Wgh + bg)
//	c' = f*c + i*g
//	h' = o * tanh(c')
//
// The forget gate bias starts at 1 so early training does not erase state.
type LSTMCell struct {
	inputSize  int
	hiddenSize int

	wix, wih, bi *Parameter
	wfx, wfh, bf *Parameter
	wox, woh, bo *Parameter
	wgx, wgh, bg *Parameter
}

// NewLSTMCell creates an LSTM cell and registers its parameters under the
// given name prefix.
func NewLSTMCell(store *Store, name string, inputSize, hiddenSize int, rng *rand.Rand) *LSTMCell {
	w := func(gate string, in int) *Parameter {
		return store.Register(name+"."+gate, Xavier(in, hiddenSize, tensor.Shape{in, hiddenSize}, rng))
	}
	c := &LSTMCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		wix:        w("wix", inputSize),
		wih:        w("wih", hiddenSize),
		bi:         store.Register(name+".bi", tensor.Zeros(tensor.Shape{hiddenSize})),
		wfx:        w("wfx", inputSize),
		wfh:        w("wfh", hiddenSize),
		bf:         store.Register(name+".bf", tensor.Ones(tensor.Shape{hiddenSize})),
		wox:        w("wox", inputSize),
		woh:        w("woh", hiddenSize),
		bo:         store.Register(name+".bo", tensor.Zeros(tensor.Shape{hiddenSize})),
		wgx:        w("wgx", inputSize),
		wgh:        w("wgh", hiddenSize),
		bg:         store.Register(name+".bg", tensor.Zeros(tensor.Shape{hiddenSize})),
	}
	return c
}

// Step advances the cell by one timestep.
func (c *LSTMCell) Step(t *autodiff.Tape, x *tensor.Tensor, s State) State {
	i := t.Sigmoid(gate(t, x, s.H, c.wix, c.wih, c.bi))
	f := t.Sigmoid(gate(t, x, s.H, c.wfx, c.wfh, c.bf))
	o := t.Sigmoid(gate(t, x, s.H, c.wox, c.woh, c.bo))
	g := t.Tanh(gate(t, x, s.H, c.wgx, c.wgh, c.bg))
	cNext := t.Add(t.Mul(f, s.C), t.Mul(i, g))
	hNext := t.Mul(o, t.Tanh(cNext))
	return State{H: hNext, C: cNext}
}

// ZeroState returns zero hidden and cell state for a batch.
func (c *LSTMCell) ZeroState(batch int) State {
	return State{
		H: tensor.Zeros(tensor.Shape{batch, c.hiddenSize}),
		C: tensor.Zeros(tensor.Shape{batch, c.hiddenSize}),
	}
}

// HiddenSize returns the hidden width.
func (c *LSTMCell) HiddenSize() int { return c.hiddenSize }

// GRUCell is a standard GRU cell with per-gate weight matrices.
//
//	z = sigmoid(x@Wzx + h@Wzh + bz)
//	r = sigmoid(x@Wrx + h@Wrh + br)
//	g = tanh(x@Wgx + (r*h)@Wgh + bg)
//	h' = (1-z)*h + z*g
type GRUCell struct {
	inputSize  int
	hiddenSize int

	wzx, wzh, bz *Parameter
	wrx, wrh, br *Parameter
	wgx, wgh, bg *Parameter
}

// NewGRUCell creates a GRU cell and registers its parameters under the
// given name prefix.
func NewGRUCell(store *Store, name string, inputSize, hiddenSize int, rng *rand.Rand) *GRUCell {
	w := func(gate string, in int) *Parameter {
		return store.Register(name+"."+gate, Xavier(in, hiddenSize, tensor.Shape{in, hiddenSize}, rng))
	}
	return &GRUCell{
		inputSize:  inputSize,
		hiddenSize: hiddenSize,
		wzx:        w("wzx", inputSize),
		wzh:        w("wzh", hiddenSize),
		bz:         store.Register(name+".bz", tensor.Zeros(tensor.Shape{hiddenSize})),
		wrx:        w("wrx", inputSize),
		wrh:        w("wrh", hiddenSize),
		br:         store.Register(name+".br", tensor.Zeros(tensor.Shape{hiddenSize})),
		wgx:        w("wgx", inputSize),
		wgh:        w("wgh", hiddenSize),
		bg:         store.Register(name+".bg", tensor.Zeros(tensor.Shape{hiddenSize})),
	}
}

// Step advances the cell by one timestep.
func (c *GRUCell) Step(t *autodiff.Tape, x *tensor.Tensor, s State) State {
	z := t.Sigmoid(gate(t, x, s.H, c.wzx, c.wzh, c.bz))
	r := t.Sigmoid(gate(t, x, s.H, c.wrx, c.wrh, c.br))
	g := t.Tanh(gate(t, x, t.Mul(r, s.H), c.wgx, c.wgh, c.bg))
	hNext := t.Add(t.Mul(t.OneMinus(z), s.H), t.Mul(z, g))
	return State{H: hNext}
}

// ZeroState returns zero hidden state for a batch.
func (c *GRUCell) ZeroState(batch int) State {
	return State{H: tensor.Zeros(tensor.Shape{batch, c.hiddenSize})}
}

// HiddenSize returns the hidden width.
func (c *GRUCell) HiddenSize() int { return c.hiddenSize }
