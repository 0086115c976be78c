// Package tensor provides the dense numeric arrays the model computes with.
//
// Tensors are row-major float32 buffers with a paired gradient buffer of the
// same size. All computation in this repository is synchronous CPU work, so
// there is no backend indirection: operations over tensors live in the
// autodiff package, which records their backward passes on a tape.
package tensor

import (
	"fmt"
	"math/rand"
)

// Tensor is a row-major float32 array with paired gradient storage.
//
// The gradient buffer is allocated together with the data so backward
// closures can accumulate into it without nil checks. Tensors that never
// participate in backpropagation simply leave their gradient at zero.
type Tensor struct {
	shape Shape
	data  []float32
	grad  []float32
}

// New creates a zero-filled tensor with the given shape.
// Panics if the shape is invalid; shape construction is a programmer error,
// not a runtime condition.
func New(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.New: %v", err))
	}
	n := shape.NumElements()
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, n),
		grad:  make([]float32, n),
	}
}

// FromSlice creates a tensor from a Go slice.
// The slice is copied into the tensor's memory.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if shape.NumElements() != len(data) {
		return nil, fmt.Errorf("shape %v requires %d elements, but got %d", shape, shape.NumElements(), len(data))
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// Zeros creates a zero-filled tensor.
func Zeros(shape Shape) *Tensor {
	return New(shape)
}

// Ones creates a tensor filled with ones.
func Ones(shape Shape) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = 1
	}
	return t
}

// Full creates a tensor filled with the given value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(mean, stddev²).
func Randn(shape Shape, mean, stddev float64, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(rng.NormFloat64()*stddev + mean)
	}
	return t
}

// Uniform creates a tensor with values drawn from U(lo, hi).
func Uniform(shape Shape, lo, hi float64, rng *rand.Rand) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(lo + rng.Float64()*(hi-lo))
	}
	return t
}

// Shape returns the tensor's shape.
func (t *Tensor) Shape() Shape {
	return t.shape
}

// NumElements returns the total number of elements.
func (t *Tensor) NumElements() int {
	return len(t.data)
}

// Data returns the tensor's values as a flat slice.
// The slice directly accesses the underlying memory (zero-copy).
func (t *Tensor) Data() []float32 {
	return t.data
}

// Grad returns the tensor's gradient buffer as a flat slice.
func (t *Tensor) Grad() []float32 {
	return t.grad
}

// ZeroGrad clears the gradient buffer.
func (t *Tensor) ZeroGrad() {
	for i := range t.grad {
		t.grad[i] = 0
	}
}

// At returns the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) At(indices ...int) float32 {
	return t.data[t.offset(indices)]
}

// Set sets the element at the given indices.
// Panics if indices are out of bounds.
func (t *Tensor) Set(value float32, indices ...int) {
	t.data[t.offset(indices)] = value
}

func (t *Tensor) offset(indices []int) int {
	if len(indices) != len(t.shape) {
		panic(fmt.Sprintf("expected %d indices, got %d", len(t.shape), len(indices)))
	}
	offset := 0
	strides := t.shape.Strides()
	for i, idx := range indices {
		if idx < 0 || idx >= t.shape[i] {
			panic(fmt.Sprintf("index %d out of bounds for dimension %d (size %d)", idx, i, t.shape[i]))
		}
		offset += idx * strides[i]
	}
	return offset
}

// Item returns the scalar value of a 0-D tensor.
// Panics if the tensor is not a scalar.
func (t *Tensor) Item() float32 {
	if len(t.shape) != 0 {
		panic(fmt.Sprintf("Item() only works for scalar tensors, got shape %v", t.shape))
	}
	return t.data[0]
}

// Clone creates a deep copy of the tensor's values.
// The gradient buffer of the copy starts at zero.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape)
	copy(c.data, t.data)
	return c
}

// String returns a human-readable representation of the tensor.
func (t *Tensor) String() string {
	return fmt.Sprintf("Tensor%v (%d elements)", t.shape, len(t.data))
}

// Rows returns the number of rows of a 2-D tensor.
// Panics for tensors of other ranks.
func (t *Tensor) Rows() int {
	t.mustRank(2)
	return t.shape[0]
}

// Cols returns the number of columns of a 2-D tensor.
// Panics for tensors of other ranks.
func (t *Tensor) Cols() int {
	t.mustRank(2)
	return t.shape[1]
}

func (t *Tensor) mustRank(r int) {
	if len(t.shape) != r {
		panic(fmt.Sprintf("expected rank-%d tensor, got shape %v", r, t.shape))
	}
}

// Row returns a copy of row i of a 2-D tensor.
func (t *Tensor) Row(i int) []float32 {
	cols := t.Cols()
	if i < 0 || i >= t.shape[0] {
		panic(fmt.Sprintf("row %d out of bounds for shape %v", i, t.shape))
	}
	row := make([]float32, cols)
	copy(row, t.data[i*cols:(i+1)*cols])
	return row
}

// ArgmaxRows returns, for a 2-D tensor, the column index of the maximum
// value in each row.
func (t *Tensor) ArgmaxRows() []int {
	rows, cols := t.Rows(), t.Cols()
	out := make([]int, rows)
	for i := 0; i < rows; i++ {
		best := 0
		bestVal := t.data[i*cols]
		for j := 1; j < cols; j++ {
			if v := t.data[i*cols+j]; v > bestVal {
				best, bestVal = j, v
			}
		}
		out[i] = best
	}
	return out
}

// SoftmaxMaxRows returns, for a 2-D tensor of logits, the maximum softmax
// probability of each row. Used for confidence scores; does not participate
// in gradients.
func (t *Tensor) SoftmaxMaxRows() []float32 {
	rows, cols := t.Rows(), t.Cols()
	out := make([]float32, rows)
	for i := 0; i < rows; i++ {
		row := t.data[i*cols : (i+1)*cols]
		maxVal := row[0]
		for _, v := range row[1:] {
			if v > maxVal {
				maxVal = v
			}
		}
		var sum float64
		for _, v := range row {
			sum += exp64(v - maxVal)
		}
		// max softmax value corresponds to the max logit
		out[i] = float32(1.0 / sum)
	}
	return out
}
