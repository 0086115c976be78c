// Package autodiff implements reverse-mode automatic differentiation.
//
// A Tape records the backward closure of every operation executed during the
// forward pass. Calling Backward replays the closures in reverse, routing
// gradients from the loss back into every tensor that contributed to it.
// The tape is define-by-run: control flow in the forward pass (the decoder's
// token-by-token loop, the per-sample finish conditions) needs no special
// handling, because only the operations that actually ran are on the tape.
//
// Usage:
//
//	tape := autodiff.New()
//	out := tape.MatMul(x, w)
//	loss := tape.CrossEntropy(out, targets, weights)
//	loss.Grad()[0] = 1
//	tape.Backward()
//
// An inference tape (autodiff.Inference) skips recording entirely; the same
// forward code serves both training and test steps.
package autodiff

// Tape records operations for backpropagation.
type Tape struct {
	recording bool
	backward  []func()
}

// New creates a tape that records backward closures.
func New() *Tape {
	return &Tape{recording: true}
}

// Inference creates a tape that records nothing.
// Forward passes through an inference tape allocate no closures.
func Inference() *Tape {
	return &Tape{}
}

// Recording reports whether the tape is recording backward closures.
func (t *Tape) Recording() bool {
	return t.recording
}

// Record appends a backward closure to the tape.
// It is a no-op on an inference tape. Exported so modules with bespoke
// gradients (the pairwise CRF) can participate in backpropagation.
func (t *Tape) Record(backward func()) {
	if t.recording {
		t.backward = append(t.backward, backward)
	}
}

// Backward runs all recorded closures in reverse order.
// The caller seeds the gradient of the loss tensor before calling.
func (t *Tape) Backward() {
	for i := len(t.backward) - 1; i >= 0; i-- {
		t.backward[i]()
	}
}

// Len returns the number of recorded operations.
func (t *Tape) Len() int {
	return len(t.backward)
}
