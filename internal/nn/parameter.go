// Package nn implements the neural network modules the model is built from.
//
// Building blocks:
//   - Parameter and Store: named trainable tensors in an explicit mutable
//     parameter store owned by the model instance
//   - Linear: fully connected projection
//   - Embedding: trainable lookup table
//   - LSTMCell, GRUCell: recurrent cells sharing the Cell interface
//   - Attention: additive (Bahdanau-style) attention over encoder outputs
//   - PairCRF: conditional random field over a two-position tag sequence
package nn

import (
	"fmt"
	"sort"

	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Parameter represents a named trainable parameter.
//
// Parameters are created at model-build time, registered in a Store, and
// mutated only by the optimizer step.
type Parameter struct {
	name   string
	tensor *tensor.Tensor
}

// Name returns the parameter name (e.g. "decoder.proj.weight").
func (p *Parameter) Name() string {
	return p.name
}

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor {
	return p.tensor
}

// ZeroGrad clears the parameter's gradient buffer.
func (p *Parameter) ZeroGrad() {
	p.tensor.ZeroGrad()
}

// Store is the explicit mutable parameter store owned by a model instance.
// It is passed by reference into module constructors, which register their
// parameters under hierarchical names, and into the optimizer, which is the
// only mutator of parameter values between steps.
type Store struct {
	params []*Parameter
	byName map[string]*Parameter
}

// NewStore creates an empty parameter store.
func NewStore() *Store {
	return &Store{byName: make(map[string]*Parameter)}
}

// Register adds a named parameter to the store and returns it.
// Duplicate names are programmer errors and panic.
func (s *Store) Register(name string, t *tensor.Tensor) *Parameter {
	if _, ok := s.byName[name]; ok {
		panic(fmt.Sprintf("parameter %q registered twice", name))
	}
	p := &Parameter{name: name, tensor: t}
	s.params = append(s.params, p)
	s.byName[name] = p
	return p
}

// Get returns the parameter with the given name.
func (s *Store) Get(name string) (*Parameter, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Parameters returns all registered parameters in registration order.
func (s *Store) Parameters() []*Parameter {
	return s.params
}

// ZeroGrad clears the gradients of every parameter.
// Called between training steps so gradients never accumulate across
// batches.
func (s *Store) ZeroGrad() {
	for _, p := range s.params {
		p.ZeroGrad()
	}
}

// StateDict returns a snapshot of all parameter values keyed by name.
// The slices are copies; mutating them does not affect the store.
func (s *Store) StateDict() map[string][]float32 {
	dict := make(map[string][]float32, len(s.params))
	for _, p := range s.params {
		data := p.tensor.Data()
		cp := make([]float32, len(data))
		copy(cp, data)
		dict[p.name] = cp
	}
	return dict
}

// LoadStateDict restores parameter values from a snapshot.
// Every parameter in the store must be present with matching size;
// a mismatch means the checkpoint belongs to a different model build.
func (s *Store) LoadStateDict(dict map[string][]float32) error {
	for _, p := range s.params {
		values, ok := dict[p.name]
		if !ok {
			return fmt.Errorf("state dict is missing parameter %q", p.name)
		}
		data := p.tensor.Data()
		if len(values) != len(data) {
			return fmt.Errorf("parameter %q has %d elements, state dict has %d", p.name, len(data), len(values))
		}
		copy(data, values)
	}
	return nil
}

// Names returns the sorted names of all registered parameters.
func (s *Store) Names() []string {
	names := make([]string, 0, len(s.params))
	for _, p := range s.params {
		names = append(names, p.name)
	}
	sort.Strings(names)
	return names
}
