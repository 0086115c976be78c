package model

import (
	"fmt"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Encoder is the bidirectional recurrent feature extractor.
//
// A forward cell scans the embedded words left to right, a backward cell
// scans right to left, and per-timestep outputs are the concatenation of
// both directions (width 2H). Recurrent state is held constant once a
// sample's true length is passed, so the final state of each direction is
// the state at the sample's own last valid token, not at the padded end.
type Encoder struct {
	fwd    nn.Cell
	bwd    nn.Cell
	hidden int
	lstm   bool
}

func newEncoder(store *nn.Store, cfg Config, inputDim int, rng *rand.Rand) (*Encoder, error) {
	e := &Encoder{hidden: cfg.HiddenSize}
	switch cfg.Cell {
	case LSTM:
		e.fwd = nn.NewLSTMCell(store, "encoder.fwd", inputDim, cfg.HiddenSize, rng)
		e.bwd = nn.NewLSTMCell(store, "encoder.bwd", inputDim, cfg.HiddenSize, rng)
		e.lstm = true
	case GRU:
		e.fwd = nn.NewGRUCell(store, "encoder.fwd", inputDim, cfg.HiddenSize, rng)
		e.bwd = nn.NewGRUCell(store, "encoder.bwd", inputDim, cfg.HiddenSize, rng)
	default:
		return nil, fmt.Errorf("unknown recurrent cell type %q", cfg.Cell)
	}
	return e, nil
}

// scan runs one direction over the inputs. Timestep order is given by
// order; state updates only apply while a sample's position is within its
// true length, otherwise the state is held.
func (e *Encoder) scan(t *autodiff.Tape, cell nn.Cell, inputs []*tensor.Tensor, order []int, lengths []int) ([]*tensor.Tensor, nn.State) {
	batch := inputs[0].Rows()
	state := cell.ZeroState(batch)
	outputs := make([]*tensor.Tensor, len(inputs))
	active := make([]bool, batch)
	for _, ts := range order {
		next := cell.Step(t, inputs[ts], state)
		for b := range active {
			active[b] = ts < lengths[b]
		}
		held := nn.State{H: t.Where(active, next.H, state.H)}
		if state.C != nil {
			held.C = t.Where(active, next.C, state.C)
		}
		state = held
		outputs[ts] = state.H
	}
	return outputs, state
}

// Forward consumes the embedded word sequence (time-major, one
// [batch, inputDim] tensor per step) and per-sample true lengths. It
// returns the 2H-wide per-timestep outputs and the concatenated final
// state of both directions.
func (e *Encoder) Forward(t *autodiff.Tape, inputs []*tensor.Tensor, lengths []int) (outputs []*tensor.Tensor, final nn.State) {
	steps := len(inputs)
	fwdOrder := make([]int, steps)
	bwdOrder := make([]int, steps)
	for i := 0; i < steps; i++ {
		fwdOrder[i] = i
		bwdOrder[i] = steps - 1 - i
	}
	fwdOut, fwdFinal := e.scan(t, e.fwd, inputs, fwdOrder, lengths)
	bwdOut, bwdFinal := e.scan(t, e.bwd, inputs, bwdOrder, lengths)

	outputs = make([]*tensor.Tensor, steps)
	for ts := 0; ts < steps; ts++ {
		outputs[ts] = t.ConcatCols(fwdOut[ts], bwdOut[ts])
	}
	final = nn.State{H: t.ConcatCols(fwdFinal.H, bwdFinal.H)}
	if e.lstm {
		final.C = t.ConcatCols(fwdFinal.C, bwdFinal.C)
	}
	return outputs, final
}

// OutputSize returns the width of the per-timestep outputs (2H).
func (e *Encoder) OutputSize() int { return 2 * e.hidden }
