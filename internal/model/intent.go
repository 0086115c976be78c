package model

import (
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// IntentHead projects the encoder final state to intent logits and,
// in multi-turn mode, folds the previous turn's intent into them.
//
// The GRU combiner treats the raw logits as the cell input and the
// previous-intent one-hot vector as the prior hidden state; the refined
// logits are the cell's new hidden state. The LSTM combiner seeds both the
// hidden and cell state with the one-hot vector. The CRF strategy is
// handled at the model level since it contributes its own loss term.
type IntentHead struct {
	proj       *nn.Linear
	attn       *nn.Attention
	combiner   nn.Cell
	seedCell   bool // LSTM combiner: seed C as well as H
	numIntents int
}

func newIntentHead(store *nn.Store, cfg Config, numIntents int, rng *rand.Rand) *IntentHead {
	h := &IntentHead{numIntents: numIntents}
	width := 2 * cfg.HiddenSize
	projIn := width
	if cfg.Attention == AttendIntents || cfg.Attention == AttendBoth {
		h.attn = nn.NewAttention(store, "intent.attn", width, width, cfg.HiddenSize, rng)
		projIn = 2 * width
	}
	h.proj = nn.NewLinearUniform(store, "intent.proj", projIn, numIntents, 0.1, rng)
	switch cfg.Combine {
	case CombineGRU:
		h.combiner = nn.NewGRUCell(store, "intent.combiner", numIntents, numIntents, rng)
	case CombineLSTM:
		h.combiner = nn.NewLSTMCell(store, "intent.combiner", numIntents, numIntents, rng)
		h.seedCell = true
	}
	return h
}

// Logits computes raw intent logits from the encoder final state,
// conditioning on attention over the encoder outputs when enabled.
func (h *IntentHead) Logits(t *autodiff.Tape, final nn.State, memory []*tensor.Tensor, lengths []int) *tensor.Tensor {
	x := final.H
	if h.attn != nil {
		ctx := h.attn.Context(t, final.H, h.attn.Keys(t, memory), memory, lengths)
		x = t.ConcatCols(final.H, ctx)
	}
	return h.proj.Forward(t, x)
}

// Combine refines the logits with the previous-turn intent through the
// configured recurrent combiner. Returns the input untouched when no
// recurrent combiner is configured (single-turn or CRF mode).
func (h *IntentHead) Combine(t *autodiff.Tape, logits *tensor.Tensor, prev []int) *tensor.Tensor {
	if h.combiner == nil {
		return logits
	}
	state := nn.State{H: oneHot(len(prev), h.numIntents, prev)}
	if h.seedCell {
		state.C = oneHot(len(prev), h.numIntents, prev)
	}
	return h.combiner.Step(t, logits, state).H
}

// oneHot builds a constant [batch, width] one-hot tensor.
func oneHot(batch, width int, ids []int) *tensor.Tensor {
	m := tensor.New(tensor.Shape{batch, width})
	for b, id := range ids {
		m.Set(1, b, id)
	}
	return m
}
