package model

import (
	"fmt"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/embeddings"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/tensor"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// startLabel is the slot label embedded as the decoder's first input.
const startLabel = "O"

// Decoder runs the autoregressive slot-tagging loop over encoder outputs.
//
// The recurrent cell starts from its zero state. At step t its
// input is the embedding of the previously predicted slot label
// concatenated with the encoder output at time t, so the decoder stays
// aligned with the input sequence while still conditioning on its own
// predictions. With attention enabled, the cell output is additionally
// combined with a Bahdanau context over the whole encoder sequence before
// the output projection.
type Decoder struct {
	cell      nn.Cell
	slots     *embeddings.FromScratch
	attn      *nn.Attention
	attnLayer *nn.Linear
	proj      *nn.Linear
	startID   int
	maxSteps  int
}

func newDecoder(store *nn.Store, cfg Config, slotVocab *vocab.Vocabulary, rng *rand.Rand) (*Decoder, error) {
	d := &Decoder{maxSteps: cfg.InputSteps}
	d.slots = embeddings.NewFromScratch(store, "decoder.slots", slotVocab, cfg.EmbeddingSize, rng)
	id, ok := slotVocab.ID(startLabel)
	if !ok {
		return nil, fmt.Errorf("slot vocabulary has no %q tag to seed decoding", startLabel)
	}
	d.startID = id

	width := 2 * cfg.HiddenSize
	inputDim := cfg.EmbeddingSize + width
	switch cfg.Cell {
	case LSTM:
		d.cell = nn.NewLSTMCell(store, "decoder.cell", inputDim, width, rng)
	case GRU:
		d.cell = nn.NewGRUCell(store, "decoder.cell", inputDim, width, rng)
	default:
		return nil, fmt.Errorf("unknown recurrent cell type %q", cfg.Cell)
	}

	projIn := width
	if cfg.Attention == AttendSlots || cfg.Attention == AttendBoth {
		d.attn = nn.NewAttention(store, "decoder.attn", width, width, cfg.HiddenSize, rng)
		d.attnLayer = nn.NewLinear(store, "decoder.attnlayer", 2*width, cfg.HiddenSize, rng)
		projIn = cfg.HiddenSize
	}
	d.proj = nn.NewLinearUniform(store, "decoder.proj", projIn, slotVocab.Size(), 0.1, rng)
	return d, nil
}

// decodeLoop is the per-batch decoding state machine. It separates the
// protocol (initial state, sampling, advancing) from the recurrence so
// each transition can be tested on its own.
type decodeLoop struct {
	dec     *Decoder
	memory  []*tensor.Tensor
	keys    []*tensor.Tensor
	lengths []int
}

// initialState returns the finished flags and the first cell input:
// the embedded start label concatenated with the encoder output at time 0.
func (l *decodeLoop) initialState(t *autodiff.Tape) (finished []bool, input *tensor.Tensor) {
	batch := len(l.lengths)
	finished = make([]bool, batch)
	ids := make([]int, batch)
	for b := range ids {
		finished[b] = l.lengths[b] <= 0
		ids[b] = l.dec.startID
	}
	return finished, t.ConcatCols(l.dec.slots.EmbedIDs(t, ids), l.memory[0])
}

// sampleFrom picks the predicted slot id per batch element from step logits.
func (l *decodeLoop) sampleFrom(logits *tensor.Tensor) []int {
	return logits.ArgmaxRows()
}

// advance computes the finished flags for timestep next and the cell input
// that feeds it: the embedding of the previous predictions concatenated
// with the encoder output at time next.
func (l *decodeLoop) advance(t *autodiff.Tape, next int, sampled []int) (finished []bool, input *tensor.Tensor) {
	finished = make([]bool, len(l.lengths))
	for b, length := range l.lengths {
		finished[b] = next >= length
	}
	return finished, t.ConcatCols(l.dec.slots.EmbedIDs(t, sampled), l.memory[next])
}

// output maps the recurrent state at one step to slot logits, passing
// through the attention layer when attention is enabled.
func (l *decodeLoop) output(t *autodiff.Tape, h *tensor.Tensor) *tensor.Tensor {
	x := h
	if l.dec.attn != nil {
		ctx := t.Blend(l.dec.attn.Weights(t, h, l.keys, l.lengths), l.memory)
		x = t.Tanh(l.dec.attnLayer.Forward(t, t.ConcatCols(h, ctx)))
	}
	return l.dec.proj.Forward(t, x)
}

func allFinished(flags []bool) bool {
	for _, f := range flags {
		if !f {
			return false
		}
	}
	return true
}

// Forward decodes slot logits for every timestep. It returns one
// [batch, slots] logits tensor and one predicted-id slice per executed
// step. The loop stops when every sample is finished or after maxSteps,
// whichever comes first; padded positions past a sample's true length
// still execute (the batch stays rectangular) and are masked out of the
// loss by the caller.
func (d *Decoder) Forward(t *autodiff.Tape, memory []*tensor.Tensor, lengths []int) (logits []*tensor.Tensor, ids [][]int) {
	loop := &decodeLoop{dec: d, memory: memory, lengths: lengths}
	if d.attn != nil {
		loop.keys = d.attn.Keys(t, memory)
	}
	state := d.cell.ZeroState(len(lengths))
	finished, input := loop.initialState(t)
	for step := 0; step < d.maxSteps && !allFinished(finished); step++ {
		state = d.cell.Step(t, input, state)
		out := loop.output(t, state.H)
		sampled := loop.sampleFrom(out)
		logits = append(logits, out)
		ids = append(ids, sampled)
		if step+1 >= d.maxSteps {
			break
		}
		finished, input = loop.advance(t, step+1, sampled)
	}
	return logits, ids
}

// SlotEmbedding exposes the decoder's trainable slot-label table.
func (d *Decoder) SlotEmbedding() *embeddings.FromScratch { return d.slots }
