package model

import (
	"fmt"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/data"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/optim"
	"github.com/parlance-nlu/parlance/internal/tensor"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// Mode selects what a Step call does with the batch.
type Mode string

// Step modes. Train runs forward, backward and an optimizer update; Test
// runs forward only and needs no gold annotations.
const (
	Train Mode = "train"
	Test  Mode = "test"
)

// Result carries the outputs of one Step call.
type Result struct {
	// Loss is the summed slot and intent loss of the batch. It is
	// computed in train mode only and stays zero in test mode.
	Loss float64
	// Slots holds the predicted slot-label sequence per sample, padded
	// with the PAD sentinel to the configured input length.
	Slots [][]string
	// Intents holds one predicted intent label per sample.
	Intents []string
	// Scores holds the softmax confidence of each intent prediction.
	Scores []float32
	// Mask holds the loss mask per executed decode step: Mask[t][b] is 1
	// exactly when t is within sample b's true length and the gold slot
	// at t is not PAD. It is nil in test mode.
	Mask [][]float32
}

// Step runs one batch through the model. The batch must be rectangular:
// every sample padded to the configured input length, true length within
// it, and, in multi-turn mode, a previous intent present. Train mode
// additionally needs gold slots and intents; test mode predicts from
// words and lengths alone. Malformed batches and unknown labels are
// errors; tensor shape violations panic.
func (m *Model) Step(mode Mode, batch []*data.Sample) (*Result, error) {
	switch mode {
	case Train, Test:
	default:
		return nil, fmt.Errorf("mode %q unsupported", mode)
	}
	if err := m.checkBatch(mode, batch); err != nil {
		return nil, err
	}

	var t *autodiff.Tape
	if mode == Train {
		t = autodiff.New()
	} else {
		t = autodiff.Inference()
	}

	steps := m.cfg.InputSteps
	lengths := make([]int, len(batch))
	words := make([][]string, steps)
	for ts := range words {
		words[ts] = make([]string, len(batch))
	}
	for b, s := range batch {
		lengths[b] = s.Length
		for ts := 0; ts < steps; ts++ {
			words[ts][b] = s.Words[ts]
		}
	}

	memory, final := m.enc.Forward(t, m.words.Embed(t, words), lengths)
	slotLogits, slotIDs := m.dec.Forward(t, memory, lengths)

	intentLoss, intents, scores, err := m.intentForward(t, mode, final, memory, lengths, batch)
	if err != nil {
		return nil, err
	}

	res := &Result{Intents: intents, Scores: scores}
	if mode == Train {
		mask, slotLoss, err := m.slotLoss(t, slotLogits, batch)
		if err != nil {
			return nil, err
		}
		total := t.Add(slotLoss, intentLoss)
		total.Grad()[0] = 1
		t.Backward()
		optim.ClipGradNorm(m.store.Parameters(), m.cfg.ClipNorm)
		m.opt.Step()
		m.opt.ZeroGrad()
		res.Loss = float64(total.Item())
		res.Mask = mask
	}

	res.Slots, err = m.slotStrings(slotIDs, len(batch))
	if err != nil {
		return nil, err
	}
	return res, nil
}

// checkBatch rejects batches that violate the rectangular-shape contract.
// Gold slot sequences are part of that contract in train mode only.
func (m *Model) checkBatch(mode Mode, batch []*data.Sample) error {
	if len(batch) == 0 {
		return fmt.Errorf("empty batch")
	}
	for b, s := range batch {
		if len(s.Words) != m.cfg.InputSteps {
			return fmt.Errorf("sample %d: %d words, want %d", b, len(s.Words), m.cfg.InputSteps)
		}
		if mode == Train && len(s.Slots) != m.cfg.InputSteps {
			return fmt.Errorf("sample %d: %d slots, want %d", b, len(s.Slots), m.cfg.InputSteps)
		}
		if s.Length < 0 || s.Length > m.cfg.InputSteps {
			return fmt.Errorf("sample %d: true length %d outside [0,%d]", b, s.Length, m.cfg.InputSteps)
		}
		if m.cfg.MultiTurn && s.PreviousIntent == "" {
			return fmt.Errorf("sample %d: multi-turn mode requires a previous intent", b)
		}
		if s.BotTurnLength < 0 {
			return fmt.Errorf("sample %d: negative bot turn length %d", b, s.BotTurnLength)
		}
	}
	return nil
}

// slotLoss computes the per-step loss mask and the masked, normalized
// token-level cross-entropy over the executed decode steps.
func (m *Model) slotLoss(t *autodiff.Tape, logits []*tensor.Tensor, batch []*data.Sample) ([][]float32, *tensor.Tensor, error) {
	mask := make([][]float32, len(logits))
	sum := tensor.New(tensor.Shape{})
	var totalWeight float32
	for ts, stepLogits := range logits {
		weights := make([]float32, len(batch))
		targets := make([]int, len(batch))
		for b, s := range batch {
			id, err := m.vocabs.Slots.MustID(s.Slots[ts])
			if err != nil {
				return nil, nil, fmt.Errorf("sample %d step %d: %w", b, ts, err)
			}
			targets[b] = id
			if ts < s.Length && s.Slots[ts] != vocab.Pad {
				weights[b] = 1
				totalWeight++
			}
		}
		mask[ts] = weights
		sum = t.Add(sum, t.CrossEntropy(stepLogits, targets, weights))
	}
	if totalWeight > 0 {
		sum = t.Scale(sum, 1/totalWeight)
	}
	return mask, sum, nil
}

// intentForward computes the predicted intent labels and confidence
// scores, plus the intent-side loss in train mode (nil otherwise). With
// the CRF strategy the previous intent enters the loss through pair
// scoring; with a recurrent combiner it refines the logits before a
// plain cross-entropy.
func (m *Model) intentForward(t *autodiff.Tape, mode Mode, final nn.State, memory []*tensor.Tensor, lengths []int, batch []*data.Sample) (*tensor.Tensor, []string, []float32, error) {
	logits := m.intent.Logits(t, final, memory, lengths)

	var prev []int
	if m.cfg.MultiTurn {
		prev = make([]int, len(batch))
		for b, s := range batch {
			id, err := m.vocabs.Intents.MustID(s.PreviousIntent)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("sample %d: %w", b, err)
			}
			prev[b] = id
		}
	}

	var loss *tensor.Tensor
	var ids []int
	if m.crf != nil {
		if mode == Train {
			gold, err := m.goldIntents(batch)
			if err != nil {
				return nil, nil, nil, err
			}
			loss = m.crf.Loss(t, prev, logits, gold)
		}
		_, ids = m.crf.Decode(prev, logits)
	} else {
		logits = m.intent.Combine(t, logits, prev)
		if mode == Train {
			gold, err := m.goldIntents(batch)
			if err != nil {
				return nil, nil, nil, err
			}
			ones := make([]float32, len(batch))
			for i := range ones {
				ones[i] = 1
			}
			loss = t.Scale(t.CrossEntropy(logits, gold, ones), 1/float32(len(batch)))
		}
		ids = logits.ArgmaxRows()
	}

	labels, err := m.vocabs.Intents.Words(ids)
	if err != nil {
		return nil, nil, nil, err
	}
	// The confidence is always the softmax peak of the per-intent logits.
	// Under the CRF strategy the decoded label can differ from that peak
	// when the transition scores override it.
	return loss, labels, logits.SoftmaxMaxRows(), nil
}

// goldIntents resolves the gold intent label of every sample.
func (m *Model) goldIntents(batch []*data.Sample) ([]int, error) {
	gold := make([]int, len(batch))
	for b, s := range batch {
		id, err := m.vocabs.Intents.MustID(s.Intent)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", b, err)
		}
		gold[b] = id
	}
	return gold, nil
}

// slotStrings converts per-step predicted ids into per-sample label
// sequences padded to the configured input length.
func (m *Model) slotStrings(ids [][]int, batchSize int) ([][]string, error) {
	out := make([][]string, batchSize)
	for b := range out {
		seq := make([]string, m.cfg.InputSteps)
		for ts := range seq {
			if ts < len(ids) {
				label, err := m.vocabs.Slots.Word(ids[ts][b])
				if err != nil {
					return nil, err
				}
				seq[ts] = label
			} else {
				seq[ts] = vocab.Pad
			}
		}
		out[b] = seq
	}
	return out, nil
}
