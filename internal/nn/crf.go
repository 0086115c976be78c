package nn

import (
	"fmt"
	"math"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// PairCRF is a conditional random field over a two-position tag sequence:
// (previous intent, current intent). Unary scores are the previous-intent
// one-hot vector at position 0 and the intent logits at position 1; a
// learned transition matrix scores tag pairs jointly.
//
// Training uses the exact negative log-likelihood of the gold pair;
// inference decodes the most likely pair by exhaustive (Viterbi) search
// over the two positions. The chain is short enough that both are closed
// forms, but gradients are still non-trivial: the backward pass pushes
// pair marginals into the logits and the transition matrix, so the loss
// participates in the tape like any other op.
type PairCRF struct {
	numTags int
	trans   *Parameter // [numTags, numTags]
}

// NewPairCRF creates a pairwise CRF over numTags tags and registers its
// transition matrix under name.trans.
func NewPairCRF(store *Store, name string, numTags int, rng *rand.Rand) *PairCRF {
	return &PairCRF{
		numTags: numTags,
		trans:   store.Register(name+".trans", UniformInit(tensor.Shape{numTags, numTags}, 0.1, rng)),
	}
}

// score computes the joint score of tags (i, j) for batch row b.
func (c *PairCRF) score(logits []float32, b, i, j int) float64 {
	k := c.numTags
	s := float64(c.trans.Tensor().Data()[i*k+j]) + float64(logits[b*k+j])
	return s
}

// Loss returns the mean negative log-likelihood of the gold
// (previous, current) pairs. prev and gold must each have one entry per
// batch row of logits [batch, numTags].
func (c *PairCRF) Loss(t *autodiff.Tape, prev []int, logits *tensor.Tensor, gold []int) *tensor.Tensor {
	batch, k := logits.Rows(), logits.Cols()
	if k != c.numTags {
		panic(fmt.Sprintf("PairCRF.Loss: logits have %d tags, CRF has %d", k, c.numTags))
	}
	if len(prev) != batch || len(gold) != batch {
		panic(fmt.Sprintf("PairCRF.Loss: %d prev and %d gold labels for batch %d", len(prev), len(gold), batch))
	}
	for b := 0; b < batch; b++ {
		if prev[b] < 0 || prev[b] >= k || gold[b] < 0 || gold[b] >= k {
			panic(fmt.Sprintf("PairCRF.Loss: tag pair (%d,%d) out of range [0,%d)", prev[b], gold[b], k))
		}
	}

	ld := logits.Data()
	logZ := make([]float64, batch)
	var total float64
	for b := 0; b < batch; b++ {
		// logZ_b = logsumexp over all (i,j) of onehot[i] + T[i,j] + logits[b,j]
		maxScore := math.Inf(-1)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				s := c.pairScore(ld, b, i, j, prev[b])
				if s > maxScore {
					maxScore = s
				}
			}
		}
		var sum float64
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				sum += math.Exp(c.pairScore(ld, b, i, j, prev[b]) - maxScore)
			}
		}
		logZ[b] = maxScore + math.Log(sum)
		goldScore := c.pairScore(ld, b, prev[b], gold[b], prev[b])
		total += logZ[b] - goldScore
	}

	out := tensor.New(tensor.Shape{})
	out.Data()[0] = float32(total / float64(batch))

	prevCopy := append([]int(nil), prev...)
	goldCopy := append([]int(nil), gold...)
	t.Record(func() {
		g := out.Grad()[0]
		if g == 0 {
			return
		}
		scale := float64(g) / float64(batch)
		lg := logits.Grad()
		tg := c.trans.Tensor().Grad()
		for b := 0; b < batch; b++ {
			for i := 0; i < k; i++ {
				for j := 0; j < k; j++ {
					p := math.Exp(c.pairScore(ld, b, i, j, prevCopy[b]) - logZ[b])
					ind := 0.0
					if i == prevCopy[b] && j == goldCopy[b] {
						ind = 1.0
					}
					d := (p - ind) * scale
					tg[i*k+j] += float32(d)
					lg[b*k+j] += float32(d)
				}
			}
		}
	})
	return out
}

// pairScore is onehot(prevTag)[i] + T[i,j] + logits[b,j].
func (c *PairCRF) pairScore(logits []float32, b, i, j, prevTag int) float64 {
	s := c.score(logits, b, i, j)
	if i == prevTag {
		s += 1
	}
	return s
}

// Decode returns the most likely (first, second) tag pair for every batch
// row, maximizing the joint score under the current transition matrix.
// The second position is the predicted current intent.
func (c *PairCRF) Decode(prev []int, logits *tensor.Tensor) (first, second []int) {
	batch, k := logits.Rows(), logits.Cols()
	if len(prev) != batch {
		panic(fmt.Sprintf("PairCRF.Decode: %d prev labels for batch %d", len(prev), batch))
	}
	ld := logits.Data()
	first = make([]int, batch)
	second = make([]int, batch)
	for b := 0; b < batch; b++ {
		best := math.Inf(-1)
		for i := 0; i < k; i++ {
			for j := 0; j < k; j++ {
				if s := c.pairScore(ld, b, i, j, prev[b]); s > best {
					best = s
					first[b] = i
					second[b] = j
				}
			}
		}
	}
	return first, second
}

// NumTags returns the tag count.
func (c *PairCRF) NumTags() int { return c.numTags }
