package nn

import (
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/tensor"
)

// Embedding is a trainable lookup table mapping discrete indices to dense
// vectors. Gradients from the forward lookup scatter-add back into the
// table rows that were used.
type Embedding struct {
	weight   *Parameter // [numEmbed, embedDim]
	numEmbed int
	embedDim int
}

// NewEmbedding creates an Embedding with weights drawn from U(-0.1, 0.1)
// and registers the table in the store under name.weight.
func NewEmbedding(store *Store, name string, numEmbed, embedDim int, rng *rand.Rand) *Embedding {
	return &Embedding{
		weight:   store.Register(name+".weight", UniformInit(tensor.Shape{numEmbed, embedDim}, 0.1, rng)),
		numEmbed: numEmbed,
		embedDim: embedDim,
	}
}

// Forward looks up the embedding rows for the given ids, producing
// [len(ids), embedDim]. Panics if any id is outside [0, numEmbed).
func (e *Embedding) Forward(t *autodiff.Tape, ids []int) *tensor.Tensor {
	return t.Rows(e.weight.Tensor(), ids)
}

// Weight returns the embedding table parameter.
func (e *Embedding) Weight() *Parameter { return e.weight }

// NumEmbed returns the table size.
func (e *Embedding) NumEmbed() int { return e.numEmbed }

// Dim returns the embedding dimension.
func (e *Embedding) Dim() int { return e.embedDim }
