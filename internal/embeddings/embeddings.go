// Package embeddings provides the word-embedding strategies the model
// selects between at build time.
//
// Three providers share one capability set:
//   - FromScratch: a trainable lookup table, updated by the optimizer
//   - Fixed: externally supplied lexical vectors, read-only in training
//   - FineTuned: fixed vectors passed through a trainable linear projection
//
// The external lexical-vector source is abstracted behind the Lexicon
// interface; dataset-specific wiring (word-vector files, tokenizers) stays
// outside this package.
package embeddings

import (
	"math/rand"
	"strings"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/tensor"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// Lexicon is the external lexical-vector collaborator. Given a raw word it
// returns a fixed-size context vector, or reports that none is known.
type Lexicon interface {
	Vector(word string) ([]float32, bool)
	Dim() int
}

// Provider converts between tokens, indices, and dense vectors.
// Implementations differ in whether the lookup participates in parameter
// updates.
type Provider interface {
	// Embed converts a time-major token batch words[t][b] into one
	// [batch, Dim] tensor per timestep.
	Embed(t *autodiff.Tape, words [][]string) []*tensor.Tensor
	// EmbedIDs embeds a batch of vocabulary indices as [len(ids), Dim].
	EmbedIDs(t *autodiff.Tape, ids []int) *tensor.Tensor
	// IDsFromTokens maps tokens to vocabulary indices. Unknown tokens are
	// an error: indices feed losses, where a silent substitute would
	// corrupt training.
	IDsFromTokens(tokens []string) ([]int, error)
	// WordsFromIDs maps vocabulary indices back to tokens.
	WordsFromIDs(ids []int) ([]string, error)
	// VocabSize returns the vocabulary size.
	VocabSize() int
	// Dim returns the embedding width.
	Dim() int
}

// FromScratch is a trainable embedding table over a vocabulary.
// Unknown tokens degrade to the PAD row during embedding (but remain an
// error in IDsFromTokens, which feeds loss targets).
type FromScratch struct {
	vocab *vocab.Vocabulary
	table *nn.Embedding
}

// NewFromScratch creates a trainable table of the given width, registered
// in the store under name.weight.
func NewFromScratch(store *nn.Store, name string, v *vocab.Vocabulary, dim int, rng *rand.Rand) *FromScratch {
	return &FromScratch{
		vocab: v,
		table: nn.NewEmbedding(store, name, v.Size(), dim, rng),
	}
}

// Embed implements Provider.
func (e *FromScratch) Embed(t *autodiff.Tape, words [][]string) []*tensor.Tensor {
	out := make([]*tensor.Tensor, len(words))
	for ts, row := range words {
		ids := make([]int, len(row))
		for b, w := range row {
			id, ok := e.vocab.ID(w)
			if !ok {
				id, _ = e.vocab.ID(vocab.Pad)
			}
			ids[b] = id
		}
		out[ts] = e.table.Forward(t, ids)
	}
	return out
}

// EmbedIDs implements Provider.
func (e *FromScratch) EmbedIDs(t *autodiff.Tape, ids []int) *tensor.Tensor {
	return e.table.Forward(t, ids)
}

// IDsFromTokens implements Provider.
func (e *FromScratch) IDsFromTokens(tokens []string) ([]int, error) {
	return e.vocab.IDs(tokens)
}

// WordsFromIDs implements Provider.
func (e *FromScratch) WordsFromIDs(ids []int) ([]string, error) {
	return e.vocab.Words(ids)
}

// VocabSize implements Provider.
func (e *FromScratch) VocabSize() int { return e.vocab.Size() }

// Dim implements Provider.
func (e *FromScratch) Dim() int { return e.table.Dim() }

// Vocabulary returns the underlying vocabulary.
func (e *FromScratch) Vocabulary() *vocab.Vocabulary { return e.vocab }

// punctuation marks that receive a deterministic placeholder vector when
// the Italian lexicon has no entry for them.
const punctuation = `.?!,;:-_()[]{}'`

// Fixed embeds words through an external lexicon. The vectors never change
// during training. Sentinels get deterministic values: the EOS position is
// a ones vector, PAD positions are zero vectors. A word the lexicon does
// not know degrades to a zero vector, except punctuation in Italian, which
// maps to a small deterministic placeholder so distinct marks stay
// distinguishable.
type Fixed struct {
	vocab    *vocab.Vocabulary
	lexicon  Lexicon
	language string
}

// NewFixed creates a fixed provider over the given lexicon.
func NewFixed(v *vocab.Vocabulary, lex Lexicon, language string) *Fixed {
	return &Fixed{vocab: v, lexicon: lex, language: language}
}

// vector resolves a single word to its lexical vector.
func (e *Fixed) vector(word string) []float32 {
	dim := e.lexicon.Dim()
	switch word {
	case vocab.EOS:
		ones := make([]float32, dim)
		for i := range ones {
			ones[i] = 1
		}
		return ones
	case vocab.Pad:
		return make([]float32, dim)
	}
	if vec, ok := e.lexicon.Vector(word); ok {
		return vec
	}
	if e.language == "it" && len(word) > 0 && strings.Contains(punctuation, word) {
		idx := strings.Index(punctuation, word)
		placeholder := make([]float32, dim)
		for i := range placeholder {
			placeholder[i] = float32(idx + 2)
		}
		return placeholder
	}
	return make([]float32, dim)
}

// Embed implements Provider. The produced tensors are constants: no
// gradient flows into the lexicon.
func (e *Fixed) Embed(t *autodiff.Tape, words [][]string) []*tensor.Tensor {
	dim := e.lexicon.Dim()
	out := make([]*tensor.Tensor, len(words))
	for ts, row := range words {
		m := tensor.New(tensor.Shape{len(row), dim})
		data := m.Data()
		for b, w := range row {
			copy(data[b*dim:(b+1)*dim], e.vector(w))
		}
		out[ts] = m
	}
	return out
}

// EmbedIDs implements Provider.
func (e *Fixed) EmbedIDs(t *autodiff.Tape, ids []int) *tensor.Tensor {
	words, err := e.vocab.Words(ids)
	if err != nil {
		panic(err.Error())
	}
	return e.Embed(t, [][]string{words})[0]
}

// IDsFromTokens implements Provider.
func (e *Fixed) IDsFromTokens(tokens []string) ([]int, error) {
	return e.vocab.IDs(tokens)
}

// WordsFromIDs implements Provider.
func (e *Fixed) WordsFromIDs(ids []int) ([]string, error) {
	return e.vocab.Words(ids)
}

// VocabSize implements Provider.
func (e *Fixed) VocabSize() int { return e.vocab.Size() }

// Dim implements Provider.
func (e *Fixed) Dim() int { return e.lexicon.Dim() }

// FineTuned embeds through a fixed lexicon and then a trainable linear
// projection, letting training adapt pretrained vectors without mutating
// the lexicon itself.
type FineTuned struct {
	fixed *Fixed
	proj  *nn.Linear
}

// NewFineTuned wraps a fixed provider with a trainable projection to
// outDim, registered in the store under the given name.
func NewFineTuned(store *nn.Store, name string, fixed *Fixed, outDim int, rng *rand.Rand) *FineTuned {
	return &FineTuned{
		fixed: fixed,
		proj:  nn.NewLinear(store, name, fixed.Dim(), outDim, rng),
	}
}

// Embed implements Provider.
func (e *FineTuned) Embed(t *autodiff.Tape, words [][]string) []*tensor.Tensor {
	raw := e.fixed.Embed(t, words)
	out := make([]*tensor.Tensor, len(raw))
	for i, m := range raw {
		out[i] = e.proj.Forward(t, m)
	}
	return out
}

// EmbedIDs implements Provider.
func (e *FineTuned) EmbedIDs(t *autodiff.Tape, ids []int) *tensor.Tensor {
	return e.proj.Forward(t, e.fixed.EmbedIDs(t, ids))
}

// IDsFromTokens implements Provider.
func (e *FineTuned) IDsFromTokens(tokens []string) ([]int, error) {
	return e.fixed.IDsFromTokens(tokens)
}

// WordsFromIDs implements Provider.
func (e *FineTuned) WordsFromIDs(ids []int) ([]string, error) {
	return e.fixed.WordsFromIDs(ids)
}

// VocabSize implements Provider.
func (e *FineTuned) VocabSize() int { return e.fixed.VocabSize() }

// Dim implements Provider.
func (e *FineTuned) Dim() int { return e.proj.OutFeatures() }
