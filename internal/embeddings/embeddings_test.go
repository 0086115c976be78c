package embeddings_test

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-nlu/parlance/internal/autodiff"
	"github.com/parlance-nlu/parlance/internal/embeddings"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// stubLexicon serves fixed vectors for a handful of words.
type stubLexicon struct {
	vectors map[string][]float32
	dim     int
}

func (l *stubLexicon) Vector(word string) ([]float32, bool) {
	vec, ok := l.vectors[word]
	return vec, ok
}

func (l *stubLexicon) Dim() int { return l.dim }

func testLexicon() *stubLexicon {
	return &stubLexicon{
		dim: 3,
		vectors: map[string][]float32{
			"roma":   {1, 2, 3},
			"milano": {4, 5, 6},
		},
	}
}

func TestFromScratch_EmbedAndLookup(t *testing.T) {
	store := nn.NewStore()
	rng := rand.New(rand.NewSource(1))
	v := vocab.ForWords([]string{"hello", "world"})
	e := embeddings.NewFromScratch(store, "words", v, 4, rng)

	assert.Equal(t, v.Size(), e.VocabSize())
	assert.Equal(t, 4, e.Dim())

	out := e.Embed(autodiff.Inference(), [][]string{{"hello", "world"}})
	require.Len(t, out, 1)
	assert.Equal(t, 2, out[0].Rows())
	assert.Equal(t, 4, out[0].Cols())
}

func TestFromScratch_UnknownWordDegradesToPadRow(t *testing.T) {
	store := nn.NewStore()
	rng := rand.New(rand.NewSource(2))
	v := vocab.ForWords([]string{"known"})
	e := embeddings.NewFromScratch(store, "words", v, 3, rng)

	tp := autodiff.Inference()
	unknown := e.Embed(tp, [][]string{{"never-seen"}})[0]
	padID, _ := v.ID(vocab.Pad)
	pad := e.EmbedIDs(tp, []int{padID})
	assert.Equal(t, pad.Row(0), unknown.Row(0))
}

func TestFromScratch_IDsFromTokensIsStrict(t *testing.T) {
	store := nn.NewStore()
	rng := rand.New(rand.NewSource(3))
	v := vocab.ForWords([]string{"known"})
	e := embeddings.NewFromScratch(store, "words", v, 3, rng)

	_, err := e.IDsFromTokens([]string{"known", "never-seen"})
	assert.Error(t, err)
}

func TestFixed_SentinelVectors(t *testing.T) {
	v := vocab.ForWords([]string{"roma"})
	e := embeddings.NewFixed(v, testLexicon(), "en")

	out := e.Embed(autodiff.Inference(), [][]string{{vocab.EOS, vocab.Pad, "roma"}})[0]
	assert.Equal(t, []float32{1, 1, 1}, out.Row(0))
	assert.Equal(t, []float32{0, 0, 0}, out.Row(1))
	assert.Equal(t, []float32{1, 2, 3}, out.Row(2))
}

func TestFixed_UnknownWordIsZero(t *testing.T) {
	v := vocab.ForWords([]string{"roma"})
	e := embeddings.NewFixed(v, testLexicon(), "en")

	out := e.Embed(autodiff.Inference(), [][]string{{"napoli"}})[0]
	assert.Equal(t, []float32{0, 0, 0}, out.Row(0))
}

func TestFixed_ItalianPunctuationPlaceholders(t *testing.T) {
	v := vocab.ForWords([]string{"roma"})
	it := embeddings.NewFixed(v, testLexicon(), "it")
	en := embeddings.NewFixed(v, testLexicon(), "en")

	tp := autodiff.Inference()
	dot := it.Embed(tp, [][]string{{"."}})[0]
	comma := it.Embed(tp, [][]string{{","}})[0]
	// distinct marks get distinct deterministic vectors
	assert.NotEqual(t, dot.Row(0), comma.Row(0))
	assert.Equal(t, []float32{2, 2, 2}, dot.Row(0))

	// outside Italian the punctuation fallback does not apply
	enDot := en.Embed(tp, [][]string{{"."}})[0]
	assert.Equal(t, []float32{0, 0, 0}, enDot.Row(0))
}

func TestFixed_Dim(t *testing.T) {
	v := vocab.ForWords(nil)
	e := embeddings.NewFixed(v, testLexicon(), "en")
	assert.Equal(t, 3, e.Dim())
}

func TestFineTuned_ProjectsToConfiguredWidth(t *testing.T) {
	store := nn.NewStore()
	rng := rand.New(rand.NewSource(4))
	v := vocab.ForWords([]string{"roma", "milano"})
	fixed := embeddings.NewFixed(v, testLexicon(), "en")
	e := embeddings.NewFineTuned(store, "words", fixed, 5, rng)

	assert.Equal(t, 5, e.Dim())
	out := e.Embed(autodiff.Inference(), [][]string{{"roma", "milano"}})[0]
	assert.Equal(t, 2, out.Rows())
	assert.Equal(t, 5, out.Cols())
}

func TestFineTuned_ProjectionIsTrainable(t *testing.T) {
	store := nn.NewStore()
	rng := rand.New(rand.NewSource(5))
	v := vocab.ForWords([]string{"roma"})
	fixed := embeddings.NewFixed(v, testLexicon(), "en")
	e := embeddings.NewFineTuned(store, "words", fixed, 4, rng)

	tp := autodiff.New()
	out := e.Embed(tp, [][]string{{"roma"}})[0]
	for i := range out.Grad() {
		out.Grad()[i] = 1
	}
	tp.Backward()

	w, ok := store.Get("words.weight")
	require.True(t, ok)
	var sum float32
	for _, g := range w.Tensor().Grad() {
		if g < 0 {
			g = -g
		}
		sum += g
	}
	assert.NotZero(t, sum)
}
