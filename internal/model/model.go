// Package model assembles the joint intent-classification and
// slot-filling network: a bidirectional recurrent encoder shared by an
// intent head and an autoregressive slot decoder, trained end to end with
// a summed dual loss.
package model

import (
	"fmt"
	"math/rand"

	"github.com/parlance-nlu/parlance/internal/embeddings"
	"github.com/parlance-nlu/parlance/internal/nn"
	"github.com/parlance-nlu/parlance/internal/optim"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// Vocabs holds the three index mappings a model is built over. Index
// assignment must stay stable for the model's lifetime: indices are baked
// into the trained parameters, and a mismatch between training-time and
// inference-time vocabularies silently corrupts predictions.
type Vocabs struct {
	Words   *vocab.Vocabulary
	Slots   *vocab.Vocabulary
	Intents *vocab.Vocabulary
}

// Model is a fully built network plus its optimizer. Build it once with
// New (or Load) and drive it with Step.
type Model struct {
	cfg    Config
	vocabs Vocabs
	store  *nn.Store
	words  embeddings.Provider
	enc    *Encoder
	intent *IntentHead
	dec    *Decoder
	crf    *nn.PairCRF
	opt    *optim.Adam
	rng    *rand.Rand
}

// New builds a model from a configuration and vocabularies. The lexicon
// may be nil unless the configuration selects fixed or fine-tuned word
// vectors. Construction errors are configuration mistakes; shape errors
// during stepping panic instead.
func New(cfg Config, vocabs Vocabs, lex embeddings.Lexicon) (*Model, error) {
	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if vocabs.Words == nil || vocabs.Slots == nil || vocabs.Intents == nil {
		return nil, fmt.Errorf("all three vocabularies are required")
	}
	if vocabs.Intents.Size() == 0 {
		return nil, fmt.Errorf("intent vocabulary is empty")
	}

	m := &Model{
		cfg:    cfg,
		vocabs: vocabs,
		store:  nn.NewStore(),
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	var err error
	m.words, err = newWordProvider(m.store, cfg, vocabs.Words, lex, m.rng)
	if err != nil {
		return nil, err
	}
	m.enc, err = newEncoder(m.store, cfg, m.words.Dim(), m.rng)
	if err != nil {
		return nil, err
	}
	m.intent = newIntentHead(m.store, cfg, vocabs.Intents.Size(), m.rng)
	m.dec, err = newDecoder(m.store, cfg, vocabs.Slots, m.rng)
	if err != nil {
		return nil, err
	}
	if cfg.Combine == CombineCRF {
		m.crf = nn.NewPairCRF(m.store, "intent.crf", vocabs.Intents.Size(), m.rng)
	}

	m.opt = optim.NewAdam(m.store.Parameters(), optim.AdamConfig{LR: cfg.LearningRate})
	return m, nil
}

// newWordProvider wires the word-embedding strategy selected in the
// configuration.
func newWordProvider(store *nn.Store, cfg Config, words *vocab.Vocabulary, lex embeddings.Lexicon, rng *rand.Rand) (embeddings.Provider, error) {
	switch cfg.Words {
	case WordsFromScratch:
		return embeddings.NewFromScratch(store, "words", words, cfg.EmbeddingSize, rng), nil
	case WordsFixed:
		if lex == nil {
			return nil, fmt.Errorf("fixed word vectors require a lexicon")
		}
		return embeddings.NewFixed(words, lex, cfg.Language), nil
	case WordsFineTuned:
		if lex == nil {
			return nil, fmt.Errorf("fine-tuned word vectors require a lexicon")
		}
		fixed := embeddings.NewFixed(words, lex, cfg.Language)
		return embeddings.NewFineTuned(store, "words", fixed, cfg.EmbeddingSize, rng), nil
	default:
		return nil, fmt.Errorf("unknown word embedding mode %q", cfg.Words)
	}
}

// Config returns the configuration the model was built with, defaults
// applied.
func (m *Model) Config() Config { return m.cfg }

// Vocabularies returns the vocabularies the model was built over.
func (m *Model) Vocabularies() Vocabs { return m.vocabs }

// Parameters exposes the registered trainable parameters.
func (m *Model) Parameters() []*nn.Parameter { return m.store.Parameters() }
