package model

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlance-nlu/parlance/internal/data"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

func testVocabs() Vocabs {
	return Vocabs{
		Words:   vocab.ForWords([]string{"book", "a", "flight", "to", "rome", "cancel", "my"}),
		Slots:   vocab.ForSlots([]string{"O", "B-city", "I-city"}),
		Intents: vocab.ForIntents([]string{"book_flight", "cancel_flight"}),
	}
}

func testConfig() Config {
	return Config{
		InputSteps:    5,
		EmbeddingSize: 8,
		HiddenSize:    6,
	}
}

func testBatch() []*data.Sample {
	return []*data.Sample{
		{
			Words:  []string{"book", "a", "flight", vocab.EOS, vocab.Pad},
			Slots:  []string{"O", "O", "O", vocab.EOS, vocab.Pad},
			Intent: "book_flight",
			Length: 3,
		},
		{
			Words:  []string{"cancel", "my", "flight", "to", "rome"},
			Slots:  []string{"O", "O", "O", "O", "B-city"},
			Intent: "cancel_flight",
			Length: 5,
		},
	}
}

func TestNew_DefaultsApplied(t *testing.T) {
	m, err := New(testConfig(), testVocabs(), nil)
	require.NoError(t, err)

	cfg := m.Config()
	assert.Equal(t, LSTM, cfg.Cell)
	assert.Equal(t, AttendSlots, cfg.Attention)
	assert.Equal(t, WordsFromScratch, cfg.Words)
	assert.InDelta(t, 0.001, cfg.LearningRate, 1e-9)
	assert.InDelta(t, 5, cfg.ClipNorm, 1e-9)
}

func TestNew_ConfigErrors(t *testing.T) {
	base := testConfig()
	for name, mutate := range map[string]func(*Config){
		"zero steps":        func(c *Config) { c.InputSteps = 0 },
		"bad cell":          func(c *Config) { c.Cell = "elman" },
		"bad attention":     func(c *Config) { c.Attention = "everything" },
		"bad combine":       func(c *Config) { c.Combine = "vote" },
		"bad words":         func(c *Config) { c.Words = "word2vec" },
		"multiturn no comb": func(c *Config) { c.MultiTurn = true },
		"comb no multiturn": func(c *Config) { c.Combine = CombineGRU },
	} {
		t.Run(name, func(t *testing.T) {
			cfg := base
			mutate(&cfg)
			_, err := New(cfg, testVocabs(), nil)
			assert.Error(t, err)
		})
	}
}

func TestNew_FixedVectorsRequireLexicon(t *testing.T) {
	cfg := testConfig()
	cfg.Words = WordsFixed
	_, err := New(cfg, testVocabs(), nil)
	assert.ErrorContains(t, err, "lexicon")

	cfg.Words = WordsFineTuned
	_, err = New(cfg, testVocabs(), nil)
	assert.ErrorContains(t, err, "lexicon")
}

func TestNew_MissingVocabulary(t *testing.T) {
	v := testVocabs()
	v.Slots = nil
	_, err := New(testConfig(), v, nil)
	assert.Error(t, err)
}

func TestNew_SlotVocabNeedsOutsideTag(t *testing.T) {
	v := testVocabs()
	v.Slots = vocab.ForSlots([]string{"B-city"})
	_, err := New(testConfig(), v, nil)
	assert.ErrorContains(t, err, `"O"`)
}

func TestNew_SameSeedSameParameters(t *testing.T) {
	m1, err := New(testConfig(), testVocabs(), nil)
	require.NoError(t, err)
	m2, err := New(testConfig(), testVocabs(), nil)
	require.NoError(t, err)

	d1 := m1.store.StateDict()
	d2 := m2.store.StateDict()
	require.Equal(t, len(d1), len(d2))
	for name, vals := range d1 {
		assert.Equal(t, vals, d2[name], name)
	}
}

func TestCheckpoint_RoundTrip(t *testing.T) {
	m, err := New(testConfig(), testVocabs(), nil)
	require.NoError(t, err)

	// a training step gives the optimizer non-trivial state to carry
	_, err = m.Step(Train, testBatch())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, m.Save(path))

	loaded, err := Load(path, nil)
	require.NoError(t, err)

	assert.Equal(t, m.Config(), loaded.Config())
	assert.Equal(t, m.vocabs.Slots.Contents(), loaded.vocabs.Slots.Contents())

	want := m.store.StateDict()
	got := loaded.store.StateDict()
	require.Equal(t, len(want), len(got))
	for name, vals := range want {
		assert.Equal(t, vals, got[name], name)
	}

	// identical parameters must give identical predictions
	r1, err := m.Step(Test, testBatch())
	require.NoError(t, err)
	r2, err := loaded.Step(Test, testBatch())
	require.NoError(t, err)
	assert.Equal(t, r1.Slots, r2.Slots)
	assert.Equal(t, r1.Intents, r2.Intents)
	assert.InDelta(t, r1.Loss, r2.Loss, 1e-6)
}

func TestCheckpoint_LoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.gob"), nil)
	assert.Error(t, err)
}

func TestCheckpoint_ResumedOptimizerMatches(t *testing.T) {
	m, err := New(testConfig(), testVocabs(), nil)
	require.NoError(t, err)
	_, err = m.Step(Train, testBatch())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "model.gob")
	require.NoError(t, m.Save(path))
	loaded, err := Load(path, nil)
	require.NoError(t, err)

	// one more identical training step keeps both models in lockstep
	r1, err := m.Step(Train, testBatch())
	require.NoError(t, err)
	r2, err := loaded.Step(Train, testBatch())
	require.NoError(t, err)
	assert.InDelta(t, r1.Loss, r2.Loss, 1e-5)

	want := m.store.StateDict()
	got := loaded.store.StateDict()
	for name, vals := range want {
		assert.InDeltaSlicef(t, float32sTo64(vals), float32sTo64(got[name]), 1e-6, "parameter %s", name)
	}
}

func float32sTo64(in []float32) []float64 {
	out := make([]float64, len(in))
	for i, v := range in {
		out[i] = float64(v)
	}
	return out
}
