// Package data loads and prepares task-oriented dialogue datasets.
//
// Datasets are JSON files holding tokenized utterances with per-token slot
// annotations and an utterance-level intent. This package handles loading
// and fold selection, multi-turn session collapsing, fixed-length padding,
// vocabulary collection, and batching. The model consumes the resulting
// samples without ever touching files.
package data

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/parlance-nlu/parlance/internal/vocab"
)

// Meta describes a dataset's label spaces.
type Meta struct {
	IntentTypes []string `json:"intent_types"`
	SlotTypes   []string `json:"slot_types"`
}

// Sample is one utterance: a word sequence, the matching slot-label
// sequence, the utterance intent, and the true (unpadded) length. In
// multi-turn data the previous turn's intent and the previous bot turn's
// length ride along.
type Sample struct {
	Words          []string `json:"words"`
	Slots          []string `json:"slots"`
	Intent         string   `json:"intent"`
	Length         int      `json:"length"`
	Turn           string   `json:"turn,omitempty"`
	PreviousIntent string   `json:"previous_intent,omitempty"`
	BotTurnLength  int      `json:"bot_turn_actual_length,omitempty"`
}

// Dataset is a flat list of samples plus label-space metadata.
type Dataset struct {
	Meta Meta      `json:"meta"`
	Data []*Sample `json:"data"`
}

// SessionDataset holds multi-turn data before collapsing: each session is
// an alternating list of user ("u") and bot ("b") turns.
type SessionDataset struct {
	Meta     Meta        `json:"meta"`
	Sessions [][]*Sample `json:"data"`
}

// Mode selects which splits Load returns.
type Mode string

const (
	// Measures returns the held-out fold and the training folds.
	Measures Mode = "measures"
	// Runtime merges everything for a final training run.
	Runtime Mode = "runtime"
	// FinalTest returns the final test set against the training folds.
	FinalTest Mode = "finaltest"
)

const finalTestFile = "final_test.json"

// foldNames lists the fold_*.json files in dir, sorted by name.
func foldNames(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading dataset dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), "fold_") && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil, fmt.Errorf("no fold_*.json files in %s", dir)
	}
	return names, nil
}

// LoadFolds reads all fold_*.json files in dir, sorted by name.
func LoadFolds(dir string) ([]*Dataset, error) {
	names, err := foldNames(dir)
	if err != nil {
		return nil, err
	}
	folds := make([]*Dataset, 0, len(names))
	for _, name := range names {
		d, err := readDataset(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		folds = append(folds, d)
	}
	return folds, nil
}

func readDataset(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var d Dataset
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &d, nil
}

// Load returns (test, train) splits for the given mode. Runtime mode has a
// nil test split. An unsupported mode is a configuration error.
func Load(dir string, mode Mode) (test, train *Dataset, err error) {
	folds, err := LoadFolds(dir)
	if err != nil {
		return nil, nil, err
	}
	switch mode {
	case Measures:
		return folds[0], merge(folds[1:]...), nil
	case Runtime:
		all, err := readDataset(filepath.Join(dir, finalTestFile))
		if err != nil {
			return nil, nil, err
		}
		for _, f := range folds {
			all.Data = append(all.Data, f.Data...)
		}
		return nil, all, nil
	case FinalTest:
		final, err := readDataset(filepath.Join(dir, finalTestFile))
		if err != nil {
			// some datasets have no final test set
			return folds[0], merge(folds[1:]...), nil
		}
		return final, merge(folds[1:]...), nil
	default:
		return nil, nil, fmt.Errorf("mode unsupported: %q", mode)
	}
}

func merge(folds ...*Dataset) *Dataset {
	if len(folds) == 0 {
		return &Dataset{}
	}
	out := &Dataset{Meta: folds[0].Meta}
	for _, f := range folds {
		out.Data = append(out.Data, f.Data...)
	}
	return out
}

// AdjustSequences fixes every sample's word and slot sequences to exactly
// length tokens: shorter sequences get an EOS marker and PAD filler, longer
// ones are truncated with EOS forced into the last position. The Length
// field keeps the true token count and is capped at length-1 so the EOS
// always fits.
func AdjustSequences(d *Dataset, length int) {
	for _, s := range d.Data {
		s.Words = adjust(s.Words, length)
		s.Slots = adjust(s.Slots, length)
		if s.Length > length-1 {
			s.Length = length - 1
		}
	}
}

func adjust(seq []string, length int) []string {
	if len(seq) < length {
		seq = append(seq, vocab.EOS)
		for len(seq) < length {
			seq = append(seq, vocab.Pad)
		}
		return seq
	}
	seq = seq[:length]
	seq[length-1] = vocab.EOS
	return seq
}

// Vocabularies collects the word, slot, and intent vocabularies from a
// training split. Word order follows first appearance so index assignment
// is reproducible for a given dataset.
func Vocabularies(train *Dataset) (words, slots, intents *vocab.Vocabulary) {
	var corpus []string
	for _, s := range train.Data {
		corpus = append(corpus, s.Words...)
	}
	return vocab.ForWords(corpus), vocab.ForSlots(train.Meta.SlotTypes), vocab.ForIntents(train.Meta.IntentTypes)
}

// Batches shuffles the samples and splits them into batches of the given
// size. The last batch may be smaller.
func Batches(samples []*Sample, batchSize int, rng *rand.Rand) [][]*Sample {
	if batchSize <= 0 {
		panic(fmt.Sprintf("batch size must be positive, got %d", batchSize))
	}
	shuffled := make([]*Sample, len(samples))
	copy(shuffled, samples)
	rng.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})
	var batches [][]*Sample
	for start := 0; start < len(shuffled); start += batchSize {
		end := start + batchSize
		if end > len(shuffled) {
			end = len(shuffled)
		}
		batches = append(batches, shuffled[start:end])
	}
	return batches
}
