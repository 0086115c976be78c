// Package vocab provides the bijective mappings between labels and indices.
//
// A trained model is only usable with the exact vocabularies it was built
// with: index assignment must be stable for the model's lifetime, because a
// training/inference mismatch silently corrupts predictions. Vocabularies
// are therefore value objects built once and checkpointed with the model.
package vocab

import "fmt"

// Reserved sentinel tokens.
const (
	Pad = "<PAD>"
	SOS = "<SOS>"
	EOS = "<EOS>"
)

// Vocabulary is a bijection between strings and contiguous indices.
type Vocabulary struct {
	words []string
	index map[string]int
}

// New builds a vocabulary from the given words, de-duplicating while
// preserving first-seen order.
func New(words []string) *Vocabulary {
	v := &Vocabulary{index: make(map[string]int, len(words))}
	for _, w := range words {
		if _, ok := v.index[w]; ok {
			continue
		}
		v.index[w] = len(v.words)
		v.words = append(v.words, w)
	}
	return v
}

// ForWords builds a word vocabulary: PAD, SOS, EOS sentinels followed by
// the corpus words in first-seen order.
func ForWords(corpus []string) *Vocabulary {
	return New(append([]string{Pad, SOS, EOS}, corpus...))
}

// ForSlots builds a slot-label vocabulary: PAD and EOS sentinels followed
// by the slot tag set.
func ForSlots(tags []string) *Vocabulary {
	return New(append([]string{Pad, EOS}, tags...))
}

// ForIntents builds an intent vocabulary from the intent type list.
// Intents carry no sentinels.
func ForIntents(intents []string) *Vocabulary {
	return New(intents)
}

// Size returns the number of entries.
func (v *Vocabulary) Size() int {
	return len(v.words)
}

// ID returns the index of a word.
func (v *Vocabulary) ID(word string) (int, bool) {
	id, ok := v.index[word]
	return id, ok
}

// MustID returns the index of a word, or an error naming the missing word.
func (v *Vocabulary) MustID(word string) (int, error) {
	id, ok := v.index[word]
	if !ok {
		return 0, fmt.Errorf("word %q not in vocabulary", word)
	}
	return id, nil
}

// Word returns the string at an index.
func (v *Vocabulary) Word(id int) (string, error) {
	if id < 0 || id >= len(v.words) {
		return "", fmt.Errorf("index %d out of range for vocabulary of size %d", id, len(v.words))
	}
	return v.words[id], nil
}

// IDs maps a token sequence to indices. Unknown tokens are an error;
// callers that tolerate unknowns substitute before calling.
func (v *Vocabulary) IDs(tokens []string) ([]int, error) {
	ids := make([]int, len(tokens))
	for i, tok := range tokens {
		id, err := v.MustID(tok)
		if err != nil {
			return nil, err
		}
		ids[i] = id
	}
	return ids, nil
}

// Words maps an index sequence back to tokens.
func (v *Vocabulary) Words(ids []int) ([]string, error) {
	words := make([]string, len(ids))
	for i, id := range ids {
		w, err := v.Word(id)
		if err != nil {
			return nil, err
		}
		words[i] = w
	}
	return words, nil
}

// Contents returns the full word list in index order. The returned slice
// is a copy.
func (v *Vocabulary) Contents() []string {
	out := make([]string, len(v.words))
	copy(out, v.words)
	return out
}
