package data

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// Tokenizer splits raw utterance text into the word tokens the model
// consumes.
type Tokenizer interface {
	Tokenize(text string) []string
}

// SpaceTokenizer splits on whitespace. The default for datasets that ship
// pre-tokenized text.
type SpaceTokenizer struct{}

// Tokenize implements Tokenizer.
func (SpaceTokenizer) Tokenize(text string) []string {
	return strings.Fields(text)
}

// BPETokenizer splits text into byte-pair-encoding subword units. Useful
// for languages without reliable whitespace tokenization.
type BPETokenizer struct {
	enc *tiktoken.Tiktoken
}

// NewBPETokenizer creates a BPE tokenizer for a named encoding
// (e.g. "cl100k_base").
func NewBPETokenizer(encoding string) (*BPETokenizer, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, fmt.Errorf("loading BPE encoding %q: %w", encoding, err)
	}
	return &BPETokenizer{enc: enc}, nil
}

// Tokenize implements Tokenizer. Each subword unit becomes one token;
// leading space markers are trimmed so tokens line up with slot
// annotations.
func (t *BPETokenizer) Tokenize(text string) []string {
	ids := t.enc.Encode(text, nil, nil)
	tokens := make([]string, 0, len(ids))
	for _, id := range ids {
		tok := strings.TrimSpace(t.enc.Decode([]int{id}))
		if tok != "" {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}
