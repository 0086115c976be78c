package model

import "fmt"

// CellKind selects the recurrent cell used by the encoder and decoder.
type CellKind string

// Supported recurrent cells.
const (
	LSTM CellKind = "lstm"
	GRU  CellKind = "gru"
)

// AttentionTarget selects which heads condition on attention over the
// encoder outputs.
type AttentionTarget string

// Supported attention targets.
const (
	AttendNone    AttentionTarget = "none"
	AttendSlots   AttentionTarget = "slots"
	AttendIntents AttentionTarget = "intents"
	AttendBoth    AttentionTarget = "both"
)

// CombineStrategy selects how the previous turn's intent folds into the
// current intent distribution.
type CombineStrategy string

// Supported intent-combination strategies.
const (
	CombineNone CombineStrategy = "none"
	CombineGRU  CombineStrategy = "gru"
	CombineLSTM CombineStrategy = "lstm"
	CombineCRF  CombineStrategy = "crf"
)

// WordVectors selects the word-embedding provider.
type WordVectors string

// Supported word-embedding modes.
const (
	WordsFromScratch WordVectors = "scratch"
	WordsFixed       WordVectors = "fixed"
	WordsFineTuned   WordVectors = "finetune"
)

// Config fully describes one model build. A single parameterized model
// replaces separate single-turn and multi-turn variants: every axis of the
// architecture (cell kind, attention target, multi-turn carry, combination
// strategy, embedding mode) is an explicit field.
type Config struct {
	// InputSteps is the padded sequence length L. Every sample's word and
	// slot sequences must have exactly this length.
	InputSteps int
	// EmbeddingSize is the width of the trainable slot/word tables.
	EmbeddingSize int
	// HiddenSize is the per-direction encoder width H. Encoder outputs and
	// the decoder hidden state are 2H wide.
	HiddenSize int

	Cell      CellKind
	Attention AttentionTarget
	// MultiTurn enables the previous-intent carry. It must agree with
	// Combine: a combiner without multi-turn data (or vice versa) is a
	// configuration error.
	MultiTurn bool
	Combine   CombineStrategy
	Words     WordVectors
	// Language tunes the fixed-embedding fallback rules ("en", "it", ...).
	Language string

	LearningRate float64
	// ClipNorm is the global-norm gradient clipping threshold.
	ClipNorm float64
	Seed     int64
}

// withDefaults fills zero-valued fields with the standard settings.
func (c Config) withDefaults() Config {
	if c.Cell == "" {
		c.Cell = LSTM
	}
	if c.Attention == "" {
		c.Attention = AttendSlots
	}
	if c.Combine == "" {
		c.Combine = CombineNone
	}
	if c.Words == "" {
		c.Words = WordsFromScratch
	}
	if c.Language == "" {
		c.Language = "en"
	}
	if c.LearningRate == 0 {
		c.LearningRate = 0.001
	}
	if c.ClipNorm == 0 {
		c.ClipNorm = 5
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
	return c
}

// validate rejects configuration mistakes. These are fatal: they represent
// programmer or deployment errors, not runtime conditions to recover from.
func (c Config) validate() error {
	if c.InputSteps <= 0 {
		return fmt.Errorf("input steps must be positive, got %d", c.InputSteps)
	}
	if c.EmbeddingSize <= 0 {
		return fmt.Errorf("embedding size must be positive, got %d", c.EmbeddingSize)
	}
	if c.HiddenSize <= 0 {
		return fmt.Errorf("hidden size must be positive, got %d", c.HiddenSize)
	}
	switch c.Cell {
	case LSTM, GRU:
	default:
		return fmt.Errorf("unknown recurrent cell type %q", c.Cell)
	}
	switch c.Attention {
	case AttendNone, AttendSlots, AttendIntents, AttendBoth:
	default:
		return fmt.Errorf("unknown attention target %q", c.Attention)
	}
	switch c.Combine {
	case CombineNone, CombineGRU, CombineLSTM, CombineCRF:
	default:
		return fmt.Errorf("unknown intent combination strategy %q", c.Combine)
	}
	switch c.Words {
	case WordsFromScratch, WordsFixed, WordsFineTuned:
	default:
		return fmt.Errorf("unknown word embedding mode %q", c.Words)
	}
	if c.MultiTurn && c.Combine == CombineNone {
		return fmt.Errorf("multi-turn mode requires an intent combination strategy")
	}
	if !c.MultiTurn && c.Combine != CombineNone {
		return fmt.Errorf("intent combination strategy %q requires multi-turn mode", c.Combine)
	}
	return nil
}
