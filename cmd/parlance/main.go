// Command parlance trains and evaluates the joint intent and slot-filling
// model on folded JSON datasets.
package main

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"

	arg "github.com/alexflint/go-arg"
	"github.com/rs/zerolog"

	"github.com/parlance-nlu/parlance/internal/data"
	"github.com/parlance-nlu/parlance/internal/embeddings"
	"github.com/parlance-nlu/parlance/internal/model"
)

type args struct {
	Data string `arg:"positional,required" help:"directory with fold_*.json files"`
	Mode string `arg:"--mode" default:"measures" help:"fold split: measures, runtime or finaltest"`

	Epochs    int `arg:"--epochs" default:"10" help:"training epochs"`
	BatchSize int `arg:"--batch" default:"16" help:"training batch size"`

	Steps     int     `arg:"--steps" default:"50" help:"padded sequence length"`
	Embedding int     `arg:"--embedding" default:"64" help:"embedding width"`
	Hidden    int     `arg:"--hidden" default:"100" help:"per-direction encoder width"`
	Cell      string  `arg:"--cell" default:"lstm" help:"recurrent cell: lstm or gru"`
	Attention string  `arg:"--attention" default:"slots" help:"attention target: none, slots, intents or both"`
	MultiTurn bool    `arg:"--multi-turn" help:"carry the previous turn's intent across utterances"`
	Combine   string  `arg:"--combine" help:"intent combination: gru, lstm or crf (multi-turn only)"`
	Words     string  `arg:"--words" default:"scratch" help:"word vectors: scratch, fixed or finetune"`
	Lexicon   string  `arg:"--lexicon" help:"JSON word-vector file, required for fixed or finetune vectors"`
	Language  string  `arg:"--language" default:"en" help:"dataset language"`
	LR        float64 `arg:"--lr" default:"0.001" help:"Adam learning rate"`
	Clip      float64 `arg:"--clip" default:"5" help:"gradient clipping norm"`
	Seed      int64   `arg:"--seed" default:"1" help:"random seed"`

	PrependBot bool   `arg:"--prepend-bot" help:"prefix each user turn with the preceding bot turn"`
	Checkpoint string `arg:"--checkpoint" help:"path to write the trained model"`
	Resume     string `arg:"--resume" help:"checkpoint to resume training from"`
	Quiet      bool   `arg:"--quiet" help:"log warnings and errors only"`
}

func (args) Description() string {
	return "joint intent-classification and slot-filling trainer"
}

func main() {
	var a args
	arg.MustParse(&a)

	level := zerolog.InfoLevel
	if a.Quiet {
		level = zerolog.WarnLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).With().Timestamp().Logger()

	if err := run(a, log); err != nil {
		log.Fatal().Err(err).Msg("run failed")
	}
}

func run(a args, log zerolog.Logger) error {
	cfg := model.Config{
		InputSteps:    a.Steps,
		EmbeddingSize: a.Embedding,
		HiddenSize:    a.Hidden,
		Cell:          model.CellKind(a.Cell),
		Attention:     model.AttentionTarget(a.Attention),
		MultiTurn:     a.MultiTurn,
		Combine:       model.CombineStrategy(a.Combine),
		Words:         model.WordVectors(a.Words),
		Language:      a.Language,
		LearningRate:  a.LR,
		ClipNorm:      a.Clip,
		Seed:          a.Seed,
	}

	var test, train *data.Dataset
	var err error
	if a.MultiTurn {
		test, train, err = data.LoadSessions(a.Data, data.Mode(a.Mode), data.CollapseOptions{PrependBotTurn: a.PrependBot})
	} else {
		test, train, err = data.Load(a.Data, data.Mode(a.Mode))
	}
	if err != nil {
		return err
	}
	data.AdjustSequences(train, a.Steps)
	if test != nil {
		data.AdjustSequences(test, a.Steps)
	}
	log.Info().Int("train", len(train.Data)).
		Int("test", testSize(test)).
		Str("mode", a.Mode).
		Msg("dataset loaded")

	var lex embeddings.Lexicon
	if a.Lexicon != "" {
		lex, err = loadLexicon(a.Lexicon)
		if err != nil {
			return err
		}
	}

	var m *model.Model
	if a.Resume != "" {
		m, err = model.Load(a.Resume, lex)
		if err != nil {
			return err
		}
		log.Info().Str("checkpoint", a.Resume).Msg("resumed")
	} else {
		words, slots, intents := data.Vocabularies(train)
		m, err = model.New(cfg, model.Vocabs{Words: words, Slots: slots, Intents: intents}, lex)
		if err != nil {
			return err
		}
		log.Info().
			Int("words", words.Size()).
			Int("slots", slots.Size()).
			Int("intents", intents.Size()).
			Msg("model built")
	}

	rng := rand.New(rand.NewSource(a.Seed))
	for epoch := 1; epoch <= a.Epochs; epoch++ {
		var epochLoss float64
		batches := data.Batches(train.Data, a.BatchSize, rng)
		for _, batch := range batches {
			res, err := m.Step(model.Train, batch)
			if err != nil {
				return fmt.Errorf("epoch %d: %w", epoch, err)
			}
			epochLoss += res.Loss
		}
		ev := log.Info().Int("epoch", epoch).
			Float64("loss", epochLoss/float64(len(batches)))
		if test != nil {
			acc, f1, err := evaluate(m, test, a.BatchSize)
			if err != nil {
				return fmt.Errorf("epoch %d eval: %w", epoch, err)
			}
			ev = ev.Float64("intent_acc", acc).Float64("slot_f1", f1)
		}
		ev.Msg("epoch done")
	}

	if a.Checkpoint != "" {
		if err := m.Save(a.Checkpoint); err != nil {
			return err
		}
		log.Info().Str("checkpoint", a.Checkpoint).Msg("model saved")
	}
	return nil
}

func testSize(d *data.Dataset) int {
	if d == nil {
		return 0
	}
	return len(d.Data)
}

// evaluate runs the test split and reports intent accuracy and span-level
// slot F1.
func evaluate(m *model.Model, test *data.Dataset, batchSize int) (acc, f1 float64, err error) {
	var intentHits, total int
	var tp, fp, fn int
	for start := 0; start < len(test.Data); start += batchSize {
		end := start + batchSize
		if end > len(test.Data) {
			end = len(test.Data)
		}
		batch := test.Data[start:end]
		res, err := m.Step(model.Test, batch)
		if err != nil {
			return 0, 0, err
		}
		for b, s := range batch {
			total++
			if res.Intents[b] == s.Intent {
				intentHits++
			}
			gold := spanSet(s.Slots[:s.Length])
			pred := spanSet(res.Slots[b][:s.Length])
			for span := range pred {
				if gold[span] {
					tp++
				} else {
					fp++
				}
			}
			for span := range gold {
				if !pred[span] {
					fn++
				}
			}
		}
	}
	if total > 0 {
		acc = float64(intentHits) / float64(total)
	}
	if 2*tp+fp+fn > 0 {
		f1 = 2 * float64(tp) / float64(2*tp+fp+fn)
	}
	return acc, f1, nil
}

func spanSet(tags []string) map[string]bool {
	set := make(map[string]bool)
	for _, span := range data.SpansFromIOB(tags) {
		set[span.String()] = true
	}
	return set
}

// mapLexicon serves word vectors from an in-memory map loaded off disk.
type mapLexicon struct {
	vectors map[string][]float32
	dim     int
}

func (l *mapLexicon) Vector(word string) ([]float32, bool) {
	vec, ok := l.vectors[word]
	return vec, ok
}

func (l *mapLexicon) Dim() int { return l.dim }

// loadLexicon reads a JSON object mapping words to equal-length vectors.
func loadLexicon(path string) (embeddings.Lexicon, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading lexicon: %w", err)
	}
	vectors := make(map[string][]float32)
	if err := json.Unmarshal(raw, &vectors); err != nil {
		return nil, fmt.Errorf("parsing lexicon %s: %w", path, err)
	}
	dim := 0
	for word, vec := range vectors {
		if dim == 0 {
			dim = len(vec)
		}
		if len(vec) == 0 || len(vec) != dim {
			return nil, fmt.Errorf("lexicon %s: word %q has %d dimensions, want %d", path, word, len(vec), dim)
		}
	}
	if dim == 0 {
		return nil, fmt.Errorf("lexicon %s is empty", path)
	}
	return &mapLexicon{vectors: vectors, dim: dim}, nil
}
