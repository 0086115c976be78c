package model

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/parlance-nlu/parlance/internal/embeddings"
	"github.com/parlance-nlu/parlance/internal/vocab"
)

// checkpoint is the serialized form of a trained model. The three
// vocabularies travel with the parameters: reloading against different
// index assignments would silently corrupt every prediction.
type checkpoint struct {
	Config  Config
	Words   []string
	Slots   []string
	Intents []string
	Params  map[string][]float32
	AdamM   map[string][]float64
	AdamV   map[string][]float64
	AdamT   int
}

// Save writes the model, its vocabularies and the optimizer state to path,
// so training can resume exactly where it stopped.
func (m *Model) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("save checkpoint: %w", err)
	}
	defer f.Close()

	am, av, at := m.opt.State()
	ck := checkpoint{
		Config:  m.cfg,
		Words:   m.vocabs.Words.Contents(),
		Slots:   m.vocabs.Slots.Contents(),
		Intents: m.vocabs.Intents.Contents(),
		Params:  m.store.StateDict(),
		AdamM:   am,
		AdamV:   av,
		AdamT:   at,
	}
	if err := gob.NewEncoder(f).Encode(ck); err != nil {
		return fmt.Errorf("save checkpoint %s: %w", path, err)
	}
	return nil
}

// Load rebuilds a model from a checkpoint written by Save. The lexicon is
// required when the stored configuration uses fixed or fine-tuned word
// vectors, exactly as in New.
func Load(path string, lex embeddings.Lexicon) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint: %w", err)
	}
	defer f.Close()

	var ck checkpoint
	if err := gob.NewDecoder(f).Decode(&ck); err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}

	m, err := New(ck.Config, Vocabs{
		Words:   vocab.New(ck.Words),
		Slots:   vocab.New(ck.Slots),
		Intents: vocab.New(ck.Intents),
	}, lex)
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	if err := m.store.LoadStateDict(ck.Params); err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", path, err)
	}
	m.opt.LoadState(ck.AdamM, ck.AdamV, ck.AdamT)
	return m, nil
}
