package data

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// CollapseOptions controls how sessions flatten into samples.
type CollapseOptions struct {
	// PrependBotTurn concatenates the preceding bot turn's words and slot
	// annotations in front of each user turn, giving the encoder the
	// system context verbatim.
	PrependBotTurn bool
}

// CollapseSessions flattens multi-turn sessions into a list of user
// utterances, attaching to each the previous turn's intent and the length
// of the preceding bot turn. The first utterance of the corpus has no
// genuine previous intent; it gets the first known intent label as a
// deterministic placeholder, since the intent combiners require a concrete
// previous-intent vector.
func CollapseSessions(sd *SessionDataset, opts CollapseOptions) *Dataset {
	out := &Dataset{Meta: sd.Meta}
	previousIntent := ""
	if len(sd.Meta.IntentTypes) > 0 {
		previousIntent = sd.Meta.IntentTypes[0]
	}
	var botWords, botSlots []string
	for _, session := range sd.Sessions {
		for _, m := range session {
			switch {
			case m.Turn == "b":
				botWords, botSlots = m.Words, m.Slots
			case m.Turn == "u" && m.Length > 0:
				m.PreviousIntent = previousIntent
				m.BotTurnLength = len(botWords)
				if opts.PrependBotTurn {
					m.Words = append(append([]string{}, botWords...), m.Words...)
					m.Slots = append(append([]string{}, botSlots...), m.Slots...)
					m.Length += m.BotTurnLength
				}
				// only user sentences with an intent are trainable
				if m.Intent != "" {
					out.Data = append(out.Data, m)
					previousIntent = m.Intent
				}
			}
		}
	}
	return out
}

func readSessionDataset(path string) (*SessionDataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var sd SessionDataset
	if err := json.Unmarshal(raw, &sd); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return &sd, nil
}

// LoadSessions is the multi-turn counterpart of Load: it reads session
// folds, collapses each into flat samples, and returns (test, train)
// splits for the given mode. Runtime mode has a nil test split.
func LoadSessions(dir string, mode Mode, opts CollapseOptions) (test, train *Dataset, err error) {
	names, err := foldNames(dir)
	if err != nil {
		return nil, nil, err
	}
	folds := make([]*Dataset, 0, len(names))
	for _, name := range names {
		sd, err := readSessionDataset(filepath.Join(dir, name))
		if err != nil {
			return nil, nil, err
		}
		folds = append(folds, CollapseSessions(sd, opts))
	}
	switch mode {
	case Measures:
		return folds[0], merge(folds[1:]...), nil
	case Runtime:
		final, err := readSessionDataset(filepath.Join(dir, finalTestFile))
		if err != nil {
			return nil, nil, err
		}
		all := CollapseSessions(final, opts)
		for _, f := range folds {
			all.Data = append(all.Data, f.Data...)
		}
		return nil, all, nil
	case FinalTest:
		final, err := readSessionDataset(filepath.Join(dir, finalTestFile))
		if err != nil {
			// some datasets have no final test set
			return folds[0], merge(folds[1:]...), nil
		}
		return CollapseSessions(final, opts), merge(folds[1:]...), nil
	default:
		return nil, nil, fmt.Errorf("mode unsupported: %q", mode)
	}
}
