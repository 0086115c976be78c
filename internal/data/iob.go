package data

import (
	"fmt"
	"strings"

	"github.com/parlance-nlu/parlance/internal/vocab"
)

// Span is a labeled entity with inclusive word-index boundaries.
type Span struct {
	Label string
	Start int
	End   int
}

// String formats a span as "label:start-end".
func (s Span) String() string {
	return fmt.Sprintf("%s:%d-%d", s.Label, s.Start, s.End)
}

// SpansFromIOB extracts entity spans from an IOB-tagged sequence.
// Sentinel tags (EOS, PAD) are treated as 'O'. An I- tag starting a new
// label run is tolerated and opens a span, matching the lenient
// IOB-to-BILUO conversion the evaluation pipeline uses.
func SpansFromIOB(tags []string) []Span {
	var spans []Span
	openLabel := ""
	openStart := -1
	flush := func(end int) {
		if openLabel != "" {
			spans = append(spans, Span{Label: openLabel, Start: openStart, End: end})
			openLabel = ""
		}
	}
	for i, tag := range tags {
		if tag == vocab.EOS || tag == vocab.Pad {
			tag = "O"
		}
		switch {
		case strings.HasPrefix(tag, "B-"):
			flush(i - 1)
			openLabel = tag[2:]
			openStart = i
		case strings.HasPrefix(tag, "I-"):
			label := tag[2:]
			if openLabel != label {
				flush(i - 1)
				openLabel = label
				openStart = i
			}
		default:
			flush(i - 1)
		}
	}
	flush(len(tags) - 1)
	return spans
}

// SpansFromIOBBatch applies SpansFromIOB to every sequence in a batch and
// formats the results, one "label:start-end" list per sequence.
func SpansFromIOBBatch(batch [][]string) [][]string {
	out := make([][]string, len(batch))
	for i, tags := range batch {
		spans := SpansFromIOB(tags)
		formatted := make([]string, len(spans))
		for j, s := range spans {
			formatted[j] = s.String()
		}
		out[i] = formatted
	}
	return out
}
