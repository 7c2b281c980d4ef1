// Package stakes classifies a transcript into a LOW, MEDIUM or HIGH stakes
// band from domain keyword matches.
package stakes

import (
	"fmt"
	"math"

	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
)

var (
	highVocab = compile(highDomains)
	lowVocab  = compile(lowDomains)
)

type compiled struct {
	domain
	vocab lexicon.Vocabulary
}

func compile(ds []domain) []compiled {
	out := make([]compiled, len(ds))
	for i, d := range ds {
		out[i] = compiled{domain: d, vocab: lexicon.NewVocabulary(d.terms...)}
	}
	return out
}

// #region classify

// Classify matches text against the HIGH and LOW domain vocabularies. Ties,
// including no matches at all, resolve to MEDIUM.
func Classify(text string) Evidence {
	d := lexicon.NewDoc(lexicon.Normalize(text))
	high, highEv := match(d, highVocab)
	low, lowEv := match(d, lowVocab)

	evidence := append(highEv, lowEv...)
	switch {
	case high == 0 && low == 0:
		return Evidence{Level: Medium, Confidence: 0.5, Evidence: []string{}}
	case high == low:
		return Evidence{Level: Medium, Confidence: 0.4, Evidence: evidence}
	case high > low:
		return Evidence{Level: High, Confidence: confidence(high, low), Evidence: evidence}
	default:
		return Evidence{Level: Low, Confidence: confidence(low, high), Evidence: evidence}
	}
}

// #endregion classify

// #region helpers

func match(d lexicon.Doc, domains []compiled) (int, []string) {
	n := 0
	var ev []string
	for _, c := range domains {
		for _, term := range c.vocab.Present(d) {
			n++
			ev = append(ev, fmt.Sprintf("%s:%s:%s", lowerLevel(c.level), c.name, term))
		}
	}
	return n, ev
}

// confidence grows with the dominant count and shrinks with the share of
// contrary evidence.
func confidence(dominant, other int) float64 {
	base := math.Min(0.95, 0.5+0.15*float64(dominant))
	return base * float64(dominant) / float64(dominant+other)
}

func lowerLevel(l Level) string {
	switch l {
	case High:
		return "high"
	case Low:
		return "low"
	}
	return "medium"
}

// #endregion helpers
