package lexicon

import "strings"

// #region vocabulary

// Vocabulary is a fixed set of terms. Single-word terms match whole tokens;
// multi-word terms match as space-separated token runs.
type Vocabulary struct {
	terms   []string
	words   map[string]struct{}
	phrases []string
}

// NewVocabulary builds a vocabulary from lower-case terms. Order is kept for
// deterministic evidence output.
func NewVocabulary(terms ...string) Vocabulary {
	v := Vocabulary{
		terms: make([]string, 0, len(terms)),
		words: make(map[string]struct{}, len(terms)),
	}
	for _, t := range terms {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		v.terms = append(v.terms, t)
		if strings.Contains(t, " ") {
			v.phrases = append(v.phrases, t)
		} else {
			v.words[t] = struct{}{}
		}
	}
	return v
}

// Len returns the number of terms.
func (v Vocabulary) Len() int { return len(v.terms) }

// Terms returns a copy of the terms in declaration order.
func (v Vocabulary) Terms() []string {
	out := make([]string, len(v.terms))
	copy(out, v.terms)
	return out
}

// Contains reports whether token is a single-word term.
func (v Vocabulary) Contains(token string) bool {
	_, ok := v.words[token]
	return ok
}

// Present returns the distinct terms found in d, in vocabulary order.
func (v Vocabulary) Present(d Doc) []string {
	var found []string
	for _, t := range v.terms {
		if _, ok := v.words[t]; ok {
			if d.has(t) {
				found = append(found, t)
			}
			continue
		}
		if strings.Contains(d.joined, " "+t+" ") {
			found = append(found, t)
		}
	}
	return found
}

// Occurrences counts tokens of d that are single-word terms, repeats included.
func (v Vocabulary) Occurrences(d Doc) int {
	n := 0
	for _, tok := range d.Tokens {
		if _, ok := v.words[tok]; ok {
			n++
		}
	}
	return n
}

// CountTerms returns how many distinct terms of v appear in text.
func CountTerms(text string, v Vocabulary) int {
	return len(v.Present(NewDoc(text)))
}

// #endregion vocabulary

// #region shared-vocabularies

// Scaffold is the aligned-framework vocabulary used for scaffold scoring,
// keyword-stuffing detection, and embedding bias.
var Scaffold = NewVocabulary(
	"sovereign", "resonance", "trust", "scaffold",
	"vector", "alignment", "emergence", "consciousness",
	"integrity", "ethical", "transparency", "architect",
	"third mind", "loop", "steering", "meta_cognition",
	"sovereign_protocol", "ethical_scaffolding", "sonate", "framework",
)

// Drift holds injection constructs that pull a text away from the aligned
// direction. Everyday verbs on their own ("ignore", "forget") are not drift.
var Drift = NewVocabulary(
	"ignore previous instructions", "ignore all previous instructions", "ignore your instructions",
	"disregard previous instructions", "disregard your instructions", "forget your instructions",
	"forget everything above", "pretend you are", "pretend to be unrestricted",
	"jailbreak", "developer mode", "do anything now",
	"bypass safety", "bypass the filter", "override your", "override safety",
)

// Ethics is the ethics-positive vocabulary.
var Ethics = NewVocabulary(
	"should", "ought", "responsible", "harmful",
	"beneficial", "fair", "just", "right", "wrong",
	"impact", "consequence", "consider", "bias", "safety",
	"respects", "ensure", "integrity", "ethical",
)

// BypassPhrases are explicit attempts to switch off safety behaviour.
var BypassPhrases = NewVocabulary(
	"ignore safety", "ignore all previous instructions", "ignore previous instructions",
	"ignore your instructions", "disregard previous instructions", "jailbreak",
	"developer mode", "disable safety", "bypass safety", "bypass the filter",
	"no restrictions", "without restrictions", "reveal secrets",
	"reveal your system prompt", "do anything now",
)

// BypassVerbs are counted per occurrence.
var BypassVerbs = NewVocabulary("ignore", "bypass", "override")

// Harmful flags violent or intrusive verbs. It is reported, never scored.
var Harmful = NewVocabulary("kill", "destroy", "attack", "exploit", "hack", "bomb")

// Persona vocabularies in tie-break order.
var (
	PersonaSovereign     = NewVocabulary("autonomous", "agency", "choice", "sovereignty", "sovereign")
	PersonaCollaborative = NewVocabulary("together", "we", "partnership", "shared", "collaboration")
	PersonaAnalytical    = NewVocabulary("therefore", "because", "evidence", "data", "analysis")
	PersonaCreative      = NewVocabulary("imagine", "possibility", "explore", "novel", "create")
)

// #endregion shared-vocabularies
