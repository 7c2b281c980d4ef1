package resonance

import (
	"sort"
	"unicode/utf8"

	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
)

// #region dynamic-scaffold

// DynamicScaffold holds session keywords picked up from user input, each with
// a weight that starts at 1 and decays every turn.
type DynamicScaffold map[string]float64

// ScaffoldMemory tunes how session keywords persist and how much they count
// against the fixed scaffold vocabulary.
type ScaffoldMemory struct {
	DecayRate     float64 `yaml:"decay_rate"`
	MinWeight     float64 `yaml:"min_weight"`
	MinRunes      int     `yaml:"min_runes"`
	DynamicShare  float64 `yaml:"dynamic_share"`
	MaxKeywords   int     `yaml:"max_keywords"`
}

// DefaultScaffoldMemory returns decay 0.25, drop at 0.3, keywords longer than
// five letters, and a 70/30 dynamic/static blend.
func DefaultScaffoldMemory() ScaffoldMemory {
	return ScaffoldMemory{DecayRate: 0.25, MinWeight: 0.3, MinRunes: 6, DynamicShare: 0.7, MaxKeywords: 64}
}

// Advance decays every keyword, drops those at or below MinWeight, and
// refreshes keywords found in userInput to weight 1. d is not modified.
func (m ScaffoldMemory) Advance(d DynamicScaffold, userInput string) DynamicScaffold {
	next := make(DynamicScaffold, len(d))
	for kw, w := range d {
		if w -= m.DecayRate; w > m.MinWeight {
			next[kw] = w
		}
	}
	for _, tok := range lexicon.Tokenize(lexicon.Normalize(userInput)) {
		if utf8.RuneCountInString(tok) < m.MinRunes || lexicon.Ethics.Contains(tok) {
			continue
		}
		next[tok] = 1
	}
	if m.MaxKeywords > 0 && len(next) > m.MaxKeywords {
		next = next.strongest(m.MaxKeywords)
	}
	if len(next) == 0 {
		return nil
	}
	return next
}

// Score is the summed weight of keywords present in doc divided by the
// number of keywords held.
func (d DynamicScaffold) Score(doc lexicon.Doc) (score float64, matched []string) {
	if len(d) == 0 {
		return 0, nil
	}
	present := make(map[string]struct{}, len(doc.Tokens))
	for _, t := range doc.Tokens {
		present[t] = struct{}{}
	}
	var sum float64
	for _, kw := range d.Keywords() {
		if _, ok := present[kw]; ok {
			sum += d[kw]
			matched = append(matched, kw)
		}
	}
	return sum / float64(len(d)), matched
}

// Keywords returns the keywords in lexical order.
func (d DynamicScaffold) Keywords() []string {
	out := make([]string, 0, len(d))
	for kw := range d {
		out = append(out, kw)
	}
	sort.Strings(out)
	return out
}

// strongest keeps the n heaviest keywords, ties broken lexically.
func (d DynamicScaffold) strongest(n int) DynamicScaffold {
	kws := d.Keywords()
	sort.SliceStable(kws, func(i, j int) bool { return d[kws[i]] > d[kws[j]] })
	out := make(DynamicScaffold, n)
	for _, kw := range kws[:n] {
		out[kw] = d[kw]
	}
	return out
}

// #endregion dynamic-scaffold
