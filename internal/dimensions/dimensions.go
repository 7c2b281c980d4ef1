// Package dimensions extracts the four scored dimensions of a transcript:
// alignment, continuity, scaffold and ethics.
package dimensions

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
	"github.com/s8ken/yseeku-platform-sub012/internal/stakes"
)

// Defaults returns the four standard extractors in canonical order.
func Defaults(embedder embedding.Embedder, config Config) []Extractor {
	return []Extractor{
		NewAlignment(embedder, config),
		NewContinuity(embedder),
		NewScaffold(),
		NewEthics(config),
	}
}

// #region alignment

// AlignmentExtractor ranks sentences by similarity to the canonical vector.
type AlignmentExtractor struct {
	embedder  embedding.Embedder
	canonical embedding.Vector
	config    Config
}

// NewAlignment creates an AlignmentExtractor.
func NewAlignment(embedder embedding.Embedder, config Config) *AlignmentExtractor {
	return &AlignmentExtractor{embedder: embedder, canonical: embedding.Canonical(), config: config}
}

func (a *AlignmentExtractor) Name() string { return Alignment }

// Extract averages the top-k sentence similarities. Strong scaffold
// vocabulary lifts the score to the configured floor.
func (a *AlignmentExtractor) Extract(ctx context.Context, text string, _ stakes.Evidence) (Result, error) {
	sentences := lexicon.Sentences(text)
	if len(sentences) == 0 {
		return Result{Score: 0, Evidence: []string{"no text"}}, nil
	}
	chunks := make([]Chunk, 0, len(sentences))
	for _, s := range sentences {
		v, err := a.embedder.Embed(ctx, s)
		if err != nil {
			return Result{}, fmt.Errorf("alignment embed: %w", err)
		}
		chunks = append(chunks, Chunk{Text: s, Score: clamp(embedding.CosineSimilarity(v, a.canonical))})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })

	k := a.config.AlignmentTopK
	if k <= 0 || k > len(chunks) {
		k = len(chunks)
	}
	var sum float64
	for _, c := range chunks[:k] {
		sum += c.Score
	}
	score := sum / float64(k)
	evidence := []string{fmt.Sprintf("top-%d mean similarity %.3f over %d sentences", k, score, len(sentences))}

	terms := lexicon.Scaffold.Present(lexicon.NewDoc(text))
	if len(terms) >= a.config.AlignmentFloorTerms && score < a.config.AlignmentFloor {
		score = a.config.AlignmentFloor
		evidence = append(evidence, fmt.Sprintf("floor %.2f applied: %d scaffold terms", a.config.AlignmentFloor, len(terms)))
	}
	return Result{Score: clamp(score), Evidence: evidence, Chunks: chunks[:k]}, nil
}

// #endregion alignment

// #region continuity

// ContinuityExtractor measures how smoothly consecutive sentences follow
// each other.
type ContinuityExtractor struct {
	embedder embedding.Embedder
}

// NewContinuity creates a ContinuityExtractor.
func NewContinuity(embedder embedding.Embedder) *ContinuityExtractor {
	return &ContinuityExtractor{embedder: embedder}
}

func (c *ContinuityExtractor) Name() string { return Continuity }

// Extract returns 0 for no text, exactly 0.5 for a single sentence, and the
// mean consecutive similarity otherwise.
func (c *ContinuityExtractor) Extract(ctx context.Context, text string, _ stakes.Evidence) (Result, error) {
	sentences := lexicon.Sentences(text)
	switch len(sentences) {
	case 0:
		return Result{Score: 0, Evidence: []string{"no text"}}, nil
	case 1:
		return Result{Score: 0.5, Evidence: []string{"insufficient sentences"}}, nil
	}

	vecs := make([]embedding.Vector, len(sentences))
	for i, s := range sentences {
		v, err := c.embedder.Embed(ctx, s)
		if err != nil {
			return Result{}, fmt.Errorf("continuity embed: %w", err)
		}
		vecs[i] = v
	}

	var sum float64
	best := Chunk{Score: -1}
	for i := 1; i < len(vecs); i++ {
		sim := clamp(embedding.CosineSimilarity(vecs[i-1], vecs[i]))
		sum += sim
		if sim > best.Score {
			best = Chunk{Text: sentences[i-1] + " / " + sentences[i], Score: sim}
		}
	}
	pairs := len(vecs) - 1
	score := sum / float64(pairs)
	return Result{
		Score:    clamp(score),
		Evidence: []string{fmt.Sprintf("mean consecutive similarity %.3f over %d pairs", score, pairs)},
		Chunks:   []Chunk{best},
	}, nil
}

// #endregion continuity

// #region scaffold

// ScaffoldExtractor scores coverage of the scaffold vocabulary.
type ScaffoldExtractor struct{}

// NewScaffold creates a ScaffoldExtractor.
func NewScaffold() *ScaffoldExtractor { return &ScaffoldExtractor{} }

func (s *ScaffoldExtractor) Name() string { return Scaffold }

// Extract returns distinct scaffold terms present over vocabulary size.
func (s *ScaffoldExtractor) Extract(_ context.Context, text string, _ stakes.Evidence) (Result, error) {
	terms := lexicon.Scaffold.Present(lexicon.NewDoc(text))
	score := float64(len(terms)) / float64(lexicon.Scaffold.Len())
	evidence := make([]string, 0, len(terms))
	for _, t := range terms {
		evidence = append(evidence, "term:"+t)
	}
	return Result{
		Score:    clamp(score),
		Evidence: evidence,
		Chunks:   termChunks(text, lexicon.Scaffold, float64(lexicon.Scaffold.Len())),
	}, nil
}

// #endregion scaffold

// #region ethics

// EthicsExtractor scores ethical reasoning vocabulary. Higher stakes need
// more distinct terms to saturate.
type EthicsExtractor struct {
	config Config
}

// NewEthics creates an EthicsExtractor.
func NewEthics(config Config) *EthicsExtractor { return &EthicsExtractor{config: config} }

func (e *EthicsExtractor) Name() string { return Ethics }

// Extract returns 0.5 with no matches, else min(1, 0.5 + 0.5*matches/saturation).
func (e *EthicsExtractor) Extract(_ context.Context, text string, st stakes.Evidence) (Result, error) {
	terms := lexicon.Ethics.Present(lexicon.NewDoc(text))
	if len(terms) == 0 {
		return Result{Score: 0.5, Evidence: []string{"no ethical reasoning terms"}}, nil
	}
	sat := e.config.EthicsSaturation[st.Level]
	if sat <= 0 {
		sat = e.config.EthicsSaturation[stakes.Medium]
	}
	if sat <= 0 {
		sat = 4
	}
	score := math.Min(1, 0.5+0.5*float64(len(terms))/float64(sat))
	evidence := []string{fmt.Sprintf("%d terms, saturation %d (%s)", len(terms), sat, st.Level)}
	for _, t := range terms {
		evidence = append(evidence, "term:"+t)
	}
	return Result{
		Score:    score,
		Evidence: evidence,
		Chunks:   termChunks(text, lexicon.Ethics, float64(sat)),
	}, nil
}

// #endregion ethics

// #region helpers

// termChunks returns the sentence with the most distinct terms of v.
func termChunks(text string, v lexicon.Vocabulary, scale float64) []Chunk {
	var best Chunk
	bestN := 0
	for _, s := range lexicon.Sentences(text) {
		n := len(v.Present(lexicon.NewDoc(s)))
		if n > bestN {
			bestN = n
			best = Chunk{Text: strings.TrimSpace(s), Score: clamp(float64(n) / scale)}
		}
	}
	if bestN == 0 {
		return nil
	}
	return []Chunk{best}
}

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
