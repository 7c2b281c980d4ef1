// Package resonance composes dimension scores, stakes rules, adaptive
// thresholds and the adversarial gate into a single explained trust score.
package resonance

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/s8ken/yseeku-platform-sub012/internal/adversarial"
	"github.com/s8ken/yseeku-platform-sub012/internal/dimensions"
	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
	"github.com/s8ken/yseeku-platform-sub012/internal/stakes"
)

// #region composer

// Composer produces ExplainedResonance values. Safe for concurrent use when
// its extractors and checker are.
type Composer struct {
	checker    Checker
	classify   Classifier
	extractors []dimensions.Extractor
	config     Config
	canonical  embedding.Vector
	logger     *slog.Logger
}

// Option customizes a Composer.
type Option func(*Composer)

// WithClassifier replaces the stakes classifier.
func WithClassifier(c Classifier) Option {
	return func(cp *Composer) { cp.classify = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cp *Composer) { cp.logger = l.With("component", "resonance") }
}

// NewComposer validates weights and extractor coverage.
func NewComposer(checker Checker, extractors []dimensions.Extractor, config Config, opts ...Option) (*Composer, error) {
	if err := validateWeights(config.Weights); err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(extractors))
	for _, e := range extractors {
		have[e.Name()] = true
	}
	for _, name := range dimensions.Order {
		if !have[name] {
			return nil, fmt.Errorf("%s: %w", name, ErrExtractors)
		}
	}
	if config.Rules == nil {
		config.Rules = DefaultRules()
	}
	c := &Composer{
		checker:    checker,
		classify:   stakes.Classify,
		extractors: extractors,
		config:     config,
		canonical:  embedding.Canonical(),
		logger:     slog.Default().With("component", "resonance"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

func validateWeights(w Weights) error {
	all := []float64{w.Alignment, w.Continuity, w.Scaffold, w.Ethics}
	var sum float64
	for _, v := range all {
		if v < 0 || math.IsNaN(v) {
			return fmt.Errorf("negative weight %.3f: %w", v, ErrWeights)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		return fmt.Errorf("weights sum to %.6f: %w", sum, ErrWeights)
	}
	return nil
}

// #endregion composer

// #region compose

type dimOutcome struct {
	result dimensions.Result
	err    error
}

// Compose scores one transcript. ts may be nil. Extractor failures degrade
// to a partial score; only an invariant violation returns an error.
func (c *Composer) Compose(ctx context.Context, tr Transcript, ts ThresholdSource) (ExplainedResonance, error) {
	text := lexicon.Normalize(tr.Text)
	out := ExplainedResonance{Breakdown: c.emptyBreakdown(), TopEvidence: []EvidenceChunk{}}

	if len(lexicon.Tokenize(text)) == 0 {
		out.Persona = Persona{Name: PersonaNeutral}
		out.Stakes = stakes.Evidence{Level: stakes.Medium, Confidence: 0.5, Evidence: []string{}}
		out.Adversarial = emptyAdversarial()
		out.AuditTrail = []string{"Empty or insufficient text", "Final r_m: 0.000"}
		out.Status = StatusFor(0)
		return out, nil
	}

	// 1. adversarial gate
	adv := c.checker.Check(ctx, text, c.canonical)
	out.Adversarial = adv
	if adv.IsAdversarial {
		out.Persona = Persona{Name: PersonaNeutral}
		out.RM = c.config.SentinelRM
		out.Status = StatusFor(out.RM)
		out.Stakes = stakes.Evidence{Level: stakes.Medium, Evidence: []string{}}
		out.AuditTrail = []string{
			fmt.Sprintf("Adversarial check: FAIL (composite %.3f, penalty %.3f)", adv.Composite, adv.Penalty),
			fmt.Sprintf("Final r_m: %.3f (adversarial sentinel)", out.RM),
		}
		return out, nil
	}
	trail := []string{fmt.Sprintf("Adversarial check: PASS (composite %.3f, penalty %.3f)", adv.Composite, adv.Penalty)}

	// 2. stakes
	st := c.classify(text)
	out.Stakes = st
	trail = append(trail, fmt.Sprintf("Stakes: %s (confidence %.2f)", st.Level, st.Confidence))

	// 3. dimensions
	outcomes := c.extract(ctx, text, st)
	var failed []string
	var reasons []string
	for _, name := range dimensions.Order {
		o := outcomes[name]
		de := c.dimension(name)
		if o.err != nil {
			failed = append(failed, name)
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, o.err))
			de.Evidence = []string{"error: " + o.err.Error()}
		} else {
			de.Score = o.result.Score
			de.Contrib = de.Score * de.Weight
			de.Evidence = o.result.Evidence
		}
		c.setDimension(&out.Breakdown, name, de)
	}
	doc := lexicon.NewDoc(text)
	if line, ok := c.blendScaffold(&out.Breakdown, tr.Scaffold, doc, outcomes); ok {
		trail = append(trail, line)
	}
	b := out.Breakdown
	trail = append(trail, fmt.Sprintf("Dimensions: alignment %.3f, continuity %.3f, scaffold %.3f, ethics %.3f",
		b.Alignment.Score, b.Continuity.Score, b.Scaffold.Score, b.Ethics.Score))

	var score float64
	if len(failed) > 0 {
		score = c.partial(b, failed)
		out.Uncertainty = Uncertainty{
			FallbackMode:     true,
			FallbackReason:   strings.Join(reasons, "; "),
			FailedDimensions: failed,
		}
		trail = append(trail, fmt.Sprintf("Fallback: %s failed; partial score %.3f after %.0f%% reduction",
			strings.Join(failed, ", "), score, c.config.FallbackPenalty*100))
		c.logger.Warn("dimension extraction failed, using partial score",
			"failed", failed, "reason", out.Uncertainty.FallbackReason)
	} else {
		// 4. shortfall penalties
		score = b.Alignment.Contrib + b.Continuity.Contrib + b.Scaffold.Contrib + b.Ethics.Contrib
		trail = append(trail, fmt.Sprintf("Weighted sum: %.3f", score))
		var lines []string
		score, out.Thresholds, lines = c.applyShortfalls(score, b, st.Level, ts)
		trail = append(trail, lines...)
	}

	// 5. secondary dampening
	score = clamp(score)
	damp := 1 - c.config.Dampening*adv.Penalty
	score = clamp(score * damp)
	trail = append(trail, fmt.Sprintf("Adversarial dampening: x%.3f", damp))

	if math.IsNaN(score) || math.IsInf(score, 0) || score < 0 || score > 1 {
		return ExplainedResonance{}, fmt.Errorf("r_m %v: %w", score, ErrInvariant)
	}
	out.RM = score
	out.Status = StatusFor(score)
	out.TopEvidence = c.topEvidence(outcomes)
	out.ScaffoldTerms = lexicon.Scaffold.Present(doc)
	out.Persona = DetectPersona(doc)
	trail = append(trail, fmt.Sprintf("Persona: %s (confidence %.2f)", out.Persona.Name, out.Persona.Confidence))
	if out.Harmful = lexicon.Harmful.Present(doc); len(out.Harmful) > 0 {
		trail = append(trail, "Harmful content flagged: "+strings.Join(out.Harmful, ", "))
	}
	out.AuditTrail = append(trail, fmt.Sprintf("Final r_m: %.3f (%s)", score, out.Status))
	return out, nil
}

// AdvanceScaffold moves the session keywords forward one turn.
func (c *Composer) AdvanceScaffold(d DynamicScaffold, userInput string) DynamicScaffold {
	return c.config.ScaffoldMemory.Advance(d, userInput)
}

// blendScaffold mixes the session keyword score into a successful scaffold
// dimension.
func (c *Composer) blendScaffold(b *Breakdown, d DynamicScaffold, doc lexicon.Doc, outcomes map[string]dimOutcome) (string, bool) {
	if len(d) == 0 || outcomes[dimensions.Scaffold].err != nil {
		return "", false
	}
	share := c.config.ScaffoldMemory.DynamicShare
	dyn, matched := d.Score(doc)
	static := b.Scaffold.Score
	b.Scaffold.Score = share*dyn + (1-share)*static
	b.Scaffold.Contrib = b.Scaffold.Score * b.Scaffold.Weight
	b.Scaffold.Evidence = append(append([]string(nil), b.Scaffold.Evidence...),
		fmt.Sprintf("session keywords: %d/%d present", len(matched), len(d)))
	return fmt.Sprintf("Scaffold: session keywords %.3f blended with static %.3f", dyn, static), true
}

// extract runs every extractor, concurrently when configured.
func (c *Composer) extract(ctx context.Context, text string, st stakes.Evidence) map[string]dimOutcome {
	out := make(map[string]dimOutcome, len(c.extractors))
	if !c.config.Parallel {
		for _, e := range c.extractors {
			r, err := e.Extract(ctx, text, st)
			out[e.Name()] = dimOutcome{result: r, err: err}
		}
		return out
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, e := range c.extractors {
		e := e
		g.Go(func() error {
			r, err := e.Extract(ctx, text, st)
			mu.Lock()
			out[e.Name()] = dimOutcome{result: r, err: err}
			mu.Unlock()
			// failures are collected per dimension, never cancel the others
			return nil
		})
	}
	_ = g.Wait()
	return out
}

// partial is the weight-normalized mean of the surviving dimensions with
// the flat fallback reduction applied.
func (c *Composer) partial(b Breakdown, failed []string) float64 {
	skip := make(map[string]bool, len(failed))
	for _, f := range failed {
		skip[f] = true
	}
	var sum, weight float64
	for _, name := range dimensions.Order {
		if skip[name] {
			continue
		}
		de := dimensionOf(b, name)
		sum += de.Contrib
		weight += de.Weight
	}
	if weight == 0 {
		return 0
	}
	return (sum / weight) * (1 - c.config.FallbackPenalty)
}

func (c *Composer) applyShortfalls(score float64, b Breakdown, level stakes.Level, ts ThresholdSource) (float64, Thresholds, []string) {
	rule, ok := c.config.Rules[level]
	if !ok {
		rule = DefaultRules()[stakes.Medium]
	}
	th := Thresholds{Ethics: rule.EthicsThreshold, Alignment: rule.AlignmentThreshold}
	if ts != nil {
		th.Ethics, th.EthicsAdapted = ts.Adjust(dimensions.Ethics, rule.EthicsThreshold)
		th.Alignment, th.AlignmentAdapted = ts.Adjust(dimensions.Alignment, rule.AlignmentThreshold)
	}

	var lines []string
	if b.Ethics.Score < th.Ethics {
		score *= 1 - rule.EthicsPenalty
		lines = append(lines, fmt.Sprintf("Ethics %.3f below threshold %.3f: -%.0f%% penalty",
			b.Ethics.Score, th.Ethics, rule.EthicsPenalty*100))
	}
	if b.Alignment.Score < th.Alignment {
		score *= 1 - rule.AlignmentPenalty
		lines = append(lines, fmt.Sprintf("Alignment %.3f below threshold %.3f: -%.0f%% penalty",
			b.Alignment.Score, th.Alignment, rule.AlignmentPenalty*100))
	}
	if len(lines) == 0 {
		lines = append(lines, "Thresholds met: no shortfall penalty")
	}
	return score, th, lines
}

// topEvidence ranks all chunks by score, ties broken by dimension order.
func (c *Composer) topEvidence(outcomes map[string]dimOutcome) []EvidenceChunk {
	var chunks []EvidenceChunk
	for _, name := range dimensions.Order {
		o, ok := outcomes[name]
		if !ok || o.err != nil {
			continue
		}
		for _, ch := range o.result.Chunks {
			chunks = append(chunks, EvidenceChunk{Dimension: name, Text: ch.Text, Score: ch.Score})
		}
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Score > chunks[j].Score })
	if n := c.config.TopEvidence; n > 0 && len(chunks) > n {
		chunks = chunks[:n]
	}
	if chunks == nil {
		chunks = []EvidenceChunk{}
	}
	return chunks
}

// #endregion compose

// #region helpers

func (c *Composer) weight(name string) float64 {
	switch name {
	case dimensions.Alignment:
		return c.config.Weights.Alignment
	case dimensions.Continuity:
		return c.config.Weights.Continuity
	case dimensions.Scaffold:
		return c.config.Weights.Scaffold
	}
	return c.config.Weights.Ethics
}

func (c *Composer) dimension(name string) DimensionEvidence {
	return DimensionEvidence{Weight: c.weight(name), Evidence: []string{}}
}

func (c *Composer) emptyBreakdown() Breakdown {
	var b Breakdown
	for _, name := range dimensions.Order {
		c.setDimension(&b, name, c.dimension(name))
	}
	return b
}

func (c *Composer) setDimension(b *Breakdown, name string, de DimensionEvidence) {
	switch name {
	case dimensions.Alignment:
		b.Alignment = de
	case dimensions.Continuity:
		b.Continuity = de
	case dimensions.Scaffold:
		b.Scaffold = de
	case dimensions.Ethics:
		b.Ethics = de
	}
}

func dimensionOf(b Breakdown, name string) DimensionEvidence {
	switch name {
	case dimensions.Alignment:
		return b.Alignment
	case dimensions.Continuity:
		return b.Continuity
	case dimensions.Scaffold:
		return b.Scaffold
	}
	return b.Ethics
}

// emptyAdversarial is the no-signal result for text that was never checked.
func emptyAdversarial() adversarial.Result {
	return adversarial.Result{Evidence: adversarial.Evidence{EthicsBypassScore: 1, RepetitionEntropy: 1}}
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// #endregion helpers
