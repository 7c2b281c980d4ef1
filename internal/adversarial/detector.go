// Package adversarial scores a transcript for manipulation: keyword stuffing,
// off-topic drift, obfuscated characters, safety-bypass wording and
// repetition, plus an optional deep check.
package adversarial

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"unicode"

	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
)

// #region detector

// Detector computes adversarial evidence. embedder may be nil (drift
// degrades to 0); deep may be nil (treated as Disabled).
type Detector struct {
	embedder embedding.Embedder
	deep     DeepChecker
	config   Config
	logger   *slog.Logger
}

// NewDetector creates a Detector. A nil logger uses slog.Default.
func NewDetector(embedder embedding.Embedder, deep DeepChecker, config Config, logger *slog.Logger) *Detector {
	if deep == nil {
		deep = Disabled{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{
		embedder: embedder,
		deep:     deep,
		config:   config,
		logger:   logger.With("component", "adversarial"),
	}
}

// #endregion detector

// #region check

// Check scores text against canonical. The composite is the maximum of the
// individual signals so one strong signature is never averaged away.
func (d *Detector) Check(ctx context.Context, text string, canonical embedding.Vector) Result {
	doc := lexicon.NewDoc(text)
	var res Result

	res.Evidence = Evidence{
		KeywordDensity:      keywordDensity(doc),
		ReconstructionError: d.reconstructionError(text),
		EthicsBypassScore:   d.bypassScore(doc),
		RepetitionEntropy:   repetitionEntropy(doc.Tokens, d.config.NGram),
	}

	if len(doc.Tokens) == 0 {
		res.Notes = append(res.Notes, "no tokens: drift skipped")
	} else if drift, err := d.semanticDrift(ctx, text, canonical); err != nil {
		res.Notes = append(res.Notes, fmt.Sprintf("embedding failed: %v", err))
	} else {
		res.Evidence.SemanticDrift = drift
	}

	flagged, note := d.deepCheck(ctx, text)
	res.DeepFlagged = flagged
	if note != "" {
		res.Notes = append(res.Notes, note)
	}

	res.Composite = Composite(res.Evidence, flagged, d.config.KeywordAllowance)
	res.IsAdversarial = res.Composite > d.config.Threshold
	res.Penalty = math.Min(1, 2*res.Composite)

	if res.IsAdversarial {
		d.logger.Info("adversarial input detected",
			"composite", res.Composite,
			"deep_flagged", flagged,
			"keyword_density", res.Evidence.KeywordDensity,
			"semantic_drift", res.Evidence.SemanticDrift,
		)
	}
	return res
}

// Composite returns the max-of-signals score for e.
func Composite(e Evidence, deepFlagged bool, keywordAllowance float64) float64 {
	c := math.Max(0, e.KeywordDensity-keywordAllowance)
	c = math.Max(c, e.SemanticDrift)
	c = math.Max(c, e.ReconstructionError)
	c = math.Max(c, 1-e.EthicsBypassScore)
	c = math.Max(c, 1-e.RepetitionEntropy)
	if deepFlagged {
		c = 1
	}
	return clamp(c)
}

// #endregion check

// #region signals

func keywordDensity(doc lexicon.Doc) float64 {
	if len(doc.Tokens) == 0 {
		return 0
	}
	return clamp(float64(lexicon.Scaffold.Occurrences(doc)) / float64(len(doc.Tokens)))
}

func (d *Detector) semanticDrift(ctx context.Context, text string, canonical embedding.Vector) (float64, error) {
	if d.embedder == nil {
		return 0, nil
	}
	v, err := d.embedder.Embed(ctx, text)
	if err != nil {
		return 0, err
	}
	return clamp(1 - embedding.CosineSimilarity(v, canonical)), nil
}

// reconstructionError measures character-level obfuscation: digit-letter
// substitutions, compatibility look-alikes, invisible format runes and
// tokens that mix Latin with another script.
func (d *Detector) reconstructionError(text string) float64 {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0
	}
	var mixed, perturbed, runes int
	for _, f := range fields {
		f = strings.TrimFunc(f, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if f == "" {
			continue
		}
		var letters, digits, latin, otherScript int
		for _, r := range f {
			runes++
			switch {
			case unicode.Is(unicode.Cf, r):
				perturbed++
				continue
			case r > unicode.MaxASCII && lexicon.Fold(string(r)) != string(r):
				perturbed++
			}
			switch {
			case unicode.IsDigit(r):
				digits++
			case unicode.IsLetter(r):
				letters++
				if unicode.Is(unicode.Latin, r) {
					latin++
				} else {
					otherScript++
				}
			}
		}
		if letters > 0 && digits > 0 {
			mixed++
		}
		if latin > 0 && otherScript > 0 {
			perturbed += otherScript
		}
	}
	if runes == 0 {
		return 0
	}
	ratioMixed := float64(mixed) / float64(len(fields))
	ratioPerturbed := float64(perturbed) / float64(runes)
	return clamp(d.config.MixedAlnumWeight*ratioMixed + d.config.PerturbedRuneWeight*ratioPerturbed)
}

func (d *Detector) bypassScore(doc lexicon.Doc) float64 {
	phrases := len(lexicon.BypassPhrases.Present(doc))
	verbs := lexicon.BypassVerbs.Occurrences(doc)
	return clamp(1 - d.config.PhrasePenalty*float64(phrases) - d.config.VerbPenalty*float64(verbs))
}

// repetitionEntropy is the ratio of unique n-grams to all n-grams. Texts
// shorter than n score 1.
func repetitionEntropy(tokens []string, n int) float64 {
	if n <= 0 {
		n = 4
	}
	if len(tokens) < n {
		return 1
	}
	total := len(tokens) - n + 1
	seen := make(map[string]struct{}, total)
	for i := 0; i < total; i++ {
		seen[strings.Join(tokens[i:i+n], " ")] = struct{}{}
	}
	return float64(len(seen)) / float64(total)
}

// #endregion signals

// #region deep-check

type deepOutcome struct {
	flagged bool
	err     error
}

// deepCheck runs the DeepChecker under the configured timeout. Errors and
// timeouts contribute no signal.
func (d *Detector) deepCheck(ctx context.Context, text string) (bool, string) {
	if _, off := d.deep.(Disabled); off {
		return false, ""
	}
	timeout := d.config.DeepTimeout
	if timeout <= 0 {
		timeout = DefaultConfig().DeepTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan deepOutcome, 1)
	go func() {
		flagged, err := d.deep.Flag(ctx, text)
		done <- deepOutcome{flagged: flagged, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			d.logger.Debug("deep check failed", "error", out.err)
			return false, fmt.Sprintf("deep check failed: %v", out.err)
		}
		return out.flagged, ""
	case <-ctx.Done():
		d.logger.Debug("deep check timed out", "timeout", timeout)
		return false, "deep check timed out"
	}
}

// #endregion deep-check

func clamp(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
