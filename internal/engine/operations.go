package engine

import (
	"context"
	"math"
	"time"

	"github.com/s8ken/yseeku-platform-sub012/internal/audit"
	"github.com/s8ken/yseeku-platform-sub012/internal/dimensions"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/threshold"
)

// recorder chains one turn's operations. Each operation depends on the
// previous one; the first append error is kept and later appends still run.
type recorder struct {
	ctx  context.Context
	log  *audit.Logger
	meta audit.Metadata
	ids  []string
	err  error
}

func (r *recorder) add(op string, inputs, outputs map[string]any, confidence, elapsedMs float64, inconsistent bool) string {
	meta := r.meta
	meta.ConfidenceScore = confidence
	meta.ExecutionTimeMs = elapsedMs
	var deps []string
	if n := len(r.ids); n > 0 {
		deps = []string{r.ids[n-1]}
	}
	id, err := r.log.LogContext(r.ctx, audit.OperationInput{
		Operation:    op,
		Inputs:       inputs,
		Outputs:      outputs,
		Metadata:     meta,
		Dependencies: deps,
		Inconsistent: inconsistent,
	})
	if err != nil {
		if r.err == nil {
			r.err = err
		}
		return ""
	}
	r.ids = append(r.ids, id)
	return id
}

// recordComposition logs the adversarial gate, stakes, every dimension and
// the weighted composition.
func (e *Engine) recordComposition(rec *recorder, req ScoreRequest, er resonance.ExplainedResonance, empty bool, elapsedMs float64) {
	textLen := len(req.Transcript.Text)
	if empty {
		rec.add("resonance_composition",
			map[string]any{"text_length": textLen},
			map[string]any{"r_m": er.RM, "status": string(er.Status), "note": "empty"},
			1, elapsedMs, er.RM != 0)
		return
	}

	adv := er.Adversarial
	ev := adv.Evidence
	rec.add("adversarial_check",
		map[string]any{"text_length": textLen},
		map[string]any{
			"keyword_density":      ev.KeywordDensity,
			"semantic_drift":       ev.SemanticDrift,
			"reconstruction_error": ev.ReconstructionError,
			"ethics_bypass_score":  ev.EthicsBypassScore,
			"repetition_entropy":   ev.RepetitionEntropy,
			"composite":            adv.Composite,
			"penalty":              adv.Penalty,
			"is_adversarial":       adv.IsAdversarial,
			"deep_flagged":         adv.DeepFlagged,
		},
		clampUnit(1-adv.Composite), 0, adv.Penalty < 0 || adv.Penalty > 1)

	if adv.IsAdversarial {
		rec.add("resonance_composition",
			map[string]any{"composite": adv.Composite},
			map[string]any{"r_m": er.RM, "status": string(er.Status), "sentinel": true},
			1, elapsedMs, false)
		return
	}

	rec.add("stakes_classification",
		map[string]any{"text_length": textLen},
		map[string]any{"level": string(er.Stakes.Level), "evidence": toStrings(er.Stakes.Evidence)},
		er.Stakes.Confidence, 0, false)

	failed := make(map[string]bool, len(er.Uncertainty.FailedDimensions))
	for _, f := range er.Uncertainty.FailedDimensions {
		failed[f] = true
	}
	var sum float64
	for _, name := range dimensions.Order {
		de := dimensionOf(er.Breakdown, name)
		confidence := 1.0
		if failed[name] {
			confidence = 0
		}
		sum += de.Contrib
		rec.add("dimension_"+name,
			map[string]any{"weight": de.Weight},
			map[string]any{"score": de.Score, "contrib": de.Contrib, "evidence": toStrings(de.Evidence)},
			confidence, 0, math.Abs(de.Contrib-de.Score*de.Weight) > 1e-9)
	}

	confidence := 1.0
	if er.Uncertainty.FallbackMode {
		confidence = 1 - float64(len(failed))/float64(len(dimensions.Order))
	}
	rec.add("resonance_composition",
		map[string]any{
			"weighted_sum":        sum,
			"stakes":              string(er.Stakes.Level),
			"ethics_threshold":    er.Thresholds.Ethics,
			"alignment_threshold": er.Thresholds.Alignment,
			"penalty":             adv.Penalty,
		},
		map[string]any{
			"r_m":           er.RM,
			"status":        string(er.Status),
			"fallback_mode": er.Uncertainty.FallbackMode,
			"persona":       er.Persona.Name,
			"harmful_terms": toStrings(er.Harmful),
		},
		confidence, elapsedMs, er.RM < 0 || er.RM > 1)
}

func dimensionOf(b resonance.Breakdown, name string) resonance.DimensionEvidence {
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

func thresholdOutputs(states map[string]threshold.State) map[string]any {
	out := make(map[string]any, len(states))
	for name, st := range states {
		out[name] = map[string]any{
			"adaptive_threshold": st.AdaptiveThreshold,
			"change_probability": st.ChangeProbability,
			"sample_count":       st.SampleCount,
			"reason":             st.AdjustmentReason,
		}
	}
	return out
}

func toAny(m map[string]float64) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func toStrings(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

func ms(d time.Duration) float64 { return float64(d.Microseconds()) / 1000 }

func clampUnit(v float64) float64 { return math.Max(0, math.Min(1, v)) }
