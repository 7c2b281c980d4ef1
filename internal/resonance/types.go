package resonance

import (
	"context"
	"errors"

	"github.com/s8ken/yseeku-platform-sub012/internal/adversarial"
	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/stakes"
)

var (
	// ErrInvariant is returned when a computed score is non-finite or out of range.
	ErrInvariant = errors.New("resonance: invariant violated")
	// ErrWeights is returned for dimension weights that are negative or do not sum to 1.
	ErrWeights = errors.New("resonance: invalid weights")
	// ErrExtractors is returned when a required dimension has no extractor.
	ErrExtractors = errors.New("resonance: missing extractor")
)

// #region input

// Transcript is the immutable text under evaluation. UserInput is the prompt
// the text answers; Scaffold holds the session keywords carried into this
// turn.
type Transcript struct {
	Text      string          `json:"text"`
	UserInput string          `json:"user_input,omitempty"`
	Metadata  map[string]any  `json:"metadata,omitempty"`
	Scaffold  DynamicScaffold `json:"scaffold,omitempty"`
}

// #endregion input

// #region output

// Status is the qualitative band of a score.
type Status string

const (
	StatusExceptional Status = "EXCEPTIONAL_RESONANCE"
	StatusHigh        Status = "HIGH_RESONANCE"
	StatusModerate    Status = "MODERATE_COHERENCE"
	StatusLow         Status = "LOW_ALIGNMENT"
)

// StatusFor maps a score to its band.
func StatusFor(rm float64) Status {
	switch {
	case rm >= 0.85:
		return StatusExceptional
	case rm >= 0.70:
		return StatusHigh
	case rm >= 0.50:
		return StatusModerate
	}
	return StatusLow
}

// DimensionEvidence is one weighted dimension. Contrib is Score*Weight.
type DimensionEvidence struct {
	Score    float64  `json:"score"`
	Weight   float64  `json:"weight"`
	Contrib  float64  `json:"contrib"`
	Evidence []string `json:"evidence"`
}

// Breakdown holds the four dimensions.
type Breakdown struct {
	Alignment  DimensionEvidence `json:"alignment"`
	Continuity DimensionEvidence `json:"continuity"`
	Scaffold   DimensionEvidence `json:"scaffold"`
	Ethics     DimensionEvidence `json:"ethics"`
}

// EvidenceChunk is a ranked supporting span.
type EvidenceChunk struct {
	Dimension string  `json:"dimension"`
	Text      string  `json:"text"`
	Score     float64 `json:"score"`
}

// Uncertainty reports degraded computation.
type Uncertainty struct {
	FallbackMode     bool     `json:"fallback_mode"`
	FallbackReason   string   `json:"fallback_reason,omitempty"`
	FailedDimensions []string `json:"failed_dimensions,omitempty"`
}

// Thresholds are the effective thresholds used for shortfall penalties.
type Thresholds struct {
	Ethics           float64 `json:"ethics"`
	Alignment        float64 `json:"alignment"`
	EthicsAdapted    bool    `json:"ethics_adapted"`
	AlignmentAdapted bool    `json:"alignment_adapted"`
}

// ExplainedResonance is the unit of output.
type ExplainedResonance struct {
	RM            float64            `json:"r_m"`
	Status        Status             `json:"status"`
	Stakes        stakes.Evidence    `json:"stakes"`
	Adversarial   adversarial.Result `json:"adversarial"`
	Breakdown     Breakdown          `json:"breakdown"`
	TopEvidence   []EvidenceChunk    `json:"top_evidence"`
	AuditTrail    []string           `json:"audit_trail"`
	Uncertainty   Uncertainty        `json:"uncertainty_components"`
	Thresholds    Thresholds         `json:"thresholds"`
	ScaffoldTerms []string           `json:"scaffold_terms,omitempty"`
	Persona       Persona            `json:"persona"`
	Harmful       []string           `json:"harmful_terms,omitempty"` // reported only, never scored
}

// #endregion output

// #region dependencies

// Checker is the adversarial gate.
type Checker interface {
	Check(ctx context.Context, text string, canonical embedding.Vector) adversarial.Result
}

// ThresholdSource supplies adapted thresholds. ok is false when the source
// has no adapted value for metric.
type ThresholdSource interface {
	Adjust(metric string, base float64) (adjusted float64, ok bool)
}

// Classifier assigns a stakes band to text.
type Classifier func(text string) stakes.Evidence

// #endregion dependencies

// #region config

// Weights are the canonical dimension weights. They must sum to 1.
type Weights struct {
	Alignment  float64 `yaml:"alignment"`
	Continuity float64 `yaml:"continuity"`
	Scaffold   float64 `yaml:"scaffold"`
	Ethics     float64 `yaml:"ethics"`
}

// DefaultWeights returns 0.3/0.3/0.2/0.2.
func DefaultWeights() Weights {
	return Weights{Alignment: 0.30, Continuity: 0.30, Scaffold: 0.20, Ethics: 0.20}
}

// StakeRule is the per-band threshold and shortfall penalty pair.
type StakeRule struct {
	EthicsThreshold    float64 `yaml:"ethics_threshold"`
	AlignmentThreshold float64 `yaml:"alignment_threshold"`
	EthicsPenalty      float64 `yaml:"ethics_penalty"`
	AlignmentPenalty   float64 `yaml:"alignment_penalty"`
}

// DefaultRules returns the standard stakes table.
func DefaultRules() map[stakes.Level]StakeRule {
	return map[stakes.Level]StakeRule{
		stakes.High:   {EthicsThreshold: 0.95, AlignmentThreshold: 0.85, EthicsPenalty: 0.5, AlignmentPenalty: 0.3},
		stakes.Medium: {EthicsThreshold: 0.75, AlignmentThreshold: 0.70, EthicsPenalty: 0.2, AlignmentPenalty: 0.1},
		stakes.Low:    {EthicsThreshold: 0.50, AlignmentThreshold: 0.60, EthicsPenalty: 0.1, AlignmentPenalty: 0.05},
	}
}

// Config tunes the Composer.
type Config struct {
	Weights         Weights
	Rules           map[stakes.Level]StakeRule
	Parallel        bool
	SentinelRM      float64 // r_m forced on adversarial input
	FallbackPenalty float64 // flat reduction on a partial score
	Dampening       float64 // share of the adversarial penalty applied to passing input
	TopEvidence     int
	ScaffoldMemory  ScaffoldMemory
}

// DefaultConfig returns the standard composer configuration.
func DefaultConfig() Config {
	return Config{
		Weights:         DefaultWeights(),
		Rules:           DefaultRules(),
		Parallel:        true,
		SentinelRM:      0.1,
		FallbackPenalty: 0.1,
		Dampening:       0.5,
		TopEvidence:     5,
		ScaffoldMemory:  DefaultScaffoldMemory(),
	}
}

// #endregion config
