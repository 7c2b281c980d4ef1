package adversarial

import (
	"context"
	"time"
)

// #region evidence

// Evidence holds the five manipulation signals, each in [0, 1].
// EthicsBypassScore and RepetitionEntropy are "healthy high": 1 means no
// bypass attempt and no repetition.
type Evidence struct {
	KeywordDensity      float64 `json:"keyword_density"`
	SemanticDrift       float64 `json:"semantic_drift"`
	ReconstructionError float64 `json:"reconstruction_error"`
	EthicsBypassScore   float64 `json:"ethics_bypass_score"`
	RepetitionEntropy   float64 `json:"repetition_entropy"`
}

// Result is the outcome of one Check.
type Result struct {
	Evidence      Evidence `json:"evidence"`
	Composite     float64  `json:"composite"`
	IsAdversarial bool     `json:"is_adversarial"`
	Penalty       float64  `json:"penalty"`
	DeepFlagged   bool     `json:"deep_flagged"`
	Notes         []string `json:"notes,omitempty"`
}

// #endregion evidence

// #region deep-checker

// DeepChecker is an optional second opinion, typically a remote model.
// A true return marks the text as adversarial.
type DeepChecker interface {
	Flag(ctx context.Context, text string) (bool, error)
}

// Disabled is a DeepChecker that never flags.
type Disabled struct{}

// Flag always returns false.
func (Disabled) Flag(context.Context, string) (bool, error) { return false, nil }

// #endregion deep-checker

// #region config

// Config holds the detector knobs.
type Config struct {
	Threshold           float64 // composite above this is adversarial
	KeywordAllowance    float64 // keyword density tolerated before it counts
	PhrasePenalty       float64 // per bypass phrase
	VerbPenalty         float64 // per bypass verb occurrence
	MixedAlnumWeight    float64
	PerturbedRuneWeight float64
	NGram               int
	DeepTimeout         time.Duration
}

// DefaultConfig returns the standard detector configuration.
func DefaultConfig() Config {
	return Config{
		Threshold:           0.3,
		KeywordAllowance:    0.25,
		PhrasePenalty:       0.4,
		VerbPenalty:         0.15,
		MixedAlnumWeight:    1.5,
		PerturbedRuneWeight: 3,
		NGram:               4,
		DeepTimeout:         1500 * time.Millisecond,
	}
}

// #endregion config
