package dimensions

import (
	"context"

	"github.com/s8ken/yseeku-platform-sub012/internal/stakes"
)

// Dimension names, in canonical order.
const (
	Alignment  = "alignment"
	Continuity = "continuity"
	Scaffold   = "scaffold"
	Ethics     = "ethics"
)

// Order is the canonical dimension order used for tie-breaking.
var Order = []string{Alignment, Continuity, Scaffold, Ethics}

// #region extractor-interface

// Extractor scores one dimension of a transcript.
type Extractor interface {
	Name() string
	Extract(ctx context.Context, text string, st stakes.Evidence) (Result, error)
}

// #endregion extractor-interface

// #region result

// Chunk is a span of text that supports a dimension score.
type Chunk struct {
	Text  string  `json:"text"`
	Score float64 `json:"score"`
}

// Result is one extractor's output. Score is in [0, 1].
type Result struct {
	Score    float64  `json:"score"`
	Evidence []string `json:"evidence"`
	Chunks   []Chunk  `json:"chunks,omitempty"`
}

// #endregion result

// #region config

// Config holds extractor tuning.
type Config struct {
	AlignmentTopK       int
	AlignmentFloor      float64
	AlignmentFloorTerms int // distinct scaffold terms needed for the floor
	EthicsSaturation    map[stakes.Level]int
}

// DefaultConfig returns the standard extractor configuration.
func DefaultConfig() Config {
	return Config{
		AlignmentTopK:       3,
		AlignmentFloor:      0.5,
		AlignmentFloorTerms: 2,
		EthicsSaturation: map[stakes.Level]int{
			stakes.High:   6,
			stakes.Medium: 4,
			stakes.Low:    3,
		},
	}
}

// #endregion config
