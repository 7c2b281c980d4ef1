package embedding

import "context"

// Dim is the width of every vector produced by this package.
const Dim = 384

// Vector is a dense embedding. Vectors returned by HashEmbedder are unit
// length, or all zero for empty text.
type Vector []float64

// #region embedder-interface

// Embedder maps text to a Vector. Implementations must be deterministic for
// a given text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
}

// #endregion embedder-interface

// #region config

// HashConfig sets the mixing weights of HashEmbedder.
type HashConfig struct {
	ScaffoldPattern float64 // weight of u_s when scaffold terms are present
	ScaffoldNoise   float64
	DriftPattern    float64 // weight of u_d when drift terms dominate
	DriftNoise      float64
	BasePattern     float64 // weight of u_s for everything else
	BaseNoise       float64
}

// DefaultHashConfig returns the standard mixing weights.
func DefaultHashConfig() HashConfig {
	return HashConfig{
		ScaffoldPattern: 0.95,
		ScaffoldNoise:   0.31,
		DriftPattern:    0.8,
		DriftNoise:      0.6,
		BasePattern:     0.8,
		BaseNoise:       0.6,
	}
}

// #endregion config
