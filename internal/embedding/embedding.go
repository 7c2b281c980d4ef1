// Package embedding provides the deterministic heuristic embedder and the
// vector helpers used by alignment, continuity and drift scoring.
package embedding

import (
	"context"
	"math"
	"strings"

	"github.com/cespare/xxhash/v2"

	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
)

// #region patterns

var (
	scaffoldPattern = buildScaffoldPattern()
	driftPattern    = buildDriftPattern()
)

func buildScaffoldPattern() Vector {
	v := make(Vector, Dim)
	c := 1 / math.Sqrt(Dim)
	for i := range v {
		v[i] = c
	}
	return v
}

// buildDriftPattern alternates sign, so it is orthogonal to the scaffold
// pattern for any even Dim.
func buildDriftPattern() Vector {
	v := make(Vector, Dim)
	c := 1 / math.Sqrt(Dim)
	for i := range v {
		if i%2 == 0 {
			v[i] = c
		} else {
			v[i] = -c
		}
	}
	return v
}

// Canonical returns a copy of the canonical scaffold vector.
func Canonical() Vector {
	out := make(Vector, Dim)
	copy(out, scaffoldPattern)
	return out
}

// #endregion patterns

// #region hash-embedder

// HashEmbedder derives vectors from a hash of the text plus a bias toward
// the scaffold or drift pattern decided by vocabulary counts.
type HashEmbedder struct {
	config HashConfig
}

// NewHashEmbedder creates a HashEmbedder.
func NewHashEmbedder(config HashConfig) *HashEmbedder {
	return &HashEmbedder{config: config}
}

// Embed never fails; the error return satisfies Embedder.
func (h *HashEmbedder) Embed(_ context.Context, text string) (Vector, error) {
	lower := strings.ToLower(strings.TrimSpace(text))
	if lower == "" {
		return make(Vector, Dim), nil
	}
	d := lexicon.NewDoc(lower)
	scaffold := len(lexicon.Scaffold.Present(d))
	drift := len(lexicon.Drift.Present(d))

	noise := hashNoise(lower)

	pattern, pw, nw := scaffoldPattern, h.config.BasePattern, h.config.BaseNoise
	switch {
	case drift > scaffold:
		pattern, pw, nw = driftPattern, h.config.DriftPattern, h.config.DriftNoise
	case scaffold > 0 && drift == 0:
		pw, nw = h.config.ScaffoldPattern, h.config.ScaffoldNoise
	}

	out := make(Vector, Dim)
	for i := range out {
		out[i] = pw*pattern[i] + nw*noise[i]
	}
	return normalize(out), nil
}

// hashNoise returns a unit vector orthogonal to the scaffold pattern, seeded
// by xxhash64 of text and expanded with a 32-bit LCG.
func hashNoise(text string) Vector {
	seed := xxhash.Sum64String(text)
	state := uint32(seed ^ (seed >> 32))
	v := make(Vector, Dim)
	for i := range v {
		state = state*1664525 + 1013904223
		v[i] = float64(state)/float64(math.MaxUint32)*2 - 1
	}
	// remove the scaffold component so pattern weights fix the cosine
	proj := dot(v, scaffoldPattern)
	for i := range v {
		v[i] -= proj * scaffoldPattern[i]
	}
	return normalize(v)
}

// #endregion hash-embedder

// #region helpers

// CosineSimilarity returns the cosine of the angle between a and b in
// [-1, 1]. Mismatched, empty, zero-norm or non-finite input yields 0.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var d, na, nb float64
	for i := range a {
		d += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	denom := math.Sqrt(na) * math.Sqrt(nb)
	if denom == 0 || math.IsNaN(denom) || math.IsInf(denom, 0) {
		return 0
	}
	c := d / denom
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return math.Max(-1, math.Min(1, c))
}

func dot(a, b Vector) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}

func normalize(v Vector) Vector {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return v
	}
	for i := range v {
		v[i] /= n
	}
	return v
}

// #endregion helpers
