package resonance

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// #region session-state

// SessionState carries the previous turn into the next one. The caller owns
// it; the engine returns an updated copy.
type SessionState struct {
	LastRM           float64         `json:"last_r_m"`
	LastScaffoldHash string          `json:"last_scaffold_hash"`
	DecayTurns       int             `json:"decay_turns"`
	DynamicScaffold  DynamicScaffold `json:"dynamic_scaffold,omitempty"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// ScaffoldHash fingerprints a set of scaffold terms independent of order.
func ScaffoldHash(terms []string) string {
	sorted := append([]string(nil), terms...)
	sort.Strings(sorted)
	return strconv.FormatUint(xxhash.Sum64String(strings.Join(sorted, "\x1f")), 16)
}

// #endregion session-state

// #region stickiness

// Stickiness blends the previous score, decayed per elapsed turn, into the
// fresh score.
type Stickiness struct {
	DecayRate     float64 `yaml:"decay_rate"`
	Weight        float64 `yaml:"weight"`
	RuptureDelta  float64 `yaml:"rupture_delta"`
	MaxDecayTurns int     `yaml:"max_decay_turns"`
}

// DefaultStickiness returns the standard blending parameters.
func DefaultStickiness() Stickiness {
	return Stickiness{DecayRate: 0.25, Weight: 0.3, RuptureDelta: 0.4, MaxDecayTurns: 10}
}

// Blend returns the sticky score, a description of what happened, and the
// next session state. A nil prior, a rupture, or a prior older than
// MaxDecayTurns return fresh unchanged. DecayTurns in the next state is the
// number of turns the prior was decayed over.
//
// The prior decays toward zero, so a session holding a constant fresh score f
// settles at (1-w)f / (1-w·e^-rate) rather than f.
func (s Stickiness) Blend(prior *SessionState, fresh float64, scaffoldTerms []string, turnsElapsed int, now time.Time) (float64, string, SessionState) {
	next := SessionState{LastRM: fresh, LastScaffoldHash: ScaffoldHash(scaffoldTerms), UpdatedAt: now}
	if prior == nil {
		return fresh, "Stickiness: no prior state", next
	}
	if turnsElapsed < 1 {
		turnsElapsed = 1
	}
	if s.MaxDecayTurns > 0 && turnsElapsed > s.MaxDecayTurns {
		return fresh, fmt.Sprintf("Stickiness: expired after %d turns", turnsElapsed), next
	}
	if math.Abs(fresh-prior.LastRM) >= s.RuptureDelta {
		return fresh, fmt.Sprintf("Stickiness: rupture (|%.3f - %.3f| >= %.2f)", fresh, prior.LastRM, s.RuptureDelta), next
	}

	decayed := prior.LastRM * math.Exp(-s.DecayRate*float64(turnsElapsed))
	blended := clamp(s.Weight*decayed + (1-s.Weight)*fresh)
	next.LastRM = blended
	next.DecayTurns = turnsElapsed
	return blended, fmt.Sprintf("Stickiness: blended %.3f with decayed prior %.3f -> %.3f", fresh, decayed, blended), next
}

// #endregion stickiness
