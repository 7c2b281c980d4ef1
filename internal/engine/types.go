package engine

import (
	"errors"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
	"github.com/s8ken/yseeku-platform-sub012/internal/threshold"
)

// ErrSessionRequired is returned when a request has no session id.
var ErrSessionRequired = errors.New("engine: session id is required")

// #region request

// ScoreRequest is one turn to score. Prior overrides any stored session
// state; TurnsElapsed defaults to 1.
type ScoreRequest struct {
	SessionID    string
	UserID       string
	TenantID     string
	Transcript   resonance.Transcript
	Prior        *resonance.SessionState
	TurnsElapsed int
}

// #endregion request

// #region result

// ScoreResult is the scored turn. Resonance.RM is the final, sticky score;
// FreshRM is the score before cross-turn blending.
type ScoreResult struct {
	SessionID    string                       `json:"session_id"`
	Resonance    resonance.ExplainedResonance `json:"resonance"`
	FreshRM      float64                      `json:"fresh_r_m"`
	Session      resonance.SessionState       `json:"session_state"`
	Thresholds   map[string]threshold.State   `json:"thresholds"`
	Identity     float64                      `json:"identity_coherence"`
	Drift        bool                         `json:"drift_detected"`
	Trend        bool                         `json:"trend_detected"`
	OperationIDs []string                     `json:"operation_ids"`
}

// #endregion result

// #region config

// Config tunes an Engine.
type Config struct {
	Thresholds     threshold.Config
	Stickiness     resonance.Stickiness
	ModelVersion   string
	HistoryLimit   int     // scores kept for drift detection
	IdentityWindow int     // responses kept for identity coherence
	DriftThreshold float64 // mean drop that counts as drift
	TrendWindow    int
	TrendSlope     float64
}

// DefaultConfig returns the standard engine configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:     threshold.DefaultConfig(),
		Stickiness:     resonance.DefaultStickiness(),
		ModelVersion:   "hash-embedder-384",
		HistoryLimit:   20,
		IdentityWindow: 10,
		DriftThreshold: resonance.DefaultDriftThreshold,
		TrendWindow:    5,
		TrendSlope:     0.03,
	}
}

// #endregion config
