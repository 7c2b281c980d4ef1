// Package replay re-scores recorded sessions turn by turn and summarizes the
// outcome, for regression fixtures and offline analysis.
package replay

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/montanaflynn/stats"

	"github.com/s8ken/yseeku-platform-sub012/internal/config"
	"github.com/s8ken/yseeku-platform-sub012/internal/engine"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
)

// #region types

// Turn is a single recorded transcript for replay.
type Turn struct {
	TurnID       string
	Transcript   resonance.Transcript
	TurnsElapsed int
}

// Scorer is the engine surface replay needs.
type Scorer interface {
	Score(ctx context.Context, req engine.ScoreRequest) (engine.ScoreResult, error)
}

// Result captures the outcome of one replayed turn.
type Result struct {
	TurnID      string           `json:"turn_id"`
	RM          float64          `json:"r_m"`
	FreshRM     float64          `json:"fresh_r_m"`
	Status      resonance.Status `json:"status"`
	Adversarial bool             `json:"adversarial"`
	Fallback    bool             `json:"fallback"`
	Drift       bool             `json:"drift"`
	Operations  int              `json:"operations"`
	AuditTrail  []string         `json:"audit_trail"`
}

// Summary provides aggregate stats from a replay run.
type Summary struct {
	RunID       string                   `json:"run_id"`
	SessionID   string                   `json:"session_id"`
	TotalTurns  int                      `json:"total_turns"`
	Adversarial int                      `json:"adversarial"`
	Fallbacks   int                      `json:"fallbacks"`
	Drifts      int                      `json:"drifts"`
	ByStatus    map[resonance.Status]int `json:"by_status"`
	MeanRM      float64                  `json:"mean_r_m"`
	MedianRM    float64                  `json:"median_r_m"`
	MinRM       float64                  `json:"min_r_m"`
	MaxRM       float64                  `json:"max_r_m"`
}

// #endregion types

// #region replay

// Replay scores turns in order under one session id. It stops at the first
// scoring error and returns the results so far.
func Replay(ctx context.Context, scorer Scorer, sessionID string, turns []Turn) ([]Result, error) {
	results := make([]Result, 0, len(turns))
	for _, t := range turns {
		res, err := scorer.Score(ctx, engine.ScoreRequest{
			SessionID:    sessionID,
			Transcript:   t.Transcript,
			TurnsElapsed: t.TurnsElapsed,
		})
		if err != nil {
			return results, fmt.Errorf("replay turn %s: %w", t.TurnID, err)
		}
		er := res.Resonance
		results = append(results, Result{
			TurnID:      t.TurnID,
			RM:          er.RM,
			FreshRM:     res.FreshRM,
			Status:      er.Status,
			Adversarial: er.Adversarial.IsAdversarial,
			Fallback:    er.Uncertainty.FallbackMode,
			Drift:       res.Drift,
			Operations:  len(res.OperationIDs),
			AuditTrail:  er.AuditTrail,
		})
	}
	return results, nil
}

// Summarize computes aggregate stats from replay results.
func Summarize(sessionID string, results []Result) Summary {
	s := Summary{
		RunID:      uuid.New().String(),
		SessionID:  sessionID,
		TotalTurns: len(results),
		ByStatus:   make(map[resonance.Status]int),
	}
	scores := make([]float64, 0, len(results))
	for _, r := range results {
		s.ByStatus[r.Status]++
		if r.Adversarial {
			s.Adversarial++
		}
		if r.Fallback {
			s.Fallbacks++
		}
		if r.Drift {
			s.Drifts++
		}
		scores = append(scores, r.RM)
	}
	if len(scores) == 0 {
		return s
	}
	s.MeanRM, _ = stats.Mean(scores)
	s.MedianRM, _ = stats.Median(scores)
	s.MinRM, _ = stats.Min(scores)
	s.MaxRM, _ = stats.Max(scores)
	return s
}

// #endregion replay

// #region config

// Apply overlays the fixture's overrides on cfg.
func (fc FixtureConfig) Apply(cfg *config.Config) {
	if fc.Detector != "" {
		cfg.Thresholds.Detector.Kind = fc.Detector
	}
	if fc.Sensitivity != nil {
		cfg.Thresholds.Sensitivity = *fc.Sensitivity
	}
	if fc.Parallel != nil {
		cfg.Composer.Parallel = *fc.Parallel
	}
}

// #endregion config
