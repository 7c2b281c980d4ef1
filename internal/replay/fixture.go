package replay

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
)

// #region fixture-types

// Fixture is the top-level JSON structure for a replay fixture.
type Fixture struct {
	Description     string                  `json:"description"`
	SessionID       string                  `json:"session_id"`
	Config          FixtureConfig           `json:"config"`
	Turns           []FixtureTurn           `json:"turns"`
	ExpectedResults []FixtureExpectedResult `json:"expected_results"`
}

// FixtureTurn is one recorded transcript.
type FixtureTurn struct {
	TurnID       string         `json:"turn_id"`
	Text         string         `json:"text"`
	UserInput    string         `json:"user_input,omitempty"`
	TurnsElapsed int            `json:"turns_elapsed,omitempty"`
	Metadata     map[string]any `json:"metadata,omitempty"`
}

// FixtureExpectedResult is what a turn must produce. Empty or nil fields are
// not checked.
type FixtureExpectedResult struct {
	TurnID      string           `json:"turn_id"`
	Status      resonance.Status `json:"status,omitempty"`
	Adversarial *bool            `json:"adversarial,omitempty"`
	MinRM       *float64         `json:"min_r_m,omitempty"`
	MaxRM       *float64         `json:"max_r_m,omitempty"`
}

// FixtureConfig overrides engine settings for a replay run.
type FixtureConfig struct {
	Detector    string   `json:"detector,omitempty"` // bocpd | cusum
	Sensitivity *float64 `json:"sensitivity,omitempty"`
	Parallel    *bool    `json:"parallel,omitempty"`
}

// #endregion fixture-types

// #region fixture-loader

// LoadFixture reads and parses a JSON fixture file.
func LoadFixture(path string) (*Fixture, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture %s: %w", path, err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse fixture %s: %w", path, err)
	}
	if f.SessionID == "" {
		f.SessionID = "replay"
	}
	return &f, nil
}

// ToTurn converts a FixtureTurn to a domain Turn.
func (ft *FixtureTurn) ToTurn() Turn {
	return Turn{
		TurnID:       ft.TurnID,
		Transcript:   resonance.Transcript{Text: ft.Text, UserInput: ft.UserInput, Metadata: ft.Metadata},
		TurnsElapsed: ft.TurnsElapsed,
	}
}

// DomainTurns converts every fixture turn.
func (f *Fixture) DomainTurns() []Turn {
	out := make([]Turn, len(f.Turns))
	for i := range f.Turns {
		out[i] = f.Turns[i].ToTurn()
	}
	return out
}

// #endregion fixture-loader

// #region fixture-check

// Mismatch is one failed expectation.
type Mismatch struct {
	TurnID string
	Field  string
	Want   string
	Got    string
}

func (m Mismatch) String() string {
	return fmt.Sprintf("%s: %s want %s, got %s", m.TurnID, m.Field, m.Want, m.Got)
}

// Check compares results against expectations by turn id.
func Check(results []Result, expected []FixtureExpectedResult) []Mismatch {
	byID := make(map[string]Result, len(results))
	for _, r := range results {
		byID[r.TurnID] = r
	}
	var out []Mismatch
	for _, e := range expected {
		r, ok := byID[e.TurnID]
		if !ok {
			out = append(out, Mismatch{TurnID: e.TurnID, Field: "turn", Want: "present", Got: "missing"})
			continue
		}
		if e.Status != "" && r.Status != e.Status {
			out = append(out, Mismatch{e.TurnID, "status", string(e.Status), string(r.Status)})
		}
		if e.Adversarial != nil && r.Adversarial != *e.Adversarial {
			out = append(out, Mismatch{e.TurnID, "adversarial", fmt.Sprint(*e.Adversarial), fmt.Sprint(r.Adversarial)})
		}
		if e.MinRM != nil && r.RM < *e.MinRM {
			out = append(out, Mismatch{e.TurnID, "r_m", fmt.Sprintf(">= %.3f", *e.MinRM), fmt.Sprintf("%.3f", r.RM)})
		}
		if e.MaxRM != nil && r.RM > *e.MaxRM {
			out = append(out, Mismatch{e.TurnID, "r_m", fmt.Sprintf("<= %.3f", *e.MaxRM), fmt.Sprintf("%.3f", r.RM)})
		}
	}
	return out
}

// #endregion fixture-check
