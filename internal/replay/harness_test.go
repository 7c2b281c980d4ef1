package replay

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/s8ken/yseeku-platform-sub012/internal/adversarial"
	"github.com/s8ken/yseeku-platform-sub012/internal/engine"
	"github.com/s8ken/yseeku-platform-sub012/internal/resonance"
)

// scripted returns one canned result per call.
type scripted struct {
	results []engine.ScoreResult
	failAt  int
	calls   int
	seen    []engine.ScoreRequest
}

func (s *scripted) Score(_ context.Context, req engine.ScoreRequest) (engine.ScoreResult, error) {
	defer func() { s.calls++ }()
	s.seen = append(s.seen, req)
	if s.failAt > 0 && s.calls+1 == s.failAt {
		return engine.ScoreResult{}, errors.New("boom")
	}
	return s.results[s.calls], nil
}

func scored(rm float64, adv, fallback bool) engine.ScoreResult {
	return engine.ScoreResult{
		FreshRM: rm,
		Resonance: resonance.ExplainedResonance{
			RM:          rm,
			Status:      resonance.StatusFor(rm),
			Adversarial: adversarial.Result{IsAdversarial: adv},
			Uncertainty: resonance.Uncertainty{FallbackMode: fallback},
		},
		OperationIDs: []string{"a", "b"},
	}
}

func turns(n int) []Turn {
	out := make([]Turn, n)
	for i := range out {
		out[i] = Turn{TurnID: string(rune('a' + i)), Transcript: resonance.Transcript{Text: "x"}}
	}
	return out
}

func TestReplay_InOrder(t *testing.T) {
	s := &scripted{results: []engine.ScoreResult{scored(0.9, false, false), scored(0.1, true, false), scored(0.6, false, true)}}
	results, err := Replay(context.Background(), s, "sess", turns(3))
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	for i, req := range s.seen {
		if req.SessionID != "sess" {
			t.Errorf("call %d: session %q", i, req.SessionID)
		}
	}
	if results[1].TurnID != "b" || !results[1].Adversarial || results[1].Operations != 2 {
		t.Errorf("unexpected result %+v", results[1])
	}
}

func TestReplay_StopsOnError(t *testing.T) {
	s := &scripted{results: []engine.ScoreResult{scored(0.9, false, false), scored(0.5, false, false)}, failAt: 2}
	results, err := Replay(context.Background(), s, "sess", turns(2))
	if err == nil {
		t.Fatal("expected error")
	}
	if len(results) != 1 {
		t.Errorf("expected partial results, got %d", len(results))
	}
}

func TestSummarize(t *testing.T) {
	results := []Result{
		{RM: 0.9, Status: resonance.StatusExceptional},
		{RM: 0.1, Status: resonance.StatusLow, Adversarial: true},
		{RM: 0.5, Status: resonance.StatusModerate, Fallback: true, Drift: true},
	}
	s := Summarize("sess", results)
	if s.RunID == "" || s.SessionID != "sess" || s.TotalTurns != 3 {
		t.Fatalf("unexpected summary header %+v", s)
	}
	if s.Adversarial != 1 || s.Fallbacks != 1 || s.Drifts != 1 {
		t.Errorf("unexpected counts %+v", s)
	}
	if math.Abs(s.MeanRM-0.5) > 1e-9 || s.MedianRM != 0.5 || s.MinRM != 0.1 || s.MaxRM != 0.9 {
		t.Errorf("unexpected stats %+v", s)
	}
	if s.ByStatus[resonance.StatusLow] != 1 {
		t.Errorf("unexpected status counts %v", s.ByStatus)
	}

	empty := Summarize("sess", nil)
	if empty.TotalTurns != 0 || empty.MeanRM != 0 {
		t.Errorf("unexpected empty summary %+v", empty)
	}
}
