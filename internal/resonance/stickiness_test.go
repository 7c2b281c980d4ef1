package resonance

import (
	"math"
	"strings"
	"testing"
	"time"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestBlend_NoPrior(t *testing.T) {
	got, note, next := DefaultStickiness().Blend(nil, 0.6, []string{"trust"}, 1, now)
	if got != 0.6 {
		t.Errorf("expected fresh score, got %f", got)
	}
	if next.LastRM != 0.6 || next.DecayTurns != 0 || !next.UpdatedAt.Equal(now) {
		t.Errorf("unexpected next state %+v", next)
	}
	if !strings.Contains(note, "no prior") {
		t.Errorf("unexpected note %q", note)
	}
}

func TestBlend_DecaysPrior(t *testing.T) {
	s := DefaultStickiness()
	prior := &SessionState{LastRM: 0.8}
	got, _, next := s.Blend(prior, 0.6, nil, 1, now)
	want := 0.3*0.8*math.Exp(-0.25) + 0.7*0.6
	if math.Abs(got-want) > 1e-12 {
		t.Errorf("expected %f, got %f", want, got)
	}
	if next.DecayTurns != 1 || next.LastRM != got {
		t.Errorf("unexpected next state %+v", next)
	}
}

func TestBlend_Bounds(t *testing.T) {
	s := DefaultStickiness()
	for _, last := range []float64{0, 0.2, 0.5, 0.9, 1} {
		for _, fresh := range []float64{0, 0.3, 0.7, 1} {
			for elapsed := 1; elapsed <= 5; elapsed++ {
				got, _, _ := s.Blend(&SessionState{LastRM: last}, fresh, nil, elapsed, now)
				if got < 0 || got > 1 {
					t.Fatalf("out of range: last=%f fresh=%f elapsed=%d -> %f", last, fresh, elapsed, got)
				}
				if got > math.Max(last, fresh)+1e-12 {
					t.Fatalf("blend exceeded inputs: last=%f fresh=%f -> %f", last, fresh, got)
				}
			}
		}
	}
}

func TestBlend_Rupture(t *testing.T) {
	got, note, next := DefaultStickiness().Blend(&SessionState{LastRM: 0.9, DecayTurns: 2}, 0.4, nil, 1, now)
	if got != 0.4 || next.DecayTurns != 0 {
		t.Errorf("rupture should return fresh and reset, got %f %+v", got, next)
	}
	if !strings.Contains(note, "rupture") {
		t.Errorf("unexpected note %q", note)
	}
}

func TestBlend_Expired(t *testing.T) {
	got, note, _ := DefaultStickiness().Blend(&SessionState{LastRM: 0.7, DecayTurns: 1}, 0.6, nil, 11, now)
	if got != 0.6 || !strings.Contains(note, "expired") {
		t.Errorf("expected expiry, got %f %q", got, note)
	}
}

func TestBlend_SteadySessionNeverExpires(t *testing.T) {
	s := DefaultStickiness()
	const fresh = 0.8
	settled := (1 - s.Weight) * fresh / (1 - s.Weight*math.Exp(-s.DecayRate))

	var prior *SessionState
	var prev float64
	for turn := 1; turn <= 30; turn++ {
		got, note, next := s.Blend(prior, fresh, nil, 1, now)
		if strings.Contains(note, "expired") || strings.Contains(note, "rupture") {
			t.Fatalf("turn %d: unexpected %q", turn, note)
		}
		if turn > 1 {
			if next.DecayTurns != 1 {
				t.Fatalf("turn %d: expected decay_turns 1, got %d", turn, next.DecayTurns)
			}
			if got > prev+1e-12 {
				t.Fatalf("turn %d: score rose from %f to %f", turn, prev, got)
			}
		}
		prev = got
		prior = &next
	}
	if math.Abs(prev-settled) > 1e-6 {
		t.Errorf("expected settled score %f, got %f", settled, prev)
	}
}

func TestScaffoldHash_OrderIndependent(t *testing.T) {
	a := ScaffoldHash([]string{"trust", "alignment"})
	b := ScaffoldHash([]string{"alignment", "trust"})
	if a != b {
		t.Errorf("hash depends on order: %s vs %s", a, b)
	}
	if a == ScaffoldHash([]string{"trust"}) {
		t.Error("different term sets hashed equal")
	}
}

func TestDetectDrift(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   bool
	}{
		{"too-short", []float64{0.9}, false},
		{"flat", []float64{0.5, 0.5, 0.5, 0.5}, false},
		{"drop", []float64{0.8, 0.8, 0.8, 0.8, 0.4, 0.4, 0.4}, true},
		{"rise", []float64{0.2, 0.2, 0.2, 0.9, 0.9, 0.9}, false},
	}
	for _, tt := range tests {
		if got := DetectDrift(tt.scores, DefaultDriftThreshold); got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestDetectTrend(t *testing.T) {
	if !DetectTrend([]float64{0.9, 0.8, 0.7, 0.6, 0.5}, 5, 0.03) {
		t.Error("expected downward trend")
	}
	if DetectTrend([]float64{0.5, 0.51, 0.5, 0.52, 0.5}, 5, 0.03) {
		t.Error("flat series reported as trend")
	}
	if DetectTrend([]float64{0.9, 0.1}, 5, 0.03) {
		t.Error("short series reported as trend")
	}
}
