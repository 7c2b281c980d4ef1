package replay

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/s8ken/yseeku-platform-sub012/internal/config"
	"github.com/s8ken/yseeku-platform-sub012/internal/engine"
)

// #region fixture-tests

// TestFixture_Session replays the session fixture through a default engine
// and checks every expectation.
func TestFixture_Session(t *testing.T) {
	f, err := LoadFixture(filepath.Join("testdata", "session.json"))
	if err != nil {
		t.Fatalf("LoadFixture: %v", err)
	}
	if len(f.Turns) != len(f.ExpectedResults) {
		t.Fatalf("fixture has %d turns but %d expectations", len(f.Turns), len(f.ExpectedResults))
	}

	cfg := config.Default()
	f.Config.Apply(&cfg)
	if err := cfg.Validate(); err != nil {
		t.Fatalf("fixture config invalid: %v", err)
	}
	eng, closeFn, err := engine.Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer closeFn()

	results, err := Replay(context.Background(), eng, f.SessionID, f.DomainTurns())
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	for _, m := range Check(results, f.ExpectedResults) {
		t.Error(m.String())
	}
	if !eng.VerifyIntegrity() {
		t.Error("audit chain failed verification after replay")
	}
}

func TestLoadFixture_Missing(t *testing.T) {
	if _, err := LoadFixture(filepath.Join("testdata", "nope.json")); err == nil {
		t.Fatal("expected error for missing fixture")
	}
}

func TestCheck_ReportsMismatches(t *testing.T) {
	yes := true
	hi := 0.5
	results := []Result{{TurnID: "t1", RM: 0.7, Status: "HIGH_RESONANCE"}}
	expected := []FixtureExpectedResult{
		{TurnID: "t1", Status: "LOW_ALIGNMENT", Adversarial: &yes, MaxRM: &hi},
		{TurnID: "t2"},
	}
	got := Check(results, expected)
	if len(got) != 4 {
		t.Fatalf("expected 4 mismatches, got %d: %v", len(got), got)
	}
	if got[3].Field != "turn" {
		t.Errorf("expected missing turn last, got %+v", got[3])
	}
}

func TestFixtureConfig_Apply(t *testing.T) {
	s := 0.9
	cfg := config.Default()
	FixtureConfig{Detector: "cusum", Sensitivity: &s}.Apply(&cfg)
	if cfg.Thresholds.Detector.Kind != "cusum" || cfg.Thresholds.Sensitivity != 0.9 {
		t.Errorf("overrides not applied: %+v", cfg.Thresholds)
	}
	if !cfg.Composer.Parallel {
		t.Error("unset override changed parallel")
	}
}

// #endregion fixture-tests
