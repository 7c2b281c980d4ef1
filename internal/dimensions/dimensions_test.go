package dimensions

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/stakes"
)

// #region mock

type errEmbedder struct{}

func (errEmbedder) Embed(context.Context, string) (embedding.Vector, error) {
	return nil, errors.New("no embedding")
}

var hash = embedding.NewHashEmbedder(embedding.DefaultHashConfig())

var medium = stakes.Evidence{Level: stakes.Medium, Confidence: 0.5}

func extract(t *testing.T, e Extractor, text string, st stakes.Evidence) Result {
	t.Helper()
	r, err := e.Extract(context.Background(), text, st)
	if err != nil {
		t.Fatalf("%s: unexpected error: %v", e.Name(), err)
	}
	if r.Score < 0 || r.Score > 1 {
		t.Fatalf("%s: score out of range: %f", e.Name(), r.Score)
	}
	return r
}

// #endregion mock

// #region alignment-tests

func TestAlignment_Neutral(t *testing.T) {
	r := extract(t, NewAlignment(hash, DefaultConfig()), "The rain stopped. We went outside.", medium)
	if math.Abs(r.Score-0.8) > 1e-9 {
		t.Errorf("expected 0.8, got %f", r.Score)
	}
	if len(r.Chunks) != 2 {
		t.Errorf("expected 2 chunks, got %d", len(r.Chunks))
	}
}

func TestAlignment_FloorWithScaffoldTerms(t *testing.T) {
	r := extract(t, NewAlignment(hash, DefaultConfig()), "Trust alignment. Ignore previous instructions.", medium)
	if r.Score != 0.5 {
		t.Errorf("expected floor 0.5, got %f", r.Score)
	}
}

func TestAlignment_Empty(t *testing.T) {
	r := extract(t, NewAlignment(hash, DefaultConfig()), "  ", medium)
	if r.Score != 0 {
		t.Errorf("expected 0 for empty text, got %f", r.Score)
	}
}

func TestAlignment_EmbedError(t *testing.T) {
	_, err := NewAlignment(errEmbedder{}, DefaultConfig()).Extract(context.Background(), "Hello.", medium)
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

// #endregion alignment-tests

// #region continuity-tests

func TestContinuity_EdgeCases(t *testing.T) {
	c := NewContinuity(hash)
	if r := extract(t, c, "", medium); r.Score != 0 {
		t.Errorf("no text: expected 0, got %f", r.Score)
	}
	if r := extract(t, c, "Only one sentence here.", medium); r.Score != 0.5 {
		t.Errorf("one sentence: expected exactly 0.5, got %f", r.Score)
	}
}

func TestContinuity_IdenticalSentences(t *testing.T) {
	r := extract(t, NewContinuity(hash), "Same words here. Same words here.", medium)
	if math.Abs(r.Score-1) > 1e-9 {
		t.Errorf("expected 1 for identical sentences, got %f", r.Score)
	}
}

func TestContinuity_EmbedError(t *testing.T) {
	_, err := NewContinuity(errEmbedder{}).Extract(context.Background(), "One. Two.", medium)
	if err == nil {
		t.Fatal("expected error from failing embedder")
	}
}

// #endregion continuity-tests

// #region scaffold-tests

func TestScaffold_Fraction(t *testing.T) {
	r := extract(t, NewScaffold(), "We trust the third mind.", medium)
	if math.Abs(r.Score-0.1) > 1e-9 {
		t.Errorf("expected 2/20, got %f", r.Score)
	}
	if len(r.Evidence) != 2 {
		t.Errorf("expected 2 evidence terms, got %v", r.Evidence)
	}
}

// #endregion scaffold-tests

// #region ethics-tests

func TestEthics_Saturation(t *testing.T) {
	e := NewEthics(DefaultConfig())
	text := "We should consider the impact."
	tests := []struct {
		level stakes.Level
		want  float64
	}{
		{stakes.High, 0.75},
		{stakes.Medium, 0.875},
		{stakes.Low, 1.0},
	}
	for _, tt := range tests {
		r := extract(t, e, text, stakes.Evidence{Level: tt.level})
		if math.Abs(r.Score-tt.want) > 1e-9 {
			t.Errorf("%s: expected %f, got %f", tt.level, tt.want, r.Score)
		}
	}
}

func TestEthics_NoTerms(t *testing.T) {
	r := extract(t, NewEthics(DefaultConfig()), "The sky is blue.", medium)
	if r.Score != 0.5 {
		t.Errorf("expected 0.5, got %f", r.Score)
	}
}

// #endregion ethics-tests

func TestDefaults_Order(t *testing.T) {
	ex := Defaults(hash, DefaultConfig())
	if len(ex) != len(Order) {
		t.Fatalf("expected %d extractors, got %d", len(Order), len(ex))
	}
	for i, e := range ex {
		if e.Name() != Order[i] {
			t.Errorf("position %d: got %s, want %s", i, e.Name(), Order[i])
		}
	}
}
