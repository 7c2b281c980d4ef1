package lexicon

import (
	"reflect"
	"testing"
)

func TestTokenize(t *testing.T) {
	tokens := Tokenize("Hello, World!  meta_cognition don't")
	want := []string{"hello", "world", "meta_cognition", "don't"}
	if !reflect.DeepEqual(tokens, want) {
		t.Fatalf("expected %v, got %v", want, tokens)
	}
}

func TestTokenize_Empty(t *testing.T) {
	if tokens := Tokenize(""); len(tokens) != 0 {
		t.Errorf("expected 0 tokens for empty string, got %d", len(tokens))
	}
}

func TestSentences(t *testing.T) {
	got := Sentences("First one. Second one!\nThird?  ")
	want := []string{"First one", "Second one", "Third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	if s := Sentences("   ...  "); len(s) != 0 {
		t.Errorf("expected no sentences, got %v", s)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"  a   b  ", "a b"},
		{"line\r\nnext", "line\nnext"},
		{"“quoted” — dash", `"quoted" - dash`},
		{"bell\x07char", "bellchar"},
		{"é", "é"},
	}
	for _, tt := range tests {
		if got := Normalize(tt.in); got != tt.want {
			t.Errorf("Normalize(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFold(t *testing.T) {
	if got := Fold("Ｈｉ"); got != "Hi" {
		t.Errorf("expected fullwidth to fold to Hi, got %q", got)
	}
}

func TestVocabularyPresent(t *testing.T) {
	v := NewVocabulary("trust", "third mind", "api key")
	d := NewDoc("We trust the Third   Mind, not the API-key.")
	got := v.Present(d)
	want := []string{"trust", "third mind", "api key"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
}

func TestVocabularyWordBoundary(t *testing.T) {
	v := NewVocabulary("just")
	if got := v.Present(NewDoc("adjustment")); len(got) != 0 {
		t.Errorf("expected no match inside a longer word, got %v", got)
	}
}

func TestVocabularyOccurrences(t *testing.T) {
	d := NewDoc("ignore this, ignore that, override everything")
	if n := BypassVerbs.Occurrences(d); n != 3 {
		t.Errorf("expected 3 verb occurrences, got %d", n)
	}
}
