// Package lexicon holds the text primitives shared by the scoring packages:
// normalization, tokenization, sentence splitting, and term vocabularies.
package lexicon

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// #region doc

// Doc is a tokenized view of one text. Build it once and share it between
// scorers.
type Doc struct {
	Lower  string
	Tokens []string
	set    map[string]struct{}
	joined string
}

// NewDoc lower-cases and tokenizes text.
func NewDoc(text string) Doc {
	lower := strings.ToLower(text)
	tokens := Tokenize(lower)
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		set[t] = struct{}{}
	}
	return Doc{
		Lower:  lower,
		Tokens: tokens,
		set:    set,
		joined: " " + strings.Join(tokens, " ") + " ",
	}
}

func (d Doc) has(token string) bool {
	_, ok := d.set[token]
	return ok
}

// #endregion doc

// #region tokenize

// Tokenize splits text into lower-case word tokens. Letters, digits,
// underscores and apostrophes are word characters.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\'')
	})
}

// Sentences splits text on terminal punctuation and newlines.
func Sentences(text string) []string {
	parts := strings.FieldsFunc(text, func(r rune) bool {
		return r == '.' || r == '!' || r == '?' || r == '\n'
	})
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// #endregion tokenize

// #region normalize

var (
	controlChars = regexp.MustCompile("[\x00-\x08\x0B\x0C\x0E-\x1F]")
	spaceRun     = regexp.MustCompile(`\s+`)
	typographic  = strings.NewReplacer(
		"“", `"`, "”", `"`, "‘", "'", "’", "'",
		"–", "-", "—", "-", "«", `"`, "»", `"`,
	)
)

// Normalize canonicalizes transcript text: NFC, LF line endings, no control
// characters, ASCII quotes and dashes, single spaces, trimmed lines.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlChars.ReplaceAllString(s, "")
	s = typographic.Replace(s)
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(spaceRun.ReplaceAllString(l, " "))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// Fold applies compatibility folding (NFKC). Fullwidth letters, ligatures and
// similar presentation forms collapse to their plain equivalents.
func Fold(s string) string {
	return norm.NFKC.String(s)
}

// #endregion normalize
