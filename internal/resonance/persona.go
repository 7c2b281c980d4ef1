package resonance

import (
	"context"
	"fmt"

	"github.com/s8ken/yseeku-platform-sub012/internal/embedding"
	"github.com/s8ken/yseeku-platform-sub012/internal/lexicon"
)

// #region persona

// PersonaNeutral is reported when no persona vocabulary matches.
const PersonaNeutral = "neutral"

// Persona is the voice a response leans toward. Confidence is the dominant
// persona's share of all persona terms found.
type Persona struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

var personas = []struct {
	name  string
	vocab lexicon.Vocabulary
}{
	{"sovereign", lexicon.PersonaSovereign},
	{"collaborative", lexicon.PersonaCollaborative},
	{"analytical", lexicon.PersonaAnalytical},
	{"creative", lexicon.PersonaCreative},
}

// DetectPersona counts the distinct persona terms in doc. Ties go to the
// earlier persona.
func DetectPersona(doc lexicon.Doc) Persona {
	best, bestN, total := PersonaNeutral, 0, 0
	for _, p := range personas {
		n := len(p.vocab.Present(doc))
		total += n
		if n > bestN {
			best, bestN = p.name, n
		}
	}
	if total == 0 {
		return Persona{Name: PersonaNeutral}
	}
	return Persona{Name: best, Confidence: float64(bestN) / float64(total)}
}

// #endregion persona

// #region identity

// IdentityCoherence is the mean cosine similarity between consecutive
// responses. Fewer than two responses are fully coherent.
func IdentityCoherence(ctx context.Context, e embedding.Embedder, responses []string) (float64, error) {
	if len(responses) < 2 {
		return 1, nil
	}
	prev, err := e.Embed(ctx, responses[0])
	if err != nil {
		return 0, fmt.Errorf("embed response 0: %w", err)
	}
	var sum float64
	for i := 1; i < len(responses); i++ {
		cur, err := e.Embed(ctx, responses[i])
		if err != nil {
			return 0, fmt.Errorf("embed response %d: %w", i, err)
		}
		sum += embedding.CosineSimilarity(prev, cur)
		prev = cur
	}
	return sum / float64(len(responses)-1), nil
}

// #endregion identity
