package prospect

import (
	"context"
	"fmt"
	"strings"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

const finderSystem = "You research real businesses matching a target profile. " +
	"Only list businesses you are confident exist, with their real websites. " +
	"Answer with a single JSON object: " +
	`{"candidates": [{"company_name": "", "website": "", "google_place_id": "", "industry": "", "location": "", "description": ""}]}`

// AIFinder sources candidates from the text model. Invented entries are
// tolerable here: verification and the downstream analyze stage weed out
// businesses whose websites do not resolve.
type AIFinder struct {
	ai ai.TextClient
}

// NewAIFinder wires a model-backed finder.
func NewAIFinder(client ai.TextClient) *AIFinder {
	return &AIFinder{ai: client}
}

// Find implements Finder.
func (f *AIFinder) Find(ctx context.Context, brief Brief, limit int) ([]Candidate, error) {
	raw, err := f.ai.Complete(ctx, ai.Request{
		System: finderSystem,
		Prompt: buildFinderPrompt(brief, limit),
	})
	if err != nil {
		return nil, err
	}

	var decoded struct {
		Candidates []Candidate `json:"candidates"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		return nil, lferrors.Quality("prospecting", err)
	}
	return decoded.Candidates, nil
}

func buildFinderPrompt(brief Brief, limit int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Find up to %d businesses.\nIndustry: %s\n", limit, brief.Industry)
	if brief.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", brief.Location)
	}
	if len(brief.Keywords) > 0 {
		fmt.Fprintf(&b, "Keywords: %s\n", strings.Join(brief.Keywords, ", "))
	}
	b.WriteString("\nOmit google_place_id when unknown. Respond with the JSON object only.")
	return b.String()
}
