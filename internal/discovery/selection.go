package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
)

// maxCandidatePages bounds the prompt size: the ranked list is truncated
// before it reaches the model.
const maxCandidatePages = 200

// maxPerDimension caps how many pages one analyzer dimension receives.
const maxPerDimension = 5

// Selection maps analyzer dimensions to the pages chosen for them.
type Selection struct {
	SEO       []string `json:"seo"`
	Content   []string `json:"content"`
	Visual    []string `json:"visual"`
	Social    []string `json:"social"`
	Reasoning string   `json:"reasoning"`
	Fallback  bool     `json:"fallback,omitempty"`
}

// SelectedPages flattens the selection into a deduplicated URL list.
func (s Selection) SelectedPages() []string {
	seen := make(map[string]bool)
	var out []string
	for _, group := range [][]string{s.SEO, s.Content, s.Visual, s.Social} {
		for _, u := range group {
			if !seen[u] {
				seen[u] = true
				out = append(out, u)
			}
		}
	}
	return out
}

// Selector asks a text model which pages each dimension should analyze, and
// falls back to a heuristic pick when the model is unavailable or unusable.
type Selector struct {
	client ai.TextClient
}

// NewSelector creates a selector backed by the given model client.
func NewSelector(client ai.TextClient) *Selector {
	return &Selector{client: client}
}

const selectionSystem = "You are selecting website pages for a marketing analysis. " +
	"Answer with a single JSON object and nothing else."

// Select picks up to 5 pages per dimension from the plan. Model output is
// normalized defensively: fences stripped, unknown URLs discarded, empty
// selections replaced by the heuristic list.
func (s *Selector) Select(ctx context.Context, plan *Plan) Selection {
	candidates := plan.AllPages
	if len(candidates) > maxCandidatePages {
		candidates = candidates[:maxCandidatePages]
	}

	known := make(map[string]bool, len(candidates))
	for _, p := range candidates {
		known[p.URL] = true
	}

	if s.client == nil {
		return heuristicSelection(candidates)
	}

	raw, err := s.client.Complete(ctx, ai.Request{
		System: selectionSystem,
		Prompt: buildSelectionPrompt(candidates),
	})
	if err != nil {
		slog.Warn("AI page selection failed, using heuristic",
			logfields.URL(plan.SiteRoot), logfields.Error(err))
		return heuristicSelection(candidates)
	}

	var decoded struct {
		SEO       any    `json:"seo"`
		Content   any    `json:"content"`
		Visual    any    `json:"visual"`
		Social    any    `json:"social"`
		Reasoning string `json:"reasoning"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		slog.Warn("AI page selection unparseable, using heuristic",
			logfields.URL(plan.SiteRoot), logfields.Error(err))
		return heuristicSelection(candidates)
	}

	sel := Selection{
		SEO:       filterKnown(ai.StringList(decoded.SEO), known),
		Content:   filterKnown(ai.StringList(decoded.Content), known),
		Visual:    filterKnown(ai.StringList(decoded.Visual), known),
		Social:    filterKnown(ai.StringList(decoded.Social), known),
		Reasoning: decoded.Reasoning,
	}
	if len(sel.SelectedPages()) == 0 {
		slog.Warn("AI page selection returned nothing usable, using heuristic",
			logfields.URL(plan.SiteRoot))
		return heuristicSelection(candidates)
	}
	return sel
}

// filterKnown drops URLs the model invented and caps the list. Canonical form
// differences are tolerated.
func filterKnown(urls []string, known map[string]bool) []string {
	var out []string
	for _, u := range urls {
		cu, ok := Canonicalize(u)
		if !ok {
			continue
		}
		if !known[cu] && !known[u] {
			continue
		}
		if known[cu] {
			u = cu
		}
		out = append(out, u)
		if len(out) == maxPerDimension {
			break
		}
	}
	return out
}

// heuristicSelection is the no-model path: each dimension gets the top-ranked
// pages, with a preference for the types most relevant to it.
func heuristicSelection(candidates []Page) Selection {
	pick := func(prefer ...PageType) []string {
		var out []string
		seen := make(map[string]bool)
		for _, t := range prefer {
			for _, p := range candidates {
				if p.Type == t && !seen[p.URL] {
					seen[p.URL] = true
					out = append(out, p.URL)
					if len(out) == maxPerDimension {
						return out
					}
				}
			}
		}
		for _, p := range candidates {
			if !seen[p.URL] {
				seen[p.URL] = true
				out = append(out, p.URL)
				if len(out) == maxPerDimension {
					break
				}
			}
		}
		return out
	}

	return Selection{
		SEO:       pick(TypeHome, TypeServices, TypeProducts),
		Content:   pick(TypeHome, TypeBlog, TypeAbout),
		Visual:    pick(TypeHome, TypeProducts, TypePricing),
		Social:    pick(TypeHome, TypeContact, TypeAbout),
		Reasoning: "heuristic selection: top-ranked pages per dimension",
		Fallback:  true,
	}
}

func buildSelectionPrompt(candidates []Page) string {
	var b strings.Builder
	b.WriteString("From the page list below, choose up to 5 URLs for each analysis dimension.\n")
	b.WriteString("Dimensions: seo, content, visual, social.\n")
	b.WriteString("Only use URLs from the list. Respond with JSON: ")
	b.WriteString(`{"seo":[],"content":[],"visual":[],"social":[],"reasoning":""}`)
	b.WriteString("\n\nPages:\n")
	for _, p := range candidates {
		fmt.Fprintf(&b, "- %s (type=%s, level=%d)\n", p.URL, p.Type, p.Level)
	}
	return b.String()
}
