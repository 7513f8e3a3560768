package analyzer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
)

const dimensionSystem = "You are a website marketing auditor. Score the requested dimension " +
	"from 0 to 100 and answer with a single JSON object: " +
	`{"score": 0, "summary": "", "issues": [], "strengths": [], "quick_wins": []}`

var dimensionFocus = map[string]string{
	DimSEO:           "search engine optimization: titles, headings, structure, internal linking",
	DimContent:       "content quality: clarity, persuasion, calls to action, trust signals",
	DimVisualDesktop: "visual design on desktop: layout, hierarchy, branding consistency",
	DimVisualMobile:  "visual design on mobile: responsiveness, tap targets, readability",
	DimSocial:        "social presence: profile links, share metadata, community signals",
	DimAccessibility: "accessibility: alt text, contrast, semantic structure, keyboard use",
}

// scoreDimension runs one dimension's AI call with bounded retries. Transient
// failures retry with backoff; unusable output is a quality error the caller
// turns into a nulled dimension.
func (s *Stage) scoreDimension(ctx context.Context, dim string, pages []string, screenshotURL string) (*DimensionScore, error) {
	policy := s.retry
	var lastErr error
	attempts := policy.MaxRetries + 1

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(policy.Delay(attempt)):
			case <-ctx.Done():
				return nil, lferrors.Cancelled("").WithContext("dimension", dim)
			}
		}

		start := time.Now()
		raw, err := s.ai.Complete(ctx, ai.Request{
			System: dimensionSystem,
			Prompt: buildDimensionPrompt(dim, pages, screenshotURL),
		})
		s.recorder.ObserveAICallDuration(dim, time.Since(start), err == nil)

		if err != nil {
			lastErr = err
			if !lferrors.IsRetryable(err) {
				return nil, err
			}
			slog.Debug("Dimension call failed, retrying",
				logfields.Dimension(dim), logfields.Attempt(attempt+1), logfields.Error(err))
			continue
		}

		score, perr := parseDimensionResponse(raw)
		if perr != nil {
			// Unusable output seldom improves on immediate retry with the
			// same prompt; treat as quality and move on.
			return nil, lferrors.Quality(dim, perr)
		}
		return score, nil
	}
	return nil, lferrors.Transient(fmt.Sprintf("dimension %s failed after %d attempts", dim, attempts), lastErr)
}

func parseDimensionResponse(raw string) (*DimensionScore, error) {
	var decoded struct {
		Score     any    `json:"score"`
		Summary   string `json:"summary"`
		Issues    any    `json:"issues"`
		Strengths any    `json:"strengths"`
		QuickWins any    `json:"quick_wins"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		return nil, err
	}
	score, ok := ai.Number(decoded.Score)
	if !ok {
		return nil, fmt.Errorf("response has no numeric score")
	}
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return &DimensionScore{
		Score:     score,
		Summary:   decoded.Summary,
		Issues:    ai.StringList(decoded.Issues),
		Strengths: ai.StringList(decoded.Strengths),
		QuickWins: ai.StringList(decoded.QuickWins),
	}, nil
}

func buildDimensionPrompt(dim string, pages []string, screenshotURL string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Dimension: %s\nFocus: %s\n\nPages to assess:\n", dim, dimensionFocus[dim])
	for _, p := range pages {
		fmt.Fprintf(&b, "- %s\n", p)
	}
	if screenshotURL != "" {
		fmt.Fprintf(&b, "\nRendered screenshot: %s\n", screenshotURL)
	}
	b.WriteString("\nRespond with the JSON object only.")
	return b.String()
}
