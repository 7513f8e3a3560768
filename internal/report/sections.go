// Package report renders a lead's analysis into a human-readable document.
// Section order is fixed so two renders of the same analysis are
// byte-identical and deduplicate in the blob store.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"git.home.luguber.info/inful/leadforge/internal/analyzer"
)

// Formats the stage accepts.
const (
	FormatMarkdown = "markdown"
	FormatHTML     = "html"
)

var dimensionTitles = map[string]string{
	analyzer.DimSEO:           "Search Visibility",
	analyzer.DimContent:       "Content & Messaging",
	analyzer.DimVisualDesktop: "Visual Design (Desktop)",
	analyzer.DimVisualMobile:  "Visual Design (Mobile)",
	analyzer.DimSocial:        "Social Presence",
	analyzer.DimAccessibility: "Accessibility",
}

// renderMarkdown assembles the fixed section order: cover, summary, scores,
// dimension details, quick wins, discovery appendix.
func renderMarkdown(res *analyzer.Result, generatedAt string) string {
	var b strings.Builder

	// Cover
	fmt.Fprintf(&b, "# Website Analysis Report: %s\n\n", coalesce(res.CompanyName, res.URL))
	fmt.Fprintf(&b, "- **Website:** %s\n", res.URL)
	if res.Industry != "" {
		fmt.Fprintf(&b, "- **Industry:** %s\n", res.Industry)
	}
	fmt.Fprintf(&b, "- **Analyzed:** %s\n", res.AnalyzedAt)
	fmt.Fprintf(&b, "- **Generated:** %s\n\n", generatedAt)

	// Summary
	b.WriteString("## Summary\n\n")
	fmt.Fprintf(&b, "Overall score **%.1f / 100** — grade **%s**.\n\n", res.OverallScore, res.Grade)
	if len(res.Strengths) > 0 {
		b.WriteString("Key strengths:\n\n")
		writeList(&b, res.Strengths, 5)
	}
	if len(res.Issues) > 0 {
		b.WriteString("Top issues:\n\n")
		writeList(&b, res.Issues, 5)
	}

	// Scores
	b.WriteString("## Scores\n\n")
	b.WriteString("| Dimension | Score |\n|---|---|\n")
	for _, dim := range analyzer.Dimensions() {
		if ds := res.Dimensions[dim]; ds != nil {
			fmt.Fprintf(&b, "| %s | %.0f |\n", dimensionTitles[dim], ds.Score)
		} else {
			fmt.Fprintf(&b, "| %s | not assessed |\n", dimensionTitles[dim])
		}
	}
	b.WriteString("\n")

	// Dimension details
	b.WriteString("## Dimension Details\n\n")
	for _, dim := range analyzer.Dimensions() {
		fmt.Fprintf(&b, "### %s\n\n", dimensionTitles[dim])
		ds := res.Dimensions[dim]
		if ds == nil {
			b.WriteString("This dimension could not be assessed.\n\n")
			continue
		}
		if ds.Summary != "" {
			fmt.Fprintf(&b, "%s\n\n", ds.Summary)
		}
		if len(ds.Issues) > 0 {
			b.WriteString("Issues:\n\n")
			writeList(&b, ds.Issues, 0)
		}
		if len(ds.Strengths) > 0 {
			b.WriteString("Strengths:\n\n")
			writeList(&b, ds.Strengths, 0)
		}
	}

	// Quick wins
	b.WriteString("## Quick Wins\n\n")
	if len(res.QuickWins) == 0 {
		b.WriteString("No quick wins identified.\n\n")
	} else {
		for i, qw := range res.QuickWins {
			fmt.Fprintf(&b, "%d. %s\n", i+1, qw)
		}
		b.WriteString("\n")
	}

	// Discovery appendix
	b.WriteString("## Appendix: Page Discovery\n\n")
	fmt.Fprintf(&b, "%s\n\n", res.DiscoveryLog.Summary)
	fmt.Fprintf(&b, "- Pages discovered: %d\n", res.DiscoveryLog.TotalPagesCount)
	fmt.Fprintf(&b, "- Pages analyzed: %d\n", res.DiscoveryLog.AISelection.SelectedPages)
	if res.DiscoveryLog.AISelection.Reasoning != "" {
		fmt.Fprintf(&b, "- Selection reasoning: %s\n", res.DiscoveryLog.AISelection.Reasoning)
	}

	return b.String()
}

// renderHTML converts the markdown source with GFM tables enabled.
func renderHTML(markdown string) (string, error) {
	md := goldmark.New(goldmark.WithExtensions(extension.GFM))
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", fmt.Errorf("render html: %w", err)
	}
	return buf.String(), nil
}

func writeList(b *strings.Builder, items []string, limit int) {
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	for _, item := range items {
		fmt.Fprintf(b, "- %s\n", item)
	}
	b.WriteString("\n")
}

func coalesce(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
