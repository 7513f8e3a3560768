// Package analyzer implements the website analysis stage: discovery, AI
// scoring across dimensions, grading, and the discovery log embedded in the
// result record.
package analyzer

import (
	"git.home.luguber.info/inful/leadforge/internal/discovery"
)

// Dimension names. Each gets its own AI call; a failed call nulls the
// dimension without failing the job.
const (
	DimSEO           = "seo"
	DimContent       = "content"
	DimVisualDesktop = "visual_desktop"
	DimVisualMobile  = "visual_mobile"
	DimSocial        = "social"
	DimAccessibility = "accessibility"
)

// Dimensions lists every analyzer dimension in scoring order.
func Dimensions() []string {
	return []string{DimSEO, DimContent, DimVisualDesktop, DimVisualMobile, DimSocial, DimAccessibility}
}

// DimensionScore is the scored output of one dimension.
type DimensionScore struct {
	Score     float64  `json:"score"`
	Summary   string   `json:"summary,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	Strengths []string `json:"strengths,omitempty"`
	QuickWins []string `json:"quick_wins,omitempty"`
}

// AISelectionLog records what the page selector chose and why.
type AISelectionLog struct {
	Reasoning     string   `json:"reasoning"`
	SelectedPages int      `json:"selected_pages"`
	PagesAnalyzed []string `json:"pages_analyzed"`
}

// DiscoveryLog is the audit trail embedded in every analysis record.
type DiscoveryLog struct {
	Summary          string           `json:"summary"`
	AllPages         []discovery.Page `json:"all_pages"`
	TotalPagesCount  int              `json:"total_pages_count"`
	AISelection      AISelectionLog   `json:"ai_selection"`
	DiscoveryIssues  discovery.Issues `json:"discovery_issues"`
	CriticalFindings []string         `json:"critical_findings,omitempty"`
	TechnicalDetails map[string]any   `json:"technical_details,omitempty"`
	AnalysisMetrics  map[string]any   `json:"analysis_metrics,omitempty"`
	LoggedAt         string           `json:"logged_at"`
}

// Result is the canonical analysis payload. A nil entry in Dimensions means
// that dimension's AI call failed; the failure is listed in Issues.
type Result struct {
	URL          string                     `json:"url"`
	CompanyName  string                     `json:"company_name"`
	Industry     string                     `json:"industry,omitempty"`
	OverallScore float64                    `json:"overall_score"`
	Grade        string                     `json:"grade"`
	Dimensions   map[string]*DimensionScore `json:"dimensions"`
	Issues       []string                   `json:"issues"`
	Strengths    []string                   `json:"strengths"`
	QuickWins    []string                   `json:"quick_wins"`
	Screenshots  map[string]string          `json:"screenshots,omitempty"`
	DiscoveryLog DiscoveryLog               `json:"discovery_log"`
	AnalyzedAt   string                     `json:"analyzed_at"`
}
