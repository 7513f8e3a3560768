package analyzer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/discovery"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/metrics"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/retrypolicy"
)

// Discoverer abstracts the discovery engine for the stage.
type Discoverer interface {
	Discover(ctx context.Context, siteRoot string) (*discovery.Plan, error)
}

// PageSelector abstracts AI page selection.
type PageSelector interface {
	Select(ctx context.Context, plan *discovery.Plan) discovery.Selection
}

// Payload is the analyze job input.
type Payload struct {
	URL         string `json:"url"`
	CompanyName string `json:"company_name"`
	Industry    string `json:"industry,omitempty"`
	LeadID      string `json:"lead_id,omitempty"`
}

// Stage analyzes one website: discovery, per-dimension AI fan-out, grading.
type Stage struct {
	discoverer Discoverer
	selector   PageSelector
	ai         ai.TextClient
	shots      Screenshotter
	retry      retrypolicy.Policy
	recorder   metrics.Recorder
}

// NewStage wires an analyze stage.
func NewStage(d Discoverer, sel PageSelector, client ai.TextClient, shots Screenshotter, recorder metrics.Recorder) *Stage {
	if shots == nil {
		shots = NoopScreenshotter{}
	}
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	return &Stage{
		discoverer: d,
		selector:   sel,
		ai:         client,
		shots:      shots,
		retry:      retrypolicy.DefaultPolicy(),
		recorder:   recorder,
	}
}

// Engine implements pipeline.Stage.
func (s *Stage) Engine() backup.Engine { return backup.EngineAnalysis }

// Execute implements pipeline.Stage. Cancellation is observed between the
// discovery, screenshot, and each dimension call, never inside one.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (any, backup.Meta, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, backup.Meta{}, lferrors.InvalidPayload("payload", err.Error())
	}
	if payload.URL == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("url", "required")
	}

	result, err := s.Analyze(ctx, payload, job)
	if err != nil {
		return nil, backup.Meta{}, err
	}

	meta := backup.Meta{
		CompanyName:  result.CompanyName,
		URL:          result.URL,
		Grade:        result.Grade,
		OverallScore: &result.OverallScore,
		Industry:     result.Industry,
		LeadID:       payload.LeadID,
	}
	return result, meta, nil
}

// Analyze runs the full analysis. job may be nil on the synchronous path; in
// that case progress and cancellation polling are skipped.
func (s *Stage) Analyze(ctx context.Context, payload Payload, job *queue.Job) (*Result, error) {
	report := func(current, total int, msg string) {
		if job != nil {
			job.Report(current, total, msg)
		}
	}
	cancelled := func() bool { return job != nil && job.CancelRequested() }

	totalSteps := 3 + len(Dimensions())
	report(0, totalSteps, "discovering pages")
	started := time.Now()

	plan, err := s.discoverer.Discover(ctx, payload.URL)
	if err != nil {
		return nil, err
	}
	if cancelled() {
		return nil, lferrors.Cancelled(jobID(job))
	}

	report(1, totalSteps, "selecting pages")
	selection := s.selector.Select(ctx, plan)
	if cancelled() {
		return nil, lferrors.Cancelled(jobID(job))
	}

	report(2, totalSteps, "capturing screenshots")
	screenshots := s.captureScreenshots(ctx, plan.SiteRoot)
	if cancelled() {
		return nil, lferrors.Cancelled(jobID(job))
	}

	result := &Result{
		URL:         plan.SiteRoot,
		CompanyName: payload.CompanyName,
		Industry:    payload.Industry,
		Dimensions:  make(map[string]*DimensionScore, len(Dimensions())),
		Issues:      []string{},
		Strengths:   []string{},
		QuickWins:   []string{},
		Screenshots: screenshots,
		AnalyzedAt:  time.Now().UTC().Format(time.RFC3339),
	}

	s.fanOutDimensions(ctx, result, selection, screenshots)
	if cancelled() {
		return nil, lferrors.Cancelled(jobID(job))
	}
	report(2+len(Dimensions()), totalSteps, "merging results")

	var sum float64
	var scored int
	for _, dim := range Dimensions() {
		if ds := result.Dimensions[dim]; ds != nil {
			sum += ds.Score
			scored++
			result.Issues = append(result.Issues, ds.Issues...)
			result.Strengths = append(result.Strengths, ds.Strengths...)
			result.QuickWins = append(result.QuickWins, ds.QuickWins...)
		}
	}
	if scored > 0 {
		result.OverallScore = sum / float64(scored)
	}
	result.Grade = Grade(result.OverallScore)

	result.DiscoveryLog = DiscoveryLog{
		Summary:         plan.Summary,
		AllPages:        plan.AllPages,
		TotalPagesCount: plan.TotalPagesCount,
		AISelection: AISelectionLog{
			Reasoning:     selection.Reasoning,
			SelectedPages: len(selection.SelectedPages()),
			PagesAnalyzed: selection.SelectedPages(),
		},
		DiscoveryIssues: plan.Issues,
		AnalysisMetrics: map[string]any{
			"dimensions_scored": scored,
			"dimensions_failed": len(Dimensions()) - scored,
			"duration_ms":       time.Since(started).Milliseconds(),
		},
		LoggedAt: time.Now().UTC().Format(time.RFC3339),
	}

	report(totalSteps, totalSteps, "analysis complete")
	slog.Info("Analysis complete",
		logfields.URL(result.URL),
		logfields.Company(result.CompanyName),
		"grade", result.Grade,
		"overall_score", result.OverallScore,
		"dimensions_failed", len(Dimensions())-scored,
	)
	return result, nil
}

// fanOutDimensions scores every dimension concurrently. One dimension
// failing nulls it and records an issue; it never fails the analysis.
func (s *Stage) fanOutDimensions(ctx context.Context, result *Result, selection discovery.Selection, screenshots map[string]string) {
	pagesFor := func(dim string) []string {
		switch dim {
		case DimSEO:
			return selection.SEO
		case DimContent:
			return selection.Content
		case DimVisualDesktop, DimVisualMobile:
			return selection.Visual
		case DimSocial:
			return selection.Social
		default:
			return selection.Content
		}
	}
	shotFor := func(dim string) string {
		switch dim {
		case DimVisualDesktop:
			return screenshots[string(ViewportDesktop)]
		case DimVisualMobile:
			return screenshots[string(ViewportMobile)]
		}
		return ""
	}

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, dim := range Dimensions() {
		wg.Add(1)
		go func(dim string) {
			defer wg.Done()
			pages := pagesFor(dim)
			if len(pages) == 0 {
				pages = []string{result.URL}
			}
			score, err := s.scoreDimension(ctx, dim, pages, shotFor(dim))
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				result.Dimensions[dim] = nil
				result.Issues = append(result.Issues, fmt.Sprintf("%s analysis unavailable: %v", dim, err))
				slog.Warn("Dimension nulled", logfields.Dimension(dim), logfields.Error(err))
				return
			}
			result.Dimensions[dim] = score
		}(dim)
	}
	wg.Wait()
}

func (s *Stage) captureScreenshots(ctx context.Context, siteRoot string) map[string]string {
	out := make(map[string]string)
	for _, vp := range []Viewport{ViewportDesktop, ViewportMobile} {
		shotCtx, cancel := context.WithTimeout(ctx, screenshotTimeout)
		url, err := s.shots.Capture(shotCtx, siteRoot, vp)
		cancel()
		if err != nil {
			slog.Warn("Screenshot capture failed",
				logfields.URL(siteRoot), "viewport", string(vp), logfields.Error(err))
			continue
		}
		if url != "" {
			out[string(vp)] = url
		}
	}
	return out
}

func jobID(job *queue.Job) string {
	if job == nil {
		return ""
	}
	return job.ID
}
