package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"sync"
	"time"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/metrics"
	"git.home.luguber.info/inful/leadforge/internal/retrypolicy"
)

// Engine discovers a site's pages from sitemap, robots, and navigation
// sources in parallel, each under its own timeout.
type Engine struct {
	client        *http.Client
	userAgent     string
	sourceTimeout time.Duration
	rootRetry     retrypolicy.Policy
	recorder      metrics.Recorder
}

// Option configures an Engine.
type Option func(*Engine)

// WithSourceTimeout overrides the per-source timeout (default 15s).
func WithSourceTimeout(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.sourceTimeout = d
		}
	}
}

// WithHTTPClient substitutes the HTTP client (tests).
func WithHTTPClient(c *http.Client) Option {
	return func(e *Engine) { e.client = c }
}

// WithRecorder injects a metrics recorder.
func WithRecorder(r metrics.Recorder) Option {
	return func(e *Engine) {
		if r != nil {
			e.recorder = r
		}
	}
}

// NewEngine creates a discovery engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		client:        &http.Client{Timeout: 15 * time.Second},
		userAgent:     "leadforge-discovery/1.0",
		sourceTimeout: 15 * time.Second,
		rootRetry:     retrypolicy.DefaultPolicy(),
		recorder:      metrics.NoopRecorder{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Discover produces the page plan for a site. The site root must be fetchable:
// it is probed up to 3 attempts with exponential backoff, and a final failure
// fails the whole discovery. Everything after that degrades per source.
func (e *Engine) Discover(ctx context.Context, siteRoot string) (*Plan, error) {
	canonical, ok := Canonicalize(siteRoot)
	if !ok {
		return nil, lferrors.InvalidInput(fmt.Sprintf("invalid site root %q", siteRoot))
	}

	if err := e.probeRoot(ctx, canonical); err != nil {
		return nil, err
	}

	rootURL, _ := url.Parse(canonical)
	base := rootURL.Scheme + "://" + rootURL.Host

	type sourceResult struct {
		source   Source
		urls     []string
		failures []string
		err      error
	}
	results := make([]sourceResult, 3)
	var wg sync.WaitGroup

	run := func(idx int, source Source, fn func(context.Context) ([]string, []string, error)) {
		defer wg.Done()
		srcCtx, cancel := context.WithTimeout(ctx, e.sourceTimeout)
		defer cancel()
		urls, failures, err := fn(srcCtx)
		results[idx] = sourceResult{source: source, urls: urls, failures: failures, err: err}
		e.recorder.IncDiscoverySource(string(source), err == nil)
	}

	wg.Add(3)
	go run(0, SourceSitemap, func(c context.Context) ([]string, []string, error) {
		return e.fetchSitemap(c, base+"/sitemap.xml")
	})
	go run(1, SourceRobots, func(c context.Context) ([]string, []string, error) {
		return e.fetchRobots(c, base+"/robots.txt")
	})
	go run(2, SourceNavigation, func(c context.Context) ([]string, []string, error) {
		urls, err := e.crawlNavigation(c, canonical)
		return urls, nil, err
	})
	wg.Wait()

	plan := &Plan{SiteRoot: canonical}
	seen := make(map[string]bool)
	rootParsed, _ := url.Parse(canonical)

	for _, res := range results {
		plan.Issues.CrawlFailures = append(plan.Issues.CrawlFailures, res.failures...)
		if res.err != nil {
			switch res.source {
			case SourceSitemap:
				if errors.Is(res.err, errAbsent) {
					plan.Issues.SitemapMissing = true
				} else {
					plan.Issues.SitemapError = res.err.Error()
				}
			case SourceRobots:
				if errors.Is(res.err, errAbsent) {
					plan.Issues.RobotsMissing = true
				} else {
					plan.Issues.RobotsError = res.err.Error()
				}
			case SourceNavigation:
				plan.Issues.NavigationError = res.err.Error()
			}
			slog.Debug("Discovery source failed",
				logfields.URL(canonical), "source", string(res.source), logfields.Error(res.err))
			continue
		}
		for _, raw := range res.urls {
			cu, ok := Canonicalize(raw)
			if !ok || seen[cu] {
				continue
			}
			parsed, err := url.Parse(cu)
			if err != nil || !SameOrigin(rootParsed, parsed) {
				continue
			}
			seen[cu] = true
			plan.AllPages = append(plan.AllPages, NewPage(cu, res.source))
		}
	}

	if len(plan.AllPages) == 0 {
		// All sources failed or returned nothing; analysis still proceeds
		// on the home page alone.
		plan.AllPages = []Page{{URL: canonical, Type: TypeHome, Level: 0, Source: SourceFallback}}
		plan.Summary = "discovery fell back to the site root"
	} else {
		sortPages(plan.AllPages)
		plan.Summary = fmt.Sprintf("discovered %d pages across %d sources", len(plan.AllPages), countSources(plan.AllPages))
	}
	plan.TotalPagesCount = len(plan.AllPages)

	slog.Info("Discovery complete",
		logfields.URL(canonical),
		"pages", plan.TotalPagesCount,
		"issues", plan.Issues.Count(),
	)
	return plan, nil
}

// probeRoot verifies the site root answers at all, retrying transient
// failures with exponential backoff.
func (e *Engine) probeRoot(ctx context.Context, canonical string) error {
	var lastErr error
	attempts := e.rootRetry.MaxRetries + 1
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			delay := e.rootRetry.Delay(attempt)
			slog.Debug("Retrying site root probe",
				logfields.URL(canonical), logfields.Attempt(attempt), "delay", delay)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return lferrors.Cancelled("").WithContext("operation", "site root probe")
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, canonical, nil)
		if err != nil {
			return lferrors.InvalidInput(fmt.Sprintf("invalid site root %q", canonical))
		}
		req.Header.Set("User-Agent", e.userAgent)

		resp, err := e.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		resp.Body.Close()
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("site root returned %d", resp.StatusCode)
			continue
		}
		if resp.StatusCode >= 400 && resp.StatusCode != http.StatusForbidden {
			// 4xx (except bot-blocking 403) will not improve with retries.
			return lferrors.New(lferrors.CategoryNotFound, lferrors.SeverityWarning,
				fmt.Sprintf("site root returned %d", resp.StatusCode))
		}
		return nil
	}
	return lferrors.Transient("site root unreachable after retries", lastErr)
}

// sortPages orders home-first, then shallow, then by type priority.
func sortPages(pages []Page) {
	sort.SliceStable(pages, func(i, j int) bool {
		if (pages[i].Type == TypeHome) != (pages[j].Type == TypeHome) {
			return pages[i].Type == TypeHome
		}
		if pages[i].Level != pages[j].Level {
			return pages[i].Level < pages[j].Level
		}
		pi, pj := typePriority(pages[i].Type), typePriority(pages[j].Type)
		if pi != pj {
			return pi < pj
		}
		return pages[i].URL < pages[j].URL
	})
}

func typePriority(t PageType) int {
	switch t {
	case TypeHome:
		return 0
	case TypeServices:
		return 1
	case TypeProducts:
		return 2
	case TypeAbout:
		return 3
	case TypeContact:
		return 4
	case TypeBlog:
		return 5
	default:
		return 6
	}
}

func countSources(pages []Page) int {
	set := make(map[Source]bool)
	for _, p := range pages {
		set[p.Source] = true
	}
	return len(set)
}
