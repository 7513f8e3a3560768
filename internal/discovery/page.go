// Package discovery produces a merged, ranked page list for a site and hands
// it to an AI selector that picks pages per analyzer dimension. Source
// failures degrade, never abort: only an unreachable site root is fatal.
package discovery

import (
	"net/url"
	"regexp"
	"strings"
)

// Source tags where a page was first discovered. When a URL appears in
// multiple sources the earliest in (sitemap, robots, navigation) wins.
type Source string

const (
	SourceSitemap    Source = "sitemap"
	SourceRobots     Source = "robots"
	SourceNavigation Source = "navigation"
	SourceFallback   Source = "fallback"
)

// PageType labels a page by its path shape.
type PageType string

const (
	TypeHome     PageType = "home"
	TypeAbout    PageType = "about"
	TypeContact  PageType = "contact"
	TypeBlog     PageType = "blog"
	TypeServices PageType = "services"
	TypeProducts PageType = "products"
	TypePricing  PageType = "pricing"
	TypeOther    PageType = "other"
)

// Page is one discovered URL with its classification.
type Page struct {
	URL    string   `json:"url"`
	Type   PageType `json:"type"`
	Level  int      `json:"level"`
	Source Source   `json:"source"`
}

// Issues records non-fatal discovery problems, surfaced in the discovery log.
// A missing sitemap or robots file (a plain 404) is distinguished from one
// that failed to fetch or parse; crawl_failures collects per-URL fetch
// failures below the top-level sources.
type Issues struct {
	SitemapMissing  bool     `json:"sitemap_missing,omitempty"`
	SitemapError    string   `json:"sitemap_error,omitempty"`
	RobotsMissing   bool     `json:"robots_missing,omitempty"`
	RobotsError     string   `json:"robots_error,omitempty"`
	NavigationError string   `json:"navigation_error,omitempty"`
	CrawlFailures   []string `json:"crawl_failures,omitempty"`
}

// Count tallies recorded issues.
func (i Issues) Count() int {
	n := len(i.CrawlFailures)
	if i.SitemapMissing {
		n++
	}
	if i.RobotsMissing {
		n++
	}
	for _, msg := range []string{i.SitemapError, i.RobotsError, i.NavigationError} {
		if msg != "" {
			n++
		}
	}
	return n
}

// Plan is the discovery result handed to the analyzer.
type Plan struct {
	SiteRoot        string `json:"site_root"`
	Summary         string `json:"summary"`
	AllPages        []Page `json:"all_pages"`
	TotalPagesCount int    `json:"total_pages_count"`
	Issues          Issues `json:"discovery_issues"`
}

var pathTypePatterns = []struct {
	re *regexp.Regexp
	t  PageType
}{
	{regexp.MustCompile(`^/about`), TypeAbout},
	{regexp.MustCompile(`^/contact`), TypeContact},
	{regexp.MustCompile(`^/blog`), TypeBlog},
	{regexp.MustCompile(`^/services|^/service/`), TypeServices},
	{regexp.MustCompile(`^/products|^/product/`), TypeProducts},
	{regexp.MustCompile(`^/pricing`), TypePricing},
}

// Canonicalize normalizes a URL for deduplication: lowercase host, trailing
// slash stripped, fragment dropped, query preserved only on the root path.
func Canonicalize(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""

	path := strings.TrimRight(u.Path, "/")
	rootOnly := path == ""
	u.Path = path
	if !rootOnly {
		u.RawQuery = ""
	}
	return u.String(), true
}

// Classify assigns a page type from the URL's path.
func Classify(canonical string) PageType {
	u, err := url.Parse(canonical)
	if err != nil {
		return TypeOther
	}
	path := strings.ToLower(u.Path)
	if path == "" || path == "/" {
		return TypeHome
	}
	for _, p := range pathTypePatterns {
		if p.re.MatchString(path) {
			return p.t
		}
	}
	return TypeOther
}

// Level counts non-empty path segments.
func Level(canonical string) int {
	u, err := url.Parse(canonical)
	if err != nil {
		return 0
	}
	n := 0
	for _, seg := range strings.Split(u.Path, "/") {
		if seg != "" {
			n++
		}
	}
	return n
}

// NewPage builds a classified page from a canonical URL.
func NewPage(canonical string, source Source) Page {
	return Page{
		URL:    canonical,
		Type:   Classify(canonical),
		Level:  Level(canonical),
		Source: source,
	}
}

// SameOrigin reports whether the candidate URL shares scheme-less origin with
// the site root (host comparison is case-insensitive).
func SameOrigin(root *url.URL, candidate *url.URL) bool {
	return strings.EqualFold(root.Host, candidate.Host)
}
