package discovery

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/retrypolicy"
)

// testSite builds an httptest server serving the given routes; everything
// else is 404.
func testSite(t *testing.T, routes map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func fastEngine(srv *httptest.Server) *Engine {
	e := NewEngine(
		WithHTTPClient(srv.Client()),
		WithSourceTimeout(5*time.Second),
	)
	e.rootRetry = retrypolicy.Policy{Mode: retrypolicy.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 2}
	return e
}

func TestDiscoverMergesSourcesFirstDiscovererWins(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		routes := map[string]string{
			"/":                  `<html><body><a href="/about">A</a><a href="/services">S</a><a href="https://elsewhere.example/p">X</a><a href="#top">T</a></body></html>`,
			"/sitemap.xml":       `<?xml version="1.0"?><urlset><url><loc>` + srv.URL + `/about</loc></url><url><loc>` + srv.URL + `/pricing</loc></url></urlset>`,
			"/robots.txt":        "User-agent: *\nSitemap: " + srv.URL + "/extra-sitemap.xml\n",
			"/extra-sitemap.xml": `<?xml version="1.0"?><urlset><url><loc>` + srv.URL + `/blog</loc></url><url><loc>` + srv.URL + `/about</loc></url></urlset>`,
		}
		body, ok := routes[r.URL.Path]
		if !ok {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(body))
	}))
	defer srv.Close()

	e := fastEngine(srv)
	plan, err := e.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}

	byURL := make(map[string]Page)
	for _, p := range plan.AllPages {
		byURL[p.URL] = p
	}

	about, ok := byURL[canonMust(t, srv.URL+"/about")]
	if !ok {
		t.Fatalf("about page missing from plan: %+v", plan.AllPages)
	}
	if about.Source != SourceSitemap {
		t.Fatalf("duplicate URL must keep the earliest source, got %s", about.Source)
	}
	if _, ok := byURL["https://elsewhere.example/p"]; ok {
		t.Fatal("cross-origin links must be filtered")
	}
	if plan.TotalPagesCount != len(plan.AllPages) {
		t.Fatal("total_pages_count must match all_pages")
	}
}

func TestDiscoverFallbackWhenAllSourcesFail(t *testing.T) {
	srv := testSite(t, map[string]string{
		// Root responds but is not HTML with links; sitemap and robots 404.
		"/": "plain text, no links",
	})

	e := fastEngine(srv)
	plan, err := e.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("discover must not fail when only sources fail: %v", err)
	}
	if len(plan.AllPages) != 1 || plan.AllPages[0].Source != SourceFallback {
		t.Fatalf("expected single fallback page, got %+v", plan.AllPages)
	}
	if plan.AllPages[0].Type != TypeHome || plan.AllPages[0].Level != 0 {
		t.Fatalf("fallback page must be the home page, got %+v", plan.AllPages[0])
	}
	if !plan.Issues.SitemapMissing {
		t.Fatal("sitemap_missing must be recorded")
	}
}

func TestDiscoverFailsWhenRootUnreachable(t *testing.T) {
	srv := testSite(t, nil)
	url := srv.URL
	srv.Close() // nothing listens any more

	e := NewEngine(WithSourceTimeout(time.Second))
	e.rootRetry = retrypolicy.Policy{Mode: retrypolicy.BackoffFixed, Initial: time.Millisecond, Max: time.Millisecond, MaxRetries: 1}

	if _, err := e.Discover(context.Background(), url); err == nil {
		t.Fatal("unreachable site root must fail discovery")
	}
}

func TestSitemapIndexRecursionAndCap(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>%s/child-1.xml</loc></sitemap><sitemap><loc>%s/child-2.xml</loc></sitemap></sitemapindex>`, srv.URL, srv.URL)
		case "/child-1.xml", "/child-2.xml":
			var b strings.Builder
			b.WriteString(`<?xml version="1.0"?><urlset>`)
			for i := 0; i < 6000; i++ {
				fmt.Fprintf(&b, "<url><loc>%s%s/page-%d</loc></url>", srv.URL, r.URL.Path, i)
			}
			b.WriteString(`</urlset>`)
			_, _ = w.Write([]byte(b.String()))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := fastEngine(srv)
	urls, _, err := e.fetchSitemap(context.Background(), srv.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("fetch sitemap: %v", err)
	}
	if len(urls) != maxSitemapURLs {
		t.Fatalf("12000 available URLs must cap at %d, got %d", maxSitemapURLs, len(urls))
	}
}

func TestDiscoverDistinguishesSitemapErrorFromMissing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/":
			_, _ = w.Write([]byte(`<html><body><a href="/about">A</a></body></html>`))
		case "/sitemap.xml":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := fastEngine(srv)
	plan, err := e.Discover(context.Background(), srv.URL)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	if plan.Issues.SitemapMissing {
		t.Fatal("a 500 response is not a missing sitemap")
	}
	if plan.Issues.SitemapError == "" {
		t.Fatal("sitemap_error must carry the fetch failure")
	}
	if !plan.Issues.RobotsMissing || plan.Issues.RobotsError != "" {
		t.Fatalf("a 404 robots.txt must record robots_missing only, got %+v", plan.Issues)
	}
}

func TestBrokenChildSitemapRecordedAsCrawlFailure(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/sitemap.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><sitemapindex><sitemap><loc>%s/good.xml</loc></sitemap><sitemap><loc>%s/broken.xml</loc></sitemap></sitemapindex>`, srv.URL, srv.URL)
		case "/good.xml":
			fmt.Fprintf(w, `<?xml version="1.0"?><urlset><url><loc>%s/about</loc></url></urlset>`, srv.URL)
		case "/broken.xml":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := fastEngine(srv)
	urls, failures, err := e.fetchSitemap(context.Background(), srv.URL+"/sitemap.xml")
	if err != nil {
		t.Fatalf("fetch sitemap: %v", err)
	}
	if len(urls) != 1 {
		t.Fatalf("the healthy child's URLs must survive, got %v", urls)
	}
	if len(failures) != 1 || !strings.Contains(failures[0], "/broken.xml") {
		t.Fatalf("the broken child must be reported as a crawl failure, got %v", failures)
	}
}

func canonMust(t *testing.T, raw string) string {
	t.Helper()
	c, ok := Canonicalize(raw)
	if !ok {
		t.Fatalf("canonicalize %q failed", raw)
	}
	return c
}
