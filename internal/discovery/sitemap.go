package discovery

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// maxSitemapURLs caps total URLs collected across a sitemap index tree.
const maxSitemapURLs = 10000

// maxSitemapDepth bounds sitemap-index recursion against cyclic indexes.
const maxSitemapDepth = 5

// errAbsent marks a plain 404: the file is simply not published, as opposed
// to a fetch or parse failure.
var errAbsent = errors.New("not published")

type sitemapURLSet struct {
	XMLName xml.Name `xml:"urlset"`
	URLs    []struct {
		Loc string `xml:"loc"`
	} `xml:"url"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []struct {
		Loc string `xml:"loc"`
	} `xml:"sitemap"`
}

// fetchSitemap collects URLs from a sitemap or sitemap index, recursing into
// child sitemaps until the URL cap is reached. Broken child sitemaps are
// reported as per-URL failures alongside the URLs the rest of the tree yielded.
func (e *Engine) fetchSitemap(ctx context.Context, sitemapURL string) ([]string, []string, error) {
	var out, failures []string
	err := e.collectSitemap(ctx, sitemapURL, 0, &out, &failures)
	if err != nil && len(out) == 0 {
		return nil, failures, err
	}
	return out, failures, nil
}

func (e *Engine) collectSitemap(ctx context.Context, sitemapURL string, depth int, out, failures *[]string) error {
	if depth > maxSitemapDepth || len(*out) >= maxSitemapURLs {
		return nil
	}

	body, err := e.fetch(ctx, sitemapURL)
	if err != nil {
		return err
	}

	// A sitemap file is either a urlset or an index; try both shapes.
	var urlset sitemapURLSet
	if xml.Unmarshal(body, &urlset) == nil && len(urlset.URLs) > 0 {
		for _, u := range urlset.URLs {
			if len(*out) >= maxSitemapURLs {
				return nil
			}
			if loc := strings.TrimSpace(u.Loc); loc != "" {
				*out = append(*out, loc)
			}
		}
		return nil
	}

	var index sitemapIndex
	if xml.Unmarshal(body, &index) == nil && len(index.Sitemaps) > 0 {
		for _, sm := range index.Sitemaps {
			if len(*out) >= maxSitemapURLs {
				return nil
			}
			loc := strings.TrimSpace(sm.Loc)
			if loc == "" {
				continue
			}
			if err := e.collectSitemap(ctx, loc, depth+1, out, failures); err != nil {
				// A broken child sitemap costs its URLs, not the whole tree.
				*failures = append(*failures, fmt.Sprintf("%s: %v", loc, err))
				continue
			}
		}
		return nil
	}

	return fmt.Errorf("%s: not a sitemap or sitemap index", sitemapURL)
}

// fetch performs one bounded GET. Bodies over 16 MiB are truncated.
func (e *Engine) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s: %w", rawURL, errAbsent)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: status %d", rawURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}
