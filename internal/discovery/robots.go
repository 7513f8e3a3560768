package discovery

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
)

// fetchRobots extracts Sitemap: directives from robots.txt and collects the
// URLs of every sitemap they point to. Sitemaps that fail to fetch are
// reported as per-URL failures.
func (e *Engine) fetchRobots(ctx context.Context, robotsURL string) ([]string, []string, error) {
	body, err := e.fetch(ctx, robotsURL)
	if err != nil {
		return nil, nil, err
	}

	var sitemaps []string
	scanner := bufio.NewScanner(bytes.NewReader(body))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		key, value, found := strings.Cut(line, ":")
		if !found || !strings.EqualFold(strings.TrimSpace(key), "sitemap") {
			continue
		}
		if sm := strings.TrimSpace(value); sm != "" {
			sitemaps = append(sitemaps, sm)
		}
	}

	var out, failures []string
	for _, sm := range sitemaps {
		urls, childFailures, err := e.fetchSitemap(ctx, sm)
		failures = append(failures, childFailures...)
		if err != nil {
			failures = append(failures, fmt.Sprintf("%s: %v", sm, err))
			continue
		}
		out = append(out, urls...)
		if len(out) >= maxSitemapURLs {
			out = out[:maxSitemapURLs]
			break
		}
	}
	return out, failures, nil
}
