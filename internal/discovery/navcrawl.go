package discovery

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
)

// crawlNavigation fetches the homepage and extracts same-origin links one
// level deep. Relative hrefs resolve against the page URL.
func (e *Engine) crawlNavigation(ctx context.Context, siteRoot string) ([]string, error) {
	root, err := url.Parse(siteRoot)
	if err != nil {
		return nil, fmt.Errorf("parse site root: %w", err)
	}

	body, err := e.fetch(ctx, siteRoot)
	if err != nil {
		return nil, err
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("parse homepage: %w", err)
	}

	seen := make(map[string]bool)
	var out []string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				href := strings.TrimSpace(attr.Val)
				if href == "" || strings.HasPrefix(href, "#") ||
					strings.HasPrefix(href, "mailto:") || strings.HasPrefix(href, "tel:") ||
					strings.HasPrefix(href, "javascript:") {
					continue
				}
				ref, err := url.Parse(href)
				if err != nil {
					continue
				}
				abs := root.ResolveReference(ref)
				if !SameOrigin(root, abs) {
					continue
				}
				if s := abs.String(); !seen[s] {
					seen[s] = true
					out = append(out, s)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return out, nil
}
