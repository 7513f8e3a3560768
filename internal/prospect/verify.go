package prospect

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	"git.home.luguber.info/inful/leadforge/internal/discovery"
)

const (
	verifyTimeout = 15 * time.Second
	verifyBodyCap = 256 << 10
)

// Phrases that mark a registrar landing page rather than a real site.
var parkedMarkers = []string{
	"domain is for sale",
	"this domain is parked",
	"buy this domain",
	"domain parking",
	"sedoparking",
	"parked free, courtesy of",
}

// Verification is the outcome of checking one candidate.
type Verification struct {
	Reachable     bool   `json:"reachable"`
	Parked        bool   `json:"parked"`
	IndustryMatch *bool  `json:"industry_match,omitempty"`
	Detail        string `json:"detail,omitempty"`
	CheckedAt     string `json:"checked_at"`
}

// Verifier checks candidate websites: reachability, parked-domain heuristic,
// and an optional AI industry match. A nil text client skips the AI check.
type Verifier struct {
	client    *http.Client
	ai        ai.TextClient
	userAgent string
}

// NewVerifier builds a verifier. A nil http client gets a default with the
// standard fetch timeout.
func NewVerifier(client *http.Client, textClient ai.TextClient) *Verifier {
	if client == nil {
		client = &http.Client{Timeout: verifyTimeout}
	}
	return &Verifier{client: client, ai: textClient, userAgent: "leadforge-prospect/1.0"}
}

// Verify never returns an error: verification findings are data on the
// candidate, not a reason to drop it. The consumer decides what to do with an
// unreachable or parked site.
func (v *Verifier) Verify(ctx context.Context, brief Brief, c Candidate) Verification {
	out := Verification{CheckedAt: time.Now().UTC().Format(time.RFC3339)}

	body, err := v.fetchBody(ctx, c.Website)
	if err != nil {
		out.Detail = err.Error()
		return out
	}
	out.Reachable = true
	out.Parked = looksParked(body)
	if out.Parked {
		return out
	}

	if v.ai != nil && brief.Industry != "" {
		if match, ok := v.industryMatch(ctx, brief, c); ok {
			out.IndustryMatch = &match
		}
	}
	return out
}

func (v *Verifier) fetchBody(ctx context.Context, site string) (string, error) {
	url, ok := discovery.Canonicalize(site)
	if !ok {
		return "", fmt.Errorf("not a usable website URL: %q", site)
	}
	reqCtx, cancel := context.WithTimeout(ctx, verifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", v.userAgent)
	resp, err := v.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("site returned %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, verifyBodyCap))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func looksParked(body string) bool {
	lower := strings.ToLower(body)
	for _, marker := range parkedMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func (v *Verifier) industryMatch(ctx context.Context, brief Brief, c Candidate) (match, ok bool) {
	raw, err := v.ai.Complete(ctx, ai.Request{
		System: `You verify business categorization. Answer with a single JSON object: {"match": true}`,
		Prompt: fmt.Sprintf("Target industry: %s\nCompany: %s\nWebsite: %s\nDescription: %s\n\nDoes this company belong to the target industry?",
			brief.Industry, c.CompanyName, c.Website, c.Description),
	})
	if err != nil {
		return false, false
	}
	var decoded struct {
		Match bool `json:"match"`
	}
	if err := ai.ParseObject(raw, &decoded); err != nil {
		return false, false
	}
	return decoded.Match, true
}
