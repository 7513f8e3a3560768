// Package prospect turns an ICP brief into verified candidate businesses.
// The actual candidate source is an adapter behind the Finder interface;
// this package owns payload validation, dedup, and verification.
package prospect

import "context"

// Brief is the structured target description driving candidate discovery.
type Brief struct {
	Industry string   `json:"industry"`
	Location string   `json:"location,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Candidate is one business returned by a Finder, before verification.
type Candidate struct {
	CompanyName   string `json:"company_name"`
	Website       string `json:"website"`
	GooglePlaceID string `json:"google_place_id,omitempty"`
	Industry      string `json:"industry,omitempty"`
	Location      string `json:"location,omitempty"`
	Phone         string `json:"phone,omitempty"`
	Description   string `json:"description,omitempty"`
}

// Key returns the candidate's natural identity: the place id when present,
// otherwise the company/website pair. Matches the remote upsert key so a
// candidate seen twice never produces duplicate rows.
func (c Candidate) Key() string {
	if c.GooglePlaceID != "" {
		return c.GooglePlaceID
	}
	return c.CompanyName + "|" + c.Website
}

// Finder discovers candidates for a brief. Implementations may return more or
// fewer than limit; the stage truncates and dedups.
type Finder interface {
	Find(ctx context.Context, brief Brief, limit int) ([]Candidate, error)
}

// FinderFunc adapts a function to Finder.
type FinderFunc func(ctx context.Context, brief Brief, limit int) ([]Candidate, error)

func (f FinderFunc) Find(ctx context.Context, brief Brief, limit int) ([]Candidate, error) {
	return f(ctx, brief, limit)
}
