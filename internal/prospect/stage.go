package prospect

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/discovery"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

const (
	defaultCount = 10
	maxCount     = 100
)

// Payload is the prospecting job input.
type Payload struct {
	Brief   Brief `json:"brief"`
	Count   int   `json:"count,omitempty"`
	Options struct {
		Verify bool `json:"verify,omitempty"`
	} `json:"options,omitempty"`
}

// Row is one prospect as the remote store receives it. Rows carrying a
// google_place_id upsert on it; rows without one upsert on the
// company/website pair.
type Row struct {
	CompanyName   string        `json:"company_name"`
	Website       string        `json:"website"`
	GooglePlaceID string        `json:"google_place_id,omitempty"`
	Industry      string        `json:"industry,omitempty"`
	Location      string        `json:"location,omitempty"`
	Phone         string        `json:"phone,omitempty"`
	Description   string        `json:"description,omitempty"`
	Verification  *Verification `json:"verification,omitempty"`
	DiscoveredAt  string        `json:"discovered_at"`
}

// Stage runs prospecting jobs: query the finder, dedup, verify, emit rows.
type Stage struct {
	finder   Finder
	verifier *Verifier
}

// NewStage wires a prospecting stage. A nil verifier disables verification
// regardless of the payload options.
func NewStage(finder Finder, verifier *Verifier) *Stage {
	return &Stage{finder: finder, verifier: verifier}
}

// Engine implements pipeline.Stage.
func (s *Stage) Engine() backup.Engine { return backup.EngineProspecting }

// Execute implements pipeline.Stage. Progress is reported per candidate;
// cancellation is observed between candidates, never inside one check.
func (s *Stage) Execute(ctx context.Context, job *queue.Job) (any, backup.Meta, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, backup.Meta{}, lferrors.InvalidPayload("payload", err.Error())
	}
	if payload.Brief.Industry == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("brief.industry", "required")
	}
	if payload.Count <= 0 {
		payload.Count = defaultCount
	}
	if payload.Count > maxCount {
		payload.Count = maxCount
	}

	job.Report(0, payload.Count, "querying candidate source")
	candidates, err := s.finder.Find(ctx, payload.Brief, payload.Count)
	if err != nil {
		return nil, backup.Meta{}, err
	}

	candidates = dedup(candidates, payload.Count)
	if len(candidates) == 0 {
		return nil, backup.Meta{}, lferrors.Quality("prospecting",
			fmt.Errorf("finder returned no usable candidates for %q", payload.Brief.Industry))
	}

	rows := make([]Row, 0, len(candidates))
	now := time.Now().UTC().Format(time.RFC3339)
	for i, c := range candidates {
		if job.CancelRequested() {
			return nil, backup.Meta{}, lferrors.Cancelled(job.ID)
		}
		job.Report(i+1, len(candidates), c.CompanyName)

		row := Row{
			CompanyName:   c.CompanyName,
			Website:       c.Website,
			GooglePlaceID: c.GooglePlaceID,
			Industry:      firstNonEmpty(c.Industry, payload.Brief.Industry),
			Location:      firstNonEmpty(c.Location, payload.Brief.Location),
			Phone:         c.Phone,
			Description:   c.Description,
			DiscoveredAt:  now,
		}
		if payload.Options.Verify && s.verifier != nil {
			v := s.verifier.Verify(ctx, payload.Brief, c)
			row.Verification = &v
		}
		rows = append(rows, row)
	}

	slog.Info("Prospecting complete",
		logfields.JobID(job.ID),
		"industry", payload.Brief.Industry,
		"requested", payload.Count,
		"found", len(rows),
	)

	meta := backup.Meta{
		CompanyName: payload.Brief.Industry + " prospects",
		Industry:    payload.Brief.Industry,
	}
	return rows, meta, nil
}

// dedup keeps the first candidate per natural key, drops entries with neither
// a website nor a place id, and truncates to limit. Websites are canonicalized
// so trailing-slash and case variants collapse to one key.
func dedup(candidates []Candidate, limit int) []Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := make([]Candidate, 0, len(candidates))
	for _, c := range candidates {
		if canonical, ok := discovery.Canonicalize(c.Website); ok {
			c.Website = canonical
		}
		if c.GooglePlaceID == "" && (c.CompanyName == "" || c.Website == "") {
			continue
		}
		key := c.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}
