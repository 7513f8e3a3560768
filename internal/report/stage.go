package report

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"git.home.luguber.info/inful/leadforge/internal/analyzer"
	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

// Payload is the generate job input. The analysis object is the canonical
// record the analyze stage produced; the caller supplies it.
type Payload struct {
	LeadID   string          `json:"lead_id"`
	Format   string          `json:"format,omitempty"`
	Analysis json.RawMessage `json:"analysis"`
}

// Row is the report metadata as the remote store receives it, upserted on
// (lead_id, format). The rendered body stays in the blob store.
type Row struct {
	LeadID       string  `json:"lead_id"`
	Format       string  `json:"format"`
	CompanyName  string  `json:"company_name"`
	URL          string  `json:"url"`
	Grade        string  `json:"grade"`
	OverallScore float64 `json:"overall_score"`
	BlobHash     string  `json:"blob_hash"`
	SizeBytes    int     `json:"size_bytes"`
	GeneratedAt  string  `json:"generated_at"`
}

// Stage renders report jobs.
type Stage struct {
	blobs *BlobStore
}

// NewStage wires a report stage over a blob store.
func NewStage(blobs *BlobStore) *Stage {
	return &Stage{blobs: blobs}
}

// Engine implements pipeline.Stage.
func (s *Stage) Engine() backup.Engine { return backup.EngineReports }

// Execute implements pipeline.Stage.
func (s *Stage) Execute(_ context.Context, job *queue.Job) (any, backup.Meta, error) {
	var payload Payload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, backup.Meta{}, lferrors.InvalidPayload("payload", err.Error())
	}
	if payload.LeadID == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("lead_id", "required")
	}
	if len(payload.Analysis) == 0 {
		return nil, backup.Meta{}, lferrors.InvalidPayload("analysis", "required")
	}
	switch payload.Format {
	case "":
		payload.Format = FormatMarkdown
	case FormatMarkdown, FormatHTML:
	default:
		return nil, backup.Meta{}, lferrors.InvalidPayload("format", "must be markdown or html")
	}

	var res analyzer.Result
	if err := json.Unmarshal(payload.Analysis, &res); err != nil {
		return nil, backup.Meta{}, lferrors.InvalidPayload("analysis", err.Error())
	}
	if res.URL == "" {
		return nil, backup.Meta{}, lferrors.InvalidPayload("analysis.url", "required")
	}

	job.Report(1, 3, "rendering report")
	generatedAt := time.Now().UTC().Format(time.RFC3339)
	body := renderMarkdown(&res, generatedAt)
	contentType := "text/markdown"
	if payload.Format == FormatHTML {
		html, err := renderHTML(body)
		if err != nil {
			return nil, backup.Meta{}, lferrors.Internal("render report html", err)
		}
		body = html
		contentType = "text/html"
	}

	job.Report(2, 3, "storing report body")
	hash, err := s.blobs.Put([]byte(body), contentType)
	if err != nil {
		return nil, backup.Meta{}, lferrors.BackupFailed("store report blob", err)
	}
	job.Report(3, 3, "report complete")

	slog.Info("Report generated",
		logfields.JobID(job.ID), logfields.Company(res.CompanyName),
		"format", payload.Format, "blob_hash", hash,
	)

	row := Row{
		LeadID:       payload.LeadID,
		Format:       payload.Format,
		CompanyName:  res.CompanyName,
		URL:          res.URL,
		Grade:        res.Grade,
		OverallScore: res.OverallScore,
		BlobHash:     hash,
		SizeBytes:    len(body),
		GeneratedAt:  generatedAt,
	}
	meta := backup.Meta{
		CompanyName:  res.CompanyName,
		URL:          res.URL,
		Grade:        res.Grade,
		OverallScore: &res.OverallScore,
		Industry:     res.Industry,
		LeadID:       payload.LeadID,
		Format:       payload.Format,
	}
	return row, meta, nil
}
