// Package recovery replays failed remote uploads from the local backup
// store. It runs offline: at boot, on a schedule, and from the CLI.
package recovery

import (
	"context"
	"log/slog"
	"strings"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/remote"
)

// Options narrow a retry run. Zero value retries everything.
type Options struct {
	// DryRun lists what would be retried without touching anything.
	DryRun bool
	// Engine restricts the scan to one engine; empty means all.
	Engine string
	// Company keeps only records whose company name contains this
	// substring, case-insensitive.
	Company string
	// Limit caps the number of retry attempts; 0 means no cap.
	Limit int
}

// Actions a record can come out of a run with.
const (
	ActionWouldRetry = "would-retry"
	ActionUploaded   = "uploaded"
	ActionFailed     = "failed"
)

// Result is the outcome for one failed record.
type Result struct {
	FileID     string `json:"file_id"`
	Engine     string `json:"engine"`
	Company    string `json:"company_name,omitempty"`
	RetryCount int    `json:"retry_count"`
	Action     string `json:"action"`
	DatabaseID string `json:"database_id,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Summary totals one run.
type Summary struct {
	Scanned   int      `json:"scanned"`
	Matched   int      `json:"matched"`
	Attempted int      `json:"attempted"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Results   []Result `json:"results"`
}

// Coordinator scans failed-uploads/ and replays the stored payloads through
// the remote store. Upserts are idempotent on the engine's natural key, so a
// replay that raced an earlier success merges instead of duplicating.
type Coordinator struct {
	backup *backup.Store
	remote remote.Store
}

// NewCoordinator wires a coordinator.
func NewCoordinator(backupStore *backup.Store, remoteStore remote.Store) *Coordinator {
	return &Coordinator{backup: backupStore, remote: remoteStore}
}

// Run executes one retry pass. A record that uploads moves back to leads/ as
// uploaded; one that fails again stays in failed-uploads/ with its retry
// count bumped. The pass itself only errors on scan or filter problems.
func (c *Coordinator) Run(ctx context.Context, opts Options) (*Summary, error) {
	engine := backup.Engine(opts.Engine)
	if opts.Engine != "" && !engine.Valid() {
		return nil, lferrors.InvalidInput("unknown engine " + opts.Engine)
	}

	entries, err := c.backup.ListFailed(engine)
	if err != nil {
		return nil, lferrors.Wrap(err, lferrors.CategoryInternal, lferrors.SeverityError,
			"scan failed-uploads")
	}

	summary := &Summary{Scanned: len(entries), Results: []Result{}}
	needle := strings.ToLower(opts.Company)

	for _, entry := range entries {
		if needle != "" && !strings.Contains(strings.ToLower(entry.Record.CompanyName), needle) {
			continue
		}
		summary.Matched++
		if opts.Limit > 0 && summary.Attempted >= opts.Limit {
			break
		}

		res := Result{
			FileID:     entry.Record.FileID,
			Engine:     string(entry.Record.Engine),
			Company:    entry.Record.CompanyName,
			RetryCount: entry.Record.RetryCount,
		}
		if opts.DryRun {
			res.Action = ActionWouldRetry
			summary.Results = append(summary.Results, res)
			continue
		}
		summary.Attempted++

		databaseID, upErr := c.remote.Upsert(ctx, entry.Record.Engine, entry.Record.Data)
		if upErr != nil {
			summary.Failed++
			res.Action = ActionFailed
			res.Error = upErr.Error()
			if rfErr := c.backup.RecordFailure(entry.Path, upErr); rfErr != nil {
				slog.Error("Failed to bump retry count",
					logfields.FileID(entry.Record.FileID), logfields.Error(rfErr))
			}
			res.RetryCount = entry.Record.RetryCount + 1
			slog.Warn("Retry upload failed",
				logfields.FileID(entry.Record.FileID),
				logfields.Engine(string(entry.Record.Engine)),
				logfields.Company(entry.Record.CompanyName),
				logfields.Error(upErr))
			summary.Results = append(summary.Results, res)
			continue
		}

		if _, mvErr := c.backup.Restore(entry.Path, databaseID); mvErr != nil {
			// The upload went through; the record is just stuck in the
			// failed directory. The next idempotent replay resolves it.
			slog.Error("Uploaded but could not move record back to leads",
				logfields.FileID(entry.Record.FileID), logfields.Error(mvErr))
		}
		summary.Succeeded++
		res.Action = ActionUploaded
		res.DatabaseID = databaseID
		slog.Info("Retry upload succeeded",
			logfields.FileID(entry.Record.FileID),
			logfields.Engine(string(entry.Record.Engine)),
			logfields.Company(entry.Record.CompanyName))
		summary.Results = append(summary.Results, res)
	}

	return summary, nil
}
