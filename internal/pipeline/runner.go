// Package pipeline wires stage runners to the queue and enforces the one
// ordering rule every runner shares: the local backup is written before any
// remote upsert, and the upsert outcome is recorded back onto the backup.
package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/observability"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/remote"
)

// Stage does the engine-specific work of one work type: parse and validate
// the payload, produce the canonical result payload plus its denormalized
// metadata. Stages observe cancellation between sub-steps; the surrounding
// runner owns persistence.
type Stage interface {
	Engine() backup.Engine
	Execute(ctx context.Context, job *queue.Job) (result any, meta backup.Meta, err error)
}

// Outcome is what a completed job stores as its result.
type Outcome struct {
	Result     json.RawMessage `json:"result"`
	DatabaseID string          `json:"database_id,omitempty"`
	BackupFile string          `json:"backup_file"`
	Uploaded   bool            `json:"uploaded"`
}

// Runner adapts a Stage to the queue's runner contract.
type Runner struct {
	stage  Stage
	backup *backup.Store
	remote remote.Store
}

// NewRunner builds the runner for a stage.
func NewRunner(stage Stage, backupStore *backup.Store, remoteStore remote.Store) *Runner {
	return &Runner{stage: stage, backup: backupStore, remote: remoteStore}
}

// Run executes the stage and persists its result. A remote-upsert failure
// fails the job but never the process; the backup holds the data for replay.
func (r *Runner) Run(ctx context.Context, job *queue.Job) (json.RawMessage, error) {
	outcome, err := r.execute(ctx, job, false)
	if err != nil {
		return nil, err
	}
	return json.Marshal(outcome)
}

// RunSync is the synchronous convenience path: the work's success is reported
// even when the remote write fails, with the upload error returned alongside.
func (r *Runner) RunSync(ctx context.Context, job *queue.Job) (*Outcome, error) {
	return r.execute(ctx, job, true)
}

func (r *Runner) execute(ctx context.Context, job *queue.Job, tolerateUploadFailure bool) (*Outcome, error) {
	result, meta, err := r.stage.Execute(ctx, job)
	if err != nil {
		return nil, err
	}
	if job.CancelRequested() {
		return nil, lferrors.Cancelled(job.ID)
	}

	engine := r.stage.Engine()
	ctx = observability.WithJobID(ctx, job.ID)
	ctx = observability.WithEngine(ctx, string(engine))
	if meta.CompanyName != "" {
		ctx = observability.WithCompany(ctx, meta.CompanyName)
	}

	path, rec, err := r.backup.Save(engine, result, meta)
	if err != nil {
		// A failed backup write is the one fatal outcome: remote upsert
		// must never happen without a record on disk.
		return nil, lferrors.BackupFailed("save", err).
			WithContext("engine", string(engine))
	}

	outcome := &Outcome{BackupFile: rec.FileID}
	if raw, merr := json.Marshal(result); merr == nil {
		outcome.Result = raw
	}

	databaseID, upErr := r.remote.Upsert(ctx, engine, rec.Data)
	if upErr != nil {
		if dst, mfErr := r.backup.MarkFailed(path, upErr); mfErr != nil {
			observability.ErrorContext(ctx, "Failed to record upload failure on backup",
				logfields.FileID(rec.FileID), logfields.Error(mfErr))
		} else {
			observability.WarnContext(ctx, "Remote upsert failed, backup kept for replay",
				logfields.FileID(rec.FileID), slog.String("failed_path", dst), logfields.Error(upErr))
		}
		if tolerateUploadFailure {
			return outcome, nil
		}
		return nil, upErr
	}

	if muErr := r.backup.MarkUploaded(path, databaseID); muErr != nil {
		// The remote write did succeed; degrade to failed so the operator
		// replays idempotently rather than losing track of the record.
		observability.ErrorContext(ctx, "markUploaded failed after successful upsert, degrading to failed",
			logfields.FileID(rec.FileID), logfields.Error(muErr))
		if _, mfErr := r.backup.MarkFailed(path, muErr); mfErr != nil {
			observability.ErrorContext(ctx, "Degrade to markFailed also failed",
				logfields.FileID(rec.FileID), logfields.Error(mfErr))
		}
		if tolerateUploadFailure {
			return outcome, nil
		}
		return nil, lferrors.BackupFailed("mark uploaded", muErr)
	}

	outcome.DatabaseID = databaseID
	outcome.Uploaded = true
	return outcome, nil
}
