// Package scheduler runs the periodic maintenance tasks: backup retention
// cleanup, journal pruning, and the failed-upload retry scan.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/recovery"
)

const (
	cleanupInterval = 24 * time.Hour
	retryInterval   = time.Hour
)

// Scheduler wraps gocron for the maintenance loops.
type Scheduler struct {
	scheduler gocron.Scheduler

	backups       *backup.Store
	journal       *queue.Journal
	retry         *recovery.Coordinator
	retentionDays int
}

// New creates the scheduler. Any collaborator may be nil; the matching task
// is simply not scheduled.
func New(backups *backup.Store, journal *queue.Journal, retry *recovery.Coordinator, retentionDays int) (*Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create gocron scheduler: %w", err)
	}
	return &Scheduler{
		scheduler:     s,
		backups:       backups,
		journal:       journal,
		retry:         retry,
		retentionDays: retentionDays,
	}, nil
}

// Start registers the maintenance jobs and begins the scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.backups != nil && s.retentionDays > 0 {
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(cleanupInterval),
			gocron.NewTask(s.runCleanup, ctx),
			gocron.WithName("retention-cleanup"),
		); err != nil {
			return fmt.Errorf("schedule retention cleanup: %w", err)
		}
	}
	if s.retry != nil {
		if _, err := s.scheduler.NewJob(
			gocron.DurationJob(retryInterval),
			gocron.NewTask(s.runRetryScan, ctx),
			gocron.WithName("failed-upload-retry"),
		); err != nil {
			return fmt.Errorf("schedule retry scan: %w", err)
		}
	}

	slog.Info("Scheduler started",
		slog.Int("retention_days", s.retentionDays),
		slog.Duration("cleanup_interval", cleanupInterval),
		slog.Duration("retry_interval", retryInterval))
	s.scheduler.Start()
	return nil
}

// Stop shuts the scheduler down, waiting for running tasks.
func (s *Scheduler) Stop() error {
	slog.Info("Stopping scheduler")
	return s.scheduler.Shutdown()
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	removed, err := s.backups.Cleanup(s.retentionDays, false)
	if err != nil {
		slog.Error("Retention cleanup failed", logfields.Error(err))
	} else if len(removed) > 0 {
		slog.Info("Retention cleanup removed uploaded backups", slog.Int("deleted", len(removed)))
	}

	if s.journal != nil {
		cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
		pruned, err := s.journal.Prune(ctx, cutoff)
		if err != nil {
			slog.Error("Journal prune failed", logfields.Error(err))
		} else if pruned > 0 {
			slog.Info("Journal pruned terminal transitions", slog.Int64("pruned", pruned))
		}
	}
}

func (s *Scheduler) runRetryScan(ctx context.Context) {
	summary, err := s.retry.Run(ctx, recovery.Options{})
	if err != nil {
		slog.Error("Scheduled retry scan failed", logfields.Error(err))
		return
	}
	if summary.Attempted > 0 {
		slog.Info("Scheduled retry scan finished",
			slog.Int("attempted", summary.Attempted),
			slog.Int("succeeded", summary.Succeeded),
			slog.Int("failed", summary.Failed))
	}
}
