package main

import (
	"context"
	"fmt"

	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/config"
	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/recovery"
	"git.home.luguber.info/inful/leadforge/internal/remote"
)

// runRetryFailedUploads replays failed-uploads/ against the remote store.
// Needs the full config: uploading requires the service key.
func runRetryFailedUploads() error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}
	store, err := openBackupStore(cfg.Backup.Root)
	if err != nil {
		return err
	}
	remoteStore := remote.NewHTTPStore(cfg.Remote.URL, cfg.Remote.ServiceKey)

	coordinator := recovery.NewCoordinator(store, remoteStore)
	summary, err := coordinator.Run(context.Background(), recovery.Options{
		DryRun:  cli.RetryFailedUploads.DryRun,
		Engine:  cli.RetryFailedUploads.Engine,
		Company: cli.RetryFailedUploads.Company,
		Limit:   cli.RetryFailedUploads.Limit,
	})
	if err != nil {
		return err
	}

	for _, res := range summary.Results {
		switch res.Action {
		case recovery.ActionWouldRetry:
			fmt.Printf("  would retry  %s/%s  %s\n", res.Engine, res.FileID, res.Company)
		case recovery.ActionUploaded:
			fmt.Printf("  uploaded     %s/%s  -> %s\n", res.Engine, res.FileID, res.DatabaseID)
		case recovery.ActionFailed:
			fmt.Printf("  failed       %s/%s  (retry %d): %s\n", res.Engine, res.FileID, res.RetryCount, res.Error)
		}
	}
	fmt.Printf("scanned %d, matched %d, attempted %d, succeeded %d, failed %d\n",
		summary.Scanned, summary.Matched, summary.Attempted, summary.Succeeded, summary.Failed)

	if summary.Failed > 0 {
		return lferrors.Transient(fmt.Sprintf("%d upload(s) still failing", summary.Failed), nil)
	}
	return nil
}

// runValidateBackups checks every record file for shape and placement
// consistency. Offline: never touches the remote store.
func runValidateBackups() error {
	cfg, err := config.LoadLenient(cli.Config)
	if err != nil {
		return err
	}
	store, err := openBackupStore(cfg.Backup.Root)
	if err != nil {
		return err
	}

	results, err := store.ValidateAll("")
	if err != nil {
		return err
	}

	invalid := 0
	for _, res := range results {
		if !res.Valid {
			invalid++
			fmt.Printf("  INVALID  %s: %s\n", res.Path, res.Reason)
		}
	}
	fmt.Printf("checked %d record(s), %d invalid\n", len(results), invalid)

	if invalid > 0 {
		return lferrors.New(lferrors.CategoryInternal, lferrors.SeverityError,
			fmt.Sprintf("%d invalid backup record(s)", invalid))
	}
	return nil
}

// runBackupStats prints lifecycle counts; --detailed adds the per-engine
// breakdown with oldest-pending age.
func runBackupStats() error {
	cfg, err := config.LoadLenient(cli.Config)
	if err != nil {
		return err
	}
	store, err := openBackupStore(cfg.Backup.Root)
	if err != nil {
		return err
	}

	if cli.BackupStats.Detailed {
		engines, err := store.DetailedStats()
		if err != nil {
			return err
		}
		for _, es := range engines {
			fmt.Printf("%-12s total %-5d uploaded %-5d pending %-5d failed %-5d success %.1f%%",
				es.Engine, es.Total, es.Uploaded, es.Pending, es.Failed, es.SuccessRate*100)
			if es.OldestPendingAge != "" {
				fmt.Printf("  oldest pending %s", es.OldestPendingAge)
			}
			fmt.Println()
		}
		return nil
	}

	stats, err := store.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("total %d, uploaded %d, pending %d, failed %d, success rate %.1f%%\n",
		stats.Total, stats.Uploaded, stats.Pending, stats.Failed, stats.SuccessRate*100)
	return nil
}

// runMigrateBackups rewrites flat-format analysis records to the canonical
// nested shape, then uploads anything still pending. --upload-only skips the
// rewrite pass; --force re-uploads records already marked uploaded, relying on
// the remote upsert to merge rather than duplicate.
func runMigrateBackups() error {
	dryRun := cli.MigrateOldBackups.DryRun

	// Upload needs credentials; a dry run does not.
	var cfg *config.Config
	var err error
	if dryRun {
		cfg, err = config.LoadLenient(cli.Config)
	} else {
		cfg, err = config.Load(cli.Config)
	}
	if err != nil {
		return err
	}
	store, err := openBackupStore(cfg.Backup.Root)
	if err != nil {
		return err
	}

	if !cli.MigrateOldBackups.UploadOnly {
		migrated, skipped, err := store.MigrateAll(backup.EngineAnalysis, dryRun)
		if err != nil {
			return err
		}
		verb := "migrated"
		if dryRun {
			verb = "would migrate"
		}
		for _, p := range migrated {
			fmt.Printf("  %s  %s\n", verb, p)
		}
		fmt.Printf("%s %d file(s), skipped %d already-canonical\n", verb, len(migrated), len(skipped))
	}

	if dryRun {
		return nil
	}

	entries, err := store.ListPending(backup.EngineAnalysis)
	if err != nil {
		return err
	}
	if cli.MigrateOldBackups.Force {
		uploaded, err := store.ListUploaded(backup.EngineAnalysis)
		if err != nil {
			return err
		}
		entries = append(entries, uploaded...)
	}

	remoteStore := remote.NewHTTPStore(cfg.Remote.URL, cfg.Remote.ServiceKey)
	ctx := context.Background()
	succeeded, failed := 0, 0
	for _, entry := range entries {
		databaseID, upErr := remoteStore.Upsert(ctx, entry.Record.Engine, entry.Record.Data)
		if upErr != nil {
			failed++
			fmt.Printf("  failed    %s: %v\n", entry.Record.FileID, upErr)
			continue
		}
		if err := store.MarkUploaded(entry.Path, databaseID); err != nil {
			failed++
			fmt.Printf("  failed    %s: mark uploaded: %v\n", entry.Record.FileID, err)
			continue
		}
		succeeded++
		fmt.Printf("  uploaded  %s -> %s\n", entry.Record.FileID, databaseID)
	}
	fmt.Printf("uploaded %d record(s), %d failed\n", succeeded, failed)

	if failed > 0 {
		return lferrors.Transient(fmt.Sprintf("%d upload(s) failed", failed), nil)
	}
	return nil
}

// runCleanupBackups deletes uploaded records older than --days. Pending and
// failed records are never touched.
func runCleanupBackups() error {
	cfg, err := config.LoadLenient(cli.Config)
	if err != nil {
		return err
	}
	store, err := openBackupStore(cfg.Backup.Root)
	if err != nil {
		return err
	}

	removed, err := store.Cleanup(cli.CleanupBackups.Days, cli.CleanupBackups.DryRun)
	if err != nil {
		return err
	}
	verb := "removed"
	if cli.CleanupBackups.DryRun {
		verb = "would remove"
	}
	for _, p := range removed {
		fmt.Printf("  %s  %s\n", verb, p)
	}
	fmt.Printf("%s %d uploaded record(s) older than %d day(s)\n", verb, len(removed), cli.CleanupBackups.Days)
	return nil
}
