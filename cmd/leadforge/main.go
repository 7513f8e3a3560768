package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

var cli struct {
	Config  string `short:"c" help:"Configuration file path" default:"leadforge.yaml"`
	Verbose bool   `short:"v" help:"Enable verbose logging"`

	Serve struct{} `cmd:"" help:"Run the pipeline service (HTTP API, workers, scheduler)"`

	RetryFailedUploads struct {
		DryRun  bool   `help:"List what would be retried without uploading"`
		Engine  string `help:"Restrict to one engine (prospecting|analysis|outreach|reports)"`
		Company string `help:"Only records whose company name contains this substring"`
		Limit   int    `help:"Cap the number of retry attempts"`
	} `cmd:"" name:"retry-failed-uploads" help:"Replay failed remote uploads from the backup store"`

	ValidateExistingBackups struct{} `cmd:"" name:"validate-existing-backups" help:"Check every backup file for format and placement consistency"`

	BackupStats struct {
		Detailed bool `help:"Per-engine breakdown with oldest-pending age"`
	} `cmd:"" name:"backup-stats" help:"Show backup store statistics"`

	MigrateOldBackups struct {
		DryRun     bool `help:"List flat-format files without rewriting"`
		UploadOnly bool `help:"Skip rewriting; upload already-migrated pending records"`
		Force      bool `help:"Upload even records already marked uploaded"`
	} `cmd:"" name:"migrate-old-backups" help:"Rewrite flat-format backup files to the canonical shape and upload them"`

	CleanupBackups struct {
		Days   int  `required:"" help:"Delete uploaded records older than this many days"`
		DryRun bool `help:"List what would be deleted"`
	} `cmd:"" name:"cleanup-backups" help:"Remove old uploaded backups (never pending or failed)"`
}

func main() {
	kctx := kong.Parse(&cli,
		kong.Name("leadforge"),
		kong.Description("Durable B2B lead-pipeline orchestration service and tooling."))

	level := slog.LevelInfo
	if cli.Verbose {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	adapter := lferrors.NewCLIErrorAdapter(cli.Verbose, slog.Default())

	var err error
	switch kctx.Command() {
	case "serve":
		err = runServe()
	case "retry-failed-uploads":
		err = runRetryFailedUploads()
	case "validate-existing-backups":
		err = runValidateBackups()
	case "backup-stats":
		err = runBackupStats()
	case "migrate-old-backups":
		err = runMigrateBackups()
	case "cleanup-backups":
		err = runCleanupBackups()
	default:
		kctx.FatalIfErrorf(kctx.Error)
	}
	adapter.HandleError(err)
}
