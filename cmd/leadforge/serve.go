package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/leadforge/internal/ai"
	"git.home.luguber.info/inful/leadforge/internal/analyzer"
	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/config"
	"git.home.luguber.info/inful/leadforge/internal/discovery"
	"git.home.luguber.info/inful/leadforge/internal/events"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/metrics"
	"git.home.luguber.info/inful/leadforge/internal/outreach"
	"git.home.luguber.info/inful/leadforge/internal/pipeline"
	"git.home.luguber.info/inful/leadforge/internal/prospect"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/recovery"
	"git.home.luguber.info/inful/leadforge/internal/remote"
	"git.home.luguber.info/inful/leadforge/internal/report"
	"git.home.luguber.info/inful/leadforge/internal/scheduler"
	"git.home.luguber.info/inful/leadforge/internal/server"
)

const (
	version         = "1.0.0"
	shutdownTimeout = 30 * time.Second
)

// runServe wires the whole pipeline and blocks until a termination signal.
func runServe() error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	promReg := prometheus.NewRegistry()
	recorder := metrics.NewPrometheusRecorder(promReg)

	backupStore, err := backup.NewStore(cfg.Backup.Root, recorder)
	if err != nil {
		return fmt.Errorf("open backup store: %w", err)
	}
	remoteStore := remote.NewHTTPStore(cfg.Remote.URL, cfg.Remote.ServiceKey)

	gate := ai.NewGate(cfg.AI.MaxConcurrent, cfg.AI.RatePerSecond)
	provider := ai.NewProvider(ai.ProviderConfig{
		BaseURL: cfg.AI.BaseURL,
		APIKey:  cfg.AI.APIKey,
		Model:   cfg.AI.Model,
		Timeout: cfg.AI.CallTimeout,
	}, gate)

	journal, err := queue.NewJournal(cfg.Queue.JournalPath)
	if err != nil {
		return fmt.Errorf("open queue journal: %w", err)
	}
	defer journal.Close()

	q := queue.New(journal, recorder, queue.Options{
		Workers: map[queue.WorkType]int{
			queue.WorkProspecting:     cfg.Workers.Prospecting,
			queue.WorkAnalyzeURL:      cfg.Workers.AnalyzeURL,
			queue.WorkAnalyzeProspect: cfg.Workers.AnalyzeProspect,
			queue.WorkComposeOutreach: cfg.Workers.ComposeOutreach,
			queue.WorkGenerateReport:  cfg.Workers.GenerateReport,
		},
		Timeouts: map[queue.WorkType]time.Duration{
			queue.WorkProspecting:     cfg.Queue.ProspectTimeout,
			queue.WorkAnalyzeURL:      cfg.Queue.AnalyzeTimeout,
			queue.WorkAnalyzeProspect: cfg.Queue.AnalyzeTimeout,
			queue.WorkComposeOutreach: cfg.Queue.ComposeTimeout,
			queue.WorkGenerateReport:  cfg.Queue.ReportTimeout,
		},
		HighWaterMark: cfg.Queue.HighWaterMark,
	})

	if cfg.Events.Enabled {
		publisher, err := events.NewPublisher(cfg.Events)
		if err != nil {
			return fmt.Errorf("connect event publisher: %w", err)
		}
		defer publisher.Close()
		q.SetEmitter(publisher)
	}

	// Stages.
	engine := discovery.NewEngine(
		discovery.WithSourceTimeout(cfg.Queue.FetchTimeout),
		discovery.WithRecorder(recorder),
	)
	selector := discovery.NewSelector(provider)
	analyzeStage := analyzer.NewStage(engine, selector, provider, nil, recorder)
	prospectStage := prospect.NewStage(prospect.NewAIFinder(provider), prospect.NewVerifier(nil, provider))
	composeStage := outreach.NewStage(outreach.NewComposer(provider))

	blobs, err := report.NewBlobStore(filepath.Join(cfg.Backup.Root, "report-blobs"))
	if err != nil {
		return fmt.Errorf("open report blob store: %w", err)
	}
	reportStage := report.NewStage(blobs)

	registry := pipeline.NewRegistry(backupStore, remoteStore)
	registry.Register(queue.WorkProspecting, prospectStage)
	registry.Register(queue.WorkAnalyzeURL, analyzeStage)
	registry.Register(queue.WorkAnalyzeProspect, analyzeStage)
	registry.Register(queue.WorkComposeOutreach, composeStage)
	registry.Register(queue.WorkGenerateReport, reportStage)
	registry.Attach(q)

	// Replay interrupted jobs before accepting new work.
	if err := q.Recover(ctx); err != nil {
		return fmt.Errorf("recover queue: %w", err)
	}
	q.Start(ctx)

	// Boot retry scan, then hourly via the scheduler.
	coordinator := recovery.NewCoordinator(backupStore, remoteStore)
	go func() {
		if summary, err := coordinator.Run(ctx, recovery.Options{}); err != nil {
			slog.Error("Boot retry scan failed", logfields.Error(err))
		} else if summary.Scanned > 0 {
			slog.Info("Boot retry scan finished",
				slog.Int("scanned", summary.Scanned),
				slog.Int("succeeded", summary.Succeeded),
				slog.Int("failed", summary.Failed))
		}
	}()

	sched, err := scheduler.New(backupStore, journal, coordinator, cfg.Backup.RetentionDays)
	if err != nil {
		return err
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}

	// Hot reload of rate limits and the high-water mark.
	watcher, err := config.NewWatcher(cli.Config, func(r config.Reloadable) {
		q.SetHighWaterMark(r.HighWaterMark)
		gate.SetRate(r.AIRatePerSecond)
	})
	if err == nil {
		if werr := watcher.Start(ctx); werr != nil {
			slog.Warn("Config watcher not started", logfields.Error(werr))
		} else {
			defer watcher.Stop()
		}
	} else {
		slog.Warn("Config watcher unavailable", logfields.Error(err))
	}

	srv := server.New(cfg, server.Options{
		Queue:    q,
		Registry: registry,
		Version:  version,
		Gatherer: promReg,
	})
	if err := srv.Start(ctx); err != nil {
		return err
	}

	slog.Info("LeadForge started",
		slog.String("version", version),
		slog.Int("port", cfg.Server.Port),
		slog.String("backup_root", cfg.Backup.Root))

	<-ctx.Done()
	slog.Info("Shutting down")

	stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Stop(stopCtx); err != nil {
		slog.Error("HTTP shutdown error", logfields.Error(err))
	}
	q.Stop()
	if err := sched.Stop(); err != nil {
		slog.Error("Scheduler shutdown error", logfields.Error(err))
	}
	slog.Info("Shutdown complete")
	return nil
}

// interactive commands share this root check so a typo'd backup root fails
// with a clear message instead of an empty scan.
func openBackupStore(root string) (*backup.Store, error) {
	if root == "" {
		root = "local-backups"
	}
	if _, err := os.Stat(root); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("backup root %q does not exist", root)
		}
		return nil, err
	}
	return backup.NewStore(root, nil)
}
