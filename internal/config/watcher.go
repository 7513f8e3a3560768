package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher monitors the configuration file and delivers reloaded hot-swappable
// settings to a callback. Only Reloadable settings are applied at runtime.
type Watcher struct {
	configPath   string
	onReload     func(Reloadable)
	watcher      *fsnotify.Watcher
	mu           sync.Mutex
	stopChan     chan struct{}
	reloadChan   chan struct{}
	debounceTime time.Duration
}

// NewWatcher creates a new configuration file watcher.
func NewWatcher(configPath string, onReload func(Reloadable)) (*Watcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}

	absPath, err := filepath.Abs(configPath)
	if err != nil {
		watcher.Close()
		return nil, fmt.Errorf("resolve config path: %w", err)
	}

	return &Watcher{
		configPath:   absPath,
		onReload:     onReload,
		watcher:      watcher,
		stopChan:     make(chan struct{}),
		reloadChan:   make(chan struct{}, 1),
		debounceTime: 2 * time.Second, // debounce rapid editor write bursts
	}, nil
}

// Start begins monitoring the configuration file.
func (w *Watcher) Start(ctx context.Context) error {
	// Watch the directory containing the config file (more reliable than
	// watching the file directly across rename-style saves).
	configDir := filepath.Dir(w.configPath)
	if err := w.watcher.Add(configDir); err != nil {
		return fmt.Errorf("watch config directory %s: %w", configDir, err)
	}

	slog.Info("Starting configuration watcher", "config_path", w.configPath)

	go w.watchLoop(ctx)
	go w.reloadLoop(ctx)
	return nil
}

// Stop stops the configuration watcher.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	select {
	case <-w.stopChan:
		return
	default:
	}
	close(w.stopChan)
	if err := w.watcher.Close(); err != nil {
		slog.Error("Error closing config watcher", "error", err)
	}
}

func (w *Watcher) watchLoop(ctx context.Context) {
	configFile := filepath.Base(w.configPath)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != configFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			select {
			case w.reloadChan <- struct{}{}:
			default:
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Warn("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case <-w.reloadChan:
			// Debounce: absorb further events before reloading.
			timer := time.NewTimer(w.debounceTime)
			select {
			case <-timer.C:
			case <-w.stopChan:
				timer.Stop()
				return
			case <-ctx.Done():
				timer.Stop()
				return
			}

			cfg, err := Load(w.configPath)
			if err != nil {
				slog.Warn("Config reload skipped: file invalid", "error", err)
				continue
			}
			slog.Info("Configuration reloaded", "config_path", w.configPath)
			if w.onReload != nil {
				w.onReload(ReloadableFrom(cfg))
			}
		}
	}
}
