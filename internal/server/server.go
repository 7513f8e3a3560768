// Package server exposes the pipeline over HTTP: the public API surface on
// one port and the admin surface (metrics, queue summary) on another, so
// operators can firewall them independently.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"git.home.luguber.info/inful/leadforge/internal/config"
	"git.home.luguber.info/inful/leadforge/internal/pipeline"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

// Options carries the server's collaborators.
type Options struct {
	Queue      *queue.Queue
	Registry   *pipeline.Registry
	Version    string
	Gatherer   prometheus.Gatherer // nil disables /metrics
	ShutdownIn time.Duration
}

// Server manages the API and admin HTTP listeners.
type Server struct {
	cfg      *config.Config
	opts     Options
	handlers *Handlers

	api   *http.Server
	admin *http.Server
}

// New wires a server.
func New(cfg *config.Config, opts Options) *Server {
	if opts.ShutdownIn == 0 {
		opts.ShutdownIn = 30 * time.Second
	}
	return &Server{
		cfg:      cfg,
		opts:     opts,
		handlers: NewHandlers(opts.Queue, opts.Registry, opts.Version),
	}
}

// Start pre-binds both ports so startup fails fast with every bind error at
// once, then serves on the bound listeners.
func (s *Server) Start(ctx context.Context) error {
	type preBind struct {
		name string
		port int
		ln   net.Listener
	}
	binds := []preBind{
		{name: "api", port: s.cfg.Server.Port},
		{name: "admin", port: s.cfg.Server.AdminPort},
	}

	var bindErrs []error
	lc := net.ListenConfig{}
	for i := range binds {
		ln, err := lc.Listen(ctx, "tcp", fmt.Sprintf(":%d", binds[i].port))
		if err != nil {
			bindErrs = append(bindErrs, fmt.Errorf("%s port %d: %w", binds[i].name, binds[i].port, err))
			continue
		}
		binds[i].ln = ln
	}
	if len(bindErrs) > 0 {
		for _, b := range binds {
			if b.ln != nil {
				_ = b.ln.Close()
			}
		}
		return fmt.Errorf("http startup failed: %w", errors.Join(bindErrs...))
	}

	s.api = &http.Server{
		Handler:           s.apiHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.admin = &http.Server{
		Handler:           s.adminHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.serve("api", s.api, binds[0].ln)
	s.serve("admin", s.admin, binds[1].ln)

	slog.Info("HTTP servers started",
		slog.Int("api_port", s.cfg.Server.Port),
		slog.Int("admin_port", s.cfg.Server.AdminPort))
	return nil
}

// Stop shuts both servers down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	var errs []error
	if s.admin != nil {
		if err := s.admin.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
		}
	}
	if s.api != nil {
		if err := s.api.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("api server shutdown: %w", err))
		}
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	slog.Info("HTTP servers stopped")
	return nil
}

func (s *Server) apiHandler() http.Handler {
	mux := http.NewServeMux()
	s.handlers.Register(mux)
	return chain(slog.Default(), s.handlers.adapter, mux)
}

func (s *Server) adminHandler() http.Handler {
	mux := http.NewServeMux()
	if s.opts.Gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/api/queue-summary", s.handleQueueSummary)
	mux.HandleFunc("/health", s.handlers.handleHealth)
	return chain(slog.Default(), s.handlers.adapter, mux)
}

// handleQueueSummary reports per-work-type ready depth for dashboards.
func (s *Server) handleQueueSummary(w http.ResponseWriter, r *http.Request) {
	depths := make(map[string]int, len(queue.WorkTypes()))
	for _, wt := range queue.WorkTypes() {
		depths[string(wt)] = s.opts.Queue.Depth(wt)
	}
	writeJSON(w, http.StatusOK, map[string]any{"queued": depths})
}

func (s *Server) serve(kind string, srv *http.Server, ln net.Listener) {
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error(fmt.Sprintf("%s server error", kind), "error", err)
		}
	}()
}
