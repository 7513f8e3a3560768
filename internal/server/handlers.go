package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/pipeline"
	"git.home.luguber.info/inful/leadforge/internal/queue"
)

const maxRequestBody = 1 << 20

// Handlers carries the API handler set and its dependencies.
type Handlers struct {
	queue    *queue.Queue
	registry *pipeline.Registry
	adapter  *lferrors.HTTPErrorAdapter
	version  string
	started  time.Time
}

// NewHandlers wires the API handlers.
func NewHandlers(q *queue.Queue, registry *pipeline.Registry, version string) *Handlers {
	return &Handlers{
		queue:    q,
		registry: registry,
		adapter:  lferrors.NewHTTPErrorAdapter(slog.Default()),
		version:  version,
		started:  time.Now(),
	}
}

// enqueueRequest is the body of every *-queue route. When the payload key is
// absent the whole body is treated as the payload.
type enqueueRequest struct {
	Priority int             `json:"priority,omitempty"`
	Payload  json.RawMessage `json:"payload,omitempty"`
}

// Register binds every API route onto the mux. One route per verb per stage.
func (h *Handlers) Register(mux *http.ServeMux) {
	mux.HandleFunc("/api/prospect-queue", h.enqueueHandler(queue.WorkProspecting))
	mux.HandleFunc("/api/analyze-queue", h.enqueueHandler(queue.WorkAnalyzeURL))
	mux.HandleFunc("/api/analyze-prospect-queue", h.enqueueHandler(queue.WorkAnalyzeProspect))
	mux.HandleFunc("/api/compose-queue", h.enqueueHandler(queue.WorkComposeOutreach))
	mux.HandleFunc("/api/generate-queue", h.enqueueHandler(queue.WorkGenerateReport))

	mux.HandleFunc("/api/analyze-url", h.handleAnalyzeURL)

	for _, stage := range []string{"prospect", "prospecting", "analyze", "compose", "generate"} {
		mux.HandleFunc("/api/"+stage+"-status", h.handleStatus)
		mux.HandleFunc("/api/cancel-"+stage, h.handleCancel)
	}

	mux.HandleFunc("/health", h.handleHealth)
}

func (h *Handlers) enqueueHandler(wt queue.WorkType) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !h.requireMethod(w, r, http.MethodPost) {
			return
		}
		req, err := h.readEnqueueRequest(r)
		if err != nil {
			h.adapter.WriteErrorResponse(w, r, err)
			return
		}
		jobID, err := h.queue.Enqueue(r.Context(), wt, queue.Priority(req.Priority), req.Payload)
		if err != nil {
			h.adapter.WriteErrorResponse(w, r, err)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
	}
}

// handleAnalyzeURL is the synchronous convenience path. The analysis result
// comes back even when the remote upsert fails; the backup holds the data.
func (h *Handlers) handleAnalyzeURL(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, lferrors.InvalidInput("read request body"))
		return
	}
	runner, ok := h.registry.Runner(queue.WorkAnalyzeURL)
	if !ok {
		h.adapter.WriteErrorResponse(w, r, lferrors.Internal("analyze runner not registered", nil))
		return
	}

	job := &queue.Job{
		ID:       "sync-" + time.Now().UTC().Format("20060102T150405.000"),
		WorkType: queue.WorkAnalyzeURL,
		Payload:  payload,
	}
	outcome, err := runner.RunSync(r.Context(), job)
	if err != nil {
		h.adapter.WriteErrorResponse(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (h *Handlers) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodGet) {
		return
	}
	ids := splitIDs(r.URL.Query().Get("job_ids"))
	if len(ids) == 0 {
		h.adapter.WriteErrorResponse(w, r, lferrors.InvalidInput("job_ids query parameter required"))
		return
	}
	jobs, summary := h.queue.Status(ids)
	writeJSON(w, http.StatusOK, map[string]any{"jobs": jobs, "summary": summary})
}

func (h *Handlers) handleCancel(w http.ResponseWriter, r *http.Request) {
	if !h.requireMethod(w, r, http.MethodPost) {
		return
	}
	var req struct {
		JobIDs []string `json:"job_ids"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody)).Decode(&req); err != nil {
		h.adapter.WriteErrorResponse(w, r, lferrors.InvalidPayload("job_ids", err.Error()))
		return
	}
	if len(req.JobIDs) == 0 {
		h.adapter.WriteErrorResponse(w, r, lferrors.InvalidInput("job_ids required"))
		return
	}
	writeJSON(w, http.StatusOK, h.queue.Cancel(r.Context(), req.JobIDs))
}

func (h *Handlers) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"service":   "leadforge",
		"version":   h.version,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"uptime_s":  int(time.Since(h.started).Seconds()),
	})
}

func (h *Handlers) readEnqueueRequest(r *http.Request) (*enqueueRequest, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return nil, lferrors.InvalidInput("read request body")
	}
	if len(body) == 0 {
		return nil, lferrors.InvalidInput("request body required")
	}
	var req enqueueRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, lferrors.InvalidPayload("body", err.Error())
	}
	if len(req.Payload) == 0 {
		req.Payload = body
	}
	return &req, nil
}

func (h *Handlers) requireMethod(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.Header().Set("Allow", method)
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func splitIDs(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
