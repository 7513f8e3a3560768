// Package queue implements the durable, concurrent job queue that drives the
// pipeline. Each work type gets its own worker pool and priority ordering;
// every state transition is journaled before it is acknowledged.
package queue

import (
	"encoding/json"
	"sync"
	"time"
)

// WorkType identifies which stage runner handles a job.
type WorkType string

const (
	WorkProspecting     WorkType = "prospecting"
	WorkAnalyzeURL      WorkType = "analyze_url"
	WorkAnalyzeProspect WorkType = "analyze_prospect"
	WorkComposeOutreach WorkType = "compose_outreach"
	WorkGenerateReport  WorkType = "generate_report"
)

// WorkTypes lists every known work type.
func WorkTypes() []WorkType {
	return []WorkType{WorkProspecting, WorkAnalyzeURL, WorkAnalyzeProspect, WorkComposeOutreach, WorkGenerateReport}
}

// Valid reports whether the work type is one of the known set.
func (w WorkType) Valid() bool {
	switch w {
	case WorkProspecting, WorkAnalyzeURL, WorkAnalyzeProspect, WorkComposeOutreach, WorkGenerateReport:
		return true
	}
	return false
}

// Priority orders jobs within a work type. Higher dequeues first.
type Priority int

const (
	PriorityLow    Priority = 1
	PriorityNormal Priority = 2
	PriorityHigh   Priority = 3
	PriorityUrgent Priority = 4
)

// State is a job's position in the lifecycle. Transitions follow
// queued→running→completed|failed, with queued→cancelled as the only other
// edge. Exactly one terminal state is ever written.
type State string

const (
	StateQueued    State = "queued"
	StateRunning   State = "running"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
	StateCancelled State = "cancelled"
)

// Terminal reports whether no further transitions are possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed || s == StateCancelled
}

// Progress is the latest runner-reported position. Lossy across crashes:
// only state transitions hit the journal.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Message string `json:"message,omitempty"`
}

// Job is a unit of work owned by the queue. Mutable fields are guarded by the
// job's own mutex; the queue's ready structure has its own lock.
type Job struct {
	ID         string          `json:"job_id"`
	WorkType   WorkType        `json:"work_type"`
	Priority   Priority        `json:"priority"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	EnqueuedAt time.Time       `json:"enqueued_at"`

	mu          sync.Mutex
	state       State
	startedAt   *time.Time
	completedAt *time.Time
	duration    time.Duration
	progress    Progress
	result      json.RawMessage
	errText     string
	errKind     string

	cancelRequested bool
	cancelFunc      func()

	seq uint64 // heap tiebreaker, assigned at enqueue
}

// State returns the job's current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Report records runner progress. Regressions are dropped: within a job,
// progress is monotonic.
func (j *Job) Report(current, total int, message string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if current < j.progress.Current {
		return
	}
	j.progress = Progress{Current: current, Total: total, Message: message}
}

// CancelRequested reports whether a cooperative cancellation signal has been
// delivered. Runners poll this between sub-steps.
func (j *Job) CancelRequested() bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.cancelRequested
}

// Snapshot is a self-consistent copy of a job's observable fields.
type Snapshot struct {
	JobID       string          `json:"job_id"`
	WorkType    WorkType        `json:"work_type"`
	Priority    Priority        `json:"priority"`
	State       State           `json:"state"`
	Progress    Progress        `json:"progress"`
	Result      json.RawMessage `json:"result,omitempty"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	EnqueuedAt  time.Time       `json:"enqueued_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	DurationMS  int64           `json:"duration_ms,omitempty"`
}

func (j *Job) Snapshot() Snapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	return Snapshot{
		JobID:       j.ID,
		WorkType:    j.WorkType,
		Priority:    j.Priority,
		State:       j.state,
		Progress:    j.progress,
		Result:      j.result,
		Error:       j.errText,
		ErrorKind:   j.errKind,
		EnqueuedAt:  j.EnqueuedAt,
		StartedAt:   j.startedAt,
		CompletedAt: j.completedAt,
		DurationMS:  j.duration.Milliseconds(),
	}
}

// Summary is the per-state histogram returned alongside snapshots.
type Summary struct {
	Total     int `json:"total"`
	Queued    int `json:"queued"`
	Running   int `json:"running"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Cancelled int `json:"cancelled"`
}

func (s *Summary) add(state State) {
	s.Total++
	switch state {
	case StateQueued:
		s.Queued++
	case StateRunning:
		s.Running++
	case StateCompleted:
		s.Completed++
	case StateFailed:
		s.Failed++
	case StateCancelled:
		s.Cancelled++
	}
}
