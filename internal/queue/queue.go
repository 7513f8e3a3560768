package queue

import (
	"container/heap"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
	"git.home.luguber.info/inful/leadforge/internal/logfields"
	"git.home.luguber.info/inful/leadforge/internal/metrics"
	"git.home.luguber.info/inful/leadforge/internal/observability"
)

// Runner executes one job of a given work type. The runner polls
// job.CancelRequested between sub-steps and reports progress via job.Report.
type Runner interface {
	Run(ctx context.Context, job *Job) (json.RawMessage, error)
}

// LifecycleEmitter publishes job lifecycle events. Emission failures are
// logged, never propagated into the job's outcome.
type LifecycleEmitter interface {
	EmitJobQueued(ctx context.Context, snap Snapshot) error
	EmitJobFinished(ctx context.Context, snap Snapshot) error
}

// Queue is the durable multi-pool job queue. Each work type has its own
// priority heap and worker budget; one mutex guards the ready structures,
// each job guards its own mutable fields.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	ready   map[WorkType]*jobHeap
	jobs    map[string]*Job
	nextSeq uint64

	runners  map[WorkType]Runner
	workers  map[WorkType]int
	timeouts map[WorkType]time.Duration

	highWaterMark int
	stopping      bool

	journal  *Journal
	recorder metrics.Recorder
	emitter  LifecycleEmitter

	wg sync.WaitGroup
}

// Options configure worker budgets, per-type wall-clock timeouts, and the
// enqueue high-water mark.
type Options struct {
	Workers       map[WorkType]int
	Timeouts      map[WorkType]time.Duration
	HighWaterMark int
}

func defaultWorkers() map[WorkType]int {
	return map[WorkType]int{
		WorkProspecting:     4,
		WorkAnalyzeURL:      2,
		WorkAnalyzeProspect: 2,
		WorkComposeOutreach: 4,
		WorkGenerateReport:  1,
	}
}

func defaultTimeouts() map[WorkType]time.Duration {
	return map[WorkType]time.Duration{
		WorkProspecting:     15 * time.Minute,
		WorkAnalyzeURL:      10 * time.Minute,
		WorkAnalyzeProspect: 10 * time.Minute,
		WorkComposeOutreach: 5 * time.Minute,
		WorkGenerateReport:  5 * time.Minute,
	}
}

// New creates a queue backed by the given journal.
func New(journal *Journal, recorder metrics.Recorder, opts Options) *Queue {
	if recorder == nil {
		recorder = metrics.NoopRecorder{}
	}
	workers := defaultWorkers()
	for wt, n := range opts.Workers {
		if n > 0 {
			workers[wt] = n
		}
	}
	timeouts := defaultTimeouts()
	for wt, d := range opts.Timeouts {
		if d > 0 {
			timeouts[wt] = d
		}
	}
	hwm := opts.HighWaterMark
	if hwm <= 0 {
		hwm = 1000
	}

	q := &Queue{
		ready:         make(map[WorkType]*jobHeap),
		jobs:          make(map[string]*Job),
		runners:       make(map[WorkType]Runner),
		workers:       workers,
		timeouts:      timeouts,
		highWaterMark: hwm,
		journal:       journal,
		recorder:      recorder,
	}
	q.cond = sync.NewCond(&q.mu)
	for _, wt := range WorkTypes() {
		q.ready[wt] = newJobHeap()
	}
	return q
}

// RegisterRunner binds a runner to a work type. Must be called before Start.
func (q *Queue) RegisterRunner(wt WorkType, r Runner) {
	q.runners[wt] = r
}

// SetEmitter injects a lifecycle event emitter (optional).
func (q *Queue) SetEmitter(e LifecycleEmitter) {
	q.emitter = e
}

// SetHighWaterMark adjusts the enqueue cap at runtime (hot-reloadable).
func (q *Queue) SetHighWaterMark(n int) {
	if n <= 0 {
		return
	}
	q.mu.Lock()
	q.highWaterMark = n
	q.mu.Unlock()
}

// Recover replays the journal and re-queues interrupted work. Jobs that were
// running at shutdown go back to queued (at-least-once); terminal jobs are
// loaded for status visibility only.
func (q *Queue) Recover(ctx context.Context) error {
	replayed, err := q.journal.Replay(ctx)
	if err != nil {
		return fmt.Errorf("replay journal: %w", err)
	}

	var requeued int
	q.mu.Lock()
	for _, rj := range replayed {
		if !rj.WorkType.Valid() {
			continue
		}
		job := &Job{
			ID:         rj.ID,
			WorkType:   rj.WorkType,
			Priority:   rj.Priority,
			Payload:    rj.Payload,
			EnqueuedAt: rj.EnqueuedAt,
			state:      rj.State,
			errText:    rj.Error,
		}
		q.jobs[job.ID] = job

		switch rj.State {
		case StateQueued:
			q.push(job)
		case StateRunning:
			job.state = StateQueued
			q.push(job)
			requeued++
		}
	}
	q.mu.Unlock()

	for _, rj := range replayed {
		if rj.State == StateRunning {
			job := q.jobs[rj.ID]
			if err := q.journal.Append(ctx, job, StateQueued, nil, ""); err != nil {
				return fmt.Errorf("journal re-queue: %w", err)
			}
		}
	}

	if requeued > 0 {
		slog.Info("Re-queued interrupted jobs after restart", "count", requeued)
	}
	return nil
}

// Start launches the worker pools.
func (q *Queue) Start(ctx context.Context) {
	for _, wt := range WorkTypes() {
		if q.runners[wt] == nil {
			continue
		}
		n := q.workers[wt]
		slog.Info("Starting worker pool", logfields.WorkType(string(wt)), "workers", n)
		for i := 0; i < n; i++ {
			q.wg.Add(1)
			go q.worker(ctx, wt, fmt.Sprintf("%s-%d", wt, i))
		}
	}
}

// Stop drains the pools: workers finish their current job, cancellation
// signals are delivered to everything still running, blocked dequeues wake.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.stopping = true
	for _, job := range q.jobs {
		job.mu.Lock()
		if job.state == StateRunning && job.cancelFunc != nil {
			job.cancelRequested = true
			job.cancelFunc()
		}
		job.mu.Unlock()
	}
	q.mu.Unlock()
	q.cond.Broadcast()
	q.wg.Wait()
}

// Enqueue accepts a job and journals the queued transition before returning.
// At the high-water mark it fails fast with a retryable error and leaves all
// counts unchanged.
func (q *Queue) Enqueue(ctx context.Context, wt WorkType, priority Priority, payload json.RawMessage) (string, error) {
	if !wt.Valid() {
		return "", lferrors.InvalidInput(fmt.Sprintf("unknown work type %q", wt))
	}
	if priority < PriorityLow || priority > PriorityUrgent {
		priority = PriorityNormal
	}

	job := &Job{
		ID:         uuid.NewString(),
		WorkType:   wt,
		Priority:   priority,
		Payload:    payload,
		EnqueuedAt: time.Now(),
		state:      StateQueued,
	}

	q.mu.Lock()
	if q.stopping {
		q.mu.Unlock()
		return "", lferrors.Transient("queue is shutting down", nil)
	}
	if q.activeCountLocked() >= q.highWaterMark {
		q.mu.Unlock()
		return "", lferrors.Transient("queue is at its high-water mark", nil)
	}
	q.mu.Unlock()

	// Insert-before-ack: the transition must be durable before the caller
	// learns the job id.
	if err := q.journal.Append(ctx, job, StateQueued, payload, ""); err != nil {
		return "", lferrors.BackupFailed("journal queued transition", err)
	}

	q.mu.Lock()
	q.jobs[job.ID] = job
	q.push(job)
	depth := q.ready[wt].Len()
	q.mu.Unlock()
	q.cond.Broadcast()

	q.recorder.SetQueueDepth(string(wt), depth)
	q.emitQueued(ctx, job)
	slog.Info("Job enqueued",
		logfields.JobID(job.ID),
		logfields.WorkType(string(wt)),
		logfields.JobPriority(int(priority)),
	)
	return job.ID, nil
}

// CancelResult partitions the requested job ids by outcome.
type CancelResult struct {
	Cancelled      []string `json:"cancelled"`
	NotFound       []string `json:"not_found"`
	AlreadyStarted []string `json:"already_started"`
}

// Cancel attempts to cancel each job. Queued jobs cancel synchronously.
// Running jobs get the cooperative signal but report already_started; the
// runner decides whether to honour it.
func (q *Queue) Cancel(ctx context.Context, jobIDs []string) CancelResult {
	var res CancelResult
	var cancelled []*Job

	q.mu.Lock()
	for _, id := range jobIDs {
		job, ok := q.jobs[id]
		if !ok {
			res.NotFound = append(res.NotFound, id)
			continue
		}
		job.mu.Lock()
		switch job.state {
		case StateQueued:
			job.state = StateCancelled
			now := time.Now()
			job.completedAt = &now
			cancelled = append(cancelled, job)
			res.Cancelled = append(res.Cancelled, id)
		case StateRunning:
			job.cancelRequested = true
			if job.cancelFunc != nil {
				job.cancelFunc()
			}
			res.AlreadyStarted = append(res.AlreadyStarted, id)
		default:
			res.AlreadyStarted = append(res.AlreadyStarted, id)
		}
		job.mu.Unlock()
	}
	q.mu.Unlock()

	for _, job := range cancelled {
		if err := q.journal.Append(ctx, job, StateCancelled, nil, ""); err != nil {
			slog.Error("Failed to journal cancellation", logfields.JobID(job.ID), logfields.Error(err))
		}
		q.recorder.IncJobResult(string(job.WorkType), metrics.ResultCancelled)
		q.emitFinished(ctx, job)
	}
	return res
}

// Status returns self-consistent snapshots for the requested job ids plus a
// histogram over every job the queue knows about. Both come from a single
// lock acquisition over the job index.
func (q *Queue) Status(jobIDs []string) ([]Snapshot, Summary) {
	q.mu.Lock()
	targets := make([]*Job, 0, len(jobIDs))
	for _, id := range jobIDs {
		if job, ok := q.jobs[id]; ok {
			targets = append(targets, job)
		}
	}
	all := make([]*Job, 0, len(q.jobs))
	for _, job := range q.jobs {
		all = append(all, job)
	}
	q.mu.Unlock()

	snaps := make([]Snapshot, 0, len(targets))
	for _, job := range targets {
		snaps = append(snaps, job.Snapshot())
	}
	var summary Summary
	for _, job := range all {
		summary.add(job.State())
	}
	return snaps, summary
}

// Depth returns the number of ready jobs for a work type.
func (q *Queue) Depth(wt WorkType) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.ready[wt].Len()
}

// activeCountLocked counts the jobs still occupying capacity: queued plus
// running. Terminal jobs, including cancelled entries not yet skimmed from a
// heap, are free.
func (q *Queue) activeCountLocked() int {
	n := 0
	for _, job := range q.jobs {
		switch job.State() {
		case StateQueued, StateRunning:
			n++
		}
	}
	return n
}

func (q *Queue) push(job *Job) {
	job.seq = q.nextSeq
	q.nextSeq++
	heap.Push(q.ready[job.WorkType], job)
}

// dequeue blocks until a job of the given type is ready or the queue is
// stopping. Cancelled jobs left in the heap are skipped. The returned job is
// already leased as running: the transition happens under both locks, so a
// concurrent Cancel can never observe a dequeued job as still queued.
func (q *Queue) dequeue(wt WorkType) *Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	for {
		h := q.ready[wt]
		for h.Len() > 0 {
			job := heap.Pop(h).(*Job)
			job.mu.Lock()
			if job.state == StateQueued {
				job.state = StateRunning
				job.mu.Unlock()
				return job
			}
			job.mu.Unlock()
		}
		if q.stopping {
			return nil
		}
		q.cond.Wait()
	}
}

func (q *Queue) worker(ctx context.Context, wt WorkType, workerID string) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		job := q.dequeue(wt)
		if job == nil {
			return
		}
		q.runJob(ctx, job, workerID)
	}
}

func (q *Queue) runJob(ctx context.Context, job *Job, workerID string) {
	timeout := q.timeouts[job.WorkType]
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Downstream log lines carry the job identity without re-plumbing it.
	jobCtx = observability.WithJobID(jobCtx, job.ID)
	jobCtx = observability.WithWorkType(jobCtx, string(job.WorkType))

	// The job is already leased as running by dequeue.
	start := time.Now()
	job.mu.Lock()
	job.startedAt = &start
	job.cancelFunc = cancel
	job.mu.Unlock()

	if err := q.journal.Append(jobCtx, job, StateRunning, nil, ""); err != nil {
		slog.Error("Failed to journal running transition", logfields.JobID(job.ID), logfields.Error(err))
	}
	q.recorder.SetQueueDepth(string(job.WorkType), q.Depth(job.WorkType))

	slog.Info("Job started",
		logfields.JobID(job.ID),
		logfields.WorkType(string(job.WorkType)),
		"worker_id", workerID,
	)

	result, err := q.runners[job.WorkType].Run(jobCtx, job)
	final, errText, errKind := q.classifyOutcome(jobCtx, job, err)

	end := time.Now()
	job.mu.Lock()
	job.state = final
	job.completedAt = &end
	job.duration = end.Sub(start)
	job.result = result
	job.errText = errText
	job.errKind = errKind
	job.cancelFunc = nil
	duration := job.duration
	job.mu.Unlock()

	// Journal with a fresh context: jobCtx may already be expired.
	if jerr := q.journal.Append(context.WithoutCancel(ctx), job, final, nil, errText); jerr != nil {
		slog.Error("Failed to journal terminal transition", logfields.JobID(job.ID), logfields.Error(jerr))
	}

	q.recorder.ObserveJobDuration(string(job.WorkType), duration)
	q.recorder.IncJobResult(string(job.WorkType), metrics.ResultLabel(final))
	q.emitFinished(ctx, job)

	logAttrs := []any{
		logfields.JobID(job.ID),
		logfields.WorkType(string(job.WorkType)),
		logfields.JobState(string(final)),
		logfields.DurationMS(float64(duration.Milliseconds())),
	}
	if errText != "" {
		logAttrs = append(logAttrs, "error", errText)
		slog.Warn("Job finished with error", logAttrs...)
	} else {
		slog.Info("Job completed", logAttrs...)
	}
}

// classifyOutcome maps a runner result onto the state machine: exactly one of
// completed, failed, or cancelled is written.
func (q *Queue) classifyOutcome(jobCtx context.Context, job *Job, err error) (State, string, string) {
	if err == nil {
		return StateCompleted, "", ""
	}
	if job.CancelRequested() && (lferrors.IsCategory(err, lferrors.CategoryCancelled) || jobCtx.Err() == context.Canceled) {
		return StateCancelled, err.Error(), string(lferrors.CategoryCancelled)
	}
	if jobCtx.Err() == context.DeadlineExceeded {
		timeoutErr := lferrors.UpstreamTimeout("job wall-clock", err)
		return StateFailed, timeoutErr.Error(), string(lferrors.CategoryTimeout)
	}
	return StateFailed, err.Error(), string(lferrors.GetCategory(err))
}

func (q *Queue) emitQueued(ctx context.Context, job *Job) {
	if q.emitter == nil {
		return
	}
	if err := q.emitter.EmitJobQueued(ctx, job.Snapshot()); err != nil {
		slog.Warn("Failed to emit job queued event", logfields.JobID(job.ID), logfields.Error(err))
	}
}

func (q *Queue) emitFinished(ctx context.Context, job *Job) {
	if q.emitter == nil {
		return
	}
	if err := q.emitter.EmitJobFinished(ctx, job.Snapshot()); err != nil {
		slog.Warn("Failed to emit job finished event", logfields.JobID(job.ID), logfields.Error(err))
	}
}
