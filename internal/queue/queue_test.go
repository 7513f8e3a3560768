package queue

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	lferrors "git.home.luguber.info/inful/leadforge/internal/errors"
)

type stubRunner struct {
	fn func(ctx context.Context, job *Job) (json.RawMessage, error)
}

func (s stubRunner) Run(ctx context.Context, job *Job) (json.RawMessage, error) {
	return s.fn(ctx, job)
}

func newTestJournal(t *testing.T) *Journal {
	t.Helper()
	j, err := NewJournal(filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestEnqueueAssignsIDAndJournals(t *testing.T) {
	j := newTestJournal(t)
	q := New(j, nil, Options{})

	id, err := q.Enqueue(context.Background(), WorkAnalyzeURL, PriorityNormal, json.RawMessage(`{"url":"https://a.example"}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if id == "" {
		t.Fatal("enqueue must return a job id")
	}

	replayed, err := j.Replay(context.Background())
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if len(replayed) != 1 || replayed[0].ID != id || replayed[0].State != StateQueued {
		t.Fatalf("journal must record the queued transition, got %+v", replayed)
	}
	if string(replayed[0].Payload) != `{"url":"https://a.example"}` {
		t.Fatalf("payload must survive the journal, got %s", replayed[0].Payload)
	}
}

func TestEnqueueRejectsUnknownWorkType(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{})
	if _, err := q.Enqueue(context.Background(), "mining", PriorityNormal, nil); err == nil {
		t.Fatal("expected error for unknown work type")
	}
}

func TestDequeueOrdering(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{})
	ctx := context.Background()

	low, _ := q.Enqueue(ctx, WorkProspecting, PriorityLow, nil)
	urgent, _ := q.Enqueue(ctx, WorkProspecting, PriorityUrgent, nil)
	normalFirst, _ := q.Enqueue(ctx, WorkProspecting, PriorityNormal, nil)
	normalSecond, _ := q.Enqueue(ctx, WorkProspecting, PriorityNormal, nil)

	want := []string{urgent, normalFirst, normalSecond, low}
	for i, expected := range want {
		job := q.dequeue(WorkProspecting)
		if job.ID != expected {
			t.Fatalf("dequeue %d: got %s want %s", i, job.ID, expected)
		}
	}
}

func TestHighWaterMarkFailsFast(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{HighWaterMark: 2})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}

	_, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil)
	if err == nil {
		t.Fatal("expected high-water mark rejection")
	}
	if !lferrors.IsRetryable(err) {
		t.Fatalf("high-water rejection must be retryable, got %v", err)
	}
	if q.Depth(WorkComposeOutreach) != 2 {
		t.Fatal("counts must not change on rejection")
	}
}

func TestHighWaterMarkCountsRunningJobs(t *testing.T) {
	started := make(chan struct{})
	var startedOnce sync.Once
	release := make(chan struct{})
	q := New(newTestJournal(t), nil, Options{
		Workers:       map[WorkType]int{WorkComposeOutreach: 1},
		HighWaterMark: 2,
	})
	q.RegisterRunner(WorkComposeOutreach, stubRunner{fn: func(context.Context, *Job) (json.RawMessage, error) {
		startedOnce.Do(func() { close(started) })
		<-release
		return json.RawMessage(`{}`), nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	running, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	<-started
	if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err != nil {
		t.Fatalf("second enqueue is still within the mark: %v", err)
	}

	// One running plus one queued: the mark is reached even though the
	// ready heap holds a single job.
	if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err == nil {
		t.Fatal("running jobs must count toward the high-water mark")
	}

	close(release)
	waitForState(t, q, running, StateCompleted)
}

func TestHighWaterMarkFreesCancelledCapacity(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{HighWaterMark: 2})
	ctx := context.Background()

	victim, _ := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil)
	if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err == nil {
		t.Fatal("expected rejection at the mark")
	}

	q.Cancel(ctx, []string{victim})
	if _, err := q.Enqueue(ctx, WorkComposeOutreach, PriorityNormal, nil); err != nil {
		t.Fatalf("cancelled jobs must free capacity even before dequeue skims them: %v", err)
	}
}

func TestCancelQueuedJobNeverDequeued(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{})
	ctx := context.Background()

	victim, _ := q.Enqueue(ctx, WorkProspecting, PriorityUrgent, nil)
	survivor, _ := q.Enqueue(ctx, WorkProspecting, PriorityNormal, nil)

	res := q.Cancel(ctx, []string{victim, "no-such-job"})
	if len(res.Cancelled) != 1 || res.Cancelled[0] != victim {
		t.Fatalf("expected victim cancelled, got %+v", res)
	}
	if len(res.NotFound) != 1 {
		t.Fatalf("expected one not_found, got %+v", res)
	}

	job := q.dequeue(WorkProspecting)
	if job.ID != survivor {
		t.Fatalf("cancelled job must never be dequeued, got %s", job.ID)
	}
}

func TestCancelBetweenDequeueAndRunReportsAlreadyStarted(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{})
	q.RegisterRunner(WorkProspecting, stubRunner{fn: func(_ context.Context, job *Job) (json.RawMessage, error) {
		if job.CancelRequested() {
			return nil, lferrors.Cancelled(job.ID)
		}
		return json.RawMessage(`{}`), nil
	}})
	ctx := context.Background()

	id, err := q.Enqueue(ctx, WorkProspecting, PriorityNormal, nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	// Step through the worker loop by hand, pausing between its two calls:
	// the job has left the heap but the runner has not started yet.
	job := q.dequeue(WorkProspecting)
	if got := job.State(); got != StateRunning {
		t.Fatalf("dequeue must lease the job as running, got %s", got)
	}

	res := q.Cancel(ctx, []string{id})
	if len(res.Cancelled) != 0 || len(res.AlreadyStarted) != 1 {
		t.Fatalf("a leased job must report already_started, never cancelled, got %+v", res)
	}

	q.runJob(ctx, job, "w-test")
	snaps, _ := q.Status([]string{id})
	if snaps[0].State != StateCancelled {
		t.Fatalf("cooperative cancel must decide the terminal state, got %s", snaps[0].State)
	}
}

func TestWorkerCompletesJob(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{Workers: map[WorkType]int{WorkAnalyzeURL: 1}})
	done := make(chan string, 1)
	q.RegisterRunner(WorkAnalyzeURL, stubRunner{fn: func(_ context.Context, job *Job) (json.RawMessage, error) {
		job.Report(1, 1, "done")
		done <- job.ID
		return json.RawMessage(`{"grade":"B"}`), nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, err := q.Enqueue(ctx, WorkAnalyzeURL, PriorityNormal, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("runner never invoked")
	}

	waitForState(t, q, id, StateCompleted)
	snaps, summary := q.Status([]string{id})
	if string(snaps[0].Result) != `{"grade":"B"}` {
		t.Fatalf("result must be stored, got %s", snaps[0].Result)
	}
	if snaps[0].Progress.Current != 1 {
		t.Fatalf("latest progress must be visible, got %+v", snaps[0].Progress)
	}
	if summary.Completed != 1 || summary.Total != 1 {
		t.Fatalf("summary mismatch: %+v", summary)
	}
}

func TestWorkerRecordsFailure(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{Workers: map[WorkType]int{WorkGenerateReport: 1}})
	q.RegisterRunner(WorkGenerateReport, stubRunner{fn: func(context.Context, *Job) (json.RawMessage, error) {
		return nil, lferrors.Transient("remote store unavailable", errors.New("dial tcp: refused"))
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, _ := q.Enqueue(ctx, WorkGenerateReport, PriorityNormal, nil)
	waitForState(t, q, id, StateFailed)

	snaps, _ := q.Status([]string{id})
	if snaps[0].Error == "" || snaps[0].ErrorKind != "transient" {
		t.Fatalf("failure must carry the error taxonomy, got %+v", snaps[0])
	}
}

func TestJobTimeoutFailsWithTimeoutKind(t *testing.T) {
	q := New(newTestJournal(t), nil, Options{
		Workers:  map[WorkType]int{WorkAnalyzeURL: 1},
		Timeouts: map[WorkType]time.Duration{WorkAnalyzeURL: 50 * time.Millisecond},
	})
	q.RegisterRunner(WorkAnalyzeURL, stubRunner{fn: func(ctx context.Context, _ *Job) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, _ := q.Enqueue(ctx, WorkAnalyzeURL, PriorityNormal, nil)
	waitForState(t, q, id, StateFailed)

	snaps, _ := q.Status([]string{id})
	if snaps[0].ErrorKind != "timeout" {
		t.Fatalf("wall-clock overrun must classify as timeout, got %q", snaps[0].ErrorKind)
	}
}

func TestCancelRunningJobCooperatively(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(newTestJournal(t), nil, Options{Workers: map[WorkType]int{WorkProspecting: 1}})
	q.RegisterRunner(WorkProspecting, stubRunner{fn: func(_ context.Context, job *Job) (json.RawMessage, error) {
		close(started)
		<-release
		if job.CancelRequested() {
			return nil, lferrors.Cancelled(job.ID)
		}
		return json.RawMessage(`{}`), nil
	}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	q.Start(ctx)
	defer q.Stop()

	id, _ := q.Enqueue(ctx, WorkProspecting, PriorityNormal, nil)
	<-started

	res := q.Cancel(ctx, []string{id})
	if len(res.AlreadyStarted) != 1 {
		t.Fatalf("running job must report already_started, got %+v", res)
	}
	close(release)

	waitForState(t, q, id, StateCancelled)
}

func TestRecoverRequeuesInterruptedJobs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := NewJournal(path)
	if err != nil {
		t.Fatalf("new journal: %v", err)
	}

	// Simulate a previous process: one job finished, one was mid-flight, one
	// never started.
	ctx := context.Background()
	finished := &Job{ID: "j-finished", WorkType: WorkAnalyzeURL, Priority: PriorityNormal}
	interrupted := &Job{ID: "j-interrupted", WorkType: WorkAnalyzeURL, Priority: PriorityHigh}
	waiting := &Job{ID: "j-waiting", WorkType: WorkAnalyzeURL, Priority: PriorityNormal}
	for _, step := range []struct {
		job   *Job
		state State
	}{
		{finished, StateQueued}, {finished, StateRunning}, {finished, StateCompleted},
		{interrupted, StateQueued}, {interrupted, StateRunning},
		{waiting, StateQueued},
	} {
		if err := j.Append(ctx, step.job, step.state, json.RawMessage(`{"k":1}`), ""); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	j2, err := NewJournal(path)
	if err != nil {
		t.Fatalf("reopen journal: %v", err)
	}
	t.Cleanup(func() { _ = j2.Close() })

	q := New(j2, nil, Options{})
	if err := q.Recover(ctx); err != nil {
		t.Fatalf("recover: %v", err)
	}

	if q.Depth(WorkAnalyzeURL) != 2 {
		t.Fatalf("expected interrupted + waiting re-queued, depth=%d", q.Depth(WorkAnalyzeURL))
	}
	// The interrupted job had higher priority and dequeues first.
	if job := q.dequeue(WorkAnalyzeURL); job.ID != "j-interrupted" {
		t.Fatalf("expected interrupted job first, got %s", job.ID)
	}
	snaps, summary := q.Status([]string{"j-finished"})
	if len(snaps) != 1 || snaps[0].State != StateCompleted {
		t.Fatalf("terminal jobs must stay visible, got %+v", snaps)
	}
	if summary.Completed != 1 {
		t.Fatalf("summary must include replayed terminal jobs: %+v", summary)
	}
}

func TestProgressIsMonotonic(t *testing.T) {
	job := &Job{ID: "j", WorkType: WorkProspecting, state: StateRunning}
	job.Report(3, 10, "three")
	job.Report(1, 10, "stale")
	job.Report(5, 10, "five")

	job.mu.Lock()
	defer job.mu.Unlock()
	if job.progress.Current != 5 || job.progress.Message != "five" {
		t.Fatalf("progress regressions must be dropped, got %+v", job.progress)
	}
}

func waitForState(t *testing.T, q *Queue, id string, want State) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snaps, _ := q.Status([]string{id})
		if len(snaps) == 1 && snaps[0].State == want {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	snaps, _ := q.Status([]string{id})
	t.Fatalf("job %s never reached %s, last snapshot: %+v", id, want, snaps)
}
