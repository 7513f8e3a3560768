package queue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Journal is the append-only transition log backing crash recovery. Every
// state transition is flushed before the queue acknowledges it; on boot the
// log is replayed and interrupted jobs are re-queued.
type Journal struct {
	db *sql.DB
	mu sync.Mutex
}

// NewJournal opens (or creates) the journal database. Use ":memory:" in tests.
func NewJournal(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	j := &Journal{db: db}
	if err := j.initialize(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize journal schema: %w", err)
	}
	return j, nil
}

func (j *Journal) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS transitions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		work_type TEXT NOT NULL,
		priority INTEGER NOT NULL,
		state TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		payload BLOB,
		error TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_transitions_job_id ON transitions(job_id);
	CREATE INDEX IF NOT EXISTS idx_transitions_state ON transitions(state);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Append writes one transition. The payload is recorded only on the queued
// transition; later transitions carry nil to keep the log compact.
func (j *Journal) Append(ctx context.Context, job *Job, state State, payload json.RawMessage, errText string) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		"INSERT INTO transitions (job_id, work_type, priority, state, timestamp, payload, error) VALUES (?, ?, ?, ?, ?, ?, ?)",
		job.ID, string(job.WorkType), int(job.Priority), string(state), time.Now().UnixMilli(), []byte(payload), errText,
	)
	if err != nil {
		return fmt.Errorf("append transition: %w", err)
	}
	return nil
}

// ReplayedJob is the reconstructed final state of one job after replay.
type ReplayedJob struct {
	ID         string
	WorkType   WorkType
	Priority   Priority
	State      State
	Payload    json.RawMessage
	Error      string
	EnqueuedAt time.Time
}

// Replay folds the transition log into one entry per job, in enqueue order.
// Jobs whose last recorded state is running were interrupted by a crash; the
// caller re-queues them (at-least-once delivery).
func (j *Journal) Replay(ctx context.Context) ([]ReplayedJob, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		"SELECT job_id, work_type, priority, state, timestamp, payload, error FROM transitions ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("query transitions: %w", err)
	}
	defer rows.Close()

	byID := make(map[string]*ReplayedJob)
	var order []string
	for rows.Next() {
		var (
			jobID, workType, state string
			priority               int
			ts                     int64
			payload                []byte
			errText                sql.NullString
		)
		if err := rows.Scan(&jobID, &workType, &priority, &state, &ts, &payload, &errText); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}

		rj, seen := byID[jobID]
		if !seen {
			rj = &ReplayedJob{
				ID:         jobID,
				WorkType:   WorkType(workType),
				Priority:   Priority(priority),
				EnqueuedAt: time.UnixMilli(ts),
			}
			byID[jobID] = rj
			order = append(order, jobID)
		}
		rj.State = State(state)
		if len(payload) > 0 {
			rj.Payload = json.RawMessage(payload)
		}
		if errText.Valid {
			rj.Error = errText.String
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transitions: %w", err)
	}

	out := make([]ReplayedJob, 0, len(order))
	for _, id := range order {
		out = append(out, *byID[id])
	}
	return out, nil
}

// Prune removes transitions for jobs that reached a terminal state before the
// cutoff. Keeps the journal from growing without bound.
func (j *Journal) Prune(ctx context.Context, before time.Time) (int64, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	res, err := j.db.ExecContext(ctx, `
		DELETE FROM transitions WHERE job_id IN (
			SELECT job_id FROM transitions
			WHERE state IN ('completed', 'failed', 'cancelled')
			GROUP BY job_id
			HAVING MAX(timestamp) < ?
		)`, before.UnixMilli(),
	)
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close releases the underlying database.
func (j *Journal) Close() error {
	return j.db.Close()
}
