package pipeline

import (
	"git.home.luguber.info/inful/leadforge/internal/backup"
	"git.home.luguber.info/inful/leadforge/internal/queue"
	"git.home.luguber.info/inful/leadforge/internal/remote"
)

// Registry binds stages to work types and registers the resulting runners on
// the queue.
type Registry struct {
	backup  *backup.Store
	remote  remote.Store
	runners map[queue.WorkType]*Runner
}

// NewRegistry creates an empty registry over the shared stores.
func NewRegistry(backupStore *backup.Store, remoteStore remote.Store) *Registry {
	return &Registry{
		backup:  backupStore,
		remote:  remoteStore,
		runners: make(map[queue.WorkType]*Runner),
	}
}

// Register binds a stage to a work type.
func (r *Registry) Register(wt queue.WorkType, stage Stage) *Runner {
	runner := NewRunner(stage, r.backup, r.remote)
	r.runners[wt] = runner
	return runner
}

// Runner returns the runner for a work type, if registered.
func (r *Registry) Runner(wt queue.WorkType) (*Runner, bool) {
	runner, ok := r.runners[wt]
	return runner, ok
}

// Attach registers every bound runner on the queue.
func (r *Registry) Attach(q *queue.Queue) {
	for wt, runner := range r.runners {
		q.RegisterRunner(wt, runner)
	}
}
