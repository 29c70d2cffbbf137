package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Syncer runs one sync; *Pipeline implements it.
type Syncer interface {
	Run(ctx context.Context, req Request) (Report, error)
}

// TaskState is the coarse status of an asynchronous run.
type TaskState string

const (
	TaskRunning TaskState = "running"
	TaskDone    TaskState = "done"
	TaskFailed  TaskState = "failed"
)

// Task is a handle on a run started by Runner.Start.
type Task struct {
	ID        string
	Request   Request
	StartedAt time.Time

	done   chan struct{}
	mu     sync.RWMutex
	report Report
	err    error
}

// Done is closed once the run has finished and the completion callback returned.
func (t *Task) Done() <-chan struct{} { return t.done }

// Result returns the report and error. Valid after Done is closed.
func (t *Task) Result() (Report, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.report, t.err
}

// Wait blocks until the task finishes or ctx ends.
func (t *Task) Wait(ctx context.Context) (Report, error) {
	select {
	case <-t.done:
		return t.Result()
	case <-ctx.Done():
		return Report{}, ctx.Err()
	}
}

// State reports whether the task is still running.
func (t *Task) State() TaskState {
	select {
	case <-t.done:
	default:
		return TaskRunning
	}
	if _, err := t.Result(); err != nil {
		return TaskFailed
	}
	return TaskDone
}

// TaskView is the JSON shape of a task.
type TaskView struct {
	ID        string    `json:"task_id"`
	State     TaskState `json:"state"`
	Request   Request   `json:"request"`
	StartedAt time.Time `json:"started_at"`
	Report    *Report   `json:"report,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// View snapshots the task.
func (t *Task) View() TaskView {
	v := TaskView{ID: t.ID, State: t.State(), Request: t.Request, StartedAt: t.StartedAt}
	if v.State == TaskRunning {
		return v
	}
	report, err := t.Result()
	v.Report = &report
	if err != nil {
		v.Error = err.Error()
	}
	return v
}

// Runner starts syncs in the background and remembers recent tasks.
type Runner struct {
	syncer Syncer
	ctx    context.Context
	logger logrus.FieldLogger
	keep   int

	mu    sync.Mutex
	tasks map[string]*Task
	order []string
	wg    sync.WaitGroup
}

// RunnerOption customises a Runner.
type RunnerOption func(*Runner)

// WithRunnerLogger overrides the default logger.
func WithRunnerLogger(l logrus.FieldLogger) RunnerOption {
	return func(r *Runner) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithRetention bounds how many finished tasks Get can still find.
func WithRetention(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.keep = n
		}
	}
}

// NewRunner returns a Runner whose runs use ctx. Runs are not tied to the caller's request.
func NewRunner(ctx context.Context, s Syncer, opts ...RunnerOption) *Runner {
	if ctx == nil {
		ctx = context.Background()
	}
	r := &Runner{
		syncer: s,
		ctx:    ctx,
		logger: logrus.StandardLogger(),
		keep:   100,
		tasks:  make(map[string]*Task),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start launches a run. onDone, when set, is called with the finished task before Done closes.
func (r *Runner) Start(req Request, onDone func(*Task)) *Task {
	t := &Task{ID: uuid.NewString(), Request: req, StartedAt: time.Now().UTC(), done: make(chan struct{})}
	r.remember(t)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer close(t.done)

		report, err := r.syncer.Run(r.ctx, req)
		t.mu.Lock()
		t.report, t.err = report, err
		t.mu.Unlock()

		log := r.logger.WithField("task_id", t.ID).WithField("run_id", report.RunID)
		if err != nil {
			log.WithError(err).Warn("sync task failed")
		} else {
			log.Debug("sync task finished")
		}
		if onDone != nil {
			onDone(t)
		}
	}()
	return t
}

// Get looks up a task by id.
func (r *Runner) Get(id string) (*Task, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	return t, ok
}

// Wait blocks until every started task has finished.
func (r *Runner) Wait() {
	r.wg.Wait()
}

func (r *Runner) remember(t *Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tasks[t.ID] = t
	r.order = append(r.order, t.ID)
	for len(r.order) > r.keep {
		oldest := r.tasks[r.order[0]]
		if oldest != nil && oldest.State() == TaskRunning {
			break
		}
		delete(r.tasks, r.order[0])
		r.order = r.order[1:]
	}
}
