package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dailyfeed/internal/observability"
	contextutils "dailyfeed/internal/utils"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of a submitted task
type TaskState string

const (
	// TaskRunning means the task has been accepted and has not finished
	TaskRunning TaskState = "running"
	// TaskSucceeded means the task function returned nil
	TaskSucceeded TaskState = "succeeded"
	// TaskFailed means the task function returned an error or panicked
	TaskFailed TaskState = "failed"
)

// defaultTaskRetention bounds how many finished tasks stay queryable
const defaultTaskRetention = 200

// TaskFunc is the unit of background work. ctx is cancelled on shutdown.
type TaskFunc func(ctx context.Context) (details string, err error)

// TaskInfo is a snapshot of one task
type TaskInfo struct {
	ID         string        `json:"id"`
	Name       string        `json:"name"`
	State      TaskState     `json:"state"`
	Details    string        `json:"details,omitempty"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
}

type task struct {
	info TaskInfo
	done chan struct{}
}

// TaskRunner executes submitted work in the background. Submit returns as
// soon as the task is registered; completion is observed through Status or Wait.
type TaskRunner struct {
	mu        sync.RWMutex
	tasks     map[string]*task
	finished  []string
	retention int

	wg      sync.WaitGroup
	baseCtx context.Context
	cancel  context.CancelFunc

	logger  *observability.Logger
	timeNow func() time.Time
}

// NewTaskRunner creates a TaskRunner keeping at most retention finished tasks
func NewTaskRunner(logger *observability.Logger, retention int) *TaskRunner {
	if retention < 1 {
		retention = defaultTaskRetention
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &TaskRunner{
		tasks:     make(map[string]*task),
		retention: retention,
		baseCtx:   ctx,
		cancel:    cancel,
		logger:    logger,
		timeNow:   time.Now,
	}
}

// Submit starts fn in its own goroutine and returns the task id immediately.
// The task context carries the job name and task id for logging.
func (r *TaskRunner) Submit(name string, fn TaskFunc) string {
	id := uuid.NewString()
	t := &task{
		info: TaskInfo{ID: id, Name: name, State: TaskRunning, StartedAt: r.timeNow()},
		done: make(chan struct{}),
	}

	r.mu.Lock()
	r.tasks[id] = t
	r.mu.Unlock()

	ctx := contextutils.WithTaskID(contextutils.WithJobName(r.baseCtx, name), id)
	r.wg.Add(1)
	go r.execute(ctx, t, fn)

	r.logger.Info(ctx, "Task submitted", nil)
	return id
}

func (r *TaskRunner) execute(ctx context.Context, t *task, fn TaskFunc) {
	defer r.wg.Done()

	details, err := runRecovered(ctx, fn)
	finished := r.timeNow()

	r.mu.Lock()
	t.info.Details = details
	t.info.FinishedAt = &finished
	t.info.Duration = finished.Sub(t.info.StartedAt)
	if err != nil {
		t.info.State = TaskFailed
		t.info.Error = err.Error()
	} else {
		t.info.State = TaskSucceeded
	}
	r.finished = append(r.finished, t.info.ID)
	r.evictLocked()
	info := t.info
	r.mu.Unlock()
	close(t.done)

	if err != nil {
		r.logger.Error(ctx, "Task failed", err, map[string]interface{}{
			"duration_ms": info.Duration.Milliseconds(),
		})
		return
	}
	r.logger.Info(ctx, "Task completed", map[string]interface{}{
		"duration_ms": info.Duration.Milliseconds(),
		"details":     details,
	})
}

// evictLocked drops the oldest finished tasks beyond the retention limit
func (r *TaskRunner) evictLocked() {
	for len(r.finished) > r.retention {
		delete(r.tasks, r.finished[0])
		r.finished = r.finished[1:]
	}
}

// Status returns a snapshot of the task, or false when the id is unknown or evicted
func (r *TaskRunner) Status(id string) (TaskInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return TaskInfo{}, false
	}
	return t.info, true
}

// Wait blocks until the task finishes or ctx is done
func (r *TaskRunner) Wait(ctx context.Context, id string) (TaskInfo, error) {
	r.mu.RLock()
	t, ok := r.tasks[id]
	r.mu.RUnlock()
	if !ok {
		return TaskInfo{}, contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "task %s", id)
	}

	select {
	case <-t.done:
	case <-ctx.Done():
		return TaskInfo{}, fmt.Errorf("waiting for task %s: %w", id, ctx.Err())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	return t.info, nil
}

// Shutdown cancels running tasks and waits for them to return or for ctx to expire
func (r *TaskRunner) Shutdown(ctx context.Context) error {
	r.cancel()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		r.logger.Info(ctx, "Task runner stopped", nil)
		return nil
	case <-ctx.Done():
		return contextutils.WrapErrorf(contextutils.ErrTimeout, "tasks still running at shutdown: %v", ctx.Err())
	}
}
