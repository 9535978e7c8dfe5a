package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/schemabridge/schemabridge/internal/adapter/otel"
	"github.com/schemabridge/schemabridge/internal/adapter/ws"
	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/broadcast"
	"github.com/schemabridge/schemabridge/internal/port/eventbus"
)

// Work is the body of a long-running task. It receives a Handle bound to the
// task for progress reporting and cooperative cancellation. A non-nil result
// alongside a non-nil error means partial completion: the work that finished
// before the failure is still reported.
type Work func(ctx context.Context, h *Handle) (any, error)

// Handle binds progress reporting and cancellation checks to one task.
type Handle struct {
	reg       *TaskRegistry
	id        string
	cancelled *atomic.Bool
}

// UpdateProgress reports progress in percent. Values are clamped to [0,100]
// and never decrease while the task is running.
func (h *Handle) UpdateProgress(pct float64) {
	h.reg.UpdateProgress(h.id, pct)
}

// Cancelled reports whether cancellation was requested. Work must check this
// at every loop boundary and before every remote call; already-dispatched
// calls are allowed to complete.
func (h *Handle) Cancelled() bool {
	return h.cancelled.Load()
}

// Err returns domain.ErrCancelled when cancellation was requested, nil otherwise.
func (h *Handle) Err() error {
	if h.cancelled.Load() {
		return domain.ErrCancelled
	}
	return nil
}

// taskEntry is the registry's internal record for one task.
type taskEntry struct {
	task      task.Task
	cancelled atomic.Bool
}

// TaskRegistry makes long operations addressable, pollable, and cancellable.
// It owns all Task state exclusively; engines mutate tasks only through the
// Handle passed into their Work. Task history is volatile and dies with the
// process.
type TaskRegistry struct {
	mu    sync.RWMutex
	tasks map[string]*taskEntry

	hub     broadcast.Broadcaster // optional
	bus     eventbus.Publisher    // optional
	metrics *otel.Metrics         // optional
}

// NewTaskRegistry creates an empty task registry. hub, bus, and metrics are
// optional observability sinks; nil disables each.
func NewTaskRegistry(hub broadcast.Broadcaster, bus eventbus.Publisher, metrics *otel.Metrics) *TaskRegistry {
	return &TaskRegistry{
		tasks:   make(map[string]*taskEntry),
		hub:     hub,
		bus:     bus,
		metrics: metrics,
	}
}

// Create allocates a new pending task. No side effects beyond registration.
func (r *TaskRegistry) Create(kind task.Kind, meta task.Metadata) task.Task {
	entry := &taskEntry{
		task: task.Task{
			ID:        uuid.NewString(),
			Kind:      kind,
			Status:    task.StatusPending,
			Metadata:  meta,
			CreatedAt: time.Now().UTC(),
		},
	}

	r.mu.Lock()
	r.tasks[entry.task.ID] = entry
	r.mu.Unlock()

	r.publish(eventbus.SubjectTaskCreated, entry.task)
	slog.Info("task created", "task_id", entry.task.ID, "kind", kind)
	return entry.task
}

// Start runs work for the task asynchronously. Submission never blocks on
// currently running tasks.
func (r *TaskRegistry) Start(ctx context.Context, id string, work Work) {
	go r.Execute(ctx, id, work)
}

// Execute runs work for a pending task, transitioning it running -> terminal.
// Any error or panic from work is captured on the task and never propagated.
func (r *TaskRegistry) Execute(ctx context.Context, id string, work Work) {
	r.mu.Lock()
	entry, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		slog.Warn("execute for unknown task", "task_id", id)
		return
	}
	if entry.task.Status != task.StatusPending {
		// Cancelled before it started, or double execution.
		r.mu.Unlock()
		return
	}
	now := time.Now().UTC()
	entry.task.Status = task.StatusRunning
	entry.task.StartedAt = &now
	snapshot := entry.task
	r.mu.Unlock()

	r.broadcastStatus(ctx, snapshot)
	r.metrics.AddStarted(ctx)

	h := &Handle{reg: r, id: id, cancelled: &entry.cancelled}

	var (
		result any
		err    error
	)
	func() {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("task panicked: %v", rec)
			}
		}()
		result, err = work(ctx, h)
	}()

	r.complete(ctx, id, result, err)
}

// complete records the terminal outcome of work. A task already cancelled
// keeps its cancelled status; the partial result is still attached.
func (r *TaskRegistry) complete(ctx context.Context, id string, result any, workErr error) {
	r.mu.Lock()
	entry, ok := r.tasks[id]
	if !ok {
		r.mu.Unlock()
		return
	}

	now := time.Now().UTC()
	entry.task.CompletedAt = &now
	entry.task.Result = result

	switch {
	case entry.task.Status == task.StatusCancelled || entry.cancelled.Load():
		entry.task.Status = task.StatusCancelled
		if workErr != nil {
			entry.task.Error = workErr.Error()
		}
	case workErr != nil:
		entry.task.Status = task.StatusFailed
		entry.task.Error = workErr.Error()
	default:
		entry.task.Status = task.StatusCompleted
		entry.task.Progress = 100
	}
	snapshot := entry.task
	r.mu.Unlock()

	r.broadcastStatus(ctx, snapshot)

	switch snapshot.Status {
	case task.StatusCompleted:
		r.publish(eventbus.SubjectTaskCompleted, snapshot)
		r.metrics.AddCompleted(ctx)
		slog.Info("task completed", "task_id", id, "kind", snapshot.Kind)
	case task.StatusFailed:
		r.publish(eventbus.SubjectTaskFailed, snapshot)
		r.metrics.AddFailed(ctx)
		slog.Warn("task failed", "task_id", id, "kind", snapshot.Kind, "error", snapshot.Error)
	case task.StatusCancelled:
		r.publish(eventbus.SubjectTaskCancelled, snapshot)
		r.metrics.AddCancelled(ctx)
		slog.Info("task cancelled", "task_id", id, "kind", snapshot.Kind)
	}
}

// UpdateProgress clamps pct to [0,100] and applies it if the task is running
// and the value does not decrease. No-op once terminal.
func (r *TaskRegistry) UpdateProgress(id string, pct float64) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}

	r.mu.Lock()
	entry, ok := r.tasks[id]
	if !ok || entry.task.Status != task.StatusRunning || pct < entry.task.Progress {
		r.mu.Unlock()
		return
	}
	entry.task.Progress = pct
	snapshot := entry.task
	r.mu.Unlock()

	if r.hub != nil {
		r.hub.BroadcastEvent(context.Background(), ws.EventTaskProgress, ws.TaskProgressEvent{
			TaskID:   snapshot.ID,
			Progress: snapshot.Progress,
		})
	}
}

// Get returns a non-blocking snapshot of one task.
func (r *TaskRegistry) Get(id string) (task.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, ok := r.tasks[id]
	if !ok {
		return task.Task{}, false
	}
	return entry.task, true
}

// List returns snapshots of all tasks, newest first. A non-empty kind filters.
func (r *TaskRegistry) List(kind task.Kind) []task.Task {
	r.mu.RLock()
	out := make([]task.Task, 0, len(r.tasks))
	for _, entry := range r.tasks {
		if kind != "" && entry.task.Kind != kind {
			continue
		}
		out = append(out, entry.task)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Cancel requests cooperative cancellation of a pending or running task.
// Returns false when the task is unknown or already terminal. Already-issued
// remote calls are not recalled; the work observes the flag and stops issuing
// new ones.
func (r *TaskRegistry) Cancel(id string) bool {
	r.mu.Lock()
	entry, ok := r.tasks[id]
	if !ok || entry.task.Status.Terminal() {
		r.mu.Unlock()
		return false
	}

	entry.cancelled.Store(true)
	wasPending := entry.task.Status == task.StatusPending
	entry.task.Status = task.StatusCancelled
	if wasPending {
		// Work will never run; close the record out now.
		now := time.Now().UTC()
		entry.task.CompletedAt = &now
	}
	snapshot := entry.task
	r.mu.Unlock()

	r.broadcastStatus(context.Background(), snapshot)
	if wasPending {
		r.publish(eventbus.SubjectTaskCancelled, snapshot)
		r.metrics.AddCancelled(context.Background())
	}
	slog.Info("task cancel requested", "task_id", id)
	return true
}

func (r *TaskRegistry) broadcastStatus(ctx context.Context, t task.Task) {
	if r.hub == nil {
		return
	}
	r.hub.BroadcastEvent(ctx, ws.EventTaskStatus, ws.TaskStatusEvent{
		TaskID:   t.ID,
		Kind:     string(t.Kind),
		Status:   string(t.Status),
		Progress: t.Progress,
	})
}

// publish sends a task snapshot to the event bus. Best-effort: a publish
// failure is logged, never surfaced to the task.
func (r *TaskRegistry) publish(subject string, t task.Task) {
	if r.bus == nil {
		return
	}
	data, err := json.Marshal(t)
	if err != nil {
		slog.Error("marshal task event", "task_id", t.ID, "error", err)
		return
	}
	if err := r.bus.Publish(context.Background(), subject, data); err != nil {
		slog.Error("publish task event", "task_id", t.ID, "subject", subject, "error", err)
	}
}
