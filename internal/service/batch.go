package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/schemabridge/schemabridge/internal/adapter/otel"
	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/worker"
)

// BatchDeletePlan is the input to one batch subject cleanup.
// DryRun defaults to true at the tool boundary: callers opt in to real
// deletion explicitly.
type BatchDeletePlan struct {
	Registry    string
	Context     string
	Subjects    []string
	DryRun      bool
	Concurrency int // 0 uses the configured default
}

// BatchService applies one idempotent operation to many independent items
// under a fixed concurrency ceiling. One item's failure never aborts the
// batch; every run reports a per-item-attributable outcome.
type BatchService struct {
	registries  *registry.Set
	tasks       *TaskRegistry
	concurrency int
	metrics     *otel.Metrics
}

// NewBatchService creates a BatchService with the given default concurrency ceiling.
func NewBatchService(registries *registry.Set, tasks *TaskRegistry, concurrency int, metrics *otel.Metrics) *BatchService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &BatchService{
		registries:  registries,
		tasks:       tasks,
		concurrency: concurrency,
		metrics:     metrics,
	}
}

// StartBatchDelete validates the plan and launches the deletion as a task.
func (s *BatchService) StartBatchDelete(ctx context.Context, plan BatchDeletePlan) (task.Task, error) {
	client, err := s.registries.Get(plan.Registry)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	if client.ReadOnly() && !plan.DryRun {
		return task.Task{}, fmt.Errorf("registry %q: %w", plan.Registry, domain.ErrReadOnly)
	}
	if len(plan.Subjects) == 0 {
		return task.Task{}, fmt.Errorf("%w: no subjects given", domain.ErrInvalidPlan)
	}

	// The configured value is both the default and the ceiling: a plan can
	// lower the fan-out but never exceed the operator's limit.
	concurrency := plan.Concurrency
	if concurrency < 1 || concurrency > s.concurrency {
		concurrency = s.concurrency
	}

	t := s.tasks.Create(task.KindBatchCleanup, task.Metadata{
		Batch: &task.BatchMetadata{
			Registry:    plan.Registry,
			Context:     plan.Context,
			Items:       plan.Subjects,
			DryRun:      plan.DryRun,
			Concurrency: concurrency,
		},
	})

	s.tasks.Start(ctx, t.ID, func(ctx context.Context, h *Handle) (any, error) {
		return s.runBatchDelete(ctx, h, client, plan, concurrency)
	})

	return t, nil
}

func (s *BatchService) runBatchDelete(ctx context.Context, h *Handle, client registry.Client, plan BatchDeletePlan, concurrency int) (any, error) {
	start := time.Now()
	pool := worker.NewPool(concurrency)
	total := len(plan.Subjects)

	var done atomic.Int64
	results := worker.Map(ctx, pool, plan.Subjects, func(ctx context.Context, subject string) error {
		// Checked before dispatching the remote call; an already-issued
		// delete is allowed to complete.
		if h.Cancelled() {
			return domain.ErrCancelled
		}
		if !plan.DryRun {
			if _, err := client.DeleteSubject(ctx, subject, plan.Context); err != nil {
				return err
			}
		}
		n := done.Add(1)
		h.UpdateProgress(float64(n) / float64(total) * 100)
		return nil
	})

	outcome := &task.BatchOutcome{
		Requested: total,
		DryRun:    plan.DryRun,
		Items:     make([]task.BatchItemResult, 0, total),
	}

	var cancelledMid bool
	for _, res := range results {
		item := task.BatchItemResult{Item: res.Item}
		switch {
		case errors.Is(res.Err, domain.ErrCancelled):
			item.Outcome = task.ItemSkipped
			item.Error = "cancelled before dispatch"
			cancelledMid = true
		case res.Err != nil:
			item.Outcome = task.ItemFailed
			item.Error = res.Err.Error()
			outcome.Failed++
			outcome.FailedItems = append(outcome.FailedItems, res.Item)
		case plan.DryRun:
			item.Outcome = task.ItemSkipped
			item.Error = ""
			outcome.Succeeded++
		default:
			item.Outcome = task.ItemDeleted
			outcome.Succeeded++
		}
		outcome.Items = append(outcome.Items, item)
	}

	elapsed := time.Since(start)
	outcome.ElapsedSeconds = elapsed.Seconds()
	if elapsed > 0 {
		outcome.Throughput = float64(outcome.Succeeded+outcome.Failed) / elapsed.Seconds()
	}

	s.metrics.AddBatchItems(ctx, int64(outcome.Succeeded+outcome.Failed))

	if cancelledMid {
		return outcome, domain.ErrCancelled
	}
	if outcome.Failed > 0 {
		return outcome, fmt.Errorf("%d of %d items failed", outcome.Failed, outcome.Requested)
	}
	return outcome, nil
}
