package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/worker"
)

// StatsService counts contexts, subjects, and schema versions of one
// registry. Version enumeration fans out per subject under the worker pool,
// so the count runs as a task.
type StatsService struct {
	registries *registry.Set
	tasks      *TaskRegistry
	pool       *worker.Pool
}

// NewStatsService creates a StatsService. concurrency bounds parallel
// version enumeration.
func NewStatsService(registries *registry.Set, tasks *TaskRegistry, concurrency int) *StatsService {
	return &StatsService{
		registries: registries,
		tasks:      tasks,
		pool:       worker.NewPool(concurrency),
	}
}

// StartStatistics launches a statistics count over one registry as a task.
func (s *StatsService) StartStatistics(ctx context.Context, registryName string) (task.Task, error) {
	client, err := s.registries.Get(registryName)
	if err != nil {
		return task.Task{}, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}

	t := s.tasks.Create(task.KindStatistics, task.Metadata{
		Statistics: &task.StatisticsMetadata{Registry: registryName},
	})

	s.tasks.Start(ctx, t.ID, func(ctx context.Context, h *Handle) (any, error) {
		return s.runStatistics(ctx, h, client)
	})

	return t, nil
}

// subjectRef addresses one subject within its context.
type subjectRef struct {
	context string
	subject string
}

func (s *StatsService) runStatistics(ctx context.Context, h *Handle, client registry.Client) (any, error) {
	contexts, err := client.ListContexts(ctx)
	if err != nil {
		// Registries without the contexts endpoint still have the default one.
		contexts = []string{schema.DefaultContext}
	}
	if len(contexts) == 0 {
		contexts = []string{schema.DefaultContext}
	}

	var refs []subjectRef
	for _, sctx := range contexts {
		if h.Cancelled() {
			return nil, domain.ErrCancelled
		}
		subjects, err := client.ListSubjects(ctx, sctx)
		if err != nil {
			return nil, fmt.Errorf("list subjects in context %s: %w", sctx, err)
		}
		for _, subject := range subjects {
			refs = append(refs, subjectRef{context: sctx, subject: subject})
		}
	}

	stats := &schema.Stats{
		Registry:  client.Name(),
		Contexts:  len(contexts),
		Subjects:  len(refs),
		BySubject: make(map[string]int, len(refs)),
	}
	if len(refs) == 0 {
		h.UpdateProgress(100)
		return stats, nil
	}

	var (
		mu       sync.Mutex
		done     atomic.Int64
		versions atomic.Int64
	)
	results := worker.Map(ctx, s.pool, refs, func(ctx context.Context, ref subjectRef) error {
		if h.Cancelled() {
			return domain.ErrCancelled
		}
		vs, err := client.ListVersions(ctx, ref.subject, ref.context)
		if err != nil {
			return err
		}
		versions.Add(int64(len(vs)))
		mu.Lock()
		stats.BySubject[schema.QualifySubject(ref.context, ref.subject)] = len(vs)
		mu.Unlock()

		n := done.Add(1)
		h.UpdateProgress(float64(n) / float64(len(refs)) * 100)
		return nil
	})

	stats.Versions = int(versions.Load())

	var failed int
	for _, res := range results {
		if res.Err != nil && !errors.Is(res.Err, domain.ErrCancelled) {
			failed++
		}
	}
	if h.Cancelled() {
		return stats, domain.ErrCancelled
	}
	if failed > 0 {
		return stats, fmt.Errorf("version counts failed for %d of %d subjects", failed, len(refs))
	}
	return stats, nil
}
