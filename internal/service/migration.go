package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"

	"go.opentelemetry.io/otel/attribute"

	"github.com/schemabridge/schemabridge/internal/adapter/otel"
	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/worker"
)

// MigrationPlan is the ephemeral input to one migration call.
type MigrationPlan struct {
	Subject        string
	SourceRegistry string
	TargetRegistry string
	SourceContext  string
	TargetContext  string
	Versions       []int // empty means all source versions
	PreserveIDs    bool
	DryRun         bool
}

// MigrationService moves subject version histories between registries and
// contexts. Plan validation failures are returned synchronously before any
// task exists; everything after that is recorded on the task.
type MigrationService struct {
	registries *registry.Set
	tasks      *TaskRegistry
	pool       *worker.Pool // bounds per-subject fan-out during context migration
	metrics    *otel.Metrics
}

// NewMigrationService creates a MigrationService. migrateConcurrency bounds
// how many subjects a context migration works on at once.
func NewMigrationService(registries *registry.Set, tasks *TaskRegistry, migrateConcurrency int, metrics *otel.Metrics) *MigrationService {
	return &MigrationService{
		registries: registries,
		tasks:      tasks,
		pool:       worker.NewPool(migrateConcurrency),
		metrics:    metrics,
	}
}

// resolve validates the plan's registry references and write posture.
func (s *MigrationService) resolve(plan *MigrationPlan) (src, dst registry.Client, err error) {
	src, err = s.registries.Get(plan.SourceRegistry)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	dst, err = s.registries.Get(plan.TargetRegistry)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", domain.ErrInvalidPlan, err)
	}
	if dst.ReadOnly() && !plan.DryRun {
		return nil, nil, fmt.Errorf("target registry %q: %w", plan.TargetRegistry, domain.ErrReadOnly)
	}
	for i, v := range plan.Versions {
		if v <= 0 {
			return nil, nil, fmt.Errorf("%w: version %d is not positive", domain.ErrInvalidPlan, v)
		}
		if i > 0 && v <= plan.Versions[i-1] {
			return nil, nil, fmt.Errorf("%w: versions must be strictly ascending", domain.ErrInvalidPlan)
		}
	}
	return src, dst, nil
}

// StartMigration validates the plan, resolves the source version list, and
// launches the migration as a task. The returned task is pending; poll it
// for the outcome. Subject absence on the source fails here, synchronously.
func (s *MigrationService) StartMigration(ctx context.Context, plan MigrationPlan) (task.Task, error) {
	if plan.Subject == "" {
		return task.Task{}, fmt.Errorf("%w: subject is required", domain.ErrInvalidPlan)
	}
	src, dst, err := s.resolve(&plan)
	if err != nil {
		return task.Task{}, err
	}

	versions := plan.Versions
	if len(versions) == 0 {
		// "all": snapshot the source's current version list. Also proves the
		// subject exists before a task is created.
		versions, err = src.ListVersions(ctx, plan.Subject, plan.SourceContext)
		if err != nil {
			return task.Task{}, fmt.Errorf("resolve versions for %s: %w", plan.Subject, err)
		}
	} else if _, err := src.ListVersions(ctx, plan.Subject, plan.SourceContext); err != nil {
		// An explicit version list does not exempt the subject itself from
		// existing on the source. Individual versions missing from the list
		// are still per-version failures on the task.
		return task.Task{}, fmt.Errorf("resolve subject %s: %w", plan.Subject, err)
	}

	t := s.tasks.Create(task.KindMigration, task.Metadata{
		Migration: &task.MigrationMetadata{
			Subject:        plan.Subject,
			SourceRegistry: plan.SourceRegistry,
			TargetRegistry: plan.TargetRegistry,
			SourceContext:  plan.SourceContext,
			TargetContext:  plan.TargetContext,
			Versions:       versions,
			PreserveIDs:    plan.PreserveIDs,
			DryRun:         plan.DryRun,
		},
	})

	s.tasks.Start(ctx, t.ID, func(ctx context.Context, h *Handle) (any, error) {
		ctx, span := otel.StartSpan(ctx, "migration.subject",
			attribute.String("subject", plan.Subject),
			attribute.Bool("dry_run", plan.DryRun),
		)
		defer span.End()

		total := len(versions)
		outcome, err := s.migrateSubject(ctx, src, dst, plan, versions,
			func(done int) {
				if total > 0 {
					h.UpdateProgress(float64(done) / float64(total) * 100)
				}
			},
			h.Cancelled,
		)
		return outcome, err
	})

	return t, nil
}

// migrateSubject replays versions oldest to newest into the target. It never
// fails fast: one version's failure is recorded and the loop moves on. Only
// cancellation stops it early, and the partial outcome survives.
func (s *MigrationService) migrateSubject(
	ctx context.Context,
	src, dst registry.Client,
	plan MigrationPlan,
	versions []int,
	onProgress func(done int),
	cancelled func() bool,
) (*task.MigrationOutcome, error) {
	// Forward replay: targets assign version numbers sequentially on write,
	// so only oldest-to-newest preserves relative ordering. Source lists may
	// be non-contiguous when old versions were deleted.
	sorted := make([]int, len(versions))
	copy(sorted, versions)
	sort.Ints(sorted)

	outcome := &task.MigrationOutcome{
		Subject:   plan.Subject,
		DryRun:    plan.DryRun,
		Requested: len(sorted),
		Versions:  make([]task.VersionOutcome, 0, len(sorted)),
	}

	for i, v := range sorted {
		if cancelled != nil && cancelled() {
			return outcome, domain.ErrCancelled
		}

		entry := s.migrateVersion(ctx, src, dst, plan, v)
		outcome.Versions = append(outcome.Versions, entry)
		switch entry.Status {
		case task.VersionMigrated:
			outcome.Migrated++
		case task.VersionSkipped:
			outcome.Skipped++
		case task.VersionFailed:
			outcome.Failed++
		}

		if onProgress != nil {
			onProgress(i + 1)
		}
	}

	if !plan.DryRun {
		s.metrics.AddVersionsMigrated(ctx, int64(outcome.Migrated))
	}

	if outcome.Failed > 0 {
		return outcome, fmt.Errorf("%d of %d versions failed", outcome.Failed, outcome.Requested)
	}
	return outcome, nil
}

// migrateVersion moves a single version and records what happened to it.
func (s *MigrationService) migrateVersion(ctx context.Context, src, dst registry.Client, plan MigrationPlan, version int) task.VersionOutcome {
	entry := task.VersionOutcome{Version: version}

	srcSchema, err := src.GetSchema(ctx, plan.Subject, version, plan.SourceContext)
	if err != nil {
		entry.Status = task.VersionFailed
		entry.Reason = fmt.Sprintf("fetch source version: %v", err)
		return entry
	}
	entry.SourceID = srcSchema.ID

	// An identical body already at this version number in the target is a
	// skip, not a failure and not a re-write.
	if existing, err := dst.GetSchema(ctx, plan.Subject, version, plan.TargetContext); err == nil {
		if existing.Body == srcSchema.Body {
			entry.Status = task.VersionSkipped
			entry.IDPreserved = existing.ID == srcSchema.ID
			entry.Reason = "identical schema already present in target"
			return entry
		}
	}

	if plan.DryRun {
		// Whether the target honors an explicit id is only knowable on a
		// real write, so a dry run never claims preservation.
		entry.Status = task.VersionMigrated
		entry.Reason = "dry run: write not performed"
		if plan.PreserveIDs {
			entry.Reason = "dry run: write not performed; id preservation unverified"
		}
		return entry
	}

	explicitID := 0
	if plan.PreserveIDs {
		explicitID = srcSchema.ID
	}

	newID, err := dst.Register(ctx, plan.Subject, srcSchema.Body, srcSchema.Type, plan.TargetContext, explicitID)
	if err != nil && explicitID > 0 && !errors.Is(err, domain.ErrReadOnly) {
		// The target could not honor the explicit id (unsupported, or it
		// collides with a different body). Recorded degradation, not a
		// hard failure: fall back to ordinary registration.
		slog.Debug("explicit id registration failed, falling back",
			"subject", plan.Subject, "version", version, "id", explicitID, "error", err)
		entry.Reason = fmt.Sprintf("explicit id %d not honored: %v", explicitID, err)
		newID, err = dst.Register(ctx, plan.Subject, srcSchema.Body, srcSchema.Type, plan.TargetContext, 0)
	}
	if err != nil {
		entry.Status = task.VersionFailed
		entry.Reason = fmt.Sprintf("register in target: %v", err)
		return entry
	}

	entry.Status = task.VersionMigrated
	entry.IDPreserved = newID == srcSchema.ID
	return entry
}

// StartContextMigration migrates every subject of a source context into the
// target context as one task, bounding per-subject fan-out with the worker
// pool. Migration writes within each subject stay strictly ascending; there
// is no ordering guarantee across subjects.
func (s *MigrationService) StartContextMigration(ctx context.Context, plan MigrationPlan) (task.Task, error) {
	if plan.Subject != "" {
		return task.Task{}, fmt.Errorf("%w: context migration takes no subject", domain.ErrInvalidPlan)
	}
	src, dst, err := s.resolve(&plan)
	if err != nil {
		return task.Task{}, err
	}

	t := s.tasks.Create(task.KindContextMigration, task.Metadata{
		Migration: &task.MigrationMetadata{
			SourceRegistry: plan.SourceRegistry,
			TargetRegistry: plan.TargetRegistry,
			SourceContext:  plan.SourceContext,
			TargetContext:  plan.TargetContext,
			PreserveIDs:    plan.PreserveIDs,
			DryRun:         plan.DryRun,
		},
	})

	s.tasks.Start(ctx, t.ID, func(ctx context.Context, h *Handle) (any, error) {
		return s.runContextMigration(ctx, h, src, dst, plan)
	})

	return t, nil
}

func (s *MigrationService) runContextMigration(ctx context.Context, h *Handle, src, dst registry.Client, plan MigrationPlan) (any, error) {
	ctx, span := otel.StartSpan(ctx, "migration.context",
		attribute.String("source_context", plan.SourceContext),
		attribute.String("target_context", plan.TargetContext),
		attribute.Bool("dry_run", plan.DryRun),
	)
	defer span.End()

	subjects, err := src.ListSubjects(ctx, plan.SourceContext)
	if err != nil {
		return nil, fmt.Errorf("list source subjects: %w", err)
	}

	outcome := &task.ContextMigrationOutcome{
		SourceContext: plan.SourceContext,
		TargetContext: plan.TargetContext,
		DryRun:        plan.DryRun,
		Subjects:      len(subjects),
	}
	if len(subjects) == 0 {
		return outcome, nil
	}

	if !plan.DryRun {
		if err := dst.CreateContext(ctx, plan.TargetContext); err != nil {
			return nil, fmt.Errorf("create target context: %w", err)
		}
	}

	perSubject := make([]*task.MigrationOutcome, len(subjects))
	var done atomic.Int64

	results := worker.Map(ctx, s.pool, indexes(len(subjects)), func(ctx context.Context, i int) error {
		if h.Cancelled() {
			return domain.ErrCancelled
		}

		subject := subjects[i]
		subjPlan := plan
		subjPlan.Subject = subject

		versions, err := src.ListVersions(ctx, subject, plan.SourceContext)
		if err != nil {
			return fmt.Errorf("list versions for %s: %w", subject, err)
		}

		sub, err := s.migrateSubject(ctx, src, dst, subjPlan, versions, nil, h.Cancelled)
		perSubject[i] = sub

		n := done.Add(1)
		h.UpdateProgress(float64(n) / float64(len(subjects)) * 100)
		return err
	})

	var cancelledMid bool
	for i, res := range results {
		sub := perSubject[i]
		if sub == nil {
			// Subject never got as far as a per-version loop.
			sub = &task.MigrationOutcome{Subject: subjects[i], DryRun: plan.DryRun}
			if res.Err != nil && !errors.Is(res.Err, domain.ErrCancelled) {
				sub.Failed = 1
				sub.Versions = []task.VersionOutcome{{
					Status: task.VersionFailed,
					Reason: res.Err.Error(),
				}}
			}
		}
		if errors.Is(res.Err, domain.ErrCancelled) {
			cancelledMid = true
		}
		outcome.Migrated += sub.Migrated
		outcome.Skipped += sub.Skipped
		outcome.Failed += sub.Failed
		outcome.Outcomes = append(outcome.Outcomes, *sub)
	}

	if cancelledMid {
		return outcome, domain.ErrCancelled
	}
	if outcome.Failed > 0 {
		return outcome, fmt.Errorf("%d version migrations failed across %d subjects", outcome.Failed, outcome.Subjects)
	}
	return outcome, nil
}

// indexes returns [0..n).
func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
