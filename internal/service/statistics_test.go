package service

import (
	"context"
	"errors"
	"testing"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
)

func newStatsFixture(t *testing.T) (*StatsService, *TaskRegistry, *fakeRegistry) {
	t.Helper()
	reg := newFakeRegistry("main")
	set := registry.NewSet()
	set.Add(reg)

	tasks := NewTaskRegistry(nil, nil, nil)
	svc := NewStatsService(set, tasks, 4)
	return svc, tasks, reg
}

func TestStatisticsCountsAcrossContexts(t *testing.T) {
	svc, tasks, reg := newStatsFixture(t)
	reg.addSchema("", "orders", 1, 1, "b")
	reg.addSchema("", "orders", 2, 2, "b")
	reg.addSchema("", "users", 1, 3, "b")
	reg.addSchema("team-a", "payments", 1, 4, "b")

	created, err := svc.StartStatistics(context.Background(), "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", got.Status, got.Error)
	}

	stats := got.Result.(*schema.Stats)
	if stats.Registry != "main" {
		t.Fatalf("expected registry main, got %q", stats.Registry)
	}
	if stats.Contexts != 2 {
		t.Fatalf("expected 2 contexts, got %d", stats.Contexts)
	}
	if stats.Subjects != 3 {
		t.Fatalf("expected 3 subjects, got %d", stats.Subjects)
	}
	if stats.Versions != 4 {
		t.Fatalf("expected 4 versions, got %d", stats.Versions)
	}
	if stats.BySubject["orders"] != 2 {
		t.Fatalf("expected 2 versions for orders, got %d", stats.BySubject["orders"])
	}
	if stats.BySubject[":.team-a:payments"] != 1 {
		t.Fatalf("expected qualified subject count, got %v", stats.BySubject)
	}
}

func TestStatisticsEmptyRegistry(t *testing.T) {
	svc, tasks, _ := newStatsFixture(t)

	created, _ := svc.StartStatistics(context.Background(), "main")
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	stats := got.Result.(*schema.Stats)
	if stats.Subjects != 0 || stats.Versions != 0 {
		t.Fatalf("expected empty stats, got %+v", stats)
	}
	if got.Progress != 100 {
		t.Fatalf("expected progress 100, got %v", got.Progress)
	}
}

func TestStatisticsUnknownRegistry(t *testing.T) {
	svc, _, _ := newStatsFixture(t)
	if _, err := svc.StartStatistics(context.Background(), "nope"); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan, got %v", err)
	}
}

func TestStatisticsContextListingFallback(t *testing.T) {
	svc, tasks, reg := newStatsFixture(t)
	reg.addSchema("", "orders", 1, 1, "b")
	reg.contextsErr = errors.New("contexts endpoint missing")

	created, _ := svc.StartStatistics(context.Background(), "main")
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected fallback to the default context, got %q (%s)", got.Status, got.Error)
	}
	stats := got.Result.(*schema.Stats)
	if stats.Contexts != 1 || stats.Subjects != 1 {
		t.Fatalf("expected default-context-only stats, got %+v", stats)
	}
}

func TestStatisticsVersionFailureCounted(t *testing.T) {
	svc, tasks, reg := newStatsFixture(t)
	reg.addSchema("", "good", 1, 1, "b")
	reg.addSchema("", "bad", 1, 2, "b")
	reg.listVersionsErr = map[string]error{"bad": errors.New("boom")}

	created, _ := svc.StartStatistics(context.Background(), "main")
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	// The partial count still reports the subjects that did enumerate.
	stats := got.Result.(*schema.Stats)
	if stats.BySubject["good"] != 1 {
		t.Fatalf("expected partial stats for good, got %v", stats.BySubject)
	}
}
