package service

import (
	"context"
	"errors"
	"testing"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
)

func newBatchFixture(t *testing.T, concurrency int) (*BatchService, *TaskRegistry, *fakeRegistry) {
	t.Helper()
	reg := newFakeRegistry("main")
	set := registry.NewSet()
	set.Add(reg)

	tasks := NewTaskRegistry(nil, nil, nil)
	svc := NewBatchService(set, tasks, concurrency, nil)
	return svc, tasks, reg
}

func TestBatchDeleteAllSucceed(t *testing.T) {
	svc, tasks, reg := newBatchFixture(t, 4)
	for _, s := range []string{"a", "b", "c"} {
		reg.addSchema("", s, 1, 1, "body")
	}

	created, err := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: []string{"a", "b", "c"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q (%s)", got.Status, got.Error)
	}

	outcome := got.Result.(*task.BatchOutcome)
	if outcome.Requested != 3 || outcome.Succeeded != 3 || outcome.Failed != 0 {
		t.Fatalf("expected 3/3 succeeded, got %+v", outcome)
	}
	if outcome.ElapsedSeconds <= 0 {
		t.Fatal("expected elapsed seconds populated")
	}
	if outcome.Throughput <= 0 {
		t.Fatal("expected throughput populated")
	}
	if reg.deleteCount() != 3 {
		t.Fatalf("expected 3 deletes, got %d", reg.deleteCount())
	}
}

func TestBatchDeleteOneFailureDoesNotAbort(t *testing.T) {
	svc, tasks, reg := newBatchFixture(t, 2)
	subjects := []string{"a", "b", "c", "d", "e"}
	for _, s := range subjects {
		reg.addSchema("", s, 1, 1, "body")
	}
	reg.deleteErr = map[string]error{"c": errors.New("delete rejected")}

	created, _ := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: subjects,
	})
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}

	outcome := got.Result.(*task.BatchOutcome)
	if outcome.Succeeded != 4 || outcome.Failed != 1 {
		t.Fatalf("expected 4 succeeded + 1 failed, got %+v", outcome)
	}
	if len(outcome.FailedItems) != 1 || outcome.FailedItems[0] != "c" {
		t.Fatalf("expected failed_items [c], got %v", outcome.FailedItems)
	}
	// Per-item attribution: the failed entry names its item and reason.
	var found bool
	for _, item := range outcome.Items {
		if item.Item == "c" {
			found = true
			if item.Outcome != task.ItemFailed || item.Error == "" {
				t.Fatalf("expected failed item with reason, got %+v", item)
			}
		}
	}
	if !found {
		t.Fatal("expected per-item entry for c")
	}
}

func TestBatchDeleteDryRun(t *testing.T) {
	svc, tasks, reg := newBatchFixture(t, 4)
	reg.addSchema("", "a", 1, 1, "body")
	reg.addSchema("", "b", 1, 1, "body")

	created, _ := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: []string{"a", "b"},
		DryRun:   true,
	})
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}

	outcome := got.Result.(*task.BatchOutcome)
	if !outcome.DryRun || outcome.Succeeded != 2 {
		t.Fatalf("expected 2 dry-run successes, got %+v", outcome)
	}
	for _, item := range outcome.Items {
		if item.Outcome != task.ItemSkipped {
			t.Fatalf("dry run items must be skipped, got %+v", item)
		}
	}
	if reg.deleteCount() != 0 {
		t.Fatal("dry run must not delete")
	}
}

func TestBatchDeleteDryRunAgainstReadOnly(t *testing.T) {
	svc, tasks, reg := newBatchFixture(t, 4)
	reg.addSchema("", "a", 1, 1, "body")
	reg.readOnly = true

	created, err := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: []string{"a"},
		DryRun:   true,
	})
	if err != nil {
		t.Fatalf("dry run against read-only registry must be allowed: %v", err)
	}
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
}

func TestBatchDeleteValidation(t *testing.T) {
	svc, _, reg := newBatchFixture(t, 4)

	if _, err := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "missing",
		Subjects: []string{"a"},
	}); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan for unknown registry, got %v", err)
	}

	if _, err := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
	}); !errors.Is(err, domain.ErrInvalidPlan) {
		t.Fatalf("expected ErrInvalidPlan for empty subjects, got %v", err)
	}

	reg.readOnly = true
	if _, err := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: []string{"a"},
	}); !errors.Is(err, domain.ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
}

func TestBatchDeleteMissingSubjectAttributed(t *testing.T) {
	svc, tasks, reg := newBatchFixture(t, 4)
	reg.addSchema("", "present", 1, 1, "body")

	created, _ := svc.StartBatchDelete(context.Background(), BatchDeletePlan{
		Registry: "main",
		Subjects: []string{"present", "absent"},
	})
	got := waitTerminal(t, tasks, created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	outcome := got.Result.(*task.BatchOutcome)
	if outcome.Succeeded != 1 || outcome.Failed != 1 {
		t.Fatalf("expected 1 succeeded + 1 failed, got %+v", outcome)
	}
}
