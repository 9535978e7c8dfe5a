package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/eventbus"
)

func TestTaskRegistryCreate(t *testing.T) {
	bus := &mockBus{}
	reg := NewTaskRegistry(nil, bus, nil)

	created := reg.Create(task.KindMigration, task.Metadata{})
	if created.ID == "" {
		t.Fatal("expected a task id")
	}
	if created.Status != task.StatusPending {
		t.Fatalf("expected status pending, got %q", created.Status)
	}
	if created.Progress != 0 {
		t.Fatalf("expected progress 0, got %v", created.Progress)
	}

	got, ok := reg.Get(created.ID)
	if !ok {
		t.Fatal("expected task to be retrievable")
	}
	if got.ID != created.ID {
		t.Fatalf("expected id %s, got %s", created.ID, got.ID)
	}

	subjects := bus.subjects()
	if len(subjects) != 1 || subjects[0] != eventbus.SubjectTaskCreated {
		t.Fatalf("expected one %q publish, got %v", eventbus.SubjectTaskCreated, subjects)
	}
}

func TestTaskRegistryExecuteCompletes(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindStatistics, task.Metadata{})

	reg.Execute(context.Background(), created.ID, func(_ context.Context, h *Handle) (any, error) {
		h.UpdateProgress(50)
		return "done", nil
	})

	got, _ := reg.Get(created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("expected completed, got %q", got.Status)
	}
	if got.Progress != 100 {
		t.Fatalf("expected progress forced to 100, got %v", got.Progress)
	}
	if got.Result != "done" {
		t.Fatalf("expected result 'done', got %v", got.Result)
	}
	if got.StartedAt == nil || got.CompletedAt == nil {
		t.Fatal("expected started and completed timestamps")
	}
}

func TestTaskRegistryExecuteFails(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindMigration, task.Metadata{})

	reg.Execute(context.Background(), created.ID, func(_ context.Context, _ *Handle) (any, error) {
		return map[string]int{"partial": 3}, errors.New("remote unavailable")
	})

	got, _ := reg.Get(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed, got %q", got.Status)
	}
	if got.Error != "remote unavailable" {
		t.Fatalf("expected error message, got %q", got.Error)
	}
	// Partial results survive alongside the error.
	if got.Result == nil {
		t.Fatal("expected partial result on failed task")
	}
}

func TestTaskRegistryExecuteRecoversPanic(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindMigration, task.Metadata{})

	reg.Execute(context.Background(), created.ID, func(_ context.Context, _ *Handle) (any, error) {
		panic("boom")
	})

	got, _ := reg.Get(created.ID)
	if got.Status != task.StatusFailed {
		t.Fatalf("expected failed after panic, got %q", got.Status)
	}
	if got.Error == "" {
		t.Fatal("expected panic captured as error")
	}
}

func TestTaskRegistryProgressClampAndMonotonic(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindBatchCleanup, task.Metadata{})

	var inWork sync.WaitGroup
	inWork.Add(1)
	release := make(chan struct{})

	go reg.Execute(context.Background(), created.ID, func(_ context.Context, h *Handle) (any, error) {
		h.UpdateProgress(150) // clamped to 100
		h.UpdateProgress(40)  // lower, ignored
		h.UpdateProgress(-5)  // clamped to 0, lower, ignored
		inWork.Done()
		<-release
		return nil, nil
	})

	inWork.Wait()
	got, _ := reg.Get(created.ID)
	if got.Progress != 100 {
		t.Fatalf("expected progress 100 after clamp, got %v", got.Progress)
	}
	close(release)
	waitTerminal(t, reg, created.ID)
}

func TestTaskRegistryProgressIgnoredBeforeRunning(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindBatchCleanup, task.Metadata{})

	reg.UpdateProgress(created.ID, 30)

	got, _ := reg.Get(created.ID)
	if got.Progress != 0 {
		t.Fatalf("expected pending task progress untouched, got %v", got.Progress)
	}
}

func TestTaskRegistryCancelPending(t *testing.T) {
	bus := &mockBus{}
	reg := NewTaskRegistry(nil, bus, nil)
	created := reg.Create(task.KindMigration, task.Metadata{})

	if !reg.Cancel(created.ID) {
		t.Fatal("expected cancel of pending task to succeed")
	}
	got, _ := reg.Get(created.ID)
	if got.Status != task.StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	if got.CompletedAt == nil {
		t.Fatal("expected pending cancel to close the record")
	}

	// Work submitted after cancellation never runs.
	reg.Execute(context.Background(), created.ID, func(_ context.Context, _ *Handle) (any, error) {
		t.Error("work ran for a cancelled task")
		return nil, nil
	})
}

func TestTaskRegistryCancelRunningKeepsPartialResult(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindMigration, task.Metadata{})

	started := make(chan struct{})
	cancelSeen := make(chan struct{})

	go reg.Execute(context.Background(), created.ID, func(_ context.Context, h *Handle) (any, error) {
		close(started)
		<-cancelSeen
		if !h.Cancelled() {
			t.Error("expected handle to observe cancellation")
		}
		return map[string]int{"done_before_cancel": 2}, domain.ErrCancelled
	})

	<-started
	if !reg.Cancel(created.ID) {
		t.Fatal("expected cancel of running task to succeed")
	}
	close(cancelSeen)

	got := waitTerminal(t, reg, created.ID)
	if got.Status != task.StatusCancelled {
		t.Fatalf("expected cancelled, got %q", got.Status)
	}
	if got.Result == nil {
		t.Fatal("expected partial result attached to cancelled task")
	}
}

func TestTaskRegistryCancelTerminal(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	created := reg.Create(task.KindMigration, task.Metadata{})

	reg.Execute(context.Background(), created.ID, func(_ context.Context, _ *Handle) (any, error) {
		return nil, nil
	})

	if reg.Cancel(created.ID) {
		t.Fatal("expected cancel of a completed task to report false")
	}
	got, _ := reg.Get(created.ID)
	if got.Status != task.StatusCompleted {
		t.Fatalf("cancel must not overwrite a terminal status, got %q", got.Status)
	}
}

func TestTaskRegistryCancelUnknown(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)
	if reg.Cancel("no-such-task") {
		t.Fatal("expected cancel of unknown task to report false")
	}
}

func TestTaskRegistryListNewestFirst(t *testing.T) {
	reg := NewTaskRegistry(nil, nil, nil)

	first := reg.Create(task.KindMigration, task.Metadata{})
	time.Sleep(2 * time.Millisecond)
	second := reg.Create(task.KindBatchCleanup, task.Metadata{})

	all := reg.List("")
	if len(all) != 2 {
		t.Fatalf("expected 2 tasks, got %d", len(all))
	}
	if all[0].ID != second.ID || all[1].ID != first.ID {
		t.Fatal("expected newest-first ordering")
	}

	migrations := reg.List(task.KindMigration)
	if len(migrations) != 1 || migrations[0].ID != first.ID {
		t.Fatalf("expected kind filter to return the migration task, got %v", migrations)
	}
}

func TestTaskRegistryLifecycleEvents(t *testing.T) {
	bus := &mockBus{}
	hub := &mockBroadcaster{}
	reg := NewTaskRegistry(hub, bus, nil)
	created := reg.Create(task.KindStatistics, task.Metadata{})

	reg.Execute(context.Background(), created.ID, func(_ context.Context, _ *Handle) (any, error) {
		return nil, errors.New("nope")
	})

	subjects := bus.subjects()
	if len(subjects) != 2 {
		t.Fatalf("expected created+failed publishes, got %v", subjects)
	}
	if subjects[1] != eventbus.SubjectTaskFailed {
		t.Fatalf("expected %q, got %q", eventbus.SubjectTaskFailed, subjects[1])
	}

	hub.mu.Lock()
	defer hub.mu.Unlock()
	if len(hub.events) < 2 {
		t.Fatalf("expected running and terminal status broadcasts, got %v", hub.events)
	}
}
