package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/domain/task"
)

// mockBroadcaster records broadcast events.
type mockBroadcaster struct {
	mu     sync.Mutex
	events []string
}

func (b *mockBroadcaster) BroadcastEvent(_ context.Context, eventType string, _ any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, eventType)
}

// mockBus records event bus publishes.
type mockBus struct {
	mu        sync.Mutex
	published []string
}

func (b *mockBus) Publish(_ context.Context, subject string, _ []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.published = append(b.published, subject)
	return nil
}

func (b *mockBus) Close() error { return nil }

func (b *mockBus) subjects() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, len(b.published))
	copy(out, b.published)
	return out
}

// registerCall records one write against a fakeRegistry.
type registerCall struct {
	subject    string
	body       string
	sctx       string
	explicitID int
}

// fakeRegistry implements registry.Client against in-memory maps.
// Error injection hooks simulate specific remote failures.
type fakeRegistry struct {
	mu       sync.Mutex
	name     string
	readOnly bool

	// schemas[context][subject][version]
	schemas  map[string]map[string]map[int]*schema.Schema
	contexts []string
	nextID   int

	// honorExplicitIDs makes Register accept a caller-supplied id instead of
	// assigning its own.
	honorExplicitIDs bool

	contextsErr     error
	registerErr     func(subject string, explicitID int) error
	deleteErr       map[string]error
	listVersionsErr map[string]error

	registered      []registerCall
	deleted         []string
	createdContexts []string
}

func newFakeRegistry(name string) *fakeRegistry {
	return &fakeRegistry{
		name:     name,
		schemas:  make(map[string]map[string]map[int]*schema.Schema),
		contexts: []string{schema.DefaultContext},
		nextID:   100,
	}
}

// addSchema seeds one version. The context is created implicitly.
func (f *fakeRegistry) addSchema(sctx, subject string, version, id int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sctx = normalizeContext(sctx)
	if f.schemas[sctx] == nil {
		f.schemas[sctx] = make(map[string]map[int]*schema.Schema)
	}
	if f.schemas[sctx][subject] == nil {
		f.schemas[sctx][subject] = make(map[int]*schema.Schema)
	}
	f.schemas[sctx][subject][version] = &schema.Schema{
		Subject: subject,
		Version: version,
		ID:      id,
		Type:    schema.TypeAvro,
		Body:    body,
	}
	for _, c := range f.contexts {
		if c == sctx {
			return
		}
	}
	f.contexts = append(f.contexts, sctx)
}

func normalizeContext(sctx string) string {
	if sctx == "" {
		return schema.DefaultContext
	}
	return sctx
}

func (f *fakeRegistry) Name() string   { return f.name }
func (f *fakeRegistry) URL() string    { return "http://" + f.name }
func (f *fakeRegistry) ReadOnly() bool { return f.readOnly }

func (f *fakeRegistry) ListSubjects(_ context.Context, sctx string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	subjects := make([]string, 0)
	for subject := range f.schemas[normalizeContext(sctx)] {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects, nil
}

func (f *fakeRegistry) ListContexts(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.contextsErr != nil {
		return nil, f.contextsErr
	}
	out := make([]string, len(f.contexts))
	copy(out, f.contexts)
	sort.Strings(out)
	return out, nil
}

func (f *fakeRegistry) ListVersions(_ context.Context, subject, sctx string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.listVersionsErr[subject]; err != nil {
		return nil, err
	}
	bySubject, ok := f.schemas[normalizeContext(sctx)][subject]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subject, domain.ErrNotFound)
	}
	versions := make([]int, 0, len(bySubject))
	for v := range bySubject {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions, nil
}

func (f *fakeRegistry) GetSchema(_ context.Context, subject string, version int, sctx string) (*schema.Schema, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.schemas[normalizeContext(sctx)][subject][version]
	if !ok {
		return nil, fmt.Errorf("%s version %d: %w", subject, version, domain.ErrNotFound)
	}
	cp := *s
	return &cp, nil
}

func (f *fakeRegistry) Register(_ context.Context, subject, body, schemaType, sctx string, explicitID int) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly {
		return 0, domain.ErrReadOnly
	}
	if f.registerErr != nil {
		if err := f.registerErr(subject, explicitID); err != nil {
			return 0, err
		}
	}
	if explicitID > 0 && !f.honorExplicitIDs {
		return 0, fmt.Errorf("explicit schema ids not supported")
	}

	f.registered = append(f.registered, registerCall{
		subject:    subject,
		body:       body,
		sctx:       sctx,
		explicitID: explicitID,
	})

	sctx = normalizeContext(sctx)
	if f.schemas[sctx] == nil {
		f.schemas[sctx] = make(map[string]map[int]*schema.Schema)
	}
	if f.schemas[sctx][subject] == nil {
		f.schemas[sctx][subject] = make(map[int]*schema.Schema)
	}

	id := explicitID
	if id == 0 {
		f.nextID++
		id = f.nextID
	}
	version := 0
	for v := range f.schemas[sctx][subject] {
		if v > version {
			version = v
		}
	}
	version++
	f.schemas[sctx][subject][version] = &schema.Schema{
		Subject: subject,
		Version: version,
		ID:      id,
		Type:    schemaType,
		Body:    body,
	}
	return id, nil
}

func (f *fakeRegistry) DeleteSubject(_ context.Context, subject, sctx string) ([]int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly {
		return nil, domain.ErrReadOnly
	}
	if err := f.deleteErr[subject]; err != nil {
		return nil, err
	}
	f.deleted = append(f.deleted, subject)

	sctx = normalizeContext(sctx)
	bySubject, ok := f.schemas[sctx][subject]
	if !ok {
		return nil, fmt.Errorf("subject %s: %w", subject, domain.ErrNotFound)
	}
	versions := make([]int, 0, len(bySubject))
	for v := range bySubject {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	delete(f.schemas[sctx], subject)
	return versions, nil
}

func (f *fakeRegistry) CreateContext(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly {
		return domain.ErrReadOnly
	}
	f.createdContexts = append(f.createdContexts, name)
	for _, c := range f.contexts {
		if c == name {
			return nil
		}
	}
	f.contexts = append(f.contexts, name)
	return nil
}

func (f *fakeRegistry) DeleteContext(_ context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readOnly {
		return domain.ErrReadOnly
	}
	delete(f.schemas, name)
	for i, c := range f.contexts {
		if c == name {
			f.contexts = append(f.contexts[:i], f.contexts[i+1:]...)
			break
		}
	}
	return nil
}

func (f *fakeRegistry) registerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.registered)
}

func (f *fakeRegistry) deleteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.deleted)
}

// waitTerminal polls the registry until the task reaches a terminal status.
func waitTerminal(t *testing.T, reg *TaskRegistry, id string) task.Task {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got, ok := reg.Get(id)
		if !ok {
			t.Fatalf("task %s disappeared", id)
		}
		if got.Status.Terminal() {
			return got
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("task %s never reached a terminal status", id)
	return task.Task{}
}
