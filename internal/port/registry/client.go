// Package registry defines the port for talking to one schema registry instance.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/schemabridge/schemabridge/internal/domain/schema"
)

// Client issues normalized CRUD calls against one registry endpoint.
// Implementations normalize transport failures into domain errors
// (domain.ErrNotFound, *domain.TransportError) and enforce the read-only
// guard on every mutating call.
type Client interface {
	// Name returns the configured name of this registry.
	Name() string

	// URL returns the registry's base URL.
	URL() string

	// ReadOnly reports whether mutating calls are rejected.
	ReadOnly() bool

	// ListSubjects returns the subject names in the given context
	// (schema.DefaultContext or "" for the default context).
	ListSubjects(ctx context.Context, sctx string) ([]string, error)

	// ListContexts returns the registry's context names.
	ListContexts(ctx context.Context) ([]string, error)

	// ListVersions returns a subject's version numbers in ascending order.
	// Version lists may be non-contiguous when versions were deleted.
	ListVersions(ctx context.Context, subject, sctx string) ([]int, error)

	// GetSchema fetches the exact schema body and declared type for one version.
	GetSchema(ctx context.Context, subject string, version int, sctx string) (*schema.Schema, error)

	// Register registers a schema body under a subject and returns the assigned id.
	// When explicitID > 0 the registry is asked to honor that id; registries
	// that cannot reject the request and the caller decides how to degrade.
	Register(ctx context.Context, subject, body, schemaType, sctx string, explicitID int) (int, error)

	// DeleteSubject removes a subject and returns the version numbers removed.
	DeleteSubject(ctx context.Context, subject, sctx string) ([]int, error)

	// CreateContext creates a named context.
	CreateContext(ctx context.Context, name string) error

	// DeleteContext removes a named context.
	DeleteContext(ctx context.Context, name string) error
}

// Set holds the named registry clients this process manages.
type Set struct {
	mu      sync.RWMutex
	clients map[string]Client
}

// NewSet creates an empty client set.
func NewSet() *Set {
	return &Set{clients: make(map[string]Client)}
}

// Add registers a client under its name. Duplicate names are a wiring bug.
func (s *Set) Add(c Client) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.clients[c.Name()]; exists {
		panic(fmt.Sprintf("registry: duplicate client registration for %q", c.Name()))
	}
	s.clients[c.Name()] = c
}

// Get returns the client for a registry name.
func (s *Set) Get(name string) (Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.clients[name]
	if !ok {
		return nil, fmt.Errorf("registry: unknown registry %q", name)
	}
	return c, nil
}

// Names returns the configured registry names in sorted order.
func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.clients))
	for name := range s.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
