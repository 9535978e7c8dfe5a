package http

import (
	"fmt"
	"net/http"

	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Tasks      *service.TaskRegistry
	Registries *registry.Set
	Version    string
}

// breakerReporter is implemented by registry clients that carry a circuit
// breaker; clients without one are reported as "unknown".
type breakerReporter interface {
	BreakerState() string
}

// Health reports process liveness and per-registry breaker state.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	type registryHealth struct {
		Name    string `json:"name"`
		Breaker string `json:"breaker"`
	}
	type healthStatus struct {
		Status     string           `json:"status"`
		Version    string           `json:"version"`
		Registries []registryHealth `json:"registries"`
	}

	status := healthStatus{
		Status:     "ok",
		Version:    h.Version,
		Registries: make([]registryHealth, 0),
	}
	if h.Registries != nil {
		for _, name := range h.Registries.Names() {
			client, err := h.Registries.Get(name)
			if err != nil {
				continue
			}
			state := "unknown"
			if br, ok := client.(breakerReporter); ok {
				state = br.BreakerState()
			}
			status.Registries = append(status.Registries, registryHealth{Name: name, Breaker: state})
		}
	}
	writeJSON(w, http.StatusOK, status)
}

// ListRegistries returns the configured registries without credentials.
func (h *Handlers) ListRegistries(w http.ResponseWriter, _ *http.Request) {
	infos := make([]schema.RegistryInfo, 0)
	for _, name := range h.Registries.Names() {
		client, err := h.Registries.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, schema.RegistryInfo{
			Name:     client.Name(),
			URL:      client.URL(),
			ReadOnly: client.ReadOnly(),
		})
	}
	writeJSON(w, http.StatusOK, infos)
}

// ListTasks returns tasks newest first, optionally filtered by ?kind=.
func (h *Handlers) ListTasks(w http.ResponseWriter, r *http.Request) {
	kind := task.Kind(r.URL.Query().Get("kind"))
	writeJSON(w, http.StatusOK, h.Tasks.List(kind))
}

// GetTask returns one task by id.
func (h *Handlers) GetTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	t, ok := h.Tasks.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("task %s not found", id))
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CancelTask requests cooperative cancellation of a task.
func (h *Handlers) CancelTask(w http.ResponseWriter, r *http.Request) {
	id := urlParam(r, "id")
	if !h.Tasks.Cancel(id) {
		writeError(w, http.StatusConflict, fmt.Sprintf("task %s not found or already finished", id))
		return
	}
	t, _ := h.Tasks.Get(id)
	writeJSON(w, http.StatusOK, t)
}
