// Package registry implements the registry port against a Confluent-style
// schema registry REST API.
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/schemabridge/schemabridge/internal/domain"
	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/port/cache"
	"github.com/schemabridge/schemabridge/internal/resilience"
)

// Config holds the connection settings for one registry.
type Config struct {
	Name     string
	URL      string
	Username string
	Password string
	ReadOnly bool
	Timeout  time.Duration
}

// Client talks to one schema registry endpoint. Every mutating call checks
// the read-only guard before any request is issued; transport failures are
// normalized into *domain.TransportError and 404s into domain.ErrNotFound.
type Client struct {
	name      string
	baseURL   string
	username  string
	password  string
	readOnly  bool
	http      *http.Client
	breaker   *resilience.Breaker
	cache     cache.Cache
	schemaTTL time.Duration
}

// New creates a registry client. breaker and schemaCache are optional.
func New(cfg Config, breaker *resilience.Breaker, schemaCache cache.Cache, schemaTTL time.Duration) *Client {
	return &Client{
		name:     cfg.Name,
		baseURL:  strings.TrimRight(cfg.URL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		readOnly: cfg.ReadOnly,
		http: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		breaker:   breaker,
		cache:     schemaCache,
		schemaTTL: schemaTTL,
	}
}

// Name returns the configured registry name.
func (c *Client) Name() string { return c.name }

// URL returns the registry's base URL.
func (c *Client) URL() string { return c.baseURL }

// ReadOnly reports whether this registry rejects mutating calls.
func (c *Client) ReadOnly() bool { return c.readOnly }

// BreakerState returns the circuit breaker state for health reporting.
func (c *Client) BreakerState() string {
	if c.breaker == nil {
		return "closed"
	}
	return c.breaker.State()
}

// guardWrite rejects the call when the registry is configured read-only.
func (c *Client) guardWrite(op string) error {
	if c.readOnly {
		return fmt.Errorf("%s %s: %w", c.name, op, domain.ErrReadOnly)
	}
	return nil
}

// ListSubjects returns the subject names in the given context.
func (c *Client) ListSubjects(ctx context.Context, sctx string) ([]string, error) {
	path := "/subjects"
	qualified := sctx != "" && sctx != schema.DefaultContext
	if qualified {
		prefix := schema.QualifySubject(sctx, "")
		path += "?subjectPrefix=" + url.QueryEscape(prefix)
	}

	var names []string
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &names); err != nil {
		return nil, err
	}

	out := make([]string, 0, len(names))
	for _, n := range names {
		if qualified {
			// Strip the ":.ctx:" qualifier from returned names.
			if i := strings.LastIndex(n, ":"); i >= 0 {
				n = n[i+1:]
			}
		} else if strings.HasPrefix(n, ":") {
			// Default-context listing excludes qualified subjects.
			continue
		}
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

// ListContexts returns the registry's context names.
func (c *Client) ListContexts(ctx context.Context) ([]string, error) {
	var contexts []string
	if err := c.doJSON(ctx, http.MethodGet, "/contexts", nil, &contexts); err != nil {
		return nil, err
	}
	sort.Strings(contexts)
	return contexts, nil
}

// ListVersions returns a subject's version numbers in ascending order.
func (c *Client) ListVersions(ctx context.Context, subject, sctx string) ([]int, error) {
	path := "/subjects/" + url.PathEscape(schema.QualifySubject(sctx, subject)) + "/versions"

	var versions []int
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &versions); err != nil {
		return nil, err
	}
	sort.Ints(versions)
	return versions, nil
}

// schemaResponse is the registry's schema-by-version payload.
type schemaResponse struct {
	Subject string `json:"subject"`
	Version int    `json:"version"`
	ID      int    `json:"id"`
	Type    string `json:"schemaType"`
	Schema  string `json:"schema"`
}

// GetSchema fetches the exact schema body and declared type for one version.
// A subject's body at a given version is immutable, so responses are cached.
func (c *Client) GetSchema(ctx context.Context, subject string, version int, sctx string) (*schema.Schema, error) {
	key := fmt.Sprintf("schema:%s:%s:%d", c.name, schema.QualifySubject(sctx, subject), version)
	if c.cache != nil {
		if data, ok, err := c.cache.Get(ctx, key); err == nil && ok {
			var s schema.Schema
			if err := json.Unmarshal(data, &s); err == nil {
				return &s, nil
			}
		}
	}

	path := fmt.Sprintf("/subjects/%s/versions/%d",
		url.PathEscape(schema.QualifySubject(sctx, subject)), version)

	var resp schemaResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}

	s := &schema.Schema{
		Subject: subject,
		Version: resp.Version,
		ID:      resp.ID,
		Type:    resp.Type,
		Body:    resp.Schema,
	}
	if s.Type == "" {
		// Registries omit schemaType for Avro.
		s.Type = schema.TypeAvro
	}

	if c.cache != nil {
		if data, err := json.Marshal(s); err == nil {
			_ = c.cache.Set(ctx, key, data, c.schemaTTL)
		}
	}
	return s, nil
}

// registerRequest is the schema registration payload. ID is only set when the
// caller asks the registry to honor an explicit schema id.
type registerRequest struct {
	Schema     string `json:"schema"`
	SchemaType string `json:"schemaType,omitempty"`
	ID         int    `json:"id,omitempty"`
}

// Register registers a schema body under a subject and returns the assigned id.
func (c *Client) Register(ctx context.Context, subject, body, schemaType, sctx string, explicitID int) (int, error) {
	if err := c.guardWrite("register"); err != nil {
		return 0, err
	}

	path := "/subjects/" + url.PathEscape(schema.QualifySubject(sctx, subject)) + "/versions"
	req := registerRequest{Schema: body, ID: explicitID}
	if schemaType != "" && schemaType != schema.TypeAvro {
		req.SchemaType = schemaType
	}

	var resp struct {
		ID int `json:"id"`
	}
	if err := c.doJSON(ctx, http.MethodPost, path, req, &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

// DeleteSubject removes a subject and returns the version numbers removed.
func (c *Client) DeleteSubject(ctx context.Context, subject, sctx string) ([]int, error) {
	if err := c.guardWrite("delete subject"); err != nil {
		return nil, err
	}

	path := "/subjects/" + url.PathEscape(schema.QualifySubject(sctx, subject))

	var removed []int
	if err := c.doJSON(ctx, http.MethodDelete, path, nil, &removed); err != nil {
		return nil, err
	}
	return removed, nil
}

// CreateContext creates a named context. Registries that only create contexts
// implicitly on first write report 404/405 here; that is not a failure.
func (c *Client) CreateContext(ctx context.Context, name string) error {
	if err := c.guardWrite("create context"); err != nil {
		return err
	}

	path := "/contexts/" + url.PathEscape(name)
	err := c.doJSON(ctx, http.MethodPost, path, nil, nil)
	var te *domain.TransportError
	if errors.As(err, &te) && te.StatusCode == http.StatusMethodNotAllowed {
		return nil
	}
	if errors.Is(err, domain.ErrNotFound) {
		return nil
	}
	return err
}

// DeleteContext removes every subject in the context; the context itself
// disappears once empty.
func (c *Client) DeleteContext(ctx context.Context, name string) error {
	if err := c.guardWrite("delete context"); err != nil {
		return err
	}

	subjects, err := c.ListSubjects(ctx, name)
	if err != nil {
		return err
	}
	for _, subject := range subjects {
		if _, err := c.DeleteSubject(ctx, subject, name); err != nil {
			return fmt.Errorf("delete context %s: subject %s: %w", name, subject, err)
		}
	}
	return nil
}

// doJSON issues one request through the circuit breaker and decodes the
// JSON response into out (when out is non-nil).
func (c *Client) doJSON(ctx context.Context, method, path string, reqBody, out any) error {
	var payload io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		payload = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, payload)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.schemaregistry.v1+json, application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/vnd.schemaregistry.v1+json")
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	op := method + " " + path

	var resp *http.Response
	doErr := c.executeBreaker(func() error {
		r, err := c.http.Do(req)
		if err != nil {
			return &domain.TransportError{Registry: c.name, Op: op, Err: err}
		}
		resp = r
		return nil
	})
	if doErr != nil {
		if errors.Is(doErr, resilience.ErrCircuitOpen) {
			return &domain.TransportError{Registry: c.name, Op: op, Err: doErr}
		}
		return doErr
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%s: %w", op, domain.ErrNotFound)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &domain.TransportError{
			Registry:   c.name,
			Op:         op,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("%s", strings.TrimSpace(string(body))),
		}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &domain.TransportError{Registry: c.name, Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (c *Client) executeBreaker(fn func() error) error {
	if c.breaker == nil {
		return fn()
	}
	return c.breaker.Execute(fn)
}
