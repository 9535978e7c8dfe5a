// Package mcp exposes SchemaBridge operations as Model Context Protocol
// tools and resources.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/port/registry"
	"github.com/schemabridge/schemabridge/internal/service"
)

// ServerConfig holds the MCP server settings.
type ServerConfig struct {
	Addr    string
	Name    string
	Version string
	APIKey  string // empty disables auth
}

// Migrator starts migration tasks.
type Migrator interface {
	StartMigration(ctx context.Context, plan service.MigrationPlan) (task.Task, error)
	StartContextMigration(ctx context.Context, plan service.MigrationPlan) (task.Task, error)
}

// BatchRunner starts batch cleanup tasks.
type BatchRunner interface {
	StartBatchDelete(ctx context.Context, plan service.BatchDeletePlan) (task.Task, error)
}

// StatsRunner starts statistics tasks.
type StatsRunner interface {
	StartStatistics(ctx context.Context, registryName string) (task.Task, error)
}

// Comparator computes registry and context diffs.
type Comparator interface {
	CompareRegistries(ctx context.Context, source, target string) (*schema.RegistryDiff, error)
	CompareContexts(ctx context.Context, source, sourceCtx, target, targetCtx string) (*schema.RegistryDiff, error)
}

// TaskReader polls and cancels tasks.
type TaskReader interface {
	Get(id string) (task.Task, bool)
	List(kind task.Kind) []task.Task
	Cancel(id string) bool
}

// ServerDeps wires the tool handlers to the core services. Nil fields make
// the corresponding tools report "not configured" instead of panicking.
type ServerDeps struct {
	Registries *registry.Set
	Migrator   Migrator
	Batch      BatchRunner
	Stats      StatsRunner
	Comparator Comparator
	Tasks      TaskReader
}

// Server exposes the SchemaBridge tool surface over MCP streamable HTTP.
type Server struct {
	cfg       ServerConfig
	deps      ServerDeps
	mcpServer *mcpserver.MCPServer
	httpSrv   *http.Server
}

// NewServer creates an MCP server with all tools and resources registered.
func NewServer(cfg ServerConfig, deps ServerDeps) *Server {
	s := &Server{
		cfg:  cfg,
		deps: deps,
		mcpServer: mcpserver.NewMCPServer(cfg.Name, cfg.Version,
			mcpserver.WithToolCapabilities(false),
			mcpserver.WithResourceCapabilities(false, false),
		),
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying mcp-go server, mainly for tests.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// Start begins serving MCP over streamable HTTP on the configured address.
func (s *Server) Start() error {
	handler := mcpserver.NewStreamableHTTPServer(s.mcpServer)

	s.httpSrv = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           AuthMiddleware(s.cfg.APIKey, handler),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("mcp server failed", "error", err)
		}
	}()

	slog.Info("mcp server listening", "addr", s.cfg.Addr, "auth", s.cfg.APIKey != "")
	return nil
}

// Stop gracefully shuts down the MCP HTTP listener.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return fmt.Errorf("mcp shutdown: %w", err)
	}
	return nil
}

// toolResultJSON wraps a JSON string as a text tool result.
func toolResultJSON(data string) *mcplib.CallToolResult {
	return mcplib.NewToolResultText(data)
}
