package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/schemabridge/schemabridge/internal/domain/task"
	"github.com/schemabridge/schemabridge/internal/service"
)

// registerTaskTools registers the tools that launch or inspect async tasks.
func (s *Server) registerTaskTools() {
	s.mcpServer.AddTools(
		s.migrateSchemaTool(),
		s.migrateContextTool(),
		s.batchDeleteSubjectsTool(),
		s.registryStatisticsTool(),
		s.getTaskTool(),
		s.listTasksTool(),
		s.cancelTaskTool(),
	)
}

func (s *Server) migrateSchemaTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("migrate_schema",
		mcplib.WithDescription("Migrate one subject's version history between registries; returns a task id to poll"),
		mcplib.WithString("source_registry",
			mcplib.Required(),
			mcplib.Description("Source registry name"),
		),
		mcplib.WithString("target_registry",
			mcplib.Required(),
			mcplib.Description("Target registry name"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Subject to migrate"),
		),
		mcplib.WithString("source_context",
			mcplib.Description("Source context; omit for the default context"),
		),
		mcplib.WithString("target_context",
			mcplib.Description("Target context; omit for the default context"),
		),
		mcplib.WithArray("versions",
			mcplib.Description("Version numbers to migrate; omit for all"),
			mcplib.Items(map[string]any{"type": "number"}),
		),
		mcplib.WithBoolean("preserve_ids",
			mcplib.Description("Attempt to keep source schema ids in the target"),
		),
		mcplib.WithBoolean("dry_run",
			mcplib.Description("Report what would change without writing (default true)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMigrateSchema,
	}
}

func (s *Server) migrateContextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("migrate_context",
		mcplib.WithDescription("Migrate every subject of a context between registries; returns a task id to poll"),
		mcplib.WithString("source_registry",
			mcplib.Required(),
			mcplib.Description("Source registry name"),
		),
		mcplib.WithString("target_registry",
			mcplib.Required(),
			mcplib.Description("Target registry name"),
		),
		mcplib.WithString("source_context",
			mcplib.Description("Source context; omit for the default context"),
		),
		mcplib.WithString("target_context",
			mcplib.Description("Target context; omit for the default context"),
		),
		mcplib.WithBoolean("preserve_ids",
			mcplib.Description("Attempt to keep source schema ids in the target"),
		),
		mcplib.WithBoolean("dry_run",
			mcplib.Description("Report what would change without writing (default true)"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleMigrateContext,
	}
}

func (s *Server) batchDeleteSubjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("batch_delete_subjects",
		mcplib.WithDescription("Delete many subjects concurrently; returns a task id to poll"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithArray("subjects",
			mcplib.Required(),
			mcplib.Description("Subjects to delete"),
			mcplib.Items(map[string]any{"type": "string"}),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
		mcplib.WithBoolean("dry_run",
			mcplib.Description("Report what would be deleted without writing (default true)"),
		),
		mcplib.WithNumber("concurrency",
			mcplib.Description("Parallel delete limit; omit for the configured default"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleBatchDeleteSubjects,
	}
}

func (s *Server) registryStatisticsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("registry_statistics",
		mcplib.WithDescription("Count contexts, subjects, and versions of a registry; returns a task id to poll"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRegistryStatistics,
	}
}

func (s *Server) getTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_task",
		mcplib.WithDescription("Get one task's status, progress, and result"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetTask,
	}
}

func (s *Server) listTasksTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_tasks",
		mcplib.WithDescription("List tasks, newest first"),
		mcplib.WithString("kind",
			mcplib.Description("Filter by kind: migration, context_migration, batch_cleanup, or statistics"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListTasks,
	}
}

func (s *Server) cancelTaskTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("cancel_task",
		mcplib.WithDescription("Request cooperative cancellation of a running task"),
		mcplib.WithString("task_id",
			mcplib.Required(),
			mcplib.Description("Task id"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCancelTask,
	}
}

func (s *Server) handleMigrateSchema(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Migrator == nil {
		return mcplib.NewToolResultError("migrator not configured"), nil
	}
	args := req.GetArguments()
	plan := service.MigrationPlan{
		Subject:        argString(args, "subject"),
		SourceRegistry: argString(args, "source_registry"),
		TargetRegistry: argString(args, "target_registry"),
		SourceContext:  argString(args, "source_context"),
		TargetContext:  argString(args, "target_context"),
		Versions:       argIntSlice(args, "versions"),
		PreserveIDs:    argBool(args, "preserve_ids", false),
		DryRun:         argBool(args, "dry_run", true),
	}
	t, err := s.deps.Migrator.StartMigration(ctx, plan)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start migration", err), nil
	}
	return marshalResult(taskRef(t))
}

func (s *Server) handleMigrateContext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Migrator == nil {
		return mcplib.NewToolResultError("migrator not configured"), nil
	}
	args := req.GetArguments()
	plan := service.MigrationPlan{
		SourceRegistry: argString(args, "source_registry"),
		TargetRegistry: argString(args, "target_registry"),
		SourceContext:  argString(args, "source_context"),
		TargetContext:  argString(args, "target_context"),
		PreserveIDs:    argBool(args, "preserve_ids", false),
		DryRun:         argBool(args, "dry_run", true),
	}
	t, err := s.deps.Migrator.StartContextMigration(ctx, plan)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start context migration", err), nil
	}
	return marshalResult(taskRef(t))
}

func (s *Server) handleBatchDeleteSubjects(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Batch == nil {
		return mcplib.NewToolResultError("batch runner not configured"), nil
	}
	args := req.GetArguments()
	plan := service.BatchDeletePlan{
		Registry:    argString(args, "registry"),
		Context:     argString(args, "context"),
		Subjects:    argStringSlice(args, "subjects"),
		DryRun:      argBool(args, "dry_run", true),
		Concurrency: argInt(args, "concurrency"),
	}
	t, err := s.deps.Batch.StartBatchDelete(ctx, plan)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start batch delete", err), nil
	}
	return marshalResult(taskRef(t))
}

func (s *Server) handleRegistryStatistics(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Stats == nil {
		return mcplib.NewToolResultError("statistics runner not configured"), nil
	}
	name := argString(req.GetArguments(), "registry")
	if name == "" {
		return mcplib.NewToolResultError("registry is required"), nil
	}
	t, err := s.deps.Stats.StartStatistics(ctx, name)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to start statistics", err), nil
	}
	return marshalResult(taskRef(t))
}

func (s *Server) handleGetTask(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task registry not configured"), nil
	}
	id := argString(req.GetArguments(), "task_id")
	if id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	t, ok := s.deps.Tasks.Get(id)
	if !ok {
		return mcplib.NewToolResultError(fmt.Sprintf("task %s not found", id)), nil
	}
	return marshalResult(t)
}

func (s *Server) handleListTasks(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task registry not configured"), nil
	}
	kind := task.Kind(argString(req.GetArguments(), "kind"))
	return marshalResult(s.deps.Tasks.List(kind))
}

func (s *Server) handleCancelTask(_ context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Tasks == nil {
		return mcplib.NewToolResultError("task registry not configured"), nil
	}
	id := argString(req.GetArguments(), "task_id")
	if id == "" {
		return mcplib.NewToolResultError("task_id is required"), nil
	}
	if !s.deps.Tasks.Cancel(id) {
		return mcplib.NewToolResultError(fmt.Sprintf("task %s not found or already finished", id)), nil
	}
	return marshalResult(map[string]string{"task_id": id, "status": string(task.StatusCancelled)})
}

// taskRef is the launch response of the async tools: enough to poll get_task.
func taskRef(t task.Task) map[string]any {
	return map[string]any{
		"task_id": t.ID,
		"kind":    string(t.Kind),
		"status":  string(t.Status),
	}
}
