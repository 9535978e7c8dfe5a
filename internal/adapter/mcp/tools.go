package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/schemabridge/schemabridge/internal/domain/schema"
	"github.com/schemabridge/schemabridge/internal/port/registry"
)

// registerTools registers all MCP tools on the server.
func (s *Server) registerTools() {
	s.mcpServer.AddTools(
		s.listRegistriesTool(),
		s.listSubjectsTool(),
		s.listContextsTool(),
		s.listVersionsTool(),
		s.getSchemaTool(),
		s.registerSchemaTool(),
		s.deleteSubjectTool(),
		s.createContextTool(),
		s.deleteContextTool(),
		s.compareRegistriesTool(),
		s.compareContextsTool(),
	)
	s.registerTaskTools()
}

func (s *Server) listRegistriesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_registries",
		mcplib.WithDescription("List all schema registries managed by this server"),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListRegistries,
	}
}

func (s *Server) listSubjectsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_subjects",
		mcplib.WithDescription("List subjects in a registry context"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListSubjects,
	}
}

func (s *Server) listContextsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_contexts",
		mcplib.WithDescription("List the contexts of a registry"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListContexts,
	}
}

func (s *Server) listVersionsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("list_versions",
		mcplib.WithDescription("List a subject's schema versions in ascending order"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Subject name"),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleListVersions,
	}
}

func (s *Server) getSchemaTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("get_schema",
		mcplib.WithDescription("Get one schema version's id, type, and body"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Subject name"),
		),
		mcplib.WithNumber("version",
			mcplib.Required(),
			mcplib.Description("Version number"),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleGetSchema,
	}
}

func (s *Server) registerSchemaTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("register_schema",
		mcplib.WithDescription("Register a schema body under a subject"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Subject name"),
		),
		mcplib.WithString("schema",
			mcplib.Required(),
			mcplib.Description("Schema body"),
		),
		mcplib.WithString("schema_type",
			mcplib.Description("AVRO (default), JSON, or PROTOBUF"),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleRegisterSchema,
	}
}

func (s *Server) deleteSubjectTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("delete_subject",
		mcplib.WithDescription("Delete one subject and all its versions"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("subject",
			mcplib.Required(),
			mcplib.Description("Subject name"),
		),
		mcplib.WithString("context",
			mcplib.Description("Context name; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDeleteSubject,
	}
}

func (s *Server) createContextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("create_context",
		mcplib.WithDescription("Create a named context in a registry"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Context name"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCreateContext,
	}
}

func (s *Server) deleteContextTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("delete_context",
		mcplib.WithDescription("Delete a context and every subject in it"),
		mcplib.WithString("registry",
			mcplib.Required(),
			mcplib.Description("Registry name"),
		),
		mcplib.WithString("name",
			mcplib.Required(),
			mcplib.Description("Context name"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleDeleteContext,
	}
}

func (s *Server) compareRegistriesTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("compare_registries",
		mcplib.WithDescription("Diff the subject and context sets of two registries"),
		mcplib.WithString("source",
			mcplib.Required(),
			mcplib.Description("Source registry name"),
		),
		mcplib.WithString("target",
			mcplib.Required(),
			mcplib.Description("Target registry name"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCompareRegistries,
	}
}

func (s *Server) compareContextsTool() mcpserver.ServerTool {
	tool := mcplib.NewTool("compare_contexts",
		mcplib.WithDescription("Diff the subject sets of one context on each registry"),
		mcplib.WithString("source",
			mcplib.Required(),
			mcplib.Description("Source registry name"),
		),
		mcplib.WithString("source_context",
			mcplib.Description("Source context; omit for the default context"),
		),
		mcplib.WithString("target",
			mcplib.Required(),
			mcplib.Description("Target registry name"),
		),
		mcplib.WithString("target_context",
			mcplib.Description("Target context; omit for the default context"),
		),
	)
	return mcpserver.ServerTool{
		Tool:    tool,
		Handler: s.handleCompareContexts,
	}
}

func (s *Server) handleListRegistries(ctx context.Context, _ mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Registries == nil {
		return mcplib.NewToolResultError("registries not configured"), nil
	}
	infos := make([]schema.RegistryInfo, 0)
	for _, name := range s.deps.Registries.Names() {
		client, err := s.deps.Registries.Get(name)
		if err != nil {
			continue
		}
		infos = append(infos, schema.RegistryInfo{
			Name:     client.Name(),
			URL:      client.URL(),
			ReadOnly: client.ReadOnly(),
		})
	}
	return marshalResult(infos)
}

func (s *Server) handleListSubjects(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	subjects, err := client.ListSubjects(ctx, argString(args, "context"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list subjects", err), nil
	}
	return marshalResult(subjects)
}

func (s *Server) handleListContexts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	client, errResult := s.registryArg(req.GetArguments())
	if errResult != nil {
		return errResult, nil
	}
	contexts, err := client.ListContexts(ctx)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to list contexts", err), nil
	}
	return marshalResult(contexts)
}

func (s *Server) handleListVersions(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	subject := argString(args, "subject")
	if subject == "" {
		return mcplib.NewToolResultError("subject is required"), nil
	}
	versions, err := client.ListVersions(ctx, subject, argString(args, "context"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to list versions for %s", subject), err,
		), nil
	}
	return marshalResult(versions)
}

func (s *Server) handleGetSchema(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	subject := argString(args, "subject")
	version := argInt(args, "version")
	if subject == "" || version <= 0 {
		return mcplib.NewToolResultError("subject and a positive version are required"), nil
	}
	sch, err := client.GetSchema(ctx, subject, version, argString(args, "context"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to get %s version %d", subject, version), err,
		), nil
	}
	return marshalResult(sch)
}

func (s *Server) handleRegisterSchema(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	subject := argString(args, "subject")
	body := argString(args, "schema")
	if subject == "" || body == "" {
		return mcplib.NewToolResultError("subject and schema are required"), nil
	}
	id, err := client.Register(ctx, subject, body, argString(args, "schema_type"), argString(args, "context"), 0)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to register schema under %s", subject), err,
		), nil
	}
	return marshalResult(map[string]int{"id": id})
}

func (s *Server) handleDeleteSubject(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	subject := argString(args, "subject")
	if subject == "" {
		return mcplib.NewToolResultError("subject is required"), nil
	}
	removed, err := client.DeleteSubject(ctx, subject, argString(args, "context"))
	if err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to delete subject %s", subject), err,
		), nil
	}
	return marshalResult(map[string]any{"subject": subject, "versions_removed": removed})
}

func (s *Server) handleCreateContext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	name := argString(args, "name")
	if name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	if err := client.CreateContext(ctx, name); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to create context %s", name), err,
		), nil
	}
	return marshalResult(map[string]string{"context": name, "status": "created"})
}

func (s *Server) handleDeleteContext(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	args := req.GetArguments()
	client, errResult := s.registryArg(args)
	if errResult != nil {
		return errResult, nil
	}
	name := argString(args, "name")
	if name == "" {
		return mcplib.NewToolResultError("name is required"), nil
	}
	if err := client.DeleteContext(ctx, name); err != nil {
		return mcplib.NewToolResultErrorFromErr(
			fmt.Sprintf("failed to delete context %s", name), err,
		), nil
	}
	return marshalResult(map[string]string{"context": name, "status": "deleted"})
}

func (s *Server) handleCompareRegistries(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Comparator == nil {
		return mcplib.NewToolResultError("comparator not configured"), nil
	}
	args := req.GetArguments()
	source := argString(args, "source")
	target := argString(args, "target")
	if source == "" || target == "" {
		return mcplib.NewToolResultError("source and target are required"), nil
	}
	diff, err := s.deps.Comparator.CompareRegistries(ctx, source, target)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to compare registries", err), nil
	}
	return marshalResult(diff)
}

func (s *Server) handleCompareContexts(ctx context.Context, req mcplib.CallToolRequest) (*mcplib.CallToolResult, error) { //nolint:gocritic // hugeParam: mcp-go handler signature
	if s.deps.Comparator == nil {
		return mcplib.NewToolResultError("comparator not configured"), nil
	}
	args := req.GetArguments()
	source := argString(args, "source")
	target := argString(args, "target")
	if source == "" || target == "" {
		return mcplib.NewToolResultError("source and target are required"), nil
	}
	diff, err := s.deps.Comparator.CompareContexts(ctx,
		source, argString(args, "source_context"),
		target, argString(args, "target_context"),
	)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to compare contexts", err), nil
	}
	return marshalResult(diff)
}

// registryArg resolves the "registry" argument to a client, or returns a
// ready error result.
func (s *Server) registryArg(args map[string]any) (client registry.Client, errResult *mcplib.CallToolResult) {
	if s.deps.Registries == nil {
		return nil, mcplib.NewToolResultError("registries not configured")
	}
	name := argString(args, "registry")
	if name == "" {
		return nil, mcplib.NewToolResultError("registry is required")
	}
	c, err := s.deps.Registries.Get(name)
	if err != nil {
		return nil, mcplib.NewToolResultErrorFromErr("unknown registry", err)
	}
	return c, nil
}

// marshalResult marshals v as a JSON tool result.
func marshalResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcplib.NewToolResultErrorFromErr("failed to marshal result", err), nil
	}
	return toolResultJSON(string(data)), nil
}
