package mcp

import (
	"context"
	"encoding/json"

	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/schemabridge/schemabridge/internal/domain/schema"
)

// registerResources registers all MCP resources on the server.
func (s *Server) registerResources() {
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"schemabridge://registries",
			"Registry List",
			mcplib.WithResourceDescription("All configured schema registries"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleRegistriesResource,
	)

	s.mcpServer.AddResource(
		mcplib.NewResource(
			"schemabridge://tasks",
			"Task List",
			mcplib.WithResourceDescription("All tasks, newest first"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleTasksResource,
	)
}

func (s *Server) handleRegistriesResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Registries == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"registries not configured"}`,
			},
		}, nil
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
	data, err := json.Marshal(infos)
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleTasksResource(_ context.Context, req mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	if s.deps.Tasks == nil {
		return []mcplib.ResourceContents{
			mcplib.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     `{"error":"task registry not configured"}`,
			},
		}, nil
	}
	data, err := json.Marshal(s.deps.Tasks.List(""))
	if err != nil {
		return nil, err
	}
	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      req.Params.URI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
