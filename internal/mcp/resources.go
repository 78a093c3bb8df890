package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

const (
	connectionsURI   = "dbai://connections"
	schemaURIPrefix  = "dbai://schema/"
	schemaURIPattern = schemaURIPrefix + "{connectionId}"
)

func (s *Server) registerResources() {
	// ── dbai://connections ─────────────────────────────
	s.mcp.AddResource(mcp.NewResource(
		connectionsURI,
		"Saved Connections",
		mcp.WithMIMEType("application/json"),
	), s.handleConnectionsResource)

	// ── dbai://schema/{connectionId} ───────────────────
	s.mcp.AddResourceTemplate(
		mcp.NewResourceTemplate(
			schemaURIPattern,
			"Cached Schema of a Connected Session",
		),
		s.handleSchemaResource,
	)
}

func (s *Server) handleConnectionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	views, err := s.database.ListConnections(ctx)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(views, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      connectionsURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSchemaResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	uri := req.Params.URI
	id := connectionIDFromURI(uri)
	if id == "" {
		return nil, fmt.Errorf("could not extract connectionId from URI: %s", uri)
	}
	snap, err := s.database.GetSchema(ctx, id, false)
	if err != nil {
		return nil, err
	}
	data, _ := json.MarshalIndent(snap, "", "  ")
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// connectionIDFromURI extracts the id from "dbai://schema/{id}".
func connectionIDFromURI(uri string) string {
	id, ok := strings.CutPrefix(uri, schemaURIPrefix)
	if !ok || strings.Contains(id, "/") {
		return ""
	}
	return id
}
