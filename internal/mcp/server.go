package mcpserver

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"dbai/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for dbai.
// It exposes the database service as tools, resources and prompts so AI
// agents can browse and query saved connections.
type Server struct {
	mcp      *server.MCPServer
	database *service.DatabaseService
	logger   *slog.Logger

	// write queries are refused unless enabled
	allowWrites bool
}

// Deps holds the dependencies passed from the app layer to the MCP server.
type Deps struct {
	Database    *service.DatabaseService
	Logger      *slog.Logger
	AllowWrites bool
	Version     string
}

// New creates and configures a new MCP server with all tools and resources.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	if deps.Version == "" {
		deps.Version = "1.0.0"
	}
	s := &Server{
		database:    deps.Database,
		logger:      deps.Logger.With("component", "mcp"),
		allowWrites: deps.AllowWrites,
	}

	s.mcp = server.NewMCPServer(
		"dbai-mcp",
		deps.Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(true, false),
		server.WithPromptCapabilities(true),
	)

	s.registerDatabaseTools()
	s.registerResources()
	s.registerPrompts()

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting stdio server", "allow_writes", s.allowWrites)
	return server.ServeStdio(s.mcp)
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}
