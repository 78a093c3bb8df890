package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"dbai/internal/dbclient"
	"dbai/internal/domain"
	"dbai/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerDatabaseTools() {
	s.mcp.AddTool(mcp.NewTool("list_connections",
		mcp.WithDescription("List saved database connections with their session state. Secrets are never included."),
	), s.handleListConnections)

	s.mcp.AddTool(mcp.NewTool("test_connection",
		mcp.WithDescription("Check that a saved connection can be opened. Does not change its session state."),
		mcp.WithString("connectionId", mcp.Description("Connection ID"), mcp.Required()),
	), s.handleTestConnection)

	s.mcp.AddTool(mcp.NewTool("connect",
		mcp.WithDescription("Open a session for a saved connection"),
		mcp.WithString("connectionId", mcp.Description("Connection ID"), mcp.Required()),
	), s.handleConnect)

	s.mcp.AddTool(mcp.NewTool("disconnect",
		mcp.WithDescription("Close the session of a connection"),
		mcp.WithString("connectionId", mcp.Description("Connection ID"), mcp.Required()),
	), s.handleDisconnect)

	s.mcp.AddTool(mcp.NewTool("execute_query",
		mcp.WithDescription("Run a query on a connected session. SQL for relational and embedded databases, "+
			`a JSON command such as {"find": "users", "filter": {...}} for MongoDB, a command line for Redis. `+
			"🛑 Write queries are refused unless the server was started with --allow-writes."),
		mcp.WithString("connectionId", mcp.Description("Connection ID"), mcp.Required()),
		mcp.WithString("query", mcp.Description("Query text"), mcp.Required()),
		mcp.WithNumber("timeoutMs", mcp.Description("Timeout in milliseconds (default from config)")),
		mcp.WithNumber("maxRows", mcp.Description("Maximum records to return (default from config)")),
	), s.handleExecuteQuery)

	s.mcp.AddTool(mcp.NewTool("get_schema",
		mcp.WithDescription("Get tables/collections and their fields for a connected session"),
		mcp.WithString("connectionId", mcp.Description("Connection ID"), mcp.Required()),
		mcp.WithBoolean("refresh", mcp.Description("Bypass the cached schema")),
	), s.handleGetSchema)
}

type connectionSummary struct {
	service.ConnectionView
	State domain.SessionState `json:"state"`
	Error string              `json:"error,omitempty"`
}

func (s *Server) handleListConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	views, err := s.database.ListConnections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list connections: %w", err)
	}
	out := make([]connectionSummary, len(views))
	for i, v := range views {
		st := s.database.Sessions().Status(v.ID)
		out[i] = connectionSummary{ConnectionView: v, State: st.State, Error: st.Error}
	}
	return jsonResult(out)
}

func (s *Server) handleTestConnection(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("connectionId")
	if err != nil {
		return nil, err
	}
	if err := s.database.TestConnection(ctx, id); err != nil {
		return nil, fmt.Errorf("test connection: %w", err)
	}
	return textResult("Connection OK"), nil
}

func (s *Server) handleConnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("connectionId")
	if err != nil {
		return nil, err
	}
	st, err := s.database.Connect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	return jsonResult(st)
}

func (s *Server) handleDisconnect(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("connectionId")
	if err != nil {
		return nil, err
	}
	st, err := s.database.Disconnect(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("disconnect: %w", err)
	}
	return jsonResult(st)
}

// queryResult is the tool-facing result: records keep field order.
type queryResult struct {
	Fields       []domain.FieldInfo `json:"fields"`
	Records      json.RawMessage    `json:"records"`
	Truncated    bool               `json:"truncated"`
	IsWrite      bool               `json:"isWrite"`
	AffectedRows int64              `json:"affectedRows"`
	DurationMs   int64              `json:"durationMs"`
}

func (s *Server) handleExecuteQuery(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("connectionId")
	if err != nil {
		return nil, err
	}
	query, err := req.RequireString("query")
	if err != nil {
		return nil, err
	}

	if !s.allowWrites {
		conn, err := s.database.GetConnection(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("execute query: %w", err)
		}
		if dbclient.IsWriteQuery(conn.Driver, query) {
			s.logger.Warn("write query refused", "id", id, "driver", conn.Driver, "query", truncate(query, 100))
			return nil, domain.E(domain.KindPermissionDenied, "execute_query", id,
				fmt.Errorf("write queries are disabled: %s", truncate(query, 100)))
		}
	}

	res, err := s.database.ExecuteQuery(ctx, domain.QueryRequest{
		ConnectionID: id,
		Text:         query,
		Timeout:      time.Duration(req.GetInt("timeoutMs", 0)) * time.Millisecond,
		MaxRows:      req.GetInt("maxRows", 0),
	})
	if err != nil {
		return nil, fmt.Errorf("execute query: %w", err)
	}

	var records bytes.Buffer
	if err := service.WriteResult(&records, res, service.ExportJSON); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return jsonResult(queryResult{
		Fields:       res.Fields,
		Records:      json.RawMessage(bytes.TrimSpace(records.Bytes())),
		Truncated:    res.Truncated,
		IsWrite:      res.IsWrite,
		AffectedRows: res.AffectedRows,
		DurationMs:   res.Duration.Milliseconds(),
	})
}

func (s *Server) handleGetSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("connectionId")
	if err != nil {
		return nil, err
	}
	snap, err := s.database.GetSchema(ctx, id, req.GetBool("refresh", false))
	if err != nil {
		return nil, fmt.Errorf("get schema: %w", err)
	}
	return jsonResult(snap)
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
