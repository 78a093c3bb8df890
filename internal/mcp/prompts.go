package mcpserver

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	s.mcp.AddPrompt(mcp.NewPrompt("explore_database",
		mcp.WithPromptDescription("Guide through connecting to a saved database and summarizing its structure"),
		mcp.WithArgument("connectionId",
			mcp.ArgumentDescription("Connection ID to explore"),
			mcp.RequiredArgument(),
		),
	), s.handleExplorePrompt)

	s.mcp.AddPrompt(mcp.NewPrompt("answer_question",
		mcp.WithPromptDescription("Answer a question about the data in a saved database with read-only queries"),
		mcp.WithArgument("connectionId",
			mcp.ArgumentDescription("Connection ID to query"),
			mcp.RequiredArgument(),
		),
		mcp.WithArgument("question",
			mcp.ArgumentDescription("The question to answer"),
			mcp.RequiredArgument(),
		),
	), s.handleAnswerPrompt)
}

func (s *Server) handleExplorePrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["connectionId"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Explore connection %s", id),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Explore the database behind connection "%s". Follow these steps:

1. Use list_connections to see its driver and current state
2. If it is not connected, use connect
3. Use get_schema to list its tables, collections or key groups
4. For the three most interesting ones, use execute_query to fetch a few sample records (maxRows 5)
5. Summarize what the database stores, how the pieces relate, and anything that looks unusual

Only run read queries.`, id),
				},
			},
		},
	}, nil
}

func (s *Server) handleAnswerPrompt(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	id := req.Params.Arguments["connectionId"]
	question := req.Params.Arguments["question"]
	return &mcp.GetPromptResult{
		Description: fmt.Sprintf("Answer a question using connection %s", id),
		Messages: []mcp.PromptMessage{
			{
				Role: mcp.RoleUser,
				Content: mcp.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Answer this question using the database behind connection "%s":

%s

Connect first if needed, read the schema with get_schema before writing queries, and keep every query read-only. Show the queries you ran alongside the answer.`, id, question),
				},
			},
		},
	}, nil
}
