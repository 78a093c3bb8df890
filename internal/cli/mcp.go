package cli

import (
	"context"

	"dbai/internal/app"
	mcpserver "dbai/internal/mcp"

	"github.com/spf13/cobra"
)

func newMCPCommand(opts *rootOptions) *cobra.Command {
	var allowWrites bool
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve saved connections to AI agents over MCP (stdio)",
		Long: `Start a Model Context Protocol server on stdin/stdout.

Agents can list connections, connect, browse schemas and run queries.
Write queries are refused unless --allow-writes is set. Logs go to the
dbai log file since stdout carries the protocol.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.openRuntime(cmd, app.Options{}, func(_ context.Context, rt *app.Runtime) error {
				if err := rt.Database.Start(); err != nil {
					return err
				}
				srv := mcpserver.New(mcpserver.Deps{
					Database:    rt.Database,
					Logger:      rt.Logger,
					AllowWrites: allowWrites,
					Version:     Version,
				})
				return srv.ServeStdio()
			})
		},
	}
	cmd.Flags().BoolVar(&allowWrites, "allow-writes", false, "Allow queries that modify data")
	return cmd
}
