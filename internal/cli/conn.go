package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"strconv"

	"dbai/internal/app"
	"dbai/internal/domain"
	"dbai/internal/service"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newConnCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "conn",
		Aliases: []string{"connection", "connections"},
		Short:   "Manage saved connections",
	}
	cmd.AddCommand(newConnListCommand(opts))
	cmd.AddCommand(newConnAddCommand(opts))
	cmd.AddCommand(newConnRemoveCommand(opts))
	return cmd
}

func newConnListCommand(opts *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved connections",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				views, err := rt.Database.ListConnections(ctx)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), views)
				}
				return renderConnections(cmd.OutOrStdout(), views)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print connections as JSON")
	return cmd
}

func renderConnections(w io.Writer, views []service.ConnectionView) error {
	if len(views) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No saved connections. Add one with: dbai conn add"))
		return nil
	}
	data := pterm.TableData{{"ID", "NAME", "DRIVER", "TARGET", "SECRET"}}
	for _, v := range views {
		secret := "no"
		if v.HasSecret {
			secret = "yes"
		}
		data = append(data, []string{v.ID, v.Name, string(v.Driver), target(v), secret})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

// target is the human-readable location of a connection.
func target(v service.ConnectionView) string {
	if v.Kind == domain.KindEmbeddedFile {
		return v.Database
	}
	addr := v.Host
	if v.Port > 0 {
		addr = net.JoinHostPort(v.Host, strconv.Itoa(v.Port))
	}
	if v.Database != "" {
		return addr + "/" + v.Database
	}
	return addr
}

func newConnAddCommand(opts *rootOptions) *cobra.Command {
	in := service.ConnectionInput{}
	var passwordStdin bool

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Save a new connection",
		Long: `Save a new connection. The password goes to the configured secret
backend and never to the connection store.

For sqlite and duckdb, --database is the path of the database file.
For redis, --database is the logical database index.`,
		Example: `  dbai conn add --name local-pg --driver postgres --host localhost --database app --username app --password-stdin
  dbai conn add --name analytics --driver duckdb --database ./warehouse.duckdb
  dbai conn add --name cache --driver redis --host localhost --database 0`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if passwordStdin {
				pw, err := readPassword(cmd.InOrStdin())
				if err != nil {
					return err
				}
				in.Password = pw
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				v, err := rt.Database.SaveConnection(ctx, in)
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Saved connection %s (%s)", v.Name, v.ID))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "Display name")
	f.StringVar(&in.Driver, "driver", "", "Driver: mongodb, postgres, mysql, redis, sqlite, duckdb")
	f.StringVar(&in.Host, "host", "", "Server host")
	f.IntVar(&in.Port, "port", 0, "Server port (default: the driver's port)")
	f.StringVar(&in.Database, "database", "", "Database name, file path or index")
	f.StringVar(&in.Username, "username", "", "User name")
	f.StringVar(&in.Password, "password", "", "Password (prefer --password-stdin)")
	f.BoolVar(&passwordStdin, "password-stdin", false, "Read the password from stdin")
	f.BoolVar(&in.TLS, "tls", false, "Use TLS")
	f.StringToStringVar(&in.Options, "option", nil, "Driver option key=value (repeatable)")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("driver")
	_ = cmd.RegisterFlagCompletionFunc("driver", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{"mongodb", "postgres", "mysql", "redis", "sqlite", "duckdb"}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

func newConnRemoveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <id>",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a saved connection, its secret and its history",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Database.DeleteConnection(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintfln("Deleted connection %s", args[0]))
				return nil
			})
		},
	}
}

func newTestCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "test <id>",
		Short: "Check that a saved connection can be opened",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if err := rt.Database.TestConnection(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), pterm.Success.Sprintln("Connection OK"))
				return nil
			})
		},
	}
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
