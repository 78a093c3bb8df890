// Package cli is the headless command-line surface of dbai. It drives the
// same database service as the desktop shell.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dbai/internal/app"
	"dbai/internal/logging"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Version information (set at build time).
var Version = "0.1.0"

const closeTimeout = 10 * time.Second

// rootOptions are the persistent flags shared by every command.
type rootOptions struct {
	configPath string
	verbose    bool
}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:   "dbai",
		Short: "dbai - database client for MongoDB, PostgreSQL, MySQL, Redis, SQLite and DuckDB",
		Long: `dbai manages saved database connections and runs queries against them.

Run without arguments to open the desktop app. The commands below use the
same connection store, secret backend and query history as the app.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default: ~/.config/dbai/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Log debug output to stderr")

	rootCmd.AddCommand(newConnCommand(opts))
	rootCmd.AddCommand(newTestCommand(opts))
	rootCmd.AddCommand(newQueryCommand(opts))
	rootCmd.AddCommand(newSchemaCommand(opts))
	rootCmd.AddCommand(newHistoryCommand(opts))
	rootCmd.AddCommand(newMCPCommand(opts))

	return rootCmd
}

// Execute runs the root command with os.Args. SIGINT and SIGTERM cancel the
// running command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprint(os.Stderr, pterm.Error.Sprintln(err))
		return err
	}
	return nil
}

// runtimeFunc is the body of a command that needs the database service.
type runtimeFunc func(ctx context.Context, rt *app.Runtime) error

// withRuntime opens the runtime, runs fn and closes every session it opened.
func (o *rootOptions) withRuntime(cmd *cobra.Command, fn runtimeFunc) error {
	return o.openRuntime(cmd, app.Options{
		LogOutput: cmd.ErrOrStderr(),
		LogFormat: logging.FormatPretty,
		LogLevel:  "warn",
	}, fn)
}

func (o *rootOptions) openRuntime(cmd *cobra.Command, ro app.Options, fn runtimeFunc) error {
	ro.ConfigPath = o.configPath
	if o.verbose {
		ro.LogLevel = "debug"
	}
	rt, err := app.Open(ro)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		if cerr := rt.Close(ctx); cerr != nil {
			rt.Logger.Warn("close runtime", "error", cerr)
		}
	}()
	return fn(cmd.Context(), rt)
}
