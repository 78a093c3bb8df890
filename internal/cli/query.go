package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"dbai/internal/app"
	"dbai/internal/domain"
	"dbai/internal/service"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// Output formats of the query command.
const (
	formatTable = "table"
	formatJSON  = "json"
	formatCSV   = "csv"
)

// queryOptions holds options for the query command.
type queryOptions struct {
	timeout time.Duration
	maxRows int
	format  string
	input   string
	export  string
}

func newQueryCommand(opts *rootOptions) *cobra.Command {
	qo := &queryOptions{}

	cmd := &cobra.Command{
		Use:   "query <id> [query]",
		Short: "Run a query against a saved connection",
		Long: `Connect to a saved connection, run one query and disconnect.

The query uses the backend's native language: SQL for postgres, mysql,
sqlite and duckdb, a JSON command document for mongodb and a command line
for redis. Without a query argument it is read from --input or stdin.`,
		Example: `  dbai query 3f2a "SELECT id, email FROM users LIMIT 10"
  dbai query mongo-id '{ "find": "users", "filter": {"status": "active"} }'
  dbai query cache-id "HGETALL session:42" --format json
  dbai query 3f2a --input report.sql --export report.csv`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := queryText(cmd.InOrStdin(), args[1:], qo.input)
			if err != nil {
				return err
			}
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				return runQuery(ctx, cmd.OutOrStdout(), rt.Database, args[0], text, qo)
			})
		},
	}

	cmd.Flags().DurationVar(&qo.timeout, "timeout", 0, "Query deadline (default: query.default_timeout)")
	cmd.Flags().IntVar(&qo.maxRows, "max-rows", 0, "Record cap, -1 for none (default: query.default_max_rows)")
	cmd.Flags().StringVarP(&qo.format, "format", "f", formatTable, "Output format: table, json, csv")
	cmd.Flags().StringVarP(&qo.input, "input", "i", "", "Read the query from a file")
	cmd.Flags().StringVar(&qo.export, "export", "", "Also write the result to a .csv or .json file")
	_ = cmd.RegisterFlagCompletionFunc("format", func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
		return []string{formatTable, formatJSON, formatCSV}, cobra.ShellCompDirectiveNoFileComp
	})
	return cmd
}

// queryText picks the query source: the argument, then --input, then stdin.
func queryText(stdin io.Reader, args []string, input string) (string, error) {
	var text string
	switch {
	case len(args) > 0:
		text = args[0]
	case input != "":
		content, err := os.ReadFile(input)
		if err != nil {
			return "", fmt.Errorf("read query file: %w", err)
		}
		text = string(content)
	default:
		content, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		text = string(content)
	}
	if strings.TrimSpace(text) == "" {
		return "", errors.New("no query given")
	}
	return text, nil
}

func runQuery(ctx context.Context, w io.Writer, db *service.DatabaseService, id, text string, qo *queryOptions) error {
	switch qo.format {
	case formatTable, formatJSON, formatCSV:
	default:
		return fmt.Errorf("unknown format %q (want table, json or csv)", qo.format)
	}

	if _, err := db.Connect(ctx, id); err != nil {
		return err
	}
	res, err := db.ExecuteQuery(ctx, domain.QueryRequest{
		ConnectionID: id,
		Text:         text,
		Timeout:      qo.timeout,
		MaxRows:      qo.maxRows,
	})
	if err != nil {
		return err
	}

	switch qo.format {
	case formatJSON:
		err = service.WriteResult(w, res, service.ExportJSON)
	case formatCSV:
		err = service.WriteResult(w, res, service.ExportCSV)
	default:
		err = renderResult(w, res)
	}
	if err != nil {
		return err
	}

	if qo.export != "" {
		if err := db.ExportLastResult(id, qo.export, ""); err != nil {
			return err
		}
		fmt.Fprint(w, pterm.Success.Sprintfln("Exported %d records to %s", len(res.Records), qo.export))
	}
	return nil
}

func renderResult(w io.Writer, res *domain.QueryResult) error {
	if res.IsWrite && len(res.Records) == 0 {
		fmt.Fprint(w, pterm.Success.Sprintfln("%d rows affected (%s)", res.AffectedRows, res.Duration.Round(time.Millisecond)))
		return nil
	}
	if len(res.Fields) > 0 {
		names := res.FieldNames()
		data := pterm.TableData{names}
		for _, rec := range res.Records {
			row := make([]string, len(names))
			for i, name := range names {
				row[i] = service.CellText(rec[name])
			}
			data = append(data, row)
		}
		out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
		if err != nil {
			return err
		}
		fmt.Fprintln(w, out)
	}

	summary := fmt.Sprintf("%d records in %s", len(res.Records), res.Duration.Round(time.Millisecond))
	if res.Truncated {
		fmt.Fprint(w, pterm.Warning.Sprintln(summary+" (truncated, raise --max-rows to see more)"))
		return nil
	}
	fmt.Fprint(w, pterm.Info.Sprintln(summary))
	return nil
}

// readPassword reads the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}
