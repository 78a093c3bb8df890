package cli

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"dbai/internal/app"
	"dbai/internal/domain"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newSchemaCommand(opts *rootOptions) *cobra.Command {
	var (
		refresh bool
		asJSON  bool
	)
	cmd := &cobra.Command{
		Use:   "schema <id>",
		Short: "Show the collections and fields of a saved connection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(ctx context.Context, rt *app.Runtime) error {
				if _, err := rt.Database.Connect(ctx, args[0]); err != nil {
					return err
				}
				snap, err := rt.Database.GetSchema(ctx, args[0], refresh)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), snap)
				}
				return renderSchema(cmd.OutOrStdout(), snap)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "Bypass the schema cache")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the snapshot as JSON")
	return cmd
}

func renderSchema(w io.Writer, snap *domain.SchemaSnapshot) error {
	if len(snap.Collections) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No collections found"))
		return nil
	}
	var items []pterm.BulletListItem
	for _, c := range snap.Collections {
		items = append(items, pterm.BulletListItem{Level: 0, Text: c.Name})
		for _, f := range c.Fields {
			text := f.Name
			if f.Type != "" {
				text += " " + pterm.Gray(f.Type)
			}
			items = append(items, pterm.BulletListItem{Level: 1, Text: text})
		}
	}
	out, err := pterm.DefaultBulletList.WithItems(items).Srender()
	if err != nil {
		return err
	}
	fmt.Fprint(w, out)
	fmt.Fprint(w, pterm.Info.Sprintfln("%d collections in %s", len(snap.Collections), snap.Database))
	return nil
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var (
		limit  int
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently executed queries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withRuntime(cmd, func(_ context.Context, rt *app.Runtime) error {
				entries, err := rt.Database.RecentQueries(limit)
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd.OutOrStdout(), entries)
				}
				return renderHistory(cmd.OutOrStdout(), entries)
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Number of entries (default: query.history_limit)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print entries as JSON")
	return cmd
}

func renderHistory(w io.Writer, entries []domain.QueryHistoryEntry) error {
	if len(entries) == 0 {
		fmt.Fprint(w, pterm.Info.Sprintln("No queries yet"))
		return nil
	}
	data := pterm.TableData{{"WHEN", "CONNECTION", "QUERY", "RECORDS", "MS", "ERROR"}}
	for _, e := range entries {
		data = append(data, []string{
			e.ExecutedAt.Local().Format(time.DateTime),
			e.ConnectionID,
			oneLine(e.Query, 60),
			strconv.Itoa(e.RecordCount),
			strconv.FormatInt(e.DurationMs, 10),
			e.Error,
		})
	}
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, out)
	return nil
}

// oneLine collapses whitespace and cuts s to maxLen runes.
func oneLine(s string, maxLen int) string {
	r := []rune(strings.Join(strings.Fields(s), " "))
	if len(r) <= maxLen {
		return string(r)
	}
	return string(r[:maxLen-3]) + "..."
}
