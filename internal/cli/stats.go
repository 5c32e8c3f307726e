package cli

import (
	"context"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
)

func newStatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the aggregate counters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				stats, err := a.Store().Stats(ctx)
				if err != nil {
					return userError(err)
				}
				users, err := a.Store().Users(ctx)
				if err != nil {
					return userError(err)
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Counter", "Value"})
				t.AppendRows([]table.Row{
					{"users", users.Count()},
					{"messages", stats.TotalMessages},
					{"generations", stats.TotalGenerations},
					{"posts", stats.TotalPosts},
					{"started", formatTime(stats.StartedAt)},
					{"updated", formatTime(stats.UpdatedAt)},
				})

				kinds := make([]string, 0, len(stats.ErrorsByKind))
				for k := range stats.ErrorsByKind {
					kinds = append(kinds, k)
				}
				sort.Strings(kinds)
				if len(kinds) > 0 {
					t.AppendSeparator()
				}
				for _, k := range kinds {
					t.AppendRow(table.Row{"errors." + k, stats.ErrorsByKind[k]})
				}
				t.Render()
				return nil
			})
		},
	}
}
