package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
)

func newHistoryCommand(opts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent post attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				entries, err := a.Service().History(ctx, id, limit)
				if err != nil {
					return userError(err)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No posts yet.")
					return nil
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Time", "Product", "Platform", "Status", "Attempts", "Length", "Detail"})
				for _, e := range entries {
					detail := e.ErrorDetail
					if detail == "" {
						detail = e.RemoteID
					}
					t.AppendRow(table.Row{formatTime(e.Timestamp), e.ProductID, e.Platform, e.Status, e.Attempts, e.TextLength, detail})
				}
				t.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "entries to show (0 = all)")
	return cmd
}
