package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
	"github.com/MrSnakeDoc/promobot/internal/domain"
)

func newBackupsCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "Inspect and prune document backups",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List backups of every document, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"Document", "Backup", "Taken", "Size"})
				for _, key := range domain.DocumentKeys() {
					backups, err := a.Store().Backups(ctx, key)
					if err != nil {
						return fmt.Errorf("list %s backups: %w", key, err)
					}
					for _, b := range backups {
						t.AppendRow(table.Row{b.Key, b.ID, formatTime(b.TakenAt), b.Size})
					}
				}
				t.Render()
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete backups older than PROMO_BACKUP_MAX_AGE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				n, err := a.Pruner().Prune(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🧹 pruned %d backup(s)\n", n)
				return nil
			})
		},
	})
	return cmd
}
