package cli

import (
	"context"
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
)

func newProductCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the products of an identity",
	}
	cmd.AddCommand(newProductAddCommand(opts))
	cmd.AddCommand(newProductListCommand(opts))
	cmd.AddCommand(newProductRemoveCommand(opts))
	return cmd
}

func newProductAddCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add <url>",
		Short: "Extract a product from its page and store it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				p, err := a.Service().AddProduct(ctx, id, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "✅ added %s: %s", p.ID, p.Title)
				if p.Price != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " (%s)", p.Price)
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
}

func newProductListCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored products",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				products, err := a.Service().Products(ctx, id)
				if err != nil {
					return userError(err)
				}
				if len(products) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No products yet.")
					return nil
				}

				t := newTable(cmd.OutOrStdout())
				t.AppendHeader(table.Row{"ID", "Title", "Price", "Added", "Source"})
				for _, p := range products {
					t.AppendRow(table.Row{p.ID, p.Title, p.Price, formatTime(p.CreatedAt), p.SourceURL})
				}
				t.Render()
				return nil
			})
		},
	}
}

func newProductRemoveCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <product-id>",
		Short: "Delete a stored product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service().RemoveProduct(ctx, id, args[0]); err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🗑️ removed %s\n", args[0])
				return nil
			})
		},
	}
}
