package cli

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/pipeline"
)

func newGenerateCommand(opts *RootOptions) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "generate <product-id>",
		Short: "Generate promotional text for a stored product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				gen, err := a.Service().Generate(ctx, id, args[0], style)
				if err != nil {
					return userError(err)
				}
				fmt.Fprintln(cmd.OutOrStdout(), gen.Text)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "prompt style (default style when empty)")
	return cmd
}

func newPostCommand(opts *RootOptions) *cobra.Command {
	var text string

	cmd := &cobra.Command{
		Use:   "post <product-id>",
		Short: "Post text to every enabled channel",
		Long: `Post text to every enabled channel.

Without --text the last text generated for the product is posted.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service().Distribute(ctx, id, args[0], text)
				if err != nil {
					return userError(err)
				}
				return renderResult(cmd.OutOrStdout(), res)
			})
		},
	}
	cmd.Flags().StringVarP(&text, "text", "t", "", "text to post instead of the last generation")
	return cmd
}

func newPromoteCommand(opts *RootOptions) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:   "promote <url>",
		Short: "Add a product, generate text and auto-post it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				res, err := a.Service().Promote(ctx, id, args[0], style)
				if res.Product.ID != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "✅ added %s: %s\n", res.Product.ID, res.Product.Title)
				}
				if err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n\n", res.Generation.Text)
				if res.Distribution == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No channel has auto-post enabled.")
					return nil
				}
				return renderResult(cmd.OutOrStdout(), *res.Distribution)
			})
		},
	}
	cmd.Flags().StringVarP(&style, "style", "s", "", "prompt style (default style when empty)")
	return cmd
}

// renderResult prints one row per platform and fails when no platform accepted the post.
func renderResult(w io.Writer, res pipeline.Result) error {
	platforms := make([]domain.Platform, 0, len(res.Outcomes))
	for p := range res.Outcomes {
		platforms = append(platforms, p)
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })

	t := newTable(w)
	t.AppendHeader(table.Row{"Platform", "State", "Attempts", "Remote ID", "Message"})
	for _, p := range platforms {
		o := res.Outcomes[p]
		t.AppendRow(table.Row{p, o.State, o.Attempts, o.Receipt.RemoteID, pipeline.OutcomeMessage(o)})
	}
	t.Render()

	if len(res.Succeeded()) == 0 {
		return fmt.Errorf("no channel accepted the post")
	}
	return nil
}
