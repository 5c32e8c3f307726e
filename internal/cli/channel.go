package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
	"github.com/MrSnakeDoc/promobot/internal/domain"
)

func newChannelCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "channel",
		Short: "Manage publishing channels",
	}
	cmd.AddCommand(newChannelBindCommand(opts))
	cmd.AddCommand(newChannelUnbindCommand(opts))
	return cmd
}

func newChannelBindCommand(opts *RootOptions) *cobra.Command {
	var (
		credentialsRef string
		autoPost       bool
		disabled       bool
	)

	cmd := &cobra.Command{
		Use:   "bind <platform> [target]",
		Short: "Bind or replace the channel of a platform",
		Long: `Bind or replace the channel of a platform.

The target is a chat id or @channel for telegram and an instance URL for
mastodon (the configured instance when omitted). Credentials are referenced,
never stored: "env:NAME" reads an environment variable at send time.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			b := domain.ChannelBinding{
				Platform:       domain.Platform(strings.ToLower(args[0])),
				CredentialsRef: credentialsRef,
				AutoPost:       autoPost,
				Enabled:        !disabled,
			}
			if len(args) == 2 {
				b.Target = args[1]
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service().BindChannel(ctx, id, b); err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🔗 %s bound", b.Platform)
				if b.Target != "" {
					fmt.Fprintf(cmd.OutOrStdout(), " to %s", strings.TrimSpace(b.Target))
				}
				fmt.Fprintln(cmd.OutOrStdout())
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&credentialsRef, "credentials-ref", "", `secret reference, e.g. "env:MY_TOKEN"`)
	cmd.Flags().BoolVar(&autoPost, "auto-post", false, "post automatically after promote")
	cmd.Flags().BoolVar(&disabled, "disabled", false, "store the binding without posting to it")
	return cmd
}

func newChannelUnbindCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unbind <platform>",
		Short: "Remove the channel of a platform",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			p := domain.Platform(strings.ToLower(args[0]))
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Service().UnbindChannel(ctx, id, p); err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s unbound\n", p)
				return nil
			})
		},
	}
}

func newLanguageCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "language <tag>",
		Short: "Set the language generated texts are written in",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := opts.identity()
			if err != nil {
				return err
			}
			return opts.withApp(cmd, func(ctx context.Context, a *app.App) error {
				lang, err := a.Service().SetLanguage(ctx, id, args[0])
				if err != nil {
					return userError(err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "🌐 language set to %s\n", lang)
				return nil
			})
		},
	}
}
