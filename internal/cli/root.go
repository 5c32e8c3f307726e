// Package cli is the operator command line. Every command goes through the
// pipeline service; none touches the documents directly except read-only
// reports.
package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/MrSnakeDoc/promobot/internal/app"
	"github.com/MrSnakeDoc/promobot/internal/config"
	"github.com/MrSnakeDoc/promobot/internal/domain"
	"github.com/MrSnakeDoc/promobot/internal/logger"
	"github.com/MrSnakeDoc/promobot/internal/pipeline"
)

const defaultOperator = "operator"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	User string
	// NewApp builds the application for commands that need it.
	NewApp func(ctx context.Context) (*app.App, error)
}

// NewRootCommand creates the root command of the promobot CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{NewApp: loadApp})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promobot",
		Short: "promobot - product promotion bot",
		Long: `Turns product pages into promotional posts.

Adds products from their URL, generates promotional text in a chosen style
and distributes it to the channels bound to an identity.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVarP(&opts.User, "user", "u", defaultOperator, "identity the command acts for")

	// Add subcommands
	cmd.AddCommand(newServeCommand(opts))
	cmd.AddCommand(newStatsCommand(opts))
	cmd.AddCommand(newProductCommand(opts))
	cmd.AddCommand(newGenerateCommand(opts))
	cmd.AddCommand(newPostCommand(opts))
	cmd.AddCommand(newPromoteCommand(opts))
	cmd.AddCommand(newChannelCommand(opts))
	cmd.AddCommand(newLanguageCommand(opts))
	cmd.AddCommand(newHistoryCommand(opts))
	cmd.AddCommand(newBackupsCommand(opts))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

func loadApp(ctx context.Context) (*app.App, error) {
	cfg := config.Load()
	return app.New(ctx, cfg, logger.New(cfg.LogLevel, cfg.PrettyLog))
}

func (o *RootOptions) identity() (domain.Identity, error) {
	if o.User == "" {
		return "", errors.New("--user must not be empty")
	}
	return domain.Identity(o.User), nil
}

// withApp builds the application, runs fn and releases it.
func (o *RootOptions) withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app.App) error) error {
	ctx := commandContext(cmd)
	a, err := o.NewApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// userError keeps the cause for logs but leads with the end-user message.
func userError(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s (%w)", pipeline.UserMessage(err), err)
}
