// Package cli implements the approvals command line: serve, dispatch and
// migrate.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"approvals/internal/platform/config"
	"approvals/internal/platform/logger"
)

// RootOptions holds global flags for all commands. Flags override the
// environment.
type RootOptions struct {
	LogLevel  string
	LogFormat string
	KindsFile string

	// LoadConfig overrides config.FromEnv (tests).
	LoadConfig func() (config.Config, error)
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{LoadConfig: config.FromEnv}

	cmd := &cobra.Command{
		Use:           "approvals",
		Short:         "Approval lifecycle service",
		Long:          "Stores purchase requisitions and job-work reports, emails approvers a snapshot with approve/reject links, and records their decisions.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "log level (debug|info|warn|error), overrides LOG_LEVEL")
	cmd.PersistentFlags().StringVar(&opts.LogFormat, "log-format", "", "log format (json|text), overrides LOG_FORMAT")
	cmd.PersistentFlags().StringVar(&opts.KindsFile, "kinds", "", "YAML file of document kinds to dispatch, overrides KINDS_FILE")

	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewMigrateCommand(opts))

	return cmd
}

// setup loads configuration, builds the logger and the app. The returned
// context is cancelled on SIGINT or SIGTERM.
func (o *RootOptions) setup(cmd *cobra.Command) (context.Context, context.CancelFunc, *app, error) {
	cfg, err := o.LoadConfig()
	if err != nil {
		return nil, nil, nil, WrapExitError(ExitConfigError, "load configuration", err)
	}
	if o.KindsFile != "" {
		kinds, err := config.LoadKinds(o.KindsFile)
		if err != nil {
			return nil, nil, nil, WrapExitError(ExitConfigError, "load kinds", err)
		}
		cfg.Dispatch.Kinds = kinds
	}
	if o.LogLevel != "" {
		cfg.Log.Level = o.LogLevel
	}
	if o.LogFormat != "" {
		cfg.Log.Format = o.LogFormat
	}

	log := logger.NewWithWriter(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)

	a, err := newApp(ctx, cfg, log)
	if err != nil {
		stop()
		return nil, nil, nil, err
	}
	cancel := func() {
		a.Close()
		stop()
	}
	return ctx, cancel, a, nil
}

func printf(cmd *cobra.Command, format string, args ...any) {
	_, _ = fmt.Fprintf(cmd.OutOrStdout(), format, args...)
}
