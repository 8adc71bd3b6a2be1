package cli

import (
	"github.com/spf13/cobra"
)

type DispatchOptions struct {
	*RootOptions
	Once bool
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DispatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Notify approvers of pending documents",
		Long: `Run the notification dispatcher without the HTTP surface.

With --once a single cycle runs and the command exits; a failed scan exits
non-zero so cron can alert. Without it the dispatcher polls every
POLL_INTERVAL until interrupted.

Example:
  approvals dispatch --once
  POLL_INTERVAL=30s approvals dispatch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Once, "once", false, "run a single cycle and exit")

	return cmd
}

func runDispatch(cmd *cobra.Command, opts *DispatchOptions) error {
	ctx, cancel, a, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	d, err := a.Dispatcher(ctx)
	if err != nil {
		return err
	}

	if !opts.Once {
		return d.Run(ctx)
	}

	result, err := d.RunCycle(ctx)
	if err != nil {
		return WrapExitError(ExitFailure, "dispatch cycle", err)
	}
	if result.Skipped {
		printf(cmd, "cycle %s skipped: lease held by another instance\n", result.CycleID)
		return nil
	}
	printf(cmd, "cycle %s: scanned=%d ineligible=%d notified=%d failed=%d\n",
		result.CycleID, result.Scanned, result.Ineligible, result.Notified, result.Failed())
	return nil
}
