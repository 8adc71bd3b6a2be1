package cli

import (
	"context"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpapi "approvals/internal/http"
	"approvals/internal/platform/httpserver"
)

type ServeOptions struct {
	*RootOptions
	Addr     string
	Dispatch bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve action links and the document API, and run the dispatcher",
		Long: `Start the HTTP server and the notification dispatcher. On SIGINT or
SIGTERM the server drains in-flight requests and the dispatcher finishes its
current cycle before the process exits.

Example:
  approvals serve
  approvals serve --addr :9090 --dispatch=false`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Addr, "addr", "", "listen address, overrides APPROVALS_ADDR")
	cmd.Flags().BoolVar(&opts.Dispatch, "dispatch", true, "run the notification dispatcher in this process")

	return cmd
}

func runServe(cmd *cobra.Command, opts *ServeOptions) error {
	ctx, cancel, a, err := opts.setup(cmd)
	if err != nil {
		return err
	}
	defer cancel()

	addr := a.cfg.Server.Addr
	if opts.Addr != "" {
		addr = opts.Addr
	}

	g, gctx := errgroup.WithContext(ctx)

	if opts.Dispatch {
		d, err := a.Dispatcher(ctx)
		if err != nil {
			return err
		}
		g.Go(func() error {
			return d.Run(gctx)
		})
	}

	deps, err := a.Router(ctx)
	if err != nil {
		return err
	}
	srv := httpserver.New(addr, httpapi.NewRouter(*deps))
	g.Go(func() error {
		a.logger.InfoContext(gctx, "starting approvals", "addr", addr, "dispatch", opts.Dispatch)
		return httpserver.Run(gctx, srv, a.cfg.Server.ShutdownTimeout)
	})

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		return WrapExitError(ExitFailure, "serve", err)
	}
	a.logger.InfoContext(context.WithoutCancel(ctx), "approvals stopped")
	return nil
}
