package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/frontend"
	"github.com/addonbump/addonbump/pkg/update"
)

func newDaemonCmd(ro *rootOptions) *cobra.Command {
	var (
		listen   string
		schedule string
	)
	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Run updates on a schedule and serve the trigger API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ro.v.BindPFlag("daemon.listen", cmd.Flags().Lookup("listen")); err != nil {
				return err
			}
			if err := ro.v.BindPFlag("daemon.schedule", cmd.Flags().Lookup("schedule")); err != nil {
				return err
			}
			cfg, err := config.Load(ro.v)
			if err != nil {
				return err
			}

			coordinator, err := newCoordinator(cfg)
			if err != nil {
				return err
			}
			fe, err := frontend.New(coordinator, cfg.Daemon, update.Options{DryRun: cfg.DryRun, Only: cfg.Only})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return fe.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "address of the trigger API (default :8080)")
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule of periodic runs (default @every 6h)")
	return cmd
}
