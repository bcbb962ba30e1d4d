package cmd

import (
	"github.com/spf13/cobra"

	"github.com/addonbump/addonbump/pkg/config"
	"github.com/addonbump/addonbump/pkg/update"
)

func newRunCmd(ro *rootOptions) *cobra.Command {
	var (
		dryRun bool
		only   []string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one update pass over every package",
		Example: `  addonbump run
  addonbump run --dry-run --only sonarr --only radarr`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := ro.v.BindPFlag("dry_run", cmd.Flags().Lookup("dry-run")); err != nil {
				return err
			}
			if err := ro.v.BindPFlag("only", cmd.Flags().Lookup("only")); err != nil {
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
			_, err = coordinator.Run(cmd.Context(), update.Options{DryRun: cfg.DryRun, Only: cfg.Only})
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "resolve and report updates without touching files or git")
	cmd.Flags().StringSliceVar(&only, "only", nil, "restrict the run to the given package (repeatable)")
	return cmd
}
