package cmd

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/addonbump/addonbump/pkg/config"
)

// Version is set at build time.
var Version = "dev"

type rootOptions struct {
	configFile string
	verbose    bool
	v          *viper.Viper
}

// NewRootCmd builds the addonbump command tree.
func NewRootCmd() *cobra.Command {
	ro := &rootOptions{}
	root := &cobra.Command{
		Use:   "addonbump",
		Short: "Keep the upstream image versions of an add-on monorepo current",
		Long: `addonbump walks every package of an add-on monorepo, asks the container
registry for the newest tag matching the package's selection policy, rewrites
the pinned version across the package's manifests, commits each update and
pushes once per run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			v, err := config.New(ro.configFile)
			if err != nil {
				return err
			}
			if err := v.BindPFlag("verbose", cmd.Flags().Lookup("verbose")); err != nil {
				return err
			}
			ro.v = v
			setupLogging(v.GetBool("verbose"))
			return nil
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&ro.configFile, "config", "", "config file (default: ./addonbump.yaml or $HOME/.config/addonbump/addonbump.yaml)")
	flags.BoolVarP(&ro.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newRunCmd(ro), newDaemonCmd(ro), newVersionCmd())
	return root
}

// Execute runs the command tree against os.Args.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(verbose bool) {
	log.SetOutput(os.Stderr)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	if verbose {
		log.SetLevel(log.DebugLevel)
	} else {
		log.SetLevel(log.InfoLevel)
	}
}
