package cli

import (
	"context"

	"github.com/spf13/cobra"
)

type options struct {
	configPath string
	verbose    bool
}

// NewRootCmd builds the airlog command tree. Running it without a
// subcommand starts the daemon.
func NewRootCmd() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "airlog",
		Short: "Serial CO2/TVOC sensor logger",
		Long: `airlog polls a USB serial air-quality sensor for CO2 and TVOC readings
and stores every sample in a local sqlite database or TimescaleDB.

Configuration is read from config.yaml in the --config directory and can be
overridden with environment variables such as SERIAL_DEVICE or STORE_DRIVER.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDaemon(cmd.Context(), opts)
		},
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", ".", "Directory containing config.yaml")
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "Enable verbose (debug) logging")

	rootCmd.AddCommand(newRunCmd(opts))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// Execute runs the root command with ctx.
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}
