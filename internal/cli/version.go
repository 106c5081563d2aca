package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ponytojas/airlog/internal/version"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the airlog version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version.GetVersion())
		},
	}
}
