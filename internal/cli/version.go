package cli

import (
	"fmt"

	"github.com/soyeahso/colloquy/internal/version"
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			out := version.Info()
			if short {
				out = version.Version
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version number")
	return cmd
}
