package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func VersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the registrar version",
		Run: func(cmd *cobra.Command, _ []string) {
			if version != "" {
				fmt.Fprintln(cmd.OutOrStdout(), version)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Version not set.")
			}
		},
	}
}
