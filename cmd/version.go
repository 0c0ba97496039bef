package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newVersionCmd(version, commit, date string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "turnkit %s\n", displayVersion(version, commit))
			if date != "" && date != "unknown" {
				fmt.Fprintf(cmd.OutOrStdout(), "built %s\n", date)
			}
			return nil
		},
	}
}

// displayVersion returns e.g. "v0.1.0 (abc1234)".
func displayVersion(version, commit string) string {
	v := "v" + version
	if commit != "" && commit != "none" {
		v += " (" + commit + ")"
	}
	return v
}
