package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/labexam"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of labexam",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {},
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "labexam version %s\n", strings.TrimSpace(labexam.Version))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
