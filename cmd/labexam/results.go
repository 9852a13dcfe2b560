package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/internal/presentation/tui"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show results across all submitted runs",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.Stats(cmd.Context())
	}),
}

var resultsCmd = &cobra.Command{
	Use:   "results",
	Short: "Manage the result history",
}

var resultsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Delete every saved result",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		yes, _ := cmd.Flags().GetBool("yes")
		return app.ClearResults(cmd.Context(), tui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), yes)
	}),
}

func init() {
	rootCmd.AddCommand(statsCmd, resultsCmd)
	resultsCmd.AddCommand(resultsClearCmd)

	resultsClearCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}
