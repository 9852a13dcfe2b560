package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Show the saved run",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.SessionShow(cmd.Context())
	}),
}

var sessionClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Discard the saved run",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.SessionClear(cmd.Context())
	}),
}

func init() {
	rootCmd.AddCommand(sessionCmd)
	sessionCmd.AddCommand(sessionClearCmd)
}
