package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/internal/presentation/tui"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the lab configuration and local settings",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.ConfigShow(cmd.Context())
	}),
}

var configSetCmd = &cobra.Command{
	Use:   "set",
	Short: "Enter the node names, addresses and root password",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.ConfigSet(cmd.Context(), tui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()))
	}),
}

var configTestCmd = &cobra.Command{
	Use:   "test",
	Short: "Check that both nodes are reachable",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.ConfigTest(cmd.Context())
	}),
}

var configDiscoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "Let the backend find the node addresses and save them",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.ConfigDiscover(cmd.Context())
	}),
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configSetCmd, configTestCmd, configDiscoverCmd)
}
