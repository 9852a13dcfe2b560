package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/internal/config"
)

var (
	flags    *config.Flags
	settings *config.Settings
)

var rootCmd = &cobra.Command{
	Use:   "labexam",
	Short: "labexam is a practice and exam workbench for a two-node Linux lab",
	Long: `labexam drives a lab backend that manages two virtual machines. Pick tasks,
work on the VMs, grade single tasks on demand, then submit the run: both
nodes are rebooted and every task is graded to prove the configuration
survives a restart.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		home, _ := os.UserHomeDir()
		s, err := config.Load(config.Options{
			File:   flags.ConfigFile,
			Home:   home,
			DotEnv: []string{".env"},
		})
		if err != nil {
			return err
		}
		flags.Apply(cmd.Flags(), s)
		settings = s
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	ctx := cli.NewSignalContext(context.Background())
	defer ctx.Cancel()

	err := rootCmd.ExecuteContext(ctx)
	if err = cli.HandleExecutionError(err); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
	if sig := ctx.Signal(); sig != nil {
		os.Exit(130)
	}
}

func init() {
	flags = config.Register(rootCmd.PersistentFlags())
}

// newApp builds the application for one command invocation.
func newApp(cmd *cobra.Command) (*cli.App, error) {
	return cli.NewApp(cmd.Context(), settings, cli.WithIO(cmd.InOrStdin(), cmd.OutOrStdout()))
}

// withApp runs fn against a freshly built application and closes it after.
func withApp(fn func(cmd *cobra.Command, args []string, app *cli.App) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(cmd, args, app)
	}
}
