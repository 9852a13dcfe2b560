package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/internal/presentation/tui"
	"github.com/aretw0/labexam/pkg/domain"
)

var gradeCmd = &cobra.Command{
	Use:   "grade [TASK-ID]",
	Short: "Grade one task of the saved run (the current one by default)",
	Args:  cobra.MaximumNArgs(1),
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		raw, _ := cmd.Flags().GetString("target")
		target, err := cli.ParseTarget(raw)
		if err != nil {
			return err
		}
		var id string
		if len(args) == 1 {
			id = args[0]
		}
		return app.Grade(cmd.Context(), id, target)
	}),
}

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Reboot both nodes and grade every task of the saved run",
	Long: `Reboots both nodes, waits for them to come back and grades every task of
the saved run. Ctrl+C cancels the run; grade requests already sent still
finish and are recorded.`,
	Args: cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.Submit(cmd.Context())
	}),
}

var rebootCmd = &cobra.Command{
	Use:       "reboot [node1|node2|both]",
	Short:     "Reboot lab nodes and wait for them",
	Args:      cobra.MaximumNArgs(1),
	ValidArgs: []string{"node1", "node2", "both"},
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		target := domain.TargetBoth
		if len(args) == 1 {
			t, err := cli.ParseTarget(args[0])
			if err != nil {
				return err
			}
			if t != "" {
				target = t
			}
		}
		yes, _ := cmd.Flags().GetBool("yes")
		return app.Reboot(cmd.Context(), target, tui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()), yes)
	}),
}

func init() {
	rootCmd.AddCommand(gradeCmd, submitCmd, rebootCmd)

	gradeCmd.Flags().StringP("target", "t", "", "node1, node2 or both (default: the task's node)")
	rebootCmd.Flags().BoolP("yes", "y", false, "do not ask for confirmation")
}
