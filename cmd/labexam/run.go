package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/internal/presentation/tui"
)

// interactive asks before replacing a saved run, starts a new one with start
// and hands over to the shell.
func interactive(start func(ctx context.Context, app *cli.App, args []string, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
	return withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		ctx := cmd.Context()
		tui.PrintBanner(cmd.OutOrStdout())
		banner, err := app.ResumeBanner(ctx)
		if err != nil {
			return err
		}
		if yes, _ := cmd.Flags().GetBool("yes"); banner != "" && !yes {
			fmt.Fprintln(cmd.OutOrStdout(), app.Palette.Warn(banner))
			ok, err := tui.NewPrompter(cmd.InOrStdin(), cmd.OutOrStdout()).Confirm("Discard it and start over?")
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Kept. Continue with 'labexam resume'.")
				return nil
			}
		}
		if err := start(ctx, app, args, cmd); err != nil {
			return err
		}
		return app.Shell(ctx)
	})
}

var practiceCmd = &cobra.Command{
	Use:   "practice [TASK-ID...]",
	Short: "Practise chosen tasks, or a whole category",
	RunE: interactive(func(ctx context.Context, app *cli.App, args []string, cmd *cobra.Command) error {
		category, _ := cmd.Flags().GetString("category")
		if len(args) == 0 && category == "" {
			return fmt.Errorf("name task ids or --category; see 'labexam tasks'")
		}
		var ids []string
		for _, a := range args {
			for _, id := range strings.Split(a, ",") {
				if id = strings.TrimSpace(id); id != "" {
					ids = append(ids, id)
				}
			}
		}
		return app.StartPractice(ctx, ids, category)
	}),
}

var quickCmd = &cobra.Command{
	Use:   "quick",
	Short: "Check the lab and practise every task",
	Args:  cobra.NoArgs,
	RunE: interactive(func(ctx context.Context, app *cli.App, args []string, cmd *cobra.Command) error {
		return app.StartQuick(ctx)
	}),
}

var examCmd = &cobra.Command{
	Use:   "exam",
	Short: "Start a timed exam over random tasks",
	Args:  cobra.NoArgs,
	RunE: interactive(func(ctx context.Context, app *cli.App, args []string, cmd *cobra.Command) error {
		count, _ := cmd.Flags().GetInt("count")
		return app.StartExam(ctx, count)
	}),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Continue the saved run",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		ctx := cmd.Context()
		banner, err := app.ResumeBanner(ctx)
		if err != nil {
			return err
		}
		if banner == "" {
			fmt.Fprintln(cmd.OutOrStdout(), "No saved session. Start one with practice, quick or exam.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), banner)
		if _, err := app.Bench.Resume(ctx); err != nil {
			return err
		}
		return app.Shell(ctx)
	}),
}

func init() {
	rootCmd.AddCommand(practiceCmd, quickCmd, examCmd, resumeCmd)

	for _, c := range []*cobra.Command{practiceCmd, quickCmd, examCmd} {
		c.Flags().BoolP("yes", "y", false, "replace a saved run without asking")
	}
	practiceCmd.Flags().StringP("category", "c", "", "practise every task of this category")
	examCmd.Flags().IntP("count", "n", 0, "number of tasks (default from exam.tasks)")
}
