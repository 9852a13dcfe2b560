package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/labexam/internal/cli"
	"github.com/aretw0/labexam/pkg/catalog"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List the task catalog",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		category, _ := cmd.Flags().GetString("category")
		search, _ := cmd.Flags().GetString("search")
		sortBy, _ := cmd.Flags().GetString("sort")
		return app.Tasks(cmd.Context(), catalog.Query{
			Category: category,
			Search:   search,
			Sort:     catalog.SortOrder(sortBy),
		})
	}),
}

var categoriesCmd = &cobra.Command{
	Use:   "categories",
	Short: "List task categories with their task counts",
	Args:  cobra.NoArgs,
	RunE: withApp(func(cmd *cobra.Command, args []string, app *cli.App) error {
		return app.Categories(cmd.Context())
	}),
}

func init() {
	rootCmd.AddCommand(tasksCmd, categoriesCmd)

	tasksCmd.Flags().StringP("category", "c", "", "only tasks of this category")
	tasksCmd.Flags().StringP("search", "s", "", "match id or description")
	tasksCmd.Flags().String("sort", string(catalog.SortByID), "order: id or category")
}
