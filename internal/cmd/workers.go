package cmd

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/registry"
)

var workersCmd = &cobra.Command{
	Use:   "workers",
	Short: "List the registered workers",
	Long: `List the built-in workers and the custom workers registered through
workflow documents, grouped by category.`,
	Args: cobra.NoArgs,
	RunE: runWorkers,
}

var (
	workersCategory string
	workersCustom   bool
)

func init() {
	rootCmd.AddCommand(workersCmd)

	workersCmd.Flags().StringVar(&workersCategory, "category", "", "Only list one category")
	workersCmd.Flags().BoolVar(&workersCustom, "custom", false, "Only list custom workers")
}

func runWorkers(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	reg := e.store.Registry()
	var workers []registry.Worker
	switch {
	case workersCustom:
		workers = slices.DeleteFunc(reg.Custom(), func(w registry.Worker) bool {
			return workersCategory != "" && w.Category != workersCategory
		})
	case workersCategory != "":
		workers = reg.ByCategory(workersCategory)
	default:
		workers = reg.List()
	}

	out := cmd.OutOrStdout()
	if len(workers) == 0 {
		fmt.Fprintln(out, "No workers found.")
		return nil
	}

	category := ""
	for _, w := range workers {
		if w.Category != category {
			category = w.Category
			fmt.Fprintf(out, "\n%s\n", styles.Title.Render(category))
		}
		kind := "custom"
		if w.Builtin {
			kind = "builtin"
		}
		fmt.Fprintf(out, "  %-16s %-20s %s\n", w.ID, w.Label, styles.Muted.Render(kind))
	}
	return nil
}
