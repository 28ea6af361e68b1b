package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/workflow"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Create or update a project from a workflow file",
	Long: `Apply a workflow document to the store.

A project with the same name is updated in place: teams are matched by name,
new teams are created and the stored order follows the document. Teams the
document no longer lists are kept unless --prune is given.

Examples:
  workcrew apply -f workflow.yaml
  cat workflow.yaml | workcrew apply -f -`,
	Args: cobra.NoArgs,
	RunE: runApply,
}

var (
	applyFile  string
	applyPrune bool
)

func init() {
	rootCmd.AddCommand(applyCmd)

	applyCmd.Flags().StringVarP(&applyFile, "file", "f", "", "Workflow file, or - for stdin (required)")
	applyCmd.Flags().BoolVar(&applyPrune, "prune", false, "Delete teams the document no longer lists")
	_ = applyCmd.MarkFlagRequired("file")
}

func runApply(cmd *cobra.Command, args []string) error {
	var (
		def *workflow.Definition
		err error
	)
	if applyFile == "-" {
		def, err = workflow.Parse(cmd.InOrStdin())
	} else {
		if _, statErr := os.Stat(applyFile); statErr != nil {
			return fmt.Errorf("workflow file not found: %w", statErr)
		}
		def, err = workflow.ParseFile(applyFile)
	}
	if err != nil {
		return err
	}

	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	res, err := workflow.Apply(e.store, def, workflow.ApplyOptions{Prune: applyPrune, Logger: e.logger})
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verb := "Updated"
	if res.ProjectCreated {
		verb = "Created"
	}
	fmt.Fprintf(out, "%s project %s (%s)\n", verb, styles.Primary.Render(def.Project.Name), res.ProjectID)
	for _, change := range []struct {
		label string
		names []string
	}{
		{"workers registered", res.WorkersAdded},
		{"teams created", res.TeamsCreated},
		{"teams updated", res.TeamsUpdated},
		{"teams removed", res.TeamsRemoved},
	} {
		if len(change.names) > 0 {
			fmt.Fprintf(out, "  %s: %s\n", change.label, strings.Join(change.names, ", "))
		}
	}
	return nil
}
