package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/workflow"
)

var projectCmd = &cobra.Command{
	Use:     "project",
	Aliases: []string{"projects"},
	Short:   "Manage projects",
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	Args:  cobra.NoArgs,
	RunE:  runProjectList,
}

var projectShowCmd = &cobra.Command{
	Use:   "show <project>",
	Short: "Show a project's teams and assignments",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectShow,
}

var projectArchiveCmd = &cobra.Command{
	Use:   "archive <project>",
	Short: "Archive a project",
	Long: `Archive a project. Its teams and execution history are kept, but it
can no longer be edited or run.`,
	Args: cobra.ExactArgs(1),
	RunE: runProjectArchive,
}

var projectExportCmd = &cobra.Command{
	Use:   "export <project>",
	Short: "Print a project as a workflow document",
	Args:  cobra.ExactArgs(1),
	RunE:  runProjectExport,
}

var projectListAll bool

func init() {
	rootCmd.AddCommand(projectCmd)
	projectCmd.AddCommand(projectListCmd)
	projectCmd.AddCommand(projectShowCmd)
	projectCmd.AddCommand(projectArchiveCmd)
	projectCmd.AddCommand(projectExportCmd)

	projectListCmd.Flags().BoolVarP(&projectListAll, "all", "a", false, "Include archived projects")
}

func runProjectList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	projects, err := e.store.ListProjects(projectListAll)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(projects) == 0 {
		fmt.Fprintln(out, "No projects found.")
		fmt.Fprintln(out, "Run 'workcrew apply -f workflow.yaml' to create one.")
		return nil
	}

	for _, p := range projects {
		fmt.Fprintf(out, "%s  %s\n", styles.Primary.Render(p.Name), styles.Muted.Render(p.ID))
		fmt.Fprintf(out, "    Teams:   %d\n", len(p.TeamIDs))
		fmt.Fprintf(out, "    Status:  %s\n", p.Status)
		fmt.Fprintf(out, "    Updated: %s\n", p.UpdatedAt.Local().Format(time.RFC822))
	}
	return nil
}

func runProjectShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.store.FindProject(args[0])
	if err != nil {
		return err
	}
	printProject(cmd.OutOrStdout(), p)
	return nil
}

func printProject(out io.Writer, p model.Project) {
	fmt.Fprintln(out, strings.Repeat("─", 70))
	fmt.Fprintln(out, styles.Title.Render(p.Name))
	fmt.Fprintln(out, strings.Repeat("─", 70))
	fmt.Fprintf(out, "ID:     %s\n", p.ID)
	fmt.Fprintf(out, "Status: %s\n", p.Status)
	if p.Description != "" {
		fmt.Fprintf(out, "\n%s\n", p.Description)
	}

	for i, t := range p.OrderedTeams() {
		var flags []string
		if t.CheckpointEnabled {
			flags = append(flags, "checkpoint")
		}
		flags = append(flags, string(t.FailurePolicy))
		fmt.Fprintf(out, "\n%d. %s %s\n", i+1, styles.Primary.Render(t.Name), styles.Muted.Render("("+strings.Join(flags, ", ")+")"))
		for _, m := range t.Members {
			line := fmt.Sprintf("     p%d  %s", m.Priority, m.WorkerID)
			if m.ModelTier != "" {
				line += " [" + m.ModelTier + "]"
			}
			if !m.Active {
				line = styles.Muted.Render(line + " (inactive)")
			}
			fmt.Fprintln(out, line)
		}
	}
}

func runProjectArchive(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.store.FindProject(args[0])
	if err != nil {
		return err
	}
	if err := e.store.ArchiveProject(p.ID); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Archived project %s\n", p.Name)
	return nil
}

func runProjectExport(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	p, err := e.store.FindProject(args[0])
	if err != nil {
		return err
	}
	return workflow.Encode(cmd.OutOrStdout(), workflow.Export(p, e.store.Registry()))
}
