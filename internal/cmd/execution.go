package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/util"
)

var executionCmd = &cobra.Command{
	Use:     "execution",
	Aliases: []string{"executions", "exec"},
	Short:   "Inspect project executions",
}

var executionListCmd = &cobra.Command{
	Use:   "list [project]",
	Short: "List executions, most recent first",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExecutionList,
}

var executionShowCmd = &cobra.Command{
	Use:   "show <execution>",
	Short: "Show an execution's teams, workers and checkpoints",
	Args:  cobra.ExactArgs(1),
	RunE:  runExecutionShow,
}

var (
	executionListLimit int
	executionShowFull  bool
)

func init() {
	rootCmd.AddCommand(executionCmd)
	executionCmd.AddCommand(executionListCmd)
	executionCmd.AddCommand(executionShowCmd)

	executionListCmd.Flags().IntVarP(&executionListLimit, "limit", "n", 20, "Number of executions to show (0 for all)")
	executionShowCmd.Flags().BoolVar(&executionShowFull, "output", false, "Print each team's output")
}

func runExecutionList(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	projectID := ""
	if len(args) == 1 {
		p, err := e.store.FindProject(args[0])
		if err != nil {
			return err
		}
		projectID = p.ID
	}

	execs, err := e.store.ListExecutions(projectID)
	if err != nil {
		return err
	}
	sort.SliceStable(execs, func(i, j int) bool {
		return startedAt(execs[i]).After(startedAt(execs[j]))
	})
	if executionListLimit > 0 && len(execs) > executionListLimit {
		execs = execs[:executionListLimit]
	}

	out := cmd.OutOrStdout()
	if len(execs) == 0 {
		fmt.Fprintln(out, "No executions found.")
		return nil
	}
	for _, x := range execs {
		done := 0
		for _, t := range x.Teams {
			if t.Status == model.TeamCompleted {
				done++
			}
		}
		fmt.Fprintf(out, "%s  %d/%d teams  %s  %s\n",
			x.ID, done, len(x.Teams), util.Truncate(util.OneLine(x.Task), 50), styles.Status(string(x.Status)))
	}
	return nil
}

func startedAt(x model.ProjectExecution) time.Time {
	if x.StartedAt != nil {
		return *x.StartedAt
	}
	return time.Time{}
}

func runExecutionShow(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	x, err := e.store.GetExecution(args[0])
	if err != nil {
		return err
	}
	printExecution(cmd.OutOrStdout(), x, executionShowFull)
	return nil
}

func printExecution(out io.Writer, x model.ProjectExecution, withOutput bool) {
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Execution:"), x.ID)
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Status:"), styles.Status(string(x.Status)))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Task:"), x.Task)
	if x.ResumedFrom != "" {
		fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Resumed from:"), x.ResumedFrom)
	}
	if x.Error != "" {
		fmt.Fprintf(out, "%s %s (%s)\n", styles.Label.Render("Error:"), x.Error, x.ErrorKind)
	}
	if !x.LastGood.IsZero() {
		fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Last good:"), boundaryString(x.LastGood))
	}
	fmt.Fprintf(out, "%s %d in / %d out\n", styles.Label.Render("Tokens:"), x.Usage.InputTokens, x.Usage.OutputTokens)

	for _, t := range x.Teams {
		fmt.Fprintf(out, "\n%s  %s", styles.Primary.Render(t.TeamName), styles.Status(string(t.Status)))
		if t.ReusedFrom != "" {
			fmt.Fprint(out, styles.Muted.Render("  reused from "+t.ReusedFrom))
		}
		fmt.Fprintln(out)
		for _, w := range t.Workers {
			tiers := make([]string, len(w.Attempts))
			for i, a := range w.Attempts {
				tiers[i] = fmt.Sprintf("%s:%s", a.Tier, a.Outcome)
			}
			fmt.Fprintf(out, "    p%d %-14s %-9s %s\n", w.Priority, w.WorkerID, w.Status, styles.Muted.Render(strings.Join(tiers, " → ")))
			if w.Error != "" {
				fmt.Fprintf(out, "       %s\n", styles.Error.Render(w.Error))
			}
		}
		if cp := t.Checkpoint; cp != nil {
			line := fmt.Sprintf("    checkpoint %s", cp.Status)
			if cp.Reason != "" {
				line += ": " + cp.Reason
			}
			if cp.AutoApplied {
				line += " (timeout)"
			}
			fmt.Fprintln(out, line)
		}
		if t.Error != "" {
			fmt.Fprintf(out, "    %s\n", styles.Error.Render(t.Error))
		}
		for _, w := range t.Warnings {
			fmt.Fprintf(out, "    %s %s\n", styles.Warning.Render("warning:"), w)
		}
		if withOutput && t.Contributed {
			fmt.Fprintln(out, styles.OutputBox.Render(strings.TrimSpace(t.Contribution)))
		}
	}
}
