package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/Iron-Ham/workcrew/internal/cmd/styles"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/metrics"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/orchestrator"
	"github.com/Iron-Ham/workcrew/internal/util"
)

var runCmd = &cobra.Command{
	Use:   "run <project>",
	Short: "Run a project pipeline",
	Long: `Run every team of a project in order against a task.

The project is resolved by ID or by name. When stdin is a terminal, teams
with checkpoints enabled pause and prompt for a decision. Otherwise the
checkpoint is left to the configured timeout policy, or approved
immediately with --approve-all.

Examples:
  workcrew run "Market study" --task "Assess the EU e-bike market"
  workcrew run "Market study" --task "..." --resume 6f1c...`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

var (
	runTask       string
	runResume     string
	runApproveAll bool
	runQuiet      bool
)

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runTask, "task", "t", "", "Task the project works on (required)")
	runCmd.Flags().StringVar(&runResume, "resume", "", "Reuse completed teams of an earlier execution")
	runCmd.Flags().BoolVar(&runApproveAll, "approve-all", false, "Approve every checkpoint without prompting")
	runCmd.Flags().BoolVarP(&runQuiet, "quiet", "q", false, "Only print the final result")
	_ = runCmd.MarkFlagRequired("task")
}

func runRun(cmd *cobra.Command, args []string) error {
	e, err := openEnv()
	if err != nil {
		return err
	}
	defer e.close()

	project, err := e.store.FindProject(args[0])
	if err != nil {
		return err
	}

	b, err := newBackend(e.cfg.Backend)
	if err != nil {
		return err
	}

	bus := event.NewBus(e.logger)
	var collector *metrics.Collector
	if e.cfg.Metrics.Enabled {
		collector = metrics.New()
		collector.Attach(bus)
	}

	out := cmd.OutOrStdout()
	if !runQuiet {
		newProgress(out).attach(bus)
	}

	pending := make(chan event.CheckpointRequiredEvent, 1)
	bus.Subscribe(event.TypeCheckpointRequired, func(ev event.Event) {
		pending <- ev.(event.CheckpointRequiredEvent)
	})

	orch, err := newOrchestrator(e.cfg, e.store, b, bus.Sink(), e.logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []orchestrator.RunOption
	if runResume != "" {
		opts = append(opts, orchestrator.WithResumeFrom(runResume))
	}
	// The signal context only requests a cooperative stop; the run itself
	// keeps its context so the cancellation is recorded.
	h, err := orch.Start(context.WithoutCancel(ctx), project.ID, runTask, opts...)
	if err != nil {
		return err
	}

	interactive := !runApproveAll && isTerminal(cmd.InOrStdin())
	rv := newReviewer(orch.Gate(), cmd.InOrStdin(), out)
	teamNames := make(map[string]string, len(project.Teams))
	for _, t := range project.Teams {
		teamNames[t.ID] = t.Name
	}

	for {
		select {
		case ev := <-pending:
			cp, gerr := orch.Gate().Get(ev.CheckpointID)
			if gerr != nil {
				continue
			}
			switch {
			case runApproveAll:
				if _, err := orch.Gate().Approve(cp.ID); err != nil {
					e.logger.Warn("failed to approve checkpoint", "checkpoint_id", cp.ID, "error", err.Error())
				}
			case interactive:
				err := rv.review(ctx, cp, teamNames[cp.TeamID])
				switch {
				case err == nil:
				case ctx.Err() != nil:
					h.Cancel()
					ctx = context.Background()
				default:
					e.logger.Warn("checkpoint review ended", "checkpoint_id", cp.ID, "error", err.Error())
					interactive = false
				}
			default:
				fmt.Fprintln(out, styles.Muted.Render(fmt.Sprintf(
					"checkpoint %s for %s awaits a decision (on timeout: %s)",
					cp.ID, teamNames[cp.TeamID], e.cfg.Checkpoint.OnTimeout)))
			}
		case <-ctx.Done():
			h.Cancel()
			ctx = context.Background()
		case <-h.Done():
			exec, runErr := h.Wait()
			if collector != nil && e.cfg.Metrics.TextfilePath != "" {
				if err := collector.WriteTextfile(e.cfg.Metrics.TextfilePath); err != nil {
					e.logger.Warn("failed to write metrics textfile", "path", e.cfg.Metrics.TextfilePath, "error", err.Error())
				}
			}
			if exec != nil {
				printSummary(out, exec)
			}
			reportRunError(e.logger, out, args[0], exec, runErr)
			return runErr
		}
	}
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// progress prints run events as they happen. Workers of one group report
// concurrently, so writes are serialized.
type progress struct {
	mu  sync.Mutex
	out io.Writer
}

func newProgress(out io.Writer) *progress {
	return &progress{out: out}
}

func (p *progress) attach(bus *event.Bus) {
	bus.SubscribeAll(p.observe)
}

func (p *progress) observe(ev event.Event) {
	var line string
	switch e := ev.(type) {
	case event.ExecutionStartedEvent:
		line = styles.Title.Render(fmt.Sprintf("Execution %s (%d teams)", e.ExecutionID, e.Teams))
	case event.TeamStartedEvent:
		line = fmt.Sprintf("%s %s (%d groups, %d workers)", styles.Primary.Render("▶"), e.TeamName, e.Groups, e.Workers)
	case event.TeamCompletedEvent:
		suffix := e.Duration.Round(10 * time.Millisecond).String()
		if e.Reused {
			suffix = "reused"
		}
		line = fmt.Sprintf("%s %s %s", styles.Secondary.Render("✓"), e.TeamName, styles.Muted.Render(suffix))
	case event.TeamFailedEvent:
		line = fmt.Sprintf("%s %s: %s", styles.Error.Render("✗"), e.TeamName, util.Truncate(util.OneLine(e.Message), 200))
		if e.Continued {
			line += styles.Muted.Render(" (continuing)")
		}
	case event.TeamSkippedEvent:
		line = styles.Muted.Render(fmt.Sprintf("- %s skipped: %s", e.TeamName, e.Reason))
	case event.WorkerCompletedEvent:
		mark := styles.Secondary.Render("✓")
		if e.Status != model.WorkerCompleted {
			mark = styles.Error.Render("✗")
		}
		line = fmt.Sprintf("  %s %s %s", mark, e.WorkerID, styles.Muted.Render(fmt.Sprintf("[%s, %d attempts]", e.Tier, e.Attempts)))
	case event.CheckpointTimeoutEvent:
		line = styles.Warning.Render(fmt.Sprintf("! checkpoint timed out after %s (%s)", e.Waited.Round(time.Second), e.Action))
	case event.CapacityWarningEvent:
		line = styles.Warning.Render(fmt.Sprintf("! context at %.0f%% of capacity (%d/%d tokens)", e.Threshold*100, e.Used, e.Ceiling))
	default:
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

// reportRunError logs a failed run at the severity of its error and, when
// the run can be resumed, prints the command that does so.
func reportRunError(logger *logging.Logger, out io.Writer, project string, exec *model.ProjectExecution, err error) {
	if err == nil {
		return
	}
	args := []any{"error", err.Error(), "kind", errors.Kind(err)}
	if exec != nil {
		args = append(args, "execution_id", exec.ID)
	}
	switch errors.GetSeverity(err) {
	case errors.SeverityDebug, errors.SeverityInfo:
		logger.Info("run halted", args...)
	case errors.SeverityWarning:
		logger.Warn("run halted", args...)
	default:
		logger.Error("run failed", args...)
	}

	if exec != nil && errors.IsRecoverable(err) {
		fmt.Fprintf(out, "%s workcrew run %q --task %q --resume %s\n",
			styles.Label.Render("Resume:"), project, exec.Task, exec.ID)
	}
}

// printSummary prints the final status and the last contribution.
func printSummary(out io.Writer, exec *model.ProjectExecution) {
	fmt.Fprintln(out)
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Status:"), styles.Status(string(exec.Status)))
	fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Execution:"), exec.ID)
	fmt.Fprintf(out, "%s %d in / %d out\n", styles.Label.Render("Tokens:"), exec.Usage.InputTokens, exec.Usage.OutputTokens)
	if exec.Error != "" {
		fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Error:"), styles.Error.Render(exec.Error))
	}
	if !exec.LastGood.IsZero() && exec.Status != model.ExecutionCompleted {
		fmt.Fprintf(out, "%s %s\n", styles.Label.Render("Last good:"), boundaryString(exec.LastGood))
	}
	for _, w := range exec.Warnings {
		fmt.Fprintf(out, "%s %s\n", styles.Warning.Render("Warning:"), w)
	}

	if result := lastContribution(exec); result != "" {
		fmt.Fprintln(out)
		fmt.Fprintln(out, result)
	}
}

func lastContribution(exec *model.ProjectExecution) string {
	for i := len(exec.Teams) - 1; i >= 0; i-- {
		if t := exec.Teams[i]; t.Contributed {
			return strings.TrimSpace(t.Contribution)
		}
	}
	return ""
}

func boundaryString(b model.Boundary) string {
	if b.WorkerID != "" {
		return fmt.Sprintf("%s / %s", b.TeamName, b.WorkerID)
	}
	return b.TeamName
}
