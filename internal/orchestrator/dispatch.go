package orchestrator

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/invoke"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/plan"
)

// workerOutcome is the resolution of one step.
type workerOutcome struct {
	step plan.Step
	text string
	err  error
}

// dispatchGroup runs every step of g, at most GroupConcurrency at a time,
// and returns when all of them resolved. Outcomes are in step order.
func (r *run) dispatchGroup(ctx context.Context, stop <-chan struct{}, i int, g plan.Group, prior string) []workerOutcome {
	outcomes := make([]workerOutcome, len(g.Steps))
	p := pool.New().WithMaxGoroutines(r.o.cfg.GroupConcurrency)
	for j, step := range g.Steps {
		p.Go(func() {
			outcomes[j] = r.runWorker(ctx, stop, i, step, prior)
		})
	}
	p.Wait()
	return outcomes
}

// runWorker invokes one step and records it on team i. The worker record
// is persisted before its outcome is returned.
func (r *run) runWorker(ctx context.Context, stop <-chan struct{}, i int, step plan.Step, prior string) workerOutcome {
	tr := r.teams[i]
	out := workerOutcome{step: step}
	w := model.WorkerExecution{
		ID:              uuid.NewString(),
		TeamExecutionID: r.teamExecIDs[i],
		WorkerID:        step.WorkerID,
		Priority:        step.Priority,
		Attempts:        []model.Attempt{},
	}

	if stopped(ctx, stop) {
		w.Status = model.WorkerCancelled
		r.update(func(e *model.ProjectExecution) {
			e.Teams[i].Workers = append(e.Teams[i].Workers, w)
		})
		out.err = errors.ErrCanceled
		return out
	}

	prompt := r.compose(tr.plan, step, prior)
	started := r.o.now()
	w.Status = model.WorkerRunning
	w.Input = prompt
	w.StartedAt = timePtr(started)
	r.update(func(e *model.ProjectExecution) {
		e.Teams[i].Workers = append(e.Teams[i].Workers, w)
	})
	r.o.sink.Emit(event.NewWorkerStartedEvent(r.id, tr.team.ID, step.WorkerID, step.Priority))

	res, err := r.o.invoker.Invoke(ctx, invoke.Request{
		WorkerID:     step.WorkerID,
		Prompt:       prompt,
		TierOverride: step.TierOverride,
		Stop:         stop,
	})

	attempts := invoke.AttemptsOf(err)
	if err == nil {
		attempts = res.Attempts
	}
	for n, a := range attempts {
		r.o.sink.Emit(event.NewWorkerAttemptEvent(r.id, tr.team.ID, step.WorkerID, n+1, a))
	}

	now := r.o.now()
	var record model.WorkerExecution
	r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		wk := t.Worker(step.WorkerID)
		wk.Attempts = append([]model.Attempt{}, attempts...)
		wk.CompletedAt = timePtr(now)
		switch {
		case err == nil:
			wk.Status = model.WorkerCompleted
			wk.Tier = res.Tier
			wk.Output = res.Text
			wk.Usage = res.Usage
			t.Usage = t.Usage.Add(res.Usage)
			e.Usage = e.Usage.Add(res.Usage)
			e.LastGood = model.Boundary{TeamID: tr.team.ID, TeamName: tr.team.Name, WorkerID: step.WorkerID}
		case errors.Is(err, errors.ErrCanceled):
			wk.Status = model.WorkerCancelled
			wk.Error = err.Error()
		default:
			wk.Status = model.WorkerFailed
			wk.Error = err.Error()
		}
		if n := len(attempts); n > 0 && wk.Tier == "" {
			wk.Tier = attempts[n-1].Tier
		}
		record = wk.Clone()
	})
	r.o.sink.Emit(event.NewWorkerCompletedEvent(r.id, tr.team.ID, record))

	if err != nil {
		out.err = err
		return out
	}
	out.text = res.Text
	return out
}

// compose builds a worker prompt from its instruction, the task, the
// plan's learnings and the accumulated context.
func (r *run) compose(p *plan.Plan, step plan.Step, prior string) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(step.Prompt))
	b.WriteString("\n\n## Task\n")
	b.WriteString(r.task)
	if len(p.Learnings) > 0 {
		b.WriteString("\n\n## Learnings\n")
		for _, l := range p.Learnings {
			b.WriteString("- ")
			b.WriteString(l.Text)
			b.WriteString("\n")
		}
	}
	if strings.TrimSpace(prior) != "" {
		b.WriteString("\n\n## Context\n")
		b.WriteString(prior)
	}
	return b.String()
}
