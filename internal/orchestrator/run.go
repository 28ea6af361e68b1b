package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/plan"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// absentContribution marks a skip-policy team that failed in the shared
// context, so later workers see that the stage produced nothing.
const absentContribution = "(no contribution: team failed)"

const maxLearningRunes = 200

// teamRun is one team of a prepared run.
type teamRun struct {
	team model.Team
	plan *plan.Plan
	// reuse is the completed team execution of the run being resumed.
	reuse *model.TeamExecution
}

// run is the state of one project execution. The accumulated context is
// owned by the goroutine calling execute; the execution record is shared
// with worker goroutines and guarded by mu.
type run struct {
	o     *Orchestrator
	id    string
	task  string
	teams []teamRun
	// teamExecIDs are fixed at prepare time and read without the lock.
	teamExecIDs []string
	logger      *logging.Logger
	capacity    *capacityTracker

	shared       strings.Builder
	sharedTokens int
	taskTokens   int
	started      time.Time

	mu      sync.Mutex
	exec    model.ProjectExecution
	saveErr error
}

// prepare validates everything a run needs and persists the pending
// execution record. Nothing is written when it fails.
func (o *Orchestrator) prepare(projectID, task string, ro runOptions) (*run, error) {
	if strings.TrimSpace(task) == "" {
		return nil, errors.NewValidationError("task is required").WithField("task")
	}
	if err := store.ValidateText("task", task, store.MaxTaskLength); err != nil {
		return nil, err
	}
	p, err := o.store.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	if p.Status == model.ProjectArchived {
		return nil, errors.NewValidationError("project is archived").WithField("project").WithValue(p.Name)
	}
	teams := p.OrderedTeams()
	if len(teams) == 0 {
		return nil, errors.NewValidationError("project has no teams").WithField("teams").WithValue(p.Name)
	}

	var prev *model.ProjectExecution
	if ro.resumeFrom != "" {
		e, err := o.store.GetExecution(ro.resumeFrom)
		if err != nil {
			return nil, err
		}
		switch {
		case e.ProjectID != p.ID:
			return nil, errors.NewValidationError("execution belongs to another project").
				WithField("resume_from").WithValue(e.ID)
		case !e.Status.IsTerminal():
			return nil, errors.NewValidationError("execution is still in progress").
				WithField("resume_from").WithValue(e.ID)
		case e.Status == model.ExecutionCompleted:
			return nil, errors.NewValidationError("execution already completed").
				WithField("resume_from").WithValue(e.ID)
		}
		prev = &e
	}

	runs := make([]teamRun, len(teams))
	reusing := prev != nil
	for i, t := range teams {
		pl, err := o.builder.Build(t)
		if err != nil {
			return nil, errors.Wrapf(err, "team %q", t.Name)
		}
		runs[i] = teamRun{team: t, plan: pl}
		if !reusing {
			continue
		}
		if te := prev.TeamByTeamID(t.ID); te != nil && te.Status == model.TeamCompleted {
			c := te.Clone()
			runs[i].reuse = &c
		} else {
			reusing = false
		}
	}

	id := uuid.NewString()
	r := &run{
		o:          o,
		id:         id,
		task:       task,
		teams:      runs,
		logger:     o.logger.WithProject(p.ID).WithExecution(id),
		capacity:   newCapacityTracker(id, o.cfg.CapacityTokens, o.cfg.HaltRatio, o.sink),
		taskTokens: backend.EstimateTokens(task),
	}
	if r.capacity.Exceeds(r.taskTokens) {
		return nil, errors.NewCapacityExceededError(r.taskTokens, o.cfg.CapacityTokens)
	}

	r.exec = model.ProjectExecution{
		ID:        id,
		ProjectID: p.ID,
		Task:      task,
		Status:    model.ExecutionPending,
		Teams:     make([]model.TeamExecution, len(runs)),
	}
	if prev != nil {
		r.exec.ResumedFrom = prev.ID
	}
	r.teamExecIDs = make([]string, len(runs))
	for i, tr := range runs {
		r.teamExecIDs[i] = uuid.NewString()
		r.exec.Teams[i] = model.TeamExecution{
			ID:          r.teamExecIDs[i],
			ExecutionID: id,
			TeamID:      tr.team.ID,
			TeamName:    tr.team.Name,
			Status:      model.TeamPending,
			Workers:     []model.WorkerExecution{},
		}
	}
	if err := o.store.CreateExecution(r.exec); err != nil {
		return nil, err
	}
	return r, nil
}

// execute drives the prepared run to a terminal status.
func (r *run) execute(ctx context.Context, stop <-chan struct{}) (*model.ProjectExecution, error) {
	r.started = r.o.now()
	if err := r.update(func(e *model.ProjectExecution) {
		e.Status = model.ExecutionRunning
		e.StartedAt = timePtr(r.started)
	}); err != nil {
		return r.snapshot(), err
	}
	exec := r.snapshot()
	r.logger.Info("execution started", "teams", len(r.teams), "resumed_from", exec.ResumedFrom)
	r.o.sink.Emit(event.NewExecutionStartedEvent(r.id, exec.ProjectID, r.task, len(r.teams), exec.ResumedFrom))

	for i := range r.teams {
		if stopped(ctx, stop) {
			return r.cancel()
		}

		var err error
		if r.teams[i].reuse != nil {
			r.reuseTeam(i)
		} else {
			err = r.runTeam(ctx, stop, i)
		}
		if err == nil {
			err = r.persistErr()
		}
		if err == nil && r.capacity.Update(r.contextTokens("")) {
			err = errors.NewCapacityExceededError(r.capacity.Used(), r.capacity.Ceiling())
		}

		var denied *errors.CheckpointDeniedError
		switch {
		case err == nil:
			continue
		case errors.Is(err, errors.ErrCanceled):
			return r.cancel()
		case errors.As(err, &denied) && r.o.cfg.DenyPolicy == DenyPause:
			return r.pause(denied)
		default:
			return r.fail(err)
		}
	}
	return r.complete()
}

// runTeam executes one team. It returns nil when the run may continue,
// including after a failure under the skip policy.
func (r *run) runTeam(ctx context.Context, stop <-chan struct{}, i int) error {
	tr := r.teams[i]
	logger := r.logger.WithTeam(tr.team.ID)
	start := r.o.now()
	teamExecID := r.teamExecIDs[i]

	if err := r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		t.Status = model.TeamRunning
		t.StartedAt = timePtr(start)
	}); err != nil {
		return err
	}
	logger.Info("team started", "plan", tr.plan.String())
	r.o.sink.Emit(event.NewTeamStartedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name,
		len(tr.plan.Groups), tr.plan.Size()))

	var local strings.Builder
	for _, g := range tr.plan.Groups {
		if stopped(ctx, stop) {
			r.closeTeam(i, model.TeamFailed, "cancelled", start)
			return errors.ErrCanceled
		}

		outcomes := r.dispatchGroup(ctx, stop, i, g, joinSections(r.shared.String(), local.String()))
		var (
			failure   error
			cancelled bool
		)
		for _, out := range outcomes {
			switch {
			case out.err == nil:
				writeSection(&local, out.step.Label, out.text)
			case errors.Is(out.err, errors.ErrCanceled):
				cancelled = true
			case failure == nil:
				failure = out.err
			}
		}
		if err := r.persistErr(); err != nil {
			return err
		}
		if failure != nil {
			return r.failTeam(i, failure, start)
		}
		if cancelled {
			r.closeTeam(i, model.TeamFailed, "cancelled", start)
			return errors.ErrCanceled
		}
		if r.capacity.Update(r.contextTokens(local.String())) {
			err := errors.NewCapacityExceededError(r.capacity.Used(), r.capacity.Ceiling())
			r.closeTeam(i, model.TeamFailed, err.Error(), start)
			r.o.sink.Emit(event.NewTeamFailedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name, err.Error(), false))
			return err
		}
	}

	output := local.String()
	r.update(func(e *model.ProjectExecution) { e.Teams[i].Output = output })

	contribution := output
	if tr.team.CheckpointEnabled {
		text, err := r.awaitCheckpoint(ctx, stop, i, output, start)
		if err != nil {
			return err
		}
		contribution = text
	}

	r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		t.Contribution = contribution
		t.Contributed = true
		e.LastGood = model.Boundary{TeamID: tr.team.ID, TeamName: tr.team.Name}
	})
	r.closeTeam(i, model.TeamCompleted, "", start)
	r.appendShared(tr.team.Name, contribution)

	logger.Info("team completed", "duration", r.o.now().Sub(start).String())
	r.o.sink.Emit(event.NewTeamCompletedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name, r.o.now().Sub(start), false))
	return nil
}

// awaitCheckpoint freezes output behind the gate and blocks until it is
// resolved. It returns the text to pass downstream.
func (r *run) awaitCheckpoint(ctx context.Context, stop <-chan struct{}, i int, output string, start time.Time) (string, error) {
	tr := r.teams[i]
	teamExecID := r.teamExecIDs[i]

	if err := r.update(func(e *model.ProjectExecution) {
		e.Teams[i].Status = model.TeamAwaitingCheckpoint
	}); err != nil {
		return "", err
	}
	cp, err := r.o.gate.Open(teamExecID, tr.team.ID, output)
	if err != nil {
		return "", err
	}
	r.setCheckpoint(i, cp)
	r.logger.Info("awaiting checkpoint", "team_id", tr.team.ID, "checkpoint_id", cp.ID)

	res, waitErr := r.o.gate.Wait(ctx, cp.ID, stop)
	if final, err := r.o.gate.Get(cp.ID); err == nil {
		r.setCheckpoint(i, final)
	}
	r.o.gate.Forget(cp.ID)

	if waitErr != nil {
		msg := waitErr.Error()
		if errors.Is(waitErr, errors.ErrCanceled) {
			msg = "cancelled at checkpoint"
		}
		r.closeTeam(i, model.TeamFailed, msg, start)
		return "", waitErr
	}
	if res.Status == model.CheckpointDenied {
		msg := "checkpoint denied: " + res.Reason
		r.closeTeam(i, model.TeamFailed, msg, start)
		r.o.sink.Emit(event.NewTeamFailedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name, msg, false))
		return "", errors.NewCheckpointDeniedError(tr.team.ID, res.Reason)
	}
	return res.Contribution, nil
}

// failTeam records a worker failure. Under the skip policy the run goes on
// with an explicit empty contribution and a retained warning.
func (r *run) failTeam(i int, cause error, start time.Time) error {
	tr := r.teams[i]
	teamExecID := r.teamExecIDs[i]
	msg := cause.Error()
	logger := r.logger.WithTeam(tr.team.ID)

	if tr.team.FailurePolicy != model.FailureSkip {
		r.closeTeam(i, model.TeamFailed, msg, start)
		logger.Error("team failed", "error", msg)
		r.o.sink.Emit(event.NewTeamFailedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name, msg, false))
		return cause
	}

	warning := fmt.Sprintf("team %q failed and contributed nothing: %s", tr.team.Name, msg)
	r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		t.Contributed = false
		t.Contribution = ""
		t.Warnings = append(t.Warnings, warning)
		e.Warnings = append(e.Warnings, warning)
	})
	r.closeTeam(i, model.TeamFailed, msg, start)
	r.appendShared(tr.team.Name, absentContribution)

	logger.Warn("team failed, continuing under skip policy", "error", msg)
	r.o.sink.Emit(event.NewTeamFailedEvent(r.id, teamExecID, tr.team.ID, tr.team.Name, msg, true))
	return nil
}

// reuseTeam carries a completed team of the resumed execution over.
func (r *run) reuseTeam(i int) {
	tr := r.teams[i]
	prev := tr.reuse
	source := prev.ExecutionID
	if prev.ReusedFrom != "" {
		source = prev.ReusedFrom
	}
	now := r.o.now()
	r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		t.Status = model.TeamCompleted
		t.Output = prev.Output
		t.Contribution = prev.Contribution
		t.Contributed = prev.Contributed
		t.ReusedFrom = source
		t.StartedAt = timePtr(now)
		t.CompletedAt = timePtr(now)
		e.LastGood = model.Boundary{TeamID: tr.team.ID, TeamName: tr.team.Name}
	})
	if prev.Contributed {
		r.appendShared(tr.team.Name, prev.Contribution)
	}
	r.logger.Info("team reused", "team_id", tr.team.ID, "source", source)
	r.o.sink.Emit(event.NewTeamCompletedEvent(r.id, r.teamExecIDs[i], tr.team.ID, tr.team.Name, 0, true))
}

// closeTeam moves team i to a terminal status.
func (r *run) closeTeam(i int, status model.TeamStatus, message string, start time.Time) {
	now := r.o.now()
	r.update(func(e *model.ProjectExecution) {
		t := &e.Teams[i]
		t.Status = status
		t.Error = message
		t.CompletedAt = timePtr(now)
		t.DurationMillis = now.Sub(start).Milliseconds()
	})
}

func (r *run) setCheckpoint(i int, cp model.Checkpoint) {
	r.update(func(e *model.ProjectExecution) {
		c := cp
		e.Teams[i].Checkpoint = &c
	})
}

// complete finishes a successful run and files its learnings.
func (r *run) complete() (*model.ProjectExecution, error) {
	now := r.o.now()
	if err := r.update(func(e *model.ProjectExecution) {
		e.Status = model.ExecutionCompleted
		e.CompletedAt = timePtr(now)
	}); err != nil {
		return r.snapshot(), err
	}
	exec := r.snapshot()
	r.logger.Info("execution completed",
		"duration", now.Sub(r.started).String(),
		"input_tokens", exec.Usage.InputTokens,
		"output_tokens", exec.Usage.OutputTokens)
	r.o.sink.Emit(event.NewExecutionCompletedEvent(exec.ID, exec.Usage, now.Sub(r.started)))
	r.recordLearnings(exec)
	return exec, nil
}

// fail finishes the run as failed. Teams not yet started are skipped.
func (r *run) fail(cause error) (*model.ProjectExecution, error) {
	lastGood := r.snapshot().LastGood
	var capacity *errors.CapacityExceededError
	if errors.As(cause, &capacity) {
		capacity.WithLastGood(lastGood)
	}
	var denied *errors.CheckpointDeniedError
	if errors.As(cause, &denied) {
		denied.WithLastGood(lastGood)
	}

	r.skipRemaining("execution failed")
	now := r.o.now()
	r.update(func(e *model.ProjectExecution) {
		e.Status = model.ExecutionFailed
		e.Error = cause.Error()
		e.ErrorKind = errors.Kind(cause)
		e.CompletedAt = timePtr(now)
	})
	r.logger.Error("execution failed", "kind", errors.Kind(cause), "error", cause.Error(),
		"last_good_team", lastGood.TeamName)
	r.o.sink.Emit(event.NewExecutionFailedEvent(r.id, errors.Kind(cause), cause.Error(), lastGood))
	return r.snapshot(), cause
}

// cancel finishes a run whose cancellation was observed.
func (r *run) cancel() (*model.ProjectExecution, error) {
	lastGood := r.snapshot().LastGood
	r.skipRemaining("cancelled")
	now := r.o.now()
	r.update(func(e *model.ProjectExecution) {
		e.Status = model.ExecutionCancelled
		e.ErrorKind = errors.Kind(errors.ErrCanceled)
		e.CompletedAt = timePtr(now)
	})
	r.logger.Info("execution cancelled", "last_good_team", lastGood.TeamName)
	r.o.sink.Emit(event.NewExecutionCancelledEvent(r.id, lastGood))
	return r.snapshot(), fmt.Errorf("execution %s: %w", r.id, errors.ErrCanceled)
}

// pause finishes a run stopped by a denial under the pause policy.
func (r *run) pause(denied *errors.CheckpointDeniedError) (*model.ProjectExecution, error) {
	lastGood := r.snapshot().LastGood
	denied.WithLastGood(lastGood)
	r.skipRemaining("paused after checkpoint denial")
	now := r.o.now()
	r.update(func(e *model.ProjectExecution) {
		e.Status = model.ExecutionPaused
		e.Error = denied.Error()
		e.ErrorKind = errors.Kind(denied)
		e.CompletedAt = timePtr(now)
	})
	r.logger.Info("execution paused", "team_id", denied.TeamID, "reason", denied.Reason)
	r.o.sink.Emit(event.NewExecutionPausedEvent(r.id, denied.TeamID, denied.Reason, lastGood))
	return r.snapshot(), denied
}

// skipRemaining marks every team that never started as skipped.
func (r *run) skipRemaining(reason string) {
	var skipped []model.TeamExecution
	r.update(func(e *model.ProjectExecution) {
		for i := range e.Teams {
			if e.Teams[i].Status == model.TeamPending {
				e.Teams[i].Status = model.TeamSkipped
				e.Teams[i].Error = reason
				skipped = append(skipped, e.Teams[i])
			}
		}
	})
	for _, t := range skipped {
		r.o.sink.Emit(event.NewTeamSkippedEvent(r.id, t.ID, t.TeamID, t.TeamName, reason))
	}
}

// recordLearnings files the first line of each contribution made by this
// run under the project's key and the domain key of every worker category
// in the team. Failures are logged only.
func (r *run) recordLearnings(exec *model.ProjectExecution) {
	if r.o.cfg.Learnings == nil {
		return
	}
	for i, t := range exec.Teams {
		if !t.Contributed || t.ReusedFrom != "" {
			continue
		}
		text := firstLine(t.Contribution)
		if text == "" {
			continue
		}
		keys := []string{memory.ProjectKey(exec.ProjectID)}
		for _, c := range r.teams[i].plan.Categories() {
			keys = append(keys, memory.DomainKey(c))
		}
		for _, key := range keys {
			err := r.o.cfg.Learnings.AppendLearning(memory.Entry{
				Key:         key,
				Text:        t.TeamName + ": " + text,
				ExecutionID: exec.ID,
				TeamID:      t.TeamID,
				CreatedAt:   r.o.now(),
			})
			if err != nil {
				r.logger.Warn("failed to record learning", "team_id", t.TeamID, "key", key, "error", err.Error())
			}
		}
	}
}

// update applies fn to the execution record and persists it. Saves are
// serialized so the store never sees an older snapshot after a newer one.
func (r *run) update(fn func(e *model.ProjectExecution)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(&r.exec)
	if err := r.o.store.SaveExecution(r.exec); err != nil {
		if r.saveErr == nil {
			r.saveErr = err
		}
		r.logger.Error("failed to persist execution", "error", err.Error())
		return err
	}
	return nil
}

func (r *run) persistErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.saveErr
}

func (r *run) snapshot() *model.ProjectExecution {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := r.exec.Clone()
	return &c
}

func (r *run) appendShared(teamName, contribution string) {
	before := r.shared.Len()
	writeSection(&r.shared, teamName, contribution)
	r.sharedTokens += backend.EstimateTokens(r.shared.String()[before:])
}

// contextTokens estimates the accumulated context including local, the
// team-local context of the team in progress.
func (r *run) contextTokens(local string) int {
	return r.taskTokens + r.sharedTokens + backend.EstimateTokens(local)
}

// writeSection appends text under a [title] header. The text is kept
// verbatim; only the header and the blank line before it are added.
func writeSection(b *strings.Builder, title, text string) {
	sectionBreak(b)
	b.WriteString("[")
	b.WriteString(title)
	b.WriteString("]\n")
	b.WriteString(text)
}

func sectionBreak(b *strings.Builder) {
	if b.Len() == 0 {
		return
	}
	if !strings.HasSuffix(b.String(), "\n") {
		b.WriteString("\n")
	}
	b.WriteString("\n")
}

// joinSections concatenates the shared context and a team-local one.
func joinSections(shared, local string) string {
	if shared == "" || local == "" {
		return shared + local
	}
	var b strings.Builder
	b.WriteString(shared)
	sectionBreak(&b)
	b.WriteString(local)
	return b.String()
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || (strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]")) {
			continue
		}
		if r := []rune(line); len(r) > maxLearningRunes {
			line = string(r[:maxLearningRunes])
		}
		return line
	}
	return ""
}

func stopped(ctx context.Context, stop <-chan struct{}) bool {
	select {
	case <-stop:
		return true
	case <-ctx.Done():
		return true
	default:
		return false
	}
}

func timePtr(t time.Time) *time.Time { return &t }
