package orchestrator

import (
	"context"
	stderrors "errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/checkpoint"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/invoke"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/store"
)

type recorder struct {
	mu     sync.Mutex
	events []event.Event
	hooks  map[string]func(event.Event)
}

func newRecorder() *recorder {
	return &recorder{hooks: make(map[string]func(event.Event))}
}

func (r *recorder) on(eventType string, fn func(event.Event)) {
	r.mu.Lock()
	r.hooks[eventType] = fn
	r.mu.Unlock()
}

func (r *recorder) sink() event.Sink {
	return func(e event.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		hook := r.hooks[e.EventType()]
		r.mu.Unlock()
		if hook != nil {
			hook(e)
		}
	}
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func (r *recorder) count(eventType string) int {
	n := 0
	for _, t := range r.types() {
		if t == eventType {
			n++
		}
	}
	return n
}

func member(workerID string, priority int) model.TeamMember {
	return model.TeamMember{WorkerID: workerID, Priority: priority, CustomPrompt: "do:" + workerID, Active: true}
}

func workerOf(prompt string) string {
	first, _, _ := strings.Cut(prompt, "\n")
	return strings.TrimPrefix(first, "do:")
}

type reply func(tier string) (string, error)

// routed answers each worker by the handler registered for it, and with
// "out-<worker>" otherwise.
func routed(handlers map[string]reply) backend.Func {
	return func(ctx context.Context, tier, prompt string) (backend.Response, error) {
		w := workerOf(prompt)
		if h, ok := handlers[w]; ok {
			text, err := h(tier)
			if err != nil {
				return backend.Response{}, err
			}
			return backend.Response{Text: text}, nil
		}
		return backend.Response{Text: "out-" + w}, nil
	}
}

// promptLog records every prompt received, per worker.
type promptLog struct {
	mu      sync.Mutex
	prompts map[string][]string
}

func (l *promptLog) wrap(b backend.Backend) backend.Func {
	l.prompts = make(map[string][]string)
	return func(ctx context.Context, tier, prompt string) (backend.Response, error) {
		l.mu.Lock()
		w := workerOf(prompt)
		l.prompts[w] = append(l.prompts[w], prompt)
		l.mu.Unlock()
		return b.Call(ctx, tier, prompt)
	}
}

func (l *promptLog) get(workerID string) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.prompts[workerID]...)
}

type fixture struct {
	store   *store.Store
	orch    *Orchestrator
	gate    *checkpoint.Gate
	events  *recorder
	project model.Project
	teams   []model.Team
}

func newFixture(t *testing.T, b backend.Backend, specs []store.TeamSpec, mutate func(*Config)) *fixture {
	t.Helper()
	st, err := store.Open(store.Options{Root: t.TempDir(), Location: "state.json"})
	require.NoError(t, err)
	t.Cleanup(st.Close)

	p, err := st.CreateProject("Brief", "")
	require.NoError(t, err)
	var teams []model.Team
	for _, spec := range specs {
		team, err := st.CreateTeam(p.ID, spec)
		require.NoError(t, err)
		teams = append(teams, team)
	}

	inv, err := invoke.New(b, invoke.Policy{Tiers: []string{"large", "medium", "small"}, MaxRetries: 3})
	require.NoError(t, err)

	rec := newRecorder()
	gate := checkpoint.NewGate(rec.sink())
	cfg := Config{
		Store:            st,
		Invoker:          inv,
		Gate:             gate,
		Sink:             rec.sink(),
		GroupConcurrency: 2,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	orch, err := New(cfg)
	require.NoError(t, err)

	return &fixture{store: st, orch: orch, gate: gate, events: rec, project: p, teams: teams}
}

func (f *fixture) stored(t *testing.T, id string) model.ProjectExecution {
	t.Helper()
	e, err := f.store.GetExecution(id)
	require.NoError(t, err)
	return e
}

func TestRun_PriorityGroupsResolveInOrder(t *testing.T) {
	var (
		mu  sync.Mutex
		log []string
	)
	b := backend.Func(func(ctx context.Context, tier, prompt string) (backend.Response, error) {
		w := workerOf(prompt)
		mu.Lock()
		log = append(log, "start:"+w)
		mu.Unlock()
		if w != "analyst" {
			time.Sleep(20 * time.Millisecond)
		}
		mu.Lock()
		log = append(log, "end:"+w)
		mu.Unlock()
		return backend.Response{Text: "out-" + w}, nil
	})

	f := newFixture(t, b, []store.TeamSpec{{
		Name: "Research",
		Members: []model.TeamMember{
			member("researcher", 1),
			member("fact_checker", 1),
			member("analyst", 2),
		},
	}}, nil)

	exec, err := f.orch.Run(context.Background(), f.project.ID, "Assess the market")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)

	mu.Lock()
	defer mu.Unlock()
	startAnalyst := slices.Index(log, "start:analyst")
	require.NotEqual(t, -1, startAnalyst)
	assert.Greater(t, startAnalyst, slices.Index(log, "end:researcher"))
	assert.Greater(t, startAnalyst, slices.Index(log, "end:fact_checker"))

	team := exec.Teams[0]
	assert.Equal(t, model.TeamCompleted, team.Status)
	assert.Equal(t, "[Researcher]\nout-researcher\n\n[Fact Checker]\nout-fact_checker\n\n[Analyst]\nout-analyst", team.Output)

	analyst := team.Worker("analyst")
	require.NotNil(t, analyst)
	assert.Contains(t, analyst.Input, "out-researcher")
	assert.Less(t, strings.Index(analyst.Input, "out-researcher"), strings.Index(analyst.Input, "out-fact_checker"))
}

func TestRun_CompletesAndPersists(t *testing.T) {
	var prompts promptLog
	b := prompts.wrap(routed(nil))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
	}, nil)

	exec, err := f.orch.Run(context.Background(), f.project.ID, "Assess the market")
	require.NoError(t, err)

	assert.Equal(t, model.ExecutionCompleted, exec.Status)
	require.NotNil(t, exec.StartedAt)
	require.NotNil(t, exec.CompletedAt)
	require.Len(t, exec.Teams, 2)
	for _, te := range exec.Teams {
		assert.Equal(t, model.TeamCompleted, te.Status)
		assert.True(t, te.Contributed)
		require.Len(t, te.Workers, 1)
		assert.Equal(t, model.WorkerCompleted, te.Workers[0].Status)
		assert.Equal(t, "large", te.Workers[0].Tier)
		assert.Len(t, te.Workers[0].Attempts, 1)
	}
	assert.Equal(t, model.Boundary{TeamID: f.teams[1].ID, TeamName: "Writing"}, exec.LastGood)

	writer := prompts.get("writer")
	require.Len(t, writer, 1)
	assert.Contains(t, writer[0], "## Task\nAssess the market")
	assert.Contains(t, writer[0], "[Research]\n[Researcher]\nout-researcher")

	assert.Equal(t, *exec, f.stored(t, exec.ID))

	assert.Equal(t, []string{
		event.TypeExecutionStarted,
		event.TypeTeamStarted,
		event.TypeWorkerStarted,
		event.TypeWorkerAttempt,
		event.TypeWorkerCompleted,
		event.TypeTeamCompleted,
		event.TypeTeamStarted,
		event.TypeWorkerStarted,
		event.TypeWorkerAttempt,
		event.TypeWorkerCompleted,
		event.TypeTeamCompleted,
		event.TypeExecutionCompleted,
	}, f.events.types())

	learnings, err := f.store.Learnings(memory.ProjectKey(f.project.ID), 0)
	require.NoError(t, err)
	require.Len(t, learnings, 2)
	assert.Equal(t, "Research: out-researcher", learnings[0].Text)
	assert.Equal(t, exec.ID, learnings[0].ExecutionID)
}

func TestRun_LearningsReachLaterRuns(t *testing.T) {
	var prompts promptLog
	f := newFixture(t, prompts.wrap(routed(nil)), []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
	}, nil)

	_, err := f.orch.Run(context.Background(), f.project.ID, "first")
	require.NoError(t, err)
	_, err = f.orch.Run(context.Background(), f.project.ID, "second")
	require.NoError(t, err)

	got := prompts.get("researcher")
	require.Len(t, got, 2)
	assert.NotContains(t, got[0], "## Learnings")
	assert.Contains(t, got[1], "## Learnings\n- Research: out-researcher")
}

func TestRun_DomainLearningsCrossProjects(t *testing.T) {
	var prompts promptLog
	f := newFixture(t, prompts.wrap(routed(nil)), []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
	}, nil)
	_, err := f.orch.Run(context.Background(), f.project.ID, "first")
	require.NoError(t, err)

	other, err := f.store.CreateProject("Other brief", "")
	require.NoError(t, err)
	_, err = f.store.CreateTeam(other.ID, store.TeamSpec{Name: "Desk", Members: []model.TeamMember{member("fact_checker", 1)}})
	require.NoError(t, err)
	_, err = f.store.CreateTeam(other.ID, store.TeamSpec{Name: "Copy", Members: []model.TeamMember{member("writer", 1)}})
	require.NoError(t, err)

	_, err = f.orch.Run(context.Background(), other.ID, "second")
	require.NoError(t, err)

	checker := prompts.get("fact_checker")
	require.Len(t, checker, 1)
	assert.Contains(t, checker[0], "## Learnings\n- Research: out-researcher")
	writer := prompts.get("writer")
	require.Len(t, writer, 1)
	assert.NotContains(t, writer[0], "## Learnings")
}

func TestRun_TierFallbackIsRecorded(t *testing.T) {
	calls := 0
	b := routed(map[string]reply{
		"researcher": func(tier string) (string, error) {
			calls++
			if tier == "large" {
				return "", backend.RateLimited(tier, stderrors.New("429"))
			}
			return "found", nil
		},
	})
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
	}, nil)

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.NoError(t, err)

	w := exec.Teams[0].Workers[0]
	assert.Equal(t, "medium", w.Tier)
	require.Len(t, w.Attempts, 2)
	assert.Equal(t, model.OutcomeRateLimited, w.Attempts[0].Outcome)
	assert.Equal(t, model.OutcomeSuccess, w.Attempts[1].Outcome)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 2, f.events.count(event.TypeWorkerAttempt))
}

func TestRun_CheckpointEditReplacesContribution(t *testing.T) {
	var prompts promptLog
	b := prompts.wrap(routed(map[string]reply{
		"writer": func(string) (string, error) { return "original draft", nil },
	}))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Polish", Members: []model.TeamMember{member("editor", 1)}},
	}, nil)

	f.events.on(event.TypeCheckpointRequired, func(e event.Event) {
		req := e.(event.CheckpointRequiredEvent)
		_, err := f.gate.Edit(req.CheckpointID, "X")
		assert.NoError(t, err)
	})

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.NoError(t, err)

	draft := exec.Teams[0]
	assert.Equal(t, model.TeamCompleted, draft.Status)
	assert.Equal(t, "X", draft.Contribution)
	require.NotNil(t, draft.Checkpoint)
	assert.Equal(t, model.CheckpointEdited, draft.Checkpoint.Status)
	assert.Equal(t, "[Writer]\noriginal draft", draft.Checkpoint.Original)
	assert.Equal(t, draft.Output, draft.Checkpoint.Original)

	editor := prompts.get("editor")
	require.Len(t, editor, 1)
	assert.Contains(t, editor[0], "[Draft]\nX")
	assert.NotContains(t, editor[0], "original draft")
}

func TestRun_CheckpointApprovePassesOriginal(t *testing.T) {
	var prompts promptLog
	b := prompts.wrap(routed(map[string]reply{
		"writer": func(string) (string, error) { return "original draft", nil },
	}))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Polish", Members: []model.TeamMember{member("editor", 1)}},
	}, nil)

	f.events.on(event.TypeCheckpointRequired, func(e event.Event) {
		_, err := f.gate.Skip(e.(event.CheckpointRequiredEvent).CheckpointID)
		assert.NoError(t, err)
	})

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.NoError(t, err)

	assert.Equal(t, model.CheckpointSkipped, exec.Teams[0].Checkpoint.Status)
	assert.Equal(t, exec.Teams[0].Output, exec.Teams[0].Contribution)
	assert.Contains(t, prompts.get("editor")[0], "[Draft]\n[Writer]\noriginal draft")
	assert.Empty(t, f.gate.Pending())
}

func TestRun_ContextKeepsWhitespaceVerbatim(t *testing.T) {
	const (
		code = "    indented code\n\tline2\n\n"
		list = "  - item one\n  - item two\n"
	)
	var prompts promptLog
	b := prompts.wrap(routed(map[string]reply{
		"writer": func(string) (string, error) { return code, nil },
	}))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1), member("critic", 2)}},
		{Name: "Polish", Members: []model.TeamMember{member("editor", 1)}},
	}, nil)

	f.events.on(event.TypeCheckpointRequired, func(e event.Event) {
		_, err := f.gate.Edit(e.(event.CheckpointRequiredEvent).CheckpointID, list)
		assert.NoError(t, err)
	})

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.NoError(t, err)

	draft := exec.Teams[0]
	assert.Equal(t, "[Writer]\n"+code+"[Critic]\nout-critic", draft.Output)
	assert.Equal(t, list, draft.Contribution)

	critic := prompts.get("critic")
	require.Len(t, critic, 1)
	assert.True(t, strings.HasSuffix(critic[0], "## Context\n[Writer]\n"+code), critic[0])

	editor := prompts.get("editor")
	require.Len(t, editor, 1)
	assert.True(t, strings.HasSuffix(editor[0], "## Context\n[Draft]\n"+list), editor[0])
}

func TestRun_CheckpointDenyFails(t *testing.T) {
	f := newFixture(t, routed(nil), []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Polish", Members: []model.TeamMember{member("editor", 1)}},
	}, nil)
	f.events.on(event.TypeCheckpointRequired, func(e event.Event) {
		_, err := f.gate.Deny(e.(event.CheckpointRequiredEvent).CheckpointID, "off topic")
		assert.NoError(t, err)
	})

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrCheckpointDenied))

	assert.Equal(t, model.ExecutionFailed, exec.Status)
	assert.Equal(t, "checkpoint_denied", exec.ErrorKind)
	assert.Equal(t, model.TeamFailed, exec.Teams[0].Status)
	assert.False(t, exec.Teams[0].Contributed)
	assert.Equal(t, model.CheckpointDenied, exec.Teams[0].Checkpoint.Status)
	assert.Equal(t, model.TeamSkipped, exec.Teams[1].Status)
	assert.Empty(t, exec.Teams[1].Workers)
	assert.Equal(t, 1, f.events.count(event.TypeTeamSkipped))
	assert.Equal(t, 1, f.events.count(event.TypeExecutionFailed))
	assert.Equal(t, *exec, f.stored(t, exec.ID))
}

func TestRun_CheckpointDenyPauses(t *testing.T) {
	f := newFixture(t, routed(nil), []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1)}},
	}, func(c *Config) { c.DenyPolicy = DenyPause })
	f.events.on(event.TypeCheckpointRequired, func(e event.Event) {
		_, err := f.gate.Deny(e.(event.CheckpointRequiredEvent).CheckpointID, "needs sources")
		assert.NoError(t, err)
	})

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	var denied *errors.CheckpointDeniedError
	require.True(t, errors.As(err, &denied))
	assert.Equal(t, "needs sources", denied.Reason)
	assert.Equal(t, model.ExecutionPaused, exec.Status)
	assert.Equal(t, 1, f.events.count(event.TypeExecutionPaused))
}

func TestRun_SkipPolicyContinuesWithVisibleGap(t *testing.T) {
	var prompts promptLog
	b := prompts.wrap(routed(map[string]reply{
		"researcher": func(string) (string, error) { return "", stderrors.New("malformed request") },
	}))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", FailurePolicy: model.FailureSkip, Members: []model.TeamMember{member("researcher", 1)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
	}, nil)

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.NoError(t, err)
	assert.Equal(t, model.ExecutionCompleted, exec.Status)

	research := exec.Teams[0]
	assert.Equal(t, model.TeamFailed, research.Status)
	assert.False(t, research.Contributed)
	assert.Empty(t, research.Contribution)
	assert.Len(t, research.Warnings, 1)
	assert.Len(t, exec.Warnings, 1)
	assert.Equal(t, model.WorkerFailed, research.Workers[0].Status)
	assert.Len(t, research.Workers[0].Attempts, 1)

	assert.Equal(t, model.TeamCompleted, exec.Teams[1].Status)
	assert.Contains(t, prompts.get("writer")[0], "[Research]\n"+absentContribution)
}

func TestRun_FatalFailureHaltsRun(t *testing.T) {
	b := routed(map[string]reply{
		"writer": func(tier string) (string, error) {
			return "", backend.Timeout(tier, stderrors.New("deadline"))
		},
	})
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Review", Members: []model.TeamMember{member("reviewer", 1)}},
	}, nil)

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	var terminal *errors.TerminalWorkerError
	require.True(t, errors.As(err, &terminal))
	assert.True(t, errors.Is(err, errors.ErrChainExhausted))

	assert.Equal(t, model.ExecutionFailed, exec.Status)
	assert.Equal(t, "terminal_worker", exec.ErrorKind)
	assert.Equal(t, model.Boundary{TeamID: f.teams[0].ID, TeamName: "Research"}, exec.LastGood)

	assert.Equal(t, model.TeamCompleted, exec.Teams[0].Status)
	assert.Equal(t, model.TeamFailed, exec.Teams[1].Status)
	assert.Equal(t, model.TeamSkipped, exec.Teams[2].Status)

	writer := exec.Teams[1].Workers[0]
	assert.Equal(t, model.WorkerFailed, writer.Status)
	assert.Equal(t, []string{"large", "medium", "small"}, []string{
		writer.Attempts[0].Tier, writer.Attempts[1].Tier, writer.Attempts[2].Tier,
	})
	assert.Equal(t, *exec, f.stored(t, exec.ID))
}

func TestRun_CapacityHaltKeepsCompletedTeams(t *testing.T) {
	b := routed(map[string]reply{
		"researcher": func(string) (string, error) { return "short notes", nil },
		"writer":     func(string) (string, error) { return strings.Repeat("x", 400), nil },
	})
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Review", Members: []model.TeamMember{member("reviewer", 1)}},
	}, func(c *Config) { c.CapacityTokens = 100 })

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.Error(t, err)
	var capacity *errors.CapacityExceededError
	require.True(t, errors.As(err, &capacity))
	assert.Equal(t, 100, capacity.Ceiling)
	assert.Greater(t, capacity.Used, 96)

	assert.Equal(t, model.ExecutionFailed, exec.Status)
	assert.Equal(t, "capacity_exceeded", exec.ErrorKind)

	research := exec.Teams[0]
	assert.Equal(t, model.TeamCompleted, research.Status)
	assert.Equal(t, "[Researcher]\nshort notes", research.Contribution)
	assert.Equal(t, model.TeamFailed, exec.Teams[1].Status)
	assert.Equal(t, model.TeamSkipped, exec.Teams[2].Status)

	stored := f.stored(t, exec.ID)
	assert.Equal(t, research, stored.Teams[0])
	assert.Equal(t, 3, f.events.count(event.TypeCapacityWarning))
}

func TestRun_PreflightRejectsWithoutSideEffects(t *testing.T) {
	f := newFixture(t, routed(nil), []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
	}, func(c *Config) { c.CapacityTokens = 10 })

	tests := []struct {
		name      string
		projectID string
		task      string
		check     func(t *testing.T, err error)
	}{
		{"empty task", f.project.ID, "  ", func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		}},
		{"unknown project", "missing", "task", func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, errors.ErrNotFound))
		}},
		{"task over capacity", f.project.ID, strings.Repeat("word ", 20), func(t *testing.T, err error) {
			assert.True(t, errors.Is(err, errors.ErrCapacityExceeded))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, err := f.orch.Run(context.Background(), tt.projectID, tt.task)
			require.Error(t, err)
			assert.Nil(t, exec)
			tt.check(t, err)
		})
	}

	execs, err := f.store.ListExecutions("")
	require.NoError(t, err)
	assert.Empty(t, execs)
	assert.Empty(t, f.events.types())
}

func TestRun_RejectsProjectWithoutTeams(t *testing.T) {
	f := newFixture(t, routed(nil), nil, nil)
	_, err := f.orch.Run(context.Background(), f.project.ID, "task")
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestStart_CancelStopsAtWorkerBoundary(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	b := routed(map[string]reply{
		"researcher": func(string) (string, error) {
			close(started)
			<-release
			return "in flight result", nil
		},
		"analyst": func(string) (string, error) {
			t.Error("analyst must not be invoked after cancellation")
			return "", nil
		},
	})
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1), member("analyst", 2)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
	}, nil)

	h, err := f.orch.Start(context.Background(), f.project.ID, "task")
	require.NoError(t, err)
	require.NotEmpty(t, h.ExecutionID())

	<-started
	h.Cancel()
	h.Cancel()
	close(release)

	exec, err := h.Wait()
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.Equal(t, model.ExecutionCancelled, exec.Status)

	research := exec.Teams[0]
	assert.Equal(t, model.TeamFailed, research.Status)
	require.Len(t, research.Workers, 1)
	assert.Equal(t, model.WorkerCompleted, research.Workers[0].Status)
	assert.Equal(t, "in flight result", research.Workers[0].Output)
	assert.Equal(t, model.TeamSkipped, exec.Teams[1].Status)
	assert.Equal(t, 1, f.events.count(event.TypeExecutionCancelled))
	assert.Equal(t, *exec, f.stored(t, h.ExecutionID()))
}

func TestRun_CancelDuringCheckpointIsDistinctFromDeny(t *testing.T) {
	f := newFixture(t, routed(nil), []store.TeamSpec{
		{Name: "Draft", CheckpointEnabled: true, Members: []model.TeamMember{member("writer", 1)}},
		{Name: "Polish", Members: []model.TeamMember{member("editor", 1)}},
	}, nil)

	stop := make(chan struct{})
	f.events.on(event.TypeCheckpointRequired, func(event.Event) { close(stop) })

	exec, err := f.orch.Run(context.Background(), f.project.ID, "task", WithStop(stop))
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.False(t, errors.Is(err, errors.ErrCheckpointDenied))

	assert.Equal(t, model.ExecutionCancelled, exec.Status)
	draft := exec.Teams[0]
	assert.Equal(t, model.TeamFailed, draft.Status)
	require.NotNil(t, draft.Checkpoint)
	assert.Equal(t, model.CheckpointCancelled, draft.Checkpoint.Status)
	assert.Equal(t, model.TeamSkipped, exec.Teams[1].Status)
}

func TestRun_ContextCancellationBeforeStart(t *testing.T) {
	f := newFixture(t, routed(nil), []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	exec, err := f.orch.Run(ctx, f.project.ID, "task")
	assert.True(t, errors.Is(err, errors.ErrCanceled))
	assert.Equal(t, model.ExecutionCancelled, exec.Status)
	assert.Equal(t, model.TeamSkipped, exec.Teams[0].Status)
}

func TestRun_ResumeReusesCompletedTeams(t *testing.T) {
	failing := true
	var prompts promptLog
	b := prompts.wrap(routed(map[string]reply{
		"researcher": func(string) (string, error) { return "facts", nil },
		"writer": func(string) (string, error) {
			if failing {
				return "", stderrors.New("bad request")
			}
			return "article", nil
		},
	}))
	f := newFixture(t, b, []store.TeamSpec{
		{Name: "Research", Members: []model.TeamMember{member("researcher", 1)}},
		{Name: "Writing", Members: []model.TeamMember{member("writer", 1)}},
	}, nil)

	first, err := f.orch.Run(context.Background(), f.project.ID, "task")
	require.Error(t, err)
	require.Equal(t, model.ExecutionFailed, first.Status)

	failing = false
	second, err := f.orch.Run(context.Background(), f.project.ID, "task", WithResumeFrom(first.ID))
	require.NoError(t, err)

	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, first.ID, second.ResumedFrom)
	assert.Equal(t, model.TeamCompleted, second.Teams[0].Status)
	assert.Equal(t, first.ID, second.Teams[0].ReusedFrom)
	assert.Empty(t, second.Teams[0].Workers)
	assert.Equal(t, model.TeamCompleted, second.Teams[1].Status)

	assert.Len(t, prompts.get("researcher"), 1)
	writer := prompts.get("writer")
	require.Len(t, writer, 2)
	assert.Contains(t, writer[1], "[Research]\n[Researcher]\nfacts")

	// The failed run is untouched.
	assert.Equal(t, *first, f.stored(t, first.ID))

	_, err = f.orch.Run(context.Background(), f.project.ID, "task", WithResumeFrom(second.ID))
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestNew_Validation(t *testing.T) {
	st, err := store.Open(store.Options{Root: t.TempDir(), Location: "state.json"})
	require.NoError(t, err)
	t.Cleanup(st.Close)
	inv, err := invoke.New(backend.Echo{}, invoke.DefaultPolicy())
	require.NoError(t, err)

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing store", Config{Invoker: inv}},
		{"missing invoker", Config{Store: st}},
		{"bad deny policy", Config{Store: st, Invoker: inv, DenyPolicy: "retry"}},
		{"negative capacity", Config{Store: st, Invoker: inv, CapacityTokens: -1}},
		{"halt ratio above one", Config{Store: st, Invoker: inv, HaltRatio: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			assert.True(t, errors.Is(err, errors.ErrInvalidInput))
		})
	}

	o, err := New(Config{Store: st, Invoker: inv})
	require.NoError(t, err)
	assert.NotNil(t, o.Gate())
}

func TestParseDenyPolicy(t *testing.T) {
	for in, want := range map[string]DenyPolicy{"": DenyFail, "fail": DenyFail, "pause": DenyPause} {
		got, err := ParseDenyPolicy(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseDenyPolicy("ignore")
	assert.Error(t, err)
}
