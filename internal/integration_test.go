// Package internal contains integration tests that verify the packages work
// together: a pipeline run publishing on the event bus, metrics and the
// checkpoint gate subscribed to it, and state shared between store handles.
package internal

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/checkpoint"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/metrics"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/orchestrator"
	"github.com/Iron-Ham/workcrew/internal/store"
	"github.com/Iron-Ham/workcrew/internal/testutil"
)

// metricValue sums the samples of a gathered metric whose labels include
// every pair in labels.
func metricValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, m := range mf.GetMetric() {
			have := make(map[string]string)
			for _, lp := range m.GetLabel() {
				have[lp.GetName()] = lp.GetValue()
			}
			for k, v := range labels {
				if have[k] != v {
					continue metrics
				}
			}
			switch {
			case m.Counter != nil:
				total += m.GetCounter().GetValue()
			case m.Gauge != nil:
				total += m.GetGauge().GetValue()
			}
		}
	}
	return total
}

// TestPipelineEventIntegration runs a two-team project with the bus as the
// only sink: the checkpoint is resolved by a bus subscriber and the metrics
// collector observes the same stream.
func TestPipelineEventIntegration(t *testing.T) {
	st := testutil.OpenStore(t, "")
	p := testutil.SeedProject(t, st, "Market brief",
		store.TeamSpec{Name: "Research", CheckpointEnabled: true, Members: testutil.Members("researcher")},
		store.TeamSpec{Name: "Writing", Members: testutil.Members("writer")},
	)
	research := p.OrderedTeams()[0]

	// The researcher's first call is rate limited on the large tier.
	b := backend.NewScripted(backend.Step{
		Tier:     "large",
		Contains: "Gather the facts",
		Err:      backend.RateLimited("large", fmt.Errorf("429 too many requests")),
	})
	inv := testutil.NewInvoker(t, b)

	bus := event.NewBus(nil)
	collector := metrics.New()
	collector.Attach(bus)

	gate := checkpoint.NewGate(bus.Sink())
	bus.Subscribe(event.TypeCheckpointRequired, func(e event.Event) {
		cp := e.(event.CheckpointRequiredEvent)
		if _, err := gate.Edit(cp.CheckpointID, "reviewed research"); err != nil {
			t.Errorf("edit checkpoint: %v", err)
		}
	})

	var (
		mu    sync.Mutex
		types []string
	)
	bus.SubscribeAll(func(e event.Event) {
		mu.Lock()
		types = append(types, e.EventType())
		mu.Unlock()
	})

	orch, err := orchestrator.New(orchestrator.Config{
		Store:   st,
		Invoker: inv,
		Gate:    gate,
		Sink:    bus.Sink(),
	})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	exec, err := orch.Run(context.Background(), p.ID, "Size the EU e-bike market")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if exec.Status != model.ExecutionCompleted {
		t.Fatalf("status = %s, want completed", exec.Status)
	}

	team := exec.TeamByTeamID(research.ID)
	if team.Contribution != "reviewed research" || team.Output == "reviewed research" {
		t.Errorf("contribution = %q, output = %q; want the edit to replace only the contribution", team.Contribution, team.Output)
	}
	if w := team.Worker("researcher"); w == nil || w.Tier != "medium" || len(w.Attempts) != 2 {
		t.Errorf("researcher = %+v, want success on medium after one fallback", w)
	}
	writer := exec.Teams[1].Worker("writer")
	if writer == nil || !strings.Contains(writer.Input, "reviewed research") {
		t.Error("the writer should see the edited contribution in its context")
	}

	if types[0] != event.TypeExecutionStarted || types[len(types)-1] != event.TypeExecutionCompleted {
		t.Errorf("event stream = %v", types)
	}

	reg := collector.Registry()
	checks := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"workcrew_executions_total", map[string]string{"status": "completed"}, 1},
		{"workcrew_teams_total", map[string]string{"status": "completed"}, 2},
		{"workcrew_workers_total", map[string]string{"status": "completed"}, 2},
		{"workcrew_backend_attempts_total", map[string]string{"tier": "large", "outcome": "rate_limited"}, 1},
		{"workcrew_tier_fallbacks_total", nil, 1},
		{"workcrew_checkpoints_total", map[string]string{"status": "edited", "auto": "false"}, 1},
	}
	for _, c := range checks {
		if got := metricValue(t, reg, c.name, c.labels); got != c.want {
			t.Errorf("%s%v = %v, want %v", c.name, c.labels, got, c.want)
		}
	}
}

// TestStoreHandlesShareState verifies that a second handle on the same
// location observes runs and learnings written through the first.
func TestStoreHandlesShareState(t *testing.T) {
	root := t.TempDir()
	first := testutil.OpenStore(t, root)
	second := testutil.OpenStore(t, root)

	p := testutil.SeedProject(t, first, "Shared",
		store.TeamSpec{Name: "Analysis", Members: testutil.Members("analyst")},
	)

	inv := testutil.NewInvoker(t, backend.Echo{})
	orch, err := orchestrator.New(orchestrator.Config{Store: first, Invoker: inv})
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}
	exec, err := orch.Run(context.Background(), p.ID, "Compare pricing")
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	got, err := second.GetExecution(exec.ID)
	if err != nil {
		t.Fatalf("second handle: %v", err)
	}
	if got.Status != model.ExecutionCompleted {
		t.Errorf("second handle sees status %s", got.Status)
	}

	learnings, err := second.Learnings(memory.ProjectKey(p.ID), 10)
	if err != nil {
		t.Fatalf("learnings: %v", err)
	}
	if len(learnings) != 1 || !strings.HasPrefix(learnings[0].Text, "Analysis: ") {
		t.Errorf("learnings = %+v, want one entry for the team", learnings)
	}
}
