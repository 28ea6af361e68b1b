package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/model"
)

func TestCollector_FromBus(t *testing.T) {
	c := New()
	bus := event.NewBus(nil)
	c.Attach(bus)

	bus.Publish(event.NewWorkerAttemptEvent("e1", "t1", "writer", 1, model.Attempt{Tier: "large", Outcome: model.OutcomeRateLimited, Duration: time.Second}))
	bus.Publish(event.NewWorkerAttemptEvent("e1", "t1", "writer", 2, model.Attempt{Tier: "medium", Outcome: model.OutcomeSuccess}))
	bus.Publish(event.NewWorkerCompletedEvent("e1", "t1", model.WorkerExecution{WorkerID: "writer", Status: model.WorkerCompleted}))
	bus.Publish(event.NewTeamCompletedEvent("e1", "te1", "t1", "Research", time.Second, false))
	bus.Publish(event.NewTeamCompletedEvent("e1", "te2", "t2", "Drafting", 0, true))
	bus.Publish(event.NewCheckpointResolvedEvent(model.Checkpoint{Status: model.CheckpointEdited}))
	bus.Publish(event.NewCapacityWarningEvent("e1", 90, 100, 0.9))
	bus.Publish(event.NewExecutionCompletedEvent("e1", model.Usage{InputTokens: 120, OutputTokens: 30}, time.Minute))

	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("large", "rate_limited")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.attempts.WithLabelValues("medium", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.fallbacks))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.workers.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.teams.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.teams.WithLabelValues("reused")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.checkpoints.WithLabelValues("edited", "false")))
	assert.InDelta(t, 0.9, testutil.ToFloat64(c.capacityRatio), 1e-9)
	assert.Equal(t, 120.0, testutil.ToFloat64(c.tokens.WithLabelValues("input")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.executions.WithLabelValues("completed")))
}

func TestCollector_TerminalStatuses(t *testing.T) {
	c := New()
	c.Observe(event.NewExecutionFailedEvent("e1", "terminal_worker", "boom", model.Boundary{}))
	c.Observe(event.NewExecutionCancelledEvent("e2", model.Boundary{}))
	c.Observe(event.NewExecutionPausedEvent("e3", "t1", "denied", model.Boundary{}))
	c.Observe(event.NewTeamFailedEvent("e1", "te1", "t1", "R", "boom", false))
	c.Observe(event.NewTeamSkippedEvent("e1", "te2", "t2", "S", "halted"))

	for _, status := range []string{"failed", "cancelled", "paused"} {
		assert.Equal(t, 1.0, testutil.ToFloat64(c.executions.WithLabelValues(status)), status)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(c.teams.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.teams.WithLabelValues("skipped")))
}

func TestCollector_WriteTextfile(t *testing.T) {
	c := New()
	c.Observe(event.NewExecutionCompletedEvent("e1", model.Usage{}, time.Second))

	path := filepath.Join(t.TempDir(), "workcrew.prom")
	require.NoError(t, c.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `workcrew_executions_total{status="completed"} 1`))
}
