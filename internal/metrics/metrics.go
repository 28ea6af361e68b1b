// Package metrics records run statistics as prometheus collectors. A
// Collector subscribes to the event bus, so the orchestrator never calls it
// directly; the CLI can dump the registry to a node-exporter textfile after
// a run.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Iron-Ham/workcrew/internal/event"
)

const namespace = "workcrew"

// Collector owns a private prometheus registry with the workcrew metrics.
type Collector struct {
	registry *prometheus.Registry

	executions      *prometheus.CounterVec
	teams           *prometheus.CounterVec
	workers         *prometheus.CounterVec
	attempts        *prometheus.CounterVec
	fallbacks       prometheus.Counter
	attemptDuration *prometheus.HistogramVec
	tokens          *prometheus.CounterVec
	checkpoints     *prometheus.CounterVec
	capacityRatio   prometheus.Gauge
	executionTime   prometheus.Histogram
}

// New creates a Collector with its metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		executions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "executions_total",
			Help:      "Project executions by final status.",
		}, []string{"status"}),
		teams: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "teams_total",
			Help:      "Team executions by outcome.",
		}, []string{"status"}),
		workers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workers_total",
			Help:      "Worker calls by final status.",
		}, []string{"status"}),
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "backend_attempts_total",
			Help:      "Backend attempts by tier and outcome.",
		}, []string{"tier", "outcome"}),
		fallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tier_fallbacks_total",
			Help:      "Attempts made on a lower tier after a transient failure.",
		}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "backend_attempt_duration_seconds",
			Help:      "Backend attempt latency by tier.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"tier"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tokens_total",
			Help:      "Tokens consumed by completed executions.",
		}, []string{"direction"}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "checkpoints_total",
			Help:      "Checkpoint resolutions by status.",
		}, []string{"status", "auto"}),
		capacityRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "context_capacity_ratio",
			Help:      "Share of the context ceiling used at the last capacity warning.",
		}),
		executionTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "execution_duration_seconds",
			Help:      "Wall time of completed executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
	}
	c.registry.MustRegister(
		c.executions, c.teams, c.workers, c.attempts, c.fallbacks,
		c.attemptDuration, c.tokens, c.checkpoints, c.capacityRatio, c.executionTime,
	)
	return c
}

// Registry returns the collector's registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Attach subscribes the collector to every event on bus and returns the
// subscription ID.
func (c *Collector) Attach(bus *event.Bus) string {
	return bus.SubscribeAll(c.Observe)
}

// Observe updates metrics for one event. Unknown events are ignored.
func (c *Collector) Observe(e event.Event) {
	switch ev := e.(type) {
	case event.ExecutionCompletedEvent:
		c.executions.WithLabelValues("completed").Inc()
		c.tokens.WithLabelValues("input").Add(float64(ev.Usage.InputTokens))
		c.tokens.WithLabelValues("output").Add(float64(ev.Usage.OutputTokens))
		c.executionTime.Observe(ev.Duration.Seconds())
	case event.ExecutionFailedEvent:
		c.executions.WithLabelValues("failed").Inc()
	case event.ExecutionCancelledEvent:
		c.executions.WithLabelValues("cancelled").Inc()
	case event.ExecutionPausedEvent:
		c.executions.WithLabelValues("paused").Inc()
	case event.TeamCompletedEvent:
		status := "completed"
		if ev.Reused {
			status = "reused"
		}
		c.teams.WithLabelValues(status).Inc()
	case event.TeamFailedEvent:
		c.teams.WithLabelValues("failed").Inc()
	case event.TeamSkippedEvent:
		c.teams.WithLabelValues("skipped").Inc()
	case event.WorkerCompletedEvent:
		c.workers.WithLabelValues(string(ev.Status)).Inc()
	case event.WorkerAttemptEvent:
		c.attempts.WithLabelValues(ev.Attempt.Tier, string(ev.Attempt.Outcome)).Inc()
		c.attemptDuration.WithLabelValues(ev.Attempt.Tier).Observe(ev.Attempt.Duration.Seconds())
		if ev.Number > 1 {
			c.fallbacks.Inc()
		}
	case event.CheckpointResolvedEvent:
		auto := "false"
		if ev.AutoApplied {
			auto = "true"
		}
		c.checkpoints.WithLabelValues(string(ev.Status), auto).Inc()
	case event.CapacityWarningEvent:
		if ev.Ceiling > 0 {
			c.capacityRatio.Set(float64(ev.Used) / float64(ev.Ceiling))
		}
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (c *Collector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.registry)
}
