package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/Iron-Ham/workcrew/internal/checkpoint"
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/invoke"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/plan"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// DenyPolicy is what a denied checkpoint does to the run.
type DenyPolicy string

const (
	// DenyFail fails the project execution.
	DenyFail DenyPolicy = "fail"
	// DenyPause pauses the project execution so it can be resumed.
	DenyPause DenyPolicy = "pause"
)

// ParseDenyPolicy parses a configured deny policy. Empty means DenyFail.
func ParseDenyPolicy(s string) (DenyPolicy, error) {
	switch DenyPolicy(s) {
	case "", DenyFail:
		return DenyFail, nil
	case DenyPause:
		return DenyPause, nil
	}
	return "", errors.NewValidationError("unknown deny policy").WithField("deny_policy").WithValue(s)
}

// Config holds the orchestrator's collaborators and limits.
type Config struct {
	Store   *store.Store
	Invoker *invoke.Invoker
	// Gate resolves checkpoints. If nil, a gate without a timeout is created.
	Gate   *checkpoint.Gate
	Sink   event.Sink
	Logger *logging.Logger

	// Learnings receives learnings of completed runs. If nil, the store's
	// learnings log is used.
	Learnings memory.Writer

	MaxAssignments int
	LearningLimit  int

	// CapacityTokens is the context ceiling in estimated tokens. Zero
	// disables capacity tracking.
	CapacityTokens int
	HaltRatio      float64
	// GroupConcurrency bounds concurrent workers within one priority group.
	// Values below 1 dispatch sequentially.
	GroupConcurrency int
	DenyPolicy       DenyPolicy
}

// Orchestrator runs project pipelines. It is safe for concurrent use; each
// run owns its own context and capacity tracker.
type Orchestrator struct {
	cfg     Config
	store   *store.Store
	invoker *invoke.Invoker
	gate    *checkpoint.Gate
	builder *plan.Builder
	sink    event.Sink
	logger  *logging.Logger
	now     func() time.Time
}

// New validates cfg and creates an Orchestrator.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Store == nil {
		return nil, errors.NewValidationError("store is required").WithField("store")
	}
	if cfg.Invoker == nil {
		return nil, errors.NewValidationError("invoker is required").WithField("invoker")
	}
	if cfg.DenyPolicy == "" {
		cfg.DenyPolicy = DenyFail
	}
	if _, err := ParseDenyPolicy(string(cfg.DenyPolicy)); err != nil {
		return nil, err
	}
	if cfg.CapacityTokens < 0 {
		return nil, errors.NewValidationError("capacity must not be negative").
			WithField("capacity_tokens").WithValue(cfg.CapacityTokens)
	}
	if cfg.HaltRatio == 0 {
		cfg.HaltRatio = DefaultHaltRatio
	}
	if cfg.HaltRatio < 0 || cfg.HaltRatio > 1 {
		return nil, errors.NewValidationError("halt ratio must be in (0, 1]").
			WithField("halt_ratio").WithValue(cfg.HaltRatio)
	}
	if cfg.GroupConcurrency < 1 {
		cfg.GroupConcurrency = 1
	}
	if cfg.Learnings == nil {
		cfg.Learnings = cfg.Store
	}

	logger := logging.OrNop(cfg.Logger)
	gate := cfg.Gate
	if gate == nil {
		gate = checkpoint.NewGate(cfg.Sink, checkpoint.WithLogger(logger))
	}

	opts := []plan.Option{plan.WithLearnings(cfg.Store)}
	if cfg.MaxAssignments > 0 {
		opts = append(opts, plan.WithMaxAssignments(cfg.MaxAssignments))
	}
	if cfg.LearningLimit > 0 {
		opts = append(opts, plan.WithLearningLimit(cfg.LearningLimit))
	}

	return &Orchestrator{
		cfg:     cfg,
		store:   cfg.Store,
		invoker: cfg.Invoker,
		gate:    gate,
		builder: plan.NewBuilder(cfg.Store.Registry(), opts...),
		sink:    cfg.Sink,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

// Gate returns the checkpoint gate runs wait on.
func (o *Orchestrator) Gate() *checkpoint.Gate { return o.gate }

// RunOption configures a single run.
type RunOption func(*runOptions)

type runOptions struct {
	resumeFrom string
	stop       <-chan struct{}
}

// WithResumeFrom starts a new run that reuses the contributions of teams
// that completed in the given earlier execution of the same project.
func WithResumeFrom(executionID string) RunOption {
	return func(o *runOptions) { o.resumeFrom = executionID }
}

// WithStop sets the cooperative cancellation flag. Closing stop cancels the
// run at the next team or worker boundary.
func WithStop(stop <-chan struct{}) RunOption {
	return func(o *runOptions) { o.stop = stop }
}

// Run executes a project pipeline synchronously. Validation and capacity
// failures found before the run starts are returned without persisting
// anything. Once the run exists the final execution record is returned
// along with the error that ended it, if any.
func (o *Orchestrator) Run(ctx context.Context, projectID, task string, opts ...RunOption) (*model.ProjectExecution, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	r, err := o.prepare(projectID, task, ro)
	if err != nil {
		return nil, err
	}
	return r.execute(ctx, ro.stop)
}

// Handle is a run started in the background.
type Handle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu   sync.Mutex
	exec *model.ProjectExecution
	err  error

	executionID string
}

// ExecutionID returns the ID of the run's execution record.
func (h *Handle) ExecutionID() string { return h.executionID }

// Cancel requests cooperative cancellation. It is idempotent and does not
// wait for the run to stop.
func (h *Handle) Cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the run has finished.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Wait blocks until the run finishes and returns its result.
func (h *Handle) Wait() (*model.ProjectExecution, error) {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exec, h.err
}

// Start prepares a run synchronously and executes it in the background.
// Pre-flight failures are returned directly and nothing is started.
func (o *Orchestrator) Start(ctx context.Context, projectID, task string, opts ...RunOption) (*Handle, error) {
	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}
	r, err := o.prepare(projectID, task, ro)
	if err != nil {
		return nil, err
	}

	h := &Handle{
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
		executionID: r.exec.ID,
	}
	if ro.stop != nil {
		go func() {
			select {
			case <-ro.stop:
				h.Cancel()
			case <-h.done:
			}
		}()
	}

	go func() {
		defer close(h.done)
		exec, err := r.execute(ctx, h.stop)
		h.mu.Lock()
		h.exec, h.err = exec, err
		h.mu.Unlock()
	}()
	return h, nil
}
