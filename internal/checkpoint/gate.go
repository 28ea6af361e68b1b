package checkpoint

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/event"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// ErrNotPending is returned when resolving a gate that was already resolved.
var ErrNotPending = errors.New("checkpoint is not pending")

// TimeoutAction is applied when a gate's decision window elapses.
type TimeoutAction string

const (
	TimeoutNotify  TimeoutAction = "notify"
	TimeoutApprove TimeoutAction = "approve"
	TimeoutDeny    TimeoutAction = "deny"
)

// ParseTimeoutAction converts a configuration value, defaulting to notify.
func ParseTimeoutAction(s string) (TimeoutAction, error) {
	switch TimeoutAction(strings.ToLower(strings.TrimSpace(s))) {
	case "", TimeoutNotify:
		return TimeoutNotify, nil
	case TimeoutApprove:
		return TimeoutApprove, nil
	case TimeoutDeny:
		return TimeoutDeny, nil
	}
	return "", errors.NewValidationError("unknown checkpoint timeout action").
		WithField("on_timeout").WithValue(s)
}

// Policy is the gate timeout policy. A zero Timeout waits indefinitely.
type Policy struct {
	Timeout   time.Duration
	OnTimeout TimeoutAction
}

// Resolution is the outcome of a resolved gate.
type Resolution struct {
	Status       model.CheckpointStatus
	Contribution string
	Contributes  bool
	Reason       string
	AutoApplied  bool
}

func resolutionOf(cp model.Checkpoint) Resolution {
	text, ok := cp.Contribution()
	return Resolution{
		Status:       cp.Status,
		Contribution: text,
		Contributes:  ok,
		Reason:       cp.Reason,
		AutoApplied:  cp.AutoApplied,
	}
}

type entry struct {
	cp   model.Checkpoint
	done chan struct{}
}

// Gate tracks open and resolved checkpoints.
type Gate struct {
	mu      sync.Mutex
	entries map[string]*entry
	sink    event.Sink
	policy  Policy
	logger  *logging.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

// Option configures a Gate.
type Option func(*Gate)

// WithPolicy sets the timeout policy.
func WithPolicy(p Policy) Option {
	return func(g *Gate) {
		if p.OnTimeout == "" {
			p.OnTimeout = TimeoutNotify
		}
		g.policy = p
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Gate) { g.logger = logging.OrNop(l) }
}

// NewGate creates a Gate publishing through sink, which may be nil.
func NewGate(sink event.Sink, opts ...Option) *Gate {
	g := &Gate{
		entries: make(map[string]*entry),
		sink:    sink,
		policy:  Policy{OnTimeout: TimeoutNotify},
		logger:  logging.NopLogger(),
		now:     func() time.Time { return time.Now().UTC() },
		after:   time.After,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Open freezes output behind a new pending gate and publishes
// checkpoint.required.
func (g *Gate) Open(teamExecutionID, teamID, output string) (model.Checkpoint, error) {
	if teamExecutionID == "" {
		return model.Checkpoint{}, errors.NewValidationError("team execution id is required").WithField("team_execution_id")
	}
	cp := model.Checkpoint{
		ID:              uuid.NewString(),
		TeamExecutionID: teamExecutionID,
		TeamID:          teamID,
		Status:          model.CheckpointPending,
		Original:        output,
		Working:         output,
		CreatedAt:       g.now(),
	}

	g.mu.Lock()
	g.entries[cp.ID] = &entry{cp: cp, done: make(chan struct{})}
	g.mu.Unlock()

	g.logger.Info("checkpoint opened", "checkpoint_id", cp.ID, "team_id", teamID)
	g.sink.Emit(event.NewCheckpointRequiredEvent(cp))
	return cp, nil
}

// Approve passes the original output downstream.
func (g *Gate) Approve(id string) (model.Checkpoint, error) {
	return g.resolve(id, model.CheckpointApproved, nil)
}

// Deny rejects the output. reason must be non-empty.
func (g *Gate) Deny(id, reason string) (model.Checkpoint, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return model.Checkpoint{}, errors.NewValidationError("a reason is required to deny a checkpoint").WithField("reason")
	}
	return g.resolve(id, model.CheckpointDenied, func(cp *model.Checkpoint) {
		cp.Reason = reason
	})
}

// Edit replaces the downstream contribution with text, kept verbatim.
// Only an empty replacement is rejected.
func (g *Gate) Edit(id, text string) (model.Checkpoint, error) {
	if text == "" {
		return model.Checkpoint{}, errors.NewValidationError("replacement text must not be empty").WithField("replacement")
	}
	return g.resolve(id, model.CheckpointEdited, func(cp *model.Checkpoint) {
		cp.Replacement = text
		cp.Working = text
	})
}

// Skip approves the output and records that the team is trusted going forward.
func (g *Gate) Skip(id string) (model.Checkpoint, error) {
	return g.resolve(id, model.CheckpointSkipped, nil)
}

// Cancel resolves a pending gate as cancelled.
func (g *Gate) Cancel(id string) (model.Checkpoint, error) {
	return g.resolve(id, model.CheckpointCancelled, nil)
}

// Draft updates the working copy of a pending gate without resolving it.
// The frozen original is unchanged.
func (g *Gate) Draft(id, text string) (model.Checkpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return model.Checkpoint{}, errors.NewNotFoundError("checkpoint", id)
	}
	if e.cp.Status != model.CheckpointPending {
		return model.Checkpoint{}, fmt.Errorf("%w: %s is %s", ErrNotPending, id, e.cp.Status)
	}
	e.cp.Working = text
	return e.cp, nil
}

// Get returns a copy of the checkpoint.
func (g *Gate) Get(id string) (model.Checkpoint, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return model.Checkpoint{}, errors.NewNotFoundError("checkpoint", id)
	}
	return e.cp, nil
}

// Done returns a channel that is closed once the checkpoint is resolved.
func (g *Gate) Done(id string) (<-chan struct{}, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.entries[id]
	if !ok {
		return nil, errors.NewNotFoundError("checkpoint", id)
	}
	return e.done, nil
}

// Pending returns the unresolved checkpoints, oldest first.
func (g *Gate) Pending() []model.Checkpoint {
	g.mu.Lock()
	var out []model.Checkpoint
	for _, e := range g.entries {
		if e.cp.Status == model.CheckpointPending {
			out = append(out, e.cp)
		}
	}
	g.mu.Unlock()

	slices.SortFunc(out, func(a, b model.Checkpoint) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

// Forget drops a resolved checkpoint from the gate.
func (g *Gate) Forget(id string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if e, ok := g.entries[id]; ok && e.cp.Status.IsTerminal() {
		delete(g.entries, id)
	}
}

// Wait blocks until the gate is resolved. Closing stop or ending ctx
// resolves a still-pending gate as cancelled and returns errors.ErrCanceled
// alongside the cancelled resolution. The timeout policy is applied while
// waiting.
func (g *Gate) Wait(ctx context.Context, id string, stop <-chan struct{}) (Resolution, error) {
	g.mu.Lock()
	e, ok := g.entries[id]
	g.mu.Unlock()
	if !ok {
		return Resolution{}, errors.NewNotFoundError("checkpoint", id)
	}

	started := g.now()
	var window <-chan time.Time
	if g.policy.Timeout > 0 {
		window = g.after(g.policy.Timeout)
	}

	for {
		select {
		case <-e.done:
			return g.resolutionFor(id)
		case <-stop:
			return g.cancelled(id, errors.ErrCanceled)
		case <-ctx.Done():
			return g.cancelled(id, errors.Join(errors.ErrCanceled, ctx.Err()))
		case <-window:
			waited := g.now().Sub(started)
			g.applyTimeout(id, waited)
			window = g.after(g.policy.Timeout)
		}
	}
}

func (g *Gate) applyTimeout(id string, waited time.Duration) {
	g.mu.Lock()
	e, ok := g.entries[id]
	teamID := ""
	if ok {
		teamID = e.cp.TeamID
	}
	g.mu.Unlock()

	action := g.policy.OnTimeout
	g.logger.Warn("checkpoint decision window elapsed",
		"checkpoint_id", id, "waited", waited.String(), "action", string(action))
	g.sink.Emit(event.NewCheckpointTimeoutEvent(id, teamID, waited, string(action)))

	var err error
	switch action {
	case TimeoutApprove:
		_, err = g.resolve(id, model.CheckpointApproved, func(cp *model.Checkpoint) {
			cp.AutoApplied = true
		})
	case TimeoutDeny:
		_, err = g.resolve(id, model.CheckpointDenied, func(cp *model.Checkpoint) {
			cp.AutoApplied = true
			cp.Reason = fmt.Sprintf("no decision within %s", g.policy.Timeout)
		})
	}
	if err != nil && !errors.Is(err, ErrNotPending) {
		g.logger.Error("failed to apply checkpoint timeout", "checkpoint_id", id, "error", err.Error())
	}
}

func (g *Gate) cancelled(id string, cause error) (Resolution, error) {
	cp, err := g.Cancel(id)
	if errors.Is(err, ErrNotPending) {
		// A decision raced the cancellation; honour it.
		return g.resolutionFor(id)
	}
	if err != nil {
		return Resolution{}, err
	}
	return resolutionOf(cp), cause
}

func (g *Gate) resolutionFor(id string) (Resolution, error) {
	cp, err := g.Get(id)
	if err != nil {
		return Resolution{}, err
	}
	return resolutionOf(cp), nil
}

// resolve moves a pending gate to status, applying mutate under the lock,
// and publishes checkpoint.resolved after releasing it.
func (g *Gate) resolve(id string, status model.CheckpointStatus, mutate func(*model.Checkpoint)) (model.Checkpoint, error) {
	g.mu.Lock()
	e, ok := g.entries[id]
	if !ok {
		g.mu.Unlock()
		return model.Checkpoint{}, errors.NewNotFoundError("checkpoint", id)
	}
	if !e.cp.Status.CanTransition(status) {
		current := e.cp.Status
		g.mu.Unlock()
		return model.Checkpoint{}, fmt.Errorf("%w: %s is %s", ErrNotPending, id, current)
	}

	e.cp.Status = status
	if mutate != nil {
		mutate(&e.cp)
	}
	resolvedAt := g.now()
	e.cp.ResolvedAt = &resolvedAt
	cp := e.cp
	close(e.done)
	g.mu.Unlock()

	g.logger.Info("checkpoint resolved",
		"checkpoint_id", id, "team_id", cp.TeamID, "status", string(status), "auto", cp.AutoApplied)
	g.sink.Emit(event.NewCheckpointResolvedEvent(cp))
	return cp, nil
}
