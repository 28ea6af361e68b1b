package event

import (
	"time"

	"github.com/Iron-Ham/workcrew/internal/model"
)

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a string identifier for this event type.
	// Convention: "category.action" (e.g., "team.started", "checkpoint.required")
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type names.
const (
	TypeExecutionStarted   = "execution.started"
	TypeExecutionCompleted = "execution.completed"
	TypeExecutionFailed    = "execution.failed"
	TypeExecutionCancelled = "execution.cancelled"
	TypeExecutionPaused    = "execution.paused"
	TypeTeamStarted        = "team.started"
	TypeTeamCompleted      = "team.completed"
	TypeTeamFailed         = "team.failed"
	TypeTeamSkipped        = "team.skipped"
	TypeWorkerStarted      = "worker.started"
	TypeWorkerAttempt      = "worker.attempt"
	TypeWorkerCompleted    = "worker.completed"
	TypeCheckpointRequired = "checkpoint.required"
	TypeCheckpointResolved = "checkpoint.resolved"
	TypeCheckpointTimeout  = "checkpoint.timeout"
	TypeCapacityWarning    = "capacity.warning"
)

// baseEvent provides common fields for all events.
// Embed this in concrete event types to satisfy the Event interface.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Execution Lifecycle Events
// -----------------------------------------------------------------------------

// ExecutionStartedEvent is emitted once the run record exists and teams are
// about to be dispatched.
type ExecutionStartedEvent struct {
	baseEvent
	ExecutionID string
	ProjectID   string
	Task        string
	Teams       int
	ResumedFrom string
}

// NewExecutionStartedEvent creates an ExecutionStartedEvent.
func NewExecutionStartedEvent(executionID, projectID, task string, teams int, resumedFrom string) ExecutionStartedEvent {
	return ExecutionStartedEvent{
		baseEvent:   newBaseEvent(TypeExecutionStarted),
		ExecutionID: executionID,
		ProjectID:   projectID,
		Task:        task,
		Teams:       teams,
		ResumedFrom: resumedFrom,
	}
}

// ExecutionCompletedEvent is emitted when every team resolved.
type ExecutionCompletedEvent struct {
	baseEvent
	ExecutionID string
	Usage       model.Usage
	Duration    time.Duration
}

// NewExecutionCompletedEvent creates an ExecutionCompletedEvent.
func NewExecutionCompletedEvent(executionID string, usage model.Usage, duration time.Duration) ExecutionCompletedEvent {
	return ExecutionCompletedEvent{
		baseEvent:   newBaseEvent(TypeExecutionCompleted),
		ExecutionID: executionID,
		Usage:       usage,
		Duration:    duration,
	}
}

// ExecutionFailedEvent is emitted when a run halts on an error. Kind is the
// error classification and LastGood the boundary a human can resume from.
type ExecutionFailedEvent struct {
	baseEvent
	ExecutionID string
	Kind        string
	Message     string
	LastGood    model.Boundary
}

// NewExecutionFailedEvent creates an ExecutionFailedEvent.
func NewExecutionFailedEvent(executionID, kind, message string, lastGood model.Boundary) ExecutionFailedEvent {
	return ExecutionFailedEvent{
		baseEvent:   newBaseEvent(TypeExecutionFailed),
		ExecutionID: executionID,
		Kind:        kind,
		Message:     message,
		LastGood:    lastGood,
	}
}

// ExecutionCancelledEvent is emitted when cooperative cancellation was
// observed.
type ExecutionCancelledEvent struct {
	baseEvent
	ExecutionID string
	LastGood    model.Boundary
}

// NewExecutionCancelledEvent creates an ExecutionCancelledEvent.
func NewExecutionCancelledEvent(executionID string, lastGood model.Boundary) ExecutionCancelledEvent {
	return ExecutionCancelledEvent{
		baseEvent:   newBaseEvent(TypeExecutionCancelled),
		ExecutionID: executionID,
		LastGood:    lastGood,
	}
}

// ExecutionPausedEvent is emitted when a denied checkpoint pauses the run.
type ExecutionPausedEvent struct {
	baseEvent
	ExecutionID string
	TeamID      string
	Reason      string
	LastGood    model.Boundary
}

// NewExecutionPausedEvent creates an ExecutionPausedEvent.
func NewExecutionPausedEvent(executionID, teamID, reason string, lastGood model.Boundary) ExecutionPausedEvent {
	return ExecutionPausedEvent{
		baseEvent:   newBaseEvent(TypeExecutionPaused),
		ExecutionID: executionID,
		TeamID:      teamID,
		Reason:      reason,
		LastGood:    lastGood,
	}
}

// -----------------------------------------------------------------------------
// Team Events
// -----------------------------------------------------------------------------

// TeamStartedEvent is emitted before the first group of a team dispatches.
type TeamStartedEvent struct {
	baseEvent
	ExecutionID     string
	TeamExecutionID string
	TeamID          string
	TeamName        string
	Groups          int
	Workers         int
}

// NewTeamStartedEvent creates a TeamStartedEvent.
func NewTeamStartedEvent(executionID, teamExecutionID, teamID, teamName string, groups, workers int) TeamStartedEvent {
	return TeamStartedEvent{
		baseEvent:       newBaseEvent(TypeTeamStarted),
		ExecutionID:     executionID,
		TeamExecutionID: teamExecutionID,
		TeamID:          teamID,
		TeamName:        teamName,
		Groups:          groups,
		Workers:         workers,
	}
}

// TeamCompletedEvent is emitted when a team resolved and its contribution
// entered the shared context. Reused is set for teams carried over from a
// previous execution.
type TeamCompletedEvent struct {
	baseEvent
	ExecutionID     string
	TeamExecutionID string
	TeamID          string
	TeamName        string
	Duration        time.Duration
	Reused          bool
}

// NewTeamCompletedEvent creates a TeamCompletedEvent.
func NewTeamCompletedEvent(executionID, teamExecutionID, teamID, teamName string, duration time.Duration, reused bool) TeamCompletedEvent {
	return TeamCompletedEvent{
		baseEvent:       newBaseEvent(TypeTeamCompleted),
		ExecutionID:     executionID,
		TeamExecutionID: teamExecutionID,
		TeamID:          teamID,
		TeamName:        teamName,
		Duration:        duration,
		Reused:          reused,
	}
}

// TeamFailedEvent is emitted when a team failed. Continued reports whether
// the team's skip policy let the run go on.
type TeamFailedEvent struct {
	baseEvent
	ExecutionID     string
	TeamExecutionID string
	TeamID          string
	TeamName        string
	Message         string
	Continued       bool
}

// NewTeamFailedEvent creates a TeamFailedEvent.
func NewTeamFailedEvent(executionID, teamExecutionID, teamID, teamName, message string, continued bool) TeamFailedEvent {
	return TeamFailedEvent{
		baseEvent:       newBaseEvent(TypeTeamFailed),
		ExecutionID:     executionID,
		TeamExecutionID: teamExecutionID,
		TeamID:          teamID,
		TeamName:        teamName,
		Message:         message,
		Continued:       continued,
	}
}

// TeamSkippedEvent is emitted for a team that never ran because the run
// stopped before reaching it.
type TeamSkippedEvent struct {
	baseEvent
	ExecutionID     string
	TeamExecutionID string
	TeamID          string
	TeamName        string
	Reason          string
}

// NewTeamSkippedEvent creates a TeamSkippedEvent.
func NewTeamSkippedEvent(executionID, teamExecutionID, teamID, teamName, reason string) TeamSkippedEvent {
	return TeamSkippedEvent{
		baseEvent:       newBaseEvent(TypeTeamSkipped),
		ExecutionID:     executionID,
		TeamExecutionID: teamExecutionID,
		TeamID:          teamID,
		TeamName:        teamName,
		Reason:          reason,
	}
}

// -----------------------------------------------------------------------------
// Worker Events
// -----------------------------------------------------------------------------

// WorkerStartedEvent is emitted when a worker is dispatched.
type WorkerStartedEvent struct {
	baseEvent
	ExecutionID string
	TeamID      string
	WorkerID    string
	Priority    int
}

// NewWorkerStartedEvent creates a WorkerStartedEvent.
func NewWorkerStartedEvent(executionID, teamID, workerID string, priority int) WorkerStartedEvent {
	return WorkerStartedEvent{
		baseEvent:   newBaseEvent(TypeWorkerStarted),
		ExecutionID: executionID,
		TeamID:      teamID,
		WorkerID:    workerID,
		Priority:    priority,
	}
}

// WorkerAttemptEvent is emitted for every backend attempt, so retries and
// tier fallbacks are never silent.
type WorkerAttemptEvent struct {
	baseEvent
	ExecutionID string
	TeamID      string
	WorkerID    string
	Number      int
	Attempt     model.Attempt
}

// NewWorkerAttemptEvent creates a WorkerAttemptEvent. number is 1-based.
func NewWorkerAttemptEvent(executionID, teamID, workerID string, number int, attempt model.Attempt) WorkerAttemptEvent {
	return WorkerAttemptEvent{
		baseEvent:   newBaseEvent(TypeWorkerAttempt),
		ExecutionID: executionID,
		TeamID:      teamID,
		WorkerID:    workerID,
		Number:      number,
		Attempt:     attempt,
	}
}

// WorkerCompletedEvent is emitted when a worker resolved, successfully or not.
type WorkerCompletedEvent struct {
	baseEvent
	ExecutionID string
	TeamID      string
	WorkerID    string
	Status      model.WorkerStatus
	Tier        string
	Attempts    int
	Message     string
}

// NewWorkerCompletedEvent creates a WorkerCompletedEvent.
func NewWorkerCompletedEvent(executionID, teamID string, w model.WorkerExecution) WorkerCompletedEvent {
	return WorkerCompletedEvent{
		baseEvent:   newBaseEvent(TypeWorkerCompleted),
		ExecutionID: executionID,
		TeamID:      teamID,
		WorkerID:    w.WorkerID,
		Status:      w.Status,
		Tier:        w.Tier,
		Attempts:    len(w.Attempts),
		Message:     w.Error,
	}
}

// -----------------------------------------------------------------------------
// Checkpoint Events
// -----------------------------------------------------------------------------

// CheckpointRequiredEvent is emitted when a gate opens. Output is the frozen
// team output awaiting a decision.
type CheckpointRequiredEvent struct {
	baseEvent
	CheckpointID    string
	TeamExecutionID string
	TeamID          string
	Output          string
}

// NewCheckpointRequiredEvent creates a CheckpointRequiredEvent.
func NewCheckpointRequiredEvent(cp model.Checkpoint) CheckpointRequiredEvent {
	return CheckpointRequiredEvent{
		baseEvent:       newBaseEvent(TypeCheckpointRequired),
		CheckpointID:    cp.ID,
		TeamExecutionID: cp.TeamExecutionID,
		TeamID:          cp.TeamID,
		Output:          cp.Original,
	}
}

// CheckpointResolvedEvent is emitted once a gate reaches a terminal status.
type CheckpointResolvedEvent struct {
	baseEvent
	CheckpointID    string
	TeamExecutionID string
	TeamID          string
	Status          model.CheckpointStatus
	Reason          string
	AutoApplied     bool
}

// NewCheckpointResolvedEvent creates a CheckpointResolvedEvent.
func NewCheckpointResolvedEvent(cp model.Checkpoint) CheckpointResolvedEvent {
	return CheckpointResolvedEvent{
		baseEvent:       newBaseEvent(TypeCheckpointResolved),
		CheckpointID:    cp.ID,
		TeamExecutionID: cp.TeamExecutionID,
		TeamID:          cp.TeamID,
		Status:          cp.Status,
		Reason:          cp.Reason,
		AutoApplied:     cp.AutoApplied,
	}
}

// CheckpointTimeoutEvent is emitted each time a gate's timeout window
// elapses. Action is "notify", "approve" or "deny".
type CheckpointTimeoutEvent struct {
	baseEvent
	CheckpointID string
	TeamID       string
	Waited       time.Duration
	Action       string
}

// NewCheckpointTimeoutEvent creates a CheckpointTimeoutEvent.
func NewCheckpointTimeoutEvent(checkpointID, teamID string, waited time.Duration, action string) CheckpointTimeoutEvent {
	return CheckpointTimeoutEvent{
		baseEvent:    newBaseEvent(TypeCheckpointTimeout),
		CheckpointID: checkpointID,
		TeamID:       teamID,
		Waited:       waited,
		Action:       action,
	}
}

// -----------------------------------------------------------------------------
// Capacity Events
// -----------------------------------------------------------------------------

// CapacityWarningEvent is emitted the first time accumulated context crosses
// a warning threshold.
type CapacityWarningEvent struct {
	baseEvent
	ExecutionID string
	Used        int
	Ceiling     int
	Threshold   float64
}

// NewCapacityWarningEvent creates a CapacityWarningEvent.
func NewCapacityWarningEvent(executionID string, used, ceiling int, threshold float64) CapacityWarningEvent {
	return CapacityWarningEvent{
		baseEvent:   newBaseEvent(TypeCapacityWarning),
		ExecutionID: executionID,
		Used:        used,
		Ceiling:     ceiling,
		Threshold:   threshold,
	}
}
