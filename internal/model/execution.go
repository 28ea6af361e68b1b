package model

import "time"

// ExecutionStatus is the status of a ProjectExecution.
type ExecutionStatus string

const (
	ExecutionPending   ExecutionStatus = "pending"
	ExecutionRunning   ExecutionStatus = "running"
	ExecutionCompleted ExecutionStatus = "completed"
	ExecutionFailed    ExecutionStatus = "failed"
	ExecutionCancelled ExecutionStatus = "cancelled"
	// ExecutionPaused is reached only when a checkpoint denial is configured
	// to pause instead of fail. A paused run can be resumed by a new run.
	ExecutionPaused ExecutionStatus = "paused"
)

// IsTerminal returns true if the status can no longer change.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled, ExecutionPaused:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next is allowed.
func (s ExecutionStatus) CanTransition(next ExecutionStatus) bool {
	switch s {
	case ExecutionPending:
		return next == ExecutionRunning || next == ExecutionCancelled
	case ExecutionRunning:
		return next.IsTerminal()
	}
	return false
}

// TeamStatus is the status of a TeamExecution.
type TeamStatus string

const (
	TeamPending            TeamStatus = "pending"
	TeamRunning            TeamStatus = "running"
	TeamCompleted          TeamStatus = "completed"
	TeamFailed             TeamStatus = "failed"
	TeamSkipped            TeamStatus = "skipped"
	TeamAwaitingCheckpoint TeamStatus = "awaiting_checkpoint"
)

// IsTerminal returns true if the status can no longer change.
func (s TeamStatus) IsTerminal() bool {
	return s == TeamCompleted || s == TeamFailed || s == TeamSkipped
}

// CanTransition reports whether moving from s to next is allowed.
func (s TeamStatus) CanTransition(next TeamStatus) bool {
	switch s {
	case TeamPending:
		return next == TeamRunning || next == TeamSkipped
	case TeamRunning:
		return next == TeamCompleted || next == TeamFailed || next == TeamSkipped || next == TeamAwaitingCheckpoint
	case TeamAwaitingCheckpoint:
		return next == TeamCompleted || next == TeamFailed
	}
	return false
}

// WorkerStatus is the status of a WorkerExecution.
type WorkerStatus string

const (
	WorkerPending   WorkerStatus = "pending"
	WorkerRunning   WorkerStatus = "running"
	WorkerCompleted WorkerStatus = "completed"
	WorkerFailed    WorkerStatus = "failed"
	WorkerCancelled WorkerStatus = "cancelled"
)

// IsTerminal returns true if the status can no longer change.
func (s WorkerStatus) IsTerminal() bool {
	return s == WorkerCompleted || s == WorkerFailed || s == WorkerCancelled
}

// Usage aggregates token and cost counters.
type Usage struct {
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	Cost         float64 `json:"cost"`
}

// Add returns the sum of u and o.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:  u.InputTokens + o.InputTokens,
		OutputTokens: u.OutputTokens + o.OutputTokens,
		Cost:         u.Cost + o.Cost,
	}
}

// Boundary names the last known-good point of a run.
type Boundary struct {
	TeamID   string `json:"team_id,omitempty"`
	TeamName string `json:"team_name,omitempty"`
	WorkerID string `json:"worker_id,omitempty"`
}

// IsZero reports whether no boundary was reached.
func (b Boundary) IsZero() bool {
	return b.TeamID == "" && b.WorkerID == ""
}

// ProjectExecution is one pipeline run of a project.
type ProjectExecution struct {
	ID          string          `json:"id"`
	ProjectID   string          `json:"project_id"`
	Task        string          `json:"task"`
	Status      ExecutionStatus `json:"status"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	Usage       Usage           `json:"usage"`
	Teams       []TeamExecution `json:"teams"`
	Error       string          `json:"error,omitempty"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	LastGood    Boundary        `json:"last_good"`
	ResumedFrom string          `json:"resumed_from,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
}

// Team returns the team execution with the given ID, or nil.
func (e *ProjectExecution) Team(id string) *TeamExecution {
	for i := range e.Teams {
		if e.Teams[i].ID == id {
			return &e.Teams[i]
		}
	}
	return nil
}

// TeamByTeamID returns the team execution for a team definition ID, or nil.
func (e *ProjectExecution) TeamByTeamID(teamID string) *TeamExecution {
	for i := range e.Teams {
		if e.Teams[i].TeamID == teamID {
			return &e.Teams[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the execution.
func (e ProjectExecution) Clone() ProjectExecution {
	c := e
	c.StartedAt = cloneTime(e.StartedAt)
	c.CompletedAt = cloneTime(e.CompletedAt)
	c.Warnings = append([]string(nil), e.Warnings...)
	c.Teams = make([]TeamExecution, len(e.Teams))
	for i, t := range e.Teams {
		c.Teams[i] = t.Clone()
	}
	return c
}

// TeamExecution is the record of one team visited by a run.
type TeamExecution struct {
	ID             string            `json:"id"`
	ExecutionID    string            `json:"execution_id"`
	TeamID         string            `json:"team_id"`
	TeamName       string            `json:"team_name"`
	Status         TeamStatus        `json:"status"`
	Output         string            `json:"output,omitempty"`
	Contribution   string            `json:"contribution,omitempty"`
	Contributed    bool              `json:"contributed"`
	StartedAt      *time.Time        `json:"started_at,omitempty"`
	CompletedAt    *time.Time        `json:"completed_at,omitempty"`
	DurationMillis int64             `json:"duration_ms"`
	Usage          Usage             `json:"usage"`
	Workers        []WorkerExecution `json:"workers"`
	Checkpoint     *Checkpoint       `json:"checkpoint,omitempty"`
	Error          string            `json:"error,omitempty"`
	Warnings       []string          `json:"warnings,omitempty"`
	ReusedFrom     string            `json:"reused_from,omitempty"`
}

// Clone returns a deep copy of the team execution.
func (t TeamExecution) Clone() TeamExecution {
	c := t
	c.StartedAt = cloneTime(t.StartedAt)
	c.CompletedAt = cloneTime(t.CompletedAt)
	c.Warnings = append([]string(nil), t.Warnings...)
	c.Workers = make([]WorkerExecution, len(t.Workers))
	for i, w := range t.Workers {
		c.Workers[i] = w.Clone()
	}
	if t.Checkpoint != nil {
		cp := *t.Checkpoint
		cp.ResolvedAt = cloneTime(t.Checkpoint.ResolvedAt)
		c.Checkpoint = &cp
	}
	return c
}

// Worker returns the worker execution with the given worker ID, or nil.
func (t *TeamExecution) Worker(workerID string) *WorkerExecution {
	for i := range t.Workers {
		if t.Workers[i].WorkerID == workerID {
			return &t.Workers[i]
		}
	}
	return nil
}

// WorkerExecution is the record of one worker dispatch.
type WorkerExecution struct {
	ID              string       `json:"id"`
	TeamExecutionID string       `json:"team_execution_id"`
	WorkerID        string       `json:"worker_id"`
	Priority        int          `json:"priority"`
	Status          WorkerStatus `json:"status"`
	Tier            string       `json:"tier,omitempty"`
	Input           string       `json:"input,omitempty"`
	Output          string       `json:"output,omitempty"`
	Attempts        []Attempt    `json:"attempts"`
	Usage           Usage        `json:"usage"`
	StartedAt       *time.Time   `json:"started_at,omitempty"`
	CompletedAt     *time.Time   `json:"completed_at,omitempty"`
	Error           string       `json:"error,omitempty"`
}

// Clone returns a deep copy of the worker execution.
func (w WorkerExecution) Clone() WorkerExecution {
	c := w
	c.StartedAt = cloneTime(w.StartedAt)
	c.CompletedAt = cloneTime(w.CompletedAt)
	c.Attempts = append([]Attempt(nil), w.Attempts...)
	return c
}

// AttemptOutcome classifies a single backend attempt.
type AttemptOutcome string

const (
	OutcomeSuccess     AttemptOutcome = "success"
	OutcomeRateLimited AttemptOutcome = "rate_limited"
	OutcomeTimeout     AttemptOutcome = "timeout"
	OutcomeError       AttemptOutcome = "error"
)

// IsTransient returns true for outcomes that trigger a tier fallback.
func (o AttemptOutcome) IsTransient() bool {
	return o == OutcomeRateLimited || o == OutcomeTimeout
}

// Attempt is one entry of a worker call's attempt history.
type Attempt struct {
	Tier       string         `json:"tier"`
	WaitMillis int64          `json:"wait_ms"`
	Outcome    AttemptOutcome `json:"outcome"`
	Error      string         `json:"error,omitempty"`
	StartedAt  time.Time      `json:"started_at"`
	Duration   time.Duration  `json:"duration"`
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
