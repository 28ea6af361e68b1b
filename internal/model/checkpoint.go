package model

import "time"

// CheckpointStatus is the state of a checkpoint gate.
type CheckpointStatus string

const (
	CheckpointPending  CheckpointStatus = "pending"
	CheckpointApproved CheckpointStatus = "approved"
	CheckpointDenied   CheckpointStatus = "denied"
	CheckpointEdited   CheckpointStatus = "edited"
	CheckpointSkipped  CheckpointStatus = "skipped"
	// CheckpointCancelled records a run cancelled while the gate was open.
	// It is deliberately distinct from CheckpointDenied.
	CheckpointCancelled CheckpointStatus = "cancelled"
)

// IsTerminal returns true once the checkpoint has been resolved.
func (s CheckpointStatus) IsTerminal() bool {
	return s != CheckpointPending && s != ""
}

// CanTransition reports whether moving from s to next is allowed. A
// checkpoint transitions exactly once, from pending to a terminal status.
func (s CheckpointStatus) CanTransition(next CheckpointStatus) bool {
	return s == CheckpointPending && next.IsTerminal()
}

// PassesContent reports whether the resolution lets content flow downstream.
func (s CheckpointStatus) PassesContent() bool {
	return s == CheckpointApproved || s == CheckpointEdited || s == CheckpointSkipped
}

// Checkpoint is the human-approval gate for one TeamExecution.
type Checkpoint struct {
	ID              string           `json:"id"`
	TeamExecutionID string           `json:"team_execution_id"`
	TeamID          string           `json:"team_id"`
	Status          CheckpointStatus `json:"status"`
	// Original is the frozen team output; it is never modified.
	Original string `json:"original"`
	// Working is the editable copy shown to the reviewer.
	Working     string     `json:"working"`
	Replacement string     `json:"replacement,omitempty"`
	Reason      string     `json:"reason,omitempty"`
	AutoApplied bool       `json:"auto_applied,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// Contribution returns the text passed downstream for a resolved checkpoint,
// and whether anything is passed at all.
func (c *Checkpoint) Contribution() (string, bool) {
	switch {
	case !c.Status.PassesContent():
		return "", false
	case c.Status == CheckpointEdited:
		return c.Replacement, true
	}
	return c.Original, true
}
