package model

import "time"

// ProjectStatus describes whether a project accepts new runs.
type ProjectStatus string

const (
	// ProjectActive projects can be edited and run.
	ProjectActive ProjectStatus = "active"
	// ProjectArchived projects are soft-deleted; their history is kept.
	ProjectArchived ProjectStatus = "archived"
)

// FailurePolicy decides what a worker failure does to the rest of the run.
type FailurePolicy string

const (
	// FailureFatal halts the project execution when the team fails.
	FailureFatal FailurePolicy = "fatal"
	// FailureSkip records the team as failed and continues with the next team.
	FailureSkip FailurePolicy = "skip"
)

// IsValid returns true for a recognised policy value.
func (p FailurePolicy) IsValid() bool {
	return p == FailureFatal || p == FailureSkip
}

// Project is the top-level container owning an ordered sequence of teams.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Status      ProjectStatus `json:"status"`
	TeamIDs     []string      `json:"team_ids"`
	Teams       []Team        `json:"teams"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Team returns the team with the given ID, or nil.
func (p *Project) Team(id string) *Team {
	for i := range p.Teams {
		if p.Teams[i].ID == id {
			return &p.Teams[i]
		}
	}
	return nil
}

// OrderedTeams returns the project's teams in declared order (TeamIDs).
// Teams missing from TeamIDs are not returned.
func (p *Project) OrderedTeams() []Team {
	out := make([]Team, 0, len(p.TeamIDs))
	for _, id := range p.TeamIDs {
		if t := p.Team(id); t != nil {
			out = append(out, *t)
		}
	}
	return out
}

// Clone returns a deep copy of the project.
func (p Project) Clone() Project {
	c := p
	c.TeamIDs = append([]string(nil), p.TeamIDs...)
	c.Teams = make([]Team, len(p.Teams))
	for i, t := range p.Teams {
		c.Teams[i] = t.Clone()
	}
	return c
}

// Team is an ordered collection of worker assignments executed as one
// pipeline stage.
type Team struct {
	ID                string        `json:"id"`
	ProjectID         string        `json:"project_id"`
	Name              string        `json:"name"`
	Description       string        `json:"description,omitempty"`
	ExecutionOrder    int           `json:"execution_order"`
	CheckpointEnabled bool          `json:"checkpoint_enabled"`
	FailurePolicy     FailurePolicy `json:"failure_policy"`
	Members           []TeamMember  `json:"members"`
}

// Clone returns a deep copy of the team.
func (t Team) Clone() Team {
	c := t
	c.Members = append([]TeamMember(nil), t.Members...)
	return c
}

// ActiveMembers returns the members with Active set, in insertion order.
func (t Team) ActiveMembers() []TeamMember {
	out := make([]TeamMember, 0, len(t.Members))
	for _, m := range t.Members {
		if m.Active {
			out = append(out, m)
		}
	}
	return out
}

// TeamMember assigns a registered worker to a team.
type TeamMember struct {
	WorkerID     string `json:"worker_id"`
	Priority     int    `json:"priority"`
	CustomPrompt string `json:"custom_prompt,omitempty"`
	ModelTier    string `json:"model_tier,omitempty"`
	Active       bool   `json:"active"`
}
