// Package plan resolves a team's worker assignments into an ordered
// execution plan.
//
// Assignments sharing a priority form one group. Groups run strictly in
// ascending priority order; steps inside a group are eligible to run
// concurrently and carry no ordering guarantee. Insertion order inside a
// group is kept for logging and display only.
package plan

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/registry"
)

// DefaultMaxAssignments is the largest team accepted when none is configured.
const DefaultMaxAssignments = 50

// DefaultLearningLimit is how many recent learnings a plan carries.
const DefaultLearningLimit = 5

// Step is one worker dispatch.
type Step struct {
	// Index is the member's position among the team's active members.
	Index        int
	WorkerID     string
	Label        string
	Category     string
	Priority     int
	Prompt       string
	TierOverride string
}

// Group is the set of steps sharing one priority.
type Group struct {
	Priority int
	Steps    []Step
}

// Plan is the ordered execution plan of one team.
type Plan struct {
	TeamID    string
	TeamName  string
	Groups    []Group
	Learnings []memory.Entry
}

// Size returns the number of steps across all groups.
func (p *Plan) Size() int {
	n := 0
	for _, g := range p.Groups {
		n += len(g.Steps)
	}
	return n
}

// Categories returns the distinct worker categories of the plan, in plan
// order.
func (p *Plan) Categories() []string {
	var out []string
	seen := make(map[string]bool)
	for _, g := range p.Groups {
		for _, s := range g.Steps {
			if s.Category != "" && !seen[s.Category] {
				seen[s.Category] = true
				out = append(out, s.Category)
			}
		}
	}
	return out
}

// String renders the groups compactly, e.g. "[researcher analyst] -> [writer]".
func (p *Plan) String() string {
	parts := make([]string, len(p.Groups))
	for i, g := range p.Groups {
		ids := make([]string, len(g.Steps))
		for j, s := range g.Steps {
			ids[j] = s.WorkerID
		}
		parts[i] = "[" + strings.Join(ids, " ") + "]"
	}
	return strings.Join(parts, " -> ")
}

// Builder builds plans. It never mutates its inputs, so building twice
// from an unchanged team yields identical groups.
type Builder struct {
	registry       *registry.Registry
	learnings      memory.Reader
	maxAssignments int
	learningLimit  int
}

// Option configures a Builder.
type Option func(*Builder)

// WithLearnings injects the read-only learnings view.
func WithLearnings(r memory.Reader) Option {
	return func(b *Builder) { b.learnings = r }
}

// WithMaxAssignments overrides DefaultMaxAssignments.
func WithMaxAssignments(n int) Option {
	return func(b *Builder) {
		if n > 0 {
			b.maxAssignments = n
		}
	}
}

// WithLearningLimit overrides DefaultLearningLimit.
func WithLearningLimit(n int) Option {
	return func(b *Builder) { b.learningLimit = n }
}

// NewBuilder creates a Builder resolving workers against reg.
func NewBuilder(reg *registry.Registry, opts ...Option) *Builder {
	b := &Builder{
		registry:       reg,
		maxAssignments: DefaultMaxAssignments,
		learningLimit:  DefaultLearningLimit,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Build validates team and returns its plan. Validation failures are
// returned as *errors.ValidationError before any plan is produced.
func (b *Builder) Build(team model.Team) (*Plan, error) {
	if err := b.validate(team); err != nil {
		return nil, err
	}

	active := team.ActiveMembers()
	steps := make([]Step, len(active))
	for i, m := range active {
		w, _ := b.registry.Get(m.WorkerID)
		prompt := w.DefaultPrompt
		if strings.TrimSpace(m.CustomPrompt) != "" {
			prompt = m.CustomPrompt
		}
		steps[i] = Step{
			Index:        i,
			WorkerID:     m.WorkerID,
			Label:        w.Label,
			Category:     w.Category,
			Priority:     m.Priority,
			Prompt:       prompt,
			TierOverride: m.ModelTier,
		}
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Priority < steps[j].Priority
	})

	var groups []Group
	for _, s := range steps {
		if n := len(groups); n > 0 && groups[n-1].Priority == s.Priority {
			groups[n-1].Steps = append(groups[n-1].Steps, s)
			continue
		}
		groups = append(groups, Group{Priority: s.Priority, Steps: []Step{s}})
	}

	p := &Plan{TeamID: team.ID, TeamName: team.Name, Groups: groups}
	if b.learnings != nil {
		entries, err := b.readLearnings(team.ProjectID, p.Categories())
		if err != nil {
			return nil, fmt.Errorf("read learnings: %w", err)
		}
		p.Learnings = entries
	}
	return p, nil
}

// readLearnings collects the domain learnings of each category followed by
// the project's own, dropping repeated text. When more than the limit
// remain, the last ones are kept so project learnings win.
func (b *Builder) readLearnings(projectID string, categories []string) ([]memory.Entry, error) {
	var keys []string
	for _, c := range categories {
		keys = append(keys, memory.DomainKey(c))
	}
	if projectID != "" {
		keys = append(keys, memory.ProjectKey(projectID))
	}

	var out []memory.Entry
	seen := make(map[string]bool)
	for _, key := range keys {
		entries, err := b.learnings.Learnings(key, b.learningLimit)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if seen[e.Text] {
				continue
			}
			seen[e.Text] = true
			out = append(out, e)
		}
	}
	if b.learningLimit > 0 && len(out) > b.learningLimit {
		out = out[len(out)-b.learningLimit:]
	}
	return out, nil
}

func (b *Builder) validate(team model.Team) error {
	seen := make(map[string]bool, len(team.Members))
	for _, m := range team.Members {
		if seen[m.WorkerID] {
			return errors.NewValidationError("duplicate worker assignment").
				WithField("members").WithValue(m.WorkerID)
		}
		seen[m.WorkerID] = true
	}

	active := team.ActiveMembers()
	if len(active) == 0 {
		return errors.NewValidationError(fmt.Sprintf("team %q has no active worker assignments", team.Name)).
			WithField("members")
	}
	if len(active) > b.maxAssignments {
		return errors.NewValidationError(fmt.Sprintf("team %q has %d assignments, maximum is %d", team.Name, len(active), b.maxAssignments)).
			WithField("members").WithValue(len(active))
	}

	for _, m := range active {
		if err := b.registry.Require(m.WorkerID); err != nil {
			return err
		}
	}
	return nil
}
