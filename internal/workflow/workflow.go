// Package workflow reads and writes the declarative, human-editable
// workflow document: one project, its ordered teams, their worker
// assignments and any custom workers they rely on.
//
//	version: "1"
//	project:
//	  name: Market study
//	workers:
//	  - id: legal_reviewer
//	    label: Legal reviewer
//	    category: review
//	    default_prompt: Flag legal risk in the material.
//	teams:
//	  - name: Research
//	    checkpoint: true
//	    failure_policy: skip
//	    workers:
//	      - id: researcher
//	        priority: 1
//	      - id: analyst
//	        priority: 2
//	        model: small
//	        prompt: Focus on pricing.
//
// The core consumes the parsed [Definition]; [Apply] writes it into a store.
package workflow

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/registry"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// Version is the only document format version understood.
const Version = "1"

// Definition is a parsed workflow document.
type Definition struct {
	Version string            `yaml:"version"`
	Project ProjectDef        `yaml:"project"`
	Workers []registry.Worker `yaml:"workers,omitempty"`
	Teams   []TeamDef         `yaml:"teams"`
}

// ProjectDef describes the project.
type ProjectDef struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description,omitempty"`
}

// TeamDef describes one team, in pipeline order.
type TeamDef struct {
	Name          string      `yaml:"name"`
	Description   string      `yaml:"description,omitempty"`
	Checkpoint    bool        `yaml:"checkpoint,omitempty"`
	FailurePolicy string      `yaml:"failure_policy,omitempty"`
	Workers       []MemberDef `yaml:"workers"`
}

// MemberDef is one worker assignment. Active defaults to true.
type MemberDef struct {
	ID       string `yaml:"id"`
	Priority int    `yaml:"priority"`
	Prompt   string `yaml:"prompt,omitempty"`
	Model    string `yaml:"model,omitempty"`
	Active   *bool  `yaml:"active,omitempty"`
}

// Spec converts the team definition into a store TeamSpec.
func (t TeamDef) Spec() store.TeamSpec {
	members := make([]model.TeamMember, 0, len(t.Workers))
	for _, w := range t.Workers {
		active := true
		if w.Active != nil {
			active = *w.Active
		}
		members = append(members, model.TeamMember{
			WorkerID:     strings.TrimSpace(w.ID),
			Priority:     w.Priority,
			CustomPrompt: w.Prompt,
			ModelTier:    strings.TrimSpace(w.Model),
			Active:       active,
		})
	}
	return store.TeamSpec{
		Name:              strings.TrimSpace(t.Name),
		Description:       t.Description,
		CheckpointEnabled: t.Checkpoint,
		FailurePolicy:     model.FailurePolicy(strings.TrimSpace(t.FailurePolicy)),
		Members:           members,
	}
}

// Parse decodes and structurally validates a workflow document. Unknown
// keys are rejected so typos do not silently drop configuration.
func Parse(r io.Reader) (*Definition, error) {
	var def Definition
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&def); err != nil {
		if err == io.EOF {
			return nil, errors.NewValidationError("workflow document is empty")
		}
		return nil, errors.NewValidationError("invalid workflow document").WithCause(err)
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return &def, nil
}

// ParseFile reads and parses the workflow document at path.
func ParseFile(path string) (*Definition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open workflow: %w", err)
	}
	defer func() { _ = f.Close() }()
	return Parse(f)
}

// Validate checks the document structure. Worker IDs are checked against a
// registry by Apply, once custom workers are registered.
func (d *Definition) Validate() error {
	if d.Version != "" && d.Version != Version {
		return errors.NewValidationError("unsupported workflow version").WithField("version").WithValue(d.Version)
	}
	if err := store.ValidateName("project name", strings.TrimSpace(d.Project.Name)); err != nil {
		return err
	}
	if len(d.Teams) == 0 {
		return errors.NewValidationError("workflow must define at least one team").WithField("teams")
	}
	names := make(map[string]bool, len(d.Teams))
	for i, t := range d.Teams {
		key := strings.ToLower(strings.TrimSpace(t.Name))
		if key == "" {
			return errors.NewValidationError(fmt.Sprintf("team %d has no name", i+1)).WithField("teams.name")
		}
		if names[key] {
			return errors.NewValidationError("duplicate team name").WithField("teams.name").WithValue(t.Name)
		}
		names[key] = true
		if len(t.Workers) == 0 {
			return errors.NewValidationError(fmt.Sprintf("team %q has no workers", t.Name)).WithField("teams.workers")
		}
	}
	return nil
}

// Encode writes d as YAML.
func Encode(w io.Writer, d *Definition) error {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return err
	}
	if err := enc.Close(); err != nil {
		return err
	}
	_, err := w.Write(buf.Bytes())
	return err
}

// Export builds the document describing a stored project. Custom workers
// referenced by its teams are included from reg.
func Export(p model.Project, reg *registry.Registry) *Definition {
	def := &Definition{
		Version: Version,
		Project: ProjectDef{Name: p.Name, Description: p.Description},
	}
	seen := map[string]bool{}
	for _, t := range p.OrderedTeams() {
		td := TeamDef{
			Name:        t.Name,
			Description: t.Description,
			Checkpoint:  t.CheckpointEnabled,
		}
		if t.FailurePolicy != model.FailureFatal {
			td.FailurePolicy = string(t.FailurePolicy)
		}
		for _, m := range t.Members {
			md := MemberDef{ID: m.WorkerID, Priority: m.Priority, Prompt: m.CustomPrompt, Model: m.ModelTier}
			if !m.Active {
				inactive := false
				md.Active = &inactive
			}
			td.Workers = append(td.Workers, md)

			if reg == nil || seen[m.WorkerID] {
				continue
			}
			seen[m.WorkerID] = true
			if w, ok := reg.Get(m.WorkerID); ok && !w.Builtin {
				def.Workers = append(def.Workers, w)
			}
		}
		def.Teams = append(def.Teams, td)
	}
	return def
}
