package store

import (
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// CreateProject validates and persists a new active project.
func (s *Store) CreateProject(name, description string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName("project name", name); err != nil {
		return model.Project{}, err
	}
	if err := ValidateText("project description", description, MaxDescriptionLength); err != nil {
		return model.Project{}, err
	}

	now := s.now()
	p := model.Project{
		ID:          uuid.NewString(),
		Name:        name,
		Description: description,
		Status:      model.ProjectActive,
		TeamIDs:     []string{},
		Teams:       []model.Team{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.view.write(func(d *document) error {
		for _, existing := range d.Projects {
			if existing.Status == model.ProjectActive && strings.EqualFold(existing.Name, name) {
				return errors.NewValidationError("an active project with this name exists").WithField("name").WithValue(name)
			}
		}
		d.Projects = append(d.Projects, p)
		return nil
	})
	if err != nil {
		return model.Project{}, err
	}
	s.logger.Info("project created", "project_id", p.ID, "name", name)
	return p.Clone(), nil
}

// GetProject returns a copy of the project.
func (s *Store) GetProject(id string) (model.Project, error) {
	var out model.Project
	err := s.view.read(func(d *document) error {
		p := d.project(id)
		if p == nil {
			return errors.NewNotFoundError("project", id)
		}
		out = p.Clone()
		return nil
	})
	return out, err
}

// FindProject resolves a project by ID or, failing that, by case-insensitive
// name among active projects.
func (s *Store) FindProject(ref string) (model.Project, error) {
	var out model.Project
	err := s.view.read(func(d *document) error {
		if p := d.project(ref); p != nil {
			out = p.Clone()
			return nil
		}
		for _, p := range d.Projects {
			if p.Status == model.ProjectActive && strings.EqualFold(p.Name, ref) {
				out = p.Clone()
				return nil
			}
		}
		return errors.NewNotFoundError("project", ref)
	})
	return out, err
}

// ListProjects returns projects in creation order. Archived projects are
// included only when includeArchived is set.
func (s *Store) ListProjects(includeArchived bool) ([]model.Project, error) {
	var out []model.Project
	err := s.view.read(func(d *document) error {
		for _, p := range d.Projects {
			if p.Status == model.ProjectArchived && !includeArchived {
				continue
			}
			out = append(out, p.Clone())
		}
		return nil
	})
	return out, err
}

// UpdateProject replaces the name and description of an active project.
func (s *Store) UpdateProject(id, name, description string) (model.Project, error) {
	name = strings.TrimSpace(name)
	if err := ValidateName("project name", name); err != nil {
		return model.Project{}, err
	}
	if err := ValidateText("project description", description, MaxDescriptionLength); err != nil {
		return model.Project{}, err
	}

	var out model.Project
	err := s.view.write(func(d *document) error {
		p, err := activeProject(d, id)
		if err != nil {
			return err
		}
		for _, other := range d.Projects {
			if other.ID != id && other.Status == model.ProjectActive && strings.EqualFold(other.Name, name) {
				return errors.NewValidationError("an active project with this name exists").WithField("name").WithValue(name)
			}
		}
		p.Name = name
		p.Description = description
		p.UpdatedAt = s.now()
		out = p.Clone()
		return nil
	})
	return out, err
}

// ArchiveProject soft-deletes a project. Its teams and history are kept, and
// it no longer accepts edits or runs.
func (s *Store) ArchiveProject(id string) error {
	err := s.view.write(func(d *document) error {
		p := d.project(id)
		if p == nil {
			return errors.NewNotFoundError("project", id)
		}
		if p.Status == model.ProjectArchived {
			return nil
		}
		for _, e := range d.Executions {
			if e.ProjectID == id && !e.Status.IsTerminal() {
				return errors.NewValidationError("project has an execution in progress").WithField("project_id").WithValue(id)
			}
		}
		p.Status = model.ProjectArchived
		p.UpdatedAt = s.now()
		return nil
	})
	if err == nil {
		s.logger.Info("project archived", "project_id", id)
	}
	return err
}

// CreateTeam appends a validated team to the end of a project's order.
func (s *Store) CreateTeam(projectID string, spec TeamSpec) (model.Team, error) {
	spec = spec.normalized()
	if err := validateTeamSpec(spec, s.registry); err != nil {
		return model.Team{}, err
	}

	var out model.Team
	err := s.view.write(func(d *document) error {
		p, err := activeProject(d, projectID)
		if err != nil {
			return err
		}
		if err := uniqueTeamName(p, "", spec.Name); err != nil {
			return err
		}
		t := model.Team{
			ID:                uuid.NewString(),
			ProjectID:         projectID,
			Name:              spec.Name,
			Description:       spec.Description,
			ExecutionOrder:    len(p.TeamIDs),
			CheckpointEnabled: spec.CheckpointEnabled,
			FailurePolicy:     spec.FailurePolicy,
			Members:           spec.Members,
		}
		p.Teams = append(p.Teams, t)
		p.TeamIDs = append(p.TeamIDs, t.ID)
		p.UpdatedAt = s.now()
		out = t.Clone()
		return nil
	})
	if err != nil {
		return model.Team{}, err
	}
	s.logger.Info("team created", "project_id", projectID, "team_id", out.ID, "name", out.Name)
	return out, nil
}

// GetTeam returns a copy of the team.
func (s *Store) GetTeam(teamID string) (model.Team, error) {
	var out model.Team
	err := s.view.read(func(d *document) error {
		_, t := d.team(teamID)
		if t == nil {
			return errors.NewNotFoundError("team", teamID)
		}
		out = t.Clone()
		return nil
	})
	return out, err
}

// ListTeams returns a project's teams in declared order.
func (s *Store) ListTeams(projectID string) ([]model.Team, error) {
	p, err := s.GetProject(projectID)
	if err != nil {
		return nil, err
	}
	return p.OrderedTeams(), nil
}

// UpdateTeam replaces a team's definition, keeping its ID and position.
func (s *Store) UpdateTeam(teamID string, spec TeamSpec) (model.Team, error) {
	spec = spec.normalized()
	if err := validateTeamSpec(spec, s.registry); err != nil {
		return model.Team{}, err
	}

	var out model.Team
	err := s.view.write(func(d *document) error {
		p, t, err := editableTeam(d, teamID)
		if err != nil {
			return err
		}
		if err := uniqueTeamName(p, teamID, spec.Name); err != nil {
			return err
		}
		t.Name = spec.Name
		t.Description = spec.Description
		t.CheckpointEnabled = spec.CheckpointEnabled
		t.FailurePolicy = spec.FailurePolicy
		t.Members = spec.Members
		p.UpdatedAt = s.now()
		out = t.Clone()
		return nil
	})
	return out, err
}

// SetMembers replaces a team's worker assignments.
func (s *Store) SetMembers(teamID string, members []model.TeamMember) (model.Team, error) {
	if err := validateMembers(members, s.registry); err != nil {
		return model.Team{}, err
	}

	var out model.Team
	err := s.view.write(func(d *document) error {
		p, t, err := editableTeam(d, teamID)
		if err != nil {
			return err
		}
		t.Members = append([]model.TeamMember(nil), members...)
		p.UpdatedAt = s.now()
		out = t.Clone()
		return nil
	})
	return out, err
}

// DeleteTeam removes a team. Deletion is rejected while an unfinished
// execution of the project still references the team.
func (s *Store) DeleteTeam(teamID string) error {
	return s.view.write(func(d *document) error {
		p, _, err := editableTeam(d, teamID)
		if err != nil {
			return err
		}
		for _, e := range d.Executions {
			if e.ProjectID == p.ID && !e.Status.IsTerminal() && e.TeamByTeamID(teamID) != nil {
				return errors.NewValidationError("team is referenced by an unfinished execution").
					WithField("team_id").WithValue(teamID)
			}
		}
		p.Teams = slices.DeleteFunc(p.Teams, func(t model.Team) bool { return t.ID == teamID })
		p.TeamIDs = slices.DeleteFunc(p.TeamIDs, func(id string) bool { return id == teamID })
		renumber(p)
		p.UpdatedAt = s.now()
		return nil
	})
}

// ReorderTeams sets the project's team order. ids must be a permutation of
// the project's team IDs.
func (s *Store) ReorderTeams(projectID string, ids []string) error {
	return s.view.write(func(d *document) error {
		p, err := activeProject(d, projectID)
		if err != nil {
			return err
		}
		if len(ids) != len(p.TeamIDs) {
			return errors.NewValidationError("order must list every team exactly once").WithField("team_ids")
		}
		seen := make(map[string]bool, len(ids))
		for _, id := range ids {
			if p.Team(id) == nil || seen[id] {
				return errors.NewValidationError("order must list every team exactly once").WithField("team_ids").WithValue(id)
			}
			seen[id] = true
		}
		p.TeamIDs = append([]string(nil), ids...)
		renumber(p)
		p.UpdatedAt = s.now()
		return nil
	})
}

func renumber(p *model.Project) {
	for i, id := range p.TeamIDs {
		if t := p.Team(id); t != nil {
			t.ExecutionOrder = i
		}
	}
}

func activeProject(d *document, id string) (*model.Project, error) {
	p := d.project(id)
	if p == nil {
		return nil, errors.NewNotFoundError("project", id)
	}
	if p.Status == model.ProjectArchived {
		return nil, errors.NewValidationError("project is archived").WithField("project_id").WithValue(id)
	}
	return p, nil
}

func editableTeam(d *document, teamID string) (*model.Project, *model.Team, error) {
	p, t := d.team(teamID)
	if t == nil {
		return nil, nil, errors.NewNotFoundError("team", teamID)
	}
	if p.Status == model.ProjectArchived {
		return nil, nil, errors.NewValidationError("project is archived").WithField("project_id").WithValue(p.ID)
	}
	return p, t, nil
}

func uniqueTeamName(p *model.Project, selfID, name string) error {
	for _, t := range p.Teams {
		if t.ID != selfID && strings.EqualFold(t.Name, name) {
			return errors.NewValidationError("team name already used in this project").WithField("name").WithValue(name)
		}
	}
	return nil
}
