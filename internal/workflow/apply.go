package workflow

import (
	"strings"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// ApplyOptions controls Apply.
type ApplyOptions struct {
	// Prune deletes stored teams the document no longer lists.
	Prune  bool
	Logger *logging.Logger
}

// ApplyResult summarises what Apply changed.
type ApplyResult struct {
	ProjectID      string
	ProjectCreated bool
	TeamsCreated   []string
	TeamsUpdated   []string
	TeamsRemoved   []string
	WorkersAdded   []string
}

// Apply writes def into st. An active project with the same name is updated
// in place: teams are matched by name, new teams are created and the stored
// order is set to the document order. Every team is validated against the
// registry before the first write.
func Apply(st *store.Store, def *Definition, opts ApplyOptions) (*ApplyResult, error) {
	logger := logging.OrNop(opts.Logger)
	if err := def.Validate(); err != nil {
		return nil, err
	}

	res := &ApplyResult{}
	for _, w := range def.Workers {
		if err := st.RegisterWorker(w); err != nil {
			return nil, errors.Wrapf(err, "register worker %s", w.ID)
		}
		res.WorkersAdded = append(res.WorkersAdded, w.ID)
	}

	specs := make([]store.TeamSpec, len(def.Teams))
	for i, t := range def.Teams {
		specs[i] = t.Spec()
		if err := store.ValidateTeamSpec(specs[i], st.Registry()); err != nil {
			return nil, errors.Wrapf(err, "team %q", t.Name)
		}
	}

	project, err := st.FindProject(strings.TrimSpace(def.Project.Name))
	switch {
	case errors.Is(err, errors.ErrNotFound):
		project, err = st.CreateProject(def.Project.Name, def.Project.Description)
		if err != nil {
			return nil, err
		}
		res.ProjectCreated = true
	case err != nil:
		return nil, err
	default:
		project, err = st.UpdateProject(project.ID, def.Project.Name, def.Project.Description)
		if err != nil {
			return nil, err
		}
	}
	res.ProjectID = project.ID

	existing := make(map[string]model.Team, len(project.Teams))
	for _, t := range project.Teams {
		existing[strings.ToLower(t.Name)] = t
	}

	var order []string
	for _, spec := range specs {
		key := strings.ToLower(spec.Name)
		if t, ok := existing[key]; ok {
			if _, err := st.UpdateTeam(t.ID, spec); err != nil {
				return nil, err
			}
			delete(existing, key)
			order = append(order, t.ID)
			res.TeamsUpdated = append(res.TeamsUpdated, spec.Name)
			continue
		}
		t, err := st.CreateTeam(project.ID, spec)
		if err != nil {
			return nil, err
		}
		order = append(order, t.ID)
		res.TeamsCreated = append(res.TeamsCreated, spec.Name)
	}

	// Teams left in existing are not in the document.
	for _, id := range project.TeamIDs {
		t := project.Team(id)
		if t == nil {
			continue
		}
		if _, stale := existing[strings.ToLower(t.Name)]; !stale {
			continue
		}
		if opts.Prune {
			if err := st.DeleteTeam(t.ID); err != nil {
				return nil, err
			}
			res.TeamsRemoved = append(res.TeamsRemoved, t.Name)
			continue
		}
		order = append(order, t.ID)
	}

	if err := st.ReorderTeams(project.ID, order); err != nil {
		return nil, err
	}
	logger.Info("workflow applied",
		"project_id", project.ID,
		"created", len(res.TeamsCreated),
		"updated", len(res.TeamsUpdated),
		"removed", len(res.TeamsRemoved))
	return res, nil
}
