package store

import (
	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
)

// CreateExecution appends a new execution record for an active project.
func (s *Store) CreateExecution(e model.ProjectExecution) error {
	if e.ID == "" {
		return errors.NewValidationError("execution id is required").WithField("id")
	}
	if err := ValidateText("task", e.Task, MaxTaskLength); err != nil {
		return err
	}
	return s.view.write(func(d *document) error {
		if _, err := activeProject(d, e.ProjectID); err != nil {
			return err
		}
		if d.execution(e.ID) != nil {
			return errors.NewValidationError("execution already exists").WithField("id").WithValue(e.ID)
		}
		d.Executions = append(d.Executions, e.Clone())
		return nil
	})
}

// SaveExecution replaces an execution record. Records that reached a
// terminal status are immutable, and status changes must follow the
// execution state machine.
func (s *Store) SaveExecution(e model.ProjectExecution) error {
	return s.view.write(func(d *document) error {
		current := d.execution(e.ID)
		if current == nil {
			return errors.NewNotFoundError("execution", e.ID)
		}
		if current.Status.IsTerminal() {
			return errors.NewImmutableRecordError("execution", e.ID)
		}
		if current.Status != e.Status && !current.Status.CanTransition(e.Status) {
			return errors.NewValidationError("invalid execution status transition").
				WithField("status").WithValue(string(current.Status) + " -> " + string(e.Status))
		}
		if current.ProjectID != e.ProjectID {
			return errors.NewValidationError("execution project cannot change").WithField("project_id")
		}
		if err := checkTeams(current, &e); err != nil {
			return err
		}
		*current = e.Clone()
		return nil
	})
}

// checkTeams applies the team state machine to every team record of next.
// A terminal team record is immutable. A pending team may complete directly
// only when it is carried over from an earlier execution.
func checkTeams(current, next *model.ProjectExecution) error {
	if len(next.Teams) != len(current.Teams) {
		return errors.NewValidationError("execution teams cannot be added or removed").WithField("teams")
	}
	for i := range current.Teams {
		cur, nt := &current.Teams[i], &next.Teams[i]
		if cur.ID != nt.ID {
			return errors.NewValidationError("execution teams cannot be reordered").WithField("teams").WithValue(nt.ID)
		}
		if cur.Status.IsTerminal() {
			if !sameOutcome(cur, nt) {
				return errors.NewImmutableRecordError("team execution", cur.ID)
			}
			continue
		}
		if cur.Status == nt.Status || cur.Status.CanTransition(nt.Status) {
			continue
		}
		if cur.Status == model.TeamPending && nt.Status == model.TeamCompleted && nt.ReusedFrom != "" {
			continue
		}
		return errors.NewValidationError("invalid team status transition").
			WithField("status").WithValue(cur.ID + ": " + string(cur.Status) + " -> " + string(nt.Status))
	}
	return nil
}

// sameOutcome compares what a finished team recorded and passed on.
func sameOutcome(a, b *model.TeamExecution) bool {
	if a.Status != b.Status || a.Output != b.Output || a.Error != b.Error ||
		a.Contribution != b.Contribution || a.Contributed != b.Contributed ||
		len(a.Workers) != len(b.Workers) || a.ReusedFrom != b.ReusedFrom {
		return false
	}
	if (a.Checkpoint == nil) != (b.Checkpoint == nil) {
		return false
	}
	return a.Checkpoint == nil || a.Checkpoint.Status == b.Checkpoint.Status
}

// GetExecution returns a copy of the execution record.
func (s *Store) GetExecution(id string) (model.ProjectExecution, error) {
	var out model.ProjectExecution
	err := s.view.read(func(d *document) error {
		e := d.execution(id)
		if e == nil {
			return errors.NewNotFoundError("execution", id)
		}
		out = e.Clone()
		return nil
	})
	return out, err
}

// ListExecutions returns a project's executions in creation order. An empty
// projectID lists every execution.
func (s *Store) ListExecutions(projectID string) ([]model.ProjectExecution, error) {
	var out []model.ProjectExecution
	err := s.view.read(func(d *document) error {
		for _, e := range d.Executions {
			if projectID == "" || e.ProjectID == projectID {
				out = append(out, e.Clone())
			}
		}
		return nil
	})
	return out, err
}

// AppendLearning implements memory.Writer.
func (s *Store) AppendLearning(e memory.Entry) error {
	if err := memory.Validate(e); err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	return s.view.write(func(d *document) error {
		d.Learnings = append(d.Learnings, e)
		return nil
	})
}

// Learnings implements memory.Reader.
func (s *Store) Learnings(key string, limit int) ([]memory.Entry, error) {
	var out []memory.Entry
	err := s.view.read(func(d *document) error {
		out = memory.Tail(d.Learnings, key, limit)
		return nil
	})
	return out, err
}

var (
	_ memory.Reader = (*Store)(nil)
	_ memory.Writer = (*Store)(nil)
)
