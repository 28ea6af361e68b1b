package store

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/memory"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/registry"
)

// SchemaVersion is the current document layout version. Version 1 had no
// learnings and no custom workers.
const SchemaVersion = 2

// document is the persisted state of one storage location.
type document struct {
	SchemaVersion int                      `json:"schema_version"`
	Projects      []model.Project          `json:"projects"`
	Executions    []model.ProjectExecution `json:"executions"`
	Learnings     []memory.Entry           `json:"learnings"`
	Workers       []registry.Worker        `json:"workers"`
}

func newDocument() *document {
	return &document{
		SchemaVersion: SchemaVersion,
		Projects:      []model.Project{},
		Executions:    []model.ProjectExecution{},
		Learnings:     []memory.Entry{},
		Workers:       []registry.Worker{},
	}
}

func (d *document) clone() *document {
	c := &document{
		SchemaVersion: d.SchemaVersion,
		Projects:      make([]model.Project, len(d.Projects)),
		Executions:    make([]model.ProjectExecution, len(d.Executions)),
		Learnings:     append([]memory.Entry{}, d.Learnings...),
		Workers:       append([]registry.Worker{}, d.Workers...),
	}
	for i, p := range d.Projects {
		c.Projects[i] = p.Clone()
	}
	for i, e := range d.Executions {
		c.Executions[i] = e.Clone()
	}
	return c
}

func (d *document) project(id string) *model.Project {
	for i := range d.Projects {
		if d.Projects[i].ID == id {
			return &d.Projects[i]
		}
	}
	return nil
}

// team returns the team with id and its owning project.
func (d *document) team(id string) (*model.Project, *model.Team) {
	for i := range d.Projects {
		if t := d.Projects[i].Team(id); t != nil {
			return &d.Projects[i], t
		}
	}
	return nil, nil
}

func (d *document) execution(id string) *model.ProjectExecution {
	for i := range d.Executions {
		if d.Executions[i].ID == id {
			return &d.Executions[i]
		}
	}
	return nil
}

// migrate lifts an older document to SchemaVersion in place.
func (d *document) migrate() error {
	switch {
	case d.SchemaVersion < 1:
		return fmt.Errorf("invalid schema version %d", d.SchemaVersion)
	case d.SchemaVersion > SchemaVersion:
		return fmt.Errorf("schema version %d is newer than supported version %d", d.SchemaVersion, SchemaVersion)
	}
	if d.SchemaVersion == 1 {
		d.Learnings = []memory.Entry{}
		d.Workers = []registry.Worker{}
		d.SchemaVersion = 2
	}
	if d.Projects == nil {
		d.Projects = []model.Project{}
	}
	if d.Executions == nil {
		d.Executions = []model.ProjectExecution{}
	}
	if d.Learnings == nil {
		d.Learnings = []memory.Entry{}
	}
	if d.Workers == nil {
		d.Workers = []registry.Worker{}
	}
	return nil
}

// check verifies structural invariants a hand-edited or truncated document
// could break.
func (d *document) check() error {
	projects := make(map[string]bool, len(d.Projects))
	for _, p := range d.Projects {
		if p.ID == "" {
			return fmt.Errorf("project with empty id")
		}
		if projects[p.ID] {
			return fmt.Errorf("duplicate project id %s", p.ID)
		}
		projects[p.ID] = true
		for _, tid := range p.TeamIDs {
			if p.Team(tid) == nil {
				return fmt.Errorf("project %s orders unknown team %s", p.ID, tid)
			}
		}
	}
	executions := make(map[string]bool, len(d.Executions))
	for _, e := range d.Executions {
		if e.ID == "" || executions[e.ID] {
			return fmt.Errorf("missing or duplicate execution id %q", e.ID)
		}
		executions[e.ID] = true
	}
	return nil
}

// decodeDocument parses and migrates raw snapshot bytes.
func decodeDocument(data []byte) (*document, error) {
	var d document
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, err
	}
	if err := d.migrate(); err != nil {
		return nil, err
	}
	if err := d.check(); err != nil {
		return nil, err
	}
	return &d, nil
}

// loadResult is the outcome of reading a location from disk.
type loadResult struct {
	doc *document
	// primaryValid is false when the primary snapshot was unreadable, in which
	// case the next write must not overwrite the backup with it.
	primaryValid bool
	// warning is set when the backup was loaded instead of the primary.
	warning error
}

// loadDocument reads the primary snapshot at path, falling back to
// "<path>.bak" when the primary is structurally invalid. A missing primary
// yields an empty document.
func loadDocument(path string) (loadResult, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return loadResult{doc: newDocument(), primaryValid: true}, nil
	}
	if err != nil {
		return loadResult{}, fmt.Errorf("read state file: %w", err)
	}

	doc, perr := decodeDocument(data)
	if perr == nil {
		return loadResult{doc: doc, primaryValid: true}, nil
	}

	backup, berr := os.ReadFile(backupPath(path))
	if berr != nil {
		return loadResult{}, errors.NewStoreCorruptionError(path, false, perr)
	}
	doc, berr = decodeDocument(backup)
	if berr != nil {
		return loadResult{}, errors.NewStoreCorruptionError(path, false, errors.Join(perr, berr))
	}
	return loadResult{
		doc:     doc,
		warning: errors.NewStoreCorruptionError(path, true, perr),
	}, nil
}

// saveDocument writes doc atomically: the previous valid primary is copied
// to the backup, the new snapshot is written to a temporary file and then
// renamed into place.
func saveDocument(path string, doc *document, primaryValid bool) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	if primaryValid {
		if err := copyFile(path, backupPath(path)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("write backup: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := writeSynced(tmp, data); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp) // best-effort cleanup
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func backupPath(path string) string {
	return path + ".bak"
}

func writeSynced(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// copyFile replaces dst with the contents of src via a temporary file.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	tmp := dst + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dst)
}
