package store

import (
	"os"
	"sync"
	"time"

	"github.com/Iron-Ham/workcrew/internal/errors"
	"github.com/Iron-Ham/workcrew/internal/logging"
	"github.com/Iron-Ham/workcrew/internal/registry"
)

// Options configures Open.
type Options struct {
	// Root is the directory every storage location must resolve inside. It is
	// created when missing.
	Root string
	// Location is the document path, relative to Root or absolute inside it.
	Location string
	// Registry validates worker assignments and receives persisted custom
	// workers. Nil uses the built-in workers only.
	Registry *registry.Registry
	Logger   *logging.Logger
}

// Store is a handle on one storage location. Handles are cheap; all handles
// on the same location share state. A Store is safe for concurrent use.
type Store struct {
	view     *sharedView
	registry *registry.Registry
	logger   *logging.Logger
	now      func() time.Time

	closeOnce sync.Once
}

// Open validates the location and returns a handle on it. Custom workers
// persisted at the location are registered into opts.Registry.
func Open(opts Options) (*Store, error) {
	logger := logging.OrNop(opts.Logger)
	if opts.Root != "" {
		if err := os.MkdirAll(opts.Root, 0o755); err != nil {
			return nil, errors.Wrap(err, "create storage root")
		}
	}
	path, err := ResolveLocation(opts.Root, opts.Location)
	if err != nil {
		return nil, err
	}

	reg := opts.Registry
	if reg == nil {
		reg = registry.New()
	}
	s := &Store{
		view:     acquireView(path, logger.With("store", path)),
		registry: reg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := s.loadWorkers(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the handle. The shared view is torn down with the last
// handle on the location.
func (s *Store) Close() {
	s.closeOnce.Do(s.view.release)
}

// Path returns the absolute document path.
func (s *Store) Path() string {
	return s.view.path
}

// Registry returns the worker registry the store validates against.
func (s *Store) Registry() *registry.Registry {
	return s.registry
}

// Warnings returns the recoverable problems observed on this location, such
// as a corrupted snapshot that was replaced by its backup.
func (s *Store) Warnings() []error {
	return s.view.warningsSnapshot()
}

// Verify loads the location from disk, surfacing corruption without
// modifying anything.
func (s *Store) Verify() error {
	s.view.mu.Lock()
	defer s.view.mu.Unlock()
	return s.view.refreshLocked(true)
}

func (s *Store) loadWorkers() error {
	return s.view.read(func(d *document) error {
		for _, w := range d.Workers {
			if existing, ok := s.registry.Get(w.ID); ok && existing.Builtin {
				continue
			}
			if err := s.registry.Register(w); err != nil {
				s.logger.Warn("skipping invalid persisted worker", "worker_id", w.ID, "error", err.Error())
			}
		}
		return nil
	})
}

// RegisterWorker validates w, registers it and persists it so later handles
// on this location see it.
func (s *Store) RegisterWorker(w registry.Worker) error {
	w.Builtin = false
	return s.view.write(func(d *document) error {
		if err := s.registry.Register(w); err != nil {
			return err
		}
		for i := range d.Workers {
			if d.Workers[i].ID == w.ID {
				d.Workers[i] = w
				return nil
			}
		}
		d.Workers = append(d.Workers, w)
		return nil
	})
}
