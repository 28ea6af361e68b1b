// Package registry holds the capability-tagged catalogue of workers a team
// may assign. Workers are keyed by a stable ID and declare a label, a
// default prompt and a category. Team definitions are validated against the
// registry when they are written, not when they run.
package registry

import (
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/Iron-Ham/workcrew/internal/errors"
)

// Worker categories used by the built-in catalogue. Custom workers may use
// any non-empty category.
const (
	CategoryResearch = "research"
	CategoryAnalysis = "analysis"
	CategoryWriting  = "writing"
	CategoryReview   = "review"
	CategoryPlanning = "planning"
)

const (
	maxLabelLen  = 80
	maxPromptLen = 8000
)

var workerIDPattern = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)

// Worker is a registered worker definition.
type Worker struct {
	ID            string `json:"id" yaml:"id"`
	Label         string `json:"label" yaml:"label"`
	DefaultPrompt string `json:"default_prompt" yaml:"default_prompt"`
	Category      string `json:"category" yaml:"category"`
	Builtin       bool   `json:"builtin,omitempty" yaml:"-"`
}

// Registry is a concurrency-safe worker catalogue.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]Worker
}

// New returns a registry preloaded with the built-in workers.
func New() *Registry {
	r := NewEmpty()
	for _, w := range builtins {
		w.Builtin = true
		r.workers[w.ID] = w
	}
	return r
}

// NewEmpty returns a registry with no workers.
func NewEmpty() *Registry {
	return &Registry{workers: make(map[string]Worker)}
}

// Register adds a custom worker. Built-in IDs cannot be overridden; a custom
// ID registered twice is replaced by the newer definition.
func (r *Registry) Register(w Worker) error {
	if err := validateWorker(w); err != nil {
		return err
	}
	w.Builtin = false

	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.workers[w.ID]; ok && existing.Builtin {
		return errors.NewValidationError("cannot override built-in worker").WithField("id").WithValue(w.ID)
	}
	r.workers[w.ID] = w
	return nil
}

func validateWorker(w Worker) error {
	if !workerIDPattern.MatchString(w.ID) {
		return errors.NewValidationError("worker id must match " + workerIDPattern.String()).
			WithField("id").WithValue(w.ID)
	}
	label := strings.TrimSpace(w.Label)
	if label == "" || len([]rune(label)) > maxLabelLen {
		return errors.NewValidationError("worker label must be 1-80 characters").
			WithField("label").WithValue(w.Label)
	}
	if strings.TrimSpace(w.DefaultPrompt) == "" || len([]rune(w.DefaultPrompt)) > maxPromptLen {
		return errors.NewValidationError("worker default prompt must be 1-8000 characters").
			WithField("default_prompt")
	}
	if strings.TrimSpace(w.Category) == "" {
		return errors.NewValidationError("worker category is required").WithField("category")
	}
	return nil
}

// Get returns the worker with the given ID.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// Has reports whether id is registered.
func (r *Registry) Has(id string) bool {
	_, ok := r.Get(id)
	return ok
}

// List returns all workers sorted by category, then ID.
func (r *Registry) List() []Worker {
	r.mu.RLock()
	out := make([]Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Custom returns the non-built-in workers in List order.
func (r *Registry) Custom() []Worker {
	var out []Worker
	for _, w := range r.List() {
		if !w.Builtin {
			out = append(out, w)
		}
	}
	return out
}

// ByCategory returns the workers of one category, sorted by ID.
func (r *Registry) ByCategory(category string) []Worker {
	var out []Worker
	for _, w := range r.List() {
		if w.Category == category {
			out = append(out, w)
		}
	}
	return out
}

// Require returns a ValidationError naming the first unknown worker ID.
func (r *Registry) Require(ids ...string) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if _, ok := r.workers[id]; !ok {
			return errors.NewValidationError("unknown worker").WithField("worker_id").WithValue(id)
		}
	}
	return nil
}
