// Package testutil provides fixtures shared by workcrew tests that span
// packages: a store in a temporary root, seeded projects and invokers.
package testutil

import (
	"testing"
	"time"

	"github.com/Iron-Ham/workcrew/internal/backend"
	"github.com/Iron-Ham/workcrew/internal/invoke"
	"github.com/Iron-Ham/workcrew/internal/model"
	"github.com/Iron-Ham/workcrew/internal/store"
)

// StoreLocation is the document name used by OpenStore.
const StoreLocation = "workcrew.json"

// OpenStore opens a store under root, or under a fresh temporary directory
// when root is empty. The store is closed when the test completes.
func OpenStore(t *testing.T, root string) *store.Store {
	t.Helper()

	if root == "" {
		root = t.TempDir()
	}
	st, err := store.Open(store.Options{Root: root, Location: StoreLocation})
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

// Member returns an active assignment of workerID at priority.
func Member(workerID string, priority int) model.TeamMember {
	return model.TeamMember{WorkerID: workerID, Priority: priority, Active: true}
}

// Members returns active assignments at priority 1 for each worker, so
// they form a single concurrent group.
func Members(workerIDs ...string) []model.TeamMember {
	out := make([]model.TeamMember, len(workerIDs))
	for i, id := range workerIDs {
		out[i] = Member(id, 1)
	}
	return out
}

// SeedProject creates a project with the given teams in order and returns
// it as stored.
func SeedProject(t *testing.T, st *store.Store, name string, teams ...store.TeamSpec) model.Project {
	t.Helper()

	p, err := st.CreateProject(name, "")
	if err != nil {
		t.Fatalf("failed to create project %q: %v", name, err)
	}
	for _, spec := range teams {
		if _, err := st.CreateTeam(p.ID, spec); err != nil {
			t.Fatalf("failed to create team %q: %v", spec.Name, err)
		}
	}
	p, err = st.GetProject(p.ID)
	if err != nil {
		t.Fatalf("failed to reload project: %v", err)
	}
	return p
}

// FastPolicy is the default three-tier chain without backoff waits.
func FastPolicy() invoke.Policy {
	p := invoke.DefaultPolicy()
	p.BaseDelay = time.Millisecond
	p.MaxDelay = time.Millisecond
	return p
}

// NewInvoker wraps b in an invoker with FastPolicy.
func NewInvoker(t *testing.T, b backend.Backend, opts ...invoke.Option) *invoke.Invoker {
	t.Helper()

	inv, err := invoke.New(b, FastPolicy(), opts...)
	if err != nil {
		t.Fatalf("failed to create invoker: %v", err)
	}
	return inv
}
