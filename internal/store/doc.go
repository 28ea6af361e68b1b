// Package store persists projects, teams, execution history, learnings and
// custom workers as one versioned JSON document per storage location.
//
// # Concurrency
//
// Every handle opened on the same location within a process shares one
// in-memory view. Each mutation holds the view's mutex and an exclusive
// flock(2) on "<document>.lock" for the full read-modify-write cycle, and
// always reloads the document from disk before applying the change, so
// writers in other processes are never silently overwritten. An fsnotify
// watcher invalidates the cached view when another process replaces the
// snapshot.
//
// Known limitation: writes are serialised by one exclusive lock. There is no
// optimistic multi-writer merge; the store targets a few writers at a time.
//
// # Durability
//
// A write copies the previous valid snapshot to "<document>.bak", writes the
// new snapshot to "<document>.tmp" and renames it into place. A structurally
// invalid primary snapshot is replaced by the backup on read, and the
// recovery is reported through [Store.Warnings]. When neither is readable
// the store returns a fatal *errors.StoreCorruptionError.
//
// # Validation
//
// Names and descriptions are bounds-checked and control characters are
// rejected at write time. Worker assignments are checked against the worker
// registry. Storage locations are resolved by [ResolveLocation] and must lie
// inside the configured root.
package store
