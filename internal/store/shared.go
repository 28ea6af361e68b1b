package store

import (
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/Iron-Ham/workcrew/internal/logging"
)

// locations maps an absolute document path to the view shared by every
// handle opened on it within this process.
var (
	locationsMu sync.Mutex
	locations   = make(map[string]*sharedView)
)

// sharedView is the single in-memory view of one storage location.
type sharedView struct {
	path   string
	logger *logging.Logger

	// mu serialises every read and write of this location in-process; the
	// file lock extends the write exclusion across processes.
	mu           sync.Mutex
	doc          *document
	primaryValid bool
	dirty        bool
	warnings     []error
	refs         int

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// acquireView returns the shared view for path, creating it on first use.
func acquireView(path string, logger *logging.Logger) *sharedView {
	locationsMu.Lock()
	defer locationsMu.Unlock()

	if v, ok := locations[path]; ok {
		v.refs++
		return v
	}
	v := &sharedView{path: path, logger: logger, dirty: true, refs: 1}
	v.startWatching()
	locations[path] = v
	return v
}

// release drops one reference and tears the view down with the last one.
func (v *sharedView) release() {
	locationsMu.Lock()
	v.refs--
	last := v.refs == 0
	if last {
		delete(locations, v.path)
	}
	locationsMu.Unlock()

	if last {
		v.stopWatching()
	}
}

// startWatching marks the view dirty whenever the snapshot is replaced by
// another process. Watch failures only cost the cache: every write reloads
// from disk under the file lock regardless.
func (v *sharedView) startWatching() {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		v.logger.Warn("store watcher unavailable", "path", v.path, "error", err.Error())
		return
	}
	if err := w.Add(filepath.Dir(v.path)); err != nil {
		_ = w.Close()
		v.logger.Warn("store watcher unavailable", "path", v.path, "error", err.Error())
		return
	}
	v.watcher = w
	v.stopCh = make(chan struct{})
	v.doneCh = make(chan struct{})
	go v.watchLoop()
}

func (v *sharedView) stopWatching() {
	if v.watcher == nil {
		return
	}
	close(v.stopCh)
	_ = v.watcher.Close()
	<-v.doneCh
}

func (v *sharedView) watchLoop() {
	defer close(v.doneCh)
	for {
		select {
		case <-v.stopCh:
			return
		case ev, ok := <-v.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != v.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			v.mu.Lock()
			v.dirty = true
			v.mu.Unlock()
		case err, ok := <-v.watcher.Errors:
			if !ok {
				return
			}
			v.logger.Warn("store watcher error", "path", v.path, "error", err.Error())
			v.mu.Lock()
			v.dirty = true
			v.mu.Unlock()
		}
	}
}

// refreshLocked reloads the document from disk when the cache is stale.
// v.mu must be held.
func (v *sharedView) refreshLocked(force bool) error {
	if !force && !v.dirty && v.doc != nil {
		return nil
	}
	res, err := loadDocument(v.path)
	if err != nil {
		return err
	}
	if res.warning != nil {
		v.logger.Warn("state snapshot corrupted, loaded backup", "path", v.path, "error", res.warning.Error())
		v.warnings = append(v.warnings, res.warning)
	}
	v.doc = res.doc
	v.primaryValid = res.primaryValid
	v.dirty = false
	return nil
}

// read runs fn against the current document. fn must not retain or modify it.
func (v *sharedView) read(fn func(*document) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.refreshLocked(false); err != nil {
		return err
	}
	return fn(v.doc)
}

// write runs one read-modify-write cycle: it takes the file lock, reloads
// from disk, applies fn to a copy and persists the copy. When fn fails
// nothing is written and the view is unchanged.
func (v *sharedView) write(fn func(*document) error) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	unlock, err := lockDocument(v.path)
	if err != nil {
		return err
	}
	defer unlock()

	if err := v.refreshLocked(true); err != nil {
		return err
	}
	next := v.doc.clone()
	if err := fn(next); err != nil {
		return err
	}
	if err := saveDocument(v.path, next, v.primaryValid); err != nil {
		return err
	}
	v.doc = next
	v.primaryValid = true
	return nil
}

func (v *sharedView) warningsSnapshot() []error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]error(nil), v.warnings...)
}
