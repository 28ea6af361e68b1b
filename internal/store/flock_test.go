package store

import (
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestLockDocument(t *testing.T) {
	doc := filepath.Join(t.TempDir(), "state.json")

	unlock, err := lockDocument(doc)
	if err != nil {
		t.Fatalf("lockDocument: %v", err)
	}
	if _, err := os.Stat(doc + ".lock"); err != nil {
		t.Errorf("lock file should exist: %v", err)
	}

	// flock locks belong to the open file description, so a second open in
	// the same process contends like another process would.
	other, err := os.OpenFile(doc+".lock", os.O_RDWR, 0)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer other.Close()
	if err := syscall.Flock(int(other.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err == nil {
		t.Fatal("the document should be locked")
	}

	unlock()
	if err := syscall.Flock(int(other.Fd()), syscall.LOCK_EX|syscall.LOCK_NB); err != nil {
		t.Errorf("the lock should be released: %v", err)
	}
}

func TestLockDocument_InvalidDir(t *testing.T) {
	if _, err := lockDocument("/nonexistent/dir/state.json"); err == nil {
		t.Error("lockDocument should fail for a nonexistent directory")
	}
}
