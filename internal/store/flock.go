package store

import (
	"fmt"
	"os"
	"syscall"
)

// lockDocument takes an exclusive flock(2) on "<document>.lock", blocking
// until other processes release it, and returns the release function.
func lockDocument(documentPath string) (func(), error) {
	f, err := os.OpenFile(documentPath+".lock", os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("lock %s: %w", f.Name(), err)
	}
	// Closing the descriptor drops the lock.
	return func() { _ = f.Close() }, nil
}
