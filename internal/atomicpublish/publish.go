// Package atomicpublish implements the three-step rename dance used to
// make a freshly built index or cache directory live without a reader
// ever observing a partial write.
package atomicpublish

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// CleanStale removes a prior interrupted build's `.tmp`/`.old` siblings
// of path, best-effort. Call this before starting a new build.
func CleanStale(path string) {
	_ = os.RemoveAll(path + ".tmp")
	_ = os.RemoveAll(path + ".old")
}

// Publish makes tmpPath live at path using the spec's four-step dance:
//  1. rm -rf path.old
//  2. rename path -> path.old (tolerate absence)
//  3. rename tmpPath -> path
//  4. best-effort rm -rf path.old
//
// At no point does a concurrent reader observe a partial `path`: step 2
// and step 3 are each a single filesystem rename.
func Publish(path, tmpPath string) error {
	oldPath := path + ".old"

	if err := os.RemoveAll(oldPath); err != nil {
		return fmt.Errorf("remove stale .old: %w", err)
	}

	if err := os.Rename(path, oldPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("rename current to .old: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		// Best-effort restore so a failed publish doesn't leave callers
		// pointing at nothing.
		_ = os.Rename(oldPath, path)
		return fmt.Errorf("rename .tmp to live: %w", err)
	}

	_ = os.RemoveAll(oldPath)
	return nil
}

// Lock acquires a cross-process exclusive lock on a `.publish.lock`
// sibling of dir, guarding the rename sequence against a concurrent
// builder racing the same output directory.
type Lock struct {
	fl *flock.Flock
}

// NewLock returns a lock for dir. The lock file is created alongside
// dir, not inside it, so it survives dir's own tmp/old renames.
func NewLock(dir string) *Lock {
	return &Lock{fl: flock.New(filepath.Clean(dir) + ".publish.lock")}
}

// Acquire blocks until the lock is held, creating parent directories as
// needed.
func (l *Lock) Acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.fl.Path()), 0o755); err != nil {
		return fmt.Errorf("create lock directory: %w", err)
	}
	if err := l.fl.Lock(); err != nil {
		return fmt.Errorf("acquire publish lock: %w", err)
	}
	return nil
}

// Release drops the lock. Safe to call on an unacquired lock.
func (l *Lock) Release() error {
	if !l.fl.Locked() {
		return nil
	}
	return l.fl.Unlock()
}
