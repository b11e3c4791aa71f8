package utils

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

const (
	lockFileSuffix = ".lock"
)

// OutputLock serializes runs that write the same sitemap file.
type OutputLock struct {
	lock *flock.Flock
	path string
}

// NewOutputLock creates a lock next to the given output path.
func NewOutputLock(outPath string) (*OutputLock, error) {
	absPath, err := filepath.Abs(outPath)
	if err != nil {
		return nil, fmt.Errorf("could not get absolute output path: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(absPath), 0o755); err != nil {
		return nil, fmt.Errorf("could not create %s: %w", filepath.Dir(absPath), err)
	}
	lockPath := absPath + lockFileSuffix
	return &OutputLock{
		lock: flock.New(lockPath),
		path: lockPath,
	}, nil
}

// Path returns the lock file location.
func (l *OutputLock) Path() string { return l.path }

// Lock acquires the lock, waiting if another run holds it.
func (l *OutputLock) Lock() error {
	locked, err := l.lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}

	if !locked {
		Log.WithField("lock", l.path).Warn("another offermap run is writing this sitemap, waiting for it to finish")
		if err := l.lock.Lock(); err != nil {
			return fmt.Errorf("failed to acquire lock on %s after waiting: %w", l.path, err)
		}
	}
	return nil
}

// TryLock acquires the lock without waiting and reports whether it did.
func (l *OutputLock) TryLock() (bool, error) {
	locked, err := l.lock.TryLock()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lock on %s: %w", l.path, err)
	}
	return locked, nil
}

// Unlock releases the lock.
func (l *OutputLock) Unlock() error {
	if err := l.lock.Unlock(); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to release lock on %s: %w", l.path, err)
	}
	return nil
}
