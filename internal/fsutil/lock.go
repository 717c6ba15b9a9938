package fsutil

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrLocked is returned by TryLock when another process holds the lock.
var ErrLocked = errors.New("lock is held by another process")

// lockPollInterval is how often Lock retries a held lock.
const lockPollInterval = 50 * time.Millisecond

// FileLock is an advisory, process-level lock backed by a 0-byte file.
// The lock file is left on disk after Unlock; only the OS lock is released.
type FileLock struct {
	path string
	file *os.File
}

// Path returns the lock file path.
func (l *FileLock) Path() string {
	return l.path
}

// TryLock attempts to take the lock without blocking.
// Returns ErrLocked if another process holds it.
func TryLock(path string) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating lock directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening lock file: %w", err)
	}

	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}

	return &FileLock{path: path, file: f}, nil
}

// Lock takes the lock, polling until it is acquired or ctx is done.
func Lock(ctx context.Context, path string) (*FileLock, error) {
	for {
		l, err := TryLock(path)
		if err == nil {
			return l, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for lock %s: %w", path, ctx.Err())
		case <-time.After(lockPollInterval):
		}
	}
}

// Unlock releases the lock. Calling Unlock on a nil or released lock is a no-op.
func (l *FileLock) Unlock() error {
	if l == nil || l.file == nil {
		return nil
	}
	err := unlockFile(l.file)
	closeErr := l.file.Close()
	l.file = nil
	if err != nil {
		return fmt.Errorf("releasing lock %s: %w", l.path, err)
	}
	if closeErr != nil {
		return fmt.Errorf("closing lock %s: %w", l.path, closeErr)
	}
	return nil
}
