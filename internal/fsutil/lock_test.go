package fsutil

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryLock_Exclusive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".changesets", ".lock")

	first, err := TryLock(path)
	require.NoError(t, err)

	_, err = TryLock(path)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Unlock())

	second, err := TryLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Unlock())
}

func TestLock_ContextCancelled(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := TryLock(path)
	require.NoError(t, err)
	defer held.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Millisecond)
	defer cancel()

	_, err = Lock(ctx, path)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestLock_AcquiresAfterRelease(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), ".lock")

	held, err := TryLock(path)
	require.NoError(t, err)

	go func() {
		time.Sleep(60 * time.Millisecond)
		_ = held.Unlock()
	}()

	l, err := Lock(context.Background(), path)
	require.NoError(t, err)
	assert.Equal(t, path, l.Path())
	require.NoError(t, l.Unlock())
}

func TestUnlock_NilSafe(t *testing.T) {
	var l *FileLock
	assert.NoError(t, l.Unlock())
}
