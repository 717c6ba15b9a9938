package fsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAtomicWriteFile(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		existing string
		data     string
	}{
		"creates new file":       {data: "hello\n"},
		"replaces existing file": {existing: "old\n", data: "new\n"},
		"writes empty content":   {existing: "old\n", data: ""},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			dir := t.TempDir()
			path := filepath.Join(dir, "nested", "file.json")
			if tt.existing != "" {
				require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
				require.NoError(t, os.WriteFile(path, []byte(tt.existing), 0o644))
			}

			require.NoError(t, AtomicWriteFile(path, []byte(tt.data), 0o644))

			got, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Equal(t, tt.data, string(got))

			entries, err := os.ReadDir(filepath.Dir(path))
			require.NoError(t, err)
			assert.Len(t, entries, 1, "temp files must not be left behind")
		})
	}
}

func TestMoveFile(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "a.json")
	dst := filepath.Join(dir, "archive", "2024", "01", "a.json")
	require.NoError(t, os.WriteFile(src, []byte("{}"), 0o644))

	require.NoError(t, MoveFile(src, dst))

	assert.False(t, Exists(src))
	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "{}", string(got))
}

func TestCopyFile_PreservesMode(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	src := filepath.Join(dir, "src.sh")
	dst := filepath.Join(dir, "out", "dst.sh")
	require.NoError(t, os.WriteFile(src, []byte("#!/bin/sh\n"), 0o755))

	require.NoError(t, CopyFile(src, dst))

	assert.Equal(t, os.FileMode(0o755), FileMode(dst, 0))
}
