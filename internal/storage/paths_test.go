package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeJoin(t *testing.T) {
	base := t.TempDir()

	t.Run("joins inside base", func(t *testing.T) {
		got, err := SafeJoin(base, "job-1", "input")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "job-1", "input"), got)
	})

	t.Run("base itself is allowed", func(t *testing.T) {
		got, err := SafeJoin(base)
		require.NoError(t, err)
		assert.Equal(t, base, got)
	})

	t.Run("rejects traversal", func(t *testing.T) {
		_, err := SafeJoin(base, "..", "escape")
		assert.Error(t, err)

		_, err = SafeJoin(base, "job-1", "..", "..", "etc", "passwd")
		assert.Error(t, err)
	})

	t.Run("cleaned traversal inside base is fine", func(t *testing.T) {
		got, err := SafeJoin(base, "a", "..", "b")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "b"), got)
	})
}

func TestPrepareJobPaths(t *testing.T) {
	root := t.TempDir()

	paths, err := PrepareJobPaths(root, "job-abc")
	require.NoError(t, err)

	assert.DirExists(t, paths.InputDir)
	assert.DirExists(t, paths.OutputDir)
	assert.DirExists(t, paths.PlotsDir)
	assert.Equal(t, filepath.Join(paths.Root, "input"), paths.InputDir)
	assert.Equal(t, filepath.Join(paths.Root, "output", "plots"), paths.PlotsDir)
}

func TestPrepareJobPaths_RejectsTraversal(t *testing.T) {
	_, err := PrepareJobPaths(t.TempDir(), "../escape")
	assert.Error(t, err)
}

func TestJobPaths_Cleanup(t *testing.T) {
	root := t.TempDir()
	paths, err := PrepareJobPaths(root, "job-1")
	require.NoError(t, err)

	require.NoError(t, paths.Cleanup())
	assert.NoDirExists(t, paths.Root)

	// Idempotent on a missing directory.
	assert.NoError(t, paths.Cleanup())
	assert.NoError(t, JobPaths{}.Cleanup())
}

func TestJobPaths_CleanupIntermediate(t *testing.T) {
	root := t.TempDir()
	paths, err := PrepareJobPaths(root, "job-1")
	require.NoError(t, err)

	keep := filepath.Join(paths.OutputDir, "results.json")
	cleaned := filepath.Join(paths.OutputDir, "file1_cleaned.csv")
	sampled := filepath.Join(paths.OutputDir, "file2_sampled.csv")
	for _, p := range []string{keep, cleaned, sampled} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}
	samplesDir := filepath.Join(paths.OutputDir, "samples")
	require.NoError(t, os.MkdirAll(samplesDir, 0o755))

	removed := paths.CleanupIntermediate()

	assert.Len(t, removed, 3)
	assert.NoFileExists(t, cleaned)
	assert.NoFileExists(t, sampled)
	assert.NoDirExists(t, samplesDir)
	assert.FileExists(t, keep)
	assert.DirExists(t, paths.PlotsDir)
}

func TestSweepExpired(t *testing.T) {
	t.Run("negative ttl disables sweep", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "job-1"), 0o755))

		deleted, err := SweepExpired(root, -1, time.Now())
		require.NoError(t, err)
		assert.Empty(t, deleted)
		assert.DirExists(t, filepath.Join(root, "job-1"))
	})

	t.Run("zero ttl deletes everything", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(root, "job-1"), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Join(root, "job-2"), 0o755))

		deleted, err := SweepExpired(root, 0, time.Now())
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"job-1", "job-2"}, deleted)
	})

	t.Run("keeps directories younger than ttl", func(t *testing.T) {
		root := t.TempDir()
		old := filepath.Join(root, "job-old")
		fresh := filepath.Join(root, "job-fresh")
		require.NoError(t, os.MkdirAll(old, 0o755))
		require.NoError(t, os.MkdirAll(fresh, 0o755))

		past := time.Now().Add(-48 * time.Hour)
		require.NoError(t, os.Chtimes(old, past, past))

		deleted, err := SweepExpired(root, 24*time.Hour, time.Now())
		require.NoError(t, err)
		assert.Equal(t, []string{"job-old"}, deleted)
		assert.DirExists(t, fresh)
	})

	t.Run("missing root is not an error", func(t *testing.T) {
		deleted, err := SweepExpired(filepath.Join(t.TempDir(), "absent"), time.Hour, time.Now())
		require.NoError(t, err)
		assert.Empty(t, deleted)
	})

	t.Run("plain files are left alone", func(t *testing.T) {
		root := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(root, "stray.txt"), []byte("x"), 0o644))

		deleted, err := SweepExpired(root, 0, time.Now())
		require.NoError(t, err)
		assert.Empty(t, deleted)
		assert.FileExists(t, filepath.Join(root, "stray.txt"))
	})
}
