// Package storage owns the two shared mutable surfaces of the system: the
// per-job filesystem area and the Postgres job record store.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// JobPaths describes the filesystem area owned by a single job. It is
// created at job creation and deleted wholesale at terminal cleanup or TTL
// expiry.
type JobPaths struct {
	Root      string
	InputDir  string
	OutputDir string
	PlotsDir  string
}

// SafeJoin joins parts under base and rejects any result that escapes base.
func SafeJoin(base string, parts ...string) (string, error) {
	absBase, err := filepath.Abs(base)
	if err != nil {
		return "", fmt.Errorf("failed to resolve base path: %w", err)
	}
	candidate := filepath.Join(append([]string{absBase}, parts...)...)
	candidate = filepath.Clean(candidate)
	if candidate != absBase && !strings.HasPrefix(candidate, absBase+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path traversal outside %s", absBase)
	}
	return candidate, nil
}

// PrepareJobPaths creates the input/, output/ and output/plots/ directories
// for a job and returns their locations.
func PrepareJobPaths(storageRoot, jobID string) (JobPaths, error) {
	root, err := SafeJoin(storageRoot, jobID)
	if err != nil {
		return JobPaths{}, err
	}
	paths := JobPaths{
		Root:      root,
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
		PlotsDir:  filepath.Join(root, "output", "plots"),
	}
	if err := os.MkdirAll(paths.InputDir, 0o755); err != nil {
		return JobPaths{}, fmt.Errorf("failed to create input dir: %w", err)
	}
	if err := os.MkdirAll(paths.PlotsDir, 0o755); err != nil {
		return JobPaths{}, fmt.Errorf("failed to create plots dir: %w", err)
	}
	return paths, nil
}

// JobPathsFor resolves the paths for an existing job without creating them.
func JobPathsFor(storageRoot, jobID string) (JobPaths, error) {
	root, err := SafeJoin(storageRoot, jobID)
	if err != nil {
		return JobPaths{}, err
	}
	return JobPaths{
		Root:      root,
		InputDir:  filepath.Join(root, "input"),
		OutputDir: filepath.Join(root, "output"),
		PlotsDir:  filepath.Join(root, "output", "plots"),
	}, nil
}

// Cleanup removes the whole job area. Safe to call on a missing directory.
func (p JobPaths) Cleanup() error {
	if p.Root == "" {
		return nil
	}
	return os.RemoveAll(p.Root)
}

// CleanupIntermediate deletes cleaned/sampled working files from the output
// area, keeping results and plots. Used after a successful run when the job
// asked for cleanAll.
func (p JobPaths) CleanupIntermediate() []string {
	var removed []string
	patterns := []string{"*_cleaned.csv", "*_sampled.csv", "*_sample.csv"}
	for _, pattern := range patterns {
		matches, _ := filepath.Glob(filepath.Join(p.OutputDir, pattern))
		for _, m := range matches {
			if err := os.Remove(m); err == nil {
				removed = append(removed, m)
			}
		}
	}
	samplesDir := filepath.Join(p.OutputDir, "samples")
	if _, err := os.Stat(samplesDir); err == nil {
		if err := os.RemoveAll(samplesDir); err == nil {
			removed = append(removed, samplesDir)
		}
	}
	return removed
}

// SweepExpired deletes job directories whose modification time is older than
// the TTL and returns the ids of the deleted jobs. A zero TTL deletes
// everything; a negative TTL disables the sweep.
func SweepExpired(storageRoot string, ttl time.Duration, now time.Time) ([]string, error) {
	if ttl < 0 {
		return nil, nil
	}
	entries, err := os.ReadDir(storageRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read storage root: %w", err)
	}

	cutoff := now.Add(-ttl)
	var deleted []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		resolved, err := SafeJoin(storageRoot, entry.Name())
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if ttl == 0 || !info.ModTime().After(cutoff) {
			if err := os.RemoveAll(resolved); err == nil {
				deleted = append(deleted, entry.Name())
			}
		}
	}
	return deleted, nil
}
