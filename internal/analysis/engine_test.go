package analysis

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/storage"
)

func testEngine() *Engine {
	return NewEngine(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func prepareJob(t *testing.T, jobID string) storage.JobPaths {
	t.Helper()
	paths, err := storage.PrepareJobPaths(t.TempDir(), jobID)
	require.NoError(t, err)
	return paths
}

func writeInput(t *testing.T, paths storage.JobPaths, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(paths.InputDir, name), []byte(content), 0o644))
}

func baseConfig() domain.EffectiveConfig {
	return domain.EffectiveConfig{
		Alpha:               0.05,
		BootstrapIterations: 200,
		PermutationCount:    200,
		DescriptiveEnabled:  true,
	}
}

func TestEngineRun_DescriptiveOnly(t *testing.T) {
	paths := prepareJob(t, "job-desc")
	writeInput(t, paths, "file1.csv", "value\n10\n20\n30\n40\nbogus\n")

	job := &domain.Job{ID: "job-desc", Type: domain.JobTypeDescriptiveOnly}
	raw, err := testEngine().Run(context.Background(), job, baseConfig(), paths, noProgress, noGuard)
	require.NoError(t, err)

	var doc ResultDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	assert.Equal(t, "job-desc", doc.JobID)
	assert.Equal(t, "DESCRIPTIVE_ONLY", doc.JobType)
	require.NotNil(t, doc.Descriptive)
	assert.Equal(t, 4, doc.Descriptive.SampleSize)
	assert.Nil(t, doc.Decision)
	assert.Nil(t, doc.Metrics)
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "non-numeric")

	// The result document and the cleaned series land in the output area.
	assert.FileExists(t, filepath.Join(paths.OutputDir, "results.json"))
	assert.FileExists(t, filepath.Join(paths.OutputDir, "file1_cleaned.csv"))
}

func TestEngineRun_BootstrapSingle(t *testing.T) {
	paths := prepareJob(t, "job-single")
	writeInput(t, paths, "file1.csv", "100\n110\n120\n130\n140\n150\n160\n170\n180\n190\n")

	cfg := baseConfig()
	threshold := 10.0
	cfg.Threshold = &threshold

	job := &domain.Job{ID: "job-single", Type: domain.JobTypeBootstrapSingle}
	raw, err := testEngine().Run(context.Background(), job, cfg, paths, noProgress, noGuard)
	require.NoError(t, err)

	var doc ResultDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.NotNil(t, doc.Decision)
	require.NotNil(t, doc.Decision.PValue)
	require.NotNil(t, doc.Decision.Significant)
	// Every bootstrap p95 sits far above the threshold.
	assert.Zero(t, *doc.Decision.PValue)
	assert.True(t, *doc.Decision.Significant)

	require.NotNil(t, doc.Metrics)
	assert.Equal(t, 10, doc.Metrics.SampleSize)
	assert.Equal(t, 10.0, *doc.Metrics.Threshold)
	assert.FileExists(t, filepath.Join(paths.OutputDir, "file1_sampled.csv"))
}

func TestEngineRun_BootstrapDual(t *testing.T) {
	paths := prepareJob(t, "job-dual")
	writeInput(t, paths, "file1.csv", "10\n11\n12\n13\n14\n15\n16\n17\n18\n19\n")
	writeInput(t, paths, "file2.csv", "10\n11\n12\n13\n14\n15\n16\n17\n18\n19\n")

	job := &domain.Job{ID: "job-dual", Type: domain.JobTypeBootstrapDual}
	raw, err := testEngine().Run(context.Background(), job, baseConfig(), paths, noProgress, noGuard)
	require.NoError(t, err)

	var doc ResultDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.NotNil(t, doc.Metrics)
	assert.NotNil(t, doc.Metrics.P95)
	assert.NotNil(t, doc.Metrics.P952)
	assert.NotNil(t, doc.Metrics.CILower2)
	assert.FileExists(t, filepath.Join(paths.OutputDir, "file2_sampled.csv"))
}

func TestEngineRun_KWPermutation(t *testing.T) {
	paths := prepareJob(t, "job-kw")
	for group, content := range map[string]string{
		"control":   "1\n2\n3\n4\n5\n",
		"treatment": "101\n102\n103\n104\n105\n",
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(paths.InputDir, group), 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(paths.InputDir, group, "run1.csv"), []byte(content), 0o644))
	}

	cfg := baseConfig()
	cfg.KWLayout = "A"
	cfg.KWGroups = []string{"control", "treatment"}

	job := &domain.Job{ID: "job-kw", Type: domain.JobTypeKWPermutation}
	raw, err := testEngine().Run(context.Background(), job, cfg, paths, noProgress, noGuard)
	require.NoError(t, err)

	var doc ResultDocument
	require.NoError(t, json.Unmarshal(raw, &doc))

	require.NotNil(t, doc.Omnibus)
	assert.Equal(t, 10, doc.Omnibus.TotalN)
	assert.Equal(t, []int{5, 5}, doc.Omnibus.GroupSizes)
	assert.Equal(t, 200, doc.Omnibus.Permutations)
	require.NotNil(t, doc.Decision)
	require.NotNil(t, doc.Decision.Significant)

	require.Len(t, doc.Groups, 2)
	assert.Equal(t, "control", doc.Groups[0].GroupName)
	require.Len(t, doc.Groups[0].Files, 1)
	assert.Equal(t, 5, doc.Groups[0].Files[0].N)
	assert.FileExists(t, filepath.Join(paths.OutputDir, "control_run1_cleaned.csv"))
}

func TestEngineRun_CreateLog(t *testing.T) {
	paths := prepareJob(t, "job-log")
	writeInput(t, paths, "file1.csv", "10\n20\n30\n40\n")

	cfg := baseConfig()
	cfg.CreateLog = true

	job := &domain.Job{ID: "job-log", Type: domain.JobTypeDescriptiveOnly}
	_, err := testEngine().Run(context.Background(), job, cfg, paths, noProgress, noGuard)
	require.NoError(t, err)

	content, err := os.ReadFile(filepath.Join(paths.OutputDir, "analysis.log"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "job job-log (DESCRIPTIVE_ONLY)")
	assert.Contains(t, string(content), "n=4")
}

func TestEngineRun_Deterministic(t *testing.T) {
	input := "5\n6\n7\n8\n9\n10\n11\n12\n13\n14\n"
	job := &domain.Job{ID: "job-repeat", Type: domain.JobTypeBootstrapSingle}

	var outputs []string
	for i := 0; i < 2; i++ {
		paths := prepareJob(t, "job-repeat")
		writeInput(t, paths, "file1.csv", input)
		raw, err := testEngine().Run(context.Background(), job, baseConfig(), paths, noProgress, noGuard)
		require.NoError(t, err)
		outputs = append(outputs, string(raw))
	}

	assert.Equal(t, outputs[0], outputs[1])
}

func TestEngineRun_GuardAbortsRun(t *testing.T) {
	paths := prepareJob(t, "job-abort")
	writeInput(t, paths, "file1.csv", "1\n2\n3\n")

	job := &domain.Job{ID: "job-abort", Type: domain.JobTypeBootstrapSingle}
	abort := domain.ErrJobCancelled

	_, err := testEngine().Run(context.Background(), job, baseConfig(), paths, noProgress,
		func() error { return abort })

	assert.ErrorIs(t, err, abort)
	assert.NoFileExists(t, filepath.Join(paths.OutputDir, "results.json"))
}

func TestEngineRun_CancelledContext(t *testing.T) {
	paths := prepareJob(t, "job-ctx")
	writeInput(t, paths, "file1.csv", "1\n2\n3\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	job := &domain.Job{ID: "job-ctx", Type: domain.JobTypeBootstrapSingle}
	_, err := testEngine().Run(ctx, job, baseConfig(), paths, noProgress, noGuard)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestEngineRun_MissingInput(t *testing.T) {
	paths := prepareJob(t, "job-empty")

	job := &domain.Job{ID: "job-empty", Type: domain.JobTypeBootstrapSingle}
	_, err := testEngine().Run(context.Background(), job, baseConfig(), paths, noProgress, noGuard)

	assert.Error(t, err)
}

func noProgress(float64, string, string) {}
