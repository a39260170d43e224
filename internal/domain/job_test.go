package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsTerminalStatus(t *testing.T) {
	assert.False(t, IsTerminalStatus(JobStatusQueued))
	assert.False(t, IsTerminalStatus(JobStatusRunning))
	assert.True(t, IsTerminalStatus(JobStatusCompleted))
	assert.True(t, IsTerminalStatus(JobStatusFailed))
	assert.True(t, IsTerminalStatus(JobStatusCancelled))
	assert.False(t, IsTerminalStatus("UNKNOWN"))
}

func TestJob_Progress(t *testing.T) {
	step := "bootstrap"
	msg := "resampling"
	j := &Job{ProgressPercent: 55, ProgressStep: &step, ProgressMessage: &msg}

	p := j.Progress()
	assert.Equal(t, 55.0, p.Percent)
	assert.Equal(t, "bootstrap", p.Step)
	assert.Equal(t, "resampling", p.Message)

	empty := (&Job{}).Progress()
	assert.Zero(t, empty.Percent)
	assert.Empty(t, empty.Step)
}

func TestJob_Manifest(t *testing.T) {
	manifest, err := json.Marshal([]InputFile{
		{Name: "file1.csv", SizeBytes: 123, Role: RoleFile1},
	})
	require.NoError(t, err)

	j := &Job{InputManifest: manifest}
	files := j.Manifest()
	require.Len(t, files, 1)
	assert.Equal(t, "file1.csv", files[0].Name)
	assert.Equal(t, int64(123), files[0].SizeBytes)

	assert.Empty(t, (&Job{}).Manifest())
}
