package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcomp/smartcomp-be/internal/domain"
)

// stubStore records calls and returns scripted results.
type stubStore struct {
	progress        []domain.Progress
	progressErr     error
	cancelRequested bool
	cancelErr       error
	cancelPolls     int
}

func (s *stubStore) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	return nil, errors.New("not scripted")
}

func (s *stubStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	s.cancelPolls++
	return s.cancelRequested, s.cancelErr
}

func (s *stubStore) UpdateProgress(ctx context.Context, jobID string, p domain.Progress) error {
	if s.progressErr != nil {
		return s.progressErr
	}
	s.progress = append(s.progress, p)
	return nil
}

func (s *stubStore) Complete(ctx context.Context, jobID string, result json.RawMessage) (bool, error) {
	return true, nil
}

func (s *stubStore) Fail(ctx context.Context, jobID, code, message string) (bool, error) {
	return true, nil
}

func (s *stubStore) CancelRunning(ctx context.Context, jobID string) (bool, error) {
	return true, nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestProgressReporter_ThrottlesWithinInterval(t *testing.T) {
	store := &stubStore{}
	r := newProgressReporter(store, discardLogger(), "job-1", time.Hour)

	r.Report(10, "clean", "cleaning inputs")
	r.Report(11, "clean", "cleaning inputs")
	r.Report(12, "clean", "cleaning inputs")

	require.Len(t, store.progress, 1)
	assert.Equal(t, 10.0, store.progress[0].Percent)
	assert.Equal(t, "clean", store.progress[0].Step)
}

func TestProgressReporter_StepChangeBypassesThrottle(t *testing.T) {
	store := &stubStore{}
	r := newProgressReporter(store, discardLogger(), "job-1", time.Hour)

	r.Report(10, "clean", "")
	r.Report(55, "bootstrap", "")

	require.Len(t, store.progress, 2)
	assert.Equal(t, "bootstrap", store.progress[1].Step)
	assert.Equal(t, 55.0, store.progress[1].Percent)
}

func TestProgressReporter_DropsPercentRegression(t *testing.T) {
	store := &stubStore{}
	r := newProgressReporter(store, discardLogger(), "job-1", time.Hour)

	r.Report(50, "bootstrap", "")
	r.Report(40, "finalize", "")

	require.Len(t, store.progress, 1)
	assert.Equal(t, 50.0, store.progress[0].Percent)
}

func TestProgressReporter_WriteFailureDoesNotAdvanceMemo(t *testing.T) {
	store := &stubStore{progressErr: errors.New("db down")}
	r := newProgressReporter(store, discardLogger(), "job-1", time.Hour)

	r.Report(10, "clean", "")

	store.progressErr = nil
	// Same step, but the failed write left lastWrite at zero, so this one goes
	// through.
	r.Report(20, "clean", "")

	require.Len(t, store.progress, 1)
	assert.Equal(t, 20.0, store.progress[0].Percent)
}

func TestProgressReporter_DefaultInterval(t *testing.T) {
	r := newProgressReporter(&stubStore{}, discardLogger(), "job-1", 0)
	assert.Equal(t, 2*time.Second, r.minInterval)
}
