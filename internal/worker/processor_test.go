package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartcomp/smartcomp-be/internal/domain"
)

func testWorker(store jobStore) *Worker {
	return &Worker{
		logger:             discardLogger(),
		store:              store,
		cancelPollInterval: time.Millisecond,
		stopChan:           make(chan struct{}),
	}
}

func TestShouldRequeueJob(t *testing.T) {
	w := testWorker(&stubStore{})

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"not claimable", domain.ErrJobNotClaimable, false},
		{"wrapped not claimable", fmt.Errorf("claim: %w", domain.ErrJobNotClaimable), false},
		{"invalid payload", fmt.Errorf("%w: bad json", domain.ErrInvalidPayload), false},
		{"retryable", domain.NewRetryableError(errors.New("db down")), true},
		{"wrapped retryable", fmt.Errorf("outer: %w", domain.NewRetryableError(errors.New("db down"))), true},
		{"terminal failure", errors.New("analysis failed"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, w.shouldRequeueJob(tt.err))
		})
	}
}

func TestNewGuard_PassesWhenIdle(t *testing.T) {
	w := testWorker(&stubStore{})
	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(time.Hour))

	assert.NoError(t, guard())
}

func TestNewGuard_Timeout(t *testing.T) {
	w := testWorker(&stubStore{})
	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(-time.Second))

	assert.ErrorIs(t, guard(), domain.ErrJobTimeout)
}

func TestNewGuard_ContextDeadlineMapsToTimeout(t *testing.T) {
	w := testWorker(&stubStore{})

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	// The wall-clock deadline is in the future; only the context has expired.
	guard := w.newGuard(ctx, "job-1", time.Now().Add(time.Hour))
	assert.ErrorIs(t, guard(), domain.ErrJobTimeout)
}

func TestNewGuard_ContextCancelIsRetryable(t *testing.T) {
	w := testWorker(&stubStore{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	guard := w.newGuard(ctx, "job-1", time.Now().Add(time.Hour))
	var retryable *domain.RetryableError
	assert.ErrorAs(t, guard(), &retryable)
}

func TestNewGuard_WorkerShutdownIsRetryable(t *testing.T) {
	w := testWorker(&stubStore{})
	close(w.stopChan)

	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(time.Hour))
	var retryable *domain.RetryableError
	assert.ErrorAs(t, guard(), &retryable)
}

func TestNewGuard_CancellationFlag(t *testing.T) {
	store := &stubStore{cancelRequested: true}
	w := testWorker(store)
	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(time.Hour))

	// The first call polls immediately since no poll happened yet.
	assert.ErrorIs(t, guard(), domain.ErrJobCancelled)
	// The result is memoized; no second database read.
	assert.ErrorIs(t, guard(), domain.ErrJobCancelled)
	assert.Equal(t, 1, store.cancelPolls)
}

func TestNewGuard_PollErrorIsNonFatal(t *testing.T) {
	store := &stubStore{cancelErr: errors.New("db down")}
	w := testWorker(store)
	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(time.Hour))

	assert.NoError(t, guard())
}

func TestNewGuard_PollThrottled(t *testing.T) {
	store := &stubStore{}
	w := testWorker(store)
	w.cancelPollInterval = time.Hour

	guard := w.newGuard(context.Background(), "job-1", time.Now().Add(time.Hour))
	require.NoError(t, guard())
	require.NoError(t, guard())
	require.NoError(t, guard())

	assert.Equal(t, 1, store.cancelPolls)
}
