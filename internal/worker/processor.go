package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/storage"
)

// processJob claims the job, runs the analysis under a deadline and the
// cooperative cancellation guard, and records the terminal state. The
// returned error steers the ACK/NACK decision in the worker loop.
func (w *Worker) processJob(ctx context.Context, msg *jobMessage, workerName string) error {
	if err := w.sem.Acquire(ctx, 1); err != nil {
		return domain.NewRetryableError(fmt.Errorf("worker shutting down: %w", err))
	}
	defer w.sem.Release(1)

	job, err := w.store.Claim(ctx, msg.JobID, workerName)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotClaimable) {
			w.logger.Warn("Job not claimable, dropping message",
				slog.String("job_id", msg.JobID),
			)
			return err
		}
		return domain.NewRetryableError(fmt.Errorf("failed to claim job: %w", err))
	}

	var cfg domain.EffectiveConfig
	if err := json.Unmarshal(job.Config, &cfg); err != nil {
		w.logger.Error("Failed to decode job config",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		if _, failErr := w.store.Fail(ctx, job.ID, domain.CodeInvalidPayload, "job config is not decodable"); failErr != nil {
			w.logger.Error("Failed to mark job FAILED",
				slog.String("job_id", job.ID),
				slog.Any("error", failErr),
			)
		}
		return fmt.Errorf("%w: %v", domain.ErrInvalidPayload, err)
	}

	paths, err := storage.JobPathsFor(w.storageRoot, job.ID)
	if err != nil {
		w.failJob(ctx, job.ID, domain.CodeAnalysisError, err.Error(), storage.JobPaths{})
		return fmt.Errorf("invalid job storage area: %w", err)
	}

	deadline := time.Now().Add(w.jobTimeout)
	if job.StartedAt != nil {
		deadline = job.StartedAt.Add(w.jobTimeout)
	}
	runCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	reporter := newProgressReporter(w.store, w.logger, job.ID, w.progressInterval)
	guard := w.newGuard(runCtx, job.ID, deadline)

	result, err := w.runGuarded(runCtx, job, cfg, paths, reporter.Report, guard)
	if err != nil {
		return w.finishFailed(ctx, job.ID, paths, err)
	}

	if _, err := w.store.Complete(ctx, job.ID, result); err != nil {
		// The run succeeded; a status write failure here is transient and the
		// claim guard makes a redelivery harmless.
		return domain.NewRetryableError(fmt.Errorf("failed to mark job COMPLETED: %w", err))
	}

	if cfg.CleanAll {
		removed := paths.CleanupIntermediate()
		w.logger.Debug("Removed intermediate files",
			slog.String("job_id", job.ID),
			slog.Int("count", len(removed)),
		)
	}

	w.logger.Info("Job completed",
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
	)
	return nil
}

// runGuarded isolates the engine call so a panic in numeric code fails one
// job instead of the process.
func (w *Worker) runGuarded(ctx context.Context, job *domain.Job, cfg domain.EffectiveConfig,
	paths storage.JobPaths, progress func(float64, string, string), guard func() error) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("analysis panicked: %v", r)
		}
	}()
	return w.engine.Run(ctx, job, cfg, paths, progress, guard)
}

// newGuard builds the checkpoint callback: it aborts the run on cancellation
// requests, the job deadline, or worker shutdown. The cancellation flag is a
// database read, so it is polled at a bounded rate.
func (w *Worker) newGuard(ctx context.Context, jobID string, deadline time.Time) func() error {
	var lastPoll time.Time
	var cancelled bool

	return func() error {
		if cancelled {
			return domain.ErrJobCancelled
		}
		if time.Now().After(deadline) {
			return domain.ErrJobTimeout
		}
		if err := ctx.Err(); err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return domain.ErrJobTimeout
			}
			return domain.NewRetryableError(err)
		}
		select {
		case <-w.stopChan:
			return domain.NewRetryableError(errors.New("worker stopping"))
		default:
		}

		if time.Since(lastPoll) >= w.cancelPollInterval {
			lastPoll = time.Now()
			requested, err := w.store.CancelRequested(ctx, jobID)
			if err != nil {
				w.logger.Warn("Failed to poll cancellation flag",
					slog.String("job_id", jobID),
					slog.Any("error", err),
				)
				return nil
			}
			if requested {
				cancelled = true
				return domain.ErrJobCancelled
			}
		}
		return nil
	}
}

// finishFailed maps a run error onto the job's terminal state and the
// ACK/NACK decision.
func (w *Worker) finishFailed(ctx context.Context, jobID string, paths storage.JobPaths, runErr error) error {
	switch {
	case errors.Is(runErr, domain.ErrJobCancelled):
		if _, err := w.store.CancelRunning(ctx, jobID); err != nil {
			w.logger.Error("Failed to mark job CANCELLED",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
		w.cleanup(jobID, paths)
		w.logger.Info("Job cancelled at checkpoint",
			slog.String("job_id", jobID),
		)
		// The cancellation is complete; consume the message.
		return nil

	case errors.Is(runErr, domain.ErrJobTimeout):
		w.failJob(ctx, jobID, domain.CodeTimeout,
			fmt.Sprintf("job exceeded the %s execution limit", w.jobTimeout), paths)
		return fmt.Errorf("job timed out: %w", runErr)

	default:
		var retryable *domain.RetryableError
		if errors.As(runErr, &retryable) {
			// No terminal state written; the job stays RUNNING and a future
			// redelivery finds it unclaimable unless recovery resets it.
			return runErr
		}
		w.failJob(ctx, jobID, domain.CodeAnalysisError, runErr.Error(), paths)
		return fmt.Errorf("analysis failed: %w", runErr)
	}
}

func (w *Worker) failJob(ctx context.Context, jobID, code, message string, paths storage.JobPaths) {
	if _, err := w.store.Fail(ctx, jobID, code, message); err != nil {
		w.logger.Error("Failed to mark job FAILED",
			slog.String("job_id", jobID),
			slog.String("code", code),
			slog.Any("error", err),
		)
	}
	w.cleanup(jobID, paths)
}

func (w *Worker) cleanup(jobID string, paths storage.JobPaths) {
	if err := paths.Cleanup(); err != nil {
		w.logger.Warn("Failed to clean up job storage",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
	}
}
