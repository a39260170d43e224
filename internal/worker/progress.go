package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/smartcomp/smartcomp-be/internal/domain"
)

// progressReporter throttles progress writes: engine checkpoints can fire
// every few milliseconds, the database sees at most one write per interval
// plus every step change. Percent regressions are dropped here and again by
// the store's monotonic WHERE clause.
type progressReporter struct {
	store       jobStore
	logger      *slog.Logger
	jobID       string
	minInterval time.Duration

	lastWrite   time.Time
	lastPercent float64
	lastStep    string
}

func newProgressReporter(store jobStore, logger *slog.Logger, jobID string, minInterval time.Duration) *progressReporter {
	if minInterval <= 0 {
		minInterval = 2 * time.Second
	}
	return &progressReporter{
		store:       store,
		logger:      logger,
		jobID:       jobID,
		minInterval: minInterval,
		lastPercent: -1,
	}
}

// Report forwards a progress update if it advances the percent and either
// enough time passed or the step changed.
func (r *progressReporter) Report(percent float64, step, message string) {
	if percent < r.lastPercent {
		return
	}
	stepChanged := step != r.lastStep
	if !stepChanged && time.Since(r.lastWrite) < r.minInterval {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := r.store.UpdateProgress(ctx, r.jobID, domain.Progress{
		Percent: percent,
		Step:    step,
		Message: message,
	})
	if err != nil {
		r.logger.Warn("Failed to write progress",
			slog.String("job_id", r.jobID),
			slog.Any("error", err),
		)
		return
	}

	r.lastWrite = time.Now()
	r.lastPercent = percent
	r.lastStep = step
}
