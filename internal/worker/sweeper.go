package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smartcomp/smartcomp-be/internal/storage"
)

// Sweeper enforces the retention TTL: expired job records are deleted from
// the database and their storage areas removed, including orphaned
// directories whose records are already gone.
type Sweeper struct {
	store       *storage.JobStore
	storageRoot string
	ttl         time.Duration
	schedule    string
	logger      *slog.Logger
	cron        *cron.Cron
}

// NewSweeper creates a retention sweeper. A non-positive TTL disables it.
func NewSweeper(store *storage.JobStore, storageRoot string, ttl time.Duration, schedule string, logger *slog.Logger) *Sweeper {
	if schedule == "" {
		schedule = "@every 1h"
	}
	return &Sweeper{
		store:       store,
		storageRoot: storageRoot,
		ttl:         ttl,
		schedule:    schedule,
		logger:      logger,
		cron:        cron.New(),
	}
}

// Start schedules the sweep and runs one immediately.
func (s *Sweeper) Start() error {
	if s.ttl <= 0 {
		s.logger.Info("Retention sweep disabled")
		return nil
	}

	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("Retention sweep scheduled",
		slog.String("schedule", s.schedule),
		slog.Duration("ttl", s.ttl),
	)

	go s.sweep()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

func (s *Sweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cutoff := time.Now().Add(-s.ttl)
	ids, err := s.store.DeleteExpired(ctx, cutoff)
	if err != nil {
		s.logger.Error("Retention sweep failed to delete expired records",
			slog.Any("error", err),
		)
		return
	}
	for _, id := range ids {
		paths, err := storage.JobPathsFor(s.storageRoot, id)
		if err != nil {
			continue
		}
		if err := paths.Cleanup(); err != nil {
			s.logger.Warn("Failed to remove expired job storage",
				slog.String("job_id", id),
				slog.Any("error", err),
			)
		}
	}

	// Orphan directories can outlive their records after a partial failure.
	orphans, err := storage.SweepExpired(s.storageRoot, s.ttl, time.Now())
	if err != nil {
		s.logger.Warn("Orphan sweep failed",
			slog.Any("error", err),
		)
	}

	if len(ids) > 0 || len(orphans) > 0 {
		s.logger.Info("Retention sweep finished",
			slog.Int("records_deleted", len(ids)),
			slog.Int("directories_removed", len(orphans)),
		)
	}
}
