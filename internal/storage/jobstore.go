package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/shared/postgresql"
)

// JobStore persists job records in Postgres. The two contested transitions
// (QUEUED->RUNNING claim and the cancel paths) are conditional UPDATEs, so
// they are atomic compare-and-set operations; everything else is written only
// by the single worker owning the job.
type JobStore struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewJobStore creates a JobStore on top of the shared PostgreSQL client.
func NewJobStore(pg *postgresql.Client, logger *slog.Logger) *JobStore {
	return &JobStore{db: pg.GetDB(), logger: logger}
}

const jobColumns = `
	job_id, job_type, status, config, input_manifest,
	progress_percent, progress_step, progress_message,
	error_code, error_message, result, worker_id, cancel_requested,
	created_at, started_at, finished_at, updated_at
`

// Create inserts a new job in QUEUED state.
func (s *JobStore) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (
			job_id, job_type, status, config, input_manifest,
			progress_percent, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.Type,
		job.Status,
		job.Config,
		job.InputManifest,
		job.ProgressPercent,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

// Get returns the current snapshot of a job.
func (s *JobStore) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	var job domain.Job
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE job_id = $1`
	if err := s.db.GetContext(ctx, &job, query, jobID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	return &job, nil
}

// JobCursor marks a position in the created_at/job_id ordering.
type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// JobFilter narrows a listing.
type JobFilter struct {
	Type     string
	Status   string
	PageSize int
	Cursor   *JobCursor
}

// List returns up to PageSize+1 jobs ordered newest first; the extra row
// tells the caller whether a next page exists.
func (s *JobStore) List(ctx context.Context, filter JobFilter) ([]domain.Job, error) {
	query := `SELECT ` + jobColumns + ` FROM jobs WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	if filter.Type != "" {
		query += fmt.Sprintf(" AND job_type = $%d", argIdx)
		args = append(args, filter.Type)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}
	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var jobs []domain.Job
	if err := s.db.SelectContext(ctx, &jobs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	return jobs, nil
}

// CountQueued returns the current queue depth, used for submission-time
// admission control.
func (s *JobStore) CountQueued(ctx context.Context) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM jobs WHERE status = $1`, domain.JobStatusQueued)
	if err != nil {
		return 0, fmt.Errorf("failed to count queued jobs: %w", err)
	}
	return count, nil
}

// Claim performs the atomic QUEUED->RUNNING transition. Exactly one worker
// can win; everyone else gets ErrJobNotClaimable.
func (s *JobStore) Claim(ctx context.Context, jobID, workerID string) (*domain.Job, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    worker_id = $2,
		    started_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3
		  AND status = $4
		RETURNING ` + jobColumns
	var job domain.Job
	err := s.db.GetContext(ctx, &job, query, domain.JobStatusRunning, workerID, jobID, domain.JobStatusQueued)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("Failed to claim job - already claimed, cancelled or unknown",
				slog.String("job_id", jobID),
				slog.String("worker_id", workerID),
			)
			return nil, domain.ErrJobNotClaimable
		}
		return nil, fmt.Errorf("failed to claim job: %w", err)
	}

	s.logger.Info("Job claimed",
		slog.String("job_id", jobID),
		slog.String("worker_id", workerID),
		slog.String("job_type", string(job.Type)),
	)
	return &job, nil
}

// CancelQueued atomically moves a QUEUED job to CANCELLED before any worker
// claims it. Returns false when the race was lost.
func (s *JobStore) CancelQueued(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_code = $2,
		    error_message = 'Cancelled',
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query, domain.JobStatusCancelled, domain.CodeCancelled, jobID, domain.JobStatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to cancel queued job: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// RequestCancel sets the cooperative cancellation flag on a RUNNING job. The
// owning worker observes the flag at its next checkpoint and performs the
// RUNNING->CANCELLED transition itself.
func (s *JobStore) RequestCancel(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET cancel_requested = TRUE,
		    updated_at = NOW()
		WHERE job_id = $1 AND status = $2
	`
	res, err := s.db.ExecContext(ctx, query, jobID, domain.JobStatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to request cancellation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// CancelRequested reads the cancellation flag.
func (s *JobStore) CancelRequested(ctx context.Context, jobID string) (bool, error) {
	var requested bool
	err := s.db.GetContext(ctx, &requested, `SELECT cancel_requested FROM jobs WHERE job_id = $1`, jobID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, domain.ErrJobNotFound
		}
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// UpdateProgress writes the progress triple. The WHERE clause enforces both
// ownership (only RUNNING jobs move) and monotonicity (percent never goes
// backwards), so a late write from a slow checkpoint is simply dropped.
func (s *JobStore) UpdateProgress(ctx context.Context, jobID string, p domain.Progress) error {
	query := `
		UPDATE jobs
		SET progress_percent = $1,
		    progress_step = $2,
		    progress_message = $3,
		    updated_at = NOW()
		WHERE job_id = $4
		  AND status = $5
		  AND progress_percent <= $1
	`
	_, err := s.db.ExecContext(ctx, query, p.Percent, nullIfEmpty(p.Step), nullIfEmpty(p.Message), jobID, domain.JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Complete performs RUNNING->COMPLETED, freezing the result document.
func (s *JobStore) Complete(ctx context.Context, jobID string, result json.RawMessage) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    result = $2,
		    progress_percent = 100,
		    progress_step = 'completed',
		    progress_message = NULL,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`
	return s.terminalExec(ctx, query, domain.JobStatusCompleted, result, jobID, domain.JobStatusRunning)
}

// Fail performs RUNNING->FAILED with a classified error code.
func (s *JobStore) Fail(ctx context.Context, jobID, code, message string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_code = $2,
		    error_message = $3,
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $4 AND status = $5
	`
	return s.terminalExec(ctx, query, domain.JobStatusFailed, code, message, jobID, domain.JobStatusRunning)
}

// CancelRunning performs RUNNING->CANCELLED; called by the owning worker
// after it observed the cancellation flag at a checkpoint.
func (s *JobStore) CancelRunning(ctx context.Context, jobID string) (bool, error) {
	query := `
		UPDATE jobs
		SET status = $1,
		    error_code = $2,
		    error_message = 'Cancelled',
		    finished_at = NOW(),
		    updated_at = NOW()
		WHERE job_id = $3 AND status = $4
	`
	return s.terminalExec(ctx, query, domain.JobStatusCancelled, domain.CodeCancelled, jobID, domain.JobStatusRunning)
}

// DeleteExpired removes terminal jobs older than the cutoff and returns
// their ids so the caller can delete the matching storage areas.
func (s *JobStore) DeleteExpired(ctx context.Context, cutoff time.Time) ([]string, error) {
	query := `
		DELETE FROM jobs
		WHERE status IN ($1, $2, $3)
		  AND finished_at IS NOT NULL
		  AND finished_at < $4
		RETURNING job_id
	`
	var ids []string
	err := s.db.SelectContext(ctx, &ids, query,
		domain.JobStatusCompleted, domain.JobStatusFailed, domain.JobStatusCancelled, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to delete expired jobs: %w", err)
	}
	return ids, nil
}

func (s *JobStore) terminalExec(ctx context.Context, query string, args ...interface{}) (bool, error) {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to update job status: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected > 0 {
		s.logger.Info("Job reached terminal state",
			slog.String("job_id", fmt.Sprint(args[len(args)-2])),
			slog.String("status", fmt.Sprint(args[0])),
		)
	}
	return affected > 0, nil
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
