// Package service implements the job API facade: submission with upfront
// validation, status and listing, cancellation, results and artifact access.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"

	"github.com/smartcomp/smartcomp-be/internal/analysis"
	"github.com/smartcomp/smartcomp-be/internal/archive"
	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/api/dto"
	"github.com/smartcomp/smartcomp-be/internal/storage"
)

// JobStore is the persistence surface the facade needs.
type JobStore interface {
	Create(ctx context.Context, job *domain.Job) error
	Get(ctx context.Context, jobID string) (*domain.Job, error)
	List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error)
	CountQueued(ctx context.Context) (int, error)
	CancelQueued(ctx context.Context, jobID string) (bool, error)
	RequestCancel(ctx context.Context, jobID string) (bool, error)
}

// QueuePublisher delivers job messages to the worker queue.
type QueuePublisher interface {
	PublishWithRetry(ctx context.Context, body []byte, contentType string) error
}

// Config holds the facade's tunables.
type Config struct {
	StorageRoot    string
	MaxUploadBytes int64
	MaxQueueDepth  int
	Defaults       domain.EffectiveConfig
}

// JobService coordinates validation, storage, persistence and queueing for
// the job lifecycle.
type JobService struct {
	store  JobStore
	queue  QueuePublisher
	cfg    Config
	logger *slog.Logger
}

// NewJobService creates the facade.
func NewJobService(store JobStore, queue QueuePublisher, cfg Config, logger *slog.Logger) *JobService {
	return &JobService{store: store, queue: queue, cfg: cfg, logger: logger}
}

// Defaults returns the server-side analysis defaults.
func (s *JobService) Defaults() domain.EffectiveConfig {
	return s.cfg.Defaults
}

// CreateJobInput is the parsed multipart submission.
type CreateJobInput struct {
	JobType    string
	ConfigJSON []byte
	Files      map[string]*multipart.FileHeader
}

// queueMessage is the payload published per job; workers look the record up
// by id, so the message stays minimal.
type queueMessage struct {
	JobID string `json:"job_id"`
}

// Create validates a submission, persists the inputs and record, and
// enqueues the job. All validation happens before anything is enqueued, so a
// job that reaches QUEUED is guaranteed runnable.
func (s *JobService) Create(ctx context.Context, input CreateJobInput) (string, error) {
	jobType := domain.JobType(input.JobType)
	if !jobType.Valid() {
		return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidJobType,
			fmt.Sprintf("unsupported job type %q", input.JobType))
	}

	if s.cfg.MaxQueueDepth > 0 {
		depth, err := s.store.CountQueued(ctx)
		if err != nil {
			return "", fmt.Errorf("failed to check queue depth: %w", err)
		}
		if depth >= s.cfg.MaxQueueDepth {
			return "", NewAPIError(http.StatusTooManyRequests, domain.CodeQueueFull,
				"job queue is full, retry later")
		}
	}

	overrides, err := domain.ParseConfigOverrides(input.ConfigJSON)
	if err != nil {
		return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidConfig, err.Error())
	}
	effective := s.cfg.Defaults.Merge(overrides)

	rules, err := jobType.InputRules()
	if err != nil {
		return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidJobType, err.Error())
	}
	for role := range input.Files {
		if !jobType.AllowsRole(role) {
			return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidFile,
				fmt.Sprintf("file role %q is not accepted for job type %s", role, jobType))
		}
	}

	jobID := uuid.New().String()
	paths, err := storage.PrepareJobPaths(s.cfg.StorageRoot, jobID)
	if err != nil {
		return "", fmt.Errorf("failed to prepare job storage: %w", err)
	}

	cleanupOnError := func() {
		if err := paths.Cleanup(); err != nil {
			s.logger.Warn("Failed to clean up job storage",
				slog.String("job_id", jobID),
				slog.Any("error", err),
			)
		}
	}

	var manifest []domain.InputFile
	for _, rule := range rules {
		header, ok := input.Files[rule.Role]
		if !ok || header == nil {
			if rule.Required {
				cleanupOnError()
				return "", NewAPIError(http.StatusBadRequest, domain.CodeMissingFile,
					fmt.Sprintf("missing required file %q", rule.Role))
			}
			continue
		}

		if s.cfg.MaxUploadBytes > 0 && header.Size > s.cfg.MaxUploadBytes {
			cleanupOnError()
			return "", NewAPIError(http.StatusRequestEntityTooLarge, domain.CodeFileTooLarge,
				fmt.Sprintf("file %q exceeds the %d byte limit", header.Filename, s.cfg.MaxUploadBytes))
		}

		raw, err := readUpload(header)
		if err != nil {
			cleanupOnError()
			return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidFile,
				fmt.Sprintf("failed to read file %q: %v", rule.Role, err))
		}

		if rule.Archive {
			set, err := archive.Classify(raw)
			if err != nil {
				cleanupOnError()
				return "", classifyError(err)
			}
			if err := archive.ExtractGroups(raw, set, paths.InputDir); err != nil {
				cleanupOnError()
				return "", fmt.Errorf("failed to extract archive: %w", err)
			}
			effective.KWLayout = string(set.Layout)
			effective.KWGroups = set.GroupNames()
		} else {
			if err := analysis.ValidateCSV(bytes.NewReader(raw)); err != nil {
				cleanupOnError()
				return "", &APIError{
					Status:  http.StatusBadRequest,
					Code:    archive.CodeInvalidCSV,
					Message: fmt.Sprintf("file %q: %v", rule.Role, err),
				}
			}
			dest := filepath.Join(paths.InputDir, rule.Role+".csv")
			if err := os.WriteFile(dest, raw, 0o644); err != nil {
				cleanupOnError()
				return "", fmt.Errorf("failed to persist upload: %w", err)
			}
		}

		manifest = append(manifest, domain.InputFile{
			Name:      header.Filename,
			SizeBytes: header.Size,
			Role:      rule.Role,
		})
	}

	configJSON, err := json.Marshal(effective)
	if err != nil {
		cleanupOnError()
		return "", fmt.Errorf("failed to encode effective config: %w", err)
	}
	if err := os.WriteFile(filepath.Join(paths.Root, "config.json"), configJSON, 0o644); err != nil {
		cleanupOnError()
		return "", fmt.Errorf("failed to write config snapshot: %w", err)
	}

	manifestJSON, err := json.Marshal(manifest)
	if err != nil {
		cleanupOnError()
		return "", fmt.Errorf("failed to encode input manifest: %w", err)
	}

	now := time.Now().UTC()
	job := &domain.Job{
		ID:            jobID,
		Type:          jobType,
		Status:        domain.JobStatusQueued,
		Config:        configJSON,
		InputManifest: manifestJSON,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.Create(ctx, job); err != nil {
		cleanupOnError()
		return "", fmt.Errorf("failed to persist job: %w", err)
	}

	body, _ := json.Marshal(queueMessage{JobID: jobID})
	if err := s.queue.PublishWithRetry(ctx, body, "application/json"); err != nil {
		s.logger.Error("Failed to enqueue job, rolling back",
			slog.String("job_id", jobID),
			slog.Any("error", err),
		)
		if _, cancelErr := s.store.CancelQueued(ctx, jobID); cancelErr != nil {
			s.logger.Error("Failed to cancel unqueued job",
				slog.String("job_id", jobID),
				slog.Any("error", cancelErr),
			)
		}
		cleanupOnError()
		return "", NewAPIError(http.StatusServiceUnavailable, domain.CodeQueueUnavailable,
			"job queue is unavailable")
	}

	s.logger.Info("Job created",
		slog.String("job_id", jobID),
		slog.String("job_type", string(jobType)),
		slog.Int("input_files", len(manifest)),
	)
	return jobID, nil
}

// Get returns a job snapshot.
func (s *JobService) Get(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.store.Get(ctx, jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			return nil, NewAPIError(http.StatusNotFound, domain.CodeNotFound, "job not found")
		}
		return nil, err
	}
	return job, nil
}

// List pages through jobs.
func (s *JobService) List(ctx context.Context, filter storage.JobFilter) ([]domain.Job, error) {
	return s.store.List(ctx, filter)
}

// Cancel requests cancellation. A queued job flips straight to CANCELLED and
// its storage is released; a running job only gets the cooperative flag set
// and the owning worker finishes the transition at its next checkpoint.
func (s *JobService) Cancel(ctx context.Context, jobID string) (*domain.Job, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		return nil, NewAPIError(http.StatusConflict, domain.CodeInvalidState,
			fmt.Sprintf("job is already %s", job.Status))
	}

	if job.Status == domain.JobStatusQueued {
		cancelled, err := s.store.CancelQueued(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if cancelled {
			if paths, perr := storage.JobPathsFor(s.cfg.StorageRoot, jobID); perr == nil {
				if cerr := paths.Cleanup(); cerr != nil {
					s.logger.Warn("Failed to clean up cancelled job storage",
						slog.String("job_id", jobID),
						slog.Any("error", cerr),
					)
				}
			}
			return s.Get(ctx, jobID)
		}
		// Lost the race: a worker claimed the job first. Fall through to the
		// running path.
	}

	if _, err := s.store.RequestCancel(ctx, jobID); err != nil {
		return nil, err
	}
	return s.Get(ctx, jobID)
}

// Results returns the normalized result document of a completed job.
func (s *JobService) Results(ctx context.Context, jobID string) (json.RawMessage, error) {
	job, err := s.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.JobStatusCompleted {
		return nil, NewAPIError(http.StatusConflict, domain.CodeNotReady,
			fmt.Sprintf("job is %s, results are available once it is COMPLETED", job.Status))
	}
	if len(job.Result) > 0 {
		return job.Result, nil
	}

	paths, err := storage.JobPathsFor(s.cfg.StorageRoot, jobID)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(filepath.Join(paths.OutputDir, "results.json"))
	if err != nil {
		return nil, NewAPIError(http.StatusNotFound, domain.CodeNotFound, "results are no longer available")
	}
	return raw, nil
}

// Artifacts lists the downloadable output files of a job.
func (s *JobService) Artifacts(ctx context.Context, jobID string) ([]dto.ArtifactDTO, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return nil, err
	}

	paths, err := storage.JobPathsFor(s.cfg.StorageRoot, jobID)
	if err != nil {
		return nil, err
	}

	artifacts := []dto.ArtifactDTO{}
	err = filepath.WalkDir(paths.OutputDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(paths.OutputDir, path)
		if err != nil {
			return err
		}
		artifacts = append(artifacts, dto.ArtifactDTO{
			Name:        filepath.ToSlash(rel),
			SizeBytes:   info.Size(),
			ContentType: detectContentType(path),
			CreatedAt:   info.ModTime().UTC().Format(time.RFC3339),
		})
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}

	sort.Slice(artifacts, func(i, j int) bool { return artifacts[i].Name < artifacts[j].Name })
	return artifacts, nil
}

// ArtifactPath resolves one artifact to an absolute file path for serving.
func (s *JobService) ArtifactPath(ctx context.Context, jobID, name string) (string, error) {
	if _, err := s.Get(ctx, jobID); err != nil {
		return "", err
	}

	paths, err := storage.JobPathsFor(s.cfg.StorageRoot, jobID)
	if err != nil {
		return "", err
	}
	resolved, err := storage.SafeJoin(paths.OutputDir, strings.Split(name, "/")...)
	if err != nil {
		return "", NewAPIError(http.StatusBadRequest, domain.CodeInvalidArtifact,
			"artifact name escapes the job output area")
	}
	info, err := os.Stat(resolved)
	if err != nil || info.IsDir() {
		return "", NewAPIError(http.StatusNotFound, domain.CodeNotFound, "artifact not found")
	}
	return resolved, nil
}

// readUpload slurps a multipart file into memory.
func readUpload(header *multipart.FileHeader) ([]byte, error) {
	f, err := header.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// classifyError maps archive validation failures onto 400 responses with the
// classifier's own codes.
func classifyError(err error) error {
	var verr *archive.ValidationError
	if errors.As(err, &verr) {
		return &APIError{
			Status:  http.StatusBadRequest,
			Code:    verr.Code,
			Message: verr.Message,
			Details: verr.Details,
		}
	}
	return err
}

func detectContentType(path string) string {
	mt, err := mimetype.DetectFile(path)
	if err != nil {
		return "application/octet-stream"
	}
	return mt.String()
}
