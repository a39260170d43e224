package dto

import (
	"encoding/json"
	"time"

	"github.com/smartcomp/smartcomp-be/internal/domain"
)

// CreateJobResponse is returned on successful submission.
type CreateJobResponse struct {
	JobID string `json:"jobId"`
}

// ListJobsRequest holds the query parameters of the listing endpoint.
type ListJobsRequest struct {
	JobType  string `form:"jobType"`
	Status   string `form:"status"`
	PageSize int    `form:"pageSize"`
	Cursor   string `form:"cursor"`
}

// ListJobsResponse pages through jobs newest first.
type ListJobsResponse struct {
	Jobs       []JobResponse `json:"jobs"`
	NextCursor string        `json:"nextCursor,omitempty"`
}

// ProgressDTO mirrors domain.Progress for API consumers.
type ProgressDTO struct {
	Percent float64 `json:"percent"`
	Step    string  `json:"step,omitempty"`
	Message string  `json:"message,omitempty"`
}

// InputFileDTO describes one upload recorded on the job.
type InputFileDTO struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"sizeBytes"`
	Role      string `json:"role"`
}

// JobResponse is the job snapshot returned by the status endpoints.
type JobResponse struct {
	JobID        string          `json:"jobId"`
	JobType      string          `json:"jobType"`
	Status       string          `json:"status"`
	Progress     ProgressDTO     `json:"progress"`
	Config       json.RawMessage `json:"config,omitempty"`
	InputFiles   []InputFileDTO  `json:"inputFiles,omitempty"`
	ErrorCode    string          `json:"errorCode,omitempty"`
	ErrorMessage string          `json:"errorMessage,omitempty"`
	CreatedAt    string          `json:"createdAt"`
	StartedAt    string          `json:"startedAt,omitempty"`
	FinishedAt   string          `json:"finishedAt,omitempty"`
}

// NewJobResponse maps a domain job onto the API shape.
func NewJobResponse(job *domain.Job) JobResponse {
	p := job.Progress()
	resp := JobResponse{
		JobID:   job.ID,
		JobType: string(job.Type),
		Status:  job.Status,
		Progress: ProgressDTO{
			Percent: p.Percent,
			Step:    p.Step,
			Message: p.Message,
		},
		Config:    job.Config,
		CreatedAt: job.CreatedAt.Format(time.RFC3339),
	}
	for _, f := range job.Manifest() {
		resp.InputFiles = append(resp.InputFiles, InputFileDTO{
			Name:      f.Name,
			SizeBytes: f.SizeBytes,
			Role:      f.Role,
		})
	}
	if job.ErrorCode != nil {
		resp.ErrorCode = *job.ErrorCode
	}
	if job.ErrorMessage != nil {
		resp.ErrorMessage = *job.ErrorMessage
	}
	if job.StartedAt != nil {
		resp.StartedAt = job.StartedAt.Format(time.RFC3339)
	}
	if job.FinishedAt != nil {
		resp.FinishedAt = job.FinishedAt.Format(time.RFC3339)
	}
	return resp
}

// ArtifactDTO describes one downloadable output file.
type ArtifactDTO struct {
	Name        string `json:"name"`
	SizeBytes   int64  `json:"sizeBytes"`
	ContentType string `json:"contentType"`
	CreatedAt   string `json:"createdAt"`
}

// ArtifactListResponse lists the artifacts of a job.
type ArtifactListResponse struct {
	JobID     string        `json:"jobId"`
	Artifacts []ArtifactDTO `json:"artifacts"`
}

// ErrorBody is the code/message pair inside the error envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorResponse is the uniform error envelope of the API.
type ErrorResponse struct {
	Error     ErrorBody `json:"error"`
	RequestID string    `json:"requestId,omitempty"`
}
