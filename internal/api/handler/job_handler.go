package handler

import (
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/smartcomp/smartcomp-be/internal/api/dto"
	"github.com/smartcomp/smartcomp-be/internal/api/service"
	"github.com/smartcomp/smartcomp-be/internal/domain"
	"github.com/smartcomp/smartcomp-be/internal/storage"
)

// uploadRoles are the multipart form fields that may carry a file.
var uploadRoles = []string{domain.RoleFile1, domain.RoleFile2, domain.RoleKWBundle}

// CreateJob handles POST /api/v1/jobs
// Accepts a multipart submission with jobType, optional config JSON and the
// files required by the job type.
func (h *JobHandler) CreateJob(c *gin.Context) {
	jobType := c.PostForm("jobType")
	configJSON := c.PostForm("config")

	files := map[string]*multipart.FileHeader{}
	for _, role := range uploadRoles {
		if fh, err := c.FormFile(role); err == nil && fh != nil {
			files[role] = fh
		}
	}

	jobID, err := h.service.Create(c.Request.Context(), service.CreateJobInput{
		JobType:    jobType,
		ConfigJSON: []byte(configJSON),
		Files:      files,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.CreateJobResponse{JobID: jobID})
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.service.Get(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewJobResponse(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first with optional filtering and cursor pagination.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.writeError(c, service.NewAPIError(http.StatusBadRequest, domain.CodeInvalidConfig,
			"invalid query parameters"))
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.writeError(c, service.NewAPIError(http.StatusBadRequest, domain.CodeInvalidConfig,
			"invalid cursor"))
		return
	}

	jobs, err := h.service.List(c.Request.Context(), storage.JobFilter{
		Type:     req.JobType,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobResponse, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = dto.NewJobResponse(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		next, err := EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.ID,
		})
		if err != nil {
			h.writeError(c, err)
			return
		}
		resp.NextCursor = next
	}

	c.JSON(http.StatusOK, resp)
}

// CancelJob handles POST /api/v1/jobs/:job_id/cancel
func (h *JobHandler) CancelJob(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	job, err := h.service.Cancel(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, dto.NewJobResponse(job))
}

// GetResults handles GET /api/v1/jobs/:job_id/results
func (h *JobHandler) GetResults(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	result, err := h.service.Results(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.Data(http.StatusOK, "application/json", result)
}

// ListArtifacts handles GET /api/v1/jobs/:job_id/artifacts
func (h *JobHandler) ListArtifacts(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	artifacts, err := h.service.Artifacts(c.Request.Context(), jobID)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ArtifactListResponse{JobID: jobID, Artifacts: artifacts})
}

// DownloadArtifact handles GET /api/v1/jobs/:job_id/artifacts/*name
func (h *JobHandler) DownloadArtifact(c *gin.Context) {
	jobID, ok := h.jobID(c)
	if !ok {
		return
	}

	name := c.Param("name")
	path, err := h.service.ArtifactPath(c.Request.Context(), jobID, name)
	if err != nil {
		h.writeError(c, err)
		return
	}

	c.File(path)
}

// GetConfigDefaults handles GET /api/v1/config/defaults
func (h *JobHandler) GetConfigDefaults(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Defaults())
}

// jobID validates the path parameter; on failure the response is written and
// ok is false.
func (h *JobHandler) jobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.writeError(c, service.NewAPIError(http.StatusBadRequest, domain.CodeNotFound,
			"job_id must be a valid UUID"))
		return "", false
	}
	return jobID, true
}

// writeError renders any error as the uniform envelope. Unclassified errors
// become opaque 500s.
func (h *JobHandler) writeError(c *gin.Context, err error) {
	requestID := c.GetString("request_id")

	var apiErr *service.APIError
	if errors.As(err, &apiErr) {
		c.JSON(apiErr.Status, dto.ErrorResponse{
			Error: dto.ErrorBody{
				Code:    apiErr.Code,
				Message: apiErr.Message,
				Details: apiErr.Details,
			},
			RequestID: requestID,
		})
		return
	}

	h.logger.Error("Unhandled API error",
		slog.String("path", c.Request.URL.Path),
		slog.Any("error", err),
	)
	c.JSON(http.StatusInternalServerError, dto.ErrorResponse{
		Error: dto.ErrorBody{
			Code:    "INTERNAL",
			Message: "internal server error",
		},
		RequestID: requestID,
	})
}
