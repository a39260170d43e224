package handler

import (
	"log/slog"

	"github.com/smartcomp/smartcomp-be/internal/api/service"
	"github.com/smartcomp/smartcomp-be/shared/postgresql"
)

// Dependencies holds everything the handlers need.
type Dependencies struct {
	Logger     *slog.Logger
	DBClient   *postgresql.Client
	JobService *service.JobService
	AppName    string
}

// JobHandler handles job-related HTTP requests
type JobHandler struct {
	logger  *slog.Logger
	service *service.JobService
}

// NewJobHandler creates a new JobHandler instance
func NewJobHandler(deps *Dependencies) *JobHandler {
	return &JobHandler{
		logger:  deps.Logger,
		service: deps.JobService,
	}
}
