package router

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/smartcomp/smartcomp-be/internal/api/handler"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	// Middleware
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	// Health check endpoint
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		health := "healthy"
		dbStatus := "up"
		if deps.DBClient != nil {
			if err := deps.DBClient.HealthCheck(c.Request.Context()); err != nil {
				status = http.StatusServiceUnavailable
				health = "degraded"
				dbStatus = "down"
			}
		}
		c.JSON(status, gin.H{
			"status":   health,
			"service":  deps.AppName,
			"database": dbStatus,
		})
	})

	jobHandler := handler.NewJobHandler(deps)

	// API v1 routes
	v1 := r.Group("/api/v1")
	{
		v1.GET("/config/defaults", jobHandler.GetConfigDefaults)

		jobs := v1.Group("/jobs")
		{
			// POST /api/v1/jobs - Submit a new analysis job
			jobs.POST("", jobHandler.CreateJob)

			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job status and progress
			jobs.GET("/:job_id", jobHandler.GetJob)

			// POST /api/v1/jobs/:job_id/cancel - Request cancellation
			jobs.POST("/:job_id/cancel", jobHandler.CancelJob)

			// GET /api/v1/jobs/:job_id/results - Normalized result document
			jobs.GET("/:job_id/results", jobHandler.GetResults)

			// GET /api/v1/jobs/:job_id/artifacts - List output artifacts
			jobs.GET("/:job_id/artifacts", jobHandler.ListArtifacts)

			// GET /api/v1/jobs/:job_id/artifacts/*name - Download an artifact
			jobs.GET("/:job_id/artifacts/*name", jobHandler.DownloadArtifact)
		}
	}

	return r
}
