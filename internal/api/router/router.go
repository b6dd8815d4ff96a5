package router

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/item-triage/internal/api/handler"
	"github.com/gin-gonic/gin"
)

// SetupRouter configures and returns the Gin router with all routes
func SetupRouter(deps *handler.Dependencies) *gin.Engine {
	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORSMiddleware())

	r.GET("/health", func(c *gin.Context) {
		if deps.HealthCheck != nil {
			if err := deps.HealthCheck(c.Request.Context()); err != nil {
				deps.Logger.Error("Health check failed", slog.String("error", err.Error()))
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status":  "unhealthy",
					"service": "item-triage-api",
				})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  "healthy",
			"service": "item-triage-api",
		})
	})

	categoryHandler := handler.NewCategoryHandler(deps)
	jobHandler := handler.NewJobHandler(deps)

	v1 := r.Group("/api/v1")
	{
		v1.GET("/categories", categoryHandler.ListCategories)

		categories := v1.Group("/categories/:category")
		{
			// POST /api/v1/categories/:category/staged - Stage items for the next sweep
			categories.POST("/staged", categoryHandler.StageItems)

			// GET /api/v1/categories/:category/staged - List staged items
			categories.GET("/staged", categoryHandler.ListStaged)

			// POST /api/v1/categories/:category/launch - Run a sweep now
			categories.POST("/launch", categoryHandler.Launch)

			// GET /api/v1/categories/:category/lock - Show the held job lock
			categories.GET("/lock", categoryHandler.GetLock)
		}

		jobs := v1.Group("/jobs")
		{
			// GET /api/v1/jobs - List jobs with filtering and pagination
			jobs.GET("", jobHandler.ListJobs)

			// GET /api/v1/jobs/:job_id - Get job progress
			jobs.GET("/:job_id", jobHandler.GetJob)

			// GET /api/v1/jobs/:job_id/outcomes - List per-item outcomes
			jobs.GET("/:job_id/outcomes", jobHandler.ListOutcomes)
		}

		v1.GET("/artifacts/*name", jobHandler.GetArtifact)
	}

	return r
}
