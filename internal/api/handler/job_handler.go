package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/cuongbtq/item-triage/internal/api/dto"
	"github.com/cuongbtq/item-triage/internal/storage"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func toJobDTO(job *domain.BatchJob) dto.JobDTO {
	return dto.JobDTO{
		JobID:            job.JobID,
		Category:         job.Category,
		InstitutionCode:  job.InstitutionCode,
		Status:           job.Status,
		TotalItems:       job.TotalItems,
		TotalBatches:     job.TotalBatches,
		CompletedBatches: job.CompletedBatches,
		ProcessedItems:   job.ProcessedItems,
		FailedItems:      job.FailedItems,
		CreatedAt:        job.CreatedAt,
		CompletedAt:      job.CompletedAt,
	}
}

// validJobID writes 400 and returns false unless job_id is a UUID
func (h *JobHandler) validJobID(c *gin.Context) (string, bool) {
	jobID := c.Param("job_id")
	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return "", false
	}
	return jobID, true
}

// GetJob handles GET /api/v1/jobs/:job_id
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID, ok := h.validJobID(c)
	if !ok {
		return
	}

	job, err := h.jobs.Get(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, domain.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs newest first, filtered by category and status, with cursor pagination.
// Jobs stuck in_progress are found here.
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = defaultPageSize
	}
	if req.PageSize > maxPageSize {
		req.PageSize = maxPageSize
	}

	cursor, err := DecodeJobCursor(req.Cursor)
	if err != nil {
		h.logger.Error("Invalid cursor", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	jobs, err := h.jobs.List(c.Request.Context(), storage.JobFilter{
		Category: req.Category,
		Status:   req.Status,
		PageSize: req.PageSize,
		Cursor:   cursor,
	})
	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	hasMore := len(jobs) > req.PageSize
	if hasMore {
		jobs = jobs[:req.PageSize]
	}

	resp := dto.ListJobsResponse{Jobs: make([]dto.JobDTO, len(jobs))}
	for i := range jobs {
		resp.Jobs[i] = toJobDTO(&jobs[i])
	}

	if hasMore {
		last := jobs[len(jobs)-1]
		resp.NextCursor = EncodeJobCursor(&storage.JobCursor{
			CreatedAt: last.CreatedAt,
			JobID:     last.JobID,
		})
	}

	c.JSON(http.StatusOK, resp)
}

// ListOutcomes handles GET /api/v1/jobs/:job_id/outcomes
func (h *JobHandler) ListOutcomes(c *gin.Context) {
	jobID, ok := h.validJobID(c)
	if !ok {
		return
	}

	outcomes, err := h.outcomes.ListByJob(c.Request.Context(), jobID)
	if err != nil {
		h.logger.Error("Failed to list outcomes", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list outcomes",
		})
		return
	}

	resp := dto.ListOutcomesResponse{JobID: jobID, Outcomes: make([]dto.OutcomeDTO, len(outcomes))}
	for i, o := range outcomes {
		resp.Outcomes[i] = dto.OutcomeDTO{
			ItemKey:         o.ItemKey,
			InstitutionCode: o.InstitutionCode,
			Success:         o.Success,
			Reason:          o.Reason,
			ProcessedAt:     o.ProcessedAt,
		}
	}

	c.JSON(http.StatusOK, resp)
}

// GetArtifact handles GET /api/v1/artifacts/*name
// Serves a stored report, report row or updated item artifact.
func (h *JobHandler) GetArtifact(c *gin.Context) {
	name := strings.TrimPrefix(c.Param("name"), "/")
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "artifact name is required",
		})
		return
	}

	artifact, err := h.artifacts.GetArtifact(c.Request.Context(), name)
	if err != nil {
		if errors.Is(err, storage.ErrArtifactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Artifact not found",
			})
			return
		}
		h.logger.Error("Failed to get artifact",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get artifact",
		})
		return
	}

	c.Data(http.StatusOK, artifact.ContentType, artifact.Data)
}
