package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/cuongbtq/item-triage/internal/api/dto"
	"github.com/cuongbtq/item-triage/internal/triage/domain"
	"github.com/cuongbtq/item-triage/internal/triage/launcher"
	"github.com/gin-gonic/gin"
)

// ListCategories handles GET /api/v1/categories
func (h *CategoryHandler) ListCategories(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"categories": h.categories.Names()})
}

// requireCategory writes 404 and returns false when the path names an unregistered category
func (h *CategoryHandler) requireCategory(c *gin.Context) (string, bool) {
	category := c.Param("category")
	if !h.categories.Has(category) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "unknown category",
		})
		return "", false
	}
	return category, true
}

// StageItems handles POST /api/v1/categories/:category/staged
// Flags items for the next sweep. Staging an item twice keeps one entry.
func (h *CategoryHandler) StageItems(c *gin.Context) {
	category, ok := h.requireCategory(c)
	if !ok {
		return
	}

	var req dto.StageItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	for _, item := range req.Items {
		err := h.staging.Upsert(c.Request.Context(), domain.StagedItem{
			Category:        category,
			ItemKey:         item.ItemKey,
			InstitutionCode: item.InstitutionCode,
			StagedAt:        h.now().UTC(),
		})
		if err != nil {
			h.logger.Error("Failed to stage item",
				slog.String("category", category),
				slog.String("item_key", item.ItemKey),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to stage items",
			})
			return
		}
	}

	h.logger.Info("Items staged",
		slog.String("category", category),
		slog.Int("count", len(req.Items)),
	)

	c.JSON(http.StatusAccepted, dto.StageItemsResponse{
		Category: category,
		Staged:   len(req.Items),
	})
}

// ListStaged handles GET /api/v1/categories/:category/staged
func (h *CategoryHandler) ListStaged(c *gin.Context) {
	category, ok := h.requireCategory(c)
	if !ok {
		return
	}

	staged, err := h.staging.List(c.Request.Context(), category)
	if err != nil {
		h.logger.Error("Failed to list staged items", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list staged items",
		})
		return
	}

	items := make([]dto.StagedItemDTO, len(staged))
	for i, s := range staged {
		items[i] = dto.StagedItemDTO{
			ItemKey:         s.ItemKey,
			InstitutionCode: s.InstitutionCode,
			StagedAt:        s.StagedAt,
		}
	}

	c.JSON(http.StatusOK, dto.ListStagedResponse{Category: category, Items: items})
}

// Launch handles POST /api/v1/categories/:category/launch
// Runs one sweep now. A sweep skipped because a job holds the lock is not an error.
func (h *CategoryHandler) Launch(c *gin.Context) {
	category, ok := h.requireCategory(c)
	if !ok {
		return
	}

	var req dto.LaunchRequest
	// the body is optional
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}
	batchSize := req.BatchSize
	if batchSize == 0 {
		batchSize = h.defaultBatchSize
	}

	summary, err := h.launcher.Launch(c.Request.Context(), category, batchSize)
	if err != nil {
		if errors.Is(err, launcher.ErrInvalidBatchSize) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": err.Error(),
			})
			return
		}
		h.logger.Error("Failed to launch batch job",
			slog.String("category", category),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to launch batch job",
		})
		return
	}

	status := http.StatusAccepted
	if summary.Skipped != "" {
		status = http.StatusOK
	}

	c.JSON(status, dto.LaunchResponse{
		Category:      category,
		JobID:         summary.JobID,
		Skipped:       summary.Skipped,
		TotalItems:    summary.TotalItems,
		TotalBatches:  summary.TotalBatches,
		EnqueuedCount: summary.EnqueuedCount,
		FailedBatches: summary.FailedBatches,
	})
}

// GetLock handles GET /api/v1/categories/:category/lock
func (h *CategoryHandler) GetLock(c *gin.Context) {
	category, ok := h.requireCategory(c)
	if !ok {
		return
	}

	held, err := h.locks.Status(c.Request.Context(), category)
	if err != nil {
		h.logger.Error("Failed to read job lock", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read job lock",
		})
		return
	}

	resp := dto.LockResponse{Category: category}
	if held != nil {
		resp.Locked = true
		resp.CreatedAt = &held.CreatedAt
	}
	c.JSON(http.StatusOK, resp)
}
