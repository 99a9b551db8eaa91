package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/storepulse/internal/database"
	"github.com/jonesrussell/storepulse/internal/domain"
	"github.com/jonesrussell/storepulse/internal/logger"
	"github.com/jonesrussell/storepulse/internal/orchestrator"
)

// BatchService queues and executes measurement batches.
type BatchService interface {
	StartBatch(ctx context.Context, siteID string) (*domain.Job, error)
	RunBatch(ctx context.Context, siteID, jobID string) error
}

// BatchesHandler handles batch trigger requests.
type BatchesHandler struct {
	batches BatchService
	logger  logger.Interface
}

// NewBatchesHandler creates a new batches handler.
func NewBatchesHandler(batches BatchService, log logger.Interface) *BatchesHandler {
	return &BatchesHandler{
		batches: batches,
		logger:  log,
	}
}

// CreateBatch handles POST /api/v1/sites/:id/batches. The batch runs in the
// background; the response only acknowledges the queued job.
func (h *BatchesHandler) CreateBatch(c *gin.Context) {
	siteID := c.Param("id")
	if siteID == "" || siteID == "undefined" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid site ID",
		})
		return
	}

	job, err := h.batches.StartBatch(c.Request.Context(), siteID)
	if err != nil {
		switch {
		case errors.Is(err, orchestrator.ErrBatchInProgress):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Collection already in progress for this site",
			})
		case errors.Is(err, database.ErrSiteNotFound):
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Site not found",
			})
		default:
			h.logger.Error("failed to queue batch", "site_id", siteID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to queue batch",
			})
		}
		return
	}

	// The request context dies with the response; the batch gets its own.
	go func() {
		if runErr := h.batches.RunBatch(context.Background(), siteID, job.ID); runErr != nil {
			h.logger.Error("batch failed",
				"site_id", siteID,
				"job_id", job.ID,
				"error", runErr,
			)
		}
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"job_id": job.ID,
	})
}
