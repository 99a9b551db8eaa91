package api

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/storepulse/internal/domain"
)

// retryAfterSeconds is the hint returned with 429 responses. It matches the
// poller's maximum interval so a backed-off client lands inside the budget.
const retryAfterSeconds = 60

// StatusService provides the per-site status read model.
type StatusService interface {
	ActiveStatus(ctx context.Context) ([]domain.SiteStatus, error)
}

// requestBudget is a fixed-window request counter. When the per-minute budget
// is exhausted the handler answers 429, which adaptive pollers treat as a
// back-off signal.
type requestBudget struct {
	mu          sync.Mutex
	budget      int
	windowStart time.Time
	count       int
}

func newRequestBudget(budget int) *requestBudget {
	return &requestBudget{budget: budget}
}

// Allow consumes one request from the current window. A zero budget disables
// limiting.
func (b *requestBudget) Allow() bool {
	if b.budget <= 0 {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if now.Sub(b.windowStart) >= time.Minute {
		b.windowStart = now
		b.count = 0
	}

	if b.count >= b.budget {
		return false
	}

	b.count++
	return true
}

// StatusHandler serves the polling read model.
type StatusHandler struct {
	status StatusService
	budget *requestBudget
}

// NewStatusHandler creates a status handler with the given per-minute request
// budget.
func NewStatusHandler(status StatusService, budget int) *StatusHandler {
	return &StatusHandler{
		status: status,
		budget: newRequestBudget(budget),
	}
}

// GetStatus handles GET /api/v1/status.
func (h *StatusHandler) GetStatus(c *gin.Context) {
	if !h.budget.Allow() {
		c.Header("Retry-After", strconv.Itoa(retryAfterSeconds))
		c.JSON(http.StatusTooManyRequests, gin.H{
			"error": "Status request budget exceeded",
		})
		return
	}

	statuses, err := h.status.ActiveStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to retrieve status",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"sites": statuses,
		"count": len(statuses),
	})
}
