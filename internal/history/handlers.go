package history

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/pagination"
	"github.com/mbd888/riskline/internal/validation"
)

// List page sizes.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Handler provides HTTP endpoints for evaluation history.
type Handler struct {
	store Store
}

// NewHandler creates a history handler.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes sets up history endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/evaluations/:id", idParam, h.GetEvaluation)
	r.GET("/customers/:id/evaluations", idParam, h.ListCustomerEvaluations)
	r.GET("/customers/:id/risk", idParam, h.GetCustomerRisk)
}

// idParam rejects malformed path identifiers before they reach a store.
func idParam(c *gin.Context) {
	if !validation.IsValidIdentifier(c.Param("id")) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "Identifier has invalid characters or length",
		})
	}
}

// GetEvaluation returns a single evaluation by id.
// GET /v1/evaluations/:id
func (h *Handler) GetEvaluation(c *gin.Context) {
	eval, err := h.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "evaluation_not_found",
			"message": "No evaluation with that id",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to load evaluation",
		})
		return
	}
	c.JSON(http.StatusOK, eval)
}

// ListCustomerEvaluations returns a customer's evaluations, oldest first.
// GET /v1/customers/:id/evaluations?since=RFC3339&limit=N&cursor=...
func (h *Handler) ListCustomerEvaluations(c *gin.Context) {
	since := time.Now().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_since",
				"message": "since must be RFC3339",
			})
			return
		}
		since = parsed
	}

	limit := defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > maxPageSize {
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "invalid_limit",
				"message": "limit must be between 1 and 200",
			})
			return
		}
		limit = parsed
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_cursor",
			"message": "cursor is not valid",
		})
		return
	}

	evals, err := h.store.ListByCustomer(c.Request.Context(), c.Param("id"), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to list evaluations",
		})
		return
	}

	if cursor != nil {
		evals = afterCursor(evals, cursor)
	}
	page, next, hasMore := pagination.ComputePage(evals, limit, func(e *fraud.Evaluation) (time.Time, string) {
		return e.CreatedAt, e.ID
	})

	resp := gin.H{
		"customerId":  c.Param("id"),
		"since":       since,
		"count":       len(page),
		"evaluations": page,
		"hasMore":     hasMore,
	}
	if next != "" {
		resp["nextCursor"] = next
	}
	c.JSON(http.StatusOK, resp)
}

// afterCursor drops everything up to and including the cursor position.
// Ties on CreatedAt break on id so a page boundary inside one timestamp
// neither skips nor repeats records.
func afterCursor(evals []*fraud.Evaluation, cur *pagination.Cursor) []*fraud.Evaluation {
	for i, e := range evals {
		if e.CreatedAt.After(cur.CreatedAt) ||
			(e.CreatedAt.Equal(cur.CreatedAt) && e.ID > cur.ID) {
			return evals[i:]
		}
	}
	return nil
}

// GetCustomerRisk returns the customer's profile aggregate plus their
// most recent evaluation.
// GET /v1/customers/:id/risk
func (h *Handler) GetCustomerRisk(c *gin.Context) {
	ctx := c.Request.Context()
	customerID := c.Param("id")

	profile, err := h.store.Profile(ctx, customerID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to aggregate customer profile",
		})
		return
	}

	resp := gin.H{"profile": profile}

	// Latest evaluation is advisory; a lookup failure still returns the
	// profile.
	evals, err := h.store.ListByCustomer(ctx, customerID, time.Time{})
	if err == nil && len(evals) > 0 {
		resp["latestEvaluation"] = evals[len(evals)-1]
	}

	c.JSON(http.StatusOK, resp)
}
