package reports

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mbd888/riskline/internal/fraud"
	"github.com/mbd888/riskline/internal/validation"
)

// Handler provides HTTP endpoints for fraud reports.
type Handler struct {
	service *Service
}

// NewHandler creates a reports handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterRoutes sets up report endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/reports", h.FileReport)
	r.GET("/reports/:id", idParam, h.GetReport)
	r.POST("/reports/:id/status", idParam, h.UpdateStatus)
}

// idParam rejects malformed path identifiers before they reach the store.
func idParam(c *gin.Context) {
	if !validation.IsValidIdentifier(c.Param("id")) {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_id",
			"message": "Identifier has invalid characters or length",
		})
	}
}

type fileReportRequest struct {
	EvaluationID string `json:"evaluationId"`
	CustomerID   string `json:"customerId" binding:"required"`
	ReportedBy   string `json:"reportedBy"`
	Reason       string `json:"reason" binding:"required"`
}

// FileReport files a new fraud report.
// POST /v1/reports
func (h *Handler) FileReport(c *gin.Context) {
	var req fileReportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "customerId and reason are required",
		})
		return
	}

	report, err := h.service.File(c.Request.Context(), req.EvaluationID, req.CustomerID, req.ReportedBy, req.Reason)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "report_failed",
			"message": "Failed to file report",
		})
		return
	}
	c.JSON(http.StatusCreated, report)
}

// GetReport returns a single report.
// GET /v1/reports/:id
func (h *Handler) GetReport(c *gin.Context) {
	report, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "report_not_found",
			"message": "No report with that id",
		})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to load report",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

type updateStatusRequest struct {
	Status fraud.ReportStatus `json:"status" binding:"required"`
}

// UpdateStatus confirms or dismisses a report.
// POST /v1/reports/:id/status
func (h *Handler) UpdateStatus(c *gin.Context) {
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "status is required",
		})
		return
	}

	report, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	switch {
	case errors.Is(err, ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "report_not_found",
			"message": "No report with that id",
		})
	case errors.Is(err, ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_status",
			"message": "status must be CONFIRMED or DISMISSED",
		})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":   "store_error",
			"message": "Failed to update report",
		})
	default:
		c.JSON(http.StatusOK, report)
	}
}
