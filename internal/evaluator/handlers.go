package evaluator

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"github.com/mbd888/riskline/internal/fraud"
)

// Handler provides HTTP endpoints for transaction evaluation.
type Handler struct {
	service        *Service
	maxBatchSize   int
	batchParallel  int
}

// NewHandler creates an evaluation handler.
func NewHandler(service *Service, maxBatchSize, batchParallel int) *Handler {
	if maxBatchSize <= 0 {
		maxBatchSize = 100
	}
	if batchParallel <= 0 {
		batchParallel = 8
	}
	return &Handler{
		service:       service,
		maxBatchSize:  maxBatchSize,
		batchParallel: batchParallel,
	}
}

// RegisterRoutes sets up evaluation endpoints.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/evaluations", h.Evaluate)
	r.POST("/evaluations/batch", h.EvaluateBatch)
}

// Evaluate scores a single transaction.
// POST /v1/evaluations
func (h *Handler) Evaluate(c *gin.Context) {
	var tx fraud.Transaction
	if err := c.ShouldBindJSON(&tx); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must be a transaction object",
		})
		return
	}

	eval, err := h.service.Evaluate(c.Request.Context(), &tx)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   validationCode(err),
			"message": err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"evaluation": eval,
	})
}

type batchRequest struct {
	Transactions []fraud.Transaction `json:"transactions" binding:"required"`
}

// batchItem is one slot in the batch response: a result or an error,
// never both, in the same position as its input.
type batchItem struct {
	Evaluation *fraud.Evaluation `json:"evaluation,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// EvaluateBatch scores up to the configured limit of transactions with
// bounded concurrency. One bad transaction fails its own slot only.
// POST /v1/evaluations/batch
func (h *Handler) EvaluateBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Request body must contain 'transactions' array",
		})
		return
	}
	if len(req.Transactions) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "empty_batch",
			"message": "transactions must not be empty",
		})
		return
	}
	if len(req.Transactions) > h.maxBatchSize {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "batch_too_large",
			"message": "Batch exceeds the maximum size",
			"max":     h.maxBatchSize,
		})
		return
	}

	results := make([]batchItem, len(req.Transactions))

	g, ctx := errgroup.WithContext(c.Request.Context())
	g.SetLimit(h.batchParallel)
	for i := range req.Transactions {
		i := i
		g.Go(func() error {
			eval, err := h.service.Evaluate(ctx, &req.Transactions[i])
			if err != nil {
				results[i] = batchItem{Error: err.Error()}
				return nil // per-item isolation: never cancel the group
			}
			results[i] = batchItem{Evaluation: eval}
			return nil
		})
	}
	_ = g.Wait()

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"count":   len(results),
		"results": results,
	})
}

func validationCode(err error) string {
	switch {
	case errors.Is(err, fraud.ErrMissingCustomer):
		return "missing_customer"
	case errors.Is(err, fraud.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, fraud.ErrInvalidEmail):
		return "invalid_email"
	default:
		return "invalid_transaction"
	}
}
