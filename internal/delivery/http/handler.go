package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rxlens/backend/internal/domain"
	"github.com/rxlens/backend/internal/usecase"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	matcher *usecase.MatcherService
	log     *zap.Logger
}

// NewHandler creates a new HTTP handler.
func NewHandler(matcher *usecase.MatcherService, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{matcher: matcher, log: log}
}

// HealthCheck returns the health status of the API.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "rxlens-backend",
	})
}

// GetNdc returns the match result for one NDC, matching it live when no
// stored row exists.
func (h *Handler) GetNdc(c *gin.Context) {
	result, err := h.matcher.LookupSingle(c.Request.Context(), c.Param("code"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// SearchMatches returns stored matches whose product name contains the query,
// optionally filtered by a minimum confidence.
func (h *Handler) SearchMatches(c *gin.Context) {
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	minConfidence := 0.0
	if raw := c.Query("min_confidence"); raw != "" {
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "min_confidence must be a number"})
			return
		}
		minConfidence = f
	}

	results, err := h.matcher.SearchByName(c.Request.Context(), c.Query("q"), minConfidence, limit)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// GetByRxcui returns every stored match mapped to one RxNorm concept.
func (h *Handler) GetByRxcui(c *gin.Context) {
	results, err := h.matcher.FindByRxcui(c.Request.Context(), c.Param("rxcui"))
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"results": results,
		"count":   len(results),
	})
}

// batchRequest is the body of a batch match call. Codes is a convenience for
// callers with bare NDCs; Records carries full product metadata and enables
// the name-fallback path.
type batchRequest struct {
	Codes       []string           `json:"codes"`
	Records     []domain.NdcRecord `json:"records"`
	Concurrency int                `json:"concurrency"`
	MaxAttempts int                `json:"maxAttempts"`
}

// RunBatch matches a batch of NDC records and returns the per-outcome
// counts with the skipped subset.
func (h *Handler) RunBatch(c *gin.Context) {
	var req batchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body: " + err.Error()})
		return
	}

	records := req.Records
	for _, code := range req.Codes {
		records = append(records, domain.NdcRecord{NdcRaw: code})
	}

	report, err := h.matcher.RunBatch(c.Request.Context(), records, usecase.PipelineConfig{
		Concurrency: req.Concurrency,
		MaxAttempts: req.MaxAttempts,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

// Statistics reports store-wide aggregates.
func (h *Handler) Statistics(c *gin.Context) {
	stats, err := h.matcher.Stats(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// Export streams a consistent snapshot of all match results.
func (h *Handler) Export(c *gin.Context) {
	format := c.DefaultQuery("format", "json")

	switch format {
	case "json":
		c.Header("Content-Type", "application/json")
	case "csv":
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", `attachment; filename="matches.csv"`)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "format must be json or csv"})
		return
	}

	if _, err := h.matcher.ExportSnapshot(c.Request.Context(), format, c.Writer); err != nil {
		// Headers may already be out; log instead of rewriting the status.
		h.log.Error("export failed", zap.String("format", format), zap.Error(err))
	}
}

// writeError maps domain errors to HTTP statuses.
func (h *Handler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrMatchNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsTransient(err):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "terminology service unavailable, retry later"})
	default:
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
