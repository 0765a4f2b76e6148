package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"landiq/internal/model"
	"landiq/internal/service"
)

const (
	defaultRecentLimit   = 10
	defaultLocationLimit = 5
	maxListLimit         = 100
)

// ValuationHandler handles valuation-related HTTP requests
type ValuationHandler struct {
	valuations *service.ValuationService
}

// NewValuationHandler creates a new valuation handler
func NewValuationHandler(valuations *service.ValuationService) *ValuationHandler {
	return &ValuationHandler{
		valuations: valuations,
	}
}

// Create handles POST /api/valuations
func (h *ValuationHandler) Create(c *gin.Context) {
	var input model.PropertyInput
	if err := c.ShouldBindJSON(&input); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid request body: " + err.Error()})
		return
	}

	if verr := input.Validate(); verr != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "Invalid input data",
			"errors":  verr.Errors,
		})
		return
	}

	result, _, err := h.valuations.Appraise(c.Request.Context(), &input)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Recent handles GET /api/valuations/recent
func (h *ValuationHandler) Recent(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), defaultRecentLimit)

	valuations, err := h.valuations.RecentValuations(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch recent valuations"})
		return
	}

	c.JSON(http.StatusOK, valuations)
}

// ByLocation handles GET /api/valuations/location/:location
func (h *ValuationHandler) ByLocation(c *gin.Context) {
	location := c.Param("location")
	limit := parseLimit(c.Query("limit"), defaultLocationLimit)

	valuations, err := h.valuations.ValuationsByLocation(c.Request.Context(), location, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch valuations for location"})
		return
	}

	c.JSON(http.StatusOK, valuations)
}

// Get handles GET /api/valuations/:id
func (h *ValuationHandler) Get(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": "Invalid valuation ID"})
		return
	}

	valuation, err := h.valuations.ValuationByID(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to fetch valuation"})
		return
	}

	if valuation == nil {
		c.JSON(http.StatusNotFound, gin.H{"message": "Valuation not found"})
		return
	}

	c.JSON(http.StatusOK, valuation)
}

// parseLimit parses a limit query parameter, falling back to the default and
// capping oversized values
func parseLimit(raw string, defaultLimit int) int {
	if raw == "" {
		return defaultLimit
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return defaultLimit
	}
	if limit > maxListLimit {
		return maxListLimit
	}
	return limit
}
