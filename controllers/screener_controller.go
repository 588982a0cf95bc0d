package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"screener_backend/services/screener"
)

// ScreenerController handles screening requests
type ScreenerController struct {
	engine *screener.Engine
}

// NewScreenerController creates a new screener controller
func NewScreenerController(engine *screener.Engine) *ScreenerController {
	return &ScreenerController{engine: engine}
}

type screenRequest struct {
	screener.Filter
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// Screen evaluates a filter and returns one result page
// POST /api/v1/screener/query
func (sc *ScreenerController) Screen(c *gin.Context) {
	var req screenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := sc.engine.Evaluate(c.Request.Context(), &req.Filter, req.Page, req.PageSize)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   result.Rows,
		"total":  result.Total,
		"source": result.Source,
		"pagination": gin.H{
			"page":      result.Page,
			"page_size": result.PageSize,
		},
	})
}

// GetPresets returns the predefined screens
// GET /api/v1/screener/presets
func (sc *ScreenerController) GetPresets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"data": screener.ListPresets()})
}

// RunPreset evaluates a predefined screen
// GET /api/v1/screener/presets/:id
func (sc *ScreenerController) RunPreset(c *gin.Context) {
	presetID := c.Param("id")
	if _, ok := screener.GetPreset(presetID); !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Preset not found"})
		return
	}

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "0"))

	filter := screener.Filter{Preset: presetID}
	result, err := sc.engine.Evaluate(c.Request.Context(), &filter, page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":   result.Rows,
		"total":  result.Total,
		"source": result.Source,
		"pagination": gin.H{
			"page":      result.Page,
			"page_size": result.PageSize,
		},
	})
}
