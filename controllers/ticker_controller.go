package controllers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"screener_backend/models"
)

// TickerController serves reference data and per-symbol history
type TickerController struct {
	db *gorm.DB
}

// NewTickerController creates a new ticker controller
func NewTickerController(db *gorm.DB) *TickerController {
	return &TickerController{db: db}
}

// GetTickers lists active tickers with optional search
// GET /api/v1/tickers
func (tc *TickerController) GetTickers(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := tc.db.Model(&models.Ticker{}).Where("active = ?", true)
	if search := strings.TrimSpace(c.Query("search")); search != "" {
		like := "%" + strings.ToUpper(search) + "%"
		query = query.Where("UPPER(symbol) LIKE ? OR UPPER(name) LIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var tickers []models.Ticker
	if err := query.Order("symbol ASC").Offset((page - 1) * limit).Limit(limit).Find(&tickers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"data":  tickers,
		"total": total,
		"pagination": gin.H{
			"page":  page,
			"limit": limit,
		},
	})
}

// GetTicker returns one ticker with its current screener snapshot
// GET /api/v1/tickers/:symbol
func (tc *TickerController) GetTicker(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	var ticker models.Ticker
	if err := tc.db.Where("symbol = ?", symbol).First(&ticker).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Ticker not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	var snapshot models.ScreenerSnapshot
	snapErr := tc.db.Where("symbol = ?", symbol).First(&snapshot).Error

	response := gin.H{"ticker": ticker}
	if snapErr == nil {
		response["snapshot"] = snapshot
	}
	c.JSON(http.StatusOK, gin.H{"data": response})
}

// GetBars returns recent daily bars for a symbol
// GET /api/v1/tickers/:symbol/bars
func (tc *TickerController) GetBars(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "90"))
	if limit < 1 || limit > 500 {
		limit = 90
	}

	var bars []models.DailyBar
	if err := tc.db.Where("symbol = ?", symbol).
		Order("date DESC").Limit(limit).Find(&bars).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": bars})
}

// GetFinancials returns stored financial reports for a symbol
// GET /api/v1/tickers/:symbol/financials
func (tc *TickerController) GetFinancials(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	query := tc.db.Where("symbol = ?", symbol)
	if timeframe := c.Query("timeframe"); timeframe != "" {
		query = query.Where("timeframe = ?", timeframe)
	}

	var reports []models.FinancialReport
	if err := query.Order("fiscal_year DESC, fiscal_period DESC").Find(&reports).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": reports})
}

// GetDividends returns dividend history for a symbol
// GET /api/v1/tickers/:symbol/dividends
func (tc *TickerController) GetDividends(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	var dividends []models.Dividend
	if err := tc.db.Where("symbol = ?", symbol).
		Order("ex_date DESC").Find(&dividends).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": dividends})
}

// GetSplits returns split history for a symbol
// GET /api/v1/tickers/:symbol/splits
func (tc *TickerController) GetSplits(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))

	var splits []models.Split
	if err := tc.db.Where("symbol = ?", symbol).
		Order("ex_date DESC").Find(&splits).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": splits})
}

// GetNews returns recent news for a symbol
// GET /api/v1/tickers/:symbol/news
func (tc *TickerController) GetNews(c *gin.Context) {
	symbol := strings.ToUpper(c.Param("symbol"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	if limit < 1 || limit > 100 {
		limit = 20
	}

	var articles []models.NewsArticle
	if err := tc.db.Where("symbol = ?", symbol).
		Order("published_at DESC").Limit(limit).Find(&articles).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": articles})
}
