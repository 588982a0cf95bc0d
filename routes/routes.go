package routes

import (
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"screener_backend/controllers"
	"screener_backend/middleware"
	"screener_backend/services/broadcast"
	"screener_backend/services/screener"
	syncsvc "screener_backend/services/sync"
	"screener_backend/services/syncstate"
)

// SetupRoutes sets up all API routes
func SetupRoutes(router *gin.Engine, db *gorm.DB, engine *screener.Engine,
	orchestrator *syncsvc.Orchestrator, tracker *syncstate.Tracker,
	upstream controllers.UpstreamStatus, hub *broadcast.Hub) {

	// Initialize controllers
	screenerController := controllers.NewScreenerController(engine)
	syncController := controllers.NewSyncController(db, orchestrator, tracker, upstream)
	tickerController := controllers.NewTickerController(db)

	// Websocket endpoint for broadcast subscribers
	router.GET("/ws", func(c *gin.Context) {
		hub.HandleWebSocket(c.Writer, c.Request)
	})

	// API v1 group
	api := router.Group("/api/v1")
	{
		// Screener routes
		scr := api.Group("/screener")
		{
			scr.POST("/query", middleware.ScreenerRateLimitMiddleware(), screenerController.Screen)
			scr.GET("/presets", screenerController.GetPresets)
			scr.GET("/presets/:id", middleware.ScreenerRateLimitMiddleware(), screenerController.RunPreset)
		}

		// Ticker routes
		tickers := api.Group("/tickers")
		{
			tickers.GET("", tickerController.GetTickers)
			tickers.GET("/:symbol", tickerController.GetTicker)
			tickers.GET("/:symbol/bars", tickerController.GetBars)
			tickers.GET("/:symbol/financials", tickerController.GetFinancials)
			tickers.GET("/:symbol/dividends", tickerController.GetDividends)
			tickers.GET("/:symbol/splits", tickerController.GetSplits)
			tickers.GET("/:symbol/news", tickerController.GetNews)
		}

		// Sync routes; mutations require a token
		syncGroup := api.Group("/sync")
		{
			syncGroup.GET("/status", syncController.GetStatus)
			syncGroup.GET("/jobs", syncController.GetJobLogs)
			syncGroup.GET("/status/:symbol", syncController.GetSymbolStatus)

			protected := syncGroup.Group("")
			protected.Use(middleware.JWTAuthMiddleware())
			{
				protected.POST("/jobs/:jobType", syncController.TriggerJob)
				protected.POST("/refresh/:symbol", syncController.RefreshSymbol)
			}
		}
	}
}
