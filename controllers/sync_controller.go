package controllers

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"screener_backend/models"
	syncsvc "screener_backend/services/sync"
	"screener_backend/services/syncstate"
)

// UpstreamStatus reports client internals for the status endpoint
type UpstreamStatus interface {
	Status() map[string]interface{}
}

// SyncController exposes manual sync triggers and sync observability
type SyncController struct {
	db           *gorm.DB
	orchestrator *syncsvc.Orchestrator
	tracker      *syncstate.Tracker
	upstream     UpstreamStatus
}

// NewSyncController creates a new sync controller
func NewSyncController(db *gorm.DB, orchestrator *syncsvc.Orchestrator,
	tracker *syncstate.Tracker, upstream UpstreamStatus) *SyncController {
	return &SyncController{
		db:           db,
		orchestrator: orchestrator,
		tracker:      tracker,
		upstream:     upstream,
	}
}

type triggerRequest struct {
	Symbols []string `json:"symbols"`
}

// TriggerJob starts a sync job in the background and returns 202.
// The job outcome lands in the job log; a held lock shows up there
// as a skipped run.
// POST /api/v1/sync/jobs/:jobType
func (sc *SyncController) TriggerJob(c *gin.Context) {
	jobType := c.Param("jobType")

	var req triggerRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	go func() {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("Sync job %s panicked: %v", jobType, r)
			}
		}()
		result := sc.orchestrator.RunJob(context.Background(), jobType, req.Symbols)
		log.Printf("Triggered %s sync finished: status=%s processed=%d failed=%d",
			jobType, result.Status, result.Processed, result.Failed)
	}()

	c.JSON(http.StatusAccepted, gin.H{
		"message":  "Sync job started",
		"job_type": jobType,
	})
}

// RefreshSymbol re-syncs one symbol synchronously
// POST /api/v1/sync/refresh/:symbol
func (sc *SyncController) RefreshSymbol(c *gin.Context) {
	symbol := c.Param("symbol")

	result := sc.orchestrator.RefreshSymbol(c.Request.Context(), symbol)
	status := http.StatusOK
	if result.Status == syncsvc.StatusFailed {
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"data": result})
}

// GetJobLogs returns recent job runs
// GET /api/v1/sync/jobs
func (sc *SyncController) GetJobLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if limit < 1 || limit > 200 {
		limit = 50
	}

	query := sc.db.Model(&models.SyncJobLog{}).Order("started_at DESC").Limit(limit)
	if jobType := c.Query("job_type"); jobType != "" {
		query = query.Where("job_type = ?", jobType)
	}

	var logs []models.SyncJobLog
	if err := query.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": logs})
}

// GetSymbolStatus returns per-data-type sync state for one symbol
// GET /api/v1/sync/status/:symbol
func (sc *SyncController) GetSymbolStatus(c *gin.Context) {
	symbol := c.Param("symbol")

	var statuses []models.SyncStatus
	if err := sc.db.Where("symbol = ?", symbol).Find(&statuses).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"data": statuses})
}

// GetStatus reports upstream client health and the latest run per job
// GET /api/v1/sync/status
func (sc *SyncController) GetStatus(c *gin.Context) {
	var latest []models.SyncJobLog
	err := sc.db.Raw(`
		SELECT l.* FROM sync_job_logs l
		JOIN (
			SELECT job_type, MAX(started_at) AS started_at
			FROM sync_job_logs GROUP BY job_type
		) m ON l.job_type = m.job_type AND l.started_at = m.started_at
	`).Scan(&latest).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"upstream":  sc.upstream.Status(),
		"jobs":      latest,
		"timestamp": time.Now(),
	})
}
