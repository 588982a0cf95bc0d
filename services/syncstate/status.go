package syncstate

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"screener_backend/models"
)

// Data types tracked per symbol
const (
	DataTypeSnapshot   = "snapshot"
	DataTypeDaily      = "daily"
	DataTypeFinancials = "financials"
	DataTypeRatios     = "ratios"
	DataTypeDividends  = "dividends"
	DataTypeSplits     = "splits"
	DataTypeNews       = "news"
	DataTypeDetails    = "details"
)

// RetryDelays is the fixed escalating delay table indexed by retry
// count. Once a symbol exhausts it, no further automatic retry is
// scheduled; a manual trigger is required. Deliberately not
// configurable so retry behavior stays predictable and testable.
var RetryDelays = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	1 * time.Hour,
	6 * time.Hour,
	24 * time.Hour,
}

// Tracker maintains per-(symbol, data type) sync outcome records and
// drives stale-entity selection for the orchestrator.
type Tracker struct {
	db *gorm.DB
}

// NewTracker creates a sync status tracker
func NewTracker(db *gorm.DB) *Tracker {
	return &Tracker{db: db}
}

// RecordOutcome records a sync success or failure for a symbol. A
// success resets the retry count and clears any pending retry.
func (t *Tracker) RecordOutcome(symbol, dataType string, success bool, syncErr error) error {
	var status models.SyncStatus
	err := t.db.Where("symbol = ? AND data_type = ?", symbol, dataType).First(&status).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("load sync status %s/%s: %w", symbol, dataType, err)
	}

	status.Symbol = symbol
	status.DataType = dataType

	if success {
		now := time.Now()
		status.LastSyncedAt = &now
		status.LastStatus = models.SyncStatusSuccess
		status.ErrorMessage = ""
		status.RetryCount = 0
		status.NextRetryAt = nil
	} else {
		status.LastStatus = models.SyncStatusFailed
		status.RetryCount++
		if syncErr != nil {
			status.ErrorMessage = syncErr.Error()
		}
	}

	if err := t.db.Save(&status).Error; err != nil {
		return fmt.Errorf("save sync status %s/%s: %w", symbol, dataType, err)
	}
	return nil
}

// ScheduleRetry sets the next retry time from the delay table. Past
// the end of the table the symbol is given up on permanently.
func (t *Tracker) ScheduleRetry(symbol, dataType string) error {
	var status models.SyncStatus
	err := t.db.Where("symbol = ? AND data_type = ?", symbol, dataType).First(&status).Error
	if err != nil {
		return fmt.Errorf("load sync status %s/%s: %w", symbol, dataType, err)
	}

	// RecordOutcome has already counted this failure, so after k
	// consecutive failures the delay is RetryDelays[k].
	if status.RetryCount >= len(RetryDelays) {
		status.NextRetryAt = nil
		return t.db.Save(&status).Error
	}

	next := time.Now().Add(RetryDelays[status.RetryCount])
	status.NextRetryAt = &next
	if err := t.db.Save(&status).Error; err != nil {
		return fmt.Errorf("schedule retry %s/%s: %w", symbol, dataType, err)
	}
	return nil
}

// SelectStaleSymbols returns active symbols whose last successful sync
// for dataType is missing or older than staleThreshold, highest
// trading volume first. Symbols waiting on a scheduled retry or past
// the retry table are excluded.
func (t *Tracker) SelectStaleSymbols(dataType string, staleThreshold time.Duration, limit int) ([]string, error) {
	now := time.Now()
	cutoff := now.Add(-staleThreshold)

	var symbols []string
	err := t.db.Raw(`
		SELECT t.symbol
		FROM tickers t
		LEFT JOIN sync_statuses s
			ON s.symbol = t.symbol AND s.data_type = ?
		LEFT JOIN screener_snapshots sn
			ON sn.symbol = t.symbol
		WHERE t.active = ?
			AND (s.last_synced_at IS NULL OR s.last_synced_at < ?)
			AND (s.next_retry_at IS NULL OR s.next_retry_at <= ?)
			AND (s.last_status IS NULL OR s.last_status = ? OR s.retry_count < ?)
		ORDER BY COALESCE(sn.volume, 0) DESC
		LIMIT ?`,
		dataType, true, cutoff, now,
		models.SyncStatusSuccess, len(RetryDelays), limit,
	).Scan(&symbols).Error
	if err != nil {
		return nil, fmt.Errorf("select stale symbols for %s: %w", dataType, err)
	}
	return symbols, nil
}

// Get returns the status row for a symbol and data type, or nil when
// the pair has never been synced.
func (t *Tracker) Get(symbol, dataType string) (*models.SyncStatus, error) {
	var status models.SyncStatus
	err := t.db.Where("symbol = ? AND data_type = ?", symbol, dataType).First(&status).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get sync status %s/%s: %w", symbol, dataType, err)
	}
	return &status, nil
}
