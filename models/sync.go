package models

import (
	"time"

	"gorm.io/gorm"
)

// Sync job log statuses
const (
	JobStatusStarted   = "started"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// Per-entity sync statuses
const (
	SyncStatusSuccess = "success"
	SyncStatusFailed  = "failed"
)

// SyncLock is a row-backed distributed lock. At most one non-expired
// row exists per name; ownership is established by holder identity,
// not by row existence alone.
type SyncLock struct {
	Name       string    `gorm:"primaryKey;size:100" json:"name"`
	HolderID   string    `gorm:"size:100;not null" json:"holder_id"`
	AcquiredAt time.Time `json:"acquired_at"`
	ExpiresAt  time.Time `gorm:"index" json:"expires_at"`
}

// SyncCheckpoint stores the resume cursor for a job type. Upserted
// periodically during a run, deleted on successful completion.
type SyncCheckpoint struct {
	JobType        string    `gorm:"primaryKey;size:50" json:"job_type"`
	LastKey        string    `gorm:"size:50" json:"last_key"`
	ProcessedCount int       `json:"processed_count"`
	TotalCount     int       `json:"total_count"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// SyncStatus records the last sync outcome per (symbol, data type) pair
type SyncStatus struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Symbol       string     `gorm:"uniqueIndex:idx_sync_symbol_type;size:20" json:"symbol"`
	DataType     string     `gorm:"uniqueIndex:idx_sync_symbol_type;size:50" json:"data_type"`
	LastSyncedAt *time.Time `json:"last_synced_at"`
	LastStatus   string     `gorm:"size:20" json:"last_status"`
	ErrorMessage string     `json:"error_message"`
	RetryCount   int        `json:"retry_count"`
	NextRetryAt  *time.Time `json:"next_retry_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// SyncJobLog records one job run. Created at job start, finalized
// exactly once at job end.
type SyncJobLog struct {
	ID             uint       `gorm:"primaryKey" json:"id"`
	JobType        string     `gorm:"index;size:50" json:"job_type"`
	Status         string     `gorm:"size:20" json:"status"`
	ProcessedCount int        `json:"processed_count"`
	FailedCount    int        `json:"failed_count"`
	StartedAt      time.Time  `json:"started_at"`
	CompletedAt    *time.Time `json:"completed_at"`
	ErrorMessage   string     `json:"error_message"`
}

// MigrateSyncModels runs database migrations for sync bookkeeping models
func MigrateSyncModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&SyncLock{},
		&SyncCheckpoint{},
		&SyncStatus{},
		&SyncJobLog{},
	)
}
