package syncstate

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"screener_backend/models"
)

// CheckpointStore persists one resume cursor per job type. It exists
// only so interrupted jobs can resume; progress reporting goes through
// the job log instead.
type CheckpointStore struct {
	db *gorm.DB
}

// NewCheckpointStore creates a checkpoint store
func NewCheckpointStore(db *gorm.DB) *CheckpointStore {
	return &CheckpointStore{db: db}
}

// Save upserts the checkpoint for a job type
func (s *CheckpointStore) Save(jobType, lastKey string, processed, total int) error {
	cp := models.SyncCheckpoint{
		JobType:        jobType,
		LastKey:        lastKey,
		ProcessedCount: processed,
		TotalCount:     total,
		UpdatedAt:      time.Now(),
	}
	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_type"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_key", "processed_count", "total_count", "updated_at"}),
	}).Create(&cp).Error
	if err != nil {
		return fmt.Errorf("save checkpoint %s: %w", jobType, err)
	}
	return nil
}

// Load returns the checkpoint for a job type, or nil if none exists
func (s *CheckpointStore) Load(jobType string) (*models.SyncCheckpoint, error) {
	var cp models.SyncCheckpoint
	err := s.db.Where("job_type = ?", jobType).First(&cp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load checkpoint %s: %w", jobType, err)
	}
	return &cp, nil
}

// Clear removes the checkpoint for a job type. Clearing a missing
// checkpoint is not an error.
func (s *CheckpointStore) Clear(jobType string) error {
	err := s.db.Where("job_type = ?", jobType).Delete(&models.SyncCheckpoint{}).Error
	if err != nil {
		return fmt.Errorf("clear checkpoint %s: %w", jobType, err)
	}
	return nil
}

// ResumeAfter slices work so it restarts just after lastKey in the
// original ordering. If lastKey is absent the full list is returned.
func ResumeAfter(symbols []string, lastKey string) []string {
	if lastKey == "" {
		return symbols
	}
	for i, s := range symbols {
		if s == lastKey {
			return symbols[i+1:]
		}
	}
	return symbols
}
