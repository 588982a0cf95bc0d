package synclock

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"screener_backend/models"
)

// Manager leases named locks backed by the shared database so only one
// running instance executes a given job type at a time. Acquisition is
// a single conditional insert-or-update; correctness depends on that
// statement being atomic, so there is no write-then-read verification.
type Manager struct {
	db       *gorm.DB
	holderID string
}

// NewManager creates a lock manager bound to a holder identity
func NewManager(db *gorm.DB, holderID string) *Manager {
	return &Manager{db: db, holderID: holderID}
}

// HolderID returns this manager's holder identity
func (m *Manager) HolderID() string {
	return m.holderID
}

// Acquire attempts to create or steal the named lock. It succeeds when
// no row exists, the row is already held by this holder, or the row
// has expired. Returns false when another holder owns a live lock.
func (m *Manager) Acquire(name string, ttl time.Duration) (bool, error) {
	now := time.Now()
	lock := models.SyncLock{
		Name:       name,
		HolderID:   m.holderID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
	}

	// INSERT ... ON CONFLICT (name) DO UPDATE ... WHERE the existing
	// row is ours or expired. RowsAffected is zero when the guard
	// rejects the update, i.e. a live lock is held by someone else.
	res := m.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "name"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"holder_id":   m.holderID,
			"acquired_at": now,
			"expires_at":  now.Add(ttl),
		}),
		Where: clause.Where{Exprs: []clause.Expression{
			clause.Or(
				clause.Eq{Column: clause.Column{Table: "sync_locks", Name: "holder_id"}, Value: m.holderID},
				clause.Lt{Column: clause.Column{Table: "sync_locks", Name: "expires_at"}, Value: now},
			),
		}},
	}).Create(&lock)

	if res.Error != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}

// Release deletes the lock row only if currently held by this holder
func (m *Manager) Release(name string) error {
	res := m.db.Where("name = ? AND holder_id = ?", name, m.holderID).
		Delete(&models.SyncLock{})
	if res.Error != nil {
		return fmt.Errorf("release lock %s: %w", name, res.Error)
	}
	if res.RowsAffected == 0 {
		log.Printf("Lock %s was not held by %s at release", name, m.holderID)
	}
	return nil
}

// Extend refreshes the expiry of a lock still held by this holder.
// Long jobs call this periodically to avoid expiry mid-run.
func (m *Manager) Extend(name string, ttl time.Duration) (bool, error) {
	now := time.Now()
	res := m.db.Model(&models.SyncLock{}).
		Where("name = ? AND holder_id = ? AND expires_at > ?", name, m.holderID, now).
		Update("expires_at", now.Add(ttl))
	if res.Error != nil {
		return false, fmt.Errorf("extend lock %s: %w", name, res.Error)
	}
	return res.RowsAffected > 0, nil
}
