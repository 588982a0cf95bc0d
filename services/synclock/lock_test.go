package synclock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"screener_backend/models"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	require.NoError(t, models.MigrateSyncModels(db))
	return db
}

func TestAcquireMutualExclusion(t *testing.T) {
	db := testDB(t)
	a := NewManager(db, "instance-a")
	b := NewManager(db, "instance-b")

	okA, err := a.Acquire("sync:daily", time.Minute)
	require.NoError(t, err)
	assert.True(t, okA)

	okB, err := b.Acquire("sync:daily", time.Minute)
	require.NoError(t, err)
	assert.False(t, okB, "live lock must not be stolen")

	// re-acquire by the current holder succeeds
	okA, err = a.Acquire("sync:daily", time.Minute)
	require.NoError(t, err)
	assert.True(t, okA)
}

func TestAcquireStealsExpiredLock(t *testing.T) {
	db := testDB(t)
	a := NewManager(db, "instance-a")
	b := NewManager(db, "instance-b")

	okA, err := a.Acquire("sync:daily", -time.Second)
	require.NoError(t, err)
	assert.True(t, okA)

	okB, err := b.Acquire("sync:daily", time.Minute)
	require.NoError(t, err)
	assert.True(t, okB, "expired lock is reclaimable")

	var lock models.SyncLock
	require.NoError(t, db.First(&lock, "name = ?", "sync:daily").Error)
	assert.Equal(t, "instance-b", lock.HolderID)
}

func TestReleaseOnlyByHolder(t *testing.T) {
	db := testDB(t)
	a := NewManager(db, "instance-a")
	b := NewManager(db, "instance-b")

	_, err := a.Acquire("sync:news", time.Minute)
	require.NoError(t, err)

	// a foreign release is a no-op
	require.NoError(t, b.Release("sync:news"))
	ok, err := b.Acquire("sync:news", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, a.Release("sync:news"))
	ok, err = b.Acquire("sync:news", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestExtendRequiresLiveOwnership(t *testing.T) {
	db := testDB(t)
	a := NewManager(db, "instance-a")
	b := NewManager(db, "instance-b")

	_, err := a.Acquire("sync:financials", time.Minute)
	require.NoError(t, err)

	extended, err := a.Extend("sync:financials", time.Hour)
	require.NoError(t, err)
	assert.True(t, extended)

	var lock models.SyncLock
	require.NoError(t, db.First(&lock, "name = ?", "sync:financials").Error)
	assert.True(t, lock.ExpiresAt.After(time.Now().Add(30*time.Minute)))

	extended, err = b.Extend("sync:financials", time.Hour)
	require.NoError(t, err)
	assert.False(t, extended, "non-holder must not extend")

	// an expired lock cannot be extended, only re-acquired
	require.NoError(t, a.Release("sync:financials"))
	_, err = a.Acquire("sync:financials", -time.Second)
	require.NoError(t, err)
	extended, err = a.Extend("sync:financials", time.Hour)
	require.NoError(t, err)
	assert.False(t, extended)
}
