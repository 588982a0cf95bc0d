package syncstate

import (
	"errors"
	"fmt"
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

	require.NoError(t, models.MigrateMarketModels(db))
	require.NoError(t, models.MigrateSyncModels(db))
	return db
}

func TestRecordOutcomeSuccessResetsRetryState(t *testing.T) {
	tracker := NewTracker(testDB(t))

	require.NoError(t, tracker.RecordOutcome("AAPL", DataTypeDaily, false, errors.New("boom")))
	require.NoError(t, tracker.ScheduleRetry("AAPL", DataTypeDaily))
	require.NoError(t, tracker.RecordOutcome("AAPL", DataTypeDaily, true, nil))

	status, err := tracker.Get("AAPL", DataTypeDaily)
	require.NoError(t, err)
	require.NotNil(t, status)
	assert.Equal(t, models.SyncStatusSuccess, status.LastStatus)
	assert.Zero(t, status.RetryCount)
	assert.Nil(t, status.NextRetryAt)
	assert.Empty(t, status.ErrorMessage)
	assert.NotNil(t, status.LastSyncedAt)
}

func TestScheduleRetryFollowsDelayTable(t *testing.T) {
	tracker := NewTracker(testDB(t))

	// after k consecutive failures the delay is RetryDelays[k]
	for k := 1; k < len(RetryDelays); k++ {
		require.NoError(t, tracker.RecordOutcome("TSLA", DataTypeFinancials, false, errors.New("upstream 500")))
		require.NoError(t, tracker.ScheduleRetry("TSLA", DataTypeFinancials))

		status, err := tracker.Get("TSLA", DataTypeFinancials)
		require.NoError(t, err)
		require.NotNil(t, status.NextRetryAt, "failure %d should schedule a retry", k)
		assert.InDelta(t, RetryDelays[k].Seconds(), time.Until(*status.NextRetryAt).Seconds(), 5,
			"after %d failures the delay should be RetryDelays[%d]", k, k)
	}

	// k reaches the table length: permanent give-up
	require.NoError(t, tracker.RecordOutcome("TSLA", DataTypeFinancials, false, errors.New("upstream 500")))
	require.NoError(t, tracker.ScheduleRetry("TSLA", DataTypeFinancials))

	status, err := tracker.Get("TSLA", DataTypeFinancials)
	require.NoError(t, err)
	assert.Nil(t, status.NextRetryAt)
	assert.Equal(t, len(RetryDelays), status.RetryCount)
}

func TestSelectStaleSymbols(t *testing.T) {
	db := testDB(t)
	tracker := NewTracker(db)

	for _, symbol := range []string{"AAPL", "MSFT", "NVDA", "DEAD"} {
		require.NoError(t, db.Create(&models.Ticker{Symbol: symbol, Active: symbol != "DEAD"}).Error)
	}
	// volume drives priority
	require.NoError(t, db.Create(&models.ScreenerSnapshot{Symbol: "MSFT", Volume: 100}).Error)
	require.NoError(t, db.Create(&models.ScreenerSnapshot{Symbol: "AAPL", Volume: 500}).Error)

	// NVDA synced recently, should be excluded
	require.NoError(t, tracker.RecordOutcome("NVDA", DataTypeDaily, true, nil))

	stale, err := tracker.SelectStaleSymbols(DataTypeDaily, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"AAPL", "MSFT"}, stale)
}

func TestSelectStaleSymbolsSkipsPendingRetriesAndGiveUps(t *testing.T) {
	db := testDB(t)
	tracker := NewTracker(db)

	for _, symbol := range []string{"WAIT", "GONE", "DUE"} {
		require.NoError(t, db.Create(&models.Ticker{Symbol: symbol, Active: true}).Error)
	}

	// WAIT has a retry scheduled in the future
	require.NoError(t, tracker.RecordOutcome("WAIT", DataTypeNews, false, errors.New("x")))
	require.NoError(t, tracker.ScheduleRetry("WAIT", DataTypeNews))

	// GONE exhausted the delay table
	for i := 0; i <= len(RetryDelays); i++ {
		require.NoError(t, tracker.RecordOutcome("GONE", DataTypeNews, false, fmt.Errorf("attempt %d", i)))
	}
	require.NoError(t, tracker.ScheduleRetry("GONE", DataTypeNews))

	// DUE failed once and its retry time has passed
	require.NoError(t, tracker.RecordOutcome("DUE", DataTypeNews, false, errors.New("x")))
	past := time.Now().Add(-time.Minute)
	require.NoError(t, db.Model(&models.SyncStatus{}).
		Where("symbol = ? AND data_type = ?", "DUE", DataTypeNews).
		Update("next_retry_at", past).Error)

	stale, err := tracker.SelectStaleSymbols(DataTypeNews, time.Hour, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"DUE"}, stale)
}
