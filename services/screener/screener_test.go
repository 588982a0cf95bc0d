package screener

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"screener_backend/models"
	"screener_backend/services/cache"
	"screener_backend/services/marketdata"
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
	return db
}

func snapFixture(symbol string, price, sma50, sma200, volume float64) *models.ScreenerSnapshot {
	snap := &models.ScreenerSnapshot{
		Symbol: symbol,
		Price:  price,
		Volume: volume,
		Sma50:  sma50,
		Sma200: sma200,
	}
	if sma50 > 0 || sma200 > 0 {
		now := time.Now()
		snap.IndicatorsAt = &now
	}
	return snap
}

// fakeLive is a scripted LiveSource
type fakeLive struct {
	mu            sync.Mutex
	snapshots     []marketdata.SnapshotTicker
	sets          map[string]*marketdata.IndicatorSet
	snapshotCalls int
	setCalls      int
	setErr        error
}

func (f *fakeLive) FullSnapshot(context.Context) ([]marketdata.SnapshotTicker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.snapshotCalls++
	return f.snapshots, nil
}

func (f *fakeLive) IndicatorSet(_ context.Context, symbol string) (*marketdata.IndicatorSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setCalls++
	if set, ok := f.sets[symbol]; ok {
		return set, nil
	}
	if f.setErr != nil {
		return nil, f.setErr
	}
	return &marketdata.IndicatorSet{}, nil
}

func liveTicker(symbol string, price, volume float64) marketdata.SnapshotTicker {
	return marketdata.SnapshotTicker{
		Ticker: symbol,
		Day:    marketdata.DayBar{Close: price, Volume: volume},
	}
}

func TestEvaluateStorePath(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(snapFixture("GOLD", 105, 100, 90, 1000)).Error)
	require.NoError(t, db.Create(snapFixture("FLAT", 95, 100, 90, 2000)).Error)
	require.NoError(t, db.Create(snapFixture("NOIND", 50, 0, 0, 3000)).Error)

	live := &fakeLive{}
	engine := NewEngine(db, live, cache.NewMemory(16))

	result, err := engine.Evaluate(context.Background(), &Filter{Preset: "goldenCross"}, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, "precomputed", result.Source)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "GOLD", result.Rows[0].Symbol)
	assert.Equal(t, 1, result.Total)
	assert.Zero(t, live.snapshotCalls, "populated store must not hit the upstream")
}

func TestEvaluateConditionsAgainstStore(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Create(snapFixture("A", 15, 0, 0, 100)).Error)
	require.NoError(t, db.Create(snapFixture("B", 25, 0, 0, 200)).Error)
	require.NoError(t, db.Create(snapFixture("C", 10, 0, 0, 300)).Error)

	engine := NewEngine(db, &fakeLive{}, cache.NewMemory(16))
	filter := &Filter{Conditions: []FilterCondition{
		{Field: "price", Operator: OpBetween, Range: []float64{10, 20}},
	}}

	result, err := engine.Evaluate(context.Background(), filter, 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)

	// default sort is volume descending
	assert.Equal(t, "C", result.Rows[0].Symbol)
	assert.Equal(t, "A", result.Rows[1].Symbol)
}

func TestOnDemandFallbackForIndicatorPreset(t *testing.T) {
	db := testDB(t) // empty snapshot table

	live := &fakeLive{
		snapshots: []marketdata.SnapshotTicker{
			liveTicker("AAA", 105, 500),
			liveTicker("BBB", 210, 400),
			liveTicker("CCC", 95, 300),
			liveTicker("DDD", 50, 200),
			liveTicker("EEE", 75, 100),
		},
		sets: map[string]*marketdata.IndicatorSet{
			"AAA": {Sma50: 100, Sma200: 90},  // golden cross
			"BBB": {Sma50: 200, Sma200: 150}, // golden cross
			"CCC": {Sma50: 100, Sma200: 90},  // price below sma50
			"DDD": {Sma50: 60, Sma200: 40},
			"EEE": {}, // no indicator data
		},
	}
	engine := NewEngine(db, live, cache.NewMemory(16))

	result, err := engine.Evaluate(context.Background(), &Filter{Preset: "goldenCross"}, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, "live", result.Source)
	require.Len(t, result.Rows, 2)
	symbols := []string{result.Rows[0].Symbol, result.Rows[1].Symbol}
	assert.ElementsMatch(t, []string{"AAA", "BBB"}, symbols)
	assert.Equal(t, 1, live.snapshotCalls)
}

func TestOnDemandCandidateKeptWithoutIndicators(t *testing.T) {
	db := testDB(t)

	live := &fakeLive{
		snapshots: []marketdata.SnapshotTicker{
			liveTicker("AAA", 105, 500),
			liveTicker("ERR", 50, 400),
		},
		sets: map[string]*marketdata.IndicatorSet{
			"AAA": {Sma50: 100, Sma200: 90},
		},
		setErr: assert.AnError,
	}
	engine := NewEngine(db, live, cache.NewMemory(16))

	// preset query: the failed candidate cannot match indicator logic
	result, err := engine.Evaluate(context.Background(), &Filter{Preset: "goldenCross"}, 1, 10)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "AAA", result.Rows[0].Symbol)

	// the failed candidate keeps its price fields rather than being dropped
	rows := []Row{
		{Symbol: "AAA", Fields: map[string]float64{"price": 105, "volume": 500}},
		{Symbol: "ERR", Fields: map[string]float64{"price": 50, "volume": 400}},
	}
	engine.enrichIndicators(context.Background(), rows)

	_, ok := rows[0].Field("sma50")
	assert.True(t, ok)
	_, ok = rows[1].Field("sma50")
	assert.False(t, ok)
	price, ok := rows[1].Field("price")
	assert.True(t, ok)
	assert.Equal(t, 50.0, price)
}

func TestStoreFailureSwitchesToOnDemand(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.Migrator().DropTable(&models.ScreenerSnapshot{}))

	live := &fakeLive{
		snapshots: []marketdata.SnapshotTicker{liveTicker("AAA", 50, 100)},
	}
	engine := NewEngine(db, live, cache.NewMemory(16))

	filter := &Filter{Conditions: []FilterCondition{{Field: "price", Operator: OpGt, Value: 10}}}
	result, err := engine.Evaluate(context.Background(), filter, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "live", result.Source)
	require.Len(t, result.Rows, 1)

	// while marked down, subsequent queries stay on the live path
	result, err = engine.Evaluate(context.Background(), &Filter{Conditions: []FilterCondition{
		{Field: "price", Operator: OpGt, Value: 20},
	}}, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, "live", result.Source)
}

func TestEvaluateCachesResults(t *testing.T) {
	db := testDB(t)

	live := &fakeLive{
		snapshots: []marketdata.SnapshotTicker{liveTicker("AAA", 50, 100)},
	}
	engine := NewEngine(db, live, cache.NewMemory(16))

	filter := &Filter{Conditions: []FilterCondition{{Field: "price", Operator: OpGt, Value: 10}}}
	_, err := engine.Evaluate(context.Background(), filter, 1, 10)
	require.NoError(t, err)
	_, err = engine.Evaluate(context.Background(), filter, 1, 10)
	require.NoError(t, err)

	assert.Equal(t, 1, live.snapshotCalls, "identical query within the TTL must come from cache")
}

func TestStoreHealthReprobe(t *testing.T) {
	h := newStoreHealth(20 * time.Millisecond)
	assert.True(t, h.Usable())

	h.MarkDown(assert.AnError)
	assert.False(t, h.Usable())

	time.Sleep(30 * time.Millisecond)
	assert.True(t, h.Usable(), "one probe allowed per interval")
	assert.False(t, h.Usable(), "second call inside the interval stays on-demand")

	h.MarkUp()
	assert.True(t, h.Usable())
}
