package screener

import (
	"context"
	"crypto/sha1"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"screener_backend/models"
	"screener_backend/services/cache"
	"screener_backend/services/marketdata"
)

const (
	DefaultPageSize = 50
	MaxPageSize     = 100

	resultCacheTTL    = 60 * time.Second
	indicatorCacheTTL = time.Hour

	// on-demand path bounds
	defaultMaxCandidates = 50
	enrichBatchSize      = 10
)

// LiveSource is the slice of the market-data client the on-demand
// path needs
type LiveSource interface {
	FullSnapshot(ctx context.Context) ([]marketdata.SnapshotTicker, error)
	IndicatorSet(ctx context.Context, symbol string) (*marketdata.IndicatorSet, error)
}

// Filter is a saved or ad-hoc screen definition
type Filter struct {
	ID         string            `json:"id,omitempty"`
	Name       string            `json:"name,omitempty"`
	Preset     string            `json:"preset,omitempty"`
	Conditions []FilterCondition `json:"conditions,omitempty"`
	SortField  string            `json:"sort_field,omitempty"`
	SortOrder  string            `json:"sort_order,omitempty"`
}

// Validate rejects malformed filters before evaluation
func (f *Filter) Validate() error {
	if f.Preset != "" {
		if _, ok := GetPreset(f.Preset); !ok {
			return fmt.Errorf("unknown preset: %s", f.Preset)
		}
	}
	if f.Preset == "" && len(f.Conditions) == 0 {
		return fmt.Errorf("filter needs a preset or at least one condition")
	}
	for i := range f.Conditions {
		if err := f.Conditions[i].Validate(); err != nil {
			return err
		}
	}
	if f.SortField != "" {
		if _, ok := fieldSpecs[f.SortField]; !ok {
			return fmt.Errorf("unknown sort field: %s", f.SortField)
		}
	}
	switch strings.ToLower(f.SortOrder) {
	case "", "asc", "desc":
	default:
		return fmt.Errorf("sort order must be asc or desc")
	}
	return nil
}

// Result is one evaluated page
type Result struct {
	Rows      []Row     `json:"rows"`
	Total     int       `json:"total"`
	Page      int       `json:"page"`
	PageSize  int       `json:"page_size"`
	Source    string    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
}

// Engine evaluates filters against the snapshot table when it is
// healthy and populated, and against live upstream data otherwise.
type Engine struct {
	db            *gorm.DB
	live          LiveSource
	cache         cache.Cache
	health        *storeHealth
	maxCandidates int
}

func NewEngine(db *gorm.DB, live LiveSource, c cache.Cache) *Engine {
	if c == nil {
		c = cache.NewMemory(0)
	}
	return &Engine{
		db:            db,
		live:          live,
		cache:         c,
		health:        newStoreHealth(30 * time.Second),
		maxCandidates: defaultMaxCandidates,
	}
}

// Evaluate runs a filter and returns one page of matches. Results are
// cached briefly so repeated identical queries do not re-hit the store
// or the upstream.
func (e *Engine) Evaluate(ctx context.Context, filter *Filter, page, pageSize int) (*Result, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	key := resultCacheKey(filter, page, pageSize)
	if data, ok := e.cache.Get(ctx, key); ok {
		var cached Result
		if err := json.Unmarshal([]byte(data), &cached); err == nil {
			return &cached, nil
		}
	}

	result, err := e.evaluate(ctx, filter, page, pageSize)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(result); err == nil {
		e.cache.SetEx(ctx, key, resultCacheTTL, string(data))
	}
	return result, nil
}

func (e *Engine) evaluate(ctx context.Context, filter *Filter, page, pageSize int) (*Result, error) {
	if e.health.Usable() {
		result, err := e.evaluateStore(filter, page, pageSize)
		if err != nil {
			e.health.MarkDown(err)
		} else {
			e.health.MarkUp()
			if result.Total == 0 && e.needsLiveFallback(filter) {
				return e.evaluateLive(ctx, filter, page, pageSize)
			}
			return result, nil
		}
	}
	return e.evaluateLive(ctx, filter, page, pageSize)
}

// needsLiveFallback reports whether an empty precomputed result should
// be retried against live data. That happens when the filter depends
// on indicators and no snapshot row has them populated yet, which is
// the state between the first daily sync and the first indicator sync.
func (e *Engine) needsLiveFallback(filter *Filter) bool {
	dependent := false
	if filter.Preset != "" {
		p, _ := GetPreset(filter.Preset)
		dependent = p.IndicatorDependent
	}
	for i := range filter.Conditions {
		if spec, ok := fieldSpecs[filter.Conditions[i].Field]; ok &&
			strings.Contains(spec.guard, "indicators_at") {
			dependent = true
		}
	}
	if !dependent {
		return false
	}

	var populated int64
	if err := e.db.Model(&models.ScreenerSnapshot{}).
		Where("indicators_at IS NOT NULL").Count(&populated).Error; err != nil {
		return true
	}
	return populated == 0
}

func (e *Engine) evaluateStore(filter *Filter, page, pageSize int) (*Result, error) {
	query := e.db.Model(&models.ScreenerSnapshot{})

	var preset *Preset
	if filter.Preset != "" {
		preset, _ = GetPreset(filter.Preset)
		for _, expr := range preset.where {
			query = query.Where(expr)
		}
	}
	for i := range filter.Conditions {
		expr, args := filter.Conditions[i].sqlClause()
		query = query.Where(expr, args...)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count screener matches: %w", err)
	}

	order := e.orderSQL(filter, preset)
	var snaps []models.ScreenerSnapshot
	if err := query.Order(order).Order("symbol ASC").
		Offset((page - 1) * pageSize).Limit(pageSize).
		Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("failed to query screener snapshots: %w", err)
	}

	rows := make([]Row, 0, len(snaps))
	for i := range snaps {
		rows = append(rows, rowFromSnapshot(&snaps[i]))
	}
	return &Result{
		Rows:      rows,
		Total:     int(total),
		Page:      page,
		PageSize:  pageSize,
		Source:    "precomputed",
		Timestamp: time.Now(),
	}, nil
}

func (e *Engine) orderSQL(filter *Filter, preset *Preset) string {
	if filter.SortField == "" && preset != nil && preset.sortSQL != "" {
		return preset.sortSQL
	}
	field := filter.SortField
	if field == "" {
		field = "volume"
	}
	dir := "DESC"
	if strings.ToLower(filter.SortOrder) == "asc" {
		dir = "ASC"
	}
	return fieldSpecs[field].column + " " + dir
}

// sortRows orders in-memory rows the same way orderSQL orders the
// store path, with symbol as the deterministic tie-break
func sortRows(rows []Row, filter *Filter, preset *Preset) {
	var less func(a, b Row) bool
	if filter.SortField == "" && preset != nil && preset.sortLess != nil {
		less = preset.sortLess
	} else {
		field := filter.SortField
		if field == "" {
			field = "volume"
		}
		asc := strings.ToLower(filter.SortOrder) == "asc"
		less = func(a, b Row) bool {
			av, aok := a.Field(field)
			bv, bok := b.Field(field)
			if aok != bok {
				return aok
			}
			if asc {
				return av < bv
			}
			return av > bv
		}
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if less(rows[i], rows[j]) {
			return true
		}
		if less(rows[j], rows[i]) {
			return false
		}
		return rows[i].Symbol < rows[j].Symbol
	})
}

func resultCacheKey(filter *Filter, page, pageSize int) string {
	payload, _ := json.Marshal(struct {
		*Filter
		Page     int `json:"page"`
		PageSize int `json:"page_size"`
	}{filter, page, pageSize})
	return fmt.Sprintf("screener:result:%x", sha1.Sum(payload))
}

// InvalidateResults drops cached screener pages after a sync rewrites
// the snapshot table
func (e *Engine) InvalidateResults(ctx context.Context) {
	keys := e.cache.Keys(ctx, "screener:result:*")
	if len(keys) == 0 {
		return
	}
	e.cache.Del(ctx, keys...)
	log.Printf("Invalidated %d cached screener results", len(keys))
}
