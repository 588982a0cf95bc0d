package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"screener_backend/services/marketdata"
)

// evaluateLive answers a filter straight from the upstream when the
// snapshot table cannot. It pulls the full market snapshot, keeps the
// most liquid candidates, enriches only those with indicators, then
// filters, sorts and paginates in memory.
func (e *Engine) evaluateLive(ctx context.Context, filter *Filter, page, pageSize int) (*Result, error) {
	tickers, err := e.live.FullSnapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("on-demand snapshot failed: %w", err)
	}

	candidates := make([]Row, 0, len(tickers))
	for i := range tickers {
		if row, ok := rowFromLive(&tickers[i]); ok {
			candidates = append(candidates, row)
		}
	}

	// highest volume first, then cap the enrichment fan-out
	sort.Slice(candidates, func(i, j int) bool {
		vi := candidates[i].Fields["volume"]
		vj := candidates[j].Fields["volume"]
		if vi != vj {
			return vi > vj
		}
		return candidates[i].Symbol < candidates[j].Symbol
	})
	if len(candidates) > e.maxCandidates {
		candidates = candidates[:e.maxCandidates]
	}

	if liveNeedsIndicators(filter) {
		e.enrichIndicators(ctx, candidates)
	}

	var preset *Preset
	if filter.Preset != "" {
		preset, _ = GetPreset(filter.Preset)
	}

	matched := make([]Row, 0, len(candidates))
	for _, row := range candidates {
		if preset != nil && !preset.match(row) {
			continue
		}
		if !matchesConditions(row, filter.Conditions) {
			continue
		}
		matched = append(matched, row)
	}
	sortRows(matched, filter, preset)

	total := len(matched)
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Result{
		Rows:      matched[start:end],
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Source:    "live",
		Timestamp: time.Now(),
	}, nil
}

func rowFromLive(t *marketdata.SnapshotTicker) (Row, bool) {
	price := t.Day.Close
	volume := t.Day.Volume
	if price == 0 {
		price = t.PrevDay.Close
		volume = t.PrevDay.Volume
	}
	if t.Ticker == "" || price == 0 {
		return Row{}, false
	}
	return Row{
		Symbol: t.Ticker,
		Fields: map[string]float64{
			"price":          price,
			"change":         t.TodaysChange,
			"change_percent": t.TodaysChangePerc,
			"volume":         volume,
		},
	}, true
}

func liveNeedsIndicators(filter *Filter) bool {
	if filter.Preset != "" {
		if p, ok := GetPreset(filter.Preset); ok && p.IndicatorDependent {
			return true
		}
	}
	for i := range filter.Conditions {
		switch filter.Conditions[i].Field {
		case "sma50", "sma200", "ema12", "ema26", "rsi14", "macd_hist":
			return true
		}
	}
	return false
}

// enrichIndicators attaches indicator fields to each candidate row,
// serving from the indicator cache where possible and fetching the
// rest in bounded batches. A candidate whose fetch fails keeps its
// price fields and simply never matches indicator conditions.
func (e *Engine) enrichIndicators(ctx context.Context, rows []Row) {
	keys := make([]string, len(rows))
	for i := range rows {
		keys[i] = indicatorCacheKey(rows[i].Symbol)
	}

	pending := make([]int, 0, len(rows))
	for i, v := range e.cache.MGet(ctx, keys...) {
		if !v.OK {
			pending = append(pending, i)
			continue
		}
		var set marketdata.IndicatorSet
		if err := json.Unmarshal([]byte(v.Data), &set); err != nil {
			pending = append(pending, i)
			continue
		}
		attachIndicators(rows[i], &set)
	}

	for start := 0; start < len(pending); start += enrichBatchSize {
		end := start + enrichBatchSize
		if end > len(pending) {
			end = len(pending)
		}

		var wg sync.WaitGroup
		for _, idx := range pending[start:end] {
			wg.Add(1)
			go func(idx int) {
				defer wg.Done()
				set, err := e.live.IndicatorSet(ctx, rows[idx].Symbol)
				if err != nil {
					log.Printf("On-demand indicator fetch failed for %s: %v", rows[idx].Symbol, err)
					return
				}
				attachIndicators(rows[idx], set)
				if data, err := json.Marshal(set); err == nil {
					e.cache.SetEx(ctx, indicatorCacheKey(rows[idx].Symbol), indicatorCacheTTL, string(data))
				}
			}(idx)
		}
		wg.Wait()

		if ctx.Err() != nil {
			return
		}
	}
}

func attachIndicators(row Row, set *marketdata.IndicatorSet) {
	if set.Sma50 > 0 {
		row.Fields["sma50"] = set.Sma50
	}
	if set.Sma200 > 0 {
		row.Fields["sma200"] = set.Sma200
	}
	if set.Ema12 > 0 {
		row.Fields["ema12"] = set.Ema12
	}
	if set.Ema26 > 0 {
		row.Fields["ema26"] = set.Ema26
	}
	if set.Rsi14 > 0 {
		row.Fields["rsi14"] = set.Rsi14
	}
	row.Fields["macd_hist"] = set.MacdHist
}

func indicatorCacheKey(symbol string) string {
	return "screener:indicators:" + symbol
}
