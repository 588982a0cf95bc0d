package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm/clause"

	"screener_backend/models"
	"screener_backend/services/marketdata"
)

const week52Window = 365 * 24 * time.Hour

// prepareSnapshot pulls the bulk market snapshot once and hands each
// symbol its slice of it. The work set is the snapshot universe in
// sorted order so checkpoints stay stable across runs.
func (o *Orchestrator) prepareSnapshot(ctx context.Context, _ []string) (worker, []string, error) {
	tickers, err := o.source.FullSnapshot(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("snapshot fetch: %w", err)
	}

	bySymbol := make(map[string]*marketdata.SnapshotTicker, len(tickers))
	symbols := make([]string, 0, len(tickers))
	for i := range tickers {
		if tickers[i].Ticker == "" {
			continue
		}
		bySymbol[tickers[i].Ticker] = &tickers[i]
		symbols = append(symbols, tickers[i].Ticker)
	}
	sort.Strings(symbols)

	process := func(_ context.Context, symbol string) error {
		t, ok := bySymbol[symbol]
		if !ok {
			return fmt.Errorf("symbol %s missing from snapshot", symbol)
		}
		return o.applyQuote(t)
	}
	return process, symbols, nil
}

func (o *Orchestrator) applyQuote(t *marketdata.SnapshotTicker) error {
	price := t.Day.Close
	volume := t.Day.Volume
	if price == 0 {
		price = t.PrevDay.Close
		volume = t.PrevDay.Volume
	}
	return o.upsertSnapshot(
		&models.ScreenerSnapshot{
			Symbol:        t.Ticker,
			Price:         price,
			Change:        t.TodaysChange,
			ChangePercent: t.TodaysChangePerc,
			Volume:        volume,
		},
		map[string]interface{}{
			"price":          price,
			"change":         t.TodaysChange,
			"change_percent": t.TodaysChangePerc,
			"volume":         volume,
		},
	)
}

// syncDaily persists the previous trading day's bar, refreshes the
// symbol's indicators and recomputes the rolling 52-week extremes and
// average volume from stored bars.
func (o *Orchestrator) syncDaily(ctx context.Context, symbol string) error {
	bar, err := o.source.PrevDay(ctx, symbol)
	if err != nil {
		return fmt.Errorf("prev day bar: %w", err)
	}
	if err := o.upsertDailyBar(symbol, bar); err != nil {
		return err
	}

	set, err := o.source.IndicatorSet(ctx, symbol)
	if err != nil {
		return fmt.Errorf("indicators: %w", err)
	}

	var agg struct {
		High float64
		Low  float64
	}
	if err := o.db.Model(&models.DailyBar{}).
		Select("MAX(high) AS high, MIN(low) AS low").
		Where("symbol = ? AND date >= ?", symbol, time.Now().Add(-week52Window)).
		Scan(&agg).Error; err != nil {
		return fmt.Errorf("52-week aggregate: %w", err)
	}
	var avgVolume float64
	if err := o.db.Model(&models.DailyBar{}).
		Select("COALESCE(AVG(volume), 0)").
		Where("symbol = ? AND date >= ?", symbol, time.Now().Add(-45*24*time.Hour)).
		Scan(&avgVolume).Error; err != nil {
		return fmt.Errorf("average volume: %w", err)
	}

	now := time.Now()
	return o.upsertSnapshot(
		&models.ScreenerSnapshot{
			Symbol:       symbol,
			Price:        bar.Close,
			Volume:       bar.Volume,
			Sma50:        set.Sma50,
			Sma200:       set.Sma200,
			Ema12:        set.Ema12,
			Ema26:        set.Ema26,
			Rsi14:        set.Rsi14,
			MacdHist:     set.MacdHist,
			Week52High:   agg.High,
			Week52Low:    agg.Low,
			AvgVolume:    avgVolume,
			IndicatorsAt: &now,
		},
		map[string]interface{}{
			"sma50":         set.Sma50,
			"sma200":        set.Sma200,
			"ema12":         set.Ema12,
			"ema26":         set.Ema26,
			"rsi14":         set.Rsi14,
			"macd_hist":     set.MacdHist,
			"week52_high":   agg.High,
			"week52_low":    agg.Low,
			"avg_volume":    avgVolume,
			"indicators_at": now,
		},
	)
}

func (o *Orchestrator) upsertDailyBar(symbol string, bar *marketdata.DayBar) error {
	date := time.UnixMilli(bar.Timestamp).UTC().Truncate(24 * time.Hour)
	if bar.Timestamp == 0 {
		date = time.Now().UTC().Truncate(24 * time.Hour).Add(-24 * time.Hour)
	}

	row := models.DailyBar{
		Symbol: symbol,
		Date:   date,
		Open:   decimal.NewFromFloat(bar.Open),
		High:   decimal.NewFromFloat(bar.High),
		Low:    decimal.NewFromFloat(bar.Low),
		Close:  decimal.NewFromFloat(bar.Close),
		Volume: int64(bar.Volume),
		VWAP:   decimal.NewFromFloat(bar.VWAP),
	}

	var prev models.DailyBar
	err := o.db.Where("symbol = ? AND date < ?", symbol, date).
		Order("date DESC").First(&prev).Error
	if err == nil && !prev.Close.IsZero() {
		row.Change = row.Close.Sub(prev.Close)
		row.ChangePercent = row.Change.Div(prev.Close).Mul(decimal.NewFromInt(100)).Round(4)
	}

	return o.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "symbol"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open", "high", "low", "close", "volume", "vwap", "change", "change_percent",
		}),
	}).Create(&row).Error
}

// syncFinancials persists annual filings and recomputes the derived
// growth fields from what was just stored. No extra upstream calls
// happen after the fetch.
func (o *Orchestrator) syncFinancials(ctx context.Context, symbol string) error {
	records, err := o.source.Financials(ctx, symbol, "annual")
	if err != nil {
		return fmt.Errorf("financials: %w", err)
	}

	for i := range records {
		if err := o.upsertFinancial(symbol, &records[i]); err != nil {
			return err
		}
	}

	var reports []models.FinancialReport
	if err := o.db.Where("symbol = ? AND timeframe = ?", symbol, "annual").
		Order("fiscal_year DESC").Limit(2).Find(&reports).Error; err != nil {
		return fmt.Errorf("load reports: %w", err)
	}

	values := map[string]interface{}{}
	snap := models.ScreenerSnapshot{Symbol: symbol}
	if len(reports) > 0 {
		snap.EPS = reports[0].EPS.InexactFloat64()
		values["eps"] = snap.EPS
	}
	if growth, ok := YoYGrowth(reports); ok {
		snap.RevenueGrowth = growth.Revenue
		snap.EarningsGrowth = growth.Earnings
		values["revenue_growth"] = growth.Revenue
		values["earnings_growth"] = growth.Earnings
	}
	if len(values) == 0 {
		return nil
	}
	return o.upsertSnapshot(&snap, values)
}

func (o *Orchestrator) upsertFinancial(symbol string, rec *marketdata.FinancialRecord) error {
	income := rec.Financials.IncomeStatement
	report := models.FinancialReport{
		Symbol:       symbol,
		Timeframe:    rec.Timeframe,
		FiscalYear:   rec.FiscalYear,
		FiscalPeriod: rec.FiscalPeriod,
		FilingDate:   parseDate(rec.FilingDate),
		Revenue:      decimal.NewFromFloat(income.Revenues.Value),
		NetIncome:    decimal.NewFromFloat(income.NetIncomeLoss.Value),
		EPS:          decimal.NewFromFloat(income.BasicEarningsPerShare.Value),
	}
	return o.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "symbol"}, {Name: "timeframe"}, {Name: "fiscal_year"}, {Name: "fiscal_period"},
		},
		DoUpdates: clause.AssignmentColumns([]string{"filing_date", "revenue", "net_income", "eps"}),
	}).Create(&report).Error
}

// syncRatios refreshes analyst targets and the valuation ratios that
// derive from already-stored price and earnings data
func (o *Orchestrator) syncRatios(ctx context.Context, symbol string) error {
	targets, err := o.source.Targets(ctx, symbol)
	if err != nil {
		return fmt.Errorf("analyst targets: %w", err)
	}

	var snap models.ScreenerSnapshot
	if err := o.db.Where("symbol = ?", symbol).First(&snap).Error; err != nil {
		snap = models.ScreenerSnapshot{Symbol: symbol}
	}

	values := map[string]interface{}{
		"target_mean_price": targets.TargetMeanPrice,
	}
	snap.TargetMeanPrice = targets.TargetMeanPrice
	if snap.Price > 0 && snap.EPS > 0 {
		snap.PE = snap.Price / snap.EPS
		values["pe"] = snap.PE
	}
	return o.upsertSnapshot(&snap, values)
}

func (o *Orchestrator) syncDividends(ctx context.Context, symbol string) error {
	records, err := o.source.Dividends(ctx, symbol)
	if err != nil {
		return fmt.Errorf("dividends: %w", err)
	}
	for i := range records {
		row := models.Dividend{
			Symbol:     symbol,
			ExDate:     parseDate(records[i].ExDividendDate),
			CashAmount: decimal.NewFromFloat(records[i].CashAmount),
			Frequency:  records[i].Frequency,
		}
		if pay := parseDate(records[i].PayDate); !pay.IsZero() {
			row.PayDate = &pay
		}
		err := o.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "ex_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"pay_date", "cash_amount", "frequency"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) syncSplits(ctx context.Context, symbol string) error {
	records, err := o.source.Splits(ctx, symbol)
	if err != nil {
		return fmt.Errorf("splits: %w", err)
	}
	for i := range records {
		row := models.Split{
			Symbol:    symbol,
			ExDate:    parseDate(records[i].ExecutionDate),
			SplitFrom: records[i].SplitFrom,
			SplitTo:   records[i].SplitTo,
		}
		err := o.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "symbol"}, {Name: "ex_date"}},
			DoUpdates: clause.AssignmentColumns([]string{"split_from", "split_to"}),
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) syncNews(ctx context.Context, symbol string) error {
	records, err := o.source.TickerNews(ctx, symbol, newsPerSymbol)
	if err != nil {
		return fmt.Errorf("news: %w", err)
	}
	for i := range records {
		published, _ := time.Parse(time.RFC3339, records[i].PublishedUTC)
		row := models.NewsArticle{
			ExternalID:  records[i].ID,
			Symbol:      symbol,
			Title:       records[i].Title,
			Publisher:   records[i].Publisher.Name,
			URL:         records[i].ArticleURL,
			PublishedAt: published,
		}
		err := o.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_id"}},
			DoNothing: true,
		}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}

// prepareDetails refreshes the reference-ticker universe first, then
// fetches company details per stale symbol
func (o *Orchestrator) prepareDetails(ctx context.Context, explicit []string) (worker, []string, error) {
	if len(explicit) == 0 {
		refs, err := o.source.ListTickers(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("ticker universe: %w", err)
		}
		for i := range refs {
			row := models.Ticker{
				Symbol:   refs[i].Ticker,
				Name:     refs[i].Name,
				Market:   refs[i].Market,
				Exchange: refs[i].PrimaryExchange,
				Active:   refs[i].Active,
			}
			err := o.db.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "symbol"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "market", "exchange", "active"}),
			}).Create(&row).Error
			if err != nil {
				return nil, nil, fmt.Errorf("ticker upsert: %w", err)
			}
		}
	}
	return o.syncDetails, nil, nil
}

func (o *Orchestrator) syncDetails(ctx context.Context, symbol string) error {
	details, err := o.source.Details(ctx, symbol)
	if err != nil {
		return fmt.Errorf("details: %w", err)
	}

	updates := map[string]interface{}{
		"name":               details.Name,
		"market_cap":         decimal.NewFromFloat(details.MarketCap),
		"shares_outstanding": int64(details.SharesOutstanding),
		"industry":           details.SICDescription,
		"active":             details.Active,
	}
	if listed := parseDate(details.ListDate); !listed.IsZero() {
		updates["listing_date"] = listed
	}
	res := o.db.Model(&models.Ticker{}).Where("symbol = ?", symbol).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		row := models.Ticker{
			Symbol:            symbol,
			Name:              details.Name,
			Market:            details.Market,
			Exchange:          details.PrimaryExchange,
			Industry:          details.SICDescription,
			MarketCap:         decimal.NewFromFloat(details.MarketCap),
			SharesOutstanding: int64(details.SharesOutstanding),
			Active:            details.Active,
		}
		if err := o.db.Create(&row).Error; err != nil {
			return err
		}
	}

	if details.MarketCap > 0 {
		return o.upsertSnapshot(
			&models.ScreenerSnapshot{Symbol: symbol, MarketCap: details.MarketCap},
			map[string]interface{}{"market_cap": details.MarketCap},
		)
	}
	return nil
}

// refreshSymbol re-syncs everything for one symbol. Each stage runs
// regardless of the others failing; the first upstream abort still
// wins so circuit-open propagates.
func (o *Orchestrator) refreshSymbol(ctx context.Context, symbol string) error {
	stages := []func(context.Context, string) error{
		o.syncDetails,
		o.syncDaily,
		o.syncFinancials,
		o.syncRatios,
	}
	var errs []error
	for _, stage := range stages {
		if err := stage(ctx, symbol); err != nil {
			if errors.Is(err, marketdata.ErrCircuitOpen) {
				return err
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// perSymbol adapts a plain per-symbol worker into the prepare shape
func (o *Orchestrator) perSymbol(fn worker) func(context.Context, []string) (worker, []string, error) {
	return func(context.Context, []string) (worker, []string, error) {
		return fn, nil, nil
	}
}

func (o *Orchestrator) upsertSnapshot(snap *models.ScreenerSnapshot, columns map[string]interface{}) error {
	columns["updated_at"] = time.Now()
	return o.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.Assignments(columns),
	}).Create(snap).Error
}

func parseDate(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}
