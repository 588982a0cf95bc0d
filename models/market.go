package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Ticker represents a listed stock symbol
type Ticker struct {
	ID                uint            `gorm:"primaryKey" json:"id"`
	Symbol            string          `gorm:"uniqueIndex;not null" json:"symbol"`
	Name              string          `json:"name"`
	Exchange          string          `json:"exchange"`
	Market            string          `json:"market"` // stocks, otc
	Industry          string          `json:"industry"`
	MarketCap         decimal.Decimal `gorm:"type:decimal(20,2)" json:"market_cap"`
	SharesOutstanding int64           `json:"shares_outstanding"`
	ListingDate       *time.Time      `json:"listing_date"`
	Active            bool            `gorm:"index" json:"active"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// DailyBar represents one day of OHLCV data for a symbol
type DailyBar struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	Symbol        string          `gorm:"uniqueIndex:idx_bar_symbol_date" json:"symbol"`
	Date          time.Time       `gorm:"uniqueIndex:idx_bar_symbol_date" json:"date"`
	Open          decimal.Decimal `gorm:"type:decimal(15,4)" json:"open"`
	High          decimal.Decimal `gorm:"type:decimal(15,4)" json:"high"`
	Low           decimal.Decimal `gorm:"type:decimal(15,4)" json:"low"`
	Close         decimal.Decimal `gorm:"type:decimal(15,4)" json:"close"`
	Volume        int64           `json:"volume"`
	VWAP          decimal.Decimal `gorm:"type:decimal(15,4)" json:"vwap"`
	Change        decimal.Decimal `gorm:"type:decimal(15,4)" json:"change"`
	ChangePercent decimal.Decimal `gorm:"type:decimal(10,4)" json:"change_percent"`
	CreatedAt     time.Time       `json:"created_at"`
}

// ScreenerSnapshot is the denormalized row the screener queries.
// One row per symbol, refreshed by the sync jobs. Indicator columns
// use zero for "not yet computed"; IndicatorsAt marks the last
// successful indicator sync.
type ScreenerSnapshot struct {
	ID            uint    `gorm:"primaryKey" json:"id"`
	Symbol        string  `gorm:"uniqueIndex;not null" json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"change_percent"`
	Volume        float64 `gorm:"index" json:"volume"`
	AvgVolume     float64 `json:"avg_volume"`
	MarketCap     float64 `json:"market_cap"`

	// Technical indicators
	Sma50    float64 `json:"sma50"`
	Sma200   float64 `json:"sma200"`
	Ema12    float64 `json:"ema12"`
	Ema26    float64 `json:"ema26"`
	Rsi14    float64 `json:"rsi14"`
	MacdHist float64 `json:"macd_hist"`

	// 52-week extremes
	Week52High float64 `json:"week52_high"`
	Week52Low  float64 `json:"week52_low"`

	// Fundamentals
	PE              float64 `json:"pe"`
	EPS             float64 `json:"eps"`
	RevenueGrowth   float64 `json:"revenue_growth"`
	EarningsGrowth  float64 `json:"earnings_growth"`
	TargetMeanPrice float64 `json:"target_mean_price"`

	IndicatorsAt *time.Time `json:"indicators_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// FinancialReport stores one financial statement record per filing period
type FinancialReport struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	Symbol       string          `gorm:"uniqueIndex:idx_fin_natural" json:"symbol"`
	Timeframe    string          `gorm:"uniqueIndex:idx_fin_natural" json:"timeframe"` // quarterly, annual, ttm
	FiscalYear   string          `gorm:"uniqueIndex:idx_fin_natural" json:"fiscal_year"`
	FiscalPeriod string          `gorm:"uniqueIndex:idx_fin_natural" json:"fiscal_period"`
	FilingDate   time.Time       `gorm:"index" json:"filing_date"`
	Revenue      decimal.Decimal `gorm:"type:decimal(20,2)" json:"revenue"`
	NetIncome    decimal.Decimal `gorm:"type:decimal(20,2)" json:"net_income"`
	EPS          decimal.Decimal `gorm:"type:decimal(12,4)" json:"eps"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Dividend represents a single cash dividend event
type Dividend struct {
	ID         uint            `gorm:"primaryKey" json:"id"`
	Symbol     string          `gorm:"uniqueIndex:idx_div_symbol_exdate" json:"symbol"`
	ExDate     time.Time       `gorm:"uniqueIndex:idx_div_symbol_exdate" json:"ex_date"`
	PayDate    *time.Time      `json:"pay_date"`
	CashAmount decimal.Decimal `gorm:"type:decimal(12,6)" json:"cash_amount"`
	Frequency  int             `json:"frequency"` // payouts per year
	CreatedAt  time.Time       `json:"created_at"`
}

// Split represents a stock split event
type Split struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Symbol    string    `gorm:"uniqueIndex:idx_split_symbol_exdate" json:"symbol"`
	ExDate    time.Time `gorm:"uniqueIndex:idx_split_symbol_exdate" json:"ex_date"`
	SplitFrom float64   `json:"split_from"`
	SplitTo   float64   `json:"split_to"`
	CreatedAt time.Time `json:"created_at"`
}

// NewsArticle stores a news item linked to a symbol
type NewsArticle struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ExternalID  string    `gorm:"uniqueIndex;not null" json:"external_id"`
	Symbol      string    `gorm:"index" json:"symbol"`
	Title       string    `json:"title"`
	Publisher   string    `json:"publisher"`
	URL         string    `json:"url"`
	PublishedAt time.Time `gorm:"index" json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// MigrateMarketModels runs database migrations for market data models
func MigrateMarketModels(db *gorm.DB) error {
	return db.AutoMigrate(
		&Ticker{},
		&DailyBar{},
		&ScreenerSnapshot{},
		&FinancialReport{},
		&Dividend{},
		&Split{},
		&NewsArticle{},
	)
}
