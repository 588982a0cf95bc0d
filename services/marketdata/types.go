package marketdata

// TickerRef is one entry from the paginated reference tickers endpoint
type TickerRef struct {
	Ticker          string `json:"ticker"`
	Name            string `json:"name"`
	Market          string `json:"market"`
	PrimaryExchange string `json:"primary_exchange"`
	Active          bool   `json:"active"`
}

type tickersPage struct {
	Results []TickerRef `json:"results"`
	NextURL string      `json:"next_url"`
}

// DayBar is a single OHLCV aggregate
type DayBar struct {
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
	VWAP      float64 `json:"vw"`
	Timestamp int64   `json:"t"` // start of the bar, unix millis
}

// SnapshotTicker is one entry from the bulk snapshot endpoint
type SnapshotTicker struct {
	Ticker           string  `json:"ticker"`
	Day              DayBar  `json:"day"`
	PrevDay          DayBar  `json:"prevDay"`
	TodaysChange     float64 `json:"todaysChange"`
	TodaysChangePerc float64 `json:"todaysChangePerc"`
	Updated          int64   `json:"updated"`
}

type snapshotResponse struct {
	Tickers []SnapshotTicker `json:"tickers"`
}

type prevDayResponse struct {
	Results []DayBar `json:"results"`
}

// IndicatorValue is one windowed indicator data point
type IndicatorValue struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

// MACDValue carries the three MACD series values for one point
type MACDValue struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
	Signal    float64 `json:"signal"`
	Histogram float64 `json:"histogram"`
}

type indicatorResponse struct {
	Results struct {
		Values []IndicatorValue `json:"values"`
	} `json:"results"`
}

type macdResponse struct {
	Results struct {
		Values []MACDValue `json:"values"`
	} `json:"results"`
}

// IndicatorSet bundles the per-symbol indicator values the screener
// snapshot carries. Zero means the upstream had no value.
type IndicatorSet struct {
	Sma50    float64 `json:"sma50"`
	Sma200   float64 `json:"sma200"`
	Ema12    float64 `json:"ema12"`
	Ema26    float64 `json:"ema26"`
	Rsi14    float64 `json:"rsi14"`
	MacdHist float64 `json:"macd_hist"`
}

type metricValue struct {
	Value float64 `json:"value"`
}

// FinancialRecord is one filing from the financials endpoint
type FinancialRecord struct {
	FiscalYear   string `json:"fiscal_year"`
	FiscalPeriod string `json:"fiscal_period"`
	Timeframe    string `json:"timeframe"`
	FilingDate   string `json:"filing_date"`
	Financials   struct {
		IncomeStatement struct {
			Revenues              metricValue `json:"revenues"`
			NetIncomeLoss         metricValue `json:"net_income_loss"`
			BasicEarningsPerShare metricValue `json:"basic_earnings_per_share"`
		} `json:"income_statement"`
	} `json:"financials"`
}

type financialsPage struct {
	Results []FinancialRecord `json:"results"`
	NextURL string            `json:"next_url"`
}

// DividendRecord is one entry from the dividends endpoint
type DividendRecord struct {
	Ticker         string  `json:"ticker"`
	ExDividendDate string  `json:"ex_dividend_date"`
	PayDate        string  `json:"pay_date"`
	CashAmount     float64 `json:"cash_amount"`
	Frequency      int     `json:"frequency"`
}

type dividendsPage struct {
	Results []DividendRecord `json:"results"`
	NextURL string           `json:"next_url"`
}

// SplitRecord is one entry from the splits endpoint
type SplitRecord struct {
	Ticker        string  `json:"ticker"`
	ExecutionDate string  `json:"execution_date"`
	SplitFrom     float64 `json:"split_from"`
	SplitTo       float64 `json:"split_to"`
}

type splitsPage struct {
	Results []SplitRecord `json:"results"`
	NextURL string        `json:"next_url"`
}

// NewsRecord is one entry from the ticker news endpoint
type NewsRecord struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Publisher struct {
		Name string `json:"name"`
	} `json:"publisher"`
	ArticleURL   string   `json:"article_url"`
	PublishedUTC string   `json:"published_utc"`
	Tickers      []string `json:"tickers"`
}

type newsPage struct {
	Results []NewsRecord `json:"results"`
	NextURL string       `json:"next_url"`
}

// TickerDetails is the company details payload
type TickerDetails struct {
	Ticker            string  `json:"ticker"`
	Name              string  `json:"name"`
	Market            string  `json:"market"`
	PrimaryExchange   string  `json:"primary_exchange"`
	MarketCap         float64 `json:"market_cap"`
	SharesOutstanding float64 `json:"share_class_shares_outstanding"`
	ListDate          string  `json:"list_date"`
	Active            bool    `json:"active"`
	SICDescription    string  `json:"sic_description"`
}

type detailsResponse struct {
	Results TickerDetails `json:"results"`
}

// AnalystTargets carries consensus price targets for a symbol
type AnalystTargets struct {
	Ticker          string  `json:"ticker"`
	TargetMeanPrice float64 `json:"target_mean_price"`
	TargetHigh      float64 `json:"target_high"`
	TargetLow       float64 `json:"target_low"`
}

type targetsResponse struct {
	Results AnalystTargets `json:"results"`
}
