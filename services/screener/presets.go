package screener

// Proximity and upside bands for the positioning presets
const (
	near52LowBand  = 1.10
	near52HighBand = 0.95
	highUpsideMin  = 1.20
)

// Preset is a named canned screen. The SQL predicates and the in-memory
// matcher must agree so both evaluation modes return the same set.
type Preset struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`

	// IndicatorDependent presets fall back to on-demand evaluation
	// when the snapshot table has no indicator rows yet
	IndicatorDependent bool `json:"indicator_dependent"`

	where    []string
	match    func(row Row) bool
	sortSQL  string
	sortLess func(a, b Row) bool
}

func haveAll(row Row, names ...string) ([]float64, bool) {
	out := make([]float64, len(names))
	for i, n := range names {
		v, ok := row.Field(n)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

func relDistance(row Row, from, to string) float64 {
	a, _ := row.Field(from)
	b, _ := row.Field(to)
	if b == 0 {
		return 0
	}
	return (a - b) / b
}

var presets = map[string]*Preset{
	"goldenCross": {
		ID:                 "goldenCross",
		Name:               "Golden Cross",
		Description:        "Price above SMA50 and SMA50 above SMA200",
		IndicatorDependent: true,
		where: []string{
			"indicators_at IS NOT NULL", "sma50 > 0", "sma200 > 0",
			"price > sma50", "sma50 > sma200",
		},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "sma50", "sma200")
			return ok && v[0] > v[1] && v[1] > v[2]
		},
	},
	"deathCross": {
		ID:                 "deathCross",
		Name:               "Death Cross",
		Description:        "Price below SMA50 and SMA50 below SMA200",
		IndicatorDependent: true,
		where: []string{
			"indicators_at IS NOT NULL", "sma50 > 0", "sma200 > 0",
			"price < sma50", "sma50 < sma200",
		},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "sma50", "sma200")
			return ok && v[0] < v[1] && v[1] < v[2]
		},
	},
	"aboveSma200": {
		ID:                 "aboveSma200",
		Name:               "Above SMA200",
		Description:        "Price above the 200-day moving average",
		IndicatorDependent: true,
		where:              []string{"indicators_at IS NOT NULL", "sma200 > 0", "price > sma200"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "sma200")
			return ok && v[0] > v[1]
		},
	},
	"belowSma200": {
		ID:                 "belowSma200",
		Name:               "Below SMA200",
		Description:        "Price below the 200-day moving average",
		IndicatorDependent: true,
		where:              []string{"indicators_at IS NOT NULL", "sma200 > 0", "price < sma200"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "sma200")
			return ok && v[0] < v[1]
		},
	},
	"emaCrossover": {
		ID:                 "emaCrossover",
		Name:               "EMA Crossover",
		Description:        "EMA12 above EMA26",
		IndicatorDependent: true,
		where:              []string{"indicators_at IS NOT NULL", "ema12 > 0", "ema26 > 0", "ema12 > ema26"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "ema12", "ema26")
			return ok && v[0] > v[1]
		},
	},
	"macdBullish": {
		ID:                 "macdBullish",
		Name:               "MACD Bullish",
		Description:        "MACD histogram above zero",
		IndicatorDependent: true,
		where:              []string{"indicators_at IS NOT NULL", "macd_hist > 0"},
		match: func(row Row) bool {
			v, ok := row.Field("macd_hist")
			return ok && v > 0
		},
	},
	"near52WeekLow": {
		ID:          "near52WeekLow",
		Name:        "Near 52-Week Low",
		Description: "Price within 10% of the 52-week low",
		where:       []string{"week52_low > 0", "price > 0", "price <= week52_low * 1.10"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "week52_low")
			return ok && v[0] <= v[1]*near52LowBand
		},
		sortSQL: "(price - week52_low) / week52_low ASC",
		sortLess: func(a, b Row) bool {
			return relDistance(a, "price", "week52_low") < relDistance(b, "price", "week52_low")
		},
	},
	"near52WeekHigh": {
		ID:          "near52WeekHigh",
		Name:        "Near 52-Week High",
		Description: "Price within 5% of the 52-week high",
		where:       []string{"week52_high > 0", "price > 0", "price >= week52_high * 0.95"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "week52_high")
			return ok && v[0] >= v[1]*near52HighBand
		},
		sortSQL: "(week52_high - price) / week52_high ASC",
		sortLess: func(a, b Row) bool {
			return relDistance(a, "week52_high", "price") < relDistance(b, "week52_high", "price")
		},
	},
	"highUpside": {
		ID:          "highUpside",
		Name:        "High Upside",
		Description: "Analyst mean target at least 20% above price",
		where:       []string{"target_mean_price > 0", "price > 0", "target_mean_price >= price * 1.20"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "target_mean_price")
			return ok && v[1] >= v[0]*highUpsideMin
		},
		sortSQL: "(target_mean_price - price) / price DESC",
		sortLess: func(a, b Row) bool {
			return relDistance(a, "target_mean_price", "price") > relDistance(b, "target_mean_price", "price")
		},
	},
	"undervalued": {
		ID:          "undervalued",
		Name:        "Undervalued",
		Description: "Analyst mean target above current price",
		where:       []string{"target_mean_price > 0", "price > 0", "target_mean_price > price"},
		match: func(row Row) bool {
			v, ok := haveAll(row, "price", "target_mean_price")
			return ok && v[1] > v[0]
		},
		sortSQL: "(target_mean_price - price) / price DESC",
		sortLess: func(a, b Row) bool {
			return relDistance(a, "target_mean_price", "price") > relDistance(b, "target_mean_price", "price")
		},
	},
}

// GetPreset looks up a preset by id
func GetPreset(id string) (*Preset, bool) {
	p, ok := presets[id]
	return p, ok
}

// ListPresets returns all presets for the discovery endpoint
func ListPresets() []*Preset {
	out := make([]*Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	return out
}
