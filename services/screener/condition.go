package screener

import (
	"fmt"

	"screener_backend/models"
)

// Operator is a filter comparison operator
type Operator string

const (
	OpGt      Operator = "gt"
	OpGte     Operator = "gte"
	OpLt      Operator = "lt"
	OpLte     Operator = "lte"
	OpEq      Operator = "eq"
	OpNeq     Operator = "neq"
	OpBetween Operator = "between"
)

// FilterCondition is one field comparison. Between uses Range as an
// inclusive [min, max] pair; all other operators use Value.
type FilterCondition struct {
	Field    string    `json:"field"`
	Operator Operator  `json:"operator"`
	Value    float64   `json:"value"`
	Range    []float64 `json:"range,omitempty"`
}

// Validate checks the condition shape before evaluation
func (c *FilterCondition) Validate() error {
	if _, ok := fieldSpecs[c.Field]; !ok {
		return fmt.Errorf("unknown filter field: %s", c.Field)
	}
	switch c.Operator {
	case OpGt, OpGte, OpLt, OpLte, OpEq, OpNeq:
		return nil
	case OpBetween:
		if len(c.Range) != 2 {
			return fmt.Errorf("between on %s requires a [min, max] range", c.Field)
		}
		return nil
	default:
		return fmt.Errorf("unknown operator: %s", c.Operator)
	}
}

// matches applies the operator to a present field value
func (c *FilterCondition) matches(v float64) bool {
	switch c.Operator {
	case OpGt:
		return v > c.Value
	case OpGte:
		return v >= c.Value
	case OpLt:
		return v < c.Value
	case OpLte:
		return v <= c.Value
	case OpEq:
		return v == c.Value
	case OpNeq:
		return v != c.Value
	case OpBetween:
		return v >= c.Range[0] && v <= c.Range[1]
	}
	return false
}

// sqlClause renders the condition as a predicate with presence guard
func (c *FilterCondition) sqlClause() (string, []interface{}) {
	spec := fieldSpecs[c.Field]

	var expr string
	var args []interface{}
	switch c.Operator {
	case OpGt:
		expr, args = spec.column+" > ?", []interface{}{c.Value}
	case OpGte:
		expr, args = spec.column+" >= ?", []interface{}{c.Value}
	case OpLt:
		expr, args = spec.column+" < ?", []interface{}{c.Value}
	case OpLte:
		expr, args = spec.column+" <= ?", []interface{}{c.Value}
	case OpEq:
		expr, args = spec.column+" = ?", []interface{}{c.Value}
	case OpNeq:
		expr, args = spec.column+" <> ?", []interface{}{c.Value}
	case OpBetween:
		expr, args = spec.column+" >= ? AND "+spec.column+" <= ?", []interface{}{c.Range[0], c.Range[1]}
	}

	if spec.guard != "" {
		expr = spec.guard + " AND " + expr
	}
	return expr, args
}

// fieldSpec ties a queryable field to its snapshot column, its SQL
// presence guard and its in-memory extractor. Both evaluation paths
// must share these so dual-mode results stay consistent.
type fieldSpec struct {
	column string
	guard  string
	get    func(s *models.ScreenerSnapshot) (float64, bool)
}

var fieldSpecs = map[string]fieldSpec{
	"price": {
		column: "price",
		guard:  "price > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Price, s.Price > 0 },
	},
	"change": {
		column: "change",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Change, true },
	},
	"change_percent": {
		column: "change_percent",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.ChangePercent, true },
	},
	"volume": {
		column: "volume",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Volume, true },
	},
	"avg_volume": {
		column: "avg_volume",
		guard:  "avg_volume > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.AvgVolume, s.AvgVolume > 0 },
	},
	"market_cap": {
		column: "market_cap",
		guard:  "market_cap > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.MarketCap, s.MarketCap > 0 },
	},
	"pe": {
		column: "pe",
		guard:  "pe <> 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.PE, s.PE != 0 },
	},
	"eps": {
		column: "eps",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.EPS, true },
	},
	"revenue_growth": {
		column: "revenue_growth",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.RevenueGrowth, true },
	},
	"earnings_growth": {
		column: "earnings_growth",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.EarningsGrowth, true },
	},
	"sma50": {
		column: "sma50",
		guard:  "indicators_at IS NOT NULL AND sma50 > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Sma50, s.IndicatorsAt != nil && s.Sma50 > 0 },
	},
	"sma200": {
		column: "sma200",
		guard:  "indicators_at IS NOT NULL AND sma200 > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Sma200, s.IndicatorsAt != nil && s.Sma200 > 0 },
	},
	"ema12": {
		column: "ema12",
		guard:  "indicators_at IS NOT NULL AND ema12 > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Ema12, s.IndicatorsAt != nil && s.Ema12 > 0 },
	},
	"ema26": {
		column: "ema26",
		guard:  "indicators_at IS NOT NULL AND ema26 > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Ema26, s.IndicatorsAt != nil && s.Ema26 > 0 },
	},
	"rsi14": {
		column: "rsi14",
		guard:  "indicators_at IS NOT NULL AND rsi14 > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Rsi14, s.IndicatorsAt != nil && s.Rsi14 > 0 },
	},
	"macd_hist": {
		column: "macd_hist",
		guard:  "indicators_at IS NOT NULL",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.MacdHist, s.IndicatorsAt != nil },
	},
	"week52_high": {
		column: "week52_high",
		guard:  "week52_high > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Week52High, s.Week52High > 0 },
	},
	"week52_low": {
		column: "week52_low",
		guard:  "week52_low > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.Week52Low, s.Week52Low > 0 },
	},
	"target_mean_price": {
		column: "target_mean_price",
		guard:  "target_mean_price > 0",
		get:    func(s *models.ScreenerSnapshot) (float64, bool) { return s.TargetMeanPrice, s.TargetMeanPrice > 0 },
	},
}

// Row is one evaluated record in either mode. Fields holds only the
// values actually present for the record; a condition on a missing
// field excludes the record.
type Row struct {
	Symbol string             `json:"symbol"`
	Fields map[string]float64 `json:"fields"`
}

// Field returns a field value and whether the record carries it
func (r Row) Field(name string) (float64, bool) {
	v, ok := r.Fields[name]
	return v, ok
}

// matchesConditions reports whether the row satisfies every condition
func matchesConditions(row Row, conditions []FilterCondition) bool {
	for i := range conditions {
		v, ok := row.Field(conditions[i].Field)
		if !ok || !conditions[i].matches(v) {
			return false
		}
	}
	return true
}

// rowFromSnapshot builds the in-memory representation of a snapshot row
func rowFromSnapshot(s *models.ScreenerSnapshot) Row {
	row := Row{Symbol: s.Symbol, Fields: make(map[string]float64, len(fieldSpecs))}
	for name, spec := range fieldSpecs {
		if v, ok := spec.get(s); ok {
			row.Fields[name] = v
		}
	}
	return row
}
