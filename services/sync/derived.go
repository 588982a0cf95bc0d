package sync

import (
	"sort"

	"github.com/shopspring/decimal"

	"screener_backend/models"
)

// Growth holds year-over-year growth rates as fractions (0.25 = 25%)
type Growth struct {
	Revenue  float64
	Earnings float64
}

// YoYGrowth computes year-over-year revenue and earnings growth from
// the two most recent annual reports. It is a pure function of rows
// already persisted; it never reaches upstream. Growth against a zero
// or negative base is reported as zero rather than a misleading rate.
func YoYGrowth(reports []models.FinancialReport) (Growth, bool) {
	annual := make([]models.FinancialReport, 0, len(reports))
	for i := range reports {
		if reports[i].Timeframe == "annual" {
			annual = append(annual, reports[i])
		}
	}
	if len(annual) < 2 {
		return Growth{}, false
	}
	sort.Slice(annual, func(i, j int) bool {
		return annual[i].FiscalYear > annual[j].FiscalYear
	})

	current, previous := annual[0], annual[1]
	return Growth{
		Revenue:  growthRate(current.Revenue, previous.Revenue),
		Earnings: growthRate(current.NetIncome, previous.NetIncome),
	}, true
}

func growthRate(current, previous decimal.Decimal) float64 {
	if previous.LessThanOrEqual(decimal.Zero) {
		return 0
	}
	return current.Sub(previous).Div(previous).InexactFloat64()
}
