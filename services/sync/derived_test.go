package sync

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"screener_backend/models"
)

func annualReport(year string, revenue, netIncome float64) models.FinancialReport {
	return models.FinancialReport{
		Timeframe:  "annual",
		FiscalYear: year,
		Revenue:    decimal.NewFromFloat(revenue),
		NetIncome:  decimal.NewFromFloat(netIncome),
	}
}

func TestYoYGrowthTwoAnnualYears(t *testing.T) {
	growth, ok := YoYGrowth([]models.FinancialReport{
		annualReport("2024", 1200, 150),
		annualReport("2023", 1000, 100),
	})

	assert.True(t, ok)
	assert.InDelta(t, 0.20, growth.Revenue, 1e-9)
	assert.InDelta(t, 0.50, growth.Earnings, 1e-9)
}

func TestYoYGrowthIgnoresQuarterlyRows(t *testing.T) {
	quarterly := models.FinancialReport{Timeframe: "quarterly", FiscalYear: "2024",
		Revenue: decimal.NewFromFloat(9999), NetIncome: decimal.NewFromFloat(9999)}

	growth, ok := YoYGrowth([]models.FinancialReport{
		quarterly,
		annualReport("2024", 1100, 110),
		annualReport("2023", 1000, 100),
	})

	assert.True(t, ok)
	assert.InDelta(t, 0.10, growth.Revenue, 1e-9)
	assert.InDelta(t, 0.10, growth.Earnings, 1e-9)
}

func TestYoYGrowthPicksTwoMostRecentYears(t *testing.T) {
	growth, ok := YoYGrowth([]models.FinancialReport{
		annualReport("2022", 500, 50),
		annualReport("2024", 1500, 200),
		annualReport("2023", 1000, 100),
	})

	assert.True(t, ok)
	assert.InDelta(t, 0.50, growth.Revenue, 1e-9)
	assert.InDelta(t, 1.00, growth.Earnings, 1e-9)
}

func TestYoYGrowthNeedsTwoAnnualReports(t *testing.T) {
	_, ok := YoYGrowth([]models.FinancialReport{annualReport("2024", 1000, 100)})
	assert.False(t, ok)

	_, ok = YoYGrowth(nil)
	assert.False(t, ok)
}

func TestYoYGrowthZeroOrNegativeBase(t *testing.T) {
	// prior-year loss: a growth rate against a negative base is not
	// meaningful, so it is reported as zero
	growth, ok := YoYGrowth([]models.FinancialReport{
		annualReport("2024", 1200, 150),
		annualReport("2023", 0, -50),
	})

	assert.True(t, ok)
	assert.Zero(t, growth.Revenue)
	assert.Zero(t, growth.Earnings)
}
