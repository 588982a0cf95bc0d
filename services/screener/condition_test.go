package screener

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBetweenIsInclusive(t *testing.T) {
	cond := FilterCondition{Field: "price", Operator: OpBetween, Range: []float64{10, 20}}
	require.NoError(t, cond.Validate())

	for price, want := range map[float64]bool{
		10:     true,
		20:     true,
		15:     true,
		9.999:  false,
		20.001: false,
	} {
		row := Row{Symbol: "X", Fields: map[string]float64{"price": price}}
		assert.Equal(t, want, matchesConditions(row, []FilterCondition{cond}), "price %v", price)
	}
}

func TestOperators(t *testing.T) {
	row := Row{Symbol: "X", Fields: map[string]float64{"rsi14": 30}}

	cases := []struct {
		op    Operator
		value float64
		want  bool
	}{
		{OpGt, 29, true}, {OpGt, 30, false},
		{OpGte, 30, true}, {OpGte, 31, false},
		{OpLt, 31, true}, {OpLt, 30, false},
		{OpLte, 30, true}, {OpLte, 29, false},
		{OpEq, 30, true}, {OpEq, 29, false},
		{OpNeq, 29, true}, {OpNeq, 30, false},
	}
	for _, tc := range cases {
		cond := FilterCondition{Field: "rsi14", Operator: tc.op, Value: tc.value}
		assert.Equal(t, tc.want, matchesConditions(row, []FilterCondition{cond}), "%s %v", tc.op, tc.value)
	}
}

func TestMissingFieldExcludesRecord(t *testing.T) {
	row := Row{Symbol: "X", Fields: map[string]float64{"price": 50}}

	conds := []FilterCondition{
		{Field: "price", Operator: OpGt, Value: 10},
		{Field: "pe", Operator: OpLt, Value: 30},
	}
	assert.False(t, matchesConditions(row, conds), "record without pe must not match a pe condition")
}

func TestConditionValidation(t *testing.T) {
	assert.Error(t, (&FilterCondition{Field: "nope", Operator: OpGt, Value: 1}).Validate())
	assert.Error(t, (&FilterCondition{Field: "price", Operator: "like", Value: 1}).Validate())
	assert.Error(t, (&FilterCondition{Field: "price", Operator: OpBetween, Range: []float64{1}}).Validate())
	assert.NoError(t, (&FilterCondition{Field: "price", Operator: OpBetween, Range: []float64{1, 2}}).Validate())
}

func TestGoldenCrossPreset(t *testing.T) {
	preset, ok := GetPreset("goldenCross")
	require.True(t, ok)

	included := Row{Symbol: "IN", Fields: map[string]float64{"price": 105, "sma50": 100, "sma200": 90}}
	excluded := Row{Symbol: "OUT", Fields: map[string]float64{"price": 95, "sma50": 100, "sma200": 90}}
	partial := Row{Symbol: "NA", Fields: map[string]float64{"price": 105, "sma50": 100}}

	assert.True(t, preset.match(included))
	assert.False(t, preset.match(excluded))
	assert.False(t, preset.match(partial), "missing sma200 excludes the record")
}

func TestPositioningPresets(t *testing.T) {
	nearLow, _ := GetPreset("near52WeekLow")
	assert.True(t, nearLow.match(Row{Fields: map[string]float64{"price": 109, "week52_low": 100}}))
	assert.False(t, nearLow.match(Row{Fields: map[string]float64{"price": 111, "week52_low": 100}}))

	nearHigh, _ := GetPreset("near52WeekHigh")
	assert.True(t, nearHigh.match(Row{Fields: map[string]float64{"price": 96, "week52_high": 100}}))
	assert.False(t, nearHigh.match(Row{Fields: map[string]float64{"price": 94, "week52_high": 100}}))

	upside, _ := GetPreset("highUpside")
	assert.True(t, upside.match(Row{Fields: map[string]float64{"price": 100, "target_mean_price": 120}}))
	assert.False(t, upside.match(Row{Fields: map[string]float64{"price": 100, "target_mean_price": 119}}))

	undervalued, _ := GetPreset("undervalued")
	assert.True(t, undervalued.match(Row{Fields: map[string]float64{"price": 100, "target_mean_price": 100.5}}))
	assert.False(t, undervalued.match(Row{Fields: map[string]float64{"price": 100, "target_mean_price": 100}}))
}

func TestRowFromSnapshotPresenceRules(t *testing.T) {
	snap := snapFixture("AAPL", 190, 0, 0, 0)
	row := rowFromSnapshot(snap)

	_, hasSma := row.Field("sma50")
	assert.False(t, hasSma, "indicator fields absent until the indicator sync ran")
	_, hasPE := row.Field("pe")
	assert.False(t, hasPE, "zero pe means not populated")
	_, hasPrice := row.Field("price")
	assert.True(t, hasPrice)
}
