package evolution

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/cryptosentinel/internal/domain"
)

func rsiParam() domain.StrategyParameters {
	return domain.StrategyParameters{
		"rsi_period": &domain.Param{
			Name: "rsi_period", Type: domain.ParamInt,
			Value: decimal.NewFromInt(14), Min: decimal.NewFromInt(2), Max: decimal.NewFromInt(50), Step: decimal.NewFromInt(1),
			MutationRate: decimal.NewFromInt(1), // always mutate, for deterministic test coverage
		},
	}
}

func TestMutateStaysWithinRangeAndOnStep(t *testing.T) {
	params := rsiParam()
	for i := 0; i < 200; i++ {
		mutated, _ := Mutate(params, 1.0, "")
		v := mutated["rsi_period"].Value
		assert.True(t, v.GreaterThanOrEqual(decimal.NewFromInt(2)))
		assert.True(t, v.LessThanOrEqual(decimal.NewFromInt(50)))
		steps := v.Sub(decimal.NewFromInt(2))
		assert.True(t, steps.Mod(decimal.NewFromInt(1)).IsZero())
	}
}

func TestMutateNeverChangesOriginal(t *testing.T) {
	params := rsiParam()
	original := params["rsi_period"].Value
	_, _ = Mutate(params, 1.0, "")
	assert.True(t, params["rsi_period"].Value.Equal(original), "Mutate must not mutate its input in place")
}

func TestMutateZeroRateNeverChanges(t *testing.T) {
	params := rsiParam()
	params["rsi_period"].MutationRate = decimal.Zero
	_, diffs := Mutate(params, 1.0, "")
	assert.Empty(t, diffs)
}

func TestCrossoverInheritsNonSharedParameterUntouched(t *testing.T) {
	a := rsiParam()
	b := domain.StrategyParameters{
		"ema_period": &domain.Param{Name: "ema_period", Value: decimal.NewFromInt(20), Min: decimal.NewFromInt(5), Max: decimal.NewFromInt(100), Step: decimal.NewFromInt(1)},
	}
	child := Crossover(a, b, 1.0)
	assert.True(t, child["rsi_period"].Value.Equal(a["rsi_period"].Value))
	assert.True(t, child["ema_period"].Value.Equal(b["ema_period"].Value))
}

func TestCrossoverSharedParameterStaysInParentRange(t *testing.T) {
	a := rsiParam()
	b := rsiParam()
	b["rsi_period"].Value = decimal.NewFromInt(40)

	for i := 0; i < 50; i++ {
		child := Crossover(a, b, 1.0)
		v := child["rsi_period"].Value
		assert.True(t, v.GreaterThanOrEqual(decimal.NewFromInt(2)))
		assert.True(t, v.LessThanOrEqual(decimal.NewFromInt(50)))
	}
}

func TestCrossoverZeroRateInheritsFromParentA(t *testing.T) {
	a := rsiParam()
	b := rsiParam()
	b["rsi_period"].Value = decimal.NewFromInt(40)

	child := Crossover(a, b, 0.0)
	assert.True(t, child["rsi_period"].Value.Equal(a["rsi_period"].Value))
}

func TestStampChangeResetsValidationCounter(t *testing.T) {
	s := &domain.Strategy{ValidationTradesSinceChange: 7}
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	StampChange(s, now)
	assert.Equal(t, 0, s.ValidationTradesSinceChange)
	assert.Equal(t, now, s.LastParamChangeAt)
}
