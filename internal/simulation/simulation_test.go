package simulation

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

// oscillating builds a price series that rises and falls by pct every leg
// bars, enough to push HighFrequency's rate-of-change rule past its default
// threshold on both legs.
func oscillating(base float64, pct float64, legBars, legs int) []decimal.Decimal {
	out := make([]decimal.Decimal, 0, legBars*legs+1)
	price := decimal.NewFromFloat(base)
	out = append(out, price)
	up := true
	for l := 0; l < legs; l++ {
		step := decimal.NewFromFloat(pct / float64(legBars))
		for b := 0; b < legBars; b++ {
			if up {
				price = price.Mul(decimal.NewFromInt(1).Add(step))
			} else {
				price = price.Mul(decimal.NewFromInt(1).Sub(step))
			}
			out = append(out, price)
		}
		up = !up
	}
	return out
}

func TestRunProducesTradesOnOscillatingSeries(t *testing.T) {
	reg := kinds.NewRegistry()
	rule := reg["high_frequency"]
	require.NotNil(t, rule)

	closes := oscillating(100, 0.05, 6, 8)
	now := time.Now().UTC()

	eng := New(DefaultCosts)
	result := eng.Run("s1", rule, rule.DefaultParameters(), "BTC/USDT", closes, 48, now)

	require.Equal(t, "s1", result.StrategyID)
	require.Greater(t, result.TradeCount, 0)
	require.True(t, result.WinRate.GreaterThanOrEqual(decimal.Zero))
	require.True(t, result.WinRate.LessThanOrEqual(decimal.NewFromInt(1)))
}

func TestRunWithInsufficientHistoryProducesNoTrades(t *testing.T) {
	reg := kinds.NewRegistry()
	rule := reg["high_frequency"]

	closes := []decimal.Decimal{decimal.NewFromInt(100), decimal.NewFromInt(101)}
	eng := New(DefaultCosts)
	result := eng.Run("s2", rule, rule.DefaultParameters(), "BTC/USDT", closes, 48, time.Now().UTC())

	require.Equal(t, 0, result.TradeCount)
	require.True(t, result.WinRate.IsZero())
}

func TestProfitFactorEdgeCases(t *testing.T) {
	require.True(t, profitFactor(decimal.Zero, decimal.Zero).Equal(decimal.NewFromInt(1)))
	require.True(t, profitFactor(decimal.NewFromInt(10), decimal.Zero).Equal(decimal.NewFromInt(100)))
	require.True(t, profitFactor(decimal.NewFromInt(10), decimal.NewFromInt(5)).Equal(decimal.NewFromInt(2)))
}
