package kinds

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/domain"
)

func dseries(vals ...float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vals))
	for i, v := range vals {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestRegistryHasAllSixTypes(t *testing.T) {
	reg := NewRegistry()
	want := []domain.StrategyType{
		domain.StrategyMomentum,
		domain.StrategyMeanReversion,
		domain.StrategyBreakout,
		domain.StrategyGrid,
		domain.StrategyTrendFollowing,
		domain.StrategyHighFrequency,
	}
	require.Len(t, reg, len(want))
	for _, typ := range want {
		rule, ok := reg[typ]
		require.True(t, ok, "missing rule for %s", typ)
		require.Equal(t, typ, rule.Type())
		params := rule.DefaultParameters()
		require.NotEmpty(t, params)
		for name, p := range params {
			require.True(t, p.Value.GreaterThanOrEqual(p.Min), "%s: value below min", name)
			require.True(t, p.Value.LessThanOrEqual(p.Max), "%s: value above max", name)
		}
	}
}

func TestBreakoutFiresOnUpwardBreak(t *testing.T) {
	b := NewBreakout()
	params := b.DefaultParameters()
	params["breakout_period"].Value = decimal.NewFromInt(5)
	params["breakout_threshold"].Value = decimal.NewFromFloat(0.01)

	closes := dseries(100, 100, 100, 100, 100, 103)
	snap := Snapshot{Symbol: "BTC/USDT", Closes: closes, Bid: decimal.NewFromInt(103), Ask: decimal.NewFromInt(103)}

	intent, err := b.Signal(params, snap)
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, domain.SideBuy, intent.Side)
}

func TestBreakoutNoSignalWithinRange(t *testing.T) {
	b := NewBreakout()
	params := b.DefaultParameters()
	params["breakout_period"].Value = decimal.NewFromInt(5)
	params["breakout_threshold"].Value = decimal.NewFromFloat(0.05)

	closes := dseries(100, 100, 100, 100, 100, 101)
	snap := Snapshot{Symbol: "BTC/USDT", Closes: closes, Bid: decimal.NewFromInt(101), Ask: decimal.NewFromInt(101)}

	intent, err := b.Signal(params, snap)
	require.NoError(t, err)
	require.Nil(t, intent)
}

func TestMeanReversionBuysBelowLowerBand(t *testing.T) {
	m := NewMeanReversion()
	params := m.DefaultParameters()
	params["mean_window"].Value = decimal.NewFromInt(10)
	params["std_dev_multiplier"].Value = decimal.NewFromFloat(2.0)

	closes := dseries(100, 101, 99, 100, 101, 99, 100, 101, 99, 100)
	snap := Snapshot{Symbol: "BTC/USDT", Closes: closes, Bid: decimal.NewFromInt(90), Ask: decimal.NewFromInt(90)}

	intent, err := m.Signal(params, snap)
	require.NoError(t, err)
	require.NotNil(t, intent)
	require.Equal(t, domain.SideBuy, intent.Side)
}

func TestHighFrequencyNoSignalBelowThreshold(t *testing.T) {
	hf := NewHighFrequency()
	params := hf.DefaultParameters()
	params["short_window"].Value = decimal.NewFromInt(3)
	params["hf_threshold"].Value = decimal.NewFromFloat(0.01)

	closes := dseries(100, 100.01, 100.02, 100.03)
	snap := Snapshot{Symbol: "BTC/USDT", Closes: closes, Bid: decimal.NewFromFloat(100.03), Ask: decimal.NewFromFloat(100.03)}

	intent, err := hf.Signal(params, snap)
	require.NoError(t, err)
	require.Nil(t, intent)
}
