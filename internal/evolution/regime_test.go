package evolution

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/aristath/cryptosentinel/internal/scoring"
)

func closesFromFloats(vs []float64) []decimal.Decimal {
	out := make([]decimal.Decimal, len(vs))
	for i, v := range vs {
		out[i] = decimal.NewFromFloat(v)
	}
	return out
}

func TestMDSRegimeSourceReturnsNoneBelowTrendLookback(t *testing.T) {
	md := fakeHistory{closes: closesFromFloats([]float64{100, 101, 102})}
	src := NewMDSRegimeSource(md, "binance", 0)
	assert.Equal(t, scoring.RegimeNone, src.Regime("BTC/USDT"))
}

func TestMDSRegimeSourceClassifiesTrending(t *testing.T) {
	// A steady one-directional climb: trend_strength (displacement over
	// std*sqrt(lookback)) dominates and should classify as trending even
	// though the series has some local noise baked in.
	vs := make([]float64, 60)
	price := 100.0
	for i := range vs {
		price += 3
		vs[i] = price
	}
	md := fakeHistory{closes: closesFromFloats(vs)}
	src := NewMDSRegimeSource(md, "binance", 0)
	assert.Equal(t, scoring.RegimeTrending, src.Regime("BTC/USDT"))
}

func TestMDSRegimeSourceClassifiesRangingWhenFlat(t *testing.T) {
	vs := make([]float64, 60)
	for i := range vs {
		vs[i] = 100
	}
	md := fakeHistory{closes: closesFromFloats(vs)}
	src := NewMDSRegimeSource(md, "binance", 0)
	assert.Equal(t, scoring.RegimeRanging, src.Regime("BTC/USDT"))
}

func TestMDSRegimeSourceClassifiesVolatile(t *testing.T) {
	// Large oscillation with no net trend: high coefficient of variation,
	// near-zero net displacement.
	vs := make([]float64, 60)
	for i := range vs {
		if i%2 == 0 {
			vs[i] = 100
		} else {
			vs[i] = 130
		}
	}
	md := fakeHistory{closes: closesFromFloats(vs)}
	src := NewMDSRegimeSource(md, "binance", 0)
	assert.Equal(t, scoring.RegimeVolatile, src.Regime("BTC/USDT"))
}
