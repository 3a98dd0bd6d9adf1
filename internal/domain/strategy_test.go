package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name           string
		v, min, max, step decimal.Decimal
		want           decimal.Decimal
	}{
		{"within range snaps to step", d("1.07"), d("1.0"), d("2.0"), d("0.1"), d("1.1")},
		{"below min clamps up", d("0.2"), d("1.0"), d("2.0"), d("0.1"), d("1.0")},
		{"above max clamps down", d("5.0"), d("1.0"), d("2.0"), d("0.1"), d("2.0")},
		{"exact step unchanged", d("1.5"), d("1.0"), d("2.0"), d("0.1"), d("1.5")},
		{"zero step no snapping", d("1.23"), d("1.0"), d("2.0"), d("0"), d("1.23")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.v, tt.min, tt.max, tt.step)
			assert.True(t, got.Equal(tt.want), "Clamp(%s) = %s, want %s", tt.v, got, tt.want)
		})
	}
}

func TestParamSetClampsToRange(t *testing.T) {
	p := &Param{Name: "lookback", Type: ParamInt, Value: d("10"), Min: d("5"), Max: d("20"), Step: d("1")}
	p.Set(d("999"))
	assert.True(t, p.Value.Equal(d("20")))

	p.Set(d("-5"))
	assert.True(t, p.Value.Equal(d("5")))
}

func TestParamEffectiveRangeScalesAroundMidpoint(t *testing.T) {
	p := &Param{
		Name: "threshold", Min: d("0"), Max: d("10"),
		MarketAdaptation: MarketAdaptation{"volatile": d("0.5")},
	}
	lo, hi := p.EffectiveRange("volatile")
	mid := d("5")
	assert.True(t, lo.GreaterThanOrEqual(p.Min))
	assert.True(t, hi.LessThanOrEqual(p.Max))
	assert.True(t, hi.Sub(mid).LessThanOrEqual(mid.Sub(p.Min)))

	loUnknown, hiUnknown := p.EffectiveRange("calm")
	assert.True(t, loUnknown.Equal(p.Min))
	assert.True(t, hiUnknown.Equal(p.Max))
}

func TestStrategyParametersCloneIsDeep(t *testing.T) {
	orig := StrategyParameters{
		"a": {Name: "a", Value: d("1"), MarketAdaptation: MarketAdaptation{"trending": d("1.2")}},
	}
	cl := orig.Clone()
	cl["a"].Value = d("99")
	cl["a"].MarketAdaptation["trending"] = d("0")

	assert.True(t, orig["a"].Value.Equal(d("1")), "clone mutation leaked into original value")
	assert.True(t, orig["a"].MarketAdaptation["trending"].Equal(d("1.2")), "clone mutation leaked into original adaptation map")
}

func TestRecordParamChangeResetsValidationCounter(t *testing.T) {
	s := &Strategy{ValidationTradesSinceChange: 7}
	at := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.RecordParamChange(at)

	assert.Equal(t, at, s.LastParamChangeAt)
	assert.Equal(t, 0, s.ValidationTradesSinceChange)
}

func TestIsEarlyLifecycle(t *testing.T) {
	s := &Strategy{Rolling: RollingMetrics{ExecutedTradeCount: 2}}
	assert.True(t, s.IsEarlyLifecycle())

	s.Rolling.ExecutedTradeCount = 3
	assert.False(t, s.IsEarlyLifecycle())
}
