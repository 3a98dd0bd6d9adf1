package kinds

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/pkg/indicators"
)

// TrendFollowing trades EMA crossovers: a buy when the fast EMA crosses
// above the slow EMA, a sell on the reverse. Grounded on
// original_source/strategy_parameters_config.py's trend-following
// parameter family and the teacher's pkg/formulas/ema.go EMA computation.
type TrendFollowing struct{}

func NewTrendFollowing() *TrendFollowing { return &TrendFollowing{} }

func (TrendFollowing) Type() domain.StrategyType { return domain.StrategyTrendFollowing }

func (TrendFollowing) MinHistory() int { return 210 }

func (TrendFollowing) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"ema_fast": intParam("ema_fast", 12, 5, 50, 1, "0.2", map[string][2]int{
			"trending": {8, 20},
			"volatile": {5, 15},
		}),
		"ema_slow": intParam("ema_slow", 26, 20, 200, 1, "0.15", map[string][2]int{
			"trending": {20, 60},
			"volatile": {20, 50},
		}),
	}
}

func (TrendFollowing) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	fastLen := int(params["ema_fast"].Value.IntPart())
	slowLen := int(params["ema_slow"].Value.IntPart())
	if fastLen >= slowLen || len(snap.Closes) < slowLen+2 {
		return nil, nil
	}

	prior := snap.Closes[:len(snap.Closes)-1]
	fastNow, ok1 := indicators.EMA(snap.Closes, fastLen)
	slowNow, ok2 := indicators.EMA(snap.Closes, slowLen)
	fastPrev, ok3 := indicators.EMA(prior, fastLen)
	slowPrev, ok4 := indicators.EMA(prior, slowLen)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return nil, nil
	}

	wasBelow := fastPrev.LessThanOrEqual(slowPrev)
	isAbove := fastNow.GreaterThan(slowNow)
	wasAbove := fastPrev.GreaterThanOrEqual(slowPrev)
	isBelow := fastNow.LessThan(slowNow)

	gap := fastNow.Sub(slowNow).Abs().Div(slowNow)

	tenx := decimal.NewFromInt(10)
	if wasBelow && isAbove {
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: clampConfidence(gap.Mul(tenx))}, nil
	}
	if wasAbove && isBelow {
		return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: clampConfidence(gap.Mul(tenx))}, nil
	}
	return nil, nil
}
