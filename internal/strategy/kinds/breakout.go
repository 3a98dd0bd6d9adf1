package kinds

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/pkg/indicators"
)

// Breakout trades a close pushing past its trailing range by more than
// breakout_threshold. Grounded on
// original_source/strategy_parameters_config.py's breakout_period/
// breakout_threshold parameter rules.
type Breakout struct{}

func NewBreakout() *Breakout { return &Breakout{} }

func (Breakout) Type() domain.StrategyType { return domain.StrategyBreakout }

func (Breakout) MinHistory() int { return 30 }

func (Breakout) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"breakout_period": intParam("breakout_period", 20, 5, 100, 1, "0.25", map[string][2]int{
			"trending": {15, 30},
			"ranging":  {5, 15},
			"volatile": {10, 25},
		}),
		"breakout_threshold": decParam("breakout_threshold", "0.01", "0.005", "0.05", "0.001", "0.2", map[string][2]string{
			"trending": {"0.01", "0.02"},
			"ranging":  {"0.005", "0.01"},
			"volatile": {"0.02", "0.05"},
		}),
	}
}

func (Breakout) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	period := int(params["breakout_period"].Value.IntPart())
	threshold := params["breakout_threshold"].Value

	if len(snap.Closes) < period+1 {
		return nil, nil
	}
	priorWindow := snap.Closes[:len(snap.Closes)-1]

	highest, ok := indicators.Highest(priorWindow, period)
	if !ok {
		return nil, nil
	}
	lowest, _ := indicators.Lowest(priorWindow, period)

	one := decimal.NewFromInt(1)
	upperBreak := highest.Mul(one.Add(threshold))
	lowerBreak := lowest.Mul(one.Sub(threshold))

	if snap.Ask.GreaterThan(upperBreak) {
		pct := snap.Ask.Sub(highest).Div(highest)
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: clampConfidence(pct.Div(threshold))}, nil
	}
	if snap.Bid.LessThan(lowerBreak) {
		pct := lowest.Sub(snap.Bid).Div(lowest)
		return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: clampConfidence(pct.Div(threshold))}, nil
	}
	return nil, nil
}
