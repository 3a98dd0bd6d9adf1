package kinds

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/pkg/indicators"
)

// Momentum trades continuation: RSI deviating from the neutral midpoint by
// more than momentum_threshold signals the move is likely to continue.
// Grounded on original_source/strategy_parameters_config.py's
// momentum_period/momentum_threshold parameter rules.
type Momentum struct{}

func NewMomentum() *Momentum { return &Momentum{} }

func (Momentum) Type() domain.StrategyType { return domain.StrategyMomentum }

func (Momentum) MinHistory() int { return 30 }

func (Momentum) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"momentum_period": intParam("momentum_period", 14, 5, 120, 1, "0.2", map[string][2]int{
			"trending": {10, 30},
			"ranging":  {5, 15},
			"volatile": {3, 20},
		}),
		"momentum_threshold": decParam("momentum_threshold", "0.05", "0.01", "0.3", "0.01", "0.1", map[string][2]string{
			"trending": {"0.03", "0.1"},
			"ranging":  {"0.01", "0.05"},
			"volatile": {"0.05", "0.15"},
		}),
	}
}

func (m Momentum) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	period := int(params["momentum_period"].Value.IntPart())
	threshold := params["momentum_threshold"].Value

	if len(snap.Closes) < period+1 {
		return nil, nil
	}
	rsi, ok := indicators.RSI(snap.Closes, period)
	if !ok {
		return nil, nil
	}

	deviation := rsi.Sub(decimal.NewFromInt(50)).Div(decimal.NewFromInt(50)).Abs()
	if deviation.LessThan(threshold) {
		return nil, nil
	}

	confidence := clampConfidence(deviation)
	if rsi.GreaterThan(decimal.NewFromInt(50)) {
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: confidence}, nil
	}
	return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: confidence}, nil
}

func clampConfidence(d decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	if d.GreaterThan(one) {
		return one
	}
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
