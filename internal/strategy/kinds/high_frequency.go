package kinds

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// HighFrequency trades very short-horizon rate-of-change over a small
// window with a tight threshold — the same momentum idea as Momentum but
// tuned to fire far more often on much smaller moves. Grounded on
// original_source/strategy_parameters_config.py's high_frequency
// parameter family (short lookback windows, small thresholds).
type HighFrequency struct{}

func NewHighFrequency() *HighFrequency { return &HighFrequency{} }

func (HighFrequency) Type() domain.StrategyType { return domain.StrategyHighFrequency }

func (HighFrequency) MinHistory() int { return 6 }

func (HighFrequency) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"short_window": intParam("short_window", 5, 3, 20, 1, "0.3", map[string][2]int{
			"volatile": {3, 8},
			"ranging":  {5, 12},
		}),
		"hf_threshold": decParam("hf_threshold", "0.001", "0.0005", "0.01", "0.0001", "0.25", map[string][2]string{
			"volatile": {"0.002", "0.01"},
			"ranging":  {"0.0005", "0.002"},
		}),
	}
}

func (HighFrequency) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	window := int(params["short_window"].Value.IntPart())
	threshold := params["hf_threshold"].Value

	if len(snap.Closes) < window+1 {
		return nil, nil
	}
	start := snap.Closes[len(snap.Closes)-window-1]
	end := snap.Closes[len(snap.Closes)-1]
	if start.IsZero() {
		return nil, nil
	}

	roc := end.Sub(start).Div(start)
	if roc.Abs().LessThan(threshold) {
		return nil, nil
	}

	confidence := clampConfidence(roc.Abs().Div(threshold).Div(decimal.NewFromInt(4)))
	if roc.IsPositive() {
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: confidence}, nil
	}
	return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: confidence}, nil
}
