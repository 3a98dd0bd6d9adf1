package kinds

import (
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/pkg/indicators"
)

// MeanReversion trades price snapping back toward its Bollinger mean: a
// buy when price sits below the lower band, a sell when it sits above the
// upper band. Grounded on original_source/strategy_parameters_config.py's
// mean_window/std_dev_multiplier parameter rules.
type MeanReversion struct{}

func NewMeanReversion() *MeanReversion { return &MeanReversion{} }

func (MeanReversion) Type() domain.StrategyType { return domain.StrategyMeanReversion }

func (MeanReversion) MinHistory() int { return 60 }

func (MeanReversion) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"mean_window": intParam("mean_window", 50, 10, 200, 5, "0.2", map[string][2]int{
			"trending": {50, 100},
			"ranging":  {20, 50},
			"volatile": {30, 80},
		}),
		"std_dev_multiplier": decParam("std_dev_multiplier", "2.0", "1.0", "3.0", "0.1", "0.15", map[string][2]string{
			"trending": {"1.5", "2.5"},
			"ranging":  {"1.8", "2.2"},
			"volatile": {"2.0", "3.0"},
		}),
	}
}

func (MeanReversion) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	window := int(params["mean_window"].Value.IntPart())
	stdDevMult := params["std_dev_multiplier"].Value

	if len(snap.Closes) < window {
		return nil, nil
	}
	bands, ok := indicators.Bollinger(snap.Closes, window, stdDevMult)
	if !ok {
		return nil, nil
	}

	width := bands.Upper.Sub(bands.Lower)
	if width.IsZero() {
		return nil, nil
	}

	if snap.Ask.LessThan(bands.Lower) {
		position := bands.Lower.Sub(snap.Ask).Div(width)
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: clampConfidence(position)}, nil
	}
	if snap.Bid.GreaterThan(bands.Upper) {
		position := snap.Bid.Sub(bands.Upper).Div(width)
		return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: clampConfidence(position)}, nil
	}
	return nil, nil
}
