package kinds

import (
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/pkg/indicators"
)

// Grid is a range-bound strategy anchored on the SMA of the last 40
// closes: it signals a buy when the ask is at or below
// anchor*(1-grid_spacing) and a sell when the bid is at or above
// anchor*(1+grid_spacing). Only this one level on each side is used;
// grid_levels is carried as a tunable parameter that Signal does not read.
// Grounded on
// original_source/strategy_parameters_config.py's grid_levels/
// grid_spacing parameter rules.
type Grid struct{}

func NewGrid() *Grid { return &Grid{} }

func (Grid) Type() domain.StrategyType { return domain.StrategyGrid }

func (Grid) MinHistory() int { return 40 }

func (Grid) DefaultParameters() domain.StrategyParameters {
	return domain.StrategyParameters{
		"grid_levels": intParam("grid_levels", 10, 3, 50, 1, "0.3", map[string][2]int{
			"ranging":  {8, 20},
			"volatile": {10, 30},
			"trending": {5, 10},
		}),
		"grid_spacing": decParam("grid_spacing", "0.01", "0.002", "0.05", "0.001", "0.2", map[string][2]string{
			"ranging":  {"0.005", "0.015"},
			"volatile": {"0.02", "0.05"},
			"trending": {"0.01", "0.02"},
		}),
	}
}

const gridAnchorWindow = 40

func (Grid) Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error) {
	spacing := params["grid_spacing"].Value

	if len(snap.Closes) < gridAnchorWindow {
		return nil, nil
	}
	anchor, ok := indicators.SMA(snap.Closes, gridAnchorWindow)
	if !ok || anchor.IsZero() {
		return nil, nil
	}

	lowerLevel := anchor.Mul(decimal.NewFromInt(1).Sub(spacing))
	upperLevel := anchor.Mul(decimal.NewFromInt(1).Add(spacing))

	if snap.Ask.LessThanOrEqual(lowerLevel) {
		depth := anchor.Sub(snap.Ask).Div(anchor).Div(spacing)
		return &Intent{Side: domain.SideBuy, Price: snap.Ask, Confidence: clampConfidence(depth)}, nil
	}
	if snap.Bid.GreaterThanOrEqual(upperLevel) {
		depth := snap.Bid.Sub(anchor).Div(anchor).Div(spacing)
		return &Intent{Side: domain.SideSell, Price: snap.Bid, Confidence: clampConfidence(depth)}, nil
	}
	return nil, nil
}
