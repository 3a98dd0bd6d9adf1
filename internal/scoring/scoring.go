// Package scoring implements Scoring & Gating (SG, spec.md §4.8): the
// composite-score formula, the rolling-update rule, and the tier-
// promotion/elimination gates in spec.md §4.6 that SP's tiers are driven
// by. Grounded on original_source/enhanced_strategy_evolution.py's
// _calculate_fitness weighted-component formula (return/win_rate/sharpe/
// stability/activity, normalized and weighted) and
// continuous_strategy_optimization.py's rolling-average score update.
//
// Score math is computed in float64 internally (spec.md §9 permits this
// for "saturating transforms") and converted to decimal.Decimal only at
// the boundary — scores are never persisted as binary floats, only the
// final [0,100] decimal.
package scoring

import (
	"math"

	"github.com/shopspring/decimal"
)

// Components are the five weighted inputs to the composite score
// (spec.md §4.8). WinRate is a ratio in [0,1] — see SPEC_FULL.md's Open
// Question decision on units.
type Components struct {
	TotalReturn  decimal.Decimal // fraction, e.g. 0.05 for +5%
	WinRate      decimal.Decimal // ratio in [0,1]
	Sharpe       decimal.Decimal
	MaxDrawdown  decimal.Decimal // fraction, positive magnitude
	ProfitFactor decimal.Decimal
}

// Weights are the per-component weights, summing to 1 after any regime
// perturbation + renormalization.
type Weights struct {
	TotalReturn  float64
	WinRate      float64
	Sharpe       float64
	MaxDrawdown  float64
	ProfitFactor float64
}

// DefaultWeights are spec.md §4.8's defaults.
var DefaultWeights = Weights{TotalReturn: 0.30, WinRate: 0.25, Sharpe: 0.20, MaxDrawdown: 0.15, ProfitFactor: 0.10}

// MarketRegime is the optional market-state input to weight perturbation
// (spec.md §4.8, SPEC_FULL.md's market_environment_classifier.py
// supplement).
type MarketRegime string

const (
	RegimeNone     MarketRegime = ""
	RegimeTrending MarketRegime = "trending"
	RegimeRanging  MarketRegime = "ranging"
	RegimeVolatile MarketRegime = "volatile"
)

// perturbed returns weights adjusted for regime, renormalized to sum 1.
// Trending regimes up-weight return & sharpe; ranging regimes up-weight
// win_rate & profit_factor (spec.md §4.8 literally).
func (w Weights) perturbed(regime MarketRegime) Weights {
	out := w
	switch regime {
	case RegimeTrending:
		out.TotalReturn *= 1.3
		out.Sharpe *= 1.2
	case RegimeRanging:
		out.WinRate *= 1.3
		out.ProfitFactor *= 1.2
	case RegimeVolatile:
		out.MaxDrawdown *= 1.3
	}
	sum := out.TotalReturn + out.WinRate + out.Sharpe + out.MaxDrawdown + out.ProfitFactor
	if sum == 0 {
		return w
	}
	out.TotalReturn /= sum
	out.WinRate /= sum
	out.Sharpe /= sum
	out.MaxDrawdown /= sum
	out.ProfitFactor /= sum
	return out
}

// saturate maps x (roughly [0, +inf) for a "more is better" measure) to
// [0,100] with diminishing returns above scale — no single dimension can
// dominate by growing unboundedly (spec.md §4.8 "smooth saturating
// transform").
func saturate(x, scale float64) float64 {
	if x <= 0 {
		return 0
	}
	return 100 * (x / (x + scale))
}

// saturateInverse is for "less is better" measures (drawdown): closer to 0
// scores higher.
func saturateInverse(x, scale float64) float64 {
	if x <= 0 {
		return 100
	}
	return 100 * (scale / (x + scale))
}

// tradeCountFactor is spec.md §4.8's multiplier: 0.7-1.0 linear ramp for
// count<10, 1.0 flat for 10-50, ramp up to 1.2 at >=100, capped.
func tradeCountFactor(count int) float64 {
	switch {
	case count < 10:
		return 0.7 + 0.3*float64(count)/10
	case count < 50:
		return 1.0
	case count < 100:
		return 1.0 + 0.2*float64(count-50)/50
	default:
		return 1.2
	}
}

// Composite computes the bounded [0,100] composite score for one set of
// components, trade count, and optional market regime (spec.md §4.8).
func Composite(c Components, tradeCount int, regime MarketRegime) decimal.Decimal {
	w := DefaultWeights.perturbed(regime)

	totalReturn, _ := c.TotalReturn.Float64()
	winRate, _ := c.WinRate.Float64()
	sharpe, _ := c.Sharpe.Float64()
	drawdown, _ := c.MaxDrawdown.Float64()
	profitFactor, _ := c.ProfitFactor.Float64()

	returnScore := saturate(totalReturn, 0.2)
	winRateScore := math.Max(0, math.Min(100, winRate*100))
	sharpeScore := saturate(sharpe, 2.0)
	drawdownScore := saturateInverse(drawdown, 0.2)
	profitFactorScore := saturate(profitFactor-1, 1.5)

	weighted := returnScore*w.TotalReturn + winRateScore*w.WinRate + sharpeScore*w.Sharpe +
		drawdownScore*w.MaxDrawdown + profitFactorScore*w.ProfitFactor

	score := weighted * tradeCountFactor(tradeCount)
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return decimal.NewFromFloat(score).Round(4)
}

// DefaultAlpha is spec.md §4.8's rolling-update smoothing factor.
var DefaultAlpha = decimal.NewFromFloat(0.3)

// RollingUpdate applies spec.md §4.8's rolling-average rule:
// new = old*(1-alpha) + component*alpha. The rolling score, not the
// instantaneous componentScore, drives gating.
func RollingUpdate(oldScore, componentScore, alpha decimal.Decimal) decimal.Decimal {
	one := decimal.NewFromInt(1)
	return oldScore.Mul(one.Sub(alpha)).Add(componentScore.Mul(alpha)).Round(4)
}
