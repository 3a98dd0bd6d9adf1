package evolution

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/scoring"
)

// regimeWindow mirrors original_source/market_environment_classifier.py's
// default feature_window (50 bars); trendLookback mirrors its
// trend_lookback (20 bars); the two thresholds mirror its
// trend_strength_threshold/volatility_threshold config defaults.
const (
	regimeWindow             = 50
	regimeTrendLookback      = 20
	regimeTrendThreshold     = 0.03
	regimeVolatilityThreshold = 0.02
)

// MDSRegimeSource classifies a symbol's current market regime from recent
// close history, the RegimeSource the fast/slow loops consult for weight
// perturbation (spec.md §4.8) and mutation-strength scaling (spec.md
// §4.10), grounded on original_source/market_environment_classifier.py's
// rule-based classification path: trend_strength (price displacement
// normalized by std deviation and lookback) and volatility (coefficient of
// variation over the window), collapsed from the source's eight-state
// taxonomy (TRENDING_UP/DOWN, VOLATILE, BREAKOUT, REVERSAL, ...) onto the
// three regimes scoring.MarketRegime and spec.md §4.8 actually name.
type MDSRegimeSource struct {
	md       HistorySource
	exchange domain.ExchangeID
	window   int
}

// NewMDSRegimeSource creates a regime classifier that replays window closes
// (default regimeWindow when window <= 0) from md for the given reference
// exchange.
func NewMDSRegimeSource(md HistorySource, exchange domain.ExchangeID, window int) *MDSRegimeSource {
	if window <= 0 {
		window = regimeWindow
	}
	return &MDSRegimeSource{md: md, exchange: exchange, window: window}
}

// Regime returns scoring.RegimeNone when there isn't enough history to
// classify confidently yet (a fresh symbol, or MDS hasn't accumulated
// regimeTrendLookback+1 bars), otherwise the rule-based classification.
func (r *MDSRegimeSource) Regime(symbol string) scoring.MarketRegime {
	closes := r.md.History(r.exchange, symbol, r.window)
	n := len(closes)
	if n <= regimeTrendLookback {
		return scoring.RegimeNone
	}

	prices := make([]float64, n)
	for i, c := range closes {
		f, _ := c.Float64()
		prices[i] = f
	}

	mean := stat.Mean(prices, nil)
	stdDev := stat.StdDev(prices, nil)
	if mean == 0 || stdDev == 0 {
		return scoring.RegimeRanging
	}

	volatility := stdDev / mean

	last := prices[n-1]
	lookbackStart := prices[n-1-regimeTrendLookback]
	trendStrength := math.Abs(last-lookbackStart) / (stdDev * math.Sqrt(float64(regimeTrendLookback)))

	switch {
	case trendStrength > regimeTrendThreshold:
		return scoring.RegimeTrending
	case volatility > regimeVolatilityThreshold:
		return scoring.RegimeVolatile
	default:
		return scoring.RegimeRanging
	}
}

var _ RegimeSource = (*MDSRegimeSource)(nil)
