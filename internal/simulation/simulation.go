// Package simulation implements the Simulation Engine (SE, spec.md §4.7):
// given a strategy and a replay window of recent market data, replay the
// strategy's signal rule bar-by-bar and produce a SimulationResult. SE has
// no side effects on live state — it is invoked by SG's fast-loop caller
// and by ES, never by the live signal-dispatch path.
package simulation

import (
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

// Costs models the slippage and fee assumptions SE applies to every
// simulated fill (spec.md §4.7: "modeled slippage and fees").
type Costs struct {
	SlippagePct decimal.Decimal // fraction of price, e.g. 0.0005 for 5bps
	FeePct      decimal.Decimal // fraction of notional per fill
}

// DefaultCosts are conservative, venue-agnostic assumptions: 5bps slippage
// and 10bps taker fee per fill, in line with the per-fee rates the exchange
// adapters already use for live order costing.
var DefaultCosts = Costs{
	SlippagePct: decimal.NewFromFloat(0.0005),
	FeePct:      decimal.NewFromFloat(0.001),
}

// Engine runs replays. It holds no strategy or market state itself — every
// call is a pure function of its arguments, so it is trivially safe to run
// many simulations concurrently from SG's fast loop and ES's slow loop.
type Engine struct {
	costs Costs
}

// New creates an Engine with the given cost model. Pass simulation.DefaultCosts
// for the venue-agnostic default.
func New(costs Costs) *Engine {
	return &Engine{costs: costs}
}

// position tracks one open simulated leg while replaying.
type position struct {
	side      domain.Side
	entry     decimal.Decimal
	qty       decimal.Decimal
	openedAt  int
}

// Result wraps spec.md §3's SimulationResult with the fifth scoring
// component (profit factor), which the fixed SimulationResult shape has no
// field for — callers feeding internal/scoring.Composite read it off here.
type Result struct {
	domain.SimulationResult
	ProfitFactor decimal.Decimal
}

// Run replays rule over closes (oldest-first) using params, producing a
// Result. closes must have at least rule.MinHistory()+1 points or the
// result carries zero trades. now is stamped on the result and used to
// derive DaysSimulated from the bar count (bars are assumed one per
// marketdata poll tick; spec.md leaves the exact bar cadence to the caller).
func (e *Engine) Run(strategyID string, rule kinds.Rule, params domain.StrategyParameters, symbol string, closes []decimal.Decimal, barsPerDay int, now time.Time) Result {
	result := Result{SimulationResult: domain.SimulationResult{
		StrategyID:         strategyID,
		RunAt:              now,
		ParametersSnapshot: params,
	}}
	if barsPerDay <= 0 {
		barsPerDay = 1
	}
	result.DaysSimulated = len(closes) / barsPerDay

	minHistory := rule.MinHistory()
	if minHistory < 1 {
		minHistory = 1
	}
	if len(closes) <= minHistory {
		return result
	}

	var (
		open          *position
		returns       []float64
		grossProfit   decimal.Decimal
		grossLoss     decimal.Decimal
		wins          int
		equityPeak    = decimal.NewFromInt(1)
		equityCurrent = decimal.NewFromInt(1)
		maxDrawdown   float64
	)

	one := decimal.NewFromInt(1)
	costFactor := e.costs.SlippagePct.Add(e.costs.FeePct)

	for i := minHistory; i < len(closes); i++ {
		window := closes[:i+1]
		snap := kinds.Snapshot{
			Symbol: symbol,
			Closes: window,
			Bid:    closes[i],
			Ask:    closes[i],
			Now:    now,
		}

		intent, err := rule.Signal(params, snap)
		if err != nil || intent == nil {
			continue
		}

		switch {
		case open == nil && intent.Side == domain.SideBuy:
			open = &position{side: domain.SideBuy, entry: intent.Price, qty: one, openedAt: i}
		case open == nil && intent.Side == domain.SideSell:
			open = &position{side: domain.SideSell, entry: intent.Price, qty: one, openedAt: i}
		case open != nil && intent.Side != open.side:
			pnl := closePnL(*open, intent.Price, costFactor)
			result.TradeCount++
			if pnl.IsPositive() {
				wins++
				grossProfit = grossProfit.Add(pnl)
			} else if pnl.IsNegative() {
				grossLoss = grossLoss.Add(pnl.Abs())
			}

			retF, _ := pnl.Div(open.entry).Float64()
			returns = append(returns, retF)

			equityCurrent = equityCurrent.Mul(one.Add(pnl.Div(open.entry)))
			if equityCurrent.GreaterThan(equityPeak) {
				equityPeak = equityCurrent
			}
			if equityPeak.IsPositive() {
				dd, _ := equityPeak.Sub(equityCurrent).Div(equityPeak).Float64()
				if dd > maxDrawdown {
					maxDrawdown = dd
				}
			}
			open = nil
		}
	}

	if result.TradeCount == 0 {
		return result
	}

	result.WinRate = decimal.NewFromInt(int64(wins)).Div(decimal.NewFromInt(int64(result.TradeCount))).Round(4)
	result.TotalReturn = equityCurrent.Sub(one).Round(6)
	result.MaxDrawdown = decimal.NewFromFloat(maxDrawdown).Round(6)
	result.Sharpe = decimal.NewFromFloat(sharpe(returns)).Round(4)
	result.ProfitFactor = profitFactor(grossProfit, grossLoss)
	return result
}

// profitFactor is gross profit / gross loss, spec.md §4.8's fifth scoring
// component.
func profitFactor(grossProfit, grossLoss decimal.Decimal) decimal.Decimal {
	if grossLoss.IsZero() {
		if grossProfit.IsZero() {
			return decimal.NewFromInt(1)
		}
		return decimal.NewFromInt(100) // effectively unbounded, capped by scoring's saturating transform
	}
	return grossProfit.Div(grossLoss).Round(4)
}

func closePnL(open position, exitPrice, costFactor decimal.Decimal) decimal.Decimal {
	var raw decimal.Decimal
	if open.side == domain.SideBuy {
		raw = exitPrice.Sub(open.entry).Mul(open.qty)
	} else {
		raw = open.entry.Sub(exitPrice).Mul(open.qty)
	}
	cost := open.entry.Add(exitPrice).Mul(costFactor).Mul(open.qty)
	return raw.Sub(cost)
}

// sharpe computes a simple per-trade Sharpe ratio (mean/stddev of the
// return series, unannualized — annualizing would require a fixed
// trades-per-year assumption spec.md doesn't pin down).
func sharpe(returns []float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	mean := stat.Mean(returns, nil)
	stdDev := stat.StdDev(returns, nil)
	if stdDev <= 0 {
		return 0
	}
	return mean / stdDev
}
