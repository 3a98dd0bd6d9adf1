package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulationResult is the pure output of one Simulation Engine run against
// a strategy and a historical window. SE has no side effects on live
// state; this value is what SG and ES consume.
type SimulationResult struct {
	StrategyID        string
	RunAt             time.Time
	DaysSimulated     int
	TradeCount        int
	WinRate           decimal.Decimal // ratio in [0,1]
	TotalReturn       decimal.Decimal // fraction, e.g. 0.05 for +5%
	Sharpe            decimal.Decimal
	MaxDrawdown       decimal.Decimal // fraction, positive magnitude
	Score             decimal.Decimal // composite score in [0,100] for this run alone
	ParametersSnapshot StrategyParameters
}
