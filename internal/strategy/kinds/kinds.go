// Package kinds implements the per-strategy-type signal rule and default
// parameter schema spec.md §1/§3 requires: each strategy type (momentum,
// mean_reversion, breakout, grid, trend_following, high_frequency) owns a
// distinct parameter schema and a distinct rule for turning recent market
// data into a trade intent. Grounded on
// original_source/strategy_parameters_config.py's PARAMETER_RULES table
// (ranges, steps, market_adaption, mutation_strength per named parameter)
// and original_source/modern_strategy_manager.py's per-type signal logic.
package kinds

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// Snapshot is the market data a signal rule evaluates against: a trailing
// close-price window (oldest first) plus the current top of book, sourced
// from marketdata.Service.History/Latest.
type Snapshot struct {
	Symbol string
	Closes []decimal.Decimal
	Bid    decimal.Decimal
	Ask    decimal.Decimal
	Now    time.Time
}

// Intent is a strategy kind's trade decision for one evaluation tick. A nil
// *Intent from Rule.Signal means no signal this tick. Quantity sizing and
// trade_type (validation vs real) are Signal Dispatcher concerns, not the
// kind's — a kind only ever says "buy/sell here, with this confidence".
type Intent struct {
	Side       domain.Side
	Price      decimal.Decimal
	Confidence decimal.Decimal // in [0,1]
}

// Rule is the signal-generation contract every strategy type implements.
// Implementations must be stateless and safe for concurrent use across
// strategies of the same type — all per-strategy state lives in
// domain.StrategyParameters, never in the Rule itself.
type Rule interface {
	Type() domain.StrategyType
	// DefaultParameters returns a fresh parameter set for a newly seeded
	// strategy of this type, built from this type's PARAMETER_RULES-style
	// schema (range/step/mutation_rate/market_adaptation per parameter).
	DefaultParameters() domain.StrategyParameters
	// Signal evaluates params against snap and returns the trade intent,
	// or nil if the rule does not fire this tick. MinHistory reports how
	// many closes are required before Signal can evaluate at all.
	Signal(params domain.StrategyParameters, snap Snapshot) (*Intent, error)
	MinHistory() int
}

// Registry maps strategy type to its Rule implementation. Built once at
// composition root and shared read-only thereafter.
type Registry map[domain.StrategyType]Rule

// NewRegistry returns the registry of all six built-in strategy kinds.
func NewRegistry() Registry {
	kinds := []Rule{
		NewMomentum(),
		NewMeanReversion(),
		NewBreakout(),
		NewGrid(),
		NewTrendFollowing(),
		NewHighFrequency(),
	}
	reg := make(Registry, len(kinds))
	for _, k := range kinds {
		reg[k.Type()] = k
	}
	return reg
}

func intParam(name string, value, min, max, step int, mutationRate string, adapt map[string][2]int) *domain.Param {
	p := &domain.Param{
		Name:         name,
		Type:         domain.ParamInt,
		Value:        decimal.NewFromInt(int64(value)),
		Min:          decimal.NewFromInt(int64(min)),
		Max:          decimal.NewFromInt(int64(max)),
		Step:         decimal.NewFromInt(int64(step)),
		MutationRate: decimal.RequireFromString(mutationRate),
	}
	if len(adapt) > 0 {
		p.MarketAdaptation = make(domain.MarketAdaptation, len(adapt))
		mid := decimal.NewFromInt(int64(min + max)).Div(decimal.NewFromInt(2))
		fullRange := decimal.NewFromInt(int64(max - min))
		for regime, bounds := range adapt {
			regimeRange := decimal.NewFromInt(int64(bounds[1] - bounds[0]))
			if fullRange.IsZero() {
				p.MarketAdaptation[regime] = decimal.NewFromInt(1)
				continue
			}
			p.MarketAdaptation[regime] = regimeRange.Div(fullRange)
		}
		_ = mid
	}
	return p
}

func decParam(name, value, min, max, step, mutationRate string, adapt map[string][2]string) *domain.Param {
	p := &domain.Param{
		Name:         name,
		Type:         domain.ParamDecimal,
		Value:        decimal.RequireFromString(value),
		Min:          decimal.RequireFromString(min),
		Max:          decimal.RequireFromString(max),
		Step:         decimal.RequireFromString(step),
		MutationRate: decimal.RequireFromString(mutationRate),
	}
	if len(adapt) > 0 {
		p.MarketAdaptation = make(domain.MarketAdaptation, len(adapt))
		fullRange := p.Max.Sub(p.Min)
		for regime, bounds := range adapt {
			lo := decimal.RequireFromString(bounds[0])
			hi := decimal.RequireFromString(bounds[1])
			if fullRange.IsZero() {
				p.MarketAdaptation[regime] = decimal.NewFromInt(1)
				continue
			}
			p.MarketAdaptation[regime] = hi.Sub(lo).Div(fullRange)
		}
	}
	return p
}
