package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// StrategyTier is the administrative classification controlling where a
// strategy is shown and whether its signals may risk real capital.
type StrategyTier string

const (
	TierPool    StrategyTier = "pool"
	TierDisplay StrategyTier = "display"
	TierTrading StrategyTier = "trading"
)

// StrategyType is the trading rule family. Each type owns a distinct
// parameter schema and signal rule (internal/strategy/kinds).
type StrategyType string

const (
	StrategyMomentum       StrategyType = "momentum"
	StrategyMeanReversion  StrategyType = "mean_reversion"
	StrategyBreakout       StrategyType = "breakout"
	StrategyGrid           StrategyType = "grid"
	StrategyTrendFollowing StrategyType = "trend_following"
	StrategyHighFrequency  StrategyType = "high_frequency"
)

// CreationMethod records how a strategy came to exist, for lineage.
type CreationMethod string

const (
	CreatedSeed      CreationMethod = "seed"
	CreatedRandom    CreationMethod = "random"
	CreatedMutation  CreationMethod = "mutation"
	CreatedCrossover CreationMethod = "crossover"
)

// ParamType is the declared type of a strategy parameter's value.
type ParamType string

const (
	ParamInt     ParamType = "int"
	ParamDecimal ParamType = "decimal"
	ParamBool    ParamType = "bool"
)

// MarketAdaptation scales a parameter's effective range under a named
// market regime (spec.md §4.8's "market-state adjustment", generalized to
// per-parameter range scaling consulted by mutation, per SPEC_FULL.md).
type MarketAdaptation map[string]decimal.Decimal // regime -> range scale factor

// Param is one typed, range-bound strategy parameter. Every parameter
// knows its own legal range and step; illegal values are clamped by the
// setter, never rejected.
type Param struct {
	Name             string
	Type             ParamType
	Value            decimal.Decimal // bool encoded as 0/1, int as a whole decimal
	Min              decimal.Decimal
	Max              decimal.Decimal
	Step             decimal.Decimal
	MutationRate     decimal.Decimal // probability this parameter is perturbed on a mutation pass
	MarketAdaptation MarketAdaptation
}

// EffectiveRange returns (min,max) scaled by the market-adaptation factor
// for the given regime, or the declared range unscaled if regime is empty
// or has no entry.
func (p Param) EffectiveRange(regime string) (decimal.Decimal, decimal.Decimal) {
	scale, ok := p.MarketAdaptation[regime]
	if regime == "" || !ok {
		return p.Min, p.Max
	}
	mid := p.Min.Add(p.Max).Div(decimal.NewFromInt(2))
	half := p.Max.Sub(p.Min).Div(decimal.NewFromInt(2)).Mul(scale)
	return mid.Sub(half), mid.Add(half)
}

// Clamp returns v clamped to [min,max] and snapped to the nearest step.
func Clamp(v, min, max, step decimal.Decimal) decimal.Decimal {
	if v.LessThan(min) {
		v = min
	}
	if v.GreaterThan(max) {
		v = max
	}
	if step.IsPositive() {
		steps := v.Sub(min).Div(step).Round(0)
		v = min.Add(steps.Mul(step))
		if v.GreaterThan(max) {
			v = v.Sub(step)
		}
		if v.LessThan(min) {
			v = min
		}
	}
	return v
}

// Set assigns value, clamping into range and snapping to step — parameters
// never hold an out-of-range or off-step value (spec.md §3).
func (p *Param) Set(value decimal.Decimal) {
	p.Value = Clamp(value, p.Min, p.Max, p.Step)
}

// StrategyParameters is the typed map of a strategy's tunable parameters,
// keyed by parameter name.
type StrategyParameters map[string]*Param

// Clone returns a deep copy, used before mutation/crossover so the parent's
// parameters are never mutated in place.
func (sp StrategyParameters) Clone() StrategyParameters {
	out := make(StrategyParameters, len(sp))
	for k, v := range sp {
		cp := *v
		adapt := make(MarketAdaptation, len(v.MarketAdaptation))
		for rk, rv := range v.MarketAdaptation {
			adapt[rk] = rv
		}
		cp.MarketAdaptation = adapt
		out[k] = &cp
	}
	return out
}

// Lineage records a strategy's evolutionary ancestry.
type Lineage struct {
	Parents        []string // strategy IDs, empty for seed/random strategies
	Generation     int
	Cycle          int
	CreationMethod CreationMethod
}

// RollingMetrics are the trailing performance figures SG maintains on a
// strategy (spec.md §4.8's rolling-update rule). WinRate is a ratio in
// [0,1] — see SPEC_FULL.md's Open Question decision on units.
type RollingMetrics struct {
	Score              decimal.Decimal // rolling composite score in [0,100]
	WinRate            decimal.Decimal
	TotalReturn        decimal.Decimal
	Sharpe             decimal.Decimal
	MaxDrawdown        decimal.Decimal
	ProfitFactor       decimal.Decimal
	ConsecImprovements int
	ExecutedTradeCount int
}

// Strategy is a parametric trading strategy record. Only the Strategy Pool
// may mutate a Strategy, and only while holding that strategy's per-id
// write lock (spec.md §3, §5).
type Strategy struct {
	ID                          string
	Name                        string
	Type                        StrategyType
	Symbol                      string
	Parameters                  StrategyParameters
	Tier                        StrategyTier
	Enabled                     bool
	Lineage                     Lineage
	LastParamChangeAt           time.Time
	ValidationTradesSinceChange int
	FinalScore                  decimal.Decimal
	Rolling                     RollingMetrics
	Active                      bool // false once eliminated; record retained for lineage
	EliminationReason           string
	CreatedAt                   time.Time
}

// RecordParamChange stamps the strategy as just having had its parameters
// changed: resets the validation-trade counter and timestamps the change.
// Spec.md §4.10: "Any mutation or crossover stamps last_param_change_at =
// now and resets validation_trades_since_change = 0." This is the single
// write path for that rule — SD and ES both call it, never set the fields
// directly.
func (s *Strategy) RecordParamChange(at time.Time) {
	s.LastParamChangeAt = at
	s.ValidationTradesSinceChange = 0
}

// IsEarlyLifecycle is a cosmetic hint for CP's strategy detail view only
// (SPEC_FULL.md's Open Question decision): true for a strategy's first 3
// trade cycles. It must never be consulted by the Signal Dispatcher — the
// param-change reval rule (spec.md §4.11) strictly dominates.
func (s Strategy) IsEarlyLifecycle() bool {
	return s.Rolling.ExecutedTradeCount < 3
}
