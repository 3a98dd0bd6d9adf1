package evolution

import (
	"math/rand"
	"time"

	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/aristath/cryptosentinel/internal/domain"
)

var decimalTwo = decimal.NewFromInt(2)

func decimalFromFloat(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// mutationNoiseFraction is spec.md §4.10's "10% of the parameter's
// market-adapted range" Gaussian noise scale.
const mutationNoiseFraction = 0.10

// Mutate returns a cloned parameter set where each parameter is perturbed
// independently with probability param.MutationRate*globalStrength, by
// Gaussian noise with standard deviation mutationNoiseFraction of the
// parameter's market-adapted effective range, clamped and snapped to step
// (spec.md §4.10 literally). regime may be empty for the unscaled range.
// Returns the new parameters plus the diff of every parameter actually
// changed.
func Mutate(params domain.StrategyParameters, globalStrength float64, regime string) (domain.StrategyParameters, []domain.ParamDiff) {
	out := params.Clone()
	var diffs []domain.ParamDiff

	for name, p := range out {
		rate, _ := p.MutationRate.Float64()
		if rand.Float64() > rate*globalStrength {
			continue
		}

		lo, hi := p.EffectiveRange(regime)
		rangeWidth, _ := hi.Sub(lo).Float64()
		if rangeWidth <= 0 {
			continue
		}
		sigma := rangeWidth * mutationNoiseFraction
		noise := distuv.Normal{Mu: 0, Sigma: sigma}.Rand()

		oldValue := p.Value
		delta := decimalFromFloat(noise)
		p.Set(p.Value.Add(delta))

		if !p.Value.Equal(oldValue) {
			diffs = append(diffs, domain.ParamDiff{Name: name, OldValue: oldValue, NewValue: p.Value})
		}
	}
	return out, diffs
}

// Crossover combines two parents' parameter sets into one child, per
// spec.md §4.10: for each parameter both parents share, with probability
// crossoverRate either inherit from one parent (50/50) or take the
// arithmetic mean (snapped to step); non-shared parameters are inherited
// from their originating parent untouched.
func Crossover(a, b domain.StrategyParameters, crossoverRate float64) domain.StrategyParameters {
	out := make(domain.StrategyParameters, len(a)+len(b))

	for name, pa := range a {
		pb, shared := b[name]
		if !shared {
			clone := *pa
			out[name] = &clone
			continue
		}
		out[name] = crossParam(pa, pb, crossoverRate)
	}
	for name, pb := range b {
		if _, done := out[name]; done {
			continue
		}
		clone := *pb
		out[name] = &clone
	}
	return out
}

func crossParam(a, b *domain.Param, crossoverRate float64) *domain.Param {
	child := *a
	if rand.Float64() > crossoverRate {
		// inherited unchanged from parent a, already copied above
		return &child
	}
	if rand.Float64() < 0.5 {
		child.Value = domain.Clamp(b.Value, a.Min, a.Max, a.Step)
	} else {
		mean := a.Value.Add(b.Value).Div(decimalTwo)
		child.Value = domain.Clamp(mean, a.Min, a.Max, a.Step)
	}
	return &child
}

// StampChange applies §4.10's "any mutation or crossover stamps
// last_param_change_at = now and resets validation_trades_since_change"
// rule, shared by mutation and crossover call sites.
func StampChange(s *domain.Strategy, at time.Time) {
	s.RecordParamChange(at)
}
