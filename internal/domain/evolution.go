package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// EvolutionAction is one action the Evolution Scheduler recorded against a
// strategy.
type EvolutionAction string

const (
	ActionCreate      EvolutionAction = "create"
	ActionMutate      EvolutionAction = "mutate"
	ActionCrossover   EvolutionAction = "crossover"
	ActionEliteSelect EvolutionAction = "elite_select"
	ActionEliminate   EvolutionAction = "eliminate"
	ActionProtect     EvolutionAction = "protect"
)

// ParamDiff describes the change to one parameter across a mutation or
// crossover, sufficient to compute the record's inverse (spec.md §8's
// round-trip property: applying old->new then its inverse restores the
// original parameters).
type ParamDiff struct {
	Name     string
	OldValue decimal.Decimal
	NewValue decimal.Decimal
}

// EvolutionRecord is one append-only entry in a strategy's evolution
// history. Totally ordered per strategy by (Generation, Cycle, At)
// (spec.md §5).
type EvolutionRecord struct {
	StrategyID     string
	Generation     int
	Cycle          int
	Action         EvolutionAction
	ScoreBefore    decimal.Decimal
	ScoreAfter     decimal.Decimal
	OldParams      StrategyParameters
	NewParams      StrategyParameters
	ParameterDiff  []ParamDiff
	Reason         string
	At             time.Time
}

// Invert returns the ParamDiff list that would undo this record's change,
// i.e. swaps OldValue/NewValue on every entry.
func (r EvolutionRecord) Invert() []ParamDiff {
	out := make([]ParamDiff, len(r.ParameterDiff))
	for i, d := range r.ParameterDiff {
		out[i] = ParamDiff{Name: d.Name, OldValue: d.NewValue, NewValue: d.OldValue}
	}
	return out
}
