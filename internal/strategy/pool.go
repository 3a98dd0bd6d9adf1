// Package strategy implements the Strategy Pool (SP, spec.md §4.6): the
// persistent set of strategy records, each owned exclusively by its own
// per-strategy write lock, never mutated except through this package.
// Tier-transition and elimination *policy* lives in internal/scoring (SG)
// and internal/evolution (ES); SP itself only provides safe storage,
// lookup, and the signal-generation call-through to the strategy's kind.
package strategy

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

// entry pairs one strategy record with the per-strategy RW lock spec.md §3
// requires ("only SP may mutate, and only under a per-strategy write
// lock"). Readers take RLock; any field mutation takes Lock and is never
// held across I/O (spec.md §5).
type entry struct {
	mu       sync.RWMutex
	strategy domain.Strategy
}

// Pool is the Strategy Pool. Safe for concurrent use.
type Pool struct {
	// mu guards the entries map's structure (insert), not any individual
	// strategy's fields — those are guarded by the entry's own lock.
	mu      sync.RWMutex
	entries map[string]*entry
	kinds   kinds.Registry
	log     zerolog.Logger
}

// New creates an empty Pool backed by the given strategy-kind registry.
func New(registry kinds.Registry, log zerolog.Logger) *Pool {
	return &Pool{
		entries: make(map[string]*entry),
		kinds:   registry,
		log:     log.With().Str("component", "strategy_pool").Logger(),
	}
}

// Kind returns the signal rule registered for typ.
func (p *Pool) Kind(typ domain.StrategyType) (kinds.Rule, bool) {
	r, ok := p.kinds[typ]
	return r, ok
}

// Seed inserts a brand-new strategy record. Returns an error if the id is
// already present — callers mint ids (uuid) so a collision indicates a bug.
func (p *Pool) Seed(s domain.Strategy) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.entries[s.ID]; exists {
		return domain.NewError(domain.ErrInvariantViolation, "strategy.Seed", fmt.Errorf("strategy %q already exists", s.ID))
	}
	p.entries[s.ID] = &entry{strategy: s}
	return nil
}

// Get returns a copy of the strategy record for id.
func (p *Pool) Get(id string) (domain.Strategy, bool) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return domain.Strategy{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.strategy, true
}

// List returns copies of every strategy matching the given filters. A nil
// tier matches every tier. When activeOnly is true, eliminated strategies
// are excluded.
func (p *Pool) List(tier *domain.StrategyTier, activeOnly bool) []domain.Strategy {
	p.mu.RLock()
	snapshot := make([]*entry, 0, len(p.entries))
	for _, e := range p.entries {
		snapshot = append(snapshot, e)
	}
	p.mu.RUnlock()

	out := make([]domain.Strategy, 0, len(snapshot))
	for _, e := range snapshot {
		e.mu.RLock()
		s := e.strategy
		e.mu.RUnlock()
		if tier != nil && s.Tier != *tier {
			continue
		}
		if activeOnly && !s.Active {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Count returns the total number of strategy records, active or not.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.entries)
}

// Mutate applies fn to a live copy of the strategy under its own write
// lock and stores the result. fn must be pure/cheap — no I/O, no blocking
// — since it executes with the strategy's lock held (spec.md §5: "never
// held across a suspension point").
func (p *Pool) Mutate(id string, fn func(s *domain.Strategy)) error {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return domain.NewError(domain.ErrInvariantViolation, "strategy.Mutate", fmt.Errorf("unknown strategy %q", id))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.strategy)
	return nil
}

// RecordSignalDispatched bumps the strategy's validation-trade counter
// when dispatched is a validation trade, per spec.md §4.11 — SD calls this
// once per dispatched signal, never mutating Strategy fields directly.
func (p *Pool) RecordSignalDispatched(id string, tradeType domain.TradeType) error {
	return p.Mutate(id, func(s *domain.Strategy) {
		if tradeType == domain.TradeValidation {
			s.ValidationTradesSinceChange++
		}
		s.Rolling.ExecutedTradeCount++
	})
}

// ApplyParamChange replaces params wholesale and stamps the
// last-param-change bookkeeping in one atomic step (spec.md §4.10).
func (p *Pool) ApplyParamChange(id string, params domain.StrategyParameters, at time.Time) error {
	return p.Mutate(id, func(s *domain.Strategy) {
		s.Parameters = params
		s.RecordParamChange(at)
	})
}

// GenerateSignalIntent looks up id's current type and parameters under a
// read lock and calls through to its kind's (pure, non-blocking) Signal
// rule. Returns (nil, strategy, nil) if the rule does not fire this tick.
func (p *Pool) GenerateSignalIntent(id string, snap kinds.Snapshot) (*kinds.Intent, domain.Strategy, error) {
	p.mu.RLock()
	e, ok := p.entries[id]
	p.mu.RUnlock()
	if !ok {
		return nil, domain.Strategy{}, domain.NewError(domain.ErrInvariantViolation, "strategy.GenerateSignalIntent", fmt.Errorf("unknown strategy %q", id))
	}

	e.mu.RLock()
	s := e.strategy
	e.mu.RUnlock()

	rule, ok := p.kinds[s.Type]
	if !ok {
		return nil, s, domain.NewError(domain.ErrStrategyInternal, "strategy.GenerateSignalIntent", fmt.Errorf("no rule registered for type %q", s.Type))
	}
	if len(snap.Closes) < rule.MinHistory() {
		return nil, s, nil
	}

	intent, err := rule.Signal(s.Parameters, snap)
	if err != nil {
		return nil, s, domain.NewError(domain.ErrStrategyInternal, "strategy.GenerateSignalIntent", err)
	}
	return intent, s, nil
}

// NewStrategy builds a fresh, pool-tier strategy record seeded with its
// type's default parameters — the shape ES uses for seed and random
// creation (spec.md §4.9).
func NewStrategy(id, name string, typ domain.StrategyType, symbol string, rule kinds.Rule, method domain.CreationMethod, parents []string, generation int, now time.Time) domain.Strategy {
	return domain.Strategy{
		ID:         id,
		Name:       name,
		Type:       typ,
		Symbol:     symbol,
		Parameters: rule.DefaultParameters(),
		Tier:       domain.TierPool,
		Enabled:    true,
		Active:     true,
		Lineage: domain.Lineage{
			Parents:        parents,
			Generation:     generation,
			CreationMethod: method,
		},
		LastParamChangeAt: now,
		CreatedAt:         now,
	}
}
