// Package evolution implements the Evolution Scheduler (ES, spec.md §4.9)
// and the parameter mutation/crossover mechanics it drives (§4.10): a fast
// loop that nudges stagnating display-tier strategies, and a slow loop that
// reshapes the whole pool (elite preservation, mutation, crossover, random
// injection, elimination, diversity rebalancing).
package evolution

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/scoring"
	"github.com/aristath/cryptosentinel/internal/simulation"
	"github.com/aristath/cryptosentinel/internal/strategy"
)

// spec.md §4.9's slow-loop tuning constants, grounded on
// original_source/enhanced_strategy_evolution.py's GeneticAlgorithmConfig
// defaults (elite_ratio=0.2, mutation_rate=0.15, crossover_rate=0.6).
const (
	eliteRatio           = 0.2
	globalMutationRate    = 0.15
	crossoverRate         = 0.6
	diversityDominanceMax = 0.6
	randomInjectionCount  = 2
	stagnationScoreDelta  = 1.0 // composite-score points; below this, fast loop proposes a mutation
)

// HistorySource is the read-only slice of marketdata.Service the scheduler
// needs to replay a strategy's symbol.
type HistorySource interface {
	History(exchangeID domain.ExchangeID, symbol string, limit int) []decimal.Decimal
}

// Recorder persists EvolutionRecords. The composition root supplies the
// internal/persistence-backed implementation; tests can use a slice-backed
// stub.
type Recorder interface {
	RecordEvolution(domain.EvolutionRecord)
}

type noopRecorder struct{}

func (noopRecorder) RecordEvolution(domain.EvolutionRecord) {}

// RegimeSource reports the current market regime, or scoring.RegimeNone if
// unknown. Grounded on SPEC_FULL.md's market_environment_classifier.py
// supplement.
type RegimeSource interface {
	Regime(symbol string) scoring.MarketRegime
}

type staticRegime struct{}

func (staticRegime) Regime(string) scoring.MarketRegime { return scoring.RegimeNone }

// Scheduler drives ES's two cadences against a shared strategy.Pool.
type Scheduler struct {
	pool     *strategy.Pool
	sim      *simulation.Engine
	gater    *scoring.Gater
	md         HistorySource
	rec        Recorder
	regime     RegimeSource
	exchange   domain.ExchangeID
	barsPerDay int
	replayBars int

	cron *cron.Cron
	log  zerolog.Logger
}

// Option configures optional Scheduler collaborators.
type Option func(*Scheduler)

// WithRecorder sets the EvolutionRecord sink.
func WithRecorder(r Recorder) Option { return func(s *Scheduler) { s.rec = r } }

// WithRegimeSource sets the market-regime input to scoring and mutation
// strength.
func WithRegimeSource(r RegimeSource) Option { return func(s *Scheduler) { s.regime = r } }

// New creates a Scheduler. exchange is the reference venue used to source
// replay history for every strategy's symbol (spec.md's strategies are not
// pinned to one venue; SPEC_FULL.md resolves this by replaying against one
// configured reference exchange per deployment). barsPerDay converts a
// replay window's bar count into SimulationResult.DaysSimulated and must
// match the market-data poll cadence; replayBars is how many trailing bars
// each SE call replays (spec.md §4.7's "default 3 days" expressed in bars).
func New(pool *strategy.Pool, sim *simulation.Engine, gater *scoring.Gater, md HistorySource, exchange domain.ExchangeID, barsPerDay, replayBars int, log zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		pool:       pool,
		sim:        sim,
		gater:      gater,
		md:         md,
		rec:        noopRecorder{},
		regime:     staticRegime{},
		exchange:   exchange,
		barsPerDay: barsPerDay,
		replayBars: replayBars,
		cron:       cron.New(cron.WithSeconds()),
		log:        log.With().Str("component", "evolution_scheduler").Logger(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start registers the fast and slow loops and starts the cron runner.
// fastSpec/slowSpec are cron expressions (seconds-resolution), e.g.
// "0 */3 * * * *" for a 3-minute fast loop and "0 0 0 * * *" for a daily
// slow loop.
func (s *Scheduler) Start(ctx context.Context, fastSpec, slowSpec string) error {
	if _, err := s.cron.AddFunc(fastSpec, func() { s.runFastLoop(ctx) }); err != nil {
		return fmt.Errorf("evolution: schedule fast loop: %w", err)
	}
	if _, err := s.cron.AddFunc(slowSpec, func() { s.runSlowLoop(ctx) }); err != nil {
		return fmt.Errorf("evolution: schedule slow loop: %w", err)
	}
	s.cron.Start()
	s.log.Info().Str("fast", fastSpec).Str("slow", slowSpec).Msg("evolution scheduler started")
	return nil
}

// Stop drains in-flight runs and stops the cron runner.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info().Msg("evolution scheduler stopped")
}

// runFastLoop implements spec.md §4.9's fast cadence: for every
// display-tier strategy, run SE, update its score via SG, and if the score
// has stagnated, propose a mutation.
func (s *Scheduler) runFastLoop(ctx context.Context) {
	tier := domain.TierDisplay
	targets := s.pool.List(&tier, true)
	now := time.Now().UTC()

	for _, strat := range targets {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.evaluateOne(strat, now)
	}
}

func (s *Scheduler) evaluateOne(strat domain.Strategy, now time.Time) {
	rule, ok := s.pool.Kind(strat.Type)
	if !ok {
		s.log.Warn().Str("strategy_id", strat.ID).Str("type", string(strat.Type)).Msg("no rule registered, skipping")
		return
	}

	closes := s.md.History(s.exchange, strat.Symbol, s.replayBars)
	result := s.sim.Run(strat.ID, rule, strat.Parameters, strat.Symbol, closes, s.barsPerDay, now)
	if result.TradeCount == 0 {
		return
	}

	regime := s.regime.Regime(strat.Symbol)
	scoreBefore := strat.Rolling.Score

	components := scoring.Components{
		TotalReturn:  result.TotalReturn,
		WinRate:      result.WinRate,
		Sharpe:       result.Sharpe,
		MaxDrawdown:  result.MaxDrawdown,
		ProfitFactor: result.ProfitFactor,
	}
	if err := s.gater.UpdateScore(strat.ID, components, result.TradeCount, regime, now); err != nil {
		s.log.Error().Err(err).Str("strategy_id", strat.ID).Msg("score update failed")
		return
	}

	updated, _ := s.pool.Get(strat.ID)
	if updated.Rolling.Score.Sub(scoreBefore).Abs().LessThan(decimal.NewFromFloat(stagnationScoreDelta)) {
		s.proposeMutation(updated, now, globalMutationRate, regime)
	}
}

// proposeMutation applies spec.md §4.10's mutation rule to strat and
// commits it through strategy.Pool.ApplyParamChange, recording an
// EvolutionRecord.
func (s *Scheduler) proposeMutation(strat domain.Strategy, now time.Time, strength float64, regime scoring.MarketRegime) {
	newParams, diffs := Mutate(strat.Parameters, strength, string(regime))
	if len(diffs) == 0 {
		return
	}
	if err := s.pool.ApplyParamChange(strat.ID, newParams, now); err != nil {
		s.log.Error().Err(err).Str("strategy_id", strat.ID).Msg("mutation commit failed")
		return
	}
	s.rec.RecordEvolution(domain.EvolutionRecord{
		StrategyID:    strat.ID,
		Generation:    strat.Lineage.Generation,
		Cycle:         strat.Lineage.Cycle,
		Action:        domain.ActionMutate,
		ScoreBefore:   strat.Rolling.Score,
		ScoreAfter:    strat.Rolling.Score,
		OldParams:     strat.Parameters,
		NewParams:     newParams,
		ParameterDiff: diffs,
		Reason:        "score stagnated in fast loop",
		At:            now,
	})
	s.log.Info().Str("strategy_id", strat.ID).Int("params_changed", len(diffs)).Msg("mutation proposed")
}

// runSlowLoop implements spec.md §4.9's slow cadence over the entire pool:
// elite preservation, mutation of underperformers, crossover, random
// injection, elimination, and diversity rebalancing.
// RunSlowLoopOnce runs one iteration of the slow loop synchronously, for
// the Control Plane's force_evolution_cycle command (spec.md §4.13) —
// the same selection/mutation/crossover/elimination pass the cron-driven
// slow loop runs, just invoked on demand instead of waiting for the
// schedule.
func (s *Scheduler) RunSlowLoopOnce(ctx context.Context) {
	s.runSlowLoop(ctx)
}

func (s *Scheduler) runSlowLoop(ctx context.Context) {
	now := time.Now().UTC()
	all := s.pool.List(nil, true)
	if len(all) == 0 {
		return
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Rolling.Score.GreaterThan(all[j].Rolling.Score) })

	eliteCount := int(float64(len(all)) * eliteRatio)
	if eliteCount < 1 {
		eliteCount = 1
	}
	elite := all[:eliteCount]
	rest := all[eliteCount:]

	s.protectElite(elite, now)
	s.mutateUnderperformers(rest, now)
	s.crossoverPairs(elite, now)
	s.injectRandom(all, now)
	s.rebalanceDiversity(all)

	for _, strat := range all {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := s.gater.Evaluate(strat.ID, now); err != nil {
			s.log.Error().Err(err).Str("strategy_id", strat.ID).Msg("slow-loop gate evaluation failed")
			continue
		}
		if after, ok := s.pool.Get(strat.ID); ok && strat.Active && !after.Active {
			s.rec.RecordEvolution(domain.EvolutionRecord{
				StrategyID:  strat.ID,
				Generation:  strat.Lineage.Generation,
				Cycle:       strat.Lineage.Cycle,
				Action:      domain.ActionEliminate,
				ScoreBefore: strat.Rolling.Score,
				ScoreAfter:  after.Rolling.Score,
				Reason:      after.EliminationReason,
				At:          now,
			})
		}
	}
}

// protectElite implements SPEC_FULL.md's "protect" supplement: every elite
// strategy gets an ActionEliteSelect record; those in the top half of the
// elite (the pool's top decile) have Lineage.Cycle incremented, and once
// that count reaches 3 an ActionProtect record is written. The count is
// cumulative (it is not reset when a strategy leaves the top decile), and
// the protect record is not consulted by any later pass.
func (s *Scheduler) protectElite(elite []domain.Strategy, now time.Time) {
	topDecileCount := len(elite) / 2
	if topDecileCount < 1 {
		topDecileCount = 1
	}
	for i, strat := range elite {
		s.rec.RecordEvolution(domain.EvolutionRecord{
			StrategyID:  strat.ID,
			Generation:  strat.Lineage.Generation,
			Cycle:       strat.Lineage.Cycle,
			Action:      domain.ActionEliteSelect,
			ScoreBefore: strat.Rolling.Score,
			ScoreAfter:  strat.Rolling.Score,
			Reason:      "top 20% by score preserved unmutated this cycle",
			At:          now,
		})

		if i >= topDecileCount {
			continue
		}
		if err := s.pool.Mutate(strat.ID, func(s *domain.Strategy) { s.Lineage.Cycle++ }); err != nil {
			continue
		}
		if strat.Lineage.Cycle+1 >= 3 {
			s.rec.RecordEvolution(domain.EvolutionRecord{
				StrategyID:  strat.ID,
				Generation:  strat.Lineage.Generation,
				Cycle:       strat.Lineage.Cycle + 1,
				Action:      domain.ActionProtect,
				ScoreBefore: strat.Rolling.Score,
				ScoreAfter:  strat.Rolling.Score,
				Reason:      "top-decile for 3+ consecutive slow-loop cycles",
				At:          now,
			})
		}
	}
}

// mutateUnderperformers applies a stronger, unconditional mutation pass to
// every non-elite strategy (spec.md §4.9's "mutation of underperformers"),
// scaling mutation strength by each strategy's current market regime
// (SPEC_FULL.md's market-environment-classification supplement: "aggressive
// mutation in volatile regimes").
func (s *Scheduler) mutateUnderperformers(rest []domain.Strategy, now time.Time) {
	for _, strat := range rest {
		regime := s.regime.Regime(strat.Symbol)
		strength := globalMutationRate * 1.5
		if regime == scoring.RegimeVolatile {
			strength *= 1.5
		}
		s.proposeMutation(strat, now, strength, regime)
	}
}

// crossoverPairs randomly pairs elite parents and breeds one child per
// pair (spec.md §4.9's "crossover between randomly paired parents").
func (s *Scheduler) crossoverPairs(elite []domain.Strategy, now time.Time) {
	if len(elite) < 2 {
		return
	}
	shuffled := append([]domain.Strategy(nil), elite...)
	rand.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	for i := 0; i+1 < len(shuffled); i += 2 {
		parentA, parentB := shuffled[i], shuffled[i+1]
		if parentA.Type != parentB.Type {
			continue // crossover only within the same type's parameter schema
		}
		childParams := Crossover(parentA.Parameters, parentB.Parameters, crossoverRate)
		rule, ok := s.pool.Kind(parentA.Type)
		if !ok {
			continue
		}
		child := strategy.NewStrategy(
			uuid.NewString(),
			fmt.Sprintf("%s x %s", parentA.Name, parentB.Name),
			parentA.Type,
			parentA.Symbol,
			rule,
			domain.CreatedCrossover,
			[]string{parentA.ID, parentB.ID},
			maxInt(parentA.Lineage.Generation, parentB.Lineage.Generation)+1,
			now,
		)
		child.Parameters = childParams
		if err := s.pool.Seed(child); err != nil {
			continue
		}
		s.rec.RecordEvolution(domain.EvolutionRecord{
			StrategyID: child.ID,
			Generation: child.Lineage.Generation,
			Action:     domain.ActionCrossover,
			NewParams:  childParams,
			Reason:     fmt.Sprintf("crossover of %s and %s", parentA.ID, parentB.ID),
			At:         now,
		})
	}
}

// injectRandom seeds randomInjectionCount brand-new strategies with default
// parameters, biased toward types the diversity check flags as
// under-represented (spec.md §4.9's "injection of ~N random new strategies").
func (s *Scheduler) injectRandom(all []domain.Strategy, now time.Time) {
	underRepresented := s.underRepresentedTypes(all)
	for i := 0; i < randomInjectionCount; i++ {
		typ := pickType(underRepresented)
		rule, ok := s.pool.Kind(typ)
		if !ok {
			continue
		}
		symbol := "BTC/USDT"
		if len(all) > 0 {
			symbol = all[rand.Intn(len(all))].Symbol
		}
		fresh := strategy.NewStrategy(uuid.NewString(), fmt.Sprintf("random-%s", typ), typ, symbol, rule, domain.CreatedRandom, nil, 0, now)
		if err := s.pool.Seed(fresh); err != nil {
			continue
		}
		s.rec.RecordEvolution(domain.EvolutionRecord{
			StrategyID: fresh.ID,
			Action:     domain.ActionCreate,
			NewParams:  fresh.Parameters,
			Reason:     "random injection",
			At:         now,
		})
	}
}

// rebalanceDiversity implements spec.md §4.9's diversity check: if one
// strategy type exceeds diversityDominanceMax of the active pool, future
// injections bias toward under-represented types. This function only
// logs the collapse; injectRandom, which runs before it in the same slow
// loop, computes its own bias via underRepresentedTypes (types below the
// average share) whether or not this threshold is crossed.
func (s *Scheduler) rebalanceDiversity(all []domain.Strategy) {
	counts := typeCounts(all)
	total := len(all)
	if total == 0 {
		return
	}
	for typ, count := range counts {
		if float64(count)/float64(total) > diversityDominanceMax {
			s.log.Warn().Str("type", string(typ)).Int("count", count).Int("total", total).Msg("strategy type distribution collapsed, biasing new creation")
		}
	}
}

func (s *Scheduler) underRepresentedTypes(all []domain.Strategy) []domain.StrategyType {
	counts := typeCounts(all)
	total := len(all)
	allTypes := []domain.StrategyType{
		domain.StrategyMomentum, domain.StrategyMeanReversion, domain.StrategyBreakout,
		domain.StrategyGrid, domain.StrategyTrendFollowing, domain.StrategyHighFrequency,
	}
	if total == 0 {
		return allTypes
	}
	avg := float64(total) / float64(len(allTypes))
	var under []domain.StrategyType
	for _, typ := range allTypes {
		if float64(counts[typ]) < avg {
			under = append(under, typ)
		}
	}
	if len(under) == 0 {
		return allTypes
	}
	return under
}

func typeCounts(all []domain.Strategy) map[domain.StrategyType]int {
	counts := make(map[domain.StrategyType]int)
	for _, s := range all {
		counts[s.Type]++
	}
	return counts
}

func pickType(types []domain.StrategyType) domain.StrategyType {
	if len(types) == 0 {
		return domain.StrategyMomentum
	}
	return types[rand.Intn(len(types))]
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
