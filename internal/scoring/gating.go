package scoring

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/config"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/strategy"
)

// TierChangeNotifier is called whenever Gater moves a strategy between
// tiers or eliminates it, so the composition root can fan this out to
// events.Manager without this package depending on internal/events.
type TierChangeNotifier interface {
	StrategyTierChanged(strategyID string, oldTier, newTier domain.StrategyTier)
	StrategyEliminated(strategyID, reason string)
}

type noopNotifier struct{}

func (noopNotifier) StrategyTierChanged(string, domain.StrategyTier, domain.StrategyTier) {}
func (noopNotifier) StrategyEliminated(string, string)                                    {}

// Gater applies spec.md §4.6's tier-promotion/demotion/elimination rules
// against the Strategy Pool, driven by each strategy's rolling metrics.
// Grounded on original_source/modern_strategy_manager.py's tier-assignment
// pass, generalized to SPEC_FULL.md's three named tiers.
type Gater struct {
	pool     *strategy.Pool
	gates    config.Gates
	notifier TierChangeNotifier
	log      zerolog.Logger

	elimMu     sync.Mutex
	belowSince map[string]time.Time // strategy id -> first time seen below elimination score
}

// NewGater creates a Gater over pool using gates. notifier may be nil.
func NewGater(pool *strategy.Pool, gates config.Gates, notifier TierChangeNotifier, log zerolog.Logger) *Gater {
	if notifier == nil {
		notifier = noopNotifier{}
	}
	return &Gater{
		pool:       pool,
		gates:      gates,
		notifier:   notifier,
		log:        log.With().Str("component", "scoring_gater").Logger(),
		belowSince: make(map[string]time.Time),
	}
}

// UpdateScore runs one rolling-score update plus tier re-evaluation for
// strategyID (spec.md §4.8's rolling-update rule, then §4.6's gates).
// Called by SE/ES after a simulation or by SD after a real-trade outcome.
func (g *Gater) UpdateScore(strategyID string, c Components, tradeCount int, regime MarketRegime, now time.Time) error {
	s, ok := g.pool.Get(strategyID)
	if !ok {
		return domain.NewError(domain.ErrInvariantViolation, "scoring.UpdateScore", errUnknownStrategy(strategyID))
	}

	componentScore := Composite(c, tradeCount, regime)
	newScore := RollingUpdate(s.Rolling.Score, componentScore, DefaultAlpha)

	improved := newScore.GreaterThan(s.Rolling.Score)

	err := g.pool.Mutate(strategyID, func(strat *domain.Strategy) {
		strat.Rolling.Score = newScore
		strat.Rolling.WinRate = c.WinRate
		strat.Rolling.TotalReturn = c.TotalReturn
		strat.Rolling.Sharpe = c.Sharpe
		strat.Rolling.MaxDrawdown = c.MaxDrawdown
		strat.Rolling.ProfitFactor = c.ProfitFactor
		strat.FinalScore = newScore
		if improved {
			strat.Rolling.ConsecImprovements++
		} else {
			strat.Rolling.ConsecImprovements = 0
		}
	})
	if err != nil {
		return err
	}

	return g.Evaluate(strategyID, now)
}

// Evaluate re-checks strategyID's tier and elimination status against its
// current (already-updated) rolling metrics — spec.md §4.6 literally.
func (g *Gater) Evaluate(strategyID string, now time.Time) error {
	s, ok := g.pool.Get(strategyID)
	if !ok {
		return domain.NewError(domain.ErrInvariantViolation, "scoring.Evaluate", errUnknownStrategy(strategyID))
	}
	if !s.Active {
		return nil
	}

	newTier := g.nextTier(s, now)
	if newTier != s.Tier {
		oldTier := s.Tier
		if err := g.pool.Mutate(strategyID, func(strat *domain.Strategy) { strat.Tier = newTier }); err != nil {
			return err
		}
		g.notifier.StrategyTierChanged(strategyID, oldTier, newTier)
		g.log.Info().Str("strategy_id", strategyID).Str("old_tier", string(oldTier)).Str("new_tier", string(newTier)).Msg("strategy tier changed")
	}

	g.evaluateElimination(s, now)
	return nil
}

// nextTier computes the tier s belongs in: pool->display once both the
// score and trade-count gates hold; a display strategy whose rolling score
// drops below DisplayMinScore returns to pool, and a trading strategy below
// TradingMinScore drops to display. Each demotion happens at the first
// evaluation below the gate; no scoring window or hysteresis is tracked.
func (g *Gater) nextTier(s domain.Strategy, now time.Time) domain.StrategyTier {
	switch s.Tier {
	case domain.TierPool:
		if s.Rolling.Score.GreaterThanOrEqual(g.gates.DisplayMinScore) && s.Rolling.ExecutedTradeCount >= g.gates.MinTrades {
			return domain.TierDisplay
		}
		return domain.TierPool
	case domain.TierDisplay:
		if s.Rolling.Score.LessThan(g.gates.DisplayMinScore) {
			return domain.TierPool
		}
		if g.qualifiesForTrading(s, now) {
			return domain.TierDisplay // promotion happens via PromoteToTrading, not silently here
		}
		return domain.TierDisplay
	case domain.TierTrading:
		if s.Rolling.Score.LessThan(g.gates.TradingMinScore) {
			return domain.TierDisplay
		}
		return domain.TierTrading
	default:
		return s.Tier
	}
}

// qualifiesForTrading reports whether s meets every display->trading gate
// in spec.md §4.6: score, win rate, consecutive improvements, and
// parameter stability (no change within ParamStabilityWindow).
func (g *Gater) qualifiesForTrading(s domain.Strategy, now time.Time) bool {
	if s.Tier != domain.TierDisplay {
		return false
	}
	if s.Rolling.Score.LessThan(g.gates.TradingMinScore) {
		return false
	}
	if s.Rolling.WinRate.LessThan(g.gates.MinWinRate) {
		return false
	}
	if s.Rolling.ConsecImprovements < g.gates.ConsecImprovements {
		return false
	}
	if now.Sub(s.LastParamChangeAt) < g.gates.ParamStabilityWindow {
		return false
	}
	return true
}

// PromoteToTrading promotes a qualifying display-tier strategy to trading.
// Exposed separately from nextTier so ES's slow loop controls exactly when
// a promotion is committed (spec.md's tier gates are necessary, not
// automatically sufficient at arbitrary call sites).
func (g *Gater) PromoteToTrading(strategyID string, now time.Time) (bool, error) {
	s, ok := g.pool.Get(strategyID)
	if !ok {
		return false, domain.NewError(domain.ErrInvariantViolation, "scoring.PromoteToTrading", errUnknownStrategy(strategyID))
	}
	if !g.qualifiesForTrading(s, now) {
		return false, nil
	}
	if err := g.pool.Mutate(strategyID, func(strat *domain.Strategy) { strat.Tier = domain.TierTrading }); err != nil {
		return false, err
	}
	g.notifier.StrategyTierChanged(strategyID, domain.TierDisplay, domain.TierTrading)
	return true, nil
}

// evaluateElimination tracks how long s has stayed below EliminationScore
// and retires it once that holds for EliminationDays straight (spec.md
// §4.6's "Eliminations").
func (g *Gater) evaluateElimination(s domain.Strategy, now time.Time) {
	g.elimMu.Lock()
	if s.Rolling.Score.GreaterThanOrEqual(g.gates.EliminationScore) {
		delete(g.belowSince, s.ID)
		g.elimMu.Unlock()
		return
	}
	since, tracked := g.belowSince[s.ID]
	if !tracked {
		g.belowSince[s.ID] = now
		g.elimMu.Unlock()
		return
	}
	if now.Sub(since) < time.Duration(g.gates.EliminationDays)*24*time.Hour {
		g.elimMu.Unlock()
		return
	}
	delete(g.belowSince, s.ID)
	g.elimMu.Unlock()

	reason := "score below elimination threshold for " + s.ID
	_ = g.pool.Mutate(s.ID, func(strat *domain.Strategy) {
		strat.Active = false
		strat.EliminationReason = "rolling score stayed below elimination threshold for the configured window"
	})
	g.notifier.StrategyEliminated(s.ID, reason)
	g.log.Info().Str("strategy_id", s.ID).Msg("strategy eliminated")
}

type strategyErr string

func (e strategyErr) Error() string { return string(e) }

func errUnknownStrategy(id string) error { return strategyErr("unknown strategy " + id) }
