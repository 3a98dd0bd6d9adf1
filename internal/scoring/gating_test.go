package scoring

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/config"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/strategy"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

func testGates() config.Gates {
	return config.Gates{
		DisplayMinScore:      decimal.NewFromInt(40),
		TradingMinScore:      decimal.NewFromInt(65),
		MinTrades:            5,
		MinWinRate:           decimal.NewFromFloat(0.5),
		ConsecImprovements:   2,
		ParamRevalHours:      24,
		ParamRevalTrades:     10,
		EliminationScore:     decimal.NewFromInt(15),
		EliminationDays:      1,
		ParamStabilityWindow: time.Hour,
	}
}

type recordingNotifier struct {
	tierChanges  int
	eliminations int
}

func (r *recordingNotifier) StrategyTierChanged(string, domain.StrategyTier, domain.StrategyTier) {
	r.tierChanges++
}
func (r *recordingNotifier) StrategyEliminated(string, string) { r.eliminations++ }

func seeded(t *testing.T, id string, now time.Time) (*strategy.Pool, *Gater, *recordingNotifier) {
	t.Helper()
	pool := strategy.New(kinds.NewRegistry(), zerolog.Nop())
	rule, _ := pool.Kind(domain.StrategyMomentum)
	s := strategy.NewStrategy(id, id, domain.StrategyMomentum, "BTC/USDT", rule, domain.CreatedSeed, nil, 0, now)
	require.NoError(t, pool.Seed(s))
	notifier := &recordingNotifier{}
	g := NewGater(pool, testGates(), notifier, zerolog.Nop())
	return pool, g, notifier
}

func TestPromotesPoolToDisplayOnScoreAndTrades(t *testing.T) {
	now := time.Now().UTC()
	pool, g, notifier := seeded(t, "s1", now)

	// An established rolling score of 50: one update with the ~73.4
	// component score below gives 50*0.7 + 73.4*0.3 ≈ 57, above the display
	// gate of 40.
	require.NoError(t, pool.Mutate("s1", func(s *domain.Strategy) {
		s.Rolling.ExecutedTradeCount = 6
		s.Rolling.Score = decimal.NewFromInt(50)
	}))

	c := Components{
		TotalReturn:  decimal.NewFromFloat(0.5),
		WinRate:      decimal.NewFromFloat(0.8),
		Sharpe:       decimal.NewFromFloat(3),
		MaxDrawdown:  decimal.NewFromFloat(0.01),
		ProfitFactor: decimal.NewFromFloat(3),
	}
	require.NoError(t, g.UpdateScore("s1", c, 20, RegimeNone, now))

	got, _ := pool.Get("s1")
	require.Equal(t, domain.TierDisplay, got.Tier)
	require.Equal(t, 1, notifier.tierChanges)
}

func TestDoesNotPromoteWithoutEnoughTrades(t *testing.T) {
	now := time.Now().UTC()
	pool, g, _ := seeded(t, "s2", now)

	c := Components{
		TotalReturn:  decimal.NewFromFloat(0.5),
		WinRate:      decimal.NewFromFloat(0.8),
		Sharpe:       decimal.NewFromFloat(3),
		MaxDrawdown:  decimal.NewFromFloat(0.01),
		ProfitFactor: decimal.NewFromFloat(3),
	}
	require.NoError(t, g.UpdateScore("s2", c, 20, RegimeNone, now))

	got, _ := pool.Get("s2")
	require.Equal(t, domain.TierPool, got.Tier)
}

func TestPromoteToTradingRequiresParamStability(t *testing.T) {
	now := time.Now().UTC()
	pool, g, _ := seeded(t, "s3", now)
	require.NoError(t, pool.Mutate("s3", func(s *domain.Strategy) {
		s.Tier = domain.TierDisplay
		s.Rolling.Score = decimal.NewFromInt(90)
		s.Rolling.WinRate = decimal.NewFromFloat(0.9)
		s.Rolling.ConsecImprovements = 5
		s.LastParamChangeAt = now
	}))

	ok, err := g.PromoteToTrading("s3", now.Add(time.Minute))
	require.NoError(t, err)
	require.False(t, ok, "params changed too recently, must not promote")

	ok, err = g.PromoteToTrading("s3", now.Add(2*time.Hour))
	require.NoError(t, err)
	require.True(t, ok)

	got, _ := pool.Get("s3")
	require.Equal(t, domain.TierTrading, got.Tier)
}

func TestEliminationAfterSustainedLowScore(t *testing.T) {
	now := time.Now().UTC()
	pool, g, notifier := seeded(t, "s4", now)

	c := Components{
		TotalReturn:  decimal.NewFromFloat(-0.5),
		WinRate:      decimal.Zero,
		Sharpe:       decimal.NewFromFloat(-1),
		MaxDrawdown:  decimal.NewFromFloat(0.5),
		ProfitFactor: decimal.NewFromFloat(0.1),
	}
	require.NoError(t, g.UpdateScore("s4", c, 20, RegimeNone, now))

	got, _ := pool.Get("s4")
	require.True(t, got.Active, "not eliminated on first low reading")

	require.NoError(t, g.UpdateScore("s4", c, 20, RegimeNone, now.Add(48*time.Hour)))

	got, _ = pool.Get("s4")
	require.False(t, got.Active)
	require.Equal(t, 1, notifier.eliminations)
}
