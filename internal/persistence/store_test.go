package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/database"
	"github.com/aristath/cryptosentinel/internal/domain"
)

func setupStore(t *testing.T) *Store {
	db, err := database.New(database.Config{Path: ":memory:", Profile: database.ProfileStandard, Name: "trading"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return New(db, 16, zerolog.Nop())
}

func testStrategy(id string) domain.Strategy {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	return domain.Strategy{
		ID:     id,
		Name:   "momentum-" + id,
		Type:   domain.StrategyMomentum,
		Symbol: "BTC/USDT",
		Tier:   domain.TierPool,
		Enabled: true,
		Active:  true,
		Parameters: domain.StrategyParameters{
			"rsi_period": &domain.Param{
				Name: "rsi_period", Type: domain.ParamInt,
				Value: decimal.NewFromInt(14), Min: decimal.NewFromInt(2), Max: decimal.NewFromInt(50), Step: decimal.NewFromInt(1),
				MutationRate: decimal.NewFromFloat(0.2),
				MarketAdaptation: domain.MarketAdaptation{"volatile": decimal.NewFromFloat(1.5)},
			},
		},
		LastParamChangeAt: now,
		CreatedAt:         now,
	}
}

func TestSaveAndLoadStrategyRoundTrips(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	st := testStrategy("strat-1")
	require.NoError(t, s.SaveStrategy(ctx, st))

	loaded, err := s.LoadStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)

	got := loaded[0]
	assert.Equal(t, st.ID, got.ID)
	assert.Equal(t, st.Type, got.Type)
	assert.True(t, st.Parameters["rsi_period"].Value.Equal(got.Parameters["rsi_period"].Value))
	lo, hi := got.Parameters["rsi_period"].EffectiveRange("volatile")
	wantLo, wantHi := st.Parameters["rsi_period"].EffectiveRange("volatile")
	assert.True(t, lo.Equal(wantLo))
	assert.True(t, hi.Equal(wantHi))
}

func TestSaveStrategyUpsertOverwritesTier(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	st := testStrategy("strat-2")
	require.NoError(t, s.SaveStrategy(ctx, st))

	st.Tier = domain.TierTrading
	require.NoError(t, s.SaveStrategy(ctx, st))

	loaded, err := s.LoadStrategies(ctx)
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.Equal(t, domain.TierTrading, loaded[0].Tier)
}

func TestRecordSignalIsAsyncAndDrains(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	sig := domain.TradingSignal{
		ID: "sig-1", StrategyID: "strat-1", Symbol: "BTC/USDT", Side: domain.SideBuy,
		Price: decimal.NewFromInt(50000), Quantity: decimal.NewFromFloat(0.01), Confidence: decimal.NewFromFloat(0.8),
		GeneratedAt: time.Now().UTC(), TradeType: domain.TradeValidation,
	}
	s.RecordSignal(sig)

	require.Eventually(t, func() bool {
		var count int
		_ = s.conn().QueryRowContext(ctx, "SELECT COUNT(*) FROM trading_signals WHERE id = ?", sig.ID).Scan(&count)
		return count == 1
	}, time.Second, 5*time.Millisecond)
}

func TestWriterDropsOldestNonCriticalUnderPressure(t *testing.T) {
	w := NewWriter(2, zerolog.Nop())
	done := make(chan struct{})

	// Queue four non-critical jobs against a limit of 2 before the drain
	// loop ever runs: each submit past the limit evicts the oldest still
	// queued, so only the last two jobs ("third", "fourth") survive.
	w.Submit(false, "first", func(ctx context.Context) error { return nil })
	w.Submit(false, "second", func(ctx context.Context) error { return nil })
	w.Submit(false, "third", func(ctx context.Context) error { return nil })
	w.Submit(false, "fourth", func(ctx context.Context) error {
		close(done)
		return nil
	})

	assert.Equal(t, int64(2), w.Dropped())
	assert.Equal(t, 2, w.QueueLen())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("writer never drained remaining jobs")
	}
}

func TestWriterNeverDropsCriticalJobs(t *testing.T) {
	w := NewWriter(1, zerolog.Nop())

	w.Submit(true, "critical-1", func(ctx context.Context) error { return nil })
	w.Submit(true, "critical-2", func(ctx context.Context) error { return nil })

	assert.Equal(t, int64(0), w.Dropped())
	assert.Equal(t, 2, w.QueueLen(), "critical jobs grow past the configured bound rather than drop")
}

func TestSaveTaskRoundTripsViaTaskStoreInterface(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	task := domain.ArbitrageTask{
		ID: "task-1", Class: domain.ClassCrossExchange,
		Opportunity: domain.ArbitrageOpportunity{
			Class: domain.ClassCrossExchange, NetPct: decimal.NewFromFloat(0.004),
			Symbol: "BTC/USDT", BuyExchange: "binance", SellExchange: "okx",
			BuyPrice: decimal.NewFromInt(50000), SellPrice: decimal.NewFromInt(50300),
		},
		ReservedCapital:  decimal.NewFromInt(100),
		ReservationToken: "tok-1",
		State:            domain.TaskExecuting,
		CreatedAt:        time.Now().UTC(),
		UpdatedAt:        time.Now().UTC(),
	}
	task.AppendStep("buy_leg_1", true, "filled", "")

	require.NoError(t, s.SaveTask(ctx, task))

	open, err := s.OpenTasks(ctx)
	require.NoError(t, err)
	require.Len(t, open, 1)
	assert.Equal(t, domain.TaskExecuting, open[0].State)
	assert.Len(t, open[0].StepLog, 1)
	assert.Equal(t, "buy_leg_1", open[0].StepLog[0].Step)

	task.State = domain.TaskCompleted
	task.RealizedPnL = decimal.NewFromFloat(1.5)
	require.NoError(t, s.SaveTask(ctx, task))

	open, err = s.OpenTasks(ctx)
	require.NoError(t, err)
	assert.Len(t, open, 0, "completed task is no longer open")
}

func TestRecordEvolutionRoundTripsParamDiff(t *testing.T) {
	s := setupStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	defer cancel()

	rec := domain.EvolutionRecord{
		StrategyID: "strat-1", Generation: 1, Cycle: 3, Action: domain.ActionMutate,
		ScoreBefore: decimal.NewFromInt(40), ScoreAfter: decimal.NewFromInt(55),
		OldParams: testStrategy("strat-1").Parameters,
		NewParams: testStrategy("strat-1").Parameters,
		ParameterDiff: []domain.ParamDiff{
			{Name: "rsi_period", OldValue: decimal.NewFromInt(14), NewValue: decimal.NewFromInt(20)},
		},
		At: time.Now().UTC(),
	}
	s.RecordEvolution(rec)

	require.Eventually(t, func() bool {
		hist, err := s.EvolutionHistory(ctx, "strat-1")
		return err == nil && len(hist) == 1
	}, time.Second, 5*time.Millisecond)

	hist, err := s.EvolutionHistory(ctx, "strat-1")
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, domain.ActionMutate, hist[0].Action)

	inverse := hist[0].Invert()
	require.Len(t, inverse, 1)
	assert.True(t, inverse[0].OldValue.Equal(decimal.NewFromInt(20)))
	assert.True(t, inverse[0].NewValue.Equal(decimal.NewFromInt(14)))
}

func TestSystemStatusRoundTrips(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	st, err := s.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthOK, st.Health, "schema seeds the singleton row with health=ok")

	st.Health = domain.HealthOK
	st.AutoTradingEnabled = true
	st.TotalStrategies = 5
	st.LastUpdate = time.Now().UTC()
	require.NoError(t, s.SaveStatus(ctx, st))

	reloaded, err := s.LoadStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, domain.HealthOK, reloaded.Health)
	assert.True(t, reloaded.AutoTradingEnabled)
	assert.Equal(t, 5, reloaded.TotalStrategies)
}
