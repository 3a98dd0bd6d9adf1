package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/config"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/testexchange"
	"github.com/aristath/cryptosentinel/internal/strategy"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

type fakeMarket struct {
	closes []decimal.Decimal
	ticker domain.Ticker
}

func (f fakeMarket) History(domain.ExchangeID, string, int) []decimal.Decimal { return f.closes }
func (f fakeMarket) Latest(domain.ExchangeID, string) (domain.Ticker, bool)   { return f.ticker, true }

type fakeAutoTrading struct{ enabled bool }

func (f *fakeAutoTrading) AutoTradingEnabled() bool { return f.enabled }

type recordedStore struct {
	signals []domain.TradingSignal
	opens   []domain.TradeCycle
	closes  []domain.TradeCycle
}

func (r *recordedStore) RecordSignal(s domain.TradingSignal)  { r.signals = append(r.signals, s) }
func (r *recordedStore) RecordCycleOpen(c domain.TradeCycle)  { r.opens = append(r.opens, c) }
func (r *recordedStore) RecordCycleClose(c domain.TradeCycle) { r.closes = append(r.closes, c) }

func testGates() config.Gates {
	return config.Gates{
		TradingMinScore:  d("65"),
		ParamRevalHours:  24,
		ParamRevalTrades: 20,
	}
}

func newHFStrategy(id string, score decimal.Decimal, lastParamChange time.Time, validationTrades int) (domain.Strategy, *strategy.Pool) {
	pool := strategy.New(kinds.NewRegistry(), zerolog.Nop())
	rule, _ := pool.Kind(domain.StrategyHighFrequency)
	s := strategy.NewStrategy(id, id, domain.StrategyHighFrequency, "BTC/USDT", rule, domain.CreatedSeed, nil, 0, time.Now().UTC())
	s.Tier = domain.TierTrading
	s.Enabled = true
	s.Rolling.Score = score
	s.LastParamChangeAt = lastParamChange
	s.ValidationTradesSinceChange = validationTrades
	_ = pool.Seed(s)
	return s, pool
}

func TestTradeTypeDecisionRule(t *testing.T) {
	now := time.Now().UTC()
	gates := testGates()

	t.Run("auto trading disabled forces validation", func(t *testing.T) {
		_, pool := newHFStrategy("s1", d("90"), now.Add(-48*time.Hour), 25)
		s, _ := pool.Get("s1")
		disp := &Dispatcher{gates: gates, autoTrade: &fakeAutoTrading{enabled: false}}
		assert.Equal(t, domain.TradeValidation, disp.tradeType(s, now))
	})

	t.Run("recent param change forces validation regardless of score", func(t *testing.T) {
		_, pool := newHFStrategy("s2", d("90"), now.Add(-1*time.Hour), 25)
		s, _ := pool.Get("s2")
		disp := &Dispatcher{gates: gates, autoTrade: &fakeAutoTrading{enabled: true}}
		assert.Equal(t, domain.TradeValidation, disp.tradeType(s, now))
	})

	t.Run("too few validation trades since change forces validation", func(t *testing.T) {
		_, pool := newHFStrategy("s3", d("90"), now.Add(-48*time.Hour), 5)
		s, _ := pool.Get("s3")
		disp := &Dispatcher{gates: gates, autoTrade: &fakeAutoTrading{enabled: true}}
		assert.Equal(t, domain.TradeValidation, disp.tradeType(s, now))
	})

	t.Run("fully qualified trading strategy goes real", func(t *testing.T) {
		_, pool := newHFStrategy("s4", d("70"), now.Add(-48*time.Hour), 25)
		s, _ := pool.Get("s4")
		disp := &Dispatcher{gates: gates, autoTrade: &fakeAutoTrading{enabled: true}}
		assert.Equal(t, domain.TradeReal, disp.tradeType(s, now))
	})

	t.Run("score below trading gate stays validation", func(t *testing.T) {
		_, pool := newHFStrategy("s5", d("64.99"), now.Add(-48*time.Hour), 25)
		s, _ := pool.Get("s5")
		disp := &Dispatcher{gates: gates, autoTrade: &fakeAutoTrading{enabled: true}}
		assert.Equal(t, domain.TradeValidation, disp.tradeType(s, now))
	})
}

func risingCloses() []decimal.Decimal {
	return []decimal.Decimal{d("100"), d("100"), d("100"), d("100"), d("100"), d("100"), d("110")}
}

func fallingCloses() []decimal.Decimal {
	return []decimal.Decimal{d("110"), d("110"), d("110"), d("110"), d("110"), d("110"), d("100")}
}

func newTestDispatcher(t *testing.T, pool *strategy.Pool, market MarketSource, store *recordedStore, autoTrading bool) *Dispatcher {
	t.Helper()
	exPool := exchange.NewPool(zerolog.Nop())
	cap := domain.Exchange{ID: "binance", Symbols: []string{"BTC/USDT"}, TakerFee: d("0.001")}
	adapter := testexchange.New(cap)
	adapter.SetQuote("BTC/USDT", d("100"), d("101"))
	exPool.Register(adapter)

	return New(Config{
		Pool:            pool,
		Market:          market,
		Exchanges:       exPool,
		Store:           store,
		AutoTrading:     &fakeAutoTrading{enabled: autoTrading},
		Gates:           testGates(),
		RealNotional:    d("100"),
		ValidNotional:   d("50"),
		PrimaryExchange: "binance",
		PollInterval:    time.Second,
		Log:             zerolog.Nop(),
	})
}

func TestDispatchRecordsValidationWhenAutoTradingDisabled(t *testing.T) {
	s, pool := newHFStrategy("auto-off", d("90"), time.Now().UTC().Add(-48*time.Hour), 25)
	market := fakeMarket{closes: risingCloses(), ticker: domain.Ticker{Bid: d("100"), Ask: d("101")}}
	store := &recordedStore{}
	disp := newTestDispatcher(t, pool, market, store, false)

	disp.evaluate(context.Background(), s)

	require.Len(t, store.signals, 1)
	assert.Equal(t, domain.TradeValidation, store.signals[0].TradeType)
	assert.True(t, store.signals[0].Executed)
	require.Len(t, store.opens, 1, "a buy signal opens a cycle")
}

func TestDispatchOpensAndClosesCycle(t *testing.T) {
	s, pool := newHFStrategy("cycle", d("90"), time.Now().UTC().Add(-48*time.Hour), 25)
	store := &recordedStore{}

	buyMarket := fakeMarket{closes: risingCloses(), ticker: domain.Ticker{Bid: d("100"), Ask: d("101")}}
	disp := newTestDispatcher(t, pool, buyMarket, store, false)
	disp.evaluate(context.Background(), s)
	require.Len(t, store.opens, 1)
	assert.Equal(t, 1, disp.OpenPositionCount())

	sellMarket := fakeMarket{closes: fallingCloses(), ticker: domain.Ticker{Bid: d("99"), Ask: d("100")}}
	disp.market = sellMarket
	s2, _ := pool.Get("cycle")
	disp.evaluate(context.Background(), s2)

	require.Len(t, store.closes, 1)
	assert.Equal(t, domain.CycleCompleted, store.closes[0].Status)
	assert.Equal(t, 0, disp.OpenPositionCount())
}

func TestPerStrategyConcurrencyDropsQueuedSignal(t *testing.T) {
	s, pool := newHFStrategy("busy", d("90"), time.Now().UTC().Add(-48*time.Hour), 25)
	market := fakeMarket{closes: risingCloses(), ticker: domain.Ticker{Bid: d("100"), Ask: d("101")}}
	store := &recordedStore{}
	disp := newTestDispatcher(t, pool, market, store, false)

	require.True(t, disp.claim(s.ID))
	disp.evaluate(context.Background(), s) // should be dropped, strategy already claimed

	require.Len(t, store.signals, 1)
	assert.NotEmpty(t, store.signals[0].DroppedReason)
}

func TestForceClosePositionsClosesOpenCycle(t *testing.T) {
	s, pool := newHFStrategy("force", d("90"), time.Now().UTC().Add(-48*time.Hour), 25)
	market := fakeMarket{closes: risingCloses(), ticker: domain.Ticker{Bid: d("100"), Ask: d("101")}}
	store := &recordedStore{}
	disp := newTestDispatcher(t, pool, market, store, false)
	disp.evaluate(context.Background(), s)
	require.Equal(t, 1, disp.OpenPositionCount())

	closed := disp.ForceClosePositions(context.Background(), "force", "emergency_stop")
	assert.True(t, closed)
	assert.Equal(t, 0, disp.OpenPositionCount())

	missing := disp.ForceClosePositions(context.Background(), "force", "emergency_stop")
	assert.False(t, missing, "second close on an already-closed strategy reports nothing to do")
}
