package control

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/events"
	"github.com/aristath/cryptosentinel/internal/persistence"
	"github.com/aristath/cryptosentinel/internal/status"
	"github.com/aristath/cryptosentinel/internal/strategy"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

type fakeTaskStore struct {
	strategies []domain.Strategy
	signals    []domain.TradingSignal
	logs       []persistence.OperationLog
	balances   []domain.AccountBalance
}

func (f *fakeTaskStore) LoadStrategies(ctx context.Context) ([]domain.Strategy, error) {
	return f.strategies, nil
}
func (f *fakeTaskStore) RecentSignalsAll(ctx context.Context, limit int) ([]domain.TradingSignal, error) {
	return f.signals, nil
}
func (f *fakeTaskStore) RecentSignals(ctx context.Context, strategyID string, limit int) ([]domain.TradingSignal, error) {
	var out []domain.TradingSignal
	for _, s := range f.signals {
		if s.StrategyID == strategyID {
			out = append(out, s)
		}
	}
	return out, nil
}
func (f *fakeTaskStore) RecentLogs(ctx context.Context, category persistence.LogCategory, limit int) ([]persistence.OperationLog, error) {
	return f.logs, nil
}
func (f *fakeTaskStore) LatestBalances(ctx context.Context) ([]domain.AccountBalance, error) {
	return f.balances, nil
}

func d(s string) decimal.Decimal { v, _ := decimal.NewFromString(s); return v }

func seedStrategy(pool *strategy.Pool, id string, score decimal.Decimal, tier domain.StrategyTier) domain.Strategy {
	rule, _ := pool.Kind(domain.StrategyMomentum)
	s := strategy.NewStrategy(id, id, domain.StrategyMomentum, "BTC/USDT", rule, domain.CreatedSeed, nil, 0, time.Now().UTC())
	s.Tier = tier
	s.Enabled = true
	s.Rolling.Score = score
	_ = pool.Seed(s)
	return s
}

func newPlane(store TaskStore) (*Plane, *strategy.Pool, *status.Owner) {
	pool := strategy.New(kinds.NewRegistry(), zerolog.Nop())
	mgr := events.NewManager(events.NewBus(), zerolog.Nop())
	sys := status.New(noopStatusStore{}, mgr, zerolog.Nop())
	p := New(pool, store, sys, nil, nil, nil, zerolog.Nop())
	return p, pool, sys
}

type noopStatusStore struct{}

func (noopStatusStore) SaveStatus(ctx context.Context, st domain.SystemStatus) error { return nil }
func (noopStatusStore) LoadStatus(ctx context.Context) (domain.SystemStatus, error) {
	return domain.SystemStatus{}, nil
}

func TestListStrategiesOrdersByScoreDescending(t *testing.T) {
	store := &fakeTaskStore{}
	p, pool, _ := newPlane(store)
	seedStrategy(pool, "low", d("40"), domain.TierTrading)
	seedStrategy(pool, "high", d("90"), domain.TierTrading)

	resp := p.ListStrategies(nil, 10, "score")
	require.Equal(t, StatusOK, resp.Status)
	rows := resp.Data.([]StrategySummary)
	require.Len(t, rows, 2)
	assert.Equal(t, "high", rows[0].ID)
	assert.Equal(t, "low", rows[1].ID)
}

func TestGetStrategyNotFound(t *testing.T) {
	p, _, _ := newPlane(&fakeTaskStore{})
	resp := p.GetStrategy(context.Background(), "missing")
	assert.Equal(t, StatusError, resp.Status)
}

func TestToggleAutoTradingFlipsSystemStatus(t *testing.T) {
	p, _, sys := newPlane(&fakeTaskStore{})
	resp := p.ToggleAutoTrading(context.Background(), true)
	assert.Equal(t, StatusOK, resp.Status)
	assert.True(t, sys.AutoTradingEnabled())
}

func TestEnableEvolutionFlipsSystemStatus(t *testing.T) {
	p, _, sys := newPlane(&fakeTaskStore{})
	p.EnableEvolution(context.Background(), false)
	assert.False(t, sys.EvolutionEnabled())
}

func TestForceEvolutionCycleWithoutSchedulerErrors(t *testing.T) {
	p, _, _ := newPlane(&fakeTaskStore{})
	resp := p.ForceEvolutionCycle(context.Background())
	assert.Equal(t, StatusError, resp.Status)
}

func TestForceClosePositionWithoutDispatcherErrors(t *testing.T) {
	p, _, _ := newPlane(&fakeTaskStore{})
	resp := p.ForceClosePosition(context.Background(), "some-id")
	assert.Equal(t, StatusError, resp.Status)
}

func TestEmergencyStopDisablesAutoTradingEvenWithoutDispatcher(t *testing.T) {
	p, _, sys := newPlane(&fakeTaskStore{})
	sys.SetAutoTrading(context.Background(), true)

	resp := p.EmergencyStop(context.Background(), "test")
	assert.Equal(t, StatusOK, resp.Status)
	assert.False(t, sys.AutoTradingEnabled())
	data := resp.Data.(map[string]interface{})
	assert.Empty(t, data["closed_positions"])
}

func TestGetAccountInfoReturnsBalancesWithoutAllocator(t *testing.T) {
	store := &fakeTaskStore{balances: []domain.AccountBalance{{ExchangeID: "binance", Asset: "USDT", Total: d("1000")}}}
	p, _, _ := newPlane(store)

	resp := p.GetAccountInfo(context.Background())
	require.Equal(t, StatusOK, resp.Status)
	info := resp.Data.(AccountInfo)
	require.Len(t, info.Balances, 1)
	assert.Equal(t, "USDT", info.Balances[0].Asset)
}

func TestGetSignalsDefaultsLimit(t *testing.T) {
	store := &fakeTaskStore{signals: []domain.TradingSignal{{ID: "s1"}}}
	p, _, _ := newPlane(store)

	resp := p.GetSignals(context.Background(), 0)
	require.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.Data.([]domain.TradingSignal), 1)
}

func TestGetLogsFiltersByCategory(t *testing.T) {
	store := &fakeTaskStore{logs: []persistence.OperationLog{{Category: persistence.LogTrading, Message: "hi"}}}
	p, _, _ := newPlane(store)

	resp := p.GetLogs(context.Background(), "trading", 10)
	require.Equal(t, StatusOK, resp.Status)
	assert.Len(t, resp.Data.([]persistence.OperationLog), 1)
}
