// Package control implements the Control Plane (CP, spec.md §4.13): a
// transport-neutral command/query surface over the rest of the system. The
// HTTP/JSON layer that would wrap this is out of scope (spec.md §1) — Plane
// is a plain Go struct, callable in-process, whose methods return
// {status, data?, message?} per spec.md §6.
package control

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/allocator"
	"github.com/aristath/cryptosentinel/internal/dispatch"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/evolution"
	"github.com/aristath/cryptosentinel/internal/persistence"
	"github.com/aristath/cryptosentinel/internal/status"
	"github.com/aristath/cryptosentinel/internal/strategy"
)

// Status is a response's outcome per spec.md §6.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Response is the uniform shape every CP command/query returns.
type Response struct {
	Status  Status      `json:"status"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message,omitempty"`
}

func ok(data interface{}) Response  { return Response{Status: StatusOK, Data: data} }
func errResp(msg string) Response   { return Response{Status: StatusError, Message: msg} }

// TaskStore is the slice of persistence.Store CP's read projections need.
type TaskStore interface {
	LoadStrategies(ctx context.Context) ([]domain.Strategy, error)
	RecentSignalsAll(ctx context.Context, limit int) ([]domain.TradingSignal, error)
	RecentSignals(ctx context.Context, strategyID string, limit int) ([]domain.TradingSignal, error)
	RecentLogs(ctx context.Context, category persistence.LogCategory, limit int) ([]persistence.OperationLog, error)
	LatestBalances(ctx context.Context) ([]domain.AccountBalance, error)
}

// Plane is the Control Plane. Every method is safe to call concurrently
// and never holds a lock across a call into another component (spec.md
// §4.13's constraint), since it only ever forwards to each collaborator's
// own already-synchronized API.
type Plane struct {
	pool       *strategy.Pool
	store      TaskStore
	sys        *status.Owner
	dispatcher *dispatch.Dispatcher
	scheduler  *evolution.Scheduler
	alloc      *allocator.Allocator

	log zerolog.Logger
}

// New builds a Plane wired to the running engines.
func New(pool *strategy.Pool, store TaskStore, sys *status.Owner, dispatcher *dispatch.Dispatcher, scheduler *evolution.Scheduler, alloc *allocator.Allocator, log zerolog.Logger) *Plane {
	return &Plane{
		pool:       pool,
		store:      store,
		sys:        sys,
		dispatcher: dispatcher,
		scheduler:  scheduler,
		alloc:      alloc,
		log:        log.With().Str("component", "control_plane").Logger(),
	}
}

// StrategySummary is one row of ListStrategies' projection.
type StrategySummary struct {
	ID       string              `json:"id"`
	Name     string              `json:"name"`
	Type     domain.StrategyType `json:"type"`
	Symbol   string              `json:"symbol"`
	Tier     domain.StrategyTier `json:"tier"`
	Enabled  bool                `json:"enabled"`
	Score    decimal.Decimal     `json:"score"`
	WinRate  decimal.Decimal     `json:"win_rate"`
	Trades   int                 `json:"trade_count"`
}

// ListStrategies is spec.md §4.13's list_strategies(tier?, limit, order_by).
// order_by supports "score" (default, descending) and "created_at".
func (p *Plane) ListStrategies(tier *domain.StrategyTier, limit int, orderBy string) Response {
	all := p.pool.List(tier, false)

	switch orderBy {
	case "created_at":
		sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	default:
		sort.Slice(all, func(i, j int) bool { return all[i].Rolling.Score.GreaterThan(all[j].Rolling.Score) })
	}
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}

	out := make([]StrategySummary, 0, len(all))
	for _, s := range all {
		out = append(out, StrategySummary{
			ID: s.ID, Name: s.Name, Type: s.Type, Symbol: s.Symbol, Tier: s.Tier,
			Enabled: s.Enabled, Score: s.Rolling.Score, WinRate: s.Rolling.WinRate,
			Trades: s.Rolling.ExecutedTradeCount,
		})
	}
	return ok(out)
}

// StrategyDetail is get_strategy's full projection: identity, live
// parameters, lineage, and recent signals.
type StrategyDetail struct {
	Strategy      domain.Strategy         `json:"strategy"`
	RecentSignals []domain.TradingSignal  `json:"recent_signals"`
}

// GetStrategy is spec.md §4.13's get_strategy(id).
func (p *Plane) GetStrategy(ctx context.Context, id string) Response {
	s, found := p.pool.Get(id)
	if !found {
		return errResp("strategy not found: " + id)
	}
	signals, err := p.store.RecentSignals(ctx, id, 20)
	if err != nil {
		p.log.Warn().Err(err).Str("strategy_id", id).Msg("failed to load recent signals")
		signals = nil
	}
	return ok(StrategyDetail{Strategy: s, RecentSignals: signals})
}

// ToggleAutoTrading is spec.md §4.13's toggle_auto_trading(bool).
func (p *Plane) ToggleAutoTrading(ctx context.Context, enabled bool) Response {
	p.sys.SetAutoTrading(ctx, enabled)
	return ok(map[string]bool{"auto_trading_enabled": enabled})
}

// EnableEvolution is spec.md §4.13's enable_evolution(bool).
func (p *Plane) EnableEvolution(ctx context.Context, enabled bool) Response {
	p.sys.SetEvolutionEnabled(ctx, enabled)
	return ok(map[string]bool{"evolution_enabled": enabled})
}

// ForceEvolutionCycle is spec.md §4.13's force_evolution_cycle(): runs one
// iteration of ES's slow loop synchronously instead of waiting for its cron
// schedule.
func (p *Plane) ForceEvolutionCycle(ctx context.Context) Response {
	if p.scheduler == nil {
		return errResp("evolution scheduler not wired")
	}
	p.scheduler.RunSlowLoopOnce(ctx)
	return ok(map[string]string{"ran_at": time.Now().UTC().Format(time.RFC3339)})
}

// ForceClosePosition is spec.md §4.13's force_close_position(strategy_id):
// SD emits an immediate close signal at priority for the strategy's open
// cycle, if any.
func (p *Plane) ForceClosePosition(ctx context.Context, strategyID string) Response {
	if p.dispatcher == nil {
		return errResp("dispatcher not wired")
	}
	closed := p.dispatcher.ForceClosePositions(ctx, strategyID, "operator force_close_position")
	if !closed {
		return errResp("no open position for strategy: " + strategyID)
	}
	return ok(map[string]string{"strategy_id": strategyID, "action": "closed"})
}

// EmergencyStop is spec.md §4.13's emergency_stop(): auto_trading is
// disabled first so no further real signal is dispatched while open
// positions are being force-closed, then every open cycle across every
// strategy is closed at priority. Idempotent — calling it again with no
// open positions is a no-op that still reports ok.
func (p *Plane) EmergencyStop(ctx context.Context, reason string) Response {
	p.sys.SetAutoTrading(ctx, false)

	closedIDs := make([]string, 0)
	if p.dispatcher != nil {
		for _, id := range p.dispatcher.OpenStrategyIDs() {
			if p.dispatcher.ForceClosePositions(ctx, id, "emergency_stop: "+reason) {
				closedIDs = append(closedIDs, id)
			}
		}
	}
	return ok(map[string]interface{}{"auto_trading_enabled": false, "closed_positions": closedIDs})
}

// AccountInfo is get_account_info's projection: latest known balance per
// exchange/asset plus the current fund-allocation buckets.
type AccountInfo struct {
	Balances []domain.AccountBalance                        `json:"balances"`
	Buckets  map[domain.OpportunityClass]domain.FundBucket   `json:"fund_buckets"`
}

// GetAccountInfo is spec.md §4.13's get_account_info().
func (p *Plane) GetAccountInfo(ctx context.Context) Response {
	balances, err := p.store.LatestBalances(ctx)
	if err != nil {
		return errResp(err.Error())
	}
	var buckets map[domain.OpportunityClass]domain.FundBucket
	if p.alloc != nil {
		buckets = p.alloc.Snapshot()
	}
	return ok(AccountInfo{Balances: balances, Buckets: buckets})
}

// GetSignals is spec.md §4.13's get_signals(limit): the most recent signals
// across every strategy.
func (p *Plane) GetSignals(ctx context.Context, limit int) Response {
	if limit <= 0 {
		limit = 50
	}
	signals, err := p.store.RecentSignalsAll(ctx, limit)
	if err != nil {
		return errResp(err.Error())
	}
	return ok(signals)
}

// GetLogs is spec.md §4.13's get_logs(category, limit), extended by
// SUPPLEMENTED FEATURE 1 to filter by the operator-log taxonomy (empty
// category means all categories).
func (p *Plane) GetLogs(ctx context.Context, category string, limit int) Response {
	if limit <= 0 {
		limit = 100
	}
	logs, err := p.store.RecentLogs(ctx, persistence.LogCategory(category), limit)
	if err != nil {
		return errResp(err.Error())
	}
	return ok(logs)
}
