// Package dispatch implements the Signal Dispatcher (SD, spec.md §4.11):
// for every trading-tier, enabled strategy, at a fixed poll cadence,
// request the strategy's next signal and decide whether it executes
// against real capital or a paper-trading path. Spec.md calls the
// trade_type rule below "the hardest, most safety-critical rule in the
// system" — it is the single place that decision is made; every other
// component is oblivious to validation-vs-real (spec.md §9: "'simulate vs
// real' branching scattered throughout ... single dispatch in SD").
package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/config"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/simulation"
	"github.com/aristath/cryptosentinel/internal/strategy"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
)

// MarketSource is the slice of marketdata.Service SD needs: current top of
// book to price a signal and recent closes to feed the strategy's rule.
type MarketSource interface {
	Latest(exchangeID domain.ExchangeID, symbol string) (domain.Ticker, bool)
	History(exchangeID domain.ExchangeID, symbol string, limit int) []decimal.Decimal
}

// SignalStore persists signals and trade cycles on PL's async hot path.
type SignalStore interface {
	RecordSignal(domain.TradingSignal)
	RecordCycleOpen(domain.TradeCycle)
	RecordCycleClose(domain.TradeCycle)
}

type noopStore struct{}

func (noopStore) RecordSignal(domain.TradingSignal)   {}
func (noopStore) RecordCycleOpen(domain.TradeCycle)   {}
func (noopStore) RecordCycleClose(domain.TradeCycle)  {}

// AutoTradingSource reports the live value of SystemStatus.auto_trading_enabled.
type AutoTradingSource interface {
	AutoTradingEnabled() bool
}

// Notifier is SD's event sink.
type Notifier interface {
	SignalDispatched(strategyID, signalID string, tradeType domain.TradeType)
	TradeCycleClosed(cycleID string, pnl *decimal.Decimal, status domain.CycleStatus)
}

type noopNotifier struct{}

func (noopNotifier) SignalDispatched(string, string, domain.TradeType)          {}
func (noopNotifier) TradeCycleClosed(string, *decimal.Decimal, domain.CycleStatus) {}

// openPosition tracks one strategy's in-flight cycle, SD-owned state (not
// persisted live — TradeCycle rows are PL's record of it).
type openPosition struct {
	cycle domain.TradeCycle
}

// Dispatcher is the Signal Dispatcher. One instance serves every
// trading-tier strategy; per-strategy dispatch is serialized by the
// inflight map (spec.md §4.11: "at most one in-flight order at a
// time; queued signals are dropped").
type Dispatcher struct {
	pool       *strategy.Pool
	market     MarketSource
	exchanges  *exchange.Pool
	store      SignalStore
	autoTrade  AutoTradingSource
	notify     Notifier

	gates           config.Gates
	realNotional    decimal.Decimal
	validNotional   decimal.Decimal
	primaryExchange domain.ExchangeID
	pollEvery       time.Duration

	mu        sync.Mutex
	inflight  map[string]bool // strategy id -> order currently being placed
	positions map[string]*openPosition

	stop chan struct{}
	done chan struct{}

	log zerolog.Logger
}

// Config configures a Dispatcher.
type Config struct {
	Pool            *strategy.Pool
	Market          MarketSource
	Exchanges       *exchange.Pool
	Store           SignalStore
	AutoTrading     AutoTradingSource
	Notifier        Notifier
	Gates           config.Gates
	RealNotional    decimal.Decimal
	ValidNotional   decimal.Decimal
	PrimaryExchange domain.ExchangeID
	PollInterval    time.Duration
	Log             zerolog.Logger
}

// New creates a Dispatcher. Call Start to begin the dispatch loop.
func New(cfg Config) *Dispatcher {
	if cfg.Store == nil {
		cfg.Store = noopStore{}
	}
	if cfg.Notifier == nil {
		cfg.Notifier = noopNotifier{}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Dispatcher{
		pool:            cfg.Pool,
		market:          cfg.Market,
		exchanges:       cfg.Exchanges,
		store:           cfg.Store,
		autoTrade:       cfg.AutoTrading,
		notify:          cfg.Notifier,
		gates:           cfg.Gates,
		realNotional:    cfg.RealNotional,
		validNotional:   cfg.ValidNotional,
		primaryExchange: cfg.PrimaryExchange,
		pollEvery:       cfg.PollInterval,
		inflight:        make(map[string]bool),
		positions:       make(map[string]*openPosition),
		log:             cfg.Log.With().Str("component", "signal_dispatcher").Logger(),
	}
}

// Start launches the dispatch loop in its own goroutine.
func (d *Dispatcher) Start(ctx context.Context) {
	d.stop = make(chan struct{})
	d.done = make(chan struct{})
	go d.run(ctx)
}

// Stop signals the loop to exit and waits for it to return.
func (d *Dispatcher) Stop() {
	if d.stop == nil {
		return
	}
	close(d.stop)
	<-d.done
}

func (d *Dispatcher) run(ctx context.Context) {
	defer close(d.done)
	ticker := time.NewTicker(d.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-d.stop:
			return
		case <-ticker.C:
			d.tick(ctx)
		}
	}
}

// tick evaluates every enabled trading-tier strategy once.
func (d *Dispatcher) tick(ctx context.Context) {
	tier := domain.TierTrading
	for _, s := range d.pool.List(&tier, true) {
		if !s.Enabled {
			continue
		}
		d.evaluate(ctx, s)
	}
}

// claim marks id as in-flight, returning false (evaluate then records the
// dropped signal) if an order for this strategy is already being placed — spec.md §4.11's
// per-strategy concurrency cap.
func (d *Dispatcher) claim(id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.inflight[id] {
		return false
	}
	d.inflight[id] = true
	return true
}

func (d *Dispatcher) release(id string) {
	d.mu.Lock()
	delete(d.inflight, id)
	d.mu.Unlock()
}

func (d *Dispatcher) evaluate(ctx context.Context, s domain.Strategy) {
	rule, ok := d.pool.Kind(s.Type)
	if !ok {
		return
	}

	closes := d.market.History(d.primaryExchange, s.Symbol, rule.MinHistory()+1)
	ticker, ok := d.market.Latest(d.primaryExchange, s.Symbol)
	if !ok {
		return
	}

	snap := kinds.Snapshot{Symbol: s.Symbol, Closes: closes, Bid: ticker.Bid, Ask: ticker.Ask, Now: time.Now().UTC()}
	intent, _, err := d.pool.GenerateSignalIntent(s.ID, snap)
	if err != nil {
		d.log.Warn().Err(err).Str("strategy_id", s.ID).Msg("signal generation failed")
		return
	}
	if intent == nil {
		return
	}

	if !d.claim(s.ID) {
		d.store.RecordSignal(domain.TradingSignal{
			ID: uuid.NewString(), StrategyID: s.ID, Symbol: s.Symbol, Side: intent.Side,
			Price: intent.Price, Confidence: intent.Confidence, GeneratedAt: snap.Now,
			DroppedReason: "previous signal still in flight",
		})
		return
	}
	defer d.release(s.ID)

	d.dispatch(ctx, s, intent, snap.Now)
}

// tradeType implements spec.md §4.11's decision rule exactly, in order:
//  1. auto_trading disabled -> validation, unconditionally.
//  2. parameters changed too recently, by time or by validation-trade
//     count -> forced validation, regardless of score.
//  3. score at/above the trading gate and tier==trading -> real.
//  4. otherwise -> validation.
func (d *Dispatcher) tradeType(s domain.Strategy, now time.Time) domain.TradeType {
	if !d.autoTrade.AutoTradingEnabled() {
		return domain.TradeValidation
	}

	revalWindow := time.Duration(d.gates.ParamRevalHours) * time.Hour
	sinceChange := now.Sub(s.LastParamChangeAt)
	if sinceChange < revalWindow || s.ValidationTradesSinceChange < d.gates.ParamRevalTrades {
		return domain.TradeValidation
	}

	if s.Tier == domain.TierTrading && s.Rolling.Score.GreaterThanOrEqual(d.gates.TradingMinScore) {
		return domain.TradeReal
	}
	return domain.TradeValidation
}

func (d *Dispatcher) dispatch(ctx context.Context, s domain.Strategy, intent *kinds.Intent, now time.Time) {
	tt := d.tradeType(s, now)
	sig := domain.TradingSignal{
		ID:          uuid.NewString(),
		StrategyID:  s.ID,
		Symbol:      s.Symbol,
		Side:        intent.Side,
		Price:       intent.Price,
		Confidence:  intent.Confidence,
		GeneratedAt: now,
		TradeType:   tt,
		ValidationFlag: tt == domain.TradeValidation,
	}

	var fillPrice decimal.Decimal
	var err error
	if tt == domain.TradeReal {
		fillPrice, err = d.executeReal(ctx, s, intent)
	} else {
		fillPrice = d.simulateFill(intent)
	}
	sig.Executed = err == nil
	if err != nil {
		sig.DroppedReason = err.Error()
	}
	sig.Price = fillPrice

	var qty decimal.Decimal
	if sig.Executed && fillPrice.Sign() > 0 {
		qty = d.notionalFor(tt).Div(fillPrice)
	}
	if !qty.IsPositive() {
		qty = decimal.Zero
	}
	sig.Quantity = qty

	d.store.RecordSignal(sig)
	if err := d.pool.RecordSignalDispatched(s.ID, tt); err != nil {
		d.log.Warn().Err(err).Str("strategy_id", s.ID).Msg("failed to record dispatched signal on strategy")
	}
	d.notify.SignalDispatched(s.ID, sig.ID, tt)

	if sig.Executed {
		d.updateCycle(s.ID, sig)
	}
}

// notionalFor returns the configured per-trade notional for the decided
// trade_type — validation and real paths are sized independently so a
// paper trade never masquerades as the same size as a real one.
func (d *Dispatcher) notionalFor(tt domain.TradeType) decimal.Decimal {
	if tt == domain.TradeReal {
		return d.realNotional
	}
	return d.validNotional
}

// simulateFill prices a validation signal at the current quote with
// simulation.DefaultCosts' slippage applied — spec.md §4.11: "simulated
// fill at current bid/ask with modeled slippage".
func (d *Dispatcher) simulateFill(intent *kinds.Intent) decimal.Decimal {
	slip := simulation.DefaultCosts.SlippagePct
	if intent.Side == domain.SideBuy {
		return intent.Price.Mul(decimal.NewFromInt(1).Add(slip))
	}
	return intent.Price.Mul(decimal.NewFromInt(1).Sub(slip))
}

// executeReal places a real market order against the primary exchange.
func (d *Dispatcher) executeReal(ctx context.Context, s domain.Strategy, intent *kinds.Intent) (decimal.Decimal, error) {
	adapter, err := d.exchanges.Get(d.primaryExchange)
	if err != nil {
		return decimal.Zero, err
	}
	callCtx, cancel := exchange.WithCallTimeout(ctx)
	defer cancel()

	qty := d.realNotional.Div(intent.Price)
	var res exchange.OrderResult
	if intent.Side == domain.SideBuy {
		res, err = adapter.MarketBuy(callCtx, s.Symbol, qty)
	} else {
		res, err = adapter.MarketSell(callCtx, s.Symbol, qty)
	}
	if err != nil {
		return decimal.Zero, err
	}
	return res.FilledPrice, nil
}

// updateCycle opens a new TradeCycle on a buy with no open position, or
// closes the open one on an opposing signal, computing realized P&L.
func (d *Dispatcher) updateCycle(strategyID string, sig domain.TradingSignal) {
	d.mu.Lock()
	pos, open := d.positions[strategyID]
	d.mu.Unlock()

	if !open {
		if sig.Side != domain.SideBuy {
			return // nothing to close
		}
		cycle := domain.TradeCycle{
			CycleID:      uuid.NewString(),
			StrategyID:   strategyID,
			OpenSignalID: sig.ID,
			OpenTime:     sig.GeneratedAt,
			BuyPrice:     sig.Price,
			Quantity:     sig.Quantity,
			Status:       domain.CycleOpen,
			TradeType:    sig.TradeType,
		}
		d.mu.Lock()
		d.positions[strategyID] = &openPosition{cycle: cycle}
		d.mu.Unlock()
		d.store.RecordCycleOpen(cycle)
		return
	}

	if sig.Side != domain.SideSell {
		return // already long, ignore a second buy until closed
	}

	d.closeCycle(strategyID, pos, sig, domain.CycleCompleted, "")
}

func (d *Dispatcher) closeCycle(strategyID string, pos *openPosition, sig domain.TradingSignal, status domain.CycleStatus, reason string) {
	cycle := pos.cycle
	closeTime := sig.GeneratedAt
	cycle.CloseSignalID = sig.ID
	cycle.CloseTime = &closeTime
	sellPrice := sig.Price
	cycle.SellPrice = &sellPrice
	cycle.Status = status
	cycle.AbandonReason = reason

	if status == domain.CycleCompleted {
		pnl := sellPrice.Sub(cycle.BuyPrice).Mul(cycle.Quantity)
		cycle.PnL = &pnl
		holding := int(closeTime.Sub(cycle.OpenTime).Minutes())
		cycle.HoldingMinutes = &holding
	}

	d.mu.Lock()
	delete(d.positions, strategyID)
	d.mu.Unlock()

	d.store.RecordCycleClose(cycle)
	d.notify.TradeCycleClosed(cycle.CycleID, cycle.PnL, cycle.Status)
}

// ForceClosePositions closes strategyID's open cycle immediately at the
// current quote, for CP's force_close_position and emergency_stop
// commands (spec.md §4.13). Returns false if the strategy has no open
// position.
func (d *Dispatcher) ForceClosePositions(ctx context.Context, strategyID, reason string) bool {
	d.mu.Lock()
	pos, open := d.positions[strategyID]
	d.mu.Unlock()
	if !open {
		return false
	}

	s, ok := d.pool.Get(strategyID)
	if !ok {
		return false
	}
	ticker, ok := d.market.Latest(d.primaryExchange, s.Symbol)
	if !ok {
		return false
	}

	now := time.Now().UTC()
	price := ticker.Bid
	var err error
	if pos.cycle.TradeType == domain.TradeReal {
		adapter, aerr := d.exchanges.Get(d.primaryExchange)
		if aerr == nil {
			callCtx, cancel := exchange.WithCallTimeout(ctx)
			res, serr := adapter.MarketSell(callCtx, s.Symbol, pos.cycle.Quantity)
			cancel()
			if serr == nil {
				price = res.FilledPrice
			} else {
				err = serr
			}
		}
	}

	closeSig := domain.TradingSignal{
		ID: uuid.NewString(), StrategyID: strategyID, Symbol: s.Symbol, Side: domain.SideSell,
		Price: price, Quantity: pos.cycle.Quantity, GeneratedAt: now, Executed: err == nil,
		TradeType: pos.cycle.TradeType,
	}
	d.store.RecordSignal(closeSig)

	status := domain.CycleCompleted
	if err != nil {
		status = domain.CycleAbandoned
		reason = "force-close failed: " + err.Error()
	}
	d.closeCycle(strategyID, pos, closeSig, status, reason)
	return true
}

// OpenPositionCount reports how many strategies currently hold an open
// cycle, for CP diagnostics.
func (d *Dispatcher) OpenPositionCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.positions)
}

// OpenStrategyIDs returns the strategy ids with an open cycle, for
// emergency_stop to iterate over.
func (d *Dispatcher) OpenStrategyIDs() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ids := make([]string, 0, len(d.positions))
	for id := range d.positions {
		ids = append(ids, id)
	}
	return ids
}
