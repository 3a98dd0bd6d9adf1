// Package main is the entry point for Cryptosentinel, a multi-exchange
// crypto trading platform combining a cross-exchange/triangular Arbitrage
// Engine with a Strategy Evolution & Trading Engine. This file is the
// composition root: every collaborator is constructed here and wired by
// explicit constructor injection, never through a package-level singleton
// or an init() side effect.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/allocator"
	"github.com/aristath/cryptosentinel/internal/arbitrage"
	"github.com/aristath/cryptosentinel/internal/config"
	"github.com/aristath/cryptosentinel/internal/control"
	"github.com/aristath/cryptosentinel/internal/database"
	"github.com/aristath/cryptosentinel/internal/dispatch"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/events"
	"github.com/aristath/cryptosentinel/internal/evolution"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/binance"
	"github.com/aristath/cryptosentinel/internal/exchange/bitget"
	"github.com/aristath/cryptosentinel/internal/exchange/okx"
	"github.com/aristath/cryptosentinel/internal/marketdata"
	"github.com/aristath/cryptosentinel/internal/opportunity"
	"github.com/aristath/cryptosentinel/internal/persistence"
	"github.com/aristath/cryptosentinel/internal/scoring"
	"github.com/aristath/cryptosentinel/internal/simulation"
	"github.com/aristath/cryptosentinel/internal/status"
	"github.com/aristath/cryptosentinel/internal/strategy"
	"github.com/aristath/cryptosentinel/internal/strategy/kinds"
	"github.com/aristath/cryptosentinel/pkg/logger"
)

// writeQueueLimit bounds PL's async hot-path write queue (spec.md §4.12:
// "bounded buffer; overflow drops the oldest non-critical records").
const writeQueueLimit = 4096

// bucketPersistInterval is how often FA's buckets are snapshotted to PL —
// infrequent because Reserve/Release already happen at opportunity/task
// cadence, not the signal hot path.
const bucketPersistInterval = time.Minute

// balanceReconcileWarnThreshold is the absolute per-asset total-balance
// delta that triggers a warn-level log line during startup reconciliation
// (SPEC_FULL.md's balance_display_fix.py supplement used a fixed 0.01 USDT
// threshold; this carries the same fixed-absolute-delta convention rather
// than a relative one, since a relative threshold breaks down near a
// near-zero prior balance).
var balanceReconcileWarnThreshold = decimal.NewFromFloat(0.01)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	logger.SetGlobalLogger(log)
	log.Info().Msg("starting cryptosentinel")

	db, err := database.New(database.Config{Path: cfg.Persistence.DSN, Profile: database.ProfileLedger, Name: "trading"})
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate database")
	}

	store := persistence.New(db, writeQueueLimit, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storeDone := make(chan struct{})
	go func() {
		store.Run(ctx)
		close(storeDone)
	}()

	bus := events.NewBus()
	mgr := events.NewManager(bus, log)

	sys := status.New(store, mgr, log)
	if err := sys.LoadPersisted(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted system status, starting from defaults")
	}

	// --- Exchange Adapter pool -------------------------------------------
	pool := exchange.NewPool(log)
	registerExchanges(ctx, pool, store, cfg, log)
	pool.Start()
	reconcileBalances(ctx, pool, store, log)

	// --- Market Data Service ----------------------------------------------
	mds := marketdata.New(marketdata.Config{
		Pool:         pool,
		Broker:       marketdata.NewLocalBroker(),
		Symbols:      cfg.Symbols,
		PollInterval: time.Duration(cfg.Intervals.MarketPollSec) * time.Second,
		Log:          log,
	})
	if err := mds.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start market data service")
	}

	// --- Fund Allocator -----------------------------------------------------
	alloc := allocator.New([]allocator.ClassConfig{
		{
			Class:          domain.ClassCrossExchange,
			InitialCapital: cfg.FundTotal.Mul(cfg.FundAllocation.CrossExchange),
			Limits:         allocator.ClassLimits{MinShare: decimal.NewFromFloat(0.2), MaxShare: decimal.NewFromFloat(0.8)},
		},
		{
			Class:          domain.ClassTriangular,
			InitialCapital: cfg.FundTotal.Mul(cfg.FundAllocation.Triangular),
			Limits:         allocator.ClassLimits{MinShare: decimal.NewFromFloat(0.2), MaxShare: decimal.NewFromFloat(0.8)},
		},
	}, log)
	if buckets, err := store.LoadBuckets(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to load persisted fund buckets, starting from configured split")
	} else if len(buckets) > 0 {
		alloc.Restore(buckets)
	}
	go persistBucketsPeriodically(ctx, alloc, store, bucketPersistInterval)

	// --- Opportunity Detector ---------------------------------------------
	detector := opportunity.New(opportunity.Config{
		Exchanges:   exchangeCapabilities(pool, cfg.Symbols),
		Symbols:     cfg.Symbols,
		BaseAsset:   "USDT",
		MinCrossPct: cfg.MinCrossPct,
		MinTriPct:   cfg.MinTriangularPct,
		Log:         log,
	})

	// --- Arbitrage Executor -------------------------------------------------
	ax := arbitrage.New(arbitrage.Config{
		Pool:                 pool,
		Allocator:            alloc,
		Store:                store,
		TransferPollInterval: time.Duration(cfg.Intervals.TransferPollSec) * time.Second,
		Log:                  log,
	})
	resumeOpenTasks(ctx, ax, store, log)

	// Intake is OD and AX "connected by a channel of opportunities"
	// (spec.md §9), rather than one monitor thread that both polls and
	// trades.
	intake := arbitrage.NewIntake(ax, cfg.Arbitrage.TaskNotional, cfg.Arbitrage.MaxInFlight, log)
	go runOpportunityLoop(ctx, mds, detector, intake, mgr)

	// --- Strategy Pool + kinds ----------------------------------------------
	registry := kinds.NewRegistry()
	strategies := strategy.New(registry, log)
	seedStrategies(ctx, strategies, registry, store, cfg.Symbols, log)

	// --- Simulation Engine --------------------------------------------------
	sim := simulation.New(simulation.DefaultCosts)

	// --- Scoring & Gating ----------------------------------------------------
	gater := scoring.NewGater(strategies, cfg.Gates, &tierNotifier{mgr: mgr}, log)

	// --- Evolution Scheduler --------------------------------------------
	primaryExchange := domain.ExchangeID(cfg.Dispatch.PrimaryExchange)
	// barsPerDay converts the configured market-poll cadence into "bars per
	// simulated day" so SE's replay window (§4.7's "default 3 days") lines
	// up with however densely MDS actually samples the market.
	barsPerDay := int((24 * time.Hour) / (time.Duration(cfg.Intervals.MarketPollSec) * time.Second))
	if barsPerDay <= 0 {
		barsPerDay = 1
	}
	replayBars := cfg.Simulation.DaysPerRun * barsPerDay

	regimeSource := evolution.NewMDSRegimeSource(mds, primaryExchange, 0)
	scheduler := evolution.New(strategies, sim, gater, mds, primaryExchange, barsPerDay, replayBars, log,
		evolution.WithRecorder(store), evolution.WithRegimeSource(regimeSource))
	fastSpec := fmt.Sprintf("0 */%d * * * *", maxInt1(cfg.Intervals.FastEvolutionMin))
	slowSpec := fmt.Sprintf("0 0 */%d * * *", maxInt1(cfg.Intervals.SlowEvolutionHr))
	if err := scheduler.Start(ctx, fastSpec, slowSpec); err != nil {
		log.Fatal().Err(err).Msg("failed to start evolution scheduler")
	}

	// --- Signal Dispatcher --------------------------------------------------
	dispatcher := dispatch.New(dispatch.Config{
		Pool:            strategies,
		Market:          mds,
		Exchanges:       pool,
		Store:           store,
		AutoTrading:     sys,
		Notifier:        &dispatchNotifier{mgr: mgr},
		Gates:           cfg.Gates,
		RealNotional:    cfg.Dispatch.RealNotional,
		ValidNotional:   cfg.Dispatch.ValidationNotional,
		PrimaryExchange: primaryExchange,
		PollInterval:    cfg.Dispatch.PollInterval,
		Log:             log,
	})
	dispatcher.Start(ctx)

	// --- Control Plane -------------------------------------------------------
	_ = control.New(strategies, store, sys, dispatcher, scheduler, alloc, log)

	go sys.Run(ctx, 30*time.Second)

	log.Info().Int("symbols", len(cfg.Symbols)).Msg("cryptosentinel running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutdown signal received")

	// Shutdown in reverse dependency order: stop things that generate new
	// work before stopping the things that record it, and flush PL last so
	// every in-flight write from the loops above lands before exit.
	cancel()
	dispatcher.Stop()
	scheduler.Stop()
	mds.Stop()
	pool.Stop()

	select {
	case <-storeDone:
	case <-time.After(10 * time.Second):
		log.Warn().Msg("persistence writer did not drain within shutdown timeout")
	}

	log.Info().Msg("cryptosentinel stopped")
}

// registerExchanges constructs one adapter per configured, enabled
// exchange and registers it with pool, persisting its identity/fee record
// via store.SaveExchange (spec.md §4.1: "Created at boot from
// configuration and immutable thereafter").
func registerExchanges(ctx context.Context, pool *exchange.Pool, store *persistence.Store, cfg *config.Config, log zerolog.Logger) {
	for name, ec := range cfg.Exchanges {
		if !ec.Enabled {
			continue
		}

		var adapter exchange.Adapter
		switch name {
		case "binance":
			adapter = binance.New(ec.APIKey, ec.APISecret, ec.RateLimitPerSec, log)
		case "okx":
			adapter = okx.New(ec.APIKey, ec.APISecret, ec.Passphrase, ec.RateLimitPerSec, log)
		case "bitget":
			adapter = bitget.New(ec.APIKey, ec.APISecret, ec.Passphrase, ec.RateLimitPerSec, log)
		default:
			log.Warn().Str("exchange", name).Msg("no adapter registered for configured exchange")
			continue
		}

		pool.Register(adapter)
		if err := store.SaveExchange(ctx, adapter.Capability()); err != nil {
			log.Warn().Err(err).Str("exchange", name).Msg("failed to persist exchange capability record")
		}
		log.Info().Str("exchange", name).Msg("exchange adapter registered")
	}
}

// exchangeCapabilities returns every registered adapter's capability
// record with Symbols filled in from the deployment's configured symbol
// list. Adapter constructors don't take a symbol list themselves (a venue
// does not define which symbols this deployment trades), so OD's
// triangular scan — which walks Exchange.Symbols directly — would
// otherwise see nothing to work with.
func exchangeCapabilities(pool *exchange.Pool, symbols []string) []domain.Exchange {
	all := pool.All()
	out := make([]domain.Exchange, 0, len(all))
	for _, adapter := range all {
		capability := adapter.Capability()
		capability.Symbols = symbols
		out = append(out, capability)
	}
	return out
}

// reconcileBalances implements SPEC_FULL.md's startup account-balance
// reconciliation supplement (grounded on original_source/
// balance_display_fix.py): before any engine starts, fetch each registered
// exchange's balance once and compare each asset's total against the last
// persisted AccountBalance snapshot, logging at warn on a delta exceeding
// balanceReconcileWarnThreshold (a deposit/withdrawal or manual transfer
// while the process was down), then records the freshly observed balance
// as the new baseline regardless.
func reconcileBalances(ctx context.Context, pool *exchange.Pool, store *persistence.Store, log zerolog.Logger) {
	previous, err := store.LatestBalances(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted balances for startup reconciliation")
		previous = nil
	}
	priorByKey := make(map[domain.BalanceKey]domain.AccountBalance, len(previous))
	for _, b := range previous {
		priorByKey[domain.BalanceKey{ExchangeID: b.ExchangeID, Asset: b.Asset}] = b
	}

	for id, adapter := range pool.All() {
		callCtx, cancel := exchange.WithCallTimeout(ctx)
		balances, err := adapter.FetchBalance(callCtx)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("exchange", string(id)).Msg("failed to fetch balance for startup reconciliation")
			continue
		}

		now := time.Now().UTC()
		for asset, bal := range balances {
			current := domain.AccountBalance{
				ExchangeID: id,
				Asset:      asset,
				Total:      bal.Total,
				Available:  bal.Available,
				Locked:     bal.Locked,
				ObservedAt: now,
			}
			if prior, ok := priorByKey[domain.BalanceKey{ExchangeID: id, Asset: asset}]; ok {
				delta := current.Total.Sub(prior.Total).Abs()
				if delta.GreaterThan(balanceReconcileWarnThreshold) {
					log.Warn().
						Str("exchange", string(id)).
						Str("asset", asset).
						Str("previous_total", prior.Total.String()).
						Str("current_total", current.Total.String()).
						Msg("startup balance reconciliation found a large delta since last run")
				}
			}
			store.RecordBalance(current)
		}
	}
}

// resumeOpenTasks reattaches every non-terminal arbitrage task PL recorded
// from a prior run (spec.md §5: "AX tasks in awaiting_transfer persist
// their state and return; they resume after restart via PL replay").
func resumeOpenTasks(ctx context.Context, ax *arbitrage.Executor, store *persistence.Store, log zerolog.Logger) {
	tasks, err := store.OpenTasks(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load open arbitrage tasks for resume")
		return
	}
	for _, task := range tasks {
		if _, err := ax.Resume(ctx, task); err != nil {
			log.Error().Err(err).Str("task_id", task.ID).Msg("failed to resume arbitrage task")
		}
	}
	if len(tasks) > 0 {
		log.Info().Int("count", len(tasks)).Msg("resumed open arbitrage tasks")
	}
}

// runOpportunityLoop scans for arbitrage opportunities on every MDS
// publish and hands the ranked list to intake — the channel of
// opportunities connecting OD and AX (spec.md §9).
func runOpportunityLoop(ctx context.Context, mds *marketdata.Service, detector *opportunity.Detector, intake *arbitrage.Intake, mgr *events.Manager) {
	notifications, unsubscribe := mds.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-notifications:
			if !ok {
				return
			}
			opps := detector.Scan(ctx, mds.Latest)
			if len(opps) == 0 {
				continue
			}
			top := opps[0]
			mgr.Emit(&events.OpportunityFoundData{Class: string(top.Class), Symbol: top.Symbol, NetPct: top.NetPct.String()}, "opportunity_detector")
			intake.Consider(ctx, opps)
		}
	}
}

// seedStrategies restores the pool from PL, or — on a brand-new
// deployment with no persisted strategies — seeds one strategy per
// registered kind per configured symbol so SP starts non-empty (spec.md
// §4.6 assumes an existing population for ES's slow loop to evolve).
func seedStrategies(ctx context.Context, pool *strategy.Pool, registry kinds.Registry, store *persistence.Store, symbols []string, log zerolog.Logger) {
	existing, err := store.LoadStrategies(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to load persisted strategies")
	}
	if len(existing) > 0 {
		for _, s := range existing {
			if err := pool.Seed(s); err != nil {
				log.Error().Err(err).Str("strategy_id", s.ID).Msg("failed to seed persisted strategy into pool")
			}
		}
		log.Info().Int("count", len(existing)).Msg("restored strategies from persistence")
		return
	}

	now := time.Now().UTC()
	var seeded int
	for typ, rule := range registry {
		for _, symbol := range symbols {
			s := strategy.NewStrategy(uuid.NewString(), fmt.Sprintf("%s-%s-seed", typ, symbol), typ, symbol, rule, domain.CreatedSeed, nil, 0, now)
			if err := pool.Seed(s); err != nil {
				log.Error().Err(err).Msg("failed to seed initial strategy")
				continue
			}
			if err := store.SaveStrategy(ctx, s); err != nil {
				log.Warn().Err(err).Msg("failed to persist seeded strategy")
			}
			seeded++
		}
	}
	log.Info().Int("count", seeded).Msg("seeded initial strategy population")
}

// persistBucketsPeriodically snapshots FA's per-class totals to PL on
// interval, until ctx is cancelled — infrequent because Reserve/Release
// already mutate in-memory state synchronously on every task start/end.
func persistBucketsPeriodically(ctx context.Context, alloc *allocator.Allocator, store *persistence.Store, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, bucket := range alloc.Snapshot() {
				_ = store.SaveBucket(ctx, bucket)
			}
		}
	}
}

// tierNotifier adapts scoring.Gater's tier-change callbacks to
// events.Manager, so internal/scoring stays free of an internal/events
// import.
type tierNotifier struct {
	mgr *events.Manager
}

func (n *tierNotifier) StrategyTierChanged(strategyID string, oldTier, newTier domain.StrategyTier) {
	n.mgr.Emit(&events.StrategyTierChangedData{StrategyID: strategyID, OldTier: string(oldTier), NewTier: string(newTier)}, "scoring_gater")
}

func (n *tierNotifier) StrategyEliminated(strategyID, reason string) {
	n.mgr.Emit(&events.StrategyEliminatedData{StrategyID: strategyID, Reason: reason}, "scoring_gater")
}

// dispatchNotifier adapts dispatch.Dispatcher's event sink to
// events.Manager.
type dispatchNotifier struct {
	mgr *events.Manager
}

func (n *dispatchNotifier) SignalDispatched(strategyID, signalID string, tradeType domain.TradeType) {
	n.mgr.Emit(&events.SignalDispatchedData{StrategyID: strategyID, SignalID: signalID, TradeType: string(tradeType)}, "signal_dispatcher")
}

func (n *dispatchNotifier) TradeCycleClosed(cycleID string, pnl *decimal.Decimal, status domain.CycleStatus) {
	var pnlStr string
	if pnl != nil {
		pnlStr = pnl.String()
	}
	n.mgr.Emit(&events.TradeCycleClosedData{CycleID: cycleID, PnL: pnlStr, Status: string(status)}, "signal_dispatcher")
}

func maxInt1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}
