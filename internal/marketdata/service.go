// Package marketdata implements the Market Data Service (MDS, spec.md
// §4.2): one supervised poll loop per exchange that fetches ticker + top-N
// order book for every configured symbol, atomically publishes an
// immutable snapshot keyed by (exchange, symbol) on success, and after 5
// consecutive failures calls Reconnect on an adapter that implements it.
// None of the adapters in internal/exchange implements Reconnect, so for
// them the failures are only counted and logged. Readers get latest/
// snapshot/subscribe with the ordering guarantee that nobody ever observes
// an older epoch after having seen a newer one for the same key
// (spec.md §9: "Global mutable price/balance dictionaries ... replace with
// MDS snapshot semantics; atomic pointer swap").
package marketdata

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

const (
	maxConsecutiveFailures = 5
	// maxHistoryLen bounds the per-key close-price ring SE and strategy
	// indicators read from; large enough for any configured indicator
	// lookback without retaining unbounded history in memory.
	maxHistoryLen = 1000
)

// reconnector is implemented by adapters that can be asked to drop and
// re-establish their connection after repeated failures.
type reconnector interface {
	Reconnect(ctx context.Context) error
}

func key(exchangeID domain.ExchangeID, symbol string) string {
	return string(exchangeID) + "|" + symbol
}

// entry is one published snapshot plus the epoch it was stamped with.
type entry struct {
	ticker domain.Ticker
	epoch  uint64
}

// Service is the Market Data Service. One instance supervises poll loops
// for every registered exchange and symbol.
type Service struct {
	pool   *exchange.Pool
	broker EpochBroker
	log    zerolog.Logger

	symbols    []string
	pollEvery  time.Duration
	bookDepth  int

	mu      sync.RWMutex
	store   map[string]entry
	history map[string][]decimal.Decimal // bounded close-price ring per (exchange,symbol), feeds SE/strategy indicators

	epoch atomic.Uint64

	cron *cron.Cron

	failures sync.Map // exchangeID -> *atomic.Int32 consecutive failure count
}

// Config configures a new Service.
type Config struct {
	Pool          *exchange.Pool
	Broker        EpochBroker
	Symbols       []string
	PollInterval  time.Duration
	OrderBookDepth int
	Log           zerolog.Logger
}

// New creates a Service. Call Start to begin polling.
func New(cfg Config) *Service {
	if cfg.Broker == nil {
		cfg.Broker = NewLocalBroker()
	}
	if cfg.OrderBookDepth <= 0 {
		cfg.OrderBookDepth = 10
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	return &Service{
		pool:      cfg.Pool,
		broker:    cfg.Broker,
		symbols:   cfg.Symbols,
		pollEvery: cfg.PollInterval,
		bookDepth: cfg.OrderBookDepth,
		store:     make(map[string]entry),
		history:   make(map[string][]decimal.Decimal),
		log:       cfg.Log.With().Str("component", "marketdata").Logger(),
		cron:      cron.New(cron.WithSeconds()),
	}
}

// Start schedules one poll job per registered exchange, each firing every
// PollInterval (spec.md §4.2's "interval configurable, default 5s").
func (s *Service) Start(ctx context.Context) error {
	spec := fmt.Sprintf("@every %s", s.pollEvery)
	for id, adapter := range s.pool.All() {
		id, adapter := id, adapter
		_, err := s.cron.AddFunc(spec, func() { s.pollOnce(ctx, id, adapter) })
		if err != nil {
			return fmt.Errorf("marketdata: schedule poll for %s: %w", id, err)
		}
	}
	s.cron.Start()
	s.log.Info().Dur("interval", s.pollEvery).Int("exchanges", len(s.pool.All())).Msg("market data service started")
	return nil
}

// Stop halts all poll loops.
func (s *Service) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

func (s *Service) pollOnce(ctx context.Context, id domain.ExchangeID, adapter exchange.Adapter) {
	for _, symbol := range s.symbols {
		if !adapter.Capability().HasSymbol(symbol) && len(adapter.Capability().Symbols) > 0 {
			continue
		}
		s.pollSymbol(ctx, id, adapter, symbol)
	}
}

func (s *Service) pollSymbol(ctx context.Context, id domain.ExchangeID, adapter exchange.Adapter, symbol string) {
	callCtx, cancel := exchange.WithCallTimeout(ctx)
	defer cancel()

	ticker, err := adapter.FetchTicker(callCtx, symbol)
	if err != nil {
		s.recordFailure(ctx, id, adapter, symbol, err)
		return
	}
	book, err := adapter.FetchOrderBook(callCtx, symbol, s.bookDepth)
	if err != nil {
		s.recordFailure(ctx, id, adapter, symbol, err)
		return
	}
	ticker.BidDepth, ticker.AskDepth = book.BidDepth, book.AskDepth
	s.resetFailures(id)
	s.publish(id, symbol, ticker)
}

func (s *Service) recordFailure(ctx context.Context, id domain.ExchangeID, adapter exchange.Adapter, symbol string, err error) {
	v, _ := s.failures.LoadOrStore(id, new(atomic.Int32))
	counter := v.(*atomic.Int32)
	n := counter.Add(1)

	s.log.Warn().Err(err).Str("exchange", string(id)).Str("symbol", symbol).Int32("consecutive_failures", n).Msg("market data poll failed")

	if n >= maxConsecutiveFailures {
		if r, ok := adapter.(reconnector); ok {
			s.log.Warn().Str("exchange", string(id)).Msg("requesting adapter reconnection after repeated failures")
			if rerr := r.Reconnect(ctx); rerr != nil {
				s.log.Error().Err(rerr).Str("exchange", string(id)).Msg("adapter reconnection failed")
			} else {
				counter.Store(0)
			}
		}
	}
}

func (s *Service) resetFailures(id domain.ExchangeID) {
	if v, ok := s.failures.Load(id); ok {
		v.(*atomic.Int32).Store(0)
	}
}

// publish atomically replaces the snapshot for (id, symbol) and bumps the
// global publish epoch, then notifies subscribers.
func (s *Service) publish(id domain.ExchangeID, symbol string, ticker domain.Ticker) {
	ep := s.epoch.Add(1)
	k := key(id, symbol)

	s.mu.Lock()
	s.store[k] = entry{ticker: ticker, epoch: ep}
	ring := append(s.history[k], ticker.Last)
	if len(ring) > maxHistoryLen {
		ring = ring[len(ring)-maxHistoryLen:]
	}
	s.history[k] = ring
	s.mu.Unlock()

	s.broker.Publish(k, ep)
}

// History returns up to limit of the most recent published "last" prices
// for (exchangeID, symbol), oldest first — the rolling window SE and
// strategy indicator calculations replay over (spec.md §4.7's "recent
// market data"). Returns fewer than limit if less history has been
// observed yet.
func (s *Service) History(exchangeID domain.ExchangeID, symbol string, limit int) []decimal.Decimal {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.history[key(exchangeID, symbol)]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]decimal.Decimal, limit)
	copy(out, ring[len(ring)-limit:])
	return out
}

// Latest returns the last-published snapshot for (exchange, symbol), or
// false if none has been observed yet — spec.md §4.2's non-blocking
// latest() operation.
func (s *Service) Latest(exchangeID domain.ExchangeID, symbol string) (domain.Ticker, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.store[key(exchangeID, symbol)]
	return e.ticker, ok
}

// Snapshot returns a copy of every published (exchange,symbol) -> Ticker
// pair, taken under one read lock so it reflects a single publish epoch.
// Building the copy takes time proportional to the number of keys.
func (s *Service) Snapshot() map[string]domain.Ticker {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]domain.Ticker, len(s.store))
	for k, e := range s.store {
		out[k] = e.ticker
	}
	return out
}

// Subscribe returns a stream of publish-epoch notifications and an
// unsubscribe function.
func (s *Service) Subscribe() (<-chan Notification, func()) {
	return s.broker.Subscribe()
}

// CurrentEpoch returns the service's current global publish epoch, used by
// tests to assert the monotonic-non-decreasing-per-key ordering guarantee.
func (s *Service) CurrentEpoch() uint64 {
	return s.epoch.Load()
}
