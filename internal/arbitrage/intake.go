package arbitrage

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// Intake is the channel of opportunities spec.md §9 calls for in place of
// one monolithic monitor thread polling markets and dispatching trades:
// OD hands it a freshly ranked opportunity list on every scan, and Intake
// starts an AX task for each one that isn't already being worked and that
// clears the configured in-flight ceiling. Safe for concurrent use.
type Intake struct {
	x   *Executor
	log zerolog.Logger

	taskNotional decimal.Decimal
	maxInFlight  int

	mu     sync.Mutex
	active map[string]bool
}

// NewIntake creates an Intake driving x. taskNotional is the capital
// committed per started task; maxInFlight bounds total concurrently
// running tasks across both classes.
func NewIntake(x *Executor, taskNotional decimal.Decimal, maxInFlight int, log zerolog.Logger) *Intake {
	if maxInFlight <= 0 {
		maxInFlight = 5
	}
	return &Intake{
		x:            x,
		taskNotional: taskNotional,
		maxInFlight:  maxInFlight,
		active:       make(map[string]bool),
		log:          log.With().Str("component", "arbitrage_intake").Logger(),
	}
}

func oppKey(o domain.ArbitrageOpportunity) string {
	if o.Class == domain.ClassTriangular {
		return string(o.Class) + "|" + string(o.Exchange) + "|" + o.Path[0].Symbol + "|" + o.Path[1].Symbol + "|" + o.Path[2].Symbol
	}
	return string(o.Class) + "|" + string(o.BuyExchange) + "|" + string(o.SellExchange) + "|" + o.Symbol
}

func (in *Intake) claim(key string) bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	if len(in.active) >= in.maxInFlight || in.active[key] {
		return false
	}
	in.active[key] = true
	return true
}

func (in *Intake) release(key string) {
	in.mu.Lock()
	delete(in.active, key)
	in.mu.Unlock()
}

// Consider evaluates a freshly ranked opportunity list, starting an AX
// task for each candidate not already in flight. Opportunities are
// offered highest net_pct first, so on a capped run the best ones win the
// available in-flight slots.
func (in *Intake) Consider(ctx context.Context, opps []domain.ArbitrageOpportunity) {
	for _, opp := range opps {
		key := oppKey(opp)
		if !in.claim(key) {
			continue
		}

		h, err := in.x.Start(ctx, opp, in.taskNotional)
		if err != nil {
			in.release(key)
			in.log.Debug().Err(err).Str("class", string(opp.Class)).Str("symbol", opp.Symbol).Msg("opportunity declined")
			continue
		}

		go func(key string, h *Handle) {
			<-h.Done()
			in.release(key)
		}(key, h)
	}
}
