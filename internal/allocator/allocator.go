// Package allocator implements the Fund Allocator (FA, spec.md §4.4): a
// per-class capital ledger that answers "may I allocate X for an
// opportunity of class C?", records reservations and returns, and
// periodically rebalances shares between classes based on recent realized
// returns.
package allocator

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// ClassLimits bounds how far rebalancing may move one class's share of
// total capital (spec.md §4.4's min_share/max_share).
type ClassLimits struct {
	MinShare decimal.Decimal
	MaxShare decimal.Decimal
}

// bucket is one class's capital ledger entry.
type bucket struct {
	allocatedTotal decimal.Decimal // total capital assigned to this class
	available      decimal.Decimal
	limits         ClassLimits

	// recentReturns is a bounded window of realized P&L observations used
	// by Rebalance to weigh classes by recent performance.
	recentReturns []decimal.Decimal
}

const returnWindowSize = 50

// reservation records an in-flight Reserve so Release can validate the
// token and the caller can't double-release.
type reservation struct {
	class  domain.OpportunityClass
	amount decimal.Decimal
}

// Allocator is the Fund Allocator. Safe for concurrent use; Reserve and
// Release are guarded by a single mutex with no nested locking, per
// spec.md §4.4 ("guarded by a mutex; no nested locks").
type Allocator struct {
	mu           sync.Mutex
	buckets      map[domain.OpportunityClass]*bucket
	reservations map[string]reservation
	log          zerolog.Logger
}

// ClassConfig seeds one class's initial capital and rebalancing bounds.
type ClassConfig struct {
	Class          domain.OpportunityClass
	InitialCapital decimal.Decimal
	Limits         ClassLimits
}

// New creates an Allocator with one bucket per configured class.
func New(classes []ClassConfig, log zerolog.Logger) *Allocator {
	buckets := make(map[domain.OpportunityClass]*bucket, len(classes))
	for _, c := range classes {
		buckets[c.Class] = &bucket{
			allocatedTotal: c.InitialCapital,
			available:      c.InitialCapital,
			limits:         c.Limits,
		}
	}
	return &Allocator{
		buckets:      buckets,
		reservations: make(map[string]reservation),
		log:          log.With().Str("component", "fund_allocator").Logger(),
	}
}

// Reserve attempts to take amount out of class's available capital. On
// success it returns an opaque token Release must be called with exactly
// once. On failure it returns a domain.DomainError of kind
// ErrInsufficientFunds ("insufficient_class_capital") when amount exceeds
// the class's available capital, ErrInvariantViolation for a non-positive
// amount, or ErrConfigInvalid for an unknown class.
func (a *Allocator) Reserve(class domain.OpportunityClass, amount decimal.Decimal) (string, error) {
	if amount.Sign() <= 0 {
		return "", domain.NewError(domain.ErrInvariantViolation, "allocator.Reserve", fmt.Errorf("non-positive reserve amount %s", amount))
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	b, ok := a.buckets[class]
	if !ok {
		return "", domain.NewError(domain.ErrConfigInvalid, "allocator.Reserve", fmt.Errorf("unknown class %q", class))
	}
	if amount.GreaterThan(b.available) {
		return "", domain.NewError(domain.ErrInsufficientFunds, "allocator.Reserve", fmt.Errorf("insufficient_class_capital: requested %s, available %s", amount, b.available))
	}

	b.available = b.available.Sub(amount)
	token := newToken()
	a.reservations[token] = reservation{class: class, amount: amount}

	a.log.Debug().Str("class", string(class)).Str("amount", amount.String()).Str("token", token).Msg("capital reserved")
	return token, nil
}

// Release returns returnedAmount to the class's available capital, which
// may be larger or smaller than the original reservation; the delta is
// realized P&L and is recorded into the class's recent-returns window for
// Rebalance.
func (a *Allocator) Release(token string, returnedAmount decimal.Decimal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	res, ok := a.reservations[token]
	if !ok {
		return domain.NewError(domain.ErrInvariantViolation, "allocator.Release", fmt.Errorf("unknown reservation token %q", token))
	}
	delete(a.reservations, token)

	b := a.buckets[res.class]
	b.available = b.available.Add(returnedAmount)

	pnl := returnedAmount.Sub(res.amount)
	b.recentReturns = append(b.recentReturns, pnl)
	if len(b.recentReturns) > returnWindowSize {
		b.recentReturns = b.recentReturns[len(b.recentReturns)-returnWindowSize:]
	}

	a.log.Debug().Str("class", string(res.class)).Str("returned", returnedAmount.String()).Str("pnl", pnl.String()).Msg("capital released")
	return nil
}

// Snapshot reports the current allocated/available totals per class.
func (a *Allocator) Snapshot() map[domain.OpportunityClass]domain.FundBucket {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make(map[domain.OpportunityClass]domain.FundBucket, len(a.buckets))
	for class, b := range a.buckets {
		out[class] = domain.FundBucket{
			Class:          class,
			AllocatedTotal: b.allocatedTotal,
			Available:      b.available,
		}
	}
	return out
}

// Restore overwrites the allocated/available totals for every class found
// in buckets, called once at boot with PL's persisted fund_allocation_
// buckets rows so a restart resumes from the last known capital split
// instead of the configured defaults (classes absent from buckets keep
// their configured initial capital).
func (a *Allocator) Restore(buckets []domain.FundBucket) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, fb := range buckets {
		b, ok := a.buckets[fb.Class]
		if !ok {
			continue
		}
		b.allocatedTotal = fb.AllocatedTotal
		b.available = fb.Available
	}
}

// Rebalance shifts capital between classes proportional to recent
// realized returns, bounded by each class's configured min_share/max_share
// (spec.md §4.4). Nothing in cmd/server calls it on a schedule; the class
// split changes only when a caller invokes Rebalance directly.
func (a *Allocator) Rebalance() {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := decimal.Zero
	for _, b := range a.buckets {
		total = total.Add(b.allocatedTotal)
	}
	if total.IsZero() {
		return
	}

	scores := make(map[domain.OpportunityClass]decimal.Decimal, len(a.buckets))
	scoreTotal := decimal.Zero
	for class, b := range a.buckets {
		scores[class] = averageReturn(b.recentReturns).Add(decimal.NewFromFloat(1.0))
		if scores[class].Sign() < 0 {
			scores[class] = decimal.Zero
		}
		scoreTotal = scoreTotal.Add(scores[class])
	}
	if scoreTotal.IsZero() {
		return
	}

	for class, b := range a.buckets {
		targetShare := scores[class].Div(scoreTotal)
		if b.limits.MinShare.GreaterThan(decimal.Zero) && targetShare.LessThan(b.limits.MinShare) {
			targetShare = b.limits.MinShare
		}
		if b.limits.MaxShare.GreaterThan(decimal.Zero) && targetShare.GreaterThan(b.limits.MaxShare) {
			targetShare = b.limits.MaxShare
		}

		targetTotal := total.Mul(targetShare)
		delta := targetTotal.Sub(b.allocatedTotal)
		b.allocatedTotal = targetTotal
		b.available = b.available.Add(delta)
		if b.available.Sign() < 0 {
			b.available = decimal.Zero
		}

		a.log.Info().Str("class", string(class)).Str("target_share", targetShare.String()).Str("allocated_total", b.allocatedTotal.String()).Msg("rebalanced fund bucket")
	}
}

func averageReturn(returns []decimal.Decimal) decimal.Decimal {
	if len(returns) == 0 {
		return decimal.Zero
	}
	sum := decimal.Zero
	for _, r := range returns {
		sum = sum.Add(r)
	}
	return sum.Div(decimal.NewFromInt(int64(len(returns))))
}

func newToken() string {
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf) + "-" + fmt.Sprint(time.Now().UnixNano())
}
