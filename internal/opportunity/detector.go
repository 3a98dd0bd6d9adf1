// Package opportunity implements the Opportunity Detector (OD, spec.md
// §4.3): on each MDS publish it scans for cross-exchange and triangular
// arbitrage, filters by net profitability, ranks the survivors, and
// publishes a new list atomically. OD never calls an exchange itself — it
// consumes MDS snapshots and domain.Exchange capability records only.
package opportunity

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/rs/zerolog"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// Config configures a Detector.
type Config struct {
	Exchanges      []domain.Exchange
	Symbols        []string
	BaseAsset      string // triangular scan's starting/ending asset, e.g. USDT
	MinCrossPct    decimal.Decimal
	MinTriPct      decimal.Decimal
	TransferFeePct func(asset string, from, to domain.ExchangeID) decimal.Decimal
	RingSize       int // bounded ring of recent opportunities retained per class
	Log            zerolog.Logger
}

// Detector holds the latest ranked opportunity lists and the bounded
// recent-opportunity rings per class (spec.md §4.3).
type Detector struct {
	cfg Config
	log zerolog.Logger

	mu        sync.RWMutex
	latest    []domain.ArbitrageOpportunity
	ringCross []domain.ArbitrageOpportunity
	ringTri   []domain.ArbitrageOpportunity
	diffs     []domain.PriceDiff
}

// New creates a Detector.
func New(cfg Config) *Detector {
	if cfg.RingSize <= 0 {
		cfg.RingSize = 200
	}
	if cfg.TransferFeePct == nil {
		cfg.TransferFeePct = func(string, domain.ExchangeID, domain.ExchangeID) decimal.Decimal { return decimal.Zero }
	}
	return &Detector{cfg: cfg, log: cfg.Log.With().Str("component", "opportunity_detector").Logger()}
}

// tickerSource abstracts the ticker lookup so Scan can be driven directly
// by a map of the latest tickers (used by MDS's Snapshot()) without OD
// depending on marketdata's concrete type and creating an import cycle.
type tickerSource func(exchangeID domain.ExchangeID, symbol string) (domain.Ticker, bool)

// Scan runs one full cross-exchange + triangular pass over the given
// ticker source and atomically replaces the ranked opportunity list.
func (d *Detector) Scan(ctx context.Context, tickers tickerSource) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	var diffs []domain.PriceDiff

	crossOpps, crossDiffs := d.scanCross(tickers)
	opps = append(opps, crossOpps...)
	diffs = append(diffs, crossDiffs...)

	opps = append(opps, d.scanTriangular(tickers)...)

	sort.SliceStable(opps, func(i, j int) bool {
		if !opps[i].NetPct.Equal(opps[j].NetPct) {
			return opps[i].NetPct.GreaterThan(opps[j].NetPct)
		}
		// Tie-break: lower estimated latency wins (spec.md §4.3); triangular
		// opportunities carry a lower EstLatencyMs than cross-exchange ones.
		return opps[i].EstLatencyMs < opps[j].EstLatencyMs
	})

	now := time.Now().UTC()
	d.mu.Lock()
	d.latest = opps
	d.diffs = pruneDiffs(append(d.diffs, diffs...), now)
	for _, o := range opps {
		d.pushRing(o)
	}
	d.mu.Unlock()

	return opps
}

func pruneDiffs(diffs []domain.PriceDiff, now time.Time) []domain.PriceDiff {
	cutoff := now.Add(-24 * time.Hour)
	out := diffs[:0:0]
	for _, pd := range diffs {
		if pd.ObservedAt.After(cutoff) {
			out = append(out, pd)
		}
	}
	return out
}

func (d *Detector) pushRing(o domain.ArbitrageOpportunity) {
	switch o.Class {
	case domain.ClassCrossExchange:
		d.ringCross = appendBounded(d.ringCross, o, d.cfg.RingSize)
	case domain.ClassTriangular:
		d.ringTri = appendBounded(d.ringTri, o, d.cfg.RingSize)
	}
}

func appendBounded(ring []domain.ArbitrageOpportunity, o domain.ArbitrageOpportunity, max int) []domain.ArbitrageOpportunity {
	ring = append(ring, o)
	if len(ring) > max {
		ring = ring[len(ring)-max:]
	}
	return ring
}

// Latest returns the most recently published ranked opportunity list.
func (d *Detector) Latest() []domain.ArbitrageOpportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.ArbitrageOpportunity, len(d.latest))
	copy(out, d.latest)
	return out
}

// RecentPriceDiffs returns the 24h-retained cross-exchange spread
// observations OD keeps for display/debugging (spec.md §3).
func (d *Detector) RecentPriceDiffs() []domain.PriceDiff {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]domain.PriceDiff, len(d.diffs))
	copy(out, d.diffs)
	return out
}

// Ring returns the bounded ring of recent opportunities for one class.
func (d *Detector) Ring(class domain.OpportunityClass) []domain.ArbitrageOpportunity {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var src []domain.ArbitrageOpportunity
	if class == domain.ClassCrossExchange {
		src = d.ringCross
	} else {
		src = d.ringTri
	}
	out := make([]domain.ArbitrageOpportunity, len(src))
	copy(out, src)
	return out
}
