package opportunity

import (
	"time"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// crossLatencyMs is the fixed EstLatencyMs stamped on every cross-exchange
// opportunity for the tie-break rule (spec.md §4.3: "equal net_pct prefers
// lower estimated latency (triangular < cross-exchange)"). Triangular
// opportunities use triLatencyMs, defined in graph.go, which is lower.
const crossLatencyMs = 500

// scanCross implements spec.md §4.3's cross-exchange scan: for every
// symbol and every ordered pair (A, B) of exchanges, buy on A's ask and
// sell on B's bid if profitable net of both taker fees and the estimated
// transfer cost.
func (d *Detector) scanCross(tickers tickerSource) ([]domain.ArbitrageOpportunity, []domain.PriceDiff) {
	var opps []domain.ArbitrageOpportunity
	var diffs []domain.PriceDiff
	now := time.Now().UTC()

	for _, symbol := range d.cfg.Symbols {
		for _, a := range d.cfg.Exchanges {
			tickA, ok := tickers(a.ID, symbol)
			if !ok || tickA.Ask.IsZero() {
				continue
			}
			for _, b := range d.cfg.Exchanges {
				if a.ID == b.ID {
					continue
				}
				tickB, ok := tickers(b.ID, symbol)
				if !ok || tickB.Bid.IsZero() {
					continue
				}
				if !tickB.Bid.GreaterThan(tickA.Ask) {
					continue
				}

				absDiff := tickB.Bid.Sub(tickA.Ask)
				pctDiff := absDiff.Div(tickA.Ask)
				diffs = append(diffs, domain.PriceDiff{
					Symbol: symbol, LowExchange: a.ID, HighExchange: b.ID,
					LowAsk: tickA.Ask, HighBid: tickB.Bid, AbsDiff: absDiff, PctDiff: pctDiff,
					ObservedAt: now,
				})

				asset := baseAsset(symbol)
				transferFeePct := d.cfg.TransferFeePct(asset, a.ID, b.ID)
				netPct := pctDiff.Sub(a.TakerFee).Sub(b.TakerFee).Sub(transferFeePct)

				o := domain.ArbitrageOpportunity{
					Class: domain.ClassCrossExchange, NetPct: netPct, ObservedAt: now,
					Symbol: symbol, BuyExchange: a.ID, SellExchange: b.ID,
					BuyPrice: tickA.Ask, SellPrice: tickB.Bid,
					EstTransferMinutes: 15,
					EstTransferFee:     transferFeePct.Mul(tickA.Ask),
					EstLatencyMs:       crossLatencyMs,
				}
				if o.Valid(d.cfg.MinCrossPct) {
					opps = append(opps, o)
				}
			}
		}
	}
	return opps, diffs
}

// baseAsset returns the base asset of a "BASE/QUOTE" symbol.
func baseAsset(symbol string) string {
	for i, r := range symbol {
		if r == '/' {
			return symbol[:i]
		}
	}
	return symbol
}

// quoteAsset returns the quote asset of a "BASE/QUOTE" symbol.
func quoteAsset(symbol string) string {
	for i, r := range symbol {
		if r == '/' {
			return symbol[i+1:]
		}
	}
	return ""
}
