package opportunity

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// triLatencyMs is the fixed EstLatencyMs stamped on triangular
// opportunities — lower than crossLatencyMs since all three legs execute
// on a single venue with no inter-exchange transfer in the path.
const triLatencyMs = 150

// edge is one directed conversion step in a per-exchange asset graph: Rate
// is "units of To obtained per unit of From", net of the venue's taker fee.
type edge struct {
	to     string
	rate   decimal.Decimal
	symbol string
	dir    domain.TriDirection
}

// buildGraph constructs the directed asset graph for one exchange from its
// tradeable symbols, per spec.md §4.3: each symbol X/Y (base X, quote Y)
// contributes a buy edge Y->X at rate 1/ask*(1-fee) and a sell edge X->Y at
// rate bid*(1-fee).
func buildGraph(ex domain.Exchange, tickers tickerSource) map[string][]edge {
	graph := make(map[string][]edge)
	one := decimal.NewFromInt(1)
	feeMultiplier := one.Sub(ex.TakerFee)

	for _, symbol := range ex.Symbols {
		t, ok := tickers(ex.ID, symbol)
		if !ok || t.Ask.IsZero() || t.Bid.IsZero() {
			continue
		}
		base := baseAsset(symbol)
		quote := quoteAsset(symbol)
		if base == "" || quote == "" {
			continue
		}

		buyRate := one.Div(t.Ask).Mul(feeMultiplier)
		graph[quote] = append(graph[quote], edge{to: base, rate: buyRate, symbol: symbol, dir: domain.TriBuy})

		sellRate := t.Bid.Mul(feeMultiplier)
		graph[base] = append(graph[base], edge{to: quote, rate: sellRate, symbol: symbol, dir: domain.TriSell})
	}
	return graph
}

// scanTriangular implements spec.md §4.3's triangular scan: per exchange,
// enumerate every length-3 cycle starting and ending at the configured
// base asset, multiply the three conversion rates, and emit an
// opportunity whenever the net gain clears MinTriPct.
func (d *Detector) scanTriangular(tickers tickerSource) []domain.ArbitrageOpportunity {
	var opps []domain.ArbitrageOpportunity
	now := time.Now().UTC()
	start := d.cfg.BaseAsset
	if start == "" {
		return opps
	}

	for _, ex := range d.cfg.Exchanges {
		graph := buildGraph(ex, tickers)
		for _, e1 := range graph[start] {
			for _, e2 := range graph[e1.to] {
				if e2.to == start {
					continue // a length-2 round trip isn't a triangle
				}
				for _, e3 := range graph[e2.to] {
					if e3.to != start {
						continue
					}
					endAmount := e1.rate.Mul(e2.rate).Mul(e3.rate)
					netPct := endAmount.Sub(decimal.NewFromInt(1))

					o := domain.ArbitrageOpportunity{
						Class:                    domain.ClassTriangular,
						NetPct:                   netPct,
						ObservedAt:               now,
						Exchange:                 ex.ID,
						Path:                     [3]domain.TriStep{{Symbol: e1.symbol, Direction: e1.dir}, {Symbol: e2.symbol, Direction: e2.dir}, {Symbol: e3.symbol, Direction: e3.dir}},
						ExpectedEndAmountPerUnit: endAmount,
						EstLatencyMs:             triLatencyMs,
					}
					if o.Valid(d.cfg.MinTriPct) {
						opps = append(opps, o)
					}
				}
			}
		}
	}
	return opps
}
