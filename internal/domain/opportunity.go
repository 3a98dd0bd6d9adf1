package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpportunityClass distinguishes the two arbitrage classes the system
// discovers and executes. It doubles as the Fund Allocator's capital
// bucket key.
type OpportunityClass string

const (
	ClassCrossExchange OpportunityClass = "cross_exchange"
	ClassTriangular    OpportunityClass = "triangular"
)

// TriDirection is the side of one leg in a triangular path.
type TriDirection string

const (
	TriBuy  TriDirection = "buy"
	TriSell TriDirection = "sell"
)

// TriStep is one leg of a triangular arbitrage path.
type TriStep struct {
	Symbol    string
	Direction TriDirection
}

// ArbitrageOpportunity is a ranked, profitability-filtered opportunity
// produced by the Opportunity Detector. Exactly one of the Cross/Tri fields
// is populated, selected by Class.
//
// Invariant: NetPct > the configured minimum for its class.
type ArbitrageOpportunity struct {
	Class      OpportunityClass
	NetPct     decimal.Decimal
	ObservedAt time.Time

	// Cross-exchange fields.
	Symbol                    string
	BuyExchange               ExchangeID
	SellExchange              ExchangeID
	BuyPrice                  decimal.Decimal
	SellPrice                 decimal.Decimal
	EstTransferMinutes        int
	EstTransferFee            decimal.Decimal

	// Triangular fields.
	Exchange                  ExchangeID
	Path                      [3]TriStep
	ExpectedEndAmountPerUnit  decimal.Decimal

	// EstLatencyMs is used only for the tie-break rule (spec.md §4.3):
	// equal NetPct prefers the lower-latency class (triangular < cross).
	EstLatencyMs int
}

// Valid reports whether the opportunity satisfies its class's minimum
// profitability invariant against the supplied threshold.
func (o ArbitrageOpportunity) Valid(minPct decimal.Decimal) bool {
	return o.NetPct.GreaterThan(minPct)
}
