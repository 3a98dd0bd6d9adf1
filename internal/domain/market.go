package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DepthLevel is one level of an order book side.
type DepthLevel struct {
	Price decimal.Decimal
	Qty   decimal.Decimal
}

// Ticker is one exchange's latest quote for one symbol.
//
// Owned exclusively by the Market Data Service: a new Ticker replaces the
// old one wholesale on each poll, it is never mutated in place. Readers
// that hold a *Ticker always see a complete, internally-consistent
// snapshot — there is no "half updated" Ticker.
type Ticker struct {
	ExchangeID     ExchangeID
	Symbol         string
	Bid            decimal.Decimal
	Ask            decimal.Decimal
	Last           decimal.Decimal
	BidDepth       []DepthLevel
	AskDepth       []DepthLevel
	QuoteVolume24h decimal.Decimal
	ObservedAt     time.Time
}

// PriceDiff is a derived cross-exchange spread observation, retained by the
// Opportunity Detector for 24h for display/debugging purposes. It is never
// mutated after creation.
type PriceDiff struct {
	Symbol        string
	LowExchange   ExchangeID
	HighExchange  ExchangeID
	LowAsk        decimal.Decimal
	HighBid       decimal.Decimal
	AbsDiff       decimal.Decimal
	PctDiff       decimal.Decimal
	ObservedAt    time.Time
}
