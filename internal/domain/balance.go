package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// AccountBalance is a point-in-time snapshot of one (exchange, asset) pair
// — a snapshot, not a journal. Replaced wholesale on each refresh.
type AccountBalance struct {
	ExchangeID ExchangeID
	Asset      string
	Total      decimal.Decimal
	Available  decimal.Decimal
	Locked     decimal.Decimal
	ObservedAt time.Time
}

// BalanceKey identifies one AccountBalance row.
type BalanceKey struct {
	ExchangeID ExchangeID
	Asset      string
}
