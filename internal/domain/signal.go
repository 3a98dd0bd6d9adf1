package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side is the direction of a trading signal or fill.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// TradeType is the Signal Dispatcher's mode decision for one signal
// (spec.md §4.11 — "the hardest, most safety-critical rule in the
// system"). Validation signals never touch real capital.
type TradeType string

const (
	TradeValidation TradeType = "validation"
	TradeReal       TradeType = "real"
)

// TradingSignal is one strategy-generated trade instruction. Signals are
// append-only: once Executed is set true and an outcome is recorded, the
// record is never mutated again (spec.md §3).
type TradingSignal struct {
	ID                string
	StrategyID        string
	Symbol            string
	Side              Side
	Price             decimal.Decimal
	Quantity          decimal.Decimal
	Confidence        decimal.Decimal
	GeneratedAt       time.Time
	Executed          bool
	TradeType         TradeType
	CycleID           string // empty if this signal did not open/close a cycle
	RealizedPnL       *decimal.Decimal
	ValidationFlag    bool
	DroppedReason     string // set when queued-but-dropped per §4.11 per-strategy concurrency cap, or to the error of a failed real order
}

// CycleStatus is the lifecycle state of a TradeCycle.
type CycleStatus string

const (
	CycleOpen      CycleStatus = "open"
	CycleCompleted CycleStatus = "completed"
	CycleAbandoned CycleStatus = "abandoned"
)

// TradeCycle pairs an opening and (eventually) closing signal for one
// strategy's position, tracking realized P&L and holding time.
type TradeCycle struct {
	CycleID        string
	StrategyID     string
	OpenSignalID   string
	CloseSignalID  string
	OpenTime       time.Time
	CloseTime      *time.Time
	BuyPrice       decimal.Decimal
	SellPrice      *decimal.Decimal
	Quantity       decimal.Decimal
	PnL            *decimal.Decimal
	HoldingMinutes *int
	Status         CycleStatus
	AbandonReason  string
	// TradeType is the mode the cycle was opened under (§4.11): a cycle
	// opened as validation closes as validation regardless of gating state
	// at close time — the mode is decided once, at open.
	TradeType TradeType
}
