// Package exchange implements the Exchange Adapter (EA, spec.md §4.1): a
// normalized capability set against one venue — ticker, order book,
// balance, market orders, withdrawal, deposit address — with per-exchange
// rate limiting and cancellable, concurrency-safe methods. EA itself never
// retries; retry policy belongs to callers (AX, MDS).
package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// OrderResult is the outcome of a successful market buy/sell. Fee is
// denominated in whatever asset the caller receives from the trade — the
// base asset on a buy, the quote asset on a sell — matching the default
// commission convention most venues use.
type OrderResult struct {
	OrderID     string
	FilledPrice decimal.Decimal
	FilledQty   decimal.Decimal
	Fee         decimal.Decimal
	FilledAt    time.Time
}

// WithdrawalResult is the outcome of a successful withdrawal request.
type WithdrawalResult struct {
	TransferID string
	Fee        decimal.Decimal
}

// DepositAddress is a venue's receiving address for one asset/network.
type DepositAddress struct {
	Address string
	Memo    string // optional tag/memo some venues require alongside the address
}

// AssetBalance is one asset's balance as reported by fetch_balance.
type AssetBalance struct {
	Total     decimal.Decimal
	Available decimal.Decimal
	Locked    decimal.Decimal
}

// Adapter is the normalized operation set spec.md §4.1 requires of every
// venue. Implementations must be safe for concurrent use by multiple
// callers, honor ctx cancellation promptly, and enforce their own request
// pacing — they never return a retry decision, only a classified error via
// domain.DomainError.
type Adapter interface {
	// ID returns the exchange identity this adapter drives.
	ID() domain.ExchangeID
	// Capability returns the immutable capability record (fees, symbols,
	// withdraw/deposit flags) for this venue.
	Capability() domain.Exchange

	FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error)
	FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.Ticker, error)
	FetchBalance(ctx context.Context) (map[string]AssetBalance, error)
	MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (OrderResult, error)
	MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (OrderResult, error)
	RequestWithdrawal(ctx context.Context, asset string, amount decimal.Decimal, destAddr, network string) (WithdrawalResult, error)
	FetchWithdrawalStatus(ctx context.Context, transferID string) (domain.TransferStatus, error)
	FetchDepositAddress(ctx context.Context, asset, network string) (DepositAddress, error)

	// Close releases any held connections (e.g. a streaming websocket).
	Close() error
}

// DefaultCallTimeout is the hard per-call timeout spec.md §5 requires of
// every EA call absent an explicit deadline on the caller's context.
const DefaultCallTimeout = 30 * time.Second

// WithCallTimeout returns a derived context bounded by DefaultCallTimeout,
// or the caller's existing deadline if it is already tighter.
func WithCallTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if dl, ok := ctx.Deadline(); ok && time.Until(dl) < DefaultCallTimeout {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, DefaultCallTimeout)
}
