// Package testexchange is the deterministic in-memory venue spec.md §4.1
// requires alongside the real adapters: a test double used to drive the
// literal end-to-end scenarios in spec.md §8 without any network I/O.
package testexchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

// Quote is the scripted bid/ask this double serves for one symbol.
type Quote struct {
	Bid, Ask decimal.Decimal
}

// Exchange is a fully in-memory Adapter implementation. Ticker quotes,
// balances, and withdrawal outcomes are all pre-seeded or set by the test,
// never fetched from a network.
type Exchange struct {
	mu sync.Mutex

	id   domain.ExchangeID
	cap  domain.Exchange
	quotes map[string]Quote

	balances map[string]exchange.AssetBalance

	// withdrawals maps transfer id -> status. RequestWithdrawal stores each
	// new transfer as "pending", and it stays so until the test sets another
	// status, letting tests drive the transfer-timeout scenario (spec.md §8
	// scenario 3). An id never stored here makes FetchWithdrawalStatus
	// return a transient_network error.
	withdrawals map[string]domain.TransferStatus

	// Fail, when non-empty, is the ErrKind the next matching operation
	// returns instead of succeeding. Keyed by operation name.
	Fail map[string]domain.ErrKind

	// FailSymbol scripts a failure for one operation on one symbol only,
	// keyed by "<op>:<symbol>" (e.g. "MarketSell:ETH/BTC"), letting a test
	// fail a single leg of a multi-symbol sequence (such as one leg of a
	// triangular unwind) without failing every call to that operation.
	// Checked before the coarser Fail map.
	FailSymbol map[string]domain.ErrKind
}

// New creates a test exchange with the given capability record. Callers
// seed quotes/balances via SetQuote/SetBalance before use.
func New(cap domain.Exchange) *Exchange {
	return &Exchange{
		id:          cap.ID,
		cap:         cap,
		quotes:      make(map[string]Quote),
		balances:    make(map[string]exchange.AssetBalance),
		withdrawals: make(map[string]domain.TransferStatus),
		Fail:        make(map[string]domain.ErrKind),
		FailSymbol:  make(map[string]domain.ErrKind),
	}
}

func (e *Exchange) ID() domain.ExchangeID    { return e.id }
func (e *Exchange) Capability() domain.Exchange { return e.cap }

// SetQuote seeds the bid/ask this double serves for symbol.
func (e *Exchange) SetQuote(symbol string, bid, ask decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.quotes[symbol] = Quote{Bid: bid, Ask: ask}
}

// SetBalance seeds the balance this double reports for asset.
func (e *Exchange) SetBalance(asset string, bal exchange.AssetBalance) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[asset] = bal
}

// SetWithdrawalStatus scripts the terminal status FetchWithdrawalStatus
// reports for transferID; a transfer it is never called for keeps the
// "pending" status RequestWithdrawal gave it.
func (e *Exchange) SetWithdrawalStatus(transferID string, status domain.TransferStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.withdrawals[transferID] = status
}

func (e *Exchange) failure(op string) error {
	return e.failureForSymbol(op, "")
}

// failureForSymbol checks FailSymbol (op+":"+symbol) before falling back to
// the coarser op-only Fail map.
func (e *Exchange) failureForSymbol(op, symbol string) error {
	e.mu.Lock()
	kind, ok := e.FailSymbol[op+":"+symbol]
	if !ok {
		kind, ok = e.Fail[op]
	}
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return domain.NewError(kind, "testexchange."+op, fmt.Errorf("scripted failure"))
}

func (e *Exchange) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	if err := e.failure("FetchTicker"); err != nil {
		return domain.Ticker{}, err
	}
	e.mu.Lock()
	q, ok := e.quotes[symbol]
	e.mu.Unlock()
	if !ok {
		return domain.Ticker{}, domain.NewError(domain.ErrTransientNetwork, "testexchange.FetchTicker", fmt.Errorf("symbol %s unknown", symbol))
	}
	return domain.Ticker{
		ExchangeID: e.id,
		Symbol:     symbol,
		Bid:        q.Bid,
		Ask:        q.Ask,
		Last:       q.Bid.Add(q.Ask).Div(decimal.NewFromInt(2)),
		ObservedAt: time.Now().UTC(),
	}, nil
}

func (e *Exchange) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.Ticker, error) {
	t, err := e.FetchTicker(ctx, symbol)
	if err != nil {
		return domain.Ticker{}, err
	}
	for i := 0; i < depth; i++ {
		t.BidDepth = append(t.BidDepth, domain.DepthLevel{Price: t.Bid, Qty: decimal.NewFromInt(1)})
		t.AskDepth = append(t.AskDepth, domain.DepthLevel{Price: t.Ask, Qty: decimal.NewFromInt(1)})
	}
	return t, nil
}

func (e *Exchange) FetchBalance(ctx context.Context) (map[string]exchange.AssetBalance, error) {
	if err := e.failure("FetchBalance"); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]exchange.AssetBalance, len(e.balances))
	for k, v := range e.balances {
		out[k] = v
	}
	return out, nil
}

func (e *Exchange) MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (exchange.OrderResult, error) {
	if err := e.failureForSymbol("MarketBuy", symbol); err != nil {
		return exchange.OrderResult{}, err
	}
	t, err := e.FetchTicker(ctx, symbol)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	// Fee is denominated in the asset received, matching real venues'
	// default commission handling: a buy's fee comes out of the base
	// asset bought.
	fee := qty.Mul(e.cap.TakerFee)
	return exchange.OrderResult{
		OrderID:     uuid.NewString(),
		FilledPrice: t.Ask,
		FilledQty:   qty,
		Fee:         fee,
		FilledAt:    time.Now().UTC(),
	}, nil
}

func (e *Exchange) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (exchange.OrderResult, error) {
	if err := e.failureForSymbol("MarketSell", symbol); err != nil {
		return exchange.OrderResult{}, err
	}
	t, err := e.FetchTicker(ctx, symbol)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	fee := qty.Mul(t.Bid).Mul(e.cap.TakerFee)
	return exchange.OrderResult{
		OrderID:     uuid.NewString(),
		FilledPrice: t.Bid,
		FilledQty:   qty,
		Fee:         fee,
		FilledAt:    time.Now().UTC(),
	}, nil
}

func (e *Exchange) RequestWithdrawal(ctx context.Context, asset string, amount decimal.Decimal, destAddr, network string) (exchange.WithdrawalResult, error) {
	if err := e.failure("RequestWithdrawal"); err != nil {
		return exchange.WithdrawalResult{}, err
	}
	if !e.cap.CanWithdraw {
		return exchange.WithdrawalResult{}, domain.NewError(domain.ErrRejected, "testexchange.RequestWithdrawal", fmt.Errorf("withdrawals disabled"))
	}
	id := uuid.NewString()
	e.mu.Lock()
	e.withdrawals[id] = domain.TransferPending
	e.mu.Unlock()
	return exchange.WithdrawalResult{TransferID: id, Fee: decimal.NewFromFloat(0.0005)}, nil
}

func (e *Exchange) FetchWithdrawalStatus(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	if err := e.failure("FetchWithdrawalStatus"); err != nil {
		return "", err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	status, ok := e.withdrawals[transferID]
	if !ok {
		return "", domain.NewError(domain.ErrTransientNetwork, "testexchange.FetchWithdrawalStatus", fmt.Errorf("unknown transfer %s", transferID))
	}
	return status, nil
}

func (e *Exchange) FetchDepositAddress(ctx context.Context, asset, network string) (exchange.DepositAddress, error) {
	if err := e.failure("FetchDepositAddress"); err != nil {
		return exchange.DepositAddress{}, err
	}
	return exchange.DepositAddress{Address: "test-addr-" + asset}, nil
}

func (e *Exchange) Close() error { return nil }

var _ exchange.Adapter = (*Exchange)(nil)
