package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

// driveCross executes spec.md §4.5's cross-exchange path: buy on
// buy_exchange, withdraw to sell_exchange, poll the transfer until
// confirmed or the bounded wait elapses, then sell on sell_exchange.
// Capital stuck at the buy exchange after a failed or timed-out transfer
// is reported in the step log but never auto-recovered, per spec. Every
// transition is written back through h so external readers (e.g. the
// transfer poller in a separate process) see awaiting_transfer as soon as
// it happens, not only the task's terminal outcome.
func (x *Executor) driveCross(ctx context.Context, h *Handle) {
	task := h.Task()
	opp := task.Opportunity

	buyAdapter, err := x.pool.Get(opp.BuyExchange)
	if err != nil {
		h.set(failTask(task, "lookup_buy_exchange", err, domain.ErrConfigInvalid))
		return
	}
	sellAdapter, err := x.pool.Get(opp.SellExchange)
	if err != nil {
		h.set(failTask(task, "lookup_sell_exchange", err, domain.ErrConfigInvalid))
		return
	}

	asset := baseAsset(opp.Symbol)

	qty := task.ReservedCapital.Div(opp.BuyPrice)
	var buyRes exchange.OrderResult
	err = withRetry(ctx, x.log, "MarketBuy:"+opp.Symbol, func() error {
		callCtx, cancel := exchange.WithCallTimeout(ctx)
		defer cancel()
		var err error
		buyRes, err = buyAdapter.MarketBuy(callCtx, opp.Symbol, qty)
		return err
	})
	if err != nil {
		task.AppendStep("buy", false, errString(err), classifyErr(err))
		task.State = domain.TaskFailed
		task.ReleasedCapital = task.ReservedCapital
		task.RealizedPnL = decimal.Zero
		h.set(task)
		return
	}
	held := buyRes.FilledQty.Sub(buyRes.Fee)
	task.AppendStep("buy", true, fmt.Sprintf("bought %s %s at %s", held, asset, buyRes.FilledPrice), "")
	h.set(task)

	depositCtx, cancel := exchange.WithCallTimeout(ctx)
	dest, err := sellAdapter.FetchDepositAddress(depositCtx, asset, "")
	cancel()
	if err != nil {
		task.AppendStep("fetch_deposit_address", false, errString(err), classifyErr(err))
		task.State = domain.TaskFailed
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		return
	}

	var wdRes exchange.WithdrawalResult
	err = withRetry(ctx, x.log, "RequestWithdrawal:"+asset, func() error {
		callCtx, cancel := exchange.WithCallTimeout(ctx)
		defer cancel()
		var err error
		wdRes, err = buyAdapter.RequestWithdrawal(callCtx, asset, held, dest.Address, "")
		return err
	})
	if err != nil {
		task.AppendStep("request_withdrawal", false, errString(err), classifyErr(err))
		task.State = domain.TaskFailed
		// Capital is stuck in `asset` on the buy exchange — reported, not
		// recovered (spec.md §4.5).
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		return
	}

	task.Transfer = &domain.Transfer{
		ID:             wdRes.TransferID,
		FromExchange:   opp.BuyExchange,
		ToExchange:     opp.SellExchange,
		Asset:          asset,
		Amount:         held,
		Fee:            wdRes.Fee,
		InitiatedAt:    time.Now().UTC(),
		ObservedStatus: domain.TransferPending,
	}
	task.State = domain.TaskAwaitingTransfer
	task.AppendStep("initiate_transfer", true, "transfer "+wdRes.TransferID+" initiated", "")
	h.set(task)
	x.persist(ctx, h)

	x.settleCross(ctx, h, buyAdapter, sellAdapter, opp.Symbol, held)
}

// settleCross polls an initiated transfer through to confirmation (or
// timeout/failure) and, once confirmed, sells the proceeds on
// sellAdapter. Shared by the fresh driveCross path and Resume so a
// task reloaded from PL after a restart settles through the exact same
// code as one driven start-to-finish in one process lifetime (spec.md
// §5: "AX tasks in awaiting_transfer persist their state and return; they
// resume after restart via PL replay").
func (x *Executor) settleCross(ctx context.Context, h *Handle, buyAdapter, sellAdapter exchange.Adapter, symbol string, held decimal.Decimal) {
	task := h.Task()

	status, err := x.pollTransfer(ctx, buyAdapter, task.Transfer)
	task.Transfer.ObservedStatus = status
	task.Transfer.LastCheckedAt = time.Now().UTC()

	switch {
	case err != nil:
		task.AppendStep("poll_transfer", false, errString(err), domain.ErrTransferTimeout)
		task.State = domain.TaskFailedTimeout
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		return
	case status == domain.TransferFailed:
		task.AppendStep("poll_transfer", false, "transfer failed", domain.ErrTransferFailed)
		task.State = domain.TaskFailed
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		return
	}

	task.AppendStep("poll_transfer", true, "transfer confirmed", "")
	task.State = domain.TaskSettling
	h.set(task)

	sellQty := held.Sub(task.Transfer.Fee)
	var sellRes exchange.OrderResult
	err = withRetry(ctx, x.log, "MarketSell:"+symbol, func() error {
		callCtx, cancel := exchange.WithCallTimeout(ctx)
		defer cancel()
		var err error
		sellRes, err = sellAdapter.MarketSell(callCtx, symbol, sellQty)
		return err
	})
	if err != nil {
		task.AppendStep("sell", false, errString(err), classifyErr(err))
		task.State = domain.TaskFailed
		// Asset landed on the sell exchange but couldn't be liquidated —
		// still recoverable in principle, but AX does not retry beyond the
		// configured attempts; reported as stuck.
		task.ReleasedCapital = decimal.Zero
		task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
		h.set(task)
		return
	}

	proceeds := sellRes.FilledQty.Mul(sellRes.FilledPrice).Sub(sellRes.Fee)
	task.AppendStep("sell", true, fmt.Sprintf("sold for %s", proceeds), "")
	task.State = domain.TaskCompleted
	task.ReleasedCapital = proceeds
	task.RealizedPnL = proceeds.Sub(task.ReservedCapital)
	h.set(task)
}

// pollTransfer checks the withdrawal status on the configured interval
// until it observes a terminal status or transferMaxWait elapses.
func (x *Executor) pollTransfer(ctx context.Context, adapter exchange.Adapter, t *domain.Transfer) (domain.TransferStatus, error) {
	deadline := time.Now().Add(x.transferMaxWait)
	ticker := time.NewTicker(x.transferPollInterval)
	defer ticker.Stop()

	for {
		callCtx, cancel := exchange.WithCallTimeout(ctx)
		status, err := adapter.FetchWithdrawalStatus(callCtx, t.ID)
		cancel()
		if err == nil && (status == domain.TransferConfirmed || status == domain.TransferFailed) {
			return status, nil
		}
		if time.Now().After(deadline) {
			return domain.TransferPending, domain.NewError(domain.ErrTransferTimeout, "arbitrage.pollTransfer", fmt.Errorf("transfer %s did not settle within %s", t.ID, x.transferMaxWait))
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return domain.TransferPending, ctx.Err()
		}
	}
}

func baseAsset(symbol string) string {
	for i, r := range symbol {
		if r == '/' {
			return symbol[:i]
		}
	}
	return symbol
}
