package arbitrage

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

// legFill records one executed triangular leg, enough to reverse it during
// a best-effort unwind.
type legFill struct {
	step domain.TriStep
	qty  decimal.Decimal // base-asset quantity bought (buy leg) or sold (sell leg)
}

// driveTriangular executes spec.md §4.5's triangular path: three market
// orders in sequence on a single exchange, working amount updated from
// each leg's actual fill. A non-retryable failure on leg 2 or 3 triggers a
// best-effort unwind of whatever legs already filled. Every transition is
// written back through h so external readers observe progress as it
// happens, not just the final outcome.
func (x *Executor) driveTriangular(ctx context.Context, h *Handle) {
	task := h.Task()

	adapter, err := x.pool.Get(task.Opportunity.Exchange)
	if err != nil {
		h.set(failTask(task, "lookup_exchange", err, domain.ErrConfigInvalid))
		return
	}

	amount := task.ReservedCapital
	var fills []legFill

	for i, step := range task.Opportunity.Path {
		stepName := fmt.Sprintf("leg_%d_%s_%s", i+1, step.Symbol, step.Direction)
		next, qty, err := x.runTriLeg(ctx, adapter, step, amount)
		if err != nil {
			task.AppendStep(stepName, false, errString(err), classifyErr(err))
			h.set(task)
			h.set(x.unwindTriangular(ctx, adapter, task, fills, err))
			return
		}
		task.AppendStep(stepName, true, fmt.Sprintf("amount now %s", next), "")
		h.set(task)
		fills = append(fills, legFill{step: step, qty: qty})
		amount = next
	}

	task.State = domain.TaskCompleted
	task.RealizedPnL = amount.Sub(task.ReservedCapital)
	task.ReleasedCapital = amount
	h.set(task)
}

// runTriLeg executes one leg and returns the new working amount (in the
// asset the leg converts into) plus the base-asset quantity moved, used for
// unwind bookkeeping.
func (x *Executor) runTriLeg(ctx context.Context, adapter exchange.Adapter, step domain.TriStep, amount decimal.Decimal) (decimal.Decimal, decimal.Decimal, error) {
	callCtx, cancel := exchange.WithCallTimeout(ctx)
	defer cancel()

	ticker, err := adapter.FetchTicker(callCtx, step.Symbol)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}

	switch step.Direction {
	case domain.TriBuy:
		if ticker.Ask.IsZero() {
			return decimal.Zero, decimal.Zero, domain.NewError(domain.ErrOpportunityStale, "arbitrage.runTriLeg", fmt.Errorf("zero ask for %s", step.Symbol))
		}
		qty := amount.Div(ticker.Ask)
		var res exchange.OrderResult
		err := withRetry(ctx, x.log, "MarketBuy:"+step.Symbol, func() error {
			callCtx, cancel := exchange.WithCallTimeout(ctx)
			defer cancel()
			var err error
			res, err = adapter.MarketBuy(callCtx, step.Symbol, qty)
			return err
		})
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		received := res.FilledQty.Sub(res.Fee)
		return received, res.FilledQty, nil

	case domain.TriSell:
		var res exchange.OrderResult
		err := withRetry(ctx, x.log, "MarketSell:"+step.Symbol, func() error {
			callCtx, cancel := exchange.WithCallTimeout(ctx)
			defer cancel()
			var err error
			res, err = adapter.MarketSell(callCtx, step.Symbol, amount)
			return err
		})
		if err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		proceeds := res.FilledQty.Mul(res.FilledPrice).Sub(res.Fee)
		return proceeds, res.FilledQty, nil
	}

	return decimal.Zero, decimal.Zero, domain.NewError(domain.ErrInvariantViolation, "arbitrage.runTriLeg", fmt.Errorf("unknown direction %q", step.Direction))
}

// unwindTriangular attempts to reverse whatever legs already filled,
// cascading backward from the most recently filled leg to the first, each
// reversal's proceeds feeding the amount reversed next, recovering as much
// of the starting asset as possible. It records the terminal state:
// failed_unwound (every filled leg reversed, or stopped by a failed
// reversal after at least one leg unwound successfully; ReleasedCapital is
// whatever was recovered), failed_stuck (the very first reversal attempted
// failed, capital stranded mid-path), or failed with the full reservation
// released when no leg had filled.
func (x *Executor) unwindTriangular(ctx context.Context, adapter exchange.Adapter, task domain.ArbitrageTask, fills []legFill, cause error) domain.ArbitrageTask {
	if len(fills) == 0 {
		task.State = domain.TaskFailed
		task.ReleasedCapital = task.ReservedCapital
		task.RealizedPnL = decimal.Zero
		return task
	}

	amount := decimal.Zero
	unwound := 0
	for i := len(fills) - 1; i >= 0; i-- {
		leg := fills[i]
		qty := leg.qty
		if unwound > 0 {
			// The previous reversal's proceeds are denominated in the asset
			// this leg originally consumed; that is exactly the quantity to
			// feed into reversing it.
			qty = amount
		}
		reversed, _, err := x.runTriLeg(ctx, adapter, reverseStep(leg.step), qty)
		if err != nil {
			task.AppendStep(fmt.Sprintf("unwind_leg_%d", i+1), false, errString(err), classifyErr(err))
			if unwound == 0 {
				task.State = domain.TaskFailedStuck
				task.ReleasedCapital = decimal.Zero
				task.RealizedPnL = task.ReleasedCapital.Sub(task.ReservedCapital)
				return task
			}
			task.State = domain.TaskFailedUnwound
			task.ReleasedCapital = amount
			task.RealizedPnL = amount.Sub(task.ReservedCapital)
			return task
		}
		task.AppendStep(fmt.Sprintf("unwind_leg_%d", i+1), true, fmt.Sprintf("recovered %s", reversed), "")
		amount = reversed
		unwound++
	}

	task.AppendStep("unwind", true, fmt.Sprintf("recovered %s after %s", amount, errString(cause)), "")
	task.State = domain.TaskFailedUnwound
	task.ReleasedCapital = amount
	task.RealizedPnL = amount.Sub(task.ReservedCapital)
	return task
}

// reverseStep returns the opposite-direction leg for the same symbol, used
// to unwind one filled leg.
func reverseStep(step domain.TriStep) domain.TriStep {
	dir := domain.TriSell
	if step.Direction == domain.TriSell {
		dir = domain.TriBuy
	}
	return domain.TriStep{Symbol: step.Symbol, Direction: dir}
}

func classifyErr(err error) domain.ErrKind {
	var derr *domain.DomainError
	if errors.As(err, &derr) {
		return derr.Kind
	}
	return domain.ErrTransientNetwork
}
