package arbitrage_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/allocator"
	"github.com/aristath/cryptosentinel/internal/arbitrage"
	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/testexchange"
)

func waitDone(t *testing.T, h *arbitrage.Handle) domain.ArbitrageTask {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("task did not reach a terminal state in time")
	}
	return h.Task()
}

func TestTriangularExecutionSucceeds(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001)})
	ex.SetQuote("BTC/USDT", decimal.NewFromInt(29990), decimal.NewFromInt(30000))
	ex.SetQuote("ETH/BTC", decimal.NewFromFloat(0.0499), decimal.NewFromFloat(0.05))
	ex.SetQuote("ETH/USDT", decimal.NewFromInt(1530), decimal.NewFromFloat(1530.5))

	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(ex)

	alloc := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassTriangular, InitialCapital: decimal.NewFromInt(10000)},
	}, zerolog.Nop())

	exec := arbitrage.New(arbitrage.Config{Pool: pool, Allocator: alloc, Log: zerolog.Nop()})

	opp := domain.ArbitrageOpportunity{
		Class:    domain.ClassTriangular,
		Exchange: "binance",
		Path: [3]domain.TriStep{
			{Symbol: "BTC/USDT", Direction: domain.TriBuy},
			{Symbol: "ETH/BTC", Direction: domain.TriBuy},
			{Symbol: "ETH/USDT", Direction: domain.TriSell},
		},
	}

	h, err := exec.Start(context.Background(), opp, decimal.NewFromInt(1000))
	require.NoError(t, err)

	final := waitDone(t, h)
	assert.Equal(t, domain.TaskCompleted, final.State)
	assert.True(t, final.ReleasedCapital.GreaterThan(decimal.Zero))
	assert.NotEmpty(t, final.StepLog)

	snap := alloc.Snapshot()
	assert.True(t, snap[domain.ClassTriangular].Available.GreaterThan(decimal.NewFromInt(9000)))
}

func TestTriangularUnwindsOnMidPathFailure(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001)})
	ex.SetQuote("BTC/USDT", decimal.NewFromInt(29990), decimal.NewFromInt(30000))
	ex.SetQuote("ETH/BTC", decimal.NewFromFloat(0.0499), decimal.NewFromFloat(0.05))
	ex.SetQuote("ETH/USDT", decimal.NewFromInt(1530), decimal.NewFromFloat(1530.5))
	ex.Fail["MarketSell"] = domain.ErrRejected // third leg (a sell) always rejected

	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(ex)

	alloc := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassTriangular, InitialCapital: decimal.NewFromInt(10000)},
	}, zerolog.Nop())

	exec := arbitrage.New(arbitrage.Config{Pool: pool, Allocator: alloc, Log: zerolog.Nop()})

	opp := domain.ArbitrageOpportunity{
		Class:    domain.ClassTriangular,
		Exchange: "binance",
		Path: [3]domain.TriStep{
			{Symbol: "BTC/USDT", Direction: domain.TriBuy},
			{Symbol: "ETH/BTC", Direction: domain.TriBuy},
			{Symbol: "ETH/USDT", Direction: domain.TriSell},
		},
	}

	h, err := exec.Start(context.Background(), opp, decimal.NewFromInt(1000))
	require.NoError(t, err)

	final := waitDone(t, h)
	// Leg 3 is a sell, which always fails here; unwind reverses leg 2 (a
	// buy) via a sell, which also fails — so the unwind itself is stuck.
	assert.Equal(t, domain.TaskFailedStuck, final.State)
	assert.True(t, final.ReleasedCapital.IsZero())
}

func TestTriangularUnwindCascadesThroughBothFilledLegs(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001)})
	ex.SetQuote("BTC/USDT", decimal.NewFromInt(29990), decimal.NewFromInt(30000))
	ex.SetQuote("ETH/BTC", decimal.NewFromFloat(0.0499), decimal.NewFromFloat(0.05))
	ex.SetQuote("ETH/USDT", decimal.NewFromInt(1530), decimal.NewFromFloat(1530.5))
	// Only the third leg (ETH/USDT sell) is scripted to fail; both unwind
	// reversals (ETH/BTC sell, then BTC/USDT sell) are left free to succeed,
	// so the cascade through both filled legs is actually exercised instead
	// of dying on the first reversal attempt.
	ex.FailSymbol["MarketSell:ETH/USDT"] = domain.ErrRejected

	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(ex)

	alloc := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassTriangular, InitialCapital: decimal.NewFromInt(10000)},
	}, zerolog.Nop())

	exec := arbitrage.New(arbitrage.Config{Pool: pool, Allocator: alloc, Log: zerolog.Nop()})

	opp := domain.ArbitrageOpportunity{
		Class:    domain.ClassTriangular,
		Exchange: "binance",
		Path: [3]domain.TriStep{
			{Symbol: "BTC/USDT", Direction: domain.TriBuy},
			{Symbol: "ETH/BTC", Direction: domain.TriBuy},
			{Symbol: "ETH/USDT", Direction: domain.TriSell},
		},
	}

	h, err := exec.Start(context.Background(), opp, decimal.NewFromInt(1000))
	require.NoError(t, err)

	final := waitDone(t, h)
	// Both legs 1 (BTC/USDT buy) and 2 (ETH/BTC buy) filled before leg 3
	// failed; the unwind must cascade back through leg 2 then leg 1,
	// recovering capital denominated in the original starting asset
	// (USDT), not left mid-cascade in BTC.
	assert.Equal(t, domain.TaskFailedUnwound, final.State)
	assert.True(t, final.ReleasedCapital.GreaterThan(decimal.NewFromInt(500)),
		"recovered capital should be in USDT terms (hundreds), not stranded in BTC terms (~0.03): got %s", final.ReleasedCapital)
	assert.True(t, final.ReleasedCapital.LessThan(decimal.NewFromInt(1500)))
	unwindSteps := 0
	for _, step := range final.StepLog {
		if step.Step == "unwind_leg_1" || step.Step == "unwind_leg_2" {
			unwindSteps++
			assert.True(t, step.Success, "%s should have succeeded", step.Step)
		}
	}
	assert.Equal(t, 2, unwindSteps, "expected both unwind legs to be attempted and recorded")
}

func TestCrossExchangeExecutionSucceeds(t *testing.T) {
	buy := testexchange.New(domain.Exchange{ID: "okx", TakerFee: decimal.NewFromFloat(0.001), CanWithdraw: true})
	buy.SetQuote("BTC/USDT", decimal.NewFromInt(29490), decimal.NewFromInt(29500))

	sell := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001), CanDeposit: true})
	sell.SetQuote("BTC/USDT", decimal.NewFromInt(31000), decimal.NewFromInt(31010))

	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(buy)
	pool.Register(sell)

	alloc := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassCrossExchange, InitialCapital: decimal.NewFromInt(10000)},
	}, zerolog.Nop())

	exec := arbitrage.New(arbitrage.Config{
		Pool: pool, Allocator: alloc, Log: zerolog.Nop(),
		TransferPollInterval: 10 * time.Millisecond,
		TransferMaxWait:      time.Second,
	})

	opp := domain.ArbitrageOpportunity{
		Class:        domain.ClassCrossExchange,
		Symbol:       "BTC/USDT",
		BuyExchange:  "okx",
		SellExchange: "binance",
		BuyPrice:     decimal.NewFromInt(29500),
		SellPrice:    decimal.NewFromInt(31000),
	}

	h, err := exec.Start(context.Background(), opp, decimal.NewFromInt(1000))
	require.NoError(t, err)

	// Let the withdrawal sit pending briefly, then script it confirmed so
	// the poll loop observes a terminal status within TransferMaxWait.
	time.Sleep(30 * time.Millisecond)
	task := h.Task()
	require.NotNil(t, task.Transfer)
	buy.SetWithdrawalStatus(task.Transfer.ID, domain.TransferConfirmed)

	final := waitDone(t, h)
	assert.Equal(t, domain.TaskCompleted, final.State)
	assert.True(t, final.RealizedPnL.GreaterThan(decimal.Zero))
}

func TestCrossExchangeTransferTimeoutFailsTask(t *testing.T) {
	buy := testexchange.New(domain.Exchange{ID: "okx", TakerFee: decimal.NewFromFloat(0.001), CanWithdraw: true})
	buy.SetQuote("BTC/USDT", decimal.NewFromInt(29900), decimal.NewFromInt(29910))

	sell := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001), CanDeposit: true})
	sell.SetQuote("BTC/USDT", decimal.NewFromInt(30200), decimal.NewFromInt(30210))

	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(buy)
	pool.Register(sell)

	alloc := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassCrossExchange, InitialCapital: decimal.NewFromInt(10000)},
	}, zerolog.Nop())

	exec := arbitrage.New(arbitrage.Config{
		Pool: pool, Allocator: alloc, Log: zerolog.Nop(),
		TransferPollInterval: 5 * time.Millisecond,
		TransferMaxWait:      20 * time.Millisecond,
	})

	opp := domain.ArbitrageOpportunity{
		Class:        domain.ClassCrossExchange,
		Symbol:       "BTC/USDT",
		BuyExchange:  "okx",
		SellExchange: "binance",
		BuyPrice:     decimal.NewFromInt(29910),
		SellPrice:    decimal.NewFromInt(30200),
	}

	h, err := exec.Start(context.Background(), opp, decimal.NewFromInt(1000))
	require.NoError(t, err)

	final := waitDone(t, h)
	assert.Equal(t, domain.TaskFailedTimeout, final.State)
	assert.True(t, final.ReleasedCapital.IsZero())

	snap := alloc.Snapshot()
	assert.True(t, snap[domain.ClassCrossExchange].Available.Equal(decimal.NewFromInt(9000)))
}
