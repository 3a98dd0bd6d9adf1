package exchange_test

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/testexchange"
)

func TestPoolRegisterAndGet(t *testing.T) {
	pool := exchange.NewPool(zerolog.Nop())
	ex := testexchange.New(domain.Exchange{ID: "binance"})
	pool.Register(ex)

	got, err := pool.Get("binance")
	require.NoError(t, err)
	assert.Equal(t, domain.ExchangeID("binance"), got.ID())

	_, err = pool.Get("unknown")
	assert.Error(t, err)
}

func TestPoolAllReturnsSnapshot(t *testing.T) {
	pool := exchange.NewPool(zerolog.Nop())
	pool.Register(testexchange.New(domain.Exchange{ID: "binance"}))
	pool.Register(testexchange.New(domain.Exchange{ID: "okx"}))

	all := pool.All()
	assert.Len(t, all, 2)
}

func TestTestExchangeMarketBuySellUseSeededQuote(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance", TakerFee: decimal.NewFromFloat(0.001)})
	ex.SetQuote("BTC/USDT", decimal.NewFromInt(30000), decimal.NewFromInt(30010))

	ctx := context.Background()
	buy, err := ex.MarketBuy(ctx, "BTC/USDT", decimal.NewFromFloat(0.01))
	require.NoError(t, err)
	assert.True(t, buy.FilledPrice.Equal(decimal.NewFromInt(30010)))

	sell, err := ex.MarketSell(ctx, "BTC/USDT", decimal.NewFromFloat(0.01))
	require.NoError(t, err)
	assert.True(t, sell.FilledPrice.Equal(decimal.NewFromInt(30000)))
}

func TestTestExchangeScriptedFailure(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance"})
	ex.Fail["MarketBuy"] = domain.ErrInsufficientFunds

	_, err := ex.MarketBuy(context.Background(), "BTC/USDT", decimal.NewFromInt(1))
	require.Error(t, err)
	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrInsufficientFunds, derr.Kind)
}

func TestTestExchangeWithdrawalStatusScripted(t *testing.T) {
	ex := testexchange.New(domain.Exchange{ID: "binance", CanWithdraw: true})
	ctx := context.Background()

	res, err := ex.RequestWithdrawal(ctx, "BTC", decimal.NewFromFloat(0.01), "addr", "BTC")
	require.NoError(t, err)

	status, err := ex.FetchWithdrawalStatus(ctx, res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferPending, status)

	ex.SetWithdrawalStatus(res.TransferID, domain.TransferConfirmed)
	status, err = ex.FetchWithdrawalStatus(ctx, res.TransferID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransferConfirmed, status)
}
