package marketdata_test

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/testexchange"
	"github.com/aristath/cryptosentinel/internal/marketdata"
)

func newTestService(t *testing.T) (*marketdata.Service, *testexchange.Exchange) {
	t.Helper()
	pool := exchange.NewPool(zerolog.Nop())
	ex := testexchange.New(domain.Exchange{ID: "binance", Symbols: []string{"BTC/USDT"}})
	ex.SetQuote("BTC/USDT", decimal.NewFromInt(30000), decimal.NewFromInt(30010))
	pool.Register(ex)

	svc := marketdata.New(marketdata.Config{
		Pool:         pool,
		Symbols:      []string{"BTC/USDT"},
		PollInterval: 50 * time.Millisecond,
		Log:          zerolog.Nop(),
	})
	return svc, ex
}

func TestServiceLatestAbsentBeforeFirstPoll(t *testing.T) {
	svc, _ := newTestService(t)
	_, ok := svc.Latest("binance", "BTC/USDT")
	assert.False(t, ok)
}

func TestServicePublishesAndNotifiesSubscribers(t *testing.T) {
	svc, _ := newTestService(t)
	ch, unsubscribe := svc.Subscribe()
	defer unsubscribe()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	select {
	case n := <-ch:
		assert.Equal(t, "binance|BTC/USDT", n.Key)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for publish notification")
	}

	ticker, ok := svc.Latest("binance", "BTC/USDT")
	require.True(t, ok)
	assert.True(t, ticker.Bid.Equal(decimal.NewFromInt(30000)))
}

func TestSnapshotIsConsistentAcrossKeys(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Start(ctx))
	defer svc.Stop()

	require.Eventually(t, func() bool {
		_, ok := svc.Latest("binance", "BTC/USDT")
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	snap := svc.Snapshot()
	assert.Contains(t, snap, "binance|BTC/USDT")
}
