package allocator_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/cryptosentinel/internal/allocator"
	"github.com/aristath/cryptosentinel/internal/domain"
)

func newAllocator() *allocator.Allocator {
	return allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassCrossExchange, InitialCapital: decimal.NewFromInt(1000)},
		{Class: domain.ClassTriangular, InitialCapital: decimal.NewFromInt(1000)},
	}, zerolog.Nop())
}

func TestReserveAndRelease(t *testing.T) {
	a := newAllocator()

	token, err := a.Reserve(domain.ClassTriangular, decimal.NewFromInt(200))
	require.NoError(t, err)
	require.NotEmpty(t, token)

	snap := a.Snapshot()
	assert.True(t, snap[domain.ClassTriangular].Available.Equal(decimal.NewFromInt(800)))

	require.NoError(t, a.Release(token, decimal.NewFromInt(220)))

	snap = a.Snapshot()
	assert.True(t, snap[domain.ClassTriangular].Available.Equal(decimal.NewFromInt(1020)))
}

func TestReserveInsufficientCapitalFails(t *testing.T) {
	a := newAllocator()

	_, err := a.Reserve(domain.ClassCrossExchange, decimal.NewFromInt(5000))
	require.Error(t, err)

	var derr *domain.DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, domain.ErrInsufficientFunds, derr.Kind)
}

func TestReleaseUnknownTokenFails(t *testing.T) {
	a := newAllocator()
	err := a.Release("not-a-real-token", decimal.NewFromInt(10))
	require.Error(t, err)
}

func TestReserveUnknownClassFails(t *testing.T) {
	a := newAllocator()
	_, err := a.Reserve(domain.OpportunityClass("unknown"), decimal.NewFromInt(1))
	require.Error(t, err)
}

func TestRebalanceRespectsShareBounds(t *testing.T) {
	a := allocator.New([]allocator.ClassConfig{
		{Class: domain.ClassCrossExchange, InitialCapital: decimal.NewFromInt(1000), Limits: allocator.ClassLimits{
			MinShare: decimal.NewFromFloat(0.2), MaxShare: decimal.NewFromFloat(0.8),
		}},
		{Class: domain.ClassTriangular, InitialCapital: decimal.NewFromInt(1000), Limits: allocator.ClassLimits{
			MinShare: decimal.NewFromFloat(0.2), MaxShare: decimal.NewFromFloat(0.8),
		}},
	}, zerolog.Nop())

	// Drive triangular's recent returns strongly positive and cross-exchange
	// strongly negative so rebalance would want to move everything to
	// triangular, but MaxShare clamps it to 0.8.
	tok1, err := a.Reserve(domain.ClassTriangular, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, a.Release(tok1, decimal.NewFromInt(500)))

	tok2, err := a.Reserve(domain.ClassCrossExchange, decimal.NewFromInt(100))
	require.NoError(t, err)
	require.NoError(t, a.Release(tok2, decimal.NewFromInt(0)))

	a.Rebalance()

	snap := a.Snapshot()
	total := snap[domain.ClassCrossExchange].AllocatedTotal.Add(snap[domain.ClassTriangular].AllocatedTotal)
	triShare := snap[domain.ClassTriangular].AllocatedTotal.Div(total)
	assert.True(t, triShare.LessThanOrEqual(decimal.NewFromFloat(0.8)))
	assert.True(t, triShare.GreaterThanOrEqual(decimal.NewFromFloat(0.2)))
}
