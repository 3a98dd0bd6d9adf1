package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeHasSymbol(t *testing.T) {
	e := Exchange{ID: "binance", Symbols: []string{"BTCUSDT", "ETHUSDT"}}
	assert.True(t, e.HasSymbol("BTCUSDT"))
	assert.False(t, e.HasSymbol("DOGEUSDT"))
	assert.False(t, Exchange{}.HasSymbol("BTCUSDT"))
}
