package config

import (
	"os"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	saved := make(map[string]string, len(kv))
	for k := range kv {
		saved[k] = os.Getenv(k)
	}
	defer func() {
		for k, v := range saved {
			if v == "" {
				os.Unsetenv(k)
			} else {
				os.Setenv(k, v)
			}
		}
	}()

	for k, v := range kv {
		os.Setenv(k, v)
	}
	fn()
}

func TestLoadDefaultsAreValid(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NotNil(t, cfg)
	assert.NotEmpty(t, cfg.Symbols)
	assert.True(t, cfg.FundAllocation.CrossExchange.Add(cfg.FundAllocation.Triangular).Equal(decimal.NewFromInt(1)))
}

func TestLoadRejectsEnabledExchangeWithoutCredentials(t *testing.T) {
	withEnv(t, map[string]string{"BINANCE_ENABLED": "true", "BINANCE_API_KEY": "", "BINANCE_API_SECRET": ""}, func() {
		_, err := Load()
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "config_invalid")
	})
}

func TestLoadAcceptsEnabledExchangeWithCredentials(t *testing.T) {
	withEnv(t, map[string]string{
		"BINANCE_ENABLED":    "true",
		"BINANCE_API_KEY":    "key",
		"BINANCE_API_SECRET": "secret",
	}, func() {
		cfg, err := Load()
		require.NoError(t, err)
		assert.True(t, cfg.Exchanges["binance"].Enabled)
	})
}

func TestValidateRejectsFundAllocationNotSummingToOne(t *testing.T) {
	cfg := &Config{
		Symbols:        []string{"BTC/USDT"},
		FundAllocation: FundAllocation{CrossExchange: decimal.NewFromFloat(0.5), Triangular: decimal.NewFromFloat(0.6)},
		Persistence:    Persistence{DSN: "file:test.db"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "fund_allocation")
}

func TestValidateRejectsEmptySymbols(t *testing.T) {
	cfg := &Config{
		FundAllocation: FundAllocation{CrossExchange: decimal.NewFromFloat(0.6), Triangular: decimal.NewFromFloat(0.4)},
		Persistence:    Persistence{DSN: "file:test.db"},
	}
	err := cfg.Validate()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "symbols")
}

func TestSplitCSVTrimsAndDropsEmpty(t *testing.T) {
	got := splitCSV(" BTC/USDT, ETH/USDT ,,BNB/USDT")
	assert.Equal(t, []string{"BTC/USDT", "ETH/USDT", "BNB/USDT"}, got)
	assert.Nil(t, splitCSV(""))
}

func TestGetEnvAsDecimalFallsBackOnInvalidValue(t *testing.T) {
	withEnv(t, map[string]string{"MIN_CROSS_PCT": "not-a-number"}, func() {
		got := getEnvAsDecimal("MIN_CROSS_PCT", "0.003")
		assert.True(t, got.Equal(decimal.NewFromFloat(0.003)))
	})
}
