// Package config loads the single configuration object the whole system
// runs from: exchange credentials, symbols, thresholds, fund allocation,
// loop intervals, tier gates, simulation parameters, persistence DSN and an
// optional proxy (spec.md §6). All values are optional except exchange API
// credentials for any exchange marked enabled.
//
// Configuration Loading Order:
// 1. Load from .env file (if present)
// 2. Read environment variables with defaults
// 3. Validate
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

// ExchangeConfig is one venue's credentials and capability flags.
type ExchangeConfig struct {
	APIKey        string
	APISecret     string
	Passphrase    string // required by some venues (e.g. OKX); empty otherwise
	Enabled       bool
	RateLimitPerSec int
}

// FundAllocation splits total capital between the two opportunity classes.
// CrossExchange + Triangular must sum to 1.
type FundAllocation struct {
	CrossExchange decimal.Decimal
	Triangular    decimal.Decimal
}

// Intervals holds every loop's cadence.
type Intervals struct {
	MarketPollSec    int
	FastEvolutionMin int
	SlowEvolutionHr  int
	TransferPollSec  int
}

// Gates holds the tier-promotion/elimination thresholds SG and ES evaluate
// against (spec.md §4.8, §4.9).
type Gates struct {
	DisplayMinScore    decimal.Decimal
	TradingMinScore    decimal.Decimal
	MinTrades          int
	MinWinRate         decimal.Decimal // ratio in [0,1]
	ConsecImprovements int
	ParamRevalHours    int
	ParamRevalTrades   int
	// EliminationScore/EliminationDays are spec.md §4.6's elimination gate:
	// a strategy whose rolling score stays below EliminationScore for
	// EliminationDays is retired (Active=false, lineage retained).
	EliminationScore decimal.Decimal
	EliminationDays  int
	// ParamStabilityWindow is the combined time-elapsed component of
	// spec.md's "parameter stability window" — a display-tier strategy
	// cannot promote to trading if its parameters changed within this
	// window (§4.6, §4.10's glossary entry).
	ParamStabilityWindow time.Duration
}

// Simulation holds SE's backtest-window parameters.
type Simulation struct {
	DaysPerRun        int
	MinTradesRequired int
}

// Persistence holds PL's connection string.
type Persistence struct {
	DSN string
}

// Dispatch holds the Signal Dispatcher's per-trade notional sizing and
// cadence, grounded on original_source/modern_strategy_manager.py's
// real_trading_amount/validation_amount constants (§4.11).
type Dispatch struct {
	RealNotional       decimal.Decimal
	ValidationNotional decimal.Decimal
	PollInterval       time.Duration
	PrimaryExchange    string
}

// Arbitrage holds the per-opportunity capital commitment AX reserves via
// FA when the opportunity channel from OD hands it a ranked opportunity
// (§4.5, §9's "connected by a channel of opportunities").
type Arbitrage struct {
	TaskNotional decimal.Decimal
	MaxInFlight  int
}

// Config is the fully loaded, validated application configuration.
type Config struct {
	Exchanges          map[string]ExchangeConfig
	Symbols            []string
	MinCrossPct        decimal.Decimal
	MinTriangularPct   decimal.Decimal
	CloseThresholdPct  decimal.Decimal
	FundTotal          decimal.Decimal
	FundAllocation     FundAllocation
	Intervals          Intervals
	Gates              Gates
	Simulation         Simulation
	Persistence        Persistence
	Dispatch           Dispatch
	Arbitrage          Arbitrage
	ProxyURL           string // optional HTTP/SOCKS proxy
	LogLevel           string
	DevMode            bool
}

// knownExchanges lists the venues this build recognizes credentials for.
// Adding a venue means adding its adapter under internal/exchange, not
// editing this list alone.
var knownExchanges = []string{"binance", "okx", "bitget"}

// Load reads configuration from environment variables, falling back to
// .env if present, and validates the result.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Exchanges:         loadExchanges(),
		Symbols:           splitCSV(getEnv("SYMBOLS", "BTC/USDT,ETH/USDT,BNB/USDT")),
		MinCrossPct:       getEnvAsDecimal("MIN_CROSS_PCT", "0.003"),
		MinTriangularPct:  getEnvAsDecimal("MIN_TRIANGULAR_PCT", "0.002"),
		CloseThresholdPct: getEnvAsDecimal("CLOSE_THRESHOLD_PCT", "0.0005"),
		FundTotal:         getEnvAsDecimal("FUND_TOTAL", "1000"),
		FundAllocation: FundAllocation{
			CrossExchange: getEnvAsDecimal("FUND_ALLOC_CROSS", "0.6"),
			Triangular:    getEnvAsDecimal("FUND_ALLOC_TRIANGULAR", "0.4"),
		},
		Intervals: Intervals{
			MarketPollSec:    getEnvAsInt("MARKET_POLL_SEC", 2),
			FastEvolutionMin: getEnvAsInt("FAST_EVOLUTION_MIN", 15),
			SlowEvolutionHr:  getEnvAsInt("SLOW_EVOLUTION_HR", 6),
			TransferPollSec:  getEnvAsInt("TRANSFER_POLL_SEC", 30),
		},
		Gates: Gates{
			DisplayMinScore:    getEnvAsDecimal("GATE_DISPLAY_MIN_SCORE", "40"),
			TradingMinScore:    getEnvAsDecimal("GATE_TRADING_MIN_SCORE", "65"),
			MinTrades:          getEnvAsInt("GATE_MIN_TRADES", 20),
			MinWinRate:         getEnvAsDecimal("GATE_MIN_WIN_RATE", "0.5"),
			ConsecImprovements: getEnvAsInt("GATE_CONSEC_IMPROVEMENTS", 3),
			ParamRevalHours:      getEnvAsInt("GATE_PARAM_REVAL_HOURS", 24),
			ParamRevalTrades:     getEnvAsInt("GATE_PARAM_REVAL_TRADES", 20),
			EliminationScore:     getEnvAsDecimal("GATE_ELIMINATION_SCORE", "15"),
			EliminationDays:      getEnvAsInt("GATE_ELIMINATION_DAYS", 15),
			ParamStabilityWindow: time.Duration(getEnvAsInt("GATE_PARAM_STABILITY_HOURS", 24)) * time.Hour,
		},
		Simulation: Simulation{
			DaysPerRun:        getEnvAsInt("SIM_DAYS_PER_RUN", 3),
			MinTradesRequired: getEnvAsInt("SIM_MIN_TRADES_REQUIRED", 10),
		},
		Persistence: Persistence{
			DSN: getEnv("PERSISTENCE_DSN", "file:sentinel.db?_journal=WAL"),
		},
		Dispatch: Dispatch{
			RealNotional:       getEnvAsDecimal("DISPATCH_REAL_NOTIONAL", "100"),
			ValidationNotional: getEnvAsDecimal("DISPATCH_VALIDATION_NOTIONAL", "50"),
			PollInterval:       time.Duration(getEnvAsInt("DISPATCH_POLL_SEC", 5)) * time.Second,
			PrimaryExchange:    getEnv("DISPATCH_PRIMARY_EXCHANGE", "binance"),
		},
		Arbitrage: Arbitrage{
			TaskNotional: getEnvAsDecimal("ARBITRAGE_TASK_NOTIONAL", "200"),
			MaxInFlight:  getEnvAsInt("ARBITRAGE_MAX_IN_FLIGHT", 5),
		},
		ProxyURL: getEnv("PROXY_URL", ""),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		DevMode:  getEnvAsBool("DEV_MODE", false),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks internal consistency. Any failure here is config_invalid
// (spec.md §7) — fatal at boot, never guessed around.
func (c *Config) Validate() error {
	for name, ex := range c.Exchanges {
		if !ex.Enabled {
			continue
		}
		if ex.APIKey == "" || ex.APISecret == "" {
			return fmt.Errorf("config_invalid: exchange %q is enabled but missing credentials", name)
		}
	}

	sum := c.FundAllocation.CrossExchange.Add(c.FundAllocation.Triangular)
	if sum.Sub(decimal.NewFromInt(1)).Abs().GreaterThan(decimal.NewFromFloat(0.0001)) {
		return fmt.Errorf("config_invalid: fund_allocation must sum to 1, got %s", sum)
	}
	if len(c.Symbols) == 0 {
		return fmt.Errorf("config_invalid: symbols must not be empty")
	}
	if c.Persistence.DSN == "" {
		return fmt.Errorf("config_invalid: persistence.dsn must not be empty")
	}
	return nil
}

func loadExchanges() map[string]ExchangeConfig {
	out := make(map[string]ExchangeConfig, len(knownExchanges))
	for _, name := range knownExchanges {
		prefix := strings.ToUpper(name)
		out[name] = ExchangeConfig{
			APIKey:          getEnv(prefix+"_API_KEY", ""),
			APISecret:       getEnv(prefix+"_API_SECRET", ""),
			Passphrase:      getEnv(prefix+"_PASSPHRASE", ""),
			Enabled:         getEnvAsBool(prefix+"_ENABLED", false),
			RateLimitPerSec: getEnvAsInt(prefix+"_RATE_LIMIT_PER_SEC", 10),
		}
	}
	return out
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvAsDecimal(key, defaultValue string) decimal.Decimal {
	value := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		d, _ = decimal.NewFromString(defaultValue)
	}
	return d
}
