// Package venue implements the shared REST/WebSocket plumbing the three
// concrete EA adapters (binance, okx, bitget) all need: signed HTTP calls,
// per-exchange rate limiting, an idle-reaped streaming ticker connection,
// and JSON response translation into domain types. Each venue package
// supplies only what differs — base URL, signing scheme, endpoint paths,
// and precision/fee defaults.
package venue

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"nhooyr.io/websocket"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
)

// IdleTimeout is how long a streaming ticker connection may sit unused
// before the adapter closes it (spec.md §4.1 "idle connection reaping").
const IdleTimeout = 5 * time.Minute

// Signer produces the venue-specific auth headers/query params for a
// signed request. Each venue implements its own HMAC/passphrase scheme.
type Signer interface {
	Sign(method, path string, query url.Values, body []byte, ts time.Time) (headers map[string]string, signedQuery url.Values)
}

// HMACSigner is the common "HMAC-SHA256 over timestamp+method+path+body"
// scheme binance/okx/bitget all use, parameterized by header names.
type HMACSigner struct {
	APIKey      string
	APISecret   string
	Passphrase  string
	KeyHeader   string
	SignHeader  string
	TSHeader    string
	PassHeader  string // empty if the venue doesn't require a passphrase
}

func (s HMACSigner) Sign(method, path string, query url.Values, body []byte, ts time.Time) (map[string]string, url.Values) {
	timestamp := fmt.Sprintf("%d", ts.UnixMilli())
	prehash := timestamp + strings.ToUpper(method) + path + string(body)
	mac := hmac.New(sha256.New, []byte(s.APISecret))
	mac.Write([]byte(prehash))
	sig := hex.EncodeToString(mac.Sum(nil))

	headers := map[string]string{
		s.KeyHeader:  s.APIKey,
		s.SignHeader: sig,
		s.TSHeader:   timestamp,
	}
	if s.PassHeader != "" {
		headers[s.PassHeader] = s.Passphrase
	}
	return headers, query
}

// Config wires one venue instance.
type Config struct {
	BaseURL       string
	WSURL         string
	Capability    domain.Exchange
	Signer        Signer
	RateLimitPerSec int
	HTTPClient    *http.Client
	Log           zerolog.Logger
}

// Adapter is the shared exchange.Adapter implementation; venue packages
// construct one with their own Config and endpoint-path methods.
type Adapter struct {
	cfg    Config
	rl     *exchange.RateLimiter
	client *http.Client
	log    zerolog.Logger

	mu       sync.Mutex
	ws       *websocket.Conn
	wsLastUsed time.Time
	wsCancel func()

	// Paths lets each venue override endpoint construction without
	// reimplementing request signing/dispatch.
	Paths Paths
}

// Paths is the set of venue-specific endpoint templates.
type Paths struct {
	Ticker           func(symbol string) (method, path string, query url.Values)
	OrderBook        func(symbol string, depth int) (method, path string, query url.Values)
	Balance          func() (method, path string, query url.Values)
	Order            func(symbol, side string, qty decimal.Decimal) (method, path string, query url.Values, body []byte)
	Withdraw         func(asset string, amount decimal.Decimal, destAddr, network string) (method, path string, query url.Values, body []byte)
	WithdrawalStatus func(transferID string) (method, path string, query url.Values)
	DepositAddress   func(asset, network string) (method, path string, query url.Values)

	ParseTicker    func(body []byte, symbol string) (domain.Ticker, error)
	ParseOrderBook func(body []byte, symbol string, depth int) (domain.Ticker, error)
	ParseBalance   func(body []byte) (map[string]exchange.AssetBalance, error)
	ParseOrder     func(body []byte) (exchange.OrderResult, error)
	ParseWithdraw  func(body []byte) (exchange.WithdrawalResult, error)
	ParseStatus    func(body []byte) (domain.TransferStatus, error)
	ParseDeposit   func(body []byte) (exchange.DepositAddress, error)
}

// New builds the shared adapter. Venue packages call this from their own
// constructor after filling in Paths.
func New(cfg Config, paths Paths) *Adapter {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: exchange.DefaultCallTimeout}
	}
	return &Adapter{
		cfg:    cfg,
		rl:     exchange.NewRateLimiter(cfg.RateLimitPerSec),
		client: httpClient,
		log:    cfg.Log.With().Str("exchange", string(cfg.Capability.ID)).Logger(),
		Paths:  paths,
	}
}

func (a *Adapter) ID() domain.ExchangeID       { return a.cfg.Capability.ID }
func (a *Adapter) Capability() domain.Exchange { return a.cfg.Capability }

// do issues one rate-limited, signed HTTP request and returns the response
// body, classifying failures per spec.md §7.
func (a *Adapter) do(ctx context.Context, op, method, path string, query url.Values, body []byte) ([]byte, error) {
	ctx, cancel := exchange.WithCallTimeout(ctx)
	defer cancel()

	if err := a.rl.Wait(ctx); err != nil {
		return nil, domain.NewError(domain.ErrTransientNetwork, op, err)
	}

	headers, query := a.cfg.Signer.Sign(method, path, query, body, time.Now().UTC())

	full := a.cfg.BaseURL + path
	if len(query) > 0 {
		full += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, full, strings.NewReader(string(body)))
	if err != nil {
		return nil, domain.NewError(domain.ErrRejected, op, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	if len(body) > 0 {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, domain.NewError(domain.ErrTransientNetwork, op, ctx.Err())
		}
		return nil, domain.NewError(domain.ErrTransientNetwork, op, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewError(domain.ErrTransientNetwork, op, err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		return respBody, nil
	case http.StatusTooManyRequests:
		return nil, domain.NewError(domain.ErrRateLimited, op, fmt.Errorf("rate limited: %s", respBody))
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, domain.NewError(domain.ErrAuthFailed, op, fmt.Errorf("auth failed: %s", respBody))
	default:
		return nil, domain.NewError(domain.ErrRejected, op, fmt.Errorf("status %d: %s", resp.StatusCode, respBody))
	}
}

func (a *Adapter) FetchTicker(ctx context.Context, symbol string) (domain.Ticker, error) {
	method, path, query := a.Paths.Ticker(symbol)
	body, err := a.do(ctx, "FetchTicker", method, path, query, nil)
	if err != nil {
		return domain.Ticker{}, err
	}
	return a.Paths.ParseTicker(body, symbol)
}

func (a *Adapter) FetchOrderBook(ctx context.Context, symbol string, depth int) (domain.Ticker, error) {
	method, path, query := a.Paths.OrderBook(symbol, depth)
	body, err := a.do(ctx, "FetchOrderBook", method, path, query, nil)
	if err != nil {
		return domain.Ticker{}, err
	}
	return a.Paths.ParseOrderBook(body, symbol, depth)
}

func (a *Adapter) FetchBalance(ctx context.Context) (map[string]exchange.AssetBalance, error) {
	method, path, query := a.Paths.Balance()
	body, err := a.do(ctx, "FetchBalance", method, path, query, nil)
	if err != nil {
		return nil, err
	}
	return a.Paths.ParseBalance(body)
}

func (a *Adapter) order(ctx context.Context, op, symbol, side string, qty decimal.Decimal) (exchange.OrderResult, error) {
	method, path, query, body := a.Paths.Order(symbol, side, qty)
	respBody, err := a.do(ctx, op, method, path, query, body)
	if err != nil {
		return exchange.OrderResult{}, err
	}
	return a.Paths.ParseOrder(respBody)
}

func (a *Adapter) MarketBuy(ctx context.Context, symbol string, qty decimal.Decimal) (exchange.OrderResult, error) {
	return a.order(ctx, "MarketBuy", symbol, "buy", qty)
}

func (a *Adapter) MarketSell(ctx context.Context, symbol string, qty decimal.Decimal) (exchange.OrderResult, error) {
	return a.order(ctx, "MarketSell", symbol, "sell", qty)
}

func (a *Adapter) RequestWithdrawal(ctx context.Context, asset string, amount decimal.Decimal, destAddr, network string) (exchange.WithdrawalResult, error) {
	if !a.cfg.Capability.CanWithdraw {
		return exchange.WithdrawalResult{}, domain.NewError(domain.ErrRejected, "RequestWithdrawal", fmt.Errorf("withdrawals disabled for %s", a.cfg.Capability.ID))
	}
	method, path, query, body := a.Paths.Withdraw(asset, amount, destAddr, network)
	respBody, err := a.do(ctx, "RequestWithdrawal", method, path, query, body)
	if err != nil {
		return exchange.WithdrawalResult{}, err
	}
	return a.Paths.ParseWithdraw(respBody)
}

func (a *Adapter) FetchWithdrawalStatus(ctx context.Context, transferID string) (domain.TransferStatus, error) {
	method, path, query := a.Paths.WithdrawalStatus(transferID)
	body, err := a.do(ctx, "FetchWithdrawalStatus", method, path, query, nil)
	if err != nil {
		return "", err
	}
	return a.Paths.ParseStatus(body)
}

func (a *Adapter) FetchDepositAddress(ctx context.Context, asset, network string) (exchange.DepositAddress, error) {
	method, path, query := a.Paths.DepositAddress(asset, network)
	body, err := a.do(ctx, "FetchDepositAddress", method, path, query, nil)
	if err != nil {
		return exchange.DepositAddress{}, err
	}
	return a.Paths.ParseDeposit(body)
}

// EnsureStream lazily opens the venue's streaming ticker websocket and
// marks it as just-used; ReapIdle closes it once IdleTimeout has elapsed
// since the last use (spec.md §4.1).
func (a *Adapter) EnsureStream(ctx context.Context) (*websocket.Conn, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.ws != nil {
		a.wsLastUsed = time.Now()
		return a.ws, nil
	}
	conn, _, err := websocket.Dial(ctx, a.cfg.WSURL, nil)
	if err != nil {
		return nil, domain.NewError(domain.ErrTransientNetwork, "EnsureStream", err)
	}
	a.ws = conn
	a.wsLastUsed = time.Now()
	return conn, nil
}

// ReapIdle closes the streaming connection if it has been unused for more
// than IdleTimeout. Called periodically by the owning Pool.
func (a *Adapter) ReapIdle() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ws == nil {
		return
	}
	if time.Since(a.wsLastUsed) < IdleTimeout {
		return
	}
	_ = a.ws.Close(websocket.StatusNormalClosure, "idle")
	a.ws = nil
}

func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.rl.Stop()
	if a.ws != nil {
		err := a.ws.Close(websocket.StatusNormalClosure, "shutdown")
		a.ws = nil
		return err
	}
	return nil
}

// DecodeJSON is a small helper venue Parse* funcs use to avoid repeating
// json.Unmarshal error wrapping.
func DecodeJSON(body []byte, v interface{}) error {
	if err := json.Unmarshal(body, v); err != nil {
		return domain.NewError(domain.ErrRejected, "DecodeJSON", err)
	}
	return nil
}

var _ exchange.Adapter = (*Adapter)(nil)
