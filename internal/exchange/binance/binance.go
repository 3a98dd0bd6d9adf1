// Package binance is the binance concrete Exchange Adapter (spec.md §4.1),
// built on the shared internal/exchange/venue REST plumbing.
package binance

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
	"github.com/aristath/cryptosentinel/internal/exchange"
	"github.com/aristath/cryptosentinel/internal/exchange/venue"
)

const (
	baseURL = "https://api.binance.com"
	wsURL   = "wss://stream.binance.com:9443/ws"
)

type tickerResp struct {
	BidPrice string `json:"bidPrice"`
	AskPrice string `json:"askPrice"`
	LastPrice string `json:"lastPrice"`
	Volume    string `json:"quoteVolume"`
}

type bookResp struct {
	Bids [][2]string `json:"bids"`
	Asks [][2]string `json:"asks"`
}

type balanceResp struct {
	Balances []struct {
		Asset  string `json:"asset"`
		Free   string `json:"free"`
		Locked string `json:"locked"`
	} `json:"balances"`
}

type orderResp struct {
	OrderID  int64  `json:"orderId"`
	ExecutedQty string `json:"executedQty"`
	Fills    []struct {
		Price string `json:"price"`
		Qty   string `json:"qty"`
		Commission string `json:"commission"`
	} `json:"fills"`
}

type withdrawResp struct {
	ID string `json:"id"`
}

type statusResp struct {
	Status int `json:"status"` // 0=pending,6=confirmed(completed),others=failed per venue docs
}

type depositResp struct {
	Address string `json:"address"`
	Tag     string `json:"tag"`
}

// New builds a binance Adapter. apiKey/apiSecret are required; rateLimit
// is requests/second this instance self-paces to.
func New(apiKey, apiSecret string, rateLimit int, log zerolog.Logger) *venue.Adapter {
	cap := domain.Exchange{
		ID:          "binance",
		Name:        "Binance",
		CanWithdraw: true,
		CanDeposit:  true,
		MakerFee:    decimal.NewFromFloat(0.001),
		TakerFee:    decimal.NewFromFloat(0.001),
		RateLimitPerSec: rateLimit,
	}

	signer := venue.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret,
		KeyHeader: "X-MBX-APIKEY", SignHeader: "signature", TSHeader: "timestamp",
	}

	paths := venue.Paths{
		Ticker: func(symbol string) (string, string, url.Values) {
			q := url.Values{"symbol": {toBinanceSymbol(symbol)}}
			return "GET", "/api/v3/ticker/24hr", q
		},
		OrderBook: func(symbol string, depth int) (string, string, url.Values) {
			q := url.Values{"symbol": {toBinanceSymbol(symbol)}, "limit": {fmt.Sprint(depth)}}
			return "GET", "/api/v3/depth", q
		},
		Balance: func() (string, string, url.Values) {
			return "GET", "/api/v3/account", url.Values{}
		},
		Order: func(symbol, side string, qty decimal.Decimal) (string, string, url.Values, []byte) {
			q := url.Values{
				"symbol":   {toBinanceSymbol(symbol)},
				"side":     {strings.ToUpper(side)},
				"type":     {"MARKET"},
				"quantity": {qty.String()},
			}
			return "POST", "/api/v3/order", q, nil
		},
		Withdraw: func(asset string, amount decimal.Decimal, destAddr, network string) (string, string, url.Values, []byte) {
			q := url.Values{"coin": {asset}, "address": {destAddr}, "amount": {amount.String()}, "network": {network}}
			return "POST", "/sapi/v1/capital/withdraw/apply", q, nil
		},
		WithdrawalStatus: func(transferID string) (string, string, url.Values) {
			return "GET", "/sapi/v1/capital/withdraw/history", url.Values{"withdrawOrderId": {transferID}}
		},
		DepositAddress: func(asset, network string) (string, string, url.Values) {
			return "GET", "/sapi/v1/capital/deposit/address", url.Values{"coin": {asset}, "network": {network}}
		},

		ParseTicker: func(body []byte, symbol string) (domain.Ticker, error) {
			var r tickerResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return domain.Ticker{}, err
			}
			bid, _ := decimal.NewFromString(r.BidPrice)
			ask, _ := decimal.NewFromString(r.AskPrice)
			last, _ := decimal.NewFromString(r.LastPrice)
			vol, _ := decimal.NewFromString(r.Volume)
			return domain.Ticker{ExchangeID: "binance", Symbol: symbol, Bid: bid, Ask: ask, Last: last, QuoteVolume24h: vol, ObservedAt: time.Now().UTC()}, nil
		},
		ParseOrderBook: func(body []byte, symbol string, depth int) (domain.Ticker, error) {
			var r bookResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return domain.Ticker{}, err
			}
			t := domain.Ticker{ExchangeID: "binance", Symbol: symbol, ObservedAt: time.Now().UTC()}
			for _, lvl := range r.Bids {
				price, _ := decimal.NewFromString(lvl[0])
				qty, _ := decimal.NewFromString(lvl[1])
				t.BidDepth = append(t.BidDepth, domain.DepthLevel{Price: price, Qty: qty})
			}
			for _, lvl := range r.Asks {
				price, _ := decimal.NewFromString(lvl[0])
				qty, _ := decimal.NewFromString(lvl[1])
				t.AskDepth = append(t.AskDepth, domain.DepthLevel{Price: price, Qty: qty})
			}
			if len(t.BidDepth) > 0 {
				t.Bid = t.BidDepth[0].Price
			}
			if len(t.AskDepth) > 0 {
				t.Ask = t.AskDepth[0].Price
			}
			return t, nil
		},
		ParseBalance: func(body []byte) (map[string]exchange.AssetBalance, error) {
			var r balanceResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return nil, err
			}
			out := make(map[string]exchange.AssetBalance, len(r.Balances))
			for _, b := range r.Balances {
				free, _ := decimal.NewFromString(b.Free)
				locked, _ := decimal.NewFromString(b.Locked)
				out[b.Asset] = exchange.AssetBalance{Total: free.Add(locked), Available: free, Locked: locked}
			}
			return out, nil
		},
		ParseOrder: func(body []byte) (exchange.OrderResult, error) {
			var r orderResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return exchange.OrderResult{}, err
			}
			qty, _ := decimal.NewFromString(r.ExecutedQty)
			var price, fee decimal.Decimal
			if len(r.Fills) > 0 {
				price, _ = decimal.NewFromString(r.Fills[0].Price)
				for _, f := range r.Fills {
					c, _ := decimal.NewFromString(f.Commission)
					fee = fee.Add(c)
				}
			}
			return exchange.OrderResult{OrderID: fmt.Sprint(r.OrderID), FilledPrice: price, FilledQty: qty, Fee: fee, FilledAt: time.Now().UTC()}, nil
		},
		ParseWithdraw: func(body []byte) (exchange.WithdrawalResult, error) {
			var r withdrawResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return exchange.WithdrawalResult{}, err
			}
			return exchange.WithdrawalResult{TransferID: r.ID}, nil
		},
		ParseStatus: func(body []byte) (domain.TransferStatus, error) {
			var r statusResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return "", err
			}
			switch r.Status {
			case 6:
				return domain.TransferConfirmed, nil
			case 0, 1, 2:
				return domain.TransferPending, nil
			default:
				return domain.TransferFailed, nil
			}
		},
		ParseDeposit: func(body []byte) (exchange.DepositAddress, error) {
			var r depositResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return exchange.DepositAddress{}, err
			}
			return exchange.DepositAddress{Address: r.Address, Memo: r.Tag}, nil
		},
	}

	return venue.New(venue.Config{
		BaseURL: baseURL, WSURL: wsURL, Capability: cap, Signer: signer,
		RateLimitPerSec: rateLimit, Log: log,
	}, paths)
}

// toBinanceSymbol converts the system's "BTC/USDT" notation to binance's
// concatenated "BTCUSDT" form.
func toBinanceSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
