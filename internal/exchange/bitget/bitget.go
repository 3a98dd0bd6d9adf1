// Package bitget is the Bitget concrete Exchange Adapter (spec.md §4.1),
// built on the shared internal/exchange/venue REST plumbing. Bitget's wire
// shape mirrors OKX's (passphrase-bearing HMAC, data-array envelopes).
package bitget

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
	baseURL = "https://api.bitget.com"
	wsURL   = "wss://ws.bitget.com/v2/ws/public"
)

type tickerData struct {
	BidPr string `json:"bidPr"`
	AskPr string `json:"askPr"`
	LastPr string `json:"lastPr"`
	BaseVolume string `json:"quoteVolume"`
}
type tickerResp struct {
	Data []tickerData `json:"data"`
}

type bookResp struct {
	Data struct {
		Bids [][]string `json:"bids"`
		Asks [][]string `json:"asks"`
	} `json:"data"`
}

type balanceResp struct {
	Data []struct {
		Coin      string `json:"coin"`
		Available string `json:"available"`
		Frozen    string `json:"frozen"`
	} `json:"data"`
}

type orderResp struct {
	Data struct {
		OrderID  string `json:"orderId"`
		PriceAvg string `json:"priceAvg"`
		BaseVolume string `json:"baseVolume"`
		Fee      string `json:"fee"`
	} `json:"data"`
}

type withdrawResp struct {
	Data struct {
		OrderID string `json:"orderId"`
	} `json:"data"`
}

type statusResp struct {
	Data []struct {
		Status string `json:"status"` // "success"/"pending"/"fail"
	} `json:"data"`
}

type depositResp struct {
	Data struct {
		Address string `json:"address"`
		Tag     string `json:"tag"`
	} `json:"data"`
}

// New builds a Bitget Adapter.
func New(apiKey, apiSecret, passphrase string, rateLimit int, log zerolog.Logger) *venue.Adapter {
	cap := domain.Exchange{
		ID: "bitget", Name: "Bitget", CanWithdraw: true, CanDeposit: true,
		MakerFee: decimal.NewFromFloat(0.001), TakerFee: decimal.NewFromFloat(0.001),
		RateLimitPerSec: rateLimit,
	}

	signer := venue.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Passphrase: passphrase,
		KeyHeader: "ACCESS-KEY", SignHeader: "ACCESS-SIGN",
		TSHeader: "ACCESS-TIMESTAMP", PassHeader: "ACCESS-PASSPHRASE",
	}

	paths := venue.Paths{
		Ticker: func(symbol string) (string, string, url.Values) {
			return "GET", "/api/v2/spot/market/tickers", url.Values{"symbol": {toBitgetSymbol(symbol)}}
		},
		OrderBook: func(symbol string, depth int) (string, string, url.Values) {
			return "GET", "/api/v2/spot/market/orderbook", url.Values{"symbol": {toBitgetSymbol(symbol)}, "limit": {fmt.Sprint(depth)}}
		},
		Balance: func() (string, string, url.Values) {
			return "GET", "/api/v2/spot/account/assets", url.Values{}
		},
		Order: func(symbol, side string, qty decimal.Decimal) (string, string, url.Values, []byte) {
			q := url.Values{"symbol": {toBitgetSymbol(symbol)}, "side": {strings.ToLower(side)}, "orderType": {"market"}, "size": {qty.String()}}
			return "POST", "/api/v2/spot/trade/place-order", q, nil
		},
		Withdraw: func(asset string, amount decimal.Decimal, destAddr, network string) (string, string, url.Values, []byte) {
			q := url.Values{"coin": {asset}, "transferType": {"on_chain"}, "address": {destAddr}, "chain": {network}, "size": {amount.String()}}
			return "POST", "/api/v2/spot/wallet/withdrawal", q, nil
		},
		WithdrawalStatus: func(transferID string) (string, string, url.Values) {
			return "GET", "/api/v2/spot/wallet/withdrawal-records", url.Values{"orderId": {transferID}}
		},
		DepositAddress: func(asset, network string) (string, string, url.Values) {
			return "GET", "/api/v2/spot/wallet/deposit-address", url.Values{"coin": {asset}, "chain": {network}}
		},

		ParseTicker: func(body []byte, symbol string) (domain.Ticker, error) {
			var r tickerResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return domain.Ticker{}, err
			}
			d := r.Data[0]
			bid, _ := decimal.NewFromString(d.BidPr)
			ask, _ := decimal.NewFromString(d.AskPr)
			last, _ := decimal.NewFromString(d.LastPr)
			vol, _ := decimal.NewFromString(d.BaseVolume)
			return domain.Ticker{ExchangeID: "bitget", Symbol: symbol, Bid: bid, Ask: ask, Last: last, QuoteVolume24h: vol, ObservedAt: time.Now().UTC()}, nil
		},
		ParseOrderBook: func(body []byte, symbol string, depth int) (domain.Ticker, error) {
			var r bookResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return domain.Ticker{}, err
			}
			t := domain.Ticker{ExchangeID: "bitget", Symbol: symbol, ObservedAt: time.Now().UTC()}
			for _, lvl := range r.Data.Bids {
				price, _ := decimal.NewFromString(lvl[0])
				qty, _ := decimal.NewFromString(lvl[1])
				t.BidDepth = append(t.BidDepth, domain.DepthLevel{Price: price, Qty: qty})
			}
			for _, lvl := range r.Data.Asks {
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
			out := make(map[string]exchange.AssetBalance, len(r.Data))
			for _, d := range r.Data {
				avail, _ := decimal.NewFromString(d.Available)
				frozen, _ := decimal.NewFromString(d.Frozen)
				out[d.Coin] = exchange.AssetBalance{Total: avail.Add(frozen), Available: avail, Locked: frozen}
			}
			return out, nil
		},
		ParseOrder: func(body []byte) (exchange.OrderResult, error) {
			var r orderResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return exchange.OrderResult{}, err
			}
			price, _ := decimal.NewFromString(r.Data.PriceAvg)
			qty, _ := decimal.NewFromString(r.Data.BaseVolume)
			fee, _ := decimal.NewFromString(r.Data.Fee)
			return exchange.OrderResult{OrderID: r.Data.OrderID, FilledPrice: price, FilledQty: qty, Fee: fee.Abs(), FilledAt: time.Now().UTC()}, nil
		},
		ParseWithdraw: func(body []byte) (exchange.WithdrawalResult, error) {
			var r withdrawResp
			if err := venue.DecodeJSON(body, &r); err != nil {
				return exchange.WithdrawalResult{}, err
			}
			return exchange.WithdrawalResult{TransferID: r.Data.OrderID}, nil
		},
		ParseStatus: func(body []byte) (domain.TransferStatus, error) {
			var r statusResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return "", err
			}
			switch r.Data[0].Status {
			case "success":
				return domain.TransferConfirmed, nil
			case "pending":
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
			return exchange.DepositAddress{Address: r.Data.Address, Memo: r.Data.Tag}, nil
		},
	}

	return venue.New(venue.Config{
		BaseURL: baseURL, WSURL: wsURL, Capability: cap, Signer: signer,
		RateLimitPerSec: rateLimit, Log: log,
	}, paths)
}

// toBitgetSymbol converts "BTC/USDT" to Bitget's concatenated "BTCUSDT" form.
func toBitgetSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "")
}
