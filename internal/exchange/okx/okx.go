// Package okx is the OKX concrete Exchange Adapter (spec.md §4.1), built on
// the shared internal/exchange/venue REST plumbing. OKX requires a
// passphrase alongside key/secret, unlike binance/bitget's key+secret pair.
package okx

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
	baseURL = "https://www.okx.com"
	wsURL   = "wss://ws.okx.com:8443/ws/v5/public"
)

type tickerData struct {
	BidPx string `json:"bidPx"`
	AskPx string `json:"askPx"`
	Last  string `json:"last"`
	VolCcy24h string `json:"volCcy24h"`
}
type tickerResp struct {
	Data []tickerData `json:"data"`
}

type bookData struct {
	Bids [][]string `json:"bids"`
	Asks [][]string `json:"asks"`
}
type bookResp struct {
	Data []bookData `json:"data"`
}

type balanceDetail struct {
	Ccy    string `json:"ccy"`
	AvailBal string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
}
type balanceResp struct {
	Data []struct {
		Details []balanceDetail `json:"details"`
	} `json:"data"`
}

type orderData struct {
	OrdId string `json:"ordId"`
	FillPx string `json:"fillPx"`
	FillSz string `json:"fillSz"`
	Fee    string `json:"fee"`
}
type orderResp struct {
	Data []orderData `json:"data"`
}

type withdrawData struct {
	WdId string `json:"wdId"`
}
type withdrawResp struct {
	Data []withdrawData `json:"data"`
}

type statusData struct {
	State string `json:"state"` // "2"=completed, "1"/"0"=pending, else failed
}
type statusResp struct {
	Data []statusData `json:"data"`
}

type depositData struct {
	Addr string `json:"addr"`
	Tag  string `json:"tag"`
}
type depositResp struct {
	Data []depositData `json:"data"`
}

// New builds an OKX Adapter.
func New(apiKey, apiSecret, passphrase string, rateLimit int, log zerolog.Logger) *venue.Adapter {
	cap := domain.Exchange{
		ID: "okx", Name: "OKX", CanWithdraw: true, CanDeposit: true,
		MakerFee: decimal.NewFromFloat(0.0008), TakerFee: decimal.NewFromFloat(0.001),
		RateLimitPerSec: rateLimit,
	}

	signer := venue.HMACSigner{
		APIKey: apiKey, APISecret: apiSecret, Passphrase: passphrase,
		KeyHeader: "OK-ACCESS-KEY", SignHeader: "OK-ACCESS-SIGN",
		TSHeader: "OK-ACCESS-TIMESTAMP", PassHeader: "OK-ACCESS-PASSPHRASE",
	}

	paths := venue.Paths{
		Ticker: func(symbol string) (string, string, url.Values) {
			return "GET", "/api/v5/market/ticker", url.Values{"instId": {toOKXSymbol(symbol)}}
		},
		OrderBook: func(symbol string, depth int) (string, string, url.Values) {
			return "GET", "/api/v5/market/books", url.Values{"instId": {toOKXSymbol(symbol)}, "sz": {fmt.Sprint(depth)}}
		},
		Balance: func() (string, string, url.Values) {
			return "GET", "/api/v5/account/balance", url.Values{}
		},
		Order: func(symbol, side string, qty decimal.Decimal) (string, string, url.Values, []byte) {
			q := url.Values{"instId": {toOKXSymbol(symbol)}, "tdMode": {"cash"}, "side": {strings.ToLower(side)}, "ordType": {"market"}, "sz": {qty.String()}}
			return "POST", "/api/v5/trade/order", q, nil
		},
		Withdraw: func(asset string, amount decimal.Decimal, destAddr, network string) (string, string, url.Values, []byte) {
			q := url.Values{"ccy": {asset}, "amt": {amount.String()}, "dest": {"4"}, "toAddr": {destAddr}, "chain": {network}}
			return "POST", "/api/v5/asset/withdrawal", q, nil
		},
		WithdrawalStatus: func(transferID string) (string, string, url.Values) {
			return "GET", "/api/v5/asset/withdrawal-history", url.Values{"wdId": {transferID}}
		},
		DepositAddress: func(asset, network string) (string, string, url.Values) {
			return "GET", "/api/v5/asset/deposit-address", url.Values{"ccy": {asset}}
		},

		ParseTicker: func(body []byte, symbol string) (domain.Ticker, error) {
			var r tickerResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return domain.Ticker{}, err
			}
			d := r.Data[0]
			bid, _ := decimal.NewFromString(d.BidPx)
			ask, _ := decimal.NewFromString(d.AskPx)
			last, _ := decimal.NewFromString(d.Last)
			vol, _ := decimal.NewFromString(d.VolCcy24h)
			return domain.Ticker{ExchangeID: "okx", Symbol: symbol, Bid: bid, Ask: ask, Last: last, QuoteVolume24h: vol, ObservedAt: time.Now().UTC()}, nil
		},
		ParseOrderBook: func(body []byte, symbol string, depth int) (domain.Ticker, error) {
			var r bookResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return domain.Ticker{}, err
			}
			t := domain.Ticker{ExchangeID: "okx", Symbol: symbol, ObservedAt: time.Now().UTC()}
			for _, lvl := range r.Data[0].Bids {
				price, _ := decimal.NewFromString(lvl[0])
				qty, _ := decimal.NewFromString(lvl[1])
				t.BidDepth = append(t.BidDepth, domain.DepthLevel{Price: price, Qty: qty})
			}
			for _, lvl := range r.Data[0].Asks {
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
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return nil, err
			}
			out := make(map[string]exchange.AssetBalance, len(r.Data[0].Details))
			for _, d := range r.Data[0].Details {
				avail, _ := decimal.NewFromString(d.AvailBal)
				frozen, _ := decimal.NewFromString(d.FrozenBal)
				out[d.Ccy] = exchange.AssetBalance{Total: avail.Add(frozen), Available: avail, Locked: frozen}
			}
			return out, nil
		},
		ParseOrder: func(body []byte) (exchange.OrderResult, error) {
			var r orderResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return exchange.OrderResult{}, err
			}
			d := r.Data[0]
			price, _ := decimal.NewFromString(d.FillPx)
			qty, _ := decimal.NewFromString(d.FillSz)
			fee, _ := decimal.NewFromString(d.Fee)
			return exchange.OrderResult{OrderID: d.OrdId, FilledPrice: price, FilledQty: qty, Fee: fee.Abs(), FilledAt: time.Now().UTC()}, nil
		},
		ParseWithdraw: func(body []byte) (exchange.WithdrawalResult, error) {
			var r withdrawResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return exchange.WithdrawalResult{}, err
			}
			return exchange.WithdrawalResult{TransferID: r.Data[0].WdId}, nil
		},
		ParseStatus: func(body []byte) (domain.TransferStatus, error) {
			var r statusResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return "", err
			}
			switch r.Data[0].State {
			case "2":
				return domain.TransferConfirmed, nil
			case "0", "1":
				return domain.TransferPending, nil
			default:
				return domain.TransferFailed, nil
			}
		},
		ParseDeposit: func(body []byte) (exchange.DepositAddress, error) {
			var r depositResp
			if err := venue.DecodeJSON(body, &r); err != nil || len(r.Data) == 0 {
				return exchange.DepositAddress{}, err
			}
			return exchange.DepositAddress{Address: r.Data[0].Addr, Memo: r.Data[0].Tag}, nil
		},
	}

	return venue.New(venue.Config{
		BaseURL: baseURL, WSURL: wsURL, Capability: cap, Signer: signer,
		RateLimitPerSec: rateLimit, Log: log,
	}, paths)
}

// toOKXSymbol converts "BTC/USDT" to OKX's dashed "BTC-USDT" instId form.
func toOKXSymbol(symbol string) string {
	return strings.ReplaceAll(symbol, "/", "-")
}
