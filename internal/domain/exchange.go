package domain

import "github.com/shopspring/decimal"

// ExchangeID identifies one configured exchange instance.
type ExchangeID string

// Exchange is the identity and capability record for one venue.
//
// Created at boot from configuration and immutable thereafter — fee
// schedules and symbol lists are never mutated in place; a venue that
// changes its fee schedule gets a fresh Exchange value at the next
// restart. Centralizing fees/capabilities here replaces the ad-hoc
// per-module fee constants the source system scattered around.
type Exchange struct {
	ID          ExchangeID
	Name        string
	CanWithdraw bool
	CanDeposit  bool
	MakerFee    decimal.Decimal // fraction, e.g. 0.001 for 0.1%
	TakerFee    decimal.Decimal
	Symbols     []string
	// RateLimitPerSec bounds outbound requests this EA instance issues
	// against the venue; enforced internally by the adapter, never by
	// callers.
	RateLimitPerSec int
}

// HasSymbol reports whether symbol is tradeable on this exchange.
func (e Exchange) HasSymbol(symbol string) bool {
	for _, s := range e.Symbols {
		if s == symbol {
			return true
		}
	}
	return false
}
