package domain

import "github.com/shopspring/decimal"

// FundBucket is one class's capital ledger row, owned by the Fund
// Allocator and persisted to fund_allocation_buckets on every change.
type FundBucket struct {
	Class          OpportunityClass
	AllocatedTotal decimal.Decimal
	Available      decimal.Decimal
}
