package domain

// ErrKind classifies a failure by how callers should react to it: retry,
// back off, halt the strategy, or halt the system. Every error that
// crosses a component boundary carries one (spec.md §7).
type ErrKind string

const (
	// ErrTransientNetwork covers timeouts, resets, DNS failures — retry
	// with backoff.
	ErrTransientNetwork ErrKind = "transient_network"
	// ErrRateLimited means the exchange throttled the caller — retry
	// after the exchange's advertised cooldown.
	ErrRateLimited ErrKind = "rate_limited"
	// ErrAuthFailed means credentials are bad — do not retry, surface to
	// operator, mark the exchange unusable until corrected.
	ErrAuthFailed ErrKind = "auth_failed"
	// ErrInsufficientFunds means the account lacks the capital or asset
	// to place the order — release any reservation, do not retry.
	ErrInsufficientFunds ErrKind = "insufficient_funds"
	// ErrRejected means the exchange refused the order for a reason
	// other than funds (min notional, bad symbol, price filter) — do
	// not retry unchanged.
	ErrRejected ErrKind = "rejected"
	// ErrOpportunityStale means the opportunity no longer holds by the
	// time execution reached it — abandon, do not retry.
	ErrOpportunityStale ErrKind = "opportunity_stale"
	// ErrTransferFailed means an on-chain or inter-exchange transfer was
	// rejected or reversed.
	ErrTransferFailed ErrKind = "transfer_failed"
	// ErrTransferTimeout means a transfer never confirmed within the
	// poller's patience window.
	ErrTransferTimeout ErrKind = "transfer_timeout"
	// ErrConfigInvalid means a config value failed validation at load or
	// reload — halt the affected component, never guess a value.
	ErrConfigInvalid ErrKind = "config_invalid"
	// ErrPersistenceUnavailable means the durable store could not accept
	// a write — callers must not assume the write landed.
	ErrPersistenceUnavailable ErrKind = "persistence_unavailable"
	// ErrStrategyInternal covers a bug inside one strategy's signal
	// generation — isolate that strategy, never crash the pool.
	ErrStrategyInternal ErrKind = "strategy_internal"
	// ErrInvariantViolation means code detected one of its own invariants
	// broken (negative reserved capital, a task observed in two states
	// at once) — this is a bug, not an external condition, and should be
	// loud.
	ErrInvariantViolation ErrKind = "invariant_violation"
)

// Retryable reports whether a caller should retry the operation that
// produced this kind, given enough backoff.
func (k ErrKind) Retryable() bool {
	switch k {
	case ErrTransientNetwork, ErrRateLimited, ErrTransferTimeout:
		return true
	default:
		return false
	}
}

// DomainError wraps an underlying error with the ErrKind a caller needs to
// decide how to react, without forcing every package to define its own
// sentinel error set.
type DomainError struct {
	Kind ErrKind
	Op   string // short operation name, e.g. "binance.PlaceOrder"
	Err  error
}

func (e *DomainError) Error() string {
	if e.Err == nil {
		return e.Op + ": " + string(e.Kind)
	}
	return e.Op + ": " + string(e.Kind) + ": " + e.Err.Error()
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewError builds a DomainError. Op should be short and stable, e.g.
// "okx.PlaceOrder" or "allocator.Reserve" — it is logged and matched on in
// tests, not formatted for operators.
func NewError(kind ErrKind, op string, err error) *DomainError {
	return &DomainError{Kind: kind, Op: op, Err: err}
}
