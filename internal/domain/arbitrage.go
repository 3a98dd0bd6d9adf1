package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// TaskState is a state in the Arbitrage Executor's per-task state machine
// (spec.md §4.5). Terminal states are Completed, Failed, FailedUnwound,
// FailedStuck, FailedTimeout.
type TaskState string

const (
	TaskPending          TaskState = "pending"
	TaskExecuting        TaskState = "executing"
	TaskAwaitingTransfer TaskState = "awaiting_transfer" // cross-exchange only
	TaskSettling         TaskState = "settling"
	TaskCompleted        TaskState = "completed"
	TaskFailed           TaskState = "failed"
	TaskFailedUnwound    TaskState = "failed_unwound" // triangular: prior legs unwound
	TaskFailedStuck      TaskState = "failed_stuck"   // triangular: unwind itself failed; any class: no resume point after restart
	TaskFailedTimeout    TaskState = "failed_timeout" // cross-exchange: transfer never confirmed
)

// Terminal reports whether s is a terminal state; AX stops driving the task
// and FA has had capital released (or recorded stuck) once a task reaches
// one of these.
func (s TaskState) Terminal() bool {
	switch s {
	case TaskCompleted, TaskFailed, TaskFailedUnwound, TaskFailedStuck, TaskFailedTimeout:
		return true
	}
	return false
}

// StepOutcome is one entry in a task's append-only step log — every
// external call AX makes and its outcome, timestamped.
type StepOutcome struct {
	At      time.Time
	Step    string // e.g. "buy", "request_withdrawal", "poll_transfer", "sell", "unwind_leg_1"
	Success bool
	Detail  string
	ErrKind ErrKind
}

// TransferStatus is the observed state of an in-flight on-chain transfer.
type TransferStatus string

const (
	TransferPending   TransferStatus = "pending"
	TransferConfirmed TransferStatus = "confirmed"
	TransferFailed    TransferStatus = "failed"
)

// Transfer is an asynchronous on-chain withdrawal/deposit AX is waiting on.
// Owned and polled exclusively by the AX task driving it; at most one
// active Transfer exists per ArbitrageTask at any time.
type Transfer struct {
	ID              string
	FromExchange    ExchangeID
	ToExchange      ExchangeID
	Asset           string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	InitiatedAt     time.Time
	ObservedStatus  TransferStatus
	LastCheckedAt   time.Time
}

// ArbitrageTask is one opportunity being driven from accept through
// settlement, owned exclusively by the AX goroutine executing it.
//
// Invariant (spec.md §8): the capital released to FA at task end equals
// ReservedCapital plus RealizedPnL (RealizedPnL may be negative).
type ArbitrageTask struct {
	ID                string
	Class             OpportunityClass
	Opportunity       ArbitrageOpportunity
	ReservedCapital   decimal.Decimal
	ReservationToken  string
	State             TaskState
	StepLog           []StepOutcome
	Transfer          *Transfer // nil unless Class == ClassCrossExchange and a transfer is/was active
	RealizedPnL       decimal.Decimal
	ReleasedCapital   decimal.Decimal
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AppendStep appends an outcome to the task's append-only step log and
// bumps UpdatedAt. Callers must hold the task's own exclusivity (AX tasks
// are single-goroutine-owned, so no lock is needed here).
func (t *ArbitrageTask) AppendStep(step string, success bool, detail string, kind ErrKind) {
	t.StepLog = append(t.StepLog, StepOutcome{
		At:      time.Now().UTC(),
		Step:    step,
		Success: success,
		Detail:  detail,
		ErrKind: kind,
	})
	t.UpdatedAt = time.Now().UTC()
}
