package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTaskStateTerminal(t *testing.T) {
	terminal := []TaskState{TaskCompleted, TaskFailed, TaskFailedUnwound, TaskFailedStuck, TaskFailedTimeout}
	for _, s := range terminal {
		assert.True(t, s.Terminal(), "%s should be terminal", s)
	}

	nonTerminal := []TaskState{TaskPending, TaskExecuting, TaskAwaitingTransfer, TaskSettling}
	for _, s := range nonTerminal {
		assert.False(t, s.Terminal(), "%s should not be terminal", s)
	}
}

func TestAppendStepGrowsLogAndBumpsUpdatedAt(t *testing.T) {
	task := &ArbitrageTask{State: TaskExecuting}
	task.AppendStep("buy_leg_1", true, "filled 0.5 BTC", "")
	task.AppendStep("sell_leg_2", false, "rejected: min notional", ErrRejected)

	assert.Len(t, task.StepLog, 2)
	assert.True(t, task.StepLog[0].Success)
	assert.False(t, task.StepLog[1].Success)
	assert.Equal(t, ErrRejected, task.StepLog[1].ErrKind)
	assert.False(t, task.UpdatedAt.IsZero())
}

func TestErrKindRetryable(t *testing.T) {
	retryable := []ErrKind{ErrTransientNetwork, ErrRateLimited, ErrTransferTimeout}
	for _, k := range retryable {
		assert.True(t, k.Retryable(), "%s should be retryable", k)
	}

	terminal := []ErrKind{ErrAuthFailed, ErrInsufficientFunds, ErrRejected, ErrOpportunityStale,
		ErrTransferFailed, ErrConfigInvalid, ErrPersistenceUnavailable, ErrStrategyInternal, ErrInvariantViolation}
	for _, k := range terminal {
		assert.False(t, k.Retryable(), "%s should not be retryable", k)
	}
}
