package persistence

import (
	"context"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// SaveTask implements arbitrage.TaskStore: AX calls this on every state
// transition, so a task's full step log survives a restart mid-execution.
// Critical: capital is reserved against the row this writes.
func (s *Store) SaveTask(ctx context.Context, task domain.ArbitrageTask) error {
	opp, err := encode(task.Opportunity)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveTask", err)
	}
	steps, err := encode(task.StepLog)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveTask", err)
	}
	_, err = s.conn().ExecContext(ctx, `
		INSERT INTO arbitrage_tasks (
			id, class, opportunity, reserved_capital, reservation_token, state,
			step_log, realized_pnl, released_capital, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			state=excluded.state, step_log=excluded.step_log,
			realized_pnl=excluded.realized_pnl, released_capital=excluded.released_capital,
			updated_at=excluded.updated_at
	`,
		task.ID, string(task.Class), opp, task.ReservedCapital.String(), task.ReservationToken, string(task.State),
		steps, task.RealizedPnL.String(), task.ReleasedCapital.String(), formatTime(task.CreatedAt), formatTime(task.UpdatedAt),
	)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveTask", err)
	}
	if task.Transfer != nil {
		return s.saveTransfer(ctx, task.ID, *task.Transfer)
	}
	return nil
}

func (s *Store) saveTransfer(ctx context.Context, taskID string, t domain.Transfer) error {
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO transfers (
			id, task_id, from_exchange, to_exchange, asset, amount, fee,
			initiated_at, observed_status, last_checked_at
		) VALUES (?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			observed_status=excluded.observed_status, last_checked_at=excluded.last_checked_at
	`,
		t.ID, taskID, string(t.FromExchange), string(t.ToExchange), t.Asset, t.Amount.String(), t.Fee.String(),
		formatTime(t.InitiatedAt), string(t.ObservedStatus), formatTime(t.LastCheckedAt),
	)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.saveTransfer", err)
	}
	return nil
}

// OpenTasks returns every non-terminal arbitrage task, for boot-time
// recovery and CP diagnostics.
func (s *Store) OpenTasks(ctx context.Context) ([]domain.ArbitrageTask, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT id, class, opportunity, reserved_capital, reservation_token, state,
			step_log, realized_pnl, released_capital, created_at, updated_at
		FROM arbitrage_tasks
		WHERE state NOT IN ('completed','failed','failed_unwound','failed_stuck','failed_timeout')
	`)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenTasks", err)
	}
	defer rows.Close()

	var out []domain.ArbitrageTask
	for rows.Next() {
		var t domain.ArbitrageTask
		var class, state, reservedCapital, realizedPnL, releasedCapital, created, updated string
		var oppBlob, stepsBlob []byte
		if err := rows.Scan(&t.ID, &class, &oppBlob, &reservedCapital, &t.ReservationToken, &state,
			&stepsBlob, &realizedPnL, &releasedCapital, &created, &updated); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenTasks", err)
		}
		t.Class = domain.OpportunityClass(class)
		t.State = domain.TaskState(state)
		t.ReservedCapital = mustDecimal(reservedCapital)
		t.RealizedPnL = mustDecimal(realizedPnL)
		t.ReleasedCapital = mustDecimal(releasedCapital)
		t.CreatedAt = parseTime(created)
		t.UpdatedAt = parseTime(updated)
		if err := decode(oppBlob, &t.Opportunity); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenTasks", err)
		}
		if err := decode(stepsBlob, &t.StepLog); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenTasks", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
