package persistence

import (
	"context"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// RecordSimulation queues a simulation_history insert — SE produces one of
// these per strategy per evolution cycle, non-critical (replayable from the
// same inputs if lost).
func (s *Store) RecordSimulation(r domain.SimulationResult) {
	s.writer.Submit(false, "simulation_history", func(ctx context.Context) error {
		snapshot, err := encode(r.ParametersSnapshot)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordSimulation", err)
		}
		_, err = s.conn().ExecContext(ctx, `
			INSERT INTO simulation_history (
				strategy_id, run_at, days_simulated, trade_count, win_rate,
				total_return, sharpe, max_drawdown, score, parameters_snapshot
			) VALUES (?,?,?,?,?,?,?,?,?,?)
		`,
			r.StrategyID, formatTime(r.RunAt), r.DaysSimulated, r.TradeCount, r.WinRate.String(),
			r.TotalReturn.String(), r.Sharpe.String(), r.MaxDrawdown.String(), r.Score.String(), snapshot,
		)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordSimulation", err)
		}
		return nil
	})
}
