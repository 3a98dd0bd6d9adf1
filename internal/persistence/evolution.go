package persistence

import (
	"context"
	"time"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// RecordEvolution implements evolution.Recorder: append-only writes to
// evolution_history, critical (this is the audit trail spec.md §8's
// round-trip invariant is checked against, and must never be silently
// dropped under queue pressure).
func (s *Store) RecordEvolution(r domain.EvolutionRecord) {
	s.writer.Submit(true, "evolution_history", func(ctx context.Context) error {
		oldParams, err := encode(r.OldParams)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordEvolution", err)
		}
		newParams, err := encode(r.NewParams)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordEvolution", err)
		}
		diff, err := encode(r.ParameterDiff)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordEvolution", err)
		}
		_, err = s.conn().ExecContext(ctx, `
			INSERT INTO evolution_history (
				strategy_id, generation, cycle, action, score_before, score_after,
				old_params, new_params, parameter_diff, reason, at
			) VALUES (?,?,?,?,?,?,?,?,?,?,?)
		`,
			r.StrategyID, r.Generation, r.Cycle, string(r.Action), r.ScoreBefore.String(), r.ScoreAfter.String(),
			oldParams, newParams, diff, r.Reason, formatTime(r.At),
		)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordEvolution", err)
		}
		return nil
	})
}

// EvolutionHistory returns a strategy's evolution records in ascending
// (generation, cycle, at) order, for CP's lineage view and for
// reconstructing a strategy's parameter history via Invert.
func (s *Store) EvolutionHistory(ctx context.Context, strategyID string) ([]domain.EvolutionRecord, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT strategy_id, generation, cycle, action, score_before, score_after,
			old_params, new_params, parameter_diff, reason, at
		FROM evolution_history WHERE strategy_id = ? ORDER BY generation, cycle, at
	`, strategyID)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.EvolutionHistory", err)
	}
	defer rows.Close()

	var out []domain.EvolutionRecord
	for rows.Next() {
		var r domain.EvolutionRecord
		var action, scoreBefore, scoreAfter, at string
		var oldParamsBlob, newParamsBlob, diffBlob []byte
		if err := rows.Scan(&r.StrategyID, &r.Generation, &r.Cycle, &action, &scoreBefore, &scoreAfter,
			&oldParamsBlob, &newParamsBlob, &diffBlob, &r.Reason, &at); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.EvolutionHistory", err)
		}
		r.Action = domain.EvolutionAction(action)
		r.ScoreBefore = mustDecimal(scoreBefore)
		r.ScoreAfter = mustDecimal(scoreAfter)
		r.At = parseTime(at)
		if err := decode(oldParamsBlob, &r.OldParams); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.EvolutionHistory", err)
		}
		if err := decode(newParamsBlob, &r.NewParams); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.EvolutionHistory", err)
		}
		if err := decode(diffBlob, &r.ParameterDiff); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.EvolutionHistory", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LogOptimization records a fast/slow-loop internal diagnostic line, e.g. a
// diversity check or mutation-strength decision (spec.md §4.12's
// optimization_logs, distinct from the evolution_history audit trail).
func (s *Store) LogOptimization(loop, message string, detail interface{}) {
	s.writer.Submit(false, "optimization_log", func(ctx context.Context) error {
		var blob []byte
		if detail != nil {
			b, err := encode(detail)
			if err != nil {
				return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LogOptimization", err)
			}
			blob = b
		}
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO optimization_logs (at, loop, message, detail) VALUES (?,?,?,?)
		`, formatTime(time.Now().UTC()), loop, message, blob)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LogOptimization", err)
		}
		return nil
	})
}
