package persistence

import (
	"context"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// SaveStatus upserts the singleton system_status row. Called by the one
// owner task that aggregates component health (spec.md §9); synchronous
// since CP's get_account_info/status queries need a fresh read immediately
// after a write in tests.
func (s *Store) SaveStatus(ctx context.Context, st domain.SystemStatus) error {
	_, err := s.conn().ExecContext(ctx, `
		UPDATE system_status SET
			quantitative_running=?, auto_trading_enabled=?, total_strategies=?,
			running_strategies=?, current_generation=?, evolution_enabled=?,
			health=?, health_reason=?, last_update=?
		WHERE id = 1
	`,
		boolInt(st.QuantitativeRunning), boolInt(st.AutoTradingEnabled), st.TotalStrategies,
		st.RunningStrategies, st.CurrentGeneration, boolInt(st.EvolutionEnabled),
		string(st.Health), st.HealthReason, formatTime(st.LastUpdate),
	)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveStatus", err)
	}
	return nil
}

// LoadStatus reads the singleton system_status row.
func (s *Store) LoadStatus(ctx context.Context) (domain.SystemStatus, error) {
	var st domain.SystemStatus
	var running, autoTrading, evolutionEnabled int
	var health, lastUpdate string
	err := s.conn().QueryRowContext(ctx, `
		SELECT quantitative_running, auto_trading_enabled, total_strategies,
			running_strategies, current_generation, evolution_enabled,
			health, health_reason, last_update
		FROM system_status WHERE id = 1
	`).Scan(&running, &autoTrading, &st.TotalStrategies, &st.RunningStrategies,
		&st.CurrentGeneration, &evolutionEnabled, &health, &st.HealthReason, &lastUpdate)
	if err != nil {
		return domain.SystemStatus{}, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LoadStatus", err)
	}
	st.QuantitativeRunning = running != 0
	st.AutoTradingEnabled = autoTrading != 0
	st.EvolutionEnabled = evolutionEnabled != 0
	st.Health = domain.Health(health)
	st.LastUpdate = parseTime(lastUpdate)
	return st, nil
}
