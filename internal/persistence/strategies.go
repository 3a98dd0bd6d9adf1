package persistence

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// SaveStrategy upserts a strategy's scalar fields synchronously — strategy
// records are infrequent, high-value writes (creation, elimination,
// promotion) worth the direct round trip rather than the async queue.
func (s *Store) SaveStrategy(ctx context.Context, st domain.Strategy) error {
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO strategies (
			id, name, type, symbol, tier, enabled, active, elimination_reason,
			parents, generation, cycle, creation_method,
			last_param_change_at, validation_trades_since_change,
			final_score, rolling_score, rolling_win_rate, rolling_total_return,
			rolling_sharpe, rolling_max_drawdown, rolling_profit_factor,
			consec_improvements, executed_trade_count, created_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, type=excluded.type, symbol=excluded.symbol,
			tier=excluded.tier, enabled=excluded.enabled, active=excluded.active,
			elimination_reason=excluded.elimination_reason, cycle=excluded.cycle,
			last_param_change_at=excluded.last_param_change_at,
			validation_trades_since_change=excluded.validation_trades_since_change,
			final_score=excluded.final_score, rolling_score=excluded.rolling_score,
			rolling_win_rate=excluded.rolling_win_rate,
			rolling_total_return=excluded.rolling_total_return,
			rolling_sharpe=excluded.rolling_sharpe,
			rolling_max_drawdown=excluded.rolling_max_drawdown,
			rolling_profit_factor=excluded.rolling_profit_factor,
			consec_improvements=excluded.consec_improvements,
			executed_trade_count=excluded.executed_trade_count
	`,
		st.ID, st.Name, string(st.Type), st.Symbol, string(st.Tier), boolInt(st.Enabled), boolInt(st.Active), st.EliminationReason,
		strings.Join(st.Lineage.Parents, ","), st.Lineage.Generation, st.Lineage.Cycle, string(st.Lineage.CreationMethod),
		formatTime(st.LastParamChangeAt), st.ValidationTradesSinceChange,
		st.FinalScore.String(), st.Rolling.Score.String(), st.Rolling.WinRate.String(), st.Rolling.TotalReturn.String(),
		st.Rolling.Sharpe.String(), st.Rolling.MaxDrawdown.String(), st.Rolling.ProfitFactor.String(),
		st.Rolling.ConsecImprovements, st.Rolling.ExecutedTradeCount, formatTime(st.CreatedAt),
	)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveStrategy", err)
	}
	return s.saveParameters(ctx, st.ID, st.Parameters)
}

func (s *Store) saveParameters(ctx context.Context, strategyID string, params domain.StrategyParameters) error {
	for name, p := range params {
		adapt, err := encode(p.MarketAdaptation)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.saveParameters", err)
		}
		_, err = s.conn().ExecContext(ctx, `
			INSERT INTO strategy_parameters (
				strategy_id, name, type, value, min_value, max_value, step, mutation_rate, market_adaptation
			) VALUES (?,?,?,?,?,?,?,?,?)
			ON CONFLICT(strategy_id, name) DO UPDATE SET
				type=excluded.type, value=excluded.value, min_value=excluded.min_value,
				max_value=excluded.max_value, step=excluded.step,
				mutation_rate=excluded.mutation_rate, market_adaptation=excluded.market_adaptation
		`, strategyID, name, string(p.Type), p.Value.String(), p.Min.String(), p.Max.String(), p.Step.String(), p.MutationRate.String(), adapt)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.saveParameters", err)
		}
	}
	return nil
}

// LoadStrategies reads every strategy row (active and eliminated) with its
// parameters, for SP's boot-time seed and CP's listing queries.
func (s *Store) LoadStrategies(ctx context.Context) ([]domain.Strategy, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT id, name, type, symbol, tier, enabled, active, elimination_reason,
			parents, generation, cycle, creation_method,
			last_param_change_at, validation_trades_since_change,
			final_score, rolling_score, rolling_win_rate, rolling_total_return,
			rolling_sharpe, rolling_max_drawdown, rolling_profit_factor,
			consec_improvements, executed_trade_count, created_at
		FROM strategies
	`)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LoadStrategies", err)
	}
	defer rows.Close()

	var out []domain.Strategy
	for rows.Next() {
		var st domain.Strategy
		var tier, typ, method, parents, lastChange, created string
		var enabled, active int
		var finalScore, rollScore, rollWinRate, rollReturn, rollSharpe, rollDD, rollPF string

		if err := rows.Scan(
			&st.ID, &st.Name, &typ, &st.Symbol, &tier, &enabled, &active, &st.EliminationReason,
			&parents, &st.Lineage.Generation, &st.Lineage.Cycle, &method,
			&lastChange, &st.ValidationTradesSinceChange,
			&finalScore, &rollScore, &rollWinRate, &rollReturn,
			&rollSharpe, &rollDD, &rollPF,
			&st.Rolling.ConsecImprovements, &st.Rolling.ExecutedTradeCount, &created,
		); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LoadStrategies", err)
		}

		st.Type = domain.StrategyType(typ)
		st.Tier = domain.StrategyTier(tier)
		st.Enabled = enabled != 0
		st.Active = active != 0
		st.Lineage.CreationMethod = domain.CreationMethod(method)
		if parents != "" {
			st.Lineage.Parents = strings.Split(parents, ",")
		}
		st.LastParamChangeAt = parseTime(lastChange)
		st.CreatedAt = parseTime(created)
		st.FinalScore = mustDecimal(finalScore)
		st.Rolling.Score = mustDecimal(rollScore)
		st.Rolling.WinRate = mustDecimal(rollWinRate)
		st.Rolling.TotalReturn = mustDecimal(rollReturn)
		st.Rolling.Sharpe = mustDecimal(rollSharpe)
		st.Rolling.MaxDrawdown = mustDecimal(rollDD)
		st.Rolling.ProfitFactor = mustDecimal(rollPF)

		params, err := s.loadParameters(ctx, st.ID)
		if err != nil {
			return nil, err
		}
		st.Parameters = params
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) loadParameters(ctx context.Context, strategyID string) (domain.StrategyParameters, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT name, type, value, min_value, max_value, step, mutation_rate, market_adaptation
		FROM strategy_parameters WHERE strategy_id = ?
	`, strategyID)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.loadParameters", err)
	}
	defer rows.Close()

	out := make(domain.StrategyParameters)
	for rows.Next() {
		var name, typ, value, min, max, step, mutRate string
		var adaptBlob []byte
		if err := rows.Scan(&name, &typ, &value, &min, &max, &step, &mutRate, &adaptBlob); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.loadParameters", err)
		}
		p := &domain.Param{
			Name: name, Type: domain.ParamType(typ),
			Value: mustDecimal(value), Min: mustDecimal(min), Max: mustDecimal(max),
			Step: mustDecimal(step), MutationRate: mustDecimal(mutRate),
		}
		var adapt domain.MarketAdaptation
		if err := decode(adaptBlob, &adapt); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.loadParameters", err)
		}
		p.MarketAdaptation = adapt
		out[name] = p
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return time.Unix(0, 0).UTC().Format(time.RFC3339Nano)
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
