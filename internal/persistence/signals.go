package persistence

import (
	"context"
	"database/sql"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// RecordSignal queues a trading_signals insert on the async writer — SD's
// hot path (one call per generated signal) must never block on this.
func (s *Store) RecordSignal(sig domain.TradingSignal) {
	s.writer.Submit(false, "trading_signal", func(ctx context.Context) error {
		var realizedPnL interface{}
		if sig.RealizedPnL != nil {
			realizedPnL = sig.RealizedPnL.String()
		}
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO trading_signals (
				id, strategy_id, symbol, side, price, quantity, confidence,
				generated_at, executed, trade_type, cycle_id, realized_pnl,
				validation_flag, dropped_reason
			) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)
		`,
			sig.ID, sig.StrategyID, sig.Symbol, string(sig.Side), sig.Price.String(), sig.Quantity.String(), sig.Confidence.String(),
			formatTime(sig.GeneratedAt), boolInt(sig.Executed), string(sig.TradeType), sig.CycleID, realizedPnL,
			boolInt(sig.ValidationFlag), sig.DroppedReason,
		)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordSignal", err)
		}
		return nil
	})
}

// RecordCycleOpen/RecordCycleClose persist trade cycle lifecycle
// transitions. Cycle writes carry realized money outcomes, so they are
// submitted as critical: the writer never sacrifices them to queue
// pressure.
func (s *Store) RecordCycleOpen(c domain.TradeCycle) {
	s.writer.Submit(true, "trade_cycle_open", func(ctx context.Context) error {
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO trade_cycles (
				cycle_id, strategy_id, open_signal_id, close_signal_id, open_time,
				close_time, buy_price, sell_price, quantity, pnl, holding_minutes,
				status, abandon_reason, trade_type
			) VALUES (?,?,?,?,?,NULL,?,NULL,?,NULL,NULL,?,?,?)
		`,
			c.CycleID, c.StrategyID, c.OpenSignalID, c.CloseSignalID, formatTime(c.OpenTime),
			c.BuyPrice.String(), c.Quantity.String(), string(c.Status), c.AbandonReason, string(c.TradeType),
		)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordCycleOpen", err)
		}
		return nil
	})
}

func (s *Store) RecordCycleClose(c domain.TradeCycle) {
	s.writer.Submit(true, "trade_cycle_close", func(ctx context.Context) error {
		var closeTime, sellPrice, pnl interface{}
		if c.CloseTime != nil {
			closeTime = formatTime(*c.CloseTime)
		}
		if c.SellPrice != nil {
			sellPrice = c.SellPrice.String()
		}
		if c.PnL != nil {
			pnl = c.PnL.String()
		}
		var holdingMinutes interface{}
		if c.HoldingMinutes != nil {
			holdingMinutes = *c.HoldingMinutes
		}
		_, err := s.conn().ExecContext(ctx, `
			UPDATE trade_cycles SET
				close_signal_id=?, close_time=?, sell_price=?, pnl=?,
				holding_minutes=?, status=?, abandon_reason=?
			WHERE cycle_id=?
		`,
			c.CloseSignalID, closeTime, sellPrice, pnl,
			holdingMinutes, string(c.Status), c.AbandonReason, c.CycleID,
		)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordCycleClose", err)
		}
		return nil
	})
}

// OpenCycles returns every cycle in the 'open' state, for CP diagnostics and
// boot-time recovery of in-flight cycles.
func (s *Store) OpenCycles(ctx context.Context) ([]domain.TradeCycle, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT cycle_id, strategy_id, open_signal_id, close_signal_id, open_time,
			buy_price, quantity, status, abandon_reason
		FROM trade_cycles WHERE status = 'open'
	`)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenCycles", err)
	}
	defer rows.Close()

	var out []domain.TradeCycle
	for rows.Next() {
		var c domain.TradeCycle
		var openTime, buyPrice, quantity, status string
		if err := rows.Scan(&c.CycleID, &c.StrategyID, &c.OpenSignalID, &c.CloseSignalID, &openTime,
			&buyPrice, &quantity, &status, &c.AbandonReason); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.OpenCycles", err)
		}
		c.OpenTime = parseTime(openTime)
		c.BuyPrice = mustDecimal(buyPrice)
		c.Quantity = mustDecimal(quantity)
		c.Status = domain.CycleStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// RecentSignals returns the most recent limit signals for a strategy,
// newest first, for CP's get_signals query.
func (s *Store) RecentSignals(ctx context.Context, strategyID string, limit int) ([]domain.TradingSignal, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT id, strategy_id, symbol, side, price, quantity, confidence,
			generated_at, executed, trade_type, cycle_id, realized_pnl,
			validation_flag, dropped_reason
		FROM trading_signals WHERE strategy_id = ? ORDER BY generated_at DESC LIMIT ?
	`, strategyID, limit)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecentSignals", err)
	}
	return scanSignals(rows)
}

// RecentSignalsAll is RecentSignals without a strategy filter, for CP's
// global get_signals(limit) query — an operator watching the whole fleet,
// not one strategy.
func (s *Store) RecentSignalsAll(ctx context.Context, limit int) ([]domain.TradingSignal, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT id, strategy_id, symbol, side, price, quantity, confidence,
			generated_at, executed, trade_type, cycle_id, realized_pnl,
			validation_flag, dropped_reason
		FROM trading_signals ORDER BY generated_at DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecentSignalsAll", err)
	}
	return scanSignals(rows)
}

func scanSignals(rows *sql.Rows) ([]domain.TradingSignal, error) {
	defer rows.Close()

	var out []domain.TradingSignal
	for rows.Next() {
		var sig domain.TradingSignal
		var side, generatedAt, tradeType string
		var executed, validationFlag int
		var realizedPnL *string
		if err := rows.Scan(&sig.ID, &sig.StrategyID, &sig.Symbol, &side, &sig.Price, &sig.Quantity, &sig.Confidence,
			&generatedAt, &executed, &tradeType, &sig.CycleID, &realizedPnL, &validationFlag, &sig.DroppedReason); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecentSignals", err)
		}
		sig.Side = domain.Side(side)
		sig.GeneratedAt = parseTime(generatedAt)
		sig.Executed = executed != 0
		sig.TradeType = domain.TradeType(tradeType)
		sig.ValidationFlag = validationFlag != 0
		if realizedPnL != nil {
			d := mustDecimal(*realizedPnL)
			sig.RealizedPnL = &d
		}
		out = append(out, sig)
	}
	return out, rows.Err()
}
