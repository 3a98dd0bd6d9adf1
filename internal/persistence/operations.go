package persistence

import (
	"context"
	"time"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// LogCategory is the operator-facing taxonomy get_logs filters on
// (SUPPLEMENTED FEATURE 1: arbitrage, evolution, trading, system).
type LogCategory string

const (
	LogArbitrage LogCategory = "arbitrage"
	LogEvolution LogCategory = "evolution"
	LogTrading   LogCategory = "trading"
	LogSystem    LogCategory = "system"
)

// LogOperation appends one operator-facing log line, non-critical (it is a
// diagnostic aid, not the audit trail — that is evolution_history/
// trade_cycles/arbitrage_tasks).
func (s *Store) LogOperation(category LogCategory, level, message string, kind domain.ErrKind, detail interface{}) {
	s.writer.Submit(false, "operation_log", func(ctx context.Context) error {
		var blob []byte
		if detail != nil {
			b, err := encode(detail)
			if err != nil {
				return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LogOperation", err)
			}
			blob = b
		}
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO operation_logs (at, category, level, message, err_kind, detail)
			VALUES (?,?,?,?,?,?)
		`, formatTime(time.Now().UTC()), string(category), level, message, string(kind), blob)
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LogOperation", err)
		}
		return nil
	})
}

// RecentLogs returns the most recent limit operation_logs rows, optionally
// filtered by category (empty means all categories), newest first, for
// CP's get_logs query.
func (s *Store) RecentLogs(ctx context.Context, category LogCategory, limit int) ([]OperationLog, error) {
	var rows interface {
		Next() bool
		Scan(...interface{}) error
		Err() error
		Close() error
	}
	var err error
	if category == "" {
		rows, err = s.conn().QueryContext(ctx, `
			SELECT at, category, level, message, err_kind FROM operation_logs
			ORDER BY at DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.conn().QueryContext(ctx, `
			SELECT at, category, level, message, err_kind FROM operation_logs
			WHERE category = ? ORDER BY at DESC LIMIT ?
		`, string(category), limit)
	}
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecentLogs", err)
	}
	defer rows.Close()

	var out []OperationLog
	for rows.Next() {
		var l OperationLog
		var at, category, level, errKind string
		if err := rows.Scan(&at, &category, &level, &l.Message, &errKind); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecentLogs", err)
		}
		l.At = parseTime(at)
		l.Category = LogCategory(category)
		l.Level = level
		l.ErrKind = domain.ErrKind(errKind)
		out = append(out, l)
	}
	return out, rows.Err()
}

// OperationLog is one row CP's get_logs surfaces to an operator.
type OperationLog struct {
	At       time.Time
	Category LogCategory
	Level    string
	Message  string
	ErrKind  domain.ErrKind
}
