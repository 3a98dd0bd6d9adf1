package persistence

import (
	"context"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// RecordBalance appends a point-in-time balance snapshot, non-critical
// (MDS/EA poll this frequently; losing one under queue pressure just means
// a gap in the history, never a stale live balance).
func (s *Store) RecordBalance(b domain.AccountBalance) {
	s.writer.Submit(false, "balance_history", func(ctx context.Context) error {
		_, err := s.conn().ExecContext(ctx, `
			INSERT INTO balance_history (exchange_id, asset, total, available, locked, observed_at)
			VALUES (?,?,?,?,?,?)
		`, string(b.ExchangeID), b.Asset, b.Total.String(), b.Available.String(), b.Locked.String(), formatTime(b.ObservedAt))
		if err != nil {
			return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.RecordBalance", err)
		}
		return nil
	})
}

// LatestBalances returns the most recent observed row per (exchange, asset),
// for CP's get_account_info query.
func (s *Store) LatestBalances(ctx context.Context) ([]domain.AccountBalance, error) {
	rows, err := s.conn().QueryContext(ctx, `
		SELECT exchange_id, asset, total, available, locked, observed_at
		FROM balance_history b
		WHERE observed_at = (
			SELECT MAX(observed_at) FROM balance_history
			WHERE exchange_id = b.exchange_id AND asset = b.asset
		)
	`)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LatestBalances", err)
	}
	defer rows.Close()

	var out []domain.AccountBalance
	for rows.Next() {
		var b domain.AccountBalance
		var exchangeID, total, available, locked, observedAt string
		if err := rows.Scan(&exchangeID, &b.Asset, &total, &available, &locked, &observedAt); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LatestBalances", err)
		}
		b.ExchangeID = domain.ExchangeID(exchangeID)
		b.Total = mustDecimal(total)
		b.Available = mustDecimal(available)
		b.Locked = mustDecimal(locked)
		b.ObservedAt = parseTime(observedAt)
		out = append(out, b)
	}
	return out, rows.Err()
}
