package persistence

import (
	"context"
	"time"

	"github.com/aristath/cryptosentinel/internal/domain"
)

// SaveBucket upserts a fund allocation bucket, synchronous: FA's Reserve/
// Release/Rebalance calls are infrequent relative to the signal hot path,
// and CP's get_account_info benefits from a read-your-writes guarantee.
func (s *Store) SaveBucket(ctx context.Context, b domain.FundBucket) error {
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO fund_allocation_buckets (class, allocated_total, available, updated_at)
		VALUES (?,?,?,?)
		ON CONFLICT(class) DO UPDATE SET
			allocated_total=excluded.allocated_total, available=excluded.available,
			updated_at=excluded.updated_at
	`, string(b.Class), b.AllocatedTotal.String(), b.Available.String(), formatTime(time.Now().UTC()))
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveBucket", err)
	}
	return nil
}

// LoadBuckets reads every fund allocation bucket, for FA's boot-time
// restore.
func (s *Store) LoadBuckets(ctx context.Context) ([]domain.FundBucket, error) {
	rows, err := s.conn().QueryContext(ctx, `SELECT class, allocated_total, available FROM fund_allocation_buckets`)
	if err != nil {
		return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LoadBuckets", err)
	}
	defer rows.Close()

	var out []domain.FundBucket
	for rows.Next() {
		var b domain.FundBucket
		var class, allocated, available string
		if err := rows.Scan(&class, &allocated, &available); err != nil {
			return nil, domain.NewError(domain.ErrPersistenceUnavailable, "persistence.LoadBuckets", err)
		}
		b.Class = domain.OpportunityClass(class)
		b.AllocatedTotal = mustDecimal(allocated)
		b.Available = mustDecimal(available)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SaveExchange upserts an exchange's identity/fee record (spec.md §4.1:
// "Created at boot from configuration and immutable thereafter").
func (s *Store) SaveExchange(ctx context.Context, e domain.Exchange) error {
	_, err := s.conn().ExecContext(ctx, `
		INSERT INTO exchanges (id, name, can_withdraw, can_deposit, maker_fee, taker_fee, rate_limit_per_sec)
		VALUES (?,?,?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, can_withdraw=excluded.can_withdraw, can_deposit=excluded.can_deposit,
			maker_fee=excluded.maker_fee, taker_fee=excluded.taker_fee,
			rate_limit_per_sec=excluded.rate_limit_per_sec
	`, string(e.ID), e.Name, boolInt(e.CanWithdraw), boolInt(e.CanDeposit), e.MakerFee.String(), e.TakerFee.String(), e.RateLimitPerSec)
	if err != nil {
		return domain.NewError(domain.ErrPersistenceUnavailable, "persistence.SaveExchange", err)
	}
	return nil
}
