package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carpentries/pretix/internal/domain"
)

type VoucherRepository struct {
	store
}

func NewVoucherRepository(pool *pgxpool.Pool) *VoucherRepository {
	return &VoucherRepository{store: store{pool: pool}}
}

// GetVoucherByCodeForUpdate locks the voucher row so concurrent applies of
// the same code serialize. Codes are matched case-insensitively.
func (r *VoucherRepository) GetVoucherByCodeForUpdate(ctx context.Context, code string) (domain.Voucher, error) {
	const query = `
SELECT id, event_id, code, max_usages, redeemed, valid_until, created_at
FROM vouchers
WHERE LOWER(code) = LOWER($1)
FOR UPDATE`

	var v domain.Voucher
	err := r.queryRow(ctx, query, code).
		Scan(&v.ID, &v.EventID, &v.Code, &v.MaxUsages, &v.Redeemed, &v.ValidUntil, &v.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Voucher{}, domain.ErrVoucherInvalid
		}
		return domain.Voucher{}, fmt.Errorf("get voucher by code: %w", err)
	}
	return v, nil
}

// CountActiveVoucherHolds counts non-expired cart positions referencing
// the voucher; expiry filtering happens here, not via the sweep.
func (r *VoucherRepository) CountActiveVoucherHolds(ctx context.Context, voucherID string, now time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM cart_positions
WHERE voucher_id = $1 AND expires_at > $2`

	var total int
	if err := r.queryRow(ctx, query, voucherID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("count voucher holds: %w", err)
	}
	return total, nil
}

func (r *VoucherRepository) CreatePosition(ctx context.Context, pos domain.CartPosition) error {
	return insertPosition(ctx, r.store, pos)
}
