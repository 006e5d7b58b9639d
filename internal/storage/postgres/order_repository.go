package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carpentries/pretix/internal/domain"
)

type OrderRepository struct {
	store
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{store: store{pool: pool}}
}

func (r *OrderRepository) GetOrderByCartID(ctx context.Context, cartID string) (*domain.Order, error) {
	const query = `
SELECT id, event_id, cart_id, total, idempotency_key, created_at
FROM orders
WHERE cart_id = $1`

	var o domain.Order
	err := r.queryRow(ctx, query, cartID).
		Scan(&o.ID, &o.EventID, &o.CartID, &o.Total, &o.IdempotencyKey, &o.CreatedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get order by cart: %w", err)
	}
	return &o, nil
}

// ListPositionsForUpdate locks a cart's positions so a concurrent release
// or renew cannot race the commit.
func (r *OrderRepository) ListPositionsForUpdate(ctx context.Context, cartID string) ([]domain.CartPosition, error) {
	query := `
SELECT ` + positionColumns + `
FROM cart_positions
WHERE cart_id = $1
ORDER BY created_at
FOR UPDATE`

	rows, err := r.query(ctx, query, cartID)
	if err != nil {
		return nil, fmt.Errorf("lock cart positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.CartPosition
	for rows.Next() {
		pos, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("scan cart position: %w", err)
		}
		positions = append(positions, pos)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cart positions: %w", err)
	}

	if err := attachQuotaRefs(ctx, r.store, positions); err != nil {
		return nil, err
	}
	return positions, nil
}

func (r *OrderRepository) QuotasForUpdateByIDs(ctx context.Context, quotaIDs []string) ([]domain.Quota, error) {
	return quotasByIDs(ctx, r.store, quotaIDs, true)
}

func (r *OrderRepository) HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error) {
	return heldCount(ctx, r.store, quotaID, now)
}

func (r *OrderRepository) VouchersForUpdate(ctx context.Context, voucherIDs []string) ([]domain.Voucher, error) {
	if len(voucherIDs) == 0 {
		return nil, nil
	}
	const query = `
SELECT id, event_id, code, max_usages, redeemed, valid_until, created_at
FROM vouchers
WHERE id = ANY($1)
ORDER BY id
FOR UPDATE`

	rows, err := r.query(ctx, query, voucherIDs)
	if err != nil {
		return nil, fmt.Errorf("lock vouchers: %w", err)
	}
	defer rows.Close()

	var vouchers []domain.Voucher
	for rows.Next() {
		var v domain.Voucher
		if err := rows.Scan(&v.ID, &v.EventID, &v.Code, &v.MaxUsages, &v.Redeemed, &v.ValidUntil, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan voucher: %w", err)
		}
		vouchers = append(vouchers, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vouchers: %w", err)
	}
	return vouchers, nil
}

func (r *OrderRepository) IncrementCommitted(ctx context.Context, quotaID string, by int) error {
	const stmt = `UPDATE quotas SET committed = committed + $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, quotaID, by)
	if err != nil {
		return fmt.Errorf("increment committed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("increment committed: quota %s not found", quotaID)
	}
	return nil
}

func (r *OrderRepository) IncrementRedeemed(ctx context.Context, voucherID string, by int) error {
	const stmt = `UPDATE vouchers SET redeemed = redeemed + $2 WHERE id = $1`

	tag, err := r.exec(ctx, stmt, voucherID, by)
	if err != nil {
		return fmt.Errorf("increment redeemed: %w", err)
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("increment redeemed: voucher %s not found", voucherID)
	}
	return nil
}

func (r *OrderRepository) CreateOrder(ctx context.Context, order domain.Order, lines []domain.OrderLine) error {
	const orderStmt = `
INSERT INTO orders (id, event_id, cart_id, total, idempotency_key, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	if _, err := r.exec(ctx, orderStmt,
		order.ID, order.EventID, order.CartID, order.Total, order.IdempotencyKey, order.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	const lineStmt = `
INSERT INTO order_lines (id, order_id, item_id, variation_id, subevent_id, voucher_id, price)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, line := range lines {
		if _, err := r.exec(ctx, lineStmt,
			line.ID, line.OrderID, line.ItemID, line.VariationID, line.SubeventID, line.VoucherID, line.Price,
		); err != nil {
			return fmt.Errorf("insert order line: %w", err)
		}
	}
	return nil
}

func (r *OrderRepository) DeletePositions(ctx context.Context, positionIDs []string) error {
	if len(positionIDs) == 0 {
		return nil
	}
	if _, err := r.exec(ctx,
		`DELETE FROM cart_positions WHERE id = ANY($1)`, positionIDs,
	); err != nil {
		return fmt.Errorf("delete committed positions: %w", err)
	}
	return nil
}
