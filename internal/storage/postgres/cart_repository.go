package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carpentries/pretix/internal/domain"
)

// CartRepository backs the hold ledger. QuotasForUpdate is the only
// lock-taking read; everything else stays lock-free.
type CartRepository struct {
	store
}

func NewCartRepository(pool *pgxpool.Pool) *CartRepository {
	return &CartRepository{store: store{pool: pool}}
}

func (r *CartRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	return getEvent(ctx, r.store, eventID)
}

func (r *CartRepository) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	return getItem(ctx, r.store, itemID)
}

func (r *CartRepository) GetVariation(ctx context.Context, variationID string) (domain.Variation, error) {
	return getVariation(ctx, r.store, variationID)
}

func (r *CartRepository) GetSubevent(ctx context.Context, subeventID string) (domain.Subevent, error) {
	return getSubevent(ctx, r.store, subeventID)
}

func (r *CartRepository) QuotasForUpdate(ctx context.Context, itemID string, variationID, subeventID *string) ([]domain.Quota, error) {
	return quotasFor(ctx, r.store, itemID, variationID, subeventID, true)
}

func (r *CartRepository) HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error) {
	return heldCount(ctx, r.store, quotaID, now)
}

func (r *CartRepository) CreatePosition(ctx context.Context, pos domain.CartPosition) error {
	return insertPosition(ctx, r.store, pos)
}

func (r *CartRepository) GetPosition(ctx context.Context, positionID string) (domain.CartPosition, error) {
	query := `SELECT ` + positionColumns + ` FROM cart_positions WHERE id = $1`

	pos, err := scanPosition(r.queryRow(ctx, query, positionID))
	if err != nil {
		if isInvalidUUID(err) {
			return domain.CartPosition{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.CartPosition{}, domain.ErrHoldNotFound
		}
		return domain.CartPosition{}, fmt.Errorf("get cart position: %w", err)
	}

	positions := []domain.CartPosition{pos}
	if err := attachQuotaRefs(ctx, r.store, positions); err != nil {
		return domain.CartPosition{}, err
	}
	return positions[0], nil
}

// RenewPosition extends the expiry in one statement guarded by the old
// expiry, so renewing an already expired position reports false instead of
// resurrecting it.
func (r *CartRepository) RenewPosition(ctx context.Context, positionID string, expiresAt, now time.Time) (bool, error) {
	const stmt = `UPDATE cart_positions SET expires_at = $2 WHERE id = $1 AND expires_at > $3`

	tag, err := r.exec(ctx, stmt, positionID, expiresAt, now)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, fmt.Errorf("renew cart position: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *CartRepository) DeletePosition(ctx context.Context, positionID string) (domain.CartPosition, error) {
	query := `DELETE FROM cart_positions WHERE id = $1 RETURNING ` + positionColumns

	var result domain.CartPosition
	err := r.WithTx(ctx, func(txCtx context.Context) error {
		// Quota refs must be read before the cascade removes them.
		pos, err := r.GetPosition(txCtx, positionID)
		if err != nil {
			return err
		}
		deleted, err := scanPosition(r.queryRow(txCtx, query, positionID))
		if err != nil {
			if err == pgx.ErrNoRows {
				return domain.ErrHoldNotFound
			}
			return fmt.Errorf("delete cart position: %w", err)
		}
		deleted.QuotaIDs = pos.QuotaIDs
		result = deleted
		return nil
	})
	if err != nil {
		return domain.CartPosition{}, err
	}
	return result, nil
}

// DeleteExpiredPositions removes every position past its expiry and
// returns the affected quota ids for cache invalidation. Plain
// delete-if-expired keeps concurrent sweeps idempotent.
func (r *CartRepository) DeleteExpiredPositions(ctx context.Context, now time.Time) (int, []string, error) {
	// The outer query reads the pre-delete snapshot, so the quota refs are
	// still visible even though the cascade will remove them.
	const stmt = `
WITH gone AS (
	DELETE FROM cart_positions WHERE expires_at <= $1 RETURNING id
)
SELECT g.id, cpq.quota_id
FROM gone g
LEFT JOIN cart_position_quotas cpq ON cpq.position_id = g.id`

	rows, err := r.query(ctx, stmt, now)
	if err != nil {
		return 0, nil, fmt.Errorf("sweep expired positions: %w", err)
	}
	defer rows.Close()

	positionIDs := make(map[string]struct{})
	quotaSet := make(map[string]struct{})
	for rows.Next() {
		var positionID string
		var quotaID *string
		if err := rows.Scan(&positionID, &quotaID); err != nil {
			return 0, nil, fmt.Errorf("scan swept position: %w", err)
		}
		positionIDs[positionID] = struct{}{}
		if quotaID != nil {
			quotaSet[*quotaID] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return 0, nil, fmt.Errorf("iterate swept positions: %w", err)
	}

	quotaIDs := make([]string, 0, len(quotaSet))
	for id := range quotaSet {
		quotaIDs = append(quotaIDs, id)
	}
	return len(positionIDs), quotaIDs, nil
}

func (r *CartRepository) ListActivePositions(ctx context.Context, cartID string, now time.Time) ([]domain.CartPosition, error) {
	query := `
SELECT ` + positionColumns + `
FROM cart_positions
WHERE cart_id = $1 AND expires_at > $2
ORDER BY created_at`

	rows, err := r.query(ctx, query, cartID, now)
	if err != nil {
		return nil, fmt.Errorf("list cart positions: %w", err)
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
