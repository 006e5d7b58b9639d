package postgres

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5"

	"github.com/carpentries/pretix/internal/domain"
)

const positionColumns = `id, cart_id, event_id, item_id, variation_id, subevent_id, voucher_id, price, expires_at, created_at`

func insertPosition(ctx context.Context, s store, pos domain.CartPosition) error {
	const stmt = `
INSERT INTO cart_positions (id, cart_id, event_id, item_id, variation_id, subevent_id, voucher_id, price, expires_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := s.exec(ctx, stmt,
		pos.ID,
		pos.CartID,
		pos.EventID,
		pos.ItemID,
		pos.VariationID,
		pos.SubeventID,
		pos.VoucherID,
		pos.Price,
		pos.ExpiresAt,
		pos.CreatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return fmt.Errorf("insert cart position: %w", err)
	}

	for _, quotaID := range pos.QuotaIDs {
		if _, err := s.exec(ctx,
			`INSERT INTO cart_position_quotas (position_id, quota_id) VALUES ($1, $2)`,
			pos.ID, quotaID,
		); err != nil {
			return fmt.Errorf("insert position quota ref: %w", err)
		}
	}
	return nil
}

func scanPosition(row pgx.Row) (domain.CartPosition, error) {
	var p domain.CartPosition
	err := row.Scan(&p.ID, &p.CartID, &p.EventID, &p.ItemID, &p.VariationID,
		&p.SubeventID, &p.VoucherID, &p.Price, &p.ExpiresAt, &p.CreatedAt)
	return p, err
}

// attachQuotaRefs loads the quota back-references for a batch of positions.
func attachQuotaRefs(ctx context.Context, s store, positions []domain.CartPosition) error {
	if len(positions) == 0 {
		return nil
	}
	ids := make([]string, 0, len(positions))
	index := make(map[string]*domain.CartPosition, len(positions))
	for i := range positions {
		ids = append(ids, positions[i].ID)
		index[positions[i].ID] = &positions[i]
	}

	rows, err := s.query(ctx,
		`SELECT position_id, quota_id FROM cart_position_quotas WHERE position_id = ANY($1)`,
		ids,
	)
	if err != nil {
		return fmt.Errorf("load position quota refs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var positionID, quotaID string
		if err := rows.Scan(&positionID, &quotaID); err != nil {
			return fmt.Errorf("scan position quota ref: %w", err)
		}
		if p, ok := index[positionID]; ok {
			p.QuotaIDs = append(p.QuotaIDs, quotaID)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate position quota refs: %w", err)
	}
	for i := range positions {
		sort.Strings(positions[i].QuotaIDs)
	}
	return nil
}
