package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/carpentries/pretix/internal/domain"
)

// Shared read queries; both the resolver and the hold ledger need them.

func getEvent(ctx context.Context, s store, eventID string) (domain.Event, error) {
	const query = `
SELECT id, name, starts_at, sale_start, sale_end, waiting_list, created_at
FROM events
WHERE id = $1`

	var ev domain.Event
	err := s.queryRow(ctx, query, eventID).
		Scan(&ev.ID, &ev.Name, &ev.StartsAt, &ev.SaleStart, &ev.SaleEnd, &ev.WaitingList, &ev.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Event{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func getItem(ctx context.Context, s store, itemID string) (domain.Item, error) {
	const query = `
SELECT id, event_id, name, price, active, channels, min_per_order, max_per_order, created_at
FROM items
WHERE id = $1`

	var item domain.Item
	err := s.queryRow(ctx, query, itemID).
		Scan(&item.ID, &item.EventID, &item.Name, &item.Price, &item.Active,
			&item.Channels, &item.MinPerOrder, &item.MaxPerOrder, &item.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Item{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Item{}, domain.ErrItemNotFound
		}
		return domain.Item{}, fmt.Errorf("get item: %w", err)
	}
	return item, nil
}

func getVariation(ctx context.Context, s store, variationID string) (domain.Variation, error) {
	const query = `SELECT id, item_id, name, price FROM variations WHERE id = $1`

	var v domain.Variation
	err := s.queryRow(ctx, query, variationID).Scan(&v.ID, &v.ItemID, &v.Name, &v.Price)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Variation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Variation{}, domain.ErrItemNotFound
		}
		return domain.Variation{}, fmt.Errorf("get variation: %w", err)
	}
	return v, nil
}

func getSubevent(ctx context.Context, s store, subeventID string) (domain.Subevent, error) {
	const query = `SELECT id, event_id, name, starts_at FROM subevents WHERE id = $1`

	var se domain.Subevent
	err := s.queryRow(ctx, query, subeventID).Scan(&se.ID, &se.EventID, &se.Name, &se.StartsAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Subevent{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Subevent{}, domain.ErrSubeventNotFound
		}
		return domain.Subevent{}, fmt.Errorf("get subevent: %w", err)
	}
	return se, nil
}

// quotasFor returns every quota the item/variation draws from in the given
// subevent context, ordered by id. With forUpdate the quota rows are
// locked; the deterministic order prevents deadlocks between holds that
// touch overlapping quota sets.
func quotasFor(ctx context.Context, s store, itemID string, variationID, subeventID *string, forUpdate bool) ([]domain.Quota, error) {
	query := `
SELECT q.id, q.event_id, q.subevent_id, q.name, q.size, q.committed, q.created_at
FROM quotas q
WHERE q.id IN (
	SELECT qi.quota_id FROM quota_items qi
	WHERE qi.item_id = $1 AND (qi.variation_id IS NULL OR qi.variation_id = $2)
)
AND q.subevent_id IS NOT DISTINCT FROM $3
ORDER BY q.id`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	rows, err := s.query(ctx, query, itemID, variationID, subeventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("quotas for item: %w", err)
	}
	defer rows.Close()
	return scanQuotas(rows)
}

func quotasByIDs(ctx context.Context, s store, quotaIDs []string, forUpdate bool) ([]domain.Quota, error) {
	if len(quotaIDs) == 0 {
		return nil, nil
	}
	query := `
SELECT id, event_id, subevent_id, name, size, committed, created_at
FROM quotas
WHERE id = ANY($1)
ORDER BY id`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	rows, err := s.query(ctx, query, quotaIDs)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("quotas by ids: %w", err)
	}
	defer rows.Close()
	return scanQuotas(rows)
}

func scanQuotas(rows pgx.Rows) ([]domain.Quota, error) {
	var quotas []domain.Quota
	for rows.Next() {
		var q domain.Quota
		if err := rows.Scan(&q.ID, &q.EventID, &q.SubeventID, &q.Name, &q.Size, &q.Committed, &q.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan quota: %w", err)
		}
		quotas = append(quotas, q)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate quotas: %w", err)
	}
	return quotas, nil
}

// heldCount sums active, non-expired positions referencing the quota. The
// expiry filter is part of the query so correctness never depends on the
// sweep having run.
func heldCount(ctx context.Context, s store, quotaID string, now time.Time) (int, error) {
	const query = `
SELECT COUNT(*)
FROM cart_position_quotas cpq
JOIN cart_positions p ON p.id = cpq.position_id
WHERE cpq.quota_id = $1 AND p.expires_at > $2`

	var total int
	if err := s.queryRow(ctx, query, quotaID, now).Scan(&total); err != nil {
		if isInvalidUUID(err) {
			return 0, domain.ErrInvalidID
		}
		return 0, fmt.Errorf("held count: %w", err)
	}
	return total, nil
}
