package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carpentries/pretix/internal/domain"
)

type AdminRepository struct {
	store
}

func NewAdminRepository(pool *pgxpool.Pool) *AdminRepository {
	return &AdminRepository{store: store{pool: pool}}
}

func (r *AdminRepository) CreateEvent(ctx context.Context, ev domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, starts_at, sale_start, sale_end, waiting_list, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`

	if _, err := r.exec(ctx, stmt,
		ev.ID, ev.Name, ev.StartsAt, ev.SaleStart, ev.SaleEnd, ev.WaitingList, ev.CreatedAt,
	); err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListEvents(ctx context.Context) ([]domain.Event, error) {
	const query = `
SELECT id, name, starts_at, sale_start, sale_end, waiting_list, created_at
FROM events
ORDER BY starts_at, id`

	rows, err := r.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		var ev domain.Event
		if err := rows.Scan(&ev.ID, &ev.Name, &ev.StartsAt, &ev.SaleStart, &ev.SaleEnd, &ev.WaitingList, &ev.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (r *AdminRepository) CreateSubevent(ctx context.Context, se domain.Subevent) error {
	const stmt = `INSERT INTO subevents (id, event_id, name, starts_at) VALUES ($1, $2, $3, $4)`

	if _, err := r.exec(ctx, stmt, se.ID, se.EventID, se.Name, se.StartsAt); err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("insert subevent: %w", err)
	}
	return nil
}

func (r *AdminRepository) ListSubeventsByEvent(ctx context.Context, eventID string) ([]domain.Subevent, error) {
	const query = `SELECT id, event_id, name, starts_at FROM subevents WHERE event_id = $1 ORDER BY starts_at, id`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list subevents: %w", err)
	}
	defer rows.Close()

	var subevents []domain.Subevent
	for rows.Next() {
		var se domain.Subevent
		if err := rows.Scan(&se.ID, &se.EventID, &se.Name, &se.StartsAt); err != nil {
			return nil, fmt.Errorf("scan subevent: %w", err)
		}
		subevents = append(subevents, se)
	}
	return subevents, rows.Err()
}

func (r *AdminRepository) CreateItem(ctx context.Context, item domain.Item, variations []domain.Variation) error {
	return r.WithTx(ctx, func(txCtx context.Context) error {
		const itemStmt = `
INSERT INTO items (id, event_id, name, price, active, channels, min_per_order, max_per_order, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

		channels := item.Channels
		if channels == nil {
			channels = []string{}
		}
		if _, err := r.exec(txCtx, itemStmt,
			item.ID, item.EventID, item.Name, item.Price, item.Active,
			channels, item.MinPerOrder, item.MaxPerOrder, item.CreatedAt,
		); err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			if isForeignKeyViolation(err) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("insert item: %w", err)
		}

		const variationStmt = `INSERT INTO variations (id, item_id, name, price) VALUES ($1, $2, $3, $4)`
		for _, v := range variations {
			if _, err := r.exec(txCtx, variationStmt, v.ID, v.ItemID, v.Name, v.Price); err != nil {
				return fmt.Errorf("insert variation: %w", err)
			}
		}
		return nil
	})
}

func (r *AdminRepository) ListItemsByEvent(ctx context.Context, eventID string) ([]domain.Item, error) {
	const query = `
SELECT id, event_id, name, price, active, channels, min_per_order, max_per_order, created_at
FROM items
WHERE event_id = $1
ORDER BY created_at, id`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []domain.Item
	for rows.Next() {
		var item domain.Item
		if err := rows.Scan(&item.ID, &item.EventID, &item.Name, &item.Price, &item.Active,
			&item.Channels, &item.MinPerOrder, &item.MaxPerOrder, &item.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *AdminRepository) CreateQuota(ctx context.Context, quota domain.Quota, links []domain.QuotaItem) error {
	return r.WithTx(ctx, func(txCtx context.Context) error {
		const quotaStmt = `
INSERT INTO quotas (id, event_id, subevent_id, name, size, committed, created_at)
VALUES ($1, $2, $3, $4, $5, 0, $6)`

		if _, err := r.exec(txCtx, quotaStmt,
			quota.ID, quota.EventID, quota.SubeventID, quota.Name, quota.Size, quota.CreatedAt,
		); err != nil {
			if isInvalidUUID(err) {
				return domain.ErrInvalidID
			}
			if isForeignKeyViolation(err) {
				return domain.ErrEventNotFound
			}
			return fmt.Errorf("insert quota: %w", err)
		}

		const linkStmt = `INSERT INTO quota_items (quota_id, item_id, variation_id) VALUES ($1, $2, $3)`
		for _, link := range links {
			if _, err := r.exec(txCtx, linkStmt, link.QuotaID, link.ItemID, link.VariationID); err != nil {
				if isInvalidUUID(err) {
					return domain.ErrInvalidID
				}
				if isForeignKeyViolation(err) {
					return domain.ErrItemNotFound
				}
				return fmt.Errorf("insert quota item link: %w", err)
			}
		}
		return nil
	})
}

func (r *AdminRepository) ListQuotasByEvent(ctx context.Context, eventID string) ([]domain.Quota, error) {
	const query = `
SELECT id, event_id, subevent_id, name, size, committed, created_at
FROM quotas
WHERE event_id = $1
ORDER BY id`

	rows, err := r.query(ctx, query, eventID)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, fmt.Errorf("list quotas: %w", err)
	}
	defer rows.Close()
	return scanQuotas(rows)
}

func (r *AdminRepository) CreateVoucher(ctx context.Context, voucher domain.Voucher) error {
	const stmt = `
INSERT INTO vouchers (id, event_id, code, max_usages, redeemed, valid_until, created_at)
VALUES ($1, $2, $3, $4, 0, $5, $6)`

	if _, err := r.exec(ctx, stmt,
		voucher.ID, voucher.EventID, voucher.Code, voucher.MaxUsages, voucher.ValidUntil, voucher.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVoucherCodeTaken
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		if isForeignKeyViolation(err) {
			return domain.ErrEventNotFound
		}
		return fmt.Errorf("insert voucher: %w", err)
	}
	return nil
}
