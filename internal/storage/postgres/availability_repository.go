package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/carpentries/pretix/internal/domain"
)

// AvailabilityRepository is the resolver's read side. Nothing here takes
// row locks; display reads stay eventually consistent.
type AvailabilityRepository struct {
	store
}

func NewAvailabilityRepository(pool *pgxpool.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{store: store{pool: pool}}
}

func (r *AvailabilityRepository) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	return getEvent(ctx, r.store, eventID)
}

func (r *AvailabilityRepository) GetItem(ctx context.Context, itemID string) (domain.Item, error) {
	return getItem(ctx, r.store, itemID)
}

func (r *AvailabilityRepository) QuotasFor(ctx context.Context, itemID string, variationID, subeventID *string) ([]domain.Quota, error) {
	return quotasFor(ctx, r.store, itemID, variationID, subeventID, false)
}

func (r *AvailabilityRepository) HeldCount(ctx context.Context, quotaID string, now time.Time) (int, error) {
	return heldCount(ctx, r.store, quotaID, now)
}
