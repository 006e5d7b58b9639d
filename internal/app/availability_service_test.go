package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/cache"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
)

func intPtr(n int) *int { return &n }

func strPtr(s string) *string { return &s }

type fakeAvailabilityRepo struct {
	events map[string]domain.Event
	items  map[string]domain.Item
	// quotas per item id; subevent scoping handled by the real query, so
	// fakes key on item only.
	quotas map[string][]domain.Quota
	held   map[string]int

	quotaQueries int
}

func (f *fakeAvailabilityRepo) GetEvent(_ context.Context, eventID string) (domain.Event, error) {
	ev, ok := f.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return ev, nil
}

func (f *fakeAvailabilityRepo) GetItem(_ context.Context, itemID string) (domain.Item, error) {
	item, ok := f.items[itemID]
	if !ok {
		return domain.Item{}, domain.ErrItemNotFound
	}
	return item, nil
}

func (f *fakeAvailabilityRepo) QuotasFor(_ context.Context, itemID string, _, _ *string) ([]domain.Quota, error) {
	f.quotaQueries++
	return f.quotas[itemID], nil
}

func (f *fakeAvailabilityRepo) HeldCount(_ context.Context, quotaID string, _ time.Time) (int, error) {
	return f.held[quotaID], nil
}

func TestAvailabilityService_Resolve(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	baseRepo := func() *fakeAvailabilityRepo {
		return &fakeAvailabilityRepo{
			events: map[string]domain.Event{
				"event-1": {ID: "event-1", Name: "GopherCon", StartsAt: now.Add(30 * 24 * time.Hour)},
			},
			items: map[string]domain.Item{
				"item-1": {ID: "item-1", EventID: "event-1", Active: true},
			},
			quotas: map[string][]domain.Quota{},
			held:   map[string]int{},
		}
	}

	makeSvc := func(repo *fakeAvailabilityRepo, opts ...AvailabilityOption) *AvailabilityService {
		return NewAvailabilityService(repo, clock.NewFake(now), zap.NewNop(), opts...)
	}

	t.Run("no quota bound reports unknown", func(t *testing.T) {
		svc := makeSvc(baseRepo())

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityUnknown, got.State)
		assert.Equal(t, domain.ReasonUnknown, got.Reason)
		assert.Nil(t, got.Remaining)
	})

	t.Run("unlimited quota reports ok without a count", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", EventID: "event-1", Size: nil}}
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityOK, got.State)
		assert.Nil(t, got.Remaining)
	})

	t.Run("remaining is the minimum across quotas", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{
			{ID: "quota-1", Size: intPtr(100), Committed: 20},
			{ID: "quota-2", Size: intPtr(50), Committed: 10},
		}
		repo.held["quota-1"] = 5
		repo.held["quota-2"] = 15
		svc := makeSvc(repo, WithLowStockThreshold(10))

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityOK, got.State)
		require.NotNil(t, got.Remaining)
		assert.Equal(t, 25, *got.Remaining)
		assert.False(t, got.Low)
	})

	t.Run("size 5 committed 3 one hold leaves one low unit", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", Size: intPtr(5), Committed: 3}}
		repo.held["quota-1"] = 1
		svc := makeSvc(repo, WithLowStockThreshold(1))

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityOK, got.State)
		require.NotNil(t, got.Remaining)
		assert.Equal(t, 1, *got.Remaining)
		assert.True(t, got.Low)
		assert.Equal(t, domain.ReasonLow, got.Reason)
	})

	t.Run("sold out without waiting list is gone", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", Size: intPtr(10), Committed: 10}}
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityGone, got.State)
		assert.Equal(t, domain.ReasonFull, got.Reason)
	})

	t.Run("sold out with waiting list is reserved", func(t *testing.T) {
		repo := baseRepo()
		ev := repo.events["event-1"]
		ev.WaitingList = true
		repo.events["event-1"] = ev
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", Size: intPtr(10), Committed: 10}}
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityReserved, got.State)
		assert.Equal(t, domain.ReasonWaitingList, got.Reason)
	})

	t.Run("overcommitted quota clamps to zero instead of going negative", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", Size: intPtr(10), Committed: 12}}
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityGone, got.State)
		require.NotNil(t, got.Remaining)
		assert.Equal(t, 0, *got.Remaining)
	})

	t.Run("closed presale window reports sale over", func(t *testing.T) {
		repo := baseRepo()
		ev := repo.events["event-1"]
		end := now.Add(-time.Hour)
		ev.SaleEnd = &end
		repo.events["event-1"] = ev
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityGone, got.State)
		assert.Equal(t, domain.ReasonSaleOver, got.Reason)
	})

	t.Run("channel restricted item is unavailable elsewhere", func(t *testing.T) {
		repo := baseRepo()
		item := repo.items["item-1"]
		item.Channels = []string{"boxoffice"}
		repo.items["item-1"] = item
		svc := makeSvc(repo)

		got, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1", Channel: "web"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityGone, got.State)
		assert.Equal(t, domain.ReasonUnavailable, got.Reason)

		got, err = svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1", Channel: "boxoffice"})
		require.NoError(t, err)
		assert.Equal(t, domain.AvailabilityUnknown, got.State)
	})

	t.Run("unknown item", func(t *testing.T) {
		svc := makeSvc(baseRepo())

		_, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "missing"})
		assert.ErrorIs(t, err, domain.ErrItemNotFound)
	})

	t.Run("cache serves repeat reads until invalidated", func(t *testing.T) {
		repo := baseRepo()
		repo.quotas["item-1"] = []domain.Quota{{ID: "quota-1", Size: intPtr(10), Committed: 2}}
		c := cache.NewAvailability(5 * time.Second)
		svc := makeSvc(repo, WithAvailabilityCache(c))

		_, err := svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		_, err = svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, 1, repo.quotaQueries, "second read should be memoized")

		c.Invalidate("quota-1")
		_, err = svc.Resolve(context.Background(), AvailabilityQuery{ItemID: "item-1"})
		require.NoError(t, err)
		assert.Equal(t, 2, repo.quotaQueries, "invalidation should force a re-read")
	})
}
