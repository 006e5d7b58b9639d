package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/carpentries/pretix/internal/app"
	"github.com/carpentries/pretix/internal/clock"
	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/testutil"
)

func TestCartRepositoryIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	repo := NewCartRepository(pool)

	t.Run("held count filters expired positions", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

		now := time.Now()
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID,
			ExpiresAt: now.Add(10 * time.Minute), QuotaIDs: []string{quotaID},
		})
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-2", EventID: eventID, ItemID: &itemID,
			ExpiresAt: now.Add(-10 * time.Minute), QuotaIDs: []string{quotaID},
		})

		held, err := repo.HeldCount(ctx, quotaID, now)
		if err != nil {
			t.Fatalf("held count: %v", err)
		}
		if held != 1 {
			t.Fatalf("held = %d, want 1", held)
		}
	})

	t.Run("quotas are returned in id order with quota refs round-tripping", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		q1 := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))
		q2 := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(5))

		quotas, err := repo.QuotasForUpdate(ctx, itemID, nil, nil)
		if err != nil {
			t.Fatalf("quotas for update: %v", err)
		}
		if len(quotas) != 2 {
			t.Fatalf("got %d quotas, want 2", len(quotas))
		}
		for i := 1; i < len(quotas); i++ {
			if quotas[i-1].ID > quotas[i].ID {
				t.Fatalf("quotas not ordered by id: %q > %q", quotas[i-1].ID, quotas[i].ID)
			}
		}

		posID := testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID,
			ExpiresAt: time.Now().Add(10 * time.Minute), QuotaIDs: []string{q1, q2},
		})
		pos, err := repo.GetPosition(ctx, posID)
		if err != nil {
			t.Fatalf("get position: %v", err)
		}
		if len(pos.QuotaIDs) != 2 {
			t.Fatalf("got %d quota refs, want 2", len(pos.QuotaIDs))
		}
	})

	t.Run("renew only extends active positions", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)

		now := time.Now()
		activeID := testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID, ExpiresAt: now.Add(time.Minute),
		})
		staleID := testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID, ExpiresAt: now.Add(-time.Minute),
		})

		renewed, err := repo.RenewPosition(ctx, activeID, now.Add(15*time.Minute), now)
		if err != nil {
			t.Fatalf("renew active: %v", err)
		}
		if !renewed {
			t.Fatal("active position should renew")
		}

		renewed, err = repo.RenewPosition(ctx, staleID, now.Add(15*time.Minute), now)
		if err != nil {
			t.Fatalf("renew stale: %v", err)
		}
		if renewed {
			t.Fatal("expired position must not renew")
		}
	})

	t.Run("sweep deletes expired positions and reports their quotas", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

		now := time.Now()
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID,
			ExpiresAt: now.Add(-time.Minute), QuotaIDs: []string{quotaID},
		})
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-2", EventID: eventID, ItemID: &itemID,
			ExpiresAt: now.Add(-time.Second), QuotaIDs: []string{quotaID},
		})
		keepID := testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-3", EventID: eventID, ItemID: &itemID,
			ExpiresAt: now.Add(time.Minute), QuotaIDs: []string{quotaID},
		})

		deleted, quotaIDs, err := repo.DeleteExpiredPositions(ctx, now)
		if err != nil {
			t.Fatalf("sweep: %v", err)
		}
		if deleted != 2 {
			t.Fatalf("deleted = %d, want 2", deleted)
		}
		if len(quotaIDs) != 1 || quotaIDs[0] != quotaID {
			t.Fatalf("quotaIDs = %v, want [%s]", quotaIDs, quotaID)
		}

		if _, err := repo.GetPosition(ctx, keepID); err != nil {
			t.Fatalf("active position should survive the sweep: %v", err)
		}
	})
}

// TestConcurrentHoldsLastUnit races two holds for a single-unit quota
// through real transactions; the row locks must let exactly one win.
func TestConcurrentHoldsLastUnit(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
	itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
	testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(1))

	svc := app.NewCartService(NewCartRepository(pool), clock.NewSystem(), zap.NewNop())

	const attempts = 2
	errs := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PlaceHold(ctx, app.PlaceHoldInput{
				CartID: "cart-" + string(rune('a'+i)),
				ItemID: itemID,
			})
		}(i)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, domain.ErrQuotaExceeded):
			lost++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if won != 1 || lost != 1 {
		t.Fatalf("won = %d, lost = %d, want exactly one of each", won, lost)
	}
}
