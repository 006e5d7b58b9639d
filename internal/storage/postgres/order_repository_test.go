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

func TestOrderCommitIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	clk := clock.NewSystem()
	logger := zap.NewNop()
	cartSvc := app.NewCartService(NewCartRepository(pool), clk, logger)
	orderSvc := app.NewOrderService(NewOrderRepository(pool), clk, logger)

	quotaCommitted := func(t *testing.T, quotaID string) int {
		t.Helper()
		var committed int
		if err := pool.QueryRow(ctx, `SELECT committed FROM quotas WHERE id = $1`, quotaID).Scan(&committed); err != nil {
			t.Fatalf("read committed: %v", err)
		}
		return committed
	}

	t.Run("commit moves holds into committed counters", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

		for i := 0; i < 2; i++ {
			if _, err := cartSvc.PlaceHold(ctx, app.PlaceHoldInput{CartID: "cart-1", ItemID: itemID}); err != nil {
				t.Fatalf("place hold: %v", err)
			}
		}

		got, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"})
		if err != nil {
			t.Fatalf("commit: %v", err)
		}
		if !got.Created {
			t.Fatal("expected a new order")
		}
		if got.Order.Total != 9800 {
			t.Fatalf("total = %d, want 9800", got.Order.Total)
		}
		if committed := quotaCommitted(t, quotaID); committed != 2 {
			t.Fatalf("committed = %d, want 2", committed)
		}

		remaining, err := cartSvc.ListPositions(ctx, "cart-1")
		if err != nil {
			t.Fatalf("list positions: %v", err)
		}
		if len(remaining) != 0 {
			t.Fatalf("got %d positions after commit, want 0", len(remaining))
		}

		var lines int
		if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM order_lines WHERE order_id = $1`, got.Order.ID).Scan(&lines); err != nil {
			t.Fatalf("count lines: %v", err)
		}
		if lines != 2 {
			t.Fatalf("lines = %d, want 2", lines)
		}
	})

	t.Run("same key retry returns the same order once", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

		if _, err := cartSvc.PlaceHold(ctx, app.PlaceHoldInput{CartID: "cart-1", ItemID: itemID}); err != nil {
			t.Fatalf("place hold: %v", err)
		}

		first, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"})
		if err != nil {
			t.Fatalf("first commit: %v", err)
		}
		second, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"})
		if err != nil {
			t.Fatalf("retry: %v", err)
		}
		if second.Created {
			t.Fatal("retry must not create a second order")
		}
		if first.Order.ID != second.Order.ID {
			t.Fatalf("order ids differ: %s vs %s", first.Order.ID, second.Order.ID)
		}
		if committed := quotaCommitted(t, quotaID); committed != 1 {
			t.Fatalf("committed = %d, want 1", committed)
		}

		_, err = orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-2"})
		if !errors.Is(err, domain.ErrIdempotencyConflict) {
			t.Fatalf("err = %v, want idempotency conflict", err)
		}
	})

	t.Run("expired hold aborts the commit", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
		quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, ItemID: &itemID, Price: 4900,
			ExpiresAt: time.Now().Add(-time.Minute), QuotaIDs: []string{quotaID},
		})

		_, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"})
		if !errors.Is(err, domain.ErrHoldExpired) {
			t.Fatalf("err = %v, want hold expired", err)
		}
		if committed := quotaCommitted(t, quotaID); committed != 0 {
			t.Fatalf("committed = %d, want 0 after abort", committed)
		}
	})

	t.Run("voucher redemption commits atomically", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		voucherID := testutil.InsertVoucher(t, ctx, pool, domain.Voucher{
			EventID: eventID, Code: "SUMMER", MaxUsages: 3, Redeemed: 1,
		})

		voucherSvc := app.NewVoucherService(NewVoucherRepository(pool), clk, logger)
		if _, err := voucherSvc.Apply(ctx, app.ApplyVoucherInput{CartID: "cart-1", Code: "summer"}); err != nil {
			t.Fatalf("apply voucher: %v", err)
		}

		if _, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"}); err != nil {
			t.Fatalf("commit: %v", err)
		}

		var redeemed int
		if err := pool.QueryRow(ctx, `SELECT redeemed FROM vouchers WHERE id = $1`, voucherID).Scan(&redeemed); err != nil {
			t.Fatalf("read redeemed: %v", err)
		}
		if redeemed != 2 {
			t.Fatalf("redeemed = %d, want 2", redeemed)
		}
	})

	t.Run("empty cart cannot commit", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)

		_, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-9", IdempotencyKey: "key-1"})
		if !errors.Is(err, domain.ErrCartEmpty) {
			t.Fatalf("err = %v, want empty cart", err)
		}
	})
}

// Two transactions commit the same cart with the same key at once. The
// loser parks on the position row locks; once the winner commits, the
// loser's locking scan skips the deleted rows, so it must fall through to
// the order row and replay it rather than report an empty cart.
func TestConcurrentCommitSameKey(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	clk := clock.NewSystem()
	logger := zap.NewNop()
	cartSvc := app.NewCartService(NewCartRepository(pool), clk, logger)
	orderSvc := app.NewOrderService(NewOrderRepository(pool), clk, logger)

	eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
	itemID := testutil.InsertItem(t, ctx, pool, eventID, "Ticket", 4900)
	quotaID := testutil.InsertQuota(t, ctx, pool, eventID, itemID, testutil.IntPtr(10))

	for i := 0; i < 2; i++ {
		if _, err := cartSvc.PlaceHold(ctx, app.PlaceHoldInput{CartID: "cart-1", ItemID: itemID}); err != nil {
			t.Fatalf("place hold: %v", err)
		}
	}

	start := make(chan struct{})
	results := make(chan app.CommitCartResult, 2)
	errs := make(chan error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			got, err := orderSvc.CommitCart(ctx, app.CommitCartInput{CartID: "cart-1", IdempotencyKey: "key-1"})
			if err != nil {
				errs <- err
				return
			}
			results <- got
		}()
	}
	close(start)
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("commit: %v", err)
	}

	var ids []string
	created := 0
	for got := range results {
		ids = append(ids, got.Order.ID)
		if got.Created {
			created++
		}
	}
	if len(ids) != 2 || ids[0] != ids[1] {
		t.Fatalf("order ids = %v, want both commits to land on one order", ids)
	}
	if created != 1 {
		t.Fatalf("created = %d, want exactly one fresh order", created)
	}

	var orders, committed int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&orders); err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if orders != 1 {
		t.Fatalf("orders = %d, want 1", orders)
	}
	if err := pool.QueryRow(ctx, `SELECT committed FROM quotas WHERE id = $1`, quotaID).Scan(&committed); err != nil {
		t.Fatalf("read committed: %v", err)
	}
	if committed != 2 {
		t.Fatalf("committed = %d, want counters moved exactly once", committed)
	}
}
