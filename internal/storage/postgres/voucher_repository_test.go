package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/carpentries/pretix/internal/domain"
	"github.com/carpentries/pretix/internal/testutil"
)

func TestVoucherRepositoryIntegration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	repo := NewVoucherRepository(pool)

	t.Run("code lookup is case-insensitive", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		testutil.InsertVoucher(t, ctx, pool, domain.Voucher{EventID: eventID, Code: "Summer", MaxUsages: 5})

		for _, code := range []string{"Summer", "SUMMER", "summer"} {
			voucher, err := repo.GetVoucherByCodeForUpdate(ctx, code)
			if err != nil {
				t.Fatalf("lookup %q: %v", code, err)
			}
			if voucher.Code != "Summer" {
				t.Fatalf("code = %q, want the stored casing", voucher.Code)
			}
		}

		_, err := repo.GetVoucherByCodeForUpdate(ctx, "WINTER")
		if !errors.Is(err, domain.ErrVoucherInvalid) {
			t.Fatalf("err = %v, want voucher invalid", err)
		}
	})

	t.Run("active hold count ignores expired positions", func(t *testing.T) {
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "GopherCon", false)
		voucherID := testutil.InsertVoucher(t, ctx, pool, domain.Voucher{EventID: eventID, Code: "SUMMER", MaxUsages: 5})

		now := time.Now()
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-1", EventID: eventID, VoucherID: &voucherID, ExpiresAt: now.Add(time.Minute),
		})
		testutil.InsertPosition(t, ctx, pool, domain.CartPosition{
			CartID: "cart-2", EventID: eventID, VoucherID: &voucherID, ExpiresAt: now.Add(-time.Minute),
		})

		held, err := repo.CountActiveVoucherHolds(ctx, voucherID, now)
		if err != nil {
			t.Fatalf("count holds: %v", err)
		}
		if held != 1 {
			t.Fatalf("held = %d, want 1", held)
		}
	})
}
