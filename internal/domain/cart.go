package domain

import "time"

// CartPosition reserves one unit of an item/variation (or a bare voucher)
// inside a cart for a limited time. Only positions with ExpiresAt in the
// future count against quotas and voucher usage; the expiry sweep is a
// cleanup optimization, not a correctness requirement.
type CartPosition struct {
	ID          string
	CartID      string
	EventID     string
	ItemID      *string
	VariationID *string
	SubeventID  *string
	VoucherID   *string
	Price       int64
	ExpiresAt   time.Time
	CreatedAt   time.Time
	// QuotaIDs are the quotas this position counts against, captured at
	// hold time so commit re-verifies exactly the pools it reserved from.
	QuotaIDs []string
}

// Expired reports whether the position no longer counts as held.
func (p CartPosition) Expired(now time.Time) bool {
	return !p.ExpiresAt.After(now)
}
