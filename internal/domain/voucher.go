package domain

import "time"

// Voucher is a discount or access code with a redemption cap. Redeemed
// counts confirmed usages only; in-cart holds are counted from the
// positions table at check time.
type Voucher struct {
	ID         string
	EventID    string
	Code       string
	MaxUsages  int
	Redeemed   int
	ValidUntil *time.Time
	CreatedAt  time.Time
}

// AvailableUsages returns how many new holds the voucher can still accept
// given the number of active in-cart holds referencing it.
func (v Voucher) AvailableUsages(activeHolds int) int {
	return v.MaxUsages - v.Redeemed - activeHolds
}

// ExpiredAt reports whether the voucher's validity window has passed.
// A nil ValidUntil never expires.
func (v Voucher) ExpiredAt(now time.Time) bool {
	return v.ValidUntil != nil && v.ValidUntil.Before(now)
}
