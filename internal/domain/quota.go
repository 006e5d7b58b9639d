package domain

import "time"

// Quota is a capacity pool limiting total sellable units across one or more
// item/variation pairs. A nil Size means unlimited. Committed counts
// confirmed order lines; active cart holds are counted separately from the
// positions table so that expiry filtering stays in one place.
type Quota struct {
	ID         string
	EventID    string
	SubeventID *string
	Name       string
	Size       *int
	Committed  int
	CreatedAt  time.Time
}

// Unlimited reports whether the quota imposes no cap.
func (q Quota) Unlimited() bool {
	return q.Size == nil
}

// Remaining returns the units still sellable given the current held count.
// A negative intermediate result is clamped to zero; the caller decides
// whether to log the inconsistency.
func (q Quota) Remaining(held int) (remaining int, clamped bool) {
	if q.Size == nil {
		return 0, false
	}
	remaining = *q.Size - q.Committed - held
	if remaining < 0 {
		return 0, true
	}
	return remaining, false
}

// QuotaItem links a quota to an item or to one of its variations.
type QuotaItem struct {
	QuotaID     string
	ItemID      string
	VariationID *string
}
