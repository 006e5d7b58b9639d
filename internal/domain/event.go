package domain

import "time"

// Event is the root aggregate: items, quotas and vouchers all belong to one event.
type Event struct {
	ID          string
	Name        string
	StartsAt    time.Time
	SaleStart   *time.Time
	SaleEnd     *time.Time
	WaitingList bool
	CreatedAt   time.Time
}

// PresaleRunning reports whether tickets can currently be sold.
// A nil bound leaves that side of the window open.
func (e Event) PresaleRunning(now time.Time) bool {
	if e.SaleStart != nil && now.Before(*e.SaleStart) {
		return false
	}
	if e.SaleEnd != nil && !now.Before(*e.SaleEnd) {
		return false
	}
	return true
}

// Subevent is a single dated occurrence within a series event.
// Quotas may be scoped to one subevent.
type Subevent struct {
	ID       string
	EventID  string
	Name     string
	StartsAt time.Time
}
