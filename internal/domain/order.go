package domain

import "time"

// Order is the committed result of a cart checkout.
type Order struct {
	ID             string
	EventID        string
	CartID         string
	Total          int64
	IdempotencyKey string
	CreatedAt      time.Time
}

// OrderLine records one committed unit. VoucherID is set when the line
// consumed a voucher usage.
type OrderLine struct {
	ID          string
	OrderID     string
	ItemID      *string
	VariationID *string
	SubeventID  *string
	VoucherID   *string
	Price       int64
}
