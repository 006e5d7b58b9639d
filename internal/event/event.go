package event

import (
	"context"
	"time"
)

// OrderConfirmed is emitted after a cart commit succeeds. Downstream
// consumers (ticket delivery, mail) react to it; the commit itself never
// depends on publishing succeeding.
type OrderConfirmed struct {
	OrderID   string    `json:"order_id"`
	EventID   string    `json:"event_id"`
	CartID    string    `json:"cart_id"`
	Total     int64     `json:"total"`
	Positions int       `json:"positions"`
	CreatedAt time.Time `json:"created_at"`
}

// Publisher abstracts the event transport.
type Publisher interface {
	PublishOrderConfirmed(ctx context.Context, evt OrderConfirmed) error
}

// Noop discards all events; used when no broker is configured.
type Noop struct{}

func (Noop) PublishOrderConfirmed(context.Context, OrderConfirmed) error {
	return nil
}
