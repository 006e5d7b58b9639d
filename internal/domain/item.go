package domain

import "time"

// Item is a sellable product within an event. Price is in minor currency
// units. An empty Channels list means the item sells on every channel.
type Item struct {
	ID          string
	EventID     string
	Name        string
	Price       int64
	Active      bool
	Channels    []string
	MinPerOrder int
	MaxPerOrder int
	CreatedAt   time.Time
}

// AvailableOnChannel reports whether the item may be sold through the given
// sales channel. An empty channel means the default online shop.
func (i Item) AvailableOnChannel(channel string) bool {
	if len(i.Channels) == 0 {
		return true
	}
	if channel == "" {
		channel = ChannelWeb
	}
	for _, c := range i.Channels {
		if c == channel {
			return true
		}
	}
	return false
}

// ChannelWeb is the default sales channel.
const ChannelWeb = "web"

// Variation is an optional sub-product of an item (e.g. "Adult" / "Reduced").
// A variation inherits the item's channel restrictions.
type Variation struct {
	ID     string
	ItemID string
	Name   string
	Price  int64
}
