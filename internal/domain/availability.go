package domain

// AvailabilityState is the tri-state signal produced by the quota resolver.
type AvailabilityState string

const (
	// AvailabilityOK means units remain (or no quota constrains the item).
	AvailabilityOK AvailabilityState = "ok"
	// AvailabilityReserved means stock is exhausted but the event's waiting
	// list accepts entries.
	AvailabilityReserved AvailabilityState = "reserved"
	// AvailabilityGone means hard sold out.
	AvailabilityGone AvailabilityState = "gone"
	// AvailabilityUnknown means no quota is bound to the item.
	AvailabilityUnknown AvailabilityState = "unknown"
)

// Reason tags mirror what the shop front shows next to the state.
const (
	ReasonOK          = "ok"
	ReasonLow         = "low"
	ReasonWaitingList = "waitinglist"
	ReasonFull        = "full"
	ReasonUnavailable = "unavailable"
	ReasonUnknown     = "unknown"
	ReasonSaleOver    = "over"
)

// Availability is derived per request and never stored as source of truth.
// Remaining is nil when no finite quota constrains the item.
type Availability struct {
	State     AvailabilityState
	Remaining *int
	Low       bool
	Reason    string
}
