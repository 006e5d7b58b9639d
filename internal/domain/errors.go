package domain

import "errors"

var (
	ErrEventNotFound    = errors.New("event not found")
	ErrItemNotFound     = errors.New("item not found")
	ErrSubeventNotFound = errors.New("subevent not found")
	ErrItemUnavailable  = errors.New("item not available on this sales channel")
	ErrSaleNotRunning   = errors.New("presale is not running")

	ErrQuotaExceeded   = errors.New("not enough quota left")
	ErrHoldNotFound    = errors.New("cart position not found or expired")
	ErrHoldExpired     = errors.New("cart position expired")
	ErrCartEmpty       = errors.New("cart has no active positions")
	ErrCartMixedEvents = errors.New("cart spans multiple events")

	ErrVoucherInvalid  = errors.New("voucher code not known")
	ErrVoucherExpired  = errors.New("voucher expired")
	ErrVoucherRedeemed = errors.New("voucher already used up")

	ErrIdempotencyKeyRequired = errors.New("idempotency key required")
	ErrIdempotencyConflict    = errors.New("idempotency conflict")
	ErrInvalidID              = errors.New("invalid id")

	ErrEventNameRequired = errors.New("event name required")
	ErrItemNameRequired  = errors.New("item name required")
	ErrQuotaNameRequired = errors.New("quota name required")
	ErrVoucherCodeTaken  = errors.New("voucher code already exists")
	ErrInvalidCapacity   = errors.New("invalid capacity")
	ErrInvalidUsages     = errors.New("invalid max usages")
)
