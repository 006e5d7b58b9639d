package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/carpentries/pretix/internal/domain"
)

const (
	codeInvalidRequestBody  = "invalid_request_body"
	codeNotFound            = "not_found"
	codeInternalError       = "internal_error"
	codeIdempotencyRequired = "idempotency_key_required"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{Error: msg, Code: code})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

// writeDomainError maps the core's sentinel errors onto HTTP statuses and
// stable machine-readable codes.
func writeDomainError(w http.ResponseWriter, err error) {
	type mapping struct {
		status int
		code   string
	}
	known := []struct {
		err error
		m   mapping
	}{
		{domain.ErrInvalidID, mapping{http.StatusBadRequest, "invalid_id"}},
		{domain.ErrEventNameRequired, mapping{http.StatusBadRequest, "event_name_required"}},
		{domain.ErrItemNameRequired, mapping{http.StatusBadRequest, "item_name_required"}},
		{domain.ErrQuotaNameRequired, mapping{http.StatusBadRequest, "quota_name_required"}},
		{domain.ErrInvalidCapacity, mapping{http.StatusBadRequest, "invalid_capacity"}},
		{domain.ErrInvalidUsages, mapping{http.StatusBadRequest, "invalid_max_usages"}},
		{domain.ErrIdempotencyKeyRequired, mapping{http.StatusBadRequest, codeIdempotencyRequired}},
		{domain.ErrEventNotFound, mapping{http.StatusNotFound, "event_not_found"}},
		{domain.ErrItemNotFound, mapping{http.StatusNotFound, "item_not_found"}},
		{domain.ErrSubeventNotFound, mapping{http.StatusNotFound, "subevent_not_found"}},
		{domain.ErrHoldNotFound, mapping{http.StatusNotFound, "position_not_found"}},
		{domain.ErrVoucherInvalid, mapping{http.StatusNotFound, "voucher_invalid"}},
		{domain.ErrItemUnavailable, mapping{http.StatusConflict, "item_unavailable"}},
		{domain.ErrSaleNotRunning, mapping{http.StatusConflict, "sale_not_running"}},
		{domain.ErrQuotaExceeded, mapping{http.StatusConflict, "quota_exceeded"}},
		{domain.ErrHoldExpired, mapping{http.StatusConflict, "position_expired"}},
		{domain.ErrCartEmpty, mapping{http.StatusConflict, "cart_empty"}},
		{domain.ErrCartMixedEvents, mapping{http.StatusConflict, "cart_mixed_events"}},
		{domain.ErrVoucherExpired, mapping{http.StatusConflict, "voucher_expired"}},
		{domain.ErrVoucherRedeemed, mapping{http.StatusConflict, "voucher_redeemed"}},
		{domain.ErrVoucherCodeTaken, mapping{http.StatusConflict, "voucher_code_taken"}},
		{domain.ErrIdempotencyConflict, mapping{http.StatusConflict, "idempotency_conflict"}},
	}

	for _, k := range known {
		if errors.Is(err, k.err) {
			writeError(w, k.m.status, k.m.code, k.err.Error())
			return
		}
	}
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid request body")
		return false
	}
	return true
}
